package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/BotKhongNgu/fourcake-buy-sell/internal/bscutil"
	"github.com/BotKhongNgu/fourcake-buy-sell/internal/chain"
	"github.com/BotKhongNgu/fourcake-buy-sell/internal/config"
	"github.com/BotKhongNgu/fourcake-buy-sell/internal/events"
	"github.com/BotKhongNgu/fourcake-buy-sell/internal/gateway"
	"github.com/BotKhongNgu/fourcake-buy-sell/internal/scheduler"
	"github.com/BotKhongNgu/fourcake-buy-sell/internal/store"
)

func main() {
	log.SetFlags(0)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[fatal] %v", err)
	}

	var (
		addrFlag  string
		tokenFlag string
		write     bool
	)
	flag.StringVar(&addrFlag, "addresses", "", "Comma/space separated wallet addresses (default: every stored account)")
	flag.StringVar(&tokenFlag, "token", cfg.Trading.TokenAddress, "Token to report alongside BNB (optional)")
	flag.BoolVar(&write, "write", false, "Persist balances of stored accounts")
	flag.Parse()

	if err := bscutil.ValidateRPCURL(cfg.Chain.RPCURL); err != nil {
		log.Fatalf("[fatal] %v", err)
	}
	var token common.Address
	if v := strings.TrimSpace(tokenFlag); v != "" {
		if !common.IsHexAddress(v) {
			log.Fatalf("[fatal] invalid -token %q", v)
		}
		token = common.HexToAddress(v)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	net := cfg.Network()
	client, err := chain.Dial(ctx, cfg.Chain.RPCURL, net.ChainID)
	if err != nil {
		log.Fatalf("[fatal] %v", err)
	}
	defer client.Close()
	gw := gateway.New(cfg.RPCTimeout())

	owners, err := bscutil.ParseAddresses(addrFlag)
	if err != nil {
		log.Fatalf("[fatal] -addresses: %v", err)
	}
	if len(owners) > 0 {
		for _, owner := range owners {
			printBalance(ctx, client, gw, owner, token)
		}
		return
	}

	st, err := store.Open(cfg.App.StorePath)
	if err != nil {
		log.Fatalf("[fatal] %v", err)
	}
	defer st.Close()

	if write {
		if token == (common.Address{}) {
			log.Fatalf("[fatal] -write needs a token address")
		}
		if err := scheduler.RefreshBalances(ctx, st, client, gw, token, events.LogSink{}); err != nil {
			log.Fatalf("[fatal] %v", err)
		}
		return
	}

	accts, err := st.Accounts(ctx)
	if err != nil {
		log.Fatalf("[fatal] %v", err)
	}
	if len(accts) == 0 {
		log.Fatalf("[fatal] no stored accounts; pass -addresses")
	}
	for _, a := range accts {
		fmt.Printf("#%d %s ", a.ID, a.Name)
		printBalance(ctx, client, gw, common.HexToAddress(a.Address), token)
	}
}

func printBalance(ctx context.Context, client *chain.Client, gw *gateway.Gateway, owner, token common.Address) {
	bnb, err := gateway.Do(ctx, gw, "timeout reading BNB balance", func(ctx context.Context) (*big.Int, error) {
		return client.BalanceAt(ctx, owner, nil)
	})
	if err != nil {
		fmt.Printf("%s error: %v\n", owner.Hex(), err)
		return
	}
	if token == (common.Address{}) {
		fmt.Printf("%s bnb=%s\n", owner.Hex(), bscutil.FormatWei(bnb))
		return
	}
	tokens, err := gateway.Do(ctx, gw, "timeout reading token balance", func(ctx context.Context) (*big.Int, error) {
		return bscutil.TokenBalance(ctx, client, token, owner)
	})
	if err != nil {
		fmt.Printf("%s bnb=%s token error: %v\n", owner.Hex(), bscutil.FormatWei(bnb), err)
		return
	}
	fmt.Printf("%s bnb=%s tokens=%s\n", owner.Hex(), bscutil.FormatWei(bnb), bscutil.FormatWei(tokens))
}
