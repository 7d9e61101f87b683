package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/BotKhongNgu/fourcake-buy-sell/internal/account"
	"github.com/BotKhongNgu/fourcake-buy-sell/internal/allowance"
	"github.com/BotKhongNgu/fourcake-buy-sell/internal/bscutil"
	"github.com/BotKhongNgu/fourcake-buy-sell/internal/chain"
	"github.com/BotKhongNgu/fourcake-buy-sell/internal/config"
	"github.com/BotKhongNgu/fourcake-buy-sell/internal/events"
	"github.com/BotKhongNgu/fourcake-buy-sell/internal/gateway"
	"github.com/BotKhongNgu/fourcake-buy-sell/internal/order"
	"github.com/BotKhongNgu/fourcake-buy-sell/internal/secret"
	"github.com/BotKhongNgu/fourcake-buy-sell/internal/store"
	"github.com/BotKhongNgu/fourcake-buy-sell/internal/venue"
	"github.com/BotKhongNgu/fourcake-buy-sell/internal/wallet"
)

// trade places a single order for one stored account, outside the cycle
// scheduler. The account's cycle bookkeeping is left untouched.
func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[fatal] %v", err)
	}

	var (
		id        int64
		sideFlag  string
		amount    string
		percent   bool
		tokenFlag string
		retries   int
	)
	flag.Int64Var(&id, "id", 0, "Account id")
	flag.StringVar(&sideFlag, "side", "", "buy|sell (default: the account's type)")
	flag.StringVar(&amount, "amount", "", "Amount (default: the account's amount)")
	flag.BoolVar(&percent, "percent", false, "Treat -amount as a percent of balance")
	flag.StringVar(&tokenFlag, "token", "", "Token address (default: account, then BOT_TOKEN_ADDRESS)")
	flag.IntVar(&retries, "retries", cfg.Trading.MaxRetries, "Attempts before giving up")
	flag.Parse()

	if id <= 0 {
		log.Fatalf("[fatal] -id is required")
	}
	if err := bscutil.ValidateRPCURL(cfg.Chain.RPCURL); err != nil {
		log.Fatalf("[fatal] %v", err)
	}
	box, err := secret.New(cfg.App.EncryptionKey)
	if err != nil {
		log.Fatalf("[fatal] ENCRYPTION_KEY: %v", err)
	}
	st, err := store.Open(cfg.App.StorePath)
	if err != nil {
		log.Fatalf("[fatal] %v", err)
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := st.Account(ctx, id)
	if err != nil {
		log.Fatalf("[fatal] %v", err)
	}
	o, err := buildOrder(cfg, a, sideFlag, amount, percent, tokenFlag, retries)
	if err != nil {
		log.Fatalf("[fatal] %v", err)
	}
	if o.Signer, err = wallet.Opener(box)(a); err != nil {
		log.Fatalf("[fatal] %v", err)
	}

	net := cfg.Network()
	client, err := chain.Dial(ctx, cfg.Chain.RPCURL, net.ChainID)
	if err != nil {
		log.Fatalf("[fatal] %v", err)
	}
	defer client.Close()
	gw := gateway.New(cfg.RPCTimeout())
	sink := events.NewEmitter(events.LogSink{}, st.LogSink())

	router, err := venue.NewRouter(client, gw, net)
	if err != nil {
		log.Fatalf("[fatal] %v", err)
	}
	allow, err := allowance.NewManager(client, client, gw)
	if err != nil {
		log.Fatalf("[fatal] %v", err)
	}
	placer := order.NewPlacer(client, order.NewPipeline(client, client, router, allow, gw, sink), gw, sink)

	res := placer.Place(ctx, o)
	if fill, ok := res.Fill(); ok {
		fmt.Printf("ok tx=%s venue=%s nonce=%d\n", fill.TxHash.Hex(), fill.Venue, fill.Nonce)
		return
	}
	kind, detail, _ := res.Failure()
	log.Fatalf("[fatal] %s: %s", kind, detail)
}

func buildOrder(cfg *config.Config, a account.Account, sideFlag, amount string, percent bool, tokenFlag string, retries int) (order.Order, error) {
	o := order.Order{
		Side:        a.Type,
		Unit:        a.Unit,
		Slippage:    cfg.SlippagePct(),
		MaxRetries:  retries,
		AccountID:   a.ID,
		AccountName: a.Name,
	}
	if sideFlag != "" {
		s, err := account.ParseSide(sideFlag)
		if err != nil {
			return o, err
		}
		o.Side = s
	}
	if o.Side == "" {
		o.Side = account.Buy
	}

	raw := a.AmountIn
	if amount != "" {
		raw = amount
		o.Unit = account.UnitValue
		if percent {
			o.Unit = account.UnitPercent
		}
	}
	d, err := bscutil.ParseAmount(raw)
	if err != nil {
		return o, err
	}
	o.Amount = d
	if o.Unit == "" {
		o.Unit = account.UnitValue
	}

	if s, err := decimal.NewFromString(strings.TrimSpace(a.Slippage)); err == nil {
		o.Slippage = s
	}

	for _, candidate := range []string{tokenFlag, a.TokenAddress, cfg.Trading.TokenAddress} {
		if v := strings.TrimSpace(candidate); v != "" {
			if !common.IsHexAddress(v) {
				return o, fmt.Errorf("invalid token address %q", v)
			}
			o.Token = common.HexToAddress(v)
			return o, nil
		}
	}
	return o, fmt.Errorf("token address required")
}
