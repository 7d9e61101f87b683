package scheduler

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/BotKhongNgu/fourcake-buy-sell/internal/account"
	"github.com/BotKhongNgu/fourcake-buy-sell/internal/bscutil"
	"github.com/BotKhongNgu/fourcake-buy-sell/internal/events"
	"github.com/BotKhongNgu/fourcake-buy-sell/internal/gateway"
	"github.com/BotKhongNgu/fourcake-buy-sell/internal/order"
)

// maxBalanceWorkers bounds concurrent balance reads against one RPC endpoint.
const maxBalanceWorkers = 8

// RefreshBalances reads the BNB and token balance of every stored account and
// writes them back. A zero token skips the token read. Per-account failures
// are reported as events; the first one is also returned.
func RefreshBalances(ctx context.Context, st account.Store, r order.BalanceReader, gw *gateway.Gateway, token common.Address, sink events.Sink) error {
	if sink == nil {
		sink = events.Discard
	}
	accts, err := st.Accounts(ctx)
	if err != nil {
		return fmt.Errorf("load accounts: %w", err)
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
		sem      = make(chan struct{}, maxBalanceWorkers)
	)
	for _, a := range accts {
		if !common.IsHexAddress(a.Address) {
			continue
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(a account.Account) {
			defer wg.Done()
			defer func() { <-sem }()

			bnb, tokens, err := readBalances(ctx, r, gw, common.HexToAddress(a.Address), token)
			if err == nil {
				_, err = st.Update(ctx, a.ID, account.BalancePatch(bscutil.FormatWei(bnb), bscutil.FormatWei(tokens)))
			}
			ev := events.Event{Kind: events.BalanceUpdate, AccountID: a.ID, AccountName: a.Name, Address: a.Address}
			if err != nil {
				ev.Kind = events.Message
				ev.Msg = "balance refresh failed"
				ev.Err = err.Error()
				mu.Lock()
				if firstErr == nil {
					firstErr = fmt.Errorf("account %d: %w", a.ID, err)
				}
				mu.Unlock()
			} else {
				ev.BNB = bscutil.FormatWei(bnb)
				ev.Tokens = bscutil.FormatWei(tokens)
			}
			sink.Emit(ev)
		}(a)
	}
	wg.Wait()
	return firstErr
}

func readBalances(ctx context.Context, r order.BalanceReader, gw *gateway.Gateway, owner, token common.Address) (*big.Int, *big.Int, error) {
	bnb, err := gateway.Do(ctx, gw, "timeout reading BNB balance", func(ctx context.Context) (*big.Int, error) {
		return r.BalanceAt(ctx, owner, nil)
	})
	if err != nil {
		return nil, nil, err
	}
	tokens := new(big.Int)
	if token != (common.Address{}) {
		tokens, err = gateway.Do(ctx, gw, "timeout reading token balance", func(ctx context.Context) (*big.Int, error) {
			return bscutil.TokenBalance(ctx, r, token, owner)
		})
		if err != nil {
			return nil, nil, err
		}
	}
	return bnb, tokens, nil
}
