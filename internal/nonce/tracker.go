// Package nonce tracks the next transaction nonce for one account across an
// order's retry sequence.
package nonce

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/BotKhongNgu/fourcake-buy-sell/internal/gateway"
)

// Source is the subset of ethclient.Client the tracker reads from.
type Source interface {
	NonceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
}

// Tracker is not safe for concurrent use. Each account is driven by exactly
// one order at a time, and each order owns its tracker.
type Tracker struct {
	src     Source
	gw      *gateway.Gateway
	account common.Address

	current uint64
	loaded  bool
}

func NewTracker(src Source, gw *gateway.Gateway, account common.Address) *Tracker {
	return &Tracker{src: src, gw: gw, account: account}
}

// Initial loads the confirmed transaction count. It is called once per order,
// not per retry.
func (t *Tracker) Initial(ctx context.Context) (uint64, error) {
	n, err := t.confirmed(ctx)
	if err != nil {
		return 0, err
	}
	t.current = n
	t.loaded = true
	return n, nil
}

// Refresh re-reads the nonce. The confirmed view is adopted only when it is
// ahead of the held value; the pending view is adopted unconditionally since
// only it can see the transaction that caused a conflict. The returned bool
// reports whether the held value changed.
func (t *Tracker) Refresh(ctx context.Context, pending bool) (uint64, bool, error) {
	var (
		n   uint64
		err error
	)
	if pending {
		n, err = t.pending(ctx)
	} else {
		n, err = t.confirmed(ctx)
	}
	if err != nil {
		return t.current, false, err
	}
	if pending || !t.loaded || n > t.current {
		changed := !t.loaded || n != t.current
		t.current = n
		t.loaded = true
		return n, changed, nil
	}
	return t.current, false, nil
}

func (t *Tracker) Bump() uint64 {
	t.current++
	return t.current
}

func (t *Tracker) Set(n uint64) { t.current = n; t.loaded = true }

func (t *Tracker) Current() uint64 { return t.current }

func (t *Tracker) Account() common.Address { return t.account }

func (t *Tracker) confirmed(ctx context.Context) (uint64, error) {
	n, err := gateway.Do(ctx, t.gw, "timeout reading confirmed nonce", func(ctx context.Context) (uint64, error) {
		return t.src.NonceAt(ctx, t.account, nil)
	})
	if err != nil {
		return 0, fmt.Errorf("confirmed nonce for %s: %w", t.account.Hex(), err)
	}
	return n, nil
}

func (t *Tracker) pending(ctx context.Context) (uint64, error) {
	n, err := gateway.Do(ctx, t.gw, "timeout reading pending nonce", func(ctx context.Context) (uint64, error) {
		return t.src.PendingNonceAt(ctx, t.account)
	})
	if err != nil {
		return 0, fmt.Errorf("pending nonce for %s: %w", t.account.Hex(), err)
	}
	return n, nil
}
