package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/BotKhongNgu/fourcake-buy-sell/internal/account"
	"github.com/BotKhongNgu/fourcake-buy-sell/internal/bscutil"
	"github.com/BotKhongNgu/fourcake-buy-sell/internal/events"
	"github.com/BotKhongNgu/fourcake-buy-sell/internal/gateway"
	"github.com/BotKhongNgu/fourcake-buy-sell/internal/order"
	"github.com/BotKhongNgu/fourcake-buy-sell/internal/scheduler"
)

// control carries out operator commands from the websocket feed.
type control struct {
	ctx         context.Context
	store       account.Store
	runner      *scheduler.Runner
	defaultMode scheduler.Mode

	balances order.BalanceReader
	gw       *gateway.Gateway
	token    common.Address
	sink     events.Sink
}

func (c *control) Start(mode string, startID int64) error {
	m := c.defaultMode
	if strings.TrimSpace(mode) != "" {
		var err error
		if m, err = scheduler.ParseMode(mode); err != nil {
			return err
		}
	}
	return c.runner.Start(c.ctx, m, startID)
}

func (c *control) Stop() { c.runner.Stop() }

func (c *control) Reset(ctx context.Context) error {
	if c.runner.Running() {
		return scheduler.ErrRunning
	}
	accts, err := c.store.Accounts(ctx)
	if err != nil {
		return err
	}
	if err := c.store.UpdateMany(ctx, account.PlanReset(accts)); err != nil {
		return err
	}
	c.sink.Emit(events.Event{Kind: events.Message, Msg: fmt.Sprintf("reset %d accounts", len(accts))})
	return nil
}

func (c *control) BulkPercent(ctx context.Context, side string, pct int) error {
	if c.runner.Running() {
		return scheduler.ErrRunning
	}
	s, err := account.ParseSide(side)
	if err != nil {
		return err
	}
	if pct <= 0 || pct > 100 {
		return fmt.Errorf("percent must be within (0,100], got %d", pct)
	}
	accts, err := c.store.Accounts(ctx)
	if err != nil {
		return err
	}
	if err := c.store.UpdateMany(ctx, account.PlanBulkPercent(accts, s, pct)); err != nil {
		return err
	}
	c.sink.Emit(events.Event{Kind: events.Message, Side: string(s), Msg: fmt.Sprintf("%d accounts set to %d%% of balance, %d cycle(s)", len(accts), pct, account.CyclesForPercent(pct))})
	return nil
}

func (c *control) BulkAmount(ctx context.Context, side, amount string) error {
	if c.runner.Running() {
		return scheduler.ErrRunning
	}
	s, err := account.ParseSide(side)
	if err != nil {
		return err
	}
	d, err := bscutil.ParseAmount(amount)
	if err != nil {
		return err
	}
	if !d.IsPositive() {
		return fmt.Errorf("amount must be > 0")
	}
	accts, err := c.store.Accounts(ctx)
	if err != nil {
		return err
	}
	if err := c.store.UpdateMany(ctx, account.PlanBulkAmount(accts, s, d)); err != nil {
		return err
	}
	c.sink.Emit(events.Event{Kind: events.Message, Side: string(s), Msg: fmt.Sprintf("%d accounts set to %s per order", len(accts), d)})
	return nil
}

func (c *control) RefreshBalances(ctx context.Context) error {
	return scheduler.RefreshBalances(ctx, c.store, c.balances, c.gw, c.token, c.sink)
}
