package order

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/BotKhongNgu/fourcake-buy-sell/internal/account"
	"github.com/BotKhongNgu/fourcake-buy-sell/internal/bscutil"
	"github.com/BotKhongNgu/fourcake-buy-sell/internal/chain"
	"github.com/BotKhongNgu/fourcake-buy-sell/internal/events"
	"github.com/BotKhongNgu/fourcake-buy-sell/internal/failure"
	"github.com/BotKhongNgu/fourcake-buy-sell/internal/gateway"
)

// Result is the outcome of an order command: either a Fill or a classified
// failure, never both.
type Result struct {
	fill   *Fill
	kind   failure.Kind
	detail string
}

func Succeeded(f Fill) Result { return Result{fill: &f} }

func Failed(kind failure.Kind, detail string) Result {
	if kind == "" {
		kind = failure.TransactionFailed
	}
	return Result{kind: kind, detail: detail}
}

func (r Result) OK() bool { return r.fill != nil }

func (r Result) Fill() (Fill, bool) {
	if r.fill == nil {
		return Fill{}, false
	}
	return *r.fill, true
}

// Failure returns the error kind and detail. ok is false for a success.
func (r Result) Failure() (kind failure.Kind, detail string, ok bool) {
	if r.fill != nil {
		return "", "", false
	}
	return r.kind, r.detail, true
}

// BalanceReader is the part of the chain client the placer reads balances
// through.
type BalanceReader interface {
	bscutil.ContractCaller
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// Placer validates an account's configured amount against its balance and
// runs the pipeline.
type Placer struct {
	balances BalanceReader
	pipeline *Pipeline
	gw       *gateway.Gateway
	sink     events.Sink
}

func NewPlacer(balances BalanceReader, pipeline *Pipeline, gw *gateway.Gateway, sink events.Sink) *Placer {
	if sink == nil {
		sink = events.Discard
	}
	return &Placer{balances: balances, pipeline: pipeline, gw: gw, sink: sink}
}

type Order struct {
	Signer     chain.Signer
	Side       account.Side
	Token      common.Address
	Amount     decimal.Decimal
	Unit       account.Unit
	Slippage   decimal.Decimal
	MaxRetries int

	AccountID   int64
	AccountName string
}

// Place checks the balance, sizes percent orders, and executes. Amount
// problems are reported as InvalidAmount without touching the chain;
// InsufficientFunds from the pipeline is reported the same way.
func (p *Placer) Place(ctx context.Context, o Order) Result {
	emit := func(ev events.Event) {
		ev.AccountID = o.AccountID
		ev.AccountName = o.AccountName
		ev.Address = o.Signer.Address.Hex()
		ev.Side = string(o.Side)
		p.sink.Emit(ev)
	}

	balance, err := p.balance(ctx, o)
	if err != nil {
		return Failed(failure.KindOf(err), err.Error())
	}
	if o.Side == account.Sell {
		emit(events.Event{Kind: events.Balance, Tokens: bscutil.FormatWei(balance)})
	} else {
		emit(events.Event{Kind: events.Balance, BNB: bscutil.FormatWei(balance)})
	}

	amount := o.Amount
	if o.Unit == account.UnitPercent {
		amount = bscutil.PercentOfBalance(balance, o.Amount)
		emit(events.Event{Kind: events.Message, Msg: "using " + o.Amount.String() + "% of balance: " + amount.String()})
	}
	amountWei := bscutil.ToWei(amount)

	switch {
	case amountWei.Sign() <= 0:
		return Failed(failure.InvalidAmount, string(o.Side)+" amount is zero")
	case balance.Sign() == 0:
		return Failed(failure.InvalidAmount, "balance is zero")
	case balance.Cmp(amountWei) < 0:
		return Failed(failure.InvalidAmount, "balance "+bscutil.FormatWei(balance)+" below order amount "+amount.String())
	}

	fill, err := p.pipeline.Execute(ctx, Request{
		Signer:      o.Signer,
		Side:        o.Side,
		Token:       o.Token,
		Amount:      amountWei,
		Slippage:    o.Slippage,
		MaxRetries:  o.MaxRetries,
		AccountID:   o.AccountID,
		AccountName: o.AccountName,
	})
	if err != nil {
		kind := failure.KindOf(err)
		if kind == failure.InsufficientFunds {
			return Failed(failure.InvalidAmount, "balance insufficient to pay gas and value: "+err.Error())
		}
		return Failed(kind, err.Error())
	}
	return Succeeded(fill)
}

func (p *Placer) balance(ctx context.Context, o Order) (*big.Int, error) {
	if o.Side == account.Sell {
		return gateway.Do(ctx, p.gw, "timeout reading token balance", func(ctx context.Context) (*big.Int, error) {
			return bscutil.TokenBalance(ctx, p.balances, o.Token, o.Signer.Address)
		})
	}
	return gateway.Do(ctx, p.gw, "timeout reading BNB balance", func(ctx context.Context) (*big.Int, error) {
		return p.balances.BalanceAt(ctx, o.Signer.Address, nil)
	})
}
