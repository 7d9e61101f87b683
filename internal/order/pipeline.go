// Package order executes one buy or sell for one account: venue routing,
// quoting with a slippage floor, approval, submission and classified retry.
package order

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/BotKhongNgu/fourcake-buy-sell/internal/account"
	"github.com/BotKhongNgu/fourcake-buy-sell/internal/allowance"
	"github.com/BotKhongNgu/fourcake-buy-sell/internal/bscutil"
	"github.com/BotKhongNgu/fourcake-buy-sell/internal/chain"
	"github.com/BotKhongNgu/fourcake-buy-sell/internal/events"
	"github.com/BotKhongNgu/fourcake-buy-sell/internal/failure"
	"github.com/BotKhongNgu/fourcake-buy-sell/internal/gateway"
	"github.com/BotKhongNgu/fourcake-buy-sell/internal/nonce"
	"github.com/BotKhongNgu/fourcake-buy-sell/internal/venue"
)

// Venue is implemented by *venue.Router.
type Venue interface {
	HasAMMPair(ctx context.Context, token common.Address) bool
	AMMPathFor() venue.AMMPath
	ResolveBondingCurve(ctx context.Context, token common.Address) (venue.Curve, error)
	QuoteBuy(ctx context.Context, p venue.Path, token common.Address, funds *big.Int) (*big.Int, error)
	QuoteSell(ctx context.Context, p venue.Path, token common.Address, amount *big.Int) (*big.Int, error)
	BuyCall(p venue.Path, token, to common.Address, funds, minOut *big.Int, deadline time.Time) (venue.Call, error)
	SellCall(p venue.Path, token, to common.Address, amount, minOut *big.Int, deadline time.Time) (venue.Call, error)
}

// Approver is implemented by *allowance.Manager.
type Approver interface {
	EnsureAllowance(ctx context.Context, owner chain.Signer, token, spender common.Address, needed *big.Int, nonce uint64) allowance.Result
}

type Request struct {
	Signer     chain.Signer
	Side       account.Side
	Token      common.Address
	Amount     *big.Int // wei for buys, token base units for sells
	Slippage   decimal.Decimal
	MaxRetries int

	AccountID   int64
	AccountName string
}

// Fill describes a confirmed swap.
type Fill struct {
	TxHash common.Hash
	Venue  string
	Nonce  uint64
	Quote  *big.Int
	MinOut *big.Int
}

type Pipeline struct {
	nonces nonce.Source
	sub    chain.Submitter
	venue  Venue
	allow  Approver
	gw     *gateway.Gateway
	sink   events.Sink
	now    func() time.Time
}

func NewPipeline(nonces nonce.Source, sub chain.Submitter, v Venue, allow Approver, gw *gateway.Gateway, sink events.Sink) *Pipeline {
	if sink == nil {
		sink = events.Discard
	}
	return &Pipeline{nonces: nonces, sub: sub, venue: v, allow: allow, gw: gw, sink: sink, now: time.Now}
}

type state int

const (
	stateQuoting state = iota
	stateApproving
	stateSubmitting
	stateDone
	stateFailed
)

func (s state) String() string {
	switch s {
	case stateQuoting:
		return "quoting"
	case stateApproving:
		return "approving"
	case stateSubmitting:
		return "submitting"
	case stateDone:
		return "done"
	case stateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// transitions lists the legal moves. Failed either ends the order or goes
// back to Quoting for another attempt.
var transitions = map[state][]state{
	stateQuoting:    {stateApproving, stateSubmitting, stateFailed},
	stateApproving:  {stateSubmitting},
	stateSubmitting: {stateDone, stateFailed},
	stateFailed:     {stateQuoting},
}

func canTransition(from, to state) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// run is the per-order execution context. It never outlives Execute.
type run struct {
	req     Request
	tracker *nonce.Tracker
	watch   *events.Stopwatch
	amm     bool

	attempt int
	retries int
	path    venue.Path
	quote   *big.Int
	minOut  *big.Int
	lastErr error
	fill    Fill
}

// Execute runs the order until it is confirmed, fails fatally with
// InsufficientFunds, or runs out of retries. The returned error carries a
// failure.Kind.
func (p *Pipeline) Execute(ctx context.Context, req Request) (Fill, error) {
	if req.Amount == nil || req.Amount.Sign() <= 0 {
		return Fill{}, failure.New(failure.InvalidAmount, "order amount must be positive")
	}
	if req.MaxRetries <= 0 {
		req.MaxRetries = 1
	}

	r := &run{
		req:     req,
		tracker: nonce.NewTracker(p.nonces, p.gw, req.Signer.Address),
		watch:   events.StartStopwatch(),
	}

	n, err := r.tracker.Initial(ctx)
	if err != nil {
		return Fill{}, failure.Wrap(surfaced(failure.Classify(err)), err, "initial nonce")
	}
	p.emit(r, events.Event{Kind: events.NonceUpdate, Nonce: events.Uint64(n)})

	r.amm = p.venue.HasAMMPair(ctx, req.Token)
	if r.amm {
		p.emit(r, events.Event{Kind: events.Route, Venue: "pancakeswap"})
	} else {
		p.emit(r, events.Event{Kind: events.Route, Venue: "four.meme"})
	}

	st := stateQuoting
	for {
		var next state
		switch st {
		case stateQuoting:
			next = p.quote(ctx, r)
		case stateApproving:
			next = p.approve(ctx, r)
		case stateSubmitting:
			next = p.submit(ctx, r)
		case stateDone:
			p.emit(r, events.Event{Kind: events.OrderDone, Venue: r.fill.Venue, TxHash: r.fill.TxHash.Hex()})
			return r.fill, nil
		case stateFailed:
			if fatal := p.recover(ctx, r); fatal != nil {
				p.emit(r, events.Event{Kind: events.OrderFailed, ErrKind: string(failure.KindOf(fatal)), Err: fatal.Error()})
				return Fill{}, fatal
			}
			next = stateQuoting
		}
		if !canTransition(st, next) {
			return Fill{}, fmt.Errorf("order: illegal transition %s -> %s", st, next)
		}
		st = next
	}
}

func (p *Pipeline) quote(ctx context.Context, r *run) state {
	r.attempt++
	p.emit(r, events.Event{Kind: events.Attempt, Attempt: r.attempt, MaxRetries: r.req.MaxRetries, Amount: bscutil.FormatWei(r.req.Amount)})

	var path venue.Path = p.venue.AMMPathFor()
	if !r.amm {
		curve, err := p.venue.ResolveBondingCurve(ctx, r.req.Token)
		if err != nil {
			return p.fail(r, err)
		}
		path = curve
	}

	var (
		q   *big.Int
		err error
	)
	if r.req.Side == account.Sell {
		q, err = p.venue.QuoteSell(ctx, path, r.req.Token, r.req.Amount)
	} else {
		q, err = p.venue.QuoteBuy(ctx, path, r.req.Token, r.req.Amount)
	}
	if err != nil {
		return p.fail(r, err)
	}
	r.path = path
	r.quote = q
	r.minOut = bscutil.MinOut(q, r.req.Slippage)
	p.emit(r, events.Event{Kind: events.Quote, Venue: path.String(), Quote: bscutil.FormatWei(q), MinOut: bscutil.FormatWei(r.minOut)})

	// Another process may have sent from this account meanwhile.
	n, changed, err := r.tracker.Refresh(ctx, false)
	if err != nil {
		return p.fail(r, err)
	}
	if changed {
		p.emit(r, events.Event{Kind: events.NonceUpdate, Nonce: events.Uint64(n), Msg: "confirmed count advanced"})
	}

	if r.req.Side == account.Sell {
		return stateApproving
	}
	return stateSubmitting
}

func (p *Pipeline) approve(ctx context.Context, r *run) state {
	res := p.allow.EnsureAllowance(ctx, r.req.Signer, r.req.Token, r.path.Spender(), r.req.Amount, r.tracker.Current())
	r.tracker.Set(res.Nonce)
	ev := events.Event{Kind: events.Approval, Msg: res.Message, Nonce: events.Uint64(res.Nonce)}
	if res.Sent && res.Approved {
		ev.TxHash = res.TxHash.Hex()
	}
	p.emit(r, ev)
	return stateSubmitting
}

func (p *Pipeline) submit(ctx context.Context, r *run) state {
	deadline := p.now().Add(venue.SwapDeadline)

	var (
		call venue.Call
		err  error
	)
	if r.req.Side == account.Sell {
		call, err = p.venue.SellCall(r.path, r.req.Token, r.req.Signer.Address, r.req.Amount, r.minOut, deadline)
	} else {
		call, err = p.venue.BuyCall(r.path, r.req.Token, r.req.Signer.Address, r.req.Amount, r.minOut, deadline)
	}
	if err != nil {
		return p.fail(r, err)
	}

	n := r.tracker.Current()
	tx := chain.Tx{To: call.To, Data: call.Data, Value: call.Value, Nonce: n}
	hash, err := gateway.Do(ctx, p.gw, "timeout sending "+string(r.req.Side)+" transaction", func(ctx context.Context) (common.Hash, error) {
		return p.sub.Submit(ctx, r.req.Signer, tx)
	})
	if err != nil {
		return p.fail(r, err)
	}

	r.fill = Fill{TxHash: hash, Venue: r.path.String(), Nonce: n, Quote: r.quote, MinOut: r.minOut}
	p.emit(r, events.Event{Kind: events.TxConfirmed, TxHash: hash.Hex(), Nonce: events.Uint64(n), Venue: r.path.String()})
	return stateDone
}

func (p *Pipeline) fail(r *run, err error) state {
	r.lastErr = err
	return stateFailed
}

// recover classifies the last error, realigns the nonce and decides whether
// another attempt is allowed. A non-nil return ends the order.
func (p *Pipeline) recover(ctx context.Context, r *run) error {
	kind := failure.Classify(r.lastErr)
	if kind == failure.InsufficientFunds {
		return failure.Wrap(failure.InsufficientFunds, r.lastErr, "insufficient funds")
	}

	pending := kind == failure.NonceConflict
	n, changed, err := r.tracker.Refresh(ctx, pending)
	if err != nil {
		p.emit(r, events.Event{Kind: events.Message, Msg: "nonce refresh failed", Err: err.Error()})
	} else if changed || pending {
		view := "confirmed"
		if pending {
			view = "pending"
		}
		p.emit(r, events.Event{Kind: events.NonceUpdate, Nonce: events.Uint64(n), Msg: view + " view"})
	}

	r.retries++
	if r.retries >= r.req.MaxRetries {
		return failure.Wrap(surfaced(kind), r.lastErr, fmt.Sprintf("%s failed after %d attempts", r.req.Side, r.attempt))
	}
	p.emit(r, events.Event{Kind: events.Retry, Attempt: r.attempt, ErrKind: string(kind), Err: r.lastErr.Error()})
	return nil
}

// surfaced maps locally recovered kinds onto what callers see once retries
// are exhausted.
func surfaced(k failure.Kind) failure.Kind {
	if k == failure.NonceConflict || k == "" {
		return failure.TransactionFailed
	}
	return k
}

func (p *Pipeline) emit(r *run, ev events.Event) {
	ev.AccountID = r.req.AccountID
	ev.AccountName = r.req.AccountName
	ev.Address = r.req.Signer.Address.Hex()
	if ev.Side == "" {
		ev.Side = string(r.req.Side)
	}
	ev.ElapsedMs = r.watch.Lap()
	p.sink.Emit(ev)
}
