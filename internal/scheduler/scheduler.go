// Package scheduler drives accounts through repeated order cycles, one at a
// time in round robin or all at once.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/BotKhongNgu/fourcake-buy-sell/internal/account"
	"github.com/BotKhongNgu/fourcake-buy-sell/internal/bscutil"
	"github.com/BotKhongNgu/fourcake-buy-sell/internal/chain"
	"github.com/BotKhongNgu/fourcake-buy-sell/internal/events"
	"github.com/BotKhongNgu/fourcake-buy-sell/internal/failure"
	"github.com/BotKhongNgu/fourcake-buy-sell/internal/order"
)

type Mode string

const (
	Sequential Mode = "sequential"
	Concurrent Mode = "concurrent"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case Sequential, "":
		return Sequential, nil
	case Concurrent:
		return Concurrent, nil
	default:
		return "", fmt.Errorf("unknown run mode %q (want sequential|concurrent)", s)
	}
}

const bookkeepingBackoff = time.Second

var (
	ErrNoToken    = errors.New("token address not configured")
	ErrNoAccounts = errors.New("no accounts configured")
)

// Placer is implemented by *order.Placer.
type Placer interface {
	Place(ctx context.Context, o order.Order) order.Result
}

// OpenSigner turns a stored account into a signer, usually by decrypting its
// sealed key.
type OpenSigner func(a account.Account) (chain.Signer, error)

// Settings are the run-wide defaults. Per-account values win when set.
type Settings struct {
	Token      common.Address
	Slippage   decimal.Decimal
	WaitFrom   int
	WaitTo     int
	MaxRetries int
}

type Scheduler struct {
	store    account.Store
	placer   Placer
	open     OpenSigner
	sink     events.Sink
	settings Settings

	rngMu sync.Mutex
	rng   *rand.Rand

	// sleep blocks for d or until ctx is done.
	sleep func(ctx context.Context, d time.Duration) error
}

func New(store account.Store, placer Placer, open OpenSigner, sink events.Sink, settings Settings) *Scheduler {
	if sink == nil {
		sink = events.Discard
	}
	if settings.MaxRetries <= 0 {
		settings.MaxRetries = 3
	}
	seed := uint64(time.Now().UnixNano())
	return &Scheduler{
		store:    store,
		placer:   placer,
		open:     open,
		sink:     sink,
		settings: settings,
		rng:      rand.New(rand.NewPCG(seed, seed>>1)),
		sleep:    sleepCtx,
	}
}

func (s *Scheduler) Settings() Settings { return s.settings }

// Run resets currentCycle on every active account and runs until no account
// is eligible or ctx is cancelled. startID, when non-zero, is where the
// sequential round robin begins; concurrent runs ignore it.
func (s *Scheduler) Run(ctx context.Context, mode Mode, startID int64) error {
	if s.settings.Token == (common.Address{}) {
		return ErrNoToken
	}
	accts, err := s.store.Accounts(ctx)
	if err != nil {
		return fmt.Errorf("load accounts: %w", err)
	}
	if len(accts) == 0 {
		return ErrNoAccounts
	}
	if startID != 0 {
		if _, err := s.store.Account(ctx, startID); err != nil {
			return fmt.Errorf("start account %d: %w", startID, err)
		}
	}
	if err := s.store.UpdateMany(ctx, account.PlanRestart(accts)); err != nil {
		return fmt.Errorf("reset cycles: %w", err)
	}

	if r, ok := s.sink.(interface{ NewRun() string }); ok {
		r.NewRun()
	}
	s.sink.Emit(events.Event{Kind: events.RunStarted, Mode: string(mode)})
	defer s.sink.Emit(events.Event{Kind: events.RunStopped, Mode: string(mode)})

	if mode == Concurrent {
		return s.RunConcurrent(ctx)
	}
	return s.RunSequential(ctx, startID)
}

// RunSequential processes one account per step from a snapshot of eligible
// accounts. The snapshot is refreshed at the start of every round.
func (s *Scheduler) RunSequential(ctx context.Context, startID int64) error {
	var snap []account.Account
	idx := 0
	first := true

	for ctx.Err() == nil {
		if idx == 0 || len(snap) == 0 {
			fresh, err := s.store.Eligible(ctx)
			if err != nil {
				return fmt.Errorf("load eligible accounts: %w", err)
			}
			if len(fresh) == 0 {
				s.sink.Emit(events.Event{Kind: events.NoEligible})
				return nil
			}
			snap, idx = fresh, 0
			if first && startID != 0 {
				idx = indexOf(snap, startID)
			}
			first = false
		}

		a := snap[idx]
		if !a.Eligible() {
			s.emit(a, events.Event{Kind: events.AccountDone})
			snap = removeAt(snap, idx)
			if idx >= len(snap) {
				idx = 0
			}
			continue
		}

		updated, err := s.runOneCycleStep(ctx, a)
		if err != nil {
			s.emit(a, events.Event{Kind: events.Message, Msg: "step bookkeeping failed", Err: err.Error()})
		} else {
			snap[idx] = updated
		}

		if !updated.Eligible() {
			s.emit(updated, events.Event{Kind: events.AccountDone})
			snap = removeAt(snap, idx)
			if idx >= len(snap) {
				idx = 0
			}
		} else {
			idx = (idx + 1) % len(snap)
		}

		pause := s.wait
		if err != nil {
			pause = s.backoff
		}
		if err := pause(ctx, updated); err != nil {
			return nil
		}
	}
	return nil
}

// RunConcurrent runs every eligible account in its own goroutine until it
// drops out, then re-snapshots to admit accounts that became eligible.
func (s *Scheduler) RunConcurrent(ctx context.Context) error {
	for ctx.Err() == nil {
		snap, err := s.store.Eligible(ctx)
		if err != nil {
			return fmt.Errorf("load eligible accounts: %w", err)
		}
		if len(snap) == 0 {
			s.sink.Emit(events.Event{Kind: events.NoEligible})
			return nil
		}

		var wg sync.WaitGroup
		for _, a := range snap {
			wg.Add(1)
			go func(a account.Account) {
				defer wg.Done()
				s.runAccount(ctx, a)
			}(a)
		}
		wg.Wait()
	}
	return nil
}

func (s *Scheduler) runAccount(ctx context.Context, a account.Account) {
	for ctx.Err() == nil {
		updated, err := s.runOneCycleStep(ctx, a)
		if err != nil {
			s.emit(a, events.Event{Kind: events.Message, Msg: "step bookkeeping failed", Err: err.Error()})
			_ = s.backoff(ctx, a)
			return
		}
		a = updated
		if !a.Eligible() {
			s.emit(a, events.Event{Kind: events.AccountDone})
			return
		}
		if err := s.wait(ctx, a); err != nil {
			return
		}
	}
}

// runOneCycleStep places one order for a and records the outcome. The order
// and its bookkeeping run detached from ctx so a stop never interrupts a
// transaction in flight. The returned account is the persisted record.
func (s *Scheduler) runOneCycleStep(ctx context.Context, a account.Account) (account.Account, error) {
	work := context.WithoutCancel(ctx)

	s.emit(a, events.Event{
		Kind:         events.StepStarted,
		Side:         string(a.Type),
		Cycle:        events.Int(a.Cycle),
		CurrentCycle: events.Int(a.CurrentCycle + 1),
	})

	if err := s.setStatus(work, a, account.Placing); err != nil {
		return a, err
	}

	res := s.place(work, a)

	switch kind, detail, failed := res.Failure(); {
	case !failed:
		if err := s.setStatus(work, a, account.Pending); err != nil {
			return a, err
		}
	case kind == failure.InvalidAmount:
		if _, err := s.store.Update(work, a.ID, account.SentinelPatch()); err != nil {
			return a, err
		}
		s.emit(a, events.Event{Kind: events.StatusChange, Status: string(account.Failed), ErrKind: string(kind), Err: detail, Msg: "invalid amount, account parked"})
	default:
		if _, err := s.store.Update(work, a.ID, account.StatusPatch(account.Failed)); err != nil {
			return a, err
		}
		s.emit(a, events.Event{Kind: events.StatusChange, Status: string(account.Failed), ErrKind: string(kind), Err: detail})
	}

	// The outcome may have pinned cycle=1,currentCycle=1; read it back before
	// counting the attempt.
	reloaded, err := s.store.Account(work, a.ID)
	if err != nil {
		return a, err
	}
	if next, ok := account.NextCycle(reloaded); ok {
		reloaded, err = s.store.Update(work, a.ID, account.CurrentCyclePatch(next))
		if err != nil {
			return a, err
		}
	}
	s.emit(reloaded, events.Event{Kind: events.CycleChange, Cycle: events.Int(reloaded.Cycle), CurrentCycle: events.Int(reloaded.CurrentCycle)})
	return reloaded, nil
}

func (s *Scheduler) setStatus(ctx context.Context, a account.Account, next account.Status) error {
	from := a.Status
	if next == account.Pending {
		from = account.Placing
	}
	if !from.CanTransition(next) {
		s.emit(a, events.Event{Kind: events.Message, Msg: fmt.Sprintf("unexpected status change %s -> %s", from, next)})
	}
	if _, err := s.store.Update(ctx, a.ID, account.StatusPatch(next)); err != nil {
		return err
	}
	s.emit(a, events.Event{Kind: events.StatusChange, Status: string(next)})
	return nil
}

func (s *Scheduler) place(ctx context.Context, a account.Account) order.Result {
	signer, err := s.open(a)
	if err != nil {
		return order.Failed(failure.InvalidKeyMaterial, err.Error())
	}
	amount, err := bscutil.ParseAmount(a.AmountIn)
	if err != nil {
		return order.Failed(failure.InvalidAmount, err.Error())
	}

	token := s.settings.Token
	if common.IsHexAddress(a.TokenAddress) {
		token = common.HexToAddress(a.TokenAddress)
	}
	slippage := s.settings.Slippage
	if d, err := decimal.NewFromString(strings.TrimSpace(a.Slippage)); err == nil {
		slippage = d
	}
	unit := a.Unit
	if unit == "" {
		unit = account.UnitValue
	}
	side := a.Type
	if side == "" {
		side = account.Buy
	}

	return s.placer.Place(ctx, order.Order{
		Signer:      signer,
		Side:        side,
		Token:       token,
		Amount:      amount,
		Unit:        unit,
		Slippage:    slippage,
		MaxRetries:  s.settings.MaxRetries,
		AccountID:   a.ID,
		AccountName: a.Name,
	})
}

// wait sleeps a random whole number of seconds in the account's wait range,
// emitting a countdown tick each second. It returns ctx.Err() when stopped.
// backoff runs the usual countdown and then holds for at least
// bookkeepingBackoff, so a store that keeps rejecting writes is not retried
// in a tight loop when the wait range is zero.
func (s *Scheduler) backoff(ctx context.Context, a account.Account) error {
	if err := s.wait(ctx, a); err != nil {
		return err
	}
	return s.sleep(ctx, bookkeepingBackoff)
}

func (s *Scheduler) wait(ctx context.Context, a account.Account) error {
	from, to := a.WaitFrom, a.WaitTo
	if to <= 0 {
		from, to = s.settings.WaitFrom, s.settings.WaitTo
	}
	if from < 0 {
		from = 0
	}
	if to < from {
		from, to = to, from
	}

	s.rngMu.Lock()
	n := from + s.rng.IntN(to-from+1)
	s.rngMu.Unlock()

	s.emit(a, events.Event{Kind: events.Waiting, WaitSec: n})
	for i := n; i > 0; i-- {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.emit(a, events.Event{Kind: events.Countdown, WaitSec: i})
		if err := s.sleep(ctx, time.Second); err != nil {
			return err
		}
	}
	return ctx.Err()
}

func (s *Scheduler) emit(a account.Account, ev events.Event) {
	ev.AccountID = a.ID
	ev.AccountName = a.Name
	ev.Address = a.Address
	s.sink.Emit(ev)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func indexOf(accts []account.Account, id int64) int {
	for i, a := range accts {
		if a.ID == id {
			return i
		}
	}
	return 0
}

func removeAt(accts []account.Account, i int) []account.Account {
	return append(accts[:i], accts[i+1:]...)
}
