package scheduler

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"

	"github.com/BotKhongNgu/fourcake-buy-sell/internal/account"
	"github.com/BotKhongNgu/fourcake-buy-sell/internal/chain"
	"github.com/BotKhongNgu/fourcake-buy-sell/internal/events"
	"github.com/BotKhongNgu/fourcake-buy-sell/internal/failure"
	"github.com/BotKhongNgu/fourcake-buy-sell/internal/gateway"
	"github.com/BotKhongNgu/fourcake-buy-sell/internal/order"
	"github.com/BotKhongNgu/fourcake-buy-sell/internal/store"
)

var testToken = common.HexToAddress("0x00000000000000000000000000000000000000aa")

type fakePlacer struct {
	mu      sync.Mutex
	calls   []int64
	outcome func(o order.Order, n int) order.Result
}

func (p *fakePlacer) Place(ctx context.Context, o order.Order) order.Result {
	p.mu.Lock()
	p.calls = append(p.calls, o.AccountID)
	n := len(p.calls)
	p.mu.Unlock()
	if p.outcome == nil {
		return order.Succeeded(order.Fill{})
	}
	return p.outcome(o, n)
}

func (p *fakePlacer) callsFor(id int64) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, c := range p.calls {
		if c == id {
			n++
		}
	}
	return n
}

func (p *fakePlacer) order() []int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int64(nil), p.calls...)
}

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Emit(ev events.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) count(kind events.Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func openTestSigner(a account.Account) (chain.Signer, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return chain.Signer{}, err
	}
	return chain.NewSigner(key), nil
}

func newTestScheduler(t *testing.T, st account.Store, p Placer, rec *recorder) *Scheduler {
	t.Helper()
	s := New(st, p, openTestSigner, rec, Settings{
		Token:      testToken,
		Slippage:   decimal.NewFromInt(10),
		MaxRetries: 3,
	})
	s.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	return s
}

func seed(t *testing.T, st *store.Store, accts ...account.Account) []account.Account {
	t.Helper()
	out := make([]account.Account, 0, len(accts))
	for _, a := range accts {
		created, err := st.Create(context.Background(), a)
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		out = append(out, created)
	}
	return out
}

func mustAccount(t *testing.T, st *store.Store, id int64) account.Account {
	t.Helper()
	a, err := st.Account(context.Background(), id)
	if err != nil {
		t.Fatalf("account %d: %v", id, err)
	}
	return a
}

func runWithTimeout(t *testing.T, fn func() error) error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- fn() }()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatalf("scheduler did not stop")
		return nil
	}
}

func TestSequentialGenericFailureKeepsAccountEligible(t *testing.T) {
	t.Parallel()

	st := store.NewMemory()
	accts := seed(t, st,
		account.Account{Name: "a", Address: "0x01", AmountIn: "0.01", IsActive: true},
		account.Account{Name: "b", Address: "0x02", AmountIn: "0.01", IsActive: true, SortOrder: 1},
	)
	failing := accts[0].ID

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p := &fakePlacer{outcome: func(o order.Order, n int) order.Result {
		if n == 4 {
			cancel()
		}
		if o.AccountID == failing {
			return order.Failed(failure.TransactionFailed, "execution reverted")
		}
		return order.Succeeded(order.Fill{})
	}}
	rec := &recorder{}
	s := newTestScheduler(t, st, p, rec)

	if err := runWithTimeout(t, func() error { return s.Run(ctx, Sequential, 0) }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := p.order()
	want := []int64{accts[0].ID, accts[1].ID, accts[0].ID, accts[1].ID}
	if len(got) != len(want) {
		t.Fatalf("order %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order %v, want %v", got, want)
		}
	}

	a := mustAccount(t, st, failing)
	if a.Status != account.Failed {
		t.Fatalf("status %s, want failed", a.Status)
	}
	if a.CurrentCycle != 2 {
		t.Fatalf("currentCycle %d, want 2", a.CurrentCycle)
	}
	if !a.Eligible() {
		t.Fatalf("failed account with cycle=0 must stay eligible")
	}
	if b := mustAccount(t, st, accts[1].ID); b.Status != account.Pending || b.CurrentCycle != 2 {
		t.Fatalf("second account %+v", b)
	}
	if rec.count(events.RunStopped) != 1 {
		t.Fatalf("expected a stop event")
	}
}

func TestInvalidAmountParksAccount(t *testing.T) {
	t.Parallel()

	st := store.NewMemory()
	accts := seed(t, st, account.Account{Name: "a", Address: "0x01", AmountIn: "5", IsActive: true})
	p := &fakePlacer{outcome: func(o order.Order, n int) order.Result {
		return order.Failed(failure.InvalidAmount, "balance insufficient to pay gas and value")
	}}
	rec := &recorder{}
	s := newTestScheduler(t, st, p, rec)

	if err := runWithTimeout(t, func() error { return s.Run(context.Background(), Sequential, 0) }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := p.callsFor(accts[0].ID); n != 1 {
		t.Fatalf("placed %d times, want 1", n)
	}
	a := mustAccount(t, st, accts[0].ID)
	if a.Cycle != 1 || a.CurrentCycle != 1 || a.Status != account.Failed {
		t.Fatalf("account %+v, want failed with cycle=1 currentCycle=1", a)
	}
	if a.Eligible() {
		t.Fatalf("parked account must not be eligible")
	}
	if rec.count(events.NoEligible) != 1 {
		t.Fatalf("expected no-eligible termination event")
	}
}

func TestConcurrentSingleCyclePass(t *testing.T) {
	t.Parallel()

	st := store.NewMemory()
	accts := seed(t, st,
		account.Account{Name: "a", Address: "0x01", AmountIn: "0.01", IsActive: true, Cycle: 1},
		account.Account{Name: "b", Address: "0x02", AmountIn: "0.01", IsActive: true, Cycle: 1},
	)
	p := &fakePlacer{}
	rec := &recorder{}
	s := newTestScheduler(t, st, p, rec)

	if err := runWithTimeout(t, func() error { return s.Run(context.Background(), Concurrent, 0) }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, a := range accts {
		if n := p.callsFor(a.ID); n != 1 {
			t.Fatalf("account %d placed %d times, want 1", a.ID, n)
		}
		got := mustAccount(t, st, a.ID)
		if got.CurrentCycle != 1 || got.Status != account.Pending {
			t.Fatalf("account %+v", got)
		}
	}
	if rec.count(events.NoEligible) != 1 {
		t.Fatalf("expected no-eligible termination event")
	}
}

func TestConcurrentUncappedAccountRunsUntilStopped(t *testing.T) {
	t.Parallel()

	st := store.NewMemory()
	accts := seed(t, st,
		account.Account{Name: "forever", Address: "0x01", AmountIn: "0.01", IsActive: true},
		account.Account{Name: "once", Address: "0x02", AmountIn: "0.01", IsActive: true, Cycle: 1},
	)
	forever := accts[0].ID

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p := &fakePlacer{}
	p.outcome = func(o order.Order, n int) order.Result {
		if o.AccountID == forever && p.callsFor(forever) >= 5 {
			cancel()
		}
		return order.Succeeded(order.Fill{})
	}
	s := newTestScheduler(t, st, p, &recorder{})

	if err := runWithTimeout(t, func() error { return s.Run(ctx, Concurrent, 0) }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := p.callsFor(forever); n < 5 {
		t.Fatalf("uncapped account placed %d times, want >= 5", n)
	}
	if n := p.callsFor(accts[1].ID); n != 1 {
		t.Fatalf("capped account placed %d times, want 1", n)
	}
	if a := mustAccount(t, st, forever); !a.Eligible() {
		t.Fatalf("uncapped account dropped out: %+v", a)
	}
}

// brokenStore rejects every single-account write and counts snapshots.
type brokenStore struct {
	*store.Store
	mu        sync.Mutex
	snapshots int
}

func (b *brokenStore) Eligible(ctx context.Context) ([]account.Account, error) {
	b.mu.Lock()
	b.snapshots++
	b.mu.Unlock()
	return b.Store.Eligible(ctx)
}

func (b *brokenStore) Update(ctx context.Context, id int64, p account.Patch) (account.Account, error) {
	return account.Account{}, errors.New("database is locked")
}

func TestConcurrentBacksOffWhenBookkeepingFails(t *testing.T) {
	t.Parallel()

	st := &brokenStore{Store: store.NewMemory()}
	seed(t, st.Store, account.Account{Name: "a", Address: "0x01", AmountIn: "1", IsActive: true})
	rec := &recorder{}
	s := newTestScheduler(t, st, &fakePlacer{}, rec)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var mu sync.Mutex
	var pauses []time.Duration
	s.sleep = func(ctx context.Context, d time.Duration) error {
		mu.Lock()
		pauses = append(pauses, d)
		if len(pauses) == 3 {
			cancel()
		}
		mu.Unlock()
		return ctx.Err()
	}

	if err := runWithTimeout(t, func() error { return s.Run(ctx, Concurrent, 0) }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	for _, d := range pauses {
		if d < bookkeepingBackoff {
			t.Fatalf("paused %s, want >= %s", d, bookkeepingBackoff)
		}
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.snapshots != 3 {
		t.Fatalf("took %d snapshots for 3 failed steps, want 3", st.snapshots)
	}
	if n := rec.count(events.Message); n < 3 {
		t.Fatalf("got %d bookkeeping messages, want >= 3", n)
	}
}

func TestSequentialStartFromAccount(t *testing.T) {
	t.Parallel()

	st := store.NewMemory()
	accts := seed(t, st,
		account.Account{Name: "a", Address: "0x01", AmountIn: "1", IsActive: true, Cycle: 1, SortOrder: 0},
		account.Account{Name: "b", Address: "0x02", AmountIn: "1", IsActive: true, Cycle: 1, SortOrder: 1},
		account.Account{Name: "c", Address: "0x03", AmountIn: "1", IsActive: true, Cycle: 1, SortOrder: 2},
	)
	p := &fakePlacer{}
	s := newTestScheduler(t, st, p, &recorder{})

	if err := runWithTimeout(t, func() error { return s.Run(context.Background(), Sequential, accts[1].ID) }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := p.order()
	want := []int64{accts[1].ID, accts[2].ID, accts[0].ID}
	if len(got) != len(want) {
		t.Fatalf("order %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order %v, want %v", got, want)
		}
	}
}

func TestRunResetsCyclesBeforeStarting(t *testing.T) {
	t.Parallel()

	st := store.NewMemory()
	accts := seed(t, st, account.Account{Name: "a", Address: "0x01", AmountIn: "1", IsActive: true, Cycle: 2, CurrentCycle: 2})
	p := &fakePlacer{}
	s := newTestScheduler(t, st, p, &recorder{})

	if err := runWithTimeout(t, func() error { return s.Run(context.Background(), Sequential, 0) }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := p.callsFor(accts[0].ID); n != 2 {
		t.Fatalf("placed %d times, want 2", n)
	}
	if a := mustAccount(t, st, accts[0].ID); a.CurrentCycle != 2 {
		t.Fatalf("currentCycle %d, want 2", a.CurrentCycle)
	}
}

func TestCurrentCycleNeverDecreases(t *testing.T) {
	t.Parallel()

	st := store.NewMemory()
	accts := seed(t, st, account.Account{Name: "a", Address: "0x01", AmountIn: "1", IsActive: true, Cycle: 4})
	rec := &recorder{}
	p := &fakePlacer{outcome: func(o order.Order, n int) order.Result {
		if n%2 == 0 {
			return order.Failed(failure.Timeout, "timeout sending buy transaction")
		}
		return order.Succeeded(order.Fill{})
	}}
	s := newTestScheduler(t, st, p, rec)

	if err := runWithTimeout(t, func() error { return s.Run(context.Background(), Sequential, 0) }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	last := -1
	rec.mu.Lock()
	defer rec.mu.Unlock()
	for _, ev := range rec.events {
		if ev.Kind != events.CycleChange || ev.AccountID != accts[0].ID {
			continue
		}
		if *ev.CurrentCycle < last {
			t.Fatalf("currentCycle went from %d to %d", last, *ev.CurrentCycle)
		}
		if *ev.CurrentCycle > 4 {
			t.Fatalf("currentCycle %d exceeds cap", *ev.CurrentCycle)
		}
		last = *ev.CurrentCycle
	}
	if last != 4 {
		t.Fatalf("final currentCycle %d, want 4", last)
	}
}

func TestStopDuringCountdown(t *testing.T) {
	t.Parallel()

	st := store.NewMemory()
	accts := seed(t, st, account.Account{Name: "a", Address: "0x01", AmountIn: "1", IsActive: true, WaitFrom: 5, WaitTo: 5})
	rec := &recorder{}
	p := &fakePlacer{}
	s := newTestScheduler(t, st, p, rec)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ticks := 0
	s.sleep = func(ctx context.Context, d time.Duration) error {
		ticks++
		if ticks == 2 {
			cancel()
		}
		return ctx.Err()
	}

	if err := runWithTimeout(t, func() error { return s.Run(ctx, Sequential, 0) }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := p.callsFor(accts[0].ID); n != 1 {
		t.Fatalf("placed %d times, want 1", n)
	}
	if ticks != 2 {
		t.Fatalf("countdown ran %d ticks after stop", ticks)
	}
	if rec.count(events.Waiting) != 1 {
		t.Fatalf("expected one waiting event")
	}
}

func TestRunRequiresTokenAndAccounts(t *testing.T) {
	t.Parallel()

	st := store.NewMemory()
	s := New(st, &fakePlacer{}, openTestSigner, nil, Settings{})
	if err := s.Run(context.Background(), Sequential, 0); !errors.Is(err, ErrNoToken) {
		t.Fatalf("got %v, want ErrNoToken", err)
	}

	s = New(st, &fakePlacer{}, openTestSigner, nil, Settings{Token: testToken})
	if err := s.Run(context.Background(), Sequential, 0); !errors.Is(err, ErrNoAccounts) {
		t.Fatalf("got %v, want ErrNoAccounts", err)
	}

	seed(t, st, account.Account{Name: "a", Address: "0x01", AmountIn: "1", IsActive: true})
	if err := s.Run(context.Background(), Sequential, 999); !errors.Is(err, account.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestKeyFailureMarksAccountFailed(t *testing.T) {
	t.Parallel()

	st := store.NewMemory()
	accts := seed(t, st, account.Account{Name: "a", Address: "0x01", AmountIn: "1", IsActive: true, Cycle: 1})
	p := &fakePlacer{}
	s := New(st, p, func(account.Account) (chain.Signer, error) {
		return chain.Signer{}, errors.New("cipher: message authentication failed")
	}, nil, Settings{Token: testToken})
	s.sleep = func(ctx context.Context, d time.Duration) error { return nil }

	if err := runWithTimeout(t, func() error { return s.Run(context.Background(), Sequential, 0) }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(p.order()) != 0 {
		t.Fatalf("order placed without a signer")
	}
	if a := mustAccount(t, st, accts[0].ID); a.Status != account.Failed || a.CurrentCycle != 1 {
		t.Fatalf("account %+v", a)
	}
}

func TestParseMode(t *testing.T) {
	t.Parallel()

	cases := map[string]Mode{"": Sequential, "sequential": Sequential, " Concurrent ": Concurrent}
	for in, want := range cases {
		got, err := ParseMode(in)
		if err != nil || got != want {
			t.Fatalf("ParseMode(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseMode("parallel"); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
}

func TestRunnerRejectsSecondStart(t *testing.T) {
	t.Parallel()

	st := store.NewMemory()
	seed(t, st, account.Account{Name: "a", Address: "0x01", AmountIn: "1", IsActive: true})

	release := make(chan struct{})
	p := &fakePlacer{outcome: func(o order.Order, n int) order.Result {
		if n == 1 {
			<-release
		}
		return order.Succeeded(order.Fill{})
	}}
	s := newTestScheduler(t, st, p, &recorder{})
	r := NewRunner(s)

	if err := r.Start(context.Background(), Sequential, 0); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := r.Start(context.Background(), Sequential, 0); !errors.Is(err, ErrRunning) {
		t.Fatalf("got %v, want ErrRunning", err)
	}
	r.Stop()
	close(release)
	r.Wait()
	if r.Running() {
		t.Fatalf("runner still running after Wait")
	}
	if n := len(p.order()); n != 1 {
		t.Fatalf("in-flight order count %d, want 1", n)
	}
}

type fakeBalances struct {
	bnb    map[common.Address]*big.Int
	tokens *big.Int
	fail   common.Address
}

func (f *fakeBalances) BalanceAt(ctx context.Context, a common.Address, b *big.Int) (*big.Int, error) {
	if a == f.fail {
		return nil, errors.New("connection refused")
	}
	return f.bnb[a], nil
}

func (f *fakeBalances) CallContract(ctx context.Context, msg ethereum.CallMsg, b *big.Int) ([]byte, error) {
	return common.LeftPadBytes(f.tokens.Bytes(), 32), nil
}

func TestRefreshBalances(t *testing.T) {
	t.Parallel()

	a1 := common.HexToAddress("0x0000000000000000000000000000000000000001")
	a2 := common.HexToAddress("0x0000000000000000000000000000000000000002")
	st := store.NewMemory()
	accts := seed(t, st,
		account.Account{Name: "a", Address: a1.Hex()},
		account.Account{Name: "b", Address: a2.Hex()},
	)
	r := &fakeBalances{
		bnb:    map[common.Address]*big.Int{a1: big.NewInt(1_500_000_000_000_000_000)},
		tokens: big.NewInt(2_000_000_000_000_000_000),
		fail:   a2,
	}
	rec := &recorder{}

	err := RefreshBalances(context.Background(), st, r, gateway.New(time.Second), testToken, rec)
	if err == nil {
		t.Fatalf("expected the failing account to be reported")
	}
	got := mustAccount(t, st, accts[0].ID)
	if got.BNBBalance != "1.5" || got.TokenBalance != "2" {
		t.Fatalf("balances %q %q", got.BNBBalance, got.TokenBalance)
	}
	if rec.count(events.BalanceUpdate) != 1 {
		t.Fatalf("expected one balance update event")
	}
}
