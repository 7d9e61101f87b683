// Package events carries structured bot events from the engine to whatever
// renders them: log lines, a JSONL file, the websocket feed, metrics.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	RunStarted   Kind = "run_started"
	RunStopped   Kind = "run_stopped"
	NoEligible   Kind = "no_eligible_accounts"
	StepStarted  Kind = "step_started"
	StatusChange Kind = "status_changed"
	CycleChange  Kind = "cycle_changed"
	AccountDone  Kind = "account_capped"
	Waiting      Kind = "waiting"
	Countdown    Kind = "countdown"

	Balance       Kind = "balance"
	Route         Kind = "route"
	Attempt       Kind = "attempt"
	Quote         Kind = "quote"
	NonceUpdate   Kind = "nonce"
	Approval      Kind = "approval"
	TxConfirmed   Kind = "tx_confirmed"
	Retry         Kind = "retry"
	OrderDone     Kind = "order_done"
	OrderFailed   Kind = "order_failed"
	BalanceUpdate Kind = "balance_refreshed"
	Message       Kind = "message"
)

// Event is one record. Optional fields are omitted from JSON when empty.
type Event struct {
	TsMs  int64  `json:"ts_ms"`
	RunID string `json:"run_id,omitempty"`
	Kind  Kind   `json:"event"`

	AccountID   int64  `json:"account_id,omitempty"`
	AccountName string `json:"account_name,omitempty"`
	Address     string `json:"address,omitempty"`

	Mode  string `json:"mode,omitempty"` // sequential | concurrent
	Side  string `json:"side,omitempty"` // buy | sell
	Venue string `json:"venue,omitempty"`

	Attempt    int     `json:"attempt,omitempty"`
	MaxRetries int     `json:"max_retries,omitempty"`
	Nonce      *uint64 `json:"nonce,omitempty"`
	Amount     string  `json:"amount,omitempty"`
	Quote      string  `json:"quote,omitempty"`
	MinOut     string  `json:"min_out,omitempty"`
	BNB        string  `json:"bnb,omitempty"`
	Tokens     string  `json:"tokens,omitempty"`
	TxHash     string  `json:"tx_hash,omitempty"`

	Status       string `json:"status,omitempty"`
	Cycle        *int   `json:"cycle,omitempty"`
	CurrentCycle *int   `json:"current_cycle,omitempty"`
	WaitSec      int    `json:"wait_sec,omitempty"`

	ElapsedMs int64  `json:"elapsed_ms,omitempty"`
	ErrKind   string `json:"err_kind,omitempty"`
	Err       string `json:"err,omitempty"`
	Msg       string `json:"msg,omitempty"`
}

func Uint64(v uint64) *uint64 { return &v }
func Int(v int) *int          { return &v }

type Sink interface {
	Emit(Event)
}

type SinkFunc func(Event)

func (f SinkFunc) Emit(ev Event) { f(ev) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(Event) {})

// Emitter stamps events with a timestamp and run id and fans them out. It is
// safe for concurrent use.
type Emitter struct {
	mu    sync.RWMutex
	sinks []Sink
	runID string
	now   func() time.Time
}

func NewEmitter(sinks ...Sink) *Emitter {
	e := &Emitter{now: time.Now}
	for _, s := range sinks {
		if s != nil {
			e.sinks = append(e.sinks, s)
		}
	}
	return e
}

func (e *Emitter) Add(s Sink) {
	if e == nil || s == nil {
		return
	}
	e.mu.Lock()
	e.sinks = append(e.sinks, s)
	e.mu.Unlock()
}

// NewRun starts a fresh run id and returns it.
func (e *Emitter) NewRun() string {
	id := uuid.New().String()
	e.mu.Lock()
	e.runID = id
	e.mu.Unlock()
	return id
}

func (e *Emitter) Emit(ev Event) {
	if e == nil {
		return
	}
	e.mu.RLock()
	sinks := e.sinks
	runID := e.runID
	e.mu.RUnlock()

	if ev.TsMs == 0 {
		ev.TsMs = e.now().UnixMilli()
	}
	if ev.RunID == "" {
		ev.RunID = runID
	}
	for _, s := range sinks {
		s.Emit(ev)
	}
}

// Stopwatch measures the time between successive events of one order.
type Stopwatch struct {
	last time.Time
}

func StartStopwatch() *Stopwatch { return &Stopwatch{last: time.Now()} }

// Lap returns milliseconds since the previous lap and restarts the clock.
func (s *Stopwatch) Lap() int64 {
	now := time.Now()
	d := now.Sub(s.last)
	s.last = now
	return d.Milliseconds()
}
