package scheduler

import (
	"context"
	"errors"
	"log"
	"sync"
)

var ErrRunning = errors.New("bot is already running")

// Runner owns at most one background Run at a time so operator commands can
// start and stop the bot.
type Runner struct {
	s *Scheduler

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewRunner(s *Scheduler) *Runner {
	return &Runner{s: s}
}

// Start launches Run in the background. It fails with ErrRunning while a
// previous run is still active.
func (r *Runner) Start(parent context.Context, mode Mode, startID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done != nil {
		select {
		case <-r.done:
		default:
			return ErrRunning
		}
	}

	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})
	r.cancel, r.done = cancel, done
	go func() {
		defer close(done)
		defer cancel()
		if err := r.s.Run(ctx, mode, startID); err != nil {
			log.Printf("[warn] run ended: %v", err)
		}
	}()
	return nil
}

// Stop asks the active run to finish. Orders already in flight complete.
func (r *Runner) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Wait blocks until the active run, if any, has returned.
func (r *Runner) Wait() {
	r.mu.Lock()
	done := r.done
	r.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (r *Runner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done == nil {
		return false
	}
	select {
	case <-r.done:
		return false
	default:
		return true
	}
}
