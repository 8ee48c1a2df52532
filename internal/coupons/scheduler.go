package coupons

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Input is the set of reactive inputs that drive a re-validation. Any change
// to one of them supersedes the in-flight validation.
type Input struct {
	Code     string
	Subtotal decimal.Decimal
	Email    string
}

// RunFunc performs one validation pass. The context is cancelled the moment a
// newer input arrives, so implementations must check ctx.Err() before applying
// their result.
type RunFunc func(ctx context.Context, in Input)

// Scheduler debounces coupon validation. Each Trigger restarts the debounce
// window and cancels whatever run is pending or in flight, so at most one
// result is ever applied and it always belongs to the latest input.
//
// Empty and reserved codes skip the debounce window: the former settles
// locally and the latter should react immediately once identity is known.
type Scheduler struct {
	mu       sync.Mutex
	delay    time.Duration
	reserved string
	run      RunFunc

	timer  *time.Timer
	cancel context.CancelFunc
	gen    uint64
	closed bool
}

func NewScheduler(delay time.Duration, reservedCode string, run RunFunc) *Scheduler {
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}
	return &Scheduler{
		delay:    delay,
		reserved: NormalizeCode(reservedCode),
		run:      run,
	}
}

// Trigger schedules a validation for the given input, superseding any pending
// or in-flight run.
func (s *Scheduler) Trigger(in Input) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	s.supersedeLocked()

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	gen := s.gen

	s.timer = time.AfterFunc(s.delayFor(in), func() {
		if !s.current(gen) {
			cancel()
			return
		}
		s.run(ctx, in)
	})
}

// Stop cancels any pending or in-flight run and rejects further triggers.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.supersedeLocked()
	s.closed = true
}

func (s *Scheduler) supersedeLocked() {
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

func (s *Scheduler) current(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return gen == s.gen && !s.closed
}

func (s *Scheduler) delayFor(in Input) time.Duration {
	code := NormalizeCode(in.Code)
	if code == "" {
		return 0
	}
	if s.reserved != "" && code == s.reserved && in.Email != "" {
		return 0
	}
	return s.delay
}
