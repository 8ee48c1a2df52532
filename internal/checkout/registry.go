package checkout

import (
	"context"
	"sync"
	"time"

	"github.com/poppyflores/checkout-backend/pkg/logger"
)

// Factory builds a fresh orchestrator for a session.
type Factory func(sessionID string) (*Orchestrator, error)

// Registry holds one orchestrator per active storefront session and evicts
// the ones that have been idle past the TTL.
type Registry struct {
	factory Factory
	ttl     time.Duration
	logger  *logger.Logger

	mu       sync.Mutex
	sessions map[string]*Orchestrator

	done      chan struct{}
	closeOnce sync.Once
}

func NewRegistry(factory Factory, ttl, sweepEvery time.Duration, logg *logger.Logger) *Registry {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	if sweepEvery <= 0 {
		sweepEvery = 5 * time.Minute
	}

	r := &Registry{
		factory:  factory,
		ttl:      ttl,
		logger:   logg,
		sessions: make(map[string]*Orchestrator),
		done:     make(chan struct{}),
	}
	go r.sweep(sweepEvery)
	return r
}

// Get returns the session's orchestrator, creating it on first sight, and
// refreshes its idle deadline.
func (r *Registry) Get(sessionID string) (*Orchestrator, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if orch, ok := r.sessions[sessionID]; ok {
		orch.Touch()
		return orch, nil
	}

	orch, err := r.factory(sessionID)
	if err != nil {
		return nil, err
	}
	r.sessions[sessionID] = orch
	return orch, nil
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Close stops the sweeper and every live orchestrator.
func (r *Registry) Close() {
	r.closeOnce.Do(func() {
		close(r.done)
		r.mu.Lock()
		defer r.mu.Unlock()
		for id, orch := range r.sessions {
			orch.Stop()
			delete(r.sessions, id)
		}
	})
}

func (r *Registry) sweep(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-r.done:
			return
		case <-ticker.C:
			r.evictIdle()
		}
	}
}

func (r *Registry) evictIdle() {
	cutoff := time.Now().Add(-r.ttl)

	r.mu.Lock()
	defer r.mu.Unlock()
	for id, orch := range r.sessions {
		if orch.LastSeen().Before(cutoff) {
			orch.Stop()
			delete(r.sessions, id)
			if r.logger != nil {
				r.logger.Info(r.logger.WithSessionID(context.Background(), id), "idle checkout session evicted")
			}
		}
	}
}
