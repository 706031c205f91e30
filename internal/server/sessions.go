package server

import (
	"context"
	"sync"
	"time"

	"github.com/playperu/fivehints/internal/engine"
)

// Sessions tracks play sessions that have a request or an enrichment call in
// flight on this instance. Snapshots themselves live on the client.
type Sessions struct {
	mu   sync.Mutex
	busy map[string]struct{}
	live map[string]map[*engine.Session]struct{}
}

func NewSessions() *Sessions {
	return &Sessions{
		busy: make(map[string]struct{}),
		live: make(map[string]map[*engine.Session]struct{}),
	}
}

// Acquire marks id as busy. It reports false when another request for the
// same session is still running.
func (r *Sessions) Acquire(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.busy[id]; ok {
		return false
	}
	r.busy[id] = struct{}{}
	return true
}

func (r *Sessions) Release(id string) {
	r.mu.Lock()
	delete(r.busy, id)
	r.mu.Unlock()
}

// Track keeps s reachable for Abandon until its enrichment of kind settles.
func (r *Sessions) Track(s *engine.Session, kind engine.Enrichment, limit time.Duration) {
	id := s.ID()
	r.mu.Lock()
	if r.live[id] == nil {
		r.live[id] = make(map[*engine.Session]struct{})
	}
	r.live[id][s] = struct{}{}
	r.mu.Unlock()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), limit)
		defer cancel()
		s.Wait(ctx, kind)

		r.mu.Lock()
		delete(r.live[id], s)
		if len(r.live[id]) == 0 {
			delete(r.live, id)
		}
		r.mu.Unlock()
	}()
}

// Abandon cancels every tracked instance of the session. It reports whether
// anything was in flight.
func (r *Sessions) Abandon(id string) bool {
	r.mu.Lock()
	tracked := r.live[id]
	delete(r.live, id)
	r.mu.Unlock()

	for s := range tracked {
		s.Abandon()
	}
	return len(tracked) > 0
}
