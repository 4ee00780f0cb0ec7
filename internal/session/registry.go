package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"recipechat/internal/metrics"
)

// ErrTooManySessions is returned by Create when the registry is full and every
// session is streaming a reply.
var ErrTooManySessions = errors.New("too many open sessions")

// Limits bound the registry. Zero values disable the bound.
type Limits struct {
	MaxSessions int
	IdleTTL     time.Duration
}

type entry struct {
	s        *Session
	lastSeen time.Time
}

// Registry holds independent sessions keyed by ID. Sessions idle for longer
// than IdleTTL are dropped, and when MaxSessions is reached the least recently
// used idle session makes room for the new one.
type Registry struct {
	system  string
	cfg     Config
	limits  Limits
	metrics *metrics.Metrics
	now     func() time.Time

	mu       sync.Mutex
	sessions map[string]*entry
}

func NewRegistry(systemPrompt string, cfg Config, limits Limits, m *metrics.Metrics) *Registry {
	return &Registry{
		system:   systemPrompt,
		cfg:      cfg,
		limits:   limits,
		metrics:  m,
		now:      time.Now,
		sessions: make(map[string]*entry),
	}
}

// Create opens a new session.
func (r *Registry) Create() (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pruneLocked()
	if r.limits.MaxSessions > 0 && len(r.sessions) >= r.limits.MaxSessions {
		if !r.evictOldestLocked() {
			return nil, ErrTooManySessions
		}
	}
	s := New(r.system, r.cfg)
	r.sessions[s.ID()] = &entry{s: s, lastSeen: r.now()}
	r.metrics.SessionOpened()
	return s, nil
}

// Get returns the session and marks it as used.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	e.lastSeen = r.now()
	return e.s, true
}

// Delete drops a session and reports whether it existed.
func (r *Registry) Delete(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return false
	}
	r.removeLocked(id)
	return true
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Prune drops sessions idle for longer than IdleTTL and returns how many went.
// A session streaming a reply is never dropped.
func (r *Registry) Prune() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pruneLocked()
}

// Run prunes idle sessions every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	if r.limits.IdleTTL <= 0 || interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			r.Prune()
		}
	}
}

func (r *Registry) pruneLocked() int {
	if r.limits.IdleTTL <= 0 {
		return 0
	}
	cutoff := r.now().Add(-r.limits.IdleTTL)
	n := 0
	for id, e := range r.sessions {
		if e.lastSeen.Before(cutoff) && e.s.State() != StateStreamingReply {
			r.removeLocked(id)
			n++
		}
	}
	return n
}

func (r *Registry) evictOldestLocked() bool {
	var (
		oldest string
		seen   time.Time
	)
	for id, e := range r.sessions {
		if e.s.State() == StateStreamingReply {
			continue
		}
		if oldest == "" || e.lastSeen.Before(seen) {
			oldest, seen = id, e.lastSeen
		}
	}
	if oldest == "" {
		return false
	}
	r.removeLocked(oldest)
	return true
}

func (r *Registry) removeLocked(id string) {
	delete(r.sessions, id)
	r.metrics.SessionClosed()
}
