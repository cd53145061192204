package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrSessionNotFound is returned for unknown or closed session IDs.
	ErrSessionNotFound = errors.New("session not found")
	// ErrTooManySessions is returned by Create when the registry is full.
	ErrTooManySessions = errors.New("too many sessions")
)

// Summary is the listing form of a session.
type Summary struct {
	ID         string    `json:"id"`
	Strategy   string    `json:"strategy"`
	Created    time.Time `json:"created"`
	LastActive time.Time `json:"last_active"`
	Resident   int       `json:"resident"`
}

// Registry holds the live sessions of a server.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	max      int
	idle     time.Duration
	creating int
}

// NewRegistry creates a registry holding at most max sessions. Sessions idle
// for longer than idle are closed by Sweep; zero disables expiry.
func NewRegistry(max int, idle time.Duration) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		max:      max,
		idle:     idle,
	}
}

// Create builds and registers a new session.
func (r *Registry) Create(opts Options) (*Session, error) {
	r.mu.Lock()
	if r.max > 0 && len(r.sessions)+r.creating >= r.max {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w (max %d)", ErrTooManySessions, r.max)
	}
	r.creating++
	r.mu.Unlock()

	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	s, err := New(id, opts)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.creating--
	if err != nil {
		return nil, err
	}
	r.sessions[id] = s
	return s, nil
}

// Get returns a live session.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, nil
}

// Remove unregisters and closes a session.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	s.Close()
	return nil
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// List returns every live session, oldest first.
func (r *Registry) List() []Summary {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	slices.SortFunc(sessions, func(a, b *Session) int {
		if c := a.Created.Compare(b.Created); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	out := make([]Summary, len(sessions))
	for i, s := range sessions {
		out[i] = Summary{
			ID:         s.ID,
			Strategy:   s.Strategy,
			Created:    s.Created,
			LastActive: s.LastActive(),
			Resident:   s.manager.Len(),
		}
	}
	return out
}

// Sweep closes sessions idle since before now minus the idle timeout and
// returns how many were closed.
func (r *Registry) Sweep(now time.Time) int {
	if r.idle <= 0 {
		return 0
	}
	cutoff := now.Add(-r.idle)

	r.mu.Lock()
	var stale []*Session
	for id, s := range r.sessions {
		if s.LastActive().Before(cutoff) {
			stale = append(stale, s)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, s := range stale {
		s.Close()
	}
	if len(stale) > 0 {
		log.Printf("[Session] expired %d idle sessions", len(stale))
	}
	return len(stale)
}

// Run sweeps idle sessions every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			r.Sweep(now)
		}
	}
}

// CloseAll closes every session.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}
