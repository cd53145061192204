package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/worldstream/server/internal/generator"
	"github.com/worldstream/server/internal/performance"
	"github.com/worldstream/server/internal/resources"
	"github.com/worldstream/server/internal/streaming"
)

// ErrStreamReplaced is returned by a Stream after a newer one was opened.
var ErrStreamReplaced = errors.New("stream replaced by a newer connection")

// Options describe a new session.
type Options struct {
	Config   streaming.Config
	Strategy generator.Strategy
	// Seed 0 gives every chunk a fresh random layout.
	Seed     int64
	Position mgl32.Vec3
	Profile  bool
	Debug    bool
}

// Session is one client's streaming state. It owns the shared resource cache
// its chunks borrow from; the cache lives exactly as long as the session.
//
// Move, Flush and Close are serialized. Stats may be called from any
// goroutine.
type Session struct {
	ID       string
	Created  time.Time
	Strategy string

	loop  sync.Mutex
	epoch uint64 // current stream, guarded by loop

	focus    *streaming.FocusPoint
	cache    *resources.Cache
	loader   *resources.Loader
	manager  *streaming.Manager
	profiler *performance.Profiler
	outbox   *outbox

	ctx    context.Context
	cancel context.CancelFunc

	activeMu   sync.Mutex
	lastActive time.Time
	closed     bool
}

// Stats is a snapshot of a session.
type Stats struct {
	ID            string               `json:"id"`
	Strategy      string               `json:"strategy"`
	Created       time.Time            `json:"created"`
	LastActive    time.Time            `json:"last_active"`
	Closed        bool                 `json:"closed"`
	Stream        streaming.Stats      `json:"stream"`
	CacheEntries  int                  `json:"cache_entries"`
	CacheBuilds   int                  `json:"cache_builds"`
	CacheHits     int                  `json:"cache_hits"`
	PendingEncode int                  `json:"pending_encode"`
	SentChunks    int                  `json:"sent_chunks"`
	EncodeErrors  int                  `json:"encode_errors"`
	Profile       *performance.Summary `json:"profile,omitempty"`
}

// New creates a session and materializes the window around opts.Position.
func New(id string, opts Options) (*Session, error) {
	if opts.Strategy == nil {
		return nil, fmt.Errorf("%w: strategy is required", streaming.ErrInvalidConfig)
	}

	ctx, cancel := context.WithCancel(context.Background())
	now := time.Now()
	s := &Session{
		ID:         id,
		Created:    now,
		Strategy:   opts.Strategy.Name(),
		focus:      streaming.NewFocusPoint(opts.Position),
		cache:      resources.NewCache(),
		loader:     resources.NewLoader(),
		ctx:        ctx,
		cancel:     cancel,
		lastActive: now,
	}
	if opts.Profile {
		s.profiler = performance.NewProfiler(true)
	}
	s.outbox = newOutbox(ctx, s.loader, s.profiler)

	manager, err := streaming.NewManager(opts.Config, s.focus, opts.Strategy, s.outbox, s.cache,
		streaming.WithProfiler(s.profiler),
		streaming.WithGeneratorOptions(generator.Options{Seed: opts.Seed}),
		streaming.WithDebug(opts.Debug),
	)
	if err != nil {
		cancel()
		s.loader.Wait()
		s.loader.Drain()
		s.cache.Dispose()
		return nil, err
	}
	s.manager = manager
	log.Printf("[Session] %s created: strategy=%s resident=%d", id, opts.Strategy.Name(), manager.Len())
	return s, nil
}

// Move sets the focus position and lets the manager follow it. The returned
// delta is nil while the focus stays in its cell. A focus outside the grid
// is rejected and the previous position kept.
func (s *Session) Move(pos mgl32.Vec3) (*streaming.WindowDelta, error) {
	s.loop.Lock()
	defer s.loop.Unlock()
	return s.move(pos)
}

func (s *Session) move(pos mgl32.Vec3) (*streaming.WindowDelta, error) {
	s.Touch()
	prev := s.focus.Position()
	s.focus.Set(pos)
	delta, err := s.manager.Poll()
	if errors.Is(err, streaming.ErrFocusOutOfRange) {
		s.focus.Set(prev)
	}
	return delta, err
}

// Flush returns the events ready for the client.
func (s *Session) Flush() []Event {
	s.loop.Lock()
	defer s.loop.Unlock()
	if s.isClosed() {
		return nil
	}
	return s.outbox.take()
}

// Stream is one client connection's view of a session. Opening a new stream
// retires the previous one, whose Move and Flush then fail with
// ErrStreamReplaced, so a dropped connection cannot swallow events meant for
// its successor.
type Stream struct {
	session *Session
	epoch   uint64
}

// OpenStream starts a fresh client view. Queued events are discarded and
// every chunk in the graph is queued again, so the first Flush rebuilds the
// client's world from scratch.
func (s *Session) OpenStream() (*Stream, error) {
	s.loop.Lock()
	defer s.loop.Unlock()
	if s.isClosed() {
		return nil, streaming.ErrClosed
	}
	s.epoch++
	s.outbox.reset(s.manager.AttachedChunks())
	s.Touch()
	return &Stream{session: s, epoch: s.epoch}, nil
}

// Move is Session.Move for the current stream.
func (st *Stream) Move(pos mgl32.Vec3) (*streaming.WindowDelta, error) {
	s := st.session
	s.loop.Lock()
	defer s.loop.Unlock()
	if st.epoch != s.epoch {
		return nil, ErrStreamReplaced
	}
	return s.move(pos)
}

// Flush is Session.Flush for the current stream.
func (st *Stream) Flush() ([]Event, error) {
	s := st.session
	s.loop.Lock()
	defer s.loop.Unlock()
	if st.epoch != s.epoch {
		return nil, ErrStreamReplaced
	}
	if s.isClosed() {
		return nil, streaming.ErrClosed
	}
	return s.outbox.take(), nil
}

// Wait blocks until every payload started so far has been encoded.
func (st *Stream) Wait() {
	st.session.Wait()
}

// Wait blocks until every payload started so far has been encoded.
func (s *Session) Wait() {
	s.loader.Wait()
}

// Position returns the current focus position.
func (s *Session) Position() mgl32.Vec3 {
	return s.focus.Position()
}

// Manager exposes the streaming manager for inspection.
func (s *Session) Manager() *streaming.Manager {
	return s.manager
}

// Cache exposes the session's resource cache for inspection.
func (s *Session) Cache() *resources.Cache {
	return s.cache
}

// LastActive returns the time of the last Move.
func (s *Session) LastActive() time.Time {
	s.activeMu.Lock()
	defer s.activeMu.Unlock()
	return s.lastActive
}

// Touch marks the session active without moving its focus.
func (s *Session) Touch() {
	s.activeMu.Lock()
	s.lastActive = time.Now()
	s.activeMu.Unlock()
}

func (s *Session) isClosed() bool {
	s.activeMu.Lock()
	defer s.activeMu.Unlock()
	return s.closed
}

// Stats returns a snapshot of the session.
func (s *Session) Stats() Stats {
	entries := s.cache.Len()
	builds, hits := s.cache.Stats()
	pending, sent, failed := s.outbox.counts()

	s.activeMu.Lock()
	last, closed := s.lastActive, s.closed
	s.activeMu.Unlock()

	st := Stats{
		ID:            s.ID,
		Strategy:      s.Strategy,
		Created:       s.Created,
		LastActive:    last,
		Closed:        closed,
		Stream:        s.manager.Stats(),
		CacheEntries:  entries,
		CacheBuilds:   builds,
		CacheHits:     hits,
		PendingEncode: pending,
		SentChunks:    sent,
		EncodeErrors:  failed,
	}
	if s.profiler != nil {
		summary := s.profiler.Summary()
		st.Profile = &summary
	}
	return st
}

// Close releases every chunk, cancels outstanding encodes and disposes the
// cache. Close is idempotent.
func (s *Session) Close() {
	s.loop.Lock()
	defer s.loop.Unlock()

	s.activeMu.Lock()
	if s.closed {
		s.activeMu.Unlock()
		return
	}
	s.closed = true
	s.activeMu.Unlock()

	s.manager.Close()
	s.cancel()
	s.loader.Wait()
	s.loader.Drain()
	s.cache.Dispose()
	if s.profiler != nil {
		s.profiler.LogReport()
	}
	log.Printf("[Session] %s closed", s.ID)
}
