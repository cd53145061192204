package streaming

import (
	"cmp"
	"fmt"
	"log"
	"slices"
	"sync"

	"github.com/worldstream/server/internal/chunk"
	"github.com/worldstream/server/internal/generator"
	"github.com/worldstream/server/internal/grid"
	"github.com/worldstream/server/internal/performance"
	"github.com/worldstream/server/internal/resources"
	"github.com/worldstream/server/internal/scene"
)

// Manager keeps the window of cells around a moving focus resident, and
// evicts the farthest chunks once the resident count passes the high water
// mark.
//
// A Manager is driven from one goroutine. The mutex only lets observers such
// as Stats run concurrently with that loop.
type Manager struct {
	mu sync.Mutex

	cfg      Config
	focus    Focus
	strategy generator.Strategy
	graph    scene.Graph
	cache    *resources.Cache
	genOpts  generator.Options
	profiler *performance.Profiler
	debug    bool

	store    *chunk.Store
	attached map[uint64]struct{} // chunk IDs currently in the graph
	center   grid.Coord
	window   []grid.Coord
	state    State

	stats counters
}

type counters struct {
	polls      int
	migrations int
	generated  int
	reattached int
	evicted    int
	failures   int
	evictions  int
}

// Stats is a snapshot of a Manager.
type Stats struct {
	State      string     `json:"state"`
	Center     grid.Coord `json:"center"`
	Resident   int        `json:"resident"`
	Attached   int        `json:"attached"`
	WindowSize int        `json:"window_size"`
	Polls      int        `json:"polls"`
	Migrations int        `json:"migrations"`
	Generated  int        `json:"generated"`
	Reattached int        `json:"reattached"`
	Evicted    int        `json:"evicted"`
	Evictions  int        `json:"eviction_passes"`
	Failures   int        `json:"failures"`
}

// WindowDelta describes one migration between cells.
type WindowDelta struct {
	From    grid.Coord   `json:"from"`
	To      grid.Coord   `json:"to"`
	Added   []grid.Coord `json:"added"`
	Removed []grid.Coord `json:"removed"`
}

// Option customizes a Manager.
type Option func(*Manager)

// WithProfiler records pass timings.
func WithProfiler(p *performance.Profiler) Option {
	return func(m *Manager) { m.profiler = p }
}

// WithGeneratorOptions overrides the options passed to the strategy.
// CellSize is always taken from the Config.
func WithGeneratorOptions(opts generator.Options) Option {
	return func(m *Manager) { m.genOpts = opts }
}

// WithDebug enables per-chunk logging.
func WithDebug(on bool) Option {
	return func(m *Manager) { m.debug = on }
}

// NewManager validates cfg and materializes the window around the focus.
func NewManager(cfg Config, focus Focus, strategy generator.Strategy, graph scene.Graph, cache *resources.Cache, opts ...Option) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if focus == nil || strategy == nil || graph == nil || cache == nil {
		return nil, fmt.Errorf("%w: focus, strategy, graph and cache are required", ErrInvalidConfig)
	}

	m := &Manager{
		cfg:      cfg,
		focus:    focus,
		strategy: strategy,
		graph:    graph,
		cache:    cache,
		store:    chunk.NewStore(),
		attached: make(map[uint64]struct{}),
		state:    StateUninitialized,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.genOpts.CellSize = cfg.CellSize

	m.mu.Lock()
	defer m.mu.Unlock()

	center, err := m.focusCell()
	if err != nil {
		return nil, err
	}
	m.center = center
	m.window = grid.Window(m.center, cfg.Radius, cfg.Dims)
	if err := m.generate(m.center); err != nil {
		m.closeLocked()
		return nil, err
	}
	m.state = StateSteady
	log.Printf("[Stream] started: strategy=%s center=%v radius=%d dims=%d window=%d high=%d low=%d",
		strategy.Name(), m.center, cfg.Radius, cfg.Dims, cfg.WindowSize(), cfg.HighWater, cfg.LowWater)
	return m, nil
}

// Poll follows the focus. When the focus is still in the recorded cell it
// does nothing and returns nil. Otherwise it detaches cells that left the
// window, records the new cell and materializes the new window.
func (m *Manager) Poll() (*WindowDelta, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateClosed {
		return nil, ErrClosed
	}
	m.stats.polls++
	cell, err := m.focusCell()
	if err != nil {
		return nil, err
	}
	if cell == m.center {
		return nil, nil
	}

	defer m.profiler.Start(performance.OpPoll).End()

	m.state = StateMigrating
	m.stats.migrations++
	next := grid.Window(cell, m.cfg.Radius, m.cfg.Dims)
	added, removed := grid.Diff(m.window, next)
	for _, loc := range removed {
		if c, ok := m.store.Get(loc); ok {
			m.detach(c)
		}
	}

	delta := &WindowDelta{From: m.center, To: cell, Added: added, Removed: removed}
	m.center = cell
	m.window = next
	err = m.generate(cell)
	m.state = StateSteady
	if m.debug {
		log.Printf("[Stream] migrated %v -> %v: added=%d removed=%d resident=%d",
			delta.From, delta.To, len(added), len(removed), m.store.Len())
	}
	return delta, err
}

// Generate materializes the window around the given cell, then evicts if the
// resident count exceeds the high water mark.
func (m *Manager) Generate(around grid.Coord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateClosed {
		return ErrClosed
	}
	if !grid.WindowFits(around, m.cfg.Radius, m.cfg.Dims) {
		return fmt.Errorf("%w: window around %v", ErrFocusOutOfRange, around)
	}
	return m.generate(around)
}

func (m *Manager) generate(around grid.Coord) error {
	defer m.profiler.Start(performance.OpGenerate).End()

	for _, loc := range grid.Window(around, m.cfg.Radius, m.cfg.Dims) {
		if c, ok := m.store.Get(loc); ok {
			if m.attach(c) {
				m.stats.reattached++
			}
			continue
		}

		c, err := m.build(loc)
		if err != nil {
			m.stats.failures++
			if m.cfg.FailurePolicy == FailFast {
				return err
			}
			log.Printf("[Stream] skipping chunk %v: %v", loc, err)
			continue
		}
		m.store.Add(c, false)
		m.attach(c)
		m.stats.generated++
	}

	if m.store.Len() > m.cfg.HighWater {
		m.evict(around)
	}
	return nil
}

func (m *Manager) build(loc grid.Coord) (*chunk.Chunk, error) {
	timer := m.profiler.Start(performance.OpChunk)
	content, err := m.strategy.Generate(loc, m.genOpts, m.cache)
	elapsed := timer.End()
	if err != nil {
		return nil, fmt.Errorf("generate chunk %v: %w", loc, err)
	}
	if content == nil {
		return nil, fmt.Errorf("generate chunk %v: strategy %s returned no content", loc, m.strategy.Name())
	}
	c := chunk.New(loc, content)
	if m.debug {
		log.Printf("[Stream] generated chunk %d at %v in %s", c.ID, loc, elapsed)
	}
	return c, nil
}

// evict removes the farthest chunks until the low water mark is reached.
// Distances are measured from the focus cell recorded by the pass that
// triggered eviction. The window just materialized around anchor is never a
// candidate, so the low water mark is always reachable; with a radius of 3 or
// more a window corner can be farther than cells outside the window, and the
// corner stays.
func (m *Manager) evict(anchor grid.Coord) {
	defer m.profiler.Start(performance.OpEvict).End()

	ref := m.center
	before := m.store.Len()

	// Chunks() is in insertion order; the stable sort keeps older chunks first
	// among equal distances.
	candidates := slices.DeleteFunc(m.store.Chunks(), func(c *chunk.Chunk) bool {
		return grid.InWindow(c.Location, anchor, m.cfg.Radius, m.cfg.Dims)
	})
	slices.SortStableFunc(candidates, func(a, b *chunk.Chunk) int {
		return cmp.Compare(grid.Distance(ref, b.Location), grid.Distance(ref, a.Location))
	})

	for _, c := range candidates {
		if m.store.Len() <= m.cfg.LowWater {
			break
		}
		m.store.Remove(c.Location)
		m.detach(c)
		c.Dispose()
		m.stats.evicted++
	}
	m.stats.evictions++
	log.Printf("[Stream] evicted %d chunks around %v (resident %d -> %d)", before-m.store.Len(), ref, before, m.store.Len())
}

func (m *Manager) attach(c *chunk.Chunk) bool {
	if _, ok := m.attached[c.ID]; ok {
		return false
	}
	m.graph.Attach(c)
	m.attached[c.ID] = struct{}{}
	return true
}

func (m *Manager) detach(c *chunk.Chunk) {
	if _, ok := m.attached[c.ID]; !ok {
		return
	}
	m.graph.Detach(c)
	delete(m.attached, c.ID)
}

// focusCell locates the focus, rejecting cells whose window would alias in
// the chunk store.
func (m *Manager) focusCell() (grid.Coord, error) {
	cell, err := grid.Locate(m.focus.Position(), m.cfg.CellSize, m.cfg.Dims)
	if err != nil {
		return grid.Coord{}, fmt.Errorf("%w: %v", ErrFocusOutOfRange, err)
	}
	if !grid.WindowFits(cell, m.cfg.Radius, m.cfg.Dims) {
		return grid.Coord{}, fmt.Errorf("%w: window around %v", ErrFocusOutOfRange, cell)
	}
	return cell, nil
}

// Chunk returns the resident chunk at loc.
func (m *Manager) Chunk(loc grid.Coord) (*chunk.Chunk, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.Get(loc)
}

// Attached reports whether the chunk at loc is resident and in the graph.
func (m *Manager) Attached(loc grid.Coord) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.store.Get(loc)
	if !ok {
		return false
	}
	_, ok = m.attached[c.ID]
	return ok
}

// Resident returns the locations of all resident chunks in insertion order.
func (m *Manager) Resident() []grid.Coord {
	m.mu.Lock()
	defer m.mu.Unlock()
	chunks := m.store.Chunks()
	locs := make([]grid.Coord, len(chunks))
	for i, c := range chunks {
		locs[i] = c.Location
	}
	return locs
}

// AttachedChunks returns the chunks currently in the graph in insertion order.
func (m *Manager) AttachedChunks() []*chunk.Chunk {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*chunk.Chunk
	for _, c := range m.store.Chunks() {
		if _, ok := m.attached[c.ID]; ok {
			out = append(out, c)
		}
	}
	return out
}

// Len returns the number of resident chunks.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.Len()
}

// Center returns the recorded focus cell.
func (m *Manager) Center() grid.Coord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.center
}

// State returns the lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Config returns the configuration the manager was built with.
func (m *Manager) Config() Config {
	return m.cfg
}

// Stats returns a snapshot of the manager's counters.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{
		State:      m.state.String(),
		Center:     m.center,
		Resident:   m.store.Len(),
		Attached:   len(m.attached),
		WindowSize: m.cfg.WindowSize(),
		Polls:      m.stats.polls,
		Migrations: m.stats.migrations,
		Generated:  m.stats.generated,
		Reattached: m.stats.reattached,
		Evicted:    m.stats.evicted,
		Evictions:  m.stats.evictions,
		Failures:   m.stats.failures,
	}
}

// Close detaches and disposes every resident chunk. The shared cache is left
// to its owner. Close is idempotent.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateClosed {
		return
	}
	n := m.store.Len()
	m.closeLocked()
	log.Printf("[Stream] closed: released %d chunks", n)
}

func (m *Manager) closeLocked() {
	for _, c := range m.store.Clear() {
		m.detach(c)
		c.Dispose()
	}
	m.state = StateClosed
}
