package streaming

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/worldstream/server/internal/grid"
)

var (
	// ErrInvalidConfig is returned by NewManager for unusable window or
	// budget settings.
	ErrInvalidConfig = errors.New("invalid streaming config")
	// ErrClosed is returned by operations on a closed Manager.
	ErrClosed = errors.New("streaming manager closed")
	// ErrFocusOutOfRange is returned when the window around the focus
	// reaches past the grid. The manager keeps its previous window.
	ErrFocusOutOfRange = errors.New("focus outside the streamable grid")
)

// FailurePolicy decides what a materialization pass does when the strategy
// fails for one cell.
type FailurePolicy int

const (
	// SkipAndRetry logs the failure, leaves the cell unresident and tries it
	// again on the next pass that covers it.
	SkipAndRetry FailurePolicy = iota
	// FailFast aborts the pass and returns the error.
	FailFast
)

func (p FailurePolicy) String() string {
	switch p {
	case SkipAndRetry:
		return "skip"
	case FailFast:
		return "fail_fast"
	default:
		return fmt.Sprintf("FailurePolicy(%d)", int(p))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (p FailurePolicy) MarshalText() ([]byte, error) {
	switch p {
	case SkipAndRetry, FailFast:
		return []byte(p.String()), nil
	default:
		return nil, fmt.Errorf("unknown failure policy %d", int(p))
	}
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *FailurePolicy) UnmarshalText(text []byte) error {
	parsed, err := ParseFailurePolicy(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// ParseFailurePolicy accepts "skip" (or "") and "fail_fast".
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "skip", "skip_and_retry":
		return SkipAndRetry, nil
	case "fail_fast", "failfast":
		return FailFast, nil
	default:
		return 0, fmt.Errorf("unknown failure policy %q", s)
	}
}

// Config sizes the streaming window and the resident budget.
type Config struct {
	CellSize      float32       `json:"cell_size"`
	Radius        int           `json:"radius"`
	Dims          grid.Dims     `json:"dims"`
	HighWater     int           `json:"high_water"`
	LowWater      int           `json:"low_water"`
	FailurePolicy FailurePolicy `json:"failure_policy"`
}

// WindowSize returns the number of cells in one window.
func (c Config) WindowSize() int {
	return grid.WindowSize(c.Radius, c.Dims)
}

// Validate rejects budgets that would thrash or evict visible cells.
func (c Config) Validate() error {
	if err := grid.ValidateWindow(c.Radius, c.CellSize, c.Dims); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	window := c.WindowSize()
	if c.HighWater <= window {
		return fmt.Errorf("%w: high water %d must exceed window size %d", ErrInvalidConfig, c.HighWater, window)
	}
	if c.LowWater < window {
		return fmt.Errorf("%w: low water %d must be at least window size %d", ErrInvalidConfig, c.LowWater, window)
	}
	if c.LowWater >= c.HighWater {
		return fmt.Errorf("%w: low water %d must be below high water %d", ErrInvalidConfig, c.LowWater, c.HighWater)
	}
	if c.FailurePolicy != SkipAndRetry && c.FailurePolicy != FailFast {
		return fmt.Errorf("%w: unknown failure policy %d", ErrInvalidConfig, c.FailurePolicy)
	}
	return nil
}

// State is the lifecycle state of a Manager.
type State int

const (
	StateUninitialized State = iota
	StateSteady
	StateMigrating
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateSteady:
		return "steady"
	case StateMigrating:
		return "migrating"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Focus supplies the position the window follows. The manager reads it as a
// snapshot once per poll.
type Focus interface {
	Position() mgl32.Vec3
}

// FocusFunc adapts a function to Focus.
type FocusFunc func() mgl32.Vec3

// Position calls f.
func (f FocusFunc) Position() mgl32.Vec3 { return f() }

// FocusPoint is a Focus updated from another goroutine, e.g. a client
// connection reading position messages.
type FocusPoint struct {
	mu  sync.RWMutex
	pos mgl32.Vec3
}

// NewFocusPoint returns a FocusPoint at pos.
func NewFocusPoint(pos mgl32.Vec3) *FocusPoint {
	return &FocusPoint{pos: pos}
}

// Set moves the focus.
func (f *FocusPoint) Set(pos mgl32.Vec3) {
	f.mu.Lock()
	f.pos = pos
	f.mu.Unlock()
}

// Position returns the current focus.
func (f *FocusPoint) Position() mgl32.Vec3 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.pos
}
