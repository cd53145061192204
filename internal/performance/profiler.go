package performance

import (
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"
)

// Operation names recorded by the streaming pipeline.
const (
	OpPoll     = "stream.poll"
	OpGenerate = "stream.generate"
	OpEvict    = "stream.evict"
	OpChunk    = "stream.chunk"
	OpEncode   = "chunk.encode"
)

// Profiler accumulates timings per named operation. A nil *Profiler is valid
// and records nothing, so callers never need to guard on it.
type Profiler struct {
	mu        sync.Mutex
	metrics   map[string]*Metric
	enabled   bool
	startTime time.Time
}

// Metric holds statistics for one operation.
type Metric struct {
	Name      string        `json:"name"`
	Count     int64         `json:"count"`
	TotalTime time.Duration `json:"total_ns"`
	MinTime   time.Duration `json:"min_ns"`
	MaxTime   time.Duration `json:"max_ns"`
	LastTime  time.Duration `json:"last_ns"`
	LastCall  time.Time     `json:"last_call"`
}

// AverageTime returns the mean duration, or zero when nothing was recorded.
func (m Metric) AverageTime() time.Duration {
	if m.Count == 0 {
		return 0
	}
	return m.TotalTime / time.Duration(m.Count)
}

// Timer measures a single operation started with Start.
type Timer struct {
	profiler *Profiler
	name     string
	start    time.Time
}

// NewProfiler creates a profiler.
func NewProfiler(enabled bool) *Profiler {
	return &Profiler{
		metrics:   make(map[string]*Metric),
		enabled:   enabled,
		startTime: time.Now(),
	}
}

// Start begins timing name. It returns nil when profiling is off.
func (p *Profiler) Start(name string) *Timer {
	if !p.IsEnabled() {
		return nil
	}
	return &Timer{profiler: p, name: name, start: time.Now()}
}

// End records the elapsed time. Safe on a nil timer.
func (t *Timer) End() time.Duration {
	if t == nil {
		return 0
	}
	d := time.Since(t.start)
	t.profiler.Record(t.name, d)
	return d
}

// Record adds one sample for name.
func (p *Profiler) Record(name string, d time.Duration) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.enabled {
		return
	}

	m, ok := p.metrics[name]
	if !ok {
		m = &Metric{Name: name, MinTime: d, MaxTime: d}
		p.metrics[name] = m
	}
	m.Count++
	m.TotalTime += d
	m.LastTime = d
	m.LastCall = time.Now()
	m.MinTime = min(m.MinTime, d)
	m.MaxTime = max(m.MaxTime, d)
}

// Metric returns a copy of the named metric.
func (p *Profiler) Metric(name string) (Metric, bool) {
	if p == nil {
		return Metric{}, false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	m, ok := p.metrics[name]
	if !ok {
		return Metric{}, false
	}
	return *m, true
}

// Snapshot returns copies of all metrics sorted by name.
func (p *Profiler) Snapshot() []Metric {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]Metric, 0, len(p.metrics))
	for _, m := range p.metrics {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Reset clears all metrics.
func (p *Profiler) Reset() {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.metrics = make(map[string]*Metric)
	p.startTime = time.Now()
}

// Report renders a fixed-width table of all metrics.
func (p *Profiler) Report() string {
	metrics := p.Snapshot()
	if len(metrics) == 0 {
		return "No performance metrics recorded"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "\n=== Streaming Profile (since %s) ===\n", p.started().Format(time.RFC3339))
	fmt.Fprintf(&b, "%-24s %8s %10s %10s %10s %10s\n", "Operation", "Count", "Avg", "Min", "Max", "Last")
	b.WriteString(strings.Repeat("-", 78) + "\n")
	for _, m := range metrics {
		fmt.Fprintf(&b, "%-24s %8d %10s %10s %10s %10s\n",
			m.Name,
			m.Count,
			m.AverageTime().Round(time.Microsecond),
			m.MinTime.Round(time.Microsecond),
			m.MaxTime.Round(time.Microsecond),
			m.LastTime.Round(time.Microsecond),
		)
	}
	return b.String()
}

// LogReport logs the report.
func (p *Profiler) LogReport() {
	log.Print(p.Report())
}

// Summary is the JSON form of a profile.
type Summary struct {
	StartTime time.Time `json:"start_time"`
	Metrics   []Metric  `json:"metrics"`
}

// Summary returns the current profile.
func (p *Profiler) Summary() Summary {
	return Summary{StartTime: p.started(), Metrics: p.Snapshot()}
}

// JSONReport encodes Summary as indented JSON.
func (p *Profiler) JSONReport() ([]byte, error) {
	return json.MarshalIndent(p.Summary(), "", "  ")
}

// Enable turns recording on.
func (p *Profiler) Enable() { p.setEnabled(true) }

// Disable turns recording off.
func (p *Profiler) Disable() { p.setEnabled(false) }

// IsEnabled reports whether samples are recorded.
func (p *Profiler) IsEnabled() bool {
	if p == nil {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enabled
}

func (p *Profiler) setEnabled(on bool) {
	if p == nil {
		return
	}
	p.mu.Lock()
	p.enabled = on
	p.mu.Unlock()
}

func (p *Profiler) started() time.Time {
	if p == nil {
		return time.Time{}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.startTime
}
