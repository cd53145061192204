package scene

import (
	"sync"

	"github.com/worldstream/server/internal/chunk"
)

// Graph is the render host a streaming manager attaches chunk content to.
type Graph interface {
	Attach(c *chunk.Chunk)
	Detach(c *chunk.Chunk)
}

// MemoryGraph is an in-process Graph that records what is attached.
// It stands in for a client when streaming headless.
type MemoryGraph struct {
	mu       sync.Mutex
	attached map[uint64]*chunk.Chunk
	attaches int
	detaches int
}

// NewMemoryGraph creates an empty graph.
func NewMemoryGraph() *MemoryGraph {
	return &MemoryGraph{attached: make(map[uint64]*chunk.Chunk)}
}

// Attach adds the chunk to the graph.
func (g *MemoryGraph) Attach(c *chunk.Chunk) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.attached[c.ID] = c
	g.attaches++
}

// Detach removes the chunk from the graph.
func (g *MemoryGraph) Detach(c *chunk.Chunk) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.attached, c.ID)
	g.detaches++
}

// IsAttached reports whether the chunk is currently in the graph.
func (g *MemoryGraph) IsAttached(c *chunk.Chunk) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.attached[c.ID]
	return ok
}

// Len returns the number of attached chunks.
func (g *MemoryGraph) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.attached)
}

// Calls returns the total number of Attach and Detach calls seen.
func (g *MemoryGraph) Calls() (attaches, detaches int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.attaches, g.detaches
}
