package chunk

import (
	"sync/atomic"

	"github.com/worldstream/server/internal/grid"
)

// Content is the renderable payload generated for a cell.
// It is owned exclusively by its chunk and disposed when the chunk is evicted.
type Content interface {
	Dispose()
}

// Chunk is one unit of generated world content keyed by a single grid cell.
type Chunk struct {
	ID       uint64
	Location grid.Coord
	Content  Content
}

var lastID atomic.Uint64

// New creates a chunk with a fresh process-unique ID.
func New(loc grid.Coord, content Content) *Chunk {
	return &Chunk{
		ID:       lastID.Add(1),
		Location: loc,
		Content:  content,
	}
}

// Dispose releases the chunk's content. Safe to call on a chunk without content.
func (c *Chunk) Dispose() {
	if c == nil || c.Content == nil {
		return
	}
	c.Content.Dispose()
}
