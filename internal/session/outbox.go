package session

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/worldstream/server/internal/chunk"
	"github.com/worldstream/server/internal/compression"
	"github.com/worldstream/server/internal/grid"
	"github.com/worldstream/server/internal/performance"
	"github.com/worldstream/server/internal/resources"
	"github.com/worldstream/server/internal/scene"
)

// EventKind tells a client what to do with a chunk.
type EventKind string

const (
	EventAttach EventKind = "chunk_attach"
	EventDetach EventKind = "chunk_detach"
)

// Event is one change to the client's view of the world.
type Event struct {
	Kind     EventKind                       `json:"kind"`
	ChunkID  uint64                          `json:"chunk_id"`
	Location grid.Coord                      `json:"location"`
	Payload  *compression.CompressedGeometry `json:"payload,omitempty"`
}

// payload adapts an encoded chunk to resources.Resource for the loader.
type payload struct {
	geometry *compression.CompressedGeometry
}

func (payload) Dispose() {}

// outbox is the scene graph of a remote client. Attaching a chunk flattens
// its content on the streaming loop and compresses it on the loader; the
// attach event is only emitted when the loader result is drained. A chunk
// detached before its payload is ready never reaches the client.
type outbox struct {
	mu       sync.Mutex
	ctx      context.Context
	loader   *resources.Loader
	profiler *performance.Profiler

	pending map[uint64]context.CancelFunc
	sent    map[uint64]grid.Coord
	events  []Event

	encodeErrors int
}

func newOutbox(ctx context.Context, loader *resources.Loader, profiler *performance.Profiler) *outbox {
	return &outbox{
		ctx:      ctx,
		loader:   loader,
		profiler: profiler,
		pending:  make(map[uint64]context.CancelFunc),
		sent:     make(map[uint64]grid.Coord),
	}
}

// Attach implements scene.Graph.
func (o *outbox) Attach(c *chunk.Chunk) {
	content, ok := c.Content.(*scene.Content)
	if !ok {
		log.Printf("[Session] chunk %d at %v has unsupported content %T", c.ID, c.Location, c.Content)
		return
	}
	flat, err := compression.Flatten(content)
	if err != nil {
		o.mu.Lock()
		o.encodeErrors++
		o.mu.Unlock()
		log.Printf("[Session] failed to flatten chunk %d: %v", c.ID, err)
		return
	}

	ctx, cancel := context.WithCancel(o.ctx)
	o.mu.Lock()
	if prev, ok := o.pending[c.ID]; ok {
		prev()
	}
	o.pending[c.ID] = cancel
	o.mu.Unlock()

	id, loc := c.ID, c.Location
	o.loader.Load(ctx, fmt.Sprintf("chunk:%d", id), func(ctx context.Context) (resources.Resource, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		defer o.profiler.Start(performance.OpEncode).End()
		geometry, err := compression.FormatGeometry(flat)
		if err != nil {
			return nil, err
		}
		return payload{geometry: geometry}, nil
	}, func(res resources.Resource) {
		o.mu.Lock()
		defer o.mu.Unlock()
		delete(o.pending, id)
		o.sent[id] = loc
		o.events = append(o.events, Event{Kind: EventAttach, ChunkID: id, Location: loc, Payload: res.(payload).geometry})
	})
}

// Detach implements scene.Graph.
func (o *outbox) Detach(c *chunk.Chunk) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if cancel, ok := o.pending[c.ID]; ok {
		cancel()
		delete(o.pending, c.ID)
		return
	}
	if _, ok := o.sent[c.ID]; ok {
		delete(o.sent, c.ID)
		o.events = append(o.events, Event{Kind: EventDetach, ChunkID: c.ID, Location: c.Location})
	}
}

// reset forgets what the client has been sent and queues an attach for each
// of chunks. Chunks still being encoded keep their pending load.
func (o *outbox) reset(chunks []*chunk.Chunk) {
	o.mu.Lock()
	o.events = nil
	o.sent = make(map[uint64]grid.Coord)
	resend := make([]*chunk.Chunk, 0, len(chunks))
	for _, c := range chunks {
		if _, ok := o.pending[c.ID]; !ok {
			resend = append(resend, c)
		}
	}
	o.mu.Unlock()

	for _, c := range resend {
		o.Attach(c)
	}
}

// take drains the loader and returns the queued events. A chunk whose encode
// failed stays pending, and silent, until it is detached.
func (o *outbox) take() []Event {
	for _, r := range o.loader.Drain() {
		if r.Err != nil {
			o.mu.Lock()
			o.encodeErrors++
			o.mu.Unlock()
		}
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	events := o.events
	o.events = nil
	return events
}

func (o *outbox) counts() (pending, sent, failed int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.pending), len(o.sent), o.encodeErrors
}
