package chunk

import (
	"sort"

	"github.com/worldstream/server/internal/grid"
)

type entry struct {
	chunk *Chunk
	seq   uint64
}

// Store holds at most one resident chunk per grid coordinate.
// It is not safe for concurrent use; a store belongs to one streaming loop.
type Store struct {
	entries map[uint64]entry
	nextSeq uint64
}

// NewStore creates an empty chunk store.
func NewStore() *Store {
	return &Store{
		entries: make(map[uint64]entry, 64),
	}
}

// Add inserts c at c.Location. With overwrite=false an occupied coordinate is
// left untouched and Add returns false. Replacing a chunk keeps the count.
func (s *Store) Add(c *Chunk, overwrite bool) bool {
	key := c.Location.Key()
	if _, exists := s.entries[key]; exists && !overwrite {
		return false
	}
	s.nextSeq++
	s.entries[key] = entry{chunk: c, seq: s.nextSeq}
	return true
}

// Get looks up the chunk resident at loc.
func (s *Store) Get(loc grid.Coord) (*Chunk, bool) {
	e, ok := s.entries[loc.Key()]
	if !ok {
		return nil, false
	}
	return e.chunk, true
}

// Has reports whether a chunk is resident at loc.
func (s *Store) Has(loc grid.Coord) bool {
	_, ok := s.entries[loc.Key()]
	return ok
}

// Remove deletes the chunk at loc and returns it. The caller owns disposal.
func (s *Store) Remove(loc grid.Coord) (*Chunk, bool) {
	key := loc.Key()
	e, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	delete(s.entries, key)
	return e.chunk, true
}

// Len returns the number of resident chunks.
func (s *Store) Len() int {
	return len(s.entries)
}

// Seq returns the insertion sequence of the chunk at loc, or 0.
func (s *Store) Seq(loc grid.Coord) uint64 {
	return s.entries[loc.Key()].seq
}

// Chunks returns every resident chunk in insertion order.
func (s *Store) Chunks() []*Chunk {
	ordered := make([]entry, 0, len(s.entries))
	for _, e := range s.entries {
		ordered = append(ordered, e)
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].seq < ordered[j].seq
	})

	chunks := make([]*Chunk, len(ordered))
	for i, e := range ordered {
		chunks[i] = e.chunk
	}
	return chunks
}

// Each calls fn for every resident chunk in insertion order until fn returns false.
func (s *Store) Each(fn func(*Chunk) bool) {
	for _, c := range s.Chunks() {
		if !fn(c) {
			return
		}
	}
}

// Clear removes every chunk and returns them in insertion order.
func (s *Store) Clear() []*Chunk {
	chunks := s.Chunks()
	s.entries = make(map[uint64]entry, 64)
	return chunks
}
