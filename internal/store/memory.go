package store

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
)

// MemoryStore implements Store in memory for tests and ephemeral worlds.
// Records are kept encoded so callers never share slices with the store.
type MemoryStore struct {
	mu     sync.RWMutex
	graphs map[string][]byte
	chunks map[ChunkKey][]byte
	closed bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		graphs: make(map[string][]byte),
		chunks: make(map[ChunkKey][]byte),
	}
}

// SaveGraph stores or replaces a graph record.
func (s *MemoryStore) SaveGraph(ctx context.Context, rec GraphRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("graph ID is required")
	}
	b, err := encode(rec)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed
	}
	s.graphs[rec.ID] = b
	return nil
}

// LoadGraph returns a graph record.
func (s *MemoryStore) LoadGraph(ctx context.Context, id string) (*GraphRecord, error) {
	s.mu.RLock()
	b, ok := s.graphs[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("graph %s: %w", id, ErrNotFound)
	}

	var rec GraphRecord
	if err := decode(b, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// DeleteGraph removes a graph record. Deleting a missing graph is not an error.
func (s *MemoryStore) DeleteGraph(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed
	}
	delete(s.graphs, id)
	return nil
}

// ListGraphs returns all stored graph identities, sorted.
func (s *MemoryStore) ListGraphs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.graphs)), nil
}

// SaveChunk stores or replaces a chunk record.
func (s *MemoryStore) SaveChunk(ctx context.Context, rec ChunkRecord) error {
	b, err := encode(rec)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed
	}
	s.chunks[rec.Key] = b
	return nil
}

// LoadChunk returns a chunk record.
func (s *MemoryStore) LoadChunk(ctx context.Context, key ChunkKey) (*ChunkRecord, error) {
	s.mu.RLock()
	b, ok := s.chunks[key]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("chunk %s: %w", key, ErrNotFound)
	}

	var rec ChunkRecord
	if err := decode(b, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListChunks returns all stored chunk keys, sorted.
func (s *MemoryStore) ListChunks(ctx context.Context) ([]ChunkKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := slices.Collect(maps.Keys(s.chunks))
	sortChunkKeys(keys)
	return keys, nil
}

// Close marks the store closed. Records stay readable.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func sortChunkKeys(keys []ChunkKey) {
	slices.SortFunc(keys, func(a, b ChunkKey) int {
		return cmp.Or(cmp.Compare(a.X, b.X), cmp.Compare(a.Z, b.Z))
	})
}
