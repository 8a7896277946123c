// Package store persists cell graphs and chunk contents.
//
// A world saves one GraphRecord per live graph and one ChunkRecord per
// loaded chunk. Graph records are keyed by graph identity; chunk records
// by chunk coordinates. Cell connections are stored as the remote cell's
// encoded locator so a graph can be rebuilt without loading any chunk.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

var errClosed = errors.New("store is closed")

// Backend names a Store implementation.
type Backend string

const (
	BackendMemory Backend = "memory"
	BackendSQLite Backend = "sqlite"
	BackendBolt   Backend = "bolt"
)

// ParseBackend parses a backend name, case-insensitively.
func ParseBackend(s string) (Backend, error) {
	b := Backend(strings.ToLower(strings.TrimSpace(s)))
	switch b {
	case BackendMemory, BackendSQLite, BackendBolt:
		return b, nil
	default:
		return "", fmt.Errorf("unknown store backend %q (valid: memory, sqlite, bolt)", s)
	}
}

// ConnectionRecord is one persisted edge, seen from the owning cell.
type ConnectionRecord struct {
	Locator []byte `json:"locator"`
	Mode    uint8  `json:"mode"`
}

// CellRecord is one persisted graph member.
type CellRecord struct {
	ID          string             `json:"id"`
	Kind        string             `json:"kind"`
	Modes       uint8              `json:"modes"`
	Locator     []byte             `json:"locator"`
	Directions  []uint8            `json:"directions,omitempty"`
	Connections []ConnectionRecord `json:"connections"`
}

// GraphRecord is one persisted graph.
type GraphRecord struct {
	ID    string       `json:"id"`
	Cells []CellRecord `json:"cells"`
}

// ChunkKey identifies a chunk column.
type ChunkKey struct {
	X int `json:"x"`
	Z int `json:"z"`
}

func (k ChunkKey) String() string { return fmt.Sprintf("%d,%d", k.X, k.Z) }

// CellRef is a cell as stored inside its chunk: enough to rebuild the cell
// and find it in its persisted graph.
type CellRef struct {
	ID         string  `json:"id"`
	Kind       string  `json:"kind"`
	Modes      uint8   `json:"modes"`
	Locator    []byte  `json:"locator"`
	Graph      string  `json:"graph"`
	Directions []uint8 `json:"directions,omitempty"`
}

// ContainerRecord is one persisted container.
type ContainerRecord struct {
	Kind  string    `json:"kind"`
	X     int       `json:"x"`
	Y     int       `json:"y"`
	Z     int       `json:"z"`
	Cells []CellRef `json:"cells"`
}

// PosRecord is a block position.
type PosRecord struct {
	X int `json:"x"`
	Y int `json:"y"`
	Z int `json:"z"`
}

// ChunkRecord is the persisted content of one chunk.
type ChunkRecord struct {
	Key        ChunkKey          `json:"key"`
	Containers []ContainerRecord `json:"containers"`
	Solids     []PosRecord       `json:"solids,omitempty"`
}

// Store persists graphs and chunks.
type Store interface {
	SaveGraph(ctx context.Context, rec GraphRecord) error
	// LoadGraph returns ErrNotFound if the graph was never saved or was deleted.
	LoadGraph(ctx context.Context, id string) (*GraphRecord, error)
	DeleteGraph(ctx context.Context, id string) error
	ListGraphs(ctx context.Context) ([]string, error)

	SaveChunk(ctx context.Context, rec ChunkRecord) error
	// LoadChunk returns ErrNotFound for chunks that were never saved.
	LoadChunk(ctx context.Context, key ChunkKey) (*ChunkRecord, error)
	ListChunks(ctx context.Context) ([]ChunkKey, error)

	Close() error
}

// Open opens the store for backend. path is ignored for the memory backend.
func Open(backend Backend, path string) (Store, error) {
	switch backend {
	case BackendMemory:
		return NewMemoryStore(), nil
	case BackendSQLite:
		return NewSQLiteStore(path)
	case BackendBolt:
		return NewBoltStore(path)
	default:
		return nil, fmt.Errorf("unknown store backend %q", backend)
	}
}
