package store

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "github.com/coreos/bbolt"
)

var (
	graphsBucket = []byte("graphs")
	chunksBucket = []byte("chunks")
)

// BoltStore implements Store on a bbolt key/value file.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens or creates the bolt file at path.
func NewBoltStore(path string) (*BoltStore, error) {
	if path == "" {
		return nil, fmt.Errorf("bolt store path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt file: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{graphsBucket, chunksBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// chunkKeyBytes encodes a chunk key so that byte order matches (x, z) order.
func chunkKeyBytes(k ChunkKey) []byte {
	b := make([]byte, 16)
	binary.BigEndian.PutUint64(b[:8], uint64(k.X)^(1<<63))
	binary.BigEndian.PutUint64(b[8:], uint64(k.Z)^(1<<63))
	return b
}

func chunkKeyFromBytes(b []byte) (ChunkKey, error) {
	if len(b) != 16 {
		return ChunkKey{}, fmt.Errorf("invalid chunk key length %d", len(b))
	}
	return ChunkKey{
		X: int(int64(binary.BigEndian.Uint64(b[:8]) ^ (1 << 63))),
		Z: int(int64(binary.BigEndian.Uint64(b[8:]) ^ (1 << 63))),
	}, nil
}

// SaveGraph stores or replaces a graph record.
func (s *BoltStore) SaveGraph(ctx context.Context, rec GraphRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("graph ID is required")
	}
	data, err := encode(rec)
	if err != nil {
		return err
	}
	return s.update(func(tx *bolt.Tx) error {
		return tx.Bucket(graphsBucket).Put([]byte(rec.ID), data)
	})
}

// LoadGraph returns a graph record.
func (s *BoltStore) LoadGraph(ctx context.Context, id string) (*GraphRecord, error) {
	var rec GraphRecord
	err := s.view(func(tx *bolt.Tx) error {
		data := tx.Bucket(graphsBucket).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("graph %s: %w", id, ErrNotFound)
		}
		return decode(data, &rec)
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// DeleteGraph removes a graph record.
func (s *BoltStore) DeleteGraph(ctx context.Context, id string) error {
	return s.update(func(tx *bolt.Tx) error {
		return tx.Bucket(graphsBucket).Delete([]byte(id))
	})
}

// ListGraphs returns all stored graph identities in key order.
func (s *BoltStore) ListGraphs(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.view(func(tx *bolt.Tx) error {
		return tx.Bucket(graphsBucket).ForEach(func(k, _ []byte) error {
			ids = append(ids, string(k))
			return nil
		})
	})
	return ids, err
}

// SaveChunk stores or replaces a chunk record.
func (s *BoltStore) SaveChunk(ctx context.Context, rec ChunkRecord) error {
	data, err := encode(rec)
	if err != nil {
		return err
	}
	return s.update(func(tx *bolt.Tx) error {
		return tx.Bucket(chunksBucket).Put(chunkKeyBytes(rec.Key), data)
	})
}

// LoadChunk returns a chunk record.
func (s *BoltStore) LoadChunk(ctx context.Context, key ChunkKey) (*ChunkRecord, error) {
	var rec ChunkRecord
	err := s.view(func(tx *bolt.Tx) error {
		data := tx.Bucket(chunksBucket).Get(chunkKeyBytes(key))
		if data == nil {
			return fmt.Errorf("chunk %s: %w", key, ErrNotFound)
		}
		return decode(data, &rec)
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListChunks returns all stored chunk keys ordered by (x, z).
func (s *BoltStore) ListChunks(ctx context.Context) ([]ChunkKey, error) {
	var keys []ChunkKey
	err := s.view(func(tx *bolt.Tx) error {
		return tx.Bucket(chunksBucket).ForEach(func(k, _ []byte) error {
			key, err := chunkKeyFromBytes(k)
			if err != nil {
				return err
			}
			keys = append(keys, key)
			return nil
		})
	})
	return keys, err
}

func (s *BoltStore) update(fn func(*bolt.Tx) error) error { return boltErr(s.db.Update(fn)) }

func (s *BoltStore) view(fn func(*bolt.Tx) error) error { return boltErr(s.db.View(fn)) }

func boltErr(err error) error {
	if errors.Is(err, bolt.ErrDatabaseNotOpen) {
		return errClosed
	}
	return err
}

// Close closes the bolt file. Later calls fail.
func (s *BoltStore) Close() error {
	return s.db.Close()
}
