package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite" // SQLite driver
)

// SQLiteStore implements Store on a single SQLite database file.
type SQLiteStore struct {
	mu sync.RWMutex
	db *sql.DB
}

// NewSQLiteStore opens or creates the database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("sqlite store path is required")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite works best with single writer

	if err := InitSchema(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// SaveGraph stores or replaces a graph record.
func (s *SQLiteStore) SaveGraph(ctx context.Context, rec GraphRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("graph ID is required")
	}
	data, err := encode(rec)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return errClosed
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO graphs (id, cell_count, data, updated_at) VALUES (?, ?, ?, datetime('now'))
		ON CONFLICT(id) DO UPDATE SET cell_count = excluded.cell_count, data = excluded.data, updated_at = excluded.updated_at`,
		rec.ID, len(rec.Cells), data)
	if err != nil {
		return fmt.Errorf("failed to save graph %s: %w", rec.ID, err)
	}
	return nil
}

// LoadGraph returns a graph record.
func (s *SQLiteStore) LoadGraph(ctx context.Context, id string) (*GraphRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, errClosed
	}

	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM graphs WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("graph %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load graph %s: %w", id, err)
	}

	var rec GraphRecord
	if err := decode(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// DeleteGraph removes a graph record.
func (s *SQLiteStore) DeleteGraph(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return errClosed
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM graphs WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete graph %s: %w", id, err)
	}
	return nil
}

// ListGraphs returns all stored graph identities, sorted.
func (s *SQLiteStore) ListGraphs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, errClosed
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id FROM graphs ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list graphs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan graph id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SaveChunk stores or replaces a chunk record.
func (s *SQLiteStore) SaveChunk(ctx context.Context, rec ChunkRecord) error {
	data, err := encode(rec)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return errClosed
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO chunks (x, z, data, updated_at) VALUES (?, ?, ?, datetime('now'))
		ON CONFLICT(x, z) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		rec.Key.X, rec.Key.Z, data)
	if err != nil {
		return fmt.Errorf("failed to save chunk %s: %w", rec.Key, err)
	}
	return nil
}

// LoadChunk returns a chunk record.
func (s *SQLiteStore) LoadChunk(ctx context.Context, key ChunkKey) (*ChunkRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, errClosed
	}

	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM chunks WHERE x = ? AND z = ?`, key.X, key.Z).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("chunk %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load chunk %s: %w", key, err)
	}

	var rec ChunkRecord
	if err := decode(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListChunks returns all stored chunk keys, sorted.
func (s *SQLiteStore) ListChunks(ctx context.Context) ([]ChunkKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, errClosed
	}

	rows, err := s.db.QueryContext(ctx, `SELECT x, z FROM chunks ORDER BY x, z`)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}
	defer rows.Close()

	var keys []ChunkKey
	for rows.Next() {
		var k ChunkKey
		if err := rows.Scan(&k.X, &k.Z); err != nil {
			return nil, fmt.Errorf("failed to scan chunk key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
