// Package store persists session snapshots in a local sqlite database:
// one JSON row per session, kept in dock order.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"codesquad/internal/logging"
	"codesquad/internal/session"

	_ "modernc.org/sqlite"
)

// SnapshotStore is a sqlite-backed snapshot store.
type SnapshotStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// Open creates or opens the snapshot database at path.
func Open(path string) (*SnapshotStore, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &SnapshotStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	logging.Get(logging.CategoryStore).Info("snapshot store opened at %s", path)
	return s, nil
}

func (s *SnapshotStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			position   INTEGER PRIMARY KEY,
			session_id TEXT NOT NULL,
			snapshot   TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to init schema: %w", err)
	}
	return nil
}

// SaveAll replaces the stored snapshot set with the given one, preserving
// order.
func (s *SnapshotStore) SaveAll(snapshots []session.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	timer := logging.StartTimer(logging.CategoryStore, "SaveAll")
	defer timer.Stop()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM sessions`); err != nil {
		return fmt.Errorf("failed to clear sessions: %w", err)
	}

	for i, snap := range snapshots {
		data, err := json.Marshal(snap)
		if err != nil {
			return fmt.Errorf("failed to marshal snapshot %s: %w", snap.ID, err)
		}
		if _, err := tx.Exec(
			`INSERT INTO sessions (position, session_id, snapshot) VALUES (?, ?, ?)`,
			i, snap.ID, string(data),
		); err != nil {
			return fmt.Errorf("failed to insert snapshot %s: %w", snap.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// Load returns the stored snapshots in order. Malformed snapshot JSON
// degrades the whole set to an empty list rather than failing startup.
func (s *SnapshotStore) Load() ([]session.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT snapshot FROM sessions ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var snapshots []session.Snapshot
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		var snap session.Snapshot
		if err := json.Unmarshal([]byte(data), &snap); err != nil {
			logging.Get(logging.CategoryStore).Warn("malformed snapshot, discarding stored sessions: %v", err)
			return []session.Snapshot{}, nil
		}
		snapshots = append(snapshots, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read sessions: %w", err)
	}
	return snapshots, nil
}

// Close closes the database.
func (s *SnapshotStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
