package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"hftengine/pkg/types"
)

// SQLiteStore persists positions in a single embedded SQLite file via the
// pure-Go modernc.org/sqlite driver, trading the JSON store's one-file-
// per-market layout for a single durable file with transactional writes.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (creating if absent) a SQLite database at path and
// ensures its schema exists.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS positions (
			condition_id TEXT PRIMARY KEY,
			payload      TEXT NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create positions table: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SavePosition upserts pos for conditionID.
func (s *SQLiteStore) SavePosition(conditionID string, pos types.TrackedPosition) error {
	data, err := json.Marshal(pos)
	if err != nil {
		return fmt.Errorf("marshal position: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO positions (condition_id, payload) VALUES (?, ?)
		ON CONFLICT(condition_id) DO UPDATE SET payload = excluded.payload
	`, conditionID, string(data))
	if err != nil {
		return fmt.Errorf("upsert position: %w", err)
	}
	return nil
}

// LoadPosition restores conditionID's position. Returns nil, nil if no
// saved position exists.
func (s *SQLiteStore) LoadPosition(conditionID string) (*types.TrackedPosition, error) {
	var payload string
	err := s.db.QueryRow(`SELECT payload FROM positions WHERE condition_id = ?`, conditionID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query position: %w", err)
	}

	var pos types.TrackedPosition
	if err := json.Unmarshal([]byte(payload), &pos); err != nil {
		return nil, fmt.Errorf("unmarshal position: %w", err)
	}
	return &pos, nil
}

// DeletePosition removes conditionID's saved position, if any.
func (s *SQLiteStore) DeletePosition(conditionID string) error {
	if _, err := s.db.Exec(`DELETE FROM positions WHERE condition_id = ?`, conditionID); err != nil {
		return fmt.Errorf("delete position: %w", err)
	}
	return nil
}
