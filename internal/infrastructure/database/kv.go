package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// KVStore provides namespaced key/value persistence over the kv_store table.
//
// PinGrid registries keep their working state in memory and write JSON
// snapshots through a KVStore on every mutation. Keys are slash-delimited
// namespaces (e.g. "ownership/owners") so related snapshots group together
// when inspecting the database directly.
type KVStore struct {
	db *DB
}

// NewKVStore creates a key/value store backed by the given database.
func NewKVStore(db *DB) *KVStore {
	return &KVStore{db: db}
}

// Save upserts the value stored under key.
//
// The write is a single statement; SQLite's single-writer model makes it
// atomic with respect to concurrent readers.
func (s *KVStore) Save(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv_store (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`, key, value, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("saving %s: %w", key, err)
	}
	return nil
}

// Load returns the value stored under key.
// The second return value reports whether the key exists; a missing key
// is not an error.
func (s *KVStore) Load(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM kv_store WHERE key = ?", key,
	).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("loading %s: %w", key, err)
	}
	return value, true, nil
}

// Delete removes the value stored under key. Deleting a missing key is a no-op.
func (s *KVStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM kv_store WHERE key = ?", key)
	if err != nil {
		return fmt.Errorf("deleting %s: %w", key, err)
	}
	return nil
}

// Keys returns all keys with the given prefix, in lexical order.
func (s *KVStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT key FROM kv_store WHERE key LIKE ? || '%' ORDER BY key", prefix,
	)
	if err != nil {
		return nil, fmt.Errorf("listing keys under %s: %w", prefix, err)
	}
	defer rows.Close() //nolint:errcheck // Read-only cursor

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scanning key: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}
