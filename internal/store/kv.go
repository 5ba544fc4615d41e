package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// GetItem reads a durable key. It satisfies session.Storage.
func (s *Store) GetItem(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM kv WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get item: %w", err)
	}
	return value, true, nil
}

// SetItem writes a durable key, overwriting any previous value.
func (s *Store) SetItem(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO kv (key, value, updated_at) VALUES (?, ?, ?)",
		key, value, s.now(),
	)
	if err != nil {
		return fmt.Errorf("set item: %w", err)
	}
	return nil
}

// RemoveItem deletes a durable key. Removing a missing key is not an error.
func (s *Store) RemoveItem(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM kv WHERE key = ?", key); err != nil {
		return fmt.Errorf("remove item: %w", err)
	}
	return nil
}
