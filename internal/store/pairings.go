package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/pbaille/winewize/internal/domain"
)

// PairingFilter narrows ListPairings. Empty fields match everything.
type PairingFilter struct {
	SessionID    string
	RestaurantID string
	Limit        int
}

// SavePairings records pairing recommendations and fills in their IDs and timestamps
func (s *Store) SavePairings(ctx context.Context, pairings []domain.Pairing) ([]domain.Pairing, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := s.now()
	saved := make([]domain.Pairing, 0, len(pairings))
	for _, p := range pairings {
		p.ID = uuid.New().String()
		p.CreatedAt = now
		_, err := tx.ExecContext(ctx,
			`INSERT INTO pairings (id, restaurant_id, session_id, dish, wine, reason, score, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			p.ID, p.RestaurantID, p.SessionID, p.Dish, p.Wine, p.Reason, p.Score, p.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("insert pairing: %w", err)
		}
		saved = append(saved, p)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit pairings: %w", err)
	}
	return saved, nil
}

// ListPairings returns pairing history, most recent first
func (s *Store) ListPairings(ctx context.Context, f PairingFilter) ([]domain.Pairing, error) {
	var (
		where []string
		args  []any
	)
	if f.SessionID != "" {
		where = append(where, "session_id = ?")
		args = append(args, f.SessionID)
	}
	if f.RestaurantID != "" {
		where = append(where, "restaurant_id = ?")
		args = append(args, f.RestaurantID)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	query := "SELECT id, restaurant_id, session_id, dish, wine, reason, score, created_at FROM pairings"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, dish LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list pairings: %w", err)
	}
	defer rows.Close()

	var pairings []domain.Pairing
	for rows.Next() {
		var p domain.Pairing
		if err := rows.Scan(&p.ID, &p.RestaurantID, &p.SessionID, &p.Dish, &p.Wine, &p.Reason, &p.Score, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan pairing: %w", err)
		}
		pairings = append(pairings, p)
	}

	return pairings, rows.Err()
}

// CountPairings returns how many recommendations a session has received
func (s *Store) CountPairings(ctx context.Context, sessionID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM pairings WHERE session_id = ?",
		sessionID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count pairings: %w", err)
	}
	return n, nil
}
