package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/pbaille/winewize/internal/domain"
)

//go:embed schema.sql
var schema string

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// Store handles database operations
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// New opens (and migrates) the SQLite database at dbPath
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetOrCreateRestaurant finds a restaurant by name (case-insensitive) or creates it.
// Concurrent callers with the same new name all get the row that won the insert.
func (s *Store) GetOrCreateRestaurant(ctx context.Context, name string) (*domain.Restaurant, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("restaurant name is required")
	}

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO restaurants (id, name, created_at) VALUES (?, ?, ?) ON CONFLICT DO NOTHING",
		uuid.New().String(), name, s.now(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert restaurant: %w", err)
	}

	var r domain.Restaurant
	err = s.db.QueryRowContext(ctx,
		"SELECT id, name, created_at FROM restaurants WHERE name = ? COLLATE NOCASE",
		name,
	).Scan(&r.ID, &r.Name, &r.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("find restaurant: %w", err)
	}
	return &r, nil
}

// GetRestaurant retrieves a restaurant by ID
func (s *Store) GetRestaurant(ctx context.Context, id string) (*domain.Restaurant, error) {
	var r domain.Restaurant
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, created_at FROM restaurants WHERE id = ?",
		id,
	).Scan(&r.ID, &r.Name, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get restaurant: %w", err)
	}
	return &r, nil
}

// ListRestaurants returns restaurants, most recent first
func (s *Store) ListRestaurants(ctx context.Context, limit, offset int) ([]domain.Restaurant, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, created_at FROM restaurants ORDER BY created_at DESC LIMIT ? OFFSET ?",
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list restaurants: %w", err)
	}
	defer rows.Close()

	var restaurants []domain.Restaurant
	for rows.Next() {
		var r domain.Restaurant
		if err := rows.Scan(&r.ID, &r.Name, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan restaurant: %w", err)
		}
		restaurants = append(restaurants, r)
	}

	return restaurants, rows.Err()
}

// SaveMenu replaces a restaurant's menu items and wines. The returned slices
// carry the generated IDs.
func (s *Store) SaveMenu(ctx context.Context, restaurantID string, items []domain.MenuItem, wines []domain.Wine) ([]domain.MenuItem, []domain.Wine, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM menu_items WHERE restaurant_id = ?", restaurantID); err != nil {
		return nil, nil, fmt.Errorf("clear menu items: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM wines WHERE restaurant_id = ?", restaurantID); err != nil {
		return nil, nil, fmt.Errorf("clear wines: %w", err)
	}

	savedItems := make([]domain.MenuItem, 0, len(items))
	for _, it := range items {
		it.ID = uuid.New().String()
		it.RestaurantID = restaurantID
		if it.Category == "" {
			it.Category = domain.CategoryOther
		}
		_, err := tx.ExecContext(ctx,
			"INSERT INTO menu_items (id, restaurant_id, name, description, price, category) VALUES (?, ?, ?, ?, ?, ?)",
			it.ID, it.RestaurantID, it.Name, it.Description, it.Price, it.Category,
		)
		if err != nil {
			return nil, nil, fmt.Errorf("insert menu item: %w", err)
		}
		savedItems = append(savedItems, it)
	}

	savedWines := make([]domain.Wine, 0, len(wines))
	for _, w := range wines {
		w.ID = uuid.New().String()
		w.RestaurantID = restaurantID
		_, err := tx.ExecContext(ctx,
			`INSERT INTO wines (id, restaurant_id, name, producer, vintage, region, varietal, style, price)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			w.ID, w.RestaurantID, w.Name, w.Producer, w.Vintage, w.Region, w.Varietal, w.Style, w.Price,
		)
		if err != nil {
			return nil, nil, fmt.Errorf("insert wine: %w", err)
		}
		savedWines = append(savedWines, w)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("commit menu: %w", err)
	}
	return savedItems, savedWines, nil
}

// ListMenuItems returns a restaurant's dishes
func (s *Store) ListMenuItems(ctx context.Context, restaurantID string) ([]domain.MenuItem, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, restaurant_id, name, description, price, category FROM menu_items WHERE restaurant_id = ? ORDER BY category, name",
		restaurantID,
	)
	if err != nil {
		return nil, fmt.Errorf("list menu items: %w", err)
	}
	defer rows.Close()

	var items []domain.MenuItem
	for rows.Next() {
		var it domain.MenuItem
		if err := rows.Scan(&it.ID, &it.RestaurantID, &it.Name, &it.Description, &it.Price, &it.Category); err != nil {
			return nil, fmt.Errorf("scan menu item: %w", err)
		}
		items = append(items, it)
	}

	return items, rows.Err()
}

// ListWines returns a restaurant's wine list
func (s *Store) ListWines(ctx context.Context, restaurantID string) ([]domain.Wine, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, restaurant_id, name, producer, vintage, region, varietal, style, price
		 FROM wines WHERE restaurant_id = ? ORDER BY style, name`,
		restaurantID,
	)
	if err != nil {
		return nil, fmt.Errorf("list wines: %w", err)
	}
	defer rows.Close()

	var wines []domain.Wine
	for rows.Next() {
		var w domain.Wine
		if err := rows.Scan(&w.ID, &w.RestaurantID, &w.Name, &w.Producer, &w.Vintage, &w.Region, &w.Varietal, &w.Style, &w.Price); err != nil {
			return nil, fmt.Errorf("scan wine: %w", err)
		}
		wines = append(wines, w)
	}

	return wines, rows.Err()
}
