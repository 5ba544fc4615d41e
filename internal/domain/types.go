package domain

import (
	"strings"
	"time"
)

// Menu item categories
const (
	CategoryStarter = "starter"
	CategoryMain    = "main"
	CategoryDessert = "dessert"
	CategorySide    = "side"
	CategoryOther   = "other"
)

// Wine styles
const (
	StyleRed       = "red"
	StyleWhite     = "white"
	StyleRose      = "rose"
	StyleSparkling = "sparkling"
	StyleDessert   = "dessert"
	StyleFortified = "fortified"
)

// Restaurant groups the menu and wine list captured for one venue
type Restaurant struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// MenuItem is a dish extracted from a menu photo
type MenuItem struct {
	ID           string  `json:"id,omitempty"`
	RestaurantID string  `json:"restaurant_id,omitempty"`
	Name         string  `json:"name" validate:"required"`
	Description  string  `json:"description,omitempty"`
	Price        float64 `json:"price,omitempty"`
	Category     string  `json:"category,omitempty"`
}

// Wine is a bottle or glass extracted from a wine list
type Wine struct {
	ID           string  `json:"id,omitempty"`
	RestaurantID string  `json:"restaurant_id,omitempty"`
	Name         string  `json:"name" validate:"required"`
	Producer     string  `json:"producer,omitempty"`
	Vintage      string  `json:"vintage,omitempty"`
	Region       string  `json:"region,omitempty"`
	Varietal     string  `json:"varietal,omitempty"`
	Style        string  `json:"style,omitempty"`
	Price        float64 `json:"price,omitempty"`
}

// Identity returns the normalized name+vintage used to de-duplicate wines
func (w Wine) Identity() string {
	id := NormalizeName(w.Name)
	if v := strings.TrimSpace(w.Vintage); v != "" {
		id += "|" + v
	}
	return id
}

// Pairing is a persisted recommendation of one wine for one dish
type Pairing struct {
	ID           string    `json:"id"`
	RestaurantID string    `json:"restaurant_id,omitempty"`
	SessionID    string    `json:"session_id"`
	Dish         string    `json:"dish"`
	Wine         string    `json:"wine"`
	Reason       string    `json:"reason"`
	Score        float64   `json:"score"`
	CreatedAt    time.Time `json:"created_at"`
}

// SessionBundle is the transient result of one processing run
type SessionBundle struct {
	MenuItems      []MenuItem `json:"menuItems"`
	Wines          []Wine     `json:"wines"`
	RestaurantID   string     `json:"restaurantId,omitempty"`
	RestaurantName string     `json:"restaurantName,omitempty"`
	Timestamp      time.Time  `json:"timestamp"`
}

// NormalizeName lowercases and collapses whitespace for comparisons
func NormalizeName(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
