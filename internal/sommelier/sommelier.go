// Package sommelier asks an LLM to read menus and wine lists and to
// recommend pairings.
package sommelier

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pbaille/winewize/internal/domain"
)

// Extraction is what the model read from one image or page.
type Extraction struct {
	RestaurantName string            `json:"restaurant_name"`
	MenuItems      []domain.MenuItem `json:"menu_items"`
	Wines          []domain.Wine     `json:"wines"`
}

// PairingRequest is the input to Pair.
type PairingRequest struct {
	Dishes      []domain.MenuItem
	Wines       []domain.Wine
	Preferences string
}

// Recommendation pairs one dish with one wine from the supplied list.
type Recommendation struct {
	Dish   string  `json:"dish"`
	Wine   string  `json:"wine"`
	Reason string  `json:"reason"`
	Score  float64 `json:"score"`
}

// ExtractImage reads dishes and wines from a photo.
func (c *Client) ExtractImage(ctx context.Context, img Image) (*Extraction, error) {
	if len(img.Data) == 0 {
		return nil, errors.New("empty image")
	}
	if img.MediaType == "" {
		img.MediaType = "image/jpeg"
	}

	resp, err := c.complete(ctx, "extract_image", systemPrompt,
		imageBlock(img),
		textBlock(buildExtractionPrompt("photo")),
	)
	if err != nil {
		return nil, fmt.Errorf("api call: %w", err)
	}
	return parseExtraction(resp)
}

// ExtractText reads dishes and wines from page text, such as a wine list
// published on a restaurant's website.
func (c *Client) ExtractText(ctx context.Context, text string) (*Extraction, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("empty text")
	}

	resp, err := c.complete(ctx, "extract_text", systemPrompt,
		textBlock(buildExtractionPrompt("page")+"\n\nPage text:\n"+text),
	)
	if err != nil {
		return nil, fmt.Errorf("api call: %w", err)
	}
	return parseExtraction(resp)
}

// Pair recommends a wine for each dish. Recommendations naming a wine that
// is not in req.Wines are dropped.
func (c *Client) Pair(ctx context.Context, req PairingRequest) ([]Recommendation, error) {
	if len(req.Dishes) == 0 {
		return nil, errors.New("no dishes")
	}
	if len(req.Wines) == 0 {
		return nil, errors.New("no wines")
	}

	resp, err := c.complete(ctx, "pair", systemPrompt,
		textBlock(buildPairingPrompt(req.Dishes, req.Wines, req.Preferences)),
	)
	if err != nil {
		return nil, fmt.Errorf("api call: %w", err)
	}

	var parsed struct {
		Pairings []Recommendation `json:"pairings"`
	}
	if err := decodeJSON(resp, &parsed); err != nil {
		return nil, err
	}

	return filterRecommendations(parsed.Pairings, req.Wines), nil
}

func parseExtraction(resp string) (*Extraction, error) {
	var ext Extraction
	if err := decodeJSON(resp, &ext); err != nil {
		return nil, err
	}
	ext.RestaurantName = strings.TrimSpace(ext.RestaurantName)
	ext.MenuItems = cleanMenuItems(ext.MenuItems)
	ext.Wines = cleanWines(ext.Wines)
	return &ext, nil
}

var validCategories = map[string]bool{
	domain.CategoryStarter: true,
	domain.CategoryMain:    true,
	domain.CategoryDessert: true,
	domain.CategorySide:    true,
	domain.CategoryOther:   true,
}

var validStyles = map[string]bool{
	domain.StyleRed:       true,
	domain.StyleWhite:     true,
	domain.StyleRose:      true,
	domain.StyleSparkling: true,
	domain.StyleDessert:   true,
	domain.StyleFortified: true,
}

func cleanMenuItems(in []domain.MenuItem) []domain.MenuItem {
	out := make([]domain.MenuItem, 0, len(in))
	for _, it := range in {
		it.Name = strings.TrimSpace(it.Name)
		if it.Name == "" {
			continue
		}
		it.Category = strings.ToLower(strings.TrimSpace(it.Category))
		if !validCategories[it.Category] {
			it.Category = domain.CategoryOther
		}
		if it.Price < 0 {
			it.Price = 0
		}
		out = append(out, it)
	}
	return out
}

func cleanWines(in []domain.Wine) []domain.Wine {
	out := make([]domain.Wine, 0, len(in))
	for _, w := range in {
		w.Name = strings.TrimSpace(w.Name)
		if w.Name == "" {
			continue
		}
		w.Style = strings.ToLower(strings.TrimSpace(w.Style))
		if w.Style == "rosé" {
			w.Style = domain.StyleRose
		}
		if !validStyles[w.Style] {
			w.Style = ""
		}
		if w.Price < 0 {
			w.Price = 0
		}
		out = append(out, w)
	}
	return out
}

func filterRecommendations(recs []Recommendation, wines []domain.Wine) []Recommendation {
	known := make(map[string]string, len(wines))
	for _, w := range wines {
		known[domain.NormalizeName(w.Name)] = w.Name
	}

	out := make([]Recommendation, 0, len(recs))
	for _, r := range recs {
		name, ok := known[domain.NormalizeName(r.Wine)]
		if !ok || strings.TrimSpace(r.Dish) == "" {
			continue
		}
		r.Wine = name
		r.Dish = strings.TrimSpace(r.Dish)
		if r.Score < 0 {
			r.Score = 0
		}
		if r.Score > 1 {
			r.Score = 1
		}
		out = append(out, r)
	}
	return out
}
