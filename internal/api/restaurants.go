package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/pbaille/winewize/internal/domain"
	"github.com/pbaille/winewize/internal/store"
	apperrors "github.com/pbaille/winewize/pkg/errors"
)

func pageParams(r *http.Request, defaultLimit int) (limit, offset int) {
	limit = defaultLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			limit = min(n, 200)
		}
	}
	if o := r.URL.Query().Get("offset"); o != "" {
		if n, err := strconv.Atoi(o); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}

func (s *Server) listRestaurants(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r, 20)

	restaurants, err := s.store.ListRestaurants(r.Context(), limit, offset)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if restaurants == nil {
		restaurants = []domain.Restaurant{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"restaurants": restaurants,
		"limit":       limit,
		"offset":      offset,
	})
}

// RestaurantDetail is a restaurant with its current menu and wine list
type RestaurantDetail struct {
	Restaurant *domain.Restaurant `json:"restaurant"`
	MenuItems  []domain.MenuItem  `json:"menu_items"`
	Wines      []domain.Wine      `json:"wines"`
}

func (s *Server) getRestaurant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	restaurant, err := s.store.GetRestaurant(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, r, apperrors.ErrNotFound.WithMessage("restaurant not found"))
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	items, err := s.store.ListMenuItems(ctx, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	wines, err := s.store.ListWines(ctx, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if items == nil {
		items = []domain.MenuItem{}
	}
	if wines == nil {
		wines = []domain.Wine{}
	}

	writeJSON(w, http.StatusOK, RestaurantDetail{
		Restaurant: restaurant,
		MenuItems:  items,
		Wines:      wines,
	})
}
