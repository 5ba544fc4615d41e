// Package pairing produces wine recommendations for selected dishes, reusing
// recent identical answers from the pairing cache.
package pairing

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pbaille/winewize/internal/cache"
	"github.com/pbaille/winewize/internal/domain"
	"github.com/pbaille/winewize/internal/sommelier"
	apperrors "github.com/pbaille/winewize/pkg/errors"
)

// Advisor generates recommendations; *sommelier.Client implements it.
type Advisor interface {
	Pair(ctx context.Context, req sommelier.PairingRequest) ([]sommelier.Recommendation, error)
}

// WineResolver finds the current session's wines; *session.Manager implements it.
type WineResolver interface {
	Wines(ctx context.Context, sessionID string, prop []domain.Wine) ([]domain.Wine, string)
}

// Recorder persists pairing history; *store.Store implements it.
type Recorder interface {
	SavePairings(ctx context.Context, pairings []domain.Pairing) ([]domain.Pairing, error)
}

// Request asks for pairings for the selected dishes.
type Request struct {
	SessionID    string            `json:"-"`
	RestaurantID string            `json:"restaurant_id,omitempty"`
	Dishes       []domain.MenuItem `json:"dishes" validate:"required,min=1,max=20,dive"`
	Wines        []domain.Wine     `json:"wines,omitempty" validate:"omitempty,dive"`
	Preferences  string            `json:"preferences,omitempty" validate:"max=500"`
}

// Result is what Recommend returns and what the cache stores.
type Result struct {
	Pairings    []sommelier.Recommendation `json:"pairings"`
	WineSource  string                     `json:"wine_source"`
	WineCount   int                        `json:"wine_count"`
	Cached      bool                       `json:"cached"`
	GeneratedAt time.Time                  `json:"generated_at"`
}

// Service wires the fallback chain, the cache and the advisor together.
type Service struct {
	advisor  Advisor
	wines    WineResolver
	cache    cache.Cache
	recorder Recorder
	now      func() time.Time
	log      *zap.Logger
}

// NewService creates a Service. recorder may be nil.
func NewService(advisor Advisor, wines WineResolver, c cache.Cache, recorder Recorder, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		advisor:  advisor,
		wines:    wines,
		cache:    c,
		recorder: recorder,
		now:      time.Now,
		log:      log,
	}
}

// Recommend returns pairings for req. Identical requests within the cache
// TTL are answered from the cache without calling the advisor.
func (s *Service) Recommend(ctx context.Context, req Request) (*Result, error) {
	dishes := selectedDishes(req.Dishes)
	if len(dishes) == 0 {
		return nil, apperrors.ErrNoDishes
	}

	wines, source := s.wines.Wines(ctx, req.SessionID, req.Wines)
	if len(wines) == 0 {
		return nil, apperrors.ErrNoWines
	}

	key := requestKey(dishes, wines, req.Preferences)

	var cached Result
	if cache.GetJSON(ctx, s.cache, cache.NamespacePairings, key, &cached) {
		s.log.Debug("pairing cache hit", zap.String("session", req.SessionID))
		cached.Cached = true
		cached.WineSource = source
		return &cached, nil
	}

	if s.advisor == nil {
		return nil, apperrors.ErrNotConfigured
	}

	recs, err := s.advisor.Pair(ctx, sommelier.PairingRequest{
		Dishes:      dishes,
		Wines:       wines,
		Preferences: req.Preferences,
	})
	if err != nil {
		return nil, apperrors.ErrUpstream.WithInternal(fmt.Errorf("pair: %w", err))
	}

	res := &Result{
		Pairings:    recs,
		WineSource:  source,
		WineCount:   len(wines),
		GeneratedAt: s.now(),
	}
	if res.Pairings == nil {
		res.Pairings = []sommelier.Recommendation{}
	}

	if err := cache.SetJSON(ctx, s.cache, cache.NamespacePairings, key, res); err != nil {
		s.log.Warn("pairing result not cached", zap.Error(err))
	}
	s.record(ctx, req, recs)

	return res, nil
}

func (s *Service) record(ctx context.Context, req Request, recs []sommelier.Recommendation) {
	if s.recorder == nil || len(recs) == 0 {
		return
	}
	rows := make([]domain.Pairing, len(recs))
	for i, r := range recs {
		rows[i] = domain.Pairing{
			RestaurantID: req.RestaurantID,
			SessionID:    req.SessionID,
			Dish:         r.Dish,
			Wine:         r.Wine,
			Reason:       r.Reason,
			Score:        r.Score,
		}
	}
	if _, err := s.recorder.SavePairings(ctx, rows); err != nil {
		s.log.Warn("pairing history not saved", zap.String("session", req.SessionID), zap.Error(err))
	}
}

func selectedDishes(in []domain.MenuItem) []domain.MenuItem {
	out := make([]domain.MenuItem, 0, len(in))
	for _, d := range in {
		if strings.TrimSpace(d.Name) != "" {
			out = append(out, d)
		}
	}
	return out
}

// requestKey is independent of dish and wine order.
func requestKey(dishes []domain.MenuItem, wines []domain.Wine, preferences string) string {
	dishKeys := make([]string, len(dishes))
	for i, d := range dishes {
		dishKeys[i] = domain.NormalizeName(d.Name)
	}
	sort.Strings(dishKeys)

	wineKeys := make([]string, len(wines))
	for i, w := range wines {
		wineKeys[i] = w.Identity()
	}
	sort.Strings(wineKeys)

	return cache.Key(
		strings.Join(dishKeys, "\n"),
		strings.Join(wineKeys, "\n"),
		domain.NormalizeName(preferences),
	)
}
