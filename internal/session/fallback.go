package session

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/pbaille/winewize/internal/domain"
)

// Source names, in lookup priority order.
const (
	SourceProp          = "prop"
	SourceSessionResult = "sessionResult"
	SourceSessionArray  = "sessionArray"
	SourceLocalBackup   = "localBackup"
	SourceNone          = "none"
)

var errNotFound = errors.New("no wines")

// Source is one place the current session's wines may live.
type Source interface {
	Name() string
	Wines(ctx context.Context) ([]domain.Wine, error)
}

// Resolve walks sources in order and returns the first non-empty wine list
// and the name of the source it came from. Read errors, parse failures and
// shape mismatches all count as "not found". When nothing matches it returns
// an empty list and SourceNone.
func Resolve(ctx context.Context, log *zap.Logger, sources ...Source) ([]domain.Wine, string) {
	if log == nil {
		log = zap.NewNop()
	}
	for _, src := range sources {
		wines, err := src.Wines(ctx)
		if err != nil {
			log.Debug("wine source skipped", zap.String("source", src.Name()), zap.Error(err))
			continue
		}
		if len(wines) > 0 {
			return wines, src.Name()
		}
	}
	return []domain.Wine{}, SourceNone
}

// PropSource serves wines supplied directly by the caller.
type PropSource []domain.Wine

func (PropSource) Name() string { return SourceProp }

func (p PropSource) Wines(context.Context) ([]domain.Wine, error) {
	return namedWines(p)
}

// BundleSource reads the wines field of a stored session bundle.
type BundleSource struct {
	Storage Storage
	Key     string
}

func (BundleSource) Name() string { return SourceSessionResult }

func (b BundleSource) Wines(ctx context.Context) ([]domain.Wine, error) {
	raw, err := readItem(ctx, b.Storage, b.Key)
	if err != nil {
		return nil, err
	}

	var bundle struct {
		Wines []domain.Wine `json:"wines"`
	}
	if err := json.Unmarshal([]byte(raw), &bundle); err != nil {
		return nil, err
	}
	return namedWines(bundle.Wines)
}

// ArraySource reads a stored JSON array of wines.
type ArraySource struct {
	Label   string
	Storage Storage
	Key     string
}

func (a ArraySource) Name() string { return a.Label }

func (a ArraySource) Wines(ctx context.Context) ([]domain.Wine, error) {
	raw, err := readItem(ctx, a.Storage, a.Key)
	if err != nil {
		return nil, err
	}

	var wines []domain.Wine
	if err := json.Unmarshal([]byte(raw), &wines); err != nil {
		return nil, err
	}
	return namedWines(wines)
}

func readItem(ctx context.Context, s Storage, key string) (string, error) {
	if s == nil {
		return "", errNotFound
	}
	raw, ok, err := s.GetItem(ctx, key)
	if err != nil {
		return "", err
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return "", errNotFound
	}
	return raw, nil
}

// namedWines drops entries without a name; a list with none left is not found.
func namedWines(in []domain.Wine) ([]domain.Wine, error) {
	out := make([]domain.Wine, 0, len(in))
	for _, w := range in {
		if strings.TrimSpace(w.Name) != "" {
			out = append(out, w)
		}
	}
	if len(out) == 0 {
		return nil, errNotFound
	}
	return out, nil
}
