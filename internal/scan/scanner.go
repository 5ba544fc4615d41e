// Package scan turns uploaded menu and wine-list photos into dishes and wines.
package scan

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pbaille/winewize/internal/cache"
	"github.com/pbaille/winewize/internal/domain"
	"github.com/pbaille/winewize/internal/sommelier"
)

// DefaultBatchSize is how many images are extracted at once.
const DefaultBatchSize = 3

// ErrNoImages is returned by Scan when called without input.
var ErrNoImages = errors.New("no images to scan")

// Extractor reads dishes and wines; *sommelier.Client implements it.
type Extractor interface {
	ExtractImage(ctx context.Context, img sommelier.Image) (*sommelier.Extraction, error)
	ExtractText(ctx context.Context, text string) (*sommelier.Extraction, error)
}

// Result is the merged output of a scan.
type Result struct {
	RestaurantName string            `json:"restaurant_name,omitempty"`
	MenuItems      []domain.MenuItem `json:"menu_items"`
	Wines          []domain.Wine     `json:"wines"`
	Processed      int               `json:"processed"`
	Failed         int               `json:"failed"`
}

// Scanner extracts images in fixed-size batches.
type Scanner struct {
	extractor Extractor
	cache     cache.Cache
	batchSize int
	http      *http.Client
	log       *zap.Logger
}

// Options configures a Scanner. Cache is optional. HTTPClient defaults to
// NewPublicClient, which refuses internal addresses.
type Options struct {
	BatchSize  int
	Cache      cache.Cache
	HTTPClient *http.Client
	Logger     *zap.Logger
}

func New(extractor Extractor, opts Options) *Scanner {
	if opts.BatchSize < 1 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = NewPublicClient(30 * time.Second)
	}
	return &Scanner{
		extractor: extractor,
		cache:     opts.Cache,
		batchSize: opts.BatchSize,
		http:      opts.HTTPClient,
		log:       opts.Logger,
	}
}

// Scan extracts every image, at most batchSize at a time; a batch starts only
// after the previous one finished. Failed images are logged and skipped. An
// error is returned only when no image succeeded or ctx ended.
func (s *Scanner) Scan(ctx context.Context, images []sommelier.Image) (*Result, error) {
	if len(images) == 0 {
		return nil, ErrNoImages
	}

	extractions := make([]*sommelier.Extraction, len(images))
	errs := make([]error, len(images))

	for start := 0; start < len(images); start += s.batchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(start+s.batchSize, len(images))

		var g errgroup.Group
		for i := start; i < end; i++ {
			g.Go(func() error {
				ext, err := s.extractImage(ctx, images[i])
				if err != nil {
					errs[i] = fmt.Errorf("image %d: %w", i+1, err)
					return nil
				}
				extractions[i] = ext
				return nil
			})
		}
		_ = g.Wait()
	}

	res := merge(extractions)
	combined := multierr.Combine(errs...)
	res.Failed = len(multierr.Errors(combined))

	if res.Processed == 0 {
		return nil, fmt.Errorf("scan failed: %w", combined)
	}
	if combined != nil {
		s.log.Warn("some images could not be read",
			zap.Int("failed", res.Failed),
			zap.Int("processed", res.Processed),
			zap.Error(combined),
		)
	}
	return res, nil
}

// ScanURL fetches a published menu or wine list and extracts it.
func (s *Scanner) ScanURL(ctx context.Context, rawURL string) (*Result, error) {
	text, err := FetchPage(ctx, s.http, rawURL)
	if err != nil {
		return nil, fmt.Errorf("fetch page: %w", err)
	}

	key := cache.Key("url", rawURL, text)
	var ext sommelier.Extraction
	if s.cache != nil && cache.GetJSON(ctx, s.cache, cache.NamespaceExtractions, key, &ext) {
		return merge([]*sommelier.Extraction{&ext}), nil
	}

	got, err := s.extractor.ExtractText(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("extract page: %w", err)
	}
	s.remember(ctx, key, got)
	return merge([]*sommelier.Extraction{got}), nil
}

func (s *Scanner) extractImage(ctx context.Context, img sommelier.Image) (*sommelier.Extraction, error) {
	key := cache.Key("image", img.MediaType, cache.HashBytes(img.Data))

	var ext sommelier.Extraction
	if s.cache != nil && cache.GetJSON(ctx, s.cache, cache.NamespaceExtractions, key, &ext) {
		return &ext, nil
	}

	got, err := s.extractor.ExtractImage(ctx, img)
	if err != nil {
		return nil, err
	}
	s.remember(ctx, key, got)
	return got, nil
}

func (s *Scanner) remember(ctx context.Context, key string, ext *sommelier.Extraction) {
	if s.cache == nil {
		return
	}
	if err := cache.SetJSON(ctx, s.cache, cache.NamespaceExtractions, key, ext); err != nil {
		s.log.Debug("extraction not cached", zap.Error(err))
	}
}

// merge combines extractions in input order, de-duplicating dishes by name
// and wines by name and vintage. Nil entries are failed images.
func merge(extractions []*sommelier.Extraction) *Result {
	res := &Result{
		MenuItems: []domain.MenuItem{},
		Wines:     []domain.Wine{},
	}
	seenItems := map[string]bool{}
	seenWines := map[string]bool{}

	for _, ext := range extractions {
		if ext == nil {
			continue
		}
		res.Processed++
		if res.RestaurantName == "" {
			res.RestaurantName = ext.RestaurantName
		}
		for _, it := range ext.MenuItems {
			key := domain.NormalizeName(it.Name)
			if key == "" || seenItems[key] {
				continue
			}
			seenItems[key] = true
			res.MenuItems = append(res.MenuItems, it)
		}
		for _, w := range ext.Wines {
			key := w.Identity()
			if key == "" || seenWines[key] {
				continue
			}
			seenWines[key] = true
			res.Wines = append(res.Wines, w)
		}
	}
	return res
}

// Merge combines several scan results, e.g. uploaded photos plus a wine list
// fetched from the web. Nil results are ignored.
func Merge(results ...*Result) *Result {
	var (
		extractions []*sommelier.Extraction
		processed   int
		failed      int
	)
	for _, r := range results {
		if r == nil {
			continue
		}
		extractions = append(extractions, &sommelier.Extraction{
			RestaurantName: r.RestaurantName,
			MenuItems:      r.MenuItems,
			Wines:          r.Wines,
		})
		processed += r.Processed
		failed += r.Failed
	}
	res := merge(extractions)
	res.Processed = processed
	res.Failed = failed
	return res
}
