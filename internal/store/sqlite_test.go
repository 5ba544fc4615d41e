package store

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pbaille/winewize/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "winewize.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestGetOrCreateRestaurantIsCaseInsensitive(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	first, err := s.GetOrCreateRestaurant(ctx, "Chez Panisse")
	require.NoError(t, err)

	again, err := s.GetOrCreateRestaurant(ctx, "  chez panisse ")
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)

	_, err = s.GetOrCreateRestaurant(ctx, "   ")
	require.Error(t, err)

	got, err := s.GetRestaurant(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "Chez Panisse", got.Name)

	_, err = s.GetRestaurant(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetOrCreateRestaurantConcurrentCallersShareRow(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	const callers = 8
	ids := make([]string, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := s.GetOrCreateRestaurant(ctx, "Le Servan")
			errs[i] = err
			if err == nil {
				ids[i] = r.ID
			}
		}()
	}
	wg.Wait()

	for i := range callers {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}

	all, err := s.ListRestaurants(ctx, 10, 0)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestSaveMenuReplacesPreviousMenu(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	r, err := s.GetOrCreateRestaurant(ctx, "Trattoria")
	require.NoError(t, err)

	items, wines, err := s.SaveMenu(ctx, r.ID,
		[]domain.MenuItem{{Name: "Osso buco", Category: domain.CategoryMain, Price: 32}, {Name: "Bread"}},
		[]domain.Wine{{Name: "Barolo", Vintage: "2018", Style: domain.StyleRed}},
	)
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Len(t, wines, 1)
	assert.NotEmpty(t, items[0].ID)
	assert.Equal(t, domain.CategoryOther, items[1].Category)
	assert.Equal(t, r.ID, wines[0].RestaurantID)

	_, _, err = s.SaveMenu(ctx, r.ID,
		[]domain.MenuItem{{Name: "Risotto", Category: domain.CategoryMain}},
		[]domain.Wine{{Name: "Soave"}, {Name: "Barbaresco"}},
	)
	require.NoError(t, err)

	gotItems, err := s.ListMenuItems(ctx, r.ID)
	require.NoError(t, err)
	require.Len(t, gotItems, 1)
	assert.Equal(t, "Risotto", gotItems[0].Name)

	gotWines, err := s.ListWines(ctx, r.ID)
	require.NoError(t, err)
	assert.Len(t, gotWines, 2)
}

func TestListRestaurantsPaginates(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	for i, name := range []string{"A", "B", "C"} {
		ts := base.Add(time.Duration(i) * time.Hour)
		s.now = func() time.Time { return ts }
		_, err := s.GetOrCreateRestaurant(ctx, name)
		require.NoError(t, err)
	}

	page, err := s.ListRestaurants(ctx, 2, 0)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "C", page[0].Name)

	page, err = s.ListRestaurants(ctx, 2, 2)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "A", page[0].Name)
}

func TestPairingHistory(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	saved, err := s.SavePairings(ctx, []domain.Pairing{
		{SessionID: "s1", RestaurantID: "r1", Dish: "Duck", Wine: "Pinot Noir", Score: 0.9},
		{SessionID: "s1", RestaurantID: "r1", Dish: "Salmon", Wine: "Chablis", Score: 0.8},
		{SessionID: "s2", RestaurantID: "r2", Dish: "Steak", Wine: "Malbec", Score: 0.7},
	})
	require.NoError(t, err)
	require.Len(t, saved, 3)
	assert.NotEmpty(t, saved[0].ID)
	assert.False(t, saved[0].CreatedAt.IsZero())

	s1, err := s.ListPairings(ctx, PairingFilter{SessionID: "s1"})
	require.NoError(t, err)
	assert.Len(t, s1, 2)

	r2, err := s.ListPairings(ctx, PairingFilter{RestaurantID: "r2"})
	require.NoError(t, err)
	require.Len(t, r2, 1)
	assert.Equal(t, "Malbec", r2[0].Wine)

	limited, err := s.ListPairings(ctx, PairingFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	n, err := s.CountPairings(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestKeyValueItems(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, ok, err := s.GetItem(ctx, "s1:winesBackup")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetItem(ctx, "s1:winesBackup", `[{"name":"Rioja"}]`))
	require.NoError(t, s.SetItem(ctx, "s1:winesBackup", `[{"name":"Priorat"}]`))

	v, ok, err := s.GetItem(ctx, "s1:winesBackup")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `[{"name":"Priorat"}]`, v)

	require.NoError(t, s.RemoveItem(ctx, "s1:winesBackup"))
	require.NoError(t, s.RemoveItem(ctx, "s1:winesBackup"))
	_, ok, err = s.GetItem(ctx, "s1:winesBackup")
	require.NoError(t, err)
	assert.False(t, ok)
}
