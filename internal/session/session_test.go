package session

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/pbaille/winewize/internal/domain"
)

type failingStorage struct{}

func (failingStorage) GetItem(context.Context, string) (string, bool, error) {
	return "", false, errors.New("storage offline")
}
func (failingStorage) SetItem(context.Context, string, string) error { return errors.New("storage offline") }
func (failingStorage) RemoveItem(context.Context, string) error      { return errors.New("storage offline") }

func wines(names ...string) []domain.Wine {
	out := make([]domain.Wine, len(names))
	for i, n := range names {
		out[i] = domain.Wine{Name: n}
	}
	return out
}

func names(ws []domain.Wine) []string {
	out := make([]string, len(ws))
	for i, w := range ws {
		out[i] = w.Name
	}
	return out
}

func TestWinesFallbackPriorityForEverySubset(t *testing.T) {
	ctx := context.Background()
	order := []string{SourceProp, SourceSessionResult, SourceSessionArray, SourceLocalBackup}

	for mask := 0; mask < 1<<len(order); mask++ {
		t.Run(fmt.Sprintf("mask=%04b", mask), func(t *testing.T) {
			sess := NewMemoryStorage(time.Hour)
			backup := NewMemoryStorage(time.Hour)
			m := NewManager(sess, backup, nil)

			var prop []domain.Wine
			if mask&1 != 0 {
				prop = wines("prop wine")
			}
			if mask&2 != 0 {
				require.NoError(t, sess.SetItem(ctx, Key("s", KeyResult), `{"menuItems":[],"wines":[{"name":"bundle wine"}]}`))
			}
			if mask&4 != 0 {
				require.NoError(t, sess.SetItem(ctx, Key("s", KeyWines), `[{"name":"array wine"}]`))
			}
			if mask&8 != 0 {
				require.NoError(t, backup.SetItem(ctx, Key("s", KeyWinesBackup), `[{"name":"backup wine"}]`))
			}

			got, source := m.Wines(ctx, "s", prop)

			want := SourceNone
			for i, name := range order {
				if mask&(1<<i) != 0 {
					want = name
					break
				}
			}
			assert.Equal(t, want, source)
			if want == SourceNone {
				assert.NotNil(t, got)
				assert.Empty(t, got)
			} else {
				require.Len(t, got, 1)
			}
		})
	}
}

func TestWinesSkipsMalformedSources(t *testing.T) {
	ctx := context.Background()
	sess := NewMemoryStorage(time.Hour)
	backup := NewMemoryStorage(time.Hour)
	m := NewManager(sess, backup, nil)

	// bundle whose wines field has the wrong type
	require.NoError(t, sess.SetItem(ctx, Key("s", KeyResult), `{"wines":"Barolo"}`))
	// array key holding an object
	require.NoError(t, sess.SetItem(ctx, Key("s", KeyWines), `{"name":"Barolo"}`))
	// backup with only unnamed entries
	require.NoError(t, backup.SetItem(ctx, Key("s", KeyWinesBackup), `[{"vintage":"2019"}]`))

	got, source := m.Wines(ctx, "s", []domain.Wine{{Name: "  "}})
	assert.Equal(t, SourceNone, source)
	assert.Empty(t, got)

	require.NoError(t, backup.SetItem(ctx, Key("s", KeyWinesBackup), `[{"vintage":"2019"},{"name":"Gamay"}]`))
	got, source = m.Wines(ctx, "s", nil)
	assert.Equal(t, SourceLocalBackup, source)
	assert.Equal(t, []string{"Gamay"}, names(got))
}

func TestResolveLogsAndSkipsStorageErrors(t *testing.T) {
	core, recorded := observer.New(zap.DebugLevel)
	ctx := context.Background()
	good := NewMemoryStorage(time.Hour)
	require.NoError(t, good.SetItem(ctx, "k", `[{"name":"Riesling"}]`))

	got, source := Resolve(ctx, zap.New(core),
		ArraySource{Label: SourceSessionArray, Storage: failingStorage{}, Key: "k"},
		ArraySource{Label: SourceLocalBackup, Storage: good, Key: "k"},
	)

	assert.Equal(t, SourceLocalBackup, source)
	assert.Equal(t, []string{"Riesling"}, names(got))
	require.Equal(t, 1, recorded.FilterMessage("wine source skipped").Len())
	assert.Equal(t, SourceSessionArray, recorded.All()[0].ContextMap()["source"])
}

func TestResolveWithNilBackup(t *testing.T) {
	m := NewManager(NewMemoryStorage(time.Hour), nil, nil)
	got, source := m.Wines(context.Background(), "s", nil)
	assert.Equal(t, SourceNone, source)
	assert.Empty(t, got)
}

func TestSaveBundleRoundTripAndClear(t *testing.T) {
	ctx := context.Background()
	sess := NewMemoryStorage(time.Hour)
	backup := NewMemoryStorage(time.Hour)
	m := NewManager(sess, backup, nil)
	m.now = func() time.Time { return time.Date(2026, 5, 1, 20, 0, 0, 0, time.UTC) }

	saved, err := m.Save(ctx, "s", domain.SessionBundle{
		MenuItems:      []domain.MenuItem{{Name: "Lamb shoulder"}},
		Wines:          wines("Syrah", "Grenache"),
		RestaurantID:   "r1",
		RestaurantName: "Bistro",
	})
	require.NoError(t, err)
	assert.Equal(t, m.now(), saved.Timestamp)

	b, ok := m.Bundle(ctx, "s")
	require.True(t, ok)
	assert.Equal(t, "Bistro", b.RestaurantName)
	assert.Equal(t, []string{"Syrah", "Grenache"}, names(b.Wines))
	assert.True(t, saved.Timestamp.Equal(b.Timestamp))

	_, ok, err = backup.GetItem(ctx, Key("s", KeyWinesBackup))
	require.NoError(t, err)
	assert.True(t, ok)

	// a later run overwrites the earlier one
	_, err = m.Save(ctx, "s", domain.SessionBundle{Wines: wines("Cava")})
	require.NoError(t, err)
	got, source := m.Wines(ctx, "s", nil)
	assert.Equal(t, SourceSessionResult, source)
	assert.Equal(t, []string{"Cava"}, names(got))

	require.NoError(t, m.Clear(ctx, "s"))
	_, ok = m.Bundle(ctx, "s")
	assert.False(t, ok)
	got, source = m.Wines(ctx, "s", nil)
	assert.Equal(t, SourceNone, source)
	assert.Empty(t, got)
}

func TestSaveToleratesBackupFailure(t *testing.T) {
	ctx := context.Background()
	m := NewManager(NewMemoryStorage(time.Hour), failingStorage{}, nil)

	_, err := m.Save(ctx, "s", domain.SessionBundle{Wines: wines("Fiano")})
	require.NoError(t, err)

	got, source := m.Wines(ctx, "s", nil)
	assert.Equal(t, SourceSessionResult, source)
	assert.Equal(t, []string{"Fiano"}, names(got))

	assert.Error(t, m.Clear(ctx, "s"))
}

func TestSessionsAreIsolated(t *testing.T) {
	ctx := context.Background()
	m := NewManager(NewMemoryStorage(time.Hour), NewMemoryStorage(time.Hour), nil)

	_, err := m.Save(ctx, "a", domain.SessionBundle{Wines: wines("Albariño")})
	require.NoError(t, err)

	_, source := m.Wines(ctx, "b", nil)
	assert.Equal(t, SourceNone, source)
}

func TestMemoryStorageExpires(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStorage(50 * time.Millisecond)
	require.NoError(t, s.SetItem(ctx, "k", "v"))

	v, ok, err := s.GetItem(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v", v)

	time.Sleep(80 * time.Millisecond)
	_, ok, err = s.GetItem(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetItem(ctx, "gone", "v"))
	require.NoError(t, s.RemoveItem(ctx, "gone"))
	_, ok, _ = s.GetItem(ctx, "gone")
	assert.False(t, ok)
}

func TestSaveWithoutWinesDropsStaleBackup(t *testing.T) {
	ctx := context.Background()
	sess := NewMemoryStorage(time.Hour)
	backup := NewMemoryStorage(time.Hour)
	m := NewManager(sess, backup, nil)

	_, err := m.Save(ctx, "s", domain.SessionBundle{Wines: wines("Barolo")})
	require.NoError(t, err)

	// the second visit only photographed the food menu
	_, err = m.Save(ctx, "s", domain.SessionBundle{MenuItems: []domain.MenuItem{{Name: "Vitello tonnato"}}})
	require.NoError(t, err)

	_, ok, err := backup.GetItem(ctx, Key("s", KeyWinesBackup))
	require.NoError(t, err)
	assert.False(t, ok)

	got, source := m.Wines(ctx, "s", nil)
	assert.Equal(t, SourceNone, source)
	assert.Empty(t, got)
}
