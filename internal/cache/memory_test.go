package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 14, 19, 30, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestMemoryValueExpiresAfterTTL(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	c := NewMemory(5*time.Minute, WithClock(clock.Now))

	c.Set(ctx, NamespacePairings, "k1", []byte(`{"wines":[]}`))

	got, ok := c.Get(ctx, NamespacePairings, "k1")
	require.True(t, ok)
	assert.JSONEq(t, `{"wines":[]}`, string(got))

	clock.Advance(5*time.Minute - time.Millisecond)
	_, ok = c.Get(ctx, NamespacePairings, "k1")
	assert.True(t, ok, "entry should survive until the TTL elapses")

	clock.Advance(2 * time.Millisecond)
	_, ok = c.Get(ctx, NamespacePairings, "k1")
	assert.False(t, ok, "entry should be absent after the TTL")
	assert.Zero(t, c.Len(), "expired entry should be removed on read")
}

func TestMemoryExpiryKeepsValueWrittenDuringRead(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	var c *Memory
	rewrite := false
	c = NewMemory(time.Minute, WithClock(func() time.Time {
		// simulate a writer landing between Get's lookup and its expiry check
		if rewrite {
			rewrite = false
			c.Set(ctx, NamespacePairings, "k", []byte("fresh"))
		}
		return clock.Now()
	}))

	c.Set(ctx, NamespacePairings, "k", []byte("stale"))
	clock.Advance(time.Minute + time.Millisecond)

	rewrite = true
	_, ok := c.Get(ctx, NamespacePairings, "k")
	assert.False(t, ok, "the stale read is still a miss")

	got, ok := c.Get(ctx, NamespacePairings, "k")
	require.True(t, ok, "the value written during the read must survive")
	assert.Equal(t, "fresh", string(got))
}

func TestMemoryNamespacesAreIsolated(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(time.Minute)

	c.Set(ctx, NamespacePairings, "k", []byte("pairing"))
	c.Set(ctx, NamespaceExtractions, "k", []byte("extraction"))

	got, ok := c.Get(ctx, NamespacePairings, "k")
	require.True(t, ok)
	assert.Equal(t, "pairing", string(got))

	c.Clear(ctx, NamespacePairings)
	_, ok = c.Get(ctx, NamespacePairings, "k")
	assert.False(t, ok)

	got, ok = c.Get(ctx, NamespaceExtractions, "k")
	require.True(t, ok)
	assert.Equal(t, "extraction", string(got))
}

func TestMemoryNamespaceAndExplicitTTL(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	c := NewMemory(time.Minute,
		WithClock(clock.Now),
		WithNamespaceTTL(NamespaceExtractions, 30*time.Minute),
	)

	assert.Equal(t, time.Minute, c.TTL(NamespacePairings))
	assert.Equal(t, 30*time.Minute, c.TTL(NamespaceExtractions))

	c.Set(ctx, NamespaceExtractions, "img", []byte("menu"))
	c.SetWithTTL(ctx, NamespacePairings, "short", []byte("x"), 10*time.Second)

	clock.Advance(11 * time.Second)
	_, ok := c.Get(ctx, NamespacePairings, "short")
	assert.False(t, ok)

	clock.Advance(20 * time.Minute)
	_, ok = c.Get(ctx, NamespaceExtractions, "img")
	assert.True(t, ok)
}

func TestMemoryDeleteAndOverwrite(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(time.Minute)

	c.Set(ctx, NamespacePairings, "k", []byte("first"))
	c.Set(ctx, NamespacePairings, "k", []byte("second"))

	got, ok := c.Get(ctx, NamespacePairings, "k")
	require.True(t, ok)
	assert.Equal(t, "second", string(got))

	c.Delete(ctx, NamespacePairings, "k")
	_, ok = c.Get(ctx, NamespacePairings, "k")
	assert.False(t, ok)
}

func TestMemoryPrune(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	c := NewMemory(time.Minute, WithClock(clock.Now))

	c.Set(ctx, NamespacePairings, "old-1", []byte("a"))
	c.Set(ctx, NamespacePairings, "old-2", []byte("b"))
	clock.Advance(2 * time.Minute)
	c.Set(ctx, NamespacePairings, "fresh", []byte("c"))

	assert.Equal(t, 2, c.Prune())
	assert.Equal(t, 1, c.Len())
	assert.Zero(t, c.Prune())
}

func TestJSONHelpers(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(time.Minute)

	type result struct {
		Wines []string `json:"wines"`
	}
	require.NoError(t, SetJSON(ctx, c, NamespacePairings, "k", result{Wines: []string{"Barolo"}}))

	var got result
	require.True(t, GetJSON(ctx, c, NamespacePairings, "k", &got))
	assert.Equal(t, []string{"Barolo"}, got.Wines)

	c.Set(ctx, NamespacePairings, "broken", []byte("{not json"))
	assert.False(t, GetJSON(ctx, c, NamespacePairings, "broken", &got))
	assert.False(t, GetJSON(ctx, c, NamespacePairings, "missing", &got))
}

func TestKeyIsStableAndUnambiguous(t *testing.T) {
	assert.Equal(t, Key("duck", "pinot"), Key("duck", "pinot"))
	assert.NotEqual(t, Key("ab", "c"), Key("a", "bc"))
	assert.NotEqual(t, Key("duck"), Key("duck", ""))
	assert.Equal(t, HashBytes([]byte("image")), HashBytes([]byte("image")))
}

func TestRunJanitorStopsOnCancel(t *testing.T) {
	c := NewMemory(time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	c.Set(ctx, NamespacePairings, "k", []byte("v"))
	go func() {
		c.RunJanitor(ctx, 5*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool { return c.Len() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop after cancel")
	}
}
