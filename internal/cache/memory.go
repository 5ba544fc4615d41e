package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/pbaille/winewize/pkg/metrics"
)

type entry struct {
	value      []byte
	insertedAt time.Time
	ttl        time.Duration
	seq        uint64
}

func (e entry) expired(now time.Time) bool {
	return !now.Before(e.insertedAt.Add(e.ttl))
}

// Memory is a process-local Cache. go-cache holds the entries; expiry is
// evaluated against the injected clock on every read so it can be simulated.
type Memory struct {
	// mu orders writes against expiry removal; reads stay lock-free
	mu         sync.Mutex
	seq        atomic.Uint64
	items      *gocache.Cache
	defaultTTL time.Duration
	ttls       map[string]time.Duration
	now        func() time.Time
	log        *zap.Logger
}

// MemoryOption customises a Memory cache.
type MemoryOption func(*Memory)

// WithNamespaceTTL overrides the TTL used by Set for one namespace.
func WithNamespaceTTL(namespace string, ttl time.Duration) MemoryOption {
	return func(m *Memory) {
		if ttl > 0 {
			m.ttls[namespace] = ttl
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) {
		if now != nil {
			m.now = now
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(l *zap.Logger) MemoryOption {
	return func(m *Memory) {
		if l != nil {
			m.log = l
		}
	}
}

// NewMemory creates a Memory cache. A non-positive defaultTTL uses DefaultTTL.
func NewMemory(defaultTTL time.Duration, opts ...MemoryOption) *Memory {
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}
	m := &Memory{
		// go-cache's own expiry is disabled; entries carry their own deadline
		items:      gocache.New(gocache.NoExpiration, 0),
		defaultTTL: defaultTTL,
		ttls:       make(map[string]time.Duration),
		now:        time.Now,
		log:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Get returns the value stored under namespace/key. Expired entries are
// removed and reported as absent.
func (m *Memory) Get(_ context.Context, namespace, key string) ([]byte, bool) {
	k := compositeKey(namespace, key)
	raw, ok := m.items.Get(k)
	if !ok {
		metrics.CacheLookups.WithLabelValues(namespace, "miss").Inc()
		return nil, false
	}

	e := raw.(entry)
	if e.expired(m.now()) {
		m.removeIfCurrent(k, e.seq)
		metrics.CacheLookups.WithLabelValues(namespace, "expired").Inc()
		m.log.Debug("cache entry expired", zap.String("namespace", namespace), zap.String("key", key))
		return nil, false
	}

	metrics.CacheLookups.WithLabelValues(namespace, "hit").Inc()
	return e.value, true
}

// Set stores value with the namespace TTL, or the default TTL.
func (m *Memory) Set(ctx context.Context, namespace, key string, value []byte) {
	m.SetWithTTL(ctx, namespace, key, value, m.TTL(namespace))
}

// SetWithTTL stores value with an explicit TTL. A non-positive ttl falls
// back to the namespace TTL.
func (m *Memory) SetWithTTL(_ context.Context, namespace, key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = m.TTL(namespace)
	}
	e := entry{
		value:      value,
		insertedAt: m.now(),
		ttl:        ttl,
		seq:        m.seq.Add(1),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.items.Set(compositeKey(namespace, key), e, gocache.NoExpiration)
}

// removeIfCurrent deletes k only if it still holds the entry with seq, so a
// value written after the expiry check survives.
func (m *Memory) removeIfCurrent(k string, seq uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.items.Get(k)
	if !ok || raw.(entry).seq != seq {
		return false
	}
	m.items.Delete(k)
	return true
}

func (m *Memory) Delete(_ context.Context, namespace, key string) {
	m.items.Delete(compositeKey(namespace, key))
}

// Clear removes every entry in namespace.
func (m *Memory) Clear(_ context.Context, namespace string) {
	for k := range m.items.Items() {
		if hasNamespace(k, namespace) {
			m.items.Delete(k)
		}
	}
}

// Prune removes all expired entries and returns how many were dropped.
func (m *Memory) Prune() int {
	now := m.now()
	removed := 0
	for k, item := range m.items.Items() {
		if e, ok := item.Object.(entry); ok && e.expired(now) && m.removeIfCurrent(k, e.seq) {
			removed++
		}
	}
	return removed
}

// Len reports the number of stored entries, expired ones included.
func (m *Memory) Len() int {
	return m.items.ItemCount()
}

// TTL returns the TTL Set would use for namespace.
func (m *Memory) TTL(namespace string) time.Duration {
	if ttl, ok := m.ttls[namespace]; ok {
		return ttl
	}
	return m.defaultTTL
}

// RunJanitor calls Prune every interval until ctx is done.
func (m *Memory) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Prune(); n > 0 {
				m.log.Debug("pruned expired cache entries", zap.Int("count", n))
			}
		}
	}
}
