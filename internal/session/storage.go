package session

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Storage is a string key/value store with browser-storage semantics: a
// missing key is reported with ok=false, not an error.
type Storage interface {
	GetItem(ctx context.Context, key string) (value string, ok bool, err error)
	SetItem(ctx context.Context, key, value string) error
	RemoveItem(ctx context.Context, key string) error
}

// MemoryStorage is the process-local session storage. Keys expire after the
// session lifetime unless they are written or read again.
type MemoryStorage struct {
	items *gocache.Cache
	ttl   time.Duration
}

// NewMemoryStorage creates session storage whose keys live for ttl after
// their last access.
func NewMemoryStorage(ttl time.Duration) *MemoryStorage {
	return &MemoryStorage{
		items: gocache.New(ttl, ttl/2),
		ttl:   ttl,
	}
}

func (m *MemoryStorage) GetItem(_ context.Context, key string) (string, bool, error) {
	v, ok := m.items.Get(key)
	if !ok {
		return "", false, nil
	}
	s, _ := v.(string)
	// sliding lifetime, like a browser tab that is still open
	m.items.Set(key, s, m.ttl)
	return s, true, nil
}

func (m *MemoryStorage) SetItem(_ context.Context, key, value string) error {
	m.items.Set(key, value, m.ttl)
	return nil
}

func (m *MemoryStorage) RemoveItem(_ context.Context, key string) error {
	m.items.Delete(key)
	return nil
}
