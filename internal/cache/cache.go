// Package cache provides the short-lived pairing cache: a namespaced
// key-value map whose entries expire after a TTL.
//
// A miss is never an error. Callers treat it as "make the normal call".
package cache

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Well-known namespaces.
const (
	NamespacePairings    = "pairingResults"
	NamespaceExtractions = "menuExtractions"
)

// DefaultTTL applies when neither the call nor the namespace names a TTL.
const DefaultTTL = 5 * time.Minute

// Cache is implemented by Memory and Redis.
type Cache interface {
	Get(ctx context.Context, namespace, key string) ([]byte, bool)
	Set(ctx context.Context, namespace, key string, value []byte)
	SetWithTTL(ctx context.Context, namespace, key string, value []byte, ttl time.Duration)
	Delete(ctx context.Context, namespace, key string)
	Clear(ctx context.Context, namespace string)
}

// Key hashes the given parts into a stable fixed-width key. Parts are
// length-prefixed so ("ab","c") and ("a","bc") differ.
func Key(parts ...string) string {
	h := xxhash.New()
	for _, p := range parts {
		_, _ = h.WriteString(strconv.Itoa(len(p)))
		_, _ = h.WriteString(":")
		_, _ = h.WriteString(p)
	}
	return strconv.FormatUint(h.Sum64(), 16)
}

// HashBytes returns the hex xxhash of b, used to key extractions by image.
func HashBytes(b []byte) string {
	return strconv.FormatUint(xxhash.Sum64(b), 16)
}

// GetJSON decodes a cached value into v. A value that no longer decodes is
// treated as a miss.
func GetJSON(ctx context.Context, c Cache, namespace, key string, v any) bool {
	raw, ok := c.Get(ctx, namespace, key)
	if !ok {
		return false
	}
	return json.Unmarshal(raw, v) == nil
}

// SetJSON encodes v and stores it with the namespace TTL.
func SetJSON(ctx context.Context, c Cache, namespace, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.Set(ctx, namespace, key, raw)
	return nil
}

func compositeKey(namespace, key string) string {
	return namespace + "\x00" + key
}

func namespacePrefix(namespace string) string {
	return namespace + "\x00"
}

func hasNamespace(k, namespace string) bool {
	return strings.HasPrefix(k, namespacePrefix(namespace))
}
