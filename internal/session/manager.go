// Package session keeps the transient per-session results of a scan and
// finds "the current wines" through a fixed fallback chain.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/pbaille/winewize/internal/domain"
	"github.com/pbaille/winewize/pkg/metrics"
)

// Per-session storage keys.
const (
	KeyResult      = "processingResult"
	KeyWines       = "currentWines"
	KeyWinesBackup = "winesBackup"
)

// Key scopes a storage key to one session.
func Key(sessionID, name string) string {
	return sessionID + ":" + name
}

// Manager reads and writes session bundles. session holds the short-lived
// copies; backup holds the durable wine list.
type Manager struct {
	session Storage
	backup  Storage
	now     func() time.Time
	log     *zap.Logger
}

// NewManager creates a Manager. backup may be nil when no durable store exists.
func NewManager(session, backup Storage, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{session: session, backup: backup, now: time.Now, log: log}
}

// Save writes the bundle, the session wine array and the durable wine backup.
// The timestamp is set when the caller left it zero.
func (m *Manager) Save(ctx context.Context, sessionID string, bundle domain.SessionBundle) (domain.SessionBundle, error) {
	if bundle.Timestamp.IsZero() {
		bundle.Timestamp = m.now()
	}
	if bundle.MenuItems == nil {
		bundle.MenuItems = []domain.MenuItem{}
	}
	if bundle.Wines == nil {
		bundle.Wines = []domain.Wine{}
	}

	rawBundle, err := json.Marshal(bundle)
	if err != nil {
		return bundle, fmt.Errorf("marshal bundle: %w", err)
	}
	rawWines, err := json.Marshal(bundle.Wines)
	if err != nil {
		return bundle, fmt.Errorf("marshal wines: %w", err)
	}

	if err := m.session.SetItem(ctx, Key(sessionID, KeyResult), string(rawBundle)); err != nil {
		return bundle, fmt.Errorf("store bundle: %w", err)
	}
	if err := m.session.SetItem(ctx, Key(sessionID, KeyWines), string(rawWines)); err != nil {
		return bundle, fmt.Errorf("store wines: %w", err)
	}
	if m.backup != nil {
		// the backup is best effort; the session copy is already written
		if err := m.writeBackup(ctx, sessionID, bundle.Wines, string(rawWines)); err != nil {
			m.log.Warn("wine backup failed", zap.String("session", sessionID), zap.Error(err))
		}
	}
	return bundle, nil
}

// writeBackup mirrors the latest run's wines. A run without wines removes the
// previous backup so the fallback chain cannot serve an older scan.
func (m *Manager) writeBackup(ctx context.Context, sessionID string, wines []domain.Wine, raw string) error {
	key := Key(sessionID, KeyWinesBackup)
	if len(wines) == 0 {
		return m.backup.RemoveItem(ctx, key)
	}
	return m.backup.SetItem(ctx, key, raw)
}

// Bundle returns the stored bundle. A missing or unreadable bundle is ok=false.
func (m *Manager) Bundle(ctx context.Context, sessionID string) (*domain.SessionBundle, bool) {
	raw, ok, err := m.session.GetItem(ctx, Key(sessionID, KeyResult))
	if err != nil || !ok {
		return nil, false
	}
	var b domain.SessionBundle
	if err := json.Unmarshal([]byte(raw), &b); err != nil {
		m.log.Debug("discarding unreadable bundle", zap.String("session", sessionID), zap.Error(err))
		return nil, false
	}
	return &b, true
}

// Wines finds the session's wines: prop, then the bundle, then the session
// wine array, then the durable backup.
func (m *Manager) Wines(ctx context.Context, sessionID string, prop []domain.Wine) ([]domain.Wine, string) {
	wines, source := Resolve(ctx, m.log,
		PropSource(prop),
		BundleSource{Storage: m.session, Key: Key(sessionID, KeyResult)},
		ArraySource{Label: SourceSessionArray, Storage: m.session, Key: Key(sessionID, KeyWines)},
		ArraySource{Label: SourceLocalBackup, Storage: m.backup, Key: Key(sessionID, KeyWinesBackup)},
	)
	metrics.FallbackSource.WithLabelValues(source).Inc()
	return wines, source
}

// Clear is "start over": it removes every key the session wrote.
func (m *Manager) Clear(ctx context.Context, sessionID string) error {
	err := multierr.Combine(
		m.session.RemoveItem(ctx, Key(sessionID, KeyResult)),
		m.session.RemoveItem(ctx, Key(sessionID, KeyWines)),
	)
	if m.backup != nil {
		err = multierr.Append(err, m.backup.RemoveItem(ctx, Key(sessionID, KeyWinesBackup)))
	}
	if err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}
