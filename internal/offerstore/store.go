// Package offerstore keeps tab-local key/value records, used to hold the
// latest unanswered offer per caller until a call page consumes it.
package offerstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mossy-p/webrtc-calling/config"
)

// Store is a small key/value store. A ttl of zero never expires.
type Store interface {
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, key string) error
	Close() error
}

// Open builds the store selected by cfg.
func Open(cfg config.OfferStoreConfig) (Store, error) {
	switch cfg.Driver {
	case config.OfferStoreMemory:
		return NewMemory(), nil
	case config.OfferStoreSQLite:
		if err := os.MkdirAll(cfg.Path, 0o700); err != nil {
			return nil, fmt.Errorf("create offer store dir: %w", err)
		}
		return OpenSQLite(filepath.Join(cfg.Path, "offers.db"))
	default:
		return nil, fmt.Errorf("unsupported offer store driver %q", cfg.Driver)
	}
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// Memory is a Store that lives as long as the process. Expired entries are
// dropped lazily on read.
type Memory struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string]memoryEntry), now: time.Now}
}

func (m *Memory) Put(_ context.Context, key string, value []byte, ttl time.Duration) error {
	e := memoryEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expiresAt = m.now().Add(ttl)
	}

	m.mu.Lock()
	m.entries[key] = e
	m.mu.Unlock()
	return nil
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !e.expiresAt.IsZero() && !m.now().Before(e.expiresAt) {
		delete(m.entries, key)
		return nil, false, nil
	}
	return append([]byte(nil), e.value...), true, nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Close() error { return nil }
