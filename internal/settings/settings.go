// Package settings provides a small TTL-cached key-value lookup over a
// backing store, the shape the teacher's deleted setting_repo.go exposed,
// kept here because the gateway still needs a handful of operator-tunable
// values (e.g. a global maintenance-mode flag) without a full admin layer.
package settings

import (
	"context"
	"sync"
	"time"
)

// Store is the backing persistence for settings key-value pairs.
// Satisfied by internal/repository.SettingsStore.
type Store interface {
	GetAll(ctx context.Context) (map[string]string, error)
}

const defaultRefreshInterval = 30 * time.Second

// Provider is an in-memory cache of the settings table, refreshed
// periodically rather than hit on every request.
type Provider struct {
	store           Store
	refreshInterval time.Duration

	mu          sync.RWMutex
	values      map[string]string
	lastRefresh time.Time
}

func NewProvider(store Store) *Provider {
	return &Provider{store: store, refreshInterval: defaultRefreshInterval, values: map[string]string{}}
}

// Get returns a setting's value and whether it is present. Triggers a
// blocking refresh if the cache has never been populated or has gone stale.
func (p *Provider) Get(ctx context.Context, key string) (string, bool) {
	p.mu.RLock()
	stale := time.Since(p.lastRefresh) > p.refreshInterval
	v, ok := p.values[key]
	p.mu.RUnlock()

	if stale {
		_ = p.Refresh(ctx)
		p.mu.RLock()
		v, ok = p.values[key]
		p.mu.RUnlock()
	}
	return v, ok
}

// Refresh force-reloads all settings from the backing store.
func (p *Provider) Refresh(ctx context.Context) error {
	values, err := p.store.GetAll(ctx)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.values = values
	p.lastRefresh = time.Now()
	p.mu.Unlock()
	return nil
}
