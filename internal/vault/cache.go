package vault

import (
	"context"
	"errors"
	"fmt"
	"time"

	"wishlistbuilder/internal/apperr"
	"wishlistbuilder/internal/events"
	"wishlistbuilder/internal/logger"
	"wishlistbuilder/internal/metrics"
	"wishlistbuilder/internal/models"
)

// Player identifies a Destiny membership on one platform.
type Player struct {
	MembershipType int    `json:"membership_type"`
	MembershipID   string `json:"membership_id"`
}

// Key is the cache key for the player.
func (p Player) Key() string {
	return fmt.Sprintf("%d:%s", p.MembershipType, p.MembershipID)
}

func (p Player) Valid() bool {
	return p.MembershipType > 0 && p.MembershipID != ""
}

// CacheStore persists vault snapshots keyed by player. GetVaultData returns
// an error wrapping apperr.ErrNotFound when nothing is cached.
type CacheStore interface {
	GetVaultData(ctx context.Context, playerID string) (*models.VaultData, error)
	SaveVaultData(ctx context.Context, data *models.VaultData) error
}

type Fetcher interface {
	FetchVault(ctx context.Context, player Player, token string) ([]models.VaultItem, error)
}

// Cache serves vault data from the store while it is fresh and goes to the
// fetcher otherwise. Concurrent refreshes are not serialized; the last save
// wins.
type Cache struct {
	store    CacheStore
	fetcher  Fetcher
	bus      *events.Bus
	ttl      time.Duration
	debounce time.Duration
	now      func() time.Time
}

func NewCache(store CacheStore, fetcher Fetcher, bus *events.Bus, ttl, debounce time.Duration) *Cache {
	return &Cache{
		store:    store,
		fetcher:  fetcher,
		bus:      bus,
		ttl:      ttl,
		debounce: debounce,
		now:      time.Now,
	}
}

// Load returns cached data younger than the TTL unless force is set, in
// which case only data younger than the debounce window is reused.
func (c *Cache) Load(ctx context.Context, player Player, token string, force bool) (*models.VaultData, error) {
	if !player.Valid() {
		return nil, fmt.Errorf("%w: missing membership", apperr.ErrInvalidInput)
	}

	cached, err := c.store.GetVaultData(ctx, player.Key())
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		logger.Warn("Failed to read vault cache", "player", player.Key(), "error", err)
		cached = nil
	}

	if cached != nil {
		age := c.now().Sub(cached.CreatedAt)
		switch {
		case !force && age < c.ttl:
			metrics.VaultFetches.WithLabelValues("cache_hit").Inc()
			return cached, nil
		case force && age < c.debounce:
			metrics.VaultFetches.WithLabelValues("debounced").Inc()
			logger.Debug("Vault refresh debounced", "player", player.Key(), "age", age.String())
			return cached, nil
		}
	}

	items, err := c.fetcher.FetchVault(ctx, player, token)
	if err != nil {
		metrics.VaultFetches.WithLabelValues("error").Inc()
		return nil, err
	}

	data := &models.VaultData{
		PlayerID:  player.Key(),
		Items:     items,
		CreatedAt: c.now(),
	}
	if err := c.store.SaveVaultData(ctx, data); err != nil {
		logger.Warn("Failed to store vault snapshot", "player", player.Key(), "error", err)
	}
	metrics.VaultFetches.WithLabelValues("fetched").Inc()
	c.bus.Publish(events.Event{Kind: events.VaultRefreshed})
	logger.Info("Vault fetched", "player", player.Key(), "weapons", len(items))
	return data, nil
}

// Refresh is a forced load subject to the debounce window.
func (c *Cache) Refresh(ctx context.Context, player Player, token string) (*models.VaultData, error) {
	return c.Load(ctx, player, token, true)
}
