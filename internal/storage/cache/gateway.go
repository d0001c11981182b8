// Package cache decorates a storage.Gateway with a Redis read-aside cache.
package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/tinywideclouds/go-florist-service/pkg/florist"
	"github.com/tinywideclouds/go-florist-service/pkg/storage"
)

// CacheClient defines the subset of Redis commands we need.
type CacheClient interface {
	// Get decodes the value into dest, or returns an error on a miss.
	Get(ctx context.Context, key string, dest interface{}) error
	// Set stores the value with a TTL.
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	// Del removes the keys.
	Del(ctx context.Context, keys ...string) error
}

// CachedGateway is a Decorator that adds Read-Aside caching to any Gateway.
// Writes go to the real gateway first, then invalidate the affected keys.
type CachedGateway struct {
	real   storage.Gateway
	cache  CacheClient
	ttl    time.Duration
	logger *slog.Logger
}

var _ storage.Gateway = (*CachedGateway)(nil)

func NewCachedGateway(real storage.Gateway, cache CacheClient, ttl time.Duration, logger *slog.Logger) *CachedGateway {
	return &CachedGateway{
		real:   real,
		cache:  cache,
		ttl:    ttl,
		logger: logger.With("component", "CachedGateway"),
	}
}

// readAside serves key from the cache, or loads it and populates the cache.
// Cache failures only cost a trip to the real gateway.
func readAside[T any](ctx context.Context, g *CachedGateway, key string, load func() (T, error)) (T, error) {
	var cached T
	if err := g.cache.Get(ctx, key, &cached); err == nil {
		return cached, nil
	}

	fresh, err := load()
	if err != nil {
		return fresh, err
	}
	if err := g.cache.Set(ctx, key, fresh, g.ttl); err != nil {
		g.logger.Debug("Failed to populate cache", "key", key, "err", err)
	}
	return fresh, nil
}

// --- READ PATH (Read-Aside) ---

func (g *CachedGateway) ListFlorists(ctx context.Context) ([]florist.Florist, error) {
	return readAside(ctx, g, floristsKey(), func() ([]florist.Florist, error) {
		return g.real.ListFlorists(ctx)
	})
}

func (g *CachedGateway) GetFlorist(ctx context.Context, id string) (florist.Florist, error) {
	return readAside(ctx, g, floristKey(id), func() (florist.Florist, error) {
		return g.real.GetFlorist(ctx, id)
	})
}

func (g *CachedGateway) ListPromotions(ctx context.Context, floristID string) ([]florist.Promotion, error) {
	return readAside(ctx, g, promotionsKey(floristID), func() ([]florist.Promotion, error) {
		return g.real.ListPromotions(ctx, floristID)
	})
}

func (g *CachedGateway) ListSubscribers(ctx context.Context, floristID string) ([]florist.Subscriber, error) {
	return readAside(ctx, g, subscribersKey(floristID), func() ([]florist.Subscriber, error) {
		return g.real.ListSubscribers(ctx, floristID)
	})
}

// --- WRITE PATHS (Invalidate-on-Write) ---

func (g *CachedGateway) InsertFlorist(ctx context.Context, f florist.Florist) (florist.Florist, error) {
	created, err := g.real.InsertFlorist(ctx, f)
	if err != nil {
		return created, err
	}
	g.invalidate(ctx, floristsKey())
	return created, nil
}

func (g *CachedGateway) UpdateFlorist(ctx context.Context, id string, patch florist.FloristPatch) (florist.Florist, error) {
	updated, err := g.real.UpdateFlorist(ctx, id, patch)
	if err != nil {
		return updated, err
	}
	g.invalidate(ctx, floristsKey(), floristKey(id))
	return updated, nil
}

func (g *CachedGateway) DeleteFlorist(ctx context.Context, id string) error {
	if err := g.real.DeleteFlorist(ctx, id); err != nil {
		return err
	}
	g.invalidate(ctx, floristsKey(), floristKey(id), promotionsKey(id), subscribersKey(id))
	return nil
}

func (g *CachedGateway) InsertPromotion(ctx context.Context, p florist.Promotion) (florist.Promotion, error) {
	created, err := g.real.InsertPromotion(ctx, p)
	if err != nil {
		return created, err
	}
	g.invalidate(ctx, promotionsKey(p.FloristID))
	return created, nil
}

func (g *CachedGateway) UpdatePromotion(ctx context.Context, floristID, id string, patch florist.PromotionPatch) (florist.Promotion, error) {
	updated, err := g.real.UpdatePromotion(ctx, floristID, id, patch)
	if err != nil {
		return updated, err
	}
	g.invalidate(ctx, promotionsKey(floristID))
	return updated, nil
}

func (g *CachedGateway) DeletePromotion(ctx context.Context, floristID, id string) error {
	if err := g.real.DeletePromotion(ctx, floristID, id); err != nil {
		return err
	}
	g.invalidate(ctx, promotionsKey(floristID))
	return nil
}

func (g *CachedGateway) InsertSubscriber(ctx context.Context, s florist.Subscriber) (florist.Subscriber, error) {
	created, err := g.real.InsertSubscriber(ctx, s)
	if err != nil {
		return created, err
	}
	g.invalidate(ctx, subscribersKey(s.FloristID))
	return created, nil
}

// --- Helpers ---

// invalidate drops keys after a successful write. The write already
// happened, so a failure here is logged and the TTL bounds the staleness.
func (g *CachedGateway) invalidate(ctx context.Context, keys ...string) {
	if err := g.cache.Del(ctx, keys...); err != nil {
		g.logger.Warn("Failed to invalidate cache", "keys", keys, "err", err)
	}
}

func floristsKey() string                    { return "florist:florists" }
func floristKey(id string) string            { return "florist:florist:" + id }
func promotionsKey(floristID string) string  { return "florist:promotions:" + floristID }
func subscribersKey(floristID string) string { return "florist:subscribers:" + floristID }
