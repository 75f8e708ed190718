package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/tourbook/services/availability-service/internal/model"
	"github.com/redis/go-redis/v9"
)

const cachePrefix = "catalog:v1"

// Source is the catalogue surface a Cache wraps.
type Source interface {
	Product(ctx context.Context, productID string) (model.Product, error)
	ProductAvailability(ctx context.Context, productID string, start, end time.Time) ([]model.AvailabilityRecord, error)
	PackageSlots(ctx context.Context, packageID string, date time.Time) ([]model.SlotConfig, error)
}

// Cache is a Redis read-through cache in front of a Source. Redis failures fall back to the
// source; errors from the source are never cached.
type Cache struct {
	next   Source
	rdb    *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func NewCache(next Source, rdb *redis.Client, ttl time.Duration, logger *slog.Logger) *Cache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Cache{next: next, rdb: rdb, ttl: ttl, logger: logger}
}

func productKey(productID string) string {
	return fmt.Sprintf("%s:product:%s", cachePrefix, productID)
}

func availabilityKey(productID string, start, end time.Time) string {
	return fmt.Sprintf("%s:avail:%s:%s:%s", cachePrefix, productID, model.DateKey(start), model.DateKey(end))
}

func slotsKey(packageID string, date time.Time) string {
	return fmt.Sprintf("%s:slots:%s:%s", cachePrefix, packageID, model.DateKey(date))
}

func (c *Cache) Product(ctx context.Context, productID string) (model.Product, error) {
	return readThrough(ctx, c, productKey(productID), func() (model.Product, error) {
		return c.next.Product(ctx, productID)
	})
}

func (c *Cache) ProductAvailability(ctx context.Context, productID string, start, end time.Time) ([]model.AvailabilityRecord, error) {
	return readThrough(ctx, c, availabilityKey(productID, start, end), func() ([]model.AvailabilityRecord, error) {
		return c.next.ProductAvailability(ctx, productID, start, end)
	})
}

func (c *Cache) PackageSlots(ctx context.Context, packageID string, date time.Time) ([]model.SlotConfig, error) {
	return readThrough(ctx, c, slotsKey(packageID, date), func() ([]model.SlotConfig, error) {
		return c.next.PackageSlots(ctx, packageID, date)
	})
}

func readThrough[T any](ctx context.Context, c *Cache, key string, load func() (T, error)) (T, error) {
	raw, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var v T
		decodeErr := json.Unmarshal(raw, &v)
		if decodeErr == nil {
			return v, nil
		}
		c.logger.Warn("cache entry unreadable", "err", decodeErr, "key", key)
	case errors.Is(err, redis.Nil):
	default:
		c.logger.Warn("cache read failed", "err", err, "key", key)
	}

	v, err := load()
	if err != nil {
		return v, err
	}
	if payload, err := json.Marshal(v); err == nil {
		if err := c.rdb.Set(ctx, key, payload, c.ttl).Err(); err != nil {
			c.logger.Warn("cache write failed", "err", err, "key", key)
		}
	}
	return v, nil
}

// InvalidateProduct drops the product, its availability ranges and the slots of every
// package it is known to have. Returns the number of keys removed.
func (c *Cache) InvalidateProduct(ctx context.Context, productID string) (int, error) {
	var packageIDs []string
	if raw, err := c.rdb.Get(ctx, productKey(productID)).Bytes(); err == nil {
		var p model.Product
		if json.Unmarshal(raw, &p) == nil {
			for _, pkg := range p.Packages {
				packageIDs = append(packageIDs, pkg.ID)
			}
		}
	}

	removed, err := c.deleteMatching(ctx, fmt.Sprintf("%s:avail:%s:*", cachePrefix, productID))
	if err != nil {
		return removed, err
	}
	n, err := c.rdb.Del(ctx, productKey(productID)).Result()
	if err != nil {
		return removed, fmt.Errorf("delete product key: %w", err)
	}
	removed += int(n)
	for _, id := range packageIDs {
		n, err := c.InvalidatePackage(ctx, id)
		removed += n
		if err != nil {
			return removed, err
		}
	}
	return removed, nil
}

func (c *Cache) InvalidatePackage(ctx context.Context, packageID string) (int, error) {
	return c.deleteMatching(ctx, fmt.Sprintf("%s:slots:%s:*", cachePrefix, packageID))
}

func (c *Cache) deleteMatching(ctx context.Context, pattern string) (int, error) {
	var keys []string
	iter := c.rdb.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("scan %s: %w", pattern, err)
	}
	if len(keys) == 0 {
		return 0, nil
	}
	n, err := c.rdb.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("delete %s: %w", pattern, err)
	}
	return int(n), nil
}
