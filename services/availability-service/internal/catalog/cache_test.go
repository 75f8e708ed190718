package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/md-rashed-zaman/tourbook/libs/runtime"
	"github.com/md-rashed-zaman/tourbook/services/availability-service/internal/model"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSource struct {
	Source
	products int
	err      error
}

func (c *countingSource) Product(ctx context.Context, id string) (model.Product, error) {
	c.products++
	if c.err != nil {
		return model.Product{}, c.err
	}
	return c.Source.Product(ctx, id)
}

// unreachableRedis points at a closed port so every command fails fast.
func unreachableRedis(t *testing.T) *redis.Client {
	t.Helper()
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestCacheKeys(t *testing.T) {
	day := time.Date(2026, 3, 9, 15, 0, 0, 0, time.UTC)
	assert.Equal(t, "catalog:v1:product:tour-1", productKey("tour-1"))
	assert.Equal(t, "catalog:v1:avail:tour-1:2026-03-09:2026-03-19", availabilityKey("tour-1", day, day.AddDate(0, 0, 10)))
	assert.Equal(t, "catalog:v1:slots:std:2026-03-09", slotsKey("std", day))
}

func TestCacheFailsOpen(t *testing.T) {
	src := &countingSource{Source: loadFixture(t)}
	c := NewCache(src, unreachableRedis(t), time.Minute, runtime.NewDiscardLogger())

	p, err := c.Product(context.Background(), "old-town-walk")
	require.NoError(t, err)
	assert.Equal(t, "Old Town Walk", p.Title)
	assert.Equal(t, 1, src.products)

	slots, err := c.PackageSlots(context.Background(), "walk-private", time.Now())
	require.NoError(t, err)
	assert.Len(t, slots, 1)
}

func TestCachePassesSourceErrors(t *testing.T) {
	boom := errors.New("backend down")
	src := &countingSource{Source: loadFixture(t), err: boom}
	c := NewCache(src, unreachableRedis(t), time.Minute, runtime.NewDiscardLogger())

	_, err := c.Product(context.Background(), "old-town-walk")
	assert.ErrorIs(t, err, boom)
}

func TestCacheInvalidateReportsRedisErrors(t *testing.T) {
	c := NewCache(loadFixture(t), unreachableRedis(t), time.Minute, runtime.NewDiscardLogger())

	_, err := c.InvalidateProduct(context.Background(), "old-town-walk")
	assert.Error(t, err)
}
