package catalog

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/md-rashed-zaman/tourbook/services/availability-service/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadFixture(t *testing.T) *Static {
	t.Helper()
	s, err := LoadStatic("testdata/catalog.yaml", time.UTC)
	require.NoError(t, err)
	return s
}

func TestLoadStatic(t *testing.T) {
	s := loadFixture(t)
	ctx := context.Background()

	p, err := s.Product(ctx, "old-town-walk")
	require.NoError(t, err)
	assert.Equal(t, model.ProductTypeTour, p.Type)
	require.Len(t, p.Packages, 2)

	std := p.Packages[0]
	assert.Equal(t, model.DiscountPercentage, std.DiscountType)
	assert.True(t, std.IsActive)
	assert.True(t, std.AllowsChildren())
	require.Len(t, std.Slots, 2)
	assert.Nil(t, std.Slots[0].CutoffHours)
	require.NotNil(t, std.Slots[1].CutoffHours)
	assert.InDelta(t, 48, *std.Slots[1].CutoffHours, 1e-9)
	assert.Equal(t, 1, std.Slots[1].Index)
	assert.Equal(t, []model.Tier{{Min: 1, Max: 4, Price: 1200}}, std.Slots[1].AdultTiers)

	private := p.Packages[1]
	assert.Equal(t, model.PricingPerGroup, private.PricingType)
	assert.False(t, private.AllowsChildren())

	_, err = s.Product(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStaticAvailabilityRange(t *testing.T) {
	s := loadFixture(t)
	ctx := context.Background()
	start := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)

	recs, err := s.ProductAvailability(ctx, "old-town-walk", start, start.AddDate(0, 0, 2))
	require.NoError(t, err)
	assert.Len(t, recs, 4)

	rec, ok := model.ProductStatusOn(recs, start.AddDate(0, 0, 1))
	require.True(t, ok)
	assert.Equal(t, model.StatusNotOperating, rec.Status)

	pkgRec, ok := model.PackageStatusOn(recs, start, "walk-private")
	require.True(t, ok)
	assert.Equal(t, 6, pkgRec.Remaining())

	slots, err := s.PackageSlots(ctx, "walk-private", start)
	require.NoError(t, err)
	assert.Len(t, slots, 1)

	_, err = s.PackageSlots(ctx, "nope", start)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestParseStaticRejectsBadFiles(t *testing.T) {
	cases := map[string]string{
		"empty":           "products: []\n",
		"missing id":      "products:\n  - title: x\n",
		"unknown field":   "products:\n  - id: a\n    colour: red\n",
		"negative price":  "products:\n  - id: a\n    packages:\n      - id: p\n        basePrice: -1\n",
		"unknown product": "products:\n  - id: a\navailability:\n  - { productId: b, date: 2026-03-09, status: AVAILABLE }\n",
		"bad date":        "products:\n  - id: a\navailability:\n  - { productId: a, date: soon, status: AVAILABLE }\n",
		"duplicate pkg":   "products:\n  - id: a\n    packages: [{id: p}]\n  - id: b\n    packages: [{id: p}]\n",
		"cutoff list":     "products:\n  - id: a\n    packages:\n      - id: p\n        slots:\n          - { times: [\"9:00 AM\"], days: [Monday], cutoffTime: [1, 2] }\n",
		"cutoff map":      "products:\n  - id: a\n    packages:\n      - id: p\n        slots:\n          - { times: [\"9:00 AM\"], days: [Monday], cutoffTime: {hours: 2} }\n",
		"bad end date":    "products:\n  - id: a\n    packages:\n      - { id: p, endDate: someday }\n",
		"bad cutoff":      "products:\n  - id: a\n    packages:\n      - id: p\n        slots:\n          - { times: [\"9:00 AM\"], days: [Monday], cutoffTime: soon }\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseStatic(strings.NewReader(doc), time.UTC)
			assert.Error(t, err)
		})
	}
}
