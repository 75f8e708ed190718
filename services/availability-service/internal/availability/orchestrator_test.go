package availability

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/md-rashed-zaman/tourbook/libs/runtime"
	"github.com/md-rashed-zaman/tourbook/services/availability-service/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 2026-03-09 is a Monday; the clock sits two days before it.
var (
	monday  = time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)
	tuesday = monday.AddDate(0, 0, 1)
	now     = time.Date(2026, 3, 7, 9, 0, 0, 0, time.UTC)
)

type fakeCatalog struct {
	mu         sync.Mutex
	product    model.Product
	productErr error
	records    []model.AvailabilityRecord
	recordsErr error
	slots      map[string][]model.SlotConfig
	slotErrs   map[string]error
	slotCalls  []string
}

func (f *fakeCatalog) Product(_ context.Context, id string) (model.Product, error) {
	if f.productErr != nil {
		return model.Product{}, f.productErr
	}
	if id != f.product.ID {
		return model.Product{}, fmt.Errorf("product %s: %w", id, model.ErrNotFound)
	}
	return f.product, nil
}

func (f *fakeCatalog) ProductAvailability(_ context.Context, id string, start, end time.Time) ([]model.AvailabilityRecord, error) {
	if f.recordsErr != nil {
		return nil, f.recordsErr
	}
	var out []model.AvailabilityRecord
	for _, r := range f.records {
		day := model.DateKey(r.Date)
		if day >= model.DateKey(start) && day <= model.DateKey(end) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeCatalog) PackageSlots(_ context.Context, packageID string, _ time.Time) ([]model.SlotConfig, error) {
	f.mu.Lock()
	f.slotCalls = append(f.slotCalls, packageID)
	f.mu.Unlock()
	if err := f.slotErrs[packageID]; err != nil {
		return nil, err
	}
	return f.slots[packageID], nil
}

func mondaySlot(index int, times ...string) model.SlotConfig {
	return model.SlotConfig{Index: index, Times: times, Days: []string{"Monday"}}
}

func newCatalog() *fakeCatalog {
	return &fakeCatalog{
		product: model.Product{
			ID:    "tour-1",
			Title: "Old Town Walk",
			Type:  model.ProductTypeTour,
			Packages: []model.Package{
				{
					ID:            "std",
					Name:          "Standard",
					BasePrice:     1000,
					Currency:      "INR",
					DiscountType:  model.DiscountPercentage,
					DiscountValue: 10,
					PricingType:   model.PricingPerPerson,
					IsActive:      true,
				},
			},
		},
		records: []model.AvailabilityRecord{
			{Date: monday, Status: model.StatusAvailable, Available: 20, Booked: 0},
			{Date: tuesday, Status: model.StatusAvailable, Available: 20, Booked: 0},
		},
		slots: map[string][]model.SlotConfig{
			"std": {mondaySlot(0, "10:00 AM")},
		},
	}
}

func newOrchestrator(c Catalog) *Orchestrator {
	cfg := DefaultConfig()
	cfg.Location = time.UTC
	cfg.LookaheadDays = 14
	return New(c, cfg, runtime.NewDiscardLogger(), WithClock(func() time.Time { return now }))
}

func TestCheckAvailabilityResolvesDiscountedPrice(t *testing.T) {
	o := newOrchestrator(newCatalog())

	res := o.CheckAvailability(context.Background(), Query{ProductID: "tour-1", Date: monday, Adults: 2})

	require.Equal(t, StateResolved, res.State, res.Message)
	assert.Empty(t, res.Reason)
	assert.Equal(t, "2026-03-09", res.Date)
	require.Len(t, res.Packages, 1)
	pkg := res.Packages[0]
	assert.Equal(t, "std", pkg.PackageID)
	assert.Equal(t, 20, pkg.Remaining)
	require.Len(t, pkg.Slots, 1)
	slot := pkg.Slots[0]
	assert.InDelta(t, 900, slot.Price.AdultPrice, 1e-9)
	assert.InDelta(t, 450, slot.Price.ChildPrice, 1e-9)
	assert.InDelta(t, 1800, slot.Price.Total, 1e-9)
	assert.Equal(t, "INR", slot.Price.Currency)
	assert.Equal(t, []string{"10:00 AM"}, slot.BookableTimes)
	assert.InDelta(t, 24, slot.CutoffHours, 1e-9)

	require.NotNil(t, res.Recommended)
	assert.Equal(t, Recommendation{PackageID: "std", SlotIndex: 0, Time: "10:00 AM"}, *res.Recommended)

	got, ok := res.Slot("std", 0)
	require.True(t, ok)
	assert.Equal(t, slot, got)
	_, ok = res.Slot("std", 3)
	assert.False(t, ok)
}

func TestCheckAvailabilityWrongWeekday(t *testing.T) {
	o := newOrchestrator(newCatalog())

	res := o.CheckAvailability(context.Background(), Query{ProductID: "tour-1", Date: tuesday, Adults: 2})

	assert.Equal(t, StateUnavailable, res.State)
	assert.Equal(t, ReasonNoEligibleSlots, res.Reason)
	assert.Empty(t, res.Packages)
	assert.Nil(t, res.Recommended)
}

func TestCheckAvailabilityProductStatus(t *testing.T) {
	cases := map[model.AvailabilityStatus]Reason{
		model.StatusSoldOut:      ReasonSoldOut,
		model.StatusNotOperating: ReasonNotOperating,
		"MAINTENANCE":            ReasonUnknownStatus,
	}
	for status, want := range cases {
		t.Run(string(status), func(t *testing.T) {
			c := newCatalog()
			c.records[0].Status = status
			o := newOrchestrator(c)

			res := o.CheckAvailability(context.Background(), Query{ProductID: "tour-1", Date: monday, Adults: 1})

			assert.Equal(t, StateUnavailable, res.State)
			assert.Equal(t, want, res.Reason)
			assert.Equal(t, want.Message(), res.Message)
			assert.Equal(t, "2026-03-10", res.NextAvailableDate)
			assert.Empty(t, c.slotCalls, "slots must not be fetched")
		})
	}
}

func TestCheckAvailabilityNoRecord(t *testing.T) {
	c := newCatalog()
	c.records = nil
	res := newOrchestrator(c).CheckAvailability(context.Background(), Query{ProductID: "tour-1", Date: monday, Adults: 1})

	assert.Equal(t, StateUnavailable, res.State)
	assert.Equal(t, ReasonNoRecord, res.Reason)
	assert.Empty(t, res.NextAvailableDate)
}

func TestCheckAvailabilityPartyExceedsCapacity(t *testing.T) {
	c := newCatalog()
	c.records[0].Available = 5
	o := newOrchestrator(c)

	res := o.CheckAvailability(context.Background(), Query{ProductID: "tour-1", Date: monday, Adults: 6, Children: 2})
	assert.Equal(t, StateUnavailable, res.State)
	assert.Equal(t, ReasonNoEligibleSlots, res.Reason)

	res = o.CheckAvailability(context.Background(), Query{ProductID: "tour-1", Date: monday, Adults: 3, Children: 2})
	assert.Equal(t, StateResolved, res.State)
}

func TestCheckAvailabilityPreselectedPackageWithoutSlots(t *testing.T) {
	c := newCatalog()
	c.product.Packages = append(c.product.Packages, model.Package{ID: "vip", Name: "VIP", BasePrice: 3000, Currency: "INR", IsActive: true})
	o := newOrchestrator(c)

	res := o.CheckAvailability(context.Background(), Query{ProductID: "tour-1", Date: monday, Adults: 1, PackageID: "vip"})

	assert.Equal(t, StateUnavailable, res.State)
	assert.Equal(t, ReasonNoSlotsForPackage, res.Reason)
	assert.Equal(t, "no time slots for selected package", res.Message)
	assert.Equal(t, []string{"vip"}, c.slotCalls)
}

func TestCheckAvailabilityPreselectedPackageMissing(t *testing.T) {
	c := newCatalog()
	c.product.Packages = append(c.product.Packages, model.Package{ID: "old", IsActive: false})
	o := newOrchestrator(c)

	for _, id := range []string{"nope", "old"} {
		res := o.CheckAvailability(context.Background(), Query{ProductID: "tour-1", Date: monday, Adults: 1, PackageID: id})
		assert.Equal(t, ReasonPackageNotFound, res.Reason, id)
	}
}

func TestCheckAvailabilityPackageRecordOverridesProductCapacity(t *testing.T) {
	c := newCatalog()
	c.product.Packages = append(c.product.Packages, model.Package{ID: "vip", BasePrice: 3000, Currency: "INR", IsActive: true})
	c.slots["vip"] = []model.SlotConfig{mondaySlot(0, "2:00 PM")}
	c.records = append(c.records,
		model.AvailabilityRecord{Date: monday, PackageID: "std", Status: model.StatusAvailable, Available: 2, Booked: 1},
		model.AvailabilityRecord{Date: monday, PackageID: "vip", Status: model.StatusSoldOut},
	)
	o := newOrchestrator(c)

	res := o.CheckAvailability(context.Background(), Query{ProductID: "tour-1", Date: monday, Adults: 1})
	require.Equal(t, StateResolved, res.State)
	require.Len(t, res.Packages, 1)
	assert.Equal(t, "std", res.Packages[0].PackageID)
	assert.Equal(t, 1, res.Packages[0].Remaining)

	res = o.CheckAvailability(context.Background(), Query{ProductID: "tour-1", Date: monday, Adults: 1, PackageID: "vip"})
	assert.Equal(t, ReasonPackageSoldOut, res.Reason)
}

func TestCheckAvailabilityLookupFailures(t *testing.T) {
	boom := errors.New("upstream 502")

	c := newCatalog()
	c.recordsErr = boom
	res := newOrchestrator(c).CheckAvailability(context.Background(), Query{ProductID: "tour-1", Date: monday, Adults: 1})
	assert.Equal(t, StateUnavailable, res.State)
	assert.Equal(t, ReasonLookupFailed, res.Reason)

	c = newCatalog()
	c.productErr = boom
	res = newOrchestrator(c).CheckAvailability(context.Background(), Query{ProductID: "tour-1", Date: monday, Adults: 1})
	assert.Equal(t, ReasonLookupFailed, res.Reason)

	c = newCatalog()
	c.slotErrs = map[string]error{"std": boom}
	res = newOrchestrator(c).CheckAvailability(context.Background(), Query{ProductID: "tour-1", Date: monday, Adults: 1})
	assert.Equal(t, ReasonLookupFailed, res.Reason)

	res = newOrchestrator(c).CheckAvailability(context.Background(), Query{ProductID: "tour-1", Date: monday, Adults: 1, PackageID: "std"})
	assert.Equal(t, ReasonLookupFailed, res.Reason)
}

func TestCheckAvailabilityPartialSlotFailureKeepsOtherPackages(t *testing.T) {
	c := newCatalog()
	c.product.Packages = append(c.product.Packages, model.Package{ID: "vip", BasePrice: 3000, Currency: "INR", IsActive: true})
	c.slots["vip"] = []model.SlotConfig{mondaySlot(0, "2:00 PM")}
	c.slotErrs = map[string]error{"std": errors.New("timeout")}

	res := newOrchestrator(c).CheckAvailability(context.Background(), Query{ProductID: "tour-1", Date: monday, Adults: 1})

	require.Equal(t, StateResolved, res.State)
	require.Len(t, res.Packages, 1)
	assert.Equal(t, "vip", res.Packages[0].PackageID)
	assert.Equal(t, "vip", res.Recommended.PackageID)
}

func TestCheckAvailabilityKeepsPackageOrder(t *testing.T) {
	c := newCatalog()
	for i := 0; i < 6; i++ {
		id := fmt.Sprintf("p%d", i)
		c.product.Packages = append(c.product.Packages, model.Package{ID: id, BasePrice: float64(100 * (i + 1)), IsActive: true})
		c.slots[id] = []model.SlotConfig{mondaySlot(0, "9:00 AM"), mondaySlot(1, "4:00 PM")}
	}

	res := newOrchestrator(c).CheckAvailability(context.Background(), Query{ProductID: "tour-1", Date: monday, Adults: 1})

	require.Equal(t, StateResolved, res.State)
	var ids []string
	for _, p := range res.Packages {
		ids = append(ids, p.PackageID)
	}
	assert.Equal(t, []string{"std", "p0", "p1", "p2", "p3", "p4", "p5"}, ids)
	assert.Len(t, res.Packages[1].Slots, 2)
}

func TestCheckAvailabilityPartyRules(t *testing.T) {
	c := newCatalog()
	c.product.Packages[0].MaxPeople = 4
	c.product.Packages[0].AgeGroups = map[string]model.AgeGroup{"child": {Enabled: false}}
	o := newOrchestrator(c)

	res := o.CheckAvailability(context.Background(), Query{ProductID: "tour-1", Date: monday, Adults: 5})
	assert.Equal(t, ReasonNoEligibleSlots, res.Reason)

	res = o.CheckAvailability(context.Background(), Query{ProductID: "tour-1", Date: monday, Adults: 1, Children: 1, PackageID: "std"})
	assert.Equal(t, ReasonNoSlotsForPackage, res.Reason)

	res = o.CheckAvailability(context.Background(), Query{ProductID: "tour-1", Date: monday, Adults: 4})
	assert.Equal(t, StateResolved, res.State)
}

func TestCheckAvailabilityInvalidQuery(t *testing.T) {
	o := newOrchestrator(newCatalog())
	cases := []Query{
		{Date: monday, Adults: 1},
		{ProductID: "tour-1", Adults: 1},
		{ProductID: "tour-1", Date: monday},
		{ProductID: "tour-1", Date: monday, Adults: -1, Children: 2},
	}
	for _, q := range cases {
		res := o.CheckAvailability(context.Background(), q)
		assert.Equal(t, StateUnavailable, res.State, q.String())
		assert.Equal(t, ReasonInvalidQuery, res.Reason, q.String())
		assert.NotEmpty(t, res.Message)
	}
}

func TestCheckAvailabilityUnknownProduct(t *testing.T) {
	c := newCatalog()
	res := newOrchestrator(c).CheckAvailability(context.Background(), Query{ProductID: "tour-2", Date: monday, Adults: 1})
	// records come back for any id in the fake; the product lookup decides.
	assert.Equal(t, ReasonProductNotFound, res.Reason)
}

func TestCheckAvailabilityCutoffExcludesTooSoonSlots(t *testing.T) {
	c := newCatalog()
	sunday := monday.AddDate(0, 0, -1)
	c.records = append(c.records, model.AvailabilityRecord{Date: sunday, Status: model.StatusAvailable, Available: 10})
	c.slots["std"] = []model.SlotConfig{{Index: 0, Times: []string{"8:00 AM"}, Days: []string{"Sunday"}}}

	res := newOrchestrator(c).CheckAvailability(context.Background(), Query{ProductID: "tour-1", Date: sunday, Adults: 1})

	assert.Equal(t, ReasonNoEligibleSlots, res.Reason)
	assert.Equal(t, "2026-03-09", res.NextAvailableDate)
}

func TestCheckAvailabilityReadsClockOncePerQuery(t *testing.T) {
	// The 10:00 AM Monday slot closes 24h earlier.
	cutoffAt := time.Date(2026, 3, 8, 10, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	calls := 0
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls == 1 {
			return cutoffAt.Add(-time.Nanosecond)
		}
		return cutoffAt
	}
	cfg := DefaultConfig()
	cfg.Location = time.UTC
	o := New(newCatalog(), cfg, runtime.NewDiscardLogger(), WithClock(clock))

	var res Result
	require.NotPanics(t, func() {
		res = o.CheckAvailability(context.Background(), Query{ProductID: "tour-1", Date: monday, Adults: 2})
	})
	require.Equal(t, StateResolved, res.State, res.Message)
	assert.Equal(t, []string{"10:00 AM"}, res.Packages[0].Slots[0].BookableTimes)
	assert.Equal(t, "10:00 AM", res.Recommended.Time)

	res = o.CheckAvailability(context.Background(), Query{ProductID: "tour-1", Date: monday, Adults: 2})
	assert.Equal(t, StateUnavailable, res.State)
	assert.Equal(t, ReasonNoEligibleSlots, res.Reason)
}

func TestCheckAvailabilityRecommendsFirstBookableTime(t *testing.T) {
	// 10:30 on Sunday: Monday 10:00 AM is past its 24h cutoff, 2:00 PM is not.
	sundayLate := time.Date(2026, 3, 8, 10, 30, 0, 0, time.UTC)
	cfg := DefaultConfig()
	cfg.Location = time.UTC

	c := newCatalog()
	c.slots["std"] = []model.SlotConfig{mondaySlot(0, "10:00 AM", "2:00 PM")}
	o := New(c, cfg, runtime.NewDiscardLogger(), WithClock(func() time.Time { return sundayLate }))

	res := o.CheckAvailability(context.Background(), Query{ProductID: "tour-1", Date: monday, Adults: 1})
	require.Equal(t, StateResolved, res.State, res.Message)
	slot := res.Packages[0].Slots[0]
	assert.Equal(t, []string{"10:00 AM", "2:00 PM"}, slot.Times)
	assert.Equal(t, []string{"2:00 PM"}, slot.BookableTimes)
	assert.Equal(t, Recommendation{PackageID: "std", SlotIndex: 0, Time: "2:00 PM"}, *res.Recommended)

	c.slots["std"] = []model.SlotConfig{mondaySlot(0, "9:00 AM"), mondaySlot(1, "11:00 AM", "3:00 PM")}
	res = o.CheckAvailability(context.Background(), Query{ProductID: "tour-1", Date: monday, Adults: 1})
	require.Equal(t, StateResolved, res.State, res.Message)
	require.Len(t, res.Packages[0].Slots, 1)
	assert.Equal(t, Recommendation{PackageID: "std", SlotIndex: 1, Time: "11:00 AM"}, *res.Recommended)
}

func TestRecommendSkipsSlotsWithoutTimes(t *testing.T) {
	pkgs := []PackageResult{
		{PackageID: "a", Slots: []SlotResult{{Index: 0}}},
		{PackageID: "b", Slots: []SlotResult{{Index: 2, BookableTimes: []string{"4:00 PM"}}}},
	}
	assert.Equal(t, &Recommendation{PackageID: "b", SlotIndex: 2, Time: "4:00 PM"}, recommend(pkgs))
	assert.Nil(t, recommend(pkgs[:1]))
}
