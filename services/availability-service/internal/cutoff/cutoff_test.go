package cutoff

import (
	"testing"
	"time"

	"github.com/md-rashed-zaman/tourbook/services/availability-service/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestParseTimeOfDay(t *testing.T) {
	cases := map[string][2]int{
		"10:00 AM":   {10, 0},
		"10:00am":    {10, 0},
		" 9:30  pm":  {21, 30},
		"9 PM":       {21, 0},
		"12:00 AM":   {0, 0},
		"12:15 PM":   {12, 15},
		"07:05 a.m.": {7, 5},
		"14:30":      {14, 30},
		"06:45:10":   {6, 45},
	}
	for literal, want := range cases {
		h, m, err := ParseTimeOfDay(literal)
		require.NoError(t, err, literal)
		assert.Equal(t, want[0], h, literal)
		assert.Equal(t, want[1], m, literal)
	}

	for _, bad := range []string{"", "sunrise", "25:00", "13:00 PM", "10:00 XM"} {
		_, _, err := ParseTimeOfDay(bad)
		assert.Error(t, err, bad)
	}
}

func TestCutoffBoundary(t *testing.T) {
	loc := time.UTC
	start := time.Date(2026, 3, 9, 10, 0, 0, 0, loc)

	before := NewEvaluator(loc, fixedClock(start.Add(-24*time.Hour-time.Nanosecond)), DefaultCutoffHours)
	v := before.IsSlotBookable("2026-03-09", "10:00 AM", 24)
	assert.True(t, v.IsBookable)
	assert.Empty(t, v.Reason)
	assert.Equal(t, start, v.SlotStart)
	assert.Equal(t, start.Add(-24*time.Hour), v.CutoffAt)

	at := NewEvaluator(loc, fixedClock(start.Add(-24*time.Hour)), DefaultCutoffHours)
	v = at.IsSlotBookable("2026-03-09", "10:00 AM", 24)
	assert.False(t, v.IsBookable)
	assert.Equal(t, ReasonCutoffPassed, v.Reason)

	within := NewEvaluator(loc, fixedClock(start.Add(-2*time.Hour)), DefaultCutoffHours)
	assert.False(t, within.IsSlotBookable("2026-03-09", "10:00 AM", 24).IsBookable)
	assert.True(t, within.IsSlotBookable("2026-03-09", "10:00 AM", 1.5).IsBookable)
}

func TestMalformedInputsAreNotBookable(t *testing.T) {
	ev := NewEvaluator(time.UTC, fixedClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)), DefaultCutoffHours)

	v := ev.IsSlotBookable("2026-13-40", "10:00 AM", 24)
	assert.False(t, v.IsBookable)
	assert.Equal(t, ReasonInvalidDate, v.Reason)

	v = ev.IsSlotBookable("2026-03-09", "whenever", 24)
	assert.False(t, v.IsBookable)
	assert.Equal(t, ReasonInvalidTime, v.Reason)
}

func TestSlotBookableUsesDefaultCutoff(t *testing.T) {
	loc := time.UTC
	date := time.Date(2026, 3, 9, 0, 0, 0, 0, loc)
	// 20 hours before a 10:00 slot: inside the 24h default, outside a 12h explicit cutoff.
	ev := NewEvaluator(loc, fixedClock(time.Date(2026, 3, 8, 14, 0, 0, 0, loc)), DefaultCutoffHours)

	assert.False(t, ev.SlotBookable(model.SlotConfig{}, date, "10:00 AM").IsBookable)

	twelve := 12.0
	assert.True(t, ev.SlotBookable(model.SlotConfig{CutoffHours: &twelve}, date, "10:00 AM").IsBookable)

	negative := -5.0
	assert.False(t, ev.SlotBookable(model.SlotConfig{CutoffHours: &negative}, date, "10:00 AM").IsBookable)
}

func TestEvaluatorRespectsLocation(t *testing.T) {
	kolkata, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)
	// 10:00 IST on 9 March is 04:30 UTC; cutoff with 0 hours is that instant.
	ev := NewEvaluator(kolkata, fixedClock(time.Date(2026, 3, 9, 4, 29, 0, 0, time.UTC)), 0)
	assert.True(t, ev.IsSlotBookable("2026-03-09", "10:00", 0).IsBookable)

	ev = NewEvaluator(kolkata, fixedClock(time.Date(2026, 3, 9, 4, 31, 0, 0, time.UTC)), 0)
	assert.False(t, ev.IsSlotBookable("2026-03-09", "10:00", 0).IsBookable)
}

func TestAtFreezesClock(t *testing.T) {
	cutoffAt := time.Date(2026, 3, 8, 10, 0, 0, 0, time.UTC)
	calls := 0
	ev := NewEvaluator(time.UTC, func() time.Time {
		calls++
		return cutoffAt.Add(time.Duration(calls) * time.Hour)
	}, DefaultCutoffHours)

	frozen := ev.At(cutoffAt.Add(-time.Nanosecond))
	for i := 0; i < 3; i++ {
		assert.True(t, frozen.IsSlotBookable("2026-03-09", "10:00 AM", 24).IsBookable)
	}
	assert.Zero(t, calls)
	assert.False(t, ev.IsSlotBookable("2026-03-09", "10:00 AM", 24).IsBookable)
}
