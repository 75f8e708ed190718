package slots

import (
	"strings"
	"time"

	"github.com/md-rashed-zaman/tourbook/services/availability-service/internal/cutoff"
	"github.com/md-rashed-zaman/tourbook/services/availability-service/internal/model"
)

// Capacity is the server-resolved seat count for the package (or product) on the queried date.
type Capacity struct {
	Available int
	Booked    int
}

func (c Capacity) Remaining() int {
	return c.Available - c.Booked
}

func CapacityOf(r model.AvailabilityRecord) Capacity {
	return Capacity{Available: r.Available, Booked: r.Booked}
}

type Filter struct {
	cutoff *cutoff.Evaluator
}

func NewFilter(ev *cutoff.Evaluator) *Filter {
	return &Filter{cutoff: ev}
}

// Eligible is a retained slot with the times that passed the cutoff when it was filtered.
// Times is never empty.
type Eligible struct {
	Slot  model.SlotConfig
	Times []string
}

// Filter keeps, in input order, the slots that run on date's weekday, have at least one
// time before its cutoff, and fit partySize into the remaining capacity. Slots with no
// times or no days never match.
func (f *Filter) Filter(slots []model.SlotConfig, date time.Time, partySize int, capacity Capacity) []model.SlotConfig {
	eligible := f.Eligible(slots, date, partySize, capacity)
	if len(eligible) == 0 {
		return nil
	}
	out := make([]model.SlotConfig, len(eligible))
	for i, e := range eligible {
		out[i] = e.Slot
	}
	return out
}

// Eligible applies the same rules as Filter and keeps the bookable times it computed, so
// callers never re-evaluate the cutoff against a later clock reading.
func (f *Filter) Eligible(slots []model.SlotConfig, date time.Time, partySize int, capacity Capacity) []Eligible {
	if len(slots) == 0 || capacity.Remaining() < partySize {
		return nil
	}

	var out []Eligible
	for _, slot := range slots {
		if !MatchesDay(slot, date) {
			continue
		}
		times := f.BookableTimes(slot, date)
		if len(times) == 0 {
			continue
		}
		out = append(out, Eligible{Slot: slot, Times: times})
	}
	return out
}

// BookableTimes returns the slot's times on date that are still before their cutoff.
func (f *Filter) BookableTimes(slot model.SlotConfig, date time.Time) []string {
	var times []string
	for _, literal := range slot.Times {
		if strings.TrimSpace(literal) == "" {
			continue
		}
		if f.cutoff.SlotBookable(slot, date, literal).IsBookable {
			times = append(times, literal)
		}
	}
	return times
}

// MatchesDay compares English long weekday names case-insensitively.
func MatchesDay(slot model.SlotConfig, date time.Time) bool {
	weekday := date.Weekday().String()
	for _, d := range slot.Days {
		if strings.EqualFold(strings.TrimSpace(d), weekday) {
			return true
		}
	}
	return false
}
