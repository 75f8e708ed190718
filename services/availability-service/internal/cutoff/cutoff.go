package cutoff

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/md-rashed-zaman/tourbook/services/availability-service/internal/model"
)

const DefaultCutoffHours = 24

const (
	ReasonCutoffPassed = "booking cutoff has passed"
	ReasonInvalidDate  = "slot date could not be parsed"
	ReasonInvalidTime  = "slot time could not be parsed"
)

// Verdict is the outcome for one date+time. SlotStart and CutoffAt are zero when parsing failed.
type Verdict struct {
	IsBookable bool
	Reason     string
	SlotStart  time.Time
	CutoffAt   time.Time
}

// Evaluator decides whether a slot can still be booked relative to its clock.
type Evaluator struct {
	now           func() time.Time
	loc           *time.Location
	defaultCutoff float64
}

func NewEvaluator(loc *time.Location, now func() time.Time, defaultCutoffHours float64) *Evaluator {
	if loc == nil {
		loc = time.Local
	}
	if now == nil {
		now = time.Now
	}
	if defaultCutoffHours < 0 || math.IsNaN(defaultCutoffHours) || math.IsInf(defaultCutoffHours, 0) {
		defaultCutoffHours = DefaultCutoffHours
	}
	return &Evaluator{now: now, loc: loc, defaultCutoff: defaultCutoffHours}
}

// At returns a copy of e whose clock is frozen at now, so every verdict of one query agrees.
func (e *Evaluator) At(now time.Time) *Evaluator {
	frozen := *e
	frozen.now = func() time.Time { return now }
	return &frozen
}

// IsSlotBookable reports whether now is strictly before slotStart - cutoffHours.
// dateISO is yyyy-MM-dd; timeLiteral is a display string such as "10:00 AM".
// Negative or non-finite cutoffs fall back to the evaluator default.
func (e *Evaluator) IsSlotBookable(dateISO, timeLiteral string, cutoffHours float64) Verdict {
	if cutoffHours < 0 || math.IsNaN(cutoffHours) || math.IsInf(cutoffHours, 0) {
		cutoffHours = e.defaultCutoff
	}
	day, err := model.ParseDate(dateISO, e.loc)
	if err != nil {
		return Verdict{Reason: ReasonInvalidDate}
	}
	hour, minute, err := ParseTimeOfDay(timeLiteral)
	if err != nil {
		return Verdict{Reason: ReasonInvalidTime}
	}

	start := time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, e.loc)
	cutoffAt := start.Add(-time.Duration(cutoffHours * float64(time.Hour)))
	v := Verdict{SlotStart: start, CutoffAt: cutoffAt}
	if e.now().Before(cutoffAt) {
		v.IsBookable = true
		return v
	}
	v.Reason = ReasonCutoffPassed
	return v
}

// SlotBookable evaluates one time of slot on date, using the default cutoff when the slot
// does not set one.
func (e *Evaluator) SlotBookable(slot model.SlotConfig, date time.Time, timeLiteral string) Verdict {
	hours := e.defaultCutoff
	if slot.CutoffHours != nil {
		hours = *slot.CutoffHours
	}
	return e.IsSlotBookable(model.DateKey(date), timeLiteral, hours)
}

var timeLayouts = []string{
	"3:04 PM",
	"3:04:05 PM",
	"3 PM",
	"15:04",
	"15:04:05",
}

// ParseTimeOfDay accepts 12-hour ("10:00 AM", "10am", "9 p.m.") and 24-hour ("14:30") literals.
func ParseTimeOfDay(literal string) (hour, minute int, err error) {
	s := normalizeTimeLiteral(literal)
	if s == "" {
		return 0, 0, fmt.Errorf("empty time literal")
	}
	for _, layout := range timeLayouts {
		t, perr := time.Parse(layout, s)
		if perr == nil {
			return t.Hour(), t.Minute(), nil
		}
	}
	return 0, 0, fmt.Errorf("unrecognised time literal %q", literal)
}

func normalizeTimeLiteral(literal string) string {
	s := strings.ToUpper(strings.Join(strings.Fields(literal), " "))
	s = strings.ReplaceAll(s, ".", "")
	for _, suffix := range []string{"AM", "PM"} {
		if strings.HasSuffix(s, suffix) {
			head := strings.TrimSpace(strings.TrimSuffix(s, suffix))
			return head + " " + suffix
		}
	}
	return s
}
