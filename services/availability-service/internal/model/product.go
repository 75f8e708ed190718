package model

import (
	"strings"
	"time"
)

// DateLayout is the wire and display format for calendar dates.
const DateLayout = "2006-01-02"

type ProductType string

const (
	ProductTypeTour       ProductType = "TOUR"
	ProductTypeExperience ProductType = "EXPERIENCE"
)

type AvailabilityStatus string

const (
	StatusAvailable    AvailabilityStatus = "AVAILABLE"
	StatusSoldOut      AvailabilityStatus = "SOLD_OUT"
	StatusNotOperating AvailabilityStatus = "NOT_OPERATING"
)

type DiscountType string

const (
	DiscountNone       DiscountType = "none"
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

type PricingType string

const (
	PricingPerPerson PricingType = "per_person"
	PricingPerGroup  PricingType = "per_group"
)

// Product is a bookable tour or experience. AvailabilityStatus and NextAvailableDate are
// derived from the server's per-date records, not stored on the product itself.
type Product struct {
	ID                 string
	Title              string
	Type               ProductType
	Capacity           int
	Duration           string
	AvailabilityStatus AvailabilityStatus
	NextAvailableDate  *time.Time
	Packages           []Package
}

func (p Product) Package(id string) (Package, bool) {
	for _, pkg := range p.Packages {
		if pkg.ID == id {
			return pkg, true
		}
	}
	return Package{}, false
}

type AgeGroup struct {
	Enabled bool
	Min     int
	Max     int
}

// Package is a purchasable pricing configuration of a product.
// DiscountValue is ignored when DiscountType is none.
type Package struct {
	ID            string
	Name          string
	BasePrice     float64
	Currency      string
	DiscountType  DiscountType
	DiscountValue float64
	PricingType   PricingType
	MaxPeople     int
	AgeGroups     map[string]AgeGroup
	IsActive      bool
	StartDate     *time.Time
	EndDate       *time.Time
	Slots         []SlotConfig
}

// ValidOn reports whether the package is active and its validity window (inclusive,
// compared by calendar day) contains date. Open ends are unbounded.
func (p Package) ValidOn(date time.Time) bool {
	if !p.IsActive {
		return false
	}
	day := DateKey(date)
	if p.StartDate != nil && day < DateKey(*p.StartDate) {
		return false
	}
	if p.EndDate != nil && day > DateKey(*p.EndDate) {
		return false
	}
	return true
}

// AllowsChildren is false only when a child age group is configured and disabled.
func (p Package) AllowsChildren() bool {
	for name, group := range p.AgeGroups {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "child", "children", "kids":
			if !group.Enabled {
				return false
			}
		}
	}
	return true
}

// Tier is a capacity-banded price override.
type Tier struct {
	Min   int
	Max   int
	Price float64
}

// SlotConfig is a recurring weekly time-slot rule. It has no identity of its own and is
// addressed by Index, its position in the package's slot list.
type SlotConfig struct {
	Index       int
	ID          string
	Times       []string
	Days        []string
	AdultTiers  []Tier
	ChildTiers  []Tier
	CutoffHours *float64
}

// AvailabilityRecord is the server-owned status of a product (or one of its packages when
// PackageID is set) on a single date.
type AvailabilityRecord struct {
	Date      time.Time
	Status    AvailabilityStatus
	Available int
	Booked    int
	PackageID string
}

func (r AvailabilityRecord) Remaining() int {
	return r.Available - r.Booked
}

// Selection is the per-page booking state the storefront resolves into a quote.
type Selection struct {
	Date      time.Time
	Adults    int
	Children  int
	PackageID string
	SlotIndex int
	Time      string
}

func (s Selection) PartySize() int {
	return s.Adults + s.Children
}

// SameQuery reports whether two selections would produce the same availability query;
// slot and time choices do not count.
func (s Selection) SameQuery(o Selection) bool {
	return DateKey(s.Date) == DateKey(o.Date) &&
		s.Adults == o.Adults &&
		s.Children == o.Children &&
		s.PackageID == o.PackageID
}

func DateKey(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(DateLayout)
}

// ParseDate parses a yyyy-MM-dd date as midnight in loc.
func ParseDate(raw string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	return time.ParseInLocation(DateLayout, strings.TrimSpace(raw), loc)
}

// StartOfDay keeps the calendar day of t and moves it to midnight in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// ProductStatusOn returns the product-level record for the calendar day of date.
func ProductStatusOn(records []AvailabilityRecord, date time.Time) (AvailabilityRecord, bool) {
	day := DateKey(date)
	for _, r := range records {
		if r.PackageID == "" && DateKey(r.Date) == day {
			return r, true
		}
	}
	return AvailabilityRecord{}, false
}

// PackageStatusOn returns the record tied to packageID on the calendar day of date.
func PackageStatusOn(records []AvailabilityRecord, date time.Time, packageID string) (AvailabilityRecord, bool) {
	if packageID == "" {
		return AvailabilityRecord{}, false
	}
	day := DateKey(date)
	for _, r := range records {
		if r.PackageID == packageID && DateKey(r.Date) == day {
			return r, true
		}
	}
	return AvailabilityRecord{}, false
}

// NextAvailable returns the earliest product-level AVAILABLE date strictly after `after`
// and no later than `until`.
func NextAvailable(records []AvailabilityRecord, after, until time.Time) (time.Time, bool) {
	from, to := DateKey(after), DateKey(until)
	var best time.Time
	found := false
	for _, r := range records {
		if r.PackageID != "" || r.Status != StatusAvailable {
			continue
		}
		day := DateKey(r.Date)
		if day <= from || day > to {
			continue
		}
		if !found || r.Date.Before(best) {
			best = r.Date
			found = true
		}
	}
	return best, found
}
