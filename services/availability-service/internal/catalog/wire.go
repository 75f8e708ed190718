package catalog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/md-rashed-zaman/tourbook/services/availability-service/internal/model"
	"gopkg.in/yaml.v3"
)

// ErrNotFound is returned (wrapped) for unknown products and packages.
var ErrNotFound = model.ErrNotFound

// Hours is a cutoff window that may arrive as a number, a numeric string, or not at all.
type Hours struct {
	Value float64
	Set   bool
}

func (h *Hours) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*h = Hours{}
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		return h.parse(s)
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("cutoff hours: %w", err)
	}
	*h = Hours{Value: v, Set: true}
	return nil
}

func (h *Hours) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.ScalarNode {
		return fmt.Errorf("cutoff hours: line %d: expected a number", n.Line)
	}
	if n.Tag == "!!null" {
		*h = Hours{}
		return nil
	}
	return h.parse(n.Value)
}

func (h Hours) MarshalJSON() ([]byte, error) {
	if !h.Set {
		return []byte("null"), nil
	}
	return json.Marshal(h.Value)
}

func (h *Hours) parse(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		*h = Hours{}
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("cutoff hours %q: %w", s, err)
	}
	*h = Hours{Value: v, Set: true}
	return nil
}

func (h Hours) ptr() *float64 {
	if !h.Set {
		return nil
	}
	v := h.Value
	return &v
}

type productDTO struct {
	ID                 string       `json:"id" yaml:"id" validate:"required"`
	Title              string       `json:"title" yaml:"title"`
	Type               string       `json:"type" yaml:"type" validate:"omitempty,oneof=TOUR EXPERIENCE tour experience"`
	Capacity           int          `json:"capacity" yaml:"capacity" validate:"gte=0"`
	Duration           string       `json:"duration" yaml:"duration"`
	AvailabilityStatus string       `json:"availabilityStatus,omitempty" yaml:"availabilityStatus"`
	NextAvailableDate  string       `json:"nextAvailableDate,omitempty" yaml:"nextAvailableDate"`
	Packages           []packageDTO `json:"packages" yaml:"packages" validate:"dive"`
}

type ageGroupDTO struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
	Min     int  `json:"min" yaml:"min"`
	Max     int  `json:"max" yaml:"max"`
}

type packageDTO struct {
	ID            string                 `json:"id" yaml:"id" validate:"required"`
	Name          string                 `json:"name" yaml:"name"`
	BasePrice     float64                `json:"basePrice" yaml:"basePrice" validate:"gte=0"`
	Currency      string                 `json:"currency" yaml:"currency" validate:"omitempty,len=3"`
	DiscountType  string                 `json:"discountType" yaml:"discountType"`
	DiscountValue float64                `json:"discountValue" yaml:"discountValue" validate:"gte=0"`
	PricingType   string                 `json:"pricingType" yaml:"pricingType"`
	MaxPeople     int                    `json:"maxPeople" yaml:"maxPeople" validate:"gte=0"`
	AgeGroups     map[string]ageGroupDTO `json:"ageGroups" yaml:"ageGroups"`
	IsActive      *bool                  `json:"isActive" yaml:"isActive"`
	StartDate     string                 `json:"startDate" yaml:"startDate"`
	EndDate       string                 `json:"endDate" yaml:"endDate"`
	Slots         []slotDTO              `json:"slots,omitempty" yaml:"slots" validate:"dive"`
}

type tierDTO struct {
	Min   int     `json:"min" yaml:"min"`
	Max   int     `json:"max" yaml:"max"`
	Price float64 `json:"price" yaml:"price" validate:"gte=0"`
}

type slotDTO struct {
	ID         string    `json:"id,omitempty" yaml:"id"`
	Times      []string  `json:"times" yaml:"times"`
	Days       []string  `json:"days" yaml:"days"`
	AdultTiers []tierDTO `json:"adultTiers" yaml:"adultTiers" validate:"dive"`
	ChildTiers []tierDTO `json:"childTiers" yaml:"childTiers" validate:"dive"`
	CutoffTime Hours     `json:"cutoffTime" yaml:"cutoffTime"`
}

type recordDTO struct {
	ProductID string `json:"productId,omitempty" yaml:"productId"`
	Date      string `json:"date" yaml:"date" validate:"required"`
	Status    string `json:"status" yaml:"status" validate:"required"`
	Available int    `json:"available" yaml:"available"`
	Booked    int    `json:"booked" yaml:"booked"`
	PackageID string `json:"packageId,omitempty" yaml:"packageId"`
}

// toModel always returns the product. The error lists packages whose validity window could not
// be read; those packages are kept but made inactive.
func (d productDTO) toModel(loc *time.Location) (model.Product, error) {
	p := model.Product{
		ID:                 d.ID,
		Title:              d.Title,
		Type:               model.ProductType(strings.ToUpper(strings.TrimSpace(d.Type))),
		Capacity:           d.Capacity,
		Duration:           d.Duration,
		AvailabilityStatus: model.AvailabilityStatus(strings.ToUpper(strings.TrimSpace(d.AvailabilityStatus))),
	}
	if next, err := optionalDate(d.NextAvailableDate, loc); err == nil {
		p.NextAvailableDate = next
	}
	var errs []error
	for _, dto := range d.Packages {
		pkg, err := dto.toModel(loc)
		if err != nil {
			errs = append(errs, fmt.Errorf("package %s: %w", dto.ID, err))
		}
		p.Packages = append(p.Packages, pkg)
	}
	return p, errors.Join(errs...)
}

// toModel closes the package (IsActive false) when its validity window is malformed.
func (d packageDTO) toModel(loc *time.Location) (model.Package, error) {
	p := model.Package{
		ID:            d.ID,
		Name:          d.Name,
		BasePrice:     d.BasePrice,
		Currency:      strings.ToUpper(strings.TrimSpace(d.Currency)),
		DiscountType:  discountType(d.DiscountType),
		DiscountValue: d.DiscountValue,
		PricingType:   pricingType(d.PricingType),
		MaxPeople:     d.MaxPeople,
		IsActive:      d.IsActive == nil || *d.IsActive,
	}
	start, startErr := optionalDate(d.StartDate, loc)
	end, endErr := optionalDate(d.EndDate, loc)
	p.StartDate, p.EndDate = start, end
	windowErr := errors.Join(startErr, endErr)
	if windowErr != nil {
		p.IsActive = false
	}
	if len(d.AgeGroups) > 0 {
		p.AgeGroups = make(map[string]model.AgeGroup, len(d.AgeGroups))
		for name, g := range d.AgeGroups {
			p.AgeGroups[name] = model.AgeGroup{Enabled: g.Enabled, Min: g.Min, Max: g.Max}
		}
	}
	for i, s := range d.Slots {
		p.Slots = append(p.Slots, s.toModel(i))
	}
	return p, windowErr
}

func (d slotDTO) toModel(index int) model.SlotConfig {
	return model.SlotConfig{
		Index:       index,
		ID:          d.ID,
		Times:       d.Times,
		Days:        d.Days,
		AdultTiers:  tiers(d.AdultTiers),
		ChildTiers:  tiers(d.ChildTiers),
		CutoffHours: d.CutoffTime.ptr(),
	}
}

func (d recordDTO) toModel(loc *time.Location) (model.AvailabilityRecord, error) {
	date, err := parseDay(d.Date, loc)
	if err != nil {
		return model.AvailabilityRecord{}, err
	}
	return model.AvailabilityRecord{
		Date:      date,
		Status:    model.AvailabilityStatus(strings.ToUpper(strings.TrimSpace(d.Status))),
		Available: d.Available,
		Booked:    d.Booked,
		PackageID: d.PackageID,
	}, nil
}

func tiers(in []tierDTO) []model.Tier {
	if len(in) == 0 {
		return nil
	}
	out := make([]model.Tier, 0, len(in))
	for _, t := range in {
		out = append(out, model.Tier{Min: t.Min, Max: t.Max, Price: t.Price})
	}
	return out
}

// discountType maps unknown values to none.
func discountType(raw string) model.DiscountType {
	switch dt := model.DiscountType(strings.ToLower(strings.TrimSpace(raw))); dt {
	case model.DiscountPercentage, model.DiscountFixed:
		return dt
	default:
		return model.DiscountNone
	}
}

func pricingType(raw string) model.PricingType {
	if pt := model.PricingType(strings.ToLower(strings.TrimSpace(raw))); pt == model.PricingPerGroup {
		return pt
	}
	return model.PricingPerPerson
}

// parseDay accepts a bare date or a full RFC 3339 timestamp and keeps its calendar day.
func parseDay(raw string, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if len(raw) > len(model.DateLayout) {
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			return model.StartOfDay(ts, loc), nil
		}
		raw = raw[:len(model.DateLayout)]
	}
	d, err := model.ParseDate(raw, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("date %q: %w", raw, err)
	}
	return d, nil
}

// optionalDate treats a blank value as absent and anything else unparsable as an error.
func optionalDate(raw string, loc *time.Location) (*time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	d, err := parseDay(raw, loc)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
