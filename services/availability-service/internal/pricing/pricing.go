// Package pricing turns a package's base price, discount policy and slot tiers into the
// amounts charged for a party. Currency is carried through untouched.
package pricing

import (
	"math"

	"github.com/md-rashed-zaman/tourbook/services/availability-service/internal/model"
)

// DefaultChildPriceRatio applies when a slot has no child tier.
const DefaultChildPriceRatio = 0.5

// EffectivePrice applies a discount to basePrice. Percentages are expected in [0,100];
// range checks belong to whoever accepts the package configuration. The result is never
// negative. Unknown discount types leave the price unchanged.
func EffectivePrice(basePrice float64, discountType model.DiscountType, discountValue float64) float64 {
	switch discountType {
	case model.DiscountPercentage:
		return math.Max(basePrice*(1-discountValue/100), 0)
	case model.DiscountFixed:
		return math.Max(basePrice-discountValue, 0)
	default:
		return basePrice
	}
}

// SlotPrice is the resolved price of one slot for a party.
type SlotPrice struct {
	Currency        string            `json:"currency"`
	PricingType     model.PricingType `json:"pricing_type"`
	AdultBase       float64           `json:"adult_base"`
	AdultPrice      float64           `json:"adult_price"`
	ChildPrice      float64           `json:"child_price"`
	ChildFromTier   bool              `json:"child_from_tier"`
	Adults          int               `json:"adults"`
	Children        int               `json:"children"`
	Total           float64           `json:"total"`
	DiscountApplied bool              `json:"discount_applied"`
}

type Resolver struct {
	ChildPriceRatio float64
}

func NewResolver(childPriceRatio float64) Resolver {
	if childPriceRatio <= 0 || math.IsNaN(childPriceRatio) {
		childPriceRatio = DefaultChildPriceRatio
	}
	return Resolver{ChildPriceRatio: childPriceRatio}
}

// Quote prices slot for the party. The first adult/child tier, when present, replaces the
// package base price as discount input regardless of party size.
func (r Resolver) Quote(pkg model.Package, slot model.SlotConfig, adults, children int) SlotPrice {
	ratio := r.ChildPriceRatio
	if ratio <= 0 {
		ratio = DefaultChildPriceRatio
	}

	adultBase := pkg.BasePrice
	if len(slot.AdultTiers) > 0 {
		adultBase = slot.AdultTiers[0].Price
	}
	adultPrice := EffectivePrice(adultBase, pkg.DiscountType, pkg.DiscountValue)

	childPrice := adultPrice * ratio
	childFromTier := false
	if len(slot.ChildTiers) > 0 {
		childPrice = EffectivePrice(slot.ChildTiers[0].Price, pkg.DiscountType, pkg.DiscountValue)
		childFromTier = true
	}

	pricingType := pkg.PricingType
	if pricingType == "" {
		pricingType = model.PricingPerPerson
	}

	var total float64
	switch pricingType {
	case model.PricingPerGroup:
		total = adultPrice
	default:
		total = float64(adults)*adultPrice + float64(children)*childPrice
	}

	return SlotPrice{
		Currency:        pkg.Currency,
		PricingType:     pricingType,
		AdultBase:       adultBase,
		AdultPrice:      adultPrice,
		ChildPrice:      childPrice,
		ChildFromTier:   childFromTier,
		Adults:          adults,
		Children:        children,
		Total:           total,
		DiscountApplied: adultPrice != adultBase,
	}
}
