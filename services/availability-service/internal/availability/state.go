package availability

import "fmt"

// State is the lifecycle of one availability query.
type State int

const (
	StateIdle State = iota
	StateCheckingProduct
	StateResolvingPackages
	StateUnavailable
	StateResolved
)

var stateNames = map[State]string{
	StateIdle:              "idle",
	StateCheckingProduct:   "checking_product",
	StateResolvingPackages: "resolving_packages",
	StateUnavailable:       "unavailable",
	StateResolved:          "resolved",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

func (s State) Terminal() bool {
	return s == StateUnavailable || s == StateResolved
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(b []byte) error {
	for st, name := range stateNames {
		if name == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown availability state %q", string(b))
}

// Reason explains an Unavailable result.
type Reason string

const (
	ReasonInvalidQuery      Reason = "invalid_query"
	ReasonLookupFailed      Reason = "lookup_failed"
	ReasonNoRecord          Reason = "no_record"
	ReasonSoldOut           Reason = "sold_out"
	ReasonNotOperating      Reason = "not_operating"
	ReasonUnknownStatus     Reason = "unknown_status"
	ReasonProductNotFound   Reason = "product_not_found"
	ReasonPackageNotFound   Reason = "package_not_found"
	ReasonNoSlotsForPackage Reason = "no_slots_for_package"
	ReasonNoEligibleSlots   Reason = "no_eligible_slots"
	ReasonPackageSoldOut    Reason = "package_sold_out"
)

var reasonMessages = map[Reason]string{
	ReasonInvalidQuery:      "invalid availability query",
	ReasonLookupFailed:      "availability data is currently unavailable",
	ReasonNoRecord:          "no availability found for this date",
	ReasonSoldOut:           "sold out on this date",
	ReasonNotOperating:      "not operating on this date",
	ReasonUnknownStatus:     "availability status not recognised",
	ReasonProductNotFound:   "product not found",
	ReasonPackageNotFound:   "selected package is not available",
	ReasonNoSlotsForPackage: "no time slots for selected package",
	ReasonNoEligibleSlots:   "no time slots available for this date and party size",
	ReasonPackageSoldOut:    "selected package is sold out on this date",
}

func (r Reason) Message() string {
	if msg, ok := reasonMessages[r]; ok {
		return msg
	}
	return string(r)
}
