package availability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	otelx "github.com/md-rashed-zaman/tourbook/libs/otel"
	"github.com/md-rashed-zaman/tourbook/services/availability-service/internal/cutoff"
	"github.com/md-rashed-zaman/tourbook/services/availability-service/internal/model"
	"github.com/md-rashed-zaman/tourbook/services/availability-service/internal/pricing"
	"github.com/md-rashed-zaman/tourbook/services/availability-service/internal/slots"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// Catalog is the read-only view of the booking backend the orchestrator needs.
type Catalog interface {
	Product(ctx context.Context, productID string) (model.Product, error)
	ProductAvailability(ctx context.Context, productID string, start, end time.Time) ([]model.AvailabilityRecord, error)
	PackageSlots(ctx context.Context, packageID string, date time.Time) ([]model.SlotConfig, error)
}

type Config struct {
	// Location is the viewer calendar: weekday matching and slot start times use it.
	Location             *time.Location
	DefaultCutoffHours   float64
	ChildPriceRatio      float64
	LookaheadDays        int
	MaxConcurrentLookups int
	LookupTimeout        time.Duration
}

func DefaultConfig() Config {
	return Config{
		Location:             time.Local,
		DefaultCutoffHours:   cutoff.DefaultCutoffHours,
		ChildPriceRatio:      pricing.DefaultChildPriceRatio,
		LookaheadDays:        30,
		MaxConcurrentLookups: 4,
		LookupTimeout:        5 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Location == nil {
		c.Location = def.Location
	}
	if c.DefaultCutoffHours < 0 {
		c.DefaultCutoffHours = def.DefaultCutoffHours
	}
	if c.ChildPriceRatio <= 0 {
		c.ChildPriceRatio = def.ChildPriceRatio
	}
	if c.LookaheadDays < 0 {
		c.LookaheadDays = 0
	}
	if c.MaxConcurrentLookups <= 0 {
		c.MaxConcurrentLookups = def.MaxConcurrentLookups
	}
	return c
}

type Query struct {
	ProductID string
	Date      time.Time
	Adults    int
	Children  int
	PackageID string
}

func (q Query) PartySize() int {
	return q.Adults + q.Children
}

func QueryFromSelection(productID string, sel model.Selection) Query {
	return Query{
		ProductID: productID,
		Date:      sel.Date,
		Adults:    sel.Adults,
		Children:  sel.Children,
		PackageID: sel.PackageID,
	}
}

type Recommendation struct {
	PackageID string `json:"package_id"`
	SlotIndex int    `json:"slot_index"`
	Time      string `json:"time"`
}

type SlotResult struct {
	Index         int               `json:"index"`
	ID            string            `json:"id,omitempty"`
	Times         []string          `json:"times"`
	BookableTimes []string          `json:"bookable_times"`
	Days          []string          `json:"days"`
	CutoffHours   float64           `json:"cutoff_hours"`
	Price         pricing.SlotPrice `json:"price"`
}

type PackageResult struct {
	PackageID   string            `json:"package_id"`
	Name        string            `json:"name"`
	Currency    string            `json:"currency"`
	PricingType model.PricingType `json:"pricing_type"`
	Remaining   int               `json:"remaining"`
	Slots       []SlotResult      `json:"slots"`
}

type Result struct {
	State             State                    `json:"state"`
	Reason            Reason                   `json:"reason,omitempty"`
	Message           string                   `json:"message,omitempty"`
	ProductID         string                   `json:"product_id"`
	Date              string                   `json:"date"`
	Adults            int                      `json:"adults"`
	Children          int                      `json:"children"`
	PackageID         string                   `json:"package_id,omitempty"`
	ProductStatus     model.AvailabilityStatus `json:"product_status,omitempty"`
	Packages          []PackageResult          `json:"packages,omitempty"`
	Recommended       *Recommendation          `json:"recommended,omitempty"`
	NextAvailableDate string                   `json:"next_available_date,omitempty"`
	QuoteID           string                   `json:"quote_id,omitempty"`
}

func (r Result) Resolved() bool {
	return r.State == StateResolved
}

// Slot finds an eligible slot by package and position.
func (r Result) Slot(packageID string, index int) (SlotResult, bool) {
	for _, p := range r.Packages {
		if p.PackageID != packageID {
			continue
		}
		for _, s := range p.Slots {
			if s.Index == index {
				return s, true
			}
		}
	}
	return SlotResult{}, false
}

type options struct {
	now func() time.Time
}

type Option func(*options)

func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// Orchestrator answers "can this party book this product on this date, and at what price".
// It is shared by the admin preview and the public storefront.
type Orchestrator struct {
	catalog Catalog
	cfg     Config
	logger  *slog.Logger
	cutoff  *cutoff.Evaluator
	now     func() time.Time
	pricing pricing.Resolver
	tracer  trace.Tracer
}

func New(catalog Catalog, cfg Config, logger *slog.Logger, opts ...Option) *Orchestrator {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	cfg = cfg.withDefaults()
	ev := cutoff.NewEvaluator(cfg.Location, o.now, cfg.DefaultCutoffHours)
	return &Orchestrator{
		catalog: catalog,
		cfg:     cfg,
		logger:  logger,
		cutoff:  ev,
		now:     o.now,
		pricing: pricing.NewResolver(cfg.ChildPriceRatio),
		tracer:  otelx.Tracer("availability"),
	}
}

func (o *Orchestrator) Location() *time.Location {
	return o.cfg.Location
}

// CheckAvailability runs one query from Idle to a terminal state. Lookup failures are logged
// and reported as Unavailable; it never returns an error.
func (o *Orchestrator) CheckAvailability(ctx context.Context, q Query) Result {
	ctx, span := o.tracer.Start(ctx, "availability.check", trace.WithAttributes(
		attribute.String("product.id", q.ProductID),
		attribute.String("query.date", model.DateKey(q.Date)),
		attribute.Int("query.adults", q.Adults),
		attribute.Int("query.children", q.Children),
		attribute.String("query.package_id", q.PackageID),
	))
	defer span.End()

	res := o.run(ctx, q)

	span.SetAttributes(attribute.String("result.state", res.State.String()))
	if res.Reason != "" {
		span.SetAttributes(attribute.String("result.reason", string(res.Reason)))
	}
	if res.Reason == ReasonLookupFailed {
		span.SetStatus(codes.Error, res.Message)
	}
	return res
}

func (o *Orchestrator) run(ctx context.Context, q Query) Result {
	day := model.StartOfDay(q.Date, o.cfg.Location)
	res := Result{
		State:     StateIdle,
		ProductID: q.ProductID,
		Adults:    q.Adults,
		Children:  q.Children,
		PackageID: q.PackageID,
	}
	if !q.Date.IsZero() {
		res.Date = model.DateKey(day)
	}

	if err := validateQuery(q); err != nil {
		res = o.unavailable(res, ReasonInvalidQuery)
		res.Message = err.Error()
		return res
	}

	o.transition(&res, StateCheckingProduct)

	lookupCtx, cancel := o.lookupContext(ctx)
	defer cancel()

	until := day.AddDate(0, 0, o.cfg.LookaheadDays)
	records, err := o.catalog.ProductAvailability(lookupCtx, q.ProductID, day, until)
	if err != nil {
		return o.lookupFailed(res, "product availability lookup failed", err)
	}

	productRec, ok := model.ProductStatusOn(records, day)
	if !ok {
		return o.withNextAvailable(o.unavailable(res, ReasonNoRecord), records, day, until)
	}
	res.ProductStatus = productRec.Status
	switch productRec.Status {
	case model.StatusAvailable:
	case model.StatusSoldOut:
		return o.withNextAvailable(o.unavailable(res, ReasonSoldOut), records, day, until)
	case model.StatusNotOperating:
		return o.withNextAvailable(o.unavailable(res, ReasonNotOperating), records, day, until)
	default:
		return o.withNextAvailable(o.unavailable(res, ReasonUnknownStatus), records, day, until)
	}

	o.transition(&res, StateResolvingPackages)

	product, err := o.catalog.Product(lookupCtx, q.ProductID)
	if err != nil {
		return o.lookupFailed(res, "product lookup failed", err)
	}

	candidates, reason := o.candidates(product, q, day, records)
	if reason != "" {
		return o.withNextAvailable(o.unavailable(res, reason), records, day, until)
	}

	outcomes := o.fetchSlots(lookupCtx, candidates, day)
	// One clock reading per query: a slot kept by the filter keeps exactly the times it passed with.
	filter := slots.NewFilter(o.cutoff.At(o.now()))
	failed := 0
	for i, pkg := range candidates {
		out := outcomes[i]
		if out.err != nil {
			failed++
			o.logger.Warn("package slots lookup failed", "err", out.err, "product_id", q.ProductID, "package_id", pkg.ID, "date", res.Date)
			continue
		}
		capacity := o.capacityFor(records, day, pkg.ID, productRec)
		eligible := filter.Eligible(out.slots, day, q.PartySize(), capacity)
		if len(eligible) == 0 {
			o.logger.Debug("package has no eligible slots", "product_id", q.ProductID, "package_id", pkg.ID, "date", res.Date, "configured", len(out.slots))
			continue
		}
		res.Packages = append(res.Packages, o.pricePackage(pkg, eligible, q, capacity))
	}

	res.Recommended = recommend(res.Packages)
	if res.Recommended == nil {
		switch {
		case failed > 0 && (q.PackageID != "" || failed == len(candidates)):
			res = o.unavailable(res, ReasonLookupFailed)
		case q.PackageID != "":
			res = o.unavailable(res, ReasonNoSlotsForPackage)
		default:
			res = o.unavailable(res, ReasonNoEligibleSlots)
		}
		return o.withNextAvailable(res, records, day, until)
	}

	o.transition(&res, StateResolved)
	return res
}

// recommend picks the first slot, in package then slot order, that has a bookable time.
func recommend(pkgs []PackageResult) *Recommendation {
	for _, p := range pkgs {
		for _, s := range p.Slots {
			if len(s.BookableTimes) > 0 {
				return &Recommendation{PackageID: p.PackageID, SlotIndex: s.Index, Time: s.BookableTimes[0]}
			}
		}
	}
	return nil
}

func validateQuery(q Query) error {
	switch {
	case strings.TrimSpace(q.ProductID) == "":
		return errors.New("product id is required")
	case q.Date.IsZero():
		return errors.New("date is required")
	case q.Adults < 0 || q.Children < 0:
		return errors.New("party counts cannot be negative")
	case q.PartySize() == 0:
		return errors.New("party size must be at least one")
	}
	return nil
}

// candidates returns the packages worth asking slots for, or the reason the query ends here.
func (o *Orchestrator) candidates(product model.Product, q Query, day time.Time, records []model.AvailabilityRecord) ([]model.Package, Reason) {
	if q.PackageID != "" {
		pkg, ok := product.Package(q.PackageID)
		if !ok || !pkg.ValidOn(day) {
			return nil, ReasonPackageNotFound
		}
		if rec, ok := model.PackageStatusOn(records, day, pkg.ID); ok && rec.Status != model.StatusAvailable {
			return nil, ReasonPackageSoldOut
		}
		if !fitsParty(pkg, q) {
			return nil, ReasonNoSlotsForPackage
		}
		return []model.Package{pkg}, ""
	}

	var out []model.Package
	for _, pkg := range product.Packages {
		if pkg.ValidOn(day) && fitsParty(pkg, q) {
			out = append(out, pkg)
		}
	}
	if len(out) == 0 {
		return nil, ReasonNoEligibleSlots
	}
	return out, ""
}

func fitsParty(pkg model.Package, q Query) bool {
	if pkg.MaxPeople > 0 && q.PartySize() > pkg.MaxPeople {
		return false
	}
	if q.Children > 0 && !pkg.AllowsChildren() {
		return false
	}
	return true
}

// capacityFor prefers a record tied to the package and falls back to the product record.
func (o *Orchestrator) capacityFor(records []model.AvailabilityRecord, day time.Time, packageID string, productRec model.AvailabilityRecord) slots.Capacity {
	if rec, ok := model.PackageStatusOn(records, day, packageID); ok {
		if rec.Status != model.StatusAvailable {
			return slots.Capacity{}
		}
		return slots.CapacityOf(rec)
	}
	return slots.CapacityOf(productRec)
}

type slotOutcome struct {
	slots []model.SlotConfig
	err   error
}

// fetchSlots asks for every package's slots concurrently; outcomes keep package order.
func (o *Orchestrator) fetchSlots(ctx context.Context, pkgs []model.Package, day time.Time) []slotOutcome {
	out := make([]slotOutcome, len(pkgs))
	var g errgroup.Group
	g.SetLimit(o.cfg.MaxConcurrentLookups)
	for i, pkg := range pkgs {
		g.Go(func() error {
			s, err := o.catalog.PackageSlots(ctx, pkg.ID, day)
			out[i] = slotOutcome{slots: s, err: err}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (o *Orchestrator) pricePackage(pkg model.Package, eligible []slots.Eligible, q Query, capacity slots.Capacity) PackageResult {
	pr := PackageResult{
		PackageID:   pkg.ID,
		Name:        pkg.Name,
		Currency:    pkg.Currency,
		PricingType: pkg.PricingType,
		Remaining:   capacity.Remaining(),
	}
	if pr.PricingType == "" {
		pr.PricingType = model.PricingPerPerson
	}
	for _, e := range eligible {
		slot := e.Slot
		hours := o.cfg.DefaultCutoffHours
		if slot.CutoffHours != nil && *slot.CutoffHours >= 0 {
			hours = *slot.CutoffHours
		}
		pr.Slots = append(pr.Slots, SlotResult{
			Index:         slot.Index,
			ID:            slot.ID,
			Times:         slot.Times,
			BookableTimes: e.Times,
			Days:          slot.Days,
			CutoffHours:   hours,
			Price:         o.pricing.Quote(pkg, slot, q.Adults, q.Children),
		})
	}
	return pr
}

func (o *Orchestrator) lookupContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.cfg.LookupTimeout > 0 {
		return context.WithTimeout(ctx, o.cfg.LookupTimeout)
	}
	return context.WithCancel(ctx)
}

func (o *Orchestrator) lookupFailed(res Result, msg string, err error) Result {
	if errors.Is(err, model.ErrNotFound) {
		o.logger.Info(msg, "err", err, "product_id", res.ProductID)
		return o.unavailable(res, ReasonProductNotFound)
	}
	o.logger.Error(msg, "err", err, "product_id", res.ProductID, "date", res.Date)
	return o.unavailable(res, ReasonLookupFailed)
}

func (o *Orchestrator) unavailable(res Result, reason Reason) Result {
	res.Packages = nil
	res.Recommended = nil
	res.Reason = reason
	res.Message = reason.Message()
	o.transition(&res, StateUnavailable)
	return res
}

func (o *Orchestrator) withNextAvailable(res Result, records []model.AvailabilityRecord, day, until time.Time) Result {
	if next, ok := model.NextAvailable(records, day, until); ok {
		res.NextAvailableDate = model.DateKey(next)
	}
	return res
}

func (o *Orchestrator) transition(res *Result, to State) {
	if res.State.Terminal() {
		o.logger.Warn("availability state already final", "product_id", res.ProductID, "state", res.State.String(), "to", to.String())
		return
	}
	o.logger.Debug("availability state",
		"product_id", res.ProductID,
		"date", res.Date,
		"from", res.State.String(),
		"to", to.String(),
	)
	res.State = to
}

// String is a compact label for logs.
func (q Query) String() string {
	return fmt.Sprintf("%s@%s[%d+%d]%s", q.ProductID, model.DateKey(q.Date), q.Adults, q.Children, q.PackageID)
}
