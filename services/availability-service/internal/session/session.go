package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/md-rashed-zaman/tourbook/services/availability-service/internal/availability"
	"github.com/md-rashed-zaman/tourbook/services/availability-service/internal/model"
)

const DefaultDebounce = 300 * time.Millisecond

type Checker interface {
	CheckAvailability(ctx context.Context, q availability.Query) availability.Result
}

type Option func(*Session)

func WithDebounce(d time.Duration) Option {
	return func(s *Session) { s.debounce = d }
}

// OnResult registers fn to receive every applied result, in application order.
func OnResult(fn func(availability.Result)) Option {
	return func(s *Session) { s.onResult = fn }
}

// Session holds one viewer's booking selection for a product. Only the newest query's result
// is ever applied; older results are dropped when they arrive.
type Session struct {
	productID string
	checker   Checker
	logger    *slog.Logger
	debounce  time.Duration
	onResult  func(availability.Result)

	deliverMu sync.Mutex

	mu        sync.Mutex
	base      context.Context
	stop      context.CancelFunc
	sel       model.Selection
	submitted bool
	gen       uint64
	timer     *time.Timer
	cancel    context.CancelFunc
	current   availability.Result
	closed    bool
}

func New(productID string, checker Checker, logger *slog.Logger, opts ...Option) *Session {
	base, stop := context.WithCancel(context.Background())
	s := &Session{
		productID: productID,
		checker:   checker,
		logger:    logger,
		debounce:  DefaultDebounce,
		base:      base,
		stop:      stop,
		current:   availability.Result{State: availability.StateIdle, ProductID: productID},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit records sel. A change of date, party or package discards the visible result,
// supersedes any pending or in-flight query and schedules a new one after the debounce delay.
// Slot and time changes only update the selection. Reports whether a query was scheduled.
func (s *Session) Submit(sel model.Selection) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}

	prev := s.sel
	s.sel = sel
	if s.submitted && prev.SameQuery(sel) {
		return false
	}
	s.submitted = true

	s.gen++
	gen := s.gen
	s.supersedeLocked()
	s.current = availability.Result{State: availability.StateIdle, ProductID: s.productID}

	q := availability.QueryFromSelection(s.productID, sel)
	if s.debounce <= 0 {
		go s.run(gen, q)
		return true
	}
	s.timer = time.AfterFunc(s.debounce, func() { s.run(gen, q) })
	return true
}

func (s *Session) supersedeLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

func (s *Session) run(gen uint64, q availability.Query) {
	s.mu.Lock()
	if s.closed || gen != s.gen {
		s.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(s.base)
	s.cancel = cancel
	s.mu.Unlock()

	res := s.checker.CheckAvailability(ctx, q)
	cancel()

	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	s.mu.Lock()
	if s.closed || gen != s.gen {
		s.mu.Unlock()
		s.logger.Debug("discarding stale availability result", "query", q.String(), "generation", gen, "state", res.State.String())
		return
	}
	s.current = res
	s.cancel = nil
	fn := s.onResult
	s.mu.Unlock()

	if fn != nil {
		fn(res)
	}
}

// Current returns the visible result; it is Idle while a query is pending.
func (s *Session) Current() availability.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (s *Session) Selection() model.Selection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sel
}

// Close drops any pending work. Results arriving afterwards are discarded.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.supersedeLocked()
	s.stop()
}
