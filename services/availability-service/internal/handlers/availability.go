package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/md-rashed-zaman/tourbook/libs/httpx"
	"github.com/md-rashed-zaman/tourbook/services/availability-service/internal/availability"
	"github.com/md-rashed-zaman/tourbook/services/availability-service/internal/model"
	"github.com/md-rashed-zaman/tourbook/services/availability-service/internal/storage"
)

type Checker interface {
	CheckAvailability(ctx context.Context, q availability.Query) availability.Result
	Location() *time.Location
}

type QuoteStore interface {
	Save(ctx context.Context, res availability.Result) (storage.Quote, error)
	Get(ctx context.Context, quoteID string) (storage.Quote, error)
}

// AvailabilityHandler serves the storefront and admin preview off the same engine. The
// storefront reads through the cache; the preview goes straight to the backend.
type AvailabilityHandler struct {
	public   Checker
	preview  Checker
	quotes   QuoteStore
	logger   *slog.Logger
	validate *validator.Validate
}

// NewAvailabilityHandler accepts a nil quotes store; quotes are then neither issued nor served.
func NewAvailabilityHandler(public, preview Checker, quotes QuoteStore, logger *slog.Logger) *AvailabilityHandler {
	return &AvailabilityHandler{
		public:   public,
		preview:  preview,
		quotes:   quotes,
		logger:   logger,
		validate: validator.New(),
	}
}

type availabilityRequest struct {
	ProductID string `validate:"required,max=128"`
	Date      string `validate:"required,datetime=2006-01-02"`
	Adults    int    `validate:"gte=0,lte=100"`
	Children  int    `validate:"gte=0,lte=100"`
	PackageID string `validate:"max=128"`
}

type quoteRequest struct {
	QuoteID string `validate:"required,uuid"`
}

type quoteResponse struct {
	QuoteID   string              `json:"quote_id"`
	ProductID string              `json:"product_id"`
	Date      string              `json:"date"`
	Adults    int                 `json:"adults"`
	Children  int                 `json:"children"`
	PackageID string              `json:"package_id"`
	Currency  string              `json:"currency"`
	Total     float64             `json:"total"`
	CreatedAt string              `json:"created_at"`
	ExpiresAt string              `json:"expires_at"`
	Result    availability.Result `json:"result"`
}

func (h *AvailabilityHandler) Public(w http.ResponseWriter, r *http.Request) {
	res, ok := h.check(w, r, h.public)
	if !ok {
		return
	}
	if res.Resolved() && h.quotes != nil {
		q, err := h.quotes.Save(r.Context(), res)
		if err != nil {
			h.logger.Error("quote save failed", "err", err, "product_id", res.ProductID, "date", res.Date)
		} else {
			res.QuoteID = q.ID
		}
	}
	httpx.WriteJSON(w, http.StatusOK, res)
}

func (h *AvailabilityHandler) Preview(w http.ResponseWriter, r *http.Request) {
	res, ok := h.check(w, r, h.preview)
	if !ok {
		return
	}
	httpx.WriteJSON(w, http.StatusOK, res)
}

func (h *AvailabilityHandler) Quote(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpx.WriteError(w, r, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if h.quotes == nil {
		httpx.WriteError(w, r, http.StatusServiceUnavailable, "quotes are not enabled")
		return
	}

	req := quoteRequest{QuoteID: strings.TrimSpace(r.URL.Query().Get("quote_id"))}
	if err := h.validate.Struct(req); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, validationMessage(err))
		return
	}

	q, err := h.quotes.Get(r.Context(), req.QuoteID)
	if err != nil {
		if errors.Is(err, storage.ErrQuoteNotFound) {
			httpx.WriteError(w, r, http.StatusNotFound, "quote not found")
			return
		}
		h.logger.Error("quote lookup failed", "err", err, "quote_id", req.QuoteID)
		httpx.WriteError(w, r, http.StatusInternalServerError, "failed to load quote")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, quoteResponse{
		QuoteID:   q.ID,
		ProductID: q.ProductID,
		Date:      q.Date.Format(model.DateLayout),
		Adults:    q.Adults,
		Children:  q.Children,
		PackageID: q.PackageID,
		Currency:  q.Currency,
		Total:     q.Total,
		CreatedAt: q.CreatedAt.UTC().Format(time.RFC3339),
		ExpiresAt: q.ExpiresAt.UTC().Format(time.RFC3339),
		Result:    q.Result,
	})
}

func (h *AvailabilityHandler) check(w http.ResponseWriter, r *http.Request, checker Checker) (availability.Result, bool) {
	if r.Method != http.MethodGet {
		httpx.WriteError(w, r, http.StatusMethodNotAllowed, "method not allowed")
		return availability.Result{}, false
	}

	req, err := parseAvailabilityRequest(r)
	if err == nil {
		err = h.validate.Struct(req)
	}
	if err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, validationMessage(err))
		return availability.Result{}, false
	}
	if req.Adults+req.Children == 0 {
		httpx.WriteError(w, r, http.StatusBadRequest, "party size must be at least one")
		return availability.Result{}, false
	}

	date, err := model.ParseDate(req.Date, checker.Location())
	if err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "date must be yyyy-mm-dd")
		return availability.Result{}, false
	}

	return checker.CheckAvailability(r.Context(), availability.Query{
		ProductID: req.ProductID,
		Date:      date,
		Adults:    req.Adults,
		Children:  req.Children,
		PackageID: req.PackageID,
	}), true
}

// parseAvailabilityRequest defaults to one adult and no children.
func parseAvailabilityRequest(r *http.Request) (availabilityRequest, error) {
	q := r.URL.Query()
	req := availabilityRequest{
		ProductID: strings.TrimSpace(q.Get("product_id")),
		Date:      strings.TrimSpace(q.Get("date")),
		Adults:    1,
		PackageID: strings.TrimSpace(q.Get("package_id")),
	}
	var err error
	if req.Adults, err = intParam(q.Get("adults"), 1); err != nil {
		return req, fmt.Errorf("adults: %w", err)
	}
	if req.Children, err = intParam(q.Get("children"), 0); err != nil {
		return req, fmt.Errorf("children: %w", err)
	}
	return req, nil
}

func intParam(raw string, fallback int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New("must be an integer")
	}
	return n, nil
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", toSnake(fe.Field()), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}

func toSnake(field string) string {
	var b strings.Builder
	for i, r := range field {
		if i > 0 && r >= 'A' && r <= 'Z' {
			prev := field[i-1]
			if prev < 'A' || prev > 'Z' {
				b.WriteByte('_')
			}
		}
		b.WriteRune(r)
	}
	return strings.ToLower(b.String())
}
