package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/md-rashed-zaman/tourbook/libs/httpx"
	"github.com/md-rashed-zaman/tourbook/services/availability-service/internal/model"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// StatusError is a non-2xx answer from the booking backend.
type StatusError struct {
	Method string
	URL    string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.URL, e.Code, e.Body)
}

type ClientOption func(*Client)

func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.http.Timeout = d }
}

// Client reads products, availability records and slots from the booking backend REST API.
type Client struct {
	baseURL string
	http    *http.Client
	loc     *time.Location
	logger  *slog.Logger
}

func NewClient(baseURL string, loc *time.Location, logger *slog.Logger, opts ...ClientOption) *Client {
	if loc == nil {
		loc = time.Local
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   10 * time.Second,
		},
		loc:    loc,
		logger: logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Product(ctx context.Context, productID string) (model.Product, error) {
	var body struct {
		Product *productDTO `json:"product"`
	}
	if err := c.get(ctx, "/products/"+url.PathEscape(productID), nil, &body); err != nil {
		return model.Product{}, err
	}
	if body.Product == nil {
		return model.Product{}, fmt.Errorf("product %s: %w", productID, ErrNotFound)
	}
	product, err := body.Product.toModel(c.loc)
	if err != nil {
		c.logger.Warn("product has packages with malformed validity windows; they are closed", "err", err, "product_id", productID)
	}
	return product, nil
}

func (c *Client) ProductAvailability(ctx context.Context, productID string, start, end time.Time) ([]model.AvailabilityRecord, error) {
	q := url.Values{}
	q.Set("startDate", model.DateKey(start))
	q.Set("endDate", model.DateKey(end))

	var body struct {
		Availability []recordDTO `json:"availability"`
	}
	if err := c.get(ctx, "/availability/product/"+url.PathEscape(productID), q, &body); err != nil {
		return nil, err
	}

	records := make([]model.AvailabilityRecord, 0, len(body.Availability))
	for _, dto := range body.Availability {
		rec, err := dto.toModel(c.loc)
		if err != nil {
			c.logger.Warn("dropping availability record", "err", err, "product_id", productID)
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// PackageSlots decodes slots one at a time; a malformed slot is dropped and the rest kept
// at their original positions.
func (c *Client) PackageSlots(ctx context.Context, packageID string, date time.Time) ([]model.SlotConfig, error) {
	q := url.Values{}
	q.Set("date", model.DateKey(date))

	var body struct {
		Slots []json.RawMessage `json:"slots"`
	}
	if err := c.get(ctx, "/availability/package/"+url.PathEscape(packageID)+"/slots", q, &body); err != nil {
		return nil, err
	}
	return decodeSlots(body.Slots, c.logger.With("package_id", packageID)), nil
}

func decodeSlots(raw []json.RawMessage, logger *slog.Logger) []model.SlotConfig {
	out := make([]model.SlotConfig, 0, len(raw))
	for i, msg := range raw {
		var dto slotDTO
		if err := json.Unmarshal(msg, &dto); err != nil {
			logger.Warn("dropping malformed slot", "err", err, "index", i)
			continue
		}
		out = append(out, dto.toModel(i))
	}
	return out
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if id := httpx.RequestIDFromContext(ctx); id != "" {
		req.Header.Set(httpx.RequestIDHeader, id)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("GET %s: %w", path, ErrNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Method: http.MethodGet, URL: path, Code: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// IsStatus reports whether err is a backend StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}
