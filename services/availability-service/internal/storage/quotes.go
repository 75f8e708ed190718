package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/tourbook/libs/db"
	"github.com/md-rashed-zaman/tourbook/services/availability-service/internal/availability"
	"github.com/md-rashed-zaman/tourbook/services/availability-service/internal/outbox"
)

const (
	QuoteAggregateType     = "availability_quote"
	QuoteResolvedEventType = "availability.quote.resolved.v1"
)

var ErrQuoteNotFound = errors.New("quote not found")

type Quote struct {
	ID        string
	ProductID string
	Date      time.Time
	Adults    int
	Children  int
	PackageID string
	Currency  string
	Total     float64
	Result    availability.Result
	CreatedAt time.Time
	ExpiresAt time.Time
}

// QuoteResolved is the payload of availability.quote.resolved.v1.
type QuoteResolved struct {
	QuoteID      string    `json:"quote_id"`
	ProductID    string    `json:"product_id"`
	Date         string    `json:"date"`
	Adults       int       `json:"adults"`
	Children     int       `json:"children"`
	PackageID    string    `json:"package_id"`
	SlotIndex    int       `json:"slot_index"`
	Time         string    `json:"time"`
	Currency     string    `json:"currency"`
	Total        float64   `json:"total"`
	ExpiresAt    time.Time `json:"expires_at"`
	EventVersion int       `json:"event_version"`
}

type QuoteRepository struct {
	pool   *db.Pool
	outbox *outbox.Repository
	ttl    time.Duration
	now    func() time.Time
}

func NewQuoteRepository(pool *db.Pool, outboxRepo *outbox.Repository, ttl time.Duration) *QuoteRepository {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &QuoteRepository{pool: pool, outbox: outboxRepo, ttl: ttl, now: time.Now}
}

// NewQuote prices the recommended slot of a resolved result into a quote. It does not persist.
func NewQuote(res availability.Result, now time.Time, ttl time.Duration) (Quote, QuoteResolved, error) {
	if !res.Resolved() || res.Recommended == nil {
		return Quote{}, QuoteResolved{}, fmt.Errorf("quote: result is %s, not resolved", res.State)
	}
	slot, ok := res.Slot(res.Recommended.PackageID, res.Recommended.SlotIndex)
	if !ok {
		return Quote{}, QuoteResolved{}, errors.New("quote: recommended slot missing from result")
	}
	date, err := time.Parse(time.DateOnly, res.Date)
	if err != nil {
		return Quote{}, QuoteResolved{}, fmt.Errorf("quote date: %w", err)
	}

	q := Quote{
		ID:        uuid.NewString(),
		ProductID: res.ProductID,
		Date:      date,
		Adults:    res.Adults,
		Children:  res.Children,
		PackageID: res.Recommended.PackageID,
		Currency:  slot.Price.Currency,
		Total:     slot.Price.Total,
		CreatedAt: now.UTC(),
		ExpiresAt: now.Add(ttl).UTC(),
	}
	res.QuoteID = q.ID
	q.Result = res

	evt := QuoteResolved{
		QuoteID:      q.ID,
		ProductID:    q.ProductID,
		Date:         res.Date,
		Adults:       q.Adults,
		Children:     q.Children,
		PackageID:    q.PackageID,
		SlotIndex:    res.Recommended.SlotIndex,
		Time:         res.Recommended.Time,
		Currency:     q.Currency,
		Total:        q.Total,
		ExpiresAt:    q.ExpiresAt,
		EventVersion: 1,
	}
	return q, evt, nil
}

// Save stores the quote and queues its resolved event in one transaction.
func (r *QuoteRepository) Save(ctx context.Context, res availability.Result) (Quote, error) {
	q, evtPayload, err := NewQuote(res, r.now(), r.ttl)
	if err != nil {
		return Quote{}, err
	}
	payload, err := json.Marshal(q.Result)
	if err != nil {
		return Quote{}, fmt.Errorf("marshal quote payload: %w", err)
	}
	evt, err := outbox.NewEvent(QuoteAggregateType, q.ID, QuoteResolvedEventType, evtPayload)
	if err != nil {
		return Quote{}, err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Quote{}, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO availability_quotes (quote_id, product_id, quote_date, adults, children, package_id, currency, total, payload, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, q.ID, q.ProductID, q.Date, q.Adults, q.Children, q.PackageID, q.Currency, q.Total, payload, q.CreatedAt, q.ExpiresAt)
	if err != nil {
		return Quote{}, fmt.Errorf("insert quote: %w", err)
	}
	if err := r.outbox.Insert(ctx, tx, evt); err != nil {
		return Quote{}, fmt.Errorf("insert outbox event: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return Quote{}, fmt.Errorf("commit: %w", err)
	}
	return q, nil
}

// Get returns an unexpired quote. Malformed ids are reported as not found.
func (r *QuoteRepository) Get(ctx context.Context, quoteID string) (Quote, error) {
	if _, err := uuid.Parse(quoteID); err != nil {
		return Quote{}, ErrQuoteNotFound
	}

	var q Quote
	var payload []byte
	err := r.pool.QueryRow(ctx, `
		SELECT quote_id::text, product_id, quote_date, adults, children, package_id, currency, total::float8, payload, created_at, expires_at
		FROM availability_quotes
		WHERE quote_id = $1 AND expires_at > $2
	`, quoteID, r.now()).Scan(&q.ID, &q.ProductID, &q.Date, &q.Adults, &q.Children, &q.PackageID, &q.Currency, &q.Total, &payload, &q.CreatedAt, &q.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Quote{}, ErrQuoteNotFound
		}
		return Quote{}, err
	}
	if err := json.Unmarshal(payload, &q.Result); err != nil {
		return Quote{}, fmt.Errorf("decode quote payload: %w", err)
	}
	return q, nil
}

// DeleteExpired removes quotes past their expiry.
func (r *QuoteRepository) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM availability_quotes WHERE expires_at <= $1`, r.now())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
