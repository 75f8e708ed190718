package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/md-rashed-zaman/tourbook/libs/kafkax"
	"github.com/segmentio/kafka-go"
)

const AvailabilityChangedTopic = "availability.changed.v1"

// AvailabilityChanged is published by the booking backend whenever product availability,
// packages or slots are edited.
type AvailabilityChanged struct {
	ProductID  string   `json:"product_id"`
	PackageIDs []string `json:"package_ids,omitempty"`
	Dates      []string `json:"dates,omitempty"`
}

type Invalidator interface {
	InvalidateProduct(ctx context.Context, productID string) (int, error)
	InvalidatePackage(ctx context.Context, packageID string) (int, error)
}

// InvalidateCache drops cached lookups for the product (and any listed packages) named in
// an availability.changed.v1 event. Malformed events are logged and skipped.
func InvalidateCache(inv Invalidator, logger *slog.Logger) Handler {
	return func(ctx context.Context, msg kafka.Message) error {
		meta := kafkax.ExtractEventMeta(msg)

		var evt AvailabilityChanged
		if err := json.Unmarshal(msg.Value, &evt); err != nil {
			logger.Warn("skipping malformed availability event", "err", err, "event_id", meta.EventID)
			return nil
		}
		evt.ProductID = strings.TrimSpace(evt.ProductID)
		if evt.ProductID == "" && len(evt.PackageIDs) == 0 {
			logger.Warn("skipping availability event without ids", "event_id", meta.EventID)
			return nil
		}

		removed := 0
		var errs []error
		if evt.ProductID != "" {
			n, err := inv.InvalidateProduct(ctx, evt.ProductID)
			removed += n
			if err != nil {
				errs = append(errs, fmt.Errorf("product %s: %w", evt.ProductID, err))
			}
		}
		for _, id := range evt.PackageIDs {
			if id = strings.TrimSpace(id); id == "" {
				continue
			}
			n, err := inv.InvalidatePackage(ctx, id)
			removed += n
			if err != nil {
				errs = append(errs, fmt.Errorf("package %s: %w", id, err))
			}
		}

		logger.Info("catalog cache invalidated",
			"event_id", meta.EventID,
			"product_id", evt.ProductID,
			"packages", len(evt.PackageIDs),
			"keys_removed", removed,
		)
		return errors.Join(errs...)
	}
}
