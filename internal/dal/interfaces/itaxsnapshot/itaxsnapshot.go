package itaxsnapshot

import (
	"context"

	"github.com/corray333/backend-labs/checkout/internal/service/models/taxsnapshot"
	"github.com/google/uuid"
)

// Repository stores at most one tax snapshot per order.
type Repository interface {
	// Upsert inserts the snapshot or replaces the payload of the order's existing one.
	Upsert(ctx context.Context, s taxsnapshot.TaxSnapshot) error
	GetByOrder(ctx context.Context, orderID uuid.UUID) (taxsnapshot.TaxSnapshot, bool, error)
}
