package icatalog

import (
	"context"

	"github.com/corray333/backend-labs/checkout/internal/service/models/catalog"
	"github.com/google/uuid"
)

// Repository resolves variant ids to their current price and availability.
type Repository interface {
	LookupVariants(ctx context.Context, ids []uuid.UUID) ([]catalog.Variant, error)
}
