package iorderitem

import (
	"context"

	"github.com/corray333/backend-labs/checkout/internal/service/models/orderitem"
)

// Repository is an interface for order item postgres repository.
type Repository interface {
	BulkInsert(ctx context.Context, orderItems []orderitem.OrderItem) ([]orderitem.OrderItem, error)
	Query(
		ctx context.Context,
		filter *orderitem.QueryOrderItemsModel,
	) ([]orderitem.OrderItem, error)
}
