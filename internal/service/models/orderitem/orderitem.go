package orderitem

import (
	"time"

	"github.com/google/uuid"
)

// OrderItem is a point-in-time snapshot of a purchased variant. It is never updated.
type OrderItem struct {
	ID             uuid.UUID `json:"id"`
	OrderID        uuid.UUID `json:"orderId"`
	ProductID      uuid.UUID `json:"productId"`
	VariantID      uuid.UUID `json:"variantId"`
	Title          string    `json:"title"`
	SKU            string    `json:"sku"`
	UnitPriceCents int64     `json:"unitPriceCents"`
	Quantity       int       `json:"quantity"`
	CreatedAt      time.Time `json:"createdAt"`
}
