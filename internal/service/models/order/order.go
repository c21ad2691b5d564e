package order

import (
	"encoding/json"
	"time"

	"github.com/corray333/backend-labs/checkout/internal/service/models/currency"
	"github.com/corray333/backend-labs/checkout/internal/service/models/orderitem"
	"github.com/google/uuid"
)

// Order represents a customer order. Money fields are minor currency units.
type Order struct {
	ID                uuid.UUID             `json:"id"`
	Status            Status                `json:"status"`
	Currency          currency.Currency     `json:"currency"`
	SubtotalCents     int64                 `json:"subtotalCents"`
	TaxCents          int64                 `json:"taxCents"`
	ShippingCents     int64                 `json:"shippingCents"`
	DiscountCents     int64                 `json:"discountCents"`
	TotalCents        int64                 `json:"totalCents"`
	Email             *string               `json:"email,omitempty"`
	ShippingAddress   json.RawMessage       `json:"shippingAddress,omitempty"`
	CheckoutSessionID *string               `json:"checkoutSessionId,omitempty"`
	PaymentIntentID   *string               `json:"paymentIntentId,omitempty"`
	CustomerID        *string               `json:"customerId,omitempty"`
	CreatedAt         time.Time             `json:"createdAt"`
	UpdatedAt         time.Time             `json:"updatedAt"`
	OrderItems        []orderitem.OrderItem `json:"orderItems,omitempty"`
}
