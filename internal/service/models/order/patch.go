package order

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// PaymentPatch is the set of fields a completed checkout overwrites.
// Nil pointers leave the stored value untouched.
type PaymentPatch struct {
	SubtotalCents     int64
	TaxCents          int64
	ShippingCents     int64
	DiscountCents     int64
	TotalCents        int64
	Email             *string
	ShippingAddress   json.RawMessage
	CheckoutSessionID *string
	PaymentIntentID   *string
	CustomerID        *string
	UpdatedAt         time.Time
}

// SessionPatch attaches the hosted checkout session to a freshly created order.
type SessionPatch struct {
	CheckoutSessionID string
	UpdatedAt         time.Time
}

// StatusChange is the result of a conditional status update.
type StatusChange struct {
	OrderID uuid.UUID
	To      Status
}
