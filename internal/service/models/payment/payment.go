// Package payment describes what the service needs from a hosted-payment provider,
// independent of any particular provider SDK.
package payment

import (
	"encoding/json"

	"github.com/corray333/backend-labs/checkout/internal/service/models/currency"
	"github.com/google/uuid"
)

// Event types the webhook processor acts on. Everything else is acknowledged and ignored.
const (
	EventCheckoutCompleted = "checkout.session.completed"
	EventCheckoutExpired   = "checkout.session.expired"
	EventChargeRefunded    = "charge.refunded"
)

// LineItem is a cart line as shown on the hosted checkout page.
type LineItem struct {
	Name           string
	UnitPriceCents int64
	Quantity       int
	TaxCode        string
}

// SessionRequest asks the provider for a hosted checkout session.
type SessionRequest struct {
	OrderID    uuid.UUID
	Currency   currency.Currency
	LineItems  []LineItem
	Email      *string
	SuccessURL string
	CancelURL  string
}

// Session is a created hosted checkout session.
type Session struct {
	ID  string
	URL string
}

// Event is a verified provider event.
type Event struct {
	ID   string
	Type string
	// Object is the event's data object, e.g. the checkout session or the charge.
	Object json.RawMessage
	// Payload is the full event body as received.
	Payload json.RawMessage
}

// CheckoutSession is a hosted checkout session as reported by a provider event.
type CheckoutSession struct {
	ID string
	// OrderReference is the order id the session was created for, as sent back by the provider.
	// It is empty when the session carries none and may not be a valid UUID.
	OrderReference string

	SubtotalCents int64
	TaxCents      int64
	ShippingCents int64
	DiscountCents int64
	TotalCents    int64

	Email           *string
	ShippingAddress json.RawMessage
	PaymentIntentID *string
	CustomerID      *string

	// TaxSnapshot is the provider's tax computation, kept verbatim for audits.
	TaxSnapshot json.RawMessage
}

// Charge is a provider charge as reported by a refund event.
type Charge struct {
	ID              string
	PaymentIntentID string
}
