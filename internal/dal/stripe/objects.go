package stripe

import (
	"encoding/json"
	"fmt"

	"github.com/corray333/backend-labs/checkout/internal/service/apperr"
	"github.com/corray333/backend-labs/checkout/internal/service/models/payment"
	"github.com/stripe/stripe-go/v79"
)

// taxSnapshot is what gets stored for audits and disputes.
type taxSnapshot struct {
	SessionID     string                              `json:"session_id"`
	PaymentIntent *string                             `json:"payment_intent"`
	AutomaticTax  *stripe.CheckoutSessionAutomaticTax `json:"automatic_tax"`
	TotalDetails  *stripe.CheckoutSessionTotalDetails `json:"total_details"`
	Currency      stripe.Currency                     `json:"currency"`
	Created       int64                               `json:"created"`
}

// DecodeCheckoutSession maps the data object of a checkout.session.* event.
func (g *Gateway) DecodeCheckoutSession(object []byte) (payment.CheckoutSession, error) {
	return DecodeCheckoutSession(object)
}

// DecodeCharge maps the data object of a charge.* event.
func (g *Gateway) DecodeCharge(object []byte) (payment.Charge, error) {
	return DecodeCharge(object)
}

// DecodeCheckoutSession maps a Stripe checkout session object to its provider-neutral form.
// The order reference is metadata.order_id, falling back to client_reference_id. The email is
// customer_details.email, falling back to customer_email.
func DecodeCheckoutSession(object []byte) (payment.CheckoutSession, error) {
	var s stripe.CheckoutSession
	if err := json.Unmarshal(object, &s); err != nil {
		return payment.CheckoutSession{}, apperr.Malformed("failed to decode checkout session: %v", err)
	}

	out := payment.CheckoutSession{
		ID:             s.ID,
		OrderReference: s.Metadata["order_id"],
		SubtotalCents:  s.AmountSubtotal,
		TotalCents:     s.AmountTotal,
	}
	if out.OrderReference == "" {
		out.OrderReference = s.ClientReferenceID
	}
	if s.TotalDetails != nil {
		out.TaxCents = s.TotalDetails.AmountTax
		out.ShippingCents = s.TotalDetails.AmountShipping
		out.DiscountCents = s.TotalDetails.AmountDiscount
	}

	switch {
	case s.CustomerDetails != nil && s.CustomerDetails.Email != "":
		out.Email = stripe.String(s.CustomerDetails.Email)
	case s.CustomerEmail != "":
		out.Email = stripe.String(s.CustomerEmail)
	}

	if s.CustomerDetails != nil && s.CustomerDetails.Address != nil {
		addr, err := json.Marshal(s.CustomerDetails.Address)
		if err != nil {
			return payment.CheckoutSession{}, fmt.Errorf("failed to encode shipping address: %w", err)
		}
		out.ShippingAddress = addr
	}

	if s.PaymentIntent != nil && s.PaymentIntent.ID != "" {
		out.PaymentIntentID = stripe.String(s.PaymentIntent.ID)
	}
	if s.Customer != nil && s.Customer.ID != "" {
		out.CustomerID = stripe.String(s.Customer.ID)
	}

	snapshot, err := json.Marshal(taxSnapshot{
		SessionID:     s.ID,
		PaymentIntent: out.PaymentIntentID,
		AutomaticTax:  s.AutomaticTax,
		TotalDetails:  s.TotalDetails,
		Currency:      s.Currency,
		Created:       s.Created,
	})
	if err != nil {
		return payment.CheckoutSession{}, fmt.Errorf("failed to encode tax snapshot: %w", err)
	}
	out.TaxSnapshot = snapshot

	return out, nil
}

// DecodeCharge maps a Stripe charge object to its provider-neutral form.
func DecodeCharge(object []byte) (payment.Charge, error) {
	var c stripe.Charge
	if err := json.Unmarshal(object, &c); err != nil {
		return payment.Charge{}, apperr.Malformed("failed to decode charge: %v", err)
	}

	out := payment.Charge{ID: c.ID}
	if c.PaymentIntent != nil {
		out.PaymentIntentID = c.PaymentIntent.ID
	}

	return out, nil
}
