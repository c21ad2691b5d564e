package stripe

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/corray333/backend-labs/checkout/internal/service/apperr"
	"github.com/corray333/backend-labs/checkout/internal/service/models/payment"
	"github.com/spf13/viper"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"github.com/stripe/stripe-go/v79/webhook"
)

// Provider is the ledger provider name of events verified by this gateway.
const Provider = "stripe"

var ErrSecretKeyMissing = errors.New("STRIPE_SECRET_KEY is not configured")

type sessionCreator interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

// Gateway talks to Stripe Checkout.
type Gateway struct {
	sessions          sessionCreator
	shippingCountries []string
	automaticTax      bool
	promotionCodes    bool
}

type option func(*Gateway)

// MustNewGateway creates a gateway from STRIPE_SECRET_KEY and the stripe.* config keys.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func MustNewGateway(opts ...option) *Gateway {
	g := &Gateway{
		shippingCountries: viper.GetStringSlice("stripe.shipping_countries"),
		automaticTax:      !viper.IsSet("stripe.automatic_tax") || viper.GetBool("stripe.automatic_tax"),
		promotionCodes:    !viper.IsSet("stripe.allow_promotion_codes") || viper.GetBool("stripe.allow_promotion_codes"),
	}
	if len(g.shippingCountries) == 0 {
		g.shippingCountries = []string{"US"}
	}

	for _, opt := range opts {
		opt(g)
	}

	if g.sessions == nil {
		key := os.Getenv("STRIPE_SECRET_KEY")
		if key == "" {
			panic(ErrSecretKeyMissing)
		}
		g.sessions = client.New(key, nil).CheckoutSessions
	}

	return g
}

// WithSessionCreator replaces the Stripe API client used to create checkout sessions.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithSessionCreator(sessions sessionCreator) option {
	return func(g *Gateway) {
		g.sessions = sessions
	}
}

// WithShippingCountries sets the countries a buyer may ship to.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithShippingCountries(countries ...string) option {
	return func(g *Gateway) {
		g.shippingCountries = countries
	}
}

// CreateSession creates a hosted checkout session for the order.
func (g *Gateway) CreateSession(ctx context.Context, req payment.SessionRequest) (payment.Session, error) {
	params := g.sessionParams(req)
	params.Context = ctx

	s, err := g.sessions.New(params)
	if err != nil {
		return payment.Session{}, fmt.Errorf("failed to create stripe checkout session: %w", err)
	}

	return payment.Session{ID: s.ID, URL: s.URL}, nil
}

func (g *Gateway) sessionParams(req payment.SessionRequest) *stripe.CheckoutSessionParams {
	orderID := req.OrderID.String()

	lineItems := make([]*stripe.CheckoutSessionLineItemParams, 0, len(req.LineItems))
	for _, li := range req.LineItems {
		product := &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
			Name: stripe.String(li.Name),
		}
		if li.TaxCode != "" {
			product.TaxCode = stripe.String(li.TaxCode)
		}

		lineItems = append(lineItems, &stripe.CheckoutSessionLineItemParams{
			Quantity: stripe.Int64(int64(li.Quantity)),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:    stripe.String(req.Currency.String()),
				UnitAmount:  stripe.Int64(li.UnitPriceCents),
				ProductData: product,
			},
		})
	}

	params := &stripe.CheckoutSessionParams{
		Mode:                     stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems:                lineItems,
		BillingAddressCollection: stripe.String(string(stripe.CheckoutSessionBillingAddressCollectionAuto)),
		ClientReferenceID:        stripe.String(orderID),
		SuccessURL:               stripe.String(req.SuccessURL),
		CancelURL:                stripe.String(req.CancelURL),
	}
	if g.automaticTax {
		params.AutomaticTax = &stripe.CheckoutSessionAutomaticTaxParams{Enabled: stripe.Bool(true)}
	}
	if g.promotionCodes {
		params.AllowPromotionCodes = stripe.Bool(true)
	}
	if len(g.shippingCountries) > 0 {
		params.ShippingAddressCollection = &stripe.CheckoutSessionShippingAddressCollectionParams{
			AllowedCountries: stripe.StringSlice(g.shippingCountries),
		}
	}
	if req.Email != nil {
		params.CustomerEmail = stripe.String(*req.Email)
	}
	params.AddMetadata("order_id", orderID)

	return params
}

// VerifyAndParseEvent authenticates payload against the Stripe-Signature header and
// returns the event envelope. Any verification failure is reported as apperr.ErrSignature.
func (g *Gateway) VerifyAndParseEvent(payload []byte, header, secret string) (payment.Event, error) {
	event, err := webhook.ConstructEventWithOptions(payload, header, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return payment.Event{}, fmt.Errorf("%w: %w", apperr.ErrSignature, err)
	}
	if event.ID == "" || event.Type == "" {
		return payment.Event{}, apperr.Malformed("event without id or type")
	}

	var object []byte
	if event.Data != nil {
		object = event.Data.Raw
	}

	return payment.Event{
		ID:      event.ID,
		Type:    string(event.Type),
		Object:  object,
		Payload: payload,
	}, nil
}

// DashboardPaymentURL links to the payment in the Stripe dashboard.
func DashboardPaymentURL(paymentIntentID string, live bool) string {
	prefix := "/test"
	if live {
		prefix = ""
	}

	return "https://dashboard.stripe.com" + prefix + "/payments/" + paymentIntentID
}
