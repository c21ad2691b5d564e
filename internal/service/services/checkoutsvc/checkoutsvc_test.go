package checkoutsvc

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/corray333/backend-labs/checkout/internal/service/apperr"
	"github.com/corray333/backend-labs/checkout/internal/service/models/catalog"
	"github.com/corray333/backend-labs/checkout/internal/service/models/currency"
	"github.com/corray333/backend-labs/checkout/internal/service/models/order"
	"github.com/corray333/backend-labs/checkout/internal/service/models/payment"
	"github.com/corray333/backend-labs/checkout/internal/testutil/memstore"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
)

type fakeGateway struct {
	mu       sync.Mutex
	requests []payment.SessionRequest
	err      error
}

func (g *fakeGateway) CreateSession(ctx context.Context, req payment.SessionRequest) (payment.Session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.requests = append(g.requests, req)
	if g.err != nil {
		return payment.Session{}, g.err
	}
	id := "cs_test_" + req.OrderID.String()

	return payment.Session{ID: id, URL: "https://checkout.stripe.test/" + id}, nil
}

type CheckoutServiceSuite struct {
	suite.Suite

	store   *memstore.Store
	gateway *fakeGateway
	svc     *CheckoutService
	now     time.Time

	mug     catalog.Variant
	sticker catalog.Variant
	euro    catalog.Variant
	retired catalog.Variant
}

func TestCheckoutServiceSuite(t *testing.T) {
	suite.Run(t, new(CheckoutServiceSuite))
}

func (s *CheckoutServiceSuite) SetupTest() {
	s.store = memstore.New()
	s.gateway = &fakeGateway{}
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	s.mug = catalog.Variant{
		VariantID:      uuid.New(),
		ProductID:      uuid.New(),
		ProductTitle:   "Mug",
		VariantTitle:   "Blue",
		SKU:            "MUG-BLU",
		UnitPriceCents: 1500,
		Currency:       currency.CurrencyUSD,
		TaxCode:        "txcd_99999999",
		ProductActive:  true,
	}
	s.sticker = catalog.Variant{
		VariantID:      uuid.New(),
		ProductID:      uuid.New(),
		ProductTitle:   "Sticker",
		SKU:            "STK",
		UnitPriceCents: 300,
		Currency:       currency.CurrencyUSD,
		ProductActive:  true,
	}
	s.euro = catalog.Variant{
		VariantID:      uuid.New(),
		ProductID:      uuid.New(),
		ProductTitle:   "Poster",
		SKU:            "PST",
		UnitPriceCents: 900,
		Currency:       currency.Currency("eur"),
		ProductActive:  true,
	}
	s.retired = catalog.Variant{
		VariantID:      uuid.New(),
		ProductID:      uuid.New(),
		ProductTitle:   "Old Mug",
		SKU:            "MUG-OLD",
		UnitPriceCents: 1000,
		Currency:       currency.CurrencyUSD,
		ProductActive:  false,
	}
	for _, v := range []catalog.Variant{s.mug, s.sticker, s.euro, s.retired} {
		s.store.AddVariant(v)
	}

	s.svc = MustNewCheckoutService(
		WithUnitOfWork(s.store.Factory()),
		WithCatalog(s.store),
		WithGateway(s.gateway),
		WithSiteURL("https://shop.test/"),
		WithMaxQuantity(20),
		WithClock(func() time.Time { return s.now }),
	)
}

func (s *CheckoutServiceSuite) TestCreatesPendingOrderAndSession() {
	email := "  Buyer@Example.COM "
	res, err := s.svc.CreateCheckout(context.Background(), Request{
		Items: []LineRequest{
			{VariantID: s.mug.VariantID, Quantity: 2},
			{VariantID: s.sticker.VariantID, Quantity: 1},
			{VariantID: s.mug.VariantID, Quantity: 1},
		},
		Email: &email,
	})
	s.Require().NoError(err)
	s.Equal("https://checkout.stripe.test/cs_test_"+res.OrderID.String(), res.RedirectURL)

	o, ok := s.store.Order(res.OrderID)
	s.Require().True(ok)
	s.Equal(order.StatusPendingPayment, o.Status)
	s.Equal(currency.CurrencyUSD, o.Currency)
	s.Equal(int64(2*1500+300+1500), o.SubtotalCents)
	s.Equal(o.SubtotalCents, o.TotalCents)
	s.Zero(o.TaxCents)
	s.Zero(o.ShippingCents)
	s.Zero(o.DiscountCents)
	s.Require().NotNil(o.Email)
	s.Equal("buyer@example.com", *o.Email)
	s.Require().NotNil(o.CheckoutSessionID)
	s.Equal("cs_test_"+res.OrderID.String(), *o.CheckoutSessionID)

	items := s.store.Items(res.OrderID)
	s.Require().Len(items, 3)
	s.Equal("Mug - Blue", items[0].Title)
	s.Equal("MUG-BLU", items[0].SKU)
	s.Equal(2, items[0].Quantity)
	s.Equal("Sticker", items[1].Title)
	s.Equal(s.mug.VariantID, items[2].VariantID)

	s.Require().Len(s.gateway.requests, 1)
	req := s.gateway.requests[0]
	s.Equal(res.OrderID, req.OrderID)
	s.Equal(currency.CurrencyUSD, req.Currency)
	s.Equal("https://shop.test/checkout/success?session_id={CHECKOUT_SESSION_ID}", req.SuccessURL)
	s.Equal("https://shop.test/checkout/cancel?order_id="+res.OrderID.String(), req.CancelURL)
	s.Require().NotNil(req.Email)
	s.Equal("buyer@example.com", *req.Email)
	s.Equal([]payment.LineItem{
		{Name: "Mug - Blue", UnitPriceCents: 1500, Quantity: 2, TaxCode: "txcd_99999999"},
		{Name: "Sticker", UnitPriceCents: 300, Quantity: 1},
		{Name: "Mug - Blue", UnitPriceCents: 1500, Quantity: 1, TaxCode: "txcd_99999999"},
	}, req.LineItems)
}

func (s *CheckoutServiceSuite) TestRejectsBeforeWriting() {
	bad := "not-an-email"
	huge := catalog.Variant{
		VariantID:      uuid.New(),
		ProductID:      uuid.New(),
		ProductTitle:   "Yacht",
		SKU:            "YCHT",
		UnitPriceCents: math.MaxInt64 / 2,
		Currency:       currency.CurrencyUSD,
		ProductActive:  true,
	}
	s.store.AddVariant(huge)

	tests := []struct {
		name   string
		req    Request
		reason string
	}{
		{"no items", Request{}, "at least one item is required"},
		{"zero quantity", Request{Items: []LineRequest{{VariantID: s.mug.VariantID, Quantity: 0}}}, "quantity must be between 1 and 20"},
		{"quantity over limit", Request{Items: []LineRequest{{VariantID: s.mug.VariantID, Quantity: 21}}}, "quantity must be between 1 and 20"},
		{"bad email", Request{Items: []LineRequest{{VariantID: s.mug.VariantID, Quantity: 1}}, Email: &bad}, "invalid email"},
		{"nil variant", Request{Items: []LineRequest{{Quantity: 1}}}, "invalid variantId"},
		{"second line over limit", Request{Items: []LineRequest{
			{VariantID: s.mug.VariantID, Quantity: 1},
			{VariantID: s.sticker.VariantID, Quantity: 99},
		}}, "quantity must be between 1 and 20"},
		{"unknown variant", Request{Items: []LineRequest{{VariantID: uuid.New(), Quantity: 1}}}, "invalid variantId"},
		{"inactive product", Request{Items: []LineRequest{
			{VariantID: s.mug.VariantID, Quantity: 1},
			{VariantID: s.retired.VariantID, Quantity: 1},
		}}, "product is not available"},
		{"mixed currencies", Request{Items: []LineRequest{
			{VariantID: s.mug.VariantID, Quantity: 1},
			{VariantID: s.euro.VariantID, Quantity: 1},
		}}, "mixed currencies not supported"},
		{"overflow", Request{Items: []LineRequest{
			{VariantID: huge.VariantID, Quantity: 2},
			{VariantID: huge.VariantID, Quantity: 2},
		}}, "order total is too large"},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			_, err := s.svc.CreateCheckout(context.Background(), tt.req)
			s.Require().Error(err)
			s.True(apperr.IsValidation(err))
			s.EqualError(err, tt.reason)
		})
	}

	s.Empty(s.store.Orders())
	s.Empty(s.gateway.requests)
}

func (s *CheckoutServiceSuite) TestGatewayFailureLeavesSessionlessOrder() {
	s.gateway.err = errors.New("stripe is down")

	_, err := s.svc.CreateCheckout(context.Background(), Request{
		Items: []LineRequest{{VariantID: s.sticker.VariantID, Quantity: 3}},
	})
	s.Require().ErrorIs(err, apperr.ErrExternalGateway)

	orders := s.store.Orders()
	s.Require().Len(orders, 1)
	s.Equal(order.StatusPendingPayment, orders[0].Status)
	s.Nil(orders[0].CheckoutSessionID)
	s.Equal(int64(900), orders[0].TotalCents)
	s.Len(s.store.Items(orders[0].ID), 1)
}

func (s *CheckoutServiceSuite) TestItemFailureRollsBackOrder() {
	s.store.FailOnce(memstore.OpOrderItemBulkInsert, memstore.ErrInjected)

	_, err := s.svc.CreateCheckout(context.Background(), Request{
		Items: []LineRequest{{VariantID: s.mug.VariantID, Quantity: 1}},
	})
	s.Require().ErrorIs(err, apperr.ErrStorage)

	s.Empty(s.store.Orders())
	s.Empty(s.gateway.requests)
}

func (s *CheckoutServiceSuite) TestAttachSessionFailure() {
	s.store.FailOnce(memstore.OpOrderAttachSession, memstore.ErrInjected)

	_, err := s.svc.CreateCheckout(context.Background(), Request{
		Items: []LineRequest{{VariantID: s.mug.VariantID, Quantity: 1}},
	})
	s.Require().ErrorIs(err, apperr.ErrStorage)

	orders := s.store.Orders()
	s.Require().Len(orders, 1)
	s.Nil(orders[0].CheckoutSessionID)
}

func (s *CheckoutServiceSuite) TestCatalogFailure() {
	s.store.FailOnce(memstore.OpCatalogLookup, memstore.ErrInjected)

	_, err := s.svc.CreateCheckout(context.Background(), Request{
		Items: []LineRequest{{VariantID: s.mug.VariantID, Quantity: 1}},
	})
	s.Require().ErrorIs(err, apperr.ErrStorage)
	s.False(apperr.IsValidation(err))
}

func (s *CheckoutServiceSuite) TestEmailIsOptional() {
	blank := "   "
	res, err := s.svc.CreateCheckout(context.Background(), Request{
		Items: []LineRequest{{VariantID: s.mug.VariantID, Quantity: 1}},
		Email: &blank,
	})
	s.Require().NoError(err)

	o, _ := s.store.Order(res.OrderID)
	s.Nil(o.Email)
	s.Nil(s.gateway.requests[0].Email)
}
