package ordersvc

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/corray333/backend-labs/checkout/internal/service/apperr"
	"github.com/corray333/backend-labs/checkout/internal/service/models/currency"
	"github.com/corray333/backend-labs/checkout/internal/service/models/order"
	"github.com/corray333/backend-labs/checkout/internal/service/models/orderitem"
	"github.com/corray333/backend-labs/checkout/internal/service/models/outbox"
	"github.com/corray333/backend-labs/checkout/internal/service/models/taxsnapshot"
	"github.com/corray333/backend-labs/checkout/internal/testutil/memstore"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
)

type OrderServiceSuite struct {
	suite.Suite

	store *memstore.Store
	svc   *OrderService
	now   time.Time
}

func TestOrderServiceSuite(t *testing.T) {
	suite.Run(t, new(OrderServiceSuite))
}

func (s *OrderServiceSuite) SetupTest() {
	s.store = memstore.New()
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.svc = MustNewOrderService(
		WithUnitOfWork(s.store.Factory()),
		WithExchange("orders"),
		WithClock(func() time.Time { return s.now }),
		WithPaymentURL(func(id string) string { return "https://dashboard.test/payments/" + id }),
	)
}

func (s *OrderServiceSuite) putOrder(status order.Status, age time.Duration, mutate ...func(*order.Order)) order.Order {
	o := order.Order{
		ID:            uuid.New(),
		Status:        status,
		Currency:      currency.CurrencyUSD,
		SubtotalCents: 2500,
		TotalCents:    2500,
		CreatedAt:     s.now.Add(-age),
		UpdatedAt:     s.now.Add(-age),
	}
	for _, fn := range mutate {
		fn(&o)
	}
	s.store.PutOrder(o)

	return o
}

func withSession(id string) func(*order.Order) {
	return func(o *order.Order) { o.CheckoutSessionID = &id }
}

func (s *OrderServiceSuite) addItems(orderID uuid.UUID, n int) {
	items := make([]orderitem.OrderItem, 0, n)
	for i := 0; i < n; i++ {
		items = append(items, orderitem.OrderItem{
			OrderID:        orderID,
			ProductID:      uuid.New(),
			VariantID:      uuid.New(),
			Title:          "Mug",
			SKU:            "MUG-1",
			UnitPriceCents: 1250,
			Quantity:       1,
			CreatedAt:      s.now,
		})
	}
	_, err := s.store.NewUnitOfWork().OrderItemRepository().BulkInsert(context.Background(), items)
	s.Require().NoError(err)
}

func (s *OrderServiceSuite) TestGetOrderReturnsDetails() {
	pi := "pi_123"
	o := s.putOrder(order.StatusPaid, time.Hour, func(o *order.Order) { o.PaymentIntentID = &pi })
	s.addItems(o.ID, 2)

	err := s.store.NewUnitOfWork().TaxSnapshotRepository().Upsert(context.Background(), taxsnapshot.TaxSnapshot{
		OrderID:   o.ID,
		Provider:  "stripe",
		Snapshot:  json.RawMessage(`{"amount_tax":200}`),
		CreatedAt: s.now,
		UpdatedAt: s.now,
	})
	s.Require().NoError(err)

	details, err := s.svc.GetOrder(context.Background(), o.ID)
	s.Require().NoError(err)

	s.Equal(o.ID, details.Order.ID)
	s.Len(details.Order.OrderItems, 2)
	s.Require().NotNil(details.TaxSnapshot)
	s.JSONEq(`{"amount_tax":200}`, string(details.TaxSnapshot.Snapshot))
	s.Require().NotNil(details.PaymentURL)
	s.Equal("https://dashboard.test/payments/pi_123", *details.PaymentURL)
}

func (s *OrderServiceSuite) TestGetOrderWithoutPaymentOrSnapshot() {
	o := s.putOrder(order.StatusPendingPayment, time.Minute)

	details, err := s.svc.GetOrder(context.Background(), o.ID)
	s.Require().NoError(err)

	s.Nil(details.TaxSnapshot)
	s.Nil(details.PaymentURL)
	s.Empty(details.Order.OrderItems)
}

func (s *OrderServiceSuite) TestGetOrderNotFound() {
	_, err := s.svc.GetOrder(context.Background(), uuid.New())
	s.ErrorIs(err, apperr.ErrOrderNotFound)
}

func (s *OrderServiceSuite) TestListOrdersNewestFirstWithItems() {
	older := s.putOrder(order.StatusPaid, 2*time.Hour)
	newer := s.putOrder(order.StatusPendingPayment, time.Hour)
	s.addItems(older.ID, 1)
	s.addItems(newer.ID, 3)

	orders, err := s.svc.ListOrders(context.Background(), order.QueryOrdersModel{})
	s.Require().NoError(err)

	s.Require().Len(orders, 2)
	s.Equal(newer.ID, orders[0].ID)
	s.Len(orders[0].OrderItems, 3)
	s.Equal(older.ID, orders[1].ID)
	s.Len(orders[1].OrderItems, 1)
}

func (s *OrderServiceSuite) TestListOrdersFilters() {
	email := "buyer@example.com"
	paid := s.putOrder(order.StatusPaid, time.Hour, func(o *order.Order) { o.Email = &email })
	s.putOrder(order.StatusPaid, 2*time.Hour)
	s.putOrder(order.StatusCancelled, 3*time.Hour)

	orders, err := s.svc.ListOrders(context.Background(), order.QueryOrdersModel{
		Statuses: []order.Status{order.StatusPaid},
		Email:    email,
	})
	s.Require().NoError(err)
	s.Require().Len(orders, 1)
	s.Equal(paid.ID, orders[0].ID)

	orders, err = s.svc.ListOrders(context.Background(), order.QueryOrdersModel{Limit: 1, Offset: 1})
	s.Require().NoError(err)
	s.Len(orders, 1)

	orders, err = s.svc.ListOrders(context.Background(), order.QueryOrdersModel{Offset: 10})
	s.Require().NoError(err)
	s.NotNil(orders)
	s.Empty(orders)
}

func (s *OrderServiceSuite) TestSweepCancelsOnlyStaleSessionlessOrders() {
	stale := s.putOrder(order.StatusPendingPayment, 2*time.Hour)
	fresh := s.putOrder(order.StatusPendingPayment, 10*time.Minute)
	withCheckout := s.putOrder(order.StatusPendingPayment, 2*time.Hour, withSession("cs_1"))
	paid := s.putOrder(order.StatusPaid, 2*time.Hour)

	cancelled, err := s.svc.SweepStalePending(context.Background(), time.Hour, 100)
	s.Require().NoError(err)
	s.Equal([]uuid.UUID{stale.ID}, cancelled)

	got, _ := s.store.Order(stale.ID)
	s.Equal(order.StatusCancelled, got.Status)
	s.Equal(s.now, got.UpdatedAt)

	for _, id := range []uuid.UUID{fresh.ID, withCheckout.ID} {
		got, _ := s.store.Order(id)
		s.Equal(order.StatusPendingPayment, got.Status)
	}
	got, _ = s.store.Order(paid.ID)
	s.Equal(order.StatusPaid, got.Status)

	msgs := s.store.Outbox()
	s.Require().Len(msgs, 1)
	s.Equal("orders", msgs[0].ExchangeName)
	s.Equal(outbox.RoutingKeyOrderCancelled, msgs[0].RoutingKey)

	var payload outbox.OrderStatusChanged
	s.Require().NoError(json.Unmarshal(msgs[0].Payload, &payload))
	s.Equal(stale.ID, payload.OrderID)
	s.Equal("cancelled", payload.Status)
}

func (s *OrderServiceSuite) TestSweepRespectsLimit() {
	first := s.putOrder(order.StatusPendingPayment, 3*time.Hour)
	s.putOrder(order.StatusPendingPayment, 2*time.Hour)

	cancelled, err := s.svc.SweepStalePending(context.Background(), time.Hour, 1)
	s.Require().NoError(err)
	s.Equal([]uuid.UUID{first.ID}, cancelled)

	cancelled, err = s.svc.SweepStalePending(context.Background(), time.Hour, 1)
	s.Require().NoError(err)
	s.Len(cancelled, 1)

	cancelled, err = s.svc.SweepStalePending(context.Background(), time.Hour, 1)
	s.Require().NoError(err)
	s.Empty(cancelled)
}

func (s *OrderServiceSuite) TestSweepRollsBackWhenOutboxFails() {
	stale := s.putOrder(order.StatusPendingPayment, 2*time.Hour)
	s.store.FailOnce(memstore.OpOutboxInsert, memstore.ErrInjected)

	_, err := s.svc.SweepStalePending(context.Background(), time.Hour, 100)
	s.ErrorIs(err, memstore.ErrInjected)

	got, _ := s.store.Order(stale.ID)
	s.Equal(order.StatusPendingPayment, got.Status)
	s.Empty(s.store.Outbox())
}
