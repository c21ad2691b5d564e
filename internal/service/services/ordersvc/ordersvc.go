package ordersvc

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/corray333/backend-labs/checkout/internal/dal/interfaces/iuow"
	"github.com/corray333/backend-labs/checkout/internal/dal/postgres"
	"github.com/corray333/backend-labs/checkout/internal/dal/uow"
	"github.com/corray333/backend-labs/checkout/internal/service/models/order"
	"github.com/corray333/backend-labs/checkout/internal/service/models/orderitem"
	"github.com/corray333/backend-labs/checkout/internal/service/models/outbox"
	"github.com/corray333/backend-labs/checkout/internal/service/models/taxsnapshot"
	"github.com/google/uuid"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// OrderDetails is an order with everything an operator needs to look into it.
type OrderDetails struct {
	Order       order.Order
	TaxSnapshot *taxsnapshot.TaxSnapshot
	PaymentURL  *string
}

// OrderService is a service for reading orders and reconciling abandoned ones.
type OrderService struct {
	newUOW     iuow.Factory
	paymentURL func(paymentIntentID string) string
	exchange   string
	now        func() time.Time
}

// option is a function that configures the OrderService.
type option func(*OrderService)

// MustNewOrderService creates a new OrderService.
func MustNewOrderService(opts ...option) *OrderService {
	s := &OrderService{
		exchange: viper.GetString("rabbitmq.exchange"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.newUOW == nil {
		panic("ordersvc: unit of work is not configured")
	}

	return s
}

// WithPostgresClient sets the Postgres client for the OrderService.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithPostgresClient(pgClient *postgres.Client) option {
	return func(s *OrderService) {
		s.newUOW = uow.NewFactory(pgClient)
	}
}

// WithUnitOfWork sets the unit of work factory for the OrderService.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithUnitOfWork(factory iuow.Factory) option {
	return func(s *OrderService) {
		s.newUOW = factory
	}
}

// WithPaymentURL sets how a payment intent id becomes a link to the provider dashboard.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithPaymentURL(fn func(paymentIntentID string) string) option {
	return func(s *OrderService) {
		s.paymentURL = fn
	}
}

// WithExchange sets the RabbitMQ exchange for cancellation messages.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithExchange(exchange string) option {
	return func(s *OrderService) {
		s.exchange = exchange
	}
}

// WithClock overrides time.Now.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithClock(now func() time.Time) option {
	return func(s *OrderService) {
		s.now = now
	}
}

// GetOrder returns an order with its items and tax snapshot.
func (s *OrderService) GetOrder(ctx context.Context, id uuid.UUID) (OrderDetails, error) {
	ctx, span := otel.Tracer("service").Start(ctx, "OrderService.GetOrder")
	defer span.End()

	work := s.newUOW()

	o, err := work.OrderRepository().Get(ctx, id)
	if err != nil {
		return OrderDetails{}, err
	}

	items, err := work.OrderItemRepository().Query(ctx, &orderitem.QueryOrderItemsModel{
		OrderIds: []uuid.UUID{id},
	})
	if err != nil {
		return OrderDetails{}, err
	}
	o.OrderItems = items

	details := OrderDetails{Order: o}

	snapshot, found, err := work.TaxSnapshotRepository().GetByOrder(ctx, id)
	if err != nil {
		return OrderDetails{}, err
	}
	if found {
		details.TaxSnapshot = &snapshot
	}

	if o.PaymentIntentID != nil && s.paymentURL != nil {
		link := s.paymentURL(*o.PaymentIntentID)
		details.PaymentURL = &link
	}

	return details, nil
}

// ListOrders retrieves orders newest first with their items.
func (s *OrderService) ListOrders(ctx context.Context, filter order.QueryOrdersModel) ([]order.Order, error) {
	ctx, span := otel.Tracer("service").Start(ctx, "OrderService.ListOrders")
	defer span.End()

	if filter.Limit <= 0 {
		filter.Limit = defaultPageSize
	}
	if filter.Limit > maxPageSize {
		filter.Limit = maxPageSize
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	work := s.newUOW()

	orders, err := work.OrderRepository().Query(ctx, &filter)
	if err != nil {
		return nil, err
	}

	if len(orders) == 0 {
		return []order.Order{}, nil
	}

	orderItemQuery := &orderitem.QueryOrderItemsModel{}
	for _, o := range orders {
		orderItemQuery.OrderIds = append(orderItemQuery.OrderIds, o.ID)
	}
	orderItems, err := work.OrderItemRepository().Query(ctx, orderItemQuery)
	if err != nil {
		return nil, err
	}

	byOrder := make(map[uuid.UUID][]orderitem.OrderItem, len(orders))
	for _, item := range orderItems {
		byOrder[item.OrderID] = append(byOrder[item.OrderID], item)
	}
	for i := range orders {
		orders[i].OrderItems = byOrder[orders[i].ID]
	}

	return orders, nil
}

// SweepStalePending cancels pending orders that never got a checkout session and were
// created more than olderThan ago. It returns the ids of the cancelled orders.
func (s *OrderService) SweepStalePending(ctx context.Context, olderThan time.Duration, limit int) ([]uuid.UUID, error) {
	ctx, span := otel.Tracer("service").Start(ctx, "OrderService.SweepStalePending")
	defer span.End()

	now := s.now()
	work := s.newUOW()
	if err := work.Begin(ctx); err != nil {
		return nil, err
	}
	defer func() { _ = work.Rollback(ctx) }()

	stale, err := work.OrderRepository().QueryStale(ctx, order.StaleQuery{
		CreatedBefore: now.Add(-olderThan),
		Limit:         limit,
	})
	if err != nil {
		return nil, err
	}

	var cancelled []uuid.UUID
	for _, o := range stale {
		change, changed, err := work.OrderRepository().Transition(ctx, o.ID, order.TriggerSessionExpired, now)
		if err != nil {
			return nil, fmt.Errorf("failed to cancel stale order %s: %w", o.ID, err)
		}
		if !changed {
			continue
		}

		msg, err := outbox.NewOrderStatusMessage(s.exchange, outbox.RoutingKeyForStatus(change.To.String()), outbox.OrderStatusChanged{
			OrderID:    change.OrderID,
			Status:     change.To.String(),
			OccurredAt: now,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to build order status message: %w", err)
		}
		if err := work.OutboxRepository().Insert(ctx, msg); err != nil {
			return nil, err
		}

		cancelled = append(cancelled, change.OrderID)
	}

	if err := work.Commit(ctx); err != nil {
		return nil, err
	}

	if len(cancelled) > 0 {
		slog.InfoContext(ctx, "Cancelled stale pending orders", "count", len(cancelled))
	}

	return cancelled, nil
}
