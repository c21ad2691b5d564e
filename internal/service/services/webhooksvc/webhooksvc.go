package webhooksvc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/corray333/backend-labs/checkout/internal/dal/interfaces/iuow"
	"github.com/corray333/backend-labs/checkout/internal/dal/postgres"
	"github.com/corray333/backend-labs/checkout/internal/dal/uow"
	"github.com/corray333/backend-labs/checkout/internal/service/apperr"
	"github.com/corray333/backend-labs/checkout/internal/service/models/order"
	"github.com/corray333/backend-labs/checkout/internal/service/models/outbox"
	"github.com/corray333/backend-labs/checkout/internal/service/models/payment"
	"github.com/corray333/backend-labs/checkout/internal/service/models/taxsnapshot"
	"github.com/corray333/backend-labs/checkout/internal/service/models/webhookevent"
	"github.com/google/uuid"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// ErrSecretNotConfigured means no webhook signing secret was provided.
var ErrSecretNotConfigured = errors.New("webhook secret is not configured")

// Outcome describes what happened to a delivered event.
type Outcome string

const (
	// OutcomeProcessed means the handler ran and its effects were committed.
	OutcomeProcessed Outcome = "processed"
	// OutcomeDuplicate means an earlier delivery of the same event already succeeded.
	OutcomeDuplicate Outcome = "duplicate"
	// OutcomeIgnored means the event type is not handled; it is still marked processed.
	OutcomeIgnored Outcome = "ignored"
)

type eventGateway interface {
	VerifyAndParseEvent(payload []byte, header, secret string) (payment.Event, error)
	DecodeCheckoutSession(object []byte) (payment.CheckoutSession, error)
	DecodeCharge(object []byte) (payment.Charge, error)
}

// WebhookService reconciles orders from payment provider events.
type WebhookService struct {
	newUOW   iuow.Factory
	gateway  eventGateway
	secret   string
	provider string
	exchange string
	now      func() time.Time
}

// option is a function that configures the WebhookService.
type option func(*WebhookService)

// MustNewWebhookService creates a new WebhookService.
func MustNewWebhookService(opts ...option) *WebhookService {
	s := &WebhookService{
		provider: viper.GetString("stripe.provider_name"),
		exchange: viper.GetString("rabbitmq.exchange"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.provider == "" {
		s.provider = "stripe"
	}
	if s.newUOW == nil {
		panic("webhooksvc: unit of work is not configured")
	}
	if s.gateway == nil {
		panic("webhooksvc: payment gateway is not configured")
	}

	return s
}

// WithPostgresClient backs the ledger and orders with Postgres.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithPostgresClient(pgClient *postgres.Client) option {
	return func(s *WebhookService) {
		s.newUOW = uow.NewFactory(pgClient)
	}
}

// WithUnitOfWork sets the unit of work factory for the WebhookService.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithUnitOfWork(factory iuow.Factory) option {
	return func(s *WebhookService) {
		s.newUOW = factory
	}
}

// WithGateway sets the gateway that verifies and decodes provider events.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithGateway(g eventGateway) option {
	return func(s *WebhookService) {
		s.gateway = g
	}
}

// WithSecret sets the webhook signing secret. An empty secret fails every delivery.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithSecret(secret string) option {
	return func(s *WebhookService) {
		s.secret = secret
	}
}

// WithProvider sets the ledger provider name.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithProvider(provider string) option {
	return func(s *WebhookService) {
		s.provider = provider
	}
}

// WithExchange sets the RabbitMQ exchange order status messages are written for.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithExchange(exchange string) option {
	return func(s *WebhookService) {
		s.exchange = exchange
	}
}

// WithClock overrides time.Now.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithClock(now func() time.Time) option {
	return func(s *WebhookService) {
		s.now = now
	}
}

// HandleEvent verifies and applies one delivery.
//
// Every authentic event is recorded in the ledger before anything else happens. A delivery
// of an event that already succeeded is a no-op. Otherwise the handler, the ledger
// finalization and any outbox messages commit in one transaction. When the handler fails
// the transaction is rolled back, the error is stored on the ledger row and returned; the
// row stays unprocessed so that the provider's retry runs the handler again.
func (s *WebhookService) HandleEvent(ctx context.Context, payload []byte, signature string) (Outcome, error) {
	ctx, span := otel.Tracer("service").Start(ctx, "WebhookService.HandleEvent")
	defer span.End()

	if s.secret == "" {
		return "", ErrSecretNotConfigured
	}

	event, err := s.gateway.VerifyAndParseEvent(payload, signature, s.secret)
	if err != nil {
		return "", err
	}
	span.SetAttributes(
		attribute.String("webhook.event_id", event.ID),
		attribute.String("webhook.event_type", event.Type),
	)

	ledger := s.newUOW().WebhookEventRepository()
	stored, inserted, err := ledger.Record(ctx, webhookevent.WebhookEvent{
		Provider:   s.provider,
		EventID:    event.ID,
		Type:       event.Type,
		Payload:    event.Payload,
		ReceivedAt: s.now(),
	})
	if err != nil {
		return "", err
	}
	if stored.Processed() {
		slog.InfoContext(ctx, "Webhook event already processed", "event_id", event.ID, "type", event.Type)

		return OutcomeDuplicate, nil
	}
	if !inserted {
		slog.InfoContext(ctx, "Webhook event redelivered", "event_id", event.ID, "attempts", stored.Attempts)
	}

	outcome, err := s.process(ctx, event)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "webhook handler failed")

		if markErr := ledger.MarkFailed(ctx, s.provider, event.ID, err.Error()); markErr != nil {
			slog.ErrorContext(ctx, "Failed to record webhook failure", "event_id", event.ID, "error", markErr)
		}
		slog.ErrorContext(ctx, "Webhook handler failed", "event_id", event.ID, "type", event.Type, "error", err)

		return "", err
	}

	slog.InfoContext(ctx, "Webhook event handled", "event_id", event.ID, "type", event.Type, "outcome", outcome)

	return outcome, nil
}

func (s *WebhookService) process(ctx context.Context, event payment.Event) (Outcome, error) {
	work := s.newUOW()
	if err := work.Begin(ctx); err != nil {
		return "", err
	}
	defer func() { _ = work.Rollback(ctx) }()

	locked, err := work.WebhookEventRepository().Lock(ctx, s.provider, event.ID)
	if err != nil {
		return "", err
	}
	if locked.Processed() {
		return OutcomeDuplicate, nil
	}

	outcome, err := s.dispatch(ctx, work, event)
	if err != nil {
		return "", err
	}

	if err := work.WebhookEventRepository().MarkProcessed(ctx, s.provider, event.ID, s.now()); err != nil {
		return "", err
	}
	if err := work.Commit(ctx); err != nil {
		return "", err
	}

	return outcome, nil
}

func (s *WebhookService) dispatch(ctx context.Context, work iuow.UnitOfWork, event payment.Event) (Outcome, error) {
	switch event.Type {
	case payment.EventCheckoutCompleted:
		return OutcomeProcessed, s.handleCompleted(ctx, work, event)
	case payment.EventCheckoutExpired:
		return OutcomeProcessed, s.handleExpired(ctx, work, event)
	case payment.EventChargeRefunded:
		return OutcomeProcessed, s.handleRefunded(ctx, work, event)
	default:
		return OutcomeIgnored, nil
	}
}

func (s *WebhookService) handleCompleted(ctx context.Context, work iuow.UnitOfWork, event payment.Event) error {
	session, err := s.gateway.DecodeCheckoutSession(event.Object)
	if err != nil {
		return err
	}
	orderID, ok, err := parseOrderReference(session.OrderReference)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.Malformed("missing order_id in session metadata")
	}

	now := s.now()
	if session.SubtotalCents-session.DiscountCents+session.TaxCents+session.ShippingCents != session.TotalCents {
		slog.WarnContext(ctx, "Checkout session totals do not add up",
			"order_id", orderID,
			"session_id", session.ID,
			"subtotal_cents", session.SubtotalCents,
			"discount_cents", session.DiscountCents,
			"tax_cents", session.TaxCents,
			"shipping_cents", session.ShippingCents,
			"total_cents", session.TotalCents)
	}

	patch := order.PaymentPatch{
		SubtotalCents:   session.SubtotalCents,
		TaxCents:        session.TaxCents,
		ShippingCents:   session.ShippingCents,
		DiscountCents:   session.DiscountCents,
		TotalCents:      session.TotalCents,
		Email:           session.Email,
		ShippingAddress: session.ShippingAddress,
		PaymentIntentID: session.PaymentIntentID,
		CustomerID:      session.CustomerID,
		UpdatedAt:       now,
	}
	if session.ID != "" {
		patch.CheckoutSessionID = &session.ID
	}
	if err := work.OrderRepository().ApplyPayment(ctx, orderID, patch); err != nil {
		return fmt.Errorf("failed to apply payment to order %s: %w", orderID, err)
	}

	if err := s.transition(ctx, work, orderID, order.TriggerPaymentCompleted, event.ID, now); err != nil {
		return err
	}

	return work.TaxSnapshotRepository().Upsert(ctx, taxsnapshot.TaxSnapshot{
		OrderID:   orderID,
		Provider:  s.provider,
		Snapshot:  session.TaxSnapshot,
		CreatedAt: now,
		UpdatedAt: now,
	})
}

func (s *WebhookService) handleExpired(ctx context.Context, work iuow.UnitOfWork, event payment.Event) error {
	session, err := s.gateway.DecodeCheckoutSession(event.Object)
	if err != nil {
		return err
	}
	orderID, ok, err := parseOrderReference(session.OrderReference)
	if err != nil || !ok {
		slog.InfoContext(ctx, "Expired session without a usable order reference", "session_id", session.ID)

		return nil
	}

	return s.transition(ctx, work, orderID, order.TriggerSessionExpired, event.ID, s.now())
}

func (s *WebhookService) handleRefunded(ctx context.Context, work iuow.UnitOfWork, event payment.Event) error {
	c, err := s.gateway.DecodeCharge(event.Object)
	if err != nil {
		return err
	}
	if c.PaymentIntentID == "" {
		slog.InfoContext(ctx, "Refunded charge without payment intent", "charge_id", c.ID)

		return nil
	}

	now := s.now()
	changes, err := work.OrderRepository().TransitionByPaymentIntent(ctx, c.PaymentIntentID, order.TriggerRefunded, now)
	if err != nil {
		return fmt.Errorf("failed to refund orders: %w", err)
	}
	for _, change := range changes {
		if err := s.announce(ctx, work, change, event.ID, now); err != nil {
			return err
		}
	}

	return nil
}

// parseOrderReference reports ok=false when the session carries no reference at all and a
// malformed-event error when the reference is not a UUID.
func parseOrderReference(ref string) (id uuid.UUID, ok bool, err error) {
	if ref == "" {
		return uuid.Nil, false, nil
	}

	id, err = uuid.Parse(ref)
	if err != nil {
		return uuid.Nil, true, apperr.Malformed("order reference %q is not a uuid", ref)
	}

	return id, true, nil
}

func (s *WebhookService) transition(
	ctx context.Context,
	work iuow.UnitOfWork,
	orderID uuid.UUID,
	trigger order.Trigger,
	eventID string,
	at time.Time,
) error {
	change, changed, err := work.OrderRepository().Transition(ctx, orderID, trigger, at)
	if err != nil {
		return fmt.Errorf("failed to transition order %s: %w", orderID, err)
	}
	if !changed {
		return nil
	}

	return s.announce(ctx, work, change, eventID, at)
}

func (s *WebhookService) announce(
	ctx context.Context,
	work iuow.UnitOfWork,
	change order.StatusChange,
	eventID string,
	at time.Time,
) error {
	msg, err := outbox.NewOrderStatusMessage(s.exchange, outbox.RoutingKeyForStatus(change.To.String()), outbox.OrderStatusChanged{
		OrderID:    change.OrderID,
		Status:     change.To.String(),
		OccurredAt: at,
		EventID:    eventID,
	})
	if err != nil {
		return fmt.Errorf("failed to build order status message: %w", err)
	}

	return work.OutboxRepository().Insert(ctx, msg)
}
