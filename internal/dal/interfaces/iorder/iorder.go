package iorder

import (
	"context"
	"time"

	"github.com/corray333/backend-labs/checkout/internal/service/models/order"
	"github.com/google/uuid"
)

// Repository is an interface for order postgres repository.
type Repository interface {
	Insert(ctx context.Context, o order.Order) (order.Order, error)
	Get(ctx context.Context, id uuid.UUID) (order.Order, error)
	Query(ctx context.Context, filter *order.QueryOrdersModel) ([]order.Order, error)
	// QueryStale returns pending orders without a checkout session created before the cutoff.
	QueryStale(ctx context.Context, filter order.StaleQuery) ([]order.Order, error)

	AttachSession(ctx context.Context, id uuid.UUID, patch order.SessionPatch) error
	// ApplyPayment overwrites financial fields. It returns apperr.ErrOrderNotFound when no row matched.
	ApplyPayment(ctx context.Context, id uuid.UUID, patch order.PaymentPatch) error

	// Transition moves the order to the trigger's target status if it is currently in one of
	// the trigger's source statuses. changed is false when the row was not in a source status.
	Transition(
		ctx context.Context,
		id uuid.UUID,
		trigger order.Trigger,
		at time.Time,
	) (change order.StatusChange, changed bool, err error)
	// TransitionByPaymentIntent applies trigger to every order with the payment intent.
	TransitionByPaymentIntent(
		ctx context.Context,
		paymentIntentID string,
		trigger order.Trigger,
		at time.Time,
	) ([]order.StatusChange, error)
}
