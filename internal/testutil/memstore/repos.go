package memstore

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/corray333/backend-labs/checkout/internal/dal/interfaces/ioutbox"
	"github.com/corray333/backend-labs/checkout/internal/service/apperr"
	"github.com/corray333/backend-labs/checkout/internal/service/models/catalog"
	"github.com/corray333/backend-labs/checkout/internal/service/models/order"
	"github.com/corray333/backend-labs/checkout/internal/service/models/orderitem"
	"github.com/corray333/backend-labs/checkout/internal/service/models/outbox"
	"github.com/corray333/backend-labs/checkout/internal/service/models/taxsnapshot"
	"github.com/corray333/backend-labs/checkout/internal/service/models/webhookevent"
	"github.com/google/uuid"
)

type orderRepo struct{ u *UnitOfWork }

func (r orderRepo) Insert(ctx context.Context, o order.Order) (order.Order, error) {
	if err := r.u.store.injected(OpOrderInsert); err != nil {
		return order.Order{}, apperr.Storage("failed to insert order", err)
	}
	defer r.u.lock()()

	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	if _, ok := r.u.store.data.orders[o.ID]; ok {
		return order.Order{}, fmt.Errorf("failed to insert order: %w", apperr.ErrConflict)
	}
	o.OrderItems = nil
	r.u.store.data.orders[o.ID] = o

	return o, nil
}

func (r orderRepo) Get(ctx context.Context, id uuid.UUID) (order.Order, error) {
	defer r.u.lock()()

	o, ok := r.u.store.data.orders[id]
	if !ok {
		return order.Order{}, apperr.ErrOrderNotFound
	}

	return o, nil
}

func (r orderRepo) Query(ctx context.Context, filter *order.QueryOrdersModel) ([]order.Order, error) {
	defer r.u.lock()()

	var out []order.Order
	for _, o := range r.u.store.data.orders {
		if len(filter.Ids) > 0 && !slices.Contains(filter.Ids, o.ID) {
			continue
		}
		if len(filter.Statuses) > 0 && !slices.Contains(filter.Statuses, o.Status) {
			continue
		}
		if filter.Email != "" && (o.Email == nil || *o.Email != filter.Email) {
			continue
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}

		return out[i].ID.String() < out[j].ID.String()
	})

	return page(out, filter.Offset, filter.Limit), nil
}

func (r orderRepo) QueryStale(ctx context.Context, filter order.StaleQuery) ([]order.Order, error) {
	defer r.u.lock()()

	var out []order.Order
	for _, o := range r.u.store.data.orders {
		if o.Status == order.StatusPendingPayment && o.CheckoutSessionID == nil && o.CreatedAt.Before(filter.CreatedBefore) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })

	return page(out, 0, filter.Limit), nil
}

func (r orderRepo) AttachSession(ctx context.Context, id uuid.UUID, patch order.SessionPatch) error {
	if err := r.u.store.injected(OpOrderAttachSession); err != nil {
		return apperr.Storage("failed to attach checkout session", err)
	}
	defer r.u.lock()()

	o, ok := r.u.store.data.orders[id]
	if !ok {
		return apperr.ErrOrderNotFound
	}
	for otherID, other := range r.u.store.data.orders {
		if otherID != id && other.CheckoutSessionID != nil && *other.CheckoutSessionID == patch.CheckoutSessionID {
			return fmt.Errorf("failed to attach checkout session: %w", apperr.ErrConflict)
		}
	}
	sessionID := patch.CheckoutSessionID
	o.CheckoutSessionID = &sessionID
	o.UpdatedAt = patch.UpdatedAt
	r.u.store.data.orders[id] = o

	return nil
}

func (r orderRepo) ApplyPayment(ctx context.Context, id uuid.UUID, patch order.PaymentPatch) error {
	if err := r.u.store.injected(OpOrderApplyPayment); err != nil {
		return apperr.Storage("failed to apply payment to order", err)
	}
	defer r.u.lock()()

	o, ok := r.u.store.data.orders[id]
	if !ok {
		return apperr.ErrOrderNotFound
	}
	o.SubtotalCents = patch.SubtotalCents
	o.TaxCents = patch.TaxCents
	o.ShippingCents = patch.ShippingCents
	o.DiscountCents = patch.DiscountCents
	o.TotalCents = patch.TotalCents
	if patch.Email != nil {
		o.Email = patch.Email
	}
	if len(patch.ShippingAddress) > 0 {
		o.ShippingAddress = patch.ShippingAddress
	}
	if patch.CheckoutSessionID != nil {
		o.CheckoutSessionID = patch.CheckoutSessionID
	}
	if patch.PaymentIntentID != nil {
		o.PaymentIntentID = patch.PaymentIntentID
	}
	if patch.CustomerID != nil {
		o.CustomerID = patch.CustomerID
	}
	o.UpdatedAt = patch.UpdatedAt
	r.u.store.data.orders[id] = o

	return nil
}

func (r orderRepo) Transition(
	ctx context.Context,
	id uuid.UUID,
	trigger order.Trigger,
	at time.Time,
) (order.StatusChange, bool, error) {
	if err := r.u.store.injected(OpOrderTransition); err != nil {
		return order.StatusChange{}, false, apperr.Storage("failed to transition order", err)
	}
	defer r.u.lock()()

	o, ok := r.u.store.data.orders[id]
	if !ok {
		return order.StatusChange{}, false, nil
	}
	change, changed := r.apply(o, trigger, at)

	return change, changed, nil
}

func (r orderRepo) TransitionByPaymentIntent(
	ctx context.Context,
	paymentIntentID string,
	trigger order.Trigger,
	at time.Time,
) ([]order.StatusChange, error) {
	if err := r.u.store.injected(OpOrderTransition); err != nil {
		return nil, apperr.Storage("failed to transition order", err)
	}
	defer r.u.lock()()

	var changes []order.StatusChange
	for _, o := range r.u.store.data.orders {
		if o.PaymentIntentID == nil || *o.PaymentIntentID != paymentIntentID {
			continue
		}
		if change, changed := r.apply(o, trigger, at); changed {
			changes = append(changes, change)
		}
	}

	return changes, nil
}

func (r orderRepo) apply(o order.Order, trigger order.Trigger, at time.Time) (order.StatusChange, bool) {
	next, changed := order.Apply(o.Status, trigger)
	if !changed {
		return order.StatusChange{}, false
	}
	o.Status = next
	o.UpdatedAt = at
	r.u.store.data.orders[o.ID] = o

	return order.StatusChange{OrderID: o.ID, To: next}, true
}

type orderItemRepo struct{ u *UnitOfWork }

func (r orderItemRepo) BulkInsert(ctx context.Context, items []orderitem.OrderItem) ([]orderitem.OrderItem, error) {
	if err := r.u.store.injected(OpOrderItemBulkInsert); err != nil {
		return nil, apperr.Storage("failed to bulk insert order items", err)
	}
	defer r.u.lock()()

	out := make([]orderitem.OrderItem, 0, len(items))
	for _, it := range items {
		if _, ok := r.u.store.data.orders[it.OrderID]; !ok {
			return nil, apperr.Storage("failed to bulk insert order items", fmt.Errorf("order %s does not exist", it.OrderID))
		}
		if it.ID == uuid.Nil {
			it.ID = uuid.New()
		}
		out = append(out, it)
	}
	r.u.store.data.items = append(r.u.store.data.items, out...)

	return out, nil
}

func (r orderItemRepo) Query(ctx context.Context, filter *orderitem.QueryOrderItemsModel) ([]orderitem.OrderItem, error) {
	defer r.u.lock()()

	var out []orderitem.OrderItem
	for _, it := range r.u.store.data.items {
		if len(filter.Ids) > 0 && !slices.Contains(filter.Ids, it.ID) {
			continue
		}
		if len(filter.OrderIds) > 0 && !slices.Contains(filter.OrderIds, it.OrderID) {
			continue
		}
		if len(filter.VariantIds) > 0 && !slices.Contains(filter.VariantIds, it.VariantID) {
			continue
		}
		out = append(out, it)
	}

	return out, nil
}

type taxSnapshotRepo struct{ u *UnitOfWork }

func (r taxSnapshotRepo) Upsert(ctx context.Context, s taxsnapshot.TaxSnapshot) error {
	if err := r.u.store.injected(OpTaxSnapshotUpsert); err != nil {
		return apperr.Storage("failed to upsert tax snapshot", err)
	}
	defer r.u.lock()()

	if existing, ok := r.u.store.data.snapshots[s.OrderID]; ok {
		existing.Provider = s.Provider
		existing.Snapshot = s.Snapshot
		existing.UpdatedAt = s.UpdatedAt
		r.u.store.data.snapshots[s.OrderID] = existing

		return nil
	}
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	r.u.store.data.snapshots[s.OrderID] = s

	return nil
}

func (r taxSnapshotRepo) GetByOrder(ctx context.Context, orderID uuid.UUID) (taxsnapshot.TaxSnapshot, bool, error) {
	defer r.u.lock()()

	s, ok := r.u.store.data.snapshots[orderID]

	return s, ok, nil
}

type webhookEventRepo struct{ u *UnitOfWork }

func (r webhookEventRepo) Record(
	ctx context.Context,
	e webhookevent.WebhookEvent,
) (webhookevent.WebhookEvent, bool, error) {
	if err := r.u.store.injected(OpWebhookRecord); err != nil {
		return webhookevent.WebhookEvent{}, false, apperr.Storage("failed to record webhook event", err)
	}
	defer r.u.lock()()

	key := eventKey{e.Provider, e.EventID}
	if existing, ok := r.u.store.data.events[key]; ok {
		return existing, false, nil
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	e.ProcessedAt = nil
	e.Error = nil
	e.Attempts = 0
	r.u.store.data.events[key] = e

	return e, true, nil
}

func (r webhookEventRepo) Lock(ctx context.Context, provider, eventID string) (webhookevent.WebhookEvent, error) {
	defer r.u.lock()()

	e, ok := r.u.store.data.events[eventKey{provider, eventID}]
	if !ok {
		return webhookevent.WebhookEvent{}, apperr.Storage("failed to load webhook event", fmt.Errorf("no event %s/%s", provider, eventID))
	}

	return e, nil
}

func (r webhookEventRepo) MarkProcessed(ctx context.Context, provider, eventID string, at time.Time) error {
	defer r.u.lock()()

	key := eventKey{provider, eventID}
	e, ok := r.u.store.data.events[key]
	if !ok {
		return nil
	}
	e.ProcessedAt = &at
	e.Error = nil
	e.Attempts++
	r.u.store.data.events[key] = e

	return nil
}

func (r webhookEventRepo) MarkFailed(ctx context.Context, provider, eventID string, reason string) error {
	defer r.u.lock()()

	key := eventKey{provider, eventID}
	e, ok := r.u.store.data.events[key]
	if !ok {
		return nil
	}
	e.Error = &reason
	e.Attempts++
	r.u.store.data.events[key] = e

	return nil
}

type outboxRepo struct{ u *UnitOfWork }

func (r outboxRepo) Insert(ctx context.Context, msg outbox.OutboxMessage) error {
	if err := r.u.store.injected(OpOutboxInsert); err != nil {
		return apperr.Storage("failed to insert outbox message", err)
	}
	defer r.u.lock()()

	r.u.store.data.outboxSeq++
	msg.ID = r.u.store.data.outboxSeq
	r.u.store.data.outbox = append(r.u.store.data.outbox, msg)

	return nil
}

func (r outboxRepo) Due(ctx context.Context, now time.Time, limit int) ([]outbox.OutboxMessage, error) {
	defer r.u.lock()()

	var out []outbox.OutboxMessage
	for _, msg := range r.u.store.data.outbox {
		if !msg.NextRetryAt.After(now) && msg.RetryCount < msg.MaxRetries {
			out = append(out, msg)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].NextRetryAt.Before(out[j].NextRetryAt) })

	return page(out, 0, limit), nil
}

func (r outboxRepo) Delete(ctx context.Context, id int64) error {
	defer r.u.lock()()

	r.u.store.data.outbox = slices.DeleteFunc(r.u.store.data.outbox, func(m outbox.OutboxMessage) bool {
		return m.ID == id
	})

	return nil
}

func (r outboxRepo) ScheduleRetry(ctx context.Context, id int64, retry outbox.Retry) error {
	defer r.u.lock()()

	for i := range r.u.store.data.outbox {
		if r.u.store.data.outbox[i].ID == id {
			r.u.store.data.outbox[i].RetryCount = retry.RetryCount
			r.u.store.data.outbox[i].LastError = retry.LastError
			r.u.store.data.outbox[i].NextRetryAt = retry.NextRetryAt
			r.u.store.data.outbox[i].UpdatedAt = retry.UpdatedAt
		}
	}

	return nil
}

// LookupVariants implements icatalog.Repository.
func (s *Store) LookupVariants(ctx context.Context, ids []uuid.UUID) ([]catalog.Variant, error) {
	if err := s.injected(OpCatalogLookup); err != nil {
		return nil, apperr.Storage("failed to look up variants", err)
	}
	s.variantsMu.Lock()
	defer s.variantsMu.Unlock()

	var out []catalog.Variant
	for _, id := range ids {
		if v, ok := s.variants[id]; ok {
			out = append(out, v)
		}
	}

	return out, nil
}

// OutboxRepository returns an outbox repository running outside any transaction.
func (s *Store) OutboxRepository() ioutbox.Repository {
	return outboxRepo{s.NewUnitOfWork()}
}

func page[T any](in []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(in) {
			return nil
		}
		in = in[offset:]
	}
	if limit > 0 && limit < len(in) {
		in = in[:limit]
	}

	return in
}
