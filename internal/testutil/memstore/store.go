// Package memstore is an in-memory implementation of the persistence contracts for
// service and worker tests. A transaction holds the store exclusively from Begin until
// Commit or Rollback, and Rollback restores the state seen at Begin.
package memstore

import (
	"errors"
	"slices"
	"sort"
	"sync"

	"github.com/corray333/backend-labs/checkout/internal/dal/interfaces/iuow"
	"github.com/corray333/backend-labs/checkout/internal/service/models/catalog"
	"github.com/corray333/backend-labs/checkout/internal/service/models/order"
	"github.com/corray333/backend-labs/checkout/internal/service/models/orderitem"
	"github.com/corray333/backend-labs/checkout/internal/service/models/outbox"
	"github.com/corray333/backend-labs/checkout/internal/service/models/taxsnapshot"
	"github.com/corray333/backend-labs/checkout/internal/service/models/webhookevent"
	"github.com/google/uuid"
)

// ErrInjected is a convenient error for FailOnce.
var ErrInjected = errors.New("injected failure")

// Operation names accepted by FailOnce.
const (
	OpOrderInsert         = "order.insert"
	OpOrderAttachSession  = "order.attach_session"
	OpOrderApplyPayment   = "order.apply_payment"
	OpOrderTransition     = "order.transition"
	OpOrderItemBulkInsert = "orderitem.bulk_insert"
	OpTaxSnapshotUpsert   = "taxsnapshot.upsert"
	OpWebhookRecord       = "webhookevent.record"
	OpOutboxInsert        = "outbox.insert"
	OpCatalogLookup       = "catalog.lookup"
	OpBegin               = "uow.begin"
	OpCommit              = "uow.commit"
)

type eventKey struct {
	provider string
	eventID  string
}

type state struct {
	orders    map[uuid.UUID]order.Order
	items     []orderitem.OrderItem
	snapshots map[uuid.UUID]taxsnapshot.TaxSnapshot
	events    map[eventKey]webhookevent.WebhookEvent
	outbox    []outbox.OutboxMessage
	outboxSeq int64
}

func newState() state {
	return state{
		orders:    map[uuid.UUID]order.Order{},
		snapshots: map[uuid.UUID]taxsnapshot.TaxSnapshot{},
		events:    map[eventKey]webhookevent.WebhookEvent{},
	}
}

func (s state) clone() state {
	c := state{
		orders:    make(map[uuid.UUID]order.Order, len(s.orders)),
		items:     slices.Clone(s.items),
		snapshots: make(map[uuid.UUID]taxsnapshot.TaxSnapshot, len(s.snapshots)),
		events:    make(map[eventKey]webhookevent.WebhookEvent, len(s.events)),
		outbox:    slices.Clone(s.outbox),
		outboxSeq: s.outboxSeq,
	}
	for k, v := range s.orders {
		c.orders[k] = v
	}
	for k, v := range s.snapshots {
		c.snapshots[k] = v
	}
	for k, v := range s.events {
		c.events[k] = v
	}

	return c
}

// Store holds all tables.
type Store struct {
	mu   sync.Mutex
	data state

	variantsMu sync.Mutex
	variants   map[uuid.UUID]catalog.Variant

	failMu   sync.Mutex
	failures map[string][]error
}

// New returns an empty store.
func New() *Store {
	return &Store{
		data:     newState(),
		variants: map[uuid.UUID]catalog.Variant{},
		failures: map[string][]error{},
	}
}

// Factory returns a iuow.Factory over the store.
func (s *Store) Factory() iuow.Factory {
	return func() iuow.UnitOfWork {
		return s.NewUnitOfWork()
	}
}

// NewUnitOfWork returns a unit of work over the store.
func (s *Store) NewUnitOfWork() *UnitOfWork {
	return &UnitOfWork{store: s}
}

// FailOnce makes the next call of op return err. Calls queue up.
func (s *Store) FailOnce(op string, err error) {
	s.failMu.Lock()
	defer s.failMu.Unlock()

	s.failures[op] = append(s.failures[op], err)
}

func (s *Store) injected(op string) error {
	s.failMu.Lock()
	defer s.failMu.Unlock()

	queue := s.failures[op]
	if len(queue) == 0 {
		return nil
	}
	s.failures[op] = queue[1:]

	return queue[0]
}

// AddVariant seeds the catalog.
func (s *Store) AddVariant(v catalog.Variant) {
	s.variantsMu.Lock()
	defer s.variantsMu.Unlock()

	s.variants[v.VariantID] = v
}

// PutOrder seeds or overwrites an order row.
func (s *Store) PutOrder(o order.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o.OrderItems = nil
	s.data.orders[o.ID] = o
}

// PutOutbox seeds an outbox row and returns its id.
func (s *Store) PutOutbox(msg outbox.OutboxMessage) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data.outboxSeq++
	msg.ID = s.data.outboxSeq
	s.data.outbox = append(s.data.outbox, msg)

	return msg.ID
}

// Order returns a stored order without items.
func (s *Store) Order(id uuid.UUID) (order.Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.data.orders[id]

	return o, ok
}

// Orders returns all stored orders, oldest first.
func (s *Store) Orders() []order.Order {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]order.Order, 0, len(s.data.orders))
	for _, o := range s.data.orders {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })

	return out
}

// Items returns the items of an order in insertion order.
func (s *Store) Items(orderID uuid.UUID) []orderitem.OrderItem {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []orderitem.OrderItem
	for _, it := range s.data.items {
		if it.OrderID == orderID {
			out = append(out, it)
		}
	}

	return out
}

// Snapshots returns the number of stored tax snapshots.
func (s *Store) Snapshots() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.data.snapshots)
}

// Snapshot returns the tax snapshot of an order.
func (s *Store) Snapshot(orderID uuid.UUID) (taxsnapshot.TaxSnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.data.snapshots[orderID]

	return t, ok
}

// Event returns a ledger row.
func (s *Store) Event(provider, eventID string) (webhookevent.WebhookEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.data.events[eventKey{provider, eventID}]

	return e, ok
}

// Outbox returns the outbox rows in insertion order.
func (s *Store) Outbox() []outbox.OutboxMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.data.outbox)
}
