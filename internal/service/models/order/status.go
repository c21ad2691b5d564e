package order

import "slices"

// Status is the lifecycle state of an order.
type Status string

const (
	StatusDraft          Status = "draft"
	StatusPendingPayment Status = "pending_payment"
	StatusPaid           Status = "paid"
	StatusFulfilled      Status = "fulfilled"
	StatusCancelled      Status = "cancelled"
	StatusRefunded       Status = "refunded"
)

// Trigger is something that can move an order between statuses.
type Trigger string

const (
	TriggerCheckoutStarted  Trigger = "checkout_started"
	TriggerPaymentCompleted Trigger = "payment_completed"
	TriggerSessionExpired   Trigger = "session_expired"
	TriggerRefunded         Trigger = "refunded"
	// TriggerFulfilled is owned by the fulfillment side; nothing in this service fires it.
	TriggerFulfilled Trigger = "fulfilled"
)

var allStatuses = []Status{
	StatusDraft,
	StatusPendingPayment,
	StatusPaid,
	StatusFulfilled,
	StatusCancelled,
	StatusRefunded,
}

type transition struct {
	from []Status
	to   Status
}

// A completed payment overwrites whatever status the order had.
// An expired session only cancels orders that have not been paid.
// A refund wins over everything.
var transitions = map[Trigger]transition{
	TriggerCheckoutStarted: {
		from: []Status{StatusDraft},
		to:   StatusPendingPayment,
	},
	TriggerPaymentCompleted: {
		from: allStatuses,
		to:   StatusPaid,
	},
	TriggerSessionExpired: {
		from: []Status{StatusDraft, StatusPendingPayment},
		to:   StatusCancelled,
	},
	TriggerRefunded: {
		from: allStatuses,
		to:   StatusRefunded,
	},
	TriggerFulfilled: {
		from: []Status{StatusPaid},
		to:   StatusFulfilled,
	},
}

func (s Status) String() string {
	return string(s)
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return slices.Contains(allStatuses, s)
}

// IsTerminal reports whether the order has moved past payment.
func (s Status) IsTerminal() bool {
	return s == StatusRefunded || s == StatusFulfilled
}

// ParseStatus converts s to a Status.
func ParseStatus(s string) (Status, bool) {
	st := Status(s)

	return st, st.Valid()
}

// Sources returns the statuses from which t moves an order.
func Sources(t Trigger) []Status {
	tr, ok := transitions[t]
	if !ok {
		return nil
	}

	return slices.Clone(tr.from)
}

// Target returns the status t moves an order to.
func Target(t Trigger) Status {
	return transitions[t].to
}

// Apply returns the status after t fires on an order in current. changed is
// false when t does not apply, in which case next equals current.
func Apply(current Status, t Trigger) (next Status, changed bool) {
	tr, ok := transitions[t]
	if !ok || !slices.Contains(tr.from, current) {
		return current, false
	}

	return tr.to, tr.to != current
}

// MovableFrom returns the sources of t that end up in a different status, i.e. the
// statuses a conditional update for t has to match.
func MovableFrom(t Trigger) []Status {
	tr, ok := transitions[t]
	if !ok {
		return nil
	}

	out := make([]Status, 0, len(tr.from))
	for _, s := range tr.from {
		if s != tr.to {
			out = append(out, s)
		}
	}

	return out
}
