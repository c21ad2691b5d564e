package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Routing keys of order lifecycle messages.
const (
	RoutingKeyOrderPaid      = "order.paid"
	RoutingKeyOrderCancelled = "order.cancelled"
	RoutingKeyOrderRefunded  = "order.refunded"
)

var statusRoutingKeys = map[string]string{
	"paid":      RoutingKeyOrderPaid,
	"cancelled": RoutingKeyOrderCancelled,
	"refunded":  RoutingKeyOrderRefunded,
}

// RoutingKeyForStatus returns the routing key announcing that an order entered status.
func RoutingKeyForStatus(status string) string {
	if key, ok := statusRoutingKeys[status]; ok {
		return key
	}

	return "order." + status
}

// OutboxMessage is a message written in the same transaction as the change it announces
// and relayed to RabbitMQ by the outbox worker.
type OutboxMessage struct {
	ID           int64
	ExchangeName string
	RoutingKey   string
	Payload      []byte
	ContentType  string
	RetryCount   int
	MaxRetries   int
	LastError    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	NextRetryAt  time.Time
}

// Retry records a failed delivery and when the relay tries again.
type Retry struct {
	RetryCount  int
	LastError   string
	NextRetryAt time.Time
	UpdatedAt   time.Time
}

// OrderStatusChanged is the payload of order lifecycle messages.
type OrderStatusChanged struct {
	OrderID    uuid.UUID `json:"orderId"`
	Status     string    `json:"status"`
	OccurredAt time.Time `json:"occurredAt"`
	EventID    string    `json:"eventId,omitempty"`
}

// DefaultMaxRetries bounds relay attempts for a single message.
const DefaultMaxRetries = 10

// NewOrderStatusMessage builds the outbox message announcing that an order moved to status.
func NewOrderStatusMessage(
	exchange string,
	routingKey string,
	payload OrderStatusChanged,
) (OutboxMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return OutboxMessage{}, err
	}

	return OutboxMessage{
		ExchangeName: exchange,
		RoutingKey:   routingKey,
		Payload:      body,
		ContentType:  "application/json",
		MaxRetries:   DefaultMaxRetries,
		CreatedAt:    payload.OccurredAt,
		UpdatedAt:    payload.OccurredAt,
		NextRetryAt:  payload.OccurredAt,
	}, nil
}
