package webhookevent

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// WebhookEvent is a row of the idempotency ledger, unique on (Provider, EventID).
type WebhookEvent struct {
	ID          uuid.UUID
	Provider    string
	EventID     string
	Type        string
	Payload     json.RawMessage
	ReceivedAt  time.Time
	ProcessedAt *time.Time
	Error       *string
	Attempts    int
}

// Processed reports whether a handler already ran to completion for this event.
func (e WebhookEvent) Processed() bool {
	return e.ProcessedAt != nil
}
