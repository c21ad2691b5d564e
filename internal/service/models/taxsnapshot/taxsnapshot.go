package taxsnapshot

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// TaxSnapshot keeps the provider's tax computation for an order verbatim, for audits and disputes.
type TaxSnapshot struct {
	ID        uuid.UUID       `json:"id"`
	OrderID   uuid.UUID       `json:"orderId"`
	Provider  string          `json:"provider"`
	Snapshot  json.RawMessage `json:"snapshot"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}
