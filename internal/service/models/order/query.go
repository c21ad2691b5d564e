package order

import (
	"time"

	"github.com/google/uuid"
)

// QueryOrdersModel represents filter parameters for querying orders
type QueryOrdersModel struct {
	Ids      []uuid.UUID `json:"ids,omitempty"`
	Statuses []Status    `json:"statuses,omitempty"`
	Email    string      `json:"email,omitempty"`
	Limit    int         `json:"limit,omitempty"`
	Offset   int         `json:"offset,omitempty"`
}

// StaleQuery selects pending orders that never received a checkout session.
type StaleQuery struct {
	CreatedBefore time.Time
	Limit         int
}
