package getorder

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/corray333/backend-labs/checkout/internal/service/apperr"
	"github.com/corray333/backend-labs/checkout/internal/service/models/order"
	"github.com/corray333/backend-labs/checkout/internal/service/models/taxsnapshot"
	"github.com/corray333/backend-labs/checkout/internal/service/services/ordersvc"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type service interface {
	GetOrder(ctx context.Context, id uuid.UUID) (ordersvc.OrderDetails, error)
}

type orderResponse struct {
	order.Order
	TaxSnapshot *taxsnapshot.TaxSnapshot `json:"taxSnapshot,omitempty"`
	PaymentURL  *string                  `json:"paymentUrl,omitempty"`
}

// GetOrder returns one order by the id in the URL path.
func GetOrder(w http.ResponseWriter, r *http.Request, service service) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid order id", http.StatusBadRequest)

		return
	}

	details, err := service.GetOrder(r.Context(), id)
	if errors.Is(err, apperr.ErrOrderNotFound) {
		http.Error(w, "order not found", http.StatusNotFound)

		return
	}
	if err != nil {
		http.Error(w, "failed to get order", http.StatusInternalServerError)
		slog.ErrorContext(r.Context(), "Error getting order", "order_id", id, "error", err)

		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(orderResponse{
		Order:       details.Order,
		TaxSnapshot: details.TaxSnapshot,
		PaymentURL:  details.PaymentURL,
	}); err != nil {
		slog.Error("Error sending response", "error", err)
	}
}
