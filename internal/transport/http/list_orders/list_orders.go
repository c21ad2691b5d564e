package listorders

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/corray333/backend-labs/checkout/internal/service/models/order"
	"github.com/gorilla/schema"
)

type service interface {
	ListOrders(ctx context.Context, filter order.QueryOrdersModel) ([]order.Order, error)
}

type queryOrdersRequest struct {
	Statuses []string `schema:"status"`
	Email    string   `schema:"email"`
	Limit    int      `schema:"limit"`
	Offset   int      `schema:"offset"`
}

// ToModel converts the query to order.QueryOrdersModel. ok is false when a status is unknown.
func (q *queryOrdersRequest) ToModel() (model order.QueryOrdersModel, ok bool) {
	model = order.QueryOrdersModel{
		Email:  q.Email,
		Limit:  q.Limit,
		Offset: q.Offset,
	}
	for _, s := range q.Statuses {
		st, valid := order.ParseStatus(s)
		if !valid {
			return order.QueryOrdersModel{}, false
		}
		model.Statuses = append(model.Statuses, st)
	}

	return model, true
}

var decoder = func() *schema.Decoder {
	d := schema.NewDecoder()
	d.IgnoreUnknownKeys(true)

	return d
}()

// ListOrders lists orders matching the query string filters.
func ListOrders(w http.ResponseWriter, r *http.Request, service service) {
	query := &queryOrdersRequest{}
	err := decoder.Decode(query, r.URL.Query())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		slog.Error("Error decoding request", "error", err)

		return
	}

	filter, ok := query.ToModel()
	if !ok {
		http.Error(w, "invalid status", http.StatusBadRequest)

		return
	}

	orders, err := service.ListOrders(r.Context(), filter)
	if err != nil {
		http.Error(w, "failed to list orders", http.StatusInternalServerError)
		slog.Error("Error listing orders", "error", err)

		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(orders); err != nil {
		slog.Error("Error sending response", "error", err)
	}
}
