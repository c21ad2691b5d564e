package createcheckout

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/corray333/backend-labs/checkout/internal/service/apperr"
	"github.com/corray333/backend-labs/checkout/internal/service/services/checkoutsvc"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// service is an interface for the service layer.
type service interface {
	CreateCheckout(ctx context.Context, req checkoutsvc.Request) (checkoutsvc.Result, error)
}

// itemInCheckoutRequest represents a cart line in a checkout request.
type itemInCheckoutRequest struct {
	VariantID string `json:"variantId" validate:"required,uuid_rfc4122"`
	Quantity  int    `json:"quantity"  validate:"gte=1"`
}

// checkoutRequest represents a checkout request.
type checkoutRequest struct {
	Items []itemInCheckoutRequest `json:"items"           validate:"required,min=1,dive"`
	Email *string                 `json:"email,omitempty" validate:"omitempty,email"`
}

var checkoutRequestReasons = map[string]string{
	"Items":     "at least one item is required",
	"VariantID": "invalid variantId",
	"Quantity":  "quantity must be a positive integer",
	"Email":     "invalid email",
}

// Validate validates the checkout request. A blank email counts as no email.
func (r *checkoutRequest) Validate() error {
	if r.Email != nil {
		email := strings.TrimSpace(*r.Email)
		r.Email = &email
		if email == "" {
			r.Email = nil
		}
	}

	return apperr.FromValidator(validator.New().Struct(r), checkoutRequestReasons)
}

// toModel converts checkoutRequest to checkoutsvc.Request.
func (r *checkoutRequest) toModel() (checkoutsvc.Request, error) {
	lines := make([]checkoutsvc.LineRequest, len(r.Items))
	for i, item := range r.Items {
		id, err := uuid.Parse(item.VariantID)
		if err != nil {
			return checkoutsvc.Request{}, apperr.Validation("invalid variantId")
		}
		lines[i] = checkoutsvc.LineRequest{VariantID: id, Quantity: item.Quantity}
	}

	return checkoutsvc.Request{Items: lines, Email: r.Email}, nil
}

type checkoutResponse struct {
	OrderID     uuid.UUID `json:"orderId"`
	RedirectURL string    `json:"redirectUrl"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// CreateCheckout handles the checkout request.
func CreateCheckout(w http.ResponseWriter, r *http.Request, service service) {
	req := checkoutRequest{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		slog.WarnContext(r.Context(), "Error decoding checkout request body", "error", err)

		return
	}

	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		slog.WarnContext(r.Context(), "Error validating checkout request", "error", err)

		return
	}

	model, err := req.toModel()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})

		return
	}

	result, err := service.CreateCheckout(r.Context(), model)
	if err != nil {
		var validationErr *apperr.ValidationError
		if errors.As(err, &validationErr) {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: validationErr.Reason})

			return
		}

		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to create checkout"})
		slog.ErrorContext(r.Context(), "Error creating checkout", "error", err)

		return
	}

	writeJSON(w, http.StatusOK, checkoutResponse{OrderID: result.OrderID, RedirectURL: result.RedirectURL})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("Error sending checkout response", "error", err)
	}
}
