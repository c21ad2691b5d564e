package stripewebhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/corray333/backend-labs/checkout/internal/service/apperr"
	"github.com/corray333/backend-labs/checkout/internal/service/services/webhooksvc"
)

// SignatureHeader carries the provider's payload signature.
const SignatureHeader = "Stripe-Signature"

const maxBodyBytes = 1 << 20

// service is an interface for the service layer.
type service interface {
	HandleEvent(ctx context.Context, payload []byte, signature string) (webhooksvc.Outcome, error)
}

type ackResponse struct {
	Received bool `json:"received"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// HandleWebhook verifies and processes a provider event delivery. Any non-2xx response
// makes the provider redeliver the event later.
func HandleWebhook(w http.ResponseWriter, r *http.Request, service service) {
	signature := r.Header.Get(SignatureHeader)
	if signature == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing signature"})

		return
	}

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		slog.WarnContext(r.Context(), "Error reading webhook body", "error", err)

		return
	}
	if len(payload) == 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing body"})

		return
	}

	outcome, err := service.HandleEvent(r.Context(), payload, signature)
	switch {
	case err == nil:
		slog.DebugContext(r.Context(), "Webhook delivery handled", "outcome", outcome)
		writeJSON(w, http.StatusOK, ackResponse{Received: true})
	case errors.Is(err, apperr.ErrSignature):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid signature"})
		slog.WarnContext(r.Context(), "Rejected webhook with invalid signature", "error", err)
	case errors.Is(err, apperr.ErrEventMalformed):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed event"})
		slog.WarnContext(r.Context(), "Rejected malformed webhook event", "error", err)
	default:
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "webhook handler failed"})
		slog.ErrorContext(r.Context(), "Error handling webhook", "error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("Error sending webhook response", "error", err)
	}
}
