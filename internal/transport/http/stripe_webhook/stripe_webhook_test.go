package stripewebhook

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/corray333/backend-labs/checkout/internal/service/apperr"
	"github.com/corray333/backend-labs/checkout/internal/service/services/webhooksvc"
	"github.com/stretchr/testify/assert"
)

type fakeService struct {
	calls     int
	payload   string
	signature string
	outcome   webhooksvc.Outcome
	err       error
}

func (f *fakeService) HandleEvent(ctx context.Context, payload []byte, signature string) (webhooksvc.Outcome, error) {
	f.calls++
	f.payload = string(payload)
	f.signature = signature

	return f.outcome, f.err
}

func deliver(svc service, body, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/stripe", strings.NewReader(body))
	if signature != "" {
		req.Header.Set(SignatureHeader, signature)
	}
	rec := httptest.NewRecorder()
	HandleWebhook(rec, req, svc)

	return rec
}

func TestHandleWebhookAcknowledges(t *testing.T) {
	for _, outcome := range []webhooksvc.Outcome{
		webhooksvc.OutcomeProcessed,
		webhooksvc.OutcomeDuplicate,
		webhooksvc.OutcomeIgnored,
	} {
		svc := &fakeService{outcome: outcome}

		rec := deliver(svc, `{"id":"evt_1"}`, "t=1,v1=abc")

		assert.Equal(t, http.StatusOK, rec.Code, outcome)
		assert.JSONEq(t, `{"received":true}`, rec.Body.String())
		assert.Equal(t, `{"id":"evt_1"}`, svc.payload)
		assert.Equal(t, "t=1,v1=abc", svc.signature)
	}
}

func TestHandleWebhookRejectsIncompleteRequests(t *testing.T) {
	svc := &fakeService{}

	rec := deliver(svc, `{"id":"evt_1"}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"missing signature"}`, rec.Body.String())

	rec = deliver(svc, "", "t=1,v1=abc")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"missing body"}`, rec.Body.String())

	assert.Zero(t, svc.calls)
}

func TestHandleWebhookMapsErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantBody string
	}{
		{"bad signature", fmt.Errorf("%w: %w", apperr.ErrSignature, errors.New("no valid signature")), http.StatusBadRequest, `{"error":"invalid signature"}`},
		{"malformed", apperr.Malformed("missing order_id"), http.StatusBadRequest, `{"error":"malformed event"}`},
		{"storage", apperr.Storage("failed to apply payment", errors.New("deadlock")), http.StatusInternalServerError, `{"error":"webhook handler failed"}`},
		{"order missing", fmt.Errorf("failed to apply payment: %w", apperr.ErrOrderNotFound), http.StatusInternalServerError, `{"error":"webhook handler failed"}`},
		{"secret missing", webhooksvc.ErrSecretNotConfigured, http.StatusInternalServerError, `{"error":"webhook handler failed"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := deliver(&fakeService{err: tt.err}, `{"id":"evt_1"}`, "t=1,v1=abc")

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.JSONEq(t, tt.wantBody, rec.Body.String())
		})
	}
}
