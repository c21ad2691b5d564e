package createcheckout

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/corray333/backend-labs/checkout/internal/service/apperr"
	"github.com/corray333/backend-labs/checkout/internal/service/services/checkoutsvc"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeService struct {
	got    checkoutsvc.Request
	result checkoutsvc.Result
	err    error
}

func (f *fakeService) CreateCheckout(ctx context.Context, req checkoutsvc.Request) (checkoutsvc.Result, error) {
	f.got = req

	return f.result, f.err
}

func serve(svc service, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/checkout", strings.NewReader(body))
	CreateCheckout(rec, req, svc)

	return rec
}

func TestCreateCheckoutSuccess(t *testing.T) {
	orderID := uuid.New()
	variantID := uuid.New()
	svc := &fakeService{result: checkoutsvc.Result{OrderID: orderID, RedirectURL: "https://pay.test/cs_1"}}

	rec := serve(svc, `{"items":[{"variantId":"`+variantID.String()+`","quantity":2}],"email":"a@b.co"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"orderId":"`+orderID.String()+`","redirectUrl":"https://pay.test/cs_1"}`, rec.Body.String())

	require.Len(t, svc.got.Items, 1)
	assert.Equal(t, variantID, svc.got.Items[0].VariantID)
	assert.Equal(t, 2, svc.got.Items[0].Quantity)
	require.NotNil(t, svc.got.Email)
	assert.Equal(t, "a@b.co", *svc.got.Email)
}

func TestCreateCheckoutErrors(t *testing.T) {
	valid := `{"items":[{"variantId":"` + uuid.NewString() + `","quantity":1}]}`

	tests := []struct {
		name     string
		body     string
		err      error
		wantCode int
		wantBody string
	}{
		{"malformed json", `{"items":`, nil, http.StatusBadRequest, `{"error":"invalid request body"}`},
		{"bad variant id", `{"items":[{"variantId":"nope","quantity":1}]}`, nil, http.StatusBadRequest, `{"error":"invalid variantId"}`},
		{"validation from service", valid, apperr.Validation("mixed currencies not supported"), http.StatusBadRequest, `{"error":"mixed currencies not supported"}`},
		{"wrapped validation", valid, fmt.Errorf("checkout: %w", apperr.Validation("invalid email")), http.StatusBadRequest, `{"error":"invalid email"}`},
		{"gateway failure", valid, fmt.Errorf("%w: boom", apperr.ErrExternalGateway), http.StatusInternalServerError, `{"error":"failed to create checkout"}`},
		{"storage failure", valid, apperr.Storage("failed to insert order", errors.New("conn reset")), http.StatusInternalServerError, `{"error":"failed to create checkout"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(&fakeService{err: tt.err}, tt.body)

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.JSONEq(t, tt.wantBody, rec.Body.String())
		})
	}
}

func TestCreateCheckoutRejectsInvalidRequest(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantBody string
	}{
		{"no items", `{"items":[]}`, `{"error":"at least one item is required"}`},
		{"items missing", `{}`, `{"error":"at least one item is required"}`},
		{"missing variant id", `{"items":[{"quantity":1}]}`, `{"error":"invalid variantId"}`},
		{"zero quantity", `{"items":[{"variantId":"` + uuid.NewString() + `","quantity":0}]}`, `{"error":"quantity must be a positive integer"}`},
		{"bad email", `{"items":[{"variantId":"` + uuid.NewString() + `","quantity":1}],"email":"not-an-email"}`, `{"error":"invalid email"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeService{}
			rec := serve(svc, tt.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.JSONEq(t, tt.wantBody, rec.Body.String())
			assert.Nil(t, svc.got.Items, "service must not be called")
		})
	}
}

func TestCreateCheckoutBlankEmailIsDropped(t *testing.T) {
	svc := &fakeService{}

	rec := serve(svc, `{"items":[{"variantId":"`+uuid.NewString()+`","quantity":1}],"email":"   "}`)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, svc.got.Items, 1)
	assert.Nil(t, svc.got.Email)
}
