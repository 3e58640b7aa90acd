package responses

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/eventpass-backend/pkg/errors"
	"github.com/angelmondragon/eventpass-backend/pkg/logger"
)

func decodeError(t *testing.T, w *httptest.ResponseRecorder) APIError {
	t.Helper()
	var body ErrorEnvelope
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return body.Error
}

func TestWriteSuccessStatus(t *testing.T) {
	w := httptest.NewRecorder()
	WriteSuccessStatus(w, http.StatusCreated, map[string]string{"checkout_id": "chk-1"})

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	var body SuccessEnvelope
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "chk-1", body.Data.(map[string]any)["checkout_id"])
}

func TestWriteErrorSoldOutKeepsMessageAndDetails(t *testing.T) {
	w := httptest.NewRecorder()
	err := pkgerrors.New(pkgerrors.CodeSoldOut, "ticket General Admission is sold out").
		WithDetails(map[string]any{"item_type": "ticket", "item_name": "General Admission"})
	WriteError(context.Background(), nil, w, err)

	assert.Equal(t, http.StatusConflict, w.Code)
	apiErr := decodeError(t, w)
	assert.Equal(t, string(pkgerrors.CodeSoldOut), apiErr.Code)
	assert.Equal(t, "ticket General Admission is sold out", apiErr.Message)
	assert.False(t, apiErr.Retryable)
	assert.NotNil(t, apiErr.Details)
}

func TestWriteErrorHidesInternalCause(t *testing.T) {
	buf := &bytes.Buffer{}
	logg := logger.New(logger.Options{ServiceName: "test", Output: buf})

	w := httptest.NewRecorder()
	WriteError(context.Background(), logg, w, errors.New("pq: connection refused"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "connection refused")
	apiErr := decodeError(t, w)
	assert.Equal(t, "internal server error", apiErr.Message)
	assert.True(t, apiErr.Retryable)
	assert.Contains(t, buf.String(), "request.error")
}

func TestWriteErrorDependencyIsRetryable(t *testing.T) {
	buf := &bytes.Buffer{}
	logg := logger.New(logger.Options{ServiceName: "test", Output: buf})

	w := httptest.NewRecorder()
	WriteError(context.Background(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, errors.New("timeout"), "create payment intent"))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	apiErr := decodeError(t, w)
	assert.Equal(t, "dependency unavailable", apiErr.Message)
	assert.True(t, apiErr.Retryable)
}

func TestWriteErrorSignatureHasNoDetails(t *testing.T) {
	buf := &bytes.Buffer{}
	logg := logger.New(logger.Options{ServiceName: "test", Output: buf})

	w := httptest.NewRecorder()
	err := pkgerrors.New(pkgerrors.CodeInvalidSignature, "signature mismatch").
		WithDetails(map[string]any{"header": "t=1,v1=abc"})
	WriteError(context.Background(), logg, w, err)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	apiErr := decodeError(t, w)
	assert.Equal(t, "invalid signature", apiErr.Message)
	assert.Nil(t, apiErr.Details)
	assert.Contains(t, buf.String(), "request.rejected")
}
