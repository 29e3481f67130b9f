package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/render"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIErrorRender(t *testing.T) {
	apiErr := NewWithDetails(http.StatusConflict, "RUN_IN_FLIGHT", "busy", "details here")

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	require.NoError(t, render.Render(w, r, apiErr))

	assert.Equal(t, http.StatusConflict, w.Code)

	var got APIError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "RUN_IN_FLIGHT", got.ErrorCode)
	assert.Equal(t, "busy", got.Message)
	assert.Equal(t, "details here", got.Details)
}

func TestAPIErrorImplementsError(t *testing.T) {
	var err error = New(http.StatusNotFound, "NOT_FOUND", "gone")
	assert.Equal(t, "gone", err.Error())
}

func TestPredefinedErrors(t *testing.T) {
	assert.Equal(t, http.StatusConflict, ErrRunInFlight.StatusCode)
	assert.Equal(t, http.StatusNotFound, ErrNoRun.StatusCode)
	assert.Equal(t, http.StatusBadRequest, ErrInvalidRequest.StatusCode)
	assert.Equal(t, http.StatusInternalServerError, ErrInternalServer.StatusCode)
}

func TestHelpers(t *testing.T) {
	e := ErrValidation("source_type", "required")
	assert.Equal(t, http.StatusBadRequest, e.StatusCode)
	fe, ok := e.Details.(FieldError)
	require.True(t, ok)
	assert.Equal(t, "source_type", fe.Field)

	e = SourceLoadError(fmt.Errorf("no such file"))
	assert.Equal(t, http.StatusUnprocessableEntity, e.StatusCode)
	assert.Equal(t, "no such file", e.Details)

	e = ExportError(fmt.Errorf("disk full"))
	assert.Equal(t, "EXPORT_FAILED", e.ErrorCode)
}
