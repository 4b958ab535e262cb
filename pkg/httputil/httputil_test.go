package httputil

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/membership/pkg/contextkeys"
	"github.com/platinummonkey/membership/pkg/models"
	"github.com/platinummonkey/membership/pkg/observability"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"invalid argument", fmt.Errorf("%w: bad email", models.ErrInvalidArgument), http.StatusBadRequest},
		{"forbidden", models.ErrForbidden, http.StatusForbidden},
		{"limit", &models.LimitExceededError{Resource: "users", Current: 5, Limit: 5}, http.StatusUnprocessableEntity},
		{"not found", fmt.Errorf("organization: %w", models.ErrNotFound), http.StatusNotFound},
		{"conflict", models.ErrConflict, http.StatusConflict},
		{"invalid state", models.ErrInvalidState, http.StatusConflict},
		{"expired", models.ErrExpired, http.StatusGone},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusFor(tt.err))
		})
	}
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, fmt.Errorf("invitation: %w", models.ErrExpired))

	assert.Equal(t, http.StatusGone, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var body ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "invitation: expired", body.Error)
}

func TestRequestID(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = contextkeys.RequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "given")
	handler.ServeHTTP(rec, req)
	assert.Equal(t, "given", seen)
	assert.Equal(t, "given", rec.Header().Get(RequestIDHeader))

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Len(t, seen, 36)
	assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))
}

func TestLoggingAndRecovery(t *testing.T) {
	var buf bytes.Buffer
	logger := observability.NewLogger(observability.DebugLevel, &buf)

	mux := http.NewServeMux()
	mux.HandleFunc("/ok", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})
	mux.HandleFunc("/panic", func(w http.ResponseWriter, r *http.Request) {
		panic("kaboom")
	})
	handler := Chain(RequestID, Logging(logger), Recovery(logger))(mux)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ok", nil))
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "internal server error")

	var entries []map[string]interface{}
	dec := json.NewDecoder(&buf)
	for dec.More() {
		var entry map[string]interface{}
		require.NoError(t, dec.Decode(&entry))
		entries = append(entries, entry)
	}
	require.Len(t, entries, 3)

	assert.Equal(t, "HTTP request", entries[0]["msg"])
	assert.Equal(t, "/ok", entries[0]["path"])
	assert.EqualValues(t, http.StatusAccepted, entries[0]["status"])
	assert.NotEmpty(t, entries[0]["request_id"])

	assert.Equal(t, "HTTP handler panicked", entries[1]["msg"])
	assert.Equal(t, "kaboom", entries[1]["panic"])

	assert.Equal(t, "HTTP request failed", entries[2]["msg"])
	assert.EqualValues(t, http.StatusInternalServerError, entries[2]["status"])
}
