package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadiness(t *testing.T) {
	h := New("development")
	r := chi.NewRouter()
	h.Register(r)

	h.RegisterCheck("postgres", func(context.Context) error { return nil })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	h.RegisterCheck("redis", func(context.Context) error { return errors.New("dial tcp 10.0.0.5:6379: refused") })
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var body ReadinessResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "down", body.Checks["redis"])
	assert.Equal(t, "up", body.Checks["postgres"])
}

func TestStatusAndLiveness(t *testing.T) {
	h := New("degraded")
	r := chi.NewRouter()
	h.Register(r)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	var status StatusResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&status))
	assert.Equal(t, "degraded", status.Mode)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
