package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/konecto/actuator-agent/internal/agent"
	"github.com/konecto/actuator-agent/internal/log"
)

func TestServer_HealthEndpoints(t *testing.T) {
	handler := NewServer(nil, nil, nil, log.NewNop()).Handler()

	t.Run("GET /health returns 200", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "ok", w.Body.String())
	})

	t.Run("GET /ready returns 503 when pool is nil", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ready", nil)
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})
}

func TestServer_NoAgent(t *testing.T) {
	handler := NewServer(nil, nil, nil, log.NewNop()).Handler()

	req := httptest.NewRequest(http.MethodPost, "/api/conversation", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	// No route registered when the agent is nil.
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// panicAgent panics on every turn, exercising the recovery middleware.
type panicAgent struct{}

func (panicAgent) HandleMessage(context.Context, uuid.UUID, string) (*agent.Result, error) {
	panic("boom")
}

func TestServer_RecoveryMiddleware(t *testing.T) {
	handler := NewServer(panicAgent{}, nil, nil, log.NewNop()).Handler()

	req := httptest.NewRequest(http.MethodPost, "/api/conversation", strings.NewReader(`{"message": "hi"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	assert.NotPanics(t, func() {
		handler.ServeHTTP(w, req)
	})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
