package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/konecto/actuator-agent/internal/agent"
	"github.com/konecto/actuator-agent/internal/log"
	"github.com/konecto/actuator-agent/internal/tools"
)

// stubAgent implements TurnHandler with a scripted result or error.
type stubAgent struct {
	result *agent.Result
	err    error

	lastConversationID uuid.UUID
	lastMessage        string
}

func (s *stubAgent) HandleMessage(_ context.Context, conversationID uuid.UUID, message string) (*agent.Result, error) {
	s.lastConversationID = conversationID
	s.lastMessage = message
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func newTestServer(t *testing.T, a TurnHandler) http.Handler {
	t.Helper()
	return NewServer(a, nil, nil, log.NewNop()).Handler()
}

func postTurn(t *testing.T, handler http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/conversation", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func TestConversationTurn(t *testing.T) {
	convID := uuid.New()
	stub := &stubAgent{result: &agent.Result{
		ConversationID: convID,
		Response:       "Part number 763A00-11330C00/A is a quarter-turn actuator.",
		Route:          agent.RoutePartNumber,
		Invocation:     &tools.Invocation{Tool: tools.ToolPartNumberSearch, MatchedCount: 1},
	}}
	handler := newTestServer(t, stub)

	w := postTurn(t, handler, `{"message": "tell me about 763A00-11330C00/A"}`)

	require.Equal(t, http.StatusOK, w.Code)

	var resp TurnResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, convID.String(), resp.ConversationID)
	assert.Equal(t, "part_number", resp.Route)
	assert.Equal(t, 1, resp.MatchedCount)
	assert.Contains(t, resp.Response, "763A00-11330C00/A")

	assert.Equal(t, uuid.Nil, stub.lastConversationID)
	assert.Equal(t, "tell me about 763A00-11330C00/A", stub.lastMessage)
}

func TestConversationTurn_ExistingConversation(t *testing.T) {
	convID := uuid.New()
	stub := &stubAgent{result: &agent.Result{
		ConversationID: convID,
		Response:       "Closest matches:",
		Route:          agent.RouteSemantic,
	}}
	handler := newTestServer(t, stub)

	w := postTurn(t, handler, `{"message": "single phase", "conversationId": "`+convID.String()+`"}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, convID, stub.lastConversationID)

	var resp TurnResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.MatchedCount)
}

func TestConversationTurn_BadRequests(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		agentErr error
		wantCode int
		wantErr  string
	}{
		{
			name:     "malformed JSON",
			body:     `{"message": `,
			wantCode: http.StatusBadRequest,
			wantErr:  "invalid_request",
		},
		{
			name:     "invalid conversation id",
			body:     `{"message": "hello", "conversationId": "not-a-uuid"}`,
			wantCode: http.StatusBadRequest,
			wantErr:  "invalid_conversation_id",
		},
		{
			name:     "message too long",
			body:     `{"message": "` + strings.Repeat("a", MaxMessageLength+1) + `"}`,
			wantCode: http.StatusBadRequest,
			wantErr:  "message_too_long",
		},
		{
			name:     "empty message",
			body:     `{"message": "   "}`,
			agentErr: agent.ErrInvalidInput,
			wantCode: http.StatusBadRequest,
			wantErr:  "invalid_input",
		},
		{
			name:     "retrieval unavailable",
			body:     `{"message": "220V actuator"}`,
			agentErr: agent.ErrToolUnavailable,
			wantCode: http.StatusServiceUnavailable,
			wantErr:  "tool_unavailable",
		},
		{
			name:     "composition timeout",
			body:     `{"message": "220V actuator"}`,
			agentErr: agent.ErrCompositionTimeout,
			wantCode: http.StatusServiceUnavailable,
			wantErr:  "composition_timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := newTestServer(t, &stubAgent{err: tt.agentErr})

			w := postTurn(t, handler, tt.body)

			require.Equal(t, tt.wantCode, w.Code)

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantErr, resp.Error)
		})
	}
}

func TestConversationTurn_ClientDisconnect(t *testing.T) {
	stub := &stubAgent{err: fmt.Errorf("composing answer: %w", context.Canceled)}
	handler := newTestServer(t, stub)

	w := postTurn(t, handler, `{"message": "hello"}`)

	// The client is gone; no error payload is written.
	assert.Zero(t, w.Body.Len())
}

func TestConversationTurn_MethodNotAllowed(t *testing.T) {
	handler := newTestServer(t, &stubAgent{result: &agent.Result{}})

	req := httptest.NewRequest(http.MethodGet, "/api/conversation", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}
