package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/konecto/actuator-agent/internal/agent"
	"github.com/konecto/actuator-agent/internal/log"
)

// MaxMessageLength bounds the message body. Catalog questions are short;
// anything longer is a client bug or abuse.
const MaxMessageLength = 4000

// maxBodyBytes bounds the request body read.
const maxBodyBytes = 64 * 1024

// TurnHandler executes one conversational turn. *agent.Agent implements it.
type TurnHandler interface {
	HandleMessage(ctx context.Context, conversationID uuid.UUID, message string) (*agent.Result, error)
}

// ConversationHandler handles the conversation turn endpoint.
type ConversationHandler struct {
	agent  TurnHandler
	logger log.Logger
}

// NewConversationHandler creates a new conversation handler.
func NewConversationHandler(a TurnHandler, logger log.Logger) *ConversationHandler {
	return &ConversationHandler{agent: a, logger: logger}
}

// RegisterRoutes registers conversation routes on the given mux.
func (h *ConversationHandler) RegisterRoutes(mux *http.ServeMux) {
	if h.agent == nil {
		h.logger.Warn("conversation handler: agent is nil, endpoint not registered")
		return
	}
	mux.HandleFunc("POST /api/conversation", h.turn)
}

// TurnRequest is the request body for one conversational turn.
// ConversationID is optional: empty starts a new conversation.
type TurnRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversationId,omitempty"`
}

// TurnResponse is the reply for one conversational turn.
type TurnResponse struct {
	Response       string `json:"response"`
	ConversationID string `json:"conversationId"`
	Route          string `json:"route"`
	MatchedCount   int    `json:"matchedCount"`
}

// turn handles POST /api/conversation.
//
// A turn that finds nothing in the catalog is still a 200: "no matches"
// is an answer. 4xx/5xx are reserved for requests the agent could not
// process at all.
func (h *ConversationHandler) turn(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req TurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "invalid_request", "invalid JSON request body")
		return
	}
	if len(req.Message) > MaxMessageLength {
		writeError(w, h.logger, http.StatusBadRequest, "message_too_long", "message exceeds maximum length")
		return
	}

	conversationID := uuid.Nil
	if req.ConversationID != "" {
		id, err := uuid.Parse(req.ConversationID)
		if err != nil {
			writeError(w, h.logger, http.StatusBadRequest, "invalid_conversation_id", "conversationId must be a UUID")
			return
		}
		conversationID = id
	}

	result, err := h.agent.HandleMessage(r.Context(), conversationID, req.Message)
	if err != nil {
		h.writeTurnError(w, r, err)
		return
	}

	matched := 0
	if result.Invocation != nil {
		matched = result.Invocation.MatchedCount
	}
	writeJSON(w, h.logger, http.StatusOK, TurnResponse{
		Response:       result.Response,
		ConversationID: result.ConversationID.String(),
		Route:          string(result.Route),
		MatchedCount:   matched,
	})
}

// writeTurnError maps agent errors to HTTP status codes. Internal detail
// stays in the log; the client gets a stable code and a safe message.
func (h *ConversationHandler) writeTurnError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, agent.ErrInvalidInput):
		writeError(w, h.logger, http.StatusBadRequest, "invalid_input", "message must not be empty")
	case errors.Is(err, agent.ErrCompositionTimeout):
		h.logger.Error("turn failed", "error", err, "path", r.URL.Path)
		writeError(w, h.logger, http.StatusServiceUnavailable, "composition_timeout",
			"the catalog was searched but the answer could not be composed in time, please retry")
	case errors.Is(err, agent.ErrToolUnavailable):
		h.logger.Error("turn failed", "error", err, "path", r.URL.Path)
		writeError(w, h.logger, http.StatusServiceUnavailable, "tool_unavailable",
			"catalog retrieval is temporarily unavailable, please retry")
	case errors.Is(err, context.Canceled):
		// Client went away; nothing useful to write.
	default:
		h.logger.Error("turn failed", "error", err, "path", r.URL.Path)
		writeError(w, h.logger, http.StatusInternalServerError, "internal", "internal server error")
	}
}
