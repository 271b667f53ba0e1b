package server

import (
	core "github.com/pamudu-ranasinghe/virtualme/internal/agent/core"
	"github.com/pamudu-ranasinghe/virtualme/internal/store"
)

// HTTPError is the unified error body returned by the API.
type HTTPError struct {
	Error string `json:"error"`
}

// AuthLoginRequest carries the admin password.
type AuthLoginRequest struct {
	Password string `json:"password"`
}

// TokenResponse returns the signed JWT for Bearer flows.
type TokenResponse struct {
	Token string `json:"token"`
}

// ChatRequest is one user message aimed at a session. An empty session_id
// creates a fresh session for the turn.
type ChatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// ChatResponse is the completed turn. TurnCount is the session's total after
// this turn was persisted.
type ChatResponse struct {
	SessionID          string          `json:"session_id"`
	Answer             string          `json:"answer"`
	Citations          []core.Citation `json:"citations"`
	SuggestedQuestions []string        `json:"suggested_questions,omitempty"`
	TurnCount          int             `json:"turn_count"`
}

// SessionMessagesResponse is a session's history in chronological order.
type SessionMessagesResponse struct {
	Session  store.Session           `json:"session"`
	Messages []core.ConversationTurn `json:"messages"`
}
