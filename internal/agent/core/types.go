package core

import (
	"context"
	"time"

	"github.com/pamudu-ranasinghe/virtualme/tools"
)

// Conversation roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ConversationTurn is one exchange in a session's append-only history.
type ConversationTurn struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ToolCall is a single planned tool invocation. Produced only by the planner
// and immutable afterwards.
type ToolCall struct {
	Tool string            `json:"tool"`
	Args map[string]string `json:"args"`
}

// ToolResult is the outcome of one ToolCall. Err empty means success. Results
// are never discarded; failures reach the synthesizer as negative signal.
type ToolResult struct {
	Tool    string            `json:"tool"`
	Args    map[string]string `json:"args"`
	Content string            `json:"content,omitempty"`
	Err     string            `json:"error,omitempty"`
}

// Success reports whether the invocation produced usable content.
func (r ToolResult) Success() bool { return r.Err == "" }

// SourceType identifies where cited content came from.
type SourceType string

const (
	SourceBrain   SourceType = "brain"
	SourceGitHub  SourceType = "github"
	SourceMedium  SourceType = "medium"
	SourceYouTube SourceType = "youtube"
)

// Citation points at a source the synthesizer actually drew on.
type Citation struct {
	SourceType SourceType `json:"source_type"`
	SourceName string     `json:"source_name"`
	URL        string     `json:"url,omitempty"`
}

// toolSource maps a tool name to the source type its content is cited under.
// Action tools (email) produce no citable source.
func toolSource(tool string) SourceType {
	switch tool {
	case tools.BrainSearch:
		return SourceBrain
	case tools.GitHubSearch, tools.GitHubRead:
		return SourceGitHub
	case tools.MediumList, tools.MediumRead:
		return SourceMedium
	case tools.YouTubeSearch, tools.YouTubeTranscript:
		return SourceYouTube
	default:
		return ""
	}
}

// Event kinds on the turn stream.
const (
	EventStatus = "status"
	EventResult = "result"
)

// Pipeline node names carried on status events.
const (
	NodePlanner     = "planner"
	NodeExecutor    = "executor"
	NodeSynthesizer = "synthesizer"
)

// Event is one record on a turn's ordered event stream: exactly one status
// per stage, then exactly one result, nothing after it.
type Event struct {
	Type               string     `json:"type"`
	Node               string     `json:"node,omitempty"`
	Message            string     `json:"message,omitempty"`
	Answer             string     `json:"answer,omitempty"`
	Citations          []Citation `json:"citations,omitempty"`
	SuggestedQuestions []string   `json:"suggested_questions,omitempty"`
}

// EventSink receives turn progress events. Emit must never block the
// pipeline; slow or gone consumers lose events, not turns.
type EventSink interface {
	Emit(ev Event)
}

// LLMProvider is the reasoning backend shared by planner and synthesizer.
type LLMProvider interface {
	Generate(ctx context.Context, system, user string) (string, error)
	GenerateJSON(ctx context.Context, system, user string) (string, error)
}

// TurnOutput is everything that outlives a turn: the answer, its citations,
// follow-up suggestions, and the two new history entries the caller persists.
type TurnOutput struct {
	Answer             string
	Citations          []Citation
	SuggestedQuestions []string
	UserTurn           ConversationTurn
	AssistantTurn      ConversationTurn
}
