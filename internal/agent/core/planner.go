package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/pamudu-ranasinghe/virtualme/internal/agent/telemetry"
	"github.com/pamudu-ranasinghe/virtualme/tools"
)

// Planner decides whether a query needs tool augmentation and which tools to
// run. It fails closed: any planning error yields an empty plan so the turn
// still produces a best-effort answer.
type Planner struct {
	provider  LLMProvider
	registry  *tools.Registry
	telemetry *telemetry.Telemetry
	logger    *log.Logger
}

// NewPlanner creates a new planner instance
func NewPlanner(provider LLMProvider, registry *tools.Registry, tel *telemetry.Telemetry) *Planner {
	return &Planner{
		provider:  provider,
		registry:  registry,
		telemetry: tel,
		logger:    log.New(log.Writer(), "[PLANNER] ", log.LstdFlags),
	}
}

// Plan produces an ordered tool-call list for the query. The second return is
// a direct response for turns that need no tools (greetings, refusals); it is
// empty whenever a plan exists.
func (p *Planner) Plan(ctx context.Context, query string, history []ConversationTurn) ([]ToolCall, string) {
	user := query
	if h := formatHistory(history); h != "" {
		user = fmt.Sprintf("CONVERSATION HISTORY:\n%s\n\nCURRENT QUERY: %s", h, query)
	}

	response, err := p.provider.GenerateJSON(ctx, plannerSystemPrompt, user)
	if err != nil {
		p.logger.Printf("planning call failed, continuing without tools: %v", err)
		p.telemetry.StageFailure(NodePlanner)
		return nil, ""
	}

	plan, direct, err := parsePlanResponse(response)
	if err != nil {
		p.logger.Printf("unparseable plan, continuing without tools: %v", err)
		p.telemetry.StageFailure(NodePlanner)
		return nil, ""
	}

	for _, call := range plan {
		if _, ok := p.registry.Lookup(call.Tool); !ok {
			// kept in the plan on purpose: the executor records an explicit
			// failure result for it
			p.logger.Printf("plan references unknown tool %q", call.Tool)
		}
	}

	p.logger.Printf("planned %d tool calls", len(plan))
	return plan, direct
}

// parsePlanResponse extracts the plan JSON from an LLM response.
func parsePlanResponse(response string) ([]ToolCall, string, error) {
	jsonStr := extractJSON(response)
	if jsonStr == "" {
		return nil, "", fmt.Errorf("no JSON found in response")
	}

	var raw struct {
		NeedTools bool `json:"need_tools"`
		ToolCalls []struct {
			Tool string            `json:"tool"`
			Args map[string]string `json:"args"`
		} `json:"tool_calls"`
		Response string `json:"response"`
	}
	if err := json.Unmarshal([]byte(jsonStr), &raw); err != nil {
		return nil, "", fmt.Errorf("failed to parse plan JSON: %w", err)
	}

	if !raw.NeedTools {
		return nil, raw.Response, nil
	}

	plan := make([]ToolCall, 0, len(raw.ToolCalls))
	for _, tc := range raw.ToolCalls {
		if tc.Tool == "" {
			continue
		}
		args := tc.Args
		if args == nil {
			args = map[string]string{}
		}
		plan = append(plan, ToolCall{Tool: tc.Tool, Args: args})
	}
	return plan, "", nil
}

// extractJSON pulls the first balanced JSON object out of a response that may
// carry prose around it.
func extractJSON(response string) string {
	start := -1
	depth := 0
	for i, ch := range response {
		if ch == '{' {
			if depth == 0 {
				start = i
			}
			depth++
		} else if ch == '}' {
			if depth > 0 {
				depth--
			}
			if depth == 0 && start != -1 {
				return response[start : i+1]
			}
		}
	}
	return ""
}
