package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/pamudu-ranasinghe/virtualme/internal/agent/telemetry"
)

// fallbackAnswer is returned when the final generation fails. The pipeline's
// contract is a non-empty answer on every turn, degraded beats absent.
const fallbackAnswer = "I ran into a problem while putting your answer together. Please try again in a moment."

// Synthesizer turns retrieved context into the final answer. With no results
// it takes a cheap plain-generation fast path; with results it makes a single
// structured generation producing answer and citations together, so the two
// stay mutually consistent.
type Synthesizer struct {
	provider  LLMProvider
	telemetry *telemetry.Telemetry
	logger    *log.Logger
}

// NewSynthesizer creates a new synthesizer instance
func NewSynthesizer(provider LLMProvider, tel *telemetry.Telemetry) *Synthesizer {
	return &Synthesizer{
		provider:  provider,
		telemetry: tel,
		logger:    log.New(log.Writer(), "[SYNTH] ", log.LstdFlags),
	}
}

// Synthesize produces the final answer, its citations, and follow-up
// suggestions. The fast path skips suggestions along with citations.
func (s *Synthesizer) Synthesize(ctx context.Context, query string, history []ConversationTurn, results []ToolResult) (string, []Citation, []string) {
	if len(results) == 0 {
		answer, citations := s.fastPath(ctx, query, history)
		return answer, citations, nil
	}
	return s.groundedPath(ctx, query, history, results)
}

func (s *Synthesizer) fastPath(ctx context.Context, query string, history []ConversationTurn) (string, []Citation) {
	var b strings.Builder
	fmt.Fprintf(&b, "User Query: %s\n\n", query)
	if h := formatHistory(history); h != "" {
		fmt.Fprintf(&b, "--- CONVERSATION HISTORY ---\n%s\n\n", h)
	}
	b.WriteString("--- RETRIEVED CONTEXT ---\nNo new search results available.")

	answer, err := s.provider.Generate(ctx, synthesizerSystemPrompt, b.String())
	if err != nil {
		s.logger.Printf("fast-path generation failed: %v", err)
		s.telemetry.StageFailure(NodeSynthesizer)
		return fallbackAnswer, nil
	}
	return answer, nil
}

func (s *Synthesizer) groundedPath(ctx context.Context, query string, history []ConversationTurn, results []ToolResult) (string, []Citation, []string) {
	var ctxBlock strings.Builder
	for _, r := range results {
		if r.Success() {
			ctxBlock.WriteString(r.Content)
			ctxBlock.WriteString("\n\n")
		} else {
			// failures stay visible as negative signal so the model can say
			// a source was unreachable instead of guessing
			fmt.Fprintf(&ctxBlock, "[tool %s failed: %s]\n\n", r.Tool, r.Err)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "User Query: %s\n\n", query)
	if h := formatHistory(history); h != "" {
		fmt.Fprintf(&b, "--- CONVERSATION HISTORY ---\n%s\n\n", h)
	}
	fmt.Fprintf(&b, "--- RETRIEVED CONTEXT ---\n%s", strings.TrimSpace(ctxBlock.String()))

	response, err := s.provider.GenerateJSON(ctx, synthesizerSystemPrompt+synthesizerJSONInstruction, b.String())
	if err != nil {
		s.logger.Printf("grounded generation failed: %v", err)
		s.telemetry.StageFailure(NodeSynthesizer)
		return fallbackAnswer, nil, nil
	}

	answer, citations, suggestions, err := parseSynthesisResponse(response)
	if err != nil {
		s.logger.Printf("unparseable synthesis response: %v", err)
		s.telemetry.StageFailure(NodeSynthesizer)
		return fallbackAnswer, nil, nil
	}

	citations = filterCitations(citations, results)
	suggestions = normalizeSuggestions(suggestions)
	s.logger.Printf("answer composed with %d citations, %d suggestions", len(citations), len(suggestions))
	return answer, citations, suggestions
}

// parseSynthesisResponse extracts the structured answer from an LLM response.
func parseSynthesisResponse(response string) (string, []Citation, []string, error) {
	jsonStr := extractJSON(response)
	if jsonStr == "" {
		return "", nil, nil, fmt.Errorf("no JSON found in response")
	}
	var raw struct {
		Answer             string     `json:"answer"`
		Citations          []Citation `json:"citations"`
		SuggestedQuestions []string   `json:"suggested_questions"`
	}
	if err := json.Unmarshal([]byte(jsonStr), &raw); err != nil {
		return "", nil, nil, fmt.Errorf("failed to parse synthesis JSON: %w", err)
	}
	if strings.TrimSpace(raw.Answer) == "" {
		return "", nil, nil, fmt.Errorf("empty answer in response")
	}
	return raw.Answer, raw.Citations, raw.SuggestedQuestions, nil
}

// normalizeSuggestions drops blank entries and caps the list at the three
// questions the prompt asks for.
func normalizeSuggestions(qs []string) []string {
	var kept []string
	for _, q := range qs {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		kept = append(kept, q)
		if len(kept) == 3 {
			break
		}
	}
	return kept
}

// filterCitations drops citations whose source type has no successful result
// backing it, preserving the no-fabricated-citations guarantee even when the
// model over-cites.
func filterCitations(citations []Citation, results []ToolResult) []Citation {
	allowed := map[SourceType]bool{}
	for _, r := range results {
		if !r.Success() {
			continue
		}
		if src := toolSource(r.Tool); src != "" {
			allowed[src] = true
		}
	}
	var kept []Citation
	for _, c := range citations {
		if allowed[c.SourceType] {
			kept = append(kept, c)
		}
	}
	return kept
}
