package core

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/pamudu-ranasinghe/virtualme/internal/agent/telemetry"
	"github.com/pamudu-ranasinghe/virtualme/tools"
)

// Coordinator drives one user turn through planning, execution, and
// synthesis. The stages run strictly in sequence; event emission is
// fire-and-forget so a slow consumer never stalls the pipeline. No failure
// from any stage escapes Turn: each stage converts its own errors into data.
type Coordinator struct {
	planner     *Planner
	executor    *Executor
	synthesizer *Synthesizer
	telemetry   *telemetry.Telemetry
	logger      *log.Logger
}

// NewCoordinator wires the three stages around a shared provider and registry.
func NewCoordinator(provider LLMProvider, registry *tools.Registry, tel *telemetry.Telemetry) *Coordinator {
	return &Coordinator{
		planner:     NewPlanner(provider, registry, tel),
		executor:    NewExecutor(registry, tel),
		synthesizer: NewSynthesizer(provider, tel),
		telemetry:   tel,
		logger:      log.New(log.Writer(), "[TURN] ", log.LstdFlags),
	}
}

// Turn processes one user message. It emits exactly one status event per
// stage and one terminal result event, then returns the answer, citations,
// and the two new history entries for the caller to persist.
func (c *Coordinator) Turn(ctx context.Context, query string, history []ConversationTurn, sink EventSink) TurnOutput {
	start := time.Now()

	emit(sink, Event{Type: EventStatus, Node: NodePlanner, Message: "analyzing your question"})
	plan, direct := c.planner.Plan(ctx, query, history)

	emit(sink, Event{Type: EventStatus, Node: NodeExecutor, Message: executorStatus(len(plan))})
	results := c.executor.Execute(ctx, plan)

	emit(sink, Event{Type: EventStatus, Node: NodeSynthesizer, Message: "composing the answer"})
	var answer string
	var citations []Citation
	var suggestions []string
	if direct != "" && len(results) == 0 {
		// planner answered the turn itself (greeting or refusal)
		answer = direct
	} else {
		answer, citations, suggestions = c.synthesizer.Synthesize(ctx, query, history, results)
	}

	emit(sink, Event{Type: EventResult, Answer: answer, Citations: citations, SuggestedQuestions: suggestions})

	c.telemetry.TurnCompleted(time.Since(start))
	c.logger.Printf("turn completed in %v (%d tool calls, %d citations)", time.Since(start), len(plan), len(citations))

	now := time.Now().UTC()
	return TurnOutput{
		Answer:             answer,
		Citations:          citations,
		SuggestedQuestions: suggestions,
		UserTurn:           ConversationTurn{Role: RoleUser, Content: query, Timestamp: now},
		AssistantTurn:      ConversationTurn{Role: RoleAssistant, Content: answer, Timestamp: now},
	}
}

func executorStatus(n int) string {
	if n == 0 {
		return "no lookups needed"
	}
	return fmt.Sprintf("running %d lookups", n)
}

func emit(sink EventSink, ev Event) {
	if sink != nil {
		sink.Emit(ev)
	}
}
