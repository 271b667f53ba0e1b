package core

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/pamudu-ranasinghe/virtualme/internal/agent/telemetry"
	"github.com/pamudu-ranasinghe/virtualme/tools"
)

// Executor runs a plan against the tool registry. Calls within one plan are
// independent, so they fan out concurrently; results land at their plan index
// so ordering and 1:1 pairing with the plan always hold. Execute never
// returns an error: every failure mode becomes a failure ToolResult.
type Executor struct {
	registry  *tools.Registry
	telemetry *telemetry.Telemetry
	logger    *log.Logger
}

// NewExecutor creates a new executor instance
func NewExecutor(registry *tools.Registry, tel *telemetry.Telemetry) *Executor {
	return &Executor{
		registry:  registry,
		telemetry: tel,
		logger:    log.New(log.Writer(), "[EXEC] ", log.LstdFlags),
	}
}

// Execute dispatches every call in the plan and returns one result per call,
// in plan order.
func (e *Executor) Execute(ctx context.Context, plan []ToolCall) []ToolResult {
	if len(plan) == 0 {
		return nil
	}

	results := make([]ToolResult, len(plan))
	var wg sync.WaitGroup
	for i, call := range plan {
		wg.Add(1)
		go func(i int, call ToolCall) {
			defer wg.Done()
			results[i] = e.run(ctx, call)
		}(i, call)
	}
	wg.Wait()

	failures := 0
	for _, r := range results {
		if !r.Success() {
			failures++
		}
	}
	e.logger.Printf("executed %d tool calls, %d failed", len(results), failures)
	return results
}

// run executes a single call, converting panics, unknown names, and tool
// errors into failure results so siblings are never affected.
func (e *Executor) run(ctx context.Context, call ToolCall) (res ToolResult) {
	res = ToolResult{Tool: call.Tool, Args: call.Args}
	defer func() {
		if r := recover(); r != nil {
			res.Content = ""
			res.Err = fmt.Sprintf("tool panicked: %v", r)
			e.logger.Printf("tool %s panicked: %v", call.Tool, r)
			e.telemetry.ToolInvocation(call.Tool, "failure")
		}
	}()

	tool, ok := e.registry.Lookup(call.Tool)
	if !ok {
		res.Err = fmt.Sprintf("unknown tool: %s", call.Tool)
		e.logger.Printf("unknown tool in plan: %s", call.Tool)
		e.telemetry.ToolInvocation(call.Tool, "failure")
		return res
	}

	content, err := tool.Invoke(ctx, call.Args)
	if err != nil {
		res.Err = err.Error()
		e.logger.Printf("tool %s failed: %v", call.Tool, err)
		e.telemetry.ToolInvocation(call.Tool, "failure")
		return res
	}
	res.Content = content
	e.telemetry.ToolInvocation(call.Tool, "success")
	return res
}
