// Package services contains the orchestration core: the bounded
// plan → retrieve → generate loop and the services it is assembled from.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lectern-ai/lectern/internal/core/domain"
)

// DefaultMaxToolCalls is the default tool invocation budget per run. It
// guarantees termination in at most DefaultMaxToolCalls+2 model round trips.
const DefaultMaxToolCalls = 2

// step is the orchestrator's routing target after a planning turn.
type step int

const (
	stepToolExecution step = iota
	stepGenerating
)

// RAGAgent drives the plan/tool/generate state machine over a fresh RAGState
// per question. It is safe for concurrent Run calls: all mutable state lives
// in the per-run RAGState.
type RAGAgent struct {
	logger       *slog.Logger
	planner      *Planner
	registry     *domain.ToolRegistry
	generator    *Generator
	tracer       *TraceCollector
	maxToolCalls int
}

// NewRAGAgent assembles the orchestrator. tracer may be nil to disable run
// tracing; maxToolCalls <= 0 selects the default budget.
func NewRAGAgent(logger *slog.Logger, planner *Planner, registry *domain.ToolRegistry, generator *Generator, tracer *TraceCollector, maxToolCalls int) *RAGAgent {
	if logger == nil {
		logger = slog.Default()
	}
	if maxToolCalls <= 0 {
		maxToolCalls = DefaultMaxToolCalls
	}
	return &RAGAgent{
		logger:       logger,
		planner:      planner,
		registry:     registry,
		generator:    generator,
		tracer:       tracer,
		maxToolCalls: maxToolCalls,
	}
}

// Run answers one question. It always terminates with a non-empty answer
// unless final synthesis itself fails; per-turn planner and tool errors are
// absorbed into the run history instead.
func (a *RAGAgent) Run(ctx context.Context, question string, topK int) (*domain.RAGState, error) {
	if strings.TrimSpace(question) == "" {
		return nil, fmt.Errorf("question must not be empty")
	}
	if topK < 1 {
		return nil, fmt.Errorf("top_k must be at least 1, got %d", topK)
	}

	state := domain.NewRAGState(question, topK)
	rt := a.tracer.StartTrace(question)

	for turn := 1; ; turn++ {
		planStart := time.Now()
		decision, messages, err := a.planner.Decide(ctx, state)
		state.Messages = messages
		rt.RecordSpan(fmt.Sprintf("plan.%d", turn), domain.SpanKindLLM, planStart, question, string(decision.Kind), err)

		if err != nil {
			// A malformed decision (or a failed planner call) spoils this
			// turn only. Force progression toward generation so the run
			// still produces an answer.
			var protoErr *domain.PlannerProtocolError
			if errors.As(err, &protoErr) {
				a.logger.Warn("planner protocol error, proceeding to generation",
					"turn", turn, "error", err)
			} else {
				a.logger.Warn("planner call failed, proceeding to generation",
					"turn", turn, "error", err)
			}
			break
		}

		if a.routeAfterPlan(state, decision) == stepGenerating {
			break
		}

		a.executeTool(ctx, state, decision, rt)
	}

	genStart := time.Now()
	answer, err := a.generator.Generate(ctx, state.Question, state.Passages)
	rt.RecordSpan("generate", domain.SpanKindLLM, genStart, question, answer, err)
	if err != nil {
		a.tracer.EndTrace(ctx, rt, state.ToolCalls, err)
		return nil, err
	}
	state.Answer = answer

	a.tracer.EndTrace(ctx, rt, state.ToolCalls, nil)
	a.logger.Info("run finished", "tool_calls", state.ToolCalls, "passages", len(state.Passages))
	return state, nil
}

// routeAfterPlan decides where the machine goes after a planning turn. The
// first turn always executes a tool, whatever the model said: retrieval must
// happen before any answer. After that the model's choice is honored until
// the tool budget is exhausted.
func (a *RAGAgent) routeAfterPlan(state *domain.RAGState, decision domain.Decision) step {
	if state.ToolCalls == 0 {
		return stepToolExecution
	}
	if decision.Kind == domain.DecisionAnswer {
		return stepGenerating
	}
	if state.ToolCalls >= a.maxToolCalls {
		return stepGenerating
	}
	return stepToolExecution
}

// executeTool runs one tool invocation and folds the outcome into the state.
// Tool failures never abort the run; they become history entries and leave
// the passage set empty for this turn.
func (a *RAGAgent) executeTool(ctx context.Context, state *domain.RAGState, decision domain.Decision, rt *RunTrace) {
	// The first turn can force a tool step out of an answer decision; in
	// that case there is no tool name, so fall back to plain retrieval.
	if decision.ToolName == "" {
		decision.ToolName = RetrieveToolName
	}

	// The model chooses the tool and auxiliary arguments, but the anchor
	// query and retrieval scope stay caller-controlled.
	if len(decision.ToolArgs) > 0 {
		if err := a.registry.ValidateArgs(decision.ToolName, decision.ToolArgs); err != nil && !errors.Is(err, domain.ErrToolNotFound) {
			a.logger.Warn("planner tool_args do not match the registered schema",
				"tool", decision.ToolName, "error", err)
		}
	}
	args := make(map[string]any, len(decision.ToolArgs)+2)
	for k, v := range decision.ToolArgs {
		args[k] = v
	}
	args["query"] = state.Question
	args["top_k"] = state.TopK

	argsJSON, _ := json.Marshal(args)
	toolStart := time.Now()
	result, err := a.registry.Invoke(ctx, decision.ToolName, args)
	state.ToolCalls++
	rt.RecordSpan("tool."+decision.ToolName, domain.SpanKindTool, toolStart,
		string(argsJSON), fmt.Sprintf("%d passages", len(result.Passages)), err)

	if err != nil {
		state.Passages = []domain.Passage{}
		if errors.Is(err, domain.ErrToolNotFound) {
			a.logger.Warn("planner requested unknown tool", "tool", decision.ToolName)
			state.AppendMessage(domain.RoleAssistant,
				fmt.Sprintf("Tool %q is not available. Continuing without it.", decision.ToolName))
			return
		}
		a.logger.Warn("tool execution failed", "tool", decision.ToolName, "error", err)
		state.AppendMessage(domain.RoleAssistant,
			fmt.Sprintf("Tool %q failed: %v. Continuing without its results.", decision.ToolName, err))
		return
	}

	state.Passages = result.Passages
	state.AppendMessage(domain.RoleAssistant, formatToolMessage(decision.ToolName, result.Passages))
}

// formatToolMessage renders tool results as a readable assistant message so
// the next planning turn sees grounded context with scores and citations.
func formatToolMessage(toolName string, passages []domain.Passage) string {
	if len(passages) == 0 {
		return fmt.Sprintf("Tool %q returned no passages.", toolName)
	}

	rendered := make([]string, 0, len(passages))
	for _, p := range passages {
		header := fmt.Sprintf("[score=%.3f]", p.Score)
		if p.Metadata.BookName != "" && p.Metadata.PageNumber > 0 {
			header = fmt.Sprintf("[score=%.3f, %s, p. %d]", p.Score, p.Metadata.BookName, p.Metadata.PageNumber)
		}
		rendered = append(rendered, header+"\n"+p.Text)
	}
	return fmt.Sprintf("Tool %q returned:\n%s", toolName, strings.Join(rendered, "\n\n---\n\n"))
}
