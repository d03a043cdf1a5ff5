package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lectern-ai/lectern/internal/core/domain"
	"github.com/lectern-ai/lectern/internal/core/ports"
)

// Planner asks the language model for a per-turn decision: call a tool or
// produce the final answer.
type Planner struct {
	logger   *slog.Logger
	llm      ports.LLMProvider
	registry *domain.ToolRegistry
}

// NewPlanner creates a planner over the given model and tool catalog.
func NewPlanner(logger *slog.Logger, llm ports.LLMProvider, registry *domain.ToolRegistry) *Planner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Planner{
		logger:   logger,
		llm:      llm,
		registry: registry,
	}
}

const plannerSystemPromptFmt = `You are an assistant that answers questions about a private library of books.
You have tools, described by the JSON schema below. You MUST follow that
schema when building tool_args.

MANDATORY: on the very first step you always call a tool first (for example
retrieve) to get passages from the books. Never answer directly on the first
step.

Available tools (JSON schema):
%s

If answering correctly needs information from the books, use a tool.
If the gathered information is sufficient, you may answer.

Respond strictly with a single JSON object and no extra text.

1) To call a tool:
{"decision": "tool", "tool_name": "<tool name>", "tool_args": { ... }}

2) To answer directly:
{"decision": "answer"}`

const plannerFollowupPrompt = `Above you can see the conversation so far and the tool results.
Decide whether another tool call is needed or whether you can give the final
answer to the user.

Respond strictly with a single JSON object, without fences or extra text.

1) Tool call:
{"decision": "tool", "tool_name": "<tool name>", "tool_args": { ... }}

2) Final answer:
{"decision": "answer"}`

// Decide runs one planning turn. It returns the parsed decision together
// with the history grown by this turn's prompt and the model's raw reply.
// On the first turn the prompt enumerates the full tool catalog.
func (p *Planner) Decide(ctx context.Context, state *domain.RAGState) (domain.Decision, []domain.Message, error) {
	messages := state.Messages
	if len(messages) == 0 {
		schema, err := json.MarshalIndent(p.registry.Descriptors(), "", "  ")
		if err != nil {
			return domain.Decision{}, nil, fmt.Errorf("marshal tool catalog: %w", err)
		}
		messages = []domain.Message{
			{Role: domain.RoleSystem, Content: fmt.Sprintf(plannerSystemPromptFmt, schema)},
			{Role: domain.RoleUser, Content: fmt.Sprintf("User question: %q", state.Question)},
		}
	} else {
		messages = append(messages, domain.Message{Role: domain.RoleUser, Content: plannerFollowupPrompt})
	}

	raw, err := p.llm.GenerateText(ctx, renderMessages(messages))
	if err != nil {
		return domain.Decision{}, messages, fmt.Errorf("planner model call: %w", err)
	}

	messages = append(messages, domain.Message{Role: domain.RoleAssistant, Content: raw})

	decision, err := ParseDecision(raw)
	if err != nil {
		return domain.Decision{}, messages, err
	}

	p.logger.Debug("planner decision", "kind", decision.Kind, "tool", decision.ToolName)
	return decision, messages, nil
}

// renderMessages flattens the role/content history into a single prompt for
// completion-style providers.
func renderMessages(messages []domain.Message) string {
	var b strings.Builder
	for i, m := range messages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(string(m.Role))
		b.WriteString(": ")
		b.WriteString(m.Content)
	}
	return b.String()
}

// ParseDecision decodes a planner reply. The reply is expected to be a single
// JSON object, optionally wrapped in a fenced code block with an optional
// "json" language tag. Anything that does not decode is a
// *domain.PlannerProtocolError; the caller decides how to make progress.
func ParseDecision(raw string) (domain.Decision, error) {
	cleaned := strings.TrimSpace(raw)
	if strings.HasPrefix(cleaned, "```") {
		parts := strings.Split(cleaned, "```")
		if len(parts) >= 2 {
			middle := strings.TrimLeft(parts[1], " \t\r\n")
			if len(middle) >= 4 && strings.EqualFold(middle[:4], "json") {
				middle = strings.TrimLeft(middle[4:], " \t\r\n")
			}
			cleaned = middle
		}
	}

	var payload struct {
		Decision string         `json:"decision"`
		ToolName string         `json:"tool_name"`
		ToolArgs map[string]any `json:"tool_args"`
	}
	if err := json.Unmarshal([]byte(cleaned), &payload); err != nil {
		return domain.Decision{}, &domain.PlannerProtocolError{Raw: raw, Err: err}
	}

	if payload.Decision == string(domain.DecisionAnswer) {
		return domain.Decision{Kind: domain.DecisionAnswer}, nil
	}

	name := payload.ToolName
	if name == "" {
		name = RetrieveToolName
	}
	args := payload.ToolArgs
	if args == nil {
		args = map[string]any{}
	}
	return domain.Decision{Kind: domain.DecisionTool, ToolName: name, ToolArgs: args}, nil
}
