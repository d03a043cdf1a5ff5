package services

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lectern-ai/lectern/internal/core/domain"
)

// recordingTool is a registry-backed retrieval stub that captures every
// invocation it receives.
type recordingTool struct {
	passages []domain.Passage
	err      error
	calls    int
	gotArgs  []map[string]any
}

func (rt *recordingTool) register(t *testing.T, reg *domain.ToolRegistry) {
	t.Helper()
	require.NoError(t, reg.Register(&domain.Tool{
		Name:        RetrieveToolName,
		Description: "Searches the indexed books.",
		Parameters: domain.ToolParameters{
			Type: "object",
			Properties: map[string]any{
				"query": map[string]any{"type": "string"},
				"top_k": map[string]any{"type": "integer"},
			},
			Required: []string{"query"},
		},
		Execute: func(_ context.Context, args map[string]any) (domain.ToolResult, error) {
			rt.calls++
			rt.gotArgs = append(rt.gotArgs, args)
			if rt.err != nil {
				return domain.ToolResult{}, rt.err
			}
			return domain.ToolResult{Passages: rt.passages}, nil
		},
	}))
}

func newTestAgent(t *testing.T, llm *scriptedLLM, tool *recordingTool) *RAGAgent {
	t.Helper()
	reg := domain.NewToolRegistry()
	tool.register(t, reg)
	return NewRAGAgent(
		testLogger(),
		NewPlanner(testLogger(), llm, reg),
		reg,
		NewGenerator(testLogger(), llm),
		nil,
		DefaultMaxToolCalls,
	)
}

const answerDecision = `{"decision": "answer"}`

func toolDecision(args string) string {
	return `{"decision": "tool", "tool_name": "retrieve", "tool_args": ` + args + `}`
}

func TestRunForcesRetrievalBeforeAnswering(t *testing.T) {
	// The model tries to answer immediately; the first turn must still
	// retrieve before the answer decision is honored.
	llm := &scriptedLLM{replies: []string{
		answerDecision,
		answerDecision,
		"Whales breathe through blowholes.",
	}}
	tool := &recordingTool{passages: []domain.Passage{{Text: "blowhole passage", Score: 0.9}}}
	agent := newTestAgent(t, llm, tool)

	state, err := agent.Run(context.Background(), "How do whales breathe?", 4)
	require.NoError(t, err)

	assert.Equal(t, 1, tool.calls)
	assert.Equal(t, 1, state.ToolCalls)
	assert.Equal(t, "Whales breathe through blowholes.", state.Answer)
	require.Len(t, state.Passages, 1)
	assert.Equal(t, "blowhole passage", state.Passages[0].Text)
}

func TestRunInjectsCallerQueryAndTopK(t *testing.T) {
	llm := &scriptedLLM{replies: []string{
		toolDecision(`{"query": "model override", "top_k": 9, "lang": "en"}`),
		answerDecision,
		"final answer",
	}}
	tool := &recordingTool{passages: []domain.Passage{{Text: "p", Score: 0.5}}}
	agent := newTestAgent(t, llm, tool)

	_, err := agent.Run(context.Background(), "How do whales breathe?", 3)
	require.NoError(t, err)

	require.Len(t, tool.gotArgs, 1)
	args := tool.gotArgs[0]
	// The anchor query and scope are caller-controlled; extra model
	// arguments pass through.
	assert.Equal(t, "How do whales breathe?", args["query"])
	assert.Equal(t, 3, args["top_k"])
	assert.Equal(t, "en", args["lang"])
}

func TestRunStopsAtToolBudget(t *testing.T) {
	// The model keeps asking for tools; after the budget is spent the loop
	// must fall through to generation anyway.
	llm := &scriptedLLM{replies: []string{
		toolDecision(`{"query": "first"}`),
		toolDecision(`{"query": "second"}`),
		toolDecision(`{"query": "third"}`),
		"final answer",
	}}
	tool := &recordingTool{passages: []domain.Passage{{Text: "p", Score: 0.5}}}
	agent := newTestAgent(t, llm, tool)

	state, err := agent.Run(context.Background(), "question", 4)
	require.NoError(t, err)

	assert.Equal(t, DefaultMaxToolCalls, tool.calls)
	assert.Equal(t, DefaultMaxToolCalls, state.ToolCalls)
	assert.Equal(t, "final answer", state.Answer)
}

func TestRunUnknownToolIsAbsorbed(t *testing.T) {
	llm := &scriptedLLM{replies: []string{
		`{"decision": "tool", "tool_name": "web_search", "tool_args": {"query": "whales"}}`,
		answerDecision,
	}}
	tool := &recordingTool{}
	agent := newTestAgent(t, llm, tool)

	state, err := agent.Run(context.Background(), "question", 4)
	require.NoError(t, err)

	// The failed call still spends budget, the registered tool never runs,
	// and the run ends with the fixed insufficiency answer (no passages, so
	// generation never hits the model either).
	assert.Equal(t, 0, tool.calls)
	assert.Equal(t, 1, state.ToolCalls)
	assert.Equal(t, InsufficientContextAnswer, state.Answer)
	assert.Len(t, llm.prompts, 2)

	var found bool
	for _, m := range state.Messages {
		if m.Role == domain.RoleAssistant && strings.Contains(m.Content, `"web_search" is not available`) {
			found = true
		}
	}
	assert.True(t, found, "history should note the unavailable tool")
}

func TestRunSurvivesEmptyRegistry(t *testing.T) {
	// Nothing registered at all: the forced tool turn fails, a note is
	// recorded, and the loop still reaches generation.
	llm := &scriptedLLM{replies: []string{
		`{"decision": "tool", "tool_name": "missing", "tool_args": {}}`,
		answerDecision,
	}}
	reg := domain.NewToolRegistry()
	agent := NewRAGAgent(
		testLogger(),
		NewPlanner(testLogger(), llm, reg),
		reg,
		NewGenerator(testLogger(), llm),
		nil,
		DefaultMaxToolCalls,
	)

	state, err := agent.Run(context.Background(), "question", 4)
	require.NoError(t, err)
	assert.Equal(t, 1, state.ToolCalls)
	assert.Equal(t, InsufficientContextAnswer, state.Answer)
}

func TestRunToolFailureIsAbsorbed(t *testing.T) {
	llm := &scriptedLLM{replies: []string{
		toolDecision(`{"query": "whales"}`),
		answerDecision,
	}}
	tool := &recordingTool{err: assert.AnError}
	agent := newTestAgent(t, llm, tool)

	state, err := agent.Run(context.Background(), "question", 4)
	require.NoError(t, err)

	assert.Equal(t, 1, tool.calls)
	assert.Equal(t, 1, state.ToolCalls)
	assert.Empty(t, state.Passages)
	assert.Equal(t, InsufficientContextAnswer, state.Answer)

	var found bool
	for _, m := range state.Messages {
		if m.Role == domain.RoleAssistant && strings.Contains(m.Content, "failed") {
			found = true
		}
	}
	assert.True(t, found, "history should note the tool failure")
}

func TestRunPlannerProtocolErrorFallsThroughToGeneration(t *testing.T) {
	llm := &scriptedLLM{replies: []string{
		"I would love to help! Let me think about whales...",
	}}
	tool := &recordingTool{}
	agent := newTestAgent(t, llm, tool)

	state, err := agent.Run(context.Background(), "question", 4)
	require.NoError(t, err)

	// No retrieval happened, but the run still terminates with an answer.
	assert.Equal(t, 0, state.ToolCalls)
	assert.Equal(t, InsufficientContextAnswer, state.Answer)
	assert.NotEmpty(t, state.Answer)
}

func TestRunToolResultsLandInHistory(t *testing.T) {
	llm := &scriptedLLM{replies: []string{
		toolDecision(`{"query": "whales"}`),
		answerDecision,
		"final answer",
	}}
	tool := &recordingTool{passages: []domain.Passage{{
		Text:     "Whales are air-breathing mammals.",
		Score:    0.87,
		Metadata: domain.PassageMetadata{BookName: "Marine Mammals", PageNumber: 12},
	}}}
	agent := newTestAgent(t, llm, tool)

	state, err := agent.Run(context.Background(), "question", 4)
	require.NoError(t, err)

	var toolMsg string
	for _, m := range state.Messages {
		if m.Role == domain.RoleAssistant && strings.Contains(m.Content, "returned") {
			toolMsg = m.Content
		}
	}
	require.NotEmpty(t, toolMsg, "tool results should be in the history")
	assert.Contains(t, toolMsg, "score=0.870")
	assert.Contains(t, toolMsg, "Marine Mammals, p. 12")
	assert.Contains(t, toolMsg, "Whales are air-breathing mammals.")

	// The second planning prompt must carry the tool results.
	require.Len(t, llm.prompts, 3)
	assert.Contains(t, llm.prompts[1], "Whales are air-breathing mammals.")
}

func TestRunGenerationFailurePropagates(t *testing.T) {
	// Both plan turns succeed, then the scripted model runs dry exactly at
	// the synthesis call.
	llm := &scriptedLLM{replies: []string{
		toolDecision(`{"query": "whales"}`),
		answerDecision,
	}}
	tool := &recordingTool{passages: []domain.Passage{{Text: "p", Score: 0.5}}}
	agent := newTestAgent(t, llm, tool)

	state, err := agent.Run(context.Background(), "question", 4)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrGeneration)
	assert.Nil(t, state)
}

func TestRunValidatesInput(t *testing.T) {
	agent := newTestAgent(t, &scriptedLLM{}, &recordingTool{})

	_, err := agent.Run(context.Background(), "   ", 4)
	assert.Error(t, err)

	_, err = agent.Run(context.Background(), "question", 0)
	assert.Error(t, err)
}

func TestRouteAfterPlan(t *testing.T) {
	agent := newTestAgent(t, &scriptedLLM{}, &recordingTool{})
	toolDec := domain.Decision{Kind: domain.DecisionTool, ToolName: RetrieveToolName}
	answerDec := domain.Decision{Kind: domain.DecisionAnswer}

	tests := []struct {
		name      string
		toolCalls int
		decision  domain.Decision
		want      step
	}{
		{"first turn forces tools even on answer", 0, answerDec, stepToolExecution},
		{"first turn tool decision", 0, toolDec, stepToolExecution},
		{"answer honored after first retrieval", 1, answerDec, stepGenerating},
		{"tool honored under budget", 1, toolDec, stepToolExecution},
		{"budget exhausted forces generation", 2, toolDec, stepGenerating},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := domain.NewRAGState("q", 4)
			state.ToolCalls = tt.toolCalls
			assert.Equal(t, tt.want, agent.routeAfterPlan(state, tt.decision))
		})
	}
}
