package domain

import (
	"time"

	"github.com/google/uuid"
)

// TraceID uniquely identifies a trace (one per orchestration run).
type TraceID string

// SpanID uniquely identifies a span within a trace.
type SpanID string

// SpanKind classifies the type of operation a span represents.
type SpanKind string

const (
	SpanKindRun  SpanKind = "run"  // top-level orchestration run
	SpanKindLLM  SpanKind = "llm"  // planning or generation model call
	SpanKindTool SpanKind = "tool" // tool execution
)

// SpanStatus indicates completion state of a span.
type SpanStatus string

const (
	SpanStatusOK    SpanStatus = "ok"
	SpanStatusError SpanStatus = "error"
)

// Span represents a single unit of work within a run.
type Span struct {
	ID         SpanID     `json:"id"`
	TraceID    TraceID    `json:"trace_id"`
	Name       string     `json:"name"` // e.g. "plan.1", "tool.retrieve", "generate"
	Kind       SpanKind   `json:"kind"`
	Status     SpanStatus `json:"status"`
	Input      string     `json:"input,omitempty"`  // truncated input
	Output     string     `json:"output,omitempty"` // truncated output
	Error      string     `json:"error,omitempty"`
	StartTime  time.Time  `json:"start_time"`
	EndTime    time.Time  `json:"end_time"`
	DurationMs int64      `json:"duration_ms"`
}

// Trace groups all spans of a single orchestration run.
type Trace struct {
	ID         TraceID    `json:"id"`
	Question   string     `json:"question"`
	Status     SpanStatus `json:"status"`
	ToolCalls  int        `json:"tool_calls"`
	StartTime  time.Time  `json:"start_time"`
	EndTime    time.Time  `json:"end_time"`
	DurationMs int64      `json:"duration_ms"`
	SpanCount  int        `json:"span_count"`
	Spans      []Span     `json:"spans,omitempty"` // populated only on detail view
}

// TraceSummary is a lightweight view for listing traces.
type TraceSummary struct {
	ID         TraceID    `json:"id"`
	Question   string     `json:"question"`
	Status     SpanStatus `json:"status"`
	ToolCalls  int        `json:"tool_calls"`
	StartTime  time.Time  `json:"start_time"`
	DurationMs int64      `json:"duration_ms"`
	SpanCount  int        `json:"span_count"`
}

// NewTraceID generates a random trace ID.
func NewTraceID() TraceID {
	return TraceID("trace-" + uuid.NewString())
}

// NewSpanID generates a random span ID.
func NewSpanID() SpanID {
	return SpanID("span-" + uuid.NewString())
}
