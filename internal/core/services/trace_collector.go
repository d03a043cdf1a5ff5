package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/lectern-ai/lectern/internal/core/domain"
	"github.com/lectern-ai/lectern/internal/core/ports"
)

// spanPayloadLimit bounds stored span inputs/outputs.
const spanPayloadLimit = 500

// TraceCollector records one trace per orchestration run and persists it
// when the run ends. A nil collector is valid and records nothing, so the
// agent never has to guard its tracing calls.
type TraceCollector struct {
	logger *slog.Logger
	repo   ports.TraceRepository
}

// NewTraceCollector creates a collector that saves traces to repo.
func NewTraceCollector(logger *slog.Logger, repo ports.TraceRepository) *TraceCollector {
	if logger == nil {
		logger = slog.Default()
	}
	return &TraceCollector{logger: logger, repo: repo}
}

// RunTrace accumulates the spans of a single run.
type RunTrace struct {
	trace *domain.Trace
}

// StartTrace begins a trace for one run.
func (c *TraceCollector) StartTrace(question string) *RunTrace {
	if c == nil {
		return nil
	}
	return &RunTrace{
		trace: &domain.Trace{
			ID:        domain.NewTraceID(),
			Question:  question,
			Status:    domain.SpanStatusOK,
			StartTime: time.Now().UTC(),
		},
	}
}

// RecordSpan appends a completed span to the trace.
func (t *RunTrace) RecordSpan(name string, kind domain.SpanKind, start time.Time, input, output string, err error) {
	if t == nil {
		return
	}
	end := time.Now().UTC()
	span := domain.Span{
		ID:         domain.NewSpanID(),
		TraceID:    t.trace.ID,
		Name:       name,
		Kind:       kind,
		Status:     domain.SpanStatusOK,
		Input:      truncate(input, spanPayloadLimit),
		Output:     truncate(output, spanPayloadLimit),
		StartTime:  start.UTC(),
		EndTime:    end,
		DurationMs: end.Sub(start).Milliseconds(),
	}
	if err != nil {
		span.Status = domain.SpanStatusError
		span.Error = err.Error()
	}
	t.trace.Spans = append(t.trace.Spans, span)
}

// EndTrace finalizes and persists the trace. Persistence failures are logged,
// not propagated: tracing must never fail a run that produced an answer.
func (c *TraceCollector) EndTrace(ctx context.Context, t *RunTrace, toolCalls int, runErr error) {
	if c == nil || t == nil {
		return
	}
	t.trace.EndTime = time.Now().UTC()
	t.trace.DurationMs = t.trace.EndTime.Sub(t.trace.StartTime).Milliseconds()
	t.trace.ToolCalls = toolCalls
	t.trace.SpanCount = len(t.trace.Spans)
	if runErr != nil {
		t.trace.Status = domain.SpanStatusError
	}

	if c.repo == nil {
		return
	}
	if err := c.repo.SaveTrace(ctx, t.trace); err != nil {
		c.logger.Error("failed to persist run trace", "trace_id", t.trace.ID, "error", err)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
