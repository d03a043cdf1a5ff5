package duckdb

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lectern-ai/lectern/internal/core/domain"
)

// SaveTrace persists a completed trace and all its spans.
func (r *Repository) SaveTrace(ctx context.Context, trace *domain.Trace) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx, `
		INSERT INTO traces (id, question, status, tool_calls, start_time, end_time, duration_ms, span_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			status      = excluded.status,
			tool_calls  = excluded.tool_calls,
			end_time    = excluded.end_time,
			duration_ms = excluded.duration_ms,
			span_count  = excluded.span_count`,
		string(trace.ID),
		trace.Question,
		string(trace.Status),
		trace.ToolCalls,
		trace.StartTime,
		trace.EndTime,
		trace.DurationMs,
		trace.SpanCount,
	)
	if err != nil {
		return fmt.Errorf("upsert trace: %w", err)
	}

	for _, span := range trace.Spans {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO spans (id, trace_id, name, kind, status, input, output, error, start_time, end_time, duration_ms)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (id) DO UPDATE SET
				status      = excluded.status,
				output      = excluded.output,
				error       = excluded.error,
				end_time    = excluded.end_time,
				duration_ms = excluded.duration_ms`,
			string(span.ID),
			string(span.TraceID),
			span.Name,
			string(span.Kind),
			string(span.Status),
			span.Input,
			span.Output,
			span.Error,
			span.StartTime,
			span.EndTime,
			span.DurationMs,
		)
		if err != nil {
			return fmt.Errorf("upsert span %s: %w", span.ID, err)
		}
	}

	return tx.Commit()
}

// ListTraces returns summaries of the most recent traces (newest first).
func (r *Repository) ListTraces(ctx context.Context, limit int) ([]domain.TraceSummary, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, question, status, tool_calls, start_time, duration_ms, span_count
		FROM traces
		ORDER BY start_time DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list traces: %w", err)
	}
	defer rows.Close()

	var out []domain.TraceSummary
	for rows.Next() {
		var s domain.TraceSummary
		var id, status string
		if err := rows.Scan(&id, &s.Question, &status, &s.ToolCalls, &s.StartTime, &s.DurationMs, &s.SpanCount); err != nil {
			return nil, fmt.Errorf("scan trace summary: %w", err)
		}
		s.ID = domain.TraceID(id)
		s.Status = domain.SpanStatus(status)
		out = append(out, s)
	}
	return out, rows.Err()
}

// GetTrace returns one trace with its spans, or nil if it does not exist.
func (r *Repository) GetTrace(ctx context.Context, id domain.TraceID) (*domain.Trace, error) {
	var trace domain.Trace
	var traceID, status string
	err := r.db.QueryRowContext(ctx, `
		SELECT id, question, status, tool_calls, start_time, end_time, duration_ms, span_count
		FROM traces WHERE id = ?`, string(id)).
		Scan(&traceID, &trace.Question, &status, &trace.ToolCalls,
			&trace.StartTime, &trace.EndTime, &trace.DurationMs, &trace.SpanCount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get trace %s: %w", id, err)
	}
	trace.ID = domain.TraceID(traceID)
	trace.Status = domain.SpanStatus(status)

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, trace_id, name, kind, status, input, output, error, start_time, end_time, duration_ms
		FROM spans WHERE trace_id = ? ORDER BY start_time`, string(id))
	if err != nil {
		return nil, fmt.Errorf("get spans for %s: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		var span domain.Span
		var spanID, spanTraceID, kind, spanStatus string
		var input, output, errMsg sql.NullString
		if err := rows.Scan(&spanID, &spanTraceID, &span.Name, &kind, &spanStatus,
			&input, &output, &errMsg, &span.StartTime, &span.EndTime, &span.DurationMs); err != nil {
			return nil, fmt.Errorf("scan span: %w", err)
		}
		span.ID = domain.SpanID(spanID)
		span.TraceID = domain.TraceID(spanTraceID)
		span.Kind = domain.SpanKind(kind)
		span.Status = domain.SpanStatus(spanStatus)
		span.Input = input.String
		span.Output = output.String
		span.Error = errMsg.String
		trace.Spans = append(trace.Spans, span)
	}
	return &trace, rows.Err()
}
