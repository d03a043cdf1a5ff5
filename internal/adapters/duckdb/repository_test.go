package duckdb

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lectern-ai/lectern/internal/core/domain"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := NewRepository(filepath.Join(t.TempDir(), "traces.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func sampleTrace(id string, start time.Time) *domain.Trace {
	trace := &domain.Trace{
		ID:         domain.TraceID(id),
		Question:   "How do whales breathe?",
		Status:     domain.SpanStatusOK,
		ToolCalls:  1,
		StartTime:  start,
		EndTime:    start.Add(2 * time.Second),
		DurationMs: 2000,
		SpanCount:  2,
	}
	trace.Spans = []domain.Span{
		{
			ID:         domain.NewSpanID(),
			TraceID:    trace.ID,
			Name:       "plan.1",
			Kind:       domain.SpanKindLLM,
			Status:     domain.SpanStatusOK,
			Input:      "How do whales breathe?",
			Output:     "tool",
			StartTime:  start,
			EndTime:    start.Add(time.Second),
			DurationMs: 1000,
		},
		{
			ID:         domain.NewSpanID(),
			TraceID:    trace.ID,
			Name:       "tool.retrieve",
			Kind:       domain.SpanKindTool,
			Status:     domain.SpanStatusError,
			Input:      `{"query": "whales"}`,
			Error:      "index not loaded",
			StartTime:  start.Add(time.Second),
			EndTime:    start.Add(2 * time.Second),
			DurationMs: 1000,
		},
	}
	return trace
}

func TestTraceRepositoryRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	start := time.Now().UTC().Truncate(time.Millisecond)

	// 1. Save
	trace := sampleTrace("trace-round-trip", start)
	require.NoError(t, repo.SaveTrace(ctx, trace))

	// 2. Get with spans
	fetched, err := repo.GetTrace(ctx, trace.ID)
	require.NoError(t, err)
	require.NotNil(t, fetched)
	assert.Equal(t, trace.ID, fetched.ID)
	assert.Equal(t, trace.Question, fetched.Question)
	assert.Equal(t, domain.SpanStatusOK, fetched.Status)
	assert.Equal(t, 1, fetched.ToolCalls)
	assert.Equal(t, 2, fetched.SpanCount)

	require.Len(t, fetched.Spans, 2)
	assert.Equal(t, "plan.1", fetched.Spans[0].Name)
	assert.Equal(t, domain.SpanKindLLM, fetched.Spans[0].Kind)
	assert.Equal(t, "tool.retrieve", fetched.Spans[1].Name)
	assert.Equal(t, domain.SpanStatusError, fetched.Spans[1].Status)
	assert.Equal(t, "index not loaded", fetched.Spans[1].Error)

	// 3. Saving again updates instead of duplicating
	trace.Status = domain.SpanStatusError
	require.NoError(t, repo.SaveTrace(ctx, trace))

	fetched2, err := repo.GetTrace(ctx, trace.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SpanStatusError, fetched2.Status)
	assert.Len(t, fetched2.Spans, 2)
}

func TestTraceRepositoryGetMissing(t *testing.T) {
	repo := newTestRepo(t)

	fetched, err := repo.GetTrace(context.Background(), "trace-does-not-exist")
	require.NoError(t, err)
	assert.Nil(t, fetched)
}

func TestTraceRepositoryListNewestFirst(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Millisecond)

	require.NoError(t, repo.SaveTrace(ctx, sampleTrace("trace-old", base.Add(-time.Hour))))
	require.NoError(t, repo.SaveTrace(ctx, sampleTrace("trace-new", base)))

	summaries, err := repo.ListTraces(ctx, 10)
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, domain.TraceID("trace-new"), summaries[0].ID)
	assert.Equal(t, domain.TraceID("trace-old"), summaries[1].ID)

	// Limit applies
	limited, err := repo.ListTraces(ctx, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, domain.TraceID("trace-new"), limited[0].ID)
}
