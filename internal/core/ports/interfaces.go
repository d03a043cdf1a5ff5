// Package ports defines the interfaces between the core services and the
// adapters that back them.
package ports

import (
	"context"

	"github.com/lectern-ai/lectern/internal/core/domain"
)

// LLMProvider abstracts the language model backend used for planning and
// answer synthesis.
type LLMProvider interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
}

// Embedder turns texts into L2-normalized vectors in the same embedding
// space the index was built in.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Searcher answers k-nearest-neighbor queries over the persisted index.
// Implementations must be safe for concurrent Search calls.
type Searcher interface {
	Search(queryVec []float32, k int) ([]domain.Passage, error)
}

// TraceRepository persists orchestration run traces.
type TraceRepository interface {
	SaveTrace(ctx context.Context, trace *domain.Trace) error
	ListTraces(ctx context.Context, limit int) ([]domain.TraceSummary, error)
	GetTrace(ctx context.Context, id domain.TraceID) (*domain.Trace, error)
}
