package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lectern-ai/lectern/internal/core/domain"
	"github.com/lectern-ai/lectern/internal/core/ports"
)

// Retriever turns a query string into an embedding and searches the index.
// The query-side prefix comes from the same config section the index builder
// reads its passage-side prefix from, so the encoding convention stays in one
// place.
type Retriever struct {
	logger      *slog.Logger
	embedder    ports.Embedder
	searcher    ports.Searcher
	queryPrefix string
}

// NewRetriever creates a retrieval engine over the given embedder and index.
func NewRetriever(logger *slog.Logger, embedder ports.Embedder, searcher ports.Searcher, queryPrefix string) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{
		logger:      logger,
		embedder:    embedder,
		searcher:    searcher,
		queryPrefix: queryPrefix,
	}
}

// Retrieve embeds the query and returns up to topK passages in the order the
// index ranked them.
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int) ([]domain.Passage, error) {
	vecs, err := r.embedder.Embed(ctx, []string{r.queryPrefix + query})
	if err != nil {
		return nil, fmt.Errorf("%w: embed query: %v", domain.ErrRetrieval, err)
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("%w: embedder returned no vectors", domain.ErrRetrieval)
	}

	hits, err := r.searcher.Search(vecs[0], topK)
	if err != nil {
		return nil, fmt.Errorf("%w: search index: %v", domain.ErrRetrieval, err)
	}

	r.logger.Debug("retrieved passages", "query_len", len(query), "top_k", topK, "hits", len(hits))
	return hits, nil
}
