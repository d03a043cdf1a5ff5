package services

import (
	"context"
	"log/slog"
	"strings"

	"github.com/lectern-ai/lectern/internal/core/domain"
)

const (
	// RetrieveToolName is the built-in retrieval tool's registry name.
	RetrieveToolName = "retrieve"

	defaultRetrieveTopK = 4
	maxRetrieveTopK     = 10
)

// RegisterRetrieveTool adds the built-in retrieval tool to the registry.
// The handler is deliberately defensive: the planning model sometimes omits
// required arguments, and that must produce an empty result, not an error.
func RegisterRetrieveTool(reg *domain.ToolRegistry, retriever *Retriever, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	return reg.Register(&domain.Tool{
		Name:        RetrieveToolName,
		Description: "Searches the indexed books for passages relevant to a query.",
		Parameters: domain.ToolParameters{
			Type: "object",
			Properties: map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "Question or search query to run against the books.",
				},
				"top_k": map[string]any{
					"type":        "integer",
					"description": "How many passages to return.",
					"minimum":     1,
					"maximum":     maxRetrieveTopK,
					"default":     defaultRetrieveTopK,
				},
			},
			Required: []string{"query"},
		},
		Execute: func(ctx context.Context, args map[string]any) (domain.ToolResult, error) {
			query, _ := args["query"].(string)
			if strings.TrimSpace(query) == "" {
				logger.Warn("retrieve tool called without a query")
				return domain.ToolResult{Passages: []domain.Passage{}}, nil
			}

			topK := intArg(args, "top_k", defaultRetrieveTopK)
			if topK < 1 {
				topK = 1
			}
			if topK > maxRetrieveTopK {
				topK = maxRetrieveTopK
			}

			passages, err := retriever.Retrieve(ctx, query, topK)
			if err != nil {
				return domain.ToolResult{}, err
			}
			return domain.ToolResult{Passages: passages}, nil
		},
	})
}

// intArg reads an integer argument that may arrive as a Go int or as a
// JSON-decoded float64.
func intArg(args map[string]any, key string, fallback int) int {
	switch v := args[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return fallback
	}
}
