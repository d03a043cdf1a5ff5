package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lectern-ai/lectern/internal/core/domain"
	"github.com/lectern-ai/lectern/internal/core/ports"
)

// InsufficientContextAnswer is returned verbatim when generation runs with no
// retrieved passages. It is a deterministic short-circuit: no model call is
// made, so the behavior is testable and free.
const InsufficientContextAnswer = "I could not find relevant passages in the indexed books, so I cannot answer this question with confidence."

// Generator synthesizes the final answer from the question and the retrieved
// passages.
type Generator struct {
	logger *slog.Logger
	llm    ports.LLMProvider
}

// NewGenerator creates an answer generator over the given model.
func NewGenerator(logger *slog.Logger, llm ports.LLMProvider) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{logger: logger, llm: llm}
}

// Generate produces the final answer. Empty passages short-circuit to the
// fixed insufficiency answer without calling the model.
func (g *Generator) Generate(ctx context.Context, question string, passages []domain.Passage) (string, error) {
	if len(passages) == 0 {
		g.logger.Info("no passages retrieved, returning insufficiency answer")
		return InsufficientContextAnswer, nil
	}

	answer, err := g.llm.GenerateText(ctx, buildAnswerPrompt(question, passages))
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrGeneration, err)
	}
	return strings.TrimSpace(answer), nil
}

func buildAnswerPrompt(question string, passages []domain.Passage) string {
	var context strings.Builder
	for i, p := range passages {
		snippet := strings.ReplaceAll(strings.TrimSpace(p.Text), "\n", " ")
		fmt.Fprintf(&context, "[%d] score=%.3f", i+1, p.Score)
		if p.Metadata.BookName != "" && p.Metadata.PageNumber > 0 {
			fmt.Fprintf(&context, " (%s, p. %d)", p.Metadata.BookName, p.Metadata.PageNumber)
		}
		fmt.Fprintf(&context, ": %s\n", snippet)
	}

	return fmt.Sprintf(`You are an assistant that answers strictly from the provided book passages.

Context:
%s
Instructions:
- Answer the question: %q
- Do not invent facts; use only the passages above.
- If the passages are not enough, say so honestly.
`, context.String(), question)
}
