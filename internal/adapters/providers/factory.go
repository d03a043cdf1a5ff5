// Package providers builds the configured LLM and embedding backends.
package providers

import (
	"fmt"
	"os"
	"time"

	"github.com/lectern-ai/lectern/internal/adapters/llm"
	"github.com/lectern-ai/lectern/internal/config"
	"github.com/lectern-ai/lectern/internal/core/ports"
)

// Build returns the language model provider and embedder for the configured
// backend type. Both roles are served by the same adapter instance.
func Build(cfg config.ProviderConfig) (ports.LLMProvider, ports.Embedder, error) {
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second

	switch cfg.Type {
	case "ollama":
		p := llm.NewOllamaProvider(cfg.BaseURL, cfg.Model, cfg.EmbedModel, timeout)
		return p, p, nil
	case "openai":
		apiKey := os.Getenv(cfg.APIKeyEnv)
		if apiKey == "" {
			return nil, nil, fmt.Errorf("provider %q requires an API key in env %s", cfg.Type, cfg.APIKeyEnv)
		}
		p := llm.NewOpenAIProvider(cfg.BaseURL, apiKey, cfg.Model, cfg.EmbedModel, timeout)
		return p, p, nil
	default:
		return nil, nil, fmt.Errorf("unknown provider type: %q", cfg.Type)
	}
}
