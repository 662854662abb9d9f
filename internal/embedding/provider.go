// Package embedding turns entity texts into vectors for the semantic
// index. Two providers are supported: an OpenAI-compatible batch API and
// an Ollama-style local endpoint that embeds one text per call.
package embedding

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Provider generates vector embeddings from text.
type Provider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// Config selects and configures a provider.
type Config struct {
	Provider  string `json:"provider"` // "api" or "ollama"
	Endpoint  string `json:"endpoint"`
	Model     string `json:"model"`
	APIKey    string `json:"api_key"`
	Dimension int    `json:"dimension"`
}

// New builds the provider the config names.
func New(cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "api":
		return newAPIProvider(cfg), nil
	case "ollama", "local":
		return newOllamaProvider(cfg), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}

// httpClient bounds every embedding call; a stuck endpoint must not hang
// a consolidation sweep.
var httpClient = &http.Client{Timeout: 30 * time.Second}
