package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
)

// apiProvider speaks the OpenAI-compatible /embeddings batch endpoint.
type apiProvider struct {
	endpoint  string
	model     string
	apiKey    string
	dimension int

	dimOnce sync.Once
	dim     int
}

func newAPIProvider(cfg Config) *apiProvider {
	return &apiProvider{
		endpoint:  cfg.Endpoint,
		model:     cfg.Model,
		apiKey:    cfg.APIKey,
		dimension: cfg.Dimension,
	}
}

type apiRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type apiEmbedding struct {
	Embedding []float32 `json:"embedding"`
}

type apiResponse struct {
	Data []apiEmbedding `json:"data"`
}

func (p *apiProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(apiRequest{Model: p.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("embedding: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("embedding: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embedding: API returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var result apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("embedding: decode response: %w", err)
	}

	vectors := make([][]float32, len(result.Data))
	for i, d := range result.Data {
		vectors[i] = d.Embedding
	}
	if len(vectors) > 0 && len(vectors[0]) > 0 {
		p.dimOnce.Do(func() { p.dim = len(vectors[0]) })
	}
	return vectors, nil
}

// Dimension returns the size observed on the first successful call, or
// the configured default before that.
func (p *apiProvider) Dimension() int {
	if p.dim > 0 {
		return p.dim
	}
	return p.dimension
}
