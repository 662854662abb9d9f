package semantic

import (
	"context"
	"fmt"
	"math"

	"github.com/mainza-ai/graphmind/internal/embedding"
	"go.uber.org/zap"
)

// Index pairs an embedding provider with a Qdrant collection. All methods
// are safe for concurrent use; the underlying gRPC client multiplexes.
type Index struct {
	client     *Client
	provider   embedding.Provider
	collection string
	logger     *zap.Logger
}

// NewIndex builds an index over one collection.
func NewIndex(client *Client, provider embedding.Provider, collection string, logger *zap.Logger) *Index {
	return &Index{
		client:     client,
		provider:   provider,
		collection: collection,
		logger:     logger,
	}
}

// EnsureReady creates the backing collection if needed.
func (x *Index) EnsureReady(ctx context.Context) error {
	dim := x.provider.Dimension()
	if dim <= 0 {
		return fmt.Errorf("semantic: provider reports no dimension")
	}
	return x.client.EnsureCollection(ctx, x.collection, uint64(dim))
}

// IndexEntity embeds a text and stores it under the entity id.
func (x *Index) IndexEntity(ctx context.Context, id, kind, text string) error {
	vectors, err := x.provider.Embed(ctx, []string{text})
	if err != nil {
		return fmt.Errorf("semantic: embed %s: %w", id, err)
	}
	if len(vectors) == 0 {
		return fmt.Errorf("semantic: empty embedding for %s", id)
	}
	return x.client.Upsert(ctx, x.collection, id, vectors[0], map[string]string{
		"kind": kind,
		"text": text,
	})
}

// Forget drops entities from the index. Failures are logged, not
// returned; a stale point is a search-quality problem, not a data one.
func (x *Index) Forget(ctx context.Context, ids ...string) {
	if err := x.client.Delete(ctx, x.collection, ids...); err != nil {
		x.logger.Warn("semantic index delete failed",
			zap.Strings("ids", ids), zap.Error(err))
	}
}

// Similar returns the nearest indexed entities to a query text.
func (x *Index) Similar(ctx context.Context, text string, topK int) ([]*SearchResult, error) {
	vectors, err := x.provider.Embed(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("semantic: embed query: %w", err)
	}
	if len(vectors) == 0 {
		return nil, nil
	}
	return x.client.Search(ctx, x.collection, vectors[0], uint64(topK))
}

// Similarity embeds both texts and returns their cosine similarity
// mapped into [0,1]. It satisfies the lifecycle engine's similarity
// plug-in signature.
func (x *Index) Similarity(ctx context.Context, a, b string) (float64, error) {
	vectors, err := x.provider.Embed(ctx, []string{a, b})
	if err != nil {
		return 0, fmt.Errorf("semantic: embed pair: %w", err)
	}
	if len(vectors) != 2 {
		return 0, fmt.Errorf("semantic: got %d embeddings, want 2", len(vectors))
	}
	cos := cosine(vectors[0], vectors[1])
	return (cos + 1) / 2, nil
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
