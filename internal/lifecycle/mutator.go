package lifecycle

import (
	"context"

	"github.com/mainza-ai/graphmind/internal/graph"
	"go.uber.org/zap"
)

// MetricStore is the slice of the graph store the mutator and the metrics
// reader need: snapshot reads plus atomic delta application.
type MetricStore interface {
	ConceptMetrics(ctx context.Context, id string) (graph.MetricSnapshot, error)
	MemoryMetrics(ctx context.Context, id string) (graph.MetricSnapshot, error)
	ApplyConceptDelta(ctx context.Context, id string, d graph.ConceptDelta) (map[string]float64, error)
	ApplyMemoryDelta(ctx context.Context, id string, d graph.MemoryDelta) (map[string]float64, error)
}

// Mutator commits deltas against the store. Store failures are logged and
// surface as an empty snapshot; callers treat that as a no-op, never as a
// hard failure.
type Mutator struct {
	store  MetricStore
	logger *zap.Logger
}

// NewMutator creates a mutator.
func NewMutator(store MetricStore, logger *zap.Logger) *Mutator {
	return &Mutator{store: store, logger: logger}
}

// ApplyConcept commits a concept delta and returns the post-update metrics.
func (m *Mutator) ApplyConcept(ctx context.Context, id string, d graph.ConceptDelta) map[string]float64 {
	if d.IsZero() {
		return map[string]float64{}
	}
	metrics, err := m.store.ApplyConceptDelta(ctx, id, d)
	if err != nil {
		m.logger.Error("concept delta failed",
			zap.String("concept", id),
			zap.Error(err))
		return map[string]float64{}
	}
	if metrics == nil {
		m.logger.Warn("concept not found for update", zap.String("concept", id))
		return map[string]float64{}
	}
	return metrics
}

// ApplyMemory commits a memory delta and returns the post-update metrics.
func (m *Mutator) ApplyMemory(ctx context.Context, id string, d graph.MemoryDelta) map[string]float64 {
	if d.IsZero() {
		return map[string]float64{}
	}
	metrics, err := m.store.ApplyMemoryDelta(ctx, id, d)
	if err != nil {
		m.logger.Error("memory delta failed",
			zap.String("memory", id),
			zap.Error(err))
		return map[string]float64{}
	}
	if metrics == nil {
		m.logger.Warn("memory not found for update", zap.String("memory", id))
		return map[string]float64{}
	}
	return metrics
}
