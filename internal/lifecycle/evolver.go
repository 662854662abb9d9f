package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/mainza-ai/graphmind/internal/graph"
	"go.uber.org/zap"
)

// DiscoveredRelType is the semantic type given to edges the evolver creates
// from co-occurrence, as opposed to edges created explicitly by callers.
const DiscoveredRelType = "related_to"

// RelationshipStore is the slice of the graph store the evolver needs.
type RelationshipStore interface {
	RelationshipsFor(ctx context.Context, id string) ([]graph.Relationship, error)
	RelationshipExists(ctx context.Context, a, b string) (bool, error)
	CreateRelationship(ctx context.Context, rel graph.Relationship) error
	StrengthenRelationship(ctx context.Context, src, dst, relType string, boost float64) error
	SetRelationshipStrength(ctx context.Context, src, dst, relType string, strength float64) error
	DeleteRelationship(ctx context.Context, src, dst, relType string) error
}

// Evolver updates edges from co-occurrence signals: edges between
// co-mentioned concepts strengthen, unused edges decay, and edges that
// fall below the removal threshold get pruned.
type Evolver struct {
	store  RelationshipStore
	calc   *Calculator
	clock  Clock
	tuning Tuning
	logger *zap.Logger
}

// NewEvolver creates a relationship evolver.
func NewEvolver(store RelationshipStore, calc *Calculator, clock Clock, tuning Tuning, logger *zap.Logger) *Evolver {
	return &Evolver{
		store:  store,
		calc:   calc,
		clock:  clock,
		tuning: tuning.withDefaults(),
		logger: logger,
	}
}

// Evolve walks every edge touching the interaction's mentioned concepts,
// visiting each edge exactly once: an edge between two mentioned endpoints
// is strengthened a single time per interaction, not once per endpoint.
// A failure on one edge never stops the walk; it is logged and the next
// edge is processed. Returns a description of each action taken.
func (e *Evolver) Evolve(ctx context.Context, inter InteractionContext, cons ConsciousnessContext) []string {
	mentioned := make(map[string]bool, len(inter.ConceptsUsed))
	for _, id := range inter.ConceptsUsed {
		mentioned[id] = true
	}

	now := e.clock.Now()
	seen := map[string]bool{}
	var actions []string

	for _, id := range inter.ConceptsUsed {
		rels, err := e.store.RelationshipsFor(ctx, id)
		if err != nil {
			e.logger.Error("load relationships failed",
				zap.String("entity", id),
				zap.Error(err))
			continue
		}
		for _, rel := range rels {
			key := rel.SourceID + "\x00" + rel.TargetID + "\x00" + rel.Type
			if seen[key] {
				continue
			}
			seen[key] = true
			if action, ok := e.evolveEdge(ctx, rel, mentioned, cons, now); ok {
				actions = append(actions, action)
			}
		}
	}

	return actions
}

func (e *Evolver) evolveEdge(ctx context.Context, rel graph.Relationship, mentioned map[string]bool, cons ConsciousnessContext, now time.Time) (string, bool) {
	if mentioned[rel.SourceID] && mentioned[rel.TargetID] {
		boost := e.tuning.RelationshipBoost * cons.Level
		if err := e.store.StrengthenRelationship(ctx, rel.SourceID, rel.TargetID, rel.Type, boost); err != nil {
			e.logger.Warn("strengthen failed",
				zap.String("source", rel.SourceID),
				zap.String("target", rel.TargetID),
				zap.Error(err))
			return "", false
		}
		return fmt.Sprintf("strengthened %s-%s by %.3f", rel.SourceID, rel.TargetID, boost), true
	}

	decayed := e.calc.RelationshipDecay(rel.Strength, rel.LastUsed, now)
	if decayed == rel.Strength {
		return "", false
	}

	if decayed < e.tuning.RelationshipRemovalThreshold {
		if err := e.store.DeleteRelationship(ctx, rel.SourceID, rel.TargetID, rel.Type); err != nil {
			e.logger.Warn("prune failed",
				zap.String("source", rel.SourceID),
				zap.String("target", rel.TargetID),
				zap.Error(err))
			return "", false
		}
		return fmt.Sprintf("removed weak %s-%s (%.3f)", rel.SourceID, rel.TargetID, decayed), true
	}

	if err := e.store.SetRelationshipStrength(ctx, rel.SourceID, rel.TargetID, rel.Type, decayed); err != nil {
		e.logger.Warn("decay failed",
			zap.String("source", rel.SourceID),
			zap.String("target", rel.TargetID),
			zap.Error(err))
		return "", false
	}
	return fmt.Sprintf("decayed %s-%s to %.3f", rel.SourceID, rel.TargetID, decayed), true
}

// Discover creates edges between concepts co-mentioned in one interaction
// that have no edge yet, seeded by the current consciousness level.
func (e *Evolver) Discover(ctx context.Context, inter InteractionContext, cons ConsciousnessContext) []string {
	var actions []string
	used := inter.ConceptsUsed

	for i := 0; i < len(used); i++ {
		for j := i + 1; j < len(used); j++ {
			a, b := used[i], used[j]
			exists, err := e.store.RelationshipExists(ctx, a, b)
			if err != nil {
				e.logger.Warn("edge lookup failed",
					zap.String("a", a), zap.String("b", b), zap.Error(err))
				continue
			}
			if exists {
				continue
			}

			seed := e.calc.SeedStrength(cons)
			rel := graph.Relationship{
				SourceID:   a,
				TargetID:   b,
				Type:       DiscoveredRelType,
				Strength:   seed,
				UsageCount: 1,
			}
			if err := e.store.CreateRelationship(ctx, rel); err != nil {
				e.logger.Warn("edge creation failed",
					zap.String("a", a), zap.String("b", b), zap.Error(err))
				continue
			}
			actions = append(actions, fmt.Sprintf("discovered %s-%s (seed %.3f)", a, b, seed))
		}
	}

	return actions
}
