package lifecycle

import (
	"context"
	"fmt"

	"github.com/mainza-ai/graphmind/internal/graph"
	"go.uber.org/zap"
)

// SimilarityFunc scores how alike two texts are, in [0,1]. The engine wires
// an embedding-backed implementation when one is configured and falls back
// to lexical token overlap otherwise, so consolidation quality can improve
// without touching this package.
type SimilarityFunc func(ctx context.Context, a, b string) (float64, error)

// ConsolidationStore is the slice of the graph store consolidation needs.
type ConsolidationStore interface {
	ActiveConcepts(ctx context.Context, limit int) ([]graph.Concept, error)
	ActiveMemories(ctx context.Context, limit int) ([]graph.Memory, error)
	RepointRelationships(ctx context.Context, fromID, toID string) (int, error)
	RemoveConcept(ctx context.Context, id string) error
	RemoveMemory(ctx context.Context, id string) error
}

// MergeCandidate is one entity considered for consolidation.
type MergeCandidate struct {
	ID     string
	Text   string
	Weight float64 // importance or significance, decides the primary
	Kind   graph.EntityKind
}

// Consolidator merges near-duplicate entities: the primary keeps its id,
// every other member's edges are re-pointed onto it with provenance tags,
// and the duplicates are removed.
type Consolidator struct {
	store      ConsolidationStore
	similarity SimilarityFunc
	forget     Forgetter
	tuning     Tuning
	logger     *zap.Logger
}

// SetForgetter installs the index hook invoked after a duplicate is removed.
func (c *Consolidator) SetForgetter(f Forgetter) {
	c.forget = f
}

// NewConsolidator creates a consolidation engine.
func NewConsolidator(store ConsolidationStore, similarity SimilarityFunc, tuning Tuning, logger *zap.Logger) *Consolidator {
	return &Consolidator{
		store:      store,
		similarity: similarity,
		tuning:     tuning.withDefaults(),
		logger:     logger,
	}
}

// FindSimilarGroups loads active entities of one kind and greedily groups
// those whose texts exceed the similarity threshold. Only groups with at
// least two members are returned.
func (c *Consolidator) FindSimilarGroups(ctx context.Context, kind graph.EntityKind) ([][]MergeCandidate, error) {
	cands, err := c.loadCandidates(ctx, kind)
	if err != nil {
		return nil, err
	}
	return c.groupCandidates(ctx, cands), nil
}

func (c *Consolidator) loadCandidates(ctx context.Context, kind graph.EntityKind) ([]MergeCandidate, error) {
	switch kind {
	case graph.KindMemory:
		memories, err := c.store.ActiveMemories(ctx, c.tuning.BatchSize)
		if err != nil {
			return nil, fmt.Errorf("load memory candidates: %w", err)
		}
		cands := make([]MergeCandidate, 0, len(memories))
		for _, m := range memories {
			cands = append(cands, MergeCandidate{
				ID:     m.ID,
				Text:   m.Content,
				Weight: m.SignificanceScore,
				Kind:   graph.KindMemory,
			})
		}
		return cands, nil
	default:
		concepts, err := c.store.ActiveConcepts(ctx, c.tuning.BatchSize)
		if err != nil {
			return nil, fmt.Errorf("load concept candidates: %w", err)
		}
		cands := make([]MergeCandidate, 0, len(concepts))
		for _, con := range concepts {
			cands = append(cands, MergeCandidate{
				ID:     con.ID,
				Text:   con.Name,
				Weight: con.ImportanceScore,
				Kind:   graph.KindConcept,
			})
		}
		return cands, nil
	}
}

// groupCandidates does a single greedy pass: each unassigned candidate
// seeds a group and pulls in everything similar enough.
func (c *Consolidator) groupCandidates(ctx context.Context, cands []MergeCandidate) [][]MergeCandidate {
	assigned := make(map[string]bool, len(cands))
	var groups [][]MergeCandidate

	for i, seed := range cands {
		if assigned[seed.ID] || seed.Text == "" {
			continue
		}
		group := []MergeCandidate{seed}
		assigned[seed.ID] = true

		for _, other := range cands[i+1:] {
			if assigned[other.ID] || other.Text == "" {
				continue
			}
			score, err := c.similarity(ctx, seed.Text, other.Text)
			if err != nil {
				c.logger.Warn("similarity failed",
					zap.String("a", seed.ID), zap.String("b", other.ID), zap.Error(err))
				continue
			}
			if score >= c.tuning.ConsolidationThreshold {
				group = append(group, other)
				assigned[other.ID] = true
			}
		}

		if len(group) > 1 {
			groups = append(groups, group)
		}
	}

	return groups
}

// Consolidate merges one group. The highest-weight member becomes the
// primary; the rest have their edges re-pointed and are then removed.
// Per-member failures are logged and skipped so one bad row never loses
// the whole merge.
func (c *Consolidator) Consolidate(ctx context.Context, group []MergeCandidate) (string, []string) {
	if len(group) < 2 {
		return "", nil
	}

	primary := group[0]
	for _, cand := range group[1:] {
		if cand.Weight > primary.Weight {
			primary = cand
		}
	}

	var actions []string
	for _, cand := range group {
		if cand.ID == primary.ID {
			continue
		}

		moved, err := c.store.RepointRelationships(ctx, cand.ID, primary.ID)
		if err != nil {
			c.logger.Warn("repoint failed",
				zap.String("duplicate", cand.ID),
				zap.String("primary", primary.ID),
				zap.Error(err))
			continue
		}

		var removeErr error
		switch cand.Kind {
		case graph.KindMemory:
			removeErr = c.store.RemoveMemory(ctx, cand.ID)
		default:
			removeErr = c.store.RemoveConcept(ctx, cand.ID)
		}
		if removeErr != nil {
			c.logger.Warn("duplicate removal failed",
				zap.String("duplicate", cand.ID), zap.Error(removeErr))
			continue
		}
		if c.forget != nil {
			c.forget.Forget(ctx, cand.ID)
		}

		actions = append(actions, fmt.Sprintf("merged %s into %s (%d edges moved)", cand.ID, primary.ID, moved))
	}

	return primary.ID, actions
}

// Sweep runs a full find-and-merge pass for one kind and returns the
// actions taken.
func (c *Consolidator) Sweep(ctx context.Context, kind graph.EntityKind) []string {
	groups, err := c.FindSimilarGroups(ctx, kind)
	if err != nil {
		c.logger.Error("consolidation scan failed",
			zap.String("kind", string(kind)), zap.Error(err))
		return nil
	}

	var actions []string
	for _, group := range groups {
		_, merged := c.Consolidate(ctx, group)
		actions = append(actions, merged...)
	}
	return actions
}

// CheckCandidates merges near-duplicates inside an explicit candidate set.
// The engine uses this for the opportunistic check after an interaction,
// bounded to the entities that interaction touched.
func (c *Consolidator) CheckCandidates(ctx context.Context, cands []MergeCandidate) []string {
	var actions []string
	for _, group := range c.groupCandidates(ctx, cands) {
		_, merged := c.Consolidate(ctx, group)
		actions = append(actions, merged...)
	}
	return actions
}
