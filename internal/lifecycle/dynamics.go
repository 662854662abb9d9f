package lifecycle

import (
	"math"
	"time"

	"github.com/mainza-ai/graphmind/internal/graph"
)

// Calculator turns interaction and consciousness context into score deltas.
// It is pure: all state comes in through the metric snapshot, so the same
// inputs always yield the same delta.
type Calculator struct {
	tuning Tuning
}

// NewCalculator creates a dynamics calculator with the given tuning.
func NewCalculator(tuning Tuning) *Calculator {
	return &Calculator{tuning: tuning.withDefaults()}
}

// mentionBoost is the common boost applied to mentioned entities:
// base × consciousness_level × emotional multiplier.
func (c *Calculator) mentionBoost(cons ConsciousnessContext) float64 {
	return c.tuning.MentionBoostBase * cons.Level * cons.Multiplier()
}

// ConceptDelta computes the delta for one concept. Mentioned concepts get
// an importance boost; concepts idle past the decay window shrink toward
// zero instead. A snapshot with Found=false yields a zero delta.
func (c *Calculator) ConceptDelta(snap graph.MetricSnapshot, inter InteractionContext, cons ConsciousnessContext, now time.Time) graph.ConceptDelta {
	if !snap.Found {
		return graph.ConceptDelta{}
	}

	if inter.MentionsConcept(snap.EntityID, snap.Name) {
		boost := c.mentionBoost(cons)
		return graph.ConceptDelta{
			Importance:    boost,
			Relevance:     0.8 * boost,
			Usage:         1,
			EvolutionRate: c.tuning.EvolutionRateStep,
			Touch:         true,
		}
	}

	return c.ConceptDecayDelta(snap, now)
}

// ConceptDecayDelta computes the pure time-decay delta for an idle concept.
// importance' = importance × rate^(days/idleWindow); the delta is the
// difference, so applying it repeatedly keeps shrinking the score without
// ever reaching zero.
func (c *Calculator) ConceptDecayDelta(snap graph.MetricSnapshot, now time.Time) graph.ConceptDelta {
	if !snap.Found || snap.LastAccessed.IsZero() {
		return graph.ConceptDelta{}
	}

	days := now.Sub(snap.LastAccessed).Hours() / 24
	if days <= c.tuning.ConceptIdleDays {
		return graph.ConceptDelta{}
	}

	importance := snap.Metrics["importance_score"]
	decayed := importance * math.Pow(c.tuning.ConceptDecayRate, days/c.tuning.ConceptIdleDays)
	delta := decayed - importance

	return graph.ConceptDelta{
		Importance: delta,
		Relevance:  delta * 0.5,
	}
}

// MemoryDelta mirrors ConceptDelta for memories: significance instead of
// importance, a longer decay window, and a consolidation bump once the
// memory has been accessed often enough.
func (c *Calculator) MemoryDelta(snap graph.MetricSnapshot, inter InteractionContext, cons ConsciousnessContext, now time.Time) graph.MemoryDelta {
	if !snap.Found {
		return graph.MemoryDelta{}
	}

	if inter.MentionsMemory(snap.EntityID) {
		boost := c.mentionBoost(cons)
		d := graph.MemoryDelta{
			Significance: boost,
			Impact:       0.8 * boost,
			Access:       1,
			Touch:        true,
		}
		if int64(snap.Metrics["access_count"])+1 > c.tuning.ConsolidationAccessThreshold {
			d.Consolidation = c.tuning.ConsolidationStep
		}
		return d
	}

	return c.MemoryDecayDelta(snap, now)
}

// MemoryDecayDelta computes the time-decay delta for an idle memory,
// honoring its per-memory decay_rate when one is set.
func (c *Calculator) MemoryDecayDelta(snap graph.MetricSnapshot, now time.Time) graph.MemoryDelta {
	if !snap.Found || snap.LastAccessed.IsZero() {
		return graph.MemoryDelta{}
	}

	days := now.Sub(snap.LastAccessed).Hours() / 24
	if days <= c.tuning.MemoryIdleDays {
		return graph.MemoryDelta{}
	}

	rate := snap.Metrics["decay_rate"]
	if rate <= 0 || rate >= 1 {
		rate = c.tuning.MemoryDecayRate
	}

	significance := snap.Metrics["significance_score"]
	decayed := significance * math.Pow(rate, days/c.tuning.MemoryIdleDays)
	delta := decayed - significance

	return graph.MemoryDelta{
		Significance: delta,
		Impact:       delta * 0.5,
	}
}

// RelationshipDecay returns the decayed strength of an edge unused for the
// given duration, or the current strength unchanged when the edge is still
// inside its idle window.
func (c *Calculator) RelationshipDecay(strength float64, lastUsed, now time.Time) float64 {
	if lastUsed.IsZero() {
		return strength
	}
	days := now.Sub(lastUsed).Hours() / 24
	if days <= c.tuning.RelationshipIdleDays {
		return strength
	}
	return strength * math.Pow(c.tuning.RelationshipDecayRate, days/c.tuning.RelationshipIdleDays)
}

// SeedStrength is the initial strength for a freshly discovered edge,
// scaled by consciousness level into [seedBase, seedBase+seedSpan].
func (c *Calculator) SeedStrength(cons ConsciousnessContext) float64 {
	s := c.tuning.RelationshipSeedBase + c.tuning.RelationshipSeedSpan*cons.Level
	if s > 1 {
		s = 1
	}
	return s
}
