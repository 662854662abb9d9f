package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/mainza-ai/graphmind/internal/graph"
	"go.uber.org/zap"
)

// Scope selects which maintenance phases a sweep runs.
type Scope string

const (
	ScopeFull          Scope = "full"
	ScopeLight         Scope = "light"
	ScopeRelationships Scope = "relationships"
	ScopeConcepts      Scope = "concepts"
	ScopeMemories      Scope = "memories"
)

// ValidScope reports whether s names a known maintenance scope.
func ValidScope(s Scope) bool {
	switch s {
	case ScopeFull, ScopeLight, ScopeRelationships, ScopeConcepts, ScopeMemories:
		return true
	}
	return false
}

// MaintenanceReport summarizes one sweep.
type MaintenanceReport struct {
	MaintenanceType  Scope              `json:"maintenance_type"`
	ActionsPerformed []string           `json:"actions_performed"`
	Statistics       map[string]float64 `json:"statistics"`
	TotalActions     int                `json:"total_actions"`
	Timestamp        time.Time          `json:"timestamp"`
}

func (r *MaintenanceReport) add(action string) {
	r.ActionsPerformed = append(r.ActionsPerformed, action)
	r.TotalActions++
}

// MaintenanceStore is the slice of the graph store the sweep needs.
type MaintenanceStore interface {
	WeakRelationships(ctx context.Context, threshold float64, limit int) ([]graph.Relationship, error)
	IdleRelationships(ctx context.Context, cutoff time.Time, limit int) ([]graph.Relationship, error)
	SetRelationshipStrength(ctx context.Context, src, dst, relType string, strength float64) error
	DeleteRelationship(ctx context.Context, src, dst, relType string) error
	ConceptsOverFanout(ctx context.Context, max int, limit int) ([]string, error)
	TrimConceptFanout(ctx context.Context, id string, max int) (int, error)

	IdleConcepts(ctx context.Context, cutoff time.Time, limit int) ([]graph.Concept, error)
	StaleConcepts(ctx context.Context, cutoff time.Time, maxUsage int64, maxImportance float64, limit int) ([]graph.Concept, error)
	ArchiveConcept(ctx context.Context, id string) error
	RemoveConcept(ctx context.Context, id string) error

	IdleMemories(ctx context.Context, cutoff time.Time, limit int) ([]graph.Memory, error)
	LowSignificanceMemories(ctx context.Context, maxSig float64, maxAccess int64, cutoff time.Time, limit int) ([]graph.Memory, error)
	ArchiveMemory(ctx context.Context, id string) error
	RemoveMemory(ctx context.Context, id string) error
	UsersOverMemoryCap(ctx context.Context, cap int, limit int) ([]string, error)
	PruneUserMemories(ctx context.Context, userID string, cap int) ([]string, error)

	Orphans(ctx context.Context, cutoff time.Time, limit int) ([]graph.OrphanRef, error)
	RemoveEntity(ctx context.Context, id string, kind graph.EntityKind) error
	Statistics(ctx context.Context) (graph.Statistics, error)
}

// Maintainer runs the periodic graph-wide sweep. Each phase processes a
// bounded batch per invocation and commits entity by entity, so a sweep
// can be cancelled between batches without corrupting anything and never
// starves interactive updates.
type Maintainer struct {
	store        MaintenanceStore
	calc         *Calculator
	mutator      *Mutator
	consolidator *Consolidator
	forget       Forgetter
	clock        Clock
	tuning       Tuning
	logger       *zap.Logger
}

// SetForgetter installs the index hook invoked after sweep removals.
func (m *Maintainer) SetForgetter(f Forgetter) {
	m.forget = f
}

func (m *Maintainer) forgetEntities(ctx context.Context, ids ...string) {
	if m.forget != nil && len(ids) > 0 {
		m.forget.Forget(ctx, ids...)
	}
}

// NewMaintainer creates a maintenance sweeper.
func NewMaintainer(store MaintenanceStore, calc *Calculator, mutator *Mutator, consolidator *Consolidator, clock Clock, tuning Tuning, logger *zap.Logger) *Maintainer {
	return &Maintainer{
		store:        store,
		calc:         calc,
		mutator:      mutator,
		consolidator: consolidator,
		clock:        clock,
		tuning:       tuning.withDefaults(),
		logger:       logger,
	}
}

// Run executes the phases selected by scope. Failures inside a phase are
// collected, not raised; the returned error is non-nil only when the sweep
// was cancelled.
func (m *Maintainer) Run(ctx context.Context, scope Scope, cons ConsciousnessContext) (*MaintenanceReport, error) {
	cons = cons.Normalized()
	report := &MaintenanceReport{
		MaintenanceType: scope,
		Statistics:      map[string]float64{},
		Timestamp:       m.clock.Now(),
	}

	start := m.clock.Now()
	phases := m.phasesFor(scope)
	for _, phase := range phases {
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("sweep cancelled: %w", err)
		}
		phase(ctx, cons, report)
	}
	m.statisticsPhase(ctx, report)

	m.logger.Info("maintenance sweep complete",
		zap.String("scope", string(scope)),
		zap.Int("actions", report.TotalActions),
		zap.Duration("duration", m.clock.Now().Sub(start)))
	return report, nil
}

type phaseFunc func(ctx context.Context, cons ConsciousnessContext, report *MaintenanceReport)

func (m *Maintainer) phasesFor(scope Scope) []phaseFunc {
	switch scope {
	case ScopeRelationships:
		return []phaseFunc{m.relationshipPhase}
	case ScopeConcepts:
		return []phaseFunc{m.conceptPhase}
	case ScopeMemories:
		return []phaseFunc{m.memoryPhase}
	case ScopeLight:
		return []phaseFunc{m.relationshipPhase, m.orphanPhase}
	default:
		return []phaseFunc{m.relationshipPhase, m.conceptPhase, m.memoryPhase, m.orphanPhase}
	}
}

// effectiveRemovalThreshold raises the pruning bar as consciousness drops,
// so inattentive periods also clear marginal edges. It never goes below the
// base threshold: an edge under the base must not survive a sweep.
func (m *Maintainer) effectiveRemovalThreshold(cons ConsciousnessContext) float64 {
	return m.tuning.RelationshipRemovalThreshold * (1 + 0.5*(1-cons.Level))
}

func (m *Maintainer) relationshipPhase(ctx context.Context, cons ConsciousnessContext, report *MaintenanceReport) {
	threshold := m.effectiveRemovalThreshold(cons)
	now := m.clock.Now()

	weak, err := m.store.WeakRelationships(ctx, threshold, m.tuning.BatchSize)
	if err != nil {
		m.logger.Error("weak relationship scan failed", zap.Error(err))
	}
	for _, rel := range weak {
		if err := m.store.DeleteRelationship(ctx, rel.SourceID, rel.TargetID, rel.Type); err != nil {
			m.logger.Warn("weak edge removal failed",
				zap.String("source", rel.SourceID), zap.String("target", rel.TargetID), zap.Error(err))
			continue
		}
		report.add(fmt.Sprintf("removed weak relationship %s-%s (%.3f)", rel.SourceID, rel.TargetID, rel.Strength))
	}

	cutoff := now.Add(-time.Duration(m.tuning.RelationshipIdleDays*24) * time.Hour)
	idle, err := m.store.IdleRelationships(ctx, cutoff, m.tuning.BatchSize)
	if err != nil {
		m.logger.Error("idle relationship scan failed", zap.Error(err))
	}
	for _, rel := range idle {
		decayed := m.calc.RelationshipDecay(rel.Strength, rel.LastUsed, now)
		if decayed == rel.Strength {
			continue
		}
		if decayed < threshold {
			if err := m.store.DeleteRelationship(ctx, rel.SourceID, rel.TargetID, rel.Type); err != nil {
				m.logger.Warn("idle edge removal failed",
					zap.String("source", rel.SourceID), zap.String("target", rel.TargetID), zap.Error(err))
				continue
			}
			report.add(fmt.Sprintf("removed decayed relationship %s-%s", rel.SourceID, rel.TargetID))
			continue
		}
		if err := m.store.SetRelationshipStrength(ctx, rel.SourceID, rel.TargetID, rel.Type, decayed); err != nil {
			m.logger.Warn("edge decay failed",
				zap.String("source", rel.SourceID), zap.String("target", rel.TargetID), zap.Error(err))
			continue
		}
		report.add(fmt.Sprintf("decayed relationship %s-%s to %.3f", rel.SourceID, rel.TargetID, decayed))
	}

	crowded, err := m.store.ConceptsOverFanout(ctx, m.tuning.MaxRelationshipsPerConcept, m.tuning.BatchSize)
	if err != nil {
		m.logger.Error("fanout scan failed", zap.Error(err))
	}
	for _, id := range crowded {
		trimmed, err := m.store.TrimConceptFanout(ctx, id, m.tuning.MaxRelationshipsPerConcept)
		if err != nil {
			m.logger.Warn("fanout trim failed", zap.String("concept", id), zap.Error(err))
			continue
		}
		report.add(fmt.Sprintf("trimmed %d edges from concept %s", trimmed, id))
	}
}

func (m *Maintainer) conceptPhase(ctx context.Context, cons ConsciousnessContext, report *MaintenanceReport) {
	now := m.clock.Now()

	idleCutoff := now.Add(-time.Duration(m.tuning.ConceptIdleDays*24) * time.Hour)
	idle, err := m.store.IdleConcepts(ctx, idleCutoff, m.tuning.BatchSize)
	if err != nil {
		m.logger.Error("idle concept scan failed", zap.Error(err))
	}
	for _, c := range idle {
		snap := graph.MetricSnapshot{
			EntityID:     c.ID,
			Kind:         graph.KindConcept,
			Found:        true,
			LastAccessed: c.LastAccessed,
			Metrics:      map[string]float64{"importance_score": c.ImportanceScore},
		}
		delta := m.calc.ConceptDecayDelta(snap, now)
		if delta.IsZero() {
			continue
		}
		m.mutator.ApplyConcept(ctx, c.ID, delta)
		report.add(fmt.Sprintf("decayed concept %s by %.4f", c.ID, -delta.Importance))
	}

	staleCutoff := now.Add(-time.Duration(m.tuning.StaleConceptDays*24) * time.Hour)
	stale, err := m.store.StaleConcepts(ctx, staleCutoff, m.tuning.StaleConceptMaxUsage, m.tuning.StaleConceptMaxImportance, m.tuning.BatchSize)
	if err != nil {
		m.logger.Error("stale concept scan failed", zap.Error(err))
	}
	for _, c := range stale {
		if cons.Level > m.tuning.ArchiveGate {
			if err := m.store.ArchiveConcept(ctx, c.ID); err != nil {
				m.logger.Warn("concept archive failed", zap.String("concept", c.ID), zap.Error(err))
				continue
			}
			report.add(fmt.Sprintf("archived stale concept %s", c.ID))
		} else {
			if err := m.store.RemoveConcept(ctx, c.ID); err != nil {
				m.logger.Warn("concept removal failed", zap.String("concept", c.ID), zap.Error(err))
				continue
			}
			m.forgetEntities(ctx, c.ID)
			report.add(fmt.Sprintf("removed stale concept %s", c.ID))
		}
	}

	for _, action := range m.consolidator.Sweep(ctx, graph.KindConcept) {
		report.add(action)
	}
}

func (m *Maintainer) memoryPhase(ctx context.Context, cons ConsciousnessContext, report *MaintenanceReport) {
	now := m.clock.Now()

	idleCutoff := now.Add(-time.Duration(m.tuning.MemoryIdleDays*24) * time.Hour)
	idle, err := m.store.IdleMemories(ctx, idleCutoff, m.tuning.BatchSize)
	if err != nil {
		m.logger.Error("idle memory scan failed", zap.Error(err))
	}
	for _, mem := range idle {
		snap := graph.MetricSnapshot{
			EntityID:     mem.ID,
			Kind:         graph.KindMemory,
			Found:        true,
			LastAccessed: mem.LastAccessed,
			Metrics: map[string]float64{
				"significance_score": mem.SignificanceScore,
				"decay_rate":         mem.DecayRate,
			},
		}
		delta := m.calc.MemoryDecayDelta(snap, now)
		if delta.IsZero() {
			continue
		}
		m.mutator.ApplyMemory(ctx, mem.ID, delta)
		report.add(fmt.Sprintf("decayed memory %s by %.4f", mem.ID, -delta.Significance))
	}

	// System-sourced memories are regenerable, so they are removed outright;
	// anything user-derived is archived instead.
	prunable, err := m.store.LowSignificanceMemories(ctx, m.tuning.MemoryPruneSignificance, m.tuning.MemoryPruneMaxAccess, idleCutoff, m.tuning.BatchSize)
	if err != nil {
		m.logger.Error("low significance scan failed", zap.Error(err))
	}
	for _, mem := range prunable {
		if mem.Source == "system" {
			if err := m.store.RemoveMemory(ctx, mem.ID); err != nil {
				m.logger.Warn("memory removal failed", zap.String("memory", mem.ID), zap.Error(err))
				continue
			}
			m.forgetEntities(ctx, mem.ID)
			report.add(fmt.Sprintf("removed low-significance memory %s", mem.ID))
		} else {
			if err := m.store.ArchiveMemory(ctx, mem.ID); err != nil {
				m.logger.Warn("memory archive failed", zap.String("memory", mem.ID), zap.Error(err))
				continue
			}
			report.add(fmt.Sprintf("archived low-significance memory %s", mem.ID))
		}
	}

	for _, action := range m.consolidator.Sweep(ctx, graph.KindMemory) {
		report.add(action)
	}

	over, err := m.store.UsersOverMemoryCap(ctx, m.tuning.MaxMemoriesPerUser, m.tuning.BatchSize)
	if err != nil {
		m.logger.Error("memory cap scan failed", zap.Error(err))
	}
	for _, userID := range over {
		pruned, err := m.store.PruneUserMemories(ctx, userID, m.tuning.MaxMemoriesPerUser)
		if err != nil {
			m.logger.Warn("memory cap prune failed", zap.String("user", userID), zap.Error(err))
			continue
		}
		m.forgetEntities(ctx, pruned...)
		report.add(fmt.Sprintf("pruned %d memories for user %s", len(pruned), userID))
	}
}

func (m *Maintainer) orphanPhase(ctx context.Context, _ ConsciousnessContext, report *MaintenanceReport) {
	cutoff := m.clock.Now().Add(-time.Duration(m.tuning.OrphanDays*24) * time.Hour)
	orphans, err := m.store.Orphans(ctx, cutoff, m.tuning.BatchSize)
	if err != nil {
		m.logger.Error("orphan scan failed", zap.Error(err))
	}
	for _, o := range orphans {
		if err := m.store.RemoveEntity(ctx, o.ID, o.Kind); err != nil {
			m.logger.Warn("orphan removal failed", zap.String("entity", o.ID), zap.Error(err))
			continue
		}
		m.forgetEntities(ctx, o.ID)
		report.add(fmt.Sprintf("removed orphan %s %s", o.Kind, o.ID))
	}
}

func (m *Maintainer) statisticsPhase(ctx context.Context, report *MaintenanceReport) {
	stats, err := m.store.Statistics(ctx)
	if err != nil {
		m.logger.Error("statistics collection failed", zap.Error(err))
		return
	}

	report.Statistics["concept_count"] = float64(stats.ConceptCount)
	report.Statistics["memory_count"] = float64(stats.MemoryCount)
	report.Statistics["relationship_count"] = float64(stats.RelationshipCount)
	report.Statistics["avg_concept_importance"] = stats.AvgConceptImportance
	report.Statistics["avg_memory_significance"] = stats.AvgMemorySignificance
	report.Statistics["avg_relationship_strength"] = stats.AvgRelationshipStrength
	report.Statistics["graph_health_score"] = HealthScore(stats)
}

// HealthScore blends connectivity, memory coverage, and average quality
// into a single [0,1] indicator:
// 0.3×min(1, rels/(3×concepts)) + 0.3×min(1, mems/(2×concepts)) +
// 0.4×avg(importance, significance, strength).
func HealthScore(stats graph.Statistics) float64 {
	var connectivity, coverage float64
	if stats.ConceptCount > 0 {
		connectivity = float64(stats.RelationshipCount) / (3 * float64(stats.ConceptCount))
		if connectivity > 1 {
			connectivity = 1
		}
		coverage = float64(stats.MemoryCount) / (2 * float64(stats.ConceptCount))
		if coverage > 1 {
			coverage = 1
		}
	}
	quality := (stats.AvgConceptImportance + stats.AvgMemorySignificance + stats.AvgRelationshipStrength) / 3
	return 0.3*connectivity + 0.3*coverage + 0.4*quality
}
