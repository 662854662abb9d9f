package lifecycle

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/mainza-ai/graphmind/internal/graph"
	"go.uber.org/zap"
)

// Store is everything the engine needs from the graph layer. *graph.Store
// satisfies it; tests inject an in-memory fake.
type Store interface {
	MetricStore
	RelationshipStore
	ConsolidationStore
	MaintenanceStore
}

// SweepObserver receives interaction ticks and finished sweep reports.
// The Redis coordinator implements it; absent one, observations are dropped.
type SweepObserver interface {
	NoteInteraction(ctx context.Context)
	PublishReport(ctx context.Context, report *MaintenanceReport)
}

// Forgetter evicts entities from a secondary index once they leave the
// graph, so removed or merged-away entities stop steering similarity
// search. The semantic index implements it.
type Forgetter interface {
	Forget(ctx context.Context, ids ...string)
}

// UpdateResult is the per-entity outcome of one interaction update.
type UpdateResult struct {
	EntityID       string             `json:"entity_id"`
	Kind           graph.EntityKind   `json:"kind"`
	UpdatesApplied []string           `json:"updates_applied"`
	NewMetrics     map[string]float64 `json:"new_metrics"`
	Timestamp      time.Time          `json:"timestamp"`
}

// consolidateEvery bounds how often the opportunistic post-interaction
// merge check runs.
const consolidateEvery = 10

// Engine is the knowledge-graph lifecycle service. It owns no entity
// state; everything lives in the injected store, addressed by id, which
// keeps concurrent updates safe and the engine itself stateless apart
// from the interaction counter.
type Engine struct {
	store        Store
	calc         *Calculator
	mutator      *Mutator
	evolver      *Evolver
	consolidator *Consolidator
	maintainer   *Maintainer
	recorder     EventRecorder
	observer     SweepObserver
	clock        Clock
	tuning       Tuning
	logger       *zap.Logger

	interactions atomic.Int64
}

// NewEngine wires the lifecycle components around one store. similarity
// decides consolidation quality; pass the lexical analyzer's or an
// embedding-backed one.
func NewEngine(store Store, similarity SimilarityFunc, tuning Tuning, clock Clock, logger *zap.Logger) *Engine {
	tuning = tuning.withDefaults()
	if clock == nil {
		clock = SystemClock()
	}

	calc := NewCalculator(tuning)
	mutator := NewMutator(store, logger)
	consolidator := NewConsolidator(store, similarity, tuning, logger)

	return &Engine{
		store:        store,
		calc:         calc,
		mutator:      mutator,
		evolver:      NewEvolver(store, calc, clock, tuning, logger),
		consolidator: consolidator,
		maintainer:   NewMaintainer(store, calc, mutator, consolidator, clock, tuning, logger),
		recorder:     NopRecorder{},
		clock:        clock,
		tuning:       tuning,
		logger:       logger,
	}
}

// SetRecorder installs an audit recorder.
func (e *Engine) SetRecorder(r EventRecorder) {
	if r != nil {
		e.recorder = r
	}
}

// SetObserver installs a sweep observer.
func (e *Engine) SetObserver(o SweepObserver) {
	e.observer = o
}

// SetForgetter installs the index eviction hook on every removal path:
// consolidation merges, stale pruning, orphan cleanup, user-cap prunes.
func (e *Engine) SetForgetter(f Forgetter) {
	e.consolidator.SetForgetter(f)
	e.maintainer.SetForgetter(f)
}

// ConceptMetrics exposes the metrics reader for one concept.
func (e *Engine) ConceptMetrics(ctx context.Context, id string) (graph.MetricSnapshot, error) {
	return e.store.ConceptMetrics(ctx, id)
}

// MemoryMetrics exposes the metrics reader for one memory.
func (e *Engine) MemoryMetrics(ctx context.Context, id string) (graph.MetricSnapshot, error) {
	return e.store.MemoryMetrics(ctx, id)
}

// Statistics returns current graph-wide counts and averages.
func (e *Engine) Statistics(ctx context.Context) (graph.Statistics, error) {
	return e.store.Statistics(ctx)
}

// ProcessInteraction runs the full interactive flow: read metrics, compute
// deltas, commit, evolve edges, discover new ones, then an opportunistic
// consolidation check. Every entity is handled independently; one failing
// entity never blocks the rest, and store failures degrade to empty
// results per the engine's no-op-on-failure contract.
func (e *Engine) ProcessInteraction(ctx context.Context, inter InteractionContext, cons ConsciousnessContext) []UpdateResult {
	cons = cons.Normalized()
	now := e.clock.Now()

	var results []UpdateResult
	var candidates []MergeCandidate

	for _, id := range inter.ConceptsUsed {
		result := UpdateResult{EntityID: id, Kind: graph.KindConcept, NewMetrics: map[string]float64{}, Timestamp: now}

		snap, err := e.store.ConceptMetrics(ctx, id)
		if err != nil {
			e.logger.Error("concept read failed", zap.String("concept", id), zap.Error(err))
			results = append(results, result)
			continue
		}
		if !snap.Found {
			e.logger.Warn("concept not found", zap.String("concept", id))
			results = append(results, result)
			continue
		}

		delta := e.calc.ConceptDelta(snap, inter, cons, now)
		result.NewMetrics = e.mutator.ApplyConcept(ctx, id, delta)
		result.UpdatesApplied = describeConceptDelta(delta)

		e.recorder.Record(ctx, e.newEvent(id, graph.KindConcept, EventUpdate, result.UpdatesApplied, cons))
		results = append(results, result)

		candidates = append(candidates, MergeCandidate{
			ID:     id,
			Text:   snap.Name,
			Weight: snap.Metrics["importance_score"],
			Kind:   graph.KindConcept,
		})
	}

	for _, id := range inter.RelevantMemories {
		result := UpdateResult{EntityID: id, Kind: graph.KindMemory, NewMetrics: map[string]float64{}, Timestamp: now}

		snap, err := e.store.MemoryMetrics(ctx, id)
		if err != nil {
			e.logger.Error("memory read failed", zap.String("memory", id), zap.Error(err))
			results = append(results, result)
			continue
		}
		if !snap.Found {
			e.logger.Warn("memory not found", zap.String("memory", id))
			results = append(results, result)
			continue
		}

		delta := e.calc.MemoryDelta(snap, inter, cons, now)
		result.NewMetrics = e.mutator.ApplyMemory(ctx, id, delta)
		result.UpdatesApplied = describeMemoryDelta(delta)

		e.recorder.Record(ctx, e.newEvent(id, graph.KindMemory, EventUpdate, result.UpdatesApplied, cons))
		results = append(results, result)
	}

	// Edges evolve once per interaction, over the deduplicated edge set of
	// all mentioned concepts, so a shared edge gets a single boost.
	if evolved := e.evolver.Evolve(ctx, inter, cons); len(evolved) > 0 {
		e.recorder.Record(ctx, e.newEvent("", graph.KindRelationship, EventEvolution, evolved, cons))
	}
	if discovered := e.evolver.Discover(ctx, inter, cons); len(discovered) > 0 {
		e.recorder.Record(ctx, e.newEvent("", graph.KindRelationship, EventEvolution, discovered, cons))
	}

	if e.interactions.Add(1)%consolidateEvery == 0 && len(candidates) > 1 {
		if merged := e.consolidator.CheckCandidates(ctx, candidates); len(merged) > 0 {
			e.recorder.Record(ctx, e.newEvent("", graph.KindConcept, EventEvolution, merged, cons))
		}
	}

	if e.observer != nil {
		e.observer.NoteInteraction(ctx)
	}

	return results
}

// RunMaintenance executes one sweep and records and publishes its report.
func (e *Engine) RunMaintenance(ctx context.Context, scope Scope, cons ConsciousnessContext) (*MaintenanceReport, error) {
	report, err := e.maintainer.Run(ctx, scope, cons)

	if report != nil && report.TotalActions > 0 {
		e.recorder.Record(ctx, e.newEvent("", "", EventMaintenance, report.ActionsPerformed, cons.Normalized()))
	}
	if e.observer != nil && report != nil {
		e.observer.PublishReport(ctx, report)
	}

	return report, err
}

func (e *Engine) newEvent(entityID string, kind graph.EntityKind, typ EventType, actions []string, cons ConsciousnessContext) Event {
	return Event{
		ID:                 uuid.New().String(),
		EntityID:           entityID,
		EntityKind:         kind,
		Type:               typ,
		Actions:            actions,
		ConsciousnessLevel: cons.Level,
		EmotionalState:     cons.EmotionalState,
		ActiveGoals:        cons.ActiveGoals,
		Timestamp:          e.clock.Now(),
	}
}

func describeConceptDelta(d graph.ConceptDelta) []string {
	if d.IsZero() {
		return nil
	}
	var actions []string
	if d.Importance != 0 {
		actions = append(actions, fmt.Sprintf("importance %+.4f", d.Importance))
	}
	if d.Relevance != 0 {
		actions = append(actions, fmt.Sprintf("relevance %+.4f", d.Relevance))
	}
	if d.Usage != 0 {
		actions = append(actions, fmt.Sprintf("usage %+d", d.Usage))
	}
	if d.EvolutionRate != 0 {
		actions = append(actions, fmt.Sprintf("evolution_rate %+.3f", d.EvolutionRate))
	}
	return actions
}

func describeMemoryDelta(d graph.MemoryDelta) []string {
	if d.IsZero() {
		return nil
	}
	var actions []string
	if d.Significance != 0 {
		actions = append(actions, fmt.Sprintf("significance %+.4f", d.Significance))
	}
	if d.Impact != 0 {
		actions = append(actions, fmt.Sprintf("impact %+.4f", d.Impact))
	}
	if d.Consolidation != 0 {
		actions = append(actions, fmt.Sprintf("consolidation %+.2f", d.Consolidation))
	}
	if d.Access != 0 {
		actions = append(actions, fmt.Sprintf("access %+d", d.Access))
	}
	return actions
}
