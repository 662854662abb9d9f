package lifecycle

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/mainza-ai/graphmind/internal/graph"
	"go.uber.org/zap"
)

func newMaintainerUnderTest(store *fakeStore) *Maintainer {
	logger := zap.NewNop()
	calc := NewCalculator(Tuning{})
	mutator := NewMutator(store, logger)
	consolidator := NewConsolidator(store, prefixSimilarity, Tuning{}, logger)
	return NewMaintainer(store, calc, mutator, consolidator, fixedClock{testNow}, Tuning{}, logger)
}

func TestStaleConceptArchivedAtHighConsciousness(t *testing.T) {
	store := newFakeStore(testNow)
	store.addConcept(graph.Concept{
		ID: "stale", Name: "forgotten topic",
		ImportanceScore: 0.2, UsageFrequency: 1,
		LastAccessed: testNow.Add(-40 * 24 * time.Hour),
	})
	m := newMaintainerUnderTest(store)

	_, err := m.Run(context.Background(), ScopeConcepts, ConsciousnessContext{Level: 0.9})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	c, ok := store.concepts["stale"]
	if !ok {
		t.Fatal("concept was removed, want archived")
	}
	if !c.Archived {
		t.Error("concept not archived at level 0.9")
	}
}

func TestStaleConceptRemovedAtLowConsciousness(t *testing.T) {
	store := newFakeStore(testNow)
	store.addConcept(graph.Concept{
		ID: "stale", Name: "forgotten topic",
		ImportanceScore: 0.2, UsageFrequency: 1,
		LastAccessed: testNow.Add(-40 * 24 * time.Hour),
	})
	m := newMaintainerUnderTest(store)

	if _, err := m.Run(context.Background(), ScopeConcepts, ConsciousnessContext{Level: 0.4}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, ok := store.concepts["stale"]; ok {
		t.Error("concept survived, want removed at level 0.4")
	}
}

func TestWellUsedConceptIsNotStale(t *testing.T) {
	store := newFakeStore(testNow)
	store.addConcept(graph.Concept{
		ID: "busy", Name: "active topic",
		ImportanceScore: 0.2, UsageFrequency: 10,
		LastAccessed: testNow.Add(-40 * 24 * time.Hour),
	})
	m := newMaintainerUnderTest(store)

	if _, err := m.Run(context.Background(), ScopeConcepts, ConsciousnessContext{Level: 0.4}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if c, ok := store.concepts["busy"]; !ok || c.Archived {
		t.Error("frequently used concept was archived or removed")
	}
}

func TestIdleConceptDecaysDuringSweep(t *testing.T) {
	store := newFakeStore(testNow)
	store.addConcept(graph.Concept{
		ID: "idle", Name: "dusty",
		ImportanceScore: 0.8, UsageFrequency: 50,
		LastAccessed: testNow.Add(-14 * 24 * time.Hour),
	})
	m := newMaintainerUnderTest(store)

	if _, err := m.Run(context.Background(), ScopeConcepts, ConsciousnessContext{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	c := store.concepts["idle"]
	want := 0.8 * math.Pow(0.98, 2)
	if math.Abs(c.ImportanceScore-want) > 1e-9 {
		t.Errorf("importance = %v, want %v after decay", c.ImportanceScore, want)
	}
}

func TestWeakRelationshipsPruned(t *testing.T) {
	store := newFakeStore(testNow)
	store.addRel(graph.Relationship{SourceID: "a", TargetID: "b", Type: "related_to", Strength: 0.02, LastUsed: testNow})
	store.addRel(graph.Relationship{SourceID: "a", TargetID: "c", Type: "related_to", Strength: 0.9, LastUsed: testNow})
	m := newMaintainerUnderTest(store)

	report, err := m.Run(context.Background(), ScopeRelationships, ConsciousnessContext{Level: 0.7})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if store.findRel("a", "b") != nil {
		t.Error("weak edge survived")
	}
	if store.findRel("a", "c") == nil {
		t.Error("strong edge was pruned")
	}
	if report.TotalActions != 1 {
		t.Errorf("total actions = %d, want 1: %v", report.TotalActions, report.ActionsPerformed)
	}
}

func TestSubThresholdEdgeNeverSurvivesSweep(t *testing.T) {
	// The effective bar scales with consciousness but never drops below
	// the base threshold, so an edge under 0.1 is gone after any
	// relationship sweep, however attentive the system is.
	for _, level := range []float64{0.2, 0.7, 0.9, 1.0} {
		store := newFakeStore(testNow)
		store.addRel(graph.Relationship{SourceID: "a", TargetID: "b", Type: "related_to", Strength: 0.08, LastUsed: testNow})
		m := newMaintainerUnderTest(store)

		if _, err := m.Run(context.Background(), ScopeRelationships, ConsciousnessContext{Level: level}); err != nil {
			t.Fatalf("level %v: unexpected error: %v", level, err)
		}
		if store.findRel("a", "b") != nil {
			t.Errorf("level %v: 0.08 edge survived the relationship sweep", level)
		}
	}
}

func TestMarginalEdgePrunedOnlyAtLowConsciousness(t *testing.T) {
	// At level 1.0 the bar sits at the base 0.1, so a 0.12 edge stays;
	// at level 0.2 the bar rises to 0.14 and the same edge goes.
	store := newFakeStore(testNow)
	store.addRel(graph.Relationship{SourceID: "a", TargetID: "b", Type: "related_to", Strength: 0.12, LastUsed: testNow})
	m := newMaintainerUnderTest(store)

	if _, err := m.Run(context.Background(), ScopeRelationships, ConsciousnessContext{Level: 1.0}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.findRel("a", "b") == nil {
		t.Fatal("0.12 edge pruned at level 1.0, want preserved")
	}

	if _, err := m.Run(context.Background(), ScopeRelationships, ConsciousnessContext{Level: 0.2}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.findRel("a", "b") != nil {
		t.Error("0.12 edge survived at level 0.2, want pruned under the raised bar")
	}
}

func TestFanoutTrimKeepsStrongestEdges(t *testing.T) {
	store := newFakeStore(testNow)
	store.addConcept(graph.Concept{ID: "hub", Name: "hub", ImportanceScore: 0.9, LastAccessed: testNow})
	for i := 0; i < 5; i++ {
		store.addRel(graph.Relationship{
			SourceID: "hub", TargetID: string(rune('a' + i)), Type: "related_to",
			Strength: float64(i+1) / 10, LastUsed: testNow,
		})
	}
	logger := zap.NewNop()
	calc := NewCalculator(Tuning{})
	tuning := Tuning{MaxRelationshipsPerConcept: 3}
	m := NewMaintainer(store, calc, NewMutator(store, logger), NewConsolidator(store, prefixSimilarity, tuning, logger), fixedClock{testNow}, tuning, logger)

	if _, err := m.Run(context.Background(), ScopeRelationships, ConsciousnessContext{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if n := store.relCount(); n != 3 {
		t.Fatalf("got %d edges, want 3 after trim", n)
	}
	// The weakest two (0.1, 0.2) must be the ones gone.
	if store.findRel("hub", "a") != nil || store.findRel("hub", "b") != nil {
		t.Error("weakest edges survived the trim")
	}
	if store.findRel("hub", "e") == nil {
		t.Error("strongest edge was trimmed")
	}
}

func TestLowSignificanceMemoryHandling(t *testing.T) {
	store := newFakeStore(testNow)
	old := testNow.Add(-20 * 24 * time.Hour)
	store.addMemory(graph.Memory{ID: "sys", Source: "system", SignificanceScore: 0.05, AccessCount: 1, LastAccessed: old})
	store.addMemory(graph.Memory{ID: "usr", UserID: "u-1", Source: "interaction", SignificanceScore: 0.05, AccessCount: 1, LastAccessed: old})
	m := newMaintainerUnderTest(store)

	if _, err := m.Run(context.Background(), ScopeMemories, ConsciousnessContext{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, ok := store.memories["sys"]; ok {
		t.Error("system memory survived, want removed")
	}
	usr, ok := store.memories["usr"]
	if !ok {
		t.Fatal("user memory removed, want archived")
	}
	if !usr.Archived {
		t.Error("user memory not archived")
	}
}

func TestUserMemoryCapPrunesLowestSignificance(t *testing.T) {
	store := newFakeStore(testNow)
	for i := 0; i < 5; i++ {
		store.addMemory(graph.Memory{
			ID: string(rune('a' + i)), UserID: "u-1", Source: "interaction",
			SignificanceScore: float64(i+1) / 10, AccessCount: 10, LastAccessed: testNow,
		})
	}
	logger := zap.NewNop()
	tuning := Tuning{MaxMemoriesPerUser: 3}
	m := NewMaintainer(store, NewCalculator(Tuning{}), NewMutator(store, logger), NewConsolidator(store, prefixSimilarity, tuning, logger), fixedClock{testNow}, tuning, logger)

	if _, err := m.Run(context.Background(), ScopeMemories, ConsciousnessContext{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if n := len(store.memories); n != 3 {
		t.Fatalf("got %d memories, want 3 after cap prune", n)
	}
	if _, ok := store.memories["a"]; ok {
		t.Error("lowest-significance memory survived the cap")
	}
	if _, ok := store.memories["e"]; !ok {
		t.Error("highest-significance memory was pruned")
	}
}

func TestUserMemoryCapPruneEvictsFromIndex(t *testing.T) {
	store := newFakeStore(testNow)
	for i := 0; i < 5; i++ {
		store.addMemory(graph.Memory{
			ID: string(rune('a' + i)), UserID: "u-1", Source: "interaction",
			SignificanceScore: float64(i+1) / 10, AccessCount: 10, LastAccessed: testNow,
		})
	}
	logger := zap.NewNop()
	tuning := Tuning{MaxMemoriesPerUser: 3}
	m := NewMaintainer(store, NewCalculator(Tuning{}), NewMutator(store, logger), NewConsolidator(store, prefixSimilarity, tuning, logger), fixedClock{testNow}, tuning, logger)
	forgetter := &fakeForgetter{}
	m.SetForgetter(forgetter)

	if _, err := m.Run(context.Background(), ScopeMemories, ConsciousnessContext{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, id := range []string{"a", "b"} {
		if !forgetter.forgot(id) {
			t.Errorf("pruned memory %q was not evicted from the index", id)
		}
	}
	if forgetter.forgot("e") {
		t.Error("kept memory was evicted from the index")
	}
}

func TestRemovalPathsEvictFromIndex(t *testing.T) {
	store := newFakeStore(testNow)
	old := testNow.Add(-40 * 24 * time.Hour)
	store.addConcept(graph.Concept{
		ID: "stale", Name: "forgotten topic",
		ImportanceScore: 0.2, UsageFrequency: 1, LastAccessed: old,
	})
	store.addConcept(graph.Concept{ID: "busy", Name: "active topic", ImportanceScore: 0.9, UsageFrequency: 50, LastAccessed: testNow})
	store.addRel(graph.Relationship{SourceID: "busy", TargetID: "x", Type: "related_to", Strength: 0.9, LastUsed: testNow})
	store.addMemory(graph.Memory{ID: "sys", Source: "system", SignificanceScore: 0.05, AccessCount: 1, LastAccessed: old})
	store.addMemory(graph.Memory{ID: "usr", UserID: "u-1", Source: "interaction", SignificanceScore: 0.05, AccessCount: 1, LastAccessed: old})
	// Keep the archived user memory connected so the orphan phase skips it.
	store.addRel(graph.Relationship{SourceID: "usr", TargetID: "busy", Type: "relates_to", Strength: 0.9, LastUsed: testNow})
	m := newMaintainerUnderTest(store)
	forgetter := &fakeForgetter{}
	m.SetForgetter(forgetter)

	if _, err := m.Run(context.Background(), ScopeFull, ConsciousnessContext{Level: 0.4}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !forgetter.forgot("stale") {
		t.Error("removed stale concept was not evicted from the index")
	}
	if !forgetter.forgot("sys") {
		t.Error("removed system memory was not evicted from the index")
	}
	if forgetter.forgot("busy") {
		t.Error("connected concept was evicted from the index")
	}
	if forgetter.forgot("usr") {
		t.Error("archived user memory was evicted from the index")
	}
}

func TestOrphanRemovalEvictsFromIndex(t *testing.T) {
	store := newFakeStore(testNow)
	store.addConcept(graph.Concept{ID: "island", Name: "island", ImportanceScore: 0.5, LastAccessed: testNow.Add(-10 * 24 * time.Hour)})
	m := newMaintainerUnderTest(store)
	forgetter := &fakeForgetter{}
	m.SetForgetter(forgetter)

	if _, err := m.Run(context.Background(), ScopeLight, ConsciousnessContext{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !forgetter.forgot("island") {
		t.Error("removed orphan was not evicted from the index")
	}
}

func TestOrphansRemoved(t *testing.T) {
	store := newFakeStore(testNow)
	store.addConcept(graph.Concept{ID: "island", Name: "island", ImportanceScore: 0.5, LastAccessed: testNow.Add(-10 * 24 * time.Hour)})
	store.addConcept(graph.Concept{ID: "linked", Name: "linked", ImportanceScore: 0.5, LastAccessed: testNow.Add(-10 * 24 * time.Hour)})
	store.addRel(graph.Relationship{SourceID: "linked", TargetID: "x", Type: "related_to", Strength: 0.9, LastUsed: testNow})
	m := newMaintainerUnderTest(store)

	if _, err := m.Run(context.Background(), ScopeLight, ConsciousnessContext{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, ok := store.concepts["island"]; ok {
		t.Error("orphan concept survived")
	}
	if _, ok := store.concepts["linked"]; !ok {
		t.Error("connected concept was removed")
	}
}

func TestLightScopeSkipsConceptAndMemoryPhases(t *testing.T) {
	store := newFakeStore(testNow)
	store.addConcept(graph.Concept{
		ID: "stale", Name: "stale",
		ImportanceScore: 0.2, UsageFrequency: 1,
		LastAccessed: testNow.Add(-40 * 24 * time.Hour),
	})
	// Keep it connected so the orphan phase leaves it alone.
	store.addRel(graph.Relationship{SourceID: "stale", TargetID: "x", Type: "related_to", Strength: 0.9, LastUsed: testNow})
	m := newMaintainerUnderTest(store)

	if _, err := m.Run(context.Background(), ScopeLight, ConsciousnessContext{Level: 0.4}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, ok := store.concepts["stale"]; !ok {
		t.Error("light sweep removed a stale concept; that belongs to the full sweep")
	}
}

func TestRunCancelledContext(t *testing.T) {
	store := newFakeStore(testNow)
	m := newMaintainerUnderTest(store)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := m.Run(ctx, ScopeFull, ConsciousnessContext{}); err == nil {
		t.Fatal("expected cancellation error")
	}
}

func TestReportCarriesStatistics(t *testing.T) {
	store := newFakeStore(testNow)
	store.addConcept(graph.Concept{ID: "c", Name: "c", ImportanceScore: 0.5, LastAccessed: testNow})
	m := newMaintainerUnderTest(store)

	report, err := m.Run(context.Background(), ScopeFull, ConsciousnessContext{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Statistics["concept_count"] != 1 {
		t.Errorf("concept_count = %v, want 1", report.Statistics["concept_count"])
	}
	if _, ok := report.Statistics["graph_health_score"]; !ok {
		t.Error("report missing graph_health_score")
	}
}

func TestHealthScoreFormula(t *testing.T) {
	stats := graph.Statistics{
		ConceptCount: 10, MemoryCount: 20, RelationshipCount: 30,
		AvgConceptImportance: 0.5, AvgMemorySignificance: 0.5, AvgRelationshipStrength: 0.5,
	}
	got := HealthScore(stats)
	want := 0.3*1 + 0.3*1 + 0.4*0.5
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("health score = %v, want %v", got, want)
	}
}

func TestHealthScoreEmptyGraph(t *testing.T) {
	if got := HealthScore(graph.Statistics{}); got != 0 {
		t.Errorf("health score = %v, want 0 for empty graph", got)
	}
}
