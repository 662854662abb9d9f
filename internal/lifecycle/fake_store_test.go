package lifecycle

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mainza-ai/graphmind/internal/graph"
)

// fakeStore is an in-memory Store that mirrors the graph layer's
// semantics: clamped scores, Found=false for missing or archived
// entities, nil metrics on not-found updates, orphan filtering on
// creation time.
type fakeStore struct {
	mu       sync.Mutex
	now      time.Time
	concepts map[string]*graph.Concept
	memories map[string]*graph.Memory
	rels     []*graph.Relationship
	created  map[string]time.Time

	errs map[string]error // method name -> injected error
}

func newFakeStore(now time.Time) *fakeStore {
	return &fakeStore{
		now:      now,
		concepts: map[string]*graph.Concept{},
		memories: map[string]*graph.Memory{},
		rels:     nil,
		created:  map[string]time.Time{},
		errs:     map[string]error{},
	}
}

// Entities are considered created at their LastAccessed so tests can
// backdate them; a zero LastAccessed means created now.
func (f *fakeStore) addConcept(c graph.Concept) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := c
	f.concepts[c.ID] = &cp
	f.recordCreatedLocked(c.ID, c.LastAccessed)
}

func (f *fakeStore) addMemory(m graph.Memory) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := m
	f.memories[m.ID] = &cp
	f.recordCreatedLocked(m.ID, m.LastAccessed)
}

func (f *fakeStore) recordCreatedLocked(id string, at time.Time) {
	if at.IsZero() {
		at = f.now
	}
	f.created[id] = at
}

func (f *fakeStore) addRel(r graph.Relationship) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := r
	f.rels = append(f.rels, &cp)
}

func (f *fakeStore) relCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rels)
}

func (f *fakeStore) findRel(a, b string) *graph.Relationship {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rels {
		if (r.SourceID == a && r.TargetID == b) || (r.SourceID == b && r.TargetID == a) {
			cp := *r
			return &cp
		}
	}
	return nil
}

func clamp01(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < 0 {
		return 0
	}
	return v
}

// MetricStore

func (f *fakeStore) ConceptMetrics(_ context.Context, id string) (graph.MetricSnapshot, error) {
	if err := f.errs["ConceptMetrics"]; err != nil {
		return graph.MetricSnapshot{EntityID: id, Kind: graph.KindConcept}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	snap := graph.MetricSnapshot{EntityID: id, Kind: graph.KindConcept, Metrics: map[string]float64{}}
	c, ok := f.concepts[id]
	if !ok || c.Archived {
		return snap, nil
	}
	snap.Found = true
	snap.Name = c.Name
	snap.LastAccessed = c.LastAccessed
	snap.Metrics["importance_score"] = c.ImportanceScore
	snap.Metrics["usage_frequency"] = float64(c.UsageFrequency)
	snap.Metrics["consciousness_relevance"] = c.ConsciousnessRelevance
	snap.Metrics["evolution_rate"] = c.EvolutionRate
	return snap, nil
}

func (f *fakeStore) MemoryMetrics(_ context.Context, id string) (graph.MetricSnapshot, error) {
	if err := f.errs["MemoryMetrics"]; err != nil {
		return graph.MetricSnapshot{EntityID: id, Kind: graph.KindMemory}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	snap := graph.MetricSnapshot{EntityID: id, Kind: graph.KindMemory, Metrics: map[string]float64{}}
	m, ok := f.memories[id]
	if !ok || m.Archived {
		return snap, nil
	}
	snap.Found = true
	snap.LastAccessed = m.LastAccessed
	snap.Metrics["significance_score"] = m.SignificanceScore
	snap.Metrics["access_count"] = float64(m.AccessCount)
	snap.Metrics["consolidation_score"] = m.ConsolidationScore
	snap.Metrics["consciousness_impact"] = m.ConsciousnessImpact
	snap.Metrics["decay_rate"] = m.DecayRate
	return snap, nil
}

func (f *fakeStore) ApplyConceptDelta(_ context.Context, id string, d graph.ConceptDelta) (map[string]float64, error) {
	if err := f.errs["ApplyConceptDelta"]; err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	c, ok := f.concepts[id]
	if !ok || c.Archived {
		return nil, nil
	}
	c.ImportanceScore = clamp01(c.ImportanceScore + d.Importance)
	c.ConsciousnessRelevance = clamp01(c.ConsciousnessRelevance + d.Relevance)
	c.EvolutionRate = clamp01(c.EvolutionRate + d.EvolutionRate)
	c.UsageFrequency += d.Usage
	if d.Touch {
		c.LastAccessed = f.now
	}
	return map[string]float64{
		"importance_score":        c.ImportanceScore,
		"usage_frequency":         float64(c.UsageFrequency),
		"consciousness_relevance": c.ConsciousnessRelevance,
		"evolution_rate":          c.EvolutionRate,
	}, nil
}

func (f *fakeStore) ApplyMemoryDelta(_ context.Context, id string, d graph.MemoryDelta) (map[string]float64, error) {
	if err := f.errs["ApplyMemoryDelta"]; err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	m, ok := f.memories[id]
	if !ok || m.Archived {
		return nil, nil
	}
	m.SignificanceScore = clamp01(m.SignificanceScore + d.Significance)
	m.ConsciousnessImpact = clamp01(m.ConsciousnessImpact + d.Impact)
	m.ConsolidationScore = clamp01(m.ConsolidationScore + d.Consolidation)
	m.AccessCount += d.Access
	if d.Touch {
		m.LastAccessed = f.now
	}
	return map[string]float64{
		"significance_score":   m.SignificanceScore,
		"access_count":         float64(m.AccessCount),
		"consolidation_score":  m.ConsolidationScore,
		"consciousness_impact": m.ConsciousnessImpact,
		"decay_rate":           m.DecayRate,
	}, nil
}

// RelationshipStore

func (f *fakeStore) RelationshipsFor(_ context.Context, id string) ([]graph.Relationship, error) {
	if err := f.errs["RelationshipsFor"]; err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []graph.Relationship
	for _, r := range f.rels {
		if r.SourceID == id || r.TargetID == id {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeStore) RelationshipExists(_ context.Context, a, b string) (bool, error) {
	if err := f.errs["RelationshipExists"]; err != nil {
		return false, err
	}
	return f.findRel(a, b) != nil, nil
}

func (f *fakeStore) CreateRelationship(_ context.Context, rel graph.Relationship) error {
	if err := f.errs["CreateRelationship"]; err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := rel
	if cp.LastUsed.IsZero() {
		cp.LastUsed = f.now
	}
	f.rels = append(f.rels, &cp)
	return nil
}

func (f *fakeStore) StrengthenRelationship(_ context.Context, src, dst, relType string, boost float64) error {
	if err := f.errs["StrengthenRelationship"]; err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rels {
		if r.SourceID == src && r.TargetID == dst && r.Type == relType {
			r.Strength = clamp01(r.Strength + boost)
			r.UsageCount++
			r.LastUsed = f.now
		}
	}
	return nil
}

func (f *fakeStore) SetRelationshipStrength(_ context.Context, src, dst, relType string, strength float64) error {
	if err := f.errs["SetRelationshipStrength"]; err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rels {
		if r.SourceID == src && r.TargetID == dst && r.Type == relType {
			r.Strength = clamp01(strength)
		}
	}
	return nil
}

func (f *fakeStore) DeleteRelationship(_ context.Context, src, dst, relType string) error {
	if err := f.errs["DeleteRelationship"]; err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.rels[:0]
	for _, r := range f.rels {
		if r.SourceID == src && r.TargetID == dst && r.Type == relType {
			continue
		}
		kept = append(kept, r)
	}
	f.rels = kept
	return nil
}

// ConsolidationStore

func (f *fakeStore) ActiveConcepts(_ context.Context, limit int) ([]graph.Concept, error) {
	if err := f.errs["ActiveConcepts"]; err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []graph.Concept
	for _, c := range f.concepts {
		if !c.Archived {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ImportanceScore > out[j].ImportanceScore })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) ActiveMemories(_ context.Context, limit int) ([]graph.Memory, error) {
	if err := f.errs["ActiveMemories"]; err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []graph.Memory
	for _, m := range f.memories {
		if !m.Archived {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SignificanceScore > out[j].SignificanceScore })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) RepointRelationships(_ context.Context, fromID, toID string) (int, error) {
	if err := f.errs["RepointRelationships"]; err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	moved := 0
	for _, r := range f.rels {
		if r.SourceID == fromID {
			r.SourceID = toID
			moved++
		}
		if r.TargetID == fromID {
			r.TargetID = toID
			moved++
		}
	}
	return moved, nil
}

func (f *fakeStore) RemoveConcept(_ context.Context, id string) error {
	if err := f.errs["RemoveConcept"]; err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.concepts, id)
	delete(f.created, id)
	f.detachLocked(id)
	return nil
}

func (f *fakeStore) RemoveMemory(_ context.Context, id string) error {
	if err := f.errs["RemoveMemory"]; err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.memories, id)
	delete(f.created, id)
	f.detachLocked(id)
	return nil
}

func (f *fakeStore) detachLocked(id string) {
	kept := f.rels[:0]
	for _, r := range f.rels {
		if r.SourceID == id || r.TargetID == id {
			continue
		}
		kept = append(kept, r)
	}
	f.rels = kept
}

// MaintenanceStore

func (f *fakeStore) WeakRelationships(_ context.Context, threshold float64, limit int) ([]graph.Relationship, error) {
	if err := f.errs["WeakRelationships"]; err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []graph.Relationship
	for _, r := range f.rels {
		if r.Strength < threshold {
			out = append(out, *r)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeStore) IdleRelationships(_ context.Context, cutoff time.Time, limit int) ([]graph.Relationship, error) {
	if err := f.errs["IdleRelationships"]; err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []graph.Relationship
	for _, r := range f.rels {
		if !r.LastUsed.IsZero() && r.LastUsed.Before(cutoff) {
			out = append(out, *r)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeStore) ConceptsOverFanout(_ context.Context, max int, limit int) ([]string, error) {
	if err := f.errs["ConceptsOverFanout"]; err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	counts := map[string]int{}
	for _, r := range f.rels {
		counts[r.SourceID]++
		counts[r.TargetID]++
	}
	var out []string
	for id, n := range counts {
		if _, ok := f.concepts[id]; ok && n > max {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) TrimConceptFanout(_ context.Context, id string, max int) (int, error) {
	if err := f.errs["TrimConceptFanout"]; err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	var mine []*graph.Relationship
	for _, r := range f.rels {
		if r.SourceID == id || r.TargetID == id {
			mine = append(mine, r)
		}
	}
	if len(mine) <= max {
		return 0, nil
	}
	sort.Slice(mine, func(i, j int) bool { return mine[i].Strength > mine[j].Strength })
	doomed := map[*graph.Relationship]bool{}
	for _, r := range mine[max:] {
		doomed[r] = true
	}
	kept := f.rels[:0]
	for _, r := range f.rels {
		if doomed[r] {
			continue
		}
		kept = append(kept, r)
	}
	f.rels = kept
	return len(doomed), nil
}

func (f *fakeStore) IdleConcepts(_ context.Context, cutoff time.Time, limit int) ([]graph.Concept, error) {
	if err := f.errs["IdleConcepts"]; err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []graph.Concept
	for _, c := range f.concepts {
		if !c.Archived && !c.LastAccessed.IsZero() && c.LastAccessed.Before(cutoff) {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastAccessed.Before(out[j].LastAccessed) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) StaleConcepts(_ context.Context, cutoff time.Time, maxUsage int64, maxImportance float64, limit int) ([]graph.Concept, error) {
	if err := f.errs["StaleConcepts"]; err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []graph.Concept
	for _, c := range f.concepts {
		if c.Archived || c.LastAccessed.IsZero() || !c.LastAccessed.Before(cutoff) {
			continue
		}
		if c.UsageFrequency < maxUsage && c.ImportanceScore < maxImportance {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ImportanceScore < out[j].ImportanceScore })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) ArchiveConcept(_ context.Context, id string) error {
	if err := f.errs["ArchiveConcept"]; err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.concepts[id]; ok {
		c.Archived = true
	}
	return nil
}

func (f *fakeStore) IdleMemories(_ context.Context, cutoff time.Time, limit int) ([]graph.Memory, error) {
	if err := f.errs["IdleMemories"]; err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []graph.Memory
	for _, m := range f.memories {
		if !m.Archived && !m.LastAccessed.IsZero() && m.LastAccessed.Before(cutoff) {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastAccessed.Before(out[j].LastAccessed) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) LowSignificanceMemories(_ context.Context, maxSig float64, maxAccess int64, cutoff time.Time, limit int) ([]graph.Memory, error) {
	if err := f.errs["LowSignificanceMemories"]; err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []graph.Memory
	for _, m := range f.memories {
		if m.Archived || m.LastAccessed.IsZero() || !m.LastAccessed.Before(cutoff) {
			continue
		}
		if m.SignificanceScore < maxSig && m.AccessCount < maxAccess {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SignificanceScore < out[j].SignificanceScore })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) ArchiveMemory(_ context.Context, id string) error {
	if err := f.errs["ArchiveMemory"]; err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := f.memories[id]; ok {
		m.Archived = true
	}
	return nil
}

func (f *fakeStore) UsersOverMemoryCap(_ context.Context, cap int, limit int) ([]string, error) {
	if err := f.errs["UsersOverMemoryCap"]; err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	counts := map[string]int{}
	for _, m := range f.memories {
		if !m.Archived && m.UserID != "" {
			counts[m.UserID]++
		}
	}
	var out []string
	for user, n := range counts {
		if n > cap {
			out = append(out, user)
		}
	}
	sort.Strings(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) PruneUserMemories(_ context.Context, userID string, cap int) ([]string, error) {
	if err := f.errs["PruneUserMemories"]; err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	var mine []*graph.Memory
	for _, m := range f.memories {
		if !m.Archived && m.UserID == userID {
			mine = append(mine, m)
		}
	}
	if len(mine) <= cap {
		return nil, nil
	}
	sort.Slice(mine, func(i, j int) bool { return mine[i].SignificanceScore > mine[j].SignificanceScore })
	var pruned []string
	for _, m := range mine[cap:] {
		delete(f.memories, m.ID)
		delete(f.created, m.ID)
		f.detachLocked(m.ID)
		pruned = append(pruned, m.ID)
	}
	return pruned, nil
}

func (f *fakeStore) Orphans(_ context.Context, cutoff time.Time, limit int) ([]graph.OrphanRef, error) {
	if err := f.errs["Orphans"]; err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	// Matches the store: entities with no edges left, created before the
	// cutoff, archived or not.
	connected := map[string]bool{}
	for _, r := range f.rels {
		connected[r.SourceID] = true
		connected[r.TargetID] = true
	}
	var out []graph.OrphanRef
	for id := range f.concepts {
		if !connected[id] && f.created[id].Before(cutoff) {
			out = append(out, graph.OrphanRef{ID: id, Kind: graph.KindConcept})
		}
	}
	for id := range f.memories {
		if !connected[id] && f.created[id].Before(cutoff) {
			out = append(out, graph.OrphanRef{ID: id, Kind: graph.KindMemory})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) RemoveEntity(ctx context.Context, id string, kind graph.EntityKind) error {
	if err := f.errs["RemoveEntity"]; err != nil {
		return err
	}
	if kind == graph.KindMemory {
		return f.RemoveMemory(ctx, id)
	}
	return f.RemoveConcept(ctx, id)
}

func (f *fakeStore) Statistics(_ context.Context) (graph.Statistics, error) {
	if err := f.errs["Statistics"]; err != nil {
		return graph.Statistics{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	var stats graph.Statistics
	var impSum, sigSum, strSum float64
	for _, c := range f.concepts {
		if c.Archived {
			continue
		}
		stats.ConceptCount++
		impSum += c.ImportanceScore
	}
	for _, m := range f.memories {
		if m.Archived {
			continue
		}
		stats.MemoryCount++
		sigSum += m.SignificanceScore
	}
	for _, r := range f.rels {
		stats.RelationshipCount++
		strSum += r.Strength
	}
	if stats.ConceptCount > 0 {
		stats.AvgConceptImportance = impSum / float64(stats.ConceptCount)
	}
	if stats.MemoryCount > 0 {
		stats.AvgMemorySignificance = sigSum / float64(stats.MemoryCount)
	}
	if stats.RelationshipCount > 0 {
		stats.AvgRelationshipStrength = strSum / float64(stats.RelationshipCount)
	}
	return stats, nil
}

// fixedClock pins Now for deterministic decay math.
type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

// fakeForgetter records index evictions.
type fakeForgetter struct {
	mu  sync.Mutex
	ids []string
}

func (f *fakeForgetter) Forget(_ context.Context, ids ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = append(f.ids, ids...)
}

func (f *fakeForgetter) forgot(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, got := range f.ids {
		if got == id {
			return true
		}
	}
	return false
}
