package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateConcept creates a concept node. Missing ids are generated.
func (s *Store) CreateConcept(ctx context.Context, c *Concept) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	_, err := s.Write(ctx,
		`CREATE (c:Concept {
			id: $id, name: $name, description: $desc,
			importance_score: $importance, usage_frequency: $usage,
			consciousness_relevance: $relevance, evolution_rate: $evolution,
			archived: false, created_at: datetime(), last_accessed: datetime()
		})`,
		map[string]interface{}{
			"id":         c.ID,
			"name":       c.Name,
			"desc":       c.Description,
			"importance": c.ImportanceScore,
			"usage":      c.UsageFrequency,
			"relevance":  c.ConsciousnessRelevance,
			"evolution":  c.EvolutionRate,
		})
	if err != nil {
		return fmt.Errorf("create concept %s: %w", c.ID, err)
	}
	return nil
}

// ConceptMetrics reads the current scalar metrics for one concept.
// A missing or archived concept yields Found=false, never an error.
func (s *Store) ConceptMetrics(ctx context.Context, id string) (MetricSnapshot, error) {
	snap := MetricSnapshot{EntityID: id, Kind: KindConcept, Metrics: map[string]float64{}}

	rows, err := s.Query(ctx,
		`MATCH (c:Concept {id: $id})
		 WHERE coalesce(c.archived, false) = false
		 RETURN c.name AS name,
		        c.importance_score AS importance_score,
		        c.usage_frequency AS usage_frequency,
		        c.consciousness_relevance AS consciousness_relevance,
		        c.evolution_rate AS evolution_rate,
		        c.last_accessed AS last_accessed`,
		map[string]interface{}{"id": id})
	if err != nil {
		return snap, fmt.Errorf("concept metrics %s: %w", id, err)
	}
	if len(rows) == 0 {
		return snap, nil
	}

	row := rows[0]
	snap.Found = true
	snap.Name = rowString(row, "name")
	snap.Metrics["importance_score"] = rowFloat(row, "importance_score")
	snap.Metrics["usage_frequency"] = rowFloat(row, "usage_frequency")
	snap.Metrics["consciousness_relevance"] = rowFloat(row, "consciousness_relevance")
	snap.Metrics["evolution_rate"] = rowFloat(row, "evolution_rate")
	snap.LastAccessed = rowTime(row, "last_accessed")
	return snap, nil
}

// ApplyConceptDelta commits a delta in one atomic read-modify-write and
// returns the post-update metrics. Scores are clamped to [0,1] inside
// the statement so concurrent writers can never push them out of range.
func (s *Store) ApplyConceptDelta(ctx context.Context, id string, d ConceptDelta) (map[string]float64, error) {
	rows, err := s.Write(ctx,
		`MATCH (c:Concept {id: $id})
		 WHERE coalesce(c.archived, false) = false
		 SET c.importance_score = CASE
		       WHEN c.importance_score + $imp > 1.0 THEN 1.0
		       WHEN c.importance_score + $imp < 0.0 THEN 0.0
		       ELSE c.importance_score + $imp END,
		     c.consciousness_relevance = CASE
		       WHEN c.consciousness_relevance + $rel > 1.0 THEN 1.0
		       WHEN c.consciousness_relevance + $rel < 0.0 THEN 0.0
		       ELSE c.consciousness_relevance + $rel END,
		     c.evolution_rate = CASE
		       WHEN c.evolution_rate + $evo < 0.0 THEN 0.0
		       ELSE c.evolution_rate + $evo END,
		     c.usage_frequency = c.usage_frequency + $usage,
		     c.last_accessed = CASE WHEN $touch THEN datetime() ELSE c.last_accessed END
		 RETURN c.importance_score AS importance_score,
		        c.usage_frequency AS usage_frequency,
		        c.consciousness_relevance AS consciousness_relevance,
		        c.evolution_rate AS evolution_rate`,
		map[string]interface{}{
			"id":    id,
			"imp":   d.Importance,
			"rel":   d.Relevance,
			"evo":   d.EvolutionRate,
			"usage": d.Usage,
			"touch": d.Touch,
		})
	if err != nil {
		return nil, fmt.Errorf("apply concept delta %s: %w", id, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	row := rows[0]
	return map[string]float64{
		"importance_score":        rowFloat(row, "importance_score"),
		"usage_frequency":         rowFloat(row, "usage_frequency"),
		"consciousness_relevance": rowFloat(row, "consciousness_relevance"),
		"evolution_rate":          rowFloat(row, "evolution_rate"),
	}, nil
}

// IdleConcepts returns active concepts not accessed since the cutoff.
func (s *Store) IdleConcepts(ctx context.Context, cutoff time.Time, limit int) ([]Concept, error) {
	rows, err := s.Query(ctx,
		`MATCH (c:Concept)
		 WHERE coalesce(c.archived, false) = false
		   AND c.last_accessed < datetime($cutoff)
		 RETURN c.id AS id, c.name AS name,
		        c.importance_score AS importance_score,
		        c.usage_frequency AS usage_frequency,
		        c.last_accessed AS last_accessed
		 ORDER BY c.last_accessed LIMIT $limit`,
		map[string]interface{}{"cutoff": cutoff, "limit": limit})
	if err != nil {
		return nil, fmt.Errorf("idle concepts: %w", err)
	}
	return conceptsFromRows(rows), nil
}

// StaleConcepts returns unused concepts eligible for archive or removal:
// idle since the cutoff, usage below maxUsage, importance below maxImportance.
func (s *Store) StaleConcepts(ctx context.Context, cutoff time.Time, maxUsage int64, maxImportance float64, limit int) ([]Concept, error) {
	rows, err := s.Query(ctx,
		`MATCH (c:Concept)
		 WHERE coalesce(c.archived, false) = false
		   AND c.last_accessed < datetime($cutoff)
		   AND c.usage_frequency < $maxUsage
		   AND c.importance_score < $maxImportance
		 RETURN c.id AS id, c.name AS name,
		        c.importance_score AS importance_score,
		        c.usage_frequency AS usage_frequency,
		        c.last_accessed AS last_accessed
		 ORDER BY c.importance_score LIMIT $limit`,
		map[string]interface{}{
			"cutoff":        cutoff,
			"maxUsage":      maxUsage,
			"maxImportance": maxImportance,
			"limit":         limit,
		})
	if err != nil {
		return nil, fmt.Errorf("stale concepts: %w", err)
	}
	return conceptsFromRows(rows), nil
}

// ActiveConcepts lists non-archived concepts for consolidation scans.
func (s *Store) ActiveConcepts(ctx context.Context, limit int) ([]Concept, error) {
	rows, err := s.Query(ctx,
		`MATCH (c:Concept)
		 WHERE coalesce(c.archived, false) = false
		 RETURN c.id AS id, c.name AS name, c.description AS description,
		        c.importance_score AS importance_score,
		        c.usage_frequency AS usage_frequency,
		        c.last_accessed AS last_accessed
		 ORDER BY c.importance_score DESC LIMIT $limit`,
		map[string]interface{}{"limit": limit})
	if err != nil {
		return nil, fmt.Errorf("active concepts: %w", err)
	}
	return conceptsFromRows(rows), nil
}

// ArchiveConcept marks a concept archived. Archived concepts drop out of
// active retrieval but stay in the graph for audit.
func (s *Store) ArchiveConcept(ctx context.Context, id string) error {
	_, err := s.Write(ctx,
		`MATCH (c:Concept {id: $id}) SET c.archived = true`,
		map[string]interface{}{"id": id})
	if err != nil {
		return fmt.Errorf("archive concept %s: %w", id, err)
	}
	return nil
}

// RemoveConcept hard-deletes a concept together with its incident edges.
func (s *Store) RemoveConcept(ctx context.Context, id string) error {
	_, err := s.Write(ctx,
		`MATCH (c:Concept {id: $id}) DETACH DELETE c`,
		map[string]interface{}{"id": id})
	if err != nil {
		return fmt.Errorf("remove concept %s: %w", id, err)
	}
	return nil
}

func conceptsFromRows(rows []map[string]interface{}) []Concept {
	concepts := make([]Concept, 0, len(rows))
	for _, row := range rows {
		concepts = append(concepts, Concept{
			ID:              rowString(row, "id"),
			Name:            rowString(row, "name"),
			Description:     rowString(row, "description"),
			ImportanceScore: rowFloat(row, "importance_score"),
			UsageFrequency:  rowInt(row, "usage_frequency"),
			LastAccessed:    rowTime(row, "last_accessed"),
		})
	}
	return concepts
}
