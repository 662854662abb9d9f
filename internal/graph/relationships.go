package graph

import (
	"context"
	"fmt"
	"time"
)

// Edges are stored as directed :RELATES_TO relationships carrying their
// semantic kind in a `type` property, so new kinds never require schema work.

// CreateRelationship creates an edge between two entities, seeded with the
// given strength. Existing edges of the same type are left untouched.
func (s *Store) CreateRelationship(ctx context.Context, rel Relationship) error {
	_, err := s.Write(ctx,
		`MATCH (a {id: $src}), (b {id: $dst})
		 MERGE (a)-[r:RELATES_TO {type: $type}]->(b)
		 ON CREATE SET r.strength = $strength, r.usage_count = $usage,
		               r.last_used = datetime(), r.created_at = datetime()`,
		map[string]interface{}{
			"src":      rel.SourceID,
			"dst":      rel.TargetID,
			"type":     rel.Type,
			"strength": rel.Strength,
			"usage":    rel.UsageCount,
		})
	if err != nil {
		return fmt.Errorf("create relationship %s->%s: %w", rel.SourceID, rel.TargetID, err)
	}
	return nil
}

// RelationshipsFor returns every edge touching the entity, in either direction.
func (s *Store) RelationshipsFor(ctx context.Context, id string) ([]Relationship, error) {
	rows, err := s.Query(ctx,
		`MATCH (a {id: $id})-[r:RELATES_TO]-(b)
		 RETURN startNode(r).id AS source_id, endNode(r).id AS target_id,
		        r.type AS type, r.strength AS strength,
		        r.usage_count AS usage_count, r.last_used AS last_used`,
		map[string]interface{}{"id": id})
	if err != nil {
		return nil, fmt.Errorf("relationships for %s: %w", id, err)
	}
	return relationshipsFromRows(rows), nil
}

// RelationshipExists reports whether any edge connects the two entities.
func (s *Store) RelationshipExists(ctx context.Context, a, b string) (bool, error) {
	rows, err := s.Query(ctx,
		`MATCH ({id: $a})-[r:RELATES_TO]-({id: $b})
		 RETURN count(r) AS total`,
		map[string]interface{}{"a": a, "b": b})
	if err != nil {
		return false, fmt.Errorf("relationship exists %s-%s: %w", a, b, err)
	}
	return len(rows) > 0 && rowInt(rows[0], "total") > 0, nil
}

// StrengthenRelationship boosts an edge's strength, capped at 1.0, and
// bumps its usage counters in the same statement.
func (s *Store) StrengthenRelationship(ctx context.Context, src, dst, relType string, boost float64) error {
	_, err := s.Write(ctx,
		`MATCH ({id: $src})-[r:RELATES_TO {type: $type}]-({id: $dst})
		 SET r.strength = CASE
		       WHEN r.strength + $boost > 1.0 THEN 1.0
		       ELSE r.strength + $boost END,
		     r.usage_count = coalesce(r.usage_count, 0) + 1,
		     r.last_used = datetime()`,
		map[string]interface{}{"src": src, "dst": dst, "type": relType, "boost": boost})
	if err != nil {
		return fmt.Errorf("strengthen %s-%s: %w", src, dst, err)
	}
	return nil
}

// SetRelationshipStrength persists a recomputed strength, clamped to [0,1].
func (s *Store) SetRelationshipStrength(ctx context.Context, src, dst, relType string, strength float64) error {
	if strength < 0 {
		strength = 0
	}
	if strength > 1 {
		strength = 1
	}
	_, err := s.Write(ctx,
		`MATCH ({id: $src})-[r:RELATES_TO {type: $type}]-({id: $dst})
		 SET r.strength = $strength`,
		map[string]interface{}{"src": src, "dst": dst, "type": relType, "strength": strength})
	if err != nil {
		return fmt.Errorf("set strength %s-%s: %w", src, dst, err)
	}
	return nil
}

// DeleteRelationship removes the edge between two entities.
func (s *Store) DeleteRelationship(ctx context.Context, src, dst, relType string) error {
	_, err := s.Write(ctx,
		`MATCH ({id: $src})-[r:RELATES_TO {type: $type}]-({id: $dst})
		 DELETE r`,
		map[string]interface{}{"src": src, "dst": dst, "type": relType})
	if err != nil {
		return fmt.Errorf("delete relationship %s-%s: %w", src, dst, err)
	}
	return nil
}

// WeakRelationships returns edges whose strength fell below the threshold.
func (s *Store) WeakRelationships(ctx context.Context, threshold float64, limit int) ([]Relationship, error) {
	rows, err := s.Query(ctx,
		`MATCH (a)-[r:RELATES_TO]->(b)
		 WHERE r.strength < $threshold
		 RETURN a.id AS source_id, b.id AS target_id, r.type AS type,
		        r.strength AS strength, r.usage_count AS usage_count,
		        r.last_used AS last_used
		 ORDER BY r.strength LIMIT $limit`,
		map[string]interface{}{"threshold": threshold, "limit": limit})
	if err != nil {
		return nil, fmt.Errorf("weak relationships: %w", err)
	}
	return relationshipsFromRows(rows), nil
}

// IdleRelationships returns edges unused since the cutoff.
func (s *Store) IdleRelationships(ctx context.Context, cutoff time.Time, limit int) ([]Relationship, error) {
	rows, err := s.Query(ctx,
		`MATCH (a)-[r:RELATES_TO]->(b)
		 WHERE r.last_used < datetime($cutoff)
		 RETURN a.id AS source_id, b.id AS target_id, r.type AS type,
		        r.strength AS strength, r.usage_count AS usage_count,
		        r.last_used AS last_used
		 ORDER BY r.last_used LIMIT $limit`,
		map[string]interface{}{"cutoff": cutoff, "limit": limit})
	if err != nil {
		return nil, fmt.Errorf("idle relationships: %w", err)
	}
	return relationshipsFromRows(rows), nil
}

// ConceptsOverFanout returns ids of concepts carrying more than max edges.
func (s *Store) ConceptsOverFanout(ctx context.Context, max int, limit int) ([]string, error) {
	rows, err := s.Query(ctx,
		`MATCH (c:Concept)-[r:RELATES_TO]-()
		 WITH c, count(r) AS fanout
		 WHERE fanout > $max
		 RETURN c.id AS id ORDER BY fanout DESC LIMIT $limit`,
		map[string]interface{}{"max": max, "limit": limit})
	if err != nil {
		return nil, fmt.Errorf("concepts over fanout: %w", err)
	}

	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, rowString(row, "id"))
	}
	return ids, nil
}

// TrimConceptFanout deletes a concept's weakest edges beyond the cap,
// keeping exactly the max highest-strength ones. Returns how many were cut.
func (s *Store) TrimConceptFanout(ctx context.Context, id string, max int) (int, error) {
	rows, err := s.Write(ctx,
		`MATCH (c:Concept {id: $id})-[r:RELATES_TO]-()
		 WITH r ORDER BY r.strength DESC
		 WITH collect(r) AS edges
		 UNWIND edges[$max..] AS victim
		 DELETE victim
		 RETURN count(victim) AS trimmed`,
		map[string]interface{}{"id": id, "max": max})
	if err != nil {
		return 0, fmt.Errorf("trim fanout %s: %w", id, err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return int(rowInt(rows[0], "trimmed")), nil
}

// RepointRelationships moves every edge of fromID onto toID, tagging the
// new edges with their provenance. Used by consolidation before the
// duplicate entity is removed.
func (s *Store) RepointRelationships(ctx context.Context, fromID, toID string) (int, error) {
	moved := 0

	outgoing, err := s.Write(ctx,
		`MATCH (dup {id: $from})-[r:RELATES_TO]->(other)
		 WHERE other.id <> $to
		 MATCH (primary {id: $to})
		 MERGE (primary)-[nr:RELATES_TO {type: r.type}]->(other)
		 ON CREATE SET nr.strength = r.strength,
		               nr.usage_count = coalesce(r.usage_count, 0),
		               nr.last_used = coalesce(r.last_used, datetime()),
		               nr.merged_from = $from
		 ON MATCH SET nr.strength = CASE
		       WHEN r.strength > nr.strength THEN r.strength
		       ELSE nr.strength END
		 DELETE r
		 RETURN count(nr) AS moved`,
		map[string]interface{}{"from": fromID, "to": toID})
	if err != nil {
		return 0, fmt.Errorf("repoint outgoing %s->%s: %w", fromID, toID, err)
	}
	if len(outgoing) > 0 {
		moved += int(rowInt(outgoing[0], "moved"))
	}

	incoming, err := s.Write(ctx,
		`MATCH (other)-[r:RELATES_TO]->(dup {id: $from})
		 WHERE other.id <> $to
		 MATCH (primary {id: $to})
		 MERGE (other)-[nr:RELATES_TO {type: r.type}]->(primary)
		 ON CREATE SET nr.strength = r.strength,
		               nr.usage_count = coalesce(r.usage_count, 0),
		               nr.last_used = coalesce(r.last_used, datetime()),
		               nr.merged_from = $from
		 ON MATCH SET nr.strength = CASE
		       WHEN r.strength > nr.strength THEN r.strength
		       ELSE nr.strength END
		 DELETE r
		 RETURN count(nr) AS moved`,
		map[string]interface{}{"from": fromID, "to": toID})
	if err != nil {
		return moved, fmt.Errorf("repoint incoming %s->%s: %w", fromID, toID, err)
	}
	if len(incoming) > 0 {
		moved += int(rowInt(incoming[0], "moved"))
	}

	return moved, nil
}

// Orphans returns entities with no relationships left, created before the
// cutoff. Fresh entities are spared so a just-created node is not swept
// before its first edge arrives.
func (s *Store) Orphans(ctx context.Context, cutoff time.Time, limit int) ([]OrphanRef, error) {
	rows, err := s.Query(ctx,
		`MATCH (n)
		 WHERE (n:Concept OR n:Memory)
		   AND NOT (n)--()
		   AND n.created_at < datetime($cutoff)
		 RETURN n.id AS id, labels(n)[0] AS label LIMIT $limit`,
		map[string]interface{}{"cutoff": cutoff, "limit": limit})
	if err != nil {
		return nil, fmt.Errorf("orphans: %w", err)
	}

	orphans := make([]OrphanRef, 0, len(rows))
	for _, row := range rows {
		kind := KindConcept
		if rowString(row, "label") == "Memory" {
			kind = KindMemory
		}
		orphans = append(orphans, OrphanRef{ID: rowString(row, "id"), Kind: kind})
	}
	return orphans, nil
}

// RemoveEntity hard-deletes any entity by id, edges included.
func (s *Store) RemoveEntity(ctx context.Context, id string, kind EntityKind) error {
	switch kind {
	case KindMemory:
		return s.RemoveMemory(ctx, id)
	default:
		return s.RemoveConcept(ctx, id)
	}
}

// Statistics gathers graph-wide counts and averages for the health score.
func (s *Store) Statistics(ctx context.Context) (Statistics, error) {
	var stats Statistics

	rows, err := s.Query(ctx,
		`MATCH (c:Concept) WHERE coalesce(c.archived, false) = false
		 RETURN count(c) AS total, coalesce(avg(c.importance_score), 0.0) AS average`,
		nil)
	if err != nil {
		return stats, fmt.Errorf("concept statistics: %w", err)
	}
	if len(rows) > 0 {
		stats.ConceptCount = rowInt(rows[0], "total")
		stats.AvgConceptImportance = rowFloat(rows[0], "average")
	}

	rows, err = s.Query(ctx,
		`MATCH (m:Memory) WHERE coalesce(m.archived, false) = false
		 RETURN count(m) AS total, coalesce(avg(m.significance_score), 0.0) AS average`,
		nil)
	if err != nil {
		return stats, fmt.Errorf("memory statistics: %w", err)
	}
	if len(rows) > 0 {
		stats.MemoryCount = rowInt(rows[0], "total")
		stats.AvgMemorySignificance = rowFloat(rows[0], "average")
	}

	rows, err = s.Query(ctx,
		`MATCH ()-[r:RELATES_TO]->()
		 RETURN count(r) AS total, coalesce(avg(r.strength), 0.0) AS average`,
		nil)
	if err != nil {
		return stats, fmt.Errorf("relationship statistics: %w", err)
	}
	if len(rows) > 0 {
		stats.RelationshipCount = rowInt(rows[0], "total")
		stats.AvgRelationshipStrength = rowFloat(rows[0], "average")
	}

	return stats, nil
}

func relationshipsFromRows(rows []map[string]interface{}) []Relationship {
	rels := make([]Relationship, 0, len(rows))
	for _, row := range rows {
		rels = append(rels, Relationship{
			SourceID:   rowString(row, "source_id"),
			TargetID:   rowString(row, "target_id"),
			Type:       rowString(row, "type"),
			Strength:   rowFloat(row, "strength"),
			UsageCount: rowInt(row, "usage_count"),
			LastUsed:   rowTime(row, "last_used"),
		})
	}
	return rels
}
