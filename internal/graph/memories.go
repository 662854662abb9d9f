package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateMemory creates a memory node. Missing ids are generated.
func (s *Store) CreateMemory(ctx context.Context, m *Memory) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	_, err := s.Write(ctx,
		`CREATE (m:Memory {
			id: $id, user_id: $userId, content: $content, source: $source,
			significance_score: $significance, access_count: $access,
			consolidation_score: $consolidation, consciousness_impact: $impact,
			decay_rate: $decay, archived: false,
			created_at: datetime(), last_accessed: datetime()
		})`,
		map[string]interface{}{
			"id":            m.ID,
			"userId":        m.UserID,
			"content":       m.Content,
			"source":        m.Source,
			"significance":  m.SignificanceScore,
			"access":        m.AccessCount,
			"consolidation": m.ConsolidationScore,
			"impact":        m.ConsciousnessImpact,
			"decay":         m.DecayRate,
		})
	if err != nil {
		return fmt.Errorf("create memory %s: %w", m.ID, err)
	}
	return nil
}

// MemoryMetrics reads the current scalar metrics for one memory.
// A missing or archived memory yields Found=false, never an error.
func (s *Store) MemoryMetrics(ctx context.Context, id string) (MetricSnapshot, error) {
	snap := MetricSnapshot{EntityID: id, Kind: KindMemory, Metrics: map[string]float64{}}

	rows, err := s.Query(ctx,
		`MATCH (m:Memory {id: $id})
		 WHERE coalesce(m.archived, false) = false
		 RETURN m.significance_score AS significance_score,
		        m.access_count AS access_count,
		        m.consolidation_score AS consolidation_score,
		        m.consciousness_impact AS consciousness_impact,
		        m.decay_rate AS decay_rate,
		        m.last_accessed AS last_accessed`,
		map[string]interface{}{"id": id})
	if err != nil {
		return snap, fmt.Errorf("memory metrics %s: %w", id, err)
	}
	if len(rows) == 0 {
		return snap, nil
	}

	row := rows[0]
	snap.Found = true
	snap.Metrics["significance_score"] = rowFloat(row, "significance_score")
	snap.Metrics["access_count"] = rowFloat(row, "access_count")
	snap.Metrics["consolidation_score"] = rowFloat(row, "consolidation_score")
	snap.Metrics["consciousness_impact"] = rowFloat(row, "consciousness_impact")
	snap.Metrics["decay_rate"] = rowFloat(row, "decay_rate")
	snap.LastAccessed = rowTime(row, "last_accessed")
	return snap, nil
}

// ApplyMemoryDelta commits a delta in one atomic read-modify-write and
// returns the post-update metrics, clamped to [0,1] inside the statement.
func (s *Store) ApplyMemoryDelta(ctx context.Context, id string, d MemoryDelta) (map[string]float64, error) {
	rows, err := s.Write(ctx,
		`MATCH (m:Memory {id: $id})
		 WHERE coalesce(m.archived, false) = false
		 SET m.significance_score = CASE
		       WHEN m.significance_score + $sig > 1.0 THEN 1.0
		       WHEN m.significance_score + $sig < 0.0 THEN 0.0
		       ELSE m.significance_score + $sig END,
		     m.consciousness_impact = CASE
		       WHEN m.consciousness_impact + $impact > 1.0 THEN 1.0
		       WHEN m.consciousness_impact + $impact < 0.0 THEN 0.0
		       ELSE m.consciousness_impact + $impact END,
		     m.consolidation_score = CASE
		       WHEN m.consolidation_score + $consolidation > 1.0 THEN 1.0
		       WHEN m.consolidation_score + $consolidation < 0.0 THEN 0.0
		       ELSE m.consolidation_score + $consolidation END,
		     m.access_count = m.access_count + $access,
		     m.last_accessed = CASE WHEN $touch THEN datetime() ELSE m.last_accessed END
		 RETURN m.significance_score AS significance_score,
		        m.access_count AS access_count,
		        m.consolidation_score AS consolidation_score,
		        m.consciousness_impact AS consciousness_impact,
		        m.decay_rate AS decay_rate`,
		map[string]interface{}{
			"id":            id,
			"sig":           d.Significance,
			"impact":        d.Impact,
			"consolidation": d.Consolidation,
			"access":        d.Access,
			"touch":         d.Touch,
		})
	if err != nil {
		return nil, fmt.Errorf("apply memory delta %s: %w", id, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	row := rows[0]
	return map[string]float64{
		"significance_score":   rowFloat(row, "significance_score"),
		"access_count":         rowFloat(row, "access_count"),
		"consolidation_score":  rowFloat(row, "consolidation_score"),
		"consciousness_impact": rowFloat(row, "consciousness_impact"),
		"decay_rate":           rowFloat(row, "decay_rate"),
	}, nil
}

// IdleMemories returns active memories not accessed since the cutoff.
func (s *Store) IdleMemories(ctx context.Context, cutoff time.Time, limit int) ([]Memory, error) {
	rows, err := s.Query(ctx,
		`MATCH (m:Memory)
		 WHERE coalesce(m.archived, false) = false
		   AND m.last_accessed < datetime($cutoff)
		 RETURN m.id AS id, m.user_id AS user_id, m.source AS source,
		        m.significance_score AS significance_score,
		        m.access_count AS access_count,
		        m.decay_rate AS decay_rate,
		        m.last_accessed AS last_accessed
		 ORDER BY m.last_accessed LIMIT $limit`,
		map[string]interface{}{"cutoff": cutoff, "limit": limit})
	if err != nil {
		return nil, fmt.Errorf("idle memories: %w", err)
	}
	return memoriesFromRows(rows), nil
}

// LowSignificanceMemories returns prune candidates: significance below
// maxSig, access count below maxAccess, idle since the cutoff.
func (s *Store) LowSignificanceMemories(ctx context.Context, maxSig float64, maxAccess int64, cutoff time.Time, limit int) ([]Memory, error) {
	rows, err := s.Query(ctx,
		`MATCH (m:Memory)
		 WHERE coalesce(m.archived, false) = false
		   AND m.significance_score < $maxSig
		   AND m.access_count < $maxAccess
		   AND m.last_accessed < datetime($cutoff)
		 RETURN m.id AS id, m.user_id AS user_id, m.source AS source,
		        m.significance_score AS significance_score,
		        m.access_count AS access_count,
		        m.last_accessed AS last_accessed
		 ORDER BY m.significance_score LIMIT $limit`,
		map[string]interface{}{
			"maxSig":    maxSig,
			"maxAccess": maxAccess,
			"cutoff":    cutoff,
			"limit":     limit,
		})
	if err != nil {
		return nil, fmt.Errorf("low significance memories: %w", err)
	}
	return memoriesFromRows(rows), nil
}

// ActiveMemories lists non-archived memories for consolidation scans.
func (s *Store) ActiveMemories(ctx context.Context, limit int) ([]Memory, error) {
	rows, err := s.Query(ctx,
		`MATCH (m:Memory)
		 WHERE coalesce(m.archived, false) = false
		 RETURN m.id AS id, m.user_id AS user_id, m.content AS content,
		        m.source AS source,
		        m.significance_score AS significance_score,
		        m.access_count AS access_count,
		        m.last_accessed AS last_accessed
		 ORDER BY m.significance_score DESC LIMIT $limit`,
		map[string]interface{}{"limit": limit})
	if err != nil {
		return nil, fmt.Errorf("active memories: %w", err)
	}
	return memoriesFromRows(rows), nil
}

// UsersOverMemoryCap returns user ids holding more than cap active memories.
func (s *Store) UsersOverMemoryCap(ctx context.Context, cap int, limit int) ([]string, error) {
	rows, err := s.Query(ctx,
		`MATCH (m:Memory)
		 WHERE coalesce(m.archived, false) = false AND m.user_id <> ''
		 WITH m.user_id AS user_id, count(m) AS total
		 WHERE total > $cap
		 RETURN user_id ORDER BY total DESC LIMIT $limit`,
		map[string]interface{}{"cap": cap, "limit": limit})
	if err != nil {
		return nil, fmt.Errorf("users over memory cap: %w", err)
	}

	users := make([]string, 0, len(rows))
	for _, row := range rows {
		users = append(users, rowString(row, "user_id"))
	}
	return users, nil
}

// PruneUserMemories deletes the lowest-significance memories of one user
// until only cap remain. Returns the ids it deleted so callers can evict
// them from secondary indexes.
func (s *Store) PruneUserMemories(ctx context.Context, userID string, cap int) ([]string, error) {
	rows, err := s.Write(ctx,
		`MATCH (m:Memory {user_id: $userId})
		 WHERE coalesce(m.archived, false) = false
		 WITH m ORDER BY m.significance_score DESC
		 WITH collect(m) AS all
		 UNWIND all[$cap..] AS victim
		 WITH victim, victim.id AS id
		 DETACH DELETE victim
		 RETURN id`,
		map[string]interface{}{"userId": userID, "cap": cap})
	if err != nil {
		return nil, fmt.Errorf("prune memories for %s: %w", userID, err)
	}

	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, rowString(row, "id"))
	}
	return ids, nil
}

// ArchiveMemory marks a memory archived.
func (s *Store) ArchiveMemory(ctx context.Context, id string) error {
	_, err := s.Write(ctx,
		`MATCH (m:Memory {id: $id}) SET m.archived = true`,
		map[string]interface{}{"id": id})
	if err != nil {
		return fmt.Errorf("archive memory %s: %w", id, err)
	}
	return nil
}

// RemoveMemory hard-deletes a memory together with its incident edges.
func (s *Store) RemoveMemory(ctx context.Context, id string) error {
	_, err := s.Write(ctx,
		`MATCH (m:Memory {id: $id}) DETACH DELETE m`,
		map[string]interface{}{"id": id})
	if err != nil {
		return fmt.Errorf("remove memory %s: %w", id, err)
	}
	return nil
}

func memoriesFromRows(rows []map[string]interface{}) []Memory {
	memories := make([]Memory, 0, len(rows))
	for _, row := range rows {
		memories = append(memories, Memory{
			ID:                rowString(row, "id"),
			UserID:            rowString(row, "user_id"),
			Content:           rowString(row, "content"),
			Source:            rowString(row, "source"),
			SignificanceScore: rowFloat(row, "significance_score"),
			AccessCount:       rowInt(row, "access_count"),
			DecayRate:         rowFloat(row, "decay_rate"),
			LastAccessed:      rowTime(row, "last_accessed"),
		})
	}
	return memories
}
