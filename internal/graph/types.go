package graph

import (
	"time"
)

// EntityKind tags the node label an operation addresses.
type EntityKind string

const (
	KindConcept      EntityKind = "concept"
	KindMemory       EntityKind = "memory"
	KindRelationship EntityKind = "relationship"
)

// Concept is a learned idea or topic in the knowledge graph.
type Concept struct {
	ID                     string    `json:"id"`
	Name                   string    `json:"name"`
	Description            string    `json:"description"`
	ImportanceScore        float64   `json:"importance_score"`
	UsageFrequency         int64     `json:"usage_frequency"`
	LastAccessed           time.Time `json:"last_accessed"`
	ConsciousnessRelevance float64   `json:"consciousness_relevance"`
	EvolutionRate          float64   `json:"evolution_rate"`
	Archived               bool      `json:"archived"`
}

// Memory is a recorded interaction or reflection.
type Memory struct {
	ID                  string    `json:"id"`
	UserID              string    `json:"user_id"`
	Content             string    `json:"content"`
	Source              string    `json:"source"`
	SignificanceScore   float64   `json:"significance_score"`
	AccessCount         int64     `json:"access_count"`
	LastAccessed        time.Time `json:"last_accessed"`
	ConsolidationScore  float64   `json:"consolidation_score"`
	ConsciousnessImpact float64   `json:"consciousness_impact"`
	DecayRate           float64   `json:"decay_rate"`
	Archived            bool      `json:"archived"`
}

// Relationship is a typed, weighted edge between two entities.
type Relationship struct {
	SourceID   string    `json:"source_id"`
	TargetID   string    `json:"target_id"`
	Type       string    `json:"type"`
	Strength   float64   `json:"strength"`
	UsageCount int64     `json:"usage_count"`
	LastUsed   time.Time `json:"last_used"`
}

// MetricSnapshot holds the current scalar metrics of one entity.
// Found is false when the entity does not exist; callers treat that
// as an explicit empty result, not an error.
type MetricSnapshot struct {
	EntityID     string             `json:"entity_id"`
	Name         string             `json:"name,omitempty"`
	Kind         EntityKind         `json:"kind"`
	Metrics      map[string]float64 `json:"metrics"`
	LastAccessed time.Time          `json:"last_accessed"`
	Found        bool               `json:"found"`
}

// ConceptDelta is the set of changes the dynamics calculator produces
// for a concept. Touch updates last_accessed.
type ConceptDelta struct {
	Importance    float64 `json:"importance_delta"`
	Relevance     float64 `json:"relevance_delta"`
	EvolutionRate float64 `json:"evolution_rate_delta"`
	Usage         int64   `json:"usage_delta"`
	Touch         bool    `json:"touch"`
}

// IsZero reports whether applying the delta would change nothing.
func (d ConceptDelta) IsZero() bool {
	return d.Importance == 0 && d.Relevance == 0 && d.EvolutionRate == 0 && d.Usage == 0 && !d.Touch
}

// MemoryDelta is the memory counterpart of ConceptDelta.
type MemoryDelta struct {
	Significance  float64 `json:"significance_delta"`
	Impact        float64 `json:"impact_delta"`
	Consolidation float64 `json:"consolidation_delta"`
	Access        int64   `json:"access_delta"`
	Touch         bool    `json:"touch"`
}

// IsZero reports whether applying the delta would change nothing.
func (d MemoryDelta) IsZero() bool {
	return d.Significance == 0 && d.Impact == 0 && d.Consolidation == 0 && d.Access == 0 && !d.Touch
}

// OrphanRef identifies an entity with no remaining relationships.
type OrphanRef struct {
	ID   string     `json:"id"`
	Kind EntityKind `json:"kind"`
}

// Statistics is a graph-wide summary gathered during maintenance.
type Statistics struct {
	ConceptCount            int64   `json:"concept_count"`
	MemoryCount             int64   `json:"memory_count"`
	RelationshipCount       int64   `json:"relationship_count"`
	AvgConceptImportance    float64 `json:"avg_concept_importance"`
	AvgMemorySignificance   float64 `json:"avg_memory_significance"`
	AvgRelationshipStrength float64 `json:"avg_relationship_strength"`
}
