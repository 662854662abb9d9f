package lifecycle

import (
	"strings"
	"time"
)

// ConsciousnessContext is the read-only affective snapshot supplied by the
// external consciousness subsystem. It scales every update magnitude.
type ConsciousnessContext struct {
	Level          float64  `json:"consciousness_level"`
	EmotionalState string   `json:"emotional_state"`
	ActiveGoals    []string `json:"active_goals"`
}

// Defaults substituted when the caller hands us an incomplete context.
const (
	DefaultConsciousnessLevel = 0.7
	DefaultEmotionalState     = "curious"
)

// Normalized returns a copy with defaults substituted for missing fields
// and the level clamped to [0,1].
func (c ConsciousnessContext) Normalized() ConsciousnessContext {
	if c.Level <= 0 {
		c.Level = DefaultConsciousnessLevel
	}
	if c.Level > 1 {
		c.Level = 1
	}
	if c.EmotionalState == "" {
		c.EmotionalState = DefaultEmotionalState
	}
	return c
}

// emotionalMultipliers scale the mention boost per emotional state.
// States outside the table fall back to 1.0.
var emotionalMultipliers = map[string]float64{
	"curious":       1.3,
	"excited":       1.4,
	"focused":       1.1,
	"contemplative": 1.2,
	"empathetic":    1.25,
}

// Multiplier returns the boost multiplier for the current emotional state.
func (c ConsciousnessContext) Multiplier() float64 {
	if m, ok := emotionalMultipliers[strings.ToLower(c.EmotionalState)]; ok {
		return m
	}
	return 1.0
}

// InteractionContext describes one interaction from the orchestration layer.
type InteractionContext struct {
	Query            string   `json:"query"`
	RelatedKeywords  []string `json:"related_keywords"`
	ConceptsUsed     []string `json:"concepts_used"`
	RelevantMemories []string `json:"relevant_memories"`
	UserID           string   `json:"user_id,omitempty"`
}

// MentionsConcept reports whether the interaction touches a concept,
// either directly (id listed in ConceptsUsed) or by its name appearing in
// the query or the related keywords.
func (ic InteractionContext) MentionsConcept(id, name string) bool {
	for _, used := range ic.ConceptsUsed {
		if used == id {
			return true
		}
	}
	if name == "" {
		return false
	}
	lower := strings.ToLower(name)
	if strings.Contains(strings.ToLower(ic.Query), lower) {
		return true
	}
	for _, kw := range ic.RelatedKeywords {
		if strings.EqualFold(kw, name) || strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// MentionsMemory reports whether a memory was part of the interaction.
func (ic InteractionContext) MentionsMemory(id string) bool {
	for _, rel := range ic.RelevantMemories {
		if rel == id {
			return true
		}
	}
	return false
}

// Clock abstracts time so tests can pin it.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the wall clock.
func SystemClock() Clock { return systemClock{} }

// Tuning holds every threshold and rate the engine uses. Zero values are
// replaced by DefaultTuning in NewEngine, so callers only override what
// they care about.
type Tuning struct {
	MentionBoostBase  float64 // base mention boost before consciousness scaling
	EvolutionRateStep float64 // evolution_rate increment per mention

	ConceptIdleDays  float64 // idle days before a concept starts decaying
	ConceptDecayRate float64 // weekly decay factor for concepts
	MemoryIdleDays   float64 // idle days before a memory starts decaying
	MemoryDecayRate  float64 // fallback decay factor for memories

	ConsolidationStep            float64 // consolidation_score bump per repeat access
	ConsolidationAccessThreshold int64   // accesses before the bump starts

	RelationshipBoost            float64 // co-mention strengthening, scaled by level
	RelationshipIdleDays         float64 // idle days before an edge decays
	RelationshipDecayRate        float64 // weekly decay factor for edges
	RelationshipRemovalThreshold float64 // edges below this get pruned
	RelationshipSeedBase         float64 // seed strength floor for new edges
	RelationshipSeedSpan         float64 // seed strength range scaled by level
	MaxRelationshipsPerConcept   int     // fan-out cap enforced by maintenance

	StaleConceptDays          float64 // no-access window before a concept is stale
	StaleConceptMaxUsage      int64
	StaleConceptMaxImportance float64
	ArchiveGate               float64 // consciousness level above which stale entities archive instead of being removed

	MemoryPruneSignificance float64
	MemoryPruneMaxAccess    int64
	MaxMemoriesPerUser      int

	OrphanDays             float64
	BatchSize              int
	ConsolidationThreshold float64 // similarity above which entities merge
}

// DefaultTuning returns the engine defaults.
func DefaultTuning() Tuning {
	return Tuning{
		MentionBoostBase:  0.1,
		EvolutionRateStep: 0.05,

		ConceptIdleDays:  7,
		ConceptDecayRate: 0.98,
		MemoryIdleDays:   14,
		MemoryDecayRate:  0.95,

		ConsolidationStep:            0.1,
		ConsolidationAccessThreshold: 3,

		RelationshipBoost:            0.1,
		RelationshipIdleDays:         7,
		RelationshipDecayRate:        0.97,
		RelationshipRemovalThreshold: 0.1,
		RelationshipSeedBase:         0.3,
		RelationshipSeedSpan:         0.2,
		MaxRelationshipsPerConcept:   50,

		StaleConceptDays:          30,
		StaleConceptMaxUsage:      2,
		StaleConceptMaxImportance: 0.3,
		ArchiveGate:               0.8,

		MemoryPruneSignificance: 0.15,
		MemoryPruneMaxAccess:    2,
		MaxMemoriesPerUser:      1000,

		OrphanDays:             7,
		BatchSize:              100,
		ConsolidationThreshold: 0.8,
	}
}

// withDefaults fills zero fields from DefaultTuning.
func (t Tuning) withDefaults() Tuning {
	def := DefaultTuning()
	if t.MentionBoostBase == 0 {
		t.MentionBoostBase = def.MentionBoostBase
	}
	if t.EvolutionRateStep == 0 {
		t.EvolutionRateStep = def.EvolutionRateStep
	}
	if t.ConceptIdleDays == 0 {
		t.ConceptIdleDays = def.ConceptIdleDays
	}
	if t.ConceptDecayRate == 0 {
		t.ConceptDecayRate = def.ConceptDecayRate
	}
	if t.MemoryIdleDays == 0 {
		t.MemoryIdleDays = def.MemoryIdleDays
	}
	if t.MemoryDecayRate == 0 {
		t.MemoryDecayRate = def.MemoryDecayRate
	}
	if t.ConsolidationStep == 0 {
		t.ConsolidationStep = def.ConsolidationStep
	}
	if t.ConsolidationAccessThreshold == 0 {
		t.ConsolidationAccessThreshold = def.ConsolidationAccessThreshold
	}
	if t.RelationshipBoost == 0 {
		t.RelationshipBoost = def.RelationshipBoost
	}
	if t.RelationshipIdleDays == 0 {
		t.RelationshipIdleDays = def.RelationshipIdleDays
	}
	if t.RelationshipDecayRate == 0 {
		t.RelationshipDecayRate = def.RelationshipDecayRate
	}
	if t.RelationshipRemovalThreshold == 0 {
		t.RelationshipRemovalThreshold = def.RelationshipRemovalThreshold
	}
	if t.RelationshipSeedBase == 0 {
		t.RelationshipSeedBase = def.RelationshipSeedBase
	}
	if t.RelationshipSeedSpan == 0 {
		t.RelationshipSeedSpan = def.RelationshipSeedSpan
	}
	if t.MaxRelationshipsPerConcept == 0 {
		t.MaxRelationshipsPerConcept = def.MaxRelationshipsPerConcept
	}
	if t.StaleConceptDays == 0 {
		t.StaleConceptDays = def.StaleConceptDays
	}
	if t.StaleConceptMaxUsage == 0 {
		t.StaleConceptMaxUsage = def.StaleConceptMaxUsage
	}
	if t.StaleConceptMaxImportance == 0 {
		t.StaleConceptMaxImportance = def.StaleConceptMaxImportance
	}
	if t.ArchiveGate == 0 {
		t.ArchiveGate = def.ArchiveGate
	}
	if t.MemoryPruneSignificance == 0 {
		t.MemoryPruneSignificance = def.MemoryPruneSignificance
	}
	if t.MemoryPruneMaxAccess == 0 {
		t.MemoryPruneMaxAccess = def.MemoryPruneMaxAccess
	}
	if t.MaxMemoriesPerUser == 0 {
		t.MaxMemoriesPerUser = def.MaxMemoriesPerUser
	}
	if t.OrphanDays == 0 {
		t.OrphanDays = def.OrphanDays
	}
	if t.BatchSize == 0 {
		t.BatchSize = def.BatchSize
	}
	if t.ConsolidationThreshold == 0 {
		t.ConsolidationThreshold = def.ConsolidationThreshold
	}
	return t
}
