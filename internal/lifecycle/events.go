package lifecycle

import (
	"context"
	"time"

	"github.com/mainza-ai/graphmind/internal/graph"
)

// EventType classifies audit records.
type EventType string

const (
	EventUpdate      EventType = "update"
	EventEvolution   EventType = "evolution"
	EventMaintenance EventType = "maintenance"
)

// Event is one immutable audit record. Every mutating call produces one,
// carrying a snapshot of the consciousness state that drove it.
type Event struct {
	ID                 string           `json:"id"`
	EntityID           string           `json:"entity_id"`
	EntityKind         graph.EntityKind `json:"entity_kind"`
	Type               EventType        `json:"type"`
	Actions            []string         `json:"actions"`
	ConsciousnessLevel float64          `json:"consciousness_level"`
	EmotionalState     string           `json:"emotional_state"`
	ActiveGoals        []string         `json:"active_goals,omitempty"`
	Timestamp          time.Time        `json:"timestamp"`
}

// EventRecorder appends events to the audit trail. Implementations must
// swallow their own failures; recording is never allowed to break the
// mutation that produced the event.
type EventRecorder interface {
	Record(ctx context.Context, ev Event)
}

// NopRecorder discards events. Used when no audit store is configured.
type NopRecorder struct{}

func (NopRecorder) Record(context.Context, Event) {}
