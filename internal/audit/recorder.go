package audit

import (
	"context"

	"github.com/mainza-ai/graphmind/internal/lifecycle"
	"go.uber.org/zap"
)

// Recorder writes lifecycle events to the audit table. It implements
// lifecycle.EventRecorder: insert failures are logged and dropped, never
// surfaced, so a Postgres outage cannot block graph mutations.
type Recorder struct {
	store  *Store
	logger *zap.Logger
}

// NewRecorder wraps a store. A nil store yields a recorder that drops
// everything, which keeps call sites free of nil checks.
func NewRecorder(store *Store, logger *zap.Logger) *Recorder {
	return &Recorder{store: store, logger: logger}
}

// Record appends one event.
func (r *Recorder) Record(ctx context.Context, ev lifecycle.Event) {
	if r.store == nil {
		return
	}
	_, err := r.store.db.Exec(ctx, `
		INSERT INTO lifecycle_events
			(id, entity_id, entity_kind, event_type, actions, consciousness_level, emotional_state, active_goals, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		ev.ID, ev.EntityID, string(ev.EntityKind), string(ev.Type),
		ev.Actions, ev.ConsciousnessLevel, ev.EmotionalState, ev.ActiveGoals,
		ev.Timestamp,
	)
	if err != nil {
		r.logger.Warn("audit insert failed",
			zap.String("event", ev.ID),
			zap.String("type", string(ev.Type)),
			zap.Error(err))
	}
}
