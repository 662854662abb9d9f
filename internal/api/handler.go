// Package api exposes the lifecycle engine over HTTP.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/mainza-ai/graphmind/internal/graph"
	"github.com/mainza-ai/graphmind/internal/lifecycle"
	"go.uber.org/zap"
)

// Lifecycle is the slice of the engine the handlers use.
type Lifecycle interface {
	ProcessInteraction(ctx context.Context, inter lifecycle.InteractionContext, cons lifecycle.ConsciousnessContext) []lifecycle.UpdateResult
	RunMaintenance(ctx context.Context, scope lifecycle.Scope, cons lifecycle.ConsciousnessContext) (*lifecycle.MaintenanceReport, error)
	ConceptMetrics(ctx context.Context, id string) (graph.MetricSnapshot, error)
	MemoryMetrics(ctx context.Context, id string) (graph.MetricSnapshot, error)
	Statistics(ctx context.Context) (graph.Statistics, error)
}

// EntityWriter creates entities. *graph.Store satisfies it.
type EntityWriter interface {
	CreateConcept(ctx context.Context, c *graph.Concept) error
	CreateMemory(ctx context.Context, m *graph.Memory) error
	CreateRelationship(ctx context.Context, r graph.Relationship) error
}

// Indexer mirrors new entity texts into the semantic index.
type Indexer interface {
	IndexEntity(ctx context.Context, id, kind, text string) error
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	engine  Lifecycle
	writer  EntityWriter
	indexer Indexer
	logger  *zap.Logger
}

// NewHandler creates the API handler. indexer may be nil when no vector
// store is configured.
func NewHandler(engine Lifecycle, writer EntityWriter, indexer Indexer, logger *zap.Logger) *Handler {
	return &Handler{engine: engine, writer: writer, indexer: indexer, logger: logger}
}

// Router builds the chi router with all routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.healthCheck)

		r.Post("/interactions", h.processInteraction)
		r.Post("/maintenance/{scope}", h.runMaintenance)

		r.Post("/concepts", h.createConcept)
		r.Get("/concepts/{id}/metrics", h.conceptMetrics)
		r.Post("/memories", h.createMemory)
		r.Get("/memories/{id}/metrics", h.memoryMetrics)
		r.Post("/relationships", h.createRelationship)

		r.Get("/statistics", h.statistics)
	})

	return r
}

// consciousnessPayload is the consciousness snapshot clients attach to a
// request. Missing fields fall back to engine defaults.
type consciousnessPayload struct {
	Level          float64  `json:"level"`
	EmotionalState string   `json:"emotional_state"`
	ActiveGoals    []string `json:"active_goals"`
}

func (p consciousnessPayload) toContext() lifecycle.ConsciousnessContext {
	return lifecycle.ConsciousnessContext{
		Level:          p.Level,
		EmotionalState: p.EmotionalState,
		ActiveGoals:    p.ActiveGoals,
	}
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "graphmind"})
}

type interactionRequest struct {
	Query            string               `json:"query"`
	RelatedKeywords  []string             `json:"related_keywords"`
	ConceptsUsed     []string             `json:"concepts_used"`
	RelevantMemories []string             `json:"relevant_memories"`
	UserID           string               `json:"user_id"`
	Consciousness    consciousnessPayload `json:"consciousness"`
}

func (h *Handler) processInteraction(w http.ResponseWriter, r *http.Request) {
	var req interactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if len(req.ConceptsUsed) == 0 && len(req.RelevantMemories) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "concepts_used or relevant_memories is required"})
		return
	}

	inter := lifecycle.InteractionContext{
		Query:            req.Query,
		RelatedKeywords:  req.RelatedKeywords,
		ConceptsUsed:     req.ConceptsUsed,
		RelevantMemories: req.RelevantMemories,
		UserID:           req.UserID,
	}
	results := h.engine.ProcessInteraction(r.Context(), inter, req.Consciousness.toContext())
	writeJSON(w, http.StatusOK, map[string]interface{}{"results": results})
}

func (h *Handler) runMaintenance(w http.ResponseWriter, r *http.Request) {
	scope := lifecycle.Scope(chi.URLParam(r, "scope"))
	if !lifecycle.ValidScope(scope) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown maintenance scope"})
		return
	}

	// Body is optional; decode failures on an empty body are fine.
	var cons consciousnessPayload
	_ = json.NewDecoder(r.Body).Decode(&cons)

	report, err := h.engine.RunMaintenance(r.Context(), scope, cons.toContext())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, report)
}

type conceptRequest struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (h *Handler) createConcept(w http.ResponseWriter, r *http.Request) {
	var req conceptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}

	c := &graph.Concept{ID: req.ID, Name: req.Name, Description: req.Description}
	if err := h.writer.CreateConcept(r.Context(), c); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	h.index(r, c.ID, string(graph.KindConcept), c.Name)
	writeJSON(w, http.StatusCreated, c)
}

type memoryRequest struct {
	ID      string `json:"id"`
	Content string `json:"content"`
	UserID  string `json:"user_id"`
	Source  string `json:"source"`
}

func (h *Handler) createMemory(w http.ResponseWriter, r *http.Request) {
	var req memoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if req.Content == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "content is required"})
		return
	}

	m := &graph.Memory{ID: req.ID, Content: req.Content, UserID: req.UserID, Source: req.Source}
	if err := h.writer.CreateMemory(r.Context(), m); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	h.index(r, m.ID, string(graph.KindMemory), m.Content)
	writeJSON(w, http.StatusCreated, m)
}

type relationshipRequest struct {
	SourceID string  `json:"source_id"`
	TargetID string  `json:"target_id"`
	Type     string  `json:"type"`
	Strength float64 `json:"strength"`
}

func (h *Handler) createRelationship(w http.ResponseWriter, r *http.Request) {
	var req relationshipRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if req.SourceID == "" || req.TargetID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "source_id and target_id are required"})
		return
	}

	rel := graph.Relationship{
		SourceID: req.SourceID,
		TargetID: req.TargetID,
		Type:     req.Type,
		Strength: req.Strength,
	}
	if err := h.writer.CreateRelationship(r.Context(), rel); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, rel)
}

func (h *Handler) conceptMetrics(w http.ResponseWriter, r *http.Request) {
	h.entityMetrics(w, r, h.engine.ConceptMetrics)
}

func (h *Handler) memoryMetrics(w http.ResponseWriter, r *http.Request) {
	h.entityMetrics(w, r, h.engine.MemoryMetrics)
}

func (h *Handler) entityMetrics(w http.ResponseWriter, r *http.Request, read func(context.Context, string) (graph.MetricSnapshot, error)) {
	id := chi.URLParam(r, "id")
	snap, err := read(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if !snap.Found {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "entity not found"})
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *Handler) statistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.engine.Statistics(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"statistics":   stats,
		"health_score": lifecycle.HealthScore(stats),
	})
}

// index mirrors a new entity into the semantic index. Failures are
// logged, never returned; the graph write already succeeded.
func (h *Handler) index(r *http.Request, id, kind, text string) {
	if h.indexer == nil {
		return
	}
	if err := h.indexer.IndexEntity(r.Context(), id, kind, text); err != nil {
		h.logger.Warn("semantic index update failed",
			zap.String("entity", id), zap.Error(err))
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
