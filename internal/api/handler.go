package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/nidhogg/nuka-mind/internal/consciousness"
	"github.com/nidhogg/nuka-mind/internal/persona"
	"github.com/nidhogg/nuka-mind/internal/store"
	"github.com/nidhogg/nuka-mind/internal/world"
	"go.uber.org/zap"
)

// AgentFactory builds a fully wired controller for a new agent.
type AgentFactory func(agentID string, p persona.Personality) *consciousness.Controller

// AgentSaver persists newly created agents. It may be nil.
type AgentSaver interface {
	SaveAgent(ctx context.Context, a store.AgentRow) error
}

// RelationStore reads and adjusts an agent's relationships.
type RelationStore interface {
	Load(ctx context.Context, agentID string) (persona.Relationships, error)
	RecordInteraction(ctx context.Context, fromID, toID string, delta persona.Relationship) error
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	population *world.Population
	relations  RelationStore
	clock      *world.WorldClock
	sweeper    *world.Sweeper
	factory    AgentFactory
	saver      AgentSaver
	logger     *zap.Logger
}

// NewHandler creates a new API handler. sweeper and saver may be nil.
func NewHandler(
	population *world.Population,
	clock *world.WorldClock,
	sweeper *world.Sweeper,
	factory AgentFactory,
	saver AgentSaver,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		population: population,
		clock:      clock,
		sweeper:    sweeper,
		factory:    factory,
		saver:      saver,
		logger:     logger,
	}
}

// SetRelations enables the relationship routes.
func (h *Handler) SetRelations(rs RelationStore) {
	h.relations = rs
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

		r.Get("/world", h.worldStatus)
		r.Post("/world/tick", h.tickWorld)
		r.Post("/world/sweep", h.sweepWorld)

		r.Get("/agents", h.listAgents)
		r.Post("/agents", h.createAgent)
		r.Route("/agents/{id}", func(r chi.Router) {
			r.Use(h.agentCtx)
			r.Get("/", h.getAgent)
			r.Get("/memories", h.queryMemories)
			r.Post("/memories", h.storeMemory)
			r.Get("/memories/{memoryID}/associations", h.memoryAssociations)
			r.Post("/stimuli", h.perceive)
			r.Post("/goals", h.addGoal)
			r.Put("/state", h.setState)
			r.Get("/behaviors", h.listBehaviors)
			r.Get("/patterns", h.listPatterns)
			r.Get("/relations", h.listRelations)
			r.Post("/relations", h.recordInteraction)
		})
	})

	return r
}

type ctxKey struct{}

// agentCtx resolves {id} to a controller or answers 404.
func (h *Handler) agentCtx(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctrl, ok := h.population.Get(chi.URLParam(r, "id"))
		if !ok {
			writeError(w, http.StatusNotFound, "agent not found")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, ctrl)))
	})
}

func controllerFrom(r *http.Request) *consciousness.Controller {
	return r.Context().Value(ctxKey{}).(*consciousness.Controller)
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "world": "nuka"})
}

func (h *Handler) worldStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"world":       "Nuka World",
		"world_time":  h.clock.WorldTime(),
		"ticks":       h.clock.Ticks(),
		"speed":       h.clock.Speed(),
		"agent_count": h.population.Len(),
		"states":      h.population.Activity().States(),
	})
}

func (h *Handler) tickWorld(w http.ResponseWriter, r *http.Request) {
	wt := h.clock.Step(r.Context())
	results := make([]*consciousness.TickResult, 0, h.population.Len())
	for _, id := range h.population.IDs() {
		if res, ok := h.population.Last(id); ok {
			results = append(results, res)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"world_time": wt.Format(time.RFC3339),
		"ticks":      h.clock.Ticks(),
		"results":    results,
	})
}

func (h *Handler) sweepWorld(w http.ResponseWriter, r *http.Request) {
	if h.sweeper == nil {
		writeError(w, http.StatusServiceUnavailable, "sweeper not initialized")
		return
	}
	reports, err := h.sweeper.FireNow(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, reports)
}

type agentSummary struct {
	ID          string              `json:"id"`
	State       world.AgentState    `json:"state"`
	Awareness   float64             `json:"awareness"`
	Memories    int                 `json:"memories"`
	Personality persona.Personality `json:"personality"`
}

func (h *Handler) summary(ctrl *consciousness.Controller) agentSummary {
	return agentSummary{
		ID:          ctrl.AgentID(),
		State:       h.population.Activity().GetState(ctrl.AgentID()),
		Awareness:   ctrl.Awareness(),
		Memories:    ctrl.Memory().Len(),
		Personality: ctrl.Personality(),
	}
}

func (h *Handler) listAgents(w http.ResponseWriter, r *http.Request) {
	out := make([]agentSummary, 0, h.population.Len())
	for _, id := range h.population.IDs() {
		if ctrl, ok := h.population.Get(id); ok {
			out = append(out, h.summary(ctrl))
		}
	}
	writeJSON(w, http.StatusOK, out)
}

type createAgentRequest struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Personality persona.Personality `json:"personality"`
}

func (h *Handler) createAgent(w http.ResponseWriter, r *http.Request) {
	var req createAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	ctrl := h.factory(req.ID, req.Personality)
	if err := h.population.Add(ctrl); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, world.ErrDuplicateAgent) {
			status = http.StatusConflict
		}
		writeError(w, status, err.Error())
		return
	}
	if h.saver != nil {
		if err := h.saver.SaveAgent(r.Context(), store.AgentRow{ID: req.ID, Name: req.Name, Personality: req.Personality}); err != nil {
			h.logger.Warn("agent not persisted", zap.String("agent", req.ID), zap.Error(err))
		}
	}
	writeJSON(w, http.StatusCreated, h.summary(ctrl))
}

func (h *Handler) getAgent(w http.ResponseWriter, r *http.Request) {
	ctrl := controllerFrom(r)
	focus, strength := ctrl.Attention().Current()
	last, _ := h.population.Last(ctrl.AgentID())
	writeJSON(w, http.StatusOK, map[string]any{
		"agent":           h.summary(ctrl),
		"focus":           focus,
		"focus_strength":  strength,
		"attention_level": ctrl.Attention().AttentionLevel(),
		"goals":           ctrl.Goals(),
		"memory":          ctrl.Memory().Stats(),
		"patterns":        len(ctrl.Engine().Patterns()),
		"last_tick":       last,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
