package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/nidhogg/nuka-mind/internal/attention"
	"github.com/nidhogg/nuka-mind/internal/emergence"
	"github.com/nidhogg/nuka-mind/internal/memory"
	"github.com/nidhogg/nuka-mind/internal/persona"
)

const defaultMemoryLimit = 20

// criteriaFromQuery reads memory criteria from URL parameters. Context
// pairs are given as repeated context=key:value.
func criteriaFromQuery(r *http.Request) (memory.Criteria, error) {
	q := r.URL.Query()
	c := memory.Criteria{
		Type:           q.Get("type"),
		AssociatedWith: q.Get("associated_with"),
		Text:           q.Get("text"),
		Category:       memory.Category(q.Get("category")),
		Limit:          defaultMemoryLimit,
	}
	for _, pair := range q["context"] {
		k, v, ok := strings.Cut(pair, ":")
		if !ok || k == "" {
			return c, fmt.Errorf("context %q: want key:value", pair)
		}
		if c.Context == nil {
			c.Context = make(map[string]string)
		}
		c.Context[k] = v
	}
	for name, dst := range map[string]*time.Time{"from": &c.From, "to": &c.To} {
		if s := q.Get(name); s != "" {
			t, err := time.Parse(time.RFC3339, s)
			if err != nil {
				return c, fmt.Errorf("%s: %w", name, err)
			}
			*dst = t
		}
	}
	if s := q.Get("min_importance"); s != "" {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return c, fmt.Errorf("min_importance: %w", err)
		}
		c.MinImportance = v
	}
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return c, fmt.Errorf("limit: %q is not a count", s)
		}
		c.Limit = n
	}
	return c, nil
}

// queryMemories peeks by default; touch=true runs the reinforcing query.
// Without any selection it lists the most important records.
func (h *Handler) queryMemories(w http.ResponseWriter, r *http.Request) {
	mem := controllerFrom(r).Memory()
	c, err := criteriaFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if isUnselected(c) {
		writeJSON(w, http.StatusOK, mem.Important(c.Limit))
		return
	}

	var matches []memory.Match
	if r.URL.Query().Get("touch") == "true" {
		matches, err = mem.Query(c)
	} else {
		matches, err = mem.Peek(c)
	}
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, memory.ErrInvalidCriteria) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err.Error())
		return
	}
	if matches == nil {
		matches = []memory.Match{}
	}
	writeJSON(w, http.StatusOK, matches)
}

func isUnselected(c memory.Criteria) bool {
	return c.Type == "" && len(c.Context) == 0 && c.AssociatedWith == "" &&
		c.From.IsZero() && c.To.IsZero() && c.Text == ""
}

func (h *Handler) storeMemory(w http.ResponseWriter, r *http.Request) {
	var rec memory.Record
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	mem := controllerFrom(r).Memory()
	id, err := mem.Store(rec)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, memory.ErrMissingContent) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err.Error())
		return
	}
	stored, _ := mem.Get(id)
	writeJSON(w, http.StatusCreated, stored)
}

func (h *Handler) memoryAssociations(w http.ResponseWriter, r *http.Request) {
	mem := controllerFrom(r).Memory()
	id := chi.URLParam(r, "memoryID")
	if _, ok := mem.Get(id); !ok {
		writeError(w, http.StatusNotFound, memory.ErrNotFound.Error())
		return
	}
	writeJSON(w, http.StatusOK, mem.Associations(id))
}

func (h *Handler) perceive(w http.ResponseWriter, r *http.Request) {
	var s attention.Stimulus
	if err := json.NewDecoder(r.Body).Decode(&s); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if s.Type == "" {
		writeError(w, http.StatusBadRequest, "type is required")
		return
	}
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	ctrl := controllerFrom(r)
	if err := h.population.Perceive(ctrl.AgentID(), s); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"id":       s.ID,
		"agent_id": ctrl.AgentID(),
		"status":   "queued",
	})
}

func (h *Handler) addGoal(w http.ResponseWriter, r *http.Request) {
	var g attention.Goal
	if err := json.NewDecoder(r.Body).Decode(&g); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if g.Type == "" {
		writeError(w, http.StatusBadRequest, "type is required")
		return
	}
	ctrl := controllerFrom(r)
	g.ID = ctrl.AddGoal(g)
	writeJSON(w, http.StatusCreated, g)
}

func (h *Handler) setState(w http.ResponseWriter, r *http.Request) {
	var st emergence.State
	if err := json.NewDecoder(r.Body).Decode(&st); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctrl := controllerFrom(r)
	st.AgentID = ctrl.AgentID()
	if err := h.population.SetState(ctrl.AgentID(), st); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// listBehaviors returns the behaviour history, newest first; active=true
// restricts it to behaviours still in the active window.
func (h *Handler) listBehaviors(w http.ResponseWriter, r *http.Request) {
	eng := controllerFrom(r).Engine()
	var out []emergence.Behavior
	if r.URL.Query().Get("active") == "true" {
		out = eng.Active()
	} else {
		out = eng.History()
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	if out == nil {
		out = []emergence.Behavior{}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) listPatterns(w http.ResponseWriter, r *http.Request) {
	patterns := controllerFrom(r).Engine().Patterns()
	if patterns == nil {
		patterns = []emergence.Pattern{}
	}
	writeJSON(w, http.StatusOK, patterns)
}

func (h *Handler) listRelations(w http.ResponseWriter, r *http.Request) {
	if h.relations == nil {
		writeError(w, http.StatusServiceUnavailable, "relation graph not initialized")
		return
	}
	rels, err := h.relations.Load(r.Context(), controllerFrom(r).AgentID())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if rels == nil {
		rels = persona.Relationships{}
	}
	writeJSON(w, http.StatusOK, rels)
}

type interactionRequest struct {
	To string `json:"to"`
	persona.Relationship
}

// recordInteraction shifts the agent's relationship toward another entity
// by the given deltas.
func (h *Handler) recordInteraction(w http.ResponseWriter, r *http.Request) {
	if h.relations == nil {
		writeError(w, http.StatusServiceUnavailable, "relation graph not initialized")
		return
	}
	var req interactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.To == "" {
		writeError(w, http.StatusBadRequest, "to is required")
		return
	}
	agentID := controllerFrom(r).AgentID()
	if err := h.relations.RecordInteraction(r.Context(), agentID, req.To, req.Relationship); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}
