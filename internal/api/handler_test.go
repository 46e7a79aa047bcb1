package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nidhogg/nuka-mind/internal/attention"
	"github.com/nidhogg/nuka-mind/internal/consciousness"
	"github.com/nidhogg/nuka-mind/internal/emergence"
	"github.com/nidhogg/nuka-mind/internal/memory"
	"github.com/nidhogg/nuka-mind/internal/persona"
	"github.com/nidhogg/nuka-mind/internal/store"
	"github.com/nidhogg/nuka-mind/internal/world"
	"go.uber.org/zap"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func alarmRules() *emergence.RuleSet {
	return emergence.MustRuleSet([]emergence.Rule{{
		ID:        "alarm",
		Category:  emergence.CategorySurvival,
		Condition: emergence.Gt(emergence.FieldThreat, 0.5),
		Weight:    0.8,
		Outcomes:  []string{"seek_shelter"},
	}}, nil, nil)
}

func testFactory(id string, p persona.Personality) *consciousness.Controller {
	logger := zap.NewNop()
	return consciousness.New(id, p,
		memory.NewStore(id, memory.Config{}, logger),
		attention.NewSelector(attention.Config{}, logger),
		emergence.NewEngine(id, alarmRules(), emergence.Config{Seed: 3}, logger),
		consciousness.Config{}, logger)
}

type recordingSaver struct {
	rows []store.AgentRow
}

func (s *recordingSaver) SaveAgent(_ context.Context, a store.AgentRow) error {
	s.rows = append(s.rows, a)
	return nil
}

// newTestHandler wires an in-memory population with one agent, npc-0.
func newTestHandler(t *testing.T) (*Handler, *httptest.Server) {
	t.Helper()
	logger := zap.NewNop()

	population := world.NewPopulation(2, logger)
	if err := population.Add(testFactory("npc-0", persona.Personality{})); err != nil {
		t.Fatalf("add npc-0: %v", err)
	}
	clock := world.NewWorldClock(time.Second, 1.0, epoch, logger)
	clock.AddListener(population)
	sweeper := world.NewSweeper(time.Hour, population.Maintain, logger)

	h := NewHandler(population, clock, sweeper, testFactory, &recordingSaver{}, logger)
	ts := httptest.NewServer(h.Router())
	t.Cleanup(ts.Close)
	return h, ts
}

func postJSON(t *testing.T, ts *httptest.Server, path string, body interface{}) *http.Response {
	t.Helper()
	b, _ := json.Marshal(body)
	resp, err := http.Post(ts.URL+path, "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

func putJSON(t *testing.T, ts *httptest.Server, path string, body interface{}) *http.Response {
	t.Helper()
	b, _ := json.Marshal(body)
	req, _ := http.NewRequest(http.MethodPut, ts.URL+path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PUT %s: %v", path, err)
	}
	return resp
}

func getJSON(t *testing.T, ts *httptest.Server, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(ts.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		resp.Body.Close()
		t.Fatalf("expected %d, got %d", want, resp.StatusCode)
	}
}

// --- Tests ---

func TestHealthCheck(t *testing.T) {
	_, ts := newTestHandler(t)

	resp := getJSON(t, ts, "/api/health")
	expectStatus(t, resp, http.StatusOK)

	var body map[string]string
	decodeJSON(t, resp, &body)
	if body["status"] != "ok" {
		t.Errorf("expected status ok, got %s", body["status"])
	}
}

func TestCreateAndListAgents(t *testing.T) {
	h, ts := newTestHandler(t)

	resp := postJSON(t, ts, "/api/agents", map[string]interface{}{
		"id":          "mira",
		"name":        "Mira",
		"personality": map[string]float64{"curiosity": 0.8},
	})
	expectStatus(t, resp, http.StatusCreated)
	var created agentSummary
	decodeJSON(t, resp, &created)
	if created.ID != "mira" || created.Awareness != 1 {
		t.Errorf("unexpected summary: %+v", created)
	}

	saved := h.saver.(*recordingSaver).rows
	if len(saved) != 1 || saved[0].Name != "Mira" {
		t.Errorf("expected Mira persisted, got %+v", saved)
	}

	resp = postJSON(t, ts, "/api/agents", map[string]string{"id": "mira"})
	expectStatus(t, resp, http.StatusConflict)
	resp.Body.Close()

	resp = getJSON(t, ts, "/api/agents")
	expectStatus(t, resp, http.StatusOK)
	var agents []agentSummary
	decodeJSON(t, resp, &agents)
	if len(agents) != 2 || agents[0].ID != "mira" || agents[1].ID != "npc-0" {
		t.Errorf("expected [mira npc-0], got %+v", agents)
	}
}

func TestCreateAgentGeneratesID(t *testing.T) {
	_, ts := newTestHandler(t)

	resp := postJSON(t, ts, "/api/agents", map[string]string{"name": "Anon"})
	expectStatus(t, resp, http.StatusCreated)
	var created agentSummary
	decodeJSON(t, resp, &created)
	if created.ID == "" {
		t.Error("expected generated id")
	}
}

func TestUnknownAgent(t *testing.T) {
	_, ts := newTestHandler(t)

	for _, path := range []string{"/api/agents/ghost", "/api/agents/ghost/memories", "/api/agents/ghost/patterns"} {
		resp := getJSON(t, ts, path)
		expectStatus(t, resp, http.StatusNotFound)
		resp.Body.Close()
	}
}

func TestStoreAndQueryMemories(t *testing.T) {
	_, ts := newTestHandler(t)

	resp := postJSON(t, ts, "/api/agents/npc-0/memories", map[string]interface{}{
		"type":       "trade",
		"content":    "sold three apples at the market",
		"context":    map[string]string{"place": "market"},
		"importance": 0.7,
	})
	expectStatus(t, resp, http.StatusCreated)
	var rec memory.Record
	decodeJSON(t, resp, &rec)
	if rec.ID == "" || rec.OwnerID != "npc-0" {
		t.Fatalf("unexpected record: %+v", rec)
	}

	resp = postJSON(t, ts, "/api/agents/npc-0/memories", map[string]string{"type": "trade"})
	expectStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()

	resp = getJSON(t, ts, "/api/agents/npc-0/memories?type=trade")
	expectStatus(t, resp, http.StatusOK)
	var matches []memory.Match
	decodeJSON(t, resp, &matches)
	if len(matches) != 1 || matches[0].Record.ID != rec.ID {
		t.Fatalf("expected the trade memory, got %+v", matches)
	}
	if matches[0].Record.AccessCount != 0 {
		t.Errorf("peek should not reinforce, access count %d", matches[0].Record.AccessCount)
	}

	resp = getJSON(t, ts, "/api/agents/npc-0/memories?context=place:market&touch=true")
	expectStatus(t, resp, http.StatusOK)
	decodeJSON(t, resp, &matches)
	if len(matches) != 1 || matches[0].Record.AccessCount != 1 {
		t.Errorf("expected one reinforced match, got %+v", matches)
	}

	resp = getJSON(t, ts, "/api/agents/npc-0/memories")
	expectStatus(t, resp, http.StatusOK)
	var important []memory.Record
	decodeJSON(t, resp, &important)
	if len(important) != 1 {
		t.Errorf("expected one important record, got %d", len(important))
	}

	resp = getJSON(t, ts, "/api/agents/npc-0/memories/"+rec.ID+"/associations")
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()
}

func TestQueryMemoriesRejectsBadCriteria(t *testing.T) {
	_, ts := newTestHandler(t)

	for _, q := range []string{
		"type=trade&text=apples",
		"from=yesterday",
		"context=nocolon",
		"limit=-1",
		"min_importance=high",
	} {
		resp := getJSON(t, ts, "/api/agents/npc-0/memories?"+q)
		expectStatus(t, resp, http.StatusBadRequest)
		resp.Body.Close()
	}
}

func TestStimulusTickAndBehaviors(t *testing.T) {
	h, ts := newTestHandler(t)

	resp := postJSON(t, ts, "/api/agents/npc-0/stimuli", map[string]string{
		"type":    "threat",
		"source":  "wolf",
		"content": "a wolf growls",
	})
	expectStatus(t, resp, http.StatusAccepted)
	var queued map[string]string
	decodeJSON(t, resp, &queued)
	if queued["id"] == "" {
		t.Error("expected generated stimulus id")
	}

	resp = postJSON(t, ts, "/api/agents/npc-0/stimuli", map[string]string{"content": "untyped"})
	expectStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()

	resp = putJSON(t, ts, "/api/agents/npc-0/state", map[string]interface{}{"threat": 0.9})
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = postJSON(t, ts, "/api/world/tick", nil)
	expectStatus(t, resp, http.StatusOK)
	var tick struct {
		Ticks   uint64                     `json:"ticks"`
		Results []consciousness.TickResult `json:"results"`
	}
	decodeJSON(t, resp, &tick)
	if tick.Ticks != 1 || len(tick.Results) != 1 {
		t.Fatalf("unexpected tick: %+v", tick)
	}
	res := tick.Results[0]
	if res.Focus.Focus == nil || res.Focus.Focus.Stimulus.Type != "threat" {
		t.Errorf("expected focus on the threat, got %+v", res.Focus.Focus)
	}
	if res.StoredMemory == "" {
		t.Error("expected the new focus to be remembered")
	}

	resp = getJSON(t, ts, "/api/agents/npc-0/behaviors")
	expectStatus(t, resp, http.StatusOK)
	var behaviors []emergence.Behavior
	decodeJSON(t, resp, &behaviors)
	if len(behaviors) != 1 || behaviors[0].Action != "seek_shelter" {
		t.Errorf("expected seek_shelter, got %+v", behaviors)
	}

	resp = getJSON(t, ts, "/api/agents/npc-0/behaviors?active=true")
	expectStatus(t, resp, http.StatusOK)
	decodeJSON(t, resp, &behaviors)
	if len(behaviors) != 1 {
		t.Errorf("expected one active behaviour, got %d", len(behaviors))
	}

	if got := h.population.Activity().GetState("npc-0"); got != world.StateActing {
		t.Errorf("expected acting, got %s", got)
	}
}

func TestAddGoalShowsOnAgent(t *testing.T) {
	_, ts := newTestHandler(t)

	resp := postJSON(t, ts, "/api/agents/npc-0/goals", map[string]interface{}{
		"type":     "trade",
		"priority": 0.6,
	})
	expectStatus(t, resp, http.StatusCreated)
	var g attention.Goal
	decodeJSON(t, resp, &g)
	if g.ID == "" {
		t.Fatal("expected generated goal id")
	}

	resp = postJSON(t, ts, "/api/agents/npc-0/goals", map[string]interface{}{"priority": 0.6})
	expectStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()

	resp = getJSON(t, ts, "/api/agents/npc-0")
	expectStatus(t, resp, http.StatusOK)
	var detail struct {
		Goals []attention.Goal `json:"goals"`
	}
	decodeJSON(t, resp, &detail)
	if len(detail.Goals) != 1 || detail.Goals[0].ID != g.ID {
		t.Errorf("expected goal %s, got %+v", g.ID, detail.Goals)
	}
}

func TestWorldStatusAndSweep(t *testing.T) {
	_, ts := newTestHandler(t)

	resp := getJSON(t, ts, "/api/world")
	expectStatus(t, resp, http.StatusOK)
	var status map[string]interface{}
	decodeJSON(t, resp, &status)
	if status["agent_count"] != float64(1) {
		t.Errorf("expected 1 agent, got %v", status["agent_count"])
	}

	resp = postJSON(t, ts, "/api/world/sweep", nil)
	expectStatus(t, resp, http.StatusOK)
	var reports []consciousness.MaintenanceReport
	decodeJSON(t, resp, &reports)
	if len(reports) != 1 || reports[0].AgentID != "npc-0" {
		t.Errorf("expected report for npc-0, got %+v", reports)
	}
}

func TestPatternsEmpty(t *testing.T) {
	_, ts := newTestHandler(t)

	resp := getJSON(t, ts, "/api/agents/npc-0/patterns")
	expectStatus(t, resp, http.StatusOK)
	var patterns []emergence.Pattern
	decodeJSON(t, resp, &patterns)
	if len(patterns) != 0 {
		t.Errorf("expected no patterns, got %d", len(patterns))
	}
}

type memRelations struct {
	rels map[string]persona.Relationships
}

func (m *memRelations) Load(_ context.Context, agentID string) (persona.Relationships, error) {
	return m.rels[agentID], nil
}

func (m *memRelations) RecordInteraction(_ context.Context, from, to string, d persona.Relationship) error {
	if m.rels[from] == nil {
		m.rels[from] = persona.Relationships{}
	}
	cur := m.rels[from][to]
	cur.Trust += d.Trust
	cur.Affection += d.Affection
	cur.Respect += d.Respect
	m.rels[from][to] = cur
	return nil
}

func TestRelations(t *testing.T) {
	h, ts := newTestHandler(t)

	resp := getJSON(t, ts, "/api/agents/npc-0/relations")
	expectStatus(t, resp, http.StatusServiceUnavailable)
	resp.Body.Close()

	h.SetRelations(&memRelations{rels: map[string]persona.Relationships{}})

	resp = postJSON(t, ts, "/api/agents/npc-0/relations", map[string]interface{}{"trust": 0.2})
	expectStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()

	for i := 0; i < 2; i++ {
		resp = postJSON(t, ts, "/api/agents/npc-0/relations", map[string]interface{}{
			"to":    "smith",
			"trust": 0.25,
		})
		expectStatus(t, resp, http.StatusOK)
		resp.Body.Close()
	}

	resp = getJSON(t, ts, "/api/agents/npc-0/relations")
	expectStatus(t, resp, http.StatusOK)
	var rels persona.Relationships
	decodeJSON(t, resp, &rels)
	if rels["smith"].Trust != 0.5 {
		t.Errorf("expected trust 0.5, got %v", rels["smith"].Trust)
	}
}
