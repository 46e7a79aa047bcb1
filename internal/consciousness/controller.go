// Package consciousness sequences one agent's cognition tick:
// decay, attend, recall, evaluate and write back.
package consciousness

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nidhogg/nuka-mind/internal/attention"
	"github.com/nidhogg/nuka-mind/internal/emergence"
	"github.com/nidhogg/nuka-mind/internal/memory"
	"github.com/nidhogg/nuka-mind/internal/persona"
	"go.uber.org/zap"
)

// Config holds controller thresholds.
type Config struct {
	AwarenessDecay    float64 // awareness lost per second (default 0.01)
	AwarenessRecovery float64 // awareness regained per second while thoughts are active (default 0.005)
	MaxGoals          int     // goals pursued at once (default 5)
	RecallLimit       int     // memories recalled per tick (default 10)
}

// DefaultConfig returns the default controller configuration.
func DefaultConfig() Config {
	return Config{
		AwarenessDecay:    0.01,
		AwarenessRecovery: 0.005,
		MaxGoals:          5,
		RecallLimit:       10,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.AwarenessDecay <= 0 {
		c.AwarenessDecay = d.AwarenessDecay
	}
	if c.AwarenessRecovery <= 0 {
		c.AwarenessRecovery = d.AwarenessRecovery
	}
	if c.MaxGoals <= 0 {
		c.MaxGoals = d.MaxGoals
	}
	if c.RecallLimit <= 0 {
		c.RecallLimit = d.RecallLimit
	}
	return c
}

// Perception is everything the agent receives for one tick.
type Perception struct {
	Stimuli       []attention.Stimulus       `json:"stimuli"`
	State         emergence.State            `json:"state"`
	Relationships persona.RelationshipLookup `json:"-"`
}

// TickResult reports one tick.
type TickResult struct {
	AgentID      string                `json:"agent_id"`
	Awareness    float64               `json:"awareness"`
	Focus        attention.FocusResult `json:"focus"`
	Recalled     []memory.Match        `json:"recalled"`
	Behaviors    []emergence.Behavior  `json:"behaviors"`
	StoredMemory string                `json:"stored_memory,omitempty"`
	Consolidated []string              `json:"consolidated,omitempty"`
	Goals        []attention.Goal      `json:"goals"`
}

// Controller owns one agent's memory, attention and emergence engine. It
// holds no algorithm beyond sequencing and thresholds.
type Controller struct {
	mu          sync.Mutex
	agentID     string
	personality persona.Personality
	memory      *memory.Store
	attention   *attention.Selector
	engine      *emergence.Engine
	cfg         Config
	logger      *zap.Logger
	now         func() time.Time

	goals     []attention.Goal
	awareness float64
	lastTick  time.Time
}

// New wires a controller and personalizes its attention.
func New(agentID string, p persona.Personality, mem *memory.Store, sel *attention.Selector, eng *emergence.Engine, cfg Config, logger *zap.Logger) *Controller {
	sel.Personalize(p)
	return &Controller{
		agentID:     agentID,
		personality: p,
		memory:      mem,
		attention:   sel,
		engine:      eng,
		cfg:         cfg.withDefaults(),
		logger:      logger.With(zap.String("agent", agentID)),
		now:         time.Now,
		awareness:   1,
	}
}

// SetClock replaces the time source.
func (c *Controller) SetClock(now func() time.Time) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}

// AgentID returns the owning agent.
func (c *Controller) AgentID() string { return c.agentID }

// Personality returns the agent's personality.
func (c *Controller) Personality() persona.Personality { return c.personality }

// Memory returns the agent's memory store.
func (c *Controller) Memory() *memory.Store { return c.memory }

// Attention returns the agent's attention selector.
func (c *Controller) Attention() *attention.Selector { return c.attention }

// Engine returns the agent's emergence engine.
func (c *Controller) Engine() *emergence.Engine { return c.engine }

// Awareness returns the current awareness level.
func (c *Controller) Awareness() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.awareness
}

// Tick runs one cognition cycle. Cancellation is honoured between stages;
// a tick cancelled before write-back returns ctx.Err() without touching
// memory, awareness or goals.
func (c *Controller) Tick(ctx context.Context, in Perception) (*TickResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	now := c.now()
	res := &TickResult{AgentID: c.agentID}

	awareness := c.decayAwareness(now)
	goals := c.pursued(c.live(now))

	res.Focus = c.attention.Focus(in.Stimuli, goals, in.Relationships)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	recalled, err := c.recall(res.Focus, in.State)
	if err != nil {
		return nil, err
	}
	res.Recalled = recalled
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	state := in.State
	state.AgentID = c.agentID
	if state.Novelty == 0 && len(res.Focus.Attended) > 0 {
		state.Novelty = res.Focus.Attended[0].Features.Novelty
	}
	if state.Goal == nil {
		if len(goals) > 0 {
			g := goals[0]
			state.Goal = &emergence.GoalState{ID: g.ID, Type: g.Type, Progress: g.Progress}
		}
	}
	records := make([]memory.Record, len(recalled))
	for i, m := range recalled {
		records[i] = m.Record
	}
	res.Behaviors = c.engine.CheckEmergence(state, records, c.personality)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Write back.
	c.awareness = awareness
	c.lastTick = now
	if f := res.Focus; f.Focus != nil && f.Switched && len(f.Attended) > 0 {
		id, err := c.memory.Store(focusMemory(f.Attended[0], state.Situation))
		if err != nil {
			c.logger.Warn("focused stimulus not remembered", zap.Error(err))
		} else {
			res.StoredMemory = id
		}
	}
	res.Consolidated = c.memory.ConsolidateWorking()
	c.goals = c.live(now)

	res.Awareness = c.awareness
	res.Goals = c.pursued(c.goals)

	c.logger.Debug("tick complete",
		zap.Float64("awareness", res.Awareness),
		zap.Int("attended", len(res.Focus.Attended)),
		zap.Int("recalled", len(res.Recalled)),
		zap.Int("behaviours", len(res.Behaviors)))
	return res, nil
}

// decayAwareness applies linear decay since the last tick, offset by
// recovery while emergent thoughts are still active.
func (c *Controller) decayAwareness(now time.Time) float64 {
	if c.lastTick.IsZero() {
		return c.awareness
	}
	dt := math.Max(now.Sub(c.lastTick).Seconds(), 0)
	a := c.awareness - c.cfg.AwarenessDecay*dt
	if len(c.engine.Active()) > 0 {
		a += c.cfg.AwarenessRecovery * dt
	}
	return math.Max(0, math.Min(1, a))
}

// recall queries memory for the focused stimulus type, else the current
// situation, then adds associated records. The query is a touching read;
// associated records are not touched.
func (c *Controller) recall(f attention.FocusResult, st emergence.State) ([]memory.Match, error) {
	var crit memory.Criteria
	switch {
	case f.Focus != nil && f.Focus.Stimulus.Type != "":
		crit.Type = f.Focus.Stimulus.Type
	case st.Situation != "":
		crit.Context = map[string]string{emergence.KeySituation: st.Situation}
	default:
		return nil, nil
	}
	crit.Limit = c.cfg.RecallLimit
	matches, err := c.memory.Query(crit)
	if err != nil || len(matches) == 0 || len(matches) >= crit.Limit {
		return matches, err
	}
	return c.associated(matches, crit.Limit), nil
}

// associated fills recall up to limit with records reached by spreading
// activation from the direct matches.
func (c *Controller) associated(matches []memory.Match, limit int) []memory.Match {
	seeds := make([]string, len(matches))
	for i, m := range matches {
		seeds[i] = m.Record.ID
	}
	opts := memory.DefaultActivationOpts()
	opts.MaxNodes = limit - len(matches)
	for _, a := range c.memory.Spread(seeds, opts) {
		matches = append(matches, memory.Match{Record: a.Record, Score: a.Activation, Mode: memory.ModeAssociation})
	}
	return matches
}

func focusMemory(s attention.Scored, situation string) memory.Record {
	content := s.Stimulus.Content
	if content == "" {
		content = s.Stimulus.Type
	}
	ctx := make(map[string]string)
	if s.Stimulus.Source != "" {
		ctx["source"] = s.Stimulus.Source
	}
	if s.Stimulus.Target != "" {
		ctx["target"] = s.Stimulus.Target
	}
	if situation != "" {
		ctx[emergence.KeySituation] = situation
	}
	return memory.Record{
		Type:       s.Stimulus.Type,
		Content:    content,
		Context:    ctx,
		Emotion:    s.Stimulus.Emotion,
		Importance: s.Salience,
		Timestamp:  s.Stimulus.Timestamp,
	}
}

// AddGoal adds or replaces a goal by id and returns its id.
func (c *Controller) AddGoal(g attention.Goal) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if g.ID == "" {
		g.ID = uuid.New().String()
	}
	for i := range c.goals {
		if c.goals[i].ID == g.ID {
			c.goals[i] = g
			c.goals = c.live(c.now())
			return g.ID
		}
	}
	c.goals = append(c.goals, g)
	c.goals = c.live(c.now())
	return g.ID
}

// Goals returns the pursued goals: the top MaxGoals by priority.
func (c *Controller) Goals() []attention.Goal {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pursued(c.live(c.now()))
}

// live drops completed and expired goals and orders the rest by priority.
func (c *Controller) live(now time.Time) []attention.Goal {
	kept := make([]attention.Goal, 0, len(c.goals))
	for _, g := range c.goals {
		if g.Active(now) {
			kept = append(kept, g)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Priority > kept[j].Priority })
	return kept
}

func (c *Controller) pursued(live []attention.Goal) []attention.Goal {
	n := min(len(live), c.cfg.MaxGoals)
	return append([]attention.Goal(nil), live[:n]...)
}

// MaintenanceReport summarizes one slow-cadence sweep.
type MaintenanceReport struct {
	AgentID      string                   `json:"agent_id"`
	Forgetting   memory.ForgettingResult  `json:"forgetting"`
	Compression  memory.CompressionResult `json:"compression"`
	Consolidated int                      `json:"consolidated"`
}

// Maintain runs the slower memory sweeps: pending consolidation, forgetting
// and compression.
func (c *Controller) Maintain() MaintenanceReport {
	c.mu.Lock()
	defer c.mu.Unlock()
	rep := MaintenanceReport{AgentID: c.agentID}
	rep.Consolidated = c.memory.ConsolidatePending()
	rep.Forgetting = c.memory.ProcessForgetting()
	rep.Compression = c.memory.Compress()
	c.goals = c.live(c.now())
	return rep
}
