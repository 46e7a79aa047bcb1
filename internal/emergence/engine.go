package emergence

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nidhogg/nuka-mind/internal/memory"
	"github.com/nidhogg/nuka-mind/internal/persona"
	"github.com/nidhogg/nuka-mind/internal/ring"
	"go.uber.org/zap"
)

// Behavior is an action synthesized from a pattern.
type Behavior struct {
	ID                    string         `json:"id"`
	AgentID               string         `json:"agent_id"`
	Action                string         `json:"action"`
	Kind                  Kind           `json:"kind"`
	Origin                Kind           `json:"origin,omitempty"`
	RuleIDs               []string       `json:"rule_ids"`
	Parameters            map[string]any `json:"parameters"`
	Strength              float64        `json:"strength"`
	Novel                 bool           `json:"novel,omitempty"`
	Habit                 bool           `json:"habit,omitempty"`
	Markers               []string       `json:"markers,omitempty"`
	PredictedConsequences []string       `json:"predicted_consequences"`
	Timestamp             time.Time      `json:"timestamp"`
}

// RuleError is a rule whose condition could not be evaluated. The rule is
// treated as not firing.
type RuleError struct {
	RuleID string
	Err    error
}

func (e *RuleError) Error() string { return fmt.Sprintf("rule %s: %v", e.RuleID, e.Err) }
func (e *RuleError) Unwrap() error { return e.Err }

// Fire evaluates every rule against ctx in table order. Failing rules are
// reported and skipped; they never abort the batch.
func (rs *RuleSet) Fire(ctx Context) ([]Rule, []error) {
	var fired []Rule
	var errs []error
	for _, r := range rs.rules {
		ok, err := safeEvaluate(r.Condition, ctx)
		if err != nil {
			errs = append(errs, &RuleError{RuleID: r.ID, Err: err})
			continue
		}
		if ok {
			fired = append(fired, r)
		}
	}
	return fired, errs
}

func safeEvaluate(c Condition, ctx Context) (ok bool, err error) {
	defer func() {
		if p := recover(); p != nil {
			ok, err = false, fmt.Errorf("condition panicked: %v", p)
		}
	}()
	return Evaluate(c, ctx)
}

// Config holds engine tuning.
type Config struct {
	HistorySize       int           // behaviour history ring (default 100)
	ActiveTTL         time.Duration // active-set lifetime (default 60s)
	HabitInterval     int           // repeats between habit_forming variants (default 10)
	HabitFactor       float64       // habit strength multiplier (default 0.8)
	VarietyRate       float64       // variety pick probability per creativity unit (default 0.5)
	SequenceThreshold float64       // minimum strength for a behavioural sequence (default 0.6)
	Seed              uint64        // random seed, 0 = time based
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		HistorySize:       100,
		ActiveTTL:         60 * time.Second,
		HabitInterval:     10,
		HabitFactor:       0.8,
		VarietyRate:       0.5,
		SequenceThreshold: 0.6,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.HistorySize <= 0 {
		c.HistorySize = d.HistorySize
	}
	if c.ActiveTTL <= 0 {
		c.ActiveTTL = d.ActiveTTL
	}
	if c.HabitInterval <= 0 {
		c.HabitInterval = d.HabitInterval
	}
	if c.HabitFactor <= 0 {
		c.HabitFactor = d.HabitFactor
	}
	if c.VarietyRate < 0 {
		c.VarietyRate = d.VarietyRate
	}
	if c.SequenceThreshold <= 0 {
		c.SequenceThreshold = d.SequenceThreshold
	}
	return c
}

// Engine evaluates the shared rule library for one agent and remembers the
// patterns that agent has produced.
type Engine struct {
	mu       sync.Mutex
	agentID  string
	rules    *RuleSet
	cfg      Config
	logger   *zap.Logger
	now      func() time.Time
	rng      *rand.Rand
	registry *Registry
	history  *ring.Ring[Behavior]
	active   *ring.Ring[Behavior]
}

// NewEngine creates an engine for agentID over rules (DefaultRuleSet when
// nil).
func NewEngine(agentID string, rules *RuleSet, cfg Config, logger *zap.Logger) *Engine {
	if rules == nil {
		rules = DefaultRuleSet()
	}
	cfg = cfg.withDefaults()
	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &Engine{
		agentID:  agentID,
		rules:    rules,
		cfg:      cfg,
		logger:   logger.With(zap.String("agent", agentID)),
		now:      time.Now,
		rng:      rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		registry: NewRegistry(),
		history:  ring.New[Behavior](cfg.HistorySize),
		active:   ring.New[Behavior](cfg.HistorySize),
	}
}

// SetClock replaces the time source.
func (e *Engine) SetClock(now func() time.Time) {
	e.mu.Lock()
	e.now = now
	e.mu.Unlock()
}

// CheckEmergence assembles the context from the agent state, recalled
// memories and personality, then evaluates it.
func (e *Engine) CheckEmergence(state State, memories []memory.Record, p persona.Personality) []Behavior {
	return e.Evaluate(AssembleContext(state, memories, p))
}

// Evaluate fires the rules against ctx, detects patterns, checks them
// against the registry and builds behaviours, meta-emergent ones included.
// An empty result is valid.
func (e *Engine) Evaluate(ctx Context) []Behavior {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	fired, errs := e.rules.Fire(ctx)
	for _, err := range errs {
		e.logger.Warn("rule skipped", zap.Error(err))
	}

	cf := ctx.CreativityFactor()
	var out []Behavior
	for _, p := range e.rules.Detect(fired) {
		for _, variant := range e.observe(p, now, cf) {
			if b := e.build(variant, ctx, now, cf); b != nil {
				out = append(out, *b)
			}
		}
	}
	out = append(out, e.metaEmergence(out, now)...)

	for _, b := range out {
		e.history.Push(b)
		e.active.Push(b)
	}
	e.prune(now)

	if len(out) > 0 {
		e.logger.Debug("emergent behaviours",
			zap.Int("fired", len(fired)),
			zap.Int("behaviours", len(out)))
	}
	return out
}

// observe registers p and returns the patterns to emit: the novel variant
// on first sight, otherwise p itself plus a habit_forming variant every
// HabitInterval repeats.
func (e *Engine) observe(p Pattern, now time.Time, cf float64) []Pattern {
	entry := e.registry.Observe(p, now)
	p.DiscoveryCount = entry.DiscoveryCount
	p.FirstSeen = entry.FirstSeen
	p.LastSeen = now

	if entry.DiscoveryCount == 1 {
		n := p
		n.Origin = p.Kind
		n.Kind = KindNovel
		n.Key = PatternKey(KindNovel, p.RuleIDs)
		n.Strength = clamp01(p.Strength * cf)
		n.Markers = []string{MarkerSurprising}
		e.logger.Info("novel pattern", zap.String("pattern", p.Key))
		return []Pattern{n}
	}

	out := []Pattern{p}
	if repeats := entry.DiscoveryCount - 1; repeats%e.cfg.HabitInterval == 0 {
		h := p
		h.Origin = p.Kind
		h.Kind = KindHabitForming
		h.Key = PatternKey(KindHabitForming, p.RuleIDs)
		h.Strength = clamp01(p.Strength * e.cfg.HabitFactor)
		h.Markers = []string{MarkerHabit}
		out = append(out, h)
	}
	return out
}

// build chooses an action for p and assembles the behaviour. It returns nil
// when no action remains or the action is vetoed.
func (e *Engine) build(p Pattern, ctx Context, now time.Time, cf float64) *Behavior {
	ranked := rankOutcomes(p.Outcomes, ctx)
	if len(ranked) == 0 {
		return nil
	}
	pick := 0
	if len(ranked) > 1 && e.rng.Float64() < cf*e.cfg.VarietyRate {
		pick = e.rng.IntN(min(3, len(ranked)))
	}
	action := ranked[pick].outcome

	if suppressed(action, ctx) {
		e.logger.Debug("behaviour suppressed",
			zap.String("action", action),
			zap.String("pattern", p.Key))
		return nil
	}

	return &Behavior{
		ID:                    uuid.New().String(),
		AgentID:               e.agentID,
		Action:                action,
		Kind:                  p.Kind,
		Origin:                p.Origin,
		RuleIDs:               append([]string(nil), p.RuleIDs...),
		Parameters:            parameters(action, p.Strength, ctx),
		Strength:              p.Strength,
		Novel:                 p.Kind == KindNovel,
		Habit:                 p.Kind == KindHabitForming,
		Markers:               append([]string(nil), p.Markers...),
		PredictedConsequences: predictedConsequences(action),
		Timestamp:             now,
	}
}

// suppressed is the safety veto: never flee from nothing.
func suppressed(action string, ctx Context) bool {
	return action == "flee" && ctx.Threat == 0
}

// prune drops expired behaviours. The active set is also capped at
// HistorySize, oldest first, however fast behaviours arrive.
func (e *Engine) prune(now time.Time) {
	e.active.RemoveFunc(func(b Behavior) bool {
		return now.Sub(b.Timestamp) > e.cfg.ActiveTTL
	})
}

// History returns the most recent behaviours, oldest first.
func (e *Engine) History() []Behavior {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.history.Items()
}

// Active returns behaviours emitted within the active TTL.
func (e *Engine) Active() []Behavior {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.prune(e.now())
	return e.active.Items()
}

// Patterns returns the registry entries in discovery order.
func (e *Engine) Patterns() []Pattern {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.registry.All()
}

// RestorePatterns replaces the registry with saved entries.
func (e *Engine) RestorePatterns(ps []Pattern) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.registry = NewRegistry()
	for _, p := range ps {
		e.registry.Restore(p)
	}
	if skipped := len(ps) - e.registry.Len(); skipped > 0 {
		e.logger.Warn("duplicate or unkeyed patterns dropped", zap.Int("skipped", skipped))
	}
}
