package attention

import (
	"math"
	"sync"
	"time"

	"github.com/nidhogg/nuka-mind/internal/persona"
	"github.com/nidhogg/nuka-mind/internal/ring"
	"go.uber.org/zap"
)

// Config holds selector tuning.
type Config struct {
	Threshold   float64 // minimum salience to be attended (default 0.3)
	Span        int     // attended stimuli kept per focus call (default 7)
	Heads       int     // multi-head attention heads (default 4)
	DecayRate   float64 // focus strength decay per second (default 0.1)
	BufferSize  int     // attention buffer capacity (default 50)
	HistorySize int     // focus history capacity (default 10)
	ContextSize int     // recent stimuli novelty is measured against (default 10)
}

// DefaultConfig returns the default selector configuration.
func DefaultConfig() Config {
	return Config{
		Threshold:   0.3,
		Span:        7,
		Heads:       4,
		DecayRate:   0.1,
		BufferSize:  50,
		HistorySize: 10,
		ContextSize: 10,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Threshold <= 0 {
		c.Threshold = d.Threshold
	}
	if c.Span <= 0 {
		c.Span = d.Span
	}
	if c.Heads <= 0 {
		c.Heads = d.Heads
	}
	if c.DecayRate <= 0 {
		c.DecayRate = d.DecayRate
	}
	if c.BufferSize <= 0 {
		c.BufferSize = d.BufferSize
	}
	if c.HistorySize <= 0 {
		c.HistorySize = d.HistorySize
	}
	if c.ContextSize <= 0 {
		c.ContextSize = d.ContextSize
	}
	return c
}

// Focus is the stimulus currently holding attention.
type Focus struct {
	Stimulus Stimulus  `json:"stimulus"`
	Weight   float64   `json:"weight"`
	Since    time.Time `json:"since"`
}

// Entry is one attention-buffer sample.
type Entry struct {
	StimulusID string    `json:"stimulus_id"`
	Weight     float64   `json:"weight"`
	At         time.Time `json:"at"`
}

// FocusResult is the outcome of one Focus call.
type FocusResult struct {
	Focus          *Focus   `json:"focus,omitempty"`
	Strength       float64  `json:"strength"`
	Switched       bool     `json:"switched"`
	Attended       []Scored `json:"attended"`
	AttentionLevel float64  `json:"attention_level"`
}

// ShouldSwitch reports whether a challenger weight overcomes the current
// focus strength given the distraction resistance.
func ShouldSwitch(current, challenger, resistance float64) bool {
	return challenger > current*(1+resistance)
}

// Selector is one agent's attention. It is safe for concurrent use.
type Selector struct {
	mu         sync.Mutex
	cfg        Config
	logger     *zap.Logger
	now        func() time.Time
	weights    Weights
	resistance float64

	current *Focus
	buffer  *ring.Ring[Entry]
	history *ring.Ring[Focus]
	recent  *ring.Ring[Stimulus]
}

// NewSelector creates a selector with default weights and resistance.
func NewSelector(cfg Config, logger *zap.Logger) *Selector {
	cfg = cfg.withDefaults()
	return &Selector{
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
		weights:    DefaultWeights(),
		resistance: persona.NeutralTrait,
		buffer:     ring.New[Entry](cfg.BufferSize),
		history:    ring.New[Focus](cfg.HistorySize),
		recent:     ring.New[Stimulus](cfg.ContextSize),
	}
}

// SetClock replaces the time source.
func (s *Selector) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

// Personalize derives feature weights and distraction resistance from a
// personality: novelty x1.3 for curiosity > 0.7, urgency x1.4 for
// neuroticism > 0.7, social x1.3 for extraversion > 0.7, renormalized.
func (s *Selector) Personalize(p persona.Personality) {
	w := DefaultWeights()
	if p.Trait(persona.TraitCuriosity, persona.NeutralTrait) > 0.7 {
		w.Novelty *= 1.3
	}
	if p.Trait(persona.TraitNeuroticism, persona.NeutralTrait) > 0.7 {
		w.Urgency *= 1.4
	}
	if p.Trait(persona.TraitExtraversion, persona.NeutralTrait) > 0.7 {
		w.Social *= 1.3
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.weights = w.Normalize()
	s.resistance = p.Trait(persona.TraitConscientiousness, persona.NeutralTrait)
}

// Weights returns the current feature weights.
func (s *Selector) Weights() Weights {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.weights
}

// Resistance returns the distraction resistance.
func (s *Selector) Resistance() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resistance
}

// Salience scores one stimulus against the current context without
// changing any state.
func (s *Selector) Salience(st Stimulus, goals []Goal, rels persona.RelationshipLookup) (float64, Features) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := features(st, s.recent.Items(), activeGoals(goals, s.now()), rels)
	return s.weights.Score(f), f
}

// Focus ranks stimuli, updates the sticky focus and returns the attended
// set. A new top stimulus replaces the current focus only when its weight
// exceeds the decayed focus strength times (1 + resistance). Focus lapses
// once its strength falls below half the threshold.
func (s *Selector) Focus(stimuli []Stimulus, goals []Goal, rels persona.RelationshipLookup) FocusResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	goals = activeGoals(goals, now)
	recent := s.recent.Items()

	candidates := make([]Scored, 0, len(stimuli))
	for i := range stimuli {
		st := stimuli[i]
		if st.Timestamp.IsZero() {
			st.Timestamp = now
		}
		s.recent.Push(st)
		f := features(st, recent, goals, rels)
		sal := s.weights.Score(f)
		if sal > s.cfg.Threshold {
			candidates = append(candidates, Scored{Stimulus: st, Features: f, Salience: sal})
		}
	}
	attended := MultiHeadAttention(candidates, s.cfg.Heads)
	if len(attended) > s.cfg.Span {
		attended = attended[:s.cfg.Span]
	}

	var res FocusResult
	strength := s.strength(now)
	if s.current != nil && strength < s.cfg.Threshold/2 {
		s.logger.Debug("focus lapsed",
			zap.String("stimulus", s.current.Stimulus.ID),
			zap.Float64("strength", strength))
		s.history.Push(*s.current)
		s.current = nil
		strength = 0
	}

	if len(attended) > 0 {
		top := attended[0]
		switch {
		case s.current == nil:
			s.current = &Focus{Stimulus: top.Stimulus, Weight: top.Weight, Since: now}
			strength = top.Weight
			res.Switched = true
		case s.current.Stimulus.ID == top.Stimulus.ID:
			if top.Weight > strength {
				s.current = &Focus{Stimulus: top.Stimulus, Weight: top.Weight, Since: now}
				strength = top.Weight
			}
		case ShouldSwitch(strength, top.Weight, s.resistance):
			s.logger.Debug("focus switched",
				zap.String("from", s.current.Stimulus.ID),
				zap.String("to", top.Stimulus.ID),
				zap.Float64("strength", strength),
				zap.Float64("challenger", top.Weight))
			s.history.Push(*s.current)
			s.current = &Focus{Stimulus: top.Stimulus, Weight: top.Weight, Since: now}
			strength = top.Weight
			res.Switched = true
		}
	}

	for _, a := range attended {
		s.buffer.Push(Entry{StimulusID: a.Stimulus.ID, Weight: a.Weight, At: now})
	}

	if s.current != nil {
		f := *s.current
		res.Focus = &f
		res.Strength = strength
	}
	res.Attended = attended
	res.AttentionLevel = s.level()
	return res
}

// Current returns the focus and its decayed strength, if any.
func (s *Selector) Current() (*Focus, float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil, 0
	}
	f := *s.current
	return &f, s.strength(s.now())
}

// History returns past foci, oldest first.
func (s *Selector) History() []Focus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.Items()
}

// AttentionLevel is the mean weight of the most recent Span buffer entries.
func (s *Selector) AttentionLevel() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.level()
}

func (s *Selector) level() float64 {
	last := s.buffer.Last(s.cfg.Span)
	if len(last) == 0 {
		return 0
	}
	var sum float64
	for _, e := range last {
		sum += e.Weight
	}
	return sum / float64(len(last))
}

// strength is the current focus weight decayed by elapsed seconds.
func (s *Selector) strength(now time.Time) float64 {
	if s.current == nil {
		return 0
	}
	dt := math.Max(now.Sub(s.current.Since).Seconds(), 0)
	return s.current.Weight * math.Exp(-s.cfg.DecayRate*dt)
}

func activeGoals(goals []Goal, now time.Time) []Goal {
	out := make([]Goal, 0, len(goals))
	for _, g := range goals {
		if g.Active(now) {
			out = append(out, g)
		}
	}
	return out
}
