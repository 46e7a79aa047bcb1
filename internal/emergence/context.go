// Package emergence synthesizes behaviours from the interaction of a fixed
// rule library with an agent's situation.
package emergence

import (
	"math"

	"github.com/nidhogg/nuka-mind/internal/memory"
	"github.com/nidhogg/nuka-mind/internal/persona"
)

// GoalState is the agent's active goal as seen by the rules.
type GoalState struct {
	ID        string  `json:"id"`
	Type      string  `json:"type"`
	Progress  float64 `json:"progress"`
	Conflicts int     `json:"conflicts"`
}

// State is the raw agent situation a context is assembled from.
type State struct {
	AgentID        string             `json:"agent_id"`
	Needs          map[string]float64 `json:"needs,omitempty"` // 0 satisfied, 1 desperate
	Threat         float64            `json:"threat"`
	Emotion        persona.Emotion    `json:"emotion"`
	Nearby         []string           `json:"nearby,omitempty"`
	RecentKindness float64            `json:"recent_kindness"`
	Novelty        float64            `json:"novelty"`
	Goal           *GoalState         `json:"goal,omitempty"`
	Situation      string             `json:"situation,omitempty"`
}

// Context is the flat view every rule condition is evaluated against.
type Context struct {
	NeedUrgency       float64 `json:"need_urgency"`
	Threat            float64 `json:"threat"`
	EmotionalExtreme  float64 `json:"emotional_extreme"`
	Mood              string  `json:"mood,omitempty"`
	Social            bool    `json:"social"`
	RecentKindness    float64 `json:"recent_kindness"`
	Novelty           float64 `json:"novelty"`
	ActiveGoal        string  `json:"active_goal,omitempty"`
	GoalProgress      float64 `json:"goal_progress"`
	GoalConflicts     int     `json:"goal_conflicts"`
	SimilarPast       bool    `json:"similar_past"`
	PastOutcome       string  `json:"past_outcome,omitempty"`
	TraumaTriggered   bool    `json:"trauma_triggered"`
	IncompletePattern bool    `json:"incomplete_pattern"`
	EmotionalEnergy   float64 `json:"emotional_energy"`

	Personality persona.Personality `json:"personality,omitempty"`
}

// Memory context keys AssembleContext reads.
const (
	KeySituation = "situation"
	KeyOutcome   = "outcome"
	KeyStatus    = "status"

	statusIncomplete = "incomplete"
	traumaImportance = 0.8
)

// AssembleContext derives the rule context from the agent state, the
// recalled memories and the personality. It is total: any missing input
// yields neutral values.
func AssembleContext(state State, memories []memory.Record, p persona.Personality) Context {
	ctx := Context{
		Threat:           clamp01(state.Threat),
		EmotionalExtreme: clamp01(state.Emotion.Extreme()),
		Mood:             state.Emotion.Mood,
		Social:           len(state.Nearby) > 0,
		RecentKindness:   clamp01(state.RecentKindness),
		Novelty:          clamp01(state.Novelty),
		EmotionalEnergy:  clamp01(state.Emotion.MeanAbs()),
		Personality:      p,
	}
	for _, v := range state.Needs {
		ctx.NeedUrgency = math.Max(ctx.NeedUrgency, clamp01(v))
	}
	if g := state.Goal; g != nil {
		ctx.ActiveGoal = g.Type
		if ctx.ActiveGoal == "" {
			ctx.ActiveGoal = g.ID
		}
		ctx.GoalProgress = clamp01(g.Progress)
		ctx.GoalConflicts = max(g.Conflicts, 0)
	}

	bestPast := -1.0
	for _, m := range memories {
		if m.Context[KeyStatus] == statusIncomplete {
			ctx.IncompletePattern = true
		}
		if state.Situation == "" || m.Context[KeySituation] != state.Situation {
			continue
		}
		if m.Category == memory.CategoryEmotional && m.Importance > traumaImportance {
			ctx.TraumaTriggered = true
		}
		if m.Importance > bestPast {
			bestPast = m.Importance
			ctx.SimilarPast = true
			ctx.PastOutcome = m.Context[KeyOutcome]
		}
	}
	return ctx
}

// trait returns a personality trait, neutral when absent.
func (c Context) trait(name string) float64 {
	return c.Personality.Trait(name, persona.NeutralTrait)
}

// CreativityFactor is 0.5 plus the creativity trait (openness when
// creativity is absent), in [0.5, 1.5].
func (c Context) CreativityFactor() float64 {
	if c.Personality.Has(persona.TraitCreativity) {
		return 0.5 + c.trait(persona.TraitCreativity)
	}
	return 0.5 + c.trait(persona.TraitOpenness)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
