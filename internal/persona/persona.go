// Package persona holds the contracts the cognition core consumes from its
// collaborators: personality traits, emotional state and relationships.
package persona

import "math"

// Trait names understood by the cognition core.
const (
	TraitCuriosity         = "curiosity"
	TraitOpenness          = "openness"
	TraitConscientiousness = "conscientiousness"
	TraitExtraversion      = "extraversion"
	TraitAgreeableness     = "agreeableness"
	TraitNeuroticism       = "neuroticism"
	TraitCreativity        = "creativity"
)

// NeutralTrait is assumed for any trait the personality does not define.
const NeutralTrait = 0.5

// Personality maps trait name to a value in [0,1]. It is stable for the
// duration of a tick.
type Personality map[string]float64

// Trait returns the named trait, or def when it is absent.
func (p Personality) Trait(name string, def float64) float64 {
	if v, ok := p[name]; ok {
		return clamp01(v)
	}
	return def
}

// Has reports whether the trait is defined.
func (p Personality) Has(name string) bool {
	_, ok := p[name]
	return ok
}

// Emotion is an emotional state: numeric sub-fields in [-1,1] plus a
// discrete mood label.
type Emotion struct {
	Values map[string]float64 `json:"values,omitempty"`
	Mood   string             `json:"mood,omitempty"`
}

// MeanAbs returns the mean absolute value across the numeric sub-fields.
func (e Emotion) MeanAbs() float64 {
	return MeanAbs(e.Values)
}

// Extreme returns the largest absolute sub-field value.
func (e Emotion) Extreme() float64 {
	var m float64
	for _, v := range e.Values {
		if a := math.Abs(v); a > m {
			m = a
		}
	}
	return m
}

// MeanAbs returns the mean absolute value of vals, 0 when empty.
func MeanAbs(vals map[string]float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vals {
		sum += math.Abs(v)
	}
	return sum / float64(len(vals))
}

// Relationship describes how an agent regards another entity. Values are in
// [-1,1].
type Relationship struct {
	Trust     float64 `json:"trust"`
	Affection float64 `json:"affection"`
	Respect   float64 `json:"respect"`
}

// Mean returns the average of trust, affection and respect.
func (r Relationship) Mean() float64 {
	return (r.Trust + r.Affection + r.Respect) / 3
}

// RelationshipLookup resolves an entity id to a relationship.
type RelationshipLookup interface {
	Lookup(entityID string) (Relationship, bool)
}

// Relationships is an in-memory RelationshipLookup keyed by entity id.
type Relationships map[string]Relationship

// Lookup implements RelationshipLookup. A nil map finds nothing.
func (r Relationships) Lookup(entityID string) (Relationship, bool) {
	rel, ok := r[entityID]
	return rel, ok
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
