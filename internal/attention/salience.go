package attention

import (
	"math"
	"strings"

	"github.com/nidhogg/nuka-mind/internal/persona"
)

// Features are the five salience signals of a stimulus, each in [0,1].
type Features struct {
	Novelty   float64 `json:"novelty"`
	Relevance float64 `json:"relevance"`
	Urgency   float64 `json:"urgency"`
	Emotional float64 `json:"emotional"`
	Social    float64 `json:"social"`
}

// Weights blends Features into a salience score.
type Weights struct {
	Novelty   float64 `json:"novelty"`
	Relevance float64 `json:"relevance"`
	Urgency   float64 `json:"urgency"`
	Emotional float64 `json:"emotional"`
	Social    float64 `json:"social"`
}

// DefaultWeights returns the baseline feature weights.
func DefaultWeights() Weights {
	return Weights{Novelty: 0.30, Relevance: 0.25, Urgency: 0.20, Emotional: 0.15, Social: 0.10}
}

// Normalize scales the weights to sum to 1. All-zero weights become the
// defaults.
func (w Weights) Normalize() Weights {
	sum := w.Novelty + w.Relevance + w.Urgency + w.Emotional + w.Social
	if sum <= 0 {
		return DefaultWeights()
	}
	return Weights{
		Novelty:   w.Novelty / sum,
		Relevance: w.Relevance / sum,
		Urgency:   w.Urgency / sum,
		Emotional: w.Emotional / sum,
		Social:    w.Social / sum,
	}
}

// Score returns the weighted sum of f clamped to [0,1].
func (w Weights) Score(f Features) float64 {
	return clamp01(w.Novelty*f.Novelty +
		w.Relevance*f.Relevance +
		w.Urgency*f.Urgency +
		w.Emotional*f.Emotional +
		w.Social*f.Social)
}

const (
	emptyBufferNovelty = 0.5
	noGoalRelevance    = 0.3
	unknownSocial      = 0.3
)

// features computes the salience signals of s against the recent context,
// the active goals and the relationship lookup (which may be nil).
func features(s Stimulus, recent []Stimulus, goals []Goal, rels persona.RelationshipLookup) Features {
	return Features{
		Novelty:   novelty(s, recent),
		Relevance: relevance(s, goals),
		Urgency:   urgencyOf(s),
		Emotional: clamp01(persona.MeanAbs(s.Emotion)),
		Social:    social(s, rels),
	}
}

func novelty(s Stimulus, recent []Stimulus) float64 {
	if len(recent) == 0 {
		return emptyBufferNovelty
	}
	var most float64
	for _, r := range recent {
		if sim := stimulusSimilarity(s, r); sim > most {
			most = sim
		}
	}
	return clamp01(1 - most)
}

// stimulusSimilarity: type 0.4, source 0.2, target 0.2, content token
// Jaccard 0.2.
func stimulusSimilarity(a, b Stimulus) float64 {
	var sim float64
	if a.Type != "" && a.Type == b.Type {
		sim += 0.4
	}
	if a.Source != "" && a.Source == b.Source {
		sim += 0.2
	}
	if a.Target != "" && a.Target == b.Target {
		sim += 0.2
	}
	sim += 0.2 * jaccard(words(a.Content), words(b.Content))
	return sim
}

// relevance is the best partial match against active goals.
func relevance(s Stimulus, goals []Goal) float64 {
	if len(goals) == 0 {
		return noGoalRelevance
	}
	var best float64
	for _, g := range goals {
		var credit float64
		if g.Type != "" && g.Type == s.Type {
			credit += 0.5
		}
		if g.Target != "" && g.Target == s.Target {
			credit += 0.3
		}
		if g.Category != "" && g.Category == s.Category {
			credit += 0.2
		}
		if credit > best {
			best = credit
		}
	}
	return best
}

// social is the mean relationship with the source; hostility scores 0.
func social(s Stimulus, rels persona.RelationshipLookup) float64 {
	if rels == nil || s.Source == "" {
		return unknownSocial
	}
	rel, ok := rels.Lookup(s.Source)
	if !ok {
		return unknownSocial
	}
	return clamp01(rel.Mean())
}

func words(text string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,;:!?\"'()")
		if w != "" {
			out[w] = struct{}{}
		}
	}
	return out
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	shared := 0
	for w := range a {
		if _, ok := b[w]; ok {
			shared++
		}
	}
	return float64(shared) / float64(len(a)+len(b)-shared)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
