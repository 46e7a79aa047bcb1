package emergence

import (
	"math"
	"strings"
	"time"
)

// Kind classifies patterns and the behaviours built from them.
type Kind string

const (
	KindSingle       Kind = "single"
	KindInteraction  Kind = "interaction"
	KindComplex      Kind = "complex"
	KindNovel        Kind = "novel"
	KindHabitForming Kind = "habit_forming"
	KindMetaEmergent Kind = "meta_emergent"
	KindSequence     Kind = "behavioral_sequence"
)

// Markers tag patterns; they are never chosen as actions.
const (
	MarkerSurprising = "surprising_behavior"
	MarkerHabit      = "habit_formation"
)

// Labels synthesized for rule chains.
const (
	OutcomeComplex          = "complex_behavior"
	OutcomeNovelSolution    = "novel_solution"
	OutcomeSocialInnovation = "social_innovation"
)

// Pattern is a combination of fired rules.
type Pattern struct {
	Key            string    `json:"key"`
	Kind           Kind      `json:"kind"`
	Origin         Kind      `json:"origin,omitempty"` // base kind of a novel or habit_forming variant
	RuleIDs        []string  `json:"rule_ids"`
	Strength       float64   `json:"strength"`
	Outcomes       []string  `json:"outcomes"`
	Markers        []string  `json:"markers,omitempty"`
	DiscoveryCount int       `json:"discovery_count"`
	FirstSeen      time.Time `json:"first_seen"`
	LastSeen       time.Time `json:"last_seen"`
}

// PatternKey is the registry key of a rule combination: kind_sortedRuleIds.
func PatternKey(kind Kind, ruleIDs []string) string {
	return string(kind) + "_" + joinIDs(ruleIDs)
}

func newPattern(kind Kind, ids []string, strength float64, outcomes []string) Pattern {
	return Pattern{
		Key:      PatternKey(kind, ids),
		Kind:     kind,
		RuleIDs:  sortedIDs(ids),
		Strength: clamp01(strength),
		Outcomes: append([]string(nil), outcomes...),
	}
}

// Detect finds the single, interaction and complex patterns in a firing
// set.
func (rs *RuleSet) Detect(fired []Rule) []Pattern {
	var out []Pattern
	for _, r := range fired {
		out = append(out, newPattern(KindSingle, []string{r.ID}, r.Weight, r.Outcomes))
	}

	for i := 0; i < len(fired); i++ {
		for j := i + 1; j < len(fired); j++ {
			a, b := fired[i], fired[j]
			s, ok := rs.Synergy(a.ID, b.ID)
			if !ok {
				continue
			}
			strength := (a.Weight + b.Weight) / 2 * s.Factor
			out = append(out, newPattern(KindInteraction, []string{a.ID, b.ID}, strength, s.Outcomes))
		}
	}

	weights := make(map[string]float64, len(fired))
	for _, r := range fired {
		weights[r.ID] = r.Weight
	}
	for _, chain := range rs.chains(fired) {
		logSum := 0.0
		var outcomes []string
		seen := make(map[string]bool)
		for _, id := range chain {
			logSum += math.Log(math.Max(weights[id], 1e-9))
			r, _ := rs.Rule(id)
			for _, o := range r.Outcomes {
				if !seen[o] {
					seen[o] = true
					outcomes = append(outcomes, o)
				}
			}
		}
		outcomes = append(outcomes, OutcomeComplex)
		if anyContains(chain, "creative") {
			outcomes = append(outcomes, OutcomeNovelSolution)
		}
		if anyContains(chain, "social") {
			outcomes = append(outcomes, OutcomeSocialInnovation)
		}
		strength := math.Exp(logSum / float64(len(chain)))
		out = append(out, newPattern(KindComplex, chain, strength, outcomes))
	}
	return out
}

// chains returns the maximal outcome-linked paths of three or more fired
// rules, one per distinct rule set.
func (rs *RuleSet) chains(fired []Rule) [][]string {
	if len(fired) < 3 {
		return nil
	}
	ids := make([]string, len(fired))
	for i, r := range fired {
		ids[i] = r.ID
	}

	var paths [][]string
	seen := make(map[string]bool)
	var walk func(path []string)
	walk = func(path []string) {
		last := path[len(path)-1]
		extended := false
		for _, next := range ids {
			if seen[next] || !rs.enables(last, next) {
				continue
			}
			extended = true
			seen[next] = true
			walk(append(path[:len(path):len(path)], next))
			delete(seen, next)
		}
		if !extended && len(path) >= 3 {
			paths = append(paths, append([]string(nil), path...))
		}
	}
	for _, id := range ids {
		seen[id] = true
		walk([]string{id})
		delete(seen, id)
	}

	sets := make(map[string]bool)
	var unique [][]string
	for _, p := range paths {
		key := joinIDs(p)
		if !sets[key] {
			sets[key] = true
			unique = append(unique, p)
		}
	}
	var out [][]string
	for i, p := range unique {
		subsumed := false
		for j, q := range unique {
			if i != j && len(q) > len(p) && subset(p, q) {
				subsumed = true
				break
			}
		}
		if !subsumed {
			out = append(out, p)
		}
	}
	return out
}

func subset(a, b []string) bool {
	in := make(map[string]bool, len(b))
	for _, x := range b {
		in[x] = true
	}
	for _, x := range a {
		if !in[x] {
			return false
		}
	}
	return true
}

func anyContains(ids []string, sub string) bool {
	for _, id := range ids {
		if strings.Contains(id, sub) {
			return true
		}
	}
	return false
}

// Registry tracks how often each rule combination has surfaced for one
// agent. Entries live in an arena indexed by key. Not safe for concurrent
// use; the owning Engine serializes access.
type Registry struct {
	patterns []Pattern
	index    map[string]int
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{index: make(map[string]int)}
}

// Observe records one occurrence of p and returns the updated entry.
func (r *Registry) Observe(p Pattern, now time.Time) Pattern {
	if i, ok := r.index[p.Key]; ok {
		e := &r.patterns[i]
		e.DiscoveryCount++
		e.LastSeen = now
		e.Strength = p.Strength
		return *e
	}
	p.DiscoveryCount = 1
	p.FirstSeen = now
	p.LastSeen = now
	r.index[p.Key] = len(r.patterns)
	r.patterns = append(r.patterns, p)
	return p
}

// Get returns the entry for key.
func (r *Registry) Get(key string) (Pattern, bool) {
	i, ok := r.index[key]
	if !ok {
		return Pattern{}, false
	}
	return r.patterns[i], true
}

// Restore inserts a saved entry unchanged and reports whether it was kept.
// Entries without a key or with a key already present are ignored.
func (r *Registry) Restore(p Pattern) bool {
	if _, dup := r.Get(p.Key); dup || p.Key == "" {
		return false
	}
	r.index[p.Key] = len(r.patterns)
	r.patterns = append(r.patterns, p)
	return true
}

// Len is the number of distinct patterns seen.
func (r *Registry) Len() int { return len(r.patterns) }

// All returns the entries in discovery order.
func (r *Registry) All() []Pattern {
	return append([]Pattern(nil), r.patterns...)
}
