package emergence

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/nidhogg/nuka-mind/internal/persona"
)

// Rule categories.
const (
	CategorySurvival  = "survival"
	CategorySocial    = "social"
	CategoryEmotional = "emotional"
	CategoryCognitive = "cognitive"
	CategoryGoal      = "goal"
	CategoryMemory    = "memory"
	CategoryCreative  = "creative"
)

// Rule is an immutable behaviour rule.
type Rule struct {
	ID        string    `json:"id"`
	Category  string    `json:"category"`
	Condition Condition `json:"condition"`
	Weight    float64   `json:"weight"`
	Outcomes  []string  `json:"outcomes"`
}

// Synergy is the interaction produced when two rules fire together.
type Synergy struct {
	Rules    [2]string `json:"rules"`
	Factor   float64   `json:"factor"`
	Outcomes []string  `json:"outcomes"`
}

// RuleSet is the shared rule library: rules, pairwise synergies and the
// outcome-to-rule adjacency chains follow. It is read-only after
// construction and safe to share across agents.
type RuleSet struct {
	rules    []Rule
	byID     map[string]int
	synergy  map[string]Synergy
	triggers map[string][]string // outcome -> rules it enables
}

// NewRuleSet validates and indexes a rule library.
func NewRuleSet(rules []Rule, synergies []Synergy, triggers map[string][]string) (*RuleSet, error) {
	rs := &RuleSet{
		byID:     make(map[string]int, len(rules)),
		synergy:  make(map[string]Synergy, len(synergies)),
		triggers: make(map[string][]string, len(triggers)),
	}
	for _, r := range rules {
		if r.ID == "" {
			return nil, errors.New("rule without id")
		}
		if _, dup := rs.byID[r.ID]; dup {
			return nil, fmt.Errorf("duplicate rule %q", r.ID)
		}
		if r.Weight < 0 || r.Weight > 1 {
			return nil, fmt.Errorf("rule %q: weight %v outside [0,1]", r.ID, r.Weight)
		}
		r.Outcomes = append([]string(nil), r.Outcomes...)
		rs.byID[r.ID] = len(rs.rules)
		rs.rules = append(rs.rules, r)
	}
	for _, s := range synergies {
		for _, id := range s.Rules {
			if _, ok := rs.byID[id]; !ok {
				return nil, fmt.Errorf("synergy references unknown rule %q", id)
			}
		}
		s.Outcomes = append([]string(nil), s.Outcomes...)
		rs.synergy[pairKey(s.Rules[0], s.Rules[1])] = s
	}
	for outcome, ids := range triggers {
		for _, id := range ids {
			if _, ok := rs.byID[id]; !ok {
				return nil, fmt.Errorf("outcome %q triggers unknown rule %q", outcome, id)
			}
		}
		rs.triggers[outcome] = append([]string(nil), ids...)
	}
	return rs, nil
}

// MustRuleSet is NewRuleSet that panics on error, for static tables.
func MustRuleSet(rules []Rule, synergies []Synergy, triggers map[string][]string) *RuleSet {
	rs, err := NewRuleSet(rules, synergies, triggers)
	if err != nil {
		panic(err)
	}
	return rs
}

// Rules returns a copy of the rules in table order.
func (rs *RuleSet) Rules() []Rule {
	return append([]Rule(nil), rs.rules...)
}

// Rule looks a rule up by id.
func (rs *RuleSet) Rule(id string) (Rule, bool) {
	i, ok := rs.byID[id]
	if !ok {
		return Rule{}, false
	}
	return rs.rules[i], true
}

// Synergy returns the interaction for an unordered rule pair.
func (rs *RuleSet) Synergy(a, b string) (Synergy, bool) {
	s, ok := rs.synergy[pairKey(a, b)]
	return s, ok
}

// enables reports whether some outcome of from triggers to.
func (rs *RuleSet) enables(from, to string) bool {
	r, ok := rs.Rule(from)
	if !ok {
		return false
	}
	for _, o := range r.Outcomes {
		for _, id := range rs.triggers[o] {
			if id == to {
				return true
			}
		}
	}
	return false
}

func pairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "+" + b
}

func sortedIDs(ids []string) []string {
	out := append([]string(nil), ids...)
	sort.Strings(out)
	return out
}

func joinIDs(ids []string) string { return strings.Join(sortedIDs(ids), ",") }

var defaultRuleSet = MustRuleSet(defaultRules(), defaultSynergies(), defaultTriggers())

// DefaultRuleSet returns the built-in library shared by every agent.
func DefaultRuleSet() *RuleSet { return defaultRuleSet }

func defaultRules() []Rule {
	return []Rule{
		{
			ID: "self_preservation", Category: CategorySurvival, Weight: 0.9,
			Condition: Gt(FieldThreat, 0.5),
			Outcomes:  []string{"flee", "seek_shelter", "call_for_help"},
		},
		{
			ID: "basic_needs", Category: CategorySurvival, Weight: 0.8,
			Condition: Gt(FieldNeedUrgency, 0.7),
			Outcomes:  []string{"seek_food", "rest", "seek_water"},
		},
		{
			ID: "social_reciprocity", Category: CategorySocial, Weight: 0.7,
			Condition: Gt(FieldRecentKindness, 0.5),
			Outcomes:  []string{"return_favor", "express_gratitude"},
		},
		{
			ID: "social_bonding", Category: CategorySocial, Weight: 0.5,
			Condition: All(Set(FieldSocial), Gt(Trait(persona.TraitExtraversion), 0.6)),
			Outcomes:  []string{"initiate_conversation", "share_story"},
		},
		{
			ID: "conflict_avoidance", Category: CategorySocial, Weight: 0.6,
			Condition: All(Set(FieldSocial), Gt(FieldThreat, 0.3), Gt(Trait(persona.TraitAgreeableness), 0.6)),
			Outcomes:  []string{"de_escalate", "withdraw"},
		},
		{
			ID: "emotional_expression", Category: CategoryEmotional, Weight: 0.7,
			Condition: Gt(FieldEmotionalExtreme, 0.7),
			Outcomes:  []string{"express_emotion", "seek_comfort"},
		},
		{
			ID: "emotional_regulation", Category: CategoryEmotional, Weight: 0.5,
			Condition: All(Gt(FieldEmotionalEnergy, 0.6), Gt(Trait(persona.TraitConscientiousness), 0.6)),
			Outcomes:  []string{"calm_down", "reflect"},
		},
		{
			ID: "curiosity_driven", Category: CategoryCognitive, Weight: 0.6,
			Condition: All(Gt(FieldNovelty, 0.6), Gt(Trait(persona.TraitCuriosity), 0.7)),
			Outcomes:  []string{"investigate", "ask_questions", "experiment"},
		},
		{
			ID: "pattern_completion", Category: CategoryCognitive, Weight: 0.5,
			Condition: Set(FieldIncompletePattern),
			Outcomes:  []string{"complete_task", "organize"},
		},
		{
			ID: "goal_pursuit", Category: CategoryGoal, Weight: 0.7,
			Condition: All(Set(FieldActiveGoal), Lt(FieldGoalProgress, 1), Lt(FieldGoalConflicts, 3)),
			Outcomes:  []string{"pursue_goal", "plan"},
		},
		{
			ID: "goal_frustration", Category: CategoryGoal, Weight: 0.6,
			Condition: All(Set(FieldActiveGoal), Gt(FieldGoalConflicts, 2)),
			Outcomes:  []string{"express_frustration", "change_strategy"},
		},
		{
			ID: "past_experience", Category: CategoryMemory, Weight: 0.6,
			Condition: Set(FieldSimilarPast),
			Outcomes:  []string{"apply_experience", "recall_story"},
		},
		{
			ID: "trauma_response", Category: CategoryMemory, Weight: 0.8,
			Condition: Set(FieldTraumaTriggered),
			Outcomes:  []string{"freeze", "flee", "avoid_trigger"},
		},
		{
			ID: "creative_expression", Category: CategoryCreative, Weight: 0.5,
			Condition: All(Gt(Trait(persona.TraitOpenness), 0.7), Gt(FieldEmotionalEnergy, 0.5)),
			Outcomes:  []string{"create_art", "improvise"},
		},
	}
}

func defaultSynergies() []Synergy {
	return []Synergy{
		{Rules: [2]string{"self_preservation", "social_bonding"}, Factor: 1.2, Outcomes: []string{"protect_others", "rally_group"}},
		{Rules: [2]string{"self_preservation", "trauma_response"}, Factor: 1.5, Outcomes: []string{"panic", "flee"}},
		{Rules: [2]string{"basic_needs", "social_reciprocity"}, Factor: 1.1, Outcomes: []string{"share_food", "trade"}},
		{Rules: [2]string{"social_reciprocity", "social_bonding"}, Factor: 1.3, Outcomes: []string{"deepen_friendship", "give_gift"}},
		{Rules: [2]string{"emotional_expression", "social_bonding"}, Factor: 1.2, Outcomes: []string{"confide", "seek_comfort"}},
		{Rules: [2]string{"conflict_avoidance", "emotional_regulation"}, Factor: 1.2, Outcomes: []string{"mediate", "calm_down"}},
		{Rules: [2]string{"curiosity_driven", "creative_expression"}, Factor: 1.4, Outcomes: []string{"invent", "explore_art"}},
		{Rules: [2]string{"curiosity_driven", "past_experience"}, Factor: 1.1, Outcomes: []string{"compare_experience", "teach"}},
		{Rules: [2]string{"curiosity_driven", "goal_pursuit"}, Factor: 1.2, Outcomes: []string{"research", "experiment"}},
		{Rules: [2]string{"goal_frustration", "emotional_expression"}, Factor: 1.3, Outcomes: []string{"outburst", "vent"}},
		{Rules: [2]string{"pattern_completion", "goal_pursuit"}, Factor: 1.2, Outcomes: []string{"organize", "plan"}},
		{Rules: [2]string{"creative_expression", "emotional_expression"}, Factor: 1.3, Outcomes: []string{"create_art", "perform"}},
	}
}

func defaultTriggers() map[string][]string {
	return map[string][]string{
		"investigate":           {"past_experience", "pattern_completion"},
		"ask_questions":         {"social_bonding"},
		"experiment":            {"creative_expression"},
		"express_emotion":       {"social_bonding", "emotional_regulation"},
		"initiate_conversation": {"social_reciprocity"},
		"share_story":           {"past_experience"},
		"pursue_goal":           {"goal_frustration", "pattern_completion"},
		"plan":                  {"goal_pursuit"},
		"apply_experience":      {"goal_pursuit"},
		"flee":                  {"basic_needs"},
		"seek_comfort":          {"social_bonding"},
		"create_art":            {"emotional_expression"},
		"return_favor":          {"social_bonding"},
		"calm_down":             {"conflict_avoidance"},
		"freeze":                {"self_preservation"},
	}
}
