package emergence

import (
	"sort"

	"github.com/nidhogg/nuka-mind/internal/persona"
)

const defaultOutcomeWeight = 0.5

// outcomeWeights scores candidate outcomes against the context. Outcomes
// not listed weigh defaultOutcomeWeight.
var outcomeWeights = map[string]func(Context) float64{
	"flee":          func(c Context) float64 { return c.Threat * 2 },
	"seek_shelter":  func(c Context) float64 { return c.Threat * 1.5 },
	"call_for_help": func(c Context) float64 { return c.Threat * socialFactor(c) },
	"return_favor": func(c Context) float64 {
		return c.RecentKindness * c.trait(persona.TraitAgreeableness) * 2
	},
	"express_gratitude": func(c Context) float64 { return c.RecentKindness * 1.5 },
	"investigate": func(c Context) float64 {
		return c.Novelty * c.trait(persona.TraitCuriosity) * 2
	},
	"ask_questions": func(c Context) float64 {
		return c.Novelty * c.trait(persona.TraitExtraversion) * 2
	},
	"experiment": func(c Context) float64 {
		return c.Novelty * c.trait(persona.TraitOpenness) * 2
	},
	"seek_food":  func(c Context) float64 { return c.NeedUrgency * 1.5 },
	"seek_water": func(c Context) float64 { return c.NeedUrgency * 1.4 },
	"rest":       func(c Context) float64 { return c.NeedUrgency * (1 - c.Threat) },
	"initiate_conversation": func(c Context) float64 {
		return c.trait(persona.TraitExtraversion) * 1.5
	},
	"de_escalate": func(c Context) float64 {
		return c.Threat * c.trait(persona.TraitAgreeableness) * 2
	},
	"express_emotion": func(c Context) float64 { return c.EmotionalExtreme * 1.5 },
	"calm_down": func(c Context) float64 {
		return c.EmotionalEnergy * c.trait(persona.TraitConscientiousness) * 2
	},
	"pursue_goal":         func(c Context) float64 { return (1 - c.GoalProgress) * 1.2 },
	"express_frustration": func(c Context) float64 { return float64(c.GoalConflicts) * 0.2 },
	"apply_experience": func(c Context) float64 {
		if c.PastOutcome == "success" {
			return 1.2
		}
		return 0.6
	},
	"freeze":        func(c Context) float64 { return 1 - c.Threat },
	"avoid_trigger": func(c Context) float64 { return 0.9 },
	"create_art": func(c Context) float64 {
		return c.trait(persona.TraitOpenness) * c.EmotionalEnergy * 2
	},
}

func socialFactor(c Context) float64 {
	if c.Social {
		return 1.2
	}
	return 0.5
}

func isMarker(o string) bool {
	return o == MarkerSurprising || o == MarkerHabit
}

type weighted struct {
	outcome string
	weight  float64
}

// rankOutcomes weighs every non-marker outcome and sorts them, heaviest
// first, ties by name.
func rankOutcomes(outcomes []string, ctx Context) []weighted {
	seen := make(map[string]bool, len(outcomes))
	out := make([]weighted, 0, len(outcomes))
	for _, o := range outcomes {
		if isMarker(o) || seen[o] {
			continue
		}
		seen[o] = true
		w := defaultOutcomeWeight
		if fn, ok := outcomeWeights[o]; ok {
			w = fn(ctx)
		}
		out = append(out, weighted{outcome: o, weight: w})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].weight != out[j].weight {
			return out[i].weight > out[j].weight
		}
		return out[i].outcome < out[j].outcome
	})
	return out
}

// parameters builds the action-specific parameter block.
func parameters(action string, strength float64, ctx Context) map[string]any {
	p := map[string]any{"intensity": strength}
	switch action {
	case "flee", "seek_shelter", "panic":
		p["urgency"] = ctx.Threat
		p["direction"] = "away_from_threat"
	case "call_for_help", "rally_group", "protect_others":
		p["urgency"] = ctx.Threat
		p["audience"] = "nearby"
	case "investigate", "experiment", "research":
		p["caution"] = clamp01(ctx.Threat + 1 - ctx.trait(persona.TraitCuriosity))
		p["duration"] = "short"
	case "ask_questions", "initiate_conversation", "share_story", "confide":
		p["tone"] = toneFor(ctx)
		p["audience"] = "nearby"
	case "return_favor", "express_gratitude", "give_gift", "share_food":
		p["generosity"] = ctx.trait(persona.TraitAgreeableness)
	case "express_emotion", "seek_comfort", "outburst", "vent":
		p["mood"] = ctx.Mood
		p["expressiveness"] = ctx.EmotionalExtreme
	case "pursue_goal", "plan", "change_strategy":
		p["goal"] = ctx.ActiveGoal
		p["progress"] = ctx.GoalProgress
	case "seek_food", "seek_water", "rest":
		p["need"] = ctx.NeedUrgency
	case "apply_experience", "recall_story":
		p["past_outcome"] = ctx.PastOutcome
	case "create_art", "improvise", "perform", "invent":
		p["originality"] = ctx.CreativityFactor() / 1.5
	}
	return p
}

func toneFor(ctx Context) string {
	switch {
	case ctx.Threat > 0.5:
		return "urgent"
	case ctx.Mood != "":
		return ctx.Mood
	default:
		return "friendly"
	}
}

var consequences = map[string][]string{
	"flee":                  {"distance_from_threat", "abandon_position"},
	"seek_shelter":          {"reduced_exposure"},
	"call_for_help":         {"allies_alerted", "reveals_position"},
	"return_favor":          {"trust_increase", "relationship_strengthened"},
	"express_gratitude":     {"affection_increase"},
	"initiate_conversation": {"information_exchange", "relationship_change"},
	"share_story":           {"affection_increase", "knowledge_shared"},
	"de_escalate":           {"threat_reduced"},
	"withdraw":              {"isolation"},
	"express_emotion":       {"emotional_release", "others_react"},
	"seek_comfort":          {"emotional_support"},
	"calm_down":             {"emotional_energy_reduced"},
	"investigate":           {"new_information", "possible_risk"},
	"ask_questions":         {"new_information", "social_contact"},
	"experiment":            {"discovery", "possible_failure"},
	"complete_task":         {"pattern_closed"},
	"pursue_goal":           {"goal_progress"},
	"plan":                  {"clearer_path"},
	"express_frustration":   {"emotional_release", "others_uneasy"},
	"change_strategy":       {"goal_conflicts_reset"},
	"apply_experience":      {"repeat_outcome"},
	"freeze":                {"missed_opportunity"},
	"avoid_trigger":         {"route_changed"},
	"create_art":            {"artifact_created", "emotional_release"},
	"seek_food":             {"need_satisfied"},
	"seek_water":            {"need_satisfied"},
	"rest":                  {"energy_restored"},
}

var defaultConsequences = []string{"unknown_outcome"}

func predictedConsequences(action string) []string {
	if c, ok := consequences[action]; ok {
		return append([]string(nil), c...)
	}
	return append([]string(nil), defaultConsequences...)
}
