package emergence

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// Behaviour combinations that synthesize a meta-emergent action.
var metaPairs = map[string]string{
	pairKey("investigate", "initiate_conversation"): "collaborative_discovery",
	pairKey("investigate", "ask_questions"):         "inquiry",
	pairKey("flee", "call_for_help"):                "coordinated_escape",
	pairKey("express_emotion", "return_favor"):      "heartfelt_gratitude",
	pairKey("pursue_goal", "experiment"):            "innovative_pursuit",
	pairKey("create_art", "express_emotion"):        "artistic_catharsis",
	pairKey("de_escalate", "calm_down"):             "peacemaking",
	pairKey("share_story", "apply_experience"):      "mentoring",
	pairKey("seek_food", "return_favor"):            "communal_meal",
}

var metaTriples = map[string]string{
	joinIDs([]string{"investigate", "experiment", "create_art"}):              "creative_breakthrough",
	joinIDs([]string{"flee", "seek_shelter", "call_for_help"}):                "evacuation",
	joinIDs([]string{"initiate_conversation", "share_story", "return_favor"}): "community_building",
	joinIDs([]string{"pursue_goal", "plan", "apply_experience"}):              "mastery",
}

const (
	metaBoost         = 1.1
	sequenceMinLength = 3
)

// metaEmergence combines one tick's behaviours into higher-order ones:
// listed pairs and triples of actions, plus one behavioural sequence when
// at least three behaviours all exceed the sequence threshold.
func (e *Engine) metaEmergence(base []Behavior, now time.Time) []Behavior {
	var out []Behavior
	for i := 0; i < len(base); i++ {
		for j := i + 1; j < len(base); j++ {
			if label, ok := metaPairs[pairKey(base[i].Action, base[j].Action)]; ok {
				out = append(out, e.combine(label, KindMetaEmergent, now, base[i], base[j]))
			}
		}
	}
	if len(base) >= 3 {
		for i := 0; i < len(base); i++ {
			for j := i + 1; j < len(base); j++ {
				for k := j + 1; k < len(base); k++ {
					key := joinIDs([]string{base[i].Action, base[j].Action, base[k].Action})
					if label, ok := metaTriples[key]; ok {
						out = append(out, e.combine(label, KindMetaEmergent, now, base[i], base[j], base[k]))
					}
				}
			}
		}
	}

	if len(base) >= sequenceMinLength {
		all := true
		for _, b := range base {
			if b.Strength <= e.cfg.SequenceThreshold {
				all = false
				break
			}
		}
		if all {
			seq := e.combine(string(KindSequence), KindSequence, now, base...)
			steps := make([]string, len(base))
			for i, b := range base {
				steps[i] = b.Action
			}
			seq.Parameters["steps"] = steps
			out = append(out, seq)
		}
	}
	return out
}

func (e *Engine) combine(action string, kind Kind, now time.Time, parts ...Behavior) Behavior {
	var sum float64
	ruleSet := make(map[string]bool)
	parents := make([]string, 0, len(parts))
	for _, p := range parts {
		sum += p.Strength
		parents = append(parents, p.ID)
		for _, id := range p.RuleIDs {
			ruleSet[id] = true
		}
	}
	ids := make([]string, 0, len(ruleSet))
	for id := range ruleSet {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	strength := clamp01(sum / float64(len(parts)) * metaBoost)

	return Behavior{
		ID:                    uuid.New().String(),
		AgentID:               e.agentID,
		Action:                action,
		Kind:                  kind,
		RuleIDs:               ids,
		Parameters:            map[string]any{"intensity": strength, "components": parents},
		Strength:              strength,
		PredictedConsequences: predictedConsequences(action),
		Timestamp:             now,
	}
}
