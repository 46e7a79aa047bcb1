package emergence

import (
	"errors"
	"fmt"
	"strings"
)

// Field names a Context value a condition can test. Personality traits are
// addressed as "trait.<name>".
type Field string

const (
	FieldNeedUrgency       Field = "need_urgency"
	FieldThreat            Field = "threat"
	FieldEmotionalExtreme  Field = "emotional_extreme"
	FieldMood              Field = "mood"
	FieldSocial            Field = "social"
	FieldRecentKindness    Field = "recent_kindness"
	FieldNovelty           Field = "novelty"
	FieldActiveGoal        Field = "active_goal"
	FieldGoalProgress      Field = "goal_progress"
	FieldGoalConflicts     Field = "goal_conflicts"
	FieldSimilarPast       Field = "similar_past"
	FieldPastOutcome       Field = "past_outcome"
	FieldTraumaTriggered   Field = "trauma_triggered"
	FieldIncompletePattern Field = "incomplete_pattern"
	FieldEmotionalEnergy   Field = "emotional_energy"

	traitPrefix = "trait."
)

// Trait addresses a personality trait.
func Trait(name string) Field { return Field(traitPrefix + name) }

// Op is a condition operator.
type Op string

const (
	OpGt  Op = "gt"
	OpGte Op = "gte"
	OpLt  Op = "lt"
	OpLte Op = "lte"
	OpEq  Op = "eq"
	OpNe  Op = "ne"
	OpSet Op = "set" // boolean field true, or string field non-empty
	OpAnd Op = "and"
	OpOr  Op = "or"
	OpNot Op = "not"
)

var (
	ErrUnknownField = errors.New("unknown condition field")
	ErrUnknownOp    = errors.New("unknown condition operator")
	ErrTypeMismatch = errors.New("condition operand type mismatch")
)

// Condition is a predicate over a Context. Leaves compare Field with Num or
// Text; and/or/not combine Children.
type Condition struct {
	Op       Op          `json:"op"`
	Field    Field       `json:"field,omitempty"`
	Num      float64     `json:"num,omitempty"`
	Text     string      `json:"text,omitempty"`
	Children []Condition `json:"children,omitempty"`
}

// Gt builds field > v.
func Gt(f Field, v float64) Condition { return Condition{Op: OpGt, Field: f, Num: v} }

// Lt builds field < v.
func Lt(f Field, v float64) Condition { return Condition{Op: OpLt, Field: f, Num: v} }

// Eq builds field == v.
func Eq(f Field, v float64) Condition { return Condition{Op: OpEq, Field: f, Num: v} }

// Is builds field == text.
func Is(f Field, text string) Condition { return Condition{Op: OpEq, Field: f, Text: text} }

// Set builds a truthiness test.
func Set(f Field) Condition { return Condition{Op: OpSet, Field: f} }

// All is a conjunction.
func All(cs ...Condition) Condition { return Condition{Op: OpAnd, Children: cs} }

// Any is a disjunction.
func Any(cs ...Condition) Condition { return Condition{Op: OpOr, Children: cs} }

// Not negates c.
func Not(c Condition) Condition { return Condition{Op: OpNot, Children: []Condition{c}} }

type value struct {
	num   float64
	str   string
	isStr bool
}

func (c Context) lookup(f Field) (value, error) {
	if name, ok := strings.CutPrefix(string(f), traitPrefix); ok && name != "" {
		return value{num: c.trait(name)}, nil
	}
	switch f {
	case FieldNeedUrgency:
		return value{num: c.NeedUrgency}, nil
	case FieldThreat:
		return value{num: c.Threat}, nil
	case FieldEmotionalExtreme:
		return value{num: c.EmotionalExtreme}, nil
	case FieldMood:
		return value{str: c.Mood, isStr: true}, nil
	case FieldSocial:
		return boolValue(c.Social), nil
	case FieldRecentKindness:
		return value{num: c.RecentKindness}, nil
	case FieldNovelty:
		return value{num: c.Novelty}, nil
	case FieldActiveGoal:
		return value{str: c.ActiveGoal, isStr: true}, nil
	case FieldGoalProgress:
		return value{num: c.GoalProgress}, nil
	case FieldGoalConflicts:
		return value{num: float64(c.GoalConflicts)}, nil
	case FieldSimilarPast:
		return boolValue(c.SimilarPast), nil
	case FieldPastOutcome:
		return value{str: c.PastOutcome, isStr: true}, nil
	case FieldTraumaTriggered:
		return boolValue(c.TraumaTriggered), nil
	case FieldIncompletePattern:
		return boolValue(c.IncompletePattern), nil
	case FieldEmotionalEnergy:
		return value{num: c.EmotionalEnergy}, nil
	}
	return value{}, fmt.Errorf("%w: %q", ErrUnknownField, f)
}

func boolValue(b bool) value {
	if b {
		return value{num: 1}
	}
	return value{}
}

// Evaluate interprets cond against ctx. It has no side effects and no
// randomness.
func Evaluate(cond Condition, ctx Context) (bool, error) {
	switch cond.Op {
	case OpAnd:
		for _, ch := range cond.Children {
			ok, err := Evaluate(ch, ctx)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case OpOr:
		for _, ch := range cond.Children {
			ok, err := Evaluate(ch, ctx)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case OpNot:
		if len(cond.Children) != 1 {
			return false, fmt.Errorf("%w: not takes one operand, got %d", ErrTypeMismatch, len(cond.Children))
		}
		ok, err := Evaluate(cond.Children[0], ctx)
		return !ok && err == nil, err
	}

	v, err := ctx.lookup(cond.Field)
	if err != nil {
		return false, err
	}
	if cond.Op == OpSet {
		if v.isStr {
			return v.str != "", nil
		}
		return v.num != 0, nil
	}
	if v.isStr {
		switch cond.Op {
		case OpEq:
			return v.str == cond.Text, nil
		case OpNe:
			return v.str != cond.Text, nil
		case OpGt, OpGte, OpLt, OpLte:
			return false, fmt.Errorf("%w: %s on text field %q", ErrTypeMismatch, cond.Op, cond.Field)
		}
		return false, fmt.Errorf("%w: %q", ErrUnknownOp, cond.Op)
	}
	switch cond.Op {
	case OpGt:
		return v.num > cond.Num, nil
	case OpGte:
		return v.num >= cond.Num, nil
	case OpLt:
		return v.num < cond.Num, nil
	case OpLte:
		return v.num <= cond.Num, nil
	case OpEq:
		return v.num == cond.Num, nil
	case OpNe:
		return v.num != cond.Num, nil
	}
	return false, fmt.Errorf("%w: %q", ErrUnknownOp, cond.Op)
}
