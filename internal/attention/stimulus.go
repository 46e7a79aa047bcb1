// Package attention ranks incoming stimuli by salience and holds an agent's
// sticky focus.
package attention

import "time"

// Stimulus is anything an agent may notice.
type Stimulus struct {
	ID        string             `json:"id"`
	Type      string             `json:"type"`
	Source    string             `json:"source,omitempty"`
	Target    string             `json:"target,omitempty"`
	Category  string             `json:"category,omitempty"`
	Content   string             `json:"content,omitempty"`
	Emotion   map[string]float64 `json:"emotion,omitempty"`
	Timestamp time.Time          `json:"timestamp"`
}

// Goal is an active objective stimuli may be relevant to.
type Goal struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Target    string    `json:"target,omitempty"`
	Category  string    `json:"category,omitempty"`
	Priority  float64   `json:"priority"`
	Progress  float64   `json:"progress"`
	Deadline  time.Time `json:"deadline,omitempty"`
	Completed bool      `json:"completed"`
}

// Active reports whether the goal still counts at now.
func (g Goal) Active(now time.Time) bool {
	if g.Completed || g.Progress >= 1 {
		return false
	}
	return g.Deadline.IsZero() || now.Before(g.Deadline)
}

// Urgency by stimulus type (or category).
var urgencyTable = map[string]float64{
	"threat":      1.0,
	"danger":      0.9,
	"warning":     0.7,
	"opportunity": 0.6,
	"request":     0.5,
	"information": 0.2,
}

const defaultUrgency = 0.3

func urgencyOf(s Stimulus) float64 {
	if u, ok := urgencyTable[s.Type]; ok {
		return u
	}
	if u, ok := urgencyTable[s.Category]; ok {
		return u
	}
	return defaultUrgency
}
