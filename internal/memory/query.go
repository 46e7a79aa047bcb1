package memory

import (
	"sort"
	"time"

	"go.uber.org/zap"
)

// Mode is the primary selection strategy of a query.
type Mode string

const (
	ModeType        Mode = "type"
	ModeContext     Mode = "context"
	ModeAssociation Mode = "association"
	ModeTimeRange   Mode = "time_range"
	ModeText        Mode = "text"
)

// Criteria selects records. Exactly one primary field (Type, Context,
// AssociatedWith, From/To, Text) must be set; MinImportance and Category are
// optional AND-filters.
type Criteria struct {
	Type           string            `json:"type,omitempty"`
	Context        map[string]string `json:"context,omitempty"`
	AssociatedWith string            `json:"associated_with,omitempty"`
	From           time.Time         `json:"from,omitempty"`
	To             time.Time         `json:"to,omitempty"`
	Text           string            `json:"text,omitempty"`

	MinImportance float64  `json:"min_importance,omitempty"`
	Category      Category `json:"category,omitempty"`
	Limit         int      `json:"limit,omitempty"` // 0 = unlimited
}

// Mode resolves the primary mode, failing unless exactly one is set.
func (c Criteria) Mode() (Mode, error) {
	var modes []Mode
	if c.Type != "" {
		modes = append(modes, ModeType)
	}
	if len(c.Context) > 0 {
		modes = append(modes, ModeContext)
	}
	if c.AssociatedWith != "" {
		modes = append(modes, ModeAssociation)
	}
	if !c.From.IsZero() || !c.To.IsZero() {
		modes = append(modes, ModeTimeRange)
	}
	if c.Text != "" {
		modes = append(modes, ModeText)
	}
	if len(modes) != 1 {
		return "", ErrInvalidCriteria
	}
	return modes[0], nil
}

// Match is a ranked query result.
type Match struct {
	Record Record  `json:"record"`
	Score  float64 `json:"score"`
	Mode   Mode    `json:"mode"`
}

// Query returns ranked records and TOUCHES each of them: access count is
// incremented, last-accessed is set to now and strength is reinforced.
// This is a mutating read; use Peek for a side-effect free lookup.
func (s *Store) Query(c Criteria) ([]Match, error) {
	return s.search(c, true)
}

// Peek ranks records exactly like Query but leaves them untouched.
func (s *Store) Peek(c Criteria) ([]Match, error) {
	return s.search(c, false)
}

type candidate struct {
	rec       *Record
	primary   float64
	secondary float64
}

func (s *Store) search(c Criteria, touch bool) ([]Match, error) {
	mode, err := c.Mode()
	if err != nil {
		return nil, err
	}

	if touch {
		s.mu.Lock()
		defer s.mu.Unlock()
	} else {
		s.mu.RLock()
		defer s.mu.RUnlock()
	}

	now := s.now()
	var cands []candidate
	add := func(r *Record, primary, secondary float64) {
		if r == nil || r.Importance < c.MinImportance {
			return
		}
		if c.Category != "" && r.Category != c.Category {
			return
		}
		cands = append(cands, candidate{rec: r, primary: primary, secondary: secondary})
	}

	switch mode {
	case ModeType:
		for _, id := range s.temporal {
			if r := s.records[id]; r.Type == c.Type {
				add(r, rankScore(r, now), 0)
			}
		}
	case ModeContext:
		for _, id := range s.contextMatches(c.Context) {
			r := s.records[id]
			add(r, rankScore(r, now), 0)
		}
	case ModeAssociation:
		for _, e := range s.sortedEdges(c.AssociatedWith) {
			r := s.records[e.ToID]
			if r == nil {
				continue
			}
			add(r, e.Weight, rankScore(r, now))
		}
	case ModeTimeRange:
		for _, id := range s.temporal {
			r := s.records[id]
			if !c.From.IsZero() && r.Timestamp.Before(c.From) {
				continue
			}
			if !c.To.IsZero() && r.Timestamp.After(c.To) {
				continue
			}
			add(r, rankScore(r, now), 0)
		}
	case ModeText:
		for _, id := range s.temporal {
			r := s.records[id]
			if rel := textRelevance(r, c.Text); rel > 0 {
				add(r, rel, rankScore(r, now))
			}
		}
	}

	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.primary != b.primary {
			return a.primary > b.primary
		}
		if a.secondary != b.secondary {
			return a.secondary > b.secondary
		}
		return a.rec.ID < b.rec.ID
	})
	if c.Limit > 0 && len(cands) > c.Limit {
		cands = cands[:c.Limit]
	}

	out := make([]Match, 0, len(cands))
	for _, cand := range cands {
		if touch {
			s.touch(cand.rec, now)
		}
		out = append(out, Match{Record: cand.rec.clone(), Score: cand.primary, Mode: mode})
	}

	s.logger.Debug("memory query",
		zap.String("mode", string(mode)),
		zap.Bool("touch", touch),
		zap.Int("results", len(out)))
	return out, nil
}

// contextMatches returns ids whose context contains every pair of want.
func (s *Store) contextMatches(want map[string]string) []string {
	keys := sortedKeys(want)
	first := s.contextual[keys[0]][want[keys[0]]]
	out := make([]string, 0, len(first))
	for _, id := range first {
		r := s.records[id]
		ok := true
		for _, k := range keys[1:] {
			if v, has := r.Context[k]; !has || v != want[k] {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, id)
		}
	}
	return out
}

func (s *Store) touch(r *Record, now time.Time) {
	r.AccessCount++
	r.LastAccessed = now
	r.Strength = clamp01(r.Strength + s.cfg.AccessReinforcement)
}
