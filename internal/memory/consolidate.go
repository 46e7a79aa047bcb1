package memory

import "go.uber.org/zap"

const (
	consolidationGain = 1.5
	associationGain   = 1.2
)

// Consolidate promotes a record to durable memory: strength x1.5 (capped),
// consolidated flag set and every edge touching it strengthened x1.2.
// Consolidating an already consolidated record changes nothing.
func (s *Store) Consolidate(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.consolidate(id)
}

func (s *Store) consolidate(id string) error {
	r, ok := s.records[id]
	if !ok {
		return ErrNotFound
	}
	s.pending = removeID(s.pending, id)
	if r.Consolidated {
		return nil
	}

	r.Strength = clamp01(r.Strength * consolidationGain)
	r.Consolidated = true
	for to, e := range s.edges[id] {
		e.Weight = clamp01(e.Weight * associationGain)
		if back, ok := s.edges[to][id]; ok {
			back.Weight = clamp01(back.Weight * associationGain)
		}
	}

	s.logger.Debug("consolidated memory",
		zap.String("memory", id),
		zap.Float64("strength", r.Strength),
		zap.Int("associations", len(s.edges[id])))
	return nil
}

// Pending returns the ids queued for consolidation.
func (s *Store) Pending() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.pending...)
}

// ConsolidatePending drains the consolidation queue and returns how many
// records were promoted.
func (s *Store) ConsolidatePending() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	queue := append([]string(nil), s.pending...)
	n := 0
	for _, id := range queue {
		r, ok := s.records[id]
		if !ok || r.Consolidated {
			s.pending = removeID(s.pending, id)
			continue
		}
		if err := s.consolidate(id); err == nil {
			n++
		}
	}
	return n
}

// ConsolidateWorking consolidates working-memory records whose importance
// exceeds the consolidation threshold and returns their ids.
func (s *Store) ConsolidateWorking() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var done []string
	for _, id := range s.working.Items() {
		r, ok := s.records[id]
		if !ok || r.Consolidated || r.Importance <= s.cfg.ConsolidationThreshold {
			continue
		}
		if err := s.consolidate(id); err == nil {
			done = append(done, id)
		}
	}
	return done
}
