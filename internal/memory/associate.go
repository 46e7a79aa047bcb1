package memory

import "go.uber.org/zap"

// associate links a freshly inserted record to similar working-memory
// records and to records sharing an identical context key/value
// (caller holds the lock).
func (s *Store) associate(r *Record) {
	temporal := 0
	for _, id := range s.working.Items() {
		if id == r.ID {
			continue
		}
		other, ok := s.records[id]
		if !ok {
			continue
		}
		if sim := similarity(r, other); sim > s.cfg.AssociationStrength {
			s.link(r.ID, id, sim, AssociationTemporal)
			temporal++
		}
	}

	contextual := 0
outer:
	for _, k := range sortedKeys(r.Context) {
		for _, id := range s.contextual[k][r.Context[k]] {
			if contextual >= s.cfg.ContextualLinkLimit {
				break outer
			}
			if id == r.ID {
				continue
			}
			if _, linked := s.edges[r.ID][id]; linked {
				continue
			}
			s.link(r.ID, id, s.cfg.ContextualLinkWeight, AssociationContextual)
			contextual++
		}
	}

	if temporal+contextual > 0 {
		s.logger.Debug("associated memory",
			zap.String("memory", r.ID),
			zap.Int("temporal", temporal),
			zap.Int("contextual", contextual))
	}
}

// link adds an edge in both directions. An existing edge keeps the larger
// weight.
func (s *Store) link(a, b string, weight float64, kind AssociationKind) {
	s.setEdge(a, b, weight, kind)
	s.setEdge(b, a, weight, kind)
}

func (s *Store) setEdge(from, to string, weight float64, kind AssociationKind) {
	out, ok := s.edges[from]
	if !ok {
		out = make(map[string]*Association)
		s.edges[from] = out
	}
	weight = clamp01(weight)
	if e, ok := out[to]; ok {
		if weight > e.Weight {
			e.Weight = weight
			e.Kind = kind
		}
		return
	}
	out[to] = &Association{FromID: from, ToID: to, Weight: weight, Kind: kind}
}
