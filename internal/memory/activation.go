package memory

import (
	"sort"

	"go.uber.org/zap"
)

// ActivationOpts controls spreading activation behavior.
type ActivationOpts struct {
	MaxDepth    int     // max hops, default 3
	DecayFactor float64 // per-hop decay, default 0.7
	Threshold   float64 // min activation to recall, default 0.3
	MaxNodes    int     // max recalled records, default 50
}

// DefaultActivationOpts returns sensible defaults.
func DefaultActivationOpts() ActivationOpts {
	return ActivationOpts{
		MaxDepth:    3,
		DecayFactor: 0.7,
		Threshold:   0.3,
		MaxNodes:    50,
	}
}

// Activated is a record recalled by spreading activation.
type Activated struct {
	Record     Record  `json:"record"`
	Activation float64 `json:"activation"`
	Depth      int     `json:"depth"`
}

// Spread performs spreading activation from the seed records along
// association edges. Each hop multiplies the activation by the edge weight
// and DecayFactor; a record keeps the best activation over all paths.
// Seeds are not returned. Spread never touches records.
func (s *Store) Spread(seeds []string, opts ActivationOpts) []Activated {
	if opts.MaxDepth == 0 {
		opts = DefaultActivationOpts()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	best := make(map[string]float64)
	depth := make(map[string]int)
	isSeed := make(map[string]bool, len(seeds))
	frontier := make(map[string]float64)
	for _, id := range seeds {
		if _, ok := s.records[id]; ok {
			isSeed[id] = true
			frontier[id] = 1
		}
	}

	for d := 1; d <= opts.MaxDepth && len(frontier) > 0; d++ {
		next := make(map[string]float64)
		for from, act := range frontier {
			for to, e := range s.edges[from] {
				if isSeed[to] {
					continue
				}
				a := act * e.Weight * opts.DecayFactor
				if a <= opts.Threshold || a <= best[to] {
					continue
				}
				best[to] = a
				depth[to] = d
				if a > next[to] {
					next[to] = a
				}
			}
		}
		frontier = next
	}

	out := make([]Activated, 0, len(best))
	for id, a := range best {
		out = append(out, Activated{Record: s.records[id].clone(), Activation: a, Depth: depth[id]})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Activation != out[j].Activation {
			return out[i].Activation > out[j].Activation
		}
		return out[i].Record.ID < out[j].Record.ID
	})
	if opts.MaxNodes > 0 && len(out) > opts.MaxNodes {
		out = out[:opts.MaxNodes]
	}

	s.logger.Debug("spreading activation complete",
		zap.Int("seeds", len(isSeed)),
		zap.Int("recalled", len(out)))
	return out
}
