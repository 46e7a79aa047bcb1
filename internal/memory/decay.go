package memory

import (
	"math"

	"go.uber.org/zap"
)

// Retention bonuses added to a decayed strength.
const (
	importanceRetention   = 0.3
	consolidatedRetention = 0.3
	frequentRetention     = 0.2
	frequentAccessCount   = 5
)

// ForgettingResult reports what a forgetting pass did.
type ForgettingResult struct {
	Examined   int      `json:"examined"`
	Skipped    int      `json:"skipped"`
	Decayed    int      `json:"decayed"`
	Evicted    int      `json:"evicted"`
	EvictedIDs []string `json:"evicted_ids,omitempty"`
}

// ProcessForgetting applies the forgetting curve to every record:
//
//	strength' = min(strength, strength*exp(-rate*age/1day) + retention)
//
// where retention is importance*0.3, +0.3 when consolidated and +0.2 when
// accessed more than 5 times. Records accessed within the grace window are
// skipped. A record whose strength ends below the eviction threshold is
// removed together with its associations. Strength never increases here.
func (s *Store) ProcessForgetting() ForgettingResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var res ForgettingResult
	for _, id := range append([]string(nil), s.temporal...) {
		r := s.records[id]
		res.Examined++

		if !r.LastAccessed.IsZero() && now.Sub(r.LastAccessed) < s.cfg.AccessGrace {
			res.Skipped++
			continue
		}

		since := r.Timestamp
		if r.LastAccessed.After(since) {
			since = r.LastAccessed
		}
		ageDays := math.Max(now.Sub(since).Seconds(), 0) / day

		retention := r.Importance * importanceRetention
		if r.Consolidated {
			retention += consolidatedRetention
		}
		if r.AccessCount > frequentAccessCount {
			retention += frequentRetention
		}
		decayed := r.Strength*math.Exp(-s.cfg.ForgettingRate*ageDays) + retention
		next := clamp01(math.Min(r.Strength, decayed))
		if next < r.Strength {
			res.Decayed++
		}
		r.Strength = next

		if r.Strength < s.cfg.EvictionThreshold {
			s.remove(id)
			res.Evicted++
			res.EvictedIDs = append(res.EvictedIDs, id)
		}
	}

	s.logger.Info("forgetting pass complete",
		zap.Int("examined", res.Examined),
		zap.Int("decayed", res.Decayed),
		zap.Int("evicted", res.Evicted))
	return res
}
