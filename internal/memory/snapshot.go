package memory

import (
	"sort"

	"go.uber.org/zap"
)

// Snapshot is the plain serializable form of a store, handed to and
// received from persistence collaborators.
type Snapshot struct {
	OwnerID             string        `json:"owner_id"`
	Records             []Record      `json:"records"`
	Associations        []Association `json:"associations"`
	Working             []string      `json:"working"`
	Pending             []string      `json:"pending"`
	CompressedOriginals int           `json:"compressed_originals"`
	SyntheticRecords    int           `json:"synthetic_records"`
}

// Snapshot copies the store into plain structures.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		OwnerID:             s.ownerID,
		Records:             make([]Record, 0, len(s.records)),
		Working:             s.working.Items(),
		Pending:             append([]string(nil), s.pending...),
		CompressedOriginals: s.compressedOriginals,
		SyntheticRecords:    s.syntheticRecords,
	}
	for _, id := range s.temporal {
		snap.Records = append(snap.Records, s.records[id].clone())
	}
	for _, out := range s.edges {
		for _, e := range out {
			snap.Associations = append(snap.Associations, *e)
		}
	}
	sort.Slice(snap.Associations, func(i, j int) bool {
		a, b := snap.Associations[i], snap.Associations[j]
		if a.FromID != b.FromID {
			return a.FromID < b.FromID
		}
		return a.ToID < b.ToID
	})
	return snap
}

// Restore replaces the store contents with snap. Associations are restored
// as saved, not recomputed; edges to unknown records are dropped.
func (s *Store) Restore(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reset()
	for i := range snap.Records {
		r := snap.Records[i].clone()
		if r.ID == "" {
			continue
		}
		if r.OwnerID == "" {
			r.OwnerID = s.ownerID
		}
		if !r.Category.Valid() {
			r.Category = categorize(r.Type)
		}
		r.Importance = clamp01(r.Importance)
		r.Strength = clamp01(r.Strength)
		s.insert(&r)
	}
	for _, e := range snap.Associations {
		if s.records[e.FromID] == nil || s.records[e.ToID] == nil {
			continue
		}
		s.setEdge(e.FromID, e.ToID, e.Weight, e.Kind)
	}
	for _, id := range snap.Working {
		if _, ok := s.records[id]; ok {
			s.pushWorking(id)
		}
	}
	for _, id := range snap.Pending {
		if r, ok := s.records[id]; ok && !r.Consolidated {
			s.pending = append(s.pending, id)
		}
	}
	s.compressedOriginals = snap.CompressedOriginals
	s.syntheticRecords = snap.SyntheticRecords

	s.logger.Info("memory restored",
		zap.Int("records", len(s.records)),
		zap.Int("associations", len(snap.Associations)))
}
