package memory

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	patternType     = "type"
	patternCategory = "category"
	patternKeywords = "keywords"
	contextPrefix   = "context."
)

// CompressionResult reports what a compression pass did.
type CompressionResult struct {
	Groups   int      `json:"groups"`
	Replaced int      `json:"replaced"`
	Created  []string `json:"created,omitempty"`
	Ratio    float64  `json:"ratio"`
}

// Compress replaces every group of mutually similar records (each pair above
// CompressionSimilarity, at least CompressionMinGroup members) with one
// synthetic record carrying the elements shared by most of the group and a
// few raw examples. Synthetic records are never regrouped.
func (s *Store) Compress() CompressionResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res CompressionResult
	grouped := make(map[string]bool)
	ids := append([]string(nil), s.temporal...)
	for i, seedID := range ids {
		seed := s.records[seedID]
		if grouped[seedID] || seed.Compression != nil {
			continue
		}
		group := []*Record{seed}
		for _, candID := range ids[i+1:] {
			cand := s.records[candID]
			if grouped[candID] || cand.Compression != nil {
				continue
			}
			if s.similarToAll(cand, group) {
				group = append(group, cand)
			}
		}
		if len(group) < s.cfg.CompressionMinGroup {
			continue
		}
		for _, r := range group {
			grouped[r.ID] = true
		}
		id := s.compressGroup(group)
		res.Groups++
		res.Replaced += len(group)
		res.Created = append(res.Created, id)
	}
	res.Ratio = s.compressionRatio()

	if res.Groups > 0 {
		s.logger.Info("compressed memories",
			zap.Int("groups", res.Groups),
			zap.Int("replaced", res.Replaced),
			zap.Float64("ratio", res.Ratio))
	}
	return res
}

func (s *Store) similarToAll(r *Record, group []*Record) bool {
	for _, g := range group {
		if similarity(r, g) <= s.cfg.CompressionSimilarity {
			return false
		}
	}
	return true
}

// compressionRatio is originals replaced per synthetic record, 1 before any
// compression happened.
func (s *Store) compressionRatio() float64 {
	if s.syntheticRecords == 0 {
		return 1
	}
	return float64(s.compressedOriginals) / float64(s.syntheticRecords)
}

// frequentPattern extracts the elements present in more than
// PatternFrequency of the group.
func (s *Store) frequentPattern(group []*Record) map[string]string {
	counts := make(map[string]map[string]int)
	bump := func(key, value string) {
		vals, ok := counts[key]
		if !ok {
			vals = make(map[string]int)
			counts[key] = vals
		}
		vals[value]++
	}
	words := make(map[string]int)
	for _, r := range group {
		if r.Type != "" {
			bump(patternType, r.Type)
		}
		bump(patternCategory, string(r.Category))
		for k, v := range r.Context {
			bump(contextPrefix+k, v)
		}
		seen := make(map[string]bool)
		for _, w := range tokenize(r.Content) {
			if !seen[w] {
				seen[w] = true
				words[w]++
			}
		}
	}

	need := s.cfg.PatternFrequency * float64(len(group))
	pattern := make(map[string]string)
	for key, vals := range counts {
		for v, n := range vals {
			if float64(n) > need {
				pattern[key] = v
			}
		}
	}
	var common []string
	for w, n := range words {
		if float64(n) > need {
			common = append(common, w)
		}
	}
	if len(common) > 0 {
		sort.Strings(common)
		pattern[patternKeywords] = strings.Join(common, " ")
	}
	return pattern
}

// compressGroup swaps group for a synthetic record and returns its id
// (caller holds the lock).
func (s *Store) compressGroup(group []*Record) string {
	pattern := s.frequentPattern(group)

	syn := &Record{
		ID:       uuid.New().String(),
		OwnerID:  s.ownerID,
		Category: group[0].Category,
		Type:     "compressed_pattern",
		Compression: &Compression{
			Pattern:   pattern,
			GroupSize: len(group),
		},
	}
	if c := Category(pattern[patternCategory]); c.Valid() {
		syn.Category = c
	}
	if t, ok := pattern[patternType]; ok {
		syn.Type = t
	}

	inGroup := make(map[string]bool, len(group))
	emotionSum := make(map[string]float64)
	for i, r := range group {
		inGroup[r.ID] = true
		syn.Compression.SourceIDs = append(syn.Compression.SourceIDs, r.ID)
		if i < s.cfg.MaxExamples {
			syn.Compression.Examples = append(syn.Compression.Examples, r.Content)
		}
		if r.Importance > syn.Importance {
			syn.Importance = r.Importance
		}
		if r.Strength > syn.Strength {
			syn.Strength = r.Strength
		}
		if r.Timestamp.After(syn.Timestamp) {
			syn.Timestamp = r.Timestamp
		}
		if r.LastAccessed.After(syn.LastAccessed) {
			syn.LastAccessed = r.LastAccessed
		}
		syn.AccessCount += r.AccessCount
		syn.Consolidated = syn.Consolidated || r.Consolidated
		for k, v := range r.Emotion {
			emotionSum[k] += v
		}
	}
	for k, v := range pattern {
		if strings.HasPrefix(k, contextPrefix) {
			if syn.Context == nil {
				syn.Context = make(map[string]string)
			}
			syn.Context[strings.TrimPrefix(k, contextPrefix)] = v
		}
	}
	if len(emotionSum) > 0 {
		syn.Emotion = make(map[string]float64, len(emotionSum))
		for k, v := range emotionSum {
			syn.Emotion[k] = v / float64(len(group))
		}
	}
	syn.Content = fmt.Sprintf("recurring pattern of %d memories: %s", len(group), serializeContext(pattern))

	type external struct {
		weight float64
		kind   AssociationKind
	}
	links := make(map[string]external)
	for _, r := range group {
		for to, e := range s.edges[r.ID] {
			if inGroup[to] {
				continue
			}
			if cur, ok := links[to]; !ok || e.Weight > cur.weight {
				links[to] = external{weight: e.Weight, kind: e.Kind}
			}
		}
	}

	for _, r := range group {
		s.remove(r.ID)
	}
	s.insert(syn)
	for _, to := range sortedKeys(links) {
		s.link(syn.ID, to, links[to].weight, links[to].kind)
	}
	if syn.Importance > s.cfg.ConsolidationThreshold && !syn.Consolidated {
		s.pending = append(s.pending, syn.ID)
	}

	s.compressedOriginals += len(group)
	s.syntheticRecords++
	return syn.ID
}
