package memory

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nidhogg/nuka-mind/internal/persona"
	"github.com/nidhogg/nuka-mind/internal/ring"
	"go.uber.org/zap"
)

// Config tunes the memory lifecycle. Zero fields take DefaultConfig values.
type Config struct {
	WorkingMemorySize      int           // recent-item ring size (default 7)
	AssociationStrength    float64       // similarity needed to link two records (default 0.7)
	ContextualLinkLimit    int           // max records linked by identical context (default 5)
	ContextualLinkWeight   float64       // weight of contextual links (default 0.5)
	ConsolidationThreshold float64       // importance that queues consolidation (default 0.7)
	EmotionalBoost         float64       // importance multiplier per unit of emotion (default 0.5)
	DefaultStrength        float64       // initial strength (default 0.5)
	DefaultImportance      float64       // importance when zero or negative (default 0.5)
	AccessReinforcement    float64       // strength added per touching read (default 0.05)
	ForgettingRate         float64       // decay per day of age (default 0.1)
	EvictionThreshold      float64       // evict below this strength (default 0.1)
	AccessGrace            time.Duration // recently accessed records are not decayed (default 60s)
	CompressionSimilarity  float64       // pairwise similarity for compression (default 0.8)
	CompressionMinGroup    int           // smallest group that gets compressed (default 4)
	PatternFrequency       float64       // share of the group an element needs (default 0.7)
	MaxExamples            int           // raw examples kept on a compressed record (default 3)
}

// DefaultConfig returns the standard memory tuning.
func DefaultConfig() Config {
	return Config{
		WorkingMemorySize:      7,
		AssociationStrength:    0.7,
		ContextualLinkLimit:    5,
		ContextualLinkWeight:   0.5,
		ConsolidationThreshold: 0.7,
		EmotionalBoost:         0.5,
		DefaultStrength:        0.5,
		DefaultImportance:      0.5,
		AccessReinforcement:    0.05,
		ForgettingRate:         0.1,
		EvictionThreshold:      0.1,
		AccessGrace:            60 * time.Second,
		CompressionSimilarity:  0.8,
		CompressionMinGroup:    4,
		PatternFrequency:       0.7,
		MaxExamples:            3,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.WorkingMemorySize <= 0 {
		c.WorkingMemorySize = d.WorkingMemorySize
	}
	if c.AssociationStrength <= 0 {
		c.AssociationStrength = d.AssociationStrength
	}
	if c.ContextualLinkLimit <= 0 {
		c.ContextualLinkLimit = d.ContextualLinkLimit
	}
	if c.ContextualLinkWeight <= 0 {
		c.ContextualLinkWeight = d.ContextualLinkWeight
	}
	if c.ConsolidationThreshold <= 0 {
		c.ConsolidationThreshold = d.ConsolidationThreshold
	}
	if c.EmotionalBoost <= 0 {
		c.EmotionalBoost = d.EmotionalBoost
	}
	if c.DefaultStrength <= 0 {
		c.DefaultStrength = d.DefaultStrength
	}
	if c.DefaultImportance <= 0 {
		c.DefaultImportance = d.DefaultImportance
	}
	if c.AccessReinforcement < 0 {
		c.AccessReinforcement = 0
	}
	if c.ForgettingRate <= 0 {
		c.ForgettingRate = d.ForgettingRate
	}
	if c.EvictionThreshold <= 0 {
		c.EvictionThreshold = d.EvictionThreshold
	}
	if c.AccessGrace <= 0 {
		c.AccessGrace = d.AccessGrace
	}
	if c.CompressionSimilarity <= 0 {
		c.CompressionSimilarity = d.CompressionSimilarity
	}
	if c.CompressionMinGroup <= 1 {
		c.CompressionMinGroup = d.CompressionMinGroup
	}
	if c.PatternFrequency <= 0 {
		c.PatternFrequency = d.PatternFrequency
	}
	if c.MaxExamples <= 0 {
		c.MaxExamples = d.MaxExamples
	}
	return c
}

// Store is the per-agent memory arena. Records are addressed by opaque id;
// associations are adjacency maps keyed by id. It is safe for concurrent
// use, although a single agent is expected to own it.
type Store struct {
	mu      sync.RWMutex
	ownerID string
	cfg     Config
	logger  *zap.Logger
	now     func() time.Time

	records    map[string]*Record
	byCategory map[Category]map[string]struct{}
	edges      map[string]map[string]*Association // from -> to -> edge
	working    *ring.Ring[string]
	temporal   []string                       // ids, oldest first
	contextual map[string]map[string][]string // key -> value -> ids
	importance []string                       // ids, most important first
	pending    []string                       // consolidation queue

	compressedOriginals int
	syntheticRecords    int
}

// NewStore creates an empty memory store owned by ownerID.
func NewStore(ownerID string, cfg Config, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	s := &Store{
		ownerID: ownerID,
		cfg:     cfg,
		logger:  logger.With(zap.String("agent", ownerID)),
		now:     time.Now,
	}
	s.reset()
	return s
}

func (s *Store) reset() {
	s.records = make(map[string]*Record)
	s.byCategory = make(map[Category]map[string]struct{}, len(Categories))
	for _, c := range Categories {
		s.byCategory[c] = make(map[string]struct{})
	}
	s.edges = make(map[string]map[string]*Association)
	s.working = ring.New[string](s.cfg.WorkingMemorySize)
	s.temporal = nil
	s.contextual = make(map[string]map[string][]string)
	s.importance = nil
	s.pending = nil
	s.compressedOriginals = 0
	s.syntheticRecords = 0
}

// SetClock replaces the time source, for simulations running on world time.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// OwnerID returns the agent that owns this store.
func (s *Store) OwnerID() string { return s.ownerID }

// Config returns the effective configuration.
func (s *Store) Config() Config { return s.cfg }

// Store inserts a record and returns its id. Only a missing content is an
// error; every other missing field falls back to a default. Zero or
// negative importance and strength count as missing. A record whose id
// already exists replaces the old one.
func (s *Store) Store(rec Record) (string, error) {
	if strings.TrimSpace(rec.Content) == "" {
		return "", ErrMissingContent
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r := rec.clone()
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if _, exists := s.records[r.ID]; exists {
		s.remove(r.ID)
	}
	if r.OwnerID == "" {
		r.OwnerID = s.ownerID
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = s.now()
	}
	if r.Strength <= 0 {
		r.Strength = s.cfg.DefaultStrength
	}
	if r.Importance <= 0 {
		r.Importance = s.cfg.DefaultImportance
	}
	if !r.Category.Valid() {
		r.Category = categorize(r.Type)
	}
	if len(r.Emotion) > 0 {
		r.Importance *= 1 + persona.MeanAbs(r.Emotion)*s.cfg.EmotionalBoost
	}
	r.Importance = clamp01(r.Importance)
	r.Strength = clamp01(r.Strength)

	s.insert(&r)
	s.associate(&r)
	s.pushWorking(r.ID)
	if r.Importance > s.cfg.ConsolidationThreshold && !r.Consolidated {
		s.pending = append(s.pending, r.ID)
	}

	s.logger.Debug("stored memory",
		zap.String("memory", r.ID),
		zap.String("category", string(r.Category)),
		zap.String("type", r.Type),
		zap.Float64("importance", r.Importance))
	return r.ID, nil
}

// categorize infers a category from the words of the record type.
func categorize(typ string) Category {
	words := strings.FieldsFunc(strings.ToLower(typ), func(r rune) bool {
		return r == '_' || r == '-' || r == ' ' || r == '.'
	})
	hasWord := func(kws ...string) bool {
		for _, w := range words {
			for _, kw := range kws {
				if strings.HasPrefix(w, kw) {
					return true
				}
			}
		}
		return false
	}
	switch {
	case hasWord("skill", "action", "procedure", "habit", "technique"):
		return CategoryProcedural
	case hasWord("fact", "knowledge", "concept", "belief", "rule", "lesson"):
		return CategorySemantic
	case hasWord("emotion", "feeling", "mood", "trauma"):
		return CategoryEmotional
	}
	return CategoryEpisodic
}

// insert adds r to the arena and every index (caller holds the lock).
func (s *Store) insert(r *Record) {
	s.records[r.ID] = r
	s.byCategory[r.Category][r.ID] = struct{}{}

	i := sort.Search(len(s.temporal), func(i int) bool {
		return s.records[s.temporal[i]].Timestamp.After(r.Timestamp)
	})
	s.temporal = insertAt(s.temporal, i, r.ID)

	j := sort.Search(len(s.importance), func(i int) bool {
		return s.records[s.importance[i]].Importance < r.Importance
	})
	s.importance = insertAt(s.importance, j, r.ID)

	for k, v := range r.Context {
		vals, ok := s.contextual[k]
		if !ok {
			vals = make(map[string][]string)
			s.contextual[k] = vals
		}
		vals[v] = append(vals[v], r.ID)
	}
}

// remove deletes a record, its edges and its index entries (caller holds
// the lock).
func (s *Store) remove(id string) {
	r, ok := s.records[id]
	if !ok {
		return
	}
	for to := range s.edges[id] {
		delete(s.edges[to], id)
		if len(s.edges[to]) == 0 {
			delete(s.edges, to)
		}
	}
	delete(s.edges, id)

	delete(s.byCategory[r.Category], id)
	s.temporal = removeID(s.temporal, id)
	s.importance = removeID(s.importance, id)
	s.pending = removeID(s.pending, id)
	for k, v := range r.Context {
		if vals, ok := s.contextual[k]; ok {
			vals[v] = removeID(vals[v], id)
			if len(vals[v]) == 0 {
				delete(vals, v)
			}
			if len(vals) == 0 {
				delete(s.contextual, k)
			}
		}
	}
	s.working.RemoveFunc(func(w string) bool { return w == id })
	delete(s.records, id)
}

func (s *Store) pushWorking(id string) {
	s.working.RemoveFunc(func(w string) bool { return w == id })
	s.working.Push(id)
}

// Get returns a copy of a record without touching it.
func (s *Store) Get(id string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	if !ok {
		return Record{}, false
	}
	return r.clone(), true
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// All returns copies of every record, oldest first.
func (s *Store) All() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Record, 0, len(s.temporal))
	for _, id := range s.temporal {
		out = append(out, s.records[id].clone())
	}
	return out
}

// Working returns the working-memory records, oldest first.
func (s *Store) Working() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.working.Items()
	out := make([]Record, 0, len(ids))
	for _, id := range ids {
		if r, ok := s.records[id]; ok {
			out = append(out, r.clone())
		}
	}
	return out
}

// Important returns up to n records from the importance index.
func (s *Store) Important(n int) []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n <= 0 || n > len(s.importance) {
		n = len(s.importance)
	}
	out := make([]Record, 0, n)
	for _, id := range s.importance[:n] {
		out = append(out, s.records[id].clone())
	}
	return out
}

// Associations returns the outgoing edges of a record, strongest first.
func (s *Store) Associations(id string) []Association {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedEdges(id)
}

func (s *Store) sortedEdges(id string) []Association {
	out := make([]Association, 0, len(s.edges[id]))
	for _, e := range s.edges[id] {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Weight != out[j].Weight {
			return out[i].Weight > out[j].Weight
		}
		return out[i].ToID < out[j].ToID
	})
	return out
}

// Stats summarizes the store.
type Stats struct {
	Total               int              `json:"total"`
	ByCategory          map[Category]int `json:"by_category"`
	Associations        int              `json:"associations"`
	Working             int              `json:"working"`
	PendingConsolidated int              `json:"pending_consolidation"`
	CompressedOriginals int              `json:"compressed_originals"`
	SyntheticRecords    int              `json:"synthetic_records"`
	CompressionRatio    float64          `json:"compression_ratio"`
}

// Stats returns counts and the running compression ratio.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Stats{
		Total:               len(s.records),
		ByCategory:          make(map[Category]int, len(Categories)),
		Working:             s.working.Len(),
		PendingConsolidated: len(s.pending),
		CompressedOriginals: s.compressedOriginals,
		SyntheticRecords:    s.syntheticRecords,
		CompressionRatio:    s.compressionRatio(),
	}
	for c, ids := range s.byCategory {
		st.ByCategory[c] = len(ids)
	}
	for _, to := range s.edges {
		st.Associations += len(to)
	}
	return st
}

func insertAt(ids []string, i int, id string) []string {
	ids = append(ids, "")
	copy(ids[i+1:], ids[i:])
	ids[i] = id
	return ids
}

func removeID(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
