package memory

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestStore(t *testing.T, cfg Config) (*Store, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: epoch}
	s := NewStore("npc-1", cfg, zap.NewNop())
	s.SetClock(clock.Now)
	return s, clock
}

func mustStore(t *testing.T, s *Store, r Record) string {
	t.Helper()
	id, err := s.Store(r)
	require.NoError(t, err)
	return id
}

func TestStoreAppliesDefaults(t *testing.T) {
	s, _ := newTestStore(t, Config{})

	id := mustStore(t, s, Record{Content: "saw a merchant at the gate"})
	rec, ok := s.Get(id)
	require.True(t, ok)

	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, "npc-1", rec.OwnerID)
	assert.Equal(t, CategoryEpisodic, rec.Category)
	assert.Equal(t, 0.5, rec.Strength)
	assert.Equal(t, 0.5, rec.Importance)
	assert.Equal(t, epoch, rec.Timestamp)
	assert.False(t, rec.Consolidated)
}

func TestStoreImportanceZeroValueIsDefault(t *testing.T) {
	s, _ := newTestStore(t, Config{DefaultImportance: 0.4})
	cases := []struct {
		in, want float64
	}{
		{0, 0.4},
		{-0.3, 0.4},
		{0.01, 0.01},
		{1.5, 1},
	}
	for _, tc := range cases {
		id := mustStore(t, s, Record{Content: fmt.Sprintf("importance %v", tc.in), Importance: tc.in})
		rec, ok := s.Get(id)
		require.True(t, ok)
		assert.InDelta(t, tc.want, rec.Importance, 1e-9, "stored with %v", tc.in)
	}
}

func TestStoreRejectsMissingContent(t *testing.T) {
	s, _ := newTestStore(t, Config{})
	_, err := s.Store(Record{Type: "event", Content: "   "})
	assert.ErrorIs(t, err, ErrMissingContent)
	assert.Zero(t, s.Len())
}

func TestStoreCategoryHeuristic(t *testing.T) {
	s, _ := newTestStore(t, Config{})
	cases := map[string]Category{
		"sword_skill":      CategoryProcedural,
		"world_fact":       CategorySemantic,
		"trauma":           CategoryEmotional,
		"conversation":     CategoryEpisodic,
		"interaction":      CategoryEpisodic,
		"":                 CategoryEpisodic,
		"learned_lesson":   CategorySemantic,
		"combat_technique": CategoryProcedural,
	}
	for typ, want := range cases {
		id := mustStore(t, s, Record{Type: typ, Content: "x " + typ})
		rec, _ := s.Get(id)
		assert.Equal(t, want, rec.Category, "type %q", typ)
	}

	id := mustStore(t, s, Record{Type: "sword_skill", Category: CategorySemantic, Content: "explicit wins"})
	rec, _ := s.Get(id)
	assert.Equal(t, CategorySemantic, rec.Category)
}

func TestStoreEmotionalBoostQueuesConsolidation(t *testing.T) {
	s, _ := newTestStore(t, Config{})
	id := mustStore(t, s, Record{
		Content:    "the bandit drew a knife",
		Importance: 0.6,
		Emotion:    map[string]float64{"fear": -0.8, "anger": 0.4},
	})
	rec, _ := s.Get(id)
	assert.InDelta(t, 0.6*(1+0.6*0.5), rec.Importance, 1e-9)
	assert.Equal(t, []string{id}, s.Pending())
}

func TestStoreClampsBounds(t *testing.T) {
	s, clock := newTestStore(t, Config{})
	for i := 0; i < 30; i++ {
		mustStore(t, s, Record{
			Type:       fmt.Sprintf("t%d", i%3),
			Content:    fmt.Sprintf("event %d", i),
			Importance: 0.3 + float64(i)*0.1,
			Strength:   float64(i) * 0.2,
			Emotion:    map[string]float64{"joy": 1},
			Context:    map[string]string{"place": fmt.Sprintf("p%d", i%2)},
		})
		clock.Advance(time.Hour)
	}
	assertBounded := func(stage string) {
		for _, r := range s.All() {
			assert.True(t, r.Strength >= 0 && r.Strength <= 1, "%s: strength %v", stage, r.Strength)
			assert.True(t, r.Importance >= 0 && r.Importance <= 1, "%s: importance %v", stage, r.Importance)
		}
		for _, r := range s.All() {
			for _, e := range s.Associations(r.ID) {
				assert.True(t, e.Weight >= 0 && e.Weight <= 1, "%s: weight %v", stage, e.Weight)
			}
		}
	}
	assertBounded("store")

	for i := 0; i < 40; i++ {
		_, err := s.Query(Criteria{Type: "t1"})
		require.NoError(t, err)
	}
	assertBounded("query")

	s.ConsolidatePending()
	for _, r := range s.All() {
		require.NoError(t, s.Consolidate(r.ID))
	}
	assertBounded("consolidate")

	clock.Advance(30 * 24 * time.Hour)
	s.ProcessForgetting()
	assertBounded("forgetting")

	s.Compress()
	assertBounded("compress")
}

func TestWorkingMemoryIsBoundedAndDeduplicated(t *testing.T) {
	s, clock := newTestStore(t, Config{WorkingMemorySize: 3})
	var ids []string
	for i := 0; i < 5; i++ {
		ids = append(ids, mustStore(t, s, Record{ID: fmt.Sprintf("m%d", i), Content: fmt.Sprintf("m%d", i)}))
		clock.Advance(48 * time.Hour)
	}
	working := s.Working()
	require.Len(t, working, 3)
	assert.Equal(t, ids[2:], []string{working[0].ID, working[1].ID, working[2].ID})

	// Re-storing an id replaces the record and moves it to the newest slot.
	mustStore(t, s, Record{ID: "m3", Content: "m3 again"})
	working = s.Working()
	require.Len(t, working, 3)
	assert.Equal(t, []string{"m2", "m4", "m3"}, []string{working[0].ID, working[1].ID, working[2].ID})
	assert.Equal(t, 5, s.Len())
}

func TestAssociationsAreCreatedInPairs(t *testing.T) {
	s, clock := newTestStore(t, Config{})
	a := mustStore(t, s, Record{Type: "greeting", Content: "bob said hi", Context: map[string]string{"place": "tavern"}})
	clock.Advance(time.Minute)
	b := mustStore(t, s, Record{Type: "greeting", Content: "bob said hello", Context: map[string]string{"place": "tavern"}})

	ab := s.Associations(a)
	ba := s.Associations(b)
	require.Len(t, ab, 1)
	require.Len(t, ba, 1)
	assert.Equal(t, b, ab[0].ToID)
	assert.Equal(t, a, ba[0].ToID)
	assert.Equal(t, AssociationTemporal, ab[0].Kind)
	assert.InDelta(t, ab[0].Weight, ba[0].Weight, 1e-12)
	assert.Greater(t, ab[0].Weight, 0.7)
}

func TestContextualLinksReachBeyondWorkingMemory(t *testing.T) {
	s, clock := newTestStore(t, Config{WorkingMemorySize: 2})
	old := mustStore(t, s, Record{Type: "trade", Content: "bought bread", Context: map[string]string{"vendor": "mira"}})
	for i := 0; i < 3; i++ {
		clock.Advance(72 * time.Hour)
		mustStore(t, s, Record{Type: fmt.Sprintf("other%d", i), Content: "filler", Context: map[string]string{"x": fmt.Sprint(i)}})
	}
	clock.Advance(72 * time.Hour)
	fresh := mustStore(t, s, Record{Type: "gossip", Content: "mira is late", Context: map[string]string{"vendor": "mira"}})

	edges := s.Associations(fresh)
	require.Len(t, edges, 1)
	assert.Equal(t, old, edges[0].ToID)
	assert.Equal(t, AssociationContextual, edges[0].Kind)
	assert.Equal(t, 0.5, edges[0].Weight)

	back := s.Associations(old)
	require.Len(t, back, 1)
	assert.Equal(t, fresh, back[0].ToID)
}

func TestContextualLinksAreCapped(t *testing.T) {
	s, clock := newTestStore(t, Config{WorkingMemorySize: 1})
	for i := 0; i < 8; i++ {
		mustStore(t, s, Record{Type: fmt.Sprintf("kind%d", i), Content: "at the well", Context: map[string]string{"place": "well"}})
		clock.Advance(72 * time.Hour)
	}
	last := mustStore(t, s, Record{Type: "kind-last", Content: "at the well again", Context: map[string]string{"place": "well"}})
	assert.Len(t, s.Associations(last), 5)
}

func TestImportantIndex(t *testing.T) {
	s, _ := newTestStore(t, Config{})
	mustStore(t, s, Record{ID: "low", Content: "a", Importance: 0.2})
	mustStore(t, s, Record{ID: "high", Content: "b", Importance: 0.9})
	mustStore(t, s, Record{ID: "mid", Content: "c", Importance: 0.5})

	top := s.Important(2)
	require.Len(t, top, 2)
	assert.Equal(t, "high", top[0].ID)
	assert.Equal(t, "mid", top[1].ID)
	assert.Len(t, s.Important(0), 3)
}
