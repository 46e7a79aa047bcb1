package memory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedTavern(t *testing.T, s *Store, clock *fakeClock) {
	t.Helper()
	mustStore(t, s, Record{ID: "greet", Type: "greeting", Content: "Bob waved from the bar", Importance: 0.4,
		Context: map[string]string{"place": "tavern", "who": "bob"}})
	clock.Advance(2 * time.Hour)
	mustStore(t, s, Record{ID: "fight", Type: "brawl", Content: "a chair flew across the room", Importance: 0.9,
		Context: map[string]string{"place": "tavern", "who": "stranger"}})
	clock.Advance(2 * time.Hour)
	mustStore(t, s, Record{ID: "rule", Type: "world_fact", Content: "the tavern closes at midnight", Importance: 0.6,
		Context: map[string]string{"place": "tavern"}})
	clock.Advance(2 * time.Hour)
	mustStore(t, s, Record{ID: "market", Type: "greeting", Content: "Mira greeted me at the market", Importance: 0.3,
		Context: map[string]string{"place": "market", "who": "mira"}})
}

func TestCriteriaMode(t *testing.T) {
	_, err := Criteria{}.Mode()
	assert.ErrorIs(t, err, ErrInvalidCriteria)

	_, err = Criteria{Type: "greeting", Text: "bob"}.Mode()
	assert.ErrorIs(t, err, ErrInvalidCriteria)

	m, err := Criteria{To: epoch}.Mode()
	require.NoError(t, err)
	assert.Equal(t, ModeTimeRange, m)

	m, err = Criteria{Text: "bob", MinImportance: 0.2, Category: CategorySemantic}.Mode()
	require.NoError(t, err)
	assert.Equal(t, ModeText, m)
}

func TestQueryByTypeRanksByImportance(t *testing.T) {
	s, clock := newTestStore(t, Config{})
	seedTavern(t, s, clock)

	got, err := s.Peek(Criteria{Type: "greeting"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "greet", got[0].Record.ID)
	assert.Equal(t, "market", got[1].Record.ID)
	assert.Equal(t, ModeType, got[0].Mode)
	assert.Greater(t, got[0].Score, got[1].Score)
}

func TestQueryTouchesButPeekDoesNot(t *testing.T) {
	s, clock := newTestStore(t, Config{})
	seedTavern(t, s, clock)
	before, _ := s.Get("fight")

	_, err := s.Peek(Criteria{Type: "brawl"})
	require.NoError(t, err)
	peeked, _ := s.Get("fight")
	assert.Equal(t, before, peeked)

	clock.Advance(time.Minute)
	got, err := s.Query(Criteria{Type: "brawl"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 1, got[0].Record.AccessCount)

	touched, _ := s.Get("fight")
	assert.Equal(t, 1, touched.AccessCount)
	assert.Equal(t, clock.Now(), touched.LastAccessed)
	assert.InDelta(t, before.Strength+0.05, touched.Strength, 1e-9)
}

func TestQueryByContextRequiresEveryPair(t *testing.T) {
	s, clock := newTestStore(t, Config{})
	seedTavern(t, s, clock)

	got, err := s.Peek(Criteria{Context: map[string]string{"place": "tavern"}})
	require.NoError(t, err)
	assert.Len(t, got, 3)

	got, err = s.Peek(Criteria{Context: map[string]string{"place": "tavern", "who": "bob"}})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "greet", got[0].Record.ID)

	got, err = s.Peek(Criteria{Context: map[string]string{"place": "castle"}})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestQueryByAssociationOrdersByWeight(t *testing.T) {
	s, clock := newTestStore(t, Config{})
	seedTavern(t, s, clock)

	got, err := s.Peek(Criteria{AssociatedWith: "greet"})
	require.NoError(t, err)
	require.NotEmpty(t, got)
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i-1].Score, got[i].Score)
	}
	edges := s.Associations("greet")
	require.Len(t, got, len(edges))
	assert.Equal(t, edges[0].ToID, got[0].Record.ID)
}

func TestQueryByTimeRange(t *testing.T) {
	s, clock := newTestStore(t, Config{})
	seedTavern(t, s, clock)

	got, err := s.Peek(Criteria{From: epoch.Add(time.Hour), To: epoch.Add(5 * time.Hour)})
	require.NoError(t, err)
	ids := make([]string, 0, len(got))
	for _, m := range got {
		ids = append(ids, m.Record.ID)
	}
	assert.ElementsMatch(t, []string{"fight", "rule"}, ids)
}

func TestQueryByTextWeightsContentTypeContext(t *testing.T) {
	s, clock := newTestStore(t, Config{})
	seedTavern(t, s, clock)

	got, err := s.Peek(Criteria{Text: "tavern"})
	require.NoError(t, err)
	require.Len(t, got, 3)
	// "rule" mentions the tavern in its content and context.
	assert.Equal(t, "rule", got[0].Record.ID)
	assert.InDelta(t, 0.7, got[0].Score, 1e-9)
	assert.InDelta(t, 0.2, got[1].Score, 1e-9)

	got, err = s.Peek(Criteria{Text: "greeting"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.InDelta(t, 0.3, got[0].Score, 1e-9)
}

func TestQueryFiltersAndLimit(t *testing.T) {
	s, clock := newTestStore(t, Config{})
	seedTavern(t, s, clock)

	got, err := s.Peek(Criteria{Context: map[string]string{"place": "tavern"}, MinImportance: 0.5})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = s.Peek(Criteria{Context: map[string]string{"place": "tavern"}, Category: CategorySemantic})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "rule", got[0].Record.ID)

	got, err = s.Peek(Criteria{Text: "the", Limit: 2})
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestQueryRejectsAmbiguousCriteria(t *testing.T) {
	s, _ := newTestStore(t, Config{})
	_, err := s.Query(Criteria{Type: "a", AssociatedWith: "b"})
	assert.ErrorIs(t, err, ErrInvalidCriteria)
}

func TestSpreadFollowsAssociations(t *testing.T) {
	s, clock := newTestStore(t, Config{WorkingMemorySize: 1})
	mustStore(t, s, Record{ID: "a", Type: "x", Content: "a", Context: map[string]string{"k": "1"}})
	clock.Advance(72 * time.Hour)
	mustStore(t, s, Record{ID: "b", Type: "y", Content: "b", Context: map[string]string{"k": "1", "j": "2"}})
	clock.Advance(72 * time.Hour)
	mustStore(t, s, Record{ID: "c", Type: "z", Content: "c", Context: map[string]string{"j": "2"}})

	// a -0.5- b -0.5- c, contextual links only.
	got := s.Spread([]string{"a"}, ActivationOpts{MaxDepth: 3, DecayFactor: 1, Threshold: 0.1, MaxNodes: 10})
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].Record.ID)
	assert.InDelta(t, 0.5, got[0].Activation, 1e-9)
	assert.Equal(t, 1, got[0].Depth)
	assert.Equal(t, "c", got[1].Record.ID)
	assert.InDelta(t, 0.25, got[1].Activation, 1e-9)

	got = s.Spread([]string{"a"}, ActivationOpts{MaxDepth: 3, DecayFactor: 1, Threshold: 0.3, MaxNodes: 10})
	require.Len(t, got, 1)

	rec, _ := s.Get("b")
	assert.Zero(t, rec.AccessCount)
}
