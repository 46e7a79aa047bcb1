package memory

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsolidateIsIdempotent(t *testing.T) {
	s, clock := newTestStore(t, Config{})
	a := mustStore(t, s, Record{Type: "greeting", Content: "bob said hi"})
	clock.Advance(time.Minute)
	b := mustStore(t, s, Record{Type: "greeting", Content: "bob said hi again"})
	before := s.Associations(a)[0].Weight

	require.NoError(t, s.Consolidate(a))
	rec, _ := s.Get(a)
	assert.True(t, rec.Consolidated)
	assert.InDelta(t, 0.75, rec.Strength, 1e-9)
	assert.InDelta(t, min(before*1.2, 1), s.Associations(a)[0].Weight, 1e-9)
	assert.InDelta(t, min(before*1.2, 1), s.Associations(b)[0].Weight, 1e-9)

	once := s.Snapshot()
	require.NoError(t, s.Consolidate(a))
	if diff := cmp.Diff(once, s.Snapshot()); diff != "" {
		t.Errorf("second consolidation changed the store (-once +twice):\n%s", diff)
	}
}

func TestConsolidateUnknownID(t *testing.T) {
	s, _ := newTestStore(t, Config{})
	assert.ErrorIs(t, s.Consolidate("missing"), ErrNotFound)
}

func TestConsolidatePendingDrainsQueue(t *testing.T) {
	s, _ := newTestStore(t, Config{})
	id := mustStore(t, s, Record{Content: "the bridge collapsed", Importance: 0.9, Emotion: map[string]float64{"fear": -1}})
	mustStore(t, s, Record{Content: "nothing much", Importance: 0.2})
	require.Equal(t, []string{id}, s.Pending())

	assert.Equal(t, 1, s.ConsolidatePending())
	assert.Empty(t, s.Pending())
	assert.Zero(t, s.ConsolidatePending())

	rec, _ := s.Get(id)
	assert.True(t, rec.Consolidated)
}

func TestConsolidateWorkingUsesThreshold(t *testing.T) {
	s, clock := newTestStore(t, Config{})
	hi := mustStore(t, s, Record{Content: "crowned the new king", Importance: 0.8})
	clock.Advance(72 * time.Hour)
	mustStore(t, s, Record{Content: "ate lunch", Importance: 0.7})

	assert.Equal(t, []string{hi}, s.ConsolidateWorking())
	assert.Empty(t, s.ConsolidateWorking())
}

func TestForgettingCurve(t *testing.T) {
	s, clock := newTestStore(t, Config{})
	id := mustStore(t, s, Record{Content: "a stray cat", Importance: 0.1, Strength: 0.5})

	clock.Advance(10 * 24 * time.Hour)
	res := s.ProcessForgetting()
	assert.Equal(t, 1, res.Decayed)
	rec, ok := s.Get(id)
	require.True(t, ok)
	// 0.5*e^-1 + 0.1*0.3
	assert.InDelta(t, 0.2139, rec.Strength, 1e-4)

	clock.Advance(10 * 24 * time.Hour)
	res = s.ProcessForgetting()
	assert.Equal(t, []string{id}, res.EvictedIDs)
	_, ok = s.Get(id)
	assert.False(t, ok)
}

func TestForgettingNeverStrengthens(t *testing.T) {
	s, clock := newTestStore(t, Config{})
	id := mustStore(t, s, Record{Content: "the oath", Importance: 1, Strength: 0.3})
	require.NoError(t, s.Consolidate(id))
	for i := 0; i < 10; i++ {
		_, err := s.Query(Criteria{Text: "oath"})
		require.NoError(t, err)
	}
	before, _ := s.Get(id)

	clock.Advance(time.Hour)
	s.ProcessForgetting()
	after, _ := s.Get(id)
	assert.LessOrEqual(t, after.Strength, before.Strength)
}

func TestForgettingEvictsWeakRecordsAndTheirEdges(t *testing.T) {
	s, clock := newTestStore(t, Config{})
	weak := mustStore(t, s, Record{Type: "rumor", Content: "something odd", Strength: 0.05, Context: map[string]string{"place": "docks"}})
	clock.Advance(time.Minute)
	keep := mustStore(t, s, Record{Type: "rumor", Content: "something odder", Context: map[string]string{"place": "docks"}})
	require.NotEmpty(t, s.Associations(keep))

	clock.Advance(time.Hour)
	res := s.ProcessForgetting()
	assert.Equal(t, []string{weak}, res.EvictedIDs)
	assert.Empty(t, s.Associations(keep))
	for _, w := range s.Working() {
		assert.NotEqual(t, weak, w.ID)
	}
}

func TestForgettingSkipsRecentlyAccessed(t *testing.T) {
	s, clock := newTestStore(t, Config{})
	id := mustStore(t, s, Record{Type: "name", Content: "her name is Mira", Strength: 0.2})
	clock.Advance(30 * 24 * time.Hour)
	_, err := s.Query(Criteria{Type: "name"})
	require.NoError(t, err)

	clock.Advance(30 * time.Second)
	res := s.ProcessForgetting()
	assert.Equal(t, 1, res.Skipped)
	rec, _ := s.Get(id)
	assert.InDelta(t, 0.25, rec.Strength, 1e-9)
}

func TestCompressReplacesSimilarGroup(t *testing.T) {
	s, clock := newTestStore(t, Config{})
	var sources []string
	for i := 0; i < 5; i++ {
		sources = append(sources, mustStore(t, s, Record{
			Type:       "greeting",
			Content:    fmt.Sprintf("a traveller waved hello number %d", i),
			Importance: 0.3 + float64(i)*0.1,
			Context:    map[string]string{"place": "tavern"},
		}))
		clock.Advance(time.Minute)
	}
	clock.Advance(20 * 24 * time.Hour)
	other := mustStore(t, s, Record{Type: "world_fact", Content: "ale costs two coins", Context: map[string]string{"place": "tavern"}})

	res := s.Compress()
	require.Equal(t, 1, res.Groups)
	assert.Equal(t, 5, res.Replaced)
	assert.Equal(t, 5.0, res.Ratio)
	assert.Equal(t, 2, s.Len())

	syn, ok := s.Get(res.Created[0])
	require.True(t, ok)
	require.NotNil(t, syn.Compression)
	assert.Equal(t, "greeting", syn.Type)
	assert.Equal(t, "tavern", syn.Context["place"])
	assert.Equal(t, "greeting", syn.Compression.Pattern["type"])
	assert.Equal(t, "hello number traveller waved", syn.Compression.Pattern["keywords"])
	assert.Len(t, syn.Compression.Examples, 3)
	assert.ElementsMatch(t, sources, syn.Compression.SourceIDs)
	assert.InDelta(t, 0.7, syn.Importance, 1e-9)

	for _, id := range sources {
		_, ok := s.Get(id)
		assert.False(t, ok)
	}
	edges := s.Associations(other)
	require.Len(t, edges, 1)
	assert.Equal(t, syn.ID, edges[0].ToID)

	// Synthetic records are not regrouped.
	again := s.Compress()
	assert.Zero(t, again.Groups)
	assert.Equal(t, 5.0, s.Stats().CompressionRatio)
}

func TestCompressLeavesSmallGroups(t *testing.T) {
	s, clock := newTestStore(t, Config{})
	for i := 0; i < 3; i++ {
		mustStore(t, s, Record{Type: "greeting", Content: "hello", Context: map[string]string{"place": "tavern"}})
		clock.Advance(time.Minute)
	}
	res := s.Compress()
	assert.Zero(t, res.Groups)
	assert.Equal(t, 1.0, res.Ratio)
	assert.Equal(t, 3, s.Len())
}
