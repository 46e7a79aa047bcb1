//go:build integration

package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/nidhogg/nuka-mind/internal/attention"
	"github.com/nidhogg/nuka-mind/internal/consciousness"
	"github.com/nidhogg/nuka-mind/internal/emergence"
	"github.com/nidhogg/nuka-mind/internal/memory"
	"github.com/nidhogg/nuka-mind/internal/persona"
	"github.com/nidhogg/nuka-mind/internal/testinfra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	s, err := New(ctx, testinfra.StartPostgres(t), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(s.Close)
	require.NoError(t, s.Migrate(ctx, "../../migrations"))
	// Migrations are re-runnable.
	require.NoError(t, s.Migrate(ctx, "../../migrations"))
	return s
}

func TestAgentsCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveAgent(ctx, AgentRow{ID: "npc-1", Name: "Mira", Personality: persona.Personality{persona.TraitCuriosity: 0.9}}))
	require.NoError(t, s.SaveAgent(ctx, AgentRow{ID: "npc-2", Name: "Bob"}))
	require.NoError(t, s.SaveAgent(ctx, AgentRow{ID: "npc-1", Name: "Mira the Bold", Personality: persona.Personality{persona.TraitCuriosity: 0.8}}))

	a, err := s.GetAgent(ctx, "npc-1")
	require.NoError(t, err)
	assert.Equal(t, "Mira the Bold", a.Name)
	assert.Equal(t, 0.8, a.Personality[persona.TraitCuriosity])

	all, err := s.ListAgents(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, s.DeleteAgent(ctx, "npc-2"))
	_, err = s.GetAgent(ctx, "npc-2")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSnapshotRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveAgent(ctx, AgentRow{ID: "npc-1"}))

	_, err := s.LoadSnapshot(ctx, "npc-1")
	require.ErrorIs(t, err, ErrNotFound)

	logger := zap.NewNop()
	ctrl := consciousness.New("npc-1", persona.Personality{},
		memory.NewStore("npc-1", memory.Config{}, logger),
		attention.NewSelector(attention.Config{}, logger),
		emergence.NewEngine("npc-1", nil, emergence.Config{Seed: 1}, logger),
		consciousness.Config{}, logger)
	ctrl.AddGoal(attention.Goal{ID: "g1", Type: "explore", Priority: 0.5})
	_, err = ctrl.Tick(ctx, consciousness.Perception{
		Stimuli: []attention.Stimulus{{ID: "s1", Type: "threat", Source: "wolf", Content: "a wolf growls"}},
		State:   emergence.State{Novelty: 0.9, Situation: "forest"},
	})
	require.NoError(t, err)

	want := ctrl.Snapshot()
	require.NoError(t, s.SaveSnapshot(ctx, want))
	got, err := s.LoadSnapshot(ctx, "npc-1")
	require.NoError(t, err)

	want.Personality = nil
	opts := cmp.Options{
		cmpopts.EquateEmpty(),
		cmpopts.EquateApproxTime(time.Microsecond),
		cmpopts.EquateApprox(0, 1e-12),
	}
	if diff := cmp.Diff(want, *got, opts); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}
}
