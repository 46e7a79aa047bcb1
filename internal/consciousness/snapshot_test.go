package consciousness

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/nidhogg/nuka-mind/internal/attention"
	"github.com/nidhogg/nuka-mind/internal/emergence"
	"github.com/stretchr/testify/require"
)

func TestSnapshotRestoresMind(t *testing.T) {
	c, clock := newTestController(t, alarmRules())
	c.AddGoal(attention.Goal{ID: "g1", Type: "explore", Priority: 0.7})
	_, err := c.Tick(context.Background(), Perception{
		Stimuli: []attention.Stimulus{wolf()},
		State:   emergence.State{Threat: 0.9, Situation: "forest"},
	})
	require.NoError(t, err)
	clock.Advance(30 * time.Second)
	_, err = c.Tick(context.Background(), Perception{})
	require.NoError(t, err)

	snap := c.Snapshot()
	require.Len(t, snap.Patterns, 1)
	require.Equal(t, 1, len(snap.Memory.Records))

	fresh, _ := newTestController(t, alarmRules())
	fresh.SetClock(clock.Now)
	fresh.Restore(snap)

	if diff := cmp.Diff(snap, fresh.Snapshot(), cmpopts.EquateEmpty(), cmpopts.EquateApprox(0, 1e-9)); diff != "" {
		t.Errorf("restored snapshot mismatch (-want +got):\n%s", diff)
	}
}
