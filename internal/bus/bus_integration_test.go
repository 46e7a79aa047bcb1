//go:build integration

package bus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nidhogg/nuka-mind/internal/attention"
	"github.com/nidhogg/nuka-mind/internal/emergence"
	"github.com/nidhogg/nuka-mind/internal/testinfra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type inbox struct {
	mu  sync.Mutex
	got map[string][]attention.Stimulus
}

func (i *inbox) Perceive(agentID string, stimuli ...attention.Stimulus) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.got[agentID] = append(i.got[agentID], stimuli...)
	return nil
}

func (i *inbox) count(agentID string) int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.got[agentID])
}

func TestBusRoundTrip(t *testing.T) {
	url := testinfra.StartRedis(t)
	ctx := context.Background()
	b, err := New(ctx, url, zap.NewNop())
	require.NoError(t, err)
	defer b.Close()

	behaviors := []emergence.Behavior{
		{ID: "b1", AgentID: "npc-1", Action: "investigate", Strength: 0.6},
		{ID: "b2", AgentID: "npc-1", Action: "ask_questions", Strength: 0.5},
	}
	require.NoError(t, b.PublishBehaviors(ctx, "npc-1", behaviors))
	got, err := b.RecentBehaviors(ctx, "npc-1", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b2", got[0].ID, "newest first")

	box := &inbox{got: make(map[string][]attention.Stimulus)}
	dctx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- b.Deliver(dctx, box, []string{"npc-1", "npc-2"}) }()

	// Deliver only sees entries added after it starts reading.
	require.Eventually(t, func() bool {
		_ = b.PublishStimulus(ctx, "npc-2", attention.Stimulus{ID: "probe", Type: "information"})
		return box.count("npc-2") > 0
	}, 10*time.Second, 100*time.Millisecond)

	require.NoError(t, b.PublishStimulus(ctx, "npc-1", attention.Stimulus{ID: "s1", Type: "threat", Source: "wolf"}))
	require.Eventually(t, func() bool { return box.count("npc-1") == 1 }, 5*time.Second, 20*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, "wolf", box.got["npc-1"][0].Source)
}
