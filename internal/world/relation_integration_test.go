//go:build integration

package world

import (
	"context"
	"testing"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/nidhogg/nuka-mind/internal/persona"
	"github.com/nidhogg/nuka-mind/internal/testinfra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestGraph(t *testing.T, decay float64) *RelationGraph {
	t.Helper()
	ctx := context.Background()
	driver, err := neo4j.NewDriverWithContext(testinfra.StartNeo4j(t), neo4j.NoAuth())
	require.NoError(t, err)
	t.Cleanup(func() { driver.Close(ctx) })
	require.NoError(t, driver.VerifyConnectivity(ctx))
	return NewRelationGraph(driver, decay, zap.NewNop())
}

func TestRelationGraphRoundTrip(t *testing.T) {
	g := newTestGraph(t, 0.5)
	ctx := context.Background()

	require.NoError(t, g.SetRelation(ctx, Relation{FromAgentID: "npc-1", ToID: "npc-2", Trust: 0.8, Affection: 1.4, Respect: -0.2}))
	require.NoError(t, g.RecordInteraction(ctx, "npc-1", "smith", persona.Relationship{Trust: 0.7}))
	require.NoError(t, g.RecordInteraction(ctx, "npc-1", "smith", persona.Relationship{Trust: 0.7, Respect: -0.3}))

	rels, err := g.Load(ctx, "npc-1")
	require.NoError(t, err)
	require.Len(t, rels, 2)
	assert.InDelta(t, 1.0, rels["npc-2"].Affection, 1e-9, "clamped on write")
	assert.InDelta(t, 1.0, rels["smith"].Trust, 1e-9, "clamped on interaction")
	assert.InDelta(t, -0.3, rels["smith"].Respect, 1e-9)

	g.OnTick(ctx, epoch)
	rels, err = g.Load(ctx, "npc-1")
	require.NoError(t, err)
	assert.InDelta(t, 0.4, rels["npc-2"].Trust, 1e-9)
	assert.InDelta(t, -0.1, rels["npc-2"].Respect, 1e-9)

	none, err := g.Load(ctx, "stranger")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestPopulationTicksWithGraph(t *testing.T) {
	g := newTestGraph(t, 0)
	ctx := context.Background()
	require.NoError(t, g.SetRelation(ctx, Relation{FromAgentID: "npc-0", ToID: "wolf", Trust: -0.9}))

	p := newPopulation(t, 1, 1)
	p.SetRelations(g)
	require.NoError(t, p.Perceive("npc-0", wolf()))
	rep, err := p.Step(ctx, epoch)
	require.NoError(t, err)
	assert.Zero(t, rep.Failed)
	require.Len(t, rep.Results, 1)
	assert.NotNil(t, rep.Results[0].Focus.Focus)
}
