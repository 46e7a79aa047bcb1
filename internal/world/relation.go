package world

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/nidhogg/nuka-mind/internal/persona"
	"go.uber.org/zap"
)

// Relation is a directed relationship from one agent to another entity.
// Dimensions range over [-1, 1].
type Relation struct {
	FromAgentID string    `json:"from_agent_id"`
	ToID        string    `json:"to_id"`
	Trust       float64   `json:"trust"`
	Affection   float64   `json:"affection"`
	Respect     float64   `json:"respect"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (r Relation) relationship() persona.Relationship {
	return persona.Relationship{Trust: r.Trust, Affection: r.Affection, Respect: r.Respect}
}

// RelationGraph stores relationships in Neo4j and serves per-agent
// snapshots to the cognition tick.
type RelationGraph struct {
	driver    neo4j.DriverWithContext
	decayRate float64 // fraction of each dimension lost per decay tick
	logger    *zap.Logger
}

// NewRelationGraph creates a relation graph backed by Neo4j.
func NewRelationGraph(driver neo4j.DriverWithContext, decayRate float64, logger *zap.Logger) *RelationGraph {
	return &RelationGraph{
		driver:    driver,
		decayRate: decayRate,
		logger:    logger,
	}
}

// SetRelation creates or replaces a relationship.
func (g *RelationGraph) SetRelation(ctx context.Context, rel Relation) error {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.Run(ctx,
		`MERGE (a:Agent {id: $from})
		 MERGE (b:Entity {id: $to})
		 MERGE (a)-[r:RELATES_TO]->(b)
		 SET r.trust = $trust, r.affection = $affection, r.respect = $respect, r.updated_at = datetime()`,
		map[string]any{
			"from":      rel.FromAgentID,
			"to":        rel.ToID,
			"trust":     clampUnit(rel.Trust),
			"affection": clampUnit(rel.Affection),
			"respect":   clampUnit(rel.Respect),
		})
	if err != nil {
		return fmt.Errorf("set relation: %w", err)
	}
	return nil
}

// Relations returns every outgoing relationship of an agent.
func (g *RelationGraph) Relations(ctx context.Context, agentID string) ([]Relation, error) {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.Run(ctx,
		`MATCH (a:Agent {id: $agentId})-[r:RELATES_TO]->(b)
		 RETURN b.id AS to, r.trust AS trust, r.affection AS affection, r.respect AS respect
		 ORDER BY to`,
		map[string]any{"agentId": agentID})
	if err != nil {
		return nil, fmt.Errorf("get relations: %w", err)
	}

	var relations []Relation
	for result.Next(ctx) {
		rec := result.Record()
		to, _ := rec.Get("to")
		toID, ok := to.(string)
		if !ok {
			continue
		}
		relations = append(relations, Relation{
			FromAgentID: agentID,
			ToID:        toID,
			Trust:       floatValue(rec, "trust"),
			Affection:   floatValue(rec, "affection"),
			Respect:     floatValue(rec, "respect"),
		})
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("get relations: %w", err)
	}
	return relations, nil
}

// Load implements RelationSource: a snapshot of the agent's relationships
// keyed by the other entity's id.
func (g *RelationGraph) Load(ctx context.Context, agentID string) (persona.Relationships, error) {
	rels, err := g.Relations(ctx, agentID)
	if err != nil {
		return nil, err
	}
	out := make(persona.Relationships, len(rels))
	for _, r := range rels {
		out[r.ToID] = r.relationship()
	}
	return out, nil
}

// RecordInteraction shifts a relationship by delta, clamped to [-1, 1],
// creating it when missing.
func (g *RelationGraph) RecordInteraction(ctx context.Context, fromID, toID string, delta persona.Relationship) error {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.Run(ctx,
		`MERGE (a:Agent {id: $from})
		 MERGE (b:Entity {id: $to})
		 MERGE (a)-[r:RELATES_TO]->(b)
		 ON CREATE SET r.trust = 0.0, r.affection = 0.0, r.respect = 0.0
		 WITH r
		 SET r.trust = CASE WHEN r.trust + $trust > 1.0 THEN 1.0 WHEN r.trust + $trust < -1.0 THEN -1.0 ELSE r.trust + $trust END,
		     r.affection = CASE WHEN r.affection + $affection > 1.0 THEN 1.0 WHEN r.affection + $affection < -1.0 THEN -1.0 ELSE r.affection + $affection END,
		     r.respect = CASE WHEN r.respect + $respect > 1.0 THEN 1.0 WHEN r.respect + $respect < -1.0 THEN -1.0 ELSE r.respect + $respect END,
		     r.updated_at = datetime()`,
		map[string]any{
			"from":      fromID,
			"to":        toID,
			"trust":     delta.Trust,
			"affection": delta.Affection,
			"respect":   delta.Respect,
		})
	if err != nil {
		return fmt.Errorf("record interaction: %w", err)
	}
	return nil
}

// OnTick implements ClockListener. Every relationship fades toward neutral
// by decayRate of its current value.
func (g *RelationGraph) OnTick(ctx context.Context, worldTime time.Time) {
	if g.decayRate <= 0 {
		return
	}
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.Run(ctx,
		`MATCH ()-[r:RELATES_TO]->()
		 SET r.trust = r.trust * $keep, r.affection = r.affection * $keep, r.respect = r.respect * $keep`,
		map[string]any{"keep": 1 - g.decayRate})
	if err != nil {
		g.logger.Warn("relation decay tick failed", zap.Time("world_time", worldTime), zap.Error(err))
	}
}

func floatValue(rec *neo4j.Record, key string) float64 {
	v, ok := rec.Get(key)
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	default:
		return 0
	}
}

func clampUnit(v float64) float64 {
	return math.Max(-1, math.Min(1, v))
}
