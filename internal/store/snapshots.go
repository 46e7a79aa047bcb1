package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/nidhogg/nuka-mind/internal/consciousness"
	"go.uber.org/zap"
)

// SaveSnapshot upserts an agent's cognitive snapshot. Memory, attention
// and learned patterns are stored as separate JSONB columns so each can be
// inspected on its own.
func (s *Store) SaveSnapshot(ctx context.Context, snap consciousness.Snapshot) error {
	mem, err := json.Marshal(snap.Memory)
	if err != nil {
		return fmt.Errorf("encode memory %s: %w", snap.AgentID, err)
	}
	att, err := json.Marshal(snap.Attention)
	if err != nil {
		return fmt.Errorf("encode attention %s: %w", snap.AgentID, err)
	}
	patterns, err := json.Marshal(snap.Patterns)
	if err != nil {
		return fmt.Errorf("encode patterns %s: %w", snap.AgentID, err)
	}
	goals, err := json.Marshal(snap.Goals)
	if err != nil {
		return fmt.Errorf("encode goals %s: %w", snap.AgentID, err)
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO cognition_snapshots (agent_id, awareness, goals, memory, attention, patterns, record_count, saved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (agent_id) DO UPDATE SET
			awareness = EXCLUDED.awareness,
			goals = EXCLUDED.goals,
			memory = EXCLUDED.memory,
			attention = EXCLUDED.attention,
			patterns = EXCLUDED.patterns,
			record_count = EXCLUDED.record_count,
			saved_at = EXCLUDED.saved_at`,
		snap.AgentID, snap.Awareness, goals, mem, att, patterns, len(snap.Memory.Records), snap.SavedAt,
	)
	if err != nil {
		return fmt.Errorf("save snapshot %s: %w", snap.AgentID, err)
	}
	s.logger.Debug("snapshot saved",
		zap.String("agent", snap.AgentID),
		zap.Int("records", len(snap.Memory.Records)))
	return nil
}

// LoadSnapshot returns the latest snapshot of an agent, or ErrNotFound.
// The personality is not part of the snapshot row; callers take it from
// the agent row.
func (s *Store) LoadSnapshot(ctx context.Context, agentID string) (*consciousness.Snapshot, error) {
	var (
		snap                      consciousness.Snapshot
		goals, mem, att, patterns []byte
	)
	err := s.db.QueryRow(ctx, `
		SELECT agent_id, awareness, goals, memory, attention, patterns, saved_at
		FROM cognition_snapshots WHERE agent_id = $1`, agentID,
	).Scan(&snap.AgentID, &snap.Awareness, &goals, &mem, &att, &patterns, &snap.SavedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("load snapshot %s: %w", agentID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", agentID, err)
	}

	for _, part := range []struct {
		name string
		data []byte
		into any
	}{
		{"goals", goals, &snap.Goals},
		{"memory", mem, &snap.Memory},
		{"attention", att, &snap.Attention},
		{"patterns", patterns, &snap.Patterns},
	} {
		if err := json.Unmarshal(part.data, part.into); err != nil {
			return nil, fmt.Errorf("decode %s %s: %w", part.name, agentID, err)
		}
	}
	return &snap, nil
}
