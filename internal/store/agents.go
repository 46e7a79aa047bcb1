package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/nidhogg/nuka-mind/internal/persona"
)

// AgentRow is a registered agent.
type AgentRow struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Personality persona.Personality `json:"personality"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

// SaveAgent upserts an agent.
func (s *Store) SaveAgent(ctx context.Context, a AgentRow) error {
	traits, err := json.Marshal(a.Personality)
	if err != nil {
		return fmt.Errorf("encode personality %s: %w", a.ID, err)
	}
	now := time.Now()
	_, err = s.db.Exec(ctx, `
		INSERT INTO agents (id, name, personality, status, created_at, updated_at)
		VALUES ($1, $2, $3, 'active', $4, $4)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			personality = EXCLUDED.personality,
			status = 'active',
			updated_at = EXCLUDED.updated_at`,
		a.ID, a.Name, traits, now,
	)
	if err != nil {
		return fmt.Errorf("save agent %s: %w", a.ID, err)
	}
	return nil
}

// GetAgent retrieves a single agent by ID.
func (s *Store) GetAgent(ctx context.Context, id string) (*AgentRow, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, name, personality, created_at, updated_at
		FROM agents WHERE id = $1 AND status != 'deleted'`, id)
	a, err := scanAgent(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("get agent %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get agent %s: %w", id, err)
	}
	return a, nil
}

// ListAgents returns all non-deleted agents in creation order.
func (s *Store) ListAgents(ctx context.Context) ([]*AgentRow, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, name, personality, created_at, updated_at
		FROM agents WHERE status != 'deleted'
		ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	var agents []*AgentRow
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan agent: %w", err)
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

// DeleteAgent soft-deletes an agent by setting status to 'deleted'.
func (s *Store) DeleteAgent(ctx context.Context, id string) error {
	_, err := s.db.Exec(ctx,
		`UPDATE agents SET status = 'deleted', updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete agent %s: %w", id, err)
	}
	return nil
}

func scanAgent(row pgx.Row) (*AgentRow, error) {
	var a AgentRow
	var traits []byte
	if err := row.Scan(&a.ID, &a.Name, &traits, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	if len(traits) > 0 {
		if err := json.Unmarshal(traits, &a.Personality); err != nil {
			return nil, fmt.Errorf("decode personality %s: %w", a.ID, err)
		}
	}
	return &a, nil
}
