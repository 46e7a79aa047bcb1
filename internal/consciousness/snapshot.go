package consciousness

import (
	"time"

	"github.com/nidhogg/nuka-mind/internal/attention"
	"github.com/nidhogg/nuka-mind/internal/emergence"
	"github.com/nidhogg/nuka-mind/internal/memory"
	"github.com/nidhogg/nuka-mind/internal/persona"
)

// Snapshot is everything needed to resume an agent's mind.
type Snapshot struct {
	AgentID     string              `json:"agent_id"`
	Personality persona.Personality `json:"personality"`
	Awareness   float64             `json:"awareness"`
	Goals       []attention.Goal    `json:"goals"`
	Memory      memory.Snapshot     `json:"memory"`
	Attention   attention.State     `json:"attention"`
	Patterns    []emergence.Pattern `json:"patterns"`
	SavedAt     time.Time           `json:"saved_at"`
}

// Snapshot copies the agent's cognitive state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		AgentID:     c.agentID,
		Personality: c.personality,
		Awareness:   c.awareness,
		Goals:       append([]attention.Goal(nil), c.goals...),
		Memory:      c.memory.Snapshot(),
		Attention:   c.attention.State(),
		Patterns:    c.engine.Patterns(),
		SavedAt:     c.now(),
	}
}

// Restore replaces the agent's cognitive state with snap. The personality
// stays the one the controller was built with.
func (c *Controller) Restore(snap Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.memory.Restore(snap.Memory)
	c.attention.Restore(snap.Attention)
	c.engine.RestorePatterns(snap.Patterns)
	c.awareness = max(0, min(1, snap.Awareness))
	c.goals = append([]attention.Goal(nil), snap.Goals...)
	c.goals = c.live(c.now())
	c.lastTick = time.Time{}
}
