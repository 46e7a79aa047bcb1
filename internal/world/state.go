package world

import (
	"sync"

	"github.com/nidhogg/nuka-mind/internal/consciousness"
	"go.uber.org/zap"
)

// AgentState is the coarse activity an agent shows to the outside world.
type AgentState string

const (
	StateIdle      AgentState = "idle"
	StateAttentive AgentState = "attentive"
	StateActing    AgentState = "acting"
	StateDrowsy    AgentState = "drowsy"
)

// drowsyAwareness is the awareness below which an agent reads as drowsy.
const drowsyAwareness = 0.3

// StateManager derives agent activity from tick results.
type StateManager struct {
	states map[string]AgentState // agentID -> current state
	mu     sync.RWMutex
	logger *zap.Logger
}

// NewStateManager creates an empty activity tracker.
func NewStateManager(logger *zap.Logger) *StateManager {
	return &StateManager{
		states: make(map[string]AgentState),
		logger: logger,
	}
}

// GetState returns the current state of an agent.
func (m *StateManager) GetState(agentID string) AgentState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.states[agentID]; ok {
		return s
	}
	return StateIdle
}

// SetState manually overrides an agent's state.
func (m *StateManager) SetState(agentID string, state AgentState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[agentID] = state
}

// States returns a copy of every tracked state.
func (m *StateManager) States() map[string]AgentState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]AgentState, len(m.states))
	for id, s := range m.states {
		out[id] = s
	}
	return out
}

// Observe updates the agent's state from a tick result.
func (m *StateManager) Observe(res *consciousness.TickResult) {
	if res == nil {
		return
	}
	next := Classify(res)

	m.mu.Lock()
	defer m.mu.Unlock()
	prev := m.states[res.AgentID]
	if next != prev {
		m.states[res.AgentID] = next
		m.logger.Debug("agent state changed",
			zap.String("agent", res.AgentID),
			zap.String("from", string(prev)),
			zap.String("to", string(next)))
	}
}

// Classify maps a tick result to an activity state. Low awareness wins,
// then acting on behaviours, then holding a focus.
func Classify(res *consciousness.TickResult) AgentState {
	switch {
	case res.Awareness < drowsyAwareness:
		return StateDrowsy
	case len(res.Behaviors) > 0:
		return StateActing
	case res.Focus.Focus != nil:
		return StateAttentive
	default:
		return StateIdle
	}
}
