package world

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nidhogg/nuka-mind/internal/attention"
	"github.com/nidhogg/nuka-mind/internal/consciousness"
	"github.com/nidhogg/nuka-mind/internal/emergence"
	"github.com/nidhogg/nuka-mind/internal/persona"
	"github.com/nidhogg/nuka-mind/internal/ring"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrUnknownAgent is returned for an agent id that is not registered.
	ErrUnknownAgent = errors.New("unknown agent")
	// ErrDuplicateAgent is returned when an agent id is registered twice.
	ErrDuplicateAgent = errors.New("agent already registered")
)

// DefaultInboxSize bounds the stimuli queued between two ticks.
const DefaultInboxSize = 64

// RelationSource resolves an agent's relationship snapshot for a tick.
type RelationSource interface {
	Load(ctx context.Context, agentID string) (persona.Relationships, error)
}

// BehaviorSink receives the behaviours an agent produced during a tick.
type BehaviorSink interface {
	PublishBehaviors(ctx context.Context, agentID string, behaviors []emergence.Behavior) error
}

type resident struct {
	ctrl  *consciousness.Controller
	mu    sync.Mutex
	inbox *ring.Ring[attention.Stimulus]
	state emergence.State
	last  *consciousness.TickResult
}

// TickReport summarizes one population step.
type TickReport struct {
	WorldTime time.Time                   `json:"world_time"`
	Results   []*consciousness.TickResult `json:"results"`
	Failed    int                         `json:"failed"`
}

// Population owns every agent in the world and ticks them in parallel.
// Agents never share state; a step returns only after every agent has
// finished its tick.
type Population struct {
	mu        sync.RWMutex
	residents map[string]*resident
	workers   int
	inboxSize int
	relations RelationSource
	sink      BehaviorSink
	activity  *StateManager
	logger    *zap.Logger
}

// NewPopulation creates an empty population ticking at most workers agents
// concurrently.
func NewPopulation(workers int, logger *zap.Logger) *Population {
	if workers <= 0 {
		workers = 1
	}
	return &Population{
		residents: make(map[string]*resident),
		workers:   workers,
		inboxSize: DefaultInboxSize,
		activity:  NewStateManager(logger),
		logger:    logger,
	}
}

// SetRelations sets where relationship snapshots come from.
func (p *Population) SetRelations(src RelationSource) {
	p.mu.Lock()
	p.relations = src
	p.mu.Unlock()
}

// SetSink sets where produced behaviours are published.
func (p *Population) SetSink(sink BehaviorSink) {
	p.mu.Lock()
	p.sink = sink
	p.mu.Unlock()
}

// Activity returns the activity tracker fed by every tick.
func (p *Population) Activity() *StateManager { return p.activity }

// Add registers an agent controller.
func (p *Population) Add(ctrl *consciousness.Controller) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := ctrl.AgentID()
	if _, ok := p.residents[id]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateAgent, id)
	}
	p.residents[id] = &resident{
		ctrl:  ctrl,
		inbox: ring.New[attention.Stimulus](p.inboxSize),
	}
	p.activity.SetState(id, StateIdle)
	p.logger.Info("agent joined", zap.String("agent", id))
	return nil
}

// Get returns an agent's controller.
func (p *Population) Get(agentID string) (*consciousness.Controller, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	r, ok := p.residents[agentID]
	if !ok {
		return nil, false
	}
	return r.ctrl, true
}

// IDs returns the registered agent ids in sorted order.
func (p *Population) IDs() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ids := make([]string, 0, len(p.residents))
	for id := range p.residents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of agents.
func (p *Population) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.residents)
}

func (p *Population) resident(agentID string) (*resident, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	r, ok := p.residents[agentID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAgent, agentID)
	}
	return r, nil
}

// Perceive queues stimuli for the agent's next tick. When the inbox is
// full the oldest stimuli are dropped.
func (p *Population) Perceive(agentID string, stimuli ...attention.Stimulus) error {
	r, err := p.resident(agentID)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range stimuli {
		if _, dropped := r.inbox.Push(s); dropped {
			p.logger.Debug("inbox full, dropped stimulus", zap.String("agent", agentID))
		}
	}
	return nil
}

// SetState replaces the agent's situational state used from the next tick.
func (p *Population) SetState(agentID string, st emergence.State) error {
	r, err := p.resident(agentID)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.state = st
	r.mu.Unlock()
	return nil
}

// Last returns the agent's most recent tick result.
func (p *Population) Last(agentID string) (*consciousness.TickResult, bool) {
	r, err := p.resident(agentID)
	if err != nil {
		return nil, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last, r.last != nil
}

// OnTick implements ClockListener.
func (p *Population) OnTick(ctx context.Context, worldTime time.Time) {
	if _, err := p.Step(ctx, worldTime); err != nil {
		p.logger.Warn("population tick aborted", zap.Time("world_time", worldTime), zap.Error(err))
	}
}

// Step ticks every agent once, at most workers at a time, and waits for
// all of them. A failing agent is logged and counted; only cancellation
// aborts the step.
func (p *Population) Step(ctx context.Context, worldTime time.Time) (TickReport, error) {
	p.mu.RLock()
	ids := make([]string, 0, len(p.residents))
	for id := range p.residents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	residents := make([]*resident, len(ids))
	for i, id := range ids {
		residents[i] = p.residents[id]
	}
	relations, sink := p.relations, p.sink
	p.mu.RUnlock()

	report := TickReport{WorldTime: worldTime}
	results := make([]*consciousness.TickResult, len(residents))
	var failed atomic.Int32

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i, r := range residents {
		g.Go(func() error {
			res, err := p.tickResident(gctx, r, relations, sink)
			if err != nil {
				if gctx.Err() != nil {
					return err
				}
				failed.Add(1)
				p.logger.Warn("agent tick failed", zap.String("agent", r.ctrl.AgentID()), zap.Error(err))
				return nil
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}

	for _, res := range results {
		if res != nil {
			report.Results = append(report.Results, res)
		}
	}
	report.Failed = int(failed.Load())
	p.logger.Debug("population ticked",
		zap.Time("world_time", worldTime),
		zap.Int("agents", len(residents)),
		zap.Int("failed", report.Failed))
	return report, nil
}

func (p *Population) tickResident(ctx context.Context, r *resident, relations RelationSource, sink BehaviorSink) (*consciousness.TickResult, error) {
	id := r.ctrl.AgentID()

	r.mu.Lock()
	stimuli := r.inbox.Items()
	r.inbox.Clear()
	state := r.state
	r.mu.Unlock()

	in := consciousness.Perception{Stimuli: stimuli, State: state}
	if relations != nil {
		rels, err := relations.Load(ctx, id)
		if err != nil {
			p.logger.Warn("relationships unavailable", zap.String("agent", id), zap.Error(err))
		} else {
			in.Relationships = rels
		}
	}

	res, err := r.ctrl.Tick(ctx, in)
	if err != nil {
		r.requeue(stimuli)
		return nil, err
	}

	r.mu.Lock()
	r.last = res
	r.mu.Unlock()
	p.activity.Observe(res)

	if sink != nil && len(res.Behaviors) > 0 {
		if err := sink.PublishBehaviors(ctx, id, res.Behaviors); err != nil {
			p.logger.Warn("behaviours not published", zap.String("agent", id), zap.Error(err))
		}
	}
	return res, nil
}

// requeue puts undelivered stimuli back ahead of anything queued since.
func (r *resident) requeue(stimuli []attention.Stimulus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	newer := r.inbox.Items()
	r.inbox.Clear()
	for _, s := range stimuli {
		r.inbox.Push(s)
	}
	for _, s := range newer {
		r.inbox.Push(s)
	}
}

// Maintain runs every agent's slow memory sweep in parallel.
func (p *Population) Maintain(ctx context.Context) ([]consciousness.MaintenanceReport, error) {
	ids := p.IDs()
	reports := make([]consciousness.MaintenanceReport, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i, id := range ids {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			ctrl, ok := p.Get(id)
			if !ok {
				return nil
			}
			reports[i] = ctrl.Maintain()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}
