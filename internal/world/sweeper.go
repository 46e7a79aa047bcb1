package world

import (
	"context"
	"sync"
	"time"

	"github.com/nidhogg/nuka-mind/internal/consciousness"
	"go.uber.org/zap"
)

// MaintainFunc runs the slow memory sweep for every agent.
type MaintainFunc func(ctx context.Context) ([]consciousness.MaintenanceReport, error)

// Sweeper is a ClockListener that runs agent memory maintenance every
// interval of world time, far less often than the cognition tick.
type Sweeper struct {
	interval time.Duration // how often (in world time) to sweep
	lastRun  time.Time
	sweepFn  MaintainFunc
	mu       sync.Mutex
	logger   *zap.Logger
}

// NewSweeper creates a maintenance listener.
func NewSweeper(interval time.Duration, sweepFn MaintainFunc, logger *zap.Logger) *Sweeper {
	return &Sweeper{
		interval: interval,
		sweepFn:  sweepFn,
		logger:   logger,
	}
}

// FireNow forces an immediate sweep, bypassing the interval check.
func (s *Sweeper) FireNow(ctx context.Context) ([]consciousness.MaintenanceReport, error) {
	return s.run(ctx)
}

// OnTick implements ClockListener. The first tick only arms the timer.
func (s *Sweeper) OnTick(ctx context.Context, worldTime time.Time) {
	s.mu.Lock()
	if s.lastRun.IsZero() {
		s.lastRun = worldTime
		s.mu.Unlock()
		return
	}
	if worldTime.Sub(s.lastRun) < s.interval {
		s.mu.Unlock()
		return
	}
	s.lastRun = worldTime
	s.mu.Unlock()

	if _, err := s.run(ctx); err != nil {
		s.logger.Warn("memory sweep failed", zap.Time("world_time", worldTime), zap.Error(err))
	}
}

func (s *Sweeper) run(ctx context.Context) ([]consciousness.MaintenanceReport, error) {
	reports, err := s.sweepFn(ctx)
	if err != nil {
		return nil, err
	}
	var evicted, compressed int
	for _, r := range reports {
		evicted += r.Forgetting.Evicted
		compressed += r.Compression.Replaced
	}
	s.logger.Info("memory sweep",
		zap.Int("agents", len(reports)),
		zap.Int("evicted", evicted),
		zap.Int("compressed", compressed))
	return reports, nil
}
