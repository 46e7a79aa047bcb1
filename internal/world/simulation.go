// Package world drives a population of cognitive agents on a shared clock.
package world

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ClockListener receives world tick events. OnTick must return before the
// next tick is delivered.
type ClockListener interface {
	OnTick(ctx context.Context, worldTime time.Time)
}

// WorldClock drives the simulation with a configurable tick rate and time
// speed. World time only advances on ticks.
type WorldClock struct {
	speed     float64 // time multiplier, 1.0 = realtime
	interval  time.Duration
	listeners []ClockListener
	worldTime time.Time
	ticks     uint64
	mu        sync.RWMutex
	stepMu    sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
	logger    *zap.Logger
}

// NewWorldClock creates a clock with the given tick interval and speed
// multiplier, starting at start.
func NewWorldClock(interval time.Duration, speed float64, start time.Time, logger *zap.Logger) *WorldClock {
	if speed <= 0 {
		speed = 1
	}
	return &WorldClock{
		speed:     speed,
		interval:  interval,
		worldTime: start,
		logger:    logger,
	}
}

// AddListener registers a tick listener. Listeners run in registration
// order.
func (c *WorldClock) AddListener(l ClockListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, l)
}

// WorldTime returns the current simulated world time.
func (c *WorldClock) WorldTime() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.worldTime
}

// Ticks returns how many ticks have been delivered.
func (c *WorldClock) Ticks() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ticks
}

// Speed returns the time multiplier.
func (c *WorldClock) Speed() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.speed
}

// SetSpeed changes the time multiplier. Non-positive values are ignored.
func (c *WorldClock) SetSpeed(speed float64) {
	if speed <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.speed = speed
}

// Start begins the tick loop in a background goroutine. It stops when ctx
// is cancelled or Stop is called.
func (c *WorldClock) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.loop(ctx)
	c.logger.Info("world clock started",
		zap.Duration("interval", c.interval),
		zap.Float64("speed", c.Speed()))
}

// Stop halts the tick loop and waits for an in-flight tick to finish.
func (c *WorldClock) Stop() {
	if c.cancel == nil {
		return
	}
	c.cancel()
	<-c.done
	c.cancel = nil
	c.logger.Info("world clock stopped")
}

func (c *WorldClock) loop(ctx context.Context) {
	defer close(c.done)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Step(ctx)
		}
	}
}

// Step advances world time by one interval scaled by speed and delivers
// the tick to every listener. Steps never overlap.
func (c *WorldClock) Step(ctx context.Context) time.Time {
	c.stepMu.Lock()
	defer c.stepMu.Unlock()

	c.mu.Lock()
	c.worldTime = c.worldTime.Add(time.Duration(float64(c.interval) * c.speed))
	c.ticks++
	wt := c.worldTime
	listeners := make([]ClockListener, len(c.listeners))
	copy(listeners, c.listeners)
	c.mu.Unlock()

	for _, l := range listeners {
		if ctx.Err() != nil {
			break
		}
		l.OnTick(ctx, wt)
	}
	return wt
}

// Now returns world time; it can be handed to components as their clock.
func (c *WorldClock) Now() time.Time { return c.WorldTime() }
