// Package bus carries stimuli into agents and behaviours out of them over
// Redis Streams.
package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nidhogg/nuka-mind/internal/attention"
	"github.com/nidhogg/nuka-mind/internal/emergence"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	behaviorPrefix = "nuka:behaviors:"
	stimulusPrefix = "nuka:stimuli:"
	dataField      = "data"

	// DefaultMaxLen caps each stream, approximately.
	DefaultMaxLen = 1000
)

// BehaviorStream returns the stream an agent's behaviours are published on.
func BehaviorStream(agentID string) string { return behaviorPrefix + agentID }

// StimulusStream returns the stream an agent's stimuli are read from.
func StimulusStream(agentID string) string { return stimulusPrefix + agentID }

// Perceiver accepts stimuli for an agent.
type Perceiver interface {
	Perceive(agentID string, stimuli ...attention.Stimulus) error
}

// Bus is the Redis Streams transport.
type Bus struct {
	rdb    *redis.Client
	maxLen int64
	block  time.Duration
	logger *zap.Logger
}

// New connects to Redis at redisURL.
func New(ctx context.Context, redisURL string, logger *zap.Logger) (*Bus, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewWithClient(rdb, logger), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(rdb *redis.Client, logger *zap.Logger) *Bus {
	return &Bus{rdb: rdb, maxLen: DefaultMaxLen, block: 2 * time.Second, logger: logger}
}

// PublishBehaviors appends behaviours to the agent's behaviour stream, one
// entry each, in a single pipeline.
func (b *Bus) PublishBehaviors(ctx context.Context, agentID string, behaviors []emergence.Behavior) error {
	if len(behaviors) == 0 {
		return nil
	}
	stream := BehaviorStream(agentID)
	pipe := b.rdb.Pipeline()
	for i := range behaviors {
		data, err := json.Marshal(&behaviors[i])
		if err != nil {
			return fmt.Errorf("encode behaviour: %w", err)
		}
		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: stream,
			MaxLen: b.maxLen,
			Approx: true,
			Values: map[string]any{dataField: string(data)},
		})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish to %s: %w", stream, err)
	}
	b.logger.Debug("published behaviours",
		zap.String("agent", agentID),
		zap.Int("count", len(behaviors)))
	return nil
}

// PublishStimulus appends a stimulus to the agent's stimulus stream.
func (b *Bus) PublishStimulus(ctx context.Context, agentID string, s attention.Stimulus) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode stimulus: %w", err)
	}
	stream := StimulusStream(agentID)
	err = b.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: b.maxLen,
		Approx: true,
		Values: map[string]any{dataField: string(data)},
	}).Err()
	if err != nil {
		return fmt.Errorf("publish to %s: %w", stream, err)
	}
	return nil
}

// RecentBehaviors returns up to count of the agent's latest published
// behaviours, newest first.
func (b *Bus) RecentBehaviors(ctx context.Context, agentID string, count int64) ([]emergence.Behavior, error) {
	msgs, err := b.rdb.XRevRangeN(ctx, BehaviorStream(agentID), "+", "-", count).Result()
	if err != nil {
		return nil, fmt.Errorf("read behaviours: %w", err)
	}
	out := make([]emergence.Behavior, 0, len(msgs))
	for _, m := range msgs {
		var bh emergence.Behavior
		if decode(m, &bh) {
			out = append(out, bh)
		}
	}
	return out, nil
}

// Deliver reads every listed agent's stimulus stream and hands new entries
// to p until ctx is cancelled. Only entries added after Deliver starts are
// delivered.
func (b *Bus) Deliver(ctx context.Context, p Perceiver, agentIDs []string) error {
	if len(agentIDs) == 0 {
		<-ctx.Done()
		return nil
	}
	streams := make([]string, 0, 2*len(agentIDs))
	for _, id := range agentIDs {
		streams = append(streams, StimulusStream(id))
	}
	lastIDs := make([]string, len(agentIDs))
	for i := range lastIDs {
		lastIDs[i] = "$"
	}

	for {
		if ctx.Err() != nil {
			return nil
		}
		args := append(append([]string(nil), streams...), lastIDs...)
		results, err := b.rdb.XRead(ctx, &redis.XReadArgs{
			Streams: args,
			Count:   32,
			Block:   b.block,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			b.logger.Warn("stimulus read failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		for _, r := range results {
			agentID := strings.TrimPrefix(r.Stream, stimulusPrefix)
			idx := indexOf(streams, r.Stream)
			var batch []attention.Stimulus
			for _, m := range r.Messages {
				if idx >= 0 {
					lastIDs[idx] = m.ID
				}
				var s attention.Stimulus
				if decode(m, &s) {
					batch = append(batch, s)
				} else {
					b.logger.Warn("dropped malformed stimulus", zap.String("stream", r.Stream), zap.String("entry", m.ID))
				}
			}
			if len(batch) == 0 {
				continue
			}
			if err := p.Perceive(agentID, batch...); err != nil {
				b.logger.Warn("stimuli not delivered", zap.String("agent", agentID), zap.Error(err))
			}
		}
	}
}

// Close shuts down the Redis connection.
func (b *Bus) Close() error {
	return b.rdb.Close()
}

func decode(m redis.XMessage, v any) bool {
	data, ok := m.Values[dataField].(string)
	if !ok {
		return false
	}
	return json.Unmarshal([]byte(data), v) == nil
}

func indexOf(ss []string, s string) int {
	for i, v := range ss {
		if v == s {
			return i
		}
	}
	return -1
}
