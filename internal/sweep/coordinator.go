// Package sweep coordinates background maintenance. Redis carries the
// shared state: an interaction counter that triggers threshold sweeps, a
// lease that keeps replicas from sweeping concurrently, and a stream of
// finished reports for downstream consumers.
package sweep

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mainza-ai/graphmind/internal/lifecycle"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	interactionKey = "graphmind:interactions"
	leaseKey       = "graphmind:sweep:lease"
	reportStream   = "graphmind:sweep:reports"
)

// Coordinator is the Redis-backed side of sweep scheduling. It implements
// lifecycle.SweepObserver; every method degrades to a logged warning when
// Redis misbehaves, mutation paths never fail because of it.
type Coordinator struct {
	rdb       *redis.Client
	threshold int64
	leaseTTL  time.Duration
	logger    *zap.Logger
}

// NewCoordinator connects to Redis and verifies the connection.
func NewCoordinator(redisURL string, threshold int, leaseTTL time.Duration, logger *zap.Logger) (*Coordinator, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	if threshold <= 0 {
		threshold = 50
	}
	if leaseTTL <= 0 {
		leaseTTL = 10 * time.Minute
	}
	return &Coordinator{rdb: rdb, threshold: int64(threshold), leaseTTL: leaseTTL, logger: logger}, nil
}

// NoteInteraction bumps the shared interaction counter.
func (c *Coordinator) NoteInteraction(ctx context.Context) {
	if err := c.rdb.Incr(ctx, interactionKey).Err(); err != nil {
		c.logger.Warn("interaction count failed", zap.Error(err))
	}
}

// Due reports whether enough interactions have accumulated since the
// last sweep to justify a light one.
func (c *Coordinator) Due(ctx context.Context) bool {
	n, err := c.rdb.Get(ctx, interactionKey).Int64()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("interaction count read failed", zap.Error(err))
		}
		return false
	}
	return n >= c.threshold
}

// Acquire takes the sweep lease. False means another replica holds it.
func (c *Coordinator) Acquire(ctx context.Context) bool {
	ok, err := c.rdb.SetNX(ctx, leaseKey, time.Now().Format(time.RFC3339), c.leaseTTL).Result()
	if err != nil {
		c.logger.Warn("sweep lease failed", zap.Error(err))
		return false
	}
	return ok
}

// MarkDone releases the lease and resets the interaction counter.
func (c *Coordinator) MarkDone(ctx context.Context) {
	if err := c.rdb.Del(ctx, leaseKey).Err(); err != nil {
		c.logger.Warn("lease release failed", zap.Error(err))
	}
	if err := c.rdb.Set(ctx, interactionKey, 0, 0).Err(); err != nil {
		c.logger.Warn("interaction count reset failed", zap.Error(err))
	}
}

// PublishReport appends a finished report to the report stream.
func (c *Coordinator) PublishReport(ctx context.Context, report *lifecycle.MaintenanceReport) {
	data, err := json.Marshal(report)
	if err != nil {
		c.logger.Warn("report marshal failed", zap.Error(err))
		return
	}
	err = c.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: reportStream,
		MaxLen: 1000,
		Approx: true,
		Values: map[string]interface{}{"data": string(data)},
	}).Err()
	if err != nil {
		c.logger.Warn("report publish failed", zap.Error(err))
		return
	}
	c.logger.Debug("sweep report published",
		zap.String("scope", string(report.MaintenanceType)),
		zap.Int("actions", report.TotalActions))
}

// Reports tails the report stream. Cancel the context to stop.
func (c *Coordinator) Reports(ctx context.Context) <-chan *lifecycle.MaintenanceReport {
	ch := make(chan *lifecycle.MaintenanceReport, 16)

	go func() {
		defer close(ch)
		lastID := "$"

		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			results, err := c.rdb.XRead(ctx, &redis.XReadArgs{
				Streams: []string{reportStream, lastID},
				Count:   10,
				Block:   time.Second * 2,
			}).Result()

			if err != nil {
				if err == context.Canceled || err == context.DeadlineExceeded {
					return
				}
				continue
			}

			for _, r := range results {
				for _, msg := range r.Messages {
					lastID = msg.ID
					data, ok := msg.Values["data"].(string)
					if !ok {
						continue
					}
					var report lifecycle.MaintenanceReport
					if json.Unmarshal([]byte(data), &report) == nil {
						ch <- &report
					}
				}
			}
		}
	}()

	return ch
}

// Close shuts down the Redis connection.
func (c *Coordinator) Close() error {
	return c.rdb.Close()
}
