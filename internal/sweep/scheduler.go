package sweep

import (
	"context"
	"sync"
	"time"

	"github.com/mainza-ai/graphmind/internal/lifecycle"
	"go.uber.org/zap"
)

// Runner executes one maintenance sweep. The lifecycle engine satisfies it.
type Runner interface {
	RunMaintenance(ctx context.Context, scope lifecycle.Scope, cons lifecycle.ConsciousnessContext) (*lifecycle.MaintenanceReport, error)
}

// Scheduler drives periodic sweeps. Every tick it checks whether the
// interaction threshold warrants a light sweep, and on the longer full
// interval it runs a full one. With a coordinator attached, sweeps only
// run while holding the shared lease; without one, the scheduler assumes
// it is the only replica.
type Scheduler struct {
	runner       Runner
	coord        *Coordinator
	tick         time.Duration
	fullInterval time.Duration
	logger       *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler builds a scheduler. coord may be nil.
func NewScheduler(runner Runner, coord *Coordinator, tick, fullInterval time.Duration, logger *zap.Logger) *Scheduler {
	if tick <= 0 {
		tick = time.Minute
	}
	if fullInterval <= 0 {
		fullInterval = 6 * time.Hour
	}
	return &Scheduler{
		runner:       runner,
		coord:        coord,
		tick:         tick,
		fullInterval: fullInterval,
		logger:       logger,
	}
}

// Start launches the sweep loop.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.tick)
		defer ticker.Stop()
		lastFull := time.Now()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if time.Since(lastFull) >= s.fullInterval {
					if s.run(ctx, lifecycle.ScopeFull) {
						lastFull = time.Now()
					}
					continue
				}
				if s.coord != nil && s.coord.Due(ctx) {
					s.run(ctx, lifecycle.ScopeLight)
				}
			}
		}
	}()
}

// run executes one sweep under the lease, if any. Returns whether the
// sweep actually ran.
func (s *Scheduler) run(ctx context.Context, scope lifecycle.Scope) bool {
	if s.coord != nil {
		if !s.coord.Acquire(ctx) {
			s.logger.Debug("sweep lease held elsewhere", zap.String("scope", string(scope)))
			return false
		}
		defer s.coord.MarkDone(ctx)
	}

	report, err := s.runner.RunMaintenance(ctx, scope, lifecycle.ConsciousnessContext{})
	if err != nil {
		s.logger.Error("scheduled sweep failed", zap.String("scope", string(scope)), zap.Error(err))
		return false
	}
	s.logger.Info("scheduled sweep finished",
		zap.String("scope", string(scope)),
		zap.Int("actions", report.TotalActions))
	return true
}

// Stop cancels the loop and waits for an in-flight sweep to finish.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}
