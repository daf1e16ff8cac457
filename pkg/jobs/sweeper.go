package jobs

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// SweepFunc runs one sweep pass at the given instant.
type SweepFunc func(ctx context.Context, now time.Time) error

// SweeperConfig configures the periodic runner.
type SweeperConfig struct {
	Interval time.Duration
	Logger   *zap.Logger
}

// Sweeper drives a SweepFunc on a fixed interval, independent of request
// traffic. The sweep itself must tolerate running concurrently with in-flight
// request handlers; the runner gives no exclusion guarantees.
type Sweeper struct {
	name     string
	fn       SweepFunc
	interval time.Duration
	logger   *zap.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool
}

// NewSweeper builds a runner for the provided sweep function.
func NewSweeper(name string, fn SweepFunc, cfg SweeperConfig) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Sweeper{
		name:     name,
		fn:       fn,
		interval: cfg.Interval,
		logger:   cfg.Logger,
	}
}

// Start launches the ticker loop. Safe to call once.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.run()
	s.started = true
	s.logger.Sugar().Infow("sweeper started", "sweeper", s.name, "interval", s.interval)
}

// Stop cancels the loop and waits for the in-flight sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.cancel()
	s.mu.Unlock()
	s.wg.Wait()
	s.logger.Sugar().Infow("sweeper stopped", "sweeper", s.name)
}

func (s *Sweeper) run() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case now := <-ticker.C:
			if err := s.fn(s.ctx, now.UTC()); err != nil {
				s.logger.Sugar().Errorw("sweep failed", "sweeper", s.name, "error", err)
			}
		}
	}
}
