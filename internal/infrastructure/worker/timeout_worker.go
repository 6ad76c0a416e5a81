package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// TimeoutSweeper handles expired step instances
type TimeoutSweeper interface {
	SweepTimeouts(ctx context.Context, limit int) (int, error)
}

// TimeoutWorkerConfig holds configuration for the timeout worker
type TimeoutWorkerConfig struct {
	PollInterval time.Duration
	BatchSize    int
	SweepTimeout time.Duration
}

// DefaultTimeoutWorkerConfig returns default configuration
func DefaultTimeoutWorkerConfig() TimeoutWorkerConfig {
	return TimeoutWorkerConfig{
		PollInterval: time.Minute,
		BatchSize:    100,
		SweepTimeout: 30 * time.Second,
	}
}

// TimeoutWorkerStats reports what the worker has done since it started
type TimeoutWorkerStats struct {
	Sweeps    int       `json:"sweeps"`
	Handled   int       `json:"handled"`
	Failures  int       `json:"failures"`
	LastSweep time.Time `json:"last_sweep"`
	LastError string    `json:"last_error,omitempty"`
}

// TimeoutWorker periodically applies the timeout action to expired step instances
type TimeoutWorker struct {
	config  TimeoutWorkerConfig
	sweeper TimeoutSweeper
	logger  *zap.Logger

	mu        sync.RWMutex
	cancel    context.CancelFunc
	done      chan struct{}
	isRunning bool
	stats     TimeoutWorkerStats
}

// NewTimeoutWorker creates a new timeout worker
func NewTimeoutWorker(config TimeoutWorkerConfig, sweeper TimeoutSweeper, logger *zap.Logger) *TimeoutWorker {
	defaults := DefaultTimeoutWorkerConfig()
	if config.PollInterval <= 0 {
		config.PollInterval = defaults.PollInterval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.SweepTimeout <= 0 {
		config.SweepTimeout = defaults.SweepTimeout
	}

	return &TimeoutWorker{
		config:  config,
		sweeper: sweeper,
		logger:  logger,
	}
}

// Start begins the sweep loop
func (w *TimeoutWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.isRunning {
		return fmt.Errorf("timeout worker already running")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	w.isRunning = true

	w.logger.Info("TimeoutWorker started",
		zap.Duration("poll_interval", w.config.PollInterval),
		zap.Int("batch_size", w.config.BatchSize))

	go w.pollLoop(loopCtx, w.done)
	return nil
}

// Stop terminates the sweep loop and waits for a running sweep to finish
func (w *TimeoutWorker) Stop() error {
	w.mu.Lock()
	if !w.isRunning {
		w.mu.Unlock()
		return nil
	}
	w.isRunning = false
	cancel, done := w.cancel, w.done
	w.mu.Unlock()

	cancel()
	<-done

	stats := w.Stats()
	w.logger.Info("TimeoutWorker stopped",
		zap.Int("sweeps", stats.Sweeps),
		zap.Int("handled", stats.Handled),
		zap.Int("failures", stats.Failures))
	return nil
}

// Name returns the worker name for identification
func (w *TimeoutWorker) Name() string {
	return "TimeoutWorker"
}

// Stats returns a snapshot of the worker counters
func (w *TimeoutWorker) Stats() TimeoutWorkerStats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.stats
}

func (w *TimeoutWorker) pollLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("Timeout sweep loop context cancelled")
			return
		case <-ticker.C:
			w.SweepOnce(ctx)
		}
	}
}

// SweepOnce runs one bounded sweep and records its outcome
func (w *TimeoutWorker) SweepOnce(ctx context.Context) int {
	sweepCtx, cancel := context.WithTimeout(ctx, w.config.SweepTimeout)
	defer cancel()

	handled, err := w.sweeper.SweepTimeouts(sweepCtx, w.config.BatchSize)

	w.mu.Lock()
	w.stats.Sweeps++
	w.stats.Handled += handled
	w.stats.LastSweep = time.Now()
	if err != nil {
		w.stats.Failures++
		w.stats.LastError = err.Error()
	}
	w.mu.Unlock()

	if err != nil {
		w.logger.Error("Timeout sweep failed", zap.Int("handled", handled), zap.Error(err))
	} else if handled > 0 {
		w.logger.Info("Timeout sweep completed", zap.Int("handled", handled))
	}
	return handled
}
