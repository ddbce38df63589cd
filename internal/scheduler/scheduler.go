// Package scheduler triggers the metering sweep on a cron schedule.
package scheduler

import (
	"context" // Request scoped contexts
	"fmt"     // Error wrapping
	"sync"    // Overlap guard
	"time"    // Durations and timeouts

	"server_rental/internal/metrics" // Prometheus collectors
	"server_rental/internal/service" // Rental core

	"github.com/robfig/cron/v3"  // Cron scheduler
	"github.com/sirupsen/logrus" // Structured logging
)

// LockKey is the Redis key shared by every instance running sweeps
const LockKey = "metering:lock"

// Sweeper runs one metering pass
type Sweeper interface {
	Sweep(ctx context.Context) (*service.SweepReport, error)
}

// Runner executes sweeps one at a time, in process and across instances
type Runner struct {
	sweeper Sweeper       // Metering pass
	locker  Locker        // Cross-instance lock, nil for a single instance
	timeout time.Duration // Upper bound of one sweep, zero for none
	mu      sync.Mutex    // Held while a sweep runs in this process
}

// NewRunner creates a Runner. locker may be nil for a single instance.
func NewRunner(sweeper Sweeper, locker Locker, timeout time.Duration) *Runner {
	return &Runner{sweeper: sweeper, locker: locker, timeout: timeout}
}

// RunOnce runs a sweep unless another one holds the lock, in which case it
// returns (nil, nil).
func (r *Runner) RunOnce(ctx context.Context) (*service.SweepReport, error) {
	if !r.mu.TryLock() {
		metrics.SweepsTotal.WithLabelValues("skipped").Inc()
		logrus.Info("Metering sweep already running, skipped")
		return nil, nil
	}
	defer r.mu.Unlock()

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	if r.locker != nil {
		ok, err := r.locker.Acquire(ctx) // SET NX with expiry
		if err != nil {
			return nil, fmt.Errorf("acquire sweep lock: %w", err)
		}
		if !ok {
			metrics.SweepsTotal.WithLabelValues("skipped").Inc()
			logrus.Info("Metering sweep held by another instance, skipped")
			return nil, nil
		}
		defer func() {
			// Release with a fresh context so a timed out sweep still frees the lock
			if err := r.locker.Release(context.Background()); err != nil {
				logrus.WithField("error", err.Error()).Warn("Failed to release sweep lock")
			}
		}()
	}

	return r.sweeper.Sweep(ctx)
}

// Scheduler runs the sweep on a cron spec
type Scheduler struct {
	cron   *cron.Cron // Cron engine
	runner *Runner    // Sweep executor
}

// New schedules runner on spec, e.g. "@every 1m" or "0 * * * *".
func New(spec string, runner *Runner) (*Scheduler, error) {
	logger := cron.PrintfLogger(logrus.StandardLogger())                                 // Route cron logs through logrus
	c := cron.New(cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger))) // Survive panics, never overlap
	s := &Scheduler{cron: c, runner: runner}
	if _, err := c.AddFunc(spec, s.tick); err != nil {
		return nil, fmt.Errorf("schedule sweep %q: %w", spec, err)
	}
	return s, nil
}

func (s *Scheduler) tick() {
	report, err := s.runner.RunOnce(context.Background()) // Bounded by the runner timeout
	if err != nil {
		logrus.WithField("error", err.Error()).Error("Scheduled metering sweep failed")
		return
	}
	if report != nil && len(report.Evicted) > 0 {
		logrus.WithField("evicted", len(report.Evicted)).Info("Scheduled sweep evicted users")
	}
}

// Start begins running scheduled sweeps in the background
func (s *Scheduler) Start() {
	s.cron.Start()
	logrus.Info("Metering scheduler started")
}

// Stop halts scheduling and waits for a running sweep until ctx is done
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop() // Done once running jobs finish
	select {
	case <-done.Done():
	case <-ctx.Done():
		logrus.Warn("Metering scheduler stop timed out")
	}
}
