// Package daemon drives repeated snapshot cycles on a fixed interval
// or a cron schedule.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/yairfalse/kinos/telemetry"
	"github.com/yairfalse/kinos/types"
)

// RunFunc executes one snapshot cycle and returns its report.
type RunFunc func(ctx context.Context) (*types.RunReport, error)

// Config holds daemon configuration
type Config struct {
	Interval time.Duration
	Schedule string // standard 5-field cron, wins over Interval when set
}

// Daemon manages the continuous snapshot loop
type Daemon struct {
	interval  time.Duration
	schedule  cron.Schedule
	run       RunFunc
	logger    *telemetry.Logger
	startTime time.Time
	runCount  atomic.Int64
	failCount atomic.Int64
}

// New creates a daemon around the given run function
func New(cfg Config, run RunFunc) (*Daemon, error) {
	if run == nil {
		return nil, errors.New("daemon requires a run function")
	}

	d := &Daemon{
		interval:  cfg.Interval,
		run:       run,
		logger:    telemetry.NewLogger("daemon"),
		startTime: time.Now(),
	}

	if cfg.Schedule != "" {
		schedule, err := cron.ParseStandard(cfg.Schedule)
		if err != nil {
			return nil, fmt.Errorf("invalid schedule %q: %w", cfg.Schedule, err)
		}
		d.schedule = schedule
		return d, nil
	}

	if cfg.Interval <= 0 {
		return nil, errors.New("interval must be positive when no schedule is set")
	}
	return d, nil
}

// Start runs cycles until ctx is cancelled
func (d *Daemon) Start(ctx context.Context) error {
	if d.schedule != nil {
		return d.runOnSchedule(ctx)
	}
	return d.runOnInterval(ctx)
}

// runOnInterval fires the first cycle immediately, then on every tick
func (d *Daemon) runOnInterval(ctx context.Context) error {
	d.cycle(ctx)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			d.cycle(ctx)
		}
	}
}

// runOnSchedule waits for the next cron match before each cycle
func (d *Daemon) runOnSchedule(ctx context.Context) error {
	for {
		next := d.schedule.Next(time.Now())
		timer := time.NewTimer(time.Until(next))

		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
			d.cycle(ctx)
		}
	}
}

func (d *Daemon) cycle(ctx context.Context) {
	d.runCount.Add(1)

	report, err := d.run(ctx)
	if err != nil {
		d.failCount.Add(1)
		d.logger.WithContext(ctx).Error().
			Err(err).
			Msg("snapshot cycle failed")
		return
	}

	if report != nil && report.Failed() {
		d.failCount.Add(1)
	}
}

// Health returns daemon health status
func (d *Daemon) Health() HealthStatus {
	return HealthStatus{
		Status:     "healthy",
		Uptime:     int64(time.Since(d.startTime).Seconds()),
		Runs:       d.runCount.Load(),
		FailedRuns: d.failCount.Load(),
	}
}

// HealthStatus represents daemon health
type HealthStatus struct {
	Status     string `json:"status"`
	Uptime     int64  `json:"uptime_seconds"`
	Runs       int64  `json:"runs"`
	FailedRuns int64  `json:"failed_runs"`
}

// RunCount returns total cycles started
func (d *Daemon) RunCount() int64 {
	return d.runCount.Load()
}
