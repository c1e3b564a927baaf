package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Task is one run of a periodic job
type Task func(ctx context.Context) error

// Periodic runs a task once right away and then on a cron schedule.
// Runs never overlap: a run that overlaps the next tick delays it.
type Periodic struct {
	name     string
	schedule cron.Schedule
	task     Task
	now      func() time.Time
}

// NewPeriodic parses a standard five-field cron spec or a descriptor such
// as "@hourly" or "@every 10m".
func NewPeriodic(name, spec string, task Task) (*Periodic, error) {
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return &Periodic{
		name:     name,
		schedule: sched,
		task:     task,
		now:      time.Now,
	}, nil
}

// Next is the first activation after t
func (p *Periodic) Next(t time.Time) time.Time {
	return p.schedule.Next(t)
}

// Run blocks until ctx is done
func (p *Periodic) Run(ctx context.Context) error {
	slog.Info("periodic task started", "task", p.name)
	defer slog.Info("periodic task stopped", "task", p.name)

	p.runOnce(ctx)

	for {
		next := p.schedule.Next(p.now())
		timer := time.NewTimer(time.Until(next))
		slog.Debug("periodic task scheduled", "task", p.name, "next", next)

		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
			p.runOnce(ctx)
		}
	}
}

func (p *Periodic) runOnce(ctx context.Context) {
	start := time.Now()
	if err := p.task(ctx); err != nil {
		slog.Error("periodic task failed", "task", p.name, "error", err, "took", time.Since(start))
		return
	}
	slog.Debug("periodic task done", "task", p.name, "took", time.Since(start))
}
