package staging

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/melih/lighthouse-autobuild/internal/logfields"
)

// Janitor periodically sweeps orphaned staging directories.
type Janitor struct {
	scheduler gocron.Scheduler
	area      *Area
	maxAge    time.Duration
	logger    *slog.Logger
}

// NewJanitor schedules Sweep every interval.
func NewJanitor(area *Area, interval, maxAge time.Duration) (*Janitor, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}
	j := &Janitor{scheduler: s, area: area, maxAge: maxAge, logger: area.logger}
	if _, err := s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(j.sweep),
		gocron.WithName("staging-sweep"),
	); err != nil {
		_ = s.Shutdown()
		return nil, fmt.Errorf("failed to create sweep job: %w", err)
	}
	return j, nil
}

// Start begins the schedule.
func (j *Janitor) Start() {
	j.logger.Info("staging janitor started", logfields.Path(j.area.Root()))
	j.scheduler.Start()
}

// Stop shuts the scheduler down.
func (j *Janitor) Stop() error {
	return j.scheduler.Shutdown()
}

func (j *Janitor) sweep() {
	n, err := j.area.Sweep(j.maxAge)
	if err != nil {
		j.logger.Error("staging sweep failed", logfields.Error(err))
		return
	}
	if n > 0 {
		j.logger.Info("swept orphaned staging directories", slog.Int("removed", n))
	}
}
