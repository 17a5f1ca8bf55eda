// Package sweep runs the engine's periodic expired-asset sweep on a
// cron schedule, the same robfig/cron pattern the teacher's backup
// scheduler uses (see infrastructure/api/src/scheduler/cron.go
// upstream), but as an explicitly-constructed instance rather than a
// package-level singleton (spec §9 "avoid process-wide singletons").
package sweep

import (
	"fmt"
	"strings"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Sweeper is the subset of *engine.Engine this package depends on.
// Kept as an interface so this package never imports internal/engine.
type Sweeper interface {
	SweepExpired() int
}

// Scheduler runs Sweeper.SweepExpired on a cron schedule.
type Scheduler struct {
	mu      sync.Mutex
	runner  *cron.Cron
	sweeper Sweeper
	log     *logrus.Entry
}

// New constructs a Scheduler bound to sweeper. Call Start to begin
// running the schedule.
func New(sweeper Sweeper, log *logrus.Entry) *Scheduler {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Scheduler{sweeper: sweeper, log: log.WithField("component", "sweep")}
}

// Start validates schedule (a standard 5-field cron expression or an
// "@every"/"@hourly"-style descriptor) and begins running the sweep on
// it. Calling Start again replaces the running schedule.
func (s *Scheduler) Start(schedule string) error {
	schedule = strings.TrimSpace(schedule)
	if schedule == "" {
		return fmt.Errorf("sweep: schedule must not be empty")
	}
	if _, err := parser.Parse(schedule); err != nil {
		return fmt.Errorf("sweep: invalid schedule %q: %w", schedule, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.runner != nil {
		ctx := s.runner.Stop()
		<-ctx.Done()
	}

	s.runner = cron.New(cron.WithParser(parser))
	sweeper := s.sweeper
	log := s.log
	if _, err := s.runner.AddFunc(schedule, func() { runSweep(sweeper, log) }); err != nil {
		return fmt.Errorf("sweep: register job: %w", err)
	}
	s.runner.Start()

	s.log.WithField("schedule", schedule).Info("sweep scheduler started")
	return nil
}

// Stop halts the schedule and waits for any in-flight sweep to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	runner := s.runner
	s.mu.Unlock()
	if runner == nil {
		return
	}
	ctx := runner.Stop()
	<-ctx.Done()
}

func runSweep(sweeper Sweeper, log *logrus.Entry) {
	n := sweeper.SweepExpired()
	if n > 0 {
		log.WithField("expired_count", n).Info("swept expired assets")
	}
}
