// Package jobs runs periodic background work on a cron schedule.
package jobs

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/robfig/cron/v3"
)

// Scheduler is a cron-like job scheduler.
type Scheduler struct {
	*cron.Cron
	logger *log.Logger
}

// cronLogger is a wrapper around the logger to make it compatible with the
// cron logger.
type cronLogger struct {
	logger *log.Logger
}

// Info logs routine messages about cron's operation.
func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

// Error logs an error condition.
func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append(keysAndValues, "err", err)...)
}

// NewScheduler returns a new Scheduler logging through logger.
func NewScheduler(logger *log.Logger) *Scheduler {
	logger = logger.WithPrefix("cron")
	return &Scheduler{
		Cron:   cron.New(cron.WithLogger(cronLogger{logger})),
		logger: logger,
	}
}

// Runner is a job runner.
type Runner interface {
	Spec() string
	Func(context.Context) func()
}

// Register adds runner under name. A runner with an empty spec is disabled
// and returns id -1.
func (s *Scheduler) Register(ctx context.Context, name string, runner Runner) (int, error) {
	spec := runner.Spec()
	if spec == "" {
		s.logger.Debug("job disabled", "name", name)
		return -1, nil
	}
	id, err := s.AddFunc(spec, runner.Func(ctx))
	if err != nil {
		return -1, err
	}
	s.logger.Info("job registered", "name", name, "spec", spec)
	return id, nil
}

// Shutdown stops the Scheduler and waits up to 30 seconds for running jobs.
func (s *Scheduler) Shutdown() {
	ctx, cancel := context.WithTimeout(s.Cron.Stop(), 30*time.Second)
	defer func() { cancel() }()
	<-ctx.Done()
}

// Start starts the Scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
}

// AddFunc adds a job to the Scheduler.
func (s *Scheduler) AddFunc(spec string, fn func()) (int, error) {
	id, err := s.Cron.AddFunc(spec, fn)
	return int(id), err
}

// Remove removes a job from the Scheduler.
func (s *Scheduler) Remove(id int) {
	s.Cron.Remove(cron.EntryID(id))
}
