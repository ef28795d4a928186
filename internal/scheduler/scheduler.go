// Package scheduler fires the pipeline stages on fixed intervals.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Job is one recurring unit of work.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler runs every job at its own interval, independently of the others.
// A job never overlaps with itself; a run that is still going when the next
// tick fires is skipped. Errors and panics are logged and never stop the
// scheduler.
type Scheduler struct {
	jobs  []Job
	eager bool
}

// New creates a scheduler for jobs. Jobs with a non-positive interval or no
// Run func are dropped with a warning.
func New(jobs []Job) *Scheduler {
	s := &Scheduler{eager: true}
	for _, j := range jobs {
		if j.Interval <= 0 || j.Run == nil {
			zap.L().Warn("scheduler: job disabled", zap.String("job", j.Name), zap.Duration("interval", j.Interval))
			continue
		}
		s.jobs = append(s.jobs, j)
	}
	return s
}

// Jobs returns the enabled jobs.
func (s *Scheduler) Jobs() []Job {
	return s.jobs
}

// Run starts all jobs, runs each once immediately, and blocks until ctx is
// cancelled and every in-flight run has returned.
func (s *Scheduler) Run(ctx context.Context) {
	log := zap.L().With(zap.String("component", "scheduler"))
	cl := cronLogger{log: log}
	chain := cron.NewChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))

	c := cron.New(cron.WithLogger(cl))
	var eager sync.WaitGroup
	for _, j := range s.jobs {
		wrapped := chain.Then(s.job(ctx, log, j))
		c.Schedule(cron.Every(j.Interval), wrapped)
		log.Info("scheduler: job registered", zap.String("job", j.Name), zap.Duration("interval", j.Interval))

		if s.eager {
			eager.Add(1)
			go func() {
				defer eager.Done()
				wrapped.Run()
			}()
		}
	}

	c.Start()
	<-ctx.Done()
	log.Info("scheduler: stopping")
	<-c.Stop().Done()
	eager.Wait()
	log.Info("scheduler: stopped")
}

func (s *Scheduler) job(ctx context.Context, log *zap.Logger, j Job) cron.Job {
	return cron.FuncJob(func() {
		if ctx.Err() != nil {
			return
		}
		start := time.Now()
		if err := j.Run(ctx); err != nil {
			log.Error("scheduler: job failed",
				zap.String("job", j.Name),
				zap.Duration("elapsed", time.Since(start)),
				zap.Error(err),
			)
			return
		}
		log.Debug("scheduler: job finished", zap.String("job", j.Name), zap.Duration("elapsed", time.Since(start)))
	})
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	log *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Sugar().Debugw("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Sugar().Errorw("cron: "+msg, append(keysAndValues, "error", err)...)
}
