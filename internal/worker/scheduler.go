package worker

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// cronLogger routes cron's own messages into zap.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}

type Schedule struct {
	Sweep          string
	Purge          string
	IdempotencyTTL time.Duration
	// JobTimeout bounds a single run of either job.
	JobTimeout time.Duration
}

// Scheduler runs the sweep and purge on cron schedules. Runs of the same job
// never overlap.
type Scheduler struct {
	cron *cron.Cron
	log  *zap.Logger
}

func NewScheduler(ctx context.Context, sched Schedule, sweeper *Sweeper, g Game, log *zap.Logger) (*Scheduler, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("scheduler")
	if sched.JobTimeout <= 0 {
		sched.JobTimeout = 10 * time.Minute
	}
	cl := cronLogger{s: log.Sugar()}
	c := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	if _, err := c.AddFunc(sched.Sweep, func() {
		jobCtx, cancel := context.WithTimeout(ctx, sched.JobTimeout)
		defer cancel()
		if _, err := sweeper.Sweep(jobCtx); err != nil {
			log.Error("passive sweep failed", zap.Error(err))
		}
	}); err != nil {
		return nil, errors.Wrapf(err, "invalid sweep schedule %q", sched.Sweep)
	}
	if _, err := c.AddFunc(sched.Purge, func() {
		jobCtx, cancel := context.WithTimeout(ctx, sched.JobTimeout)
		defer cancel()
		if _, err := Purge(jobCtx, g, sched.IdempotencyTTL, log); err != nil {
			log.Error("idempotency purge failed", zap.Error(err))
		}
	}); err != nil {
		return nil, errors.Wrapf(err, "invalid purge schedule %q", sched.Purge)
	}
	return &Scheduler{cron: c, log: log}, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("scheduler started", zap.Int("jobs", len(s.cron.Entries())))
}

// Stop waits for running jobs to finish or for ctx to end.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		s.log.Warn("scheduler stop timed out")
	}
}
