package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"
)

// Job is the work fired at each scheduled time.
type Job interface {
	Run(ctx context.Context) error
}

// JobFunc is a function adapter for Job.
type JobFunc func(ctx context.Context) error

func (f JobFunc) Run(ctx context.Context) error {
	return f(ctx)
}

// Clock is a time of day.
type Clock struct {
	Hour   int
	Minute int
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// ParseClock parses "HH:MM".
func ParseClock(s string) (Clock, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return Clock{}, fmt.Errorf("parse schedule time %q: %w", s, err)
	}
	return Clock{Hour: t.Hour(), Minute: t.Minute()}, nil
}

// ParseClocks parses a list of "HH:MM" values, sorted and deduplicated.
func ParseClocks(values []string) ([]Clock, error) {
	out := make([]Clock, 0, len(values))
	for _, v := range values {
		c, err := ParseClock(v)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b Clock) int {
		return (a.Hour*60 + a.Minute) - (b.Hour*60 + b.Minute)
	})
	return slices.Compact(out), nil
}

// Next returns the first scheduled instant strictly after now, in loc.
func Next(now time.Time, times []Clock, loc *time.Location) time.Time {
	local := now.In(loc)
	for day := 0; day < 2; day++ {
		y, m, d := local.AddDate(0, 0, day).Date()
		for _, c := range times {
			at := time.Date(y, m, d, c.Hour, c.Minute, 0, 0, loc)
			if at.After(local) {
				return at
			}
		}
	}
	return time.Time{}
}

// Config holds scheduler configuration.
type Config struct {
	Times      []Clock
	Location   *time.Location
	RunOnStart bool // fire once immediately on Start
}

// Scheduler fires a Job at the configured times each day.
type Scheduler struct {
	cfg    Config
	job    Job
	logger *slog.Logger

	now   func() time.Time
	after func(time.Duration) (<-chan time.Time, func() bool)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Scheduler.
func New(cfg Config, job Job, logger *slog.Logger) (*Scheduler, error) {
	if len(cfg.Times) == 0 {
		return nil, fmt.Errorf("scheduler needs at least one time")
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cfg:    cfg,
		job:    job,
		logger: logger,
		now:    time.Now,
		after: func(d time.Duration) (<-chan time.Time, func() bool) {
			t := time.NewTimer(d)
			return t.C, t.Stop
		},
	}, nil
}

// Start begins the scheduling loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go s.run()

	s.logger.Info("scheduler started",
		"times", s.cfg.Times,
		"timezone", s.cfg.Location.String(),
		"next", Next(s.now(), s.cfg.Times, s.cfg.Location).Format(time.RFC3339),
	)
	return nil
}

// Stop cancels the loop and any running job, then waits for it to exit.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) run() {
	defer s.wg.Done()

	if s.cfg.RunOnStart {
		s.fire()
	}

	for {
		next := Next(s.now(), s.cfg.Times, s.cfg.Location)
		c, stop := s.after(next.Sub(s.now()))

		select {
		case <-s.ctx.Done():
			stop()
			return
		case <-c:
			s.fire()
		}
	}
}

func (s *Scheduler) fire() {
	start := time.Now()
	if err := s.job.Run(s.ctx); err != nil {
		s.logger.Error("scheduled run failed", "error", err, "duration", time.Since(start))
		return
	}
	s.logger.Info("scheduled run complete", "duration", time.Since(start))
}
