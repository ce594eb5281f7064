// Package schedule fires a compiled script on a cron cadence.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/lumahq/luma/internal/lua"
)

// ErrBailed reports a scheduler that stopped because its error budget ran out.
var ErrBailed = errors.New("bail threshold reached")

// standardParser accepts the five-field cron format, minute through day of
// week.
var standardParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Scheduler runs one script evaluation per cron fire.
type Scheduler struct {
	eval       *lua.Evaluation
	sched      cron.Schedule
	logger     *slog.Logger
	initialRun bool
	bail       int
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithInitialRun evaluates the script once as soon as Run starts, before the
// first cron fire.
func WithInitialRun(enabled bool) Option {
	return func(s *Scheduler) { s.initialRun = enabled }
}

// WithBail stops the loop after n total errors. Zero never stops; the count
// only grows, a success does not reset it.
func WithBail(n int) Option {
	return func(s *Scheduler) { s.bail = n }
}

// WithLogger sets the loop logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = logger }
}

// New parses expr and prepares the schedule loop for eval.
func New(expr string, eval *lua.Evaluation, opts ...Option) (*Scheduler, error) {
	sched, err := standardParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	s := &Scheduler{
		eval:   eval,
		sched:  sched,
		logger: nopLogger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Run fires the script on the cron cadence until ctx is canceled or the error
// budget is exhausted. It returns ctx.Err() on cancellation and ErrBailed
// when the budget ran out.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("script scheduled", "name", s.eval.Name(), "bail", s.bail)

	errorCount := 0
	runOnce := func() bool {
		if err := s.fire(ctx); err != nil && s.bail > 0 {
			errorCount++
			s.logger.Debug("error budget", "bail", s.bail, "errors", errorCount)
			if errorCount >= s.bail {
				s.logger.Error("bail threshold reached", "errors", errorCount)
				return false
			}
		}
		return true
	}

	if s.initialRun {
		if !runOnce() {
			return ErrBailed
		}
	}

	for {
		next := s.sched.Next(time.Now())
		s.logger.Debug("next run", "at", next)

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-timer.C:
		}

		if !runOnce() {
			return ErrBailed
		}
	}
}

// fire runs one evaluation and logs its outcome.
func (s *Scheduler) fire(ctx context.Context) error {
	outcome, err := s.eval.Evaluate(ctx)
	if err != nil {
		s.logger.Warn("scheduled run failed", "kind", lua.ErrorKind(err), "error", err)
		return err
	}
	s.logger.Info("scheduled run finished", "duration", outcome.Duration)
	return nil
}

var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }
