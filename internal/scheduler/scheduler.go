// Package scheduler runs a job on a fixed interval, optionally aligned to
// wall-clock boundaries so a one-minute demand watch fires at :00 seconds
// like a cron entry would.
package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// TickFunc is invoked once per interval with the tick's aligned start time.
type TickFunc func(ctx context.Context, at time.Time) error

// Options tune scheduler behaviour.
type Options struct {
	Interval     time.Duration
	AlignToStart bool
	StartupDelay time.Duration
	// TickTimeout bounds one tick's execution; zero means no bound. A slow
	// remote call must not eat into the next interval.
	TickTimeout time.Duration
}

// Scheduler drives repeated execution of a polling job.
type Scheduler struct {
	opts   Options
	logger zerolog.Logger
}

// New constructs a Scheduler instance.
func New(opts Options, logger zerolog.Logger) *Scheduler {
	if opts.Interval <= 0 {
		panic("scheduler interval must be positive")
	}
	return &Scheduler{opts: opts, logger: logger.With().Str("component", "scheduler").Logger()}
}

// Run blocks, invoking tick at each interval until ctx is cancelled. A tick
// error is logged and the loop continues; only cancellation stops it.
func (s *Scheduler) Run(ctx context.Context, tick TickFunc) error {
	if s.opts.StartupDelay > 0 {
		timer := time.NewTimer(s.opts.StartupDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	next := s.nextTick(time.Now().UTC())
	for {
		delay := time.Until(next)
		if delay < 0 {
			// missed one or more ticks, realign rather than burst
			next = s.nextTick(time.Now().UTC())
			delay = time.Until(next)
		}

		timer := time.NewTimer(delay)
		s.logger.Debug().Time("next_tick", next).Msg("waiting for next tick")

		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			timer.Stop()
		}

		at := s.tickStart(next)
		s.logger.Debug().Time("tick", at).Msg("running scheduled tick")

		if err := s.runTick(ctx, tick, at); err != nil {
			s.logger.Error().Err(err).Time("tick", at).Msg("scheduled tick failed")
		}

		next = next.Add(s.opts.Interval)
	}
}

func (s *Scheduler) runTick(ctx context.Context, tick TickFunc, at time.Time) error {
	if s.opts.TickTimeout <= 0 {
		return tick(ctx, at)
	}
	tickCtx, cancel := context.WithTimeout(ctx, s.opts.TickTimeout)
	defer cancel()
	return tick(tickCtx, at)
}

func (s *Scheduler) nextTick(now time.Time) time.Time {
	if !s.opts.AlignToStart {
		return now.Add(s.opts.Interval)
	}
	aligned := now.Truncate(s.opts.Interval)
	if !aligned.After(now) {
		aligned = aligned.Add(s.opts.Interval)
	}
	return aligned
}

func (s *Scheduler) tickStart(t time.Time) time.Time {
	if !s.opts.AlignToStart {
		return t
	}
	return t.Truncate(s.opts.Interval)
}
