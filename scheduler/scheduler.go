// Package scheduler runs a trading step on a fixed cadence while the market
// is open.
package scheduler

import (
	"context"
	"time"

	"github.com/rustyeddy/equitytrader/internal/clock"
	"github.com/rustyeddy/equitytrader/internal/logging"
	"go.uber.org/zap"
)

// ClosedPoll caps how long the loop sleeps between clock checks while the
// market is closed.
const ClosedPoll = 30 * time.Second

type Loop struct {
	IsOpen  func(ctx context.Context) (bool, error)
	Step    func(ctx context.Context) error
	Cadence time.Duration

	// MaxDuration stops the loop once exceeded. Zero runs until ctx ends.
	MaxDuration time.Duration

	Sleep func(ctx context.Context, d time.Duration) error
	Now   func() time.Time
	Log   *zap.Logger
}

// Run blocks until MaxDuration has elapsed or ctx is done. Step and clock
// errors are logged and do not end the loop; a clock error counts as closed.
func (l *Loop) Run(ctx context.Context) error {
	log := logging.OrNop(l.Log)
	now := l.Now
	if now == nil {
		now = time.Now
	}
	sleep := l.Sleep
	if sleep == nil {
		sleep = clock.Sleep
	}

	start := now()
	expired := func() bool {
		return l.MaxDuration > 0 && now().Sub(start) > l.MaxDuration
	}

	steps := 0
	for {
		open, err := l.IsOpen(ctx)
		if err != nil {
			log.Warn("market clock failed", zap.Error(err))
			open = false
		}

		if !open {
			if err := sleep(ctx, min(ClosedPoll, l.Cadence)); err != nil {
				return err
			}
			if expired() {
				log.Info("loop finished", zap.Int("steps", steps))
				return nil
			}
			continue
		}

		steps++
		if err := l.Step(ctx); err != nil {
			log.Error("step failed", zap.Int("step", steps), zap.Error(err))
		}
		if expired() {
			log.Info("loop finished", zap.Int("steps", steps))
			return nil
		}
		if err := sleep(ctx, l.Cadence); err != nil {
			return err
		}
	}
}

// RunMarketHours runs step every cadence while isOpen reports true, for at
// most maxDuration (zero means until ctx ends).
func RunMarketHours(
	ctx context.Context,
	isOpen func(ctx context.Context) (bool, error),
	step func(ctx context.Context) error,
	cadence time.Duration,
	maxDuration time.Duration,
	log *zap.Logger,
) error {
	l := &Loop{IsOpen: isOpen, Step: step, Cadence: cadence, MaxDuration: maxDuration, Log: log}
	return l.Run(ctx)
}
