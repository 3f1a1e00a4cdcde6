package orchestrator

import (
	"context"
	"errors"
	"time"

	"server/internal/domain"
)

// ErrAborted reports that the abort hook stopped a poll loop early.
var ErrAborted = errors.New("poll aborted")

// PollConfig bounds a poll loop: a fixed sleep between attempts and a hard
// attempt ceiling. Interval x MaxAttempts is the wall-clock budget.
type PollConfig struct {
	Interval    time.Duration
	MaxAttempts int
}

// Poll sleeps Interval, consults the optional abort hook, then runs check,
// repeating up to MaxAttempts times. It returns nil as soon as check reports
// done, the check error as soon as one occurs, ErrAborted when the hook
// fires, the context error on cancellation and domain.ErrPollTimeout when the
// attempt ceiling is exhausted.
func Poll(ctx context.Context, cfg PollConfig, check func(context.Context) (bool, error), abort func(context.Context) bool) error {
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(cfg.Interval):
		}

		if abort != nil && abort(ctx) {
			return ErrAborted
		}

		done, err := check(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
	return domain.ErrPollTimeout
}
