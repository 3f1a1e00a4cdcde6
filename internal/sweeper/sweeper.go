// Package sweeper evicts expired entries from the in-memory job registry on
// a jittered interval, so a long-lived process does not accumulate records
// that no caller will ever query again.
package sweeper

import (
	"context"
	"time"

	"github.com/lthibault/jitterbug/v2"

	"server/internal/adapter/repo"
	"server/internal/infra"
)

// Sweeper periodically removes registry entries older than the retention age.
type Sweeper struct {
	registry  *repo.JobRegistry
	interval  time.Duration
	retention time.Duration
	logger    infra.Logger
	now       func() time.Time
}

// Options configures a Sweeper. Interval and Retention must be positive.
type Options struct {
	Registry  *repo.JobRegistry
	Interval  time.Duration
	Retention time.Duration
	Logger    infra.Logger
	Now       func() time.Time
}

func New(opts Options) *Sweeper {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Sweeper{
		registry:  opts.Registry,
		interval:  opts.Interval,
		retention: opts.Retention,
		logger:    opts.Logger,
		now:       now,
	}
}

// Run blocks until ctx is cancelled, sweeping once per interval. The tick is
// jittered so restarting replicas do not sweep in lockstep.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := jitterbug.New(s.interval, &jitterbug.Norm{Stdev: s.interval / 20})
	defer ticker.Stop()

	s.logger.Info().
		Dur("interval", s.interval).
		Dur("retention", s.retention).
		Msg("sweeper: started")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("sweeper: stopped")
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// Sweep runs a single eviction pass and reports how many entries it removed.
func (s *Sweeper) Sweep() int {
	cutoff := s.now().Add(-s.retention)
	removed := s.registry.SweepExpired(cutoff)
	if removed > 0 {
		s.logger.Info().Int("removed", removed).Int("remaining", s.registry.Len()).Msg("sweeper: evicted expired jobs")
	}
	return removed
}
