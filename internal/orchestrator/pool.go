package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"server/internal/infra"
)

// Pool is the explicit handoff point for detached background work. Each unit
// runs on its own goroutine under the pool's lifecycle context, bounded by a
// semaphore, with a recover boundary so a single job can never take down the
// host process. Errors are logged, never propagated to the submitter.
//
// Admission and execution have separate lifecycles: Shutdown stops units that
// have not started yet, while already-running units keep a live context
// through the drain window and are cancelled only when that window expires.
type Pool struct {
	logger infra.Logger
	sem    chan struct{}
	wg     sync.WaitGroup

	runCtx      context.Context
	runCancel   context.CancelFunc
	admitCtx    context.Context
	admitCancel context.CancelFunc
}

// NewPool creates a pool running units under a context detached from any
// request lifecycle.
func NewPool(ctx context.Context, size int, logger infra.Logger) *Pool {
	if size <= 0 {
		size = 1
	}
	runCtx, runCancel := context.WithCancel(ctx)
	admitCtx, admitCancel := context.WithCancel(runCtx)
	return &Pool{
		logger:      logger,
		sem:         make(chan struct{}, size),
		runCtx:      runCtx,
		runCancel:   runCancel,
		admitCtx:    admitCtx,
		admitCancel: admitCancel,
	}
}

// Go hands off one unit of work. It returns immediately; the unit starts as
// soon as a slot is free.
func (p *Pool) Go(name string, fn func(ctx context.Context) error) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		select {
		case p.sem <- struct{}{}:
		case <-p.admitCtx.Done():
			p.logger.Warn().Str("task", name).Msg("pool: shutdown before task start")
			return
		}
		defer func() { <-p.sem }()

		defer func() {
			if r := recover(); r != nil {
				p.logger.Error().Str("task", name).Interface("panic", r).Msg("pool: task panicked")
			}
		}()

		start := time.Now()
		if err := fn(p.runCtx); err != nil {
			p.logger.Error().Err(err).Str("task", name).Dur("elapsed", time.Since(start)).Msg("pool: task failed")
			return
		}
		p.logger.Debug().Str("task", name).Dur("elapsed", time.Since(start)).Msg("pool: task done")
	}()
}

// Shutdown stops admitting work and waits for in-flight units, bounded by
// ctx. In-flight units run undisturbed during the wait; their context is
// cancelled only once ctx expires.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.admitCancel()
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		p.runCancel()
		return nil
	case <-ctx.Done():
		p.runCancel()
		return fmt.Errorf("pool: shutdown: %w", ctx.Err())
	}
}
