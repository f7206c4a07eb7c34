package prefetch

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"griddojo/internal/catalog"
)

// warmUp hydrates the first target entries of pool in waves sized by the
// effective concurrency, pausing waveDelay between waves. Failed entries
// count as attempted. It exits quietly when ctx is cancelled by a scope
// change or Close.
func (m *Manager) warmUp(ctx context.Context, gen uint64, pool []catalog.Challenge, target int) {
	defer m.wg.Done()

	started := time.Now()
	waves := 0
	for next := 0; next < target; {
		wave := m.EffectiveConcurrency()
		end := min(next+wave, target)

		g, gctx := errgroup.WithContext(ctx)
		m.mu.Lock()
		for _, d := range pool[next:end] {
			done, _ := m.ensureLocked(d, nil, gen)
			g.Go(func() error {
				select {
				case <-done:
					return nil
				case <-gctx.Done():
					return gctx.Err()
				}
			})
		}
		m.mu.Unlock()
		m.notify()

		if err := g.Wait(); err != nil {
			return
		}
		waves++
		next = end
		if next >= target {
			break
		}
		if !sleepCtx(ctx, m.waveDelay) {
			return
		}
	}

	m.mu.Lock()
	if gen != m.gen || m.closed {
		m.mu.Unlock()
		return
	}
	m.warm.complete = true
	close(m.warm.done)
	stats := map[string]any{
		"scope":      string(m.scope),
		"target":     target,
		"cached":     len(m.cache),
		"failed":     m.failed,
		"waves":      waves,
		"elapsed_ms": time.Since(started).Milliseconds(),
	}
	m.lookAheadLocked()
	m.mu.Unlock()

	m.logger.Info("prefetch.warmup_complete", stats)
	m.notify()
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
