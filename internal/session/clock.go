package session

import (
	"context"
	"time"
)

// RunClock ticks the engine every interval until ctx is done. The engine
// ignores ticks while idle, so the clock can run for the program lifetime.
func (e *Engine) RunClock(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			e.Tick()
		}
	}
}
