package prefetch

import (
	"time"

	"griddojo/internal/telemetry"
)

const (
	DefaultConcurrency    = 3
	DefaultInitialBatch   = 6
	DefaultWaveDelay      = 200 * time.Millisecond
	DefaultRequestTimeout = 30 * time.Second
	DefaultLookAheadPad   = 2
)

type Option func(*Manager)

// WithConcurrency sets the ceiling used when the network is fast or the
// quality signal is absent.
func WithConcurrency(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.ceiling = n
		}
	}
}

// WithInitialBatch sets how many challenges warm-up hydrates per scope.
func WithInitialBatch(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.initialBatch = n
		}
	}
}

func WithWaveDelay(d time.Duration) Option {
	return func(m *Manager) {
		if d >= 0 {
			m.waveDelay = d
		}
	}
}

// WithRequestTimeout bounds hydrations that carry no caller context.
func WithRequestTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.requestTimeout = d
		}
	}
}

// WithLookAheadPad sets the distance past the concurrency window that
// look-ahead hydrates.
func WithLookAheadPad(n int) Option {
	return func(m *Manager) {
		if n >= 0 {
			m.lookAheadPad = n
		}
	}
}

func WithLogger(l telemetry.Logger) Option {
	return func(m *Manager) { m.logger = telemetry.OrDiscard(l) }
}

func WithQuality(q Quality) Option {
	return func(m *Manager) { m.quality = q }
}

// WithAutoQuality reclassifies network quality from observed latency.
func WithAutoQuality(e *LatencyEstimator) Option {
	return func(m *Manager) { m.estimator = e }
}
