package prefetch

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Quality is a coarse network-quality signal. The zero value means the
// signal is absent.
type Quality string

const (
	QualityUnknown Quality = ""
	QualitySlow    Quality = "slow"
	QualityMedium  Quality = "medium"
	QualityFast    Quality = "fast"
)

// ParseQuality accepts quality names and connection effective types.
func ParseQuality(s string) (Quality, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "absent", "unknown", "none":
		return QualityUnknown, nil
	case "slow", "slow-2g", "2g":
		return QualitySlow, nil
	case "medium", "3g":
		return QualityMedium, nil
	case "fast", "4g", "5g", "wifi", "ethernet":
		return QualityFast, nil
	default:
		return QualityUnknown, fmt.Errorf("unknown network quality %q", s)
	}
}

// EffectiveConcurrency maps a quality signal onto a concurrency ceiling.
func EffectiveConcurrency(q Quality, ceiling int) int {
	ceiling = max(1, ceiling)
	switch q {
	case QualitySlow:
		return 1
	case QualityMedium:
		return max(1, ceiling/2)
	default:
		return ceiling
	}
}

// LatencyEstimator classifies quality from an exponentially weighted moving
// average of hydration latency.
type LatencyEstimator struct {
	mu         sync.Mutex
	alpha      float64
	minSamples int
	slowAbove  time.Duration
	medAbove   time.Duration
	ewma       float64
	samples    int
}

func NewLatencyEstimator() *LatencyEstimator {
	return &LatencyEstimator{
		alpha:      0.3,
		minSamples: 3,
		slowAbove:  3 * time.Second,
		medAbove:   1 * time.Second,
	}
}

// WithThresholds returns e with the slow and medium cut-offs replaced.
func (e *LatencyEstimator) WithThresholds(slowAbove, mediumAbove time.Duration) *LatencyEstimator {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.slowAbove = slowAbove
	e.medAbove = mediumAbove
	return e
}

// Observe records one latency sample and returns the current class.
func (e *LatencyEstimator) Observe(d time.Duration) Quality {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.samples == 0 {
		e.ewma = float64(d)
	} else {
		e.ewma = e.alpha*float64(d) + (1-e.alpha)*e.ewma
	}
	e.samples++
	return e.classifyLocked()
}

func (e *LatencyEstimator) Quality() Quality {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.classifyLocked()
}

func (e *LatencyEstimator) Average() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return time.Duration(e.ewma)
}

func (e *LatencyEstimator) classifyLocked() Quality {
	if e.samples < e.minSamples {
		return QualityUnknown
	}
	avg := time.Duration(e.ewma)
	switch {
	case avg > e.slowAbove:
		return QualitySlow
	case avg > e.medAbove:
		return QualityMedium
	default:
		return QualityFast
	}
}
