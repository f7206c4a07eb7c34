package session

import (
	"context"
	"sync"
	"time"

	"griddojo/internal/telemetry"
)

const (
	defaultReportBuffer  = 64
	defaultReportTimeout = 5 * time.Second
)

// reportPump delivers reports in order on a background goroutine. enqueue
// never blocks; a full buffer drops the report.
type reportPump struct {
	reporter Reporter
	logger   telemetry.Logger
	timeout  time.Duration

	mu     sync.Mutex
	ch     chan Report
	closed bool
	done   chan struct{}
}

func newReportPump(r Reporter, buffer int, logger telemetry.Logger) *reportPump {
	if buffer <= 0 {
		buffer = defaultReportBuffer
	}
	p := &reportPump{
		reporter: r,
		logger:   telemetry.OrDiscard(logger),
		timeout:  defaultReportTimeout,
		ch:       make(chan Report, buffer),
		done:     make(chan struct{}),
	}
	go p.run()
	return p
}

func (p *reportPump) enqueue(r Report) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	select {
	case p.ch <- r:
		return true
	default:
		p.logger.Error("session.report_dropped", map[string]any{
			"run_id":       r.RunID,
			"challenge_id": r.ChallengeID,
			"status":       string(r.Status),
		})
		return false
	}
}

func (p *reportPump) run() {
	defer close(p.done)
	for r := range p.ch {
		if p.reporter == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		err := p.reporter.Report(ctx, r)
		cancel()
		if err != nil {
			p.logger.Error("session.report_failed", map[string]any{
				"run_id":       r.RunID,
				"challenge_id": r.ChallengeID,
				"terminal":     r.Terminal,
				"error":        err.Error(),
			})
		}
	}
}

// close flushes queued reports and stops the pump.
func (p *reportPump) close() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.ch)
	}
	p.mu.Unlock()
	<-p.done
}
