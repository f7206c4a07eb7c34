// Package prefetch keeps hydrated challenges ready ahead of need.
//
// A Manager owns one active scope at a time. Activating a different scope
// cancels everything in flight for the old one and empties the cache. Work is
// queued FIFO and dispatched while the number of running hydrations is below
// the effective concurrency, which follows the network-quality signal.
package prefetch

import (
	"context"
	"errors"
	"sync"
	"time"

	"griddojo/internal/catalog"
	"griddojo/internal/hydrate"
	"griddojo/internal/telemetry"
)

type job struct {
	id       string
	desc     catalog.Challenge
	gen      uint64
	token    *CancelToken
	external bool
	done     chan struct{}
}

type warmState struct {
	started  bool
	complete bool
	target   int
	done     chan struct{}
	// err is set when the scope is invalidated before warm-up completes.
	err error
}

type Stats struct {
	Scope        Scope
	Cached       int
	InFlight     int
	Running      int
	Queued       int
	Attempted    int
	Failed       int
	Concurrency  int
	Quality      Quality
	WarmTarget   int
	WarmComplete bool
}

type Manager struct {
	hydrator       hydrate.Hydrator
	logger         telemetry.Logger
	ceiling        int
	initialBatch   int
	waveDelay      time.Duration
	requestTimeout time.Duration
	lookAheadPad   int
	estimator      *LatencyEstimator

	mu        sync.Mutex
	scope     Scope
	gen       uint64
	scopeCtx  context.Context
	scopeStop context.CancelFunc
	pool      []catalog.Challenge
	cache     map[string]hydrate.Challenge
	inflight  map[string]*job
	queue     []*job
	running   int
	attempted int
	failed    int
	quality   Quality
	index     int
	warm      *warmState
	wrap      bool
	listeners []func()
	closed    bool

	wg sync.WaitGroup
}

func NewManager(h hydrate.Hydrator, opts ...Option) *Manager {
	m := &Manager{
		hydrator:       h,
		logger:         telemetry.Discard(),
		ceiling:        DefaultConcurrency,
		initialBatch:   DefaultInitialBatch,
		waveDelay:      DefaultWaveDelay,
		requestTimeout: DefaultRequestTimeout,
		lookAheadPad:   DefaultLookAheadPad,
		cache:          map[string]hydrate.Challenge{},
		inflight:       map[string]*job{},
	}
	for _, o := range opts {
		o(m)
	}
	m.scopeCtx, m.scopeStop = context.WithCancel(context.Background())
	m.warm = newWarmState()
	return m
}

func newWarmState() *warmState {
	return &warmState{done: make(chan struct{})}
}

// OnChange registers fn to run after the cache or warm-up state changes.
// fn runs outside the manager lock.
func (m *Manager) OnChange(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Activate makes scope current and starts warm-up over pool. Activating the
// current scope again only replaces the pool. With wrap set, look-ahead
// continues from the start of pool once it runs past the end.
func (m *Manager) Activate(scope Scope, pool []catalog.Challenge, wrap bool) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	var dropped []*job
	if scope != m.scope {
		dropped = m.invalidateLocked(scope, ErrScopeChanged)
	}
	m.pool = append([]catalog.Challenge(nil), pool...)
	m.wrap = wrap
	startWarm := !m.warm.started
	if startWarm {
		m.warm.started = true
		m.warm.target = min(m.initialBatch, len(m.pool))
		m.wg.Add(1)
		go m.warmUp(m.scopeCtx, m.gen, m.pool, m.warm.target)
	}
	gen := m.gen
	m.mu.Unlock()

	closeJobs(dropped)
	m.logger.Info("prefetch.activate", map[string]any{
		"scope":      string(scope),
		"generation": gen,
		"pool_size":  len(pool),
		"wrap":       wrap,
		"warm_start": startWarm,
	})
	m.notify()
}

// Deactivate releases the current scope: in-flight work is cancelled and the
// cache emptied.
func (m *Manager) Deactivate() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	dropped := m.invalidateLocked("", ErrScopeChanged)
	m.mu.Unlock()
	closeJobs(dropped)
	m.notify()
}

// Close cancels all work and waits for dispatched goroutines to return.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		m.wg.Wait()
		return
	}
	dropped := m.invalidateLocked("", ErrClosed)
	m.closed = true
	m.scopeStop()
	m.mu.Unlock()
	closeJobs(dropped)
	m.wg.Wait()
}

func (m *Manager) invalidateLocked(next Scope, cause error) []*job {
	m.scopeStop()
	for _, j := range m.inflight {
		j.token.Cancel(cause)
	}
	dropped := m.queue
	m.queue = nil
	m.inflight = map[string]*job{}
	m.cache = map[string]hydrate.Challenge{}
	m.gen++
	prev := m.scope
	m.scope = next
	m.pool = nil
	m.wrap = false
	m.index = 0
	m.attempted = 0
	m.failed = 0
	if !m.warm.complete {
		m.warm.err = cause
		close(m.warm.done)
	}
	m.warm = newWarmState()
	m.scopeCtx, m.scopeStop = context.WithCancel(context.Background())
	if prev != next {
		m.logger.Debug("prefetch.scope_invalidated", map[string]any{
			"from":       string(prev),
			"to":         string(next),
			"generation": m.gen,
			"cancelled":  len(dropped),
			"cause":      cause.Error(),
		})
	}
	return dropped
}

func closeJobs(jobs []*job) {
	for _, j := range jobs {
		close(j.done)
	}
}

// EnsurePrefetched schedules hydration of d under the default request
// timeout. It is a no-op when d is cached or already in flight.
func (m *Manager) EnsurePrefetched(d catalog.Challenge) {
	m.mu.Lock()
	_, started := m.ensureLocked(d, nil, m.gen)
	m.mu.Unlock()
	if started {
		m.notify()
	}
}

// EnsurePrefetchedContext is EnsurePrefetched with caller-owned cancellation.
// ctx replaces the default timeout.
func (m *Manager) EnsurePrefetchedContext(ctx context.Context, d catalog.Challenge) {
	m.mu.Lock()
	_, started := m.ensureLocked(d, ctx, m.gen)
	m.mu.Unlock()
	if started {
		m.notify()
	}
}

// ensureLocked returns a channel closed when d settles, and whether a new job
// was queued.
func (m *Manager) ensureLocked(d catalog.Challenge, external context.Context, gen uint64) (<-chan struct{}, bool) {
	if m.closed || gen != m.gen || d.ChallengeID == "" {
		return closedChan(), false
	}
	if _, ok := m.cache[d.ChallengeID]; ok {
		return closedChan(), false
	}
	if j, ok := m.inflight[d.ChallengeID]; ok {
		return j.done, false
	}
	j := &job{
		id:       d.ChallengeID,
		desc:     d,
		gen:      m.gen,
		token:    NewCancelToken(external),
		external: external != nil,
		done:     make(chan struct{}),
	}
	m.inflight[j.id] = j
	m.queue = append(m.queue, j)
	m.pumpLocked()
	return j.done, true
}

func (m *Manager) pumpLocked() {
	limit := EffectiveConcurrency(m.quality, m.ceiling)
	for m.running < limit && len(m.queue) > 0 {
		j := m.queue[0]
		m.queue = m.queue[1:]
		if j.token.Cancelled() {
			if m.inflight[j.id] == j {
				delete(m.inflight, j.id)
			}
			close(j.done)
			continue
		}
		m.running++
		m.wg.Add(1)
		go m.run(j)
	}
}

func (m *Manager) run(j *job) {
	defer m.wg.Done()

	callCtx := j.token.Context()
	if !j.external {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeoutCause(callCtx, m.requestTimeout, ErrRequestTimeout)
		defer cancel()
	}

	var (
		resp hydrate.Response
		err  error
	)
	started := time.Now()
	if j.token.Cancelled() {
		err = j.token.Cause()
	} else {
		resp, err = m.hydrator.Hydrate(callCtx, hydrate.RequestFor(j.desc))
	}
	elapsed := time.Since(started)
	if err == nil && callCtx.Err() != nil {
		// Result landed after the deadline or a cancel; treat as lost.
		err = context.Cause(callCtx)
	}
	m.finish(j, resp, err, elapsed)
}

func (m *Manager) finish(j *job, resp hydrate.Response, err error, elapsed time.Duration) {
	var (
		event  string
		level  = "debug"
		fields = map[string]any{
			"challenge_id": j.id,
			"generation":   j.gen,
			"elapsed_ms":   elapsed.Milliseconds(),
		}
	)

	m.mu.Lock()
	if m.inflight[j.id] == j {
		delete(m.inflight, j.id)
	}
	m.running--
	current := j.gen == m.gen && !m.closed

	switch {
	case j.token.Cancelled():
		event = "prefetch.hydrate_cancelled"
		fields["cause"] = causeString(j.token.Cause())
	case !current:
		event = "prefetch.hydrate_stale"
	case err != nil:
		m.attempted++
		m.failed++
		event, level = "prefetch.hydrate_failed", "warn"
		fields["error"] = err.Error()
		fields["timeout"] = errors.Is(err, ErrRequestTimeout) || errors.Is(err, context.DeadlineExceeded)
	default:
		m.attempted++
		ch := resp.Challenge
		ch.Hydrated = true
		if ch.ChallengeID == "" {
			ch.Challenge = j.desc
		}
		m.cache[j.id] = ch
		event = "prefetch.hydrated"
		fields["cached"] = len(m.cache)
		m.observeLatencyLocked(elapsed)
	}
	m.pumpLocked()
	m.mu.Unlock()

	close(j.done)
	if level == "warn" {
		m.logger.Warn(event, fields)
	} else {
		m.logger.Debug(event, fields)
	}
	if current {
		m.notify()
	}
}

func (m *Manager) observeLatencyLocked(elapsed time.Duration) {
	if m.estimator == nil {
		return
	}
	q := m.estimator.Observe(elapsed)
	if q == QualityUnknown || q == m.quality {
		return
	}
	m.setQualityLocked(q, "latency")
}

// SetNetworkQuality applies a quality signal; concurrency is re-evaluated
// immediately.
func (m *Manager) SetNetworkQuality(q Quality) {
	m.mu.Lock()
	changed := q != m.quality
	if changed {
		m.setQualityLocked(q, "signal")
	}
	m.mu.Unlock()
	if changed {
		m.notify()
	}
}

func (m *Manager) setQualityLocked(q Quality, source string) {
	prev := m.quality
	m.quality = q
	m.logger.Info("prefetch.quality_changed", map[string]any{
		"from":        string(prev),
		"to":          string(q),
		"source":      source,
		"concurrency": EffectiveConcurrency(q, m.ceiling),
	})
	m.pumpLocked()
}

func (m *Manager) NetworkQuality() Quality {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.quality
}

func (m *Manager) EffectiveConcurrency() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return EffectiveConcurrency(m.quality, m.ceiling)
}

// Advance records the active index and, once warm-up is done, hydrates
// index + concurrency + pad.
func (m *Manager) Advance(index int) {
	m.mu.Lock()
	m.index = index
	started := m.lookAheadLocked()
	m.mu.Unlock()
	if started {
		m.notify()
	}
}

func (m *Manager) lookAheadLocked() bool {
	if !m.warm.complete {
		return false
	}
	if len(m.pool) == 0 {
		return false
	}
	target := m.index + EffectiveConcurrency(m.quality, m.ceiling) + m.lookAheadPad
	if m.wrap {
		target %= len(m.pool)
	}
	if target < 0 || target >= len(m.pool) {
		return false
	}
	_, started := m.ensureLocked(m.pool[target], nil, m.gen)
	return started
}

// GetCachedOrFallback returns the hydrated challenge for d, or d wrapped as a
// raw fallback.
func (m *Manager) GetCachedOrFallback(d catalog.Challenge) hydrate.Challenge {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.cache[d.ChallengeID]; ok {
		return c
	}
	return hydrate.Fallback(d)
}

func (m *Manager) IsCached(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.cache[id]
	return ok
}

// IsPending reports whether id is queued or hydrating in the current scope.
func (m *Manager) IsPending(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.inflight[id]
	return ok
}

func (m *Manager) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.cache)
}

func (m *Manager) Scope() Scope {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scope
}

// Progress is the cached share of the warm-up target, in [0, 1].
func (m *Manager) Progress() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.warm.target <= 0 {
		if m.warm.complete {
			return 1
		}
		return 0
	}
	return min(1, float64(len(m.cache))/float64(m.warm.target))
}

func (m *Manager) InitialLoadComplete() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.warm.complete
}

// WaitWarm blocks until warm-up of the scope that is current at call time
// completes or ctx ends. If that scope is replaced or the manager closes
// first, it returns ErrScopeChanged or ErrClosed without waiting for the
// next scope.
func (m *Manager) WaitWarm(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	w := m.warm
	m.mu.Unlock()
	select {
	case <-w.done:
		m.mu.Lock()
		defer m.mu.Unlock()
		return w.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{
		Scope:        m.scope,
		Cached:       len(m.cache),
		InFlight:     len(m.inflight),
		Running:      m.running,
		Queued:       len(m.queue),
		Attempted:    m.attempted,
		Failed:       m.failed,
		Concurrency:  EffectiveConcurrency(m.quality, m.ceiling),
		Quality:      m.quality,
		WarmTarget:   m.warm.target,
		WarmComplete: m.warm.complete,
	}
}

func (m *Manager) notify() {
	m.mu.Lock()
	fns := append([]func(){}, m.listeners...)
	m.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func causeString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func closedChan() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
