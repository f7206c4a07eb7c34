// Package session runs the timed grid-selection game loop.
//
// All mutations go through Engine methods, which serialise on one mutex. The
// engine never calls the cache's mutating methods while holding that mutex,
// so cache change callbacks may re-enter the engine.
package session

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"griddojo/internal/catalog"
	"griddojo/internal/grading"
	"griddojo/internal/prefetch"
	"griddojo/internal/telemetry"
)

type Option func(*Engine)

func WithConfig(cfg Config) Option {
	return func(e *Engine) { e.cfg = cfg.withDefaults() }
}

func WithLogger(l telemetry.Logger) Option {
	return func(e *Engine) { e.logger = telemetry.OrDiscard(l) }
}

func WithGrader(g grading.Grader) Option {
	return func(e *Engine) { e.grader = g }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithIDGenerator(fn func() string) Option {
	return func(e *Engine) { e.newID = fn }
}

func WithReportBuffer(n int) Option {
	return func(e *Engine) { e.reportBuffer = n }
}

func WithMode(mode string) Option {
	return func(e *Engine) { e.mode = mode }
}

type runState struct {
	runID         string
	status        Status
	startedAt     time.Time
	index         int
	selected      map[int]struct{}
	evaluation    *grading.Evaluation
	lastScore     *grading.Score
	totalScore    int
	streak        int
	timeRemaining int
	timerExpired  bool
	finished      bool
	terminalSent  bool
	completed     int
	attempts      int
}

type Engine struct {
	cache        Cache
	grader       grading.Grader
	logger       telemetry.Logger
	now          func() time.Time
	newID        func() string
	cfg          Config
	reportBuffer int
	reports      *reportPump

	mu     sync.Mutex
	mode   string
	pool   Pool
	timing Config
	st     runState
	subs   map[int]func(Snapshot)
	nextID int
}

func NewEngine(cache Cache, reporter Reporter, opts ...Option) *Engine {
	e := &Engine{
		cache:  cache,
		grader: grading.NewGrader(),
		logger: telemetry.Discard(),
		now:    time.Now,
		newID:  uuid.NewString,
		cfg:    DefaultConfig(),
		subs:   map[int]func(Snapshot){},
	}
	for _, o := range opts {
		o(e)
	}
	e.reports = newReportPump(reporter, e.reportBuffer, e.logger)
	e.timing = e.cfg
	e.st = idleState(e.timing)
	return e
}

func idleState(timing Config) runState {
	return runState{
		status:        StatusIdle,
		selected:      map[int]struct{}{},
		timeRemaining: timing.DurationSeconds,
	}
}

// Close flushes pending reports. The engine must not be used afterwards.
func (e *Engine) Close() {
	e.reports.close()
}

// Subscribe registers fn to receive a snapshot after every state change.
// The returned func removes the subscription.
func (e *Engine) Subscribe(fn func(Snapshot)) func() {
	e.mu.Lock()
	id := e.nextID
	e.nextID++
	e.subs[id] = fn
	e.mu.Unlock()
	return func() {
		e.mu.Lock()
		delete(e.subs, id)
		e.mu.Unlock()
	}
}

// Refresh republishes the current snapshot; wire it to cache changes.
func (e *Engine) Refresh() { e.publish() }

// SetPool replaces the challenge definitions and resets any active run.
func (e *Engine) SetPool(p Pool) {
	e.Reset()
	e.mu.Lock()
	e.pool = Pool{
		SetID:      p.SetID,
		Challenges: append([]catalog.Challenge(nil), p.Challenges...),
		Rules:      p.Rules,
		Timing:     p.Timing,
	}
	e.timing = mergeTiming(e.cfg, p.Timing)
	e.st = idleState(e.timing)
	e.mu.Unlock()
	e.logger.Info("session.pool_set", map[string]any{
		"set_id":     p.SetID,
		"challenges": len(p.Challenges),
	})
	e.publish()
}

// SetMode switches the scope sub-key. A different mode resets the run and
// releases the cache scope.
func (e *Engine) SetMode(mode string) {
	e.mu.Lock()
	if mode == e.mode {
		e.mu.Unlock()
		return
	}
	prev := e.mode
	e.mode = mode
	e.mu.Unlock()
	e.logger.Info("session.mode_changed", map[string]any{"from": prev, "to": mode})
	e.Reset()
}

func (e *Engine) Mode() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mode
}

func mergeTiming(base Config, override Config) Config {
	out := base
	if override.DurationSeconds > 0 {
		out.DurationSeconds = override.DurationSeconds
	}
	if override.BonusSeconds > 0 {
		out.BonusSeconds = override.BonusSeconds
	}
	if override.PenaltySeconds > 0 {
		out.PenaltySeconds = override.PenaltySeconds
	}
	if override.EndlessThreshold > 0 {
		out.EndlessThreshold = override.EndlessThreshold
	}
	return out
}

// Start begins a fresh run from idle. It returns false when a run is already
// active or the pool is empty.
func (e *Engine) Start() bool {
	e.mu.Lock()
	if e.st.status != StatusIdle {
		e.mu.Unlock()
		return false
	}
	if len(e.pool.Challenges) == 0 {
		e.mu.Unlock()
		e.logger.Warn("session.start_empty_pool", map[string]any{"set_id": e.pool.SetID})
		return false
	}
	st := idleState(e.timing)
	st.runID = e.newID()
	st.status = StatusPlaying
	st.startedAt = e.now()
	e.st = st
	scope := prefetch.NewScope(e.mode, e.pool.SetID, st.runID)
	challenges := e.pool.Challenges
	current := challenges[0]
	next, hasNext := e.peekLocked(0)
	endless := e.endlessLocked()
	fields := map[string]any{
		"run_id":     st.runID,
		"scope":      string(scope),
		"set_id":     e.pool.SetID,
		"challenges": len(challenges),
		"endless":    endless,
		"duration_s": e.timing.DurationSeconds,
	}
	e.mu.Unlock()

	e.cache.Activate(scope, challenges, endless)
	e.cache.EnsurePrefetched(current)
	if hasNext {
		e.cache.EnsurePrefetched(next)
	}
	e.cache.Advance(0)
	e.logger.Info("session.start", fields)
	e.publish()
	return true
}

// Reset returns to idle unconditionally. An active run that has not sent its
// terminal summary emits an abandoned summary first.
func (e *Engine) Reset() {
	e.mu.Lock()
	wasActive := e.st.status != StatusIdle
	if wasActive && !e.st.terminalSent {
		e.st.terminalSent = true
		r := e.reportLocked(e.currentIDLocked(), e.st.status, 0, nil)
		r.SelectedCells = e.selectedLocked()
		r.Terminal = true
		r.Reason = ReasonAbandoned
		e.reports.enqueue(r)
	}
	runID := e.st.runID
	e.st = idleState(e.timing)
	e.mu.Unlock()

	if wasActive {
		e.cache.Deactivate()
		e.logger.Info("session.reset", map[string]any{"run_id": runID})
	}
	e.publish()
}

// ToggleCell flips membership of index in the selection. Out-of-range
// indices and toggles outside an editable state are ignored.
func (e *Engine) ToggleCell(index int) {
	e.mu.Lock()
	if !e.editableLocked() {
		e.mu.Unlock()
		return
	}
	cur := e.pool.Challenges[e.st.index]
	if !cur.InRange(index) {
		e.mu.Unlock()
		return
	}
	if _, ok := e.st.selected[index]; ok {
		delete(e.st.selected, index)
	} else {
		e.st.selected[index] = struct{}{}
	}
	e.st.evaluation = nil
	e.st.lastScore = nil
	if e.st.status == StatusError {
		e.st.status = StatusPlaying
	}
	e.mu.Unlock()
	e.publish()
}

func (e *Engine) editableLocked() bool {
	switch e.st.status {
	case StatusPlaying, StatusError:
	default:
		return false
	}
	return !e.st.timerExpired && !e.st.finished
}

// Submit evaluates the selection against the current challenge. It is a
// no-op while the current challenge is still hydrating.
func (e *Engine) Submit() {
	e.mu.Lock()
	if !e.editableLocked() {
		e.mu.Unlock()
		return
	}
	cur := e.pool.Challenges[e.st.index]
	if e.cache.IsPending(cur.ChallengeID) {
		e.mu.Unlock()
		e.logger.Debug("session.submit_pending", map[string]any{"challenge_id": cur.ChallengeID})
		return
	}

	selected := e.selectedLocked()
	res := e.grader.Grade(grading.Request{
		Rules:        e.pool.Rules,
		CorrectCells: cur.CorrectCells,
		Selected:     selected,
		Streak:       e.st.streak,
	})
	ev := res.Evaluation
	score := res.Score
	e.st.evaluation = &ev
	e.st.lastScore = &score
	e.st.attempts++

	awarded := 0
	if res.Passed {
		awarded = score.TotalPoints
		e.st.totalScore += awarded
		e.st.completed++
		e.st.timeRemaining += e.timing.BonusSeconds
		e.st.status = StatusSuccess
	} else {
		e.st.timeRemaining -= e.timing.PenaltySeconds
		e.st.status = StatusError
	}
	e.st.streak = res.NextStreak
	e.st.timeRemaining = clamp(e.st.timeRemaining, 0, e.timing.DurationSeconds)

	if e.st.timeRemaining <= 0 {
		e.st.timerExpired = true
		e.st.status = StatusError
	}
	if res.Passed && !e.st.timerExpired && !e.endlessLocked() && e.st.index == len(e.pool.Challenges)-1 {
		e.st.finished = true
	}

	r := e.reportLocked(cur.ChallengeID, e.st.status, awarded, &ev)
	r.SelectedCells = selected
	r.TotalCorrect = len(cur.CorrectCells)
	r.Submission = true
	switch {
	case e.st.terminalSent:
	case e.st.timerExpired:
		e.st.terminalSent = true
		r.Terminal = true
		r.Reason = ReasonTimeExpired
	case e.st.finished:
		e.st.terminalSent = true
		r.Terminal = true
		r.Reason = ReasonCompleted
		r.SessionSummary = e.summaryLocked()
	}
	e.reports.enqueue(r)
	fields := map[string]any{
		"run_id":         e.st.runID,
		"challenge_id":   cur.ChallengeID,
		"status":         string(e.st.status),
		"score":          awarded,
		"total_score":    e.st.totalScore,
		"streak":         e.st.streak,
		"missing":        ev.Missing,
		"extra":          ev.Extra,
		"time_remaining": e.st.timeRemaining,
		"terminal":       r.Terminal,
	}
	e.mu.Unlock()

	e.logger.Info("session.submit", fields)
	e.publish()
}

// Next advances past a solved challenge. Finite runs stop at the last
// challenge; endless runs wrap to the first.
func (e *Engine) Next() {
	e.mu.Lock()
	if e.st.status != StatusSuccess || e.st.timerExpired || e.st.finished {
		e.mu.Unlock()
		return
	}
	idx := e.st.index + 1
	if idx >= len(e.pool.Challenges) {
		if !e.endlessLocked() {
			e.mu.Unlock()
			return
		}
		idx = 0
	}
	e.st.index = idx
	e.st.selected = map[int]struct{}{}
	e.st.evaluation = nil
	e.st.lastScore = nil
	e.st.status = StatusPlaying
	current := e.pool.Challenges[idx]
	next, hasNext := e.peekLocked(idx)
	runID := e.st.runID
	e.mu.Unlock()

	e.cache.Advance(idx)
	e.cache.EnsurePrefetched(current)
	if hasNext {
		e.cache.EnsurePrefetched(next)
	}
	e.logger.Info("session.next", map[string]any{"run_id": runID, "index": idx, "challenge_id": current.ChallengeID})
	e.publish()
}

// Retry clears the selection and feedback on the current challenge. Score,
// streak and index are kept.
func (e *Engine) Retry() {
	e.mu.Lock()
	if e.st.status == StatusIdle || e.st.timerExpired || e.st.finished {
		e.mu.Unlock()
		return
	}
	e.st.selected = map[int]struct{}{}
	e.st.evaluation = nil
	e.st.lastScore = nil
	e.st.status = StatusPlaying
	e.mu.Unlock()
	e.publish()
}

// Tick advances the countdown by one second. The tick that reaches zero
// expires the run and emits the terminal summary.
func (e *Engine) Tick() {
	e.mu.Lock()
	if e.st.status == StatusIdle || e.st.timerExpired || e.st.finished {
		e.mu.Unlock()
		return
	}
	e.st.timeRemaining = max(0, e.st.timeRemaining-1)
	expired := false
	var fields map[string]any
	if e.st.timeRemaining == 0 {
		expired = true
		e.st.timerExpired = true
		e.st.status = StatusError
		if !e.st.terminalSent {
			e.st.terminalSent = true
			r := e.reportLocked(e.currentIDLocked(), StatusError, 0, nil)
			r.SelectedCells = e.selectedLocked()
			r.Terminal = true
			r.Reason = ReasonTimeExpired
			e.reports.enqueue(r)
		}
		fields = map[string]any{
			"run_id":      e.st.runID,
			"total_score": e.st.totalScore,
			"completed":   e.st.completed,
			"attempts":    e.st.attempts,
		}
	}
	e.mu.Unlock()

	if expired {
		e.logger.Info("session.time_expired", fields)
	}
	e.publish()
}

func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

func (e *Engine) snapshotLocked() Snapshot {
	st := e.st
	s := Snapshot{
		RunID:         st.runID,
		Mode:          e.mode,
		SetID:         e.pool.SetID,
		Status:        st.status,
		StartedAt:     st.startedAt,
		Index:         st.index,
		Total:         len(e.pool.Challenges),
		Endless:       e.endlessLocked(),
		Finished:      st.finished,
		Selected:      e.selectedLocked(),
		TotalScore:    st.totalScore,
		Streak:        st.streak,
		Multiplier:    math.Pow(max(1, e.pool.Rules.StreakMultiplier), float64(st.streak)),
		TimeRemaining: st.timeRemaining,
		TimeTotal:     e.timing.DurationSeconds,
		TimerExpired:  st.timerExpired,
		Completed:     st.completed,
		Attempts:      st.attempts,
	}
	if st.evaluation != nil {
		ev := *st.evaluation
		s.Evaluation = &ev
	}
	if st.lastScore != nil {
		sc := *st.lastScore
		s.LastScore = &sc
	}
	if len(e.pool.Challenges) > 0 {
		cur := e.pool.Challenges[st.index]
		s.HasChallenge = true
		s.Challenge = e.cache.GetCachedOrFallback(cur)
		s.Pending = st.status != StatusIdle && e.cache.IsPending(cur.ChallengeID)
	}
	if st.status != StatusIdle {
		s.WarmupPercent = int(math.Round(e.cache.Progress() * 100))
		s.WarmupComplete = e.cache.InitialLoadComplete()
	}
	return s
}

func (e *Engine) publish() {
	e.mu.Lock()
	if len(e.subs) == 0 {
		e.mu.Unlock()
		return
	}
	snap := e.snapshotLocked()
	fns := make([]func(Snapshot), 0, len(e.subs))
	for _, fn := range e.subs {
		fns = append(fns, fn)
	}
	e.mu.Unlock()
	for _, fn := range fns {
		fn(snap)
	}
}

func (e *Engine) reportLocked(challengeID string, status Status, awarded int, ev *grading.Evaluation) Report {
	r := Report{
		RunID:                e.st.runID,
		SetID:                e.pool.SetID,
		Mode:                 e.mode,
		ChallengeID:          challengeID,
		Status:               status,
		Score:                awarded,
		TotalScore:           e.st.totalScore,
		Streak:               e.st.streak,
		TimeRemainingSeconds: e.st.timeRemaining,
		CompletedChallenges:  e.st.completed,
		TotalAttempts:        e.st.attempts,
		StartedAt:            e.st.startedAt,
		At:                   e.now(),
	}
	if ev != nil {
		r.CorrectCount = ev.CorrectCount
		r.Missing = ev.Missing
		r.Extra = ev.Extra
	}
	return r
}

func (e *Engine) summaryLocked() *SessionSummary {
	acc := 0.0
	if e.st.attempts > 0 {
		acc = math.Round(float64(e.st.completed)/float64(e.st.attempts)*10000) / 100
	}
	return &SessionSummary{
		CompletedChallenges: e.st.completed,
		TotalChallenges:     len(e.pool.Challenges),
		AccuracyPercent:     acc,
		DurationMS:          e.now().Sub(e.st.startedAt).Milliseconds(),
		TotalScore:          e.st.totalScore,
	}
}

func (e *Engine) selectedLocked() []int {
	out := make([]int, 0, len(e.st.selected))
	for idx := range e.st.selected {
		out = append(out, idx)
	}
	sort.Ints(out)
	return out
}

func (e *Engine) currentIDLocked() string {
	if len(e.pool.Challenges) == 0 {
		return ""
	}
	return e.pool.Challenges[e.st.index].ChallengeID
}

func (e *Engine) endlessLocked() bool {
	return len(e.pool.Challenges) >= e.timing.EndlessThreshold
}

// peekLocked returns the challenge after index, wrapping in endless runs.
func (e *Engine) peekLocked(index int) (catalog.Challenge, bool) {
	n := len(e.pool.Challenges)
	next := index + 1
	if next >= n {
		if !e.endlessLocked() || n < 2 {
			return catalog.Challenge{}, false
		}
		next = 0
	}
	return e.pool.Challenges[next], true
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}
