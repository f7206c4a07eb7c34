package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"griddojo/internal/catalog"
	"griddojo/internal/grading"
	"griddojo/internal/hydrate"
	"griddojo/internal/prefetch"
	"griddojo/internal/telemetry"
)

type fakeCache struct {
	mu            sync.Mutex
	activations   []prefetch.Scope
	wraps         []bool
	deactivations int
	ensured       []string
	advanced      []int
	pending       map[string]bool
	progress      float64
}

func newFakeCache() *fakeCache {
	return &fakeCache{pending: map[string]bool{}}
}

func (c *fakeCache) Activate(scope prefetch.Scope, pool []catalog.Challenge, wrap bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.activations = append(c.activations, scope)
	c.wraps = append(c.wraps, wrap)
}

func (c *fakeCache) Deactivate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deactivations++
}

func (c *fakeCache) EnsurePrefetched(d catalog.Challenge) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ensured = append(c.ensured, d.ChallengeID)
}

func (c *fakeCache) GetCachedOrFallback(d catalog.Challenge) hydrate.Challenge {
	return hydrate.Fallback(d)
}

func (c *fakeCache) IsPending(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending[id]
}

func (c *fakeCache) Advance(index int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.advanced = append(c.advanced, index)
}

func (c *fakeCache) Progress() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.progress
}

func (c *fakeCache) InitialLoadComplete() bool { return c.Progress() >= 1 }

type collector struct {
	mu      sync.Mutex
	reports []Report
	err     error
}

func (c *collector) Report(_ context.Context, r Report) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reports = append(c.reports, r)
	return c.err
}

func (c *collector) terminal() []Report {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Report
	for _, r := range c.reports {
		if r.Terminal {
			out = append(out, r)
		}
	}
	return out
}

func testRules() grading.Rules {
	return grading.Rules{
		BasePoints:            50,
		PerCorrectPoints:      20,
		MissingPenaltyPoints:  10,
		ExtraPenaltyPoints:    10,
		CompletionBonusPoints: 40,
		StreakMultiplier:      1.05,
	}
}

func diagonalPool(n int) Pool {
	challenges := make([]catalog.Challenge, n)
	for i := range challenges {
		challenges[i] = catalog.Challenge{
			ChallengeID:  fmt.Sprintf("c-%03d", i),
			Title:        "diag",
			GridSize:     3,
			CorrectCells: []int{0, 4, 8},
		}
	}
	return Pool{SetID: "test-set", Challenges: challenges, Rules: testRules()}
}

func newTestEngine(t *testing.T, n int, opts ...Option) (*Engine, *fakeCache, *collector) {
	t.Helper()
	cache := newFakeCache()
	rep := &collector{}
	runs := 0
	base := []Option{
		WithMode("classic"),
		WithIDGenerator(func() string {
			runs++
			return fmt.Sprintf("run-%d", runs)
		}),
		WithClock(func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }),
	}
	e := NewEngine(cache, rep, append(base, opts...)...)
	e.SetPool(diagonalPool(n))
	return e, cache, rep
}

func tick(e *Engine, n int) {
	for i := 0; i < n; i++ {
		e.Tick()
	}
}

func solve(e *Engine) {
	for _, idx := range []int{0, 4, 8} {
		e.ToggleCell(idx)
	}
	e.Submit()
}

func TestPerfectSubmission(t *testing.T) {
	e, cache, rep := newTestEngine(t, 5)
	if !e.Start() {
		t.Fatalf("start failed")
	}
	tick(e, 10)
	solve(e)

	s := e.Snapshot()
	if s.Status != StatusSuccess {
		t.Fatalf("expected success, got %s", s.Status)
	}
	if s.TotalScore != 150 || s.Streak != 1 || s.Completed != 1 || s.Attempts != 1 {
		t.Fatalf("unexpected ledger: %+v", s)
	}
	if s.TimeRemaining != 113 {
		t.Fatalf("expected 110+3 seconds, got %d", s.TimeRemaining)
	}
	if len(cache.activations) != 1 || cache.activations[0] != "classic/test-set/run-1" {
		t.Fatalf("unexpected activations: %v", cache.activations)
	}
	if cache.wraps[0] {
		t.Fatalf("finite run must not wrap look-ahead")
	}
	if len(cache.ensured) < 2 || cache.ensured[0] != "c-000" || cache.ensured[1] != "c-001" {
		t.Fatalf("start should ensure current and next: %v", cache.ensured)
	}

	e.Close()
	if len(rep.reports) != 1 {
		t.Fatalf("expected one report, got %d", len(rep.reports))
	}
	r := rep.reports[0]
	if r.Status != StatusSuccess || r.Score != 150 || r.Missing != 0 || r.Extra != 0 || r.TotalCorrect != 3 {
		t.Fatalf("unexpected report: %+v", r)
	}
	if r.Terminal || r.SessionSummary != nil {
		t.Fatalf("mid-run report must not be terminal")
	}
}

func TestBonusIsClampedToBaseDuration(t *testing.T) {
	e, _, _ := newTestEngine(t, 3)
	defer e.Close()
	e.Start()
	solve(e)
	if got := e.Snapshot().TimeRemaining; got != 120 {
		t.Fatalf("expected clamp at 120, got %d", got)
	}
}

func TestPartialSubmission(t *testing.T) {
	e, _, rep := newTestEngine(t, 3)
	e.Start()
	tick(e, 10)
	e.ToggleCell(0)
	e.ToggleCell(4)
	e.Submit()

	s := e.Snapshot()
	if s.Status != StatusError || s.Streak != 0 || s.TotalScore != 0 {
		t.Fatalf("unexpected state: %+v", s)
	}
	if s.TimeRemaining != 103 {
		t.Fatalf("expected 110-7 seconds, got %d", s.TimeRemaining)
	}
	if s.Evaluation == nil || s.Evaluation.Missing != 1 || s.Evaluation.Extra != 0 {
		t.Fatalf("unexpected evaluation: %+v", s.Evaluation)
	}
	e.Close()
	if r := rep.reports[0]; r.Status != StatusError || r.Missing != 1 || r.CorrectCount != 2 {
		t.Fatalf("unexpected report: %+v", r)
	}
}

func TestStreakScoringAcrossChallenges(t *testing.T) {
	e, _, _ := newTestEngine(t, 5)
	defer e.Close()
	e.Start()
	solve(e)
	if got := e.Snapshot().TotalScore; got != 150 {
		t.Fatalf("expected 150 after first, got %d", got)
	}
	e.Next()
	solve(e)
	s := e.Snapshot()
	if s.TotalScore != 308 || s.Streak != 2 {
		t.Fatalf("expected 150+158 with streak 2, got %d streak %d", s.TotalScore, s.Streak)
	}
	if s.LastScore == nil || s.LastScore.TotalPoints != 158 {
		t.Fatalf("expected last score 158, got %+v", s.LastScore)
	}

	e.Next()
	e.ToggleCell(1)
	e.Submit()
	if got := e.Snapshot().Streak; got != 0 {
		t.Fatalf("streak must reset on failure, got %d", got)
	}
}

func TestTimerExpiryFiresTerminalOnce(t *testing.T) {
	e, _, rep := newTestEngine(t, 3)
	e.Start()
	tick(e, 119)
	if s := e.Snapshot(); s.TimerExpired || s.TimeRemaining != 1 {
		t.Fatalf("unexpected state before expiry: %+v", s)
	}
	tick(e, 1)
	s := e.Snapshot()
	if !s.TimerExpired || s.Status != StatusError || s.TimeRemaining != 0 {
		t.Fatalf("expected expiry: %+v", s)
	}

	tick(e, 5)
	solve(e)
	e.Retry()
	e.ToggleCell(2)
	if s := e.Snapshot(); s.Attempts != 0 || len(s.Selected) != 0 || s.Status != StatusError {
		t.Fatalf("expired run must ignore input: %+v", s)
	}

	e.Close()
	term := rep.terminal()
	if len(term) != 1 {
		t.Fatalf("expected exactly one terminal summary, got %d", len(term))
	}
	if term[0].Reason != ReasonTimeExpired || term[0].SessionSummary != nil {
		t.Fatalf("unexpected terminal report: %+v", term[0])
	}
}

func TestPenaltyDrainingClockExpiresRun(t *testing.T) {
	e, _, rep := newTestEngine(t, 3)
	e.Start()
	tick(e, 115)
	e.ToggleCell(1)
	e.Submit()

	s := e.Snapshot()
	if !s.TimerExpired || s.TimeRemaining != 0 || s.Status != StatusError {
		t.Fatalf("expected penalty to expire the run: %+v", s)
	}
	tick(e, 3)
	e.Close()
	term := rep.terminal()
	if len(term) != 1 || term[0].ChallengeID != "c-000" {
		t.Fatalf("expected one terminal report from the submit path, got %+v", term)
	}
}

func TestToggleRules(t *testing.T) {
	e, _, _ := newTestEngine(t, 3)
	defer e.Close()

	e.ToggleCell(0)
	if len(e.Snapshot().Selected) != 0 {
		t.Fatalf("toggle while idle must be ignored")
	}
	e.Start()
	e.ToggleCell(-1)
	e.ToggleCell(9)
	if len(e.Snapshot().Selected) != 0 {
		t.Fatalf("out-of-range toggles must be ignored")
	}
	e.ToggleCell(3)
	e.ToggleCell(3)
	if len(e.Snapshot().Selected) != 0 {
		t.Fatalf("double toggle must remove the cell")
	}

	e.ToggleCell(2)
	e.Submit()
	if e.Snapshot().Evaluation == nil {
		t.Fatalf("expected evaluation after submit")
	}
	e.ToggleCell(0)
	s := e.Snapshot()
	if s.Evaluation != nil || s.Status != StatusPlaying {
		t.Fatalf("toggle must clear validation: %+v", s)
	}
	if !s.IsSelected(0) || !s.IsSelected(2) {
		t.Fatalf("unexpected selection %v", s.Selected)
	}
}

func TestSubmitWhileHydratingIsNoop(t *testing.T) {
	e, cache, _ := newTestEngine(t, 3)
	defer e.Close()
	e.Start()
	cache.mu.Lock()
	cache.pending["c-000"] = true
	cache.mu.Unlock()

	solve(e)
	s := e.Snapshot()
	if s.Attempts != 0 || s.Status != StatusPlaying {
		t.Fatalf("submit must wait for hydration: %+v", s)
	}
	if !s.Pending {
		t.Fatalf("snapshot should report pending hydration")
	}
}

func TestNextOnlyFromSuccess(t *testing.T) {
	e, cache, _ := newTestEngine(t, 3)
	defer e.Close()
	e.Start()
	e.Next()
	if e.Snapshot().Index != 0 {
		t.Fatalf("next before success must be ignored")
	}
	solve(e)
	e.Next()
	s := e.Snapshot()
	if s.Index != 1 || s.Status != StatusPlaying || len(s.Selected) != 0 {
		t.Fatalf("unexpected state after next: %+v", s)
	}
	if got := cache.advanced[len(cache.advanced)-1]; got != 1 {
		t.Fatalf("expected cache advance to 1, got %d", got)
	}
}

func TestFiniteRunCompletes(t *testing.T) {
	e, _, rep := newTestEngine(t, 2)
	e.Start()
	solve(e)
	e.Next()
	e.ToggleCell(5)
	e.Submit()
	e.Retry()
	solve(e)

	s := e.Snapshot()
	if !s.Finished || s.Status != StatusSuccess {
		t.Fatalf("expected finished run: %+v", s)
	}
	e.Next()
	tick(e, 3)
	if s2 := e.Snapshot(); s2.Index != 1 || s2.TimeRemaining != s.TimeRemaining {
		t.Fatalf("finished run must stop advancing and ticking: %+v", s2)
	}

	e.Close()
	term := rep.terminal()
	if len(term) != 1 {
		t.Fatalf("expected one terminal summary, got %d", len(term))
	}
	sum := term[0].SessionSummary
	if term[0].Reason != ReasonCompleted || sum == nil {
		t.Fatalf("expected completion summary: %+v", term[0])
	}
	if sum.CompletedChallenges != 2 || sum.TotalChallenges != 2 || sum.AccuracyPercent != 66.67 {
		t.Fatalf("unexpected summary: %+v", sum)
	}
	if sum.TotalScore != s.TotalScore {
		t.Fatalf("summary score %d != ledger %d", sum.TotalScore, s.TotalScore)
	}
}

func TestEndlessRunWraps(t *testing.T) {
	e, cache, rep := newTestEngine(t, 30, WithConfig(Config{DurationSeconds: 120, BonusSeconds: 3, PenaltySeconds: 7, EndlessThreshold: 30}))
	e.Start()
	cache.mu.Lock()
	wraps := append([]bool(nil), cache.wraps...)
	cache.mu.Unlock()
	if len(wraps) != 1 || !wraps[0] {
		t.Fatalf("endless run must activate the cache with wrap, got %v", wraps)
	}
	for i := 0; i < 30; i++ {
		solve(e)
		e.Next()
	}
	s := e.Snapshot()
	if !s.Endless || s.Index != 0 || s.Finished {
		t.Fatalf("expected wrap to index 0: %+v", s)
	}
	if s.Completed != 30 {
		t.Fatalf("expected 30 completed, got %d", s.Completed)
	}
	e.Close()
	if len(rep.terminal()) != 0 {
		t.Fatalf("endless run must not complete")
	}
}

func TestRetryKeepsLedger(t *testing.T) {
	e, _, _ := newTestEngine(t, 3)
	defer e.Close()
	e.Start()
	solve(e)
	e.Next()
	e.ToggleCell(1)
	e.Retry()
	s := e.Snapshot()
	if s.Index != 1 || s.TotalScore != 150 || s.Streak != 1 || len(s.Selected) != 0 {
		t.Fatalf("retry must only clear the selection: %+v", s)
	}
}

func TestResetAndRestart(t *testing.T) {
	e, cache, rep := newTestEngine(t, 3)
	e.Start()
	e.ToggleCell(4)
	e.Reset()
	e.Reset()
	if s := e.Snapshot(); s.Status != StatusIdle || s.RunID != "" || s.TimeRemaining != 120 {
		t.Fatalf("expected idle after reset: %+v", s)
	}
	if cache.deactivations != 1 {
		t.Fatalf("expected one cache deactivation, got %d", cache.deactivations)
	}
	if !e.Start() {
		t.Fatalf("restart failed")
	}
	if e.Start() {
		t.Fatalf("start must only transition from idle")
	}
	if got := e.Snapshot().RunID; got != "run-2" {
		t.Fatalf("expected fresh run id, got %q", got)
	}

	e.Close()
	term := rep.terminal()
	if len(term) != 1 || term[0].Reason != ReasonAbandoned || term[0].RunID != "run-1" {
		t.Fatalf("expected one abandoned summary for run-1: %+v", term)
	}
	if len(term[0].SelectedCells) != 1 {
		t.Fatalf("abandoned summary should carry the selection")
	}
}

func TestSetModeChangesScope(t *testing.T) {
	e, cache, _ := newTestEngine(t, 3)
	defer e.Close()
	e.Start()
	e.SetMode("daily")
	if e.Snapshot().Status != StatusIdle {
		t.Fatalf("mode change must reset the run")
	}
	e.Start()
	last := cache.activations[len(cache.activations)-1]
	if last != "daily/test-set/run-2" {
		t.Fatalf("unexpected scope %q", last)
	}
}

func TestStartWithEmptyPool(t *testing.T) {
	e := NewEngine(newFakeCache(), nil)
	defer e.Close()
	if e.Start() {
		t.Fatalf("start with empty pool must fail")
	}
	if e.Snapshot().HasChallenge {
		t.Fatalf("empty pool has no challenge")
	}
}

func TestSubscribeReceivesSnapshots(t *testing.T) {
	e, cache, _ := newTestEngine(t, 3)
	defer e.Close()
	cache.progress = 0.5

	var mu sync.Mutex
	var got []Snapshot
	unsubscribe := e.Subscribe(func(s Snapshot) {
		mu.Lock()
		got = append(got, s)
		mu.Unlock()
	})
	e.Start()
	e.ToggleCell(4)
	unsubscribe()
	e.ToggleCell(0)

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(got))
	}
	if got[1].WarmupPercent != 50 || !got[1].IsSelected(4) {
		t.Fatalf("unexpected snapshot: %+v", got[1])
	}
}

func TestReporterFailureIsLogged(t *testing.T) {
	var buf bytes.Buffer
	rep := &collector{err: errors.New("store offline")}
	e := NewEngine(newFakeCache(), rep, WithLogger(telemetry.NewWriterLogger(&buf)))
	e.SetPool(diagonalPool(2))
	e.Start()
	solve(e)
	e.Close()
	if !strings.Contains(buf.String(), "session.report_failed") {
		t.Fatalf("expected report failure log, got %s", buf.String())
	}
	if e.Snapshot().Status != StatusSuccess {
		t.Fatalf("reporter failure must not affect the run")
	}
}

func TestReportBufferOption(t *testing.T) {
	e := NewEngine(newFakeCache(), &collector{}, WithReportBuffer(3))
	defer e.Close()
	if got := cap(e.reports.ch); got != 3 {
		t.Fatalf("expected report buffer of 3, got %d", got)
	}

	d := NewEngine(newFakeCache(), &collector{}, WithReportBuffer(0))
	defer d.Close()
	if got := cap(d.reports.ch); got != defaultReportBuffer {
		t.Fatalf("expected default report buffer, got %d", got)
	}
}

func TestRunClockTicks(t *testing.T) {
	e, _, _ := newTestEngine(t, 3)
	defer e.Close()
	e.Start()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		e.RunClock(ctx, 2*time.Millisecond)
		close(done)
	}()
	deadline := time.Now().Add(2 * time.Second)
	for e.Snapshot().TimeRemaining > 115 {
		if time.Now().After(deadline) {
			t.Fatalf("clock did not tick")
		}
		time.Sleep(time.Millisecond)
	}
	cancel()
	<-done
}
