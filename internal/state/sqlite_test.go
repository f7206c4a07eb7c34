package state

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLite(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if err := store.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	return store
}

func TestRecordSubmissionAndProgress(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	start := time.Date(2026, time.January, 1, 12, 0, 0, 0, time.UTC)

	subs := []Submission{
		{RunID: "run-1", SetID: "builtin-core", Mode: "classic", ChallengeID: "core-001", Status: "error", Missing: 1, CorrectCount: 2, SelectedCells: []int{0, 4}, Attempts: 1, StartTS: start, At: start.Add(5 * time.Second)},
		{RunID: "run-1", SetID: "builtin-core", Mode: "classic", ChallengeID: "core-001", Status: "success", Passed: true, Score: 150, TotalScore: 150, Streak: 1, CorrectCount: 3, SelectedCells: []int{0, 4, 8}, Completed: 1, Attempts: 2, StartTS: start, At: start.Add(9 * time.Second)},
		{RunID: "run-1", SetID: "builtin-core", Mode: "classic", ChallengeID: "core-002", Status: "success", Passed: true, Score: 158, TotalScore: 308, Streak: 2, CorrectCount: 4, Completed: 2, Attempts: 3, StartTS: start, At: start.Add(15 * time.Second)},
	}
	for _, sub := range subs {
		if err := store.RecordSubmission(ctx, sub); err != nil {
			t.Fatalf("record submission: %v", err)
		}
	}

	progress, err := store.GetChallengeProgressMap(ctx, "builtin-core")
	if err != nil {
		t.Fatalf("progress map: %v", err)
	}
	p := progress["core-001"]
	if p.SolvedCount != 1 || p.AttemptCount != 2 || p.BestScore != 150 {
		t.Fatalf("unexpected progress: %+v", p)
	}
	if !p.LastSolvedTS.Equal(start.Add(9 * time.Second)) {
		t.Fatalf("unexpected last solved ts: %s", p.LastSolvedTS)
	}

	last, err := store.GetLastRun(ctx)
	if err != nil {
		t.Fatalf("last run: %v", err)
	}
	if last == nil || last.RunID != "run-1" || last.TotalScore != 308 || last.Completed != 2 || last.Attempts != 3 || last.Finished {
		t.Fatalf("unexpected last run: %+v", last)
	}
}

func TestFinishRunIsOneShot(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	start := time.Date(2026, time.January, 2, 8, 0, 0, 0, time.UTC)

	if err := store.FinishRun(ctx, RunResult{RunID: "run-a", SetID: "s", Mode: "classic", Reason: "time_expired", TotalScore: 90, Completed: 1, Attempts: 4, AccuracyPercent: 25, DurationMS: 120000, StartTS: start}); err != nil {
		t.Fatalf("finish run: %v", err)
	}
	if err := store.FinishRun(ctx, RunResult{RunID: "run-a", SetID: "s", Reason: "abandoned", TotalScore: 1}); err != nil {
		t.Fatalf("finish run twice: %v", err)
	}
	if err := store.FinishRun(ctx, RunResult{RunID: "run-b", SetID: "s", Mode: "daily", Reason: "completed", TotalScore: 400, Completed: 3, Attempts: 3, AccuracyPercent: 100, StartTS: start.Add(time.Hour)}); err != nil {
		t.Fatalf("finish run b: %v", err)
	}

	sum, err := store.GetSummary(ctx)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if sum.Runs != 2 || sum.FinishedRuns != 2 || sum.CompletedRuns != 1 || sum.Solved != 4 || sum.Attempts != 7 || sum.BestScore != 400 {
		t.Fatalf("unexpected summary: %+v", sum)
	}

	top, err := store.TopRuns(ctx, "", 5)
	if err != nil {
		t.Fatalf("top runs: %v", err)
	}
	if len(top) != 2 || top[0].RunID != "run-b" || top[1].Reason != "time_expired" || top[1].TotalScore != 90 {
		t.Fatalf("unexpected top runs: %+v", top)
	}
	filtered, err := store.TopRuns(ctx, "other", 5)
	if err != nil {
		t.Fatalf("top runs filtered: %v", err)
	}
	if len(filtered) != 0 {
		t.Fatalf("expected no runs for other set")
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.SaveSettings(ctx, map[string]string{"last_set": "builtin-core", "mode": "classic"}); err != nil {
		t.Fatalf("save settings: %v", err)
	}
	if err := store.SaveSettings(ctx, map[string]string{"mode": "daily"}); err != nil {
		t.Fatalf("save settings update: %v", err)
	}
	got, err := store.LoadSettings(ctx)
	if err != nil {
		t.Fatalf("load settings: %v", err)
	}
	if got["last_set"] != "builtin-core" || got["mode"] != "daily" {
		t.Fatalf("unexpected settings: %#v", got)
	}
}

func TestEmptyStore(t *testing.T) {
	store := newTestStore(t)
	last, err := store.GetLastRun(context.Background())
	if err != nil || last != nil {
		t.Fatalf("expected nil last run, got %+v %v", last, err)
	}
	if err := store.RecordSubmission(context.Background(), Submission{}); err == nil {
		t.Fatalf("expected error for missing run id")
	}
}
