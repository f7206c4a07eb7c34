package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection serialises writers.
	db.SetMaxOpenConns(1)
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS session_runs (
			run_id TEXT PRIMARY KEY,
			set_id TEXT NOT NULL,
			mode TEXT NOT NULL DEFAULT 'classic',
			start_ts TEXT NOT NULL,
			total_score INTEGER NOT NULL DEFAULT 0,
			completed INTEGER NOT NULL DEFAULT 0,
			attempts INTEGER NOT NULL DEFAULT 0,
			best_streak INTEGER NOT NULL DEFAULT 0,
			finished INTEGER NOT NULL DEFAULT 0,
			reason TEXT NOT NULL DEFAULT '',
			accuracy_percent REAL NOT NULL DEFAULT 0,
			duration_ms INTEGER NOT NULL DEFAULT 0,
			finished_ts TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE TABLE IF NOT EXISTS submissions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			challenge_id TEXT NOT NULL,
			status TEXT NOT NULL,
			passed INTEGER NOT NULL,
			score INTEGER NOT NULL DEFAULT 0,
			correct_count INTEGER NOT NULL DEFAULT 0,
			missing INTEGER NOT NULL DEFAULT 0,
			extra INTEGER NOT NULL DEFAULT 0,
			selected_json TEXT NOT NULL DEFAULT '[]',
			time_remaining INTEGER NOT NULL DEFAULT 0,
			submitted_ts TEXT NOT NULL,
			FOREIGN KEY(run_id) REFERENCES session_runs(run_id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_submissions_run ON submissions(run_id);`,
		`CREATE TABLE IF NOT EXISTS challenge_progress (
			set_id TEXT NOT NULL,
			challenge_id TEXT NOT NULL,
			solved_count INTEGER NOT NULL DEFAULT 0,
			attempt_count INTEGER NOT NULL DEFAULT 0,
			best_score INTEGER NOT NULL DEFAULT 0,
			last_played_ts TEXT NOT NULL DEFAULT '',
			last_solved_ts TEXT NOT NULL DEFAULT '',
			PRIMARY KEY(set_id, challenge_id)
		);`,
		`CREATE TABLE IF NOT EXISTS app_settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func ensureRun(ctx context.Context, ex execer, runID, setID, mode string, start time.Time) error {
	if start.IsZero() {
		start = time.Now()
	}
	_, err := ex.ExecContext(ctx,
		`INSERT INTO session_runs(run_id, set_id, mode, start_ts) VALUES(?,?,?,?)
		ON CONFLICT(run_id) DO NOTHING`,
		runID,
		setID,
		strings.TrimSpace(mode),
		start.UTC().Format(timeLayout),
	)
	return err
}

func (s *SQLiteStore) RecordSubmission(ctx context.Context, sub Submission) (err error) {
	if strings.TrimSpace(sub.RunID) == "" {
		return fmt.Errorf("record submission: run id is required")
	}
	at := sub.At
	if at.IsZero() {
		at = time.Now()
	}
	selected, err := json.Marshal(nonNilInts(sub.SelectedCells))
	if err != nil {
		return fmt.Errorf("record submission: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = ensureRun(ctx, tx, sub.RunID, sub.SetID, sub.Mode, sub.StartTS); err != nil {
		return fmt.Errorf("record submission run: %w", err)
	}
	if _, err = tx.ExecContext(ctx,
		`UPDATE session_runs
		SET total_score = ?, completed = ?, attempts = ?, best_streak = MAX(best_streak, ?)
		WHERE run_id = ?`,
		sub.TotalScore, sub.Completed, sub.Attempts, sub.Streak, sub.RunID,
	); err != nil {
		return fmt.Errorf("record submission totals: %w", err)
	}
	if _, err = tx.ExecContext(ctx,
		`INSERT INTO submissions(run_id, challenge_id, status, passed, score, correct_count, missing, extra, selected_json, time_remaining, submitted_ts)
		VALUES(?,?,?,?,?,?,?,?,?,?,?)`,
		sub.RunID,
		sub.ChallengeID,
		sub.Status,
		ifThen(sub.Passed, 1, 0),
		sub.Score,
		sub.CorrectCount,
		sub.Missing,
		sub.Extra,
		string(selected),
		sub.TimeRemaining,
		at.UTC().Format(timeLayout),
	); err != nil {
		return fmt.Errorf("record submission row: %w", err)
	}

	atRaw := at.UTC().Format(timeLayout)
	solvedTS := ""
	if sub.Passed {
		solvedTS = atRaw
	}
	if _, err = tx.ExecContext(ctx, `
		INSERT INTO challenge_progress(set_id, challenge_id, solved_count, attempt_count, best_score, last_played_ts, last_solved_ts)
		VALUES(?, ?, ?, 1, ?, ?, ?)
		ON CONFLICT(set_id, challenge_id) DO UPDATE SET
			solved_count = challenge_progress.solved_count + excluded.solved_count,
			attempt_count = challenge_progress.attempt_count + 1,
			best_score = MAX(challenge_progress.best_score, excluded.best_score),
			last_played_ts = excluded.last_played_ts,
			last_solved_ts = CASE WHEN excluded.last_solved_ts = '' THEN challenge_progress.last_solved_ts ELSE excluded.last_solved_ts END
	`,
		sub.SetID,
		sub.ChallengeID,
		ifThen(sub.Passed, 1, 0),
		sub.Score,
		atRaw,
		solvedTS,
	); err != nil {
		return fmt.Errorf("record challenge progress: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return err
	}
	return nil
}

func (s *SQLiteStore) FinishRun(ctx context.Context, res RunResult) error {
	if strings.TrimSpace(res.RunID) == "" {
		return fmt.Errorf("finish run: run id is required")
	}
	finished := res.FinishedTS
	if finished.IsZero() {
		finished = time.Now()
	}
	if err := ensureRun(ctx, s.db, res.RunID, res.SetID, res.Mode, res.StartTS); err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	// A run finishes once; later calls are ignored.
	_, err := s.db.ExecContext(ctx, `
		UPDATE session_runs
		SET finished = 1, reason = ?, total_score = ?, completed = ?, attempts = ?,
			accuracy_percent = ?, duration_ms = ?, finished_ts = ?
		WHERE run_id = ? AND finished = 0
	`,
		res.Reason,
		res.TotalScore,
		res.Completed,
		res.Attempts,
		res.AccuracyPercent,
		max64(0, res.DurationMS),
		finished.UTC().Format(timeLayout),
		res.RunID,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetChallengeProgressMap(ctx context.Context, setID string) (map[string]ChallengeProgress, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT set_id, challenge_id, solved_count, attempt_count, best_score, last_played_ts, last_solved_ts
		FROM challenge_progress
		WHERE set_id = ?
	`, setID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]ChallengeProgress{}
	for rows.Next() {
		var (
			p             ChallengeProgress
			playedRaw     string
			lastSolvedRaw string
		)
		if err := rows.Scan(&p.SetID, &p.ChallengeID, &p.SolvedCount, &p.AttemptCount, &p.BestScore, &playedRaw, &lastSolvedRaw); err != nil {
			return nil, err
		}
		p.LastPlayedTS = parseTS(playedRaw)
		p.LastSolvedTS = parseTS(lastSolvedRaw)
		out[p.ChallengeID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *SQLiteStore) SaveSettings(ctx context.Context, values map[string]string) error {
	for k, v := range values {
		if _, err := s.db.ExecContext(ctx, `
			INSERT INTO app_settings(key, value) VALUES(?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value
		`, k, v); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) LoadSettings(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM app_settings`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *SQLiteStore) GetSummary(ctx context.Context) (Summary, error) {
	var out Summary
	row := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*) as runs,
			COALESCE(SUM(finished),0) as finished_runs,
			COALESCE(SUM(CASE WHEN reason = 'completed' THEN 1 ELSE 0 END),0) as completed_runs,
			COALESCE(SUM(attempts),0) as attempts,
			COALESCE(SUM(completed),0) as solved,
			COALESCE(MAX(total_score),0) as best_score
		FROM session_runs
	`)
	if err := row.Scan(&out.Runs, &out.FinishedRuns, &out.CompletedRuns, &out.Attempts, &out.Solved, &out.BestScore); err != nil {
		return Summary{}, err
	}
	return out, nil
}

func (s *SQLiteStore) GetLastRun(ctx context.Context) (*LastRun, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT run_id, set_id, mode, start_ts, total_score, completed, attempts, finished, reason
		FROM session_runs
		ORDER BY start_ts DESC, rowid DESC
		LIMIT 1
	`)
	var (
		out        LastRun
		startTSRaw string
		finished   int
	)
	if err := row.Scan(&out.RunID, &out.SetID, &out.Mode, &startTSRaw, &out.TotalScore, &out.Completed, &out.Attempts, &finished, &out.Reason); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	out.StartTS = parseTS(startTSRaw)
	out.Finished = finished == 1
	return &out, nil
}

// TopRuns returns the highest-scoring runs, optionally filtered by set.
func (s *SQLiteStore) TopRuns(ctx context.Context, setID string, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, set_id, mode, total_score, completed, attempts, best_streak, accuracy_percent, duration_ms, reason, start_ts
		FROM session_runs
		WHERE (? = '' OR set_id = ?)
		ORDER BY total_score DESC, start_ts ASC
		LIMIT ?
	`, setID, setID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]RunRecord, 0, limit)
	for rows.Next() {
		var (
			r        RunRecord
			startRaw string
		)
		if err := rows.Scan(&r.RunID, &r.SetID, &r.Mode, &r.TotalScore, &r.Completed, &r.Attempts, &r.BestStreak, &r.AccuracyPercent, &r.DurationMS, &r.Reason, &startRaw); err != nil {
			return nil, err
		}
		r.StartTS = parseTS(startRaw)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

const timeLayout = "2006-01-02T15:04:05Z07:00"

func parseTS(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	ts, err := time.Parse(timeLayout, raw)
	if err != nil {
		return time.Time{}
	}
	return ts
}

func nonNilInts(v []int) []int {
	if v == nil {
		return []int{}
	}
	return v
}

func ifThen(cond bool, yes, no int) int {
	if cond {
		return yes
	}
	return no
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
