package state

import (
	"context"
	"time"
)

type Store interface {
	EnsureSchema(ctx context.Context) error
	RecordSubmission(ctx context.Context, sub Submission) error
	FinishRun(ctx context.Context, res RunResult) error
	GetChallengeProgressMap(ctx context.Context, setID string) (map[string]ChallengeProgress, error)
	SaveSettings(ctx context.Context, values map[string]string) error
	LoadSettings(ctx context.Context) (map[string]string, error)
	GetSummary(ctx context.Context) (Summary, error)
	GetLastRun(ctx context.Context) (*LastRun, error)
	TopRuns(ctx context.Context, setID string, limit int) ([]RunRecord, error)
	Close() error
}

// Submission is one evaluated selection within a run.
type Submission struct {
	RunID         string
	SetID         string
	Mode          string
	ChallengeID   string
	Status        string
	Passed        bool
	Score         int
	TotalScore    int
	Streak        int
	CorrectCount  int
	Missing       int
	Extra         int
	SelectedCells []int
	TimeRemaining int
	Completed     int
	Attempts      int
	StartTS       time.Time
	At            time.Time
}

// RunResult closes a run.
type RunResult struct {
	RunID           string
	SetID           string
	Mode            string
	Reason          string
	TotalScore      int
	Completed       int
	Attempts        int
	AccuracyPercent float64
	DurationMS      int64
	StartTS         time.Time
	FinishedTS      time.Time
}

type Summary struct {
	Runs          int
	FinishedRuns  int
	CompletedRuns int
	Attempts      int
	Solved        int
	BestScore     int
}

type LastRun struct {
	RunID      string
	SetID      string
	Mode       string
	StartTS    time.Time
	TotalScore int
	Completed  int
	Attempts   int
	Finished   bool
	Reason     string
}

type RunRecord struct {
	RunID           string
	SetID           string
	Mode            string
	TotalScore      int
	Completed       int
	Attempts        int
	BestStreak      int
	AccuracyPercent float64
	DurationMS      int64
	Reason          string
	StartTS         time.Time
}

type ChallengeProgress struct {
	SetID        string
	ChallengeID  string
	SolvedCount  int
	AttemptCount int
	BestScore    int
	LastPlayedTS time.Time
	LastSolvedTS time.Time
}
