package session

import (
	"time"

	"griddojo/internal/catalog"
	"griddojo/internal/grading"
	"griddojo/internal/hydrate"
)

type Status string

const (
	StatusIdle    Status = "idle"
	StatusPlaying Status = "playing"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

const (
	ReasonTimeExpired = "time_expired"
	ReasonCompleted   = "completed"
	ReasonAbandoned   = "abandoned"
)

// Config holds run timing. Zero fields fall back to DefaultConfig values.
type Config struct {
	DurationSeconds  int
	BonusSeconds     int
	PenaltySeconds   int
	EndlessThreshold int
}

func DefaultConfig() Config {
	return Config{
		DurationSeconds:  120,
		BonusSeconds:     3,
		PenaltySeconds:   7,
		EndlessThreshold: 30,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.DurationSeconds <= 0 {
		c.DurationSeconds = d.DurationSeconds
	}
	if c.BonusSeconds < 0 {
		c.BonusSeconds = d.BonusSeconds
	}
	if c.PenaltySeconds < 0 {
		c.PenaltySeconds = d.PenaltySeconds
	}
	if c.EndlessThreshold <= 0 {
		c.EndlessThreshold = d.EndlessThreshold
	}
	return c
}

// Pool is the challenge definition set a run plays through.
type Pool struct {
	SetID      string
	Challenges []catalog.Challenge
	Rules      grading.Rules
	// Timing overrides the engine config when non-zero.
	Timing Config
}

// Report is a fire-and-forget progress summary.
type Report struct {
	RunID                string `json:"run_id"`
	SetID                string `json:"set_id"`
	Mode                 string `json:"mode"`
	ChallengeID          string `json:"challenge_id,omitempty"`
	Status               Status `json:"status"`
	Score                int    `json:"score"`
	TotalScore           int    `json:"total_score"`
	Streak               int    `json:"streak"`
	SelectedCells        []int  `json:"selected_cells,omitempty"`
	CorrectCount         int    `json:"correct_count"`
	Missing              int    `json:"missing"`
	Extra                int    `json:"extra"`
	TotalCorrect         int    `json:"total_correct"`
	TimeRemainingSeconds int    `json:"time_remaining_seconds"`
	CompletedChallenges  int    `json:"completed_challenges"`
	TotalAttempts        int    `json:"total_attempts"`
	// Submission is true for reports emitted by Submit.
	Submission     bool            `json:"submission"`
	Terminal       bool            `json:"terminal"`
	Reason         string          `json:"reason,omitempty"`
	SessionSummary *SessionSummary `json:"session_summary,omitempty"`
	StartedAt      time.Time       `json:"started_at"`
	At             time.Time       `json:"at"`
}

type SessionSummary struct {
	CompletedChallenges int     `json:"completed_challenges"`
	TotalChallenges     int     `json:"total_challenges"`
	AccuracyPercent     float64 `json:"accuracy_percent"`
	DurationMS          int64   `json:"duration_ms"`
	TotalScore          int     `json:"total_score"`
}

// Snapshot is the read model handed to renderers.
type Snapshot struct {
	RunID     string
	Mode      string
	SetID     string
	Status    Status
	StartedAt time.Time

	Index     int
	Total     int
	Endless   bool
	Finished  bool
	Challenge hydrate.Challenge
	// HasChallenge is false when the pool is empty.
	HasChallenge bool
	Pending      bool

	Selected   []int
	Evaluation *grading.Evaluation
	LastScore  *grading.Score

	TotalScore int
	Streak     int
	Multiplier float64

	TimeRemaining int
	TimeTotal     int
	TimerExpired  bool

	Completed int
	Attempts  int

	WarmupPercent  int
	WarmupComplete bool
}

// Active reports whether a run is in progress.
func (s Snapshot) Active() bool { return s.Status != StatusIdle }

// IsSelected reports whether cell index is in the selection.
func (s Snapshot) IsSelected(index int) bool {
	for _, v := range s.Selected {
		if v == index {
			return true
		}
	}
	return false
}
