package grading

// Rules configures the per-challenge score formula.
type Rules struct {
	BasePoints            int     `json:"base_points"`
	PerCorrectPoints      int     `json:"per_correct_points"`
	MissingPenaltyPoints  int     `json:"missing_penalty_points"`
	ExtraPenaltyPoints    int     `json:"extra_penalty_points"`
	CompletionBonusPoints int     `json:"completion_bonus_points"`
	StreakMultiplier      float64 `json:"streak_multiplier"`
}

// DefaultRules matches the builtin-core set.
func DefaultRules() Rules {
	return Rules{
		BasePoints:            50,
		PerCorrectPoints:      20,
		MissingPenaltyPoints:  10,
		ExtraPenaltyPoints:    10,
		CompletionBonusPoints: 40,
		StreakMultiplier:      1.05,
	}
}

// Evaluation compares a selection against the correct-cell set.
type Evaluation struct {
	CorrectCount int `json:"correct_count"`
	Missing      int `json:"missing"`
	Extra        int `json:"extra"`
}

// Perfect reports whether nothing was missed and nothing extra was selected.
func (e Evaluation) Perfect() bool { return e.Missing == 0 && e.Extra == 0 }

type Request struct {
	Rules        Rules
	CorrectCells []int
	Selected     []int
	// Streak is the streak before this submission.
	Streak int
}

type Result struct {
	Evaluation Evaluation `json:"evaluation"`
	Passed     bool       `json:"passed"`
	Score      Score      `json:"score"`
	NextStreak int        `json:"next_streak"`
}

type Score struct {
	ChallengePoints  int          `json:"challenge_points"`
	CompletionPoints int          `json:"completion_points,omitempty"`
	Multiplier       float64      `json:"multiplier"`
	TotalPoints      int          `json:"total_points"`
	Breakdown        []ScoreDelta `json:"breakdown,omitempty"`
}

type ScoreDelta struct {
	Kind        string `json:"kind"`
	Points      int    `json:"points"`
	Description string `json:"description"`
}
