package catalog

import (
	"fmt"
	"regexp"
	"sort"
)

const (
	SetKind                = "challenge_set"
	SupportedSchemaVersion = 1

	MinGridSize = 2
	MaxGridSize = 8
)

var idPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{2,63}$`)

type Set struct {
	Kind          string         `yaml:"kind"`
	SchemaVersion int            `yaml:"schema_version"`
	SetID         string         `yaml:"set_id"`
	Name          string         `yaml:"name"`
	Version       string         `yaml:"version"`
	DescriptionMD string         `yaml:"description_md"`
	Defaults      SetDefaults    `yaml:"defaults"`
	Scoring       ScoreRules     `yaml:"scoring"`
	Challenges    []Challenge    `yaml:"challenges"`
	Generator     *GeneratorSpec `yaml:"generator"`

	Path string `yaml:"-"`
}

type SetDefaults struct {
	GridSize           int `yaml:"grid_size"`
	DurationSeconds    int `yaml:"duration_seconds"`
	TimeBonusSeconds   int `yaml:"time_bonus_seconds"`
	TimePenaltySeconds int `yaml:"time_penalty_seconds"`
}

// ScoreRules mirrors grading.Rules in yaml form.
type ScoreRules struct {
	BasePoints            int     `yaml:"base_points"`
	PerCorrectPoints      int     `yaml:"per_correct_points"`
	MissingPenaltyPoints  int     `yaml:"missing_penalty_points"`
	ExtraPenaltyPoints    int     `yaml:"extra_penalty_points"`
	CompletionBonusPoints int     `yaml:"completion_bonus_points"`
	StreakMultiplier      float64 `yaml:"streak_multiplier"`
}

// Challenge is an immutable challenge descriptor. CorrectCells are row-major
// indices into a GridSize×GridSize grid.
type Challenge struct {
	ChallengeID  string `yaml:"challenge_id"`
	Title        string `yaml:"title"`
	PromptMD     string `yaml:"prompt_md"`
	Theme        string `yaml:"theme"`
	GridSize     int    `yaml:"grid_size"`
	CorrectCells []int  `yaml:"correct_cells"`
	Seed         *int64 `yaml:"seed"`
}

// GeneratorSpec appends Count procedurally generated challenges to a set.
type GeneratorSpec struct {
	Count      int      `yaml:"count"`
	Seed       int64    `yaml:"seed"`
	GridSize   int      `yaml:"grid_size"`
	MinCorrect int      `yaml:"min_correct"`
	MaxCorrect int      `yaml:"max_correct"`
	IDPrefix   string   `yaml:"id_prefix"`
	Themes     []string `yaml:"themes"`
}

func (c Challenge) CellCount() int { return c.GridSize * c.GridSize }

func (c Challenge) InRange(index int) bool {
	return index >= 0 && index < c.CellCount()
}

// SeedOr returns the challenge seed, or fallback when none is set.
func (c Challenge) SeedOr(fallback int64) int64 {
	if c.Seed == nil {
		return fallback
	}
	return *c.Seed
}

func (c Challenge) Validate() error {
	if !idPattern.MatchString(c.ChallengeID) {
		return fmt.Errorf("invalid challenge_id %q", c.ChallengeID)
	}
	if c.Title == "" {
		return fmt.Errorf("challenge %q: title is required", c.ChallengeID)
	}
	if c.GridSize < MinGridSize || c.GridSize > MaxGridSize {
		return fmt.Errorf("challenge %q: grid_size must be %d..%d", c.ChallengeID, MinGridSize, MaxGridSize)
	}
	if len(c.CorrectCells) == 0 {
		return fmt.Errorf("challenge %q: correct_cells must contain at least one cell", c.ChallengeID)
	}
	seen := map[int]bool{}
	for _, idx := range c.CorrectCells {
		if !c.InRange(idx) {
			return fmt.Errorf("challenge %q: correct cell %d out of range", c.ChallengeID, idx)
		}
		if seen[idx] {
			return fmt.Errorf("challenge %q: duplicate correct cell %d", c.ChallengeID, idx)
		}
		seen[idx] = true
	}
	return nil
}

func (s Set) Validate() error {
	if s.Kind != SetKind {
		return fmt.Errorf("kind must be %q", SetKind)
	}
	if s.SchemaVersion <= 0 {
		return fmt.Errorf("schema_version is required")
	}
	if s.SchemaVersion > SupportedSchemaVersion {
		return fmt.Errorf("unsupported set schema_version %d (max supported %d)", s.SchemaVersion, SupportedSchemaVersion)
	}
	if !idPattern.MatchString(s.SetID) {
		return fmt.Errorf("invalid set_id %q", s.SetID)
	}
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Version == "" {
		return fmt.Errorf("version is required")
	}
	if s.Scoring.StreakMultiplier != 0 && s.Scoring.StreakMultiplier < 1 {
		return fmt.Errorf("scoring.streak_multiplier must be >= 1")
	}
	if s.Scoring.BasePoints < 0 || s.Scoring.PerCorrectPoints < 0 || s.Scoring.MissingPenaltyPoints < 0 ||
		s.Scoring.ExtraPenaltyPoints < 0 || s.Scoring.CompletionBonusPoints < 0 {
		return fmt.Errorf("scoring points must be >= 0")
	}
	if s.Defaults.DurationSeconds < 0 || s.Defaults.TimeBonusSeconds < 0 || s.Defaults.TimePenaltySeconds < 0 {
		return fmt.Errorf("defaults seconds must be >= 0")
	}
	if len(s.Challenges) == 0 && s.Generator == nil {
		return fmt.Errorf("set must declare challenges or a generator")
	}
	if g := s.Generator; g != nil {
		if g.Count <= 0 {
			return fmt.Errorf("generator.count must be > 0")
		}
		if g.MinCorrect < 0 || (g.MaxCorrect > 0 && g.MaxCorrect < g.MinCorrect) {
			return fmt.Errorf("generator correct range is invalid")
		}
	}
	ids := map[string]bool{}
	for _, c := range s.Challenges {
		if c.ChallengeID == "" {
			return fmt.Errorf("challenges[].challenge_id is required")
		}
		if ids[c.ChallengeID] {
			return fmt.Errorf("duplicate challenge_id %q in set", c.ChallengeID)
		}
		ids[c.ChallengeID] = true
	}
	return nil
}

// SortedCells returns a sorted copy of cells.
func SortedCells(cells []int) []int {
	out := append([]int(nil), cells...)
	sort.Ints(out)
	return out
}
