package catalog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

const setFileName = "set.yaml"

type FSLoader struct{}

func NewLoader() *FSLoader { return &FSLoader{} }

// LoadSets reads every <root>/<dir>/set.yaml. Directories without a set file
// are skipped. Sets are returned sorted by id.
func (l *FSLoader) LoadSets(ctx context.Context, root string) ([]Set, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}

	sets := make([]Set, 0)
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !entry.IsDir() {
			continue
		}
		setPath := filepath.Join(root, entry.Name())
		setYAML := filepath.Join(setPath, setFileName)
		if _, err := os.Stat(setYAML); err != nil {
			continue
		}
		set, err := readSet(setYAML)
		if err != nil {
			return nil, fmt.Errorf("load set %s: %w", setPath, err)
		}
		set.Path = setPath
		if err := finishSet(&set); err != nil {
			return nil, fmt.Errorf("%s: %w", setYAML, err)
		}
		sets = append(sets, set)
	}

	sort.Slice(sets, func(i, j int) bool { return sets[i].SetID < sets[j].SetID })
	return sets, nil
}

// ParseSet decodes and finalises a single set document.
func ParseSet(b []byte) (Set, error) {
	var set Set
	if err := yaml.Unmarshal(b, &set); err != nil {
		return set, fmt.Errorf("parse set: %w", err)
	}
	if err := set.Validate(); err != nil {
		return set, fmt.Errorf("validate set: %w", err)
	}
	if err := finishSet(&set); err != nil {
		return set, err
	}
	return set, nil
}

func readSet(path string) (Set, error) {
	var set Set
	b, err := os.ReadFile(path)
	if err != nil {
		return set, err
	}
	if err := yaml.Unmarshal(b, &set); err != nil {
		return set, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := set.Validate(); err != nil {
		return set, fmt.Errorf("validate %s: %w", path, err)
	}
	return set, nil
}

func finishSet(set *Set) error {
	applySetDefaults(set)
	if set.Generator != nil {
		generated := Generate(*set.Generator, set.Defaults.GridSize)
		set.Challenges = append(set.Challenges, generated...)
	}
	seen := map[string]bool{}
	for i := range set.Challenges {
		applyChallengeDefaults(&set.Challenges[i], *set)
		c := set.Challenges[i]
		if seen[c.ChallengeID] {
			return fmt.Errorf("duplicate challenge_id %q after generation", c.ChallengeID)
		}
		seen[c.ChallengeID] = true
		if err := c.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func applySetDefaults(set *Set) {
	if set.Defaults.GridSize <= 0 {
		set.Defaults.GridSize = 3
	}
	if set.Defaults.DurationSeconds <= 0 {
		set.Defaults.DurationSeconds = 120
	}
	if set.Defaults.TimeBonusSeconds <= 0 {
		set.Defaults.TimeBonusSeconds = 3
	}
	if set.Defaults.TimePenaltySeconds <= 0 {
		set.Defaults.TimePenaltySeconds = 7
	}
	r := &set.Scoring
	if r.BasePoints == 0 && r.PerCorrectPoints == 0 && r.CompletionBonusPoints == 0 {
		r.BasePoints = 50
		r.PerCorrectPoints = 20
		r.MissingPenaltyPoints = 10
		r.ExtraPenaltyPoints = 10
		r.CompletionBonusPoints = 40
	}
	if r.StreakMultiplier == 0 {
		r.StreakMultiplier = 1.05
	}
}

func applyChallengeDefaults(c *Challenge, set Set) {
	if c.GridSize <= 0 {
		c.GridSize = set.Defaults.GridSize
	}
	c.CorrectCells = SortedCells(c.CorrectCells)
}

func (l *FSLoader) FindSet(sets []Set, setID string) (Set, error) {
	for _, s := range sets {
		if s.SetID == setID {
			return s, nil
		}
	}
	return Set{}, fmt.Errorf("set not found: %s", setID)
}

func (l *FSLoader) FindChallenge(set Set, challengeID string) (Challenge, error) {
	for _, c := range set.Challenges {
		if c.ChallengeID == challengeID {
			return c, nil
		}
	}
	return Challenge{}, fmt.Errorf("challenge not found: %s/%s", set.SetID, challengeID)
}
