package catalog

import "testing"

func TestSetValidateRejectsUnsupportedSchemaVersion(t *testing.T) {
	s := Set{
		Kind:          SetKind,
		SchemaVersion: SupportedSchemaVersion + 1,
		SetID:         "builtin-core",
		Name:          "x",
		Version:       "0.1.0",
		Challenges:    []Challenge{{ChallengeID: "abc"}},
	}
	if err := s.Validate(); err == nil {
		t.Fatalf("expected unsupported schema version error")
	}
}

func TestSetValidateRejectsDuplicateChallengeIDs(t *testing.T) {
	s := Set{
		Kind:          SetKind,
		SchemaVersion: 1,
		SetID:         "dupes",
		Name:          "x",
		Version:       "0.1.0",
		Challenges:    []Challenge{{ChallengeID: "abc"}, {ChallengeID: "abc"}},
	}
	if err := s.Validate(); err == nil {
		t.Fatalf("expected duplicate id error")
	}
}

func TestSetValidateRejectsWeakStreakMultiplier(t *testing.T) {
	s := Set{
		Kind:          SetKind,
		SchemaVersion: 1,
		SetID:         "weak",
		Name:          "x",
		Version:       "0.1.0",
		Scoring:       ScoreRules{StreakMultiplier: 0.5},
		Challenges:    []Challenge{{ChallengeID: "abc"}},
	}
	if err := s.Validate(); err == nil {
		t.Fatalf("expected multiplier error")
	}
}

func TestChallengeValidateRejectsDuplicateCells(t *testing.T) {
	c := Challenge{ChallengeID: "dup-cells", Title: "x", GridSize: 3, CorrectCells: []int{1, 1}}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected duplicate cell error")
	}
}

func TestGenerateIsDeterministic(t *testing.T) {
	spec := GeneratorSpec{Count: 5, Seed: 99, GridSize: 4, MinCorrect: 2, MaxCorrect: 4}
	a := Generate(spec, 3)
	b := Generate(spec, 3)
	if len(a) != 5 {
		t.Fatalf("expected 5 challenges, got %d", len(a))
	}
	for i := range a {
		if a[i].ChallengeID != b[i].ChallengeID || len(a[i].CorrectCells) != len(b[i].CorrectCells) {
			t.Fatalf("generation not deterministic at %d", i)
		}
		for j := range a[i].CorrectCells {
			if a[i].CorrectCells[j] != b[i].CorrectCells[j] {
				t.Fatalf("cells differ at %d/%d", i, j)
			}
		}
		if n := len(a[i].CorrectCells); n < 2 || n > 4 {
			t.Fatalf("correct count %d outside range", n)
		}
		if err := a[i].Validate(); err != nil {
			t.Fatalf("generated challenge invalid: %v", err)
		}
	}
}
