package grading

import (
	"fmt"
	"math"
)

type DefaultGrader struct{}

func NewGrader() *DefaultGrader { return &DefaultGrader{} }

func (g *DefaultGrader) Grade(req Request) Result {
	ev := Evaluate(req.CorrectCells, req.Selected)
	return Result{
		Evaluation: ev,
		Passed:     ev.Perfect(),
		Score:      ScoreBreakdown(req.Rules, ev, req.Streak),
		NextStreak: FoldStreak(req.Streak, ev),
	}
}

// Evaluate counts hits, misses and extras. Duplicate indices in either input
// count once.
func Evaluate(correct []int, selected []int) Evaluation {
	want := make(map[int]struct{}, len(correct))
	for _, c := range correct {
		want[c] = struct{}{}
	}
	got := make(map[int]struct{}, len(selected))
	for _, s := range selected {
		got[s] = struct{}{}
	}
	var ev Evaluation
	for s := range got {
		if _, ok := want[s]; ok {
			ev.CorrectCount++
		} else {
			ev.Extra++
		}
	}
	ev.Missing = len(want) - ev.CorrectCount
	return ev
}

// ComputeScore returns the points for one submission. streak is the value
// before this submission is folded in.
func ComputeScore(rules Rules, ev Evaluation, streak int) int {
	return ScoreBreakdown(rules, ev, streak).TotalPoints
}

func ScoreBreakdown(rules Rules, ev Evaluation, streak int) Score {
	raw := rules.BasePoints +
		ev.CorrectCount*rules.PerCorrectPoints -
		ev.Missing*rules.MissingPenaltyPoints -
		ev.Extra*rules.ExtraPenaltyPoints
	challenge := max(0, raw)

	completion := 0
	mult := 1.0
	if ev.Perfect() {
		completion = rules.CompletionBonusPoints
		mult = math.Pow(defaultFloat(rules.StreakMultiplier, 1), float64(max(0, streak)))
	}
	subtotal := challenge + completion
	total := int(math.Round(float64(subtotal) * mult))

	return Score{
		ChallengePoints:  challenge,
		CompletionPoints: completion,
		Multiplier:       mult,
		TotalPoints:      total,
		Breakdown: []ScoreDelta{
			{Kind: "base", Points: rules.BasePoints, Description: "Base points"},
			{Kind: "correct", Points: ev.CorrectCount * rules.PerCorrectPoints, Description: fmt.Sprintf("%d correct cells", ev.CorrectCount)},
			{Kind: "missing", Points: -ev.Missing * rules.MissingPenaltyPoints, Description: fmt.Sprintf("%d missed cells", ev.Missing)},
			{Kind: "extra", Points: -ev.Extra * rules.ExtraPenaltyPoints, Description: fmt.Sprintf("%d extra cells", ev.Extra)},
			{Kind: "floor", Points: challenge - raw, Description: "Challenge points never go below zero"},
			{Kind: "completion", Points: completion, Description: "Perfect selection bonus"},
			{Kind: "streak", Points: total - subtotal, Description: fmt.Sprintf("Streak x%.2f", mult)},
		},
	}
}

// FoldStreak returns prev+1 for a perfect evaluation and 0 otherwise.
func FoldStreak(prev int, ev Evaluation) int {
	if ev.Perfect() {
		return prev + 1
	}
	return 0
}

func defaultFloat(value, fallback float64) float64 {
	if value <= 0 {
		return fallback
	}
	return value
}
