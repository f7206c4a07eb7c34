package app

import (
	"context"
	"fmt"
	"math"

	"griddojo/internal/session"
	"griddojo/internal/state"
)

// storeReporter persists session reports. Submissions become submission rows
// and terminal reports close the run.
type storeReporter struct {
	store runRecorder
}

func newStoreReporter(store runRecorder) *storeReporter {
	return &storeReporter{store: store}
}

func (r *storeReporter) Report(ctx context.Context, rep session.Report) error {
	if rep.Submission {
		sub := state.Submission{
			RunID:         rep.RunID,
			SetID:         rep.SetID,
			Mode:          rep.Mode,
			ChallengeID:   rep.ChallengeID,
			Status:        string(rep.Status),
			Passed:        rep.Status == session.StatusSuccess,
			Score:         rep.Score,
			TotalScore:    rep.TotalScore,
			Streak:        rep.Streak,
			CorrectCount:  rep.CorrectCount,
			Missing:       rep.Missing,
			Extra:         rep.Extra,
			SelectedCells: rep.SelectedCells,
			TimeRemaining: rep.TimeRemainingSeconds,
			Completed:     rep.CompletedChallenges,
			Attempts:      rep.TotalAttempts,
			StartTS:       rep.StartedAt,
			At:            rep.At,
		}
		if err := r.store.RecordSubmission(ctx, sub); err != nil {
			return fmt.Errorf("record submission %s: %w", rep.ChallengeID, err)
		}
	}
	if !rep.Terminal {
		return nil
	}

	res := state.RunResult{
		RunID:      rep.RunID,
		SetID:      rep.SetID,
		Mode:       rep.Mode,
		Reason:     rep.Reason,
		TotalScore: rep.TotalScore,
		Completed:  rep.CompletedChallenges,
		Attempts:   rep.TotalAttempts,
		StartTS:    rep.StartedAt,
		FinishedTS: rep.At,
	}
	if sum := rep.SessionSummary; sum != nil {
		res.AccuracyPercent = sum.AccuracyPercent
		res.DurationMS = sum.DurationMS
	} else {
		res.AccuracyPercent = accuracyPercent(rep.CompletedChallenges, rep.TotalAttempts)
		if !rep.StartedAt.IsZero() {
			res.DurationMS = rep.At.Sub(rep.StartedAt).Milliseconds()
		}
	}
	if err := r.store.FinishRun(ctx, res); err != nil {
		return fmt.Errorf("finish run %s: %w", rep.RunID, err)
	}
	return nil
}

func accuracyPercent(completed, attempts int) float64 {
	if attempts <= 0 {
		return 0
	}
	return math.Round(float64(completed)/float64(attempts)*10000) / 100
}
