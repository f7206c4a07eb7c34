package app

import (
	"context"

	"griddojo/internal/state"
)

type runRecorder interface {
	RecordSubmission(ctx context.Context, sub state.Submission) error
	FinishRun(ctx context.Context, res state.RunResult) error
}

var _ runRecorder = (*state.SQLiteStore)(nil)
