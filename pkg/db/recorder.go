package db

import (
	"context"
	"errors"
	"time"

	"github.com/dtnitsch/sutta-concepts/pkg/pipeline"
)

// Recorder writes pipeline runs to the ledger. It implements
// pipeline.Observer.
type Recorder struct {
	db  *DB
	now func() time.Time
}

func NewRecorder(db *DB) *Recorder {
	return &Recorder{db: db, now: time.Now}
}

func (r *Recorder) BeforeRun(_ context.Context, info pipeline.RunInfo) error {
	return r.db.StartRun(info.RunID, info.Stage, info.Fingerprint, info.StartedAt, info.Pending)
}

func (r *Recorder) AfterItem(_ context.Context, result pipeline.ItemResult) error {
	if result.Outcome != pipeline.OutcomeSkipped {
		return nil
	}
	kind, _ := pipeline.SkipKind(result.Err)
	return r.db.AddSkip(result.RunID, result.ItemID, kind, result.Err.Error())
}

func (r *Recorder) AfterRun(_ context.Context, summary pipeline.Summary, runErr error) error {
	res := RunResult{
		FinishedAt: r.now(),
		Status:     RunStatus(summary, runErr),
		Total:      summary.Total,
		Succeeded:  summary.Succeeded,
		Skipped:    summary.Skipped,
		AbortedAt:  summary.AbortedAt,
	}
	if runErr != nil {
		res.Error = runErr.Error()
	}
	return r.db.FinishRun(summary.RunID, res)
}

// RunStatus maps a run outcome to a ledger status.
func RunStatus(summary pipeline.Summary, runErr error) string {
	switch {
	case summary.Aborted:
		return StatusAborted
	case errors.Is(runErr, context.Canceled), errors.Is(runErr, context.DeadlineExceeded):
		return StatusCancelled
	case runErr != nil:
		return StatusFailed
	default:
		return StatusCompleted
	}
}
