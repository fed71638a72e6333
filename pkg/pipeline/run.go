package pipeline

import (
	"context"
	"log/slog"
	"maps"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/dtnitsch/sutta-concepts/models"
	"github.com/dtnitsch/sutta-concepts/pkg/jsonl"
	"github.com/dtnitsch/sutta-concepts/pkg/store"
)

const (
	DefaultSuccessDelay = 500 * time.Millisecond
	DefaultErrorDelay   = 2 * time.Second

	// TimeOfRunField is stamped on every record written by a run unless the
	// step provides its own value.
	TimeOfRunField  = "time_of_run"
	TimeOfRunLayout = "2006-01-02_15-04"
)

// NoDelay disables a between-item delay in Options.
const NoDelay time.Duration = -1

// Options tune a single Run. The zero value uses the default delays, a
// discarding logger and a fresh run id. A negative delay (NoDelay) means
// no wait at all.
type Options struct {
	Logger       *slog.Logger
	SuccessDelay time.Duration
	ErrorDelay   time.Duration
	// Sleep waits between items. It must return early with ctx.Err() when
	// ctx is cancelled.
	Sleep     func(ctx context.Context, d time.Duration) error
	Now       func() time.Time
	RunID     string
	Observers []Observer
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	o.SuccessDelay = resolveDelay(o.SuccessDelay, DefaultSuccessDelay)
	o.ErrorDelay = resolveDelay(o.ErrorDelay, DefaultErrorDelay)
	if o.Sleep == nil {
		o.Sleep = SleepContext
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.RunID == "" {
		o.RunID = uuid.NewString()
	}
	return o
}

func resolveDelay(d, def time.Duration) time.Duration {
	switch {
	case d == 0:
		return def
	case d < 0:
		return 0
	default:
		return d
	}
}

// Summary reports what a run did.
type Summary struct {
	RunID     string
	Stage     string
	StartedAt time.Time
	Duration  time.Duration
	Selection store.Counts
	Total     int // pending items at start
	Succeeded int
	Skipped   int
	Aborted   bool
	AbortedAt string // id of the item that triggered the abort
}

// Visited is the number of items that reached a terminal state.
func (s Summary) Visited() int {
	n := s.Succeeded + s.Skipped
	if s.Aborted {
		n++
	}
	return n
}

// SleepContext blocks for d or until ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Run processes every pending item of step in source order.
//
// A nil error means the run completed, including runs with skipped items or
// nothing to do. An *AbortError means a rate-limit stopped the run. Other
// errors come from setup, store writes or cancellation of ctx. In every case
// the skip buffer has been flushed before Run returns.
func Run(ctx context.Context, step Step, opts Options) (Summary, error) {
	opts = opts.withDefaults()
	logger := opts.Logger.With("stage", step.Name(), "run_id", opts.RunID)
	fingerprint := step.RunFingerprint()

	summary := Summary{
		RunID:     opts.RunID,
		Stage:     step.Name(),
		StartedAt: opts.Now(),
	}

	items, counts, err := store.LoadUnprocessed(logger, step.SourcePath(), step.OutputPath(), step.IDField(), fingerprint)
	if err != nil {
		return summary, errors.Wrapf(err, "failed to select pending items for %s", step.Name())
	}
	summary.Selection = counts
	summary.Total = len(items)

	info := RunInfo{
		RunID:       opts.RunID,
		Stage:       step.Name(),
		Fingerprint: fingerprint,
		Pending:     len(items),
		StartedAt:   summary.StartedAt,
	}
	for _, obs := range opts.Observers {
		if err := obs.BeforeRun(ctx, info); err != nil {
			logger.Warn("Observer failed", "hook", "before_run", "error", err)
		}
	}

	if len(items) == 0 {
		logger.Info("No new items to process", "total", counts.Total, "already_processed", counts.AlreadyProcessed)
		summary.Duration = time.Since(summary.StartedAt)
		notifyAfterRun(ctx, logger, opts.Observers, summary, nil)
		return summary, nil
	}

	logger.Info("Starting run", "pending", len(items), "fingerprint", fingerprint)

	var skips store.SkipLog
	runErr := visit(ctx, logger, step, opts, items, &summary, &skips)

	if skips.Len() > 0 {
		n, flushErr := skips.Flush(step.LogPath())
		if flushErr != nil {
			flushErr = errors.Wrapf(flushErr, "failed to flush %d skip entries", skips.Len())
			logger.Error("Skip log flush failed", "path", step.LogPath(), "error", flushErr)
			if runErr == nil {
				runErr = flushErr
			} else {
				runErr = errors.WithSecondaryError(runErr, flushErr)
			}
		} else {
			logger.Info("Flushed skip log", "path", step.LogPath(), "entries", n)
		}
	}

	summary.Duration = time.Since(summary.StartedAt)
	switch {
	case summary.Aborted:
		logger.Error("Run aborted", "item_id", summary.AbortedAt, "succeeded", summary.Succeeded, "skipped", summary.Skipped, "error", runErr)
	case runErr != nil:
		logger.Error("Run stopped", "succeeded", summary.Succeeded, "skipped", summary.Skipped, "error", runErr)
	default:
		logger.Info("Run complete", "succeeded", summary.Succeeded, "skipped", summary.Skipped, "duration", summary.Duration)
	}
	notifyAfterRun(ctx, logger, opts.Observers, summary, runErr)
	return summary, runErr
}

func visit(ctx context.Context, logger *slog.Logger, step Step, opts Options, items []models.Item, summary *Summary, skips *store.SkipLog) error {
	idField := step.IDField()
	fingerprint := step.RunFingerprint()
	timeOfRun := summary.StartedAt.Format(TimeOfRunLayout)
	// An item that has started is never cancelled mid-call; cancellation is
	// observed between items.
	itemCtx := context.WithoutCancel(ctx)

	for i, item := range items {
		if err := ctx.Err(); err != nil {
			logger.Warn("Run cancelled", "remaining", len(items)-i)
			return err
		}
		itemID, _ := item.ID(idField)
		last := i == len(items)-1

		start := time.Now()
		fields, procErr := step.ProcessItem(itemCtx, item)
		result := ItemResult{
			RunID:    summary.RunID,
			Stage:    summary.Stage,
			ItemID:   itemID,
			Outcome:  Classify(procErr),
			Err:      procErr,
			Duration: time.Since(start),
		}

		switch result.Outcome {
		case OutcomeSucceeded:
			record := buildRecord(fields, idField, item[idField], fingerprint, timeOfRun)
			if err := jsonl.Append(step.OutputPath(), record); err != nil {
				return errors.Wrapf(err, "failed to append result for item %s", itemID)
			}
			summary.Succeeded++
			logger.Debug("Item processed", "item_id", itemID, "duration", result.Duration)
			notifyAfterItem(ctx, logger, opts.Observers, result)
			if last {
				return nil
			}
			if err := opts.Sleep(ctx, opts.SuccessDelay); err != nil {
				return err
			}

		case OutcomeAborted:
			summary.Aborted = true
			summary.AbortedAt = itemID
			notifyAfterItem(ctx, logger, opts.Observers, result)
			return &AbortError{
				RunID:     summary.RunID,
				ItemID:    itemID,
				Completed: summary.Succeeded + summary.Skipped,
				Err:       procErr,
			}

		default:
			kind, raw := SkipKind(procErr)
			skips.Add(models.SkipEntry{
				ItemID:    itemID,
				Kind:      kind,
				Reason:    procErr.Error(),
				RawOutput: raw,
				RunID:     summary.RunID,
				Time:      opts.Now().UTC().Format(time.RFC3339),
			})
			summary.Skipped++
			logger.Warn("Skipping item", "item_id", itemID, "kind", kind, "error", procErr)
			notifyAfterItem(ctx, logger, opts.Observers, result)
			if last {
				return nil
			}
			if err := opts.Sleep(ctx, opts.ErrorDelay); err != nil {
				return err
			}
		}
	}
	return nil
}

// buildRecord merges processor fields with the identifier and fingerprint.
// The identifier and fingerprint keys always win over processor output.
func buildRecord(fields map[string]any, idField string, id any, fingerprint Fingerprint, timeOfRun string) map[string]any {
	record := make(map[string]any, len(fields)+len(fingerprint)+2)
	maps.Copy(record, fields)
	if _, ok := record[TimeOfRunField]; !ok {
		record[TimeOfRunField] = timeOfRun
	}
	for k, v := range fingerprint {
		record[k] = v
	}
	record[idField] = id
	return record
}

func notifyAfterItem(ctx context.Context, logger *slog.Logger, observers []Observer, result ItemResult) {
	for _, obs := range observers {
		if err := obs.AfterItem(ctx, result); err != nil {
			logger.Warn("Observer failed", "hook", "after_item", "item_id", result.ItemID, "error", err)
		}
	}
}

func notifyAfterRun(ctx context.Context, logger *slog.Logger, observers []Observer, summary Summary, runErr error) {
	// Ledger writes must land even when the run was cancelled.
	ctx = context.WithoutCancel(ctx)
	for _, obs := range observers {
		if err := obs.AfterRun(ctx, summary, runErr); err != nil {
			logger.Warn("Observer failed", "hook", "after_run", "error", err)
		}
	}
}
