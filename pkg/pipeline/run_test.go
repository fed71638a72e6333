package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/dtnitsch/sutta-concepts/models"
	"github.com/dtnitsch/sutta-concepts/pkg/jsonl"
)

type fakeStep struct {
	source, output, log string
	fingerprint         Fingerprint
	fail                map[string]error
	fields              map[string]any
	onProcess           func(id string)
	calls               []string
}

func newFakeStep(t *testing.T, ids ...int) *fakeStep {
	t.Helper()
	dir := t.TempDir()
	s := &fakeStep{
		source:      filepath.Join(dir, "source.jsonl"),
		output:      filepath.Join(dir, "output.jsonl"),
		log:         filepath.Join(dir, "skips.jsonl"),
		fingerprint: Fingerprint{"model_id": "model_a", "mode": "discovery"},
		fail:        map[string]error{},
	}
	for _, id := range ids {
		if err := jsonl.Append(s.source, map[string]any{"sutta_id": id, "body": "text"}); err != nil {
			t.Fatalf("failed to seed source: %v", err)
		}
	}
	return s
}

func (s *fakeStep) Name() string                { return "fake" }
func (s *fakeStep) SourcePath() string          { return s.source }
func (s *fakeStep) OutputPath() string          { return s.output }
func (s *fakeStep) LogPath() string             { return s.log }
func (s *fakeStep) IDField() string             { return "sutta_id" }
func (s *fakeStep) RunFingerprint() Fingerprint { return s.fingerprint }

func (s *fakeStep) ProcessItem(_ context.Context, item models.Item) (map[string]any, error) {
	id := item.String("sutta_id")
	s.calls = append(s.calls, id)
	if s.onProcess != nil {
		s.onProcess(id)
	}
	if err, ok := s.fail[id]; ok {
		return nil, err
	}
	out := map[string]any{"concepts": []any{}}
	for k, v := range s.fields {
		out[k] = v
	}
	return out, nil
}

type recordingSleeper struct {
	waits []time.Duration
}

func (r *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	r.waits = append(r.waits, d)
	return ctx.Err()
}

func readIDs(t *testing.T, path string, field string) []string {
	t.Helper()
	items, err := jsonl.ReadAll(path, jsonl.ScanOptions{})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		t.Fatalf("ReadAll(%s): %v", path, err)
	}
	var ids []string
	for _, item := range items {
		ids = append(ids, item.String(field))
	}
	return ids
}

func testOptions(sleeper *recordingSleeper) Options {
	return Options{
		Sleep: sleeper.Sleep,
		Now:   func() time.Time { return time.Date(2025, 3, 14, 9, 26, 0, 0, time.UTC) },
		RunID: "run-1",
	}
}

func TestRun_SuccessSkipAbort(t *testing.T) {
	step := newFakeStep(t, 1, 2, 3)
	step.fail["2"] = ErrEmptyInput
	step.fail["3"] = &RateLimitError{Provider: "gemini", Err: errors.New("429 RESOURCE_EXHAUSTED")}
	sleeper := &recordingSleeper{}

	summary, err := Run(context.Background(), step, testOptions(sleeper))
	if !IsAborted(err) {
		t.Fatalf("expected abort error, got %v", err)
	}
	var abort *AbortError
	if !errors.As(err, &abort) || abort.ItemID != "3" || abort.Completed != 2 {
		t.Errorf("unexpected abort detail: %+v", abort)
	}
	if !errors.Is(err, ErrRateLimited) {
		t.Errorf("abort error should wrap ErrRateLimited")
	}

	if got := readIDs(t, step.output, "sutta_id"); !slices.Equal(got, []string{"1"}) {
		t.Errorf("output ids = %v, want [1]", got)
	}
	skips, err := jsonl.ReadAll(step.log, jsonl.ScanOptions{})
	if err != nil {
		t.Fatalf("failed to read skip log: %v", err)
	}
	if len(skips) != 1 {
		t.Fatalf("expected 1 skip entry, got %d", len(skips))
	}
	if skips[0].String("item_id") != "2" || skips[0].String("reason") != "empty input" || skips[0].String("kind") != KindEmptyInput {
		t.Errorf("unexpected skip entry: %v", skips[0])
	}

	if summary.Succeeded != 1 || summary.Skipped != 1 || !summary.Aborted || summary.AbortedAt != "3" {
		t.Errorf("unexpected summary: %+v", summary)
	}
	if summary.Visited() != 3 {
		t.Errorf("Visited() = %d, want 3", summary.Visited())
	}
	want := []time.Duration{DefaultSuccessDelay, DefaultErrorDelay}
	if !slices.Equal(sleeper.waits, want) {
		t.Errorf("waits = %v, want %v", sleeper.waits, want)
	}
}

func TestRun_RecordCarriesIDFingerprintAndTimestamp(t *testing.T) {
	step := newFakeStep(t, 7)
	step.fields = map[string]any{"sutta_id": "bogus", "model_id": "other", "extra": "kept"}

	if _, err := Run(context.Background(), step, testOptions(&recordingSleeper{})); err != nil {
		t.Fatalf("Run: %v", err)
	}
	records, err := jsonl.ReadAll(step.output, jsonl.ScanOptions{})
	if err != nil || len(records) != 1 {
		t.Fatalf("expected one record, got %d (%v)", len(records), err)
	}
	rec := records[0]
	checks := map[string]string{
		"sutta_id":    "7",
		"model_id":    "model_a",
		"mode":        "discovery",
		"extra":       "kept",
		"time_of_run": "2025-03-14_09-26",
	}
	for key, want := range checks {
		if got := rec.String(key); got != want {
			t.Errorf("record[%q] = %q, want %q", key, got, want)
		}
	}
}

func TestRun_Idempotent(t *testing.T) {
	step := newFakeStep(t, 1, 2, 3)
	sleeper := &recordingSleeper{}

	first, err := Run(context.Background(), step, testOptions(sleeper))
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if first.Succeeded != 3 {
		t.Fatalf("first run succeeded = %d, want 3", first.Succeeded)
	}

	step.calls = nil
	second, err := Run(context.Background(), step, testOptions(sleeper))
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if len(step.calls) != 0 {
		t.Errorf("second run processed %v, want nothing", step.calls)
	}
	if second.Total != 0 || second.Selection.AlreadyProcessed != 3 {
		t.Errorf("unexpected second summary: %+v", second)
	}
	if got := readIDs(t, step.output, "sutta_id"); len(got) != 3 {
		t.Errorf("output has %d records, want 3", len(got))
	}
}

func TestRun_FingerprintIsolation(t *testing.T) {
	step := newFakeStep(t, 1, 2)
	if _, err := Run(context.Background(), step, testOptions(&recordingSleeper{})); err != nil {
		t.Fatalf("run A: %v", err)
	}

	step.calls = nil
	step.fingerprint = Fingerprint{"model_id": "model_b", "mode": "discovery"}
	if _, err := Run(context.Background(), step, testOptions(&recordingSleeper{})); err != nil {
		t.Fatalf("run B: %v", err)
	}
	if !slices.Equal(step.calls, []string{"1", "2"}) {
		t.Errorf("run B processed %v, want [1 2]", step.calls)
	}

	step.calls = nil
	step.fingerprint = Fingerprint{"model_id": "model_a", "mode": "discovery"}
	if _, err := Run(context.Background(), step, testOptions(&recordingSleeper{})); err != nil {
		t.Fatalf("run A again: %v", err)
	}
	if len(step.calls) != 0 {
		t.Errorf("rerun of A processed %v, want nothing", step.calls)
	}
}

func TestRun_ResumesAfterAbort(t *testing.T) {
	step := newFakeStep(t, 1, 2, 3)
	step.fail["2"] = &RateLimitError{Err: errors.New("quota")}

	if _, err := Run(context.Background(), step, testOptions(&recordingSleeper{})); !IsAborted(err) {
		t.Fatalf("expected abort, got %v", err)
	}

	delete(step.fail, "2")
	step.calls = nil
	if _, err := Run(context.Background(), step, testOptions(&recordingSleeper{})); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if !slices.Equal(step.calls, []string{"2", "3"}) {
		t.Errorf("resume processed %v, want [2 3]", step.calls)
	}
	if got := readIDs(t, step.output, "sutta_id"); !slices.Equal(got, []string{"1", "2", "3"}) {
		t.Errorf("output ids = %v", got)
	}
}

func TestRun_SkippedItemsAreRetried(t *testing.T) {
	step := newFakeStep(t, 1, 2)
	step.fail["1"] = &SchemaValidationError{Err: errors.New("missing concepts"), Raw: `{"oops":true}`}

	if _, err := Run(context.Background(), step, testOptions(&recordingSleeper{})); err != nil {
		t.Fatalf("first run: %v", err)
	}
	skips, err := jsonl.ReadAll(step.log, jsonl.ScanOptions{})
	if err != nil || len(skips) != 1 {
		t.Fatalf("expected one skip entry, got %d (%v)", len(skips), err)
	}
	if skips[0].String("kind") != KindSchemaValidation || skips[0].String("raw_output") != `{"oops":true}` {
		t.Errorf("unexpected skip entry: %v", skips[0])
	}

	delete(step.fail, "1")
	step.calls = nil
	if _, err := Run(context.Background(), step, testOptions(&recordingSleeper{})); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if !slices.Equal(step.calls, []string{"1"}) {
		t.Errorf("second run processed %v, want [1]", step.calls)
	}
}

func TestRun_GenericErrorIsSkipped(t *testing.T) {
	step := newFakeStep(t, 1, 2)
	step.fail["1"] = errors.New("connection reset")

	summary, err := Run(context.Background(), step, testOptions(&recordingSleeper{}))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Skipped != 1 || summary.Succeeded != 1 {
		t.Errorf("unexpected summary: %+v", summary)
	}
}

func TestRun_NoTrailingDelay(t *testing.T) {
	step := newFakeStep(t, 1)
	sleeper := &recordingSleeper{}
	if _, err := Run(context.Background(), step, testOptions(sleeper)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(sleeper.waits) != 0 {
		t.Errorf("expected no waits after the final item, got %v", sleeper.waits)
	}
}

func TestRun_DelaysCanBeDisabled(t *testing.T) {
	step := newFakeStep(t, 1, 2, 3)
	step.fail["1"] = ErrEmptyInput
	sleeper := &recordingSleeper{}
	opts := testOptions(sleeper)
	opts.SuccessDelay = NoDelay
	opts.ErrorDelay = NoDelay

	if _, err := Run(context.Background(), step, opts); err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := []time.Duration{0, 0}
	if !slices.Equal(sleeper.waits, want) {
		t.Errorf("waits = %v, want %v", sleeper.waits, want)
	}
}

func TestResolveDelay(t *testing.T) {
	tests := []struct {
		in, want time.Duration
	}{
		{0, DefaultSuccessDelay},
		{NoDelay, 0},
		{-5 * time.Second, 0},
		{250 * time.Millisecond, 250 * time.Millisecond},
	}
	for _, tt := range tests {
		if got := resolveDelay(tt.in, DefaultSuccessDelay); got != tt.want {
			t.Errorf("resolveDelay(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestRun_CancelledBetweenItems(t *testing.T) {
	step := newFakeStep(t, 1, 2, 3)
	step.fail["1"] = ErrEmptyInput
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	step.onProcess = func(id string) {
		if id == "1" {
			cancel()
		}
	}

	_, err := Run(ctx, step, testOptions(&recordingSleeper{}))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if IsAborted(err) {
		t.Errorf("cancellation must not be reported as an abort")
	}
	if !slices.Equal(step.calls, []string{"1"}) {
		t.Errorf("processed %v, want [1]", step.calls)
	}
	if got := readIDs(t, step.log, "item_id"); !slices.Equal(got, []string{"1"}) {
		t.Errorf("skip log ids = %v, want [1]", got)
	}
}

func TestRun_MissingSource(t *testing.T) {
	step := newFakeStep(t)
	_, err := Run(context.Background(), step, testOptions(&recordingSleeper{}))
	if err == nil {
		t.Fatal("expected error for missing source store")
	}
	if IsAborted(err) {
		t.Errorf("missing source must not be reported as an abort")
	}
}

type recordingObserver struct {
	NopObserver
	started  []RunInfo
	outcomes []Outcome
	finished []Summary
	runErrs  []error
}

func (o *recordingObserver) BeforeRun(_ context.Context, info RunInfo) error {
	o.started = append(o.started, info)
	return nil
}

func (o *recordingObserver) AfterItem(_ context.Context, result ItemResult) error {
	o.outcomes = append(o.outcomes, result.Outcome)
	return errors.New("observer failures are ignored")
}

func (o *recordingObserver) AfterRun(_ context.Context, summary Summary, runErr error) error {
	o.finished = append(o.finished, summary)
	o.runErrs = append(o.runErrs, runErr)
	return nil
}

func TestRun_NotifiesObservers(t *testing.T) {
	step := newFakeStep(t, 1, 2, 3)
	step.fail["2"] = ErrEmptyInput
	step.fail["3"] = &RateLimitError{Err: errors.New("429")}
	obs := &recordingObserver{}
	opts := testOptions(&recordingSleeper{})
	opts.Observers = []Observer{obs}

	_, runErr := Run(context.Background(), step, opts)

	if len(obs.started) != 1 || obs.started[0].Pending != 3 || obs.started[0].RunID != "run-1" {
		t.Errorf("unexpected BeforeRun calls: %+v", obs.started)
	}
	want := []Outcome{OutcomeSucceeded, OutcomeSkipped, OutcomeAborted}
	if !slices.Equal(obs.outcomes, want) {
		t.Errorf("outcomes = %v, want %v", obs.outcomes, want)
	}
	if len(obs.finished) != 1 || !obs.finished[0].Aborted {
		t.Errorf("unexpected AfterRun calls: %+v", obs.finished)
	}
	if obs.runErrs[0] != runErr {
		t.Errorf("AfterRun error = %v, want %v", obs.runErrs[0], runErr)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Outcome
	}{
		{"nil", nil, OutcomeSucceeded},
		{"empty input", ErrEmptyInput, OutcomeSkipped},
		{"wrapped empty input", errors.Wrap(ErrEmptyInput, "sutta 4"), OutcomeSkipped},
		{"schema", &SchemaValidationError{Err: errors.New("bad")}, OutcomeSkipped},
		{"generic", errors.New("boom"), OutcomeSkipped},
		{"rate limit", &RateLimitError{Err: errors.New("429")}, OutcomeAborted},
		{"wrapped rate limit", errors.Wrap(&RateLimitError{Err: errors.New("429")}, "extract"), OutcomeAborted},
		{"marked sentinel", errors.Wrap(ErrRateLimited, "quota"), OutcomeAborted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify(%v) = %s, want %s", tt.err, got, tt.want)
			}
		})
	}
}

func TestDelaysOrdering(t *testing.T) {
	if DefaultSuccessDelay >= DefaultErrorDelay {
		t.Errorf("success delay %v should be shorter than error delay %v", DefaultSuccessDelay, DefaultErrorDelay)
	}
}

func TestSleepContext_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	if err := SleepContext(ctx, time.Minute); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Errorf("SleepContext did not return promptly")
	}
}
