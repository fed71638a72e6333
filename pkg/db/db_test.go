package db

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/dtnitsch/sutta-concepts/models"
	"github.com/dtnitsch/sutta-concepts/pkg/jsonl"
	"github.com/dtnitsch/sutta-concepts/pkg/pipeline"
)

// setupTestDB returns an empty in-memory ledger.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	database := &DB{path: ":memory:"}
	var err error
	database.DB, err = connect(":memory:")
	if err != nil {
		t.Fatalf("failed to open ledger: %v", err)
	}
	if err := database.InitSchema(); err != nil {
		t.Fatalf("failed to create ledger tables: %v", err)
	}
	return database
}

func TestOpen_CreatesAndReopens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger", "sutta-concepts.db")
	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := db.StartRun("r1", "extract", map[string]string{"mode": "fixed"}, time.Now(), 3); err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	db.Close()

	db, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()
	if db.Path() != path {
		t.Errorf("Path() = %q", db.Path())
	}
	if _, err := db.GetRun("r1"); err != nil {
		t.Errorf("run lost across reopen: %v", err)
	}
}

func TestRunLifecycle(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	started := time.Date(2025, 3, 14, 9, 26, 53, 123456789, time.UTC)
	fp := map[string]string{"model_id": "gemini-2.0-flash", "mode": "discovery"}
	if err := db.StartRun("r1", "extract", fp, started, 10); err != nil {
		t.Fatalf("StartRun: %v", err)
	}

	run, err := db.GetRun("r1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.Status != StatusRunning || run.FinishedAt != nil || !run.StartedAt.Equal(started) {
		t.Errorf("unexpected running state: %+v", run)
	}
	if run.Fingerprint["model_id"] != "gemini-2.0-flash" || run.Fingerprint["mode"] != "discovery" {
		t.Errorf("fingerprint = %v", run.Fingerprint)
	}

	finished := started.Add(time.Minute)
	err = db.FinishRun("r1", RunResult{
		FinishedAt: finished,
		Status:     StatusAborted,
		Total:      10,
		Succeeded:  4,
		Skipped:    1,
		AbortedAt:  "6",
		Error:      "rate limit",
	})
	if err != nil {
		t.Fatalf("FinishRun: %v", err)
	}

	run, err = db.GetRun("r1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.Status != StatusAborted || run.Succeeded != 4 || run.Skipped != 1 || run.AbortedAt != "6" || run.Error != "rate limit" {
		t.Errorf("unexpected finished state: %+v", run)
	}
	if run.FinishedAt == nil || !run.FinishedAt.Equal(finished) {
		t.Errorf("FinishedAt = %v, want %v", run.FinishedAt, finished)
	}
}

func TestGetRun_NotFound(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	if _, err := db.GetRun("missing"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("GetRun: expected ErrRunNotFound, got %v", err)
	}
	if err := db.FinishRun("missing", RunResult{FinishedAt: time.Now(), Status: StatusCompleted}); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("FinishRun: expected ErrRunNotFound, got %v", err)
	}
}

func TestListRuns(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	// Fractional and whole seconds must still order correctly.
	starts := map[string]time.Time{
		"a": base,
		"b": base.Add(1500 * time.Millisecond),
		"c": base.Add(2 * time.Second),
	}
	for _, id := range []string{"b", "a", "c"} {
		if err := db.StartRun(id, "extract", map[string]string{}, starts[id], 0); err != nil {
			t.Fatalf("StartRun(%s): %v", id, err)
		}
	}

	tests := []struct {
		limit int
		want  []string
	}{
		{0, []string{"c", "b", "a"}},
		{2, []string{"c", "b"}},
	}
	for _, tt := range tests {
		runs, err := db.ListRuns(tt.limit)
		if err != nil {
			t.Fatalf("ListRuns(%d): %v", tt.limit, err)
		}
		var got []string
		for _, r := range runs {
			got = append(got, r.RunID)
		}
		if len(got) != len(tt.want) {
			t.Fatalf("ListRuns(%d) = %v, want %v", tt.limit, got, tt.want)
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("ListRuns(%d) = %v, want %v", tt.limit, got, tt.want)
				break
			}
		}
	}
}

func TestRunSkips(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	if err := db.StartRun("r1", "extract", nil, time.Now(), 2); err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	if err := db.AddSkip("r1", "2", pipeline.KindEmptyInput, "empty input"); err != nil {
		t.Fatalf("AddSkip: %v", err)
	}
	if err := db.AddSkip("r1", "5", pipeline.KindSchemaValidation, "schema validation failed"); err != nil {
		t.Fatalf("AddSkip: %v", err)
	}
	if err := db.AddSkip("unknown-run", "1", "x", "y"); err == nil {
		t.Error("expected foreign key violation for unknown run")
	}

	skips, err := db.GetRunSkips("r1")
	if err != nil {
		t.Fatalf("GetRunSkips: %v", err)
	}
	if len(skips) != 2 || skips[0].ItemID != "2" || skips[1].Kind != pipeline.KindSchemaValidation {
		t.Errorf("unexpected skips: %+v", skips)
	}
}

func TestRunStatus(t *testing.T) {
	tests := []struct {
		name    string
		summary pipeline.Summary
		err     error
		want    string
	}{
		{"completed", pipeline.Summary{}, nil, StatusCompleted},
		{"aborted", pipeline.Summary{Aborted: true}, &pipeline.AbortError{Err: pipeline.ErrRateLimited}, StatusAborted},
		{"cancelled", pipeline.Summary{}, context.Canceled, StatusCancelled},
		{"failed", pipeline.Summary{}, errors.New("disk full"), StatusFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RunStatus(tt.summary, tt.err); got != tt.want {
				t.Errorf("RunStatus = %q, want %q", got, tt.want)
			}
		})
	}
}

type ledgerStep struct {
	dir  string
	fail map[string]error
}

func (s ledgerStep) Name() string       { return "extract" }
func (s ledgerStep) SourcePath() string { return filepath.Join(s.dir, "source.jsonl") }
func (s ledgerStep) OutputPath() string { return filepath.Join(s.dir, "out.jsonl") }
func (s ledgerStep) LogPath() string    { return filepath.Join(s.dir, "skips.jsonl") }
func (s ledgerStep) IDField() string    { return "sutta_id" }
func (s ledgerStep) RunFingerprint() pipeline.Fingerprint {
	return pipeline.Fingerprint{"model_id": "m"}
}
func (s ledgerStep) ProcessItem(_ context.Context, item models.Item) (map[string]any, error) {
	if err, ok := s.fail[item.String("sutta_id")]; ok {
		return nil, err
	}
	return map[string]any{}, nil
}

func TestRecorder_WithPipeline(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	step := ledgerStep{dir: t.TempDir(), fail: map[string]error{
		"2": pipeline.ErrEmptyInput,
		"3": &pipeline.RateLimitError{Err: errors.New("429")},
	}}
	for _, id := range []int{1, 2, 3} {
		if err := jsonl.Append(step.SourcePath(), map[string]any{"sutta_id": id}); err != nil {
			t.Fatal(err)
		}
	}

	opts := pipeline.Options{
		RunID:     "run-ledger",
		Sleep:     func(context.Context, time.Duration) error { return nil },
		Observers: []pipeline.Observer{NewRecorder(db)},
	}
	if _, err := pipeline.Run(context.Background(), step, opts); !pipeline.IsAborted(err) {
		t.Fatalf("expected abort, got %v", err)
	}

	run, err := db.GetRun("run-ledger")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.Stage != "extract" || run.Status != StatusAborted || run.Total != 3 || run.Succeeded != 1 || run.Skipped != 1 || run.AbortedAt != "3" {
		t.Errorf("unexpected ledger row: %+v", run)
	}
	skips, err := db.GetRunSkips("run-ledger")
	if err != nil {
		t.Fatalf("GetRunSkips: %v", err)
	}
	if len(skips) != 1 || skips[0].ItemID != "2" || skips[0].Kind != pipeline.KindEmptyInput || skips[0].Reason != "empty input" {
		t.Errorf("unexpected skips: %+v", skips)
	}
}
