package pipeline

import (
	"context"
	"time"
)

// RunInfo describes a run that is about to visit its pending items.
type RunInfo struct {
	RunID       string
	Stage       string
	Fingerprint Fingerprint
	Pending     int
	StartedAt   time.Time
}

// ItemResult is reported to observers after each visited item.
type ItemResult struct {
	RunID    string
	Stage    string
	ItemID   string
	Outcome  Outcome
	Err      error
	Duration time.Duration
}

// Observer receives run lifecycle events. Errors returned by an observer are
// logged and never change the run's outcome.
type Observer interface {
	BeforeRun(ctx context.Context, info RunInfo) error
	AfterItem(ctx context.Context, result ItemResult) error
	AfterRun(ctx context.Context, summary Summary, runErr error) error
}

// NopObserver implements Observer with no-ops; embed it to override a subset.
type NopObserver struct{}

func (NopObserver) BeforeRun(context.Context, RunInfo) error       { return nil }
func (NopObserver) AfterItem(context.Context, ItemResult) error    { return nil }
func (NopObserver) AfterRun(context.Context, Summary, error) error { return nil }
