// Package pipeline runs a Step over every source item that has no result
// under the current run configuration, exactly once per (item, config) pair.
//
// Results are appended to the stage's JSONL store as soon as an item
// succeeds. Non-fatal failures are buffered and flushed to the stage's skip
// log when the run ends. A rate-limit classification stops the run after
// flushing that buffer; nothing already written is touched.
package pipeline

import (
	"context"
	"maps"
	"slices"

	"github.com/dtnitsch/sutta-concepts/models"
)

// Fingerprint is the subset of run configuration that must match for an
// existing result to count as already processed.
type Fingerprint map[string]string

// Keys returns the fingerprint keys in sorted order.
func (f Fingerprint) Keys() []string {
	return slices.Sorted(maps.Keys(f))
}

// Step is one stage of work. Implementations hold their own clients; the
// loop controller only sees this interface.
type Step interface {
	// Name identifies the stage in logs, metrics and the run ledger.
	Name() string
	SourcePath() string
	OutputPath() string
	LogPath() string
	// IDField is the identifier key shared by source items and results.
	IDField() string
	RunFingerprint() Fingerprint
	// ProcessItem returns the fields to merge into the result record, or an
	// error classified by Classify.
	ProcessItem(ctx context.Context, item models.Item) (map[string]any, error)
}
