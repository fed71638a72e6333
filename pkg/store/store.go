// Package store answers "what has already been done" for a pipeline stage.
//
// A stage's result store is an append-only JSONL file. A record counts as
// processed only when it carries every field of the current run fingerprint
// with an identical value, so switching model or mode makes every item
// unprocessed again without touching the existing records.
package store

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dtnitsch/sutta-concepts/models"
	"github.com/dtnitsch/sutta-concepts/pkg/jsonl"
)

// IDSet is a set of canonical item identifiers.
type IDSet map[string]struct{}

// Has reports whether id is in the set.
func (s IDSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// ProcessedIDs returns the identifiers of every record in the store at path
// whose fields match fingerprint exactly. A missing store yields an empty
// set. Malformed lines are logged and skipped.
func ProcessedIDs(logger *slog.Logger, path, idField string, fingerprint map[string]string) (IDSet, error) {
	ids := IDSet{}
	err := jsonl.Scan(path, jsonl.ScanOptions{OnCorrupt: corruptLogger(logger, path)}, func(_ int, record models.Item) error {
		if !Matches(record, fingerprint) {
			return nil
		}
		if id, ok := record.ID(idField); ok {
			ids[id] = struct{}{}
		}
		return nil
	})
	if errors.Is(err, os.ErrNotExist) {
		return ids, nil
	}
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// Matches reports whether record[k] == v for every (k, v) in fingerprint.
// A missing or null value never matches. An empty fingerprint matches every
// record.
func Matches(record models.Item, fingerprint map[string]string) bool {
	for k, want := range fingerprint {
		got, ok := record[k]
		if !ok || got == nil || models.FieldString(got) != want {
			return false
		}
	}
	return true
}

// Counts describes a selection, for operational visibility only.
type Counts struct {
	Total            int
	MissingID        int
	AlreadyProcessed int
	Remaining        int
}

// SelectUnprocessed returns, in source order, every item from the source
// store whose identifier is not in processed. Items without an identifier
// cannot be tracked and are excluded. A missing source store is an error.
func SelectUnprocessed(logger *slog.Logger, sourcePath, idField string, processed IDSet) ([]models.Item, Counts, error) {
	var (
		counts Counts
		items  []models.Item
	)
	err := jsonl.Scan(sourcePath, jsonl.ScanOptions{OnCorrupt: corruptLogger(logger, sourcePath)}, func(_ int, item models.Item) error {
		counts.Total++
		id, ok := item.ID(idField)
		if !ok {
			counts.MissingID++
			return nil
		}
		if processed.Has(id) {
			counts.AlreadyProcessed++
			return nil
		}
		items = append(items, item)
		return nil
	})
	if err != nil {
		return nil, counts, fmt.Errorf("failed to read source store: %w", err)
	}
	counts.Remaining = len(items)

	logger.Info("Selected unprocessed items",
		"source", sourcePath,
		"total", counts.Total,
		"already_processed", counts.AlreadyProcessed,
		"missing_id", counts.MissingID,
		"remaining", counts.Remaining,
	)
	return items, counts, nil
}

// LoadUnprocessed combines ProcessedIDs and SelectUnprocessed for one stage.
func LoadUnprocessed(logger *slog.Logger, sourcePath, outputPath, idField string, fingerprint map[string]string) ([]models.Item, Counts, error) {
	processed, err := ProcessedIDs(logger, outputPath, idField, fingerprint)
	if err != nil {
		return nil, Counts{}, err
	}
	logger.Info("Loaded processed ids", "store", outputPath, "processed", len(processed), "fingerprint", fingerprint)
	return SelectUnprocessed(logger, sourcePath, idField, processed)
}

func corruptLogger(logger *slog.Logger, path string) func(int, error) {
	return func(lineNo int, err error) {
		logger.Warn("Skipping malformed line", "file", path, "line", lineNo, "error", err)
	}
}
