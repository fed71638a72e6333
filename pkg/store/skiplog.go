package store

import (
	"github.com/dtnitsch/sutta-concepts/models"
	"github.com/dtnitsch/sutta-concepts/pkg/jsonl"
)

// SkipLog buffers skip entries for one run and flushes them to the stage's
// skip log in a single pass.
type SkipLog struct {
	entries []models.SkipEntry
}

// Add buffers an entry.
func (l *SkipLog) Add(entry models.SkipEntry) {
	l.entries = append(l.entries, entry)
}

// Len returns the number of buffered entries.
func (l *SkipLog) Len() int {
	return len(l.entries)
}

// Entries returns a copy of the buffered entries.
func (l *SkipLog) Entries() []models.SkipEntry {
	out := make([]models.SkipEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Flush appends every buffered entry to path and empties the buffer. An
// empty buffer writes nothing. On error the buffer is kept.
func (l *SkipLog) Flush(path string) (int, error) {
	if len(l.entries) == 0 {
		return 0, nil
	}
	values := make([]any, len(l.entries))
	for i, e := range l.entries {
		values[i] = e
	}
	if err := jsonl.AppendAll(path, values); err != nil {
		return 0, err
	}
	n := len(l.entries)
	l.entries = nil
	return n, nil
}
