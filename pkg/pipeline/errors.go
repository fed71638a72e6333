package pipeline

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// ErrEmptyInput reports an item without a usable payload. Always local:
// the item is skipped and the run continues.
var ErrEmptyInput = errors.New("empty input")

// ErrRateLimited marks resource exhaustion at the service behind a Step.
// It is the only classification that aborts a run.
var ErrRateLimited = errors.New("rate limit or quota exhausted")

// SchemaValidationError reports processor output that failed structural
// validation. Raw is the unvalidated output, kept as skip-log evidence.
type SchemaValidationError struct {
	Err error
	Raw string
}

func (e *SchemaValidationError) Error() string {
	return fmt.Sprintf("schema validation failed: %v", e.Err)
}

func (e *SchemaValidationError) Unwrap() error { return e.Err }

// RateLimitError is returned by clients when the backing service throttles
// or runs out of quota. It matches ErrRateLimited under errors.Is.
type RateLimitError struct {
	Provider string
	Err      error
}

func (e *RateLimitError) Error() string {
	if e.Provider == "" {
		return fmt.Sprintf("%v: %v", ErrRateLimited, e.Err)
	}
	return fmt.Sprintf("%s: %v: %v", e.Provider, ErrRateLimited, e.Err)
}

func (e *RateLimitError) Unwrap() error { return e.Err }

func (e *RateLimitError) Is(target error) bool { return target == ErrRateLimited }

// AbortError is returned by Run when a fatal classification stopped the run.
// Records written before the abort are intact and the skip log was flushed.
type AbortError struct {
	RunID     string
	ItemID    string
	Completed int // items visited before the aborting one
	Err       error
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("run %s aborted at item %s after %d items: %v", e.RunID, e.ItemID, e.Completed, e.Err)
}

func (e *AbortError) Unwrap() error { return e.Err }

// IsAborted reports whether err is (or wraps) an AbortError.
func IsAborted(err error) bool {
	var abort *AbortError
	return errors.As(err, &abort)
}

// Outcome is the terminal state of one item.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeAborted   Outcome = "aborted"
)

// Skip kinds recorded in the skip log.
const (
	KindEmptyInput       = "empty_input"
	KindSchemaValidation = "schema_validation"
	KindProcessingError  = "processing_error"
)

// Classify maps a processor error to the outcome the loop applies.
func Classify(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeSucceeded
	case errors.Is(err, ErrRateLimited):
		return OutcomeAborted
	default:
		return OutcomeSkipped
	}
}

// SkipKind returns the skip-log kind and any raw evidence for a non-fatal error.
func SkipKind(err error) (kind, raw string) {
	var schemaErr *SchemaValidationError
	switch {
	case errors.Is(err, ErrEmptyInput):
		return KindEmptyInput, ""
	case errors.As(err, &schemaErr):
		return KindSchemaValidation, schemaErr.Raw
	default:
		return KindProcessingError, ""
	}
}
