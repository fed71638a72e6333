package models

// SkipEntry is one diagnostic line in a stage's skip log. It is not a retry
// queue: a skipped item stays unprocessed and is picked up again next run.
type SkipEntry struct {
	ItemID    string `json:"item_id"`
	Kind      string `json:"kind"` // empty_input, schema_validation, processing_error
	Reason    string `json:"reason"`
	RawOutput string `json:"raw_output,omitempty"`
	RunID     string `json:"run_id,omitempty"`
	Time      string `json:"time,omitempty"`
}
