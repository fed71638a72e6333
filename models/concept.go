package models

// Concept is a single conceptual term extracted from a sutta.
type Concept struct {
	ConceptName   string `json:"concept_name"`
	ConceptType   string `json:"concept_type"`
	EvidenceQuote string `json:"evidence_quote"`
}

// ConceptSet is the top-level object the language model must return.
type ConceptSet struct {
	Concepts []Concept `json:"concepts"`
}

// ExtractionRecord is one line of the concept extraction store.
type ExtractionRecord struct {
	SuttaID   any       `json:"sutta_id"`
	ModelID   string    `json:"model_id"`
	Mode      string    `json:"mode"`
	TimeOfRun string    `json:"time_of_run"`
	Concepts  []Concept `json:"concepts"`
}
