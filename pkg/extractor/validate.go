package extractor

import (
	"encoding/json"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/dtnitsch/sutta-concepts/models"
	"github.com/dtnitsch/sutta-concepts/pkg/pipeline"
)

// ParseConcepts validates an LLM response. Every concept needs a non-empty
// name, type and evidence quote; when allowedTypes is non-nil the type must
// be one of them. Failures return *pipeline.SchemaValidationError carrying
// the raw response.
func ParseConcepts(raw string, allowedTypes map[string]struct{}) (models.ConceptSet, error) {
	invalid := func(err error) (models.ConceptSet, error) {
		return models.ConceptSet{}, &pipeline.SchemaValidationError{Err: err, Raw: raw}
	}

	var doc struct {
		Concepts *[]models.Concept `json:"concepts"`
	}
	if err := json.Unmarshal([]byte(stripFence(raw)), &doc); err != nil {
		return invalid(errors.Wrap(err, "response is not a JSON object"))
	}
	if doc.Concepts == nil {
		return invalid(errors.New("missing concepts array"))
	}

	set := models.ConceptSet{Concepts: *doc.Concepts}
	for i, c := range set.Concepts {
		switch {
		case strings.TrimSpace(c.ConceptName) == "":
			return invalid(errors.Newf("concepts[%d]: concept_name is required", i))
		case strings.TrimSpace(c.ConceptType) == "":
			return invalid(errors.Newf("concepts[%d]: concept_type is required", i))
		case strings.TrimSpace(c.EvidenceQuote) == "":
			return invalid(errors.Newf("concepts[%d]: evidence_quote is required", i))
		}
		if allowedTypes != nil {
			if _, ok := allowedTypes[c.ConceptType]; !ok {
				return invalid(errors.Newf("concepts[%d]: concept_type %q is not allowed in fixed mode", i, c.ConceptType))
			}
		}
	}
	if set.Concepts == nil {
		set.Concepts = []models.Concept{}
	}
	return set, nil
}

// stripFence removes a surrounding ```json fence some models add despite
// being asked for bare JSON.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}

// ResponseSchema is the response schema sent to providers that enforce one.
// In fixed mode with a vocabulary, concept_type is an enum.
func ResponseSchema(mode Mode, fixedTypes []string) map[string]any {
	conceptType := map[string]any{"type": "STRING"}
	if mode == ModeFixed && len(fixedTypes) > 0 {
		conceptType["enum"] = fixedTypes
	}
	return map[string]any{
		"type": "OBJECT",
		"properties": map[string]any{
			"concepts": map[string]any{
				"type": "ARRAY",
				"items": map[string]any{
					"type": "OBJECT",
					"properties": map[string]any{
						"concept_name":   map[string]any{"type": "STRING"},
						"concept_type":   conceptType,
						"evidence_quote": map[string]any{"type": "STRING"},
					},
					"required": []string{"concept_name", "concept_type", "evidence_quote"},
				},
			},
		},
		"required": []string{"concepts"},
	}
}
