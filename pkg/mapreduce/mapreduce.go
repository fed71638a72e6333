// Package mapreduce tallies concepts across extraction records.
package mapreduce

import (
	"strings"

	"github.com/dtnitsch/sutta-concepts/models"
)

// KeyFunc picks the value a concept is counted under. An empty key is not counted.
type KeyFunc func(models.Concept) string

// ByType counts concepts by concept_type.
func ByType(c models.Concept) string { return strings.TrimSpace(c.ConceptType) }

// ByName counts concepts by concept_name, case-folded.
func ByName(c models.Concept) string { return strings.ToLower(strings.TrimSpace(c.ConceptName)) }

// Map generates a frequency map for a single record's concepts.
func Map(concepts []models.Concept, key KeyFunc) map[string]int {
	counts := make(map[string]int)
	for _, c := range concepts {
		if k := key(c); k != "" {
			counts[k]++
		}
	}
	return counts
}

// Reduce aggregates a slice of frequency maps into a single map.
func Reduce(intermediate []map[string]int) map[string]int {
	finalResults := make(map[string]int)

	for _, counts := range intermediate {
		for k, count := range counts {
			finalResults[k] += count
		}
	}

	return finalResults
}
