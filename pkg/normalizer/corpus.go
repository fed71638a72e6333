// Package normalizer clusters extracted concepts by embedding similarity.
package normalizer

import (
	"log/slog"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/dtnitsch/sutta-concepts/models"
	"github.com/dtnitsch/sutta-concepts/pkg/jsonl"
)

type Mode string

const (
	// ModeName embeds each distinct concept name once; the first occurrence
	// represents the name.
	ModeName Mode = "name"
	// ModeHybrid embeds every concept instance as "name [SEP] quote".
	ModeHybrid Mode = "hybrid"
)

var ErrInvalidMode = errors.New("invalid normalization mode")

func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeName, ModeHybrid:
		return Mode(s), nil
	}
	return "", errors.Wrapf(ErrInvalidMode, "%q (want name or hybrid)", s)
}

// HybridSeparator joins name and evidence quote in hybrid mode.
const HybridSeparator = " [SEP] "

// Corpus is the list of texts to embed. Items[i] is the concept Texts[i]
// was built from.
type Corpus struct {
	Texts []string
	Items []models.Concept
}

func (c Corpus) Len() int { return len(c.Texts) }

// BuildCorpus flattens the concepts of extraction records in file order.
func BuildCorpus(records []models.Item, mode Mode) (Corpus, error) {
	if _, err := ParseMode(string(mode)); err != nil {
		return Corpus{}, err
	}
	var corpus Corpus
	seen := make(map[string]struct{})
	for _, rec := range records {
		for _, c := range conceptsOf(rec) {
			switch mode {
			case ModeName:
				if _, dup := seen[c.ConceptName]; dup {
					continue
				}
				seen[c.ConceptName] = struct{}{}
				corpus.Texts = append(corpus.Texts, c.ConceptName)
			case ModeHybrid:
				corpus.Texts = append(corpus.Texts, c.ConceptName+HybridSeparator+c.EvidenceQuote)
			}
			corpus.Items = append(corpus.Items, c)
		}
	}
	return corpus, nil
}

// LoadCorpus reads an extraction store and builds its corpus. Malformed
// lines are logged and skipped.
func LoadCorpus(logger *slog.Logger, path string, mode Mode) (Corpus, error) {
	records, err := jsonl.ReadAll(path, jsonl.ScanOptions{
		OnCorrupt: func(lineNo int, err error) {
			logger.Warn("Skipping malformed line", "path", path, "line", lineNo, "error", err)
		},
	})
	if err != nil {
		return Corpus{}, errors.Wrap(err, "failed to read extraction store")
	}
	corpus, err := BuildCorpus(records, mode)
	if err != nil {
		return Corpus{}, err
	}
	logger.Info("Prepared corpus", "path", path, "mode", mode, "records", len(records), "texts", corpus.Len())
	return corpus, nil
}

// conceptsOf decodes the "concepts" array of a record. Entries without a
// concept name are dropped.
func conceptsOf(rec models.Item) []models.Concept {
	raw, ok := rec["concepts"].([]any)
	if !ok {
		return nil
	}
	out := make([]models.Concept, 0, len(raw))
	for _, entry := range raw {
		m, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		c := models.Concept{
			ConceptName:   models.FieldString(m["concept_name"]),
			ConceptType:   models.FieldString(m["concept_type"]),
			EvidenceQuote: models.FieldString(m["evidence_quote"]),
		}
		if strings.TrimSpace(c.ConceptName) == "" {
			continue
		}
		out = append(out, c)
	}
	return out
}
