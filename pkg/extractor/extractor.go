// Package extractor turns a scraped sutta into a validated set of concepts
// using an LLM. ConceptExtractor is a pipeline.Step.
package extractor

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/dtnitsch/sutta-concepts/models"
	"github.com/dtnitsch/sutta-concepts/pkg/llm"
	"github.com/dtnitsch/sutta-concepts/pkg/pipeline"
)

// StageName identifies extraction runs in logs, metrics and the ledger.
const StageName = "extract"

type Mode string

const (
	ModeDiscovery Mode = "discovery"
	ModeFixed     Mode = "fixed"
)

var ErrInvalidMode = errors.New("invalid extraction mode")

func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeDiscovery, ModeFixed:
		return Mode(s), nil
	}
	return "", errors.Wrapf(ErrInvalidMode, "%q (want discovery or fixed)", s)
}

// Prompts holds the configured system prompt fragments.
type Prompts struct {
	Beginning             string
	DiscoveryInstructions string
	FixedInstructions     string
	End                   string
}

// SystemPrompt assembles beginning + mode instructions + end.
func SystemPrompt(mode Mode, p Prompts) string {
	instructions := p.DiscoveryInstructions
	if mode == ModeFixed {
		instructions = p.FixedInstructions
	}
	return p.Beginning + instructions + p.End
}

// Options configures a ConceptExtractor. Paths are already resolved.
type Options struct {
	ModelID    string
	Mode       Mode
	FixedTypes []string // allowed concept_type values in fixed mode; empty allows any
	SourcePath string
	OutputPath string
	LogPath    string
}

type ConceptExtractor struct {
	opts         Options
	client       llm.Client
	allowedTypes map[string]struct{}
}

// New returns an extractor using client for generation.
func New(opts Options, client llm.Client) (*ConceptExtractor, error) {
	if _, err := ParseMode(string(opts.Mode)); err != nil {
		return nil, err
	}
	if opts.ModelID == "" {
		return nil, errors.New("extractor: model id is required")
	}
	if client == nil {
		return nil, errors.New("extractor: llm client is required")
	}
	e := &ConceptExtractor{opts: opts, client: client}
	if opts.Mode == ModeFixed && len(opts.FixedTypes) > 0 {
		e.allowedTypes = make(map[string]struct{}, len(opts.FixedTypes))
		for _, t := range opts.FixedTypes {
			e.allowedTypes[t] = struct{}{}
		}
	}
	return e, nil
}

func (e *ConceptExtractor) Name() string       { return StageName }
func (e *ConceptExtractor) SourcePath() string { return e.opts.SourcePath }
func (e *ConceptExtractor) OutputPath() string { return e.opts.OutputPath }
func (e *ConceptExtractor) LogPath() string    { return e.opts.LogPath }
func (e *ConceptExtractor) IDField() string    { return models.SuttaIDField }

func (e *ConceptExtractor) RunFingerprint() pipeline.Fingerprint {
	return pipeline.Fingerprint{
		"model_id": e.opts.ModelID,
		"mode":     string(e.opts.Mode),
	}
}

func (e *ConceptExtractor) ProcessItem(ctx context.Context, item models.Item) (map[string]any, error) {
	body := item.String("body")
	if strings.TrimSpace(body) == "" {
		return nil, pipeline.ErrEmptyInput
	}

	raw, err := e.client.Generate(ctx, body)
	if err != nil {
		return nil, errors.Wrap(err, "concept generation failed")
	}

	set, err := ParseConcepts(raw, e.allowedTypes)
	if err != nil {
		return nil, err
	}
	return map[string]any{"concepts": set.Concepts}, nil
}
