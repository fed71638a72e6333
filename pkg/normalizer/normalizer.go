package normalizer

import (
	"context"
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/dtnitsch/sutta-concepts/models"
	"github.com/dtnitsch/sutta-concepts/pkg/jsonl"
	"github.com/dtnitsch/sutta-concepts/pkg/mapreduce"
)

// StageName identifies normalization runs in logs and metrics.
const StageName = "normalize"

// Embedder turns texts into vectors, one per text in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

type Options struct {
	Mode             Mode
	Threshold        float64
	MinCommunitySize int
	InputPath        string
	OutputPath       string
}

type Normalizer struct {
	opts      Options
	embedder  Embedder
	clusterer Clusterer
	logger    *slog.Logger
}

// Result summarizes one normalization run.
type Result struct {
	CorpusSize int
	Clusters   int
	Clustered  int // concepts placed in some cluster
	TopTypes   []mapreduce.Count
	Duration   time.Duration
}

// topTypesLimit bounds Result.TopTypes.
const topTypesLimit = 10

func New(opts Options, embedder Embedder, clusterer Clusterer, logger *slog.Logger) (*Normalizer, error) {
	if _, err := ParseMode(string(opts.Mode)); err != nil {
		return nil, err
	}
	if embedder == nil {
		return nil, errors.New("normalizer: embedder is required")
	}
	if clusterer == nil {
		clusterer = CommunityDetector{}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Normalizer{opts: opts, embedder: embedder, clusterer: clusterer, logger: logger.With("stage", StageName)}, nil
}

// Run embeds the corpus, clusters it and rewrites the output file.
func (n *Normalizer) Run(ctx context.Context) (Result, error) {
	start := time.Now()
	corpus, err := LoadCorpus(n.logger, n.opts.InputPath, n.opts.Mode)
	if err != nil {
		return Result{}, err
	}

	clusters := [][]models.Concept{}
	if corpus.Len() == 0 {
		n.logger.Warn("No concepts to normalize", "path", n.opts.InputPath)
	} else {
		n.logger.Info("Generating embeddings", "texts", corpus.Len())
		vectors, err := n.embedder.Embed(ctx, corpus.Texts)
		if err != nil {
			return Result{}, errors.Wrap(err, "failed to embed corpus")
		}
		if len(vectors) != corpus.Len() {
			return Result{}, errors.Newf("embedder returned %d vectors for %d texts", len(vectors), corpus.Len())
		}
		indices := n.clusterer.Cluster(vectors, n.opts.Threshold, n.opts.MinCommunitySize)
		clusters = Materialize(indices, corpus)
	}

	if err := jsonl.WriteJSON(n.opts.OutputPath, clusters); err != nil {
		return Result{}, errors.Wrap(err, "failed to write clusters")
	}

	res := Result{
		CorpusSize: corpus.Len(),
		Clusters:   len(clusters),
		TopTypes:   mapreduce.Top(mapreduce.Map(corpus.Items, mapreduce.ByType), topTypesLimit),
		Duration:   time.Since(start),
	}
	for _, c := range clusters {
		res.Clustered += len(c)
	}
	n.logger.Info("Normalization complete", "clusters", res.Clusters, "clustered", res.Clustered, "output", n.opts.OutputPath)
	return res, nil
}
