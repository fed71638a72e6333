package normalize

import (
	"fmt"
	"os"

	"github.com/pterm/pterm"
	"github.com/urfave/cli/v2"

	"github.com/dtnitsch/sutta-concepts/internal/setup"
	"github.com/dtnitsch/sutta-concepts/pkg/config"
	"github.com/dtnitsch/sutta-concepts/pkg/llm"
	"github.com/dtnitsch/sutta-concepts/pkg/normalizer"
)

func NormalizeAction(c *cli.Context) error {
	rt := setup.Load(c)
	cfg := rt.Config
	if c.IsSet("model") {
		cfg.Extraction.ModelID = c.String("model")
	}
	if c.IsSet("mode") {
		cfg.Normalization.Mode = c.String("mode")
	}
	logger := rt.Logger.With("stage", normalizer.StageName)

	if cfg.Extraction.ModelID == "" {
		logger.Error("no extraction model configured; set concept_extraction.model_id or pass --model")
		os.Exit(setup.ExitSetup)
	}
	mode, err := normalizer.ParseMode(cfg.Normalization.Mode)
	if err != nil {
		setup.Fail(logger, "invalid normalization mode", err)
	}

	inputPath, err := config.ExtractionOutputPath(cfg)
	if err != nil {
		setup.Fail(logger, "invalid concept_extraction.output_path_template", err)
	}
	outputPath, err := config.NormalizationOutputPath(cfg)
	if err != nil {
		setup.Fail(logger, "invalid concept_normalization.output_path_template", err)
	}

	embedder, err := llm.NewEmbeddingClient(llm.EmbeddingConfig{
		ModelID:   cfg.Normalization.EmbeddingModelID,
		BaseURL:   cfg.Normalization.EmbeddingBaseURL,
		APIKeyEnv: cfg.Normalization.EmbeddingAPIKeyEnv,
		BatchSize: cfg.Normalization.BatchSize,
		Logger:    logger,
	})
	if err != nil {
		setup.Fail(logger, "failed to create embedding client", err)
	}

	n, err := normalizer.New(normalizer.Options{
		Mode:             mode,
		Threshold:        cfg.Normalization.Threshold,
		MinCommunitySize: cfg.Normalization.MinCommunitySize,
		InputPath:        inputPath,
		OutputPath:       outputPath,
	}, embedder, normalizer.CommunityDetector{}, rt.Logger)
	if err != nil {
		setup.Fail(logger, "failed to create normalizer", err)
	}

	ctx, cancel := setup.SignalContext(c.Context)
	defer cancel()

	result, err := n.Run(ctx)
	if err == nil {
		rt.Metrics.RunDuration.WithLabelValues(normalizer.StageName).Set(result.Duration.Seconds())
		rt.Metrics.Clusters.WithLabelValues(normalizer.StageName).Set(float64(result.Clusters))
	}
	rt.Close()

	if err != nil {
		logger.Error("Normalization failed", "input", inputPath, "error", err)
		os.Exit(setup.ExitCode(err))
	}

	if !c.Bool("quiet") {
		pterm.Success.Printf("%d clusters covering %d of %d concepts written to %s\n",
			result.Clusters, result.Clustered, result.CorpusSize, outputPath)
		if len(result.TopTypes) > 0 {
			pterm.Info.Println("Most frequent concept types:")
			for i, t := range result.TopTypes {
				fmt.Printf("%2d. %s: %d\n", i+1, t.Key, t.Value)
			}
		}
	}
	return nil
}
