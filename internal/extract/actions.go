package extract

import (
	"os"

	"github.com/pterm/pterm"
	"github.com/urfave/cli/v2"

	"github.com/dtnitsch/sutta-concepts/internal/setup"
	"github.com/dtnitsch/sutta-concepts/pkg/config"
	"github.com/dtnitsch/sutta-concepts/pkg/extractor"
	"github.com/dtnitsch/sutta-concepts/pkg/llm"
	"github.com/dtnitsch/sutta-concepts/pkg/pipeline"
)

func ExtractAction(c *cli.Context) error {
	rt := setup.Load(c)
	cfg := rt.Config
	if c.IsSet("model") {
		cfg.Extraction.ModelID = c.String("model")
	}
	if c.IsSet("mode") {
		cfg.Extraction.Mode = c.String("mode")
	}
	logger := rt.Logger.With("stage", extractor.StageName, "model_id", cfg.Extraction.ModelID)

	if cfg.Extraction.ModelID == "" {
		logger.Error("no model configured; set concept_extraction.model_id or pass --model")
		os.Exit(setup.ExitSetup)
	}
	mode, err := extractor.ParseMode(cfg.Extraction.Mode)
	if err != nil {
		setup.Fail(logger, "invalid extraction mode", err)
	}
	provider, err := llm.ResolveProvider(cfg.Extraction.ModelID, cfg.Extraction.Provider)
	if err != nil {
		setup.Fail(logger, "cannot select an LLM provider", err)
	}

	prompt := extractor.SystemPrompt(mode, extractor.Prompts{
		Beginning:             cfg.Extraction.BasePromptBeginning,
		DiscoveryInstructions: cfg.Extraction.DiscoveryInstructions,
		FixedInstructions:     cfg.Extraction.FixedInstructions,
		End:                   cfg.Extraction.BasePromptEnd,
	})
	client, err := llm.New(llm.Config{
		Provider:    provider,
		ModelID:     cfg.Extraction.ModelID,
		BaseURL:     cfg.Extraction.BaseURL,
		Temperature: cfg.Extraction.Temperature,
		Timeout:     cfg.Extraction.RequestTimeout,
		Logger:      logger,
	}, prompt, extractor.ResponseSchema(mode, cfg.Extraction.FixedConceptTypes))
	if err != nil {
		setup.Fail(logger, "failed to create LLM client", err)
	}

	outputPath, err := config.ExtractionOutputPath(cfg)
	if err != nil {
		setup.Fail(logger, "invalid output_path_template", err)
	}
	logPath, err := config.ExtractionLogPath(cfg)
	if err != nil {
		setup.Fail(logger, "invalid log_path_template", err)
	}

	step, err := extractor.New(extractor.Options{
		ModelID:    cfg.Extraction.ModelID,
		Mode:       mode,
		FixedTypes: cfg.Extraction.FixedConceptTypes,
		SourcePath: config.RawDataPath(cfg),
		OutputPath: outputPath,
		LogPath:    logPath,
	}, client)
	if err != nil {
		setup.Fail(logger, "failed to create extractor", err)
	}

	if err := rt.OpenLedger(); err != nil {
		logger.Warn("Continuing without run ledger", "error", err)
	}
	ctx, cancel := setup.SignalContext(c.Context)
	defer cancel()

	logger.Info("Extracting concepts", "provider", provider, "mode", mode, "source", step.SourcePath(), "output", outputPath)
	successDelay, errorDelay := config.ExtractionDelays(cfg)
	summary, runErr := pipeline.Run(ctx, step, pipeline.Options{
		Logger:       rt.Logger,
		SuccessDelay: successDelay,
		ErrorDelay:   errorDelay,
		Observers:    rt.Observers(),
	})
	rt.Close()

	code := setup.ExitCode(runErr)
	if code != setup.ExitOK {
		os.Exit(code)
	}

	if !c.Bool("quiet") {
		pterm.Success.Printf("Run %s: %d succeeded, %d skipped (%d already processed)\n",
			summary.RunID, summary.Succeeded, summary.Skipped, summary.Selection.AlreadyProcessed)
		if summary.Skipped > 0 {
			pterm.Info.Printf("Skipped items are logged to %s and will be retried next run\n", logPath)
		}
	}
	return nil
}
