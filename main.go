package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/dtnitsch/sutta-concepts/internal/extract"
	"github.com/dtnitsch/sutta-concepts/internal/normalize"
	"github.com/dtnitsch/sutta-concepts/internal/runs"
	"github.com/dtnitsch/sutta-concepts/internal/scrape"
	"github.com/dtnitsch/sutta-concepts/internal/setup"
	"github.com/dtnitsch/sutta-concepts/pkg/config"
)

func main() {
	app := &cli.App{
		Name:  "sutta-concepts",
		Usage: "Scrape suttas, extract concepts with an LLM and cluster them",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   config.DefaultPath,
				Usage:   "path to config.yaml",
				EnvVars: []string{"SUTTA_CONFIG"},
			},
			&cli.BoolFlag{
				Name:    "quiet",
				Aliases: []string{"q"},
				Usage:   "only log errors",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "log at debug level",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Value: "json",
				Usage: "log format: json or text",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "scrape",
				Usage:  "Build the raw sutta store from dhammatalks.org",
				Action: scrape.ScrapeAction,
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "no-cache", Usage: "ignore the page cache"},
					&cli.BoolFlag{Name: "no-language", Usage: "skip language detection"},
				},
			},
			{
				Name:   "extract",
				Usage:  "Extract concepts from every sutta not yet processed by this model and mode",
				Action: extract.ExtractAction,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "model", Aliases: []string{"m"}, Usage: "model id (overrides concept_extraction.model_id)"},
					&cli.StringFlag{Name: "mode", Usage: "discovery or fixed (overrides concept_extraction.mode)"},
				},
			},
			{
				Name:   "normalize",
				Usage:  "Embed extracted concepts and cluster similar ones",
				Action: normalize.NormalizeAction,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "model", Aliases: []string{"m"}, Usage: "extraction model whose concepts to cluster"},
					&cli.StringFlag{Name: "mode", Usage: "name or hybrid (overrides concept_normalization.mode)"},
				},
			},
			{
				Name:   "runs",
				Usage:  "List recent pipeline runs from the ledger",
				Action: runs.RunsAction,
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Value: 20, Usage: "maximum runs to show (0 = all)"},
					&cli.StringFlag{Name: "stage", Usage: "only show runs of this stage"},
				},
			},
			{
				Name:      "run",
				Usage:     "Show one run and its skipped items (latest when no id is given)",
				ArgsUsage: "[run-id]",
				Action:    runs.RunAction,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(setup.ExitSetup)
	}
}
