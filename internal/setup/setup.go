// Package setup holds the bootstrap shared by every CLI action: config,
// logger, signal handling, ledger and metrics.
package setup

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/urfave/cli/v2"

	"github.com/dtnitsch/sutta-concepts/models"
	"github.com/dtnitsch/sutta-concepts/pkg/config"
	"github.com/dtnitsch/sutta-concepts/pkg/db"
	"github.com/dtnitsch/sutta-concepts/pkg/logging"
	"github.com/dtnitsch/sutta-concepts/pkg/metrics"
	"github.com/dtnitsch/sutta-concepts/pkg/pipeline"
)

// Exit codes.
const (
	ExitOK        = 0
	ExitAborted   = 1
	ExitSetup     = 2
	ExitInterrupt = 130
)

// Runtime is everything an action needs before it touches its stage.
type Runtime struct {
	Config  *models.AppConfig
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	Ledger  *db.DB // nil when the ledger is disabled
}

// Load reads the config named by --config and builds the logger from the
// global flags. Failures exit with ExitSetup.
func Load(c *cli.Context) *Runtime {
	fallback := logging.New(os.Stderr, c.String("log-format"), logging.Level(c.Bool("quiet"), c.Bool("debug"), ""))

	cfg, err := config.Load(c.String("config"))
	if err != nil {
		Fail(fallback, "failed to load config", err)
	}

	format := cfg.Logging.Format
	if c.IsSet("log-format") {
		format = c.String("log-format")
	}
	logger := logging.New(os.Stderr, format, logging.Level(c.Bool("quiet"), c.Bool("debug"), cfg.Logging.Level))

	return &Runtime{Config: cfg, Logger: logger, Metrics: metrics.New()}
}

// OpenLedger opens the run ledger when one is configured. On error
// rt.Ledger stays nil.
func (rt *Runtime) OpenLedger() error {
	if rt.Config.Ledger.Path == "" {
		return nil
	}
	path := config.Resolve(rt.Config, rt.Config.Ledger.Path)
	database, err := db.Open(path)
	if err != nil {
		return errors.Wrapf(err, "failed to open run ledger at %s", path)
	}
	rt.Ledger = database
	rt.Logger.Debug("Run ledger opened", "path", database.Path())
	return nil
}

// Observers returns the pipeline observers for this runtime.
func (rt *Runtime) Observers() []pipeline.Observer {
	obs := []pipeline.Observer{rt.Metrics.Observer()}
	if rt.Ledger != nil {
		obs = append(obs, db.NewRecorder(rt.Ledger))
	}
	return obs
}

// Close flushes metrics and closes the ledger. Export failures are logged.
func (rt *Runtime) Close() {
	if p := rt.Config.Metrics.TextfilePath; p != "" {
		path := config.Resolve(rt.Config, p)
		if err := rt.Metrics.WriteTextfile(path); err != nil {
			rt.Logger.Warn("Failed to write metrics textfile", "path", path, "error", err)
		}
	}
	if rt.Ledger != nil {
		if err := rt.Ledger.Close(); err != nil {
			rt.Logger.Warn("Failed to close run ledger", "error", err)
		}
	}
}

// SignalContext is cancelled on SIGINT or SIGTERM.
func SignalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// Fail logs err with any attached hints and exits with ExitSetup.
func Fail(logger *slog.Logger, msg string, err error) {
	attrs := []any{"error", err}
	if hints := errors.GetAllHints(err); len(hints) > 0 {
		attrs = append(attrs, "hint", hints)
	}
	logger.Error(msg, attrs...)
	os.Exit(ExitSetup)
}

// ExitCode maps a finished run to the process exit status. A rate-limit
// abort also prints the FATAL line operators grep for.
func ExitCode(runErr error) int {
	var abort *pipeline.AbortError
	switch {
	case runErr == nil:
		return ExitOK
	case errors.As(runErr, &abort):
		fmt.Fprintf(os.Stderr, "FATAL: rate limit or quota exhausted; stopped after %d items (run %s)\n",
			abort.Completed, abort.RunID)
		return ExitAborted
	case errors.Is(runErr, context.Canceled):
		return ExitInterrupt
	default:
		return ExitSetup
	}
}
