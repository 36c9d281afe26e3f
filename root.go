package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/drivesync/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagJSON       bool
	flagVerbose    bool
	flagDebug      bool
	flagQuiet      bool
)

// CLIContext bundles resolved config, logger, and display flags. Created
// once in PersistentPreRunE; eliminates redundant buildLogger calls and
// flag threading in RunE handlers.
type CLIContext struct {
	Cfg    *config.Resolved
	Logger *slog.Logger
	Flags  struct {
		JSON  bool
		Quiet bool
	}
}

// cliContextKey is the context key for CLIContext.
type cliContextKey struct{}

// cliContextFrom extracts the CLIContext from the command's context.
func cliContextFrom(ctx context.Context) *CLIContext {
	cc, ok := ctx.Value(cliContextKey{}).(*CLIContext)
	if !ok {
		return nil
	}

	return cc
}

// mustCLIContext extracts the CLIContext or panics with an actionable message.
// Panics are always programmer errors — PersistentPreRunE guarantees the
// context is populated before any RunE executes.
func mustCLIContext(ctx context.Context) *CLIContext {
	cc := cliContextFrom(ctx)
	if cc == nil {
		panic("BUG: CLIContext not found in context — PersistentPreRunE did not run")
	}

	return cc
}

// transferHTTPClient returns an HTTP client with no timeout, used as the
// base for the Remote Client's authenticated transport. Large transfers on
// slow connections can exceed any fixed timeout; downloads are bounded by
// context cancellation instead.
func transferHTTPClient() *http.Client {
	return &http.Client{Timeout: 0}
}

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "drivesync",
		Short:   "Bidirectional sync between a cloud drive and a local directory",
		Long:    "drivesync keeps a local directory tree synchronized with a Google-Drive-style remote file store, in both directions.",
		Version: version,
		// Silence Cobra's default error/usage printing — we handle it ourselves.
		SilenceErrors: true,
		SilenceUsage:  true,
		// PersistentPreRunE loads configuration before every command.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return loadConfig(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "show detailed output")
	cmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")

	cmd.MarkFlagsMutuallyExclusive("verbose", "debug", "quiet")

	cmd.AddCommand(newStartCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newEraseCmd())

	return cmd
}

// loadConfig resolves the effective configuration and stores the result in
// the command's context for use by subcommands.
func loadConfig(cmd *cobra.Command) error {
	// Bootstrap logger derived from CLI flags only (config doesn't exist yet).
	logger := buildLogger(nil)

	path := flagConfigPath
	if path == "" {
		path = config.DefaultConfigPath()
	}

	logger.Debug("resolving config", slog.String("path", path))

	resolved, err := config.LoadPath(path, logger)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger.Debug("config resolved",
		slog.String("account_id", resolved.AccountID),
		slog.String("local_root", resolved.LocalRoot),
	)

	// Build the final logger incorporating config-file log level.
	finalLogger := buildLogger(resolved)

	cc := &CLIContext{Cfg: resolved, Logger: finalLogger}
	cc.Flags.JSON = flagJSON
	cc.Flags.Quiet = flagQuiet

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cmd.SetContext(context.WithValue(ctx, cliContextKey{}, cc))

	return nil
}

// buildLogger creates an slog.Logger configured by the resolved config and
// CLI flags. Pass nil for pre-config bootstrap (no config-file log level).
// Config-file log level provides the baseline; --verbose, --debug, and
// --quiet override it because CLI flags always win. The flags are mutually
// exclusive (enforced by Cobra).
func buildLogger(cfg *config.Resolved) *slog.Logger {
	level := slog.LevelWarn

	if cfg != nil {
		switch cfg.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "info":
			level = slog.LevelInfo
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
	}

	if flagVerbose {
		level = slog.LevelInfo
	}

	if flagDebug {
		level = slog.LevelDebug
	}

	if flagQuiet {
		level = slog.LevelError
	}

	format := "text"
	if cfg != nil {
		format = cfg.LogFormat
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
