package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/coffersTech/nanorule/internal/config"
	"github.com/coffersTech/nanorule/internal/engine"
	"github.com/coffersTech/nanorule/internal/ruleset"
)

var (
	cfgFile  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:           "nanorule",
	Short:         "Rule-based log file analyzer",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default: ./nanorule.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(checkCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadConfig reads the configuration, letting --log-level override it.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	loader := config.NewLoader()
	if cfgFile != "" {
		loader.WithConfigPath(cfgFile)
	}
	if f := cmd.Flags().Lookup("log-level"); f != nil && f.Changed {
		if err := loader.BindFlag("log.level", f); err != nil {
			return nil, err
		}
	}
	return loader.Load()
}

// newLogger builds the process logger: charmbracelet/log on stderr behind
// the slog API the services take.
func newLogger(cfg config.LogConfig) *slog.Logger {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		ReportCaller:    false,
	})
	if cfg.Format == "json" {
		logger.SetFormatter(log.JSONFormatter)
	}

	switch strings.ToLower(cfg.Level) {
	case "debug":
		logger.SetLevel(log.DebugLevel)
	case "warn":
		logger.SetLevel(log.WarnLevel)
	case "error":
		logger.SetLevel(log.ErrorLevel)
	default:
		logger.SetLevel(log.InfoLevel)
	}
	return slog.New(logger)
}

// loadRules returns the rules of the configured file, or the built-in rules
// when none is set.
func loadRules(cfg *config.Config) ([]engine.Rule, error) {
	if cfg.Rules.File == "" {
		return ruleset.Builtin(), nil
	}
	return ruleset.LoadFile(cfg.Rules.File)
}

func newAnalyzer(cfg *config.Config, logger *slog.Logger) (*engine.Analyzer, *engine.RuleCompiler) {
	compiler := engine.NewRuleCompiler(engine.CompilerOptions{
		MaxEntries: cfg.Cache.MaxEntries,
		Logger:     logger,
	})
	matcher := engine.NewMatcher(compiler, engine.MatcherOptions{
		MaxMatchesPerPattern: cfg.Analysis.MaxMatchesPerPattern,
		Logger:               logger,
	})
	analyzer := engine.NewAnalyzer(matcher, engine.AnalyzerOptions{
		ContextLines:    cfg.Analysis.ContextLines,
		RuleParallelism: cfg.Analysis.RuleParallelism,
		Logger:          logger,
	})
	return analyzer, compiler
}
