package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/tablesmith/tablesmith/internal/config"
	"github.com/tablesmith/tablesmith/internal/engine"
	"github.com/tablesmith/tablesmith/internal/logging"
)

var (
	cfgFile  string
	logLevel string
	version  = "dev"
	commit   = "none"
	date     = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "tablesmith",
	Short: "Tablesmith — PostgreSQL table editor",
	Long: `Tablesmith edits PostgreSQL tables. Edits to a table accumulate in a
draft, are folded into the smallest equivalent set of changes, and are
committed as DDL in a single transaction.`,
	SilenceUsage: true,
}

func Execute() {
	rootCmd.Version = fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.tablesmith/tablesmith.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
}

// loadConfig reads --config, falling back to defaults when no file was
// named and the default file does not exist.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err == nil {
		return cfg, nil
	}
	if cfgFile != "" || !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	cfg = config.Default()
	// an unset PGPASSWORD means trust or peer auth
	pw, err := config.ResolveValue(cmd.Context(), cfg.Database.Password)
	if err != nil {
		pw = ""
	}
	cfg.Database.Password = pw
	return cfg, nil
}

// setupLogger logs to stderr and the configured log directory.
func setupLogger(cfg *config.Config) (*slog.Logger, io.Closer, error) {
	level := cfg.Logging.Level
	if logLevel != "" {
		level = logLevel
	}
	return logging.Setup(level, cfg.Logging.Directory, os.Stderr)
}

// connect loads config, sets up logging and connects the engine. The
// returned func releases everything.
func connect(cmd *cobra.Command) (*engine.Engine, func(), error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	logger, logFile, err := setupLogger(cfg)
	if err != nil {
		return nil, nil, err
	}
	eng, err := engine.Connect(cmd.Context(), cfg, logger)
	if err != nil {
		logFile.Close()
		return nil, nil, err
	}
	return eng, func() {
		eng.Close()
		logFile.Close()
	}, nil
}
