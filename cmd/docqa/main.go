package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"docqa/internal/config"
	"docqa/internal/logging"
)

// cli holds state shared by every subcommand.
type cli struct {
	cfgPath   string
	logLevel  string
	logFormat string

	cfg    *config.AppConfig
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:   "docqa",
		Short: "Question answering over a folder of documents",
		Long: `docqa ingests PDF (and optionally text or spreadsheet) documents into a local
vector index and answers questions about them over HTTP or in the terminal.

  docqa ingest            build the index from ./docs
  docqa serve             serve GET / and POST /ask on :5000
  docqa ask "question"    answer one question (no argument opens the console)`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load()
			var err error
			if c.cfgPath == "" {
				c.cfg, _, err = config.LoadDefault()
			} else {
				c.cfg, err = config.Load(c.cfgPath)
			}
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if c.logLevel != "" {
				c.cfg.Logging.Level = c.logLevel
			}
			if c.logFormat != "" {
				c.cfg.Logging.Format = c.logFormat
			}
			c.logger, err = logging.New(c.cfg.Logging.Level, c.cfg.Logging.Format)
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if c.logger != nil {
				_ = c.logger.Sync()
			}
		},
	}
	root.PersistentFlags().StringVar(&c.cfgPath, "config", "", "Path to YAML config file (defaults to ./config.yaml or ~/.config/docqa/config.yaml)")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&c.logFormat, "log-format", "", "Log format (json or console)")

	root.AddCommand(newIngestCmd(c), newServeCmd(c), newAskCmd(c))
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
