package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/gops/agent"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"docqa/internal/config"
	"docqa/internal/server"
)

func newServeCmd(c *cli) *cobra.Command {
	var (
		addr   string
		mode   string
		ingest bool
		gops   bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the question answering HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr != "" {
				c.cfg.Server.Addr = addr
			}
			if gops {
				if err := agent.Listen(agent.Options{ShutdownCleanup: true}); err != nil {
					c.logger.Warn("gops agent failed", zap.Error(err))
				}
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, c, mode, ingest)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config: :5000)")
	cmd.Flags().StringVar(&mode, "mode", "", "QA variant: chain or pipeline (default from config)")
	cmd.Flags().BoolVar(&ingest, "ingest", false, "Ingest the documents directory before serving")
	cmd.Flags().BoolVar(&gops, "gops", false, "Start the gops diagnostics agent")
	return cmd
}

func runServe(ctx context.Context, c *cli, mode string, ingest bool) error {
	a, err := newApp(ctx, c.cfg, c.logger)
	if err != nil {
		return err
	}
	defer a.Close()
	if ingest {
		if _, err := a.indexer.Build(ctx, c.cfg.Ingest.DocsDir); err != nil {
			return fmt.Errorf("ingest failed: %w", err)
		}
	}
	answerer, err := a.answerer(ctx, mode)
	if err != nil {
		return err
	}
	srv := server.New(answerer, c.logger, server.WithAnswerTimeout(answerTimeout(c.cfg)))
	return srv.ListenAndServe(ctx, c.cfg.Server.Addr)
}

func answerTimeout(cfg *config.AppConfig) time.Duration {
	return time.Duration(cfg.Server.AnswerTimeoutSecs) * time.Second
}
