package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newIngestCmd(c *cli) *cobra.Command {
	var docsDir string
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Load, chunk and embed documents into the vector index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if docsDir != "" {
				c.cfg.Ingest.DocsDir = docsDir
			}
			ctx := cmd.Context()
			a, err := newApp(ctx, c.cfg, c.logger)
			if err != nil {
				return err
			}
			defer a.Close()
			report, err := a.indexer.Build(ctx, c.cfg.Ingest.DocsDir)
			if err != nil {
				return fmt.Errorf("ingest failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Ingested %d files (%d pages) into %d chunks in %s/\n",
				report.Files, report.Pages, report.Chunks, c.cfg.VectorStore.Dir)
			return nil
		},
	}
	cmd.Flags().StringVar(&docsDir, "docs", "", "Documents directory (default from config: docs)")
	return cmd
}
