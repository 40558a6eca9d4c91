package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"docqa/internal/client"
	"docqa/internal/qa"
	"docqa/internal/tui"
)

func newAskCmd(c *cli) *cobra.Command {
	var (
		serverURL string
		mode      string
	)
	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer a question, or open the interactive console when none is given",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			question := strings.TrimSpace(strings.Join(args, " "))
			if question == "" {
				// the console owns the terminal
				c.logger = zap.NewNop()
			}

			var answerer qa.Answerer
			title := serverURL
			if serverURL != "" {
				// leave room for the server to report its own deadline
				answerer = client.New(serverURL, client.WithTimeout(answerTimeout(c.cfg)+10*time.Second))
			} else {
				a, err := newApp(ctx, c.cfg, c.logger)
				if err != nil {
					return err
				}
				defer a.Close()
				if answerer, err = a.answerer(ctx, mode); err != nil {
					return err
				}
				title = "local index " + c.cfg.VectorStore.Dir
			}

			if question == "" {
				m := tui.New(answerer, title, time.Duration(c.cfg.Chat.TimeoutSecs)*time.Second)
				_, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
				return err
			}
			ans, err := answerer.Answer(ctx, question)
			if err != nil {
				return err
			}
			printAnswer(cmd.OutOrStdout(), ans)
			return nil
		},
	}
	cmd.Flags().StringVar(&serverURL, "server", "", "Ask a running server (for example http://localhost:5000) instead of the local index")
	cmd.Flags().StringVar(&mode, "mode", "", "QA variant for local answers: chain or pipeline")
	return cmd
}

func printAnswer(w io.Writer, ans *qa.Answer) {
	fmt.Fprintln(w, ans.Text)
	if len(ans.Sources) == 0 {
		return
	}
	fmt.Fprintln(w, "\nSources:")
	for i, src := range ans.Sources {
		where := src.Chunk.Source
		if src.Chunk.Page > 0 {
			where = fmt.Sprintf("%s p.%d", where, src.Chunk.Page)
		}
		fmt.Fprintf(w, "  %d. %s (score %.3f)\n", i+1, where, src.Score)
	}
}
