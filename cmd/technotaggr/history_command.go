package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"technotaggr/internal/config"
	"technotaggr/internal/history"
	"technotaggr/internal/logging"
	"technotaggr/internal/session"
)

// recordHistory adds doc to the session ledger. The results file is the
// source of truth, so a ledger failure is only logged.
func recordHistory(ctx context.Context, cfg *config.Config, logger *slog.Logger, doc *session.Document, resultsPath string) {
	if !cfg.History.Enabled {
		return
	}
	store, err := history.Open(cfg)
	if err == nil {
		err = store.RecordSession(ctx, doc, resultsPath)
		_ = store.Close()
	}
	if err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, logger), "session not recorded in history",
			"history_record_failed",
			logging.String("history_path", cfg.History.Path),
			logging.Hint("check that the history database is writable"),
			logging.Impact("session missing from 'technotaggr history'"),
			logging.Error(err),
		)
	}
}

type historyDetail struct {
	history.Session
	Failures []session.Failure `json:"failures"`
}

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded analysis sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openHistory(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			sessions, err := store.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd, sessions)
			}
			out := cmd.OutOrStdout()
			if len(sessions) == 0 {
				fmt.Fprintln(out, "No sessions recorded")
				return nil
			}
			rows := make([][]string, 0, len(sessions))
			for _, s := range sessions {
				rows = append(rows, []string{
					shortID(s.ID),
					formatStarted(s.StartedAt),
					s.InputDirectory,
					fmt.Sprintf("%d/%d", s.SuccessfulFiles, s.TotalFiles),
					fmt.Sprintf("%d", s.FailureCount),
					yesNo(s.Postprocessed),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]tableColumn{col("ID"), col("Started"), col("Input"), numCol("Files"), numCol("Failures"), col("Phrases")},
				rows,
			))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Sessions to show (0 for all)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print JSON instead of a table")

	cmd.AddCommand(newHistoryShowCommand(ctx))
	return cmd
}

func newHistoryShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "show <session-id>",
		Short: "Show one session and its failures",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openHistory(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			sess, err := store.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			failures, err := store.Failures(cmd.Context(), sess.ID)
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd, historyDetail{Session: sess, Failures: failures})
			}

			out := cmd.OutOrStdout()
			r := newReport(out)
			r.heading("Session " + sess.ID)
			r.field("Started", "%s", formatStarted(sess.StartedAt))
			r.field("Input", "%s", sess.InputDirectory)
			r.field("Output", "%s", sess.OutputDirectory)
			r.field("Results", "%s", valueOr(sess.ResultsPath, "(not saved)"))
			r.field("Classifiers", "%s", strings.Join(sess.Classifiers, ", "))
			r.field("Phrases", "%s", yesNo(sess.Postprocessed))
			r.check("Files", filesMark(sess.FailedFiles),
				fmt.Sprintf("%d total, %d successful, %d failed", sess.TotalFiles, sess.SuccessfulFiles, sess.FailedFiles))
			fmt.Fprint(out, renderFailures(failures))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print JSON instead of text")
	return cmd
}

func openHistory(ctx *commandContext) (*history.Store, error) {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return nil, err
	}
	return history.Open(cfg)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatStarted(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func valueOr(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
