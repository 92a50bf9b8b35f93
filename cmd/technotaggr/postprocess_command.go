package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"technotaggr/internal/config"
	"technotaggr/internal/logging"
	"technotaggr/internal/postprocess"
	"technotaggr/internal/services"
	"technotaggr/internal/session"
	"technotaggr/internal/tempo"
)

type postprocessOptions struct {
	output        string
	audioBasePath string
	noSummary     bool
	jsonOut       bool
}

type postprocessReport struct {
	ResultsPath string `json:"results_path"`
	postprocess.Summary
}

func newPostprocessCommand(ctx *commandContext) *cobra.Command {
	var opts postprocessOptions

	cmd := &cobra.Command{
		Use:   "postprocess <results.json>",
		Short: "Add tempo and 16-bar phrase predictions to a saved session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}

			input, err := config.ExpandPath(strings.TrimSpace(args[0]))
			if err != nil {
				return fmt.Errorf("resolve results path: %w", err)
			}
			target := input
			if out := strings.TrimSpace(opts.output); out != "" {
				if target, err = config.ExpandPath(out); err != nil {
					return fmt.Errorf("resolve output path: %w", err)
				}
			}
			base := strings.TrimSpace(opts.audioBasePath)
			if base != "" {
				if base, err = config.ExpandPath(base); err != nil {
					return fmt.Errorf("resolve audio base path: %w", err)
				}
			}

			doc, err := session.Load(input)
			if err != nil {
				return err
			}
			lock, err := session.AcquireLock(filepath.Dir(target))
			if err != nil {
				return err
			}
			defer func() { _ = lock.Release() }()

			var engine bridgeEngine
			var runner tempo.Runner
			if strings.EqualFold(strings.TrimSpace(cfg.Tempo.Backend), config.TempoBackendBridge) {
				engine = newEngine(cfg, logger)
				defer func() { _ = engine.Close() }()
				runner = engine
			}
			estimator, err := tempo.New(cfg, runner, logger)
			if err != nil {
				return err
			}

			runCtx := services.WithSessionID(cmd.Context(), doc.SessionID)
			bar := newProgressBar(cmd.ErrOrStderr(), "Phrasing  ", len(doc.Results))
			summary, err := postprocess.Run(runCtx, doc, postprocess.Options{
				AudioBasePath: base,
				Decoder:       newDecoder(cfg, logger),
				Estimator:     estimator,
				Logger:        logger,
				OnFile:        func(int, string, error) { bar.Increment() },
			})
			bar.Wait()
			if err != nil {
				// A cancelled pass leaves the results file as it was.
				return err
			}

			if err := session.Write(target, doc); err != nil {
				return err
			}
			recordHistory(runCtx, cfg, logger, doc, target)
			logging.WithContext(runCtx, logger).Info("postprocess finished",
				logging.String("results_path", target),
				logging.Int("successful_files", summary.SuccessfulFiles),
				logging.Int("failed_files", summary.FailedFiles),
			)

			if opts.jsonOut {
				return writeJSON(cmd, postprocessReport{ResultsPath: target, Summary: summary})
			}
			out := cmd.OutOrStdout()
			if !opts.noSummary {
				newReport(out).phraseSummary(summary)
			}
			fmt.Fprintf(out, "Results saved to %s\n", target)
			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Write the updated session here instead of in place")
	cmd.Flags().StringVar(&opts.audioBasePath, "audio-base-path", "", "Directory that relative audio paths are resolved against")
	cmd.Flags().BoolVar(&opts.noSummary, "no-summary", false, "Skip the summary table")
	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "Print a JSON report instead of tables")
	return cmd
}
