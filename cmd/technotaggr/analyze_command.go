package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"technotaggr/internal/audio"
	"technotaggr/internal/config"
	"technotaggr/internal/logging"
	"technotaggr/internal/models"
	"technotaggr/internal/pipeline"
	"technotaggr/internal/preflight"
	"technotaggr/internal/services"
	"technotaggr/internal/session"
)

type analyzeOptions struct {
	outputDir string
	modelsDir string
	recursive bool
	models    []string
	workers   int
	noSummary bool
	jsonOut   bool
}

// analyzeReport is the --json output of analyze.
type analyzeReport struct {
	SessionID       string            `json:"session_id"`
	ResultsPath     string            `json:"results_path"`
	TotalFiles      int               `json:"total_files"`
	SuccessfulFiles int               `json:"successful_files"`
	FailedFiles     int               `json:"failed_files"`
	ClassifiersUsed []string          `json:"classifiers_used"`
	Elapsed         string            `json:"elapsed"`
	Failures        []session.Failure `json:"failures"`
}

func newAnalyzeCommand(ctx *commandContext) *cobra.Command {
	var opts analyzeOptions

	cmd := &cobra.Command{
		Use:   "analyze <input_dir>",
		Short: "Run every classifier over the audio files in a directory",
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
			runCfg := *cfg
			if cmd.Flags().Changed("recursive") {
				runCfg.Audio.Recursive = opts.recursive
			}
			if err := applyAnalyzeOverrides(&runCfg, opts); err != nil {
				return err
			}
			return runAnalyze(cmd, &runCfg, logger, args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.outputDir, "output-dir", "o", "", "Directory for the session results file")
	cmd.Flags().StringVarP(&opts.modelsDir, "models-dir", "m", "", "Model bundle directory")
	cmd.Flags().BoolVarP(&opts.recursive, "recursive", "r", false, "Search the input directory recursively")
	cmd.Flags().StringArrayVar(&opts.models, "model", nil, "Only run this classifier (repeatable)")
	cmd.Flags().IntVarP(&opts.workers, "workers", "w", 0, "Files analyzed in parallel")
	cmd.Flags().BoolVar(&opts.noSummary, "no-summary", false, "Skip the summary table")
	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "Print a JSON report instead of tables")
	return cmd
}

func applyAnalyzeOverrides(cfg *config.Config, opts analyzeOptions) error {
	if dir := strings.TrimSpace(opts.outputDir); dir != "" {
		expanded, err := config.ExpandPath(dir)
		if err != nil {
			return fmt.Errorf("resolve output dir: %w", err)
		}
		cfg.Paths.OutputDir = expanded
	}
	if dir := strings.TrimSpace(opts.modelsDir); dir != "" {
		expanded, err := config.ExpandPath(dir)
		if err != nil {
			return fmt.Errorf("resolve models dir: %w", err)
		}
		cfg.Paths.ModelsDir = expanded
	}
	if opts.workers < 0 {
		return fmt.Errorf("--workers must be positive, got %d", opts.workers)
	}
	if opts.workers > 0 {
		cfg.Inference.Workers = opts.workers
	}
	return nil
}

func runAnalyze(cmd *cobra.Command, cfg *config.Config, logger *slog.Logger, input string, opts analyzeOptions) error {
	inputDir, err := resolveInputDir(input)
	if err != nil {
		return err
	}
	if failed := preflight.Failed(preflight.RunAll(cfg)); len(failed) > 0 {
		return preflightError(failed)
	}

	catalog, err := models.Scan(cfg.Paths.ModelsDir, logger)
	if err != nil {
		return err
	}
	classifiers, unknown := models.Filter(catalog.Classifiers, opts.models)
	if len(unknown) > 0 {
		fmt.Fprintf(cmd.ErrOrStderr(), "Unknown classifiers ignored: %s\n", strings.Join(unknown, ", "))
	}
	if len(classifiers) == 0 {
		return services.Wrap(services.ErrConfig, "analyze", "select classifiers", "no classifiers to run", nil)
	}

	files, err := audio.Discover(inputDir, cfg.Audio.Extensions, cfg.Audio.Recursive)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no audio files (%s) found in %s", strings.Join(cfg.Audio.Extensions, " "), inputDir)
	}

	lock, err := session.AcquireLock(cfg.Paths.OutputDir)
	if err != nil {
		return err
	}
	defer func() { _ = lock.Release() }()

	sessionID := uuid.NewString()
	started := time.Now()
	runCtx := services.WithSessionID(cmd.Context(), sessionID)
	logging.WithContext(runCtx, logger).Info("analysis started",
		logging.String("input_directory", inputDir),
		logging.Int("files", len(files)),
		logging.Int("classifiers", len(classifiers)),
		logging.Int("workers", cfg.Inference.Workers),
	)

	bar := newProgressBar(cmd.ErrOrStderr(), "Analyzing ", len(files))
	batch := &pipeline.Batch{
		Decoder: newDecoder(cfg, logger),
		NewEngine: func(int) pipeline.Engine {
			return newEngine(cfg, logger)
		},
		Workers:  cfg.Inference.Workers,
		Logger:   logger,
		OnResult: func(int, pipeline.Result) { bar.Increment() },
	}
	results := batch.Run(runCtx, files, classifiers)
	bar.Wait()

	doc := session.Build(session.Meta{
		SessionID:       sessionID,
		Started:         started,
		InputDirectory:  inputDir,
		OutputDirectory: cfg.Paths.OutputDir,
		ModelsDirectory: cfg.Paths.ModelsDir,
	}, results)
	path, err := session.Save(cfg.Paths.OutputDir, doc)
	if err != nil {
		return err
	}
	recordHistory(runCtx, cfg, logger, doc, path)
	logging.WithContext(runCtx, logger).Info("analysis finished",
		logging.String("results_path", path),
		logging.Int("successful_files", doc.SuccessfulFiles),
		logging.Int("failed_files", doc.FailedFiles),
		logging.Duration("elapsed", time.Since(started)),
	)

	if opts.jsonOut {
		if err := writeJSON(cmd, analyzeReport{
			SessionID:       doc.SessionID,
			ResultsPath:     path,
			TotalFiles:      doc.TotalFiles,
			SuccessfulFiles: doc.SuccessfulFiles,
			FailedFiles:     doc.FailedFiles,
			ClassifiersUsed: doc.ClassifiersUsed,
			Elapsed:         time.Since(started).Round(time.Millisecond).String(),
			Failures:        doc.Failures,
		}); err != nil {
			return err
		}
	} else {
		out := cmd.OutOrStdout()
		if !opts.noSummary {
			newReport(out).analyzeSummary(doc)
		}
		fmt.Fprintf(out, "Results saved to %s\n", path)
	}

	// An interrupted run still saves what finished, then reports the cancel.
	return cmd.Context().Err()
}

func resolveInputDir(input string) (string, error) {
	expanded, err := config.ExpandPath(strings.TrimSpace(input))
	if err != nil {
		return "", fmt.Errorf("resolve input dir: %w", err)
	}
	abs, err := filepath.Abs(expanded)
	if err != nil {
		return "", fmt.Errorf("resolve input dir: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", services.Wrap(services.ErrNotFound, "analyze", "input", abs, err)
	}
	if !info.IsDir() {
		return "", services.Wrap(services.ErrValidation, "analyze", "input", abs+" is not a directory", nil)
	}
	return abs, nil
}

func preflightError(failed []preflight.Result) error {
	parts := make([]string, 0, len(failed))
	for _, r := range failed {
		parts = append(parts, fmt.Sprintf("%s: %s", r.Name, r.Detail))
	}
	return services.Wrap(services.ErrConfig, "preflight", "", strings.Join(parts, "; "), nil)
}
