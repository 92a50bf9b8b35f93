package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"technotaggr/internal/logging"
	"technotaggr/internal/models"
)

type modelListing struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Version         string   `json:"version"`
	Backbone        string   `json:"backbone"`
	SampleRate      int      `json:"sample_rate"`
	SegmentDuration float64  `json:"segment_duration_seconds"`
	Classes         []string `json:"classes"`
	Path            string   `json:"path"`
}

type skippedListing struct {
	Descriptor string `json:"descriptor"`
	Error      string `json:"error"`
}

func newModelsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "Inspect and fetch the classifier bundle",
	}
	cmd.AddCommand(newModelsListCommand(ctx))
	cmd.AddCommand(newModelsDownloadCommand(ctx))
	return cmd
}

func newModelsListCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the classifiers found in the models directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			catalog, err := models.Scan(cfg.Paths.ModelsDir, logger)
			if err != nil {
				return err
			}

			if jsonOut {
				listing := struct {
					Root        string           `json:"root"`
					Classifiers []modelListing   `json:"classifiers"`
					Skipped     []skippedListing `json:"skipped"`
				}{Root: catalog.Root, Classifiers: []modelListing{}, Skipped: []skippedListing{}}
				for _, c := range catalog.Classifiers {
					listing.Classifiers = append(listing.Classifiers, modelListing{
						ID:              c.ID,
						Name:            c.Name,
						Version:         c.Version,
						Backbone:        c.Backbone.Name,
						SampleRate:      c.SampleRate,
						SegmentDuration: c.Backbone.SegmentDuration,
						Classes:         c.Classes,
						Path:            c.Artifact,
					})
				}
				for _, s := range catalog.Skipped {
					listing.Skipped = append(listing.Skipped, skippedListing{Descriptor: s.Descriptor, Error: s.Err.Error()})
				}
				return writeJSON(cmd, listing)
			}

			out := cmd.OutOrStdout()
			if len(catalog.Classifiers) == 0 {
				fmt.Fprintf(out, "No classifiers found in %s\n", catalog.Root)
			} else {
				rows := make([][]string, 0, len(catalog.Classifiers))
				for _, group := range models.GroupByBackbone(catalog.Classifiers) {
					for _, c := range group.Classifiers {
						rows = append(rows, []string{
							c.Name,
							c.Version,
							c.Backbone.Name,
							fmt.Sprintf("%.0fs", c.Backbone.SegmentDuration),
							strings.Join(c.Classes, ", "),
						})
					}
				}
				fmt.Fprintln(out, renderTable(
					[]tableColumn{col("Classifier"), col("Version"), mergedCol("Backbone"), numCol("Segment"), col("Classes")},
					rows,
				))
			}
			r := newReport(out)
			for _, s := range catalog.Skipped {
				r.check("Skipped", markWarn, fmt.Sprintf("%s: %v", s.Descriptor, s.Err))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print JSON instead of a table")
	return cmd
}

func newModelsDownloadCommand(ctx *commandContext) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "download",
		Short: "Download the configured classifiers and feature extractors",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}

			opts := models.DownloadOptions{
				BaseURL:     cfg.Models.BaseURL,
				Root:        cfg.Paths.ModelsDir,
				Classifiers: cfg.Models.Classifiers,
				Backbones:   cfg.Models.Backbones,
				Force:       force,
				Logger:      logger,
			}
			plan, err := models.PlanDownload(opts)
			if err != nil {
				return err
			}
			bar := newProgressBar(cmd.ErrOrStderr(), "Models    ", len(plan))
			opts.OnFile = func(models.FileResult) { bar.Increment() }
			report, err := models.Download(cmd.Context(), opts)
			bar.Wait()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			r := newReport(out)
			for _, f := range report.Files {
				if f.Status == models.StatusFailed {
					r.check("Failed", markFail, fmt.Sprintf("%s: %v", f.URL, f.Err))
				}
			}
			fmt.Fprintf(out, "Downloaded %d, skipped %d, failed %d files into %s\n",
				report.Downloaded, report.Skipped, report.Failed, cfg.Paths.ModelsDir)
			logging.WithContext(cmd.Context(), logger).Info("model download finished",
				logging.Int("downloaded", report.Downloaded),
				logging.Int("skipped", report.Skipped),
				logging.Int("failed", report.Failed),
			)
			if report.Failed > 0 {
				return fmt.Errorf("%d model files failed to download", report.Failed)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Re-download files that already exist")
	return cmd
}
