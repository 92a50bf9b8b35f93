package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"technotaggr/internal/config"
	"technotaggr/internal/logging"
	"technotaggr/internal/models"
	"technotaggr/internal/preflight"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration utilities",
	}
	configCmd.AddCommand(newConfigValidateCommand(ctx), newConfigInitCommand())
	return configCmd
}

func newConfigInitCommand() *cobra.Command {
	var targetPath string
	var overwrite bool

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Write a sample configuration and show where it points",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := sampleTarget(targetPath)
			if err != nil {
				return err
			}
			if _, err := os.Stat(target); err == nil && !overwrite {
				return fmt.Errorf("config file already exists at %s (use --overwrite to replace it)", target)
			} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("check config path: %w", err)
			}
			if err := config.CreateSample(target); err != nil {
				return err
			}
			// Reload so the paths shown are the expanded ones a run will use.
			cfg, _, _, err := config.Load(target)
			if err != nil {
				return fmt.Errorf("sample config does not load: %w", err)
			}

			r := newReport(cmd.OutOrStdout())
			r.heading("Sample configuration")
			r.field("Written", "%s", target)
			r.field("Models", "%s", cfg.Paths.ModelsDir)
			r.field("Results", "%s", cfg.Paths.OutputDir)
			r.field("Classifiers", "%d configured on %s", len(cfg.Models.Classifiers), strings.Join(cfg.Models.Backbones, ", "))
			r.blank()
			fmt.Fprintln(r.w, "Next: 'technotaggr models download' fetches the classifiers listed above,")
			fmt.Fprintf(r.w, "then 'technotaggr config validate --config %s' checks the setup.\n", target)
			return nil
		},
	}

	cmd.Flags().StringVarP(&targetPath, "path", "p", "", "Destination for the configuration file")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Overwrite existing configuration if present")
	return cmd
}

// sampleTarget expands path, falling back to the default config location.
func sampleTarget(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		target, err := config.DefaultConfigPath()
		if err != nil {
			return "", fmt.Errorf("determine default config path: %w", err)
		}
		return target, nil
	}
	target, err := config.ExpandPath(path)
	if err != nil {
		return "", fmt.Errorf("resolve config path: %w", err)
	}
	return target, nil
}

func newConfigValidateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration against the installed models and tools",
		Long: "Loads the configuration, scans the model bundle it points at and checks the " +
			"external tools. Only an unreadable configuration fails; bundle and tool problems " +
			"are reported so they can be fixed before 'analyze'.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return fmt.Errorf("ensure directories: %w", err)
			}

			r := newReport(cmd.OutOrStdout())
			source := ctx.configPath
			if !ctx.configFile {
				source += " (not found, defaults in use)"
			}
			r.heading("Configuration")
			r.field("File", "%s", source)
			r.settings(cfg)
			r.blank()

			r.heading("Model bundle")
			issues := r.bundle(cfg)
			r.blank()

			r.heading("Tools")
			issues += r.dependencies(preflight.CheckSystemDeps(cfg))
			r.blank()

			if issues > 0 {
				fmt.Fprintf(r.w, "Configuration valid, %d issue(s) to resolve before analyzing\n", issues)
				return nil
			}
			fmt.Fprintln(r.w, "Configuration valid")
			return nil
		},
	}
}

// settings prints the values that shape an analyze or postprocess run.
func (r *report) settings(cfg *config.Config) {
	r.field("Models", "%s", cfg.Paths.ModelsDir)
	r.field("Results", "%s", cfg.Paths.OutputDir)
	r.field("Logs", "%s", cfg.Paths.LogDir)

	runtime := "cpu"
	if cfg.Inference.CUDAEnabled {
		runtime = "cuda"
	}
	r.field("Inference", "%s (%s), %d worker(s), %ds per request",
		cfg.Inference.Runner, runtime, cfg.Inference.Workers, cfg.Inference.RequestTimeoutSeconds)
	r.field("Tempo", "%s backend, %.0f-%.0f BPM", cfg.Tempo.Backend, cfg.Tempo.MinBPM, cfg.Tempo.MaxBPM)

	scope := "top level only"
	if cfg.Audio.Recursive {
		scope = "recursive"
	}
	r.field("Audio", "%s, %s", strings.Join(cfg.Audio.Extensions, " "), scope)

	if cfg.History.Enabled {
		r.field("History", "%s", cfg.History.Path)
	} else {
		r.field("History", "disabled")
	}
}

// bundle scans the models directory and compares it with the classifiers
// the config asks for. It returns the number of problems found.
func (r *report) bundle(cfg *config.Config) int {
	catalog, err := models.Scan(cfg.Paths.ModelsDir, logging.NewNop())
	if err != nil {
		r.check("Classifiers", markFail, err.Error()+" (run 'technotaggr models download')")
		return 1
	}

	issues := 0
	summary := fmt.Sprintf("%d classifiers across %d backbones", len(catalog.Classifiers), len(catalog.Backbones))
	if len(catalog.Classifiers) == 0 {
		r.check("Classifiers", markFail, summary)
		issues++
	} else {
		r.check("Classifiers", markOK, summary)
	}
	for _, backbone := range catalog.Backbones {
		r.field(backbone.Key(), "%s, %d Hz, %.0fs segments", backbone.Algorithm, backbone.SampleRate, backbone.SegmentDuration)
	}
	for _, skip := range catalog.Skipped {
		r.check("Skipped", markWarn, fmt.Sprintf("%s: %v", skip.Descriptor, skip.Err))
		issues++
	}
	if _, missing := models.Filter(catalog.Classifiers, cfg.Models.Classifiers); len(missing) > 0 {
		r.check("Not installed", markWarn, strings.Join(missing, ", "))
		issues++
	}
	return issues
}
