package config

const (
	defaultConfigPath            = "~/.config/technotaggr/config.toml"
	defaultModelsDir             = "~/.local/share/technotaggr/models"
	defaultOutputDir             = "./technotaggr_results"
	defaultLogDir                = "~/.local/share/technotaggr/logs"
	defaultWorkDir               = "~/.cache/technotaggr/work"
	defaultHistoryPath           = "~/.local/share/technotaggr/history.db"
	defaultModelsBaseURL         = "https://essentia.upf.edu/models"
	defaultRunner                = "uvx"
	defaultWorkers               = 1
	defaultRequestTimeoutSeconds = 600
	defaultTempoBackend          = TempoBackendBridge
	defaultMinBPM                = 60
	defaultMaxBPM                = 200
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
)

// Tempo backends.
const (
	TempoBackendBridge = "bridge"
	TempoBackendNative = "native"
)

var (
	defaultClassifiers = []string{
		"fs_loop_ds",
		"mood_aggressive",
		"mood_happy",
		"mood_relaxed",
		"mood_sad",
		"nsynth_instrument",
		"nsynth_reverb",
		"tonal_atonal",
	}
	defaultBackbones  = []string{"msd-musicnn-1", "discogs-effnet-1"}
	defaultPackages   = []string{"essentia-tensorflow", "numpy", "msgpack"}
	defaultExtensions = []string{".aiff", ".aif", ".mp3", ".wav", ".flac"}
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			ModelsDir: defaultModelsDir,
			OutputDir: defaultOutputDir,
			LogDir:    defaultLogDir,
			WorkDir:   defaultWorkDir,
		},
		Models: Models{
			BaseURL:     defaultModelsBaseURL,
			Classifiers: append([]string(nil), defaultClassifiers...),
			Backbones:   append([]string(nil), defaultBackbones...),
		},
		Inference: Inference{
			Runner:                defaultRunner,
			Packages:              append([]string(nil), defaultPackages...),
			Workers:               defaultWorkers,
			RequestTimeoutSeconds: defaultRequestTimeoutSeconds,
		},
		Audio: Audio{
			FFmpegBinary:  "ffmpeg",
			FFprobeBinary: "ffprobe",
			Extensions:    append([]string(nil), defaultExtensions...),
		},
		Tempo: Tempo{
			Backend: defaultTempoBackend,
			MinBPM:  defaultMinBPM,
			MaxBPM:  defaultMaxBPM,
		},
		History: History{
			Enabled: true,
			Path:    defaultHistoryPath,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
