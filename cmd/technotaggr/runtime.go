package main

import (
	"log/slog"
	"time"

	"technotaggr/internal/audio"
	"technotaggr/internal/config"
	"technotaggr/internal/inference"
	"technotaggr/internal/pipeline"
	"technotaggr/internal/tempo"
)

// bridgeEngine is everything the commands need from one inference context.
type bridgeEngine interface {
	pipeline.Engine
	tempo.Runner
	Close() error
}

// Constructors for the external capabilities. Tests replace them with
// in-process fakes.
var (
	newDecoder = func(cfg *config.Config, logger *slog.Logger) pipeline.Decoder {
		return audio.NewDecoder(
			audio.WithBinaries(cfg.FFmpegBinary(), cfg.FFprobeBinary()),
			audio.WithWorkDir(cfg.Paths.WorkDir),
			audio.WithLogger(logger),
		)
	}

	newEngine = func(cfg *config.Config, logger *slog.Logger) bridgeEngine {
		return inference.NewBridgeEngine(
			inference.NewUVXStarter(cfg, logger),
			inference.WithTimeout(time.Duration(cfg.Inference.RequestTimeoutSeconds)*time.Second),
			inference.WithEngineLogger(logger),
		)
	}
)
