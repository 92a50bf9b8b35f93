package tempo

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"technotaggr/internal/audio"
	"technotaggr/internal/config"
	"technotaggr/internal/inference"
	"technotaggr/internal/logging"
	"technotaggr/internal/services"
)

// Estimator produces a BPM estimate from mono audio.
type Estimator interface {
	// SampleRate is the rate the estimator wants its input decoded at.
	SampleRate() int
	Estimate(ctx context.Context, buf *audio.Buffer) (float64, error)
}

// Runner is the subset of the inference engine used for beat tracking.
type Runner interface {
	Tempo(ctx context.Context, buf *audio.Buffer) (inference.TempoEstimate, error)
}

// BridgeSampleRate is the rate the bridge beat tracker works at.
const BridgeSampleRate = 44100

// BridgeEstimator delegates to the inference bridge's beat tracker.
type BridgeEstimator struct {
	Runner Runner
	Logger *slog.Logger
}

// SampleRate implements Estimator.
func (e *BridgeEstimator) SampleRate() int {
	return BridgeSampleRate
}

// Estimate implements Estimator.
func (e *BridgeEstimator) Estimate(ctx context.Context, buf *audio.Buffer) (float64, error) {
	est, err := e.Runner.Tempo(ctx, buf)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, ctxErr
		}
		return 0, services.Wrap(services.ErrAggregation, "tempo", "bridge", "beat tracker failed", err)
	}
	if err := checkBPM(est.BPM); err != nil {
		return 0, err
	}
	if e.Logger != nil {
		logging.WithContext(ctx, e.Logger).Debug("tempo estimated",
			logging.Float64("bpm", est.BPM),
			logging.Float64("confidence", est.Confidence),
		)
	}
	return est.BPM, nil
}

// New selects the estimator configured in cfg. runner is only used by the
// bridge backend and may be nil for the native one.
func New(cfg *config.Config, runner Runner, logger *slog.Logger) (Estimator, error) {
	logger = logging.NewComponentLogger(logger, "tempo")
	switch strings.ToLower(strings.TrimSpace(cfg.Tempo.Backend)) {
	case config.TempoBackendNative:
		return &NativeEstimator{MinBPM: cfg.Tempo.MinBPM, MaxBPM: cfg.Tempo.MaxBPM, Logger: logger}, nil
	case config.TempoBackendBridge, "":
		if runner == nil {
			return nil, services.Wrap(services.ErrConfig, "tempo", "select", "bridge backend needs an inference engine", nil)
		}
		return &BridgeEstimator{Runner: runner, Logger: logger}, nil
	default:
		return nil, services.Wrap(services.ErrConfig, "tempo", "select", fmt.Sprintf("unknown backend %q", cfg.Tempo.Backend), nil)
	}
}

func checkBPM(bpm float64) error {
	if !(bpm > 0) {
		return services.Wrap(services.ErrAggregation, "tempo", "estimate", fmt.Sprintf("invalid tempo %v", bpm), nil)
	}
	return nil
}
