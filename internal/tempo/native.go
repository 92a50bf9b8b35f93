package tempo

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"

	"technotaggr/internal/audio"
	"technotaggr/internal/logging"
	"technotaggr/internal/services"
)

// STFT parameters for the onset envelope.
const (
	NativeSampleRate = 22050
	frameSize        = 1024
	hopSize          = 256
	defaultMinBPM    = 60
	defaultMaxBPM    = 200
	// Log-normal weighting of candidate tempi around priorBPM.
	priorBPM     = 120
	priorOctaves = 1
)

// NativeEstimator finds the dominant beat period of a spectral-flux onset
// envelope by autocorrelation. It needs no external runtime.
type NativeEstimator struct {
	MinBPM float64
	MaxBPM float64
	Logger *slog.Logger
}

// SampleRate implements Estimator.
func (e *NativeEstimator) SampleRate() int {
	return NativeSampleRate
}

// Estimate implements Estimator.
func (e *NativeEstimator) Estimate(ctx context.Context, buf *audio.Buffer) (float64, error) {
	minBPM, maxBPM := e.MinBPM, e.MaxBPM
	if minBPM <= 0 {
		minBPM = defaultMinBPM
	}
	if maxBPM <= minBPM {
		maxBPM = defaultMaxBPM
	}
	if buf == nil || buf.SampleRate <= 0 {
		return 0, services.Wrap(services.ErrAggregation, "tempo", "native", "empty audio buffer", nil)
	}

	envelope := OnsetEnvelope(buf.Float64())
	frameRate := float64(buf.SampleRate) / hopSize
	minLag := int(math.Floor(frameRate * 60 / maxBPM))
	maxLag := int(math.Ceil(frameRate * 60 / minBPM))
	if len(envelope) < 2*maxLag {
		return 0, services.Wrap(services.ErrAggregation, "tempo", "native",
			fmt.Sprintf("%.1fs of audio is too short to estimate tempo", buf.Duration()), nil)
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	ac := autocorrelate(envelope)
	best, bestScore := -1, 0.0
	for lag := max(minLag, 1); lag <= maxLag && lag < len(ac)-1; lag++ {
		if ac[lag] <= 0 || ac[lag] < ac[lag-1] || ac[lag] < ac[lag+1] {
			continue
		}
		score := ac[lag] * tempoPrior(60*frameRate/float64(lag))
		if best < 0 || score > bestScore {
			best, bestScore = lag, score
		}
	}
	if best < 0 {
		return 0, services.Wrap(services.ErrAggregation, "tempo", "native", "no periodicity in the tempo range", nil)
	}

	bpm := 60 * frameRate / refineLag(ac, best)
	if e.Logger != nil {
		logging.WithContext(ctx, e.Logger).Debug("tempo estimated",
			logging.Float64("bpm", bpm),
			logging.Int("lag_frames", best),
		)
	}
	return bpm, checkBPM(bpm)
}

// OnsetEnvelope returns the half-wave rectified spectral flux of samples,
// one value per hop, with its mean removed.
func OnsetEnvelope(samples []float64) []float64 {
	if len(samples) < frameSize {
		return nil
	}
	hann := window.Hann(frameSize)
	frame := make([]float64, frameSize)
	prev := make([]float64, frameSize/2)
	mag := make([]float64, frameSize/2)

	envelope := make([]float64, 0, (len(samples)-frameSize)/hopSize+1)
	for start := 0; start+frameSize <= len(samples); start += hopSize {
		for i := range frame {
			frame[i] = samples[start+i] * hann[i]
		}
		spectrum := fft.FFTReal(frame)
		flux := 0.0
		for k := range mag {
			mag[k] = math.Log1p(cmplx.Abs(spectrum[k]))
			if d := mag[k] - prev[k]; d > 0 && start > 0 {
				flux += d
			}
		}
		prev, mag = mag, prev
		envelope = append(envelope, flux)
	}

	mean := 0.0
	for _, v := range envelope {
		mean += v
	}
	mean /= float64(len(envelope))
	for i := range envelope {
		envelope[i] -= mean
	}
	return envelope
}

// autocorrelate computes the biased autocorrelation of x through the FFT.
func autocorrelate(x []float64) []float64 {
	n := 1
	for n < 2*len(x) {
		n <<= 1
	}
	padded := make([]float64, n)
	copy(padded, x)
	spectrum := fft.FFTReal(padded)
	for i, c := range spectrum {
		spectrum[i] = complex(real(c)*real(c)+imag(c)*imag(c), 0)
	}
	inverse := fft.IFFT(spectrum)
	out := make([]float64, len(x))
	for i := range out {
		out[i] = real(inverse[i])
	}
	return out
}

func tempoPrior(bpm float64) float64 {
	octaves := math.Log2(bpm/priorBPM) / priorOctaves
	return math.Exp(-0.5 * octaves * octaves)
}

// refineLag fits a parabola through the peak and its neighbours.
func refineLag(ac []float64, lag int) float64 {
	if lag <= 0 || lag >= len(ac)-1 {
		return float64(lag)
	}
	a, b, c := ac[lag-1], ac[lag], ac[lag+1]
	denom := a - 2*b + c
	if denom == 0 {
		return float64(lag)
	}
	offset := 0.5 * (a - c) / denom
	if math.Abs(offset) > 1 {
		return float64(lag)
	}
	return float64(lag) + offset
}
