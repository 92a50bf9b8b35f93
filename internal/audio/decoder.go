package audio

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"technotaggr/internal/logging"
	"technotaggr/internal/media/ffprobe"
	"technotaggr/internal/services"
)

// commandRunner executes an external command and returns combined output.
type commandRunner func(ctx context.Context, binary string, args ...string) ([]byte, error)

func defaultRunner(ctx context.Context, binary string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, binary, args...).CombinedOutput()
}

// Decoder turns audio files into mono buffers at a requested sample rate.
// WAV files that already match are read directly; everything else is
// converted by ffmpeg into a temporary 16-bit WAV first.
type Decoder struct {
	ffmpeg  string
	ffprobe string
	workDir string
	run     commandRunner
	logger  *slog.Logger
}

// Option customizes a Decoder.
type Option func(*Decoder)

// WithBinaries overrides the ffmpeg and ffprobe executables.
func WithBinaries(ffmpegBinary, ffprobeBinary string) Option {
	return func(d *Decoder) {
		if v := strings.TrimSpace(ffmpegBinary); v != "" {
			d.ffmpeg = v
		}
		if v := strings.TrimSpace(ffprobeBinary); v != "" {
			d.ffprobe = v
		}
	}
}

// WithWorkDir sets the directory used for temporary conversions.
func WithWorkDir(dir string) Option {
	return func(d *Decoder) {
		d.workDir = dir
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Decoder) {
		d.logger = logger
	}
}

// WithCommandRunner swaps the process runner, primarily for tests.
func WithCommandRunner(run func(ctx context.Context, binary string, args ...string) ([]byte, error)) Option {
	return func(d *Decoder) {
		if run != nil {
			d.run = run
		}
	}
}

// NewDecoder constructs a Decoder.
func NewDecoder(opts ...Option) *Decoder {
	d := &Decoder{
		ffmpeg:  "ffmpeg",
		ffprobe: "ffprobe",
		run:     defaultRunner,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = logging.NewComponentLogger(d.logger, "decoder")
	return d
}

// Decode returns path as mono audio at sampleRate. Unreadable, unsupported,
// or corrupt input is reported as services.ErrDecode.
func (d *Decoder) Decode(ctx context.Context, path string, sampleRate int) (*Buffer, error) {
	if sampleRate <= 0 {
		return nil, decodeError("decode", fmt.Sprintf("invalid sample rate %d", sampleRate), nil)
	}
	if _, err := os.Stat(path); err != nil {
		return nil, decodeError("stat", path, err)
	}

	stream, err := ffprobe.Probe(ctx, ffprobe.Runner(d.run), d.ffprobe, path)
	if errors.Is(err, ffprobe.ErrNoAudio) {
		return nil, decodeError("probe", fmt.Sprintf("%s has no audio stream", path), nil)
	}
	if err != nil {
		return nil, decodeError("probe", path, err)
	}

	logger := logging.WithContext(ctx, d.logger)
	if directlyReadable(path, stream, sampleRate) {
		logger.Debug("reading wav directly", logging.Int("sample_rate", sampleRate))
		buf, err := ReadWAV(path)
		if err != nil {
			return nil, decodeError("read wav", path, err)
		}
		return buf, nil
	}

	tmpPath, cleanup, err := d.tempWAV()
	if err != nil {
		return nil, decodeError("convert", "create temp file", err)
	}
	defer cleanup()

	args := []string{
		"-hide_banner", "-nostdin", "-v", "error", "-y",
		"-i", path,
		"-vn", "-ac", "1", "-ar", fmt.Sprint(sampleRate),
		"-c:a", "pcm_s16le", "-f", "wav",
		tmpPath,
	}
	logger.Debug("converting with ffmpeg",
		logging.String("codec", stream.Codec),
		logging.Int("source_rate", stream.SampleRate),
		logging.Float64("duration_seconds", stream.Duration),
		logging.Int("sample_rate", sampleRate),
	)
	if output, err := d.run(ctx, d.ffmpeg, args...); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, decodeError("convert", fmt.Sprintf("ffmpeg: %s", lastLine(output)), err)
	}
	buf, err := ReadWAV(tmpPath)
	if err != nil {
		return nil, decodeError("read converted", path, err)
	}
	if buf.SampleRate != sampleRate {
		return nil, decodeError("read converted", fmt.Sprintf("expected %d Hz, ffmpeg produced %d Hz", sampleRate, buf.SampleRate), nil)
	}
	return buf, nil
}

func directlyReadable(path string, stream ffprobe.Audio, sampleRate int) bool {
	if !strings.EqualFold(filepath.Ext(path), ".wav") {
		return false
	}
	if stream.Channels != 1 || stream.SampleRate != sampleRate {
		return false
	}
	switch stream.Codec {
	case "pcm_s16le", "pcm_s24le", "pcm_s32le", "pcm_u8":
		return true
	default:
		return false
	}
}

func (d *Decoder) tempWAV() (string, func(), error) {
	dir := d.workDir
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", nil, err
		}
	}
	f, err := os.CreateTemp(dir, "decode-*.wav")
	if err != nil {
		return "", nil, err
	}
	path := f.Name()
	_ = f.Close()
	return path, func() {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			d.logger.Debug("temp file cleanup failed", logging.String("path", path), logging.Error(err))
		}
	}, nil
}

func decodeError(operation, message string, err error) error {
	return services.Wrap(services.ErrDecode, "audio", operation, message, err)
}

func lastLine(output []byte) string {
	lines := strings.Split(strings.TrimSpace(string(output)), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
