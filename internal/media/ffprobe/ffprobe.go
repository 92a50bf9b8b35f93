package ffprobe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// ErrNoAudio is returned when the container holds no audio stream.
var ErrNoAudio = errors.New("no audio stream")

// Audio summarises the first audio stream of a file.
type Audio struct {
	Codec      string
	SampleRate int
	Channels   int
	// BitDepth is 0 for lossy codecs, where ffprobe reports no raw sample size.
	BitDepth  int
	Container string
	// Duration in seconds; 0 when the container does not report one.
	Duration float64
}

// Runner executes a command and returns its combined output.
type Runner func(ctx context.Context, binary string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, binary string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, binary, args...).CombinedOutput()
}

// Probe runs ffprobe on path and returns its primary audio stream. A nil run
// executes the binary directly; an empty binary means "ffprobe" on PATH.
func Probe(ctx context.Context, run Runner, binary, path string) (Audio, error) {
	if strings.TrimSpace(path) == "" {
		return Audio{}, errors.New("ffprobe: empty path")
	}
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffprobe"
	}
	if run == nil {
		run = execRunner
	}

	output, err := run(ctx, binary, "-v", "error", "-hide_banner",
		"-show_entries", "stream=codec_type,codec_name,sample_rate,channels,bits_per_raw_sample:format=format_name,duration",
		"-of", "json", "--", path)
	if err != nil {
		return Audio{}, fmt.Errorf("ffprobe %s: %w: %s", path, err, strings.TrimSpace(string(output)))
	}
	return ParseAudio(output)
}

type probeOutput struct {
	Streams []struct {
		CodecType  string `json:"codec_type"`
		CodecName  string `json:"codec_name"`
		SampleRate string `json:"sample_rate"`
		Channels   int    `json:"channels"`
		BitDepth   string `json:"bits_per_raw_sample"`
	} `json:"streams"`
	Format struct {
		FormatName string `json:"format_name"`
		Duration   string `json:"duration"`
	} `json:"format"`
}

// ParseAudio extracts the first audio stream from ffprobe JSON output.
// Numeric fields ffprobe leaves empty or reports as "N/A" become 0.
func ParseAudio(output []byte) (Audio, error) {
	var probe probeOutput
	if err := json.Unmarshal(output, &probe); err != nil {
		return Audio{}, fmt.Errorf("ffprobe: parse output: %w", err)
	}
	for _, stream := range probe.Streams {
		if !strings.EqualFold(stream.CodecType, "audio") {
			continue
		}
		return Audio{
			Codec:      stream.CodecName,
			SampleRate: int(number(stream.SampleRate)),
			Channels:   stream.Channels,
			BitDepth:   int(number(stream.BitDepth)),
			Container:  probe.Format.FormatName,
			Duration:   number(probe.Format.Duration),
		}, nil
	}
	return Audio{}, ErrNoAudio
}

func number(value string) float64 {
	parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || parsed < 0 {
		return 0
	}
	return parsed
}
