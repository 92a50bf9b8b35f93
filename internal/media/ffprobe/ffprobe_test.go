package ffprobe

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"
)

const sampleOutput = `{
  "streams": [
    {"codec_name": "mjpeg", "codec_type": "video"},
    {"codec_name": "flac", "codec_type": "audio", "sample_rate": "44100", "channels": 2, "bits_per_raw_sample": "16"}
  ],
  "format": {"format_name": "flac", "duration": "312.500000"}
}`

func TestParseAudio(t *testing.T) {
	tests := []struct {
		name    string
		output  string
		want    Audio
		wantErr error
	}{
		{
			name:   "skips video stream",
			output: sampleOutput,
			want:   Audio{Codec: "flac", SampleRate: 44100, Channels: 2, BitDepth: 16, Container: "flac", Duration: 312.5},
		},
		{
			name:   "lossy codec without bit depth",
			output: `{"streams":[{"codec_name":"mp3","codec_type":"audio","sample_rate":"48000","channels":1,"bits_per_raw_sample":"N/A"}],"format":{"duration":"N/A"}}`,
			want:   Audio{Codec: "mp3", SampleRate: 48000, Channels: 1},
		},
		{
			name:    "video only",
			output:  `{"streams":[{"codec_type":"video","codec_name":"mjpeg"}],"format":{}}`,
			wantErr: ErrNoAudio,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAudio([]byte(tt.output))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseAudio: %v", err)
			}
			if got != tt.want {
				t.Fatalf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseAudioRejectsGarbage(t *testing.T) {
	if _, err := ParseAudio([]byte("not json")); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestProbeInvokesBinary(t *testing.T) {
	var gotBinary string
	var gotArgs []string
	run := func(_ context.Context, binary string, args ...string) ([]byte, error) {
		gotBinary, gotArgs = binary, args
		return []byte(sampleOutput), nil
	}

	info, err := Probe(context.Background(), run, "ffprobe-custom", "/music/-track.flac")
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if gotBinary != "ffprobe-custom" {
		t.Fatalf("unexpected binary %q", gotBinary)
	}
	if !slices.Equal(gotArgs[len(gotArgs)-2:], []string{"--", "/music/-track.flac"}) {
		t.Fatalf("path should follow --, got %v", gotArgs)
	}
	if info.Codec != "flac" {
		t.Fatalf("unexpected info %+v", info)
	}
}

func TestProbeDefaultsBinary(t *testing.T) {
	var gotBinary string
	run := func(_ context.Context, binary string, _ ...string) ([]byte, error) {
		gotBinary = binary
		return []byte(sampleOutput), nil
	}
	if _, err := Probe(context.Background(), run, " ", "a.flac"); err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if gotBinary != "ffprobe" {
		t.Fatalf("expected ffprobe, got %q", gotBinary)
	}
}

func TestProbeReportsFailure(t *testing.T) {
	run := func(context.Context, string, ...string) ([]byte, error) {
		return []byte("track.xyz: Invalid data found when processing input"), errors.New("exit status 1")
	}
	_, err := Probe(context.Background(), run, "", "track.xyz")
	if err == nil || !strings.Contains(err.Error(), "Invalid data") {
		t.Fatalf("expected ffprobe output in error, got %v", err)
	}
}

func TestProbeRejectsEmptyPath(t *testing.T) {
	if _, err := Probe(context.Background(), nil, "", "  "); err == nil {
		t.Fatal("expected error for empty path")
	}
}
