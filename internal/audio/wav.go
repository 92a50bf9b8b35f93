package audio

import (
	"fmt"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// ReadWAV decodes an integer PCM WAV file and downmixes it to mono.
func ReadWAV(path string) (*Buffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open wav: %w", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%s is not a valid PCM wav file", path)
	}
	pcm, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("read pcm: %w", err)
	}
	if pcm.Format == nil || pcm.Format.SampleRate <= 0 {
		return nil, fmt.Errorf("%s has no sample rate", path)
	}
	return downmix(pcm, int(dec.BitDepth)), nil
}

// downmix averages interleaved channels and scales integer samples by the
// source bit depth. 8-bit WAV samples are unsigned.
func downmix(pcm *goaudio.IntBuffer, bitDepth int) *Buffer {
	channels := pcm.Format.NumChannels
	if channels < 1 {
		channels = 1
	}
	if bitDepth <= 0 {
		bitDepth = pcm.SourceBitDepth
	}
	if bitDepth <= 0 {
		bitDepth = 16
	}
	scale := float64(int64(1) << uint(bitDepth-1))
	offset := 0.0
	if bitDepth == 8 {
		offset = 128
	}

	frames := len(pcm.Data) / channels
	samples := make([]float32, frames)
	for i := range frames {
		sum := 0.0
		for ch := range channels {
			sum += (float64(pcm.Data[i*channels+ch]) - offset) / scale
		}
		samples[i] = float32(sum / float64(channels))
	}
	return &Buffer{Samples: samples, SampleRate: pcm.Format.SampleRate}
}
