// Package ffprobe reads the audio stream properties technotaggr needs before
// decoding: codec, sample rate, channel count and duration. Probe shells out
// to ffprobe through a Runner so tests can substitute the process.
package ffprobe
