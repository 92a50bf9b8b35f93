// Package audio decodes audio files into mono float buffers at the sample
// rate a backbone asks for, and discovers supported files in an input
// directory.
//
// Every file is probed with ffprobe first so inputs without an audio stream
// fail fast. Mono PCM WAV files at the right rate are read in-process with
// go-audio/wav; anything else is resampled and downmixed by ffmpeg into a
// temporary WAV that is read the same way and then removed.
package audio
