package pipeline

import (
	"context"
	"errors"
	"fmt"

	"technotaggr/internal/audio"
	"technotaggr/internal/inference"
	"technotaggr/internal/models"
	"technotaggr/internal/services"
)

// EmbeddingCache memoizes decoded audio per sample rate and embeddings per
// backbone key for a single audio file. Failures are memoized as well, so a
// backbone that failed once is not retried for the same file. A cache is
// created by Run and dropped when Run returns.
type EmbeddingCache struct {
	file    string
	decoder Decoder
	engine  Engine

	buffers    map[int]bufferEntry
	embeddings map[string]embeddingEntry
	embedCalls int
	first      *audio.Buffer
}

type bufferEntry struct {
	buf *audio.Buffer
	err error
}

type embeddingEntry struct {
	emb inference.Matrix
	err error
}

func newEmbeddingCache(file string, decoder Decoder, engine Engine) *EmbeddingCache {
	return &EmbeddingCache{
		file:       file,
		decoder:    decoder,
		engine:     engine,
		buffers:    make(map[int]bufferEntry),
		embeddings: make(map[string]embeddingEntry),
	}
}

// Audio returns the file decoded at sampleRate, decoding at most once per rate.
func (c *EmbeddingCache) Audio(ctx context.Context, sampleRate int) (*audio.Buffer, error) {
	if entry, ok := c.buffers[sampleRate]; ok {
		return entry.buf, entry.err
	}
	buf, err := c.decoder.Decode(ctx, c.file, sampleRate)
	if err == nil && (buf == nil || buf.Len() == 0) {
		err = services.Wrap(services.ErrDecode, "pipeline", "decode", fmt.Sprintf("%s decoded to an empty buffer", c.file), nil)
	}
	if err != nil && !errors.Is(err, services.ErrDecode) && ctx.Err() == nil {
		err = services.Wrap(services.ErrDecode, "pipeline", "decode", c.file, err)
	}
	if err != nil {
		buf = nil
	} else if c.first == nil {
		c.first = buf
	}
	c.buffers[sampleRate] = bufferEntry{buf: buf, err: err}
	return buf, err
}

// Embeddings returns the backbone's embedding sequence for the file,
// computing it at most once.
func (c *EmbeddingCache) Embeddings(ctx context.Context, backbone *models.BackboneConfig) (inference.Matrix, error) {
	key := backbone.Key()
	if entry, ok := c.embeddings[key]; ok {
		return entry.emb, entry.err
	}
	emb, err := c.embed(ctx, backbone)
	c.embeddings[key] = embeddingEntry{emb: emb, err: err}
	return emb, err
}

func (c *EmbeddingCache) embed(ctx context.Context, backbone *models.BackboneConfig) (inference.Matrix, error) {
	buf, err := c.Audio(ctx, backbone.SampleRate)
	if err != nil {
		return inference.Matrix{}, err
	}
	c.embedCalls++
	emb, err := c.engine.Embed(ctx, backbone.Algorithm, buf, backbone.Artifact, backbone.OutputNode)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return inference.Matrix{}, ctxErr
		}
		return inference.Matrix{}, services.Wrap(services.ErrBackbone, "pipeline", "embed", backbone.Name, err)
	}
	if emb.Rows == 0 {
		return inference.Matrix{}, services.Wrap(services.ErrBackbone, "pipeline", "embed",
			fmt.Sprintf("%s produced no segments", backbone.Name), nil)
	}
	return emb, nil
}

// EmbedCalls reports how many embedding computations the cache performed.
func (c *EmbeddingCache) EmbedCalls() int {
	return c.embedCalls
}

// Decoded returns the first buffer decoded successfully, if any.
func (c *EmbeddingCache) Decoded() *audio.Buffer {
	return c.first
}
