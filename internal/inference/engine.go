package inference

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"technotaggr/internal/audio"
	"technotaggr/internal/logging"
	"technotaggr/internal/models"
	"technotaggr/internal/services"
)

const (
	defaultTimeout  = 10 * time.Minute
	shutdownTimeout = 5 * time.Second
)

// ErrClosed is returned by calls made after Close.
var ErrClosed = errors.New("inference engine closed")

// TempoEstimate is the bridge's beat tracker result.
type TempoEstimate struct {
	BPM        float64
	Confidence float64
}

// BridgeEngine owns one bridge process and serializes every call into it.
// An engine belongs to a single worker; create one per worker instead of
// sharing. The process starts lazily on the first call and is restarted on
// the next call after a timeout or protocol failure.
type BridgeEngine struct {
	starter Starter
	timeout time.Duration
	logger  *slog.Logger

	mu      sync.Mutex
	conn    *Conn
	dec     *msgpack.Decoder
	version string
	closed  bool
}

// EngineOption customizes a BridgeEngine.
type EngineOption func(*BridgeEngine)

// WithTimeout bounds a single request, including bridge start-up.
func WithTimeout(d time.Duration) EngineOption {
	return func(e *BridgeEngine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithEngineLogger attaches a logger.
func WithEngineLogger(logger *slog.Logger) EngineOption {
	return func(e *BridgeEngine) {
		e.logger = logger
	}
}

// NewBridgeEngine constructs an engine that launches its bridge through starter.
func NewBridgeEngine(starter Starter, opts ...EngineOption) *BridgeEngine {
	e := &BridgeEngine{starter: starter, timeout: defaultTimeout}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = logging.NewComponentLogger(e.logger, "inference")
	return e
}

// Embed runs a backbone over buf and returns its [segment, feature] embeddings.
func (e *BridgeEngine) Embed(ctx context.Context, alg models.Algorithm, buf *audio.Buffer, graph, output string) (Matrix, error) {
	if !alg.ProducesEmbeddings() {
		return Matrix{}, services.Wrap(services.ErrValidation, "inference", opEmbed, fmt.Sprintf("%s does not produce embeddings", alg), nil)
	}
	if buf == nil || buf.Len() == 0 {
		return Matrix{}, services.Wrap(services.ErrValidation, "inference", opEmbed, "empty audio buffer", nil)
	}
	resp, err := e.call(ctx, &request{
		Op:         opEmbed,
		Algorithm:  alg.String(),
		Graph:      graph,
		Output:     output,
		SampleRate: buf.SampleRate,
		Samples:    encodeFloat32(buf.Samples),
	})
	if err != nil {
		return Matrix{}, err
	}
	return e.matrixFrom(opEmbed, resp)
}

// Predict runs a classification head over embeddings and returns its
// [segment, class] scores.
func (e *BridgeEngine) Predict(ctx context.Context, alg models.Algorithm, emb Matrix, graph, input, output string) (Matrix, error) {
	if alg != models.AlgorithmPredict2D {
		return Matrix{}, services.Wrap(services.ErrValidation, "inference", opPredict, fmt.Sprintf("%s cannot run a classification head", alg), nil)
	}
	if emb.Rows == 0 {
		return Matrix{}, services.Wrap(services.ErrValidation, "inference", opPredict, "empty embeddings", nil)
	}
	resp, err := e.call(ctx, &request{
		Op:        opPredict,
		Algorithm: alg.String(),
		Graph:     graph,
		Input:     input,
		Output:    output,
		Rows:      emb.Rows,
		Cols:      emb.Cols,
		Matrix:    encodeFloat32(emb.Data),
	})
	if err != nil {
		return Matrix{}, err
	}
	return e.matrixFrom(opPredict, resp)
}

// Tempo runs the bridge's beat tracker over buf.
func (e *BridgeEngine) Tempo(ctx context.Context, buf *audio.Buffer) (TempoEstimate, error) {
	if buf == nil || buf.Len() == 0 {
		return TempoEstimate{}, services.Wrap(services.ErrValidation, "inference", opTempo, "empty audio buffer", nil)
	}
	resp, err := e.call(ctx, &request{
		Op:         opTempo,
		SampleRate: buf.SampleRate,
		Samples:    encodeFloat32(buf.Samples),
	})
	if err != nil {
		return TempoEstimate{}, err
	}
	return TempoEstimate{BPM: resp.BPM, Confidence: resp.Confidence}, nil
}

// Ping starts the bridge if needed and returns the runtime version it reports.
func (e *BridgeEngine) Ping(ctx context.Context) (string, error) {
	resp, err := e.call(ctx, &request{Op: opPing})
	if err != nil {
		return "", err
	}
	if resp.Version != "" {
		return resp.Version, nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.version, nil
}

// Close asks the bridge to exit and releases the process. It is safe to call
// more than once.
func (e *BridgeEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	if e.conn == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if _, err := e.exchangeLocked(ctx, &request{ID: uuid.NewString(), Op: opShutdown}, shutdownTimeout); err != nil {
		e.logger.Debug("bridge shutdown request failed", logging.Error(err))
	}
	return e.stopLocked()
}

func (e *BridgeEngine) matrixFrom(op string, resp response) (Matrix, error) {
	m, err := resp.matrix()
	if err != nil {
		return Matrix{}, services.Wrap(services.ErrExternalTool, "inference", op, "decode tensor", err)
	}
	return m, nil
}

// call sends req and waits for its response, starting the bridge first if
// needed. A response with ok=false is a request failure and leaves the
// bridge running; transport failures and timeouts stop it.
func (e *BridgeEngine) call(ctx context.Context, req *request) (response, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return response{}, ErrClosed
	}
	if err := e.ensureStartedLocked(ctx); err != nil {
		return response{}, err
	}

	req.ID = uuid.NewString()
	started := time.Now()
	resp, err := e.exchangeLocked(ctx, req, e.timeout)
	if err != nil {
		return response{}, err
	}
	if resp.ID != req.ID {
		diag := e.diagnosticsLocked()
		_ = e.stopLocked()
		return response{}, services.Wrap(services.ErrExternalTool, "inference", req.Op,
			fmt.Sprintf("response id %q does not match request %q%s", resp.ID, req.ID, diag), nil)
	}
	if !resp.OK {
		return response{}, services.Wrap(services.ErrExternalTool, "inference", req.Op, resp.Error, nil)
	}
	logging.WithContext(ctx, e.logger).Debug("bridge call complete",
		logging.String("op", req.Op),
		logging.String("algorithm", req.Algorithm),
		logging.Duration("elapsed", time.Since(started)),
	)
	return resp, nil
}

func (e *BridgeEngine) ensureStartedLocked(ctx context.Context) error {
	if e.conn != nil {
		return nil
	}
	if e.starter == nil {
		return services.Wrap(services.ErrConfig, "inference", "start", "no bridge starter configured", nil)
	}
	conn, err := e.starter.Start(ctx)
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "inference", "start", "launch bridge", err)
	}
	e.conn = conn
	e.dec = msgpack.NewDecoder(bufio.NewReader(conn.Stdout))

	ready, err := e.exchangeLocked(ctx, nil, e.timeout)
	if err != nil {
		return err
	}
	if ready.ID != readyID || !ready.OK {
		diag := e.diagnosticsLocked()
		_ = e.stopLocked()
		return services.Wrap(services.ErrExternalTool, "inference", "start",
			fmt.Sprintf("bridge did not report ready%s", diag), nil)
	}
	e.version = ready.Version
	e.logger.Info("inference bridge ready", logging.String("runtime_version", ready.Version))
	return nil
}

// exchangeLocked writes req (when non-nil) and reads one response. The read
// runs in its own goroutine so the caller can give up on cancellation or
// timeout; giving up stops the bridge, which unblocks the reader.
func (e *BridgeEngine) exchangeLocked(ctx context.Context, req *request, timeout time.Duration) (response, error) {
	type reply struct {
		resp response
		err  error
	}
	op := "handshake"
	var payload []byte
	if req != nil {
		op = req.Op
		var err error
		if payload, err = msgpack.Marshal(req); err != nil {
			return response{}, services.Wrap(services.ErrExternalTool, "inference", op, "encode request", err)
		}
	}

	stdin, dec := e.conn.Stdin, e.dec
	done := make(chan reply, 1)
	go func() {
		var r reply
		if payload != nil {
			if _, err := stdin.Write(payload); err != nil {
				r.err = fmt.Errorf("write request: %w", err)
				done <- r
				return
			}
		}
		if err := dec.Decode(&r.resp); err != nil {
			r.err = fmt.Errorf("read response: %w", err)
		}
		done <- r
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case r := <-done:
		if r.err != nil {
			diag := e.diagnosticsLocked()
			_ = e.stopLocked()
			return response{}, services.Wrap(services.ErrExternalTool, "inference", op, "bridge transport failed"+diag, r.err)
		}
		return r.resp, nil
	case <-ctx.Done():
		_ = e.stopLocked()
		return response{}, ctx.Err()
	case <-timer.C:
		_ = e.stopLocked()
		return response{}, services.Wrap(services.ErrExternalTool, "inference", op,
			fmt.Sprintf("no response within %s", timeout), nil)
	}
}

func (e *BridgeEngine) diagnosticsLocked() string {
	if e.conn == nil || e.conn.Diagnostics == nil {
		return ""
	}
	if tail := strings.TrimSpace(e.conn.Diagnostics()); tail != "" {
		return " (stderr: " + tail + ")"
	}
	return ""
}

func (e *BridgeEngine) stopLocked() error {
	conn := e.conn
	e.conn = nil
	e.dec = nil
	if conn == nil || conn.Stop == nil {
		return nil
	}
	return conn.Stop()
}
