package inference

import "fmt"

// Bridge operations.
const (
	opEmbed    = "embed"
	opPredict  = "predict"
	opTempo    = "tempo"
	opPing     = "ping"
	opShutdown = "shutdown"

	readyID = "ready"
)

// request is one msgpack frame written to the bridge. Frames are
// self-delimiting so no length prefix is needed.
type request struct {
	ID         string `msgpack:"id"`
	Op         string `msgpack:"op"`
	Algorithm  string `msgpack:"algorithm,omitempty"`
	Graph      string `msgpack:"graph,omitempty"`
	Input      string `msgpack:"input,omitempty"`
	Output     string `msgpack:"output,omitempty"`
	SampleRate int    `msgpack:"sample_rate,omitempty"`
	Samples    []byte `msgpack:"samples,omitempty"`
	Rows       int    `msgpack:"rows,omitempty"`
	Cols       int    `msgpack:"cols,omitempty"`
	Matrix     []byte `msgpack:"matrix,omitempty"`
}

// response is the bridge's reply to exactly one request, matched by ID.
type response struct {
	ID         string  `msgpack:"id"`
	OK         bool    `msgpack:"ok"`
	Error      string  `msgpack:"error,omitempty"`
	Rows       int     `msgpack:"rows,omitempty"`
	Cols       int     `msgpack:"cols,omitempty"`
	Data       []byte  `msgpack:"data,omitempty"`
	BPM        float64 `msgpack:"bpm,omitempty"`
	Confidence float64 `msgpack:"confidence,omitempty"`
	Version    string  `msgpack:"version,omitempty"`
}

func (r response) matrix() (Matrix, error) {
	values, err := decodeFloat32(r.Data)
	if err != nil {
		return Matrix{}, err
	}
	m, err := NewMatrix(r.Rows, r.Cols, values)
	if err != nil {
		return Matrix{}, fmt.Errorf("bridge returned %w", err)
	}
	return m, nil
}
