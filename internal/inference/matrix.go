package inference

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Matrix is a dense row-major float32 tensor with two dimensions. Embeddings
// are [segment, feature] and predictions are [segment, class].
type Matrix struct {
	Rows int
	Cols int
	Data []float32
}

// NewMatrix validates that data holds rows*cols values.
func NewMatrix(rows, cols int, data []float32) (Matrix, error) {
	if rows < 0 || cols < 0 {
		return Matrix{}, fmt.Errorf("invalid matrix shape %dx%d", rows, cols)
	}
	if len(data) != rows*cols {
		return Matrix{}, fmt.Errorf("matrix %dx%d needs %d values, got %d", rows, cols, rows*cols, len(data))
	}
	return Matrix{Rows: rows, Cols: cols, Data: data}, nil
}

// FromRows builds a matrix from a slice of equally sized rows.
func FromRows(rows [][]float64) (Matrix, error) {
	if len(rows) == 0 {
		return Matrix{}, nil
	}
	cols := len(rows[0])
	data := make([]float32, 0, len(rows)*cols)
	for i, row := range rows {
		if len(row) != cols {
			return Matrix{}, fmt.Errorf("row %d has %d values, expected %d", i, len(row), cols)
		}
		for _, v := range row {
			data = append(data, float32(v))
		}
	}
	return Matrix{Rows: len(rows), Cols: cols, Data: data}, nil
}

// Row returns row i without copying.
func (m Matrix) Row(i int) []float32 {
	return m.Data[i*m.Cols : (i+1)*m.Cols]
}

// Float64Rows copies the matrix into a slice of rows.
func (m Matrix) Float64Rows() [][]float64 {
	out := make([][]float64, m.Rows)
	for i := range m.Rows {
		row := make([]float64, m.Cols)
		for j, v := range m.Row(i) {
			row[j] = float64(v)
		}
		out[i] = row
	}
	return out
}

func encodeFloat32(values []float32) []byte {
	out := make([]byte, 0, len(values)*4)
	for _, v := range values {
		out = binary.LittleEndian.AppendUint32(out, math.Float32bits(v))
	}
	return out
}

func decodeFloat32(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("tensor payload of %d bytes is not float32 aligned", len(data))
	}
	out := make([]float32, len(data)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return out, nil
}
