package inference

import "testing"

func TestFloat32RoundTrip(t *testing.T) {
	values := []float32{0, -1.5, 3.25, 1e-7}
	got, err := decodeFloat32(encodeFloat32(values))
	if err != nil {
		t.Fatalf("decodeFloat32: %v", err)
	}
	for i := range values {
		if got[i] != values[i] {
			t.Fatalf("value %d = %v, want %v", i, got[i], values[i])
		}
	}
	if _, err := decodeFloat32([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected alignment error")
	}
}

func TestMatrixShapes(t *testing.T) {
	if _, err := NewMatrix(2, 2, []float32{1, 2, 3}); err == nil {
		t.Fatal("expected shape error")
	}
	m, err := FromRows([][]float64{{1, 2}, {3, 4}, {5, 6}})
	if err != nil {
		t.Fatalf("FromRows: %v", err)
	}
	if m.Rows != 3 || m.Cols != 2 || m.Row(2)[0] != 5 {
		t.Fatalf("unexpected matrix %+v", m)
	}
	if _, err := FromRows([][]float64{{1, 2}, {3}}); err == nil {
		t.Fatal("expected ragged rows to fail")
	}
	empty, err := FromRows(nil)
	if err != nil || empty.Rows != 0 || len(empty.Float64Rows()) != 0 {
		t.Fatalf("unexpected empty matrix %+v (%v)", empty, err)
	}
}
