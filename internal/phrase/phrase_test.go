package phrase_test

import (
	"errors"
	"math"
	"testing"

	"technotaggr/internal/phrase"
	"technotaggr/internal/services"
)

func TestPhraseSeconds(t *testing.T) {
	tests := []struct {
		bpm  float64
		want float64
	}{
		{60, 64},
		{120, 32},
		{128, 30},
		{174, 3840.0 / 174},
	}
	for _, tt := range tests {
		got, err := phrase.PhraseSeconds(tt.bpm)
		if err != nil {
			t.Fatalf("PhraseSeconds(%v): %v", tt.bpm, err)
		}
		if math.Abs(got-tt.want) > 1e-12 {
			t.Fatalf("PhraseSeconds(%v) = %v, want %v", tt.bpm, got, tt.want)
		}
	}

	for _, bpm := range []float64{0, -120, math.NaN(), math.Inf(1)} {
		if _, err := phrase.PhraseSeconds(bpm); !errors.Is(err, services.ErrAggregation) {
			t.Fatalf("PhraseSeconds(%v) expected ErrAggregation, got %v", bpm, err)
		}
	}
}

func TestWindowsCoverEverySegmentOnce(t *testing.T) {
	for _, bpm := range []float64{60, 128, 174} {
		for _, segDur := range []float64{1, 2} {
			for _, n := range []int{1, 7, 64, 100, 333} {
				phraseSeconds, err := phrase.PhraseSeconds(bpm)
				if err != nil {
					t.Fatal(err)
				}
				spp, err := phrase.SegmentsPerPhrase(phraseSeconds, segDur)
				if err != nil {
					t.Fatal(err)
				}
				windows, err := phrase.Windows(n, spp)
				if err != nil {
					t.Fatalf("Windows(%d, %v): %v", n, spp, err)
				}
				if len(windows) == 0 {
					t.Fatalf("bpm=%v seg=%v n=%d: no windows", bpm, segDur, n)
				}

				next := 0
				for i, w := range windows {
					if w.Index != i || w.Start != next {
						t.Fatalf("bpm=%v seg=%v n=%d: window %d = %+v, expected start %d", bpm, segDur, n, i, w, next)
					}
					if w.Len() < 1 {
						t.Fatalf("bpm=%v seg=%v n=%d: empty window %+v", bpm, segDur, n, w)
					}
					last := i == len(windows)-1
					if drift := float64(w.Len()) - spp; drift > 1 || (!last && drift < -1) {
						t.Fatalf("bpm=%v seg=%v n=%d: window %+v drifts %v from %v", bpm, segDur, n, w, drift, spp)
					}
					next = w.End
				}
				if next != n {
					t.Fatalf("bpm=%v seg=%v n=%d: windows end at %d", bpm, segDur, n, next)
				}
			}
		}
	}
}

func TestWindowsBoundaries(t *testing.T) {
	tests := []struct {
		name string
		n    int
		spp  float64
		want [][2]int
	}{
		{"exact multiple drops empty tail", 128, 64, [][2]int{{0, 64}, {64, 128}}},
		{"partial final window kept", 130, 64, [][2]int{{0, 64}, {64, 128}, {128, 130}}},
		{"cumulative rounding", 10, 2.5, [][2]int{{0, 3}, {3, 5}, {5, 8}, {8, 10}}},
		{"floor of one segment", 4, 0.4, [][2]int{{0, 1}, {1, 2}, {2, 3}, {3, 4}}},
		{"short track", 3, 64, [][2]int{{0, 3}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			windows, err := phrase.Windows(tt.n, tt.spp)
			if err != nil {
				t.Fatalf("Windows: %v", err)
			}
			if len(windows) != len(tt.want) {
				t.Fatalf("expected %d windows, got %+v", len(tt.want), windows)
			}
			for i, w := range windows {
				if w.Start != tt.want[i][0] || w.End != tt.want[i][1] {
					t.Fatalf("window %d = [%d,%d), want [%d,%d)", i, w.Start, w.End, tt.want[i][0], tt.want[i][1])
				}
			}
		})
	}
}

func TestWindowsRejectsInvalidWidth(t *testing.T) {
	for _, spp := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		if _, err := phrase.Windows(10, spp); !errors.Is(err, services.ErrAggregation) {
			t.Fatalf("Windows(10, %v) expected ErrAggregation, got %v", spp, err)
		}
	}
}

func TestAggregateAlternatingRows(t *testing.T) {
	matrix := make([][]float64, 10)
	for i := range matrix {
		if i%2 == 0 {
			matrix[i] = []float64{1, 0}
		} else {
			matrix[i] = []float64{0, 1}
		}
	}

	result, err := phrase.Aggregate(matrix, 1, 60, []string{"a", "b"})
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if result.PhraseSeconds != 64 || result.SegmentsPerPhrase != 64 {
		t.Fatalf("unexpected phrase sizing %v / %v", result.PhraseSeconds, result.SegmentsPerPhrase)
	}
	if len(result.Phrases) != 1 {
		t.Fatalf("expected one phrase, got %d", len(result.Phrases))
	}
	for _, got := range [][]float64{result.Phrases[0], result.Aggregated} {
		if math.Abs(got[0]-0.5) > 1e-12 || math.Abs(got[1]-0.5) > 1e-12 {
			t.Fatalf("expected [0.5 0.5], got %v", got)
		}
	}
}

func TestAggregateIsMeanOfPhraseMeans(t *testing.T) {
	// 1920 bpm gives a 2 second phrase, so two 1 second segments per phrase.
	matrix := [][]float64{{1, 0}, {1, 0}, {0, 1}}

	result, err := phrase.Aggregate(matrix, 1, 1920, []string{"on", "off"})
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if len(result.Phrases) != 2 {
		t.Fatalf("expected 2 phrases, got %v", result.Phrases)
	}

	var want [2]float64
	for _, row := range result.Phrases {
		want[0] += row[0] / float64(len(result.Phrases))
		want[1] += row[1] / float64(len(result.Phrases))
	}
	for j := range want {
		if math.Abs(result.Aggregated[j]-want[j]) > 1e-12 {
			t.Fatalf("aggregated %v is not the mean of phrase rows %v", result.Aggregated, want)
		}
	}
	if math.Abs(result.Aggregated[0]-0.5) > 1e-12 {
		t.Fatalf("expected equal phrase weighting, got %v", result.Aggregated)
	}
}

func TestAggregateEmptyMatrix(t *testing.T) {
	result, err := phrase.Aggregate(nil, 2, 128, []string{"a", "b"})
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if len(result.Phrases) != 0 || len(result.Aggregated) != 0 || len(result.Windows) != 0 {
		t.Fatalf("expected empty outputs, got %+v", result)
	}
	if result.Phrases == nil || result.Aggregated == nil {
		t.Fatal("empty outputs should be non-nil so they serialize as arrays")
	}
}

func TestAggregateErrors(t *testing.T) {
	tests := []struct {
		name   string
		matrix [][]float64
		segDur float64
		bpm    float64
	}{
		{"zero bpm", [][]float64{{1, 0}}, 1, 0},
		{"negative bpm", [][]float64{{1, 0}}, 1, -90},
		{"zero segment duration", [][]float64{{1, 0}}, 0, 120},
		{"column mismatch", [][]float64{{1, 0}, {0.2, 0.3, 0.5}}, 1, 120},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := phrase.Aggregate(tt.matrix, tt.segDur, tt.bpm, []string{"a", "b"})
			if !errors.Is(err, services.ErrAggregation) {
				t.Fatalf("expected ErrAggregation, got %v", err)
			}
		})
	}
}
