package phrase

import (
	"fmt"
	"math"

	"technotaggr/internal/services"
)

// Musical grid used to size a phrase.
const (
	BarsPerPhrase = 16
	BeatsPerBar   = 4
)

// Window is one phrase over the segment axis, covering [Start, End).
type Window struct {
	Index int
	Start int
	End   int
}

// Len returns the number of segments in the window.
func (w Window) Len() int {
	return w.End - w.Start
}

// Result holds the phrase-level view of one prediction matrix.
type Result struct {
	Classes           []string
	BPM               float64
	PhraseSeconds     float64
	SegmentDuration   float64
	SegmentsPerPhrase float64
	Windows           []Window
	// Phrases has one row per window, columns in Classes order.
	Phrases [][]float64
	// Aggregated is the column mean of Phrases.
	Aggregated []float64
}

// PhraseSeconds returns the duration of a 16-bar phrase at bpm.
func PhraseSeconds(bpm float64) (float64, error) {
	if !finitePositive(bpm) {
		return 0, aggregationError("phrase duration", fmt.Sprintf("bpm must be positive, got %v", bpm))
	}
	return BarsPerPhrase * BeatsPerBar * 60 / bpm, nil
}

// SegmentsPerPhrase returns how many segments of segmentDuration seconds fit
// in one phrase. The result is usually fractional.
func SegmentsPerPhrase(phraseSeconds, segmentDuration float64) (float64, error) {
	if !finitePositive(segmentDuration) {
		return 0, aggregationError("segments per phrase", fmt.Sprintf("segment duration must be positive, got %v", segmentDuration))
	}
	if !finitePositive(phraseSeconds) {
		return 0, aggregationError("segments per phrase", fmt.Sprintf("phrase duration must be positive, got %v", phraseSeconds))
	}
	return phraseSeconds / segmentDuration, nil
}

// Windows partitions n segments into phrases of spp segments each. Boundary
// k sits at round(k*spp) so rounding error never accumulates, and every
// boundary advances at least one segment past the previous one. The last
// window may be partial; an empty trailing window is never produced.
func Windows(n int, spp float64) ([]Window, error) {
	if !finitePositive(spp) {
		return nil, aggregationError("windows", fmt.Sprintf("segments per phrase must be positive, got %v", spp))
	}
	if n <= 0 {
		return []Window{}, nil
	}
	windows := make([]Window, 0, int(math.Ceil(float64(n)/max(spp, 1))))
	start := 0
	for k := 0; start < n; k++ {
		end := int(math.Round(float64(k+1) * spp))
		if end < start+1 {
			end = start + 1
		}
		if end > n {
			end = n
		}
		windows = append(windows, Window{Index: k, Start: start, End: end})
		start = end
	}
	return windows, nil
}

// Aggregate re-buckets a [segment, class] matrix into phrase rows and a
// whole-track aggregate. The aggregate is the mean of phrase means, so each
// phrase carries equal weight however many segments it spans. A matrix with
// no rows yields empty outputs.
func Aggregate(matrix [][]float64, segmentDuration, bpm float64, classes []string) (Result, error) {
	phraseSeconds, err := PhraseSeconds(bpm)
	if err != nil {
		return Result{}, err
	}
	spp, err := SegmentsPerPhrase(phraseSeconds, segmentDuration)
	if err != nil {
		return Result{}, err
	}
	for i, row := range matrix {
		if len(row) != len(classes) {
			return Result{}, aggregationError("aggregate",
				fmt.Sprintf("segment %d has %d columns, expected %d classes", i, len(row), len(classes)))
		}
	}

	result := Result{
		Classes:           classes,
		BPM:               bpm,
		PhraseSeconds:     phraseSeconds,
		SegmentDuration:   segmentDuration,
		SegmentsPerPhrase: spp,
		Phrases:           [][]float64{},
		Aggregated:        []float64{},
	}
	windows, err := Windows(len(matrix), spp)
	if err != nil {
		return Result{}, err
	}
	result.Windows = windows
	if len(windows) == 0 {
		return result, nil
	}

	for _, w := range windows {
		result.Phrases = append(result.Phrases, columnMean(matrix[w.Start:w.End], len(classes)))
	}
	result.Aggregated = columnMean(result.Phrases, len(classes))
	return result, nil
}

func columnMean(rows [][]float64, cols int) []float64 {
	out := make([]float64, cols)
	if len(rows) == 0 {
		return out
	}
	for _, row := range rows {
		for j, v := range row {
			out[j] += v
		}
	}
	n := float64(len(rows))
	for j := range out {
		out[j] /= n
	}
	return out
}

func finitePositive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}

func aggregationError(operation, message string) error {
	return services.Wrap(services.ErrAggregation, "phrase", operation, message, nil)
}
