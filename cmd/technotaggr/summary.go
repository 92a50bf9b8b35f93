package main

import (
	"fmt"
	"path/filepath"

	"technotaggr/internal/postprocess"
	"technotaggr/internal/session"
)

// analyzeSummary prints the session header and the top class of every model.
func (r *report) analyzeSummary(doc *session.Document) {
	r.heading("Analysis summary")
	r.field("Session", "%s", doc.SessionID)
	r.field("Started", "%s", doc.SessionTimestamp)
	r.field("Input", "%s", doc.InputDirectory)
	r.check("Files", filesMark(doc.FailedFiles), fmt.Sprintf("%d total, %d successful, %d failed", doc.TotalFiles, doc.SuccessfulFiles, doc.FailedFiles))
	r.blank()

	rows := make([][]string, 0)
	for _, file := range doc.Results {
		name := filepath.Base(file.AudioFile)
		for _, model := range file.Models {
			top, ok := model.AggregatedPredictions.Top()
			if !ok {
				continue
			}
			rows = append(rows, []string{
				name,
				displayLabel(model.ModelName),
				model.EmbeddingModel,
				displayLabel(top.Label),
				formatPercent(top.Value),
			})
		}
	}
	if len(rows) > 0 {
		fmt.Fprintln(r.w, renderTable(
			[]tableColumn{mergedCol("File"), col("Model"), col("Backbone"), col("Top class"), numCol("Score")},
			rows,
		))
	}
	fmt.Fprint(r.w, renderFailures(doc.Failures))
}

func filesMark(failed int) mark {
	if failed > 0 {
		return markWarn
	}
	return markOK
}

func renderFailures(failures []session.Failure) string {
	if len(failures) == 0 {
		return ""
	}
	rows := make([][]string, 0, len(failures))
	for _, f := range failures {
		classifier := f.Classifier
		if classifier == "" {
			classifier = "(file)"
		}
		rows = append(rows, []string{filepath.Base(f.AudioFile), classifier, f.Kind, f.Message})
	}
	return "\nFailures\n" + renderTable(
		[]tableColumn{mergedCol("File"), col("Classifier"), col("Kind"), col("Message")},
		rows,
	) + "\n"
}

// phraseSummary prints the tempo and phrase count of every model.
func (r *report) phraseSummary(summary postprocess.Summary) {
	r.heading("Phrase summary")
	r.check("Files", filesMark(summary.FailedFiles), fmt.Sprintf("%d total, %d successful, %d failed", summary.TotalFiles, summary.SuccessfulFiles, summary.FailedFiles))
	r.blank()

	rows := make([][]string, 0)
	for _, file := range summary.Files {
		name := filepath.Base(file.AudioFile)
		bpm := fmt.Sprintf("%.2f", file.BPM)
		for _, model := range file.Models {
			rows = append(rows, []string{
				name,
				bpm,
				displayLabel(model.ModelName),
				fmt.Sprintf("%.3fs (%s)", model.SegmentDurationSeconds, model.SegmentDurationSource),
				fmt.Sprintf("%d", model.NumPhrases),
			})
		}
	}
	if len(rows) > 0 {
		fmt.Fprintln(r.w, renderTable(
			[]tableColumn{mergedCol("File"), numCol("BPM"), col("Model"), col("Segment"), numCol("Phrases")},
			rows,
		))
	}
	fmt.Fprint(r.w, renderFailures(summary.Failures))
}
