package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"technotaggr/internal/deps"
	"technotaggr/internal/preflight"
)

// mark tags a report line with an outcome.
type mark int

const (
	markNone mark = iota
	markOK
	markWarn
	markFail
)

const (
	colorReset  = "\x1b[0m"
	colorBold   = "\x1b[1m"
	colorRed    = "\x1b[31m"
	colorGreen  = "\x1b[32m"
	colorYellow = "\x1b[33m"
)

// labelWidth aligns the value column of fields and checks.
const labelWidth = 18

func (m mark) tag() string {
	switch m {
	case markOK:
		return "ok"
	case markWarn:
		return "warn"
	case markFail:
		return "fail"
	default:
		return ""
	}
}

func (m mark) color() string {
	switch m {
	case markOK:
		return colorGreen
	case markWarn:
		return colorYellow
	case markFail:
		return colorRed
	default:
		return ""
	}
}

// report writes the human-readable blocks shared by the deps, config,
// history and summary output. Color is only used on a terminal.
type report struct {
	w     io.Writer
	color bool
}

func newReport(w io.Writer) *report {
	return &report{w: w, color: isTerminal(w)}
}

// heading prints title underlined to its own width.
func (r *report) heading(title string) {
	title = strings.TrimSpace(title)
	underline := strings.Repeat("=", len(title))
	if r.color {
		title = colorBold + title + colorReset
	}
	fmt.Fprintf(r.w, "%s\n%s\n", title, underline)
}

// field prints an aligned "label  value" line.
func (r *report) field(label, format string, args ...any) {
	fmt.Fprintf(r.w, "%-*s %s\n", labelWidth, label, fmt.Sprintf(format, args...))
}

// check prints a field whose value is prefixed with an outcome tag, e.g.
// "FFmpeg             ok    /usr/bin/ffmpeg".
func (r *report) check(label string, m mark, detail string) {
	tag := fmt.Sprintf("%-4s", m.tag())
	if r.color && m.color() != "" {
		tag = m.color() + tag + colorReset
	}
	r.field(label, "%s  %s", tag, strings.TrimSpace(detail))
}

// blank ends a block.
func (r *report) blank() {
	fmt.Fprintln(r.w)
}

// dependencies prints one check per binary and returns how many required
// binaries are missing. Missing optional binaries only warn.
func (r *report) dependencies(statuses []deps.Status) int {
	missing := 0
	for _, dep := range statuses {
		if dep.Available {
			r.check(dep.Name, markOK, valueOr(dep.Path, dep.Command))
			continue
		}
		detail := valueOr(strings.TrimSpace(dep.Detail), dep.Command+" not found")
		if dep.Optional {
			r.check(dep.Name, markWarn, detail)
			continue
		}
		r.check(dep.Name, markFail, detail)
		missing++
	}
	return missing
}

// preflight prints one check per result and returns how many failed.
func (r *report) preflight(results []preflight.Result) int {
	failed := 0
	for _, res := range results {
		if res.Passed {
			r.check(res.Name, markOK, res.Detail)
			continue
		}
		r.check(res.Name, markFail, res.Detail)
		failed++
	}
	return failed
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
