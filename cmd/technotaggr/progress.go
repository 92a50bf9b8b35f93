package main

import (
	"io"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

// progressBar is a single mpb bar, or a no-op when progress is disabled.
type progressBar struct {
	p    *mpb.Progress
	bar  *mpb.Bar
	last time.Time
}

// newProgressBar renders to w only when w is a terminal.
func newProgressBar(w io.Writer, name string, total int) *progressBar {
	if total <= 0 || !isTerminal(w) {
		return &progressBar{}
	}
	p := mpb.New(mpb.WithOutput(w), mpb.WithWidth(64))
	bar := p.AddBar(int64(total),
		mpb.PrependDecorators(
			decor.Name(name),
			decor.CountersNoUnit("%d / %d"),
		),
		mpb.AppendDecorators(
			decor.Percentage(),
			decor.EwmaETA(decor.ET_STYLE_GO, 60),
		),
	)
	return &progressBar{p: p, bar: bar, last: time.Now()}
}

// Increment advances the bar by one item.
func (b *progressBar) Increment() {
	if b.bar == nil {
		return
	}
	now := time.Now()
	b.bar.EwmaIncrement(now.Sub(b.last))
	b.last = now
}

// Wait flushes the bar. An unfinished bar is aborted so Wait never blocks.
func (b *progressBar) Wait() {
	if b.p == nil {
		return
	}
	if !b.bar.Completed() {
		b.bar.Abort(false)
	}
	b.p.Wait()
}
