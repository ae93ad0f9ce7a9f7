// Package progress wraps mpb bars for long-running batch loops.
package progress

import (
	"io"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

// Bar counts completed units of work. The zero value and a bar built with a
// nil writer or zero total are no-ops.
type Bar struct {
	p   *mpb.Progress
	bar *mpb.Bar
}

// New starts a bar titled name over total units, drawn to w.
func New(w io.Writer, name string, total int) *Bar {
	if w == nil || total <= 0 {
		return &Bar{}
	}
	p := mpb.New(mpb.WithWidth(64), mpb.WithOutput(w))
	bar := p.AddBar(int64(total),
		mpb.PrependDecorators(
			decor.Name(name+": "),
			decor.CountersNoUnit("%d / %d"),
		),
		mpb.AppendDecorators(
			decor.Percentage(),
			decor.EwmaETA(decor.ET_STYLE_GO, 60),
		),
	)
	return &Bar{p: p, bar: bar}
}

// Done records one finished unit that took d.
func (b *Bar) Done(d time.Duration) {
	if b.bar != nil {
		b.bar.EwmaIncrement(d)
	}
}

// Abort stops the bar early, leaving it on screen.
func (b *Bar) Abort() {
	if b.bar != nil {
		b.bar.Abort(false)
	}
}

// Wait blocks until the bar has been rendered for the last time.
func (b *Bar) Wait() {
	if b.p != nil {
		b.p.Wait()
	}
}
