package logger

import (
	"sync/atomic"

	"github.com/cheggaaa/pb"
	"github.com/dustin/go-humanize"
)

// Progress tracks bytes processed against a known total and redraws a
// terminal progress bar (or, when not attached to a terminal, stays silent
// except for the final summary) — the "progress printing" I/O peripheral
// spec.md carves out of the core, still present because a complete tool
// needs it.
type Progress struct {
	bar      *pb.ProgressBar
	total    int64
	done     int64
	disabled bool
}

// NewProgress creates a progress reporter for totalBytes of work described
// by label. When the logger is Quiet/Silent or stdout isn't a terminal, the
// bar is disabled and Add/Finish become no-ops beyond bookkeeping.
func NewProgress(l *Logger, label string, totalBytes int64) *Progress {
	p := &Progress{total: totalBytes}
	if l.level < Normal || !l.colorize {
		p.disabled = true
		return p
	}
	bar := pb.New64(totalBytes)
	bar.SetUnits(pb.U_BYTES)
	bar.Prefix(label + " ")
	bar.ShowSpeed = true
	bar.Start()
	p.bar = bar
	return p
}

// Add advances the bar by n bytes.
func (p *Progress) Add(n int64) {
	newDone := atomic.AddInt64(&p.done, n)
	if p.disabled {
		return
	}
	p.bar.Set64(newDone)
}

// Finish completes and removes the bar, printing a one-line humanized
// summary through the shared logger so it interleaves safely with other
// console output.
func (p *Progress) Finish(l *Logger, verb string) {
	done := atomic.LoadInt64(&p.done)
	if !p.disabled {
		p.bar.Finish()
	}
	l.Infof("%s %s", verb, humanize.Bytes(uint64(done)))
}
