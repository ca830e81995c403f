package reembed

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// Snapshot is a point-in-time view of a Progress.
type Snapshot struct {
	Done    int
	Total   int
	Elapsed time.Duration
}

// Percent returns Done as a share of Total. An empty run counts as complete.
func (s Snapshot) Percent() float64 {
	if s.Total == 0 {
		return 100
	}
	return float64(s.Done) / float64(s.Total) * 100
}

// Rate returns records per second.
func (s Snapshot) Rate() float64 {
	if s.Elapsed <= 0 {
		return 0
	}
	return float64(s.Done) / s.Elapsed.Seconds()
}

// Progress counts re-embedded records and redraws a one-line status on w
// each time at least every records have been added since the last redraw.
type Progress struct {
	mu        sync.Mutex
	w         io.Writer
	total     int
	every     int
	done      int
	drawnAt   int
	drawn     bool
	start     time.Time
	completed bool
}

// NewProgress starts the clock for a run over total records.
func NewProgress(w io.Writer, total, every int) *Progress {
	if w == nil {
		w = io.Discard
	}
	return &Progress{
		w:     w,
		total: total,
		every: max(every, 1),
		start: time.Now(),
	}
}

// Advance records n more records, never counting past the total.
func (p *Progress) Advance(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.completed {
		return
	}

	p.done = min(p.done+n, p.total)
	if p.done-p.drawnAt >= p.every {
		p.draw()
	}
}

// Snapshot returns the current counts.
func (p *Progress) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshot()
}

// Complete marks every record done, draws the final line and ends it.
func (p *Progress) Complete() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.completed {
		p.done = p.total
		p.draw()
		fmt.Fprintln(p.w)
		p.completed = true
	}
	return p.snapshot()
}

// Abort ends a partially drawn line so later output starts on a fresh one.
func (p *Progress) Abort() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.drawn && !p.completed {
		fmt.Fprintln(p.w)
	}
	p.completed = true
}

func (p *Progress) snapshot() Snapshot {
	return Snapshot{Done: p.done, Total: p.total, Elapsed: time.Since(p.start)}
}

// draw requires p.mu.
func (p *Progress) draw() {
	s := p.snapshot()
	fmt.Fprintf(p.w, "\r%d/%d chunks (%.1f%%) %.1f chunks/s", s.Done, s.Total, s.Percent(), s.Rate())
	p.drawnAt = p.done
	p.drawn = true
}
