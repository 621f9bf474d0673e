package indicator

import (
	"math"
	"time"
)

type sample struct {
	at    time.Time
	value float64
}

// Window is a trailing time window over samples pushed in time order.
// It keeps the samples in (now - span, now] together with their running
// sum, so each push and eviction costs O(1) amortized.
type Window struct {
	span    time.Duration
	samples []sample
	head    int
	sum     float64
}

func NewWindow(span time.Duration) *Window {
	return &Window{span: span}
}

// Push appends a sample. at must not be earlier than the last pushed sample.
func (w *Window) Push(at time.Time, value float64) {
	w.samples = append(w.samples, sample{at: at, value: value})
	w.sum += value
}

// Advance evicts samples that are at least span older than now.
func (w *Window) Advance(now time.Time) {
	cutoff := now.Add(-w.span)
	for w.head < len(w.samples) && !w.samples[w.head].at.After(cutoff) {
		w.sum -= w.samples[w.head].value
		w.head++
	}

	switch {
	case w.head == len(w.samples):
		// Empty; reset so float error does not accumulate.
		w.samples = w.samples[:0]
		w.head = 0
		w.sum = 0
	case w.head > 1024 && w.head*2 > len(w.samples):
		n := copy(w.samples, w.samples[w.head:])
		w.samples = w.samples[:n]
		w.head = 0
	}
}

func (w *Window) Len() int { return len(w.samples) - w.head }

// Mean is NaN for an empty window.
func (w *Window) Mean() float64 {
	if w.Len() == 0 {
		return math.NaN()
	}
	return w.sum / float64(w.Len())
}
