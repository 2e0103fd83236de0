package md

import "time"

type Sample struct {
	Price float64
	Time  time.Time
}

// Window holds time-ordered price samples no older than bound relative to the
// newest sample. Storage is a circular buffer that grows when full.
type Window struct {
	samples []Sample
	head    int
	count   int
	bound   time.Duration
}

const minWindowCapacity = 16

func NewWindow(bound time.Duration) *Window {
	return &Window{
		samples: make([]Sample, minWindowCapacity),
		bound:   bound,
	}
}

func (w *Window) Bound() time.Duration {
	return w.bound
}

func (w *Window) Len() int {
	return w.count
}

// Push appends a sample and trims everything older than the bound relative to
// t. Samples must arrive in non-decreasing time order.
func (w *Window) Push(price float64, t time.Time) {
	if w.count == len(w.samples) {
		w.grow()
	}
	w.samples[(w.head+w.count)%len(w.samples)] = Sample{Price: price, Time: t}
	w.count++
	w.EvictOlderThan(w.bound, t)
}

// EvictOlderThan drops samples from the oldest end while their age at now
// exceeds d. It stops at the first sample still within d.
func (w *Window) EvictOlderThan(d time.Duration, now time.Time) {
	for w.count > 0 {
		oldest := w.samples[w.head]
		if now.Sub(oldest.Time) <= d {
			return
		}
		w.samples[w.head] = Sample{}
		w.head = (w.head + 1) % len(w.samples)
		w.count--
	}
}

// ExtremesWithin returns the highest and lowest price among samples no older
// than d, seeded with current. The scan runs newest to oldest and stops at the
// first sample outside d.
func (w *Window) ExtremesWithin(d time.Duration, now time.Time, current float64) (float64, float64) {
	high, low := current, current
	for i := w.count - 1; i >= 0; i-- {
		s := w.at(i)
		if now.Sub(s.Time) > d {
			break
		}
		if s.Price > high {
			high = s.Price
		}
		if s.Price < low {
			low = s.Price
		}
	}
	return high, low
}

func (w *Window) Clear() {
	for i := range w.samples {
		w.samples[i] = Sample{}
	}
	w.head = 0
	w.count = 0
}

// Samples returns the buffered samples oldest first.
func (w *Window) Samples() []Sample {
	result := make([]Sample, 0, w.count)
	for i := 0; i < w.count; i++ {
		result = append(result, w.at(i))
	}
	return result
}

func (w *Window) at(i int) Sample {
	return w.samples[(w.head+i)%len(w.samples)]
}

func (w *Window) grow() {
	next := make([]Sample, len(w.samples)*2)
	for i := 0; i < w.count; i++ {
		next[i] = w.at(i)
	}
	w.samples = next
	w.head = 0
}
