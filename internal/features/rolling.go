package features

import "math"

// Window keeps the trailing n values of a series. NaN values occupy a slot
// but are skipped by the statistics.
type Window struct {
	buf []float64
	max int
}

func NewWindow(n int) *Window {
	if n <= 0 {
		n = 1
	}
	return &Window{buf: make([]float64, 0, n), max: n}
}

func (w *Window) Add(v float64) {
	if len(w.buf) == w.max {
		copy(w.buf, w.buf[1:])
		w.buf = w.buf[:w.max-1]
	}
	w.buf = append(w.buf, v)
}

// Mean returns the mean of the observed values, or NaN when there are none.
func (w *Window) Mean() float64 {
	var sum float64
	var count int
	for _, v := range w.buf {
		if math.IsNaN(v) {
			continue
		}
		sum += v
		count++
	}
	if count == 0 {
		return math.NaN()
	}
	return sum / float64(count)
}

// Std returns the sample standard deviation (n-1 denominator) of the
// observed values, or NaN with fewer than two observations.
func (w *Window) Std() float64 {
	mean := w.Mean()
	var ss float64
	var count int
	for _, v := range w.buf {
		if math.IsNaN(v) {
			continue
		}
		d := v - mean
		ss += d * d
		count++
	}
	if count < 2 {
		return math.NaN()
	}
	return math.Sqrt(ss / float64(count-1))
}
