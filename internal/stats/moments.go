// Package stats holds the streaming accumulators used when a sample is too
// large to keep in memory, such as the pooled deltas of every variable.
package stats

import "math"

// Moments accumulates count, mean, and the sum of squared deviations of a
// stream of values (Welford). Partial accumulators from independent blocks
// can be combined with Merge.
type Moments struct {
	n    int64
	mean float64
	m2   float64
}

// Add folds one value into the accumulator.
func (m *Moments) Add(x float64) {
	m.n++
	d := x - m.mean
	m.mean += d / float64(m.n)
	m.m2 += d * (x - m.mean)
}

// Merge folds another accumulator into m (Chan et al. parallel update).
func (m *Moments) Merge(o Moments) {
	if o.n == 0 {
		return
	}
	if m.n == 0 {
		*m = o
		return
	}
	n := m.n + o.n
	d := o.mean - m.mean
	m.mean += d * float64(o.n) / float64(n)
	m.m2 += o.m2 + d*d*float64(m.n)*float64(o.n)/float64(n)
	m.n = n
}

// Count is the number of values seen.
func (m Moments) Count() int64 { return m.n }

// Mean is the arithmetic mean, NaN when empty.
func (m Moments) Mean() float64 {
	if m.n == 0 {
		return math.NaN()
	}
	return m.mean
}

// PopStdDev is the population standard deviation (divisor n), NaN when empty.
func (m Moments) PopStdDev() float64 {
	if m.n == 0 {
		return math.NaN()
	}
	v := m.m2 / float64(m.n)
	if v < 0 {
		v = 0
	}
	return math.Sqrt(v)
}
