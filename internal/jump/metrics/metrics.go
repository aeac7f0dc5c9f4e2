// Package metrics holds the pure numeric functions that turn contact mat
// timing intervals into physical quantities.
//
// Nothing in this package keeps state or returns errors. Degenerate input
// (zero floor time, empty series) produces zero or NaN and callers are
// expected to guard before presenting a value.
package metrics

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat"
)

// Gravity is standard gravity in m/s².
const Gravity = 9.81

// Height returns the jump height in centimetres for a flight time in seconds,
// assuming the flight is symmetric about the peak.
func Height(flightSeconds float64) float64 {
	return (Gravity * flightSeconds * flightSeconds / 8) * 100
}

// Stiffness models the leg as a spring oscillating over one flight+contact
// cycle. Only meaningful when the floor contact time was measured, i.e. in
// the continuous rebound test.
func Stiffness(flightSeconds, floorSeconds float64) float64 {
	return (math.Pi * (flightSeconds + floorSeconds)) /
		(floorSeconds * floorSeconds * (flightSeconds/floorSeconds + math.Pi/4))
}

// Elapsed returns the seconds between two monotonic readings. Out of order
// readings clamp to zero.
func Elapsed(from, to time.Duration) float64 {
	if to < from {
		return 0
	}
	return (to - from).Seconds()
}

// Performances normalises each value against the series maximum and returns
// percentages. A series whose maximum is not positive yields all zeros.
func Performances(values []float64) []float64 {
	out := make([]float64, len(values))
	peak := 0.0
	for _, v := range values {
		if v > peak {
			peak = v
		}
	}
	if peak <= 0 {
		return out
	}
	for i, v := range values {
		out[i] = v / peak * 100
	}
	return out
}

// PerformanceDrop is the fatigue indicator of a continuous rebound series.
//
// The ordered performances are split into thirds. The result is the relative
// loss, in percent, of the mean of the final third against the mean of the
// first third:
//
//	drop = (mean(first) - mean(last)) / mean(first) * 100
//
// Series shorter than three jumps carry no trend and return 0. A negative
// value means the athlete finished stronger than they started.
func PerformanceDrop(performances []float64) float64 {
	n := len(performances)
	if n < 3 {
		return 0
	}
	third := n / 3
	first := stat.Mean(performances[:third], nil)
	last := stat.Mean(performances[n-third:], nil)
	if first == 0 {
		return 0
	}
	return (first - last) / first * 100
}

// Mean is stat.Mean guarded for empty input.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return stat.Mean(values, nil)
}

// StdDev is the sample standard deviation, zero for fewer than two values.
func StdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	return stat.StdDev(values, nil)
}

// Max returns the largest value, zero for empty input.
func Max(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	m := values[0]
	for _, v := range values[1:] {
		if v > m {
			m = v
		}
	}
	return m
}
