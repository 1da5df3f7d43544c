// Package fpsmeter measures the realized frame rate of a capture loop over
// a sliding window of recent frame timestamps.
package fpsmeter

import (
	"math"
	"sync"
	"time"
)

const (
	// fpsStabilityThreshold is the maximum allowed FPS standard deviation
	// as a fraction of the mean rate. Example: 30 FPS mean is stable while
	// stddev < 4.5 FPS.
	fpsStabilityThreshold = 0.15

	// jitterStabilityThreshold is the maximum allowed mean jitter as a
	// fraction of the expected inter-frame interval. Example: 30 FPS
	// (33ms interval) is stable while mean jitter < 6.6ms.
	jitterStabilityThreshold = 0.20

	// defaultWindow is the number of timestamps kept when none is given.
	defaultWindow = 60
)

// Stats is a point-in-time view of the measured rate.
type Stats struct {
	Samples    int     // timestamps currently in the window
	Rate       float64 // frames per second across the window
	FPSStdDev  float64 // stddev of instantaneous FPS
	JitterMean float64 // mean deviation from the expected interval, seconds
	JitterMax  float64 // worst observed deviation, seconds
	Stable     bool    // stddev and jitter both under threshold
}

// Meter tracks frame timestamps in a fixed-size ring and derives the rate
// from the span of the window. Safe for one writer and many readers.
type Meter struct {
	mu    sync.Mutex
	times []time.Time
	head  int
	count int
}

// New creates a meter keeping the last window timestamps. Windows below 2
// are raised to the default.
func New(window int) *Meter {
	if window < 2 {
		window = defaultWindow
	}
	return &Meter{times: make([]time.Time, window)}
}

// Tick records one captured frame.
func (m *Meter) Tick(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.count < len(m.times) {
		m.times[(m.head+m.count)%len(m.times)] = t
		m.count++
		return
	}
	m.times[m.head] = t
	m.head = (m.head + 1) % len(m.times)
}

// Rate returns the current frames-per-second estimate, 0 until two
// timestamps have been recorded.
func (m *Meter) Rate() float64 {
	return m.Snapshot().Rate
}

// Snapshot computes rate and jitter statistics over the current window.
func (m *Meter) Snapshot() Stats {
	m.mu.Lock()
	ordered := make([]time.Time, m.count)
	for i := 0; i < m.count; i++ {
		ordered[i] = m.times[(m.head+i)%len(m.times)]
	}
	m.mu.Unlock()

	n := len(ordered)
	if n < 2 {
		return Stats{Samples: n}
	}

	span := ordered[n-1].Sub(ordered[0]).Seconds()
	if span <= 0 {
		return Stats{Samples: n}
	}
	rate := float64(n-1) / span
	expected := 1.0 / rate

	var sumSquares, jitterSum, jitterMax float64
	intervals := 0
	for i := 1; i < n; i++ {
		interval := ordered[i].Sub(ordered[i-1]).Seconds()
		if interval <= 0 {
			continue
		}
		intervals++

		diff := 1.0/interval - rate
		sumSquares += diff * diff

		jitter := math.Abs(interval - expected)
		jitterSum += jitter
		if jitter > jitterMax {
			jitterMax = jitter
		}
	}
	if intervals == 0 {
		return Stats{Samples: n, Rate: rate}
	}

	stdDev := math.Sqrt(sumSquares / float64(intervals))
	jitterMean := jitterSum / float64(intervals)

	return Stats{
		Samples:    n,
		Rate:       rate,
		FPSStdDev:  stdDev,
		JitterMean: jitterMean,
		JitterMax:  jitterMax,
		Stable: stdDev < rate*fpsStabilityThreshold &&
			jitterMean < expected*jitterStabilityThreshold,
	}
}

// Reset discards all recorded timestamps.
func (m *Meter) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.head = 0
	m.count = 0
}
