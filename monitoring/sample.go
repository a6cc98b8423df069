// Package monitoring evaluates alert rules over the retrieval engine's
// counters.
//
// The engine and the warmer only expose cumulative counters. Each evaluation
// diffs the current counters against the previous ones, so every rule sees
// the activity of one interval:
//   - Upstream error rate and latency
//   - Cache hit rate
//   - Rate budget headroom
//   - Warm failures
package monitoring

import (
	"math"
	"time"

	"github.com/wikifeed/feedengine/pkg/models"
)

// Counters is a cumulative reading taken from the engine and the warmer.
type Counters struct {
	Engine       models.EngineStats
	WarmSuccess  int64
	WarmFailures int64
}

// Sample is the activity observed between two readings.
type Sample struct {
	At       time.Time
	Interval time.Duration

	Requests       uint64
	HitRate        float64
	UpstreamCalls  uint64
	UpstreamErrors uint64
	ErrorRate      float64
	RateRejections uint64
	StaleServes    uint64

	// MeanLatencyMs is the mean upstream latency inside the interval.
	MeanLatencyMs float64

	RateUsed int
	RateMax  int

	WarmSuccess  int64
	WarmFailures int64
}

// NewSample diffs cur against prev. A zero prev yields the totals of cur.
func NewSample(prev, cur Counters) Sample {
	pe, ce := prev.Engine, cur.Engine

	s := Sample{
		At:             ce.Timestamp,
		UpstreamCalls:  delta(ce.UpstreamCalls, pe.UpstreamCalls),
		UpstreamErrors: delta(ce.UpstreamErrors, pe.UpstreamErrors),
		RateRejections: delta(ce.RateRejections, pe.RateRejections),
		StaleServes:    delta(ce.StaleServes, pe.StaleServes),
		RateUsed:       ce.RateWindow.Count,
		RateMax:        ce.RateWindow.Max,
		WarmSuccess:    max(cur.WarmSuccess-prev.WarmSuccess, 0),
		WarmFailures:   max(cur.WarmFailures-prev.WarmFailures, 0),
	}
	if !pe.Timestamp.IsZero() {
		s.Interval = ce.Timestamp.Sub(pe.Timestamp)
	}

	hits := delta(ce.CacheHits, pe.CacheHits)
	s.Requests = hits + delta(ce.CacheMisses, pe.CacheMisses)
	if s.Requests > 0 {
		s.HitRate = float64(hits) / float64(s.Requests)
	}
	if s.UpstreamCalls > 0 {
		s.ErrorRate = float64(s.UpstreamErrors) / float64(s.UpstreamCalls)
	}

	observed := delta(ce.UpstreamLatency.Count, pe.UpstreamLatency.Count)
	if observed > 0 && ce.UpstreamLatency.Sum >= pe.UpstreamLatency.Sum {
		sum := ce.UpstreamLatency.Sum - pe.UpstreamLatency.Sum
		s.MeanLatencyMs = float64(sum) / float64(observed) / float64(time.Millisecond)
	}
	return s
}

// delta treats a counter that went backwards as restarted.
func delta(cur, prev uint64) uint64 {
	if cur < prev {
		return cur
	}
	return cur - prev
}

// HistoricalStats keeps the last N values of a metric for baseline
// comparisons.
type HistoricalStats struct {
	values []float64
	count  int
	index  int
}

// NewHistoricalStats creates a tracker holding up to capacity values.
func NewHistoricalStats(capacity int) *HistoricalStats {
	if capacity < 2 {
		capacity = 2
	}
	return &HistoricalStats{values: make([]float64, capacity)}
}

// Add records a value, overwriting the oldest once full.
func (hs *HistoricalStats) Add(value float64) {
	hs.values[hs.index] = value
	hs.index = (hs.index + 1) % len(hs.values)
	if hs.count < len(hs.values) {
		hs.count++
	}
}

// MeanStdDev returns the sample mean and standard deviation.
func (hs *HistoricalStats) MeanStdDev() (float64, float64) {
	if hs.count == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range hs.values[:hs.count] {
		sum += v
	}
	mean := sum / float64(hs.count)
	if hs.count < 2 {
		return mean, 0
	}

	var sq float64
	for _, v := range hs.values[:hs.count] {
		sq += (v - mean) * (v - mean)
	}
	return mean, math.Sqrt(sq / float64(hs.count-1))
}

// Count returns the number of values held.
func (hs *HistoricalStats) Count() int {
	return hs.count
}
