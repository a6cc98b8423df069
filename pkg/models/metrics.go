package models

import "time"

// LatencySummary is a running summary of observed durations.
// Callers synchronize access.
type LatencySummary struct {
	Count uint64        `json:"count"`
	Sum   time.Duration `json:"sum"`
	Min   time.Duration `json:"min"`
	Max   time.Duration `json:"max"`
}

// Observe folds one sample into the summary.
func (s *LatencySummary) Observe(sample time.Duration) {
	if s.Count == 0 {
		s.Min = sample
		s.Max = sample
	} else {
		if sample < s.Min {
			s.Min = sample
		}
		if sample > s.Max {
			s.Max = sample
		}
	}
	s.Count++
	s.Sum += sample
}

// Mean returns the average sample, or zero when empty.
func (s LatencySummary) Mean() time.Duration {
	if s.Count == 0 {
		return 0
	}
	return s.Sum / time.Duration(s.Count)
}

// EngineStats is a point-in-time snapshot of the retrieval engine.
type EngineStats struct {
	Timestamp time.Time `json:"timestamp"`

	CacheHits          uint64 `json:"cache_hits"`
	CacheMisses        uint64 `json:"cache_misses"`
	StaleServes        uint64 `json:"stale_serves"`
	UpstreamCalls      uint64 `json:"upstream_calls"`
	UpstreamErrors     uint64 `json:"upstream_errors"`
	RateRejections     uint64 `json:"rate_rejections"`
	SharedWaits        uint64 `json:"shared_waits"`
	OptimizerFallbacks uint64 `json:"optimizer_fallbacks"`
	RerankFallbacks    uint64 `json:"rerank_fallbacks"`

	ResultEntries  int  `json:"result_entries"`
	SummaryEntries int  `json:"summary_entries"`
	InFlight       int  `json:"in_flight"`
	Downgraded     bool `json:"downgraded"`

	RateWindow      RateWindow     `json:"rate_window"`
	UpstreamLatency LatencySummary `json:"upstream_latency"`

	HitRate float64 `json:"hit_rate"`
}

// ComputeHitRate fills HitRate from the hit and miss counters.
func (s *EngineStats) ComputeHitRate() {
	total := s.CacheHits + s.CacheMisses
	if total == 0 {
		s.HitRate = 0
		return
	}
	s.HitRate = float64(s.CacheHits) / float64(total)
}
