package monitoring

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"encore.dev/rlog"
)

// AlertManager evaluates rules against interval samples and keeps the
// registry of active alerts. An alert resolves on the first evaluation whose
// sample no longer meets its rule.
type AlertManager struct {
	rules []AlertRule
	now   func() time.Time

	mu             sync.RWMutex
	prev           Counters
	activeAlerts   map[string]*Alert
	resolvedAlerts []Alert
	lastSample     *Sample

	stats AlertManagerStats
}

// AlertManagerStats tracks alert manager statistics.
type AlertManagerStats struct {
	Evaluations    atomic.Int64
	TotalTriggered atomic.Int64
	TotalResolved  atomic.Int64
	TotalDuration  atomic.Int64 // Cumulative milliseconds
}

// Alert represents an active or resolved alert.
type Alert struct {
	ID           string     `json:"id"`
	Type         AlertType  `json:"type"`
	Severity     string     `json:"severity"`
	Metric       string     `json:"metric"`
	CurrentValue float64    `json:"current_value"`
	Threshold    float64    `json:"threshold"`
	Message      string     `json:"message"`
	TriggeredAt  time.Time  `json:"triggered_at"`
	ResolvedAt   *time.Time `json:"resolved_at,omitempty"`
	DurationMs   int64      `json:"duration_ms,omitempty"`
	Resolved     bool       `json:"resolved"`
}

// AlertType represents the category of alert.
type AlertType string

const (
	AlertUpstreamErrors  AlertType = "upstream_errors"
	AlertLowHitRate      AlertType = "low_hit_rate"
	AlertRateBudget      AlertType = "rate_budget"
	AlertLatencySpike    AlertType = "latency_spike"
	AlertWarmingFailures AlertType = "warming_failures"
)

const (
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// AlertRule defines a condition that triggers an alert.
type AlertRule interface {
	ID() string
	Evaluate(s Sample) *Alert
}

// AlertStats summarizes the alert manager.
type AlertStats struct {
	Evaluations    int64   `json:"evaluations"`
	TotalTriggered int64   `json:"total_triggered"`
	TotalResolved  int64   `json:"total_resolved"`
	ActiveCount    int     `json:"active_count"`
	AvgDurationSec float64 `json:"avg_duration_seconds"`
}

// DefaultRules returns the built-in rule set.
func DefaultRules() []AlertRule {
	return []AlertRule{
		NewUpstreamErrorRule(0.25, 4),
		NewLowHitRateRule(0.5, 20),
		NewRateBudgetRule(0.9),
		NewLatencySpikeRule(3.0),
		NewWarmingFailureRule(0.5, 4),
	}
}

// NewAlertManager creates an alert manager. Nil rules means DefaultRules and
// a nil now means time.Now.
func NewAlertManager(rules []AlertRule, now func() time.Time) *AlertManager {
	if rules == nil {
		rules = DefaultRules()
	}
	if now == nil {
		now = time.Now
	}
	return &AlertManager{
		rules:          rules,
		now:            now,
		activeAlerts:   make(map[string]*Alert),
		resolvedAlerts: make([]Alert, 0),
	}
}

// Evaluate diffs cur against the previous reading and runs every rule on the
// resulting sample. It returns the alerts active afterwards.
func (am *AlertManager) Evaluate(cur Counters) []Alert {
	am.mu.Lock()
	sample := NewSample(am.prev, cur)
	am.prev = cur
	am.lastSample = &sample
	am.mu.Unlock()

	am.stats.Evaluations.Add(1)
	for _, rule := range am.rules {
		if alert := rule.Evaluate(sample); alert != nil {
			am.triggerAlert(alert)
		} else {
			am.resolveAlert(rule.ID())
		}
	}
	return am.GetActiveAlerts()
}

// triggerAlert activates an alert or updates an existing one.
func (am *AlertManager) triggerAlert(alert *Alert) {
	am.mu.Lock()
	defer am.mu.Unlock()

	if existing, ok := am.activeAlerts[alert.ID]; ok {
		existing.CurrentValue = alert.CurrentValue
		existing.Severity = alert.Severity
		existing.Message = alert.Message
		return
	}

	alert.TriggeredAt = am.now()
	am.activeAlerts[alert.ID] = alert
	am.stats.TotalTriggered.Add(1)
	rlog.Warn("alert triggered",
		"alert", alert.ID,
		"severity", alert.Severity,
		"value", alert.CurrentValue,
		"threshold", alert.Threshold)
}

// resolveAlert marks an alert as resolved if it is active.
func (am *AlertManager) resolveAlert(alertID string) {
	am.mu.Lock()
	defer am.mu.Unlock()

	alert, ok := am.activeAlerts[alertID]
	if !ok {
		return
	}

	now := am.now()
	alert.ResolvedAt = &now
	alert.DurationMs = now.Sub(alert.TriggeredAt).Milliseconds()
	alert.Resolved = true

	am.resolvedAlerts = append(am.resolvedAlerts, *alert)
	delete(am.activeAlerts, alertID)

	am.stats.TotalResolved.Add(1)
	am.stats.TotalDuration.Add(alert.DurationMs)
	rlog.Info("alert resolved", "alert", alertID, "duration_ms", alert.DurationMs)

	// Keep only last 100 resolved alerts
	if len(am.resolvedAlerts) > 100 {
		am.resolvedAlerts = am.resolvedAlerts[len(am.resolvedAlerts)-100:]
	}
}

// GetActiveAlerts returns all currently active alerts ordered by ID.
func (am *AlertManager) GetActiveAlerts() []Alert {
	am.mu.RLock()
	defer am.mu.RUnlock()

	alerts := make([]Alert, 0, len(am.activeAlerts))
	for _, alert := range am.activeAlerts {
		alerts = append(alerts, *alert)
	}
	sort.Slice(alerts, func(i, j int) bool { return alerts[i].ID < alerts[j].ID })
	return alerts
}

// GetRecentResolvedAlerts returns the N most recent resolved alerts, newest
// first.
func (am *AlertManager) GetRecentResolvedAlerts(n int) []Alert {
	am.mu.RLock()
	defer am.mu.RUnlock()

	if n > len(am.resolvedAlerts) {
		n = len(am.resolvedAlerts)
	}
	result := make([]Alert, n)
	for i := 0; i < n; i++ {
		result[i] = am.resolvedAlerts[len(am.resolvedAlerts)-1-i]
	}
	return result
}

// LastSample returns the sample of the most recent evaluation.
func (am *AlertManager) LastSample() (Sample, bool) {
	am.mu.RLock()
	defer am.mu.RUnlock()
	if am.lastSample == nil {
		return Sample{}, false
	}
	return *am.lastSample, true
}

// GetStats returns alert manager statistics.
func (am *AlertManager) GetStats() AlertStats {
	resolved := am.stats.TotalResolved.Load()

	avg := 0.0
	if resolved > 0 {
		avg = float64(am.stats.TotalDuration.Load()) / float64(resolved) / 1000.0
	}

	am.mu.RLock()
	active := len(am.activeAlerts)
	am.mu.RUnlock()

	return AlertStats{
		Evaluations:    am.stats.Evaluations.Load(),
		TotalTriggered: am.stats.TotalTriggered.Load(),
		TotalResolved:  resolved,
		ActiveCount:    active,
		AvgDurationSec: avg,
	}
}

// Concrete Alert Rules

// UpstreamErrorRule triggers when too many upstream calls fail.
type UpstreamErrorRule struct {
	threshold float64
	minCalls  uint64
}

func NewUpstreamErrorRule(threshold float64, minCalls uint64) *UpstreamErrorRule {
	return &UpstreamErrorRule{threshold: threshold, minCalls: minCalls}
}

func (r *UpstreamErrorRule) ID() string { return string(AlertUpstreamErrors) }

func (r *UpstreamErrorRule) Evaluate(s Sample) *Alert {
	if s.UpstreamCalls < r.minCalls || s.ErrorRate <= r.threshold {
		return nil
	}
	severity := SeverityWarning
	if s.ErrorRate >= 0.75 {
		severity = SeverityCritical
	}
	return &Alert{
		ID:           r.ID(),
		Type:         AlertUpstreamErrors,
		Severity:     severity,
		Metric:       "upstream_error_rate",
		CurrentValue: s.ErrorRate,
		Threshold:    r.threshold,
		Message: fmt.Sprintf("%d of %d upstream calls failed (%.0f%%)",
			s.UpstreamErrors, s.UpstreamCalls, s.ErrorRate*100),
	}
}

// LowHitRateRule triggers when the cache hit rate drops below threshold.
type LowHitRateRule struct {
	threshold   float64
	minRequests uint64
}

func NewLowHitRateRule(threshold float64, minRequests uint64) *LowHitRateRule {
	return &LowHitRateRule{threshold: threshold, minRequests: minRequests}
}

func (r *LowHitRateRule) ID() string { return string(AlertLowHitRate) }

func (r *LowHitRateRule) Evaluate(s Sample) *Alert {
	if s.Requests < r.minRequests || s.HitRate >= r.threshold {
		return nil
	}
	severity := SeverityWarning
	if s.HitRate < r.threshold/2 {
		severity = SeverityCritical
	}
	return &Alert{
		ID:           r.ID(),
		Type:         AlertLowHitRate,
		Severity:     severity,
		Metric:       "hit_rate",
		CurrentValue: s.HitRate,
		Threshold:    r.threshold,
		Message: fmt.Sprintf("Cache hit rate %.0f%% below threshold %.0f%% over %d requests",
			s.HitRate*100, r.threshold*100, s.Requests),
	}
}

// RateBudgetRule triggers when the upstream budget is nearly spent or when
// requests were rejected for lack of budget.
type RateBudgetRule struct {
	usage float64
}

func NewRateBudgetRule(usage float64) *RateBudgetRule {
	return &RateBudgetRule{usage: usage}
}

func (r *RateBudgetRule) ID() string { return string(AlertRateBudget) }

func (r *RateBudgetRule) Evaluate(s Sample) *Alert {
	if s.RateMax <= 0 {
		return nil
	}
	used := float64(s.RateUsed) / float64(s.RateMax)

	if s.RateRejections > 0 {
		return &Alert{
			ID:           r.ID(),
			Type:         AlertRateBudget,
			Severity:     SeverityCritical,
			Metric:       "rate_rejections",
			CurrentValue: float64(s.RateRejections),
			Threshold:    0,
			Message:      fmt.Sprintf("%d requests rejected by the upstream rate budget", s.RateRejections),
		}
	}
	if used < r.usage {
		return nil
	}
	return &Alert{
		ID:           r.ID(),
		Type:         AlertRateBudget,
		Severity:     SeverityWarning,
		Metric:       "rate_usage",
		CurrentValue: used,
		Threshold:    r.usage,
		Message:      fmt.Sprintf("Rate budget %d/%d used", s.RateUsed, s.RateMax),
	}
}

// LatencySpikeRule compares interval latency against a moving baseline and
// triggers when it deviates upward by more than deviationLimit standard
// deviations.
type LatencySpikeRule struct {
	deviationLimit float64
	minSamples     int

	mu       sync.Mutex
	baseline *HistoricalStats
}

func NewLatencySpikeRule(deviationLimit float64) *LatencySpikeRule {
	return &LatencySpikeRule{
		deviationLimit: deviationLimit,
		minSamples:     10,
		baseline:       NewHistoricalStats(60),
	}
}

func (r *LatencySpikeRule) ID() string { return string(AlertLatencySpike) }

func (r *LatencySpikeRule) Evaluate(s Sample) *Alert {
	if s.MeanLatencyMs <= 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var alert *Alert
	if r.baseline.Count() >= r.minSamples {
		mean, stddev := r.baseline.MeanStdDev()
		if stddev > 0 {
			zscore := (s.MeanLatencyMs - mean) / stddev
			if zscore > r.deviationLimit {
				severity := SeverityWarning
				if zscore > r.deviationLimit*1.5 {
					severity = SeverityCritical
				}
				alert = &Alert{
					ID:           r.ID(),
					Type:         AlertLatencySpike,
					Severity:     severity,
					Metric:       "upstream_latency_ms",
					CurrentValue: s.MeanLatencyMs,
					Threshold:    mean,
					Message: fmt.Sprintf("Upstream latency %.0fms is %.1f standard deviations above baseline %.0fms",
						s.MeanLatencyMs, math.Round(zscore*10)/10, mean),
				}
			}
		}
	}
	r.baseline.Add(s.MeanLatencyMs)
	return alert
}

// WarmingFailureRule triggers when most warm tasks of an interval fail.
type WarmingFailureRule struct {
	threshold float64
	minTasks  int64
}

func NewWarmingFailureRule(threshold float64, minTasks int64) *WarmingFailureRule {
	return &WarmingFailureRule{threshold: threshold, minTasks: minTasks}
}

func (r *WarmingFailureRule) ID() string { return string(AlertWarmingFailures) }

func (r *WarmingFailureRule) Evaluate(s Sample) *Alert {
	total := s.WarmSuccess + s.WarmFailures
	if total < r.minTasks {
		return nil
	}
	rate := float64(s.WarmFailures) / float64(total)
	if rate <= r.threshold {
		return nil
	}
	return &Alert{
		ID:           r.ID(),
		Type:         AlertWarmingFailures,
		Severity:     SeverityWarning,
		Metric:       "warm_failure_rate",
		CurrentValue: rate,
		Threshold:    r.threshold,
		Message:      fmt.Sprintf("%d of %d warm tasks failed", s.WarmFailures, total),
	}
}
