package warming

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Predictor predicts which topic feeds are likely to be requested in the
// near future.
type Predictor interface {
	PredictHotTopics(ctx context.Context, window time.Duration, limit int) ([]Prediction, error)
}

// FeedKey identifies one warmable feed: a topic at a page size.
type FeedKey struct {
	Topic      string `json:"topic"`
	MaxResults int    `json:"max_results"`
}

// Prediction is a feed together with its hotness score.
type Prediction struct {
	FeedKey
	Score float64 `json:"score"`
}

// DefaultPredictor implements a lightweight heuristic-based predictor.
// Uses recent access patterns and growth rates to predict hot feeds.
//
// Algorithm:
// 1. Track access counts and timestamps for each feed
// 2. Calculate access frequency (accesses per hour)
// 3. Calculate growth rate (recent vs historical frequency)
// 4. Score = frequency * (1 + growth_rate) * recency_bonus
// 5. Return top N feeds by score
//
// Trade-offs:
// - Less effective for sudden traffic spikes or brand new topics
type DefaultPredictor struct {
	mu         sync.RWMutex
	accessLog  map[FeedKey]*AccessHistory
	maxHistory int
	now        func() time.Time
}

// AccessHistory tracks access patterns for a single feed.
type AccessHistory struct {
	Key           FeedKey
	TotalAccesses int64
	FirstSeen     time.Time
	LastAccessed  time.Time
	AccessTimes   []time.Time
}

// NewDefaultPredictor creates a new default predictor. now may be nil.
func NewDefaultPredictor(now func() time.Time) *DefaultPredictor {
	if now == nil {
		now = time.Now
	}
	return &DefaultPredictor{
		accessLog:  make(map[FeedKey]*AccessHistory),
		maxHistory: 100,
		now:        now,
	}
}

// RecordAccess records a request for a topic feed. It is installed as the
// engine's access hook, so it runs on every topic request, hit or miss.
func (p *DefaultPredictor) RecordAccess(topic string, maxResults int) {
	if topic == "" {
		return
	}
	key := FeedKey{Topic: topic, MaxResults: maxResults}

	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	history, exists := p.accessLog[key]
	if !exists {
		history = &AccessHistory{
			Key:         key,
			FirstSeen:   now,
			AccessTimes: make([]time.Time, 0, 16),
		}
		p.accessLog[key] = history
	}

	history.TotalAccesses++
	history.LastAccessed = now

	history.AccessTimes = append(history.AccessTimes, now)
	if len(history.AccessTimes) > p.maxHistory {
		history.AccessTimes = history.AccessTimes[1:]
	}
}

// PredictHotTopics returns the top feeds likely to be requested in the next
// window, hottest first. Ties break by topic then page size.
func (p *DefaultPredictor) PredictHotTopics(ctx context.Context, window time.Duration, limit int) ([]Prediction, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	now := p.now()
	cutoff := now.Add(-window)

	predictions := make([]Prediction, 0, len(p.accessLog))
	for key, history := range p.accessLog {
		if score := p.calculateScore(history, now, cutoff); score > 0 {
			predictions = append(predictions, Prediction{FeedKey: key, Score: score})
		}
	}

	sort.Slice(predictions, func(i, j int) bool {
		if predictions[i].Score != predictions[j].Score {
			return predictions[i].Score > predictions[j].Score
		}
		if predictions[i].Topic != predictions[j].Topic {
			return predictions[i].Topic < predictions[j].Topic
		}
		return predictions[i].MaxResults < predictions[j].MaxResults
	})

	if limit > 0 && limit < len(predictions) {
		predictions = predictions[:limit]
	}
	return predictions, nil
}

// calculateScore computes a prediction score for a feed. Feeds with no
// access inside the window score zero.
func (p *DefaultPredictor) calculateScore(history *AccessHistory, now, cutoff time.Time) float64 {
	if history.TotalAccesses == 0 {
		return 0
	}

	recentCount := 0
	for _, accessTime := range history.AccessTimes {
		if accessTime.After(cutoff) {
			recentCount++
		}
	}
	if recentCount == 0 {
		return 0
	}

	hoursTracked := now.Sub(history.FirstSeen).Hours()
	if hoursTracked < 1 {
		hoursTracked = 1
	}
	frequency := float64(history.TotalAccesses) / hoursTracked

	recentFrequency := float64(recentCount)
	growthRate := (recentFrequency - frequency) / frequency

	sinceLast := now.Sub(history.LastAccessed).Minutes()
	recencyBonus := 1.0
	if sinceLast < 5 {
		recencyBonus = 2.0
	} else if sinceLast < 30 {
		recencyBonus = 1.5
	}

	score := frequency * (1.0 + growthRate) * recencyBonus
	if score < 0 {
		return 0
	}
	return score
}

// Cleanup removes histories not accessed within maxAge.
func (p *DefaultPredictor) Cleanup(maxAge time.Duration) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	cutoff := p.now().Add(-maxAge)
	removed := 0
	for key, history := range p.accessLog {
		if history.LastAccessed.Before(cutoff) {
			delete(p.accessLog, key)
			removed++
		}
	}
	return removed
}

// GetStats returns statistics about the predictor's state.
func (p *DefaultPredictor) GetStats() PredictorStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	totalAccesses := int64(0)
	for _, history := range p.accessLog {
		totalAccesses += history.TotalAccesses
	}

	return PredictorStats{
		TrackedFeeds:  len(p.accessLog),
		TotalAccesses: totalAccesses,
	}
}

type PredictorStats struct {
	TrackedFeeds  int   `json:"tracked_feeds"`
	TotalAccesses int64 `json:"total_accesses"`
}
