// Package warming provides proactive warming of topic feeds so that popular
// topics are served from cache instead of waiting on the upstream.
//
// Design Philosophy:
//   - Warm hot topics before a reader asks, and re-warm a topic right after
//     it is invalidated
//   - Warms go through the engine's normal topic path, so they share its
//     coalescing, cache and upstream budget with reader traffic
//   - An own rate limiter paces warms so they never crowd out readers
//   - Worker pool for concurrent warming with deduplication per feed
//
// Trade-offs:
// - In-memory task queue; tasks queued at shutdown are lost
// - The predictor only knows topics requested since process start
package warming

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/wikifeed/feedengine/pkg/middleware"
	"github.com/wikifeed/feedengine/pkg/models"
	events "github.com/wikifeed/feedengine/pkg/pubsub"
)

// Feeder is the topic feed operation warms are executed through.
type Feeder interface {
	WarmTopicFeed(ctx context.Context, topicKey string, maxResults int) (*models.RankedResult, error)
}

// Publisher receives one event per warm attempt.
type Publisher func(ctx context.Context, event *events.TopicWarmedEvent) error

// Config holds runtime configuration for warming.
type Config struct {
	Concurrency     int           `json:"concurrency"`      // Number of concurrent warm workers
	RPS             float64       `json:"rps"`              // Max warm executions per second
	QueueSize       int           `json:"queue_size"`       // Pending task capacity
	TaskTimeout     time.Duration `json:"task_timeout"`     // Bound on one warm attempt
	RetryAttempts   int           `json:"retry_attempts"`   // Retries after a failed attempt
	BackoffBase     time.Duration `json:"backoff_base"`     // Base duration for exponential backoff
	PredictWindow   time.Duration `json:"predict_window"`   // Access window the predictor looks at
	MaxTopics       int           `json:"max_topics"`       // Feeds warmed per predictive run
	DefaultStrategy string        `json:"default_strategy"` // Strategy used by predictive runs
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() Config {
	return Config{
		Concurrency:     2,
		RPS:             1,
		QueueSize:       100,
		TaskTimeout:     30 * time.Second,
		RetryAttempts:   2,
		BackoffBase:     500 * time.Millisecond,
		PredictWindow:   1 * time.Hour,
		MaxTopics:       20,
		DefaultStrategy: StrategyPriority,
	}
}

// Metrics tracks warming performance.
type Metrics struct {
	TasksQueued   atomic.Int64
	SuccessTotal  atomic.Int64
	FailureTotal  atomic.Int64
	SkippedTotal  atomic.Int64
	FromCache     atomic.Int64
	RateLimitHits atomic.Int64
	TotalDuration atomic.Int64 // Cumulative milliseconds
}

// MetricsSnapshot is a point-in-time copy of Metrics.
type MetricsSnapshot struct {
	TasksQueued   int64   `json:"tasks_queued"`
	SuccessTotal  int64   `json:"success_total"`
	FailureTotal  int64   `json:"failure_total"`
	SkippedTotal  int64   `json:"skipped_total"`
	FromCache     int64   `json:"from_cache"`
	RateLimitHits int64   `json:"rate_limit_hits"`
	Dropped       int64   `json:"dropped"`
	SuccessRate   float64 `json:"success_rate"`
	AvgDurationMs float64 `json:"avg_duration_ms"`
}

// Status reports the warmer's current state.
type Status struct {
	ActiveTasks  int             `json:"active_tasks"`
	QueuedTasks  int             `json:"queued_tasks"`
	WorkerStatus []WorkerStatus  `json:"worker_status"`
	Predictor    PredictorStats  `json:"predictor"`
	Metrics      MetricsSnapshot `json:"metrics"`
}

// PlanResult describes one queued warm run.
type PlanResult struct {
	JobID  string     `json:"job_id"`
	Queued int        `json:"queued"`
	Tasks  []WarmTask `json:"tasks"`
}

// errStaleServed marks a warm whose upstream refresh failed and that was
// answered from the last good value.
var errStaleServed = errors.New("warm served stale result")

// Warmer predicts hot topic feeds and keeps them warm.
type Warmer struct {
	config     Config
	feeder     Feeder
	predictor  *DefaultPredictor
	strategies map[string]Strategy
	pool       *WorkerPool
	limiter    *rate.Limiter
	deduper    singleflight.Group
	publish    Publisher
	metrics    Metrics
	now        func() time.Time
}

// Option configures a Warmer.
type Option func(*Warmer)

// WithPublisher sets the sink for TopicWarmedEvent.
func WithPublisher(p Publisher) Option {
	return func(w *Warmer) { w.publish = p }
}

// WithClock sets the clock used by the predictor and events.
func WithClock(now func() time.Time) Option {
	return func(w *Warmer) { w.now = now }
}

// New creates a warmer and starts its workers.
func New(cfg Config, feeder Feeder, opts ...Option) *Warmer {
	d := DefaultConfig()
	if cfg.Concurrency < 1 {
		cfg.Concurrency = d.Concurrency
	}
	if cfg.RPS <= 0 {
		cfg.RPS = d.RPS
	}
	if cfg.PredictWindow <= 0 {
		cfg.PredictWindow = d.PredictWindow
	}
	if cfg.MaxTopics < 1 {
		cfg.MaxTopics = d.MaxTopics
	}
	if cfg.DefaultStrategy == "" {
		cfg.DefaultStrategy = d.DefaultStrategy
	}

	w := &Warmer{
		config: cfg,
		feeder: feeder,
		strategies: map[string]Strategy{
			StrategyPriority: NewPriorityBasedStrategy(),
			StrategyBreadth:  NewBreadthFirstStrategy(),
		},
		limiter: rate.NewLimiter(rate.Limit(cfg.RPS), max(1, int(cfg.RPS))),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.predictor = NewDefaultPredictor(w.now)
	w.pool = NewWorkerPool(w, PoolConfig{
		Workers:       cfg.Concurrency,
		QueueSize:     cfg.QueueSize,
		TaskTimeout:   cfg.TaskTimeout,
		RetryAttempts: cfg.RetryAttempts,
		BackoffBase:   cfg.BackoffBase,
		Retryable:     Retryable,
	})
	return w
}

// RecordAccess feeds the predictor. Its signature matches the engine's
// access hook.
func (w *Warmer) RecordAccess(topic string, maxResults int) {
	w.predictor.RecordAccess(topic, maxResults)
}

// Predictor exposes the access predictor.
func (w *Warmer) Predictor() *DefaultPredictor {
	return w.predictor
}

// WarmTopic queues a single feed for warming.
func (w *Warmer) WarmTopic(topic string, maxResults int, trigger string) (*PlanResult, error) {
	if topic == "" {
		return nil, errors.New("topic cannot be empty")
	}
	return w.queue([]WarmTask{{
		Topic:      topic,
		MaxResults: maxResults,
		Priority:   100,
		Trigger:    trigger,
	}}), nil
}

// TriggerPredictive warms the feeds the predictor considers hot.
func (w *Warmer) TriggerPredictive(ctx context.Context, trigger string) (*PlanResult, error) {
	predictions, err := w.predictor.PredictHotTopics(ctx, w.config.PredictWindow, w.config.MaxTopics)
	if err != nil {
		return nil, fmt.Errorf("prediction failed: %w", err)
	}
	if len(predictions) == 0 {
		return &PlanResult{Tasks: []WarmTask{}}, nil
	}

	strategy, ok := w.strategies[w.config.DefaultStrategy]
	if !ok {
		return nil, fmt.Errorf("unknown strategy: %s", w.config.DefaultStrategy)
	}
	tasks, err := strategy.Plan(ctx, PlanOptions{
		Predictions: predictions,
		Limit:       w.config.MaxTopics,
		Trigger:     trigger,
	})
	if err != nil {
		return nil, fmt.Errorf("strategy planning failed: %w", err)
	}

	result := w.queue(tasks)
	middleware.Logger(ctx).Info("predictive warm queued",
		"job_id", result.JobID, "predicted", len(predictions), "queued", result.Queued)
	return result, nil
}

func (w *Warmer) queue(tasks []WarmTask) *PlanResult {
	jobID := uuid.New().String()
	for i := range tasks {
		tasks[i].JobID = jobID
	}
	queued := w.pool.QueueTasks(tasks)
	w.metrics.TasksQueued.Add(int64(queued))
	return &PlanResult{JobID: jobID, Queued: queued, Tasks: tasks}
}

// ExecuteWarmTask warms one feed. Concurrent warms of the same feed share
// one execution. It is called by the worker pool.
func (w *Warmer) ExecuteWarmTask(ctx context.Context, task WarmTask) error {
	start := time.Now()
	key := fmt.Sprintf("%s|%d", task.Topic, task.MaxResults)

	v, err, _ := w.deduper.Do(key, func() (any, error) {
		return w.executeWarmTaskInternal(ctx, task)
	})
	duration := time.Since(start)
	w.metrics.TotalDuration.Add(duration.Milliseconds())

	event := &events.TopicWarmedEvent{
		Version:    events.EventVersion1,
		JobID:      task.JobID,
		Topic:      task.Topic,
		MaxResults: task.MaxResults,
		DurationMs: duration.Milliseconds(),
		Trigger:    task.Trigger,
		FinishedAt: w.now(),
	}
	if event.JobID == "" {
		event.JobID = uuid.New().String()
	}

	switch {
	case err == nil:
		w.metrics.SuccessTotal.Add(1)
		res, _ := v.(*models.RankedResult)
		event.Status = events.WarmStatusSuccess
		if res != nil {
			event.Posts = len(res.Posts)
			event.FromCache = res.ServedFromCache
			if res.ServedFromCache {
				w.metrics.FromCache.Add(1)
			}
		}
	case !Retryable(err):
		w.metrics.SkippedTotal.Add(1)
		event.Status = events.WarmStatusSkipped
		event.Error = err.Error()
	default:
		w.metrics.FailureTotal.Add(1)
		event.Status = events.WarmStatusFailure
		event.Error = err.Error()
	}

	log := middleware.Logger(ctx, "topic", task.Topic, "max_results", task.MaxResults, "trigger", task.Trigger)
	if err != nil {
		log.Warn("topic warm did not complete", "status", event.Status, "err", err)
	} else {
		log.Info("topic warmed", "posts", event.Posts, "from_cache", event.FromCache, "duration", duration)
	}
	w.emit(ctx, event)

	if event.Status == events.WarmStatusSkipped {
		return nil
	}
	return err
}

func (w *Warmer) executeWarmTaskInternal(ctx context.Context, task WarmTask) (*models.RankedResult, error) {
	if err := w.limiter.Wait(ctx); err != nil {
		w.metrics.RateLimitHits.Add(1)
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	res, err := w.feeder.WarmTopicFeed(ctx, task.Topic, task.MaxResults)
	if err != nil {
		return nil, err
	}
	if res.Stale {
		return res, errStaleServed
	}
	return res, nil
}

func (w *Warmer) emit(ctx context.Context, event *events.TopicWarmedEvent) {
	if w.publish == nil {
		return
	}
	if err := w.publish(ctx, event); err != nil {
		middleware.Logger(ctx).Error("failed to publish warm event", "topic", event.Topic, "err", err)
	}
}

// Retryable reports whether a failed warm is worth retrying. Unknown topics,
// invalid input and an exhausted upstream budget are not.
func Retryable(err error) bool {
	switch models.KindOf(err) {
	case models.KindNotFound, models.KindInvalidQuery, models.KindRateBudgetExhausted, models.KindUpstreamForbidden:
		return false
	}
	return true
}

// Status returns current warming state and metrics.
func (w *Warmer) Status() Status {
	success := w.metrics.SuccessTotal.Load()
	failure := w.metrics.FailureTotal.Load()

	successRate := 0.0
	if attempts := success + failure; attempts > 0 {
		successRate = float64(success) / float64(attempts)
	}
	avgDuration := 0.0
	if attempts := success + failure + w.metrics.SkippedTotal.Load(); attempts > 0 {
		avgDuration = float64(w.metrics.TotalDuration.Load()) / float64(attempts)
	}

	return Status{
		ActiveTasks:  w.pool.ActiveCount(),
		QueuedTasks:  w.pool.QueueSize(),
		WorkerStatus: w.pool.GetWorkerStatus(),
		Predictor:    w.predictor.GetStats(),
		Metrics: MetricsSnapshot{
			TasksQueued:   w.metrics.TasksQueued.Load(),
			SuccessTotal:  success,
			FailureTotal:  failure,
			SkippedTotal:  w.metrics.SkippedTotal.Load(),
			FromCache:     w.metrics.FromCache.Load(),
			RateLimitHits: w.metrics.RateLimitHits.Load(),
			Dropped:       w.pool.Dropped(),
			SuccessRate:   successRate,
			AvgDurationMs: avgDuration,
		},
	}
}

// Shutdown stops the workers.
func (w *Warmer) Shutdown() {
	w.pool.Shutdown()
}
