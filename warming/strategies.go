package warming

import (
	"context"
	"sort"
)

// Strategy names.
const (
	StrategyPriority = "priority"
	StrategyBreadth  = "breadth"
)

// Warm triggers recorded on tasks and events.
const (
	TriggerCron       = "cron"
	TriggerPredictive = "predictive"
	TriggerInvalidate = "invalidate"
	TriggerManual     = "manual"
)

// Strategy decides which predicted feeds to warm and in what order.
type Strategy interface {
	Name() string
	Plan(ctx context.Context, opts PlanOptions) ([]WarmTask, error)
}

// PlanOptions provides input parameters for warming strategy planning.
type PlanOptions struct {
	Predictions []Prediction // Hottest first
	Priority    int          // Base priority; 0 derives it from rank
	Limit       int          // Maximum number of tasks to generate
	Trigger     string
}

// WarmTask represents a single feed warming task.
type WarmTask struct {
	JobID      string `json:"job_id"`
	Topic      string `json:"topic"`
	MaxResults int    `json:"max_results"`
	Priority   int    `json:"priority"`           // Higher is more important
	Trigger    string `json:"trigger"`            // What asked for the warm
	Strategy   string `json:"strategy,omitempty"` // Strategy that created this task
}

// Key returns the dedupe key of the task.
func (t WarmTask) Key() FeedKey {
	return FeedKey{Topic: t.Topic, MaxResults: t.MaxResults}
}

// PriorityBasedStrategy warms the hottest feeds first. Priority decreases
// linearly with rank unless a base priority is given.
type PriorityBasedStrategy struct{}

// NewPriorityBasedStrategy creates a new priority-based strategy.
func NewPriorityBasedStrategy() Strategy {
	return PriorityBasedStrategy{}
}

func (PriorityBasedStrategy) Name() string {
	return StrategyPriority
}

// Plan generates one task per prediction, sorted by priority.
// Complexity: O(n log n) for sorting
func (s PriorityBasedStrategy) Plan(ctx context.Context, opts PlanOptions) ([]WarmTask, error) {
	n := len(opts.Predictions)
	if opts.Limit > 0 && opts.Limit < n {
		n = opts.Limit
	}

	tasks := make([]WarmTask, 0, n)
	for i := 0; i < n; i++ {
		p := opts.Predictions[i]
		priority := opts.Priority
		if priority == 0 {
			priority = 100 - (i * 100 / n)
		}
		tasks = append(tasks, WarmTask{
			Topic:      p.Topic,
			MaxResults: p.MaxResults,
			Priority:   priority,
			Trigger:    opts.Trigger,
			Strategy:   s.Name(),
		})
	}

	sort.SliceStable(tasks, func(i, j int) bool {
		return tasks[i].Priority > tasks[j].Priority
	})
	return tasks, nil
}

// BreadthFirstStrategy covers as many distinct topics as possible before
// warming a second page size of any topic. Useful when the warm budget is
// smaller than the number of hot feeds.
type BreadthFirstStrategy struct{}

// NewBreadthFirstStrategy creates a new breadth-first strategy.
func NewBreadthFirstStrategy() Strategy {
	return BreadthFirstStrategy{}
}

func (BreadthFirstStrategy) Name() string {
	return StrategyBreadth
}

// Plan takes each topic's hottest variant in prediction order, then the
// remaining variants, up to the limit.
func (s BreadthFirstStrategy) Plan(ctx context.Context, opts PlanOptions) ([]WarmTask, error) {
	seen := make(map[string]struct{}, len(opts.Predictions))
	first := make([]Prediction, 0, len(opts.Predictions))
	rest := make([]Prediction, 0)
	for _, p := range opts.Predictions {
		if _, ok := seen[p.Topic]; ok {
			rest = append(rest, p)
			continue
		}
		seen[p.Topic] = struct{}{}
		first = append(first, p)
	}

	ordered := append(first, rest...)
	if opts.Limit > 0 && opts.Limit < len(ordered) {
		ordered = ordered[:opts.Limit]
	}

	tasks := make([]WarmTask, 0, len(ordered))
	for i, p := range ordered {
		priority := opts.Priority
		if priority == 0 {
			priority = 100 - (i * 100 / len(ordered))
		}
		tasks = append(tasks, WarmTask{
			Topic:      p.Topic,
			MaxResults: p.MaxResults,
			Priority:   priority,
			Trigger:    opts.Trigger,
			Strategy:   s.Name(),
		})
	}
	return tasks, nil
}
