package warming

import (
	"context"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"
)

// Executor performs one warm task.
type Executor interface {
	ExecuteWarmTask(ctx context.Context, task WarmTask) error
}

// PoolConfig sizes the worker pool.
type PoolConfig struct {
	Workers       int           // Number of worker goroutines
	QueueSize     int           // Buffered task capacity; excess tasks are dropped
	TaskTimeout   time.Duration // Bound on one execution attempt
	RetryAttempts int           // Retries after the first failed attempt
	BackoffBase   time.Duration // Base duration for exponential backoff
	// Retryable reports whether a failed task should be retried; nil retries
	// every error.
	Retryable func(error) bool
}

// WorkerPool manages a pool of concurrent workers that execute warm tasks.
type WorkerPool struct {
	executor    Executor
	config      PoolConfig
	workers     []*Worker
	taskQueue   chan WarmTask
	activeCount atomic.Int32
	dropped     atomic.Int64
	stopChan    chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
}

// Worker represents a single warming worker goroutine.
type Worker struct {
	id           int
	state        string // "idle", "busy", "stopped"
	currentTopic string
	startedAt    *time.Time
	mu           sync.RWMutex
}

// WorkerStatus is a snapshot of one worker.
type WorkerStatus struct {
	ID           int        `json:"id"`
	State        string     `json:"state"`
	CurrentTopic string     `json:"current_topic,omitempty"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
}

// NewWorkerPool creates a worker pool and starts its workers.
func NewWorkerPool(executor Executor, cfg PoolConfig) *WorkerPool {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 100
	}

	pool := &WorkerPool{
		executor:  executor,
		config:    cfg,
		workers:   make([]*Worker, cfg.Workers),
		taskQueue: make(chan WarmTask, cfg.QueueSize),
		stopChan:  make(chan struct{}),
	}

	for i := 0; i < cfg.Workers; i++ {
		worker := &Worker{id: i, state: "idle"}
		pool.workers[i] = worker

		pool.wg.Add(1)
		go pool.runWorker(worker)
	}

	return pool
}

// QueueTasks adds tasks to the queue without blocking and returns how many
// were accepted.
func (p *WorkerPool) QueueTasks(tasks []WarmTask) int {
	queued := 0
	for _, task := range tasks {
		select {
		case <-p.stopChan:
			return queued
		default:
		}
		select {
		case p.taskQueue <- task:
			queued++
		default:
			p.dropped.Add(1)
		}
	}
	return queued
}

// runWorker is the main worker loop.
func (p *WorkerPool) runWorker(worker *Worker) {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopChan:
			worker.setState("stopped")
			return

		case task := <-p.taskQueue:
			worker.startTask(task.Topic)
			p.activeCount.Add(1)

			if err := p.execute(task); err != nil && p.retryable(err) {
				p.retryTask(task)
			}

			worker.finishTask()
			p.activeCount.Add(-1)
		}
	}
}

func (p *WorkerPool) execute(task WarmTask) error {
	ctx := context.Background()
	if p.config.TaskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.config.TaskTimeout)
		defer cancel()
	}
	return p.executor.ExecuteWarmTask(ctx, task)
}

func (p *WorkerPool) retryable(err error) bool {
	if p.config.Retryable == nil {
		return true
	}
	return p.config.Retryable(err)
}

// retryTask implements retry logic with exponential backoff and jitter.
// Shutdown interrupts the backoff.
func (p *WorkerPool) retryTask(task WarmTask) {
	backoff := p.config.BackoffBase
	if backoff <= 0 {
		backoff = 100 * time.Millisecond
	}

	for attempt := 1; attempt <= p.config.RetryAttempts; attempt++ {
		sleepTime := backoff * time.Duration(1<<uint(attempt-1))
		jitter := time.Duration(rand.Int64N(int64(sleepTime/2) + 1))

		timer := time.NewTimer(sleepTime + jitter)
		select {
		case <-p.stopChan:
			timer.Stop()
			return
		case <-timer.C:
		}

		err := p.execute(task)
		if err == nil || !p.retryable(err) {
			return
		}
	}
}

// ActiveCount returns the number of currently busy workers.
func (p *WorkerPool) ActiveCount() int {
	return int(p.activeCount.Load())
}

// QueueSize returns the number of tasks waiting in queue.
func (p *WorkerPool) QueueSize() int {
	return len(p.taskQueue)
}

// Dropped returns how many tasks were rejected because the queue was full.
func (p *WorkerPool) Dropped() int64 {
	return p.dropped.Load()
}

// GetWorkerStatus returns status of all workers.
func (p *WorkerPool) GetWorkerStatus() []WorkerStatus {
	status := make([]WorkerStatus, len(p.workers))
	for i, worker := range p.workers {
		worker.mu.RLock()
		status[i] = WorkerStatus{
			ID:           worker.id,
			State:        worker.state,
			CurrentTopic: worker.currentTopic,
			StartedAt:    worker.startedAt,
		}
		worker.mu.RUnlock()
	}
	return status
}

// Shutdown stops all workers after their current task. Queued tasks are
// discarded.
func (p *WorkerPool) Shutdown() {
	p.stopOnce.Do(func() { close(p.stopChan) })
	p.wg.Wait()
}

// Worker methods

func (w *Worker) startTask(topic string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	w.state = "busy"
	w.currentTopic = topic
	w.startedAt = &now
}

func (w *Worker) finishTask() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.state = "idle"
	w.currentTopic = ""
	w.startedAt = nil
}

func (w *Worker) setState(state string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.state = state
}
