// Package retrieval is the retrieval–cache–rank engine. It resolves a topic
// or a free-text passage into ranked posts while protecting the upstream
// search API and the language-model providers from concurrent load.
//
// Request Flow:
//  1. A fresh cached result is returned immediately; the rate limiter is not
//     consulted
//  2. Otherwise the request joins the single in-flight computation for its
//     key, which re-checks the cache before doing any work
//  3. The computation takes one unit of the process-wide upstream budget;
//     without budget it serves the last good value or fails
//  4. Candidates are fetched, ranked, truncated and cached
//  5. Upstream failures degrade to the last good value when one exists
//
// Design Notes:
//   - Cached results are never handed out directly; callers get clones
//     flagged with ServedFromCache and Stale
//   - Each key's cache entry is written only from inside that key's flight
//   - The engine holds no globals; the feeds service owns the one instance
package retrieval

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	cachemanager "github.com/wikifeed/feedengine/cache-manager"
	"github.com/wikifeed/feedengine/pkg/middleware"
	"github.com/wikifeed/feedengine/pkg/models"
	"github.com/wikifeed/feedengine/query"
	"github.com/wikifeed/feedengine/ranking"
)

// Fetcher retrieves candidate posts for a search expression.
type Fetcher interface {
	Fetch(ctx context.Context, expression string, poolSize int) ([]models.SocialPost, error)
}

// Limiter gates upstream calls with a shared budget.
type Limiter interface {
	TryAcquire() bool
	RecordRejectionFallback()
}

// Summarizer condenses ranked posts into bullets.
type Summarizer interface {
	Summarize(ctx context.Context, phrase string, posts []models.SocialPost) ([]string, error)
	Model() string
}

// AccessHook observes topic feed requests, e.g. to predict hot topics.
type AccessHook func(topicKey string, maxResults int)

// Deps are the engine's collaborators. Fetcher, Topics and Limiter are
// required; the rest may be nil.
type Deps struct {
	Fetcher    Fetcher
	Topics     TopicResolver
	Limiter    Limiter
	Optimizer  query.Optimizer
	Reranker   ranking.Reranker
	Summarizer Summarizer
	OnAccess   AccessHook
	Now        func() time.Time
}

// Metrics tracks engine counters.
type Metrics struct {
	CacheHits          atomic.Uint64
	CacheMisses        atomic.Uint64
	StaleServes        atomic.Uint64
	UpstreamCalls      atomic.Uint64
	UpstreamErrors     atomic.Uint64
	RateRejections     atomic.Uint64
	SharedWaits        atomic.Uint64
	OptimizerFallbacks atomic.Uint64
	RerankFallbacks    atomic.Uint64
}

// flightResult is what one coalesced computation hands to its callers.
type flightResult struct {
	result    *models.RankedResult
	fromCache bool
	stale     bool
}

type summaryResult struct {
	summary   models.TopicSummary
	fromCache bool
}

// Engine is the retrieval–cache–rank engine.
type Engine struct {
	config Config
	deps   Deps
	now    func() time.Time

	results   *cachemanager.TTLCache[*models.RankedResult]
	summaries *cachemanager.TTLCache[models.TopicSummary]
	flights   *cachemanager.Coalescer[flightResult]
	summaryFl *cachemanager.Coalescer[summaryResult]

	resolver *query.Resolver
	semantic *ranking.SemanticRanker

	metrics   Metrics
	latencyMu sync.Mutex
	latency   models.LatencySummary
}

// New creates an engine.
func New(cfg Config, deps Deps) (*Engine, error) {
	if deps.Fetcher == nil || deps.Topics == nil || deps.Limiter == nil {
		return nil, errors.New("retrieval: fetcher, topic resolver and limiter are required")
	}
	cfg = cfg.withDefaults()
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	cacheCfg := cachemanager.CacheConfig{Now: now}
	flightCfg := cachemanager.CoalescerConfig{CallTimeout: cfg.FlightTimeout, MaxWait: cfg.MaxWait}

	return &Engine{
		config:    cfg,
		deps:      deps,
		now:       now,
		results:   cachemanager.NewTTLCache[*models.RankedResult](cacheCfg),
		summaries: cachemanager.NewTTLCache[models.TopicSummary](cacheCfg),
		flights:   cachemanager.NewCoalescer[flightResult](flightCfg),
		summaryFl: cachemanager.NewCoalescer[summaryResult](flightCfg),
		resolver:  query.NewResolver(deps.Optimizer),
		semantic:  ranking.NewSemanticRanker(deps.Reranker, cfg.RerankCandidates, cfg.VerifiedBoost),
	}, nil
}

// Config returns the effective configuration.
func (e *Engine) Config() Config {
	return e.config
}

// cached returns a clone of the fresh cached value for key, if any.
func (e *Engine) cached(key string) (*models.RankedResult, bool) {
	v, found, fresh := e.results.Get(key)
	if !found || !fresh {
		return nil, false
	}
	return v, true
}

// load runs compute for key inside the key's flight, applying the budget
// gate and stale fallback. skipCache skips the in-flight cache re-check.
func (e *Engine) load(ctx context.Context, key string, skipCache bool, compute func(context.Context) (*models.RankedResult, error)) (*models.RankedResult, error) {
	log := middleware.Logger(ctx, "key", key)

	res, shared, err := e.flights.Do(ctx, key, func(ctx context.Context) (flightResult, error) {
		if !skipCache {
			if v, ok := e.cached(key); ok {
				return flightResult{result: v, fromCache: true}, nil
			}
		}

		if !e.deps.Limiter.TryAcquire() {
			e.metrics.RateRejections.Add(1)
			if res, ok := e.fallback(key); ok {
				e.deps.Limiter.RecordRejectionFallback()
				log.Warn("rate budget exhausted, serving cached result", "stale", res.stale)
				return res, nil
			}
			return flightResult{}, models.Errorf(models.KindRateBudgetExhausted, "retrieval.load", "no upstream budget for %s", key)
		}

		result, err := compute(ctx)
		if err != nil {
			if res, ok := e.fallback(key); ok {
				log.Warn("upstream failed, serving cached result", "stale", res.stale, "err", err)
				return res, nil
			}
			return flightResult{}, err
		}

		e.results.Put(key, result, e.config.CacheTTL)
		return flightResult{result: result}, nil
	})
	if shared {
		e.metrics.SharedWaits.Add(1)
	}
	if err != nil {
		log.Error("retrieval failed", "err", err)
		return nil, err
	}

	out := res.result.Clone()
	out.ServedFromCache = res.fromCache
	out.Stale = res.stale
	return out, nil
}

// fallback returns whatever is cached for key when a computation cannot
// run. The entry is flagged stale only when its TTL has actually passed.
func (e *Engine) fallback(key string) (flightResult, bool) {
	v, found, fresh := e.results.Get(key)
	if !found {
		return flightResult{}, false
	}
	if !fresh {
		e.metrics.StaleServes.Add(1)
	}
	return flightResult{result: v, fromCache: true, stale: !fresh}, true
}

// fetch calls the upstream, bounded by UpstreamTimeout, and records
// counters and latency.
func (e *Engine) fetch(ctx context.Context, expression string, maxResults int) ([]models.SocialPost, error) {
	if e.config.UpstreamTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.config.UpstreamTimeout)
		defer cancel()
	}

	e.metrics.UpstreamCalls.Add(1)
	start := time.Now()
	posts, err := e.deps.Fetcher.Fetch(ctx, expression, e.config.poolSize(maxResults))

	e.latencyMu.Lock()
	e.latency.Observe(time.Since(start))
	e.latencyMu.Unlock()

	if err != nil {
		e.metrics.UpstreamErrors.Add(1)
		return nil, err
	}
	middleware.Logger(ctx).Info("fetched candidates", "expression", expression, "count", len(posts))
	return ranking.DedupeByID(posts), nil
}

// llmContext bounds one call to a language-model collaborator, so a slow
// provider ends in that collaborator's fallback and leaves the rest of the
// flight its own time.
func (e *Engine) llmContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.config.LLMTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, e.config.LLMTimeout)
}

// Stats returns a snapshot of engine state.
func (e *Engine) Stats() models.EngineStats {
	s := models.EngineStats{
		Timestamp:          e.now(),
		CacheHits:          e.metrics.CacheHits.Load(),
		CacheMisses:        e.metrics.CacheMisses.Load(),
		StaleServes:        e.metrics.StaleServes.Load(),
		UpstreamCalls:      e.metrics.UpstreamCalls.Load(),
		UpstreamErrors:     e.metrics.UpstreamErrors.Load(),
		RateRejections:     e.metrics.RateRejections.Load(),
		SharedWaits:        e.metrics.SharedWaits.Load(),
		OptimizerFallbacks: e.metrics.OptimizerFallbacks.Load(),
		RerankFallbacks:    e.metrics.RerankFallbacks.Load(),
		ResultEntries:      e.results.Size(),
		SummaryEntries:     e.summaries.Size(),
		InFlight:           e.flights.InFlight() + e.summaryFl.InFlight(),
	}
	if w, ok := e.deps.Limiter.(interface{ Window() models.RateWindow }); ok {
		s.RateWindow = w.Window()
	}
	if d, ok := e.deps.Fetcher.(interface{ Downgraded() bool }); ok {
		s.Downgraded = d.Downgraded()
	}
	e.latencyMu.Lock()
	s.UpstreamLatency = e.latency
	e.latencyMu.Unlock()
	s.ComputeHitRate()
	return s
}

func quotePhrase(phrase string) string {
	return `"` + strings.ReplaceAll(phrase, `"`, "") + `"`
}
