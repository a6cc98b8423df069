// Package feeds is the public surface of the feed engine: topic feeds of
// ranked posts, related-post search for highlighted passages, topic
// summaries and engine statistics.
//
// Design Philosophy:
//   - One engine instance per process; every endpoint goes through it so
//     request coalescing, caching and the upstream budget apply to all traffic
//   - Invalidation is announced over Pub/Sub and the announced topic is
//     re-warmed by a subscriber, off the request path
//   - Hot topics are warmed on a schedule from observed access patterns
//
// Consistency Model:
//   - The cache is process-local; invalidation affects the instance that
//     received the refresh request
//   - Stale results are served, and flagged, when the upstream cannot be
//     reached or the budget is spent
package feeds

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"encore.dev/rlog"

	"github.com/wikifeed/feedengine/llm"
	"github.com/wikifeed/feedengine/monitoring"
	"github.com/wikifeed/feedengine/pkg/config"
	"github.com/wikifeed/feedengine/pkg/middleware"
	"github.com/wikifeed/feedengine/pkg/models"
	events "github.com/wikifeed/feedengine/pkg/pubsub"
	"github.com/wikifeed/feedengine/retrieval"
	"github.com/wikifeed/feedengine/upstream"
	"github.com/wikifeed/feedengine/warming"
)

//encore:service
type Service struct {
	config  config.Config
	engine  *retrieval.Engine
	warmer  *warming.Warmer
	limiter *middleware.WindowLimiter
	alerts  *monitoring.AlertManager

	publishInvalidated func(ctx context.Context, e *events.TopicInvalidatedEvent) error
}

// deps are the collaborators that differ between production and tests.
type deps struct {
	fetcher            retrieval.Fetcher
	provider           llm.Provider
	publishInvalidated func(ctx context.Context, e *events.TopicInvalidatedEvent) error
	publishWarmed      warming.Publisher
	now                func() time.Time
}

// newService wires the engine, its collaborators and the warmer.
func newService(cfg config.Config, d deps) (*Service, error) {
	if d.fetcher == nil {
		return nil, errors.New("fetcher is required")
	}

	var topics retrieval.TopicResolver = retrieval.SlugResolver{}
	if cfg.TopicCatalogPath != "" {
		catalog, err := retrieval.LoadCatalog(cfg.TopicCatalogPath, retrieval.SlugResolver{})
		if err != nil {
			return nil, err
		}
		rlog.Info("topic catalog loaded", "path", cfg.TopicCatalogPath, "topics", catalog.Len())
		topics = catalog
	}

	limiter := middleware.NewWindowLimiter(cfg.RateMax, cfg.RateWindow)

	var warmer *warming.Warmer
	engineDeps := retrieval.Deps{
		Fetcher: d.fetcher,
		Topics:  topics,
		Limiter: limiter,
		OnAccess: func(topicKey string, maxResults int) {
			warmer.RecordAccess(topicKey, maxResults)
		},
		Now: d.now,
	}
	if d.provider != nil {
		engineDeps.Optimizer = llm.NewQueryOptimizer(d.provider)
		engineDeps.Reranker = llm.NewReranker(d.provider)
		engineDeps.Summarizer = llm.NewSummarizer(d.provider)
	}

	engine, err := retrieval.New(cfg.Engine, engineDeps)
	if err != nil {
		return nil, fmt.Errorf("create engine: %w", err)
	}

	warmOpts := []warming.Option{}
	if d.publishWarmed != nil {
		warmOpts = append(warmOpts, warming.WithPublisher(d.publishWarmed))
	}
	if d.now != nil {
		warmOpts = append(warmOpts, warming.WithClock(d.now))
	}
	warmer = warming.New(cfg.Warm, engine, warmOpts...)

	return &Service{
		config:             cfg,
		engine:             engine,
		warmer:             warmer,
		limiter:            limiter,
		alerts:             monitoring.NewAlertManager(nil, d.now),
		publishInvalidated: d.publishInvalidated,
	}, nil
}

// initService initializes the feeds service from the environment.
func initService() (*Service, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	clientOpts := []func(*upstream.Client){
		upstream.WithHTTPClient(&http.Client{Timeout: cfg.Engine.UpstreamTimeout}),
	}
	if cfg.Upstream.BaseURL != "" {
		clientOpts = append(clientOpts, upstream.WithBaseURL(cfg.Upstream.BaseURL))
	}
	client := upstream.NewClient(cfg.Upstream.BearerToken, clientOpts...)
	if !client.Configured() {
		rlog.Warn("no X bearer token configured, upstream searches will fail")
	}

	provider, err := buildProvider(context.Background(), cfg.LLM)
	if err != nil {
		return nil, err
	}

	return newService(cfg, deps{
		fetcher:  upstream.NewStrategy(client, cfg.Upstream.Lang),
		provider: provider,
		publishInvalidated: func(ctx context.Context, e *events.TopicInvalidatedEvent) error {
			_, err := TopicInvalidated.Publish(ctx, e)
			return err
		},
		publishWarmed: func(ctx context.Context, e *events.TopicWarmedEvent) error {
			_, err := TopicWarmed.Publish(ctx, e)
			return err
		},
	})
}

// buildProvider returns the configured language-model provider behind a
// rate-limited gate, or nil when no provider has credentials.
func buildProvider(ctx context.Context, cfg config.LLMConfig) (llm.Provider, error) {
	if !cfg.Enabled() {
		rlog.Info("no LLM provider configured, using heuristic queries and upstream order")
		return nil, nil
	}

	var provider llm.Provider
	switch cfg.Provider {
	case config.ProviderGemini:
		p, err := llm.NewGeminiProvider(ctx, llm.GeminiConfig{APIKey: cfg.GoogleKey, Model: cfg.GoogleModel})
		if err != nil {
			return nil, err
		}
		provider = p
	default:
		var opts []func(*llm.ChatClient)
		if cfg.GrokBaseURL != "" {
			opts = append(opts, llm.WithBaseURL(cfg.GrokBaseURL))
		}
		if cfg.GrokModel != "" {
			opts = append(opts, llm.WithModel(cfg.GrokModel))
		}
		provider = llm.NewChatClient(cfg.GrokAPIKey, opts...)
	}

	rlog.Info("LLM provider configured", "provider", cfg.Provider, "model", provider.Model())
	return llm.NewGate(provider, cfg.RPS, max(1, int(cfg.RPS)), cfg.Timeout), nil
}

// Global service instance
var svc *Service

func init() {
	var err error
	svc, err = initService()
	if err != nil {
		panic(fmt.Sprintf("failed to initialize feeds service: %v", err))
	}
}

// Request and response types

type FeedParams struct {
	MaxResults int  `query:"max_results"`
	Refresh    bool `query:"refresh"`
}

type FeedResponse struct {
	Topic           string              `json:"topic,omitempty"`
	Posts           []models.RankedPost `json:"posts"`
	Hints           *models.QueryHints  `json:"hints,omitempty"`
	Mode            string              `json:"mode"`
	HintsSource     string              `json:"hints_source,omitempty"`
	RankingSource   string              `json:"ranking_source"`
	ServedFromCache bool                `json:"served_from_cache"`
	Stale           bool                `json:"stale"`
	ComputedAt      time.Time           `json:"computed_at"`
}

type RefreshParams struct {
	MaxResults int  `query:"max_results"`
	Rewarm     bool `query:"rewarm"`
}

type RefreshResponse struct {
	Topic       string `json:"topic"`
	Invalidated int    `json:"invalidated"`
	Published   bool   `json:"published"`
	RequestID   string `json:"request_id"`
}

type SummaryParams struct {
	MaxResults int `query:"max_results"`
}

type SummaryResponse struct {
	Topic      string    `json:"topic"`
	Bullets    []string  `json:"bullets"`
	Model      string    `json:"model,omitempty"`
	Cached     bool      `json:"cached"`
	ComputedAt time.Time `json:"computed_at"`
}

type SearchRequest struct {
	Text         string `json:"text"`
	TopicContext string `json:"topic_context,omitempty"`
	MaxResults   int    `json:"max_results,omitempty"`
	// Optimize defaults to true.
	Optimize *bool `json:"optimize,omitempty"`
	NoCache  bool  `json:"no_cache,omitempty"`
	// Keywords and Topics carry hints edited by the reader; when present
	// they are searched verbatim.
	Keywords []string `json:"keywords,omitempty"`
	Topics   []string `json:"topics,omitempty"`
}

type StatsResponse struct {
	Timestamp time.Time `json:"timestamp"`

	CacheHits          uint64  `json:"cache_hits"`
	CacheMisses        uint64  `json:"cache_misses"`
	HitRate            float64 `json:"hit_rate"`
	StaleServes        uint64  `json:"stale_serves"`
	UpstreamCalls      uint64  `json:"upstream_calls"`
	UpstreamErrors     uint64  `json:"upstream_errors"`
	RateRejections     uint64  `json:"rate_rejections"`
	SharedWaits        uint64  `json:"shared_waits"`
	OptimizerFallbacks uint64  `json:"optimizer_fallbacks"`
	RerankFallbacks    uint64  `json:"rerank_fallbacks"`
	ResultEntries      int     `json:"result_entries"`
	SummaryEntries     int     `json:"summary_entries"`
	InFlight           int     `json:"in_flight"`
	Downgraded         bool    `json:"downgraded"`

	RateWindowStart time.Time `json:"rate_window_start"`
	RateUsed        int       `json:"rate_used"`
	RateMax         int       `json:"rate_max"`
	RateRemaining   int       `json:"rate_remaining"`
	RateWindowSecs  float64   `json:"rate_window_seconds"`
	// RateFallbacks counts budget rejections answered from the cache.
	RateFallbacks uint64 `json:"rate_fallbacks"`

	UpstreamLatencyMeanMs float64 `json:"upstream_latency_mean_ms"`
	UpstreamLatencyMaxMs  float64 `json:"upstream_latency_max_ms"`

	Warm      warming.MetricsSnapshot `json:"warm"`
	Predictor warming.PredictorStats  `json:"predictor"`
}

// GetTopicPosts returns the top posts about a topic, ranked by engagement.
//
//encore:api public method=GET path=/api/topics/:topic/posts
func GetTopicPosts(ctx context.Context, topic string, p *FeedParams) (*FeedResponse, error) {
	if svc == nil {
		return nil, errors.New("service not initialized")
	}
	return svc.GetTopicPosts(ctx, topic, p)
}

func (s *Service) GetTopicPosts(ctx context.Context, topic string, p *FeedParams) (*FeedResponse, error) {
	ctx, _ = middleware.EnsureRequestID(ctx)
	if p == nil {
		p = &FeedParams{}
	}

	res, err := s.engine.GetTopicFeed(ctx, topic, p.MaxResults, p.Refresh)
	if err != nil {
		return nil, toAPIError(err)
	}
	return feedResponse(topic, res), nil
}

// RefreshTopic invalidates every cached feed of a topic and announces it.
// With rewarm set, the topic is fetched again in the background.
//
//encore:api public method=POST path=/api/topics/:topic/posts/refresh
func RefreshTopic(ctx context.Context, topic string, p *RefreshParams) (*RefreshResponse, error) {
	if svc == nil {
		return nil, errors.New("service not initialized")
	}
	return svc.RefreshTopic(ctx, topic, p)
}

func (s *Service) RefreshTopic(ctx context.Context, topic string, p *RefreshParams) (*RefreshResponse, error) {
	ctx, requestID := middleware.EnsureRequestID(ctx)
	if p == nil {
		p = &RefreshParams{}
	}

	n, err := s.engine.InvalidateTopic(ctx, topic)
	if err != nil {
		return nil, toAPIError(err)
	}

	resp := &RefreshResponse{Topic: topic, Invalidated: n, RequestID: requestID}
	if s.publishInvalidated == nil {
		return resp, nil
	}

	event := &events.TopicInvalidatedEvent{
		Version:     events.EventVersion1,
		Service:     "feeds",
		Topic:       topic,
		Entries:     n,
		Rewarm:      p.Rewarm,
		MaxResults:  s.engine.Config().DefaultMaxResults,
		TriggeredAt: time.Now(),
		RequestID:   requestID,
	}
	if p.MaxResults > 0 {
		event.MaxResults = p.MaxResults
	}
	if err := s.publishInvalidated(ctx, event); err != nil {
		middleware.Logger(ctx).Error("failed to publish invalidation", "topic", topic, "err", err)
		return resp, nil
	}
	resp.Published = true
	return resp, nil
}

// GetTopicSummary returns a short bullet summary of a topic's top posts.
//
//encore:api public method=GET path=/api/topics/:topic/posts/summary
func GetTopicSummary(ctx context.Context, topic string, p *SummaryParams) (*SummaryResponse, error) {
	if svc == nil {
		return nil, errors.New("service not initialized")
	}
	return svc.GetTopicSummary(ctx, topic, p)
}

func (s *Service) GetTopicSummary(ctx context.Context, topic string, p *SummaryParams) (*SummaryResponse, error) {
	ctx, _ = middleware.EnsureRequestID(ctx)
	if p == nil {
		p = &SummaryParams{}
	}

	sum, err := s.engine.GetTopicSummary(ctx, topic, p.MaxResults)
	if err != nil {
		return nil, toAPIError(err)
	}
	return &SummaryResponse{
		Topic:      sum.Topic,
		Bullets:    sum.Bullets,
		Model:      sum.Model,
		Cached:     sum.Cached,
		ComputedAt: sum.ComputedAt,
	}, nil
}

// SearchPosts returns posts related to a highlighted passage.
//
//encore:api public method=POST path=/api/posts/search
func SearchPosts(ctx context.Context, req *SearchRequest) (*FeedResponse, error) {
	if svc == nil {
		return nil, errors.New("service not initialized")
	}
	return svc.SearchPosts(ctx, req)
}

func (s *Service) SearchPosts(ctx context.Context, req *SearchRequest) (*FeedResponse, error) {
	ctx, _ = middleware.EnsureRequestID(ctx)
	if req == nil {
		return nil, toAPIError(models.Errorf(models.KindInvalidQuery, "feeds.search", "missing request body"))
	}

	optimize := true
	if req.Optimize != nil {
		optimize = *req.Optimize
	}

	res, err := s.engine.SearchRelated(ctx, retrieval.SearchRequest{
		Text:         req.Text,
		TopicContext: req.TopicContext,
		MaxResults:   req.MaxResults,
		Optimize:     optimize,
		NoCache:      req.NoCache,
		Keywords:     req.Keywords,
		Topics:       req.Topics,
	})
	if err != nil {
		return nil, toAPIError(err)
	}
	return feedResponse("", res), nil
}

// GetStats returns engine and warming statistics.
//
//encore:api public method=GET path=/api/posts/stats
func GetStats(ctx context.Context) (*StatsResponse, error) {
	if svc == nil {
		return nil, errors.New("service not initialized")
	}
	return svc.GetStats(ctx)
}

func (s *Service) GetStats(ctx context.Context) (*StatsResponse, error) {
	st := s.engine.Stats()
	ls := s.limiter.GetStats()
	warm := s.warmer.Status()

	return &StatsResponse{
		Timestamp:             st.Timestamp,
		CacheHits:             st.CacheHits,
		CacheMisses:           st.CacheMisses,
		HitRate:               st.HitRate,
		StaleServes:           st.StaleServes,
		UpstreamCalls:         st.UpstreamCalls,
		UpstreamErrors:        st.UpstreamErrors,
		RateRejections:        st.RateRejections,
		SharedWaits:           st.SharedWaits,
		OptimizerFallbacks:    st.OptimizerFallbacks,
		RerankFallbacks:       st.RerankFallbacks,
		ResultEntries:         st.ResultEntries,
		SummaryEntries:        st.SummaryEntries,
		InFlight:              st.InFlight,
		Downgraded:            st.Downgraded,
		RateWindowStart:       ls.Window.WindowStart,
		RateUsed:              ls.Window.Count,
		RateMax:               ls.Window.Max,
		RateRemaining:         ls.Window.Remaining(),
		RateWindowSecs:        ls.Window.Window.Seconds(),
		RateFallbacks:         ls.RejectionFallback,
		UpstreamLatencyMeanMs: durationMs(st.UpstreamLatency.Mean()),
		UpstreamLatencyMaxMs:  durationMs(st.UpstreamLatency.Max),
		Warm:                  warm.Metrics,
		Predictor:             warm.Predictor,
	}, nil
}

func feedResponse(topic string, res *models.RankedResult) *FeedResponse {
	return &FeedResponse{
		Topic:           topic,
		Posts:           res.Posts,
		Hints:           res.Hints,
		Mode:            string(res.Mode),
		HintsSource:     res.HintsSource,
		RankingSource:   res.RankingSource,
		ServedFromCache: res.ServedFromCache,
		Stale:           res.Stale,
		ComputedAt:      res.ComputedAt,
	}
}

func durationMs(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// Shutdown stops background warming.
func (s *Service) Shutdown(force context.Context) {
	s.warmer.Shutdown()
}
