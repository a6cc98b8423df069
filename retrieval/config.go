package retrieval

import (
	"time"

	"github.com/wikifeed/feedengine/ranking"
)

// Config holds runtime configuration for the engine.
type Config struct {
	CacheTTL          time.Duration          `json:"cache_ttl"`           // Freshness of ranked results
	SummaryTTL        time.Duration          `json:"summary_ttl"`         // Freshness of topic summaries
	PoolMultiplier    int                    `json:"pool_multiplier"`     // Candidates fetched per requested result
	UpstreamTimeout   time.Duration          `json:"upstream_timeout"`    // Bound on one upstream search call
	LLMTimeout        time.Duration          `json:"llm_timeout"`         // Bound on each optimizer, reranker or summarizer call
	FlightTimeout     time.Duration          `json:"flight_timeout"`      // Bound on one shared computation; 0 derives it from the two above
	MaxWait           time.Duration          `json:"max_wait"`            // Bound on any caller's wait for a shared computation
	VerifiedBoost     float64                `json:"verified_boost"`      // Score multiplier for verified authors
	Trending          ranking.TrendingPolicy `json:"trending"`            // Trending flag policy for topic feeds
	DefaultMaxResults int                    `json:"default_max_results"` // Used when a caller passes <= 0
	MaxResultsLimit   int                    `json:"max_results_limit"`   // Upper clamp on maxResults
	RerankCandidates  int                    `json:"rerank_candidates"`   // Candidates sent to the semantic reranker
}

// DefaultConfig returns sensible defaults for the engine.
func DefaultConfig() Config {
	return Config{
		CacheTTL:          90 * time.Second,
		SummaryTTL:        10 * time.Minute,
		PoolMultiplier:    3,
		UpstreamTimeout:   10 * time.Second,
		LLMTimeout:        15 * time.Second,
		MaxWait:           20 * time.Second,
		VerifiedBoost:     ranking.DefaultVerifiedBoost,
		Trending:          ranking.DefaultTrendingPolicy(),
		DefaultMaxResults: 10,
		MaxResultsLimit:   50,
		RerankCandidates:  ranking.DefaultMaxCandidates,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.PoolMultiplier < 1 {
		c.PoolMultiplier = d.PoolMultiplier
	}
	if c.DefaultMaxResults < 1 {
		c.DefaultMaxResults = d.DefaultMaxResults
	}
	if c.MaxResultsLimit < c.DefaultMaxResults {
		c.MaxResultsLimit = c.DefaultMaxResults
	}
	if c.RerankCandidates < 1 {
		c.RerankCandidates = d.RerankCandidates
	}
	if c.FlightTimeout <= 0 && c.UpstreamTimeout > 0 && c.LLMTimeout > 0 {
		// optimizer, upstream search, reranker
		c.FlightTimeout = c.UpstreamTimeout + 2*c.LLMTimeout
	}
	return c
}

func (c Config) clampMaxResults(n int) int {
	if n <= 0 {
		return c.DefaultMaxResults
	}
	if n > c.MaxResultsLimit {
		return c.MaxResultsLimit
	}
	return n
}

func (c Config) poolSize(maxResults int) int {
	return maxResults * c.PoolMultiplier
}
