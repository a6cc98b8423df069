// Package config loads runtime configuration from the environment. A .env
// file in the working directory is loaded first when present; variables
// already set in the environment win.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/wikifeed/feedengine/retrieval"
	"github.com/wikifeed/feedengine/warming"
)

// LLM provider names.
const (
	ProviderGrok   = "grok"
	ProviderGemini = "gemini"
)

// Config captures runtime configuration for the feeds service.
type Config struct {
	Engine retrieval.Config

	// Process-wide upstream budget.
	RateMax    int
	RateWindow time.Duration

	Upstream UpstreamConfig
	LLM      LLMConfig
	Warm     warming.Config

	// TopicCatalogPath is an optional JSON topic catalog; empty resolves
	// topics from their slugs.
	TopicCatalogPath string
}

// UpstreamConfig configures the search API client.
type UpstreamConfig struct {
	BearerToken string
	BaseURL     string
	Lang        string
}

// LLMConfig configures the language-model collaborators.
type LLMConfig struct {
	Provider    string
	GrokAPIKey  string
	GrokBaseURL string
	GrokModel   string
	GoogleKey   string
	GoogleModel string
	RPS         float64
	Timeout     time.Duration
}

// Enabled reports whether the selected provider has credentials.
func (c LLMConfig) Enabled() bool {
	switch c.Provider {
	case ProviderGemini:
		return c.GoogleKey != ""
	default:
		return c.GrokAPIKey != ""
	}
}

// FromEnv creates a configuration instance sourced from environment variables.
func FromEnv() (Config, error) {
	_ = godotenv.Load()
	return fromLookup(os.Getenv)
}

// Default returns the configuration used when no variable is set.
func Default() Config {
	cfg, _ := fromLookup(func(string) string { return "" })
	return cfg
}

func fromLookup(getenv func(string) string) (Config, error) {
	p := parser{getenv: getenv}

	engine := retrieval.DefaultConfig()
	engine.CacheTTL = p.seconds("TWEETS_CACHE_TTL", engine.CacheTTL)
	engine.SummaryTTL = p.seconds("TWEETS_SUMMARY_TTL", engine.SummaryTTL)
	engine.PoolMultiplier = p.atoi("TWEETS_POOL_MULTIPLIER", engine.PoolMultiplier)
	engine.UpstreamTimeout = p.seconds("TWEETS_UPSTREAM_TIMEOUT", engine.UpstreamTimeout)
	engine.MaxWait = p.seconds("TWEETS_MAX_WAIT", engine.MaxWait)
	engine.LLMTimeout = p.seconds("LLM_TIMEOUT", engine.LLMTimeout)
	engine.FlightTimeout = p.seconds("TWEETS_FLIGHT_TIMEOUT", 0)
	engine.VerifiedBoost = p.number("TWEETS_VERIFIED_BOOST", engine.VerifiedBoost)
	engine.Trending.Window = time.Duration(p.atoi("TWEETS_TRENDING_HOURS", int(engine.Trending.Window/time.Hour))) * time.Hour
	engine.Trending.TopK = p.atoi("TWEETS_TRENDING_TOP_K", engine.Trending.TopK)
	engine.Trending.PreviewTopK = p.atoi("TWEETS_TRENDING_PREVIEW_TOP_K", 0)
	engine.Trending.PreviewRanks = p.ints("TWEETS_TRENDING_PREVIEW_RANKS")

	warm := warming.DefaultConfig()
	warm.Concurrency = p.atoi("WARM_CONCURRENCY", warm.Concurrency)
	warm.RPS = p.number("WARM_RPS", warm.RPS)

	cfg := Config{
		Engine:     engine,
		RateMax:    p.atoi("TWEETS_RATE_MAX", 20),
		RateWindow: p.seconds("TWEETS_RATE_WINDOW", 60*time.Second),
		Upstream: UpstreamConfig{
			BearerToken: firstNonEmpty(getenv("X_BEARER_TOKEN"), getenv("TWITTER_BEARER_TOKEN")),
			BaseURL:     getEnv(getenv, "X_API_BASE", ""),
			Lang:        getEnv(getenv, "TWEETS_LANG", "en"),
		},
		LLM: LLMConfig{
			Provider:    strings.ToLower(getEnv(getenv, "LLM_PROVIDER", ProviderGrok)),
			GrokAPIKey:  getenv("GROK_API"),
			GrokBaseURL: getEnv(getenv, "GROK_API_BASE", ""),
			GrokModel:   getEnv(getenv, "GROK_MODEL", ""),
			GoogleKey:   getenv("GOOGLE_API_KEY"),
			GoogleModel: getEnv(getenv, "GOOGLE_MODEL", ""),
			RPS:         p.number("LLM_RPS", 2),
			Timeout:     engine.LLMTimeout,
		},
		Warm:             warm,
		TopicCatalogPath: getenv("TOPIC_CATALOG_PATH"),
	}

	if p.err != nil {
		return Config{}, p.err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values that would make the engine misbehave.
func (c Config) Validate() error {
	if c.RateMax < 1 {
		return fmt.Errorf("TWEETS_RATE_MAX must be positive, got %d", c.RateMax)
	}
	if c.RateWindow <= 0 {
		return fmt.Errorf("TWEETS_RATE_WINDOW must be positive, got %v", c.RateWindow)
	}
	if c.Engine.CacheTTL <= 0 {
		return fmt.Errorf("TWEETS_CACHE_TTL must be positive, got %v", c.Engine.CacheTTL)
	}
	if c.Engine.VerifiedBoost < 1 {
		return fmt.Errorf("TWEETS_VERIFIED_BOOST must be at least 1, got %v", c.Engine.VerifiedBoost)
	}
	switch c.LLM.Provider {
	case ProviderGrok, ProviderGemini:
	default:
		return fmt.Errorf("unknown LLM_PROVIDER %q", c.LLM.Provider)
	}
	return nil
}

// parser reads typed values and keeps the first parse error.
type parser struct {
	getenv func(string) string
	err    error
}

func (p *parser) atoi(key string, fallback int) int {
	raw := strings.TrimSpace(p.getenv(key))
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		p.fail(key, err)
		return fallback
	}
	return v
}

func (p *parser) number(key string, fallback float64) float64 {
	raw := strings.TrimSpace(p.getenv(key))
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		p.fail(key, err)
		return fallback
	}
	return v
}

// seconds reads a whole number of seconds, or a Go duration such as "90s".
func (p *parser) seconds(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(p.getenv(key))
	if raw == "" {
		return fallback
	}
	if n, err := strconv.Atoi(raw); err == nil {
		return time.Duration(n) * time.Second
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		p.fail(key, err)
		return fallback
	}
	return d
}

// ints reads a comma-separated list of integers.
func (p *parser) ints(key string) []int {
	raw := strings.TrimSpace(p.getenv(key))
	if raw == "" {
		return nil
	}
	var out []int
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.Atoi(part)
		if err != nil {
			p.fail(key, err)
			return nil
		}
		out = append(out, v)
	}
	return out
}

func (p *parser) fail(key string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("parse %s: %w", key, err)
	}
}

func getEnv(getenv func(string) string, key, fallback string) string {
	if value := getenv(key); value != "" {
		return value
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
