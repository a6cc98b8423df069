package config

import (
	"testing"
	"time"
)

func lookup(env map[string]string) func(string) string {
	return func(key string) string { return env[key] }
}

func TestFromLookup_Defaults(t *testing.T) {
	cfg, err := fromLookup(lookup(nil))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if cfg.Engine.CacheTTL != 90*time.Second {
		t.Errorf("Expected 90s cache TTL, got %v", cfg.Engine.CacheTTL)
	}
	if cfg.RateMax != 20 || cfg.RateWindow != time.Minute {
		t.Errorf("Expected 20 per 60s, got %d per %v", cfg.RateMax, cfg.RateWindow)
	}
	if cfg.Engine.Trending.TopK != 3 || cfg.Engine.Trending.Window != 168*time.Hour {
		t.Errorf("Unexpected trending defaults: %+v", cfg.Engine.Trending)
	}
	if cfg.Engine.Trending.HasOverride() {
		t.Error("Expected no trending override by default")
	}
	if cfg.Upstream.Lang != "en" || cfg.LLM.Provider != ProviderGrok {
		t.Errorf("Unexpected defaults: lang=%s provider=%s", cfg.Upstream.Lang, cfg.LLM.Provider)
	}
	if cfg.LLM.Enabled() {
		t.Error("LLM should be disabled without credentials")
	}
}

func TestFromLookup_Overrides(t *testing.T) {
	cfg, err := fromLookup(lookup(map[string]string{
		"TWEETS_CACHE_TTL":              "30",
		"TWEETS_RATE_WINDOW":            "2m",
		"TWEETS_RATE_MAX":               "5",
		"TWEETS_TRENDING_HOURS":         "24",
		"TWEETS_TRENDING_PREVIEW_RANKS": "1, 3,5",
		"TWEETS_VERIFIED_BOOST":         "1.5",
		"TWITTER_BEARER_TOKEN":          "legacy",
		"LLM_PROVIDER":                  "Gemini",
		"GOOGLE_API_KEY":                "key",
		"WARM_CONCURRENCY":              "4",
	}))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if cfg.Engine.CacheTTL != 30*time.Second {
		t.Errorf("Expected 30s, got %v", cfg.Engine.CacheTTL)
	}
	if cfg.RateWindow != 2*time.Minute || cfg.RateMax != 5 {
		t.Errorf("Unexpected rate config: %d per %v", cfg.RateMax, cfg.RateWindow)
	}
	if cfg.Engine.Trending.Window != 24*time.Hour {
		t.Errorf("Expected 24h window, got %v", cfg.Engine.Trending.Window)
	}
	ranks := cfg.Engine.Trending.PreviewRanks
	if len(ranks) != 3 || ranks[0] != 1 || ranks[1] != 3 || ranks[2] != 5 {
		t.Errorf("Unexpected preview ranks: %v", ranks)
	}
	if cfg.Engine.VerifiedBoost != 1.5 {
		t.Errorf("Expected boost 1.5, got %v", cfg.Engine.VerifiedBoost)
	}
	if cfg.Upstream.BearerToken != "legacy" {
		t.Errorf("Expected legacy token fallback, got %q", cfg.Upstream.BearerToken)
	}
	if cfg.LLM.Provider != ProviderGemini || !cfg.LLM.Enabled() {
		t.Errorf("Expected enabled gemini provider, got %+v", cfg.LLM)
	}
	if cfg.Warm.Concurrency != 4 {
		t.Errorf("Expected 4 warm workers, got %d", cfg.Warm.Concurrency)
	}
}

func TestFromLookup_BearerTokenPrecedence(t *testing.T) {
	cfg, _ := fromLookup(lookup(map[string]string{
		"X_BEARER_TOKEN":       "primary",
		"TWITTER_BEARER_TOKEN": "legacy",
	}))
	if cfg.Upstream.BearerToken != "primary" {
		t.Errorf("Expected X_BEARER_TOKEN to win, got %q", cfg.Upstream.BearerToken)
	}
}

func TestFromLookup_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"bad int", map[string]string{"TWEETS_RATE_MAX": "many"}},
		{"bad duration", map[string]string{"TWEETS_CACHE_TTL": "soon"}},
		{"bad ranks", map[string]string{"TWEETS_TRENDING_PREVIEW_RANKS": "1,x"}},
		{"zero budget", map[string]string{"TWEETS_RATE_MAX": "0"}},
		{"boost below one", map[string]string{"TWEETS_VERIFIED_BOOST": "0.5"}},
		{"unknown provider", map[string]string{"LLM_PROVIDER": "other"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := fromLookup(lookup(tt.env)); err == nil {
				t.Error("Expected error")
			}
		})
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config should validate: %v", err)
	}
}
