package retrieval

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/wikifeed/feedengine/pkg/models"
)

func TestNew_RequiresCollaborators(t *testing.T) {
	if _, err := New(DefaultConfig(), Deps{}); err == nil {
		t.Error("Expected error for missing collaborators")
	}
}

func TestGetTopicFeed_RanksAndTruncates(t *testing.T) {
	env := newTestEnv(t, nil)

	res, err := env.engine.GetTopicFeed(context.Background(), "Climate_change", 5, false)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if len(res.Posts) != 5 {
		t.Fatalf("Expected 5 posts, got %d", len(res.Posts))
	}
	if res.Posts[0].Post.ID != "100" {
		t.Errorf("Expected most engaged post first, got %s", res.Posts[0].Post.ID)
	}
	for i := 1; i < len(res.Posts); i++ {
		if res.Posts[i].Score > res.Posts[i-1].Score {
			t.Errorf("Posts not in score order at %d", i)
		}
	}
	if env.fetcher.LastExpression() != `"Climate change"` {
		t.Errorf("Expected quoted phrase, got %q", env.fetcher.LastExpression())
	}
	if env.fetcher.LastPool() != 15 {
		t.Errorf("Expected pool of 15, got %d", env.fetcher.LastPool())
	}
	if res.Mode != models.ModeTopic || res.RankingSource != models.SourceEngagement {
		t.Errorf("Unexpected mode/source: %s/%s", res.Mode, res.RankingSource)
	}
	if res.ServedFromCache || res.Stale {
		t.Error("Fresh computation should not be flagged cached or stale")
	}
}

func TestGetTopicFeed_TrendingFlags(t *testing.T) {
	env := newTestEnv(t, nil)

	res, err := env.engine.GetTopicFeed(context.Background(), "Climate_change", 5, false)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	for i, p := range res.Posts {
		want := i < 3
		if p.Trending != want {
			t.Errorf("Post %d: expected trending=%v, got %v", i, want, p.Trending)
		}
	}
}

func TestGetTopicFeed_CacheHitSkipsLimiter(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	if _, err := env.engine.GetTopicFeed(ctx, "Climate_change", 5, false); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	env.limiter.SetAllow(false)

	res, err := env.engine.GetTopicFeed(ctx, "climate  CHANGE", 5, false)
	if err != nil {
		t.Fatalf("Unexpected error on cache hit: %v", err)
	}
	if !res.ServedFromCache {
		t.Error("Expected second call to be served from cache")
	}
	if env.fetcher.Calls() != 1 {
		t.Errorf("Expected 1 upstream call, got %d", env.fetcher.Calls())
	}
	acquired, rejected, _ := env.limiter.Counts()
	if acquired != 1 || rejected != 0 {
		t.Errorf("Expected limiter consulted once, got acquired=%d rejected=%d", acquired, rejected)
	}
}

func TestGetTopicFeed_CallerMutationDoesNotLeak(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	first, _ := env.engine.GetTopicFeed(ctx, "Climate_change", 5, false)
	first.Posts[0].Score = -1
	first.Posts = first.Posts[:1]

	second, err := env.engine.GetTopicFeed(ctx, "Climate_change", 5, false)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(second.Posts) != 5 || second.Posts[0].Score < 0 {
		t.Error("Mutation of a returned result leaked into the cache")
	}
}

func TestGetTopicFeed_MaxResultsVariantsAreSeparate(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	env.engine.GetTopicFeed(ctx, "Climate_change", 5, false)
	env.engine.GetTopicFeed(ctx, "Climate_change", 10, false)

	if env.fetcher.Calls() != 2 {
		t.Errorf("Expected 2 upstream calls, got %d", env.fetcher.Calls())
	}
}

func TestGetTopicFeed_ConcurrentMissesFetchOnce(t *testing.T) {
	env := newTestEnv(t, nil)
	release := env.fetcher.Block()
	key := models.NewCacheKey(models.ModeTopic, "Climate change", 5).String()

	const callers = 20
	var wg sync.WaitGroup
	results := make([]*models.RankedResult, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = env.engine.GetTopicFeed(context.Background(), "Climate_change", 5, false)
		}(i)
	}

	deadline := time.Now().Add(2 * time.Second)
	for env.engine.flights.Waiters(key) < callers && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	close(release)
	wg.Wait()

	if env.fetcher.Calls() != 1 {
		t.Errorf("Expected exactly 1 upstream call, got %d", env.fetcher.Calls())
	}
	acquired, _, _ := env.limiter.Counts()
	if acquired != 1 {
		t.Errorf("Expected 1 budget unit spent, got %d", acquired)
	}
	for i := range results {
		if errs[i] != nil {
			t.Fatalf("Caller %d got error: %v", i, errs[i])
		}
		if results[i].Posts[0].Post.ID != results[0].Posts[0].Post.ID {
			t.Errorf("Caller %d got a different result", i)
		}
	}
	if env.engine.Stats().SharedWaits == 0 {
		t.Error("Expected shared waits to be counted")
	}
}

func TestGetTopicFeed_ServesStaleOnUpstreamError(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	if _, err := env.engine.GetTopicFeed(ctx, "Climate_change", 5, false); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	env.clock.Advance(2 * time.Minute)
	env.fetcher.SetError(models.Errorf(models.KindUpstreamThrottled, "search", "429"))

	res, err := env.engine.GetTopicFeed(ctx, "Climate_change", 5, false)
	if err != nil {
		t.Fatalf("Expected stale result, got error: %v", err)
	}
	if !res.Stale || !res.ServedFromCache {
		t.Errorf("Expected stale cached result, got stale=%v cached=%v", res.Stale, res.ServedFromCache)
	}
	if len(res.Posts) != 5 {
		t.Errorf("Expected last good posts, got %d", len(res.Posts))
	}
	if env.engine.Stats().StaleServes != 1 {
		t.Errorf("Expected 1 stale serve, got %d", env.engine.Stats().StaleServes)
	}
}

func TestGetTopicFeed_UpstreamErrorWithoutFallback(t *testing.T) {
	env := newTestEnv(t, nil)
	env.fetcher.SetError(models.Errorf(models.KindUpstreamUnavailable, "search", "boom"))

	_, err := env.engine.GetTopicFeed(context.Background(), "Climate_change", 5, false)
	if !errors.Is(err, models.ErrUpstreamUnavailable) {
		t.Errorf("Expected ErrUpstreamUnavailable, got %v", err)
	}
	if env.engine.results.Size() != 0 {
		t.Error("Failed computation should not be cached")
	}
}

func TestGetTopicFeed_RateBudgetExhausted(t *testing.T) {
	env := newTestEnv(t, nil)
	env.limiter.SetAllow(false)

	_, err := env.engine.GetTopicFeed(context.Background(), "Climate_change", 5, false)
	if !errors.Is(err, models.ErrRateBudgetExhausted) {
		t.Errorf("Expected ErrRateBudgetExhausted, got %v", err)
	}
	if env.fetcher.Calls() != 0 {
		t.Errorf("Expected no upstream call, got %d", env.fetcher.Calls())
	}
	if env.engine.Stats().RateRejections != 1 {
		t.Errorf("Expected 1 rate rejection, got %d", env.engine.Stats().RateRejections)
	}
}

func TestGetTopicFeed_RateBudgetExhaustedServesStale(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	env.engine.GetTopicFeed(ctx, "Climate_change", 5, false)
	env.clock.Advance(2 * time.Minute)
	env.limiter.SetAllow(false)

	res, err := env.engine.GetTopicFeed(ctx, "Climate_change", 5, false)
	if err != nil {
		t.Fatalf("Expected stale result, got error: %v", err)
	}
	if !res.Stale {
		t.Error("Expected stale flag")
	}
	if _, _, fallbacks := env.limiter.Counts(); fallbacks != 1 {
		t.Errorf("Expected 1 rejection fallback, got %d", fallbacks)
	}
}

func TestGetTopicFeed_ForceRefresh(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	env.engine.GetTopicFeed(ctx, "Climate_change", 5, false)
	env.fetcher.SetPosts(testPosts(2, env.clock.Now()))

	res, err := env.engine.GetTopicFeed(ctx, "Climate_change", 5, true)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if env.fetcher.Calls() != 2 {
		t.Errorf("Expected forced refresh to call upstream, got %d calls", env.fetcher.Calls())
	}
	if len(res.Posts) != 2 || res.ServedFromCache {
		t.Errorf("Expected 2 fresh posts, got %d cached=%v", len(res.Posts), res.ServedFromCache)
	}
}

func TestGetTopicFeed_UnknownTopic(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config, deps *Deps) {
		deps.Topics = NewCatalog([]CatalogEntry{{Slug: "Climate_change", Title: "Climate change"}}, nil)
	})

	_, err := env.engine.GetTopicFeed(context.Background(), "Unknown_topic", 5, false)
	if !errors.Is(err, models.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if env.fetcher.Calls() != 0 {
		t.Error("Unknown topic should not reach the upstream")
	}
}

func TestGetTopicFeed_AccessHook(t *testing.T) {
	var got []string
	env := newTestEnv(t, func(cfg *Config, deps *Deps) {
		deps.OnAccess = func(topicKey string, maxResults int) {
			got = append(got, topicKey)
		}
	})

	env.engine.GetTopicFeed(context.Background(), "Climate_change", 0, false)
	if len(got) != 1 || got[0] != "Climate_change" {
		t.Errorf("Expected access hook called with topic key, got %v", got)
	}
}

func TestInvalidateTopic(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	env.engine.GetTopicFeed(ctx, "Climate_change", 5, false)
	env.engine.GetTopicFeed(ctx, "Climate_change", 10, false)
	env.engine.GetTopicFeed(ctx, "Solar_power", 5, false)

	n, err := env.engine.InvalidateTopic(ctx, "Climate_change")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if n != 2 {
		t.Errorf("Expected 2 entries invalidated, got %d", n)
	}

	env.engine.GetTopicFeed(ctx, "Climate_change", 5, false)
	env.engine.GetTopicFeed(ctx, "Solar_power", 5, false)
	if env.fetcher.Calls() != 4 {
		t.Errorf("Expected only the invalidated topic to refetch, got %d calls", env.fetcher.Calls())
	}
}

func TestInvalidateTopic_KeepsLastGood(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	env.engine.GetTopicFeed(ctx, "Climate_change", 5, false)
	env.engine.InvalidateTopic(ctx, "Climate_change")
	env.fetcher.SetError(models.Errorf(models.KindUpstreamThrottled, "search", "429"))

	res, err := env.engine.GetTopicFeed(ctx, "Climate_change", 5, false)
	if err != nil {
		t.Fatalf("Expected stale result after invalidation, got %v", err)
	}
	if !res.Stale {
		t.Error("Expected stale flag")
	}
}

func TestStats(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	env.engine.GetTopicFeed(ctx, "Climate_change", 5, false)
	env.engine.GetTopicFeed(ctx, "Climate_change", 5, false)

	s := env.engine.Stats()
	if s.CacheHits != 1 || s.CacheMisses != 1 {
		t.Errorf("Expected 1 hit and 1 miss, got %d/%d", s.CacheHits, s.CacheMisses)
	}
	if s.UpstreamCalls != 1 || s.UpstreamLatency.Count != 1 {
		t.Errorf("Expected 1 upstream call observed, got %d/%d", s.UpstreamCalls, s.UpstreamLatency.Count)
	}
	if s.ResultEntries != 1 {
		t.Errorf("Expected 1 cached result, got %d", s.ResultEntries)
	}
	if s.HitRate != 0.5 {
		t.Errorf("Expected hit rate 0.5, got %f", s.HitRate)
	}
}

func TestGetTopicFeed_ManyTopicsKeepLastGood(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	for _, topic := range []string{"Alpha", "Beta", "Gamma"} {
		if _, err := env.engine.GetTopicFeed(ctx, topic, 5, false); err != nil {
			t.Fatalf("Unexpected error for %s: %v", topic, err)
		}
	}
	env.clock.Advance(2 * time.Minute)
	env.fetcher.SetError(models.Errorf(models.KindUpstreamThrottled, "search", "429"))

	res, err := env.engine.GetTopicFeed(ctx, "Alpha", 5, false)
	if err != nil {
		t.Fatalf("Expected stale result for the oldest topic, got %v", err)
	}
	if !res.Stale || len(res.Posts) != 5 {
		t.Errorf("Expected 5 stale posts, got stale=%v posts=%d", res.Stale, len(res.Posts))
	}
}

func TestGetTopicFeed_CallerGivesUpWhileSharedCallFinishes(t *testing.T) {
	tests := []struct {
		name    string
		maxWait time.Duration
		ctxWait time.Duration
	}{
		{name: "max wait", maxWait: 50 * time.Millisecond},
		{name: "caller deadline", ctxWait: 50 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, func(cfg *Config, deps *Deps) {
				if tt.maxWait > 0 {
					cfg.MaxWait = tt.maxWait
				}
			})
			release := env.fetcher.Block()

			ctx := context.Background()
			if tt.ctxWait > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, tt.ctxWait)
				defer cancel()
			}

			_, err := env.engine.GetTopicFeed(ctx, "Climate_change", 5, false)
			if !errors.Is(err, models.ErrWaitTimeout) {
				t.Fatalf("Expected ErrWaitTimeout, got %v", err)
			}

			close(release)
			deadline := time.Now().Add(2 * time.Second)
			for env.engine.flights.InFlight() > 0 && time.Now().Before(deadline) {
				time.Sleep(time.Millisecond)
			}

			res, err := env.engine.GetTopicFeed(context.Background(), "Climate_change", 5, false)
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if !res.ServedFromCache {
				t.Error("Expected the abandoned computation to have filled the cache")
			}
			if env.fetcher.Calls() != 1 {
				t.Errorf("Expected 1 upstream call, got %d", env.fetcher.Calls())
			}
		})
	}
}

func TestGetTopicFeed_ForceRefreshWithoutBudgetKeepsFreshFlag(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	env.engine.GetTopicFeed(ctx, "Climate_change", 5, false)
	env.limiter.SetAllow(false)

	res, err := env.engine.GetTopicFeed(ctx, "Climate_change", 5, true)
	if err != nil {
		t.Fatalf("Expected cached result, got error: %v", err)
	}
	if !res.ServedFromCache {
		t.Error("Expected result to be served from cache")
	}
	if res.Stale {
		t.Error("Fresh entry should not be flagged stale")
	}
	if env.engine.Stats().StaleServes != 0 {
		t.Errorf("Expected no stale serves, got %d", env.engine.Stats().StaleServes)
	}
	if _, _, fallbacks := env.limiter.Counts(); fallbacks != 1 {
		t.Errorf("Expected 1 rejection fallback, got %d", fallbacks)
	}
}

func TestWarmTopicFeed_NotCountedAsAccess(t *testing.T) {
	var accesses int
	env := newTestEnv(t, func(cfg *Config, deps *Deps) {
		deps.OnAccess = func(topicKey string, maxResults int) {
			accesses++
		}
	})
	ctx := context.Background()

	env.engine.GetTopicFeed(ctx, "Climate_change", 5, false)
	for i := 0; i < 3; i++ {
		if _, err := env.engine.WarmTopicFeed(ctx, "Climate_change", 5); err != nil {
			t.Fatalf("Unexpected warm error: %v", err)
		}
	}
	env.engine.WarmTopicFeed(ctx, "Solar_power", 5)

	if accesses != 1 {
		t.Errorf("Expected 1 recorded access, got %d", accesses)
	}
	s := env.engine.Stats()
	if s.CacheHits != 0 || s.CacheMisses != 1 {
		t.Errorf("Expected 0 hits and 1 miss, got %d/%d", s.CacheHits, s.CacheMisses)
	}

	res, err := env.engine.GetTopicFeed(ctx, "Solar_power", 5, false)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !res.ServedFromCache {
		t.Error("Expected warmed topic to be served from cache")
	}
}
