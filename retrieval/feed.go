package retrieval

import (
	"context"

	"github.com/wikifeed/feedengine/pkg/middleware"
	"github.com/wikifeed/feedengine/pkg/models"
	"github.com/wikifeed/feedengine/ranking"
)

// GetTopicFeed returns the top maxResults posts about a topic ranked by
// engagement, with trending flags. forceRefresh bypasses the fresh-cache
// shortcut but still goes through the coalescer and the rate budget.
func (e *Engine) GetTopicFeed(ctx context.Context, topicKey string, maxResults int, forceRefresh bool) (*models.RankedResult, error) {
	return e.topicFeed(ctx, topicKey, maxResults, forceRefresh, true)
}

// WarmTopicFeed fills the cache for a topic on behalf of the warmer. It
// shares the reader path's key and flight but is not recorded as a topic
// access and does not count toward cache hits or misses.
func (e *Engine) WarmTopicFeed(ctx context.Context, topicKey string, maxResults int) (*models.RankedResult, error) {
	return e.topicFeed(ctx, topicKey, maxResults, false, false)
}

func (e *Engine) topicFeed(ctx context.Context, topicKey string, maxResults int, forceRefresh, reader bool) (*models.RankedResult, error) {
	maxResults = e.config.clampMaxResults(maxResults)

	phrase, err := e.resolveTopic(ctx, topicKey)
	if err != nil {
		return nil, err
	}
	if reader && e.deps.OnAccess != nil {
		e.deps.OnAccess(topicKey, maxResults)
	}

	key := models.NewCacheKey(models.ModeTopic, phrase, maxResults).String()
	if !forceRefresh {
		if v, ok := e.cached(key); ok {
			if reader {
				e.metrics.CacheHits.Add(1)
			}
			middleware.Logger(ctx).Debug("topic feed cache hit", "key", key)
			out := v.Clone()
			out.ServedFromCache = true
			return out, nil
		}
	}
	if reader {
		e.metrics.CacheMisses.Add(1)
	}

	return e.load(ctx, key, forceRefresh, func(ctx context.Context) (*models.RankedResult, error) {
		expression := quotePhrase(phrase)
		posts, err := e.fetch(ctx, expression, maxResults)
		if err != nil {
			return nil, err
		}

		ranked := ranking.RankByEngagement(posts, e.config.VerifiedBoost)
		result := &models.RankedResult{
			Posts: ranked,
			Hints: &models.QueryHints{
				ResolvedQuery: expression,
				Keywords:      []string{phrase},
			},
			Mode:          models.ModeTopic,
			HintsSource:   models.SourceTopic,
			RankingSource: models.SourceEngagement,
			ComputedAt:    e.now(),
		}
		result.Truncate(maxResults)
		e.config.Trending.Mark(result.Posts, result.ComputedAt)
		return result, nil
	})
}

// InvalidateTopic marks every cached feed and summary of a topic stale,
// across all maxResults variants. Last good values are kept for degraded
// serving. Returns the number of feed entries invalidated.
func (e *Engine) InvalidateTopic(ctx context.Context, topicKey string) (int, error) {
	phrase, err := e.resolveTopic(ctx, topicKey)
	if err != nil {
		return 0, err
	}
	prefix := models.KeyPrefix(models.ModeTopic, phrase)
	n := e.results.InvalidatePrefix(prefix)
	s := e.summaries.InvalidatePrefix(prefix)
	middleware.Logger(ctx).Info("topic invalidated", "topic", topicKey, "feeds", n, "summaries", s)
	return n, nil
}

func (e *Engine) resolveTopic(ctx context.Context, topicKey string) (string, error) {
	phrase, err := e.deps.Topics.ResolveTopic(ctx, topicKey)
	if err != nil {
		if models.KindOf(err) == models.KindUnknown {
			err = models.NewError(models.KindNotFound, "topic.resolve", err)
		}
		return "", err
	}
	if phrase == "" {
		return "", models.Errorf(models.KindNotFound, "topic.resolve", "topic %q has no phrase", topicKey)
	}
	return phrase, nil
}
