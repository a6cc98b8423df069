package retrieval

import (
	"context"

	"github.com/wikifeed/feedengine/pkg/middleware"
	"github.com/wikifeed/feedengine/pkg/models"
)

// GetTopicSummary returns a few bullets summarizing a topic's current top
// posts. Summaries are cached separately from feeds, with their own TTL,
// and computed at most once per key at a time.
func (e *Engine) GetTopicSummary(ctx context.Context, topicKey string, maxResults int) (*models.TopicSummary, error) {
	if e.deps.Summarizer == nil {
		return nil, models.Errorf(models.KindSummaryUnavailable, "retrieval.summary", "no summarizer configured")
	}
	maxResults = e.config.clampMaxResults(maxResults)

	phrase, err := e.resolveTopic(ctx, topicKey)
	if err != nil {
		return nil, err
	}
	key := models.NewCacheKey(models.ModeTopic, phrase, maxResults).String()

	if v, found, fresh := e.summaries.Get(key); found && fresh {
		v.Bullets = append([]string(nil), v.Bullets...)
		v.Cached = true
		return &v, nil
	}

	res, _, err := e.summaryFl.Do(ctx, key, func(ctx context.Context) (summaryResult, error) {
		if v, found, fresh := e.summaries.Get(key); found && fresh {
			return summaryResult{summary: v, fromCache: true}, nil
		}

		summary, err := e.summarize(ctx, topicKey, phrase, maxResults)
		if err != nil {
			if v, ok := e.summaries.GetStale(key); ok {
				middleware.Logger(ctx).Warn("summary failed, serving stale", "topic", topicKey, "err", err)
				return summaryResult{summary: v, fromCache: true}, nil
			}
			return summaryResult{}, err
		}
		e.summaries.Put(key, summary, e.config.SummaryTTL)
		return summaryResult{summary: summary}, nil
	})
	if err != nil {
		return nil, err
	}

	out := res.summary
	out.Bullets = append([]string(nil), res.summary.Bullets...)
	out.Cached = res.fromCache
	return &out, nil
}

func (e *Engine) summarize(ctx context.Context, topicKey, phrase string, maxResults int) (models.TopicSummary, error) {
	feed, err := e.GetTopicFeed(ctx, topicKey, maxResults, false)
	if err != nil {
		return models.TopicSummary{}, models.NewError(models.KindSummaryUnavailable, "retrieval.summary", err)
	}
	posts := make([]models.SocialPost, len(feed.Posts))
	for i, p := range feed.Posts {
		posts[i] = p.Post
	}

	sumCtx, cancel := e.llmContext(ctx)
	defer cancel()
	bullets, err := e.deps.Summarizer.Summarize(sumCtx, phrase, posts)
	if err != nil {
		return models.TopicSummary{}, err
	}
	return models.TopicSummary{
		Topic:      phrase,
		Bullets:    bullets,
		Model:      e.deps.Summarizer.Model(),
		ComputedAt: e.now(),
	}, nil
}
