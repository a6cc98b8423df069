package retrieval

import (
	"context"
	"fmt"
	"strings"

	"github.com/wikifeed/feedengine/pkg/middleware"
	"github.com/wikifeed/feedengine/pkg/models"
	"github.com/wikifeed/feedengine/query"
)

// SearchRequest asks for posts related to a free-text passage.
type SearchRequest struct {
	// Text is the passage, e.g. a highlighted sentence.
	Text string
	// TopicContext is the article the passage belongs to, if any.
	TopicContext string
	MaxResults   int
	// Optimize resolves the passage through the query optimizer; otherwise
	// the local heuristic is used.
	Optimize bool
	// NoCache skips the cached-result read. The result is still cached.
	NoCache bool
	// Keywords and Topics, when given, are used verbatim instead of
	// resolving Text.
	Keywords []string
	Topics   []string
}

func (r SearchRequest) explicit() bool {
	return len(r.Keywords) > 0 || len(r.Topics) > 0
}

// SearchRelated returns posts related to a passage, ranked by the semantic
// reranker or, failing that, in upstream relevancy order. The resolved
// hints are cached with the result.
func (e *Engine) SearchRelated(ctx context.Context, req SearchRequest) (*models.RankedResult, error) {
	text := strings.TrimSpace(req.Text)
	maxResults := e.config.clampMaxResults(req.MaxResults)

	var explicit *query.Resolution
	if req.explicit() {
		res, err := query.Explicit(req.Keywords, req.Topics)
		if err != nil {
			return nil, err
		}
		explicit = &res
	} else if text == "" {
		return nil, models.Errorf(models.KindInvalidQuery, "retrieval.search", "empty query")
	}

	key := models.NewCacheKey(models.ModeSearch, searchKeyQuery(text, req.TopicContext, req.Optimize, explicit), maxResults).String()
	if !req.NoCache {
		if v, ok := e.cached(key); ok {
			e.metrics.CacheHits.Add(1)
			middleware.Logger(ctx).Debug("search cache hit", "key", key)
			out := v.Clone()
			out.ServedFromCache = true
			return out, nil
		}
	}
	e.metrics.CacheMisses.Add(1)

	return e.load(ctx, key, req.NoCache, func(ctx context.Context) (*models.RankedResult, error) {
		resolution, err := e.resolve(ctx, text, req.TopicContext, req.Optimize, explicit)
		if err != nil {
			return nil, err
		}
		hints := resolution.Hints

		posts, err := e.fetch(ctx, hints.ResolvedQuery, maxResults)
		if err != nil {
			return nil, err
		}

		rankText := text
		if rankText == "" {
			rankText = hints.ResolvedQuery
		}
		rankCtx, cancel := e.llmContext(ctx)
		outcome := e.semantic.Rank(rankCtx, posts, rankText, hints.Keywords)
		cancel()
		rankingSource := models.SourceSemantic
		if outcome.IsFallback() {
			e.metrics.RerankFallbacks.Add(1)
			rankingSource = models.SourceUpstream
			middleware.Logger(ctx).Warn("semantic rerank fell back to upstream order", "reason", outcome.Reason)
		}

		result := &models.RankedResult{
			Posts:         outcome.Value,
			Hints:         &hints,
			Mode:          models.ModeSearch,
			HintsSource:   resolution.Source,
			RankingSource: rankingSource,
			ComputedAt:    e.now(),
		}
		result.Truncate(maxResults)
		return result, nil
	})
}

func (e *Engine) resolve(ctx context.Context, text, topicContext string, optimize bool, explicit *query.Resolution) (query.Resolution, error) {
	if explicit != nil {
		return *explicit, nil
	}
	if !optimize {
		return query.HeuristicResolution(text, topicContext), nil
	}
	ctx, cancel := e.llmContext(ctx)
	defer cancel()
	outcome, err := e.resolver.Resolve(ctx, text, topicContext)
	if err != nil {
		return query.Resolution{}, err
	}
	if outcome.IsFallback() {
		e.metrics.OptimizerFallbacks.Add(1)
	}
	return outcome.Value, nil
}

// searchKeyQuery derives the cache key query. Explicit hints are keyed by
// their expression; otherwise by the passage, its context and the mode.
func searchKeyQuery(text, topicContext string, optimize bool, explicit *query.Resolution) string {
	if explicit != nil {
		return "expr:" + explicit.Hints.ResolvedQuery
	}
	return fmt.Sprintf("text:%s ctx:%s opt:%t", text, strings.TrimSpace(topicContext), optimize)
}
