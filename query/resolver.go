// Package query turns free text into an upstream search expression plus the
// keyword and topic hints shown to users.
package query

import (
	"context"
	"errors"
	"strings"

	"github.com/wikifeed/feedengine/pkg/middleware"
	"github.com/wikifeed/feedengine/pkg/models"
	"github.com/wikifeed/feedengine/pkg/utils"
)

// HeuristicKeywords is how many keywords the heuristic keeps.
const HeuristicKeywords = 6

// fallbackParts bounds the whitespace split used when no token survives
// filtering.
const fallbackParts = 8

// Optimizer produces a retrieval expression from free text. topicContext is
// the article the text came from, or empty.
type Optimizer interface {
	Optimize(ctx context.Context, text, topicContext string) (models.OptimizedQuery, error)
}

// Resolution is a resolved query and where the hints came from.
type Resolution struct {
	Hints  models.QueryHints
	Source string
}

// Resolver resolves queries through an Optimizer with a local heuristic as
// the fallback. The zero value uses the heuristic only.
type Resolver struct {
	optimizer Optimizer
}

// NewResolver creates a resolver. optimizer may be nil.
func NewResolver(optimizer Optimizer) *Resolver {
	return &Resolver{optimizer: optimizer}
}

// Resolve asks the optimizer first and falls back to the heuristic when the
// optimizer is missing, fails, or returns an empty expression. The topic
// context, when present, becomes the first keyword.
func (r *Resolver) Resolve(ctx context.Context, text, topicContext string) (models.Outcome[Resolution], error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return models.Outcome[Resolution]{}, models.Errorf(models.KindInvalidQuery, "query.resolve", "empty query")
	}

	if r.optimizer == nil {
		return models.Fallback(HeuristicResolution(text, topicContext),
			models.Errorf(models.KindOptimizerUnavailable, "query.resolve", "no optimizer configured")), nil
	}

	opt, err := r.optimizer.Optimize(ctx, text, topicContext)
	if err == nil && strings.TrimSpace(opt.Expression) == "" {
		err = models.Errorf(models.KindOptimizerUnavailable, "query.resolve", "optimizer returned an empty expression")
	}
	if err != nil {
		if !errors.Is(err, models.ErrOptimizerUnavailable) {
			err = models.NewError(models.KindOptimizerUnavailable, "query.resolve", err)
		}
		middleware.Logger(ctx).Warn("query optimizer failed, using heuristic", "err", err)
		return models.Fallback(HeuristicResolution(text, topicContext), err), nil
	}

	return models.Ok(Resolution{
		Hints: models.QueryHints{
			ResolvedQuery: strings.TrimSpace(opt.Expression),
			Keywords:      withTopicFirst(topicContext, opt.Keywords),
			Topics:        utils.DedupeFold(opt.Topics),
		},
		Source: models.SourceOptimizer,
	}), nil
}

// HeuristicResolution resolves text with Heuristic and puts the topic
// context first among the keywords.
func HeuristicResolution(text, topicContext string) Resolution {
	h := Heuristic(text)
	h.Keywords = withTopicFirst(topicContext, h.Keywords)
	return Resolution{Hints: h, Source: models.SourceHeuristic}
}

// Heuristic resolves text without any external service. It never fails for
// non-empty text:
//   - text that already is an OR expression is used verbatim
//   - otherwise the top keywords by frequency form an OR expression
//   - with no surviving keyword, whitespace parts of 3+ characters are used
//   - failing that, the trimmed text is the only keyword
func Heuristic(text string) models.QueryHints {
	text = strings.TrimSpace(text)
	if utils.IsPrebuiltORQuery(text) {
		return models.QueryHints{ResolvedQuery: text, Keywords: prebuiltTerms(text)}
	}

	keywords := utils.RankKeywords(utils.Tokenize(text), HeuristicKeywords)
	if len(keywords) == 0 {
		for _, part := range strings.Fields(text) {
			if len([]rune(part)) >= utils.MinTokenLength {
				keywords = append(keywords, part)
			}
			if len(keywords) == fallbackParts {
				break
			}
		}
	}
	if len(keywords) == 0 {
		keywords = []string{text}
	}
	return models.QueryHints{
		ResolvedQuery: utils.BuildORExpression(keywords),
		Keywords:      keywords,
	}
}

// Explicit builds hints from caller-supplied keywords, or from topics when
// no keyword is given, bypassing both optimizer and heuristic.
func Explicit(keywords, topics []string) (Resolution, error) {
	kw := utils.DedupeFold(keywords)
	tp := utils.DedupeFold(topics)
	terms := kw
	if len(terms) == 0 {
		terms = tp
	}
	expr := utils.BuildORExpression(terms)
	if expr == "" {
		return Resolution{}, models.Errorf(models.KindInvalidQuery, "query.explicit", "no keywords or topics given")
	}
	return Resolution{
		Hints:  models.QueryHints{ResolvedQuery: expr, Keywords: kw, Topics: tp},
		Source: models.SourceExplicit,
	}, nil
}

func withTopicFirst(topicContext string, keywords []string) []string {
	topicContext = strings.TrimSpace(topicContext)
	if topicContext == "" {
		return utils.DedupeFold(keywords)
	}
	return utils.DedupeFold(append([]string{topicContext}, keywords...))
}

func prebuiltTerms(expr string) []string {
	inner := strings.TrimSuffix(strings.TrimPrefix(strings.TrimSpace(expr), "("), ")")
	parts := strings.Split(inner, " OR ")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.Trim(strings.TrimSpace(p), `"()`)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
