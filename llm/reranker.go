package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/wikifeed/feedengine/pkg/models"
	"github.com/wikifeed/feedengine/ranking"
)

const (
	maxRerankTextRunes   = 400
	maxRerankPostRunes   = 200
	maxRerankKeywords    = 10
	rerankMaxTokens      = 256
	rerankerSystemPrompt = `You are an expert at ranking tweets by relevance. Given a user's highlighted text
and search keywords, rank the tweets from MOST to LEAST relevant.

Relevance criteria, in order of importance:
1. SEMANTIC MATCH: does the tweet discuss the same topic or concept as the highlighted text?
2. KEYWORD COVERAGE: does the tweet mention the search keywords or related terms?
3. INFORMATION VALUE: does the tweet provide useful insights, news or discussion?
4. QUALITY SIGNALS: verified authors and engagement, as tiebreakers only

A tweet discussing the same concept without exact keyword matches is MORE relevant than
a tweet with keywords but off-topic content.`
)

// Reranker asks a Provider to order candidate posts by relevance.
type Reranker struct {
	provider Provider
}

// NewReranker creates a reranker on top of provider.
func NewReranker(provider Provider) *Reranker {
	return &Reranker{provider: provider}
}

// Rerank implements ranking.Reranker. The provider answers with 1-based
// candidate numbers, which are mapped back to post IDs. Numbers outside the
// candidate range make the whole answer invalid.
func (r *Reranker) Rerank(ctx context.Context, req ranking.RerankRequest) ([]string, error) {
	const op = "llm.rerank"

	keywords := "N/A"
	if len(req.Keywords) > 0 {
		kw := req.Keywords
		if len(kw) > maxRerankKeywords {
			kw = kw[:maxRerankKeywords]
		}
		keywords = strings.Join(kw, ", ")
	}

	var block strings.Builder
	for i, p := range req.Candidates {
		verified := ""
		if p.AuthorVerified {
			verified = " [verified]"
		}
		fmt.Fprintf(&block, "%d. @%s%s: %s (likes %d, reposts %d)\n",
			i+1, p.AuthorHandle, verified, truncate(p.Text, maxRerankPostRunes), p.Metrics.Likes, p.Metrics.Retweets)
	}

	user := fmt.Sprintf("HIGHLIGHTED TEXT:\n%s\n\nSEARCH KEYWORDS: %s\n\nTWEETS TO RANK:\n%s\n"+
		"Return ONLY a JSON array containing every tweet number exactly once, most relevant first.\n"+
		"Example: [3, 1, 2]",
		truncate(req.Text, maxRerankTextRunes), keywords, block.String())

	content, err := r.provider.Complete(ctx, Prompt{
		System:      rerankerSystemPrompt,
		User:        user,
		Temperature: 0.1,
		MaxTokens:   rerankMaxTokens,
	})
	if err != nil {
		return nil, err
	}

	var numbers []int
	if err := extractJSON(content, '[', ']', &numbers); err != nil {
		return nil, models.NewError(models.KindRerankerInvalidOutput, op, err)
	}

	ids := make([]string, 0, len(numbers))
	for _, n := range numbers {
		if n < 1 || n > len(req.Candidates) {
			return nil, models.Errorf(models.KindRerankerInvalidOutput, op, "candidate number %d out of range", n)
		}
		ids = append(ids, req.Candidates[n-1].ID)
	}
	return ids, nil
}
