package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/wikifeed/feedengine/pkg/models"
)

const (
	maxOptimizerKeywords = 12
	maxOptimizerTopics   = 5
	maxPassageRunes      = 500
)

const optimizerSystemPrompt = `You are an expert at crafting HIGH-RECALL queries for X (Twitter) search.
Given a user-selected passage, extract keywords in two tiers:
1. CRITICAL: core entities, names and technical terms (most distinctive)
2. SUPPORTING: related concepts, synonyms and abbreviations for broader recall

Rules:
- The query MUST use OR logic: (term1 OR term2 OR term3)
- Include synonyms and abbreviations
- Prefer named entities, product names and technical jargon
- Avoid generic words like "new", "latest", "best", "important"
- Use 5-10 terms and keep the query under 128 characters`

// QueryOptimizer asks a Provider to turn a passage into an OR-style search
// expression with keyword and topic hints.
type QueryOptimizer struct {
	provider Provider
}

// NewQueryOptimizer creates an optimizer on top of provider.
func NewQueryOptimizer(provider Provider) *QueryOptimizer {
	return &QueryOptimizer{provider: provider}
}

type optimizerReply struct {
	Query    string   `json:"query"`
	Keywords []string `json:"keywords"`
	Topics   []string `json:"topics"`
}

// Optimize implements query.Optimizer.
func (o *QueryOptimizer) Optimize(ctx context.Context, text, topicContext string) (models.OptimizedQuery, error) {
	const op = "llm.optimize"

	var user strings.Builder
	if topicContext != "" {
		fmt.Fprintf(&user, "Article topic: %s\n\n", topicContext)
	}
	fmt.Fprintf(&user, "Selected passage:\n%s\n\n", truncate(text, maxPassageRunes))
	user.WriteString("Return ONLY compact JSON with keys:\n")
	user.WriteString("- query: string using OR logic like '(Grok OR API OR xAI OR chatbot)'\n")
	user.WriteString("- keywords: array of 6-12 search terms ordered by importance\n")
	user.WriteString("- topics: array of 2-4 broader topic labels")

	content, err := o.provider.Complete(ctx, Prompt{
		System:      optimizerSystemPrompt,
		User:        user.String(),
		Temperature: 0.2,
		MaxTokens:   256,
	})
	if err != nil {
		return models.OptimizedQuery{}, models.NewError(models.KindOptimizerUnavailable, op, err)
	}

	var reply optimizerReply
	if err := extractJSON(content, '{', '}', &reply); err != nil {
		return models.OptimizedQuery{}, models.NewError(models.KindOptimizerUnavailable, op, err)
	}
	expr := strings.TrimSpace(reply.Query)
	if expr == "" {
		return models.OptimizedQuery{}, models.Errorf(models.KindOptimizerUnavailable, op, "empty query in reply")
	}

	return models.OptimizedQuery{
		Expression: expr,
		Keywords:   cleanList(reply.Keywords, maxOptimizerKeywords),
		Topics:     cleanList(reply.Topics, maxOptimizerTopics),
	}, nil
}

func cleanList(in []string, limit int) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
		if len(out) == limit {
			break
		}
	}
	return out
}
