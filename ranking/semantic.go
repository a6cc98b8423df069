package ranking

import (
	"context"

	"github.com/wikifeed/feedengine/pkg/models"
)

// DefaultMaxCandidates bounds how many posts are sent to the reranker.
const DefaultMaxCandidates = 20

// RerankRequest is what a semantic reranker sees. Priority, highest first:
// topical match with Text, coverage of Keywords, informational value, and
// only then engagement or verification.
type RerankRequest struct {
	Text       string
	Keywords   []string
	Candidates []models.SocialPost
}

// Reranker returns the IDs of req.Candidates in its preferred order.
type Reranker interface {
	Rerank(ctx context.Context, req RerankRequest) ([]string, error)
}

// SemanticRanker orders search-mode candidates through a Reranker, falling
// back to the upstream relevancy order when the reranker is missing, fails,
// or returns anything other than a permutation of the candidates it was sent.
type SemanticRanker struct {
	reranker      Reranker
	maxCandidates int
	verifiedBoost float64
}

// NewSemanticRanker creates a ranker. reranker may be nil.
func NewSemanticRanker(reranker Reranker, maxCandidates int, verifiedBoost float64) *SemanticRanker {
	if maxCandidates <= 0 {
		maxCandidates = DefaultMaxCandidates
	}
	return &SemanticRanker{reranker: reranker, maxCandidates: maxCandidates, verifiedBoost: verifiedBoost}
}

// Rank returns the candidates reordered by the reranker, or in upstream
// order tagged as a fallback. Candidates beyond the reranker window keep
// their upstream order after the reranked head.
func (r *SemanticRanker) Rank(ctx context.Context, candidates []models.SocialPost, text string, keywords []string) models.Outcome[[]models.RankedPost] {
	if len(candidates) == 0 {
		return models.Ok([]models.RankedPost{})
	}
	if r.reranker == nil {
		return models.Fallback(InUpstreamOrder(candidates, r.verifiedBoost),
			models.Errorf(models.KindRerankerInvalidOutput, "rank.semantic", "no reranker configured"))
	}

	head := candidates
	if len(head) > r.maxCandidates {
		head = candidates[:r.maxCandidates]
	}

	ids, err := r.reranker.Rerank(ctx, RerankRequest{Text: text, Keywords: keywords, Candidates: head})
	if err != nil {
		return models.Fallback(InUpstreamOrder(candidates, r.verifiedBoost), err)
	}

	order, err := validatePermutation(head, ids)
	if err != nil {
		return models.Fallback(InUpstreamOrder(candidates, r.verifiedBoost), err)
	}

	out := make([]models.RankedPost, 0, len(candidates))
	for _, i := range order {
		out = append(out, models.RankedPost{Post: head[i], Score: Score(head[i], r.verifiedBoost)})
	}
	for _, p := range candidates[len(head):] {
		out = append(out, models.RankedPost{Post: p, Score: Score(p, r.verifiedBoost)})
	}
	return models.Ok(out)
}

// validatePermutation maps ids to indexes of sent and rejects unknown,
// duplicate or missing IDs.
func validatePermutation(sent []models.SocialPost, ids []string) ([]int, error) {
	const op = "rank.semantic"
	if len(ids) != len(sent) {
		return nil, models.Errorf(models.KindRerankerInvalidOutput, op, "got %d ids for %d candidates", len(ids), len(sent))
	}
	index := make(map[string]int, len(sent))
	for i, p := range sent {
		index[p.ID] = i
	}
	seen := make(map[string]struct{}, len(ids))
	order := make([]int, 0, len(ids))
	for _, id := range ids {
		i, ok := index[id]
		if !ok {
			return nil, models.Errorf(models.KindRerankerInvalidOutput, op, "unknown id %q", id)
		}
		if _, dup := seen[id]; dup {
			return nil, models.Errorf(models.KindRerankerInvalidOutput, op, "duplicate id %q", id)
		}
		seen[id] = struct{}{}
		order = append(order, i)
	}
	return order, nil
}
