// Package ranking orders candidate posts: deterministically by engagement
// for topic feeds, and through an external semantic reranker for related-post
// searches.
package ranking

import (
	"math"
	"sort"

	"github.com/wikifeed/feedengine/pkg/models"
)

const (
	// MinFollowerNorm floors the audience size used for normalization so
	// that tiny accounts are not over-rewarded.
	MinFollowerNorm = 50.0
	// FollowerExponent dampens large audiences.
	FollowerExponent = 0.7
	// DefaultVerifiedBoost multiplies the score of verified authors.
	DefaultVerifiedBoost = 1.1
)

// RawEngagement weighs reposts and quotes above likes, and replies below.
func RawEngagement(m models.PostMetrics) float64 {
	return float64(m.Likes) + 2*float64(m.Retweets) + 1.5*float64(m.Quotes) + 0.5*float64(m.Replies)
}

// Score returns the engagement score of p:
//
//	(likes + 2·retweets + 1.5·quotes + 0.5·replies) / max(50, followers)^0.7
//
// multiplied by verifiedBoost (floored at 1.0) when the author is verified.
func Score(p models.SocialPost, verifiedBoost float64) float64 {
	norm := math.Pow(math.Max(MinFollowerNorm, float64(p.FollowerCount)), FollowerExponent)
	score := RawEngagement(p.Metrics) / norm
	if p.AuthorVerified {
		score *= math.Max(1.0, verifiedBoost)
	}
	return score
}

// RankByEngagement scores every candidate and sorts by score descending,
// then newer CreatedAt first, then ID ascending. The result depends only on
// the candidate set, not on its order.
func RankByEngagement(candidates []models.SocialPost, verifiedBoost float64) []models.RankedPost {
	ranked := make([]models.RankedPost, len(candidates))
	for i, p := range candidates {
		ranked[i] = models.RankedPost{Post: p, Score: Score(p, verifiedBoost)}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.Post.CreatedAt.Equal(b.Post.CreatedAt) {
			return a.Post.CreatedAt.After(b.Post.CreatedAt)
		}
		return a.Post.ID < b.Post.ID
	})
	return ranked
}

// InUpstreamOrder wraps candidates without reordering them.
func InUpstreamOrder(candidates []models.SocialPost, verifiedBoost float64) []models.RankedPost {
	ranked := make([]models.RankedPost, len(candidates))
	for i, p := range candidates {
		ranked[i] = models.RankedPost{Post: p, Score: Score(p, verifiedBoost)}
	}
	return ranked
}

// DedupeByID drops repeated post IDs, keeping the first occurrence.
func DedupeByID(posts []models.SocialPost) []models.SocialPost {
	seen := make(map[string]struct{}, len(posts))
	out := posts[:0:0]
	for _, p := range posts {
		if _, ok := seen[p.ID]; ok {
			continue
		}
		seen[p.ID] = struct{}{}
		out = append(out, p)
	}
	return out
}
