package ranking

import (
	"time"

	"github.com/wikifeed/feedengine/pkg/models"
)

// TrendingPolicy decides which ranked posts get the trending flag.
//
// By default a post is trending when its 0-indexed rank is below TopK and it
// is at most Window old. When PreviewTopK or PreviewRanks is set, that
// override alone decides: the first PreviewTopK ranks and every listed
// 1-based rank are trending, regardless of age.
type TrendingPolicy struct {
	TopK         int
	Window       time.Duration
	PreviewTopK  int
	PreviewRanks []int
}

// DefaultTrendingPolicy returns the top-3-within-a-week policy.
func DefaultTrendingPolicy() TrendingPolicy {
	return TrendingPolicy{
		TopK:   3,
		Window: 168 * time.Hour,
	}
}

// HasOverride reports whether a preview override is configured.
func (p TrendingPolicy) HasOverride() bool {
	return p.PreviewTopK > 0 || len(p.PreviewRanks) > 0
}

// IsTrending applies the policy to the post at 0-indexed rank.
func (p TrendingPolicy) IsTrending(rank int, createdAt, now time.Time) bool {
	if p.HasOverride() {
		if rank < p.PreviewTopK {
			return true
		}
		for _, r := range p.PreviewRanks {
			if r == rank+1 {
				return true
			}
		}
		return false
	}
	if rank >= p.TopK || createdAt.IsZero() {
		return false
	}
	return now.Sub(createdAt) <= p.Window
}

// Mark sets Trending on every post in place according to the policy.
func (p TrendingPolicy) Mark(posts []models.RankedPost, now time.Time) {
	for i := range posts {
		posts[i].Trending = p.IsTrending(i, posts[i].Post.CreatedAt, now)
	}
}
