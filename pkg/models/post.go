// Package models provides the canonical data types shared by the retrieval,
// ranking and query packages.
//
// Design Notes:
//   - SocialPost is a value type and is never mutated after construction;
//     ranking wraps posts in RankedPost instead of annotating them in place
//   - RankedResult is the unit stored in the cache; callers receive clones so
//     that per-request flags never leak into the cached value
package models

import (
	"fmt"
	"time"
)

// PostMetrics holds the public engagement counters reported by the upstream.
type PostMetrics struct {
	Likes    int64 `json:"likes"`
	Retweets int64 `json:"retweets"`
	Replies  int64 `json:"replies"`
	Quotes   int64 `json:"quotes"`
}

// SocialPost is a single post returned by the upstream search API.
type SocialPost struct {
	ID                string      `json:"id"`
	Text              string      `json:"text"`
	AuthorHandle      string      `json:"author_handle"`
	AuthorDisplayName string      `json:"author_display_name"`
	AuthorAvatarURL   string      `json:"author_avatar_url,omitempty"`
	AuthorVerified    bool        `json:"author_verified"`
	CreatedAt         time.Time   `json:"created_at"`
	Metrics           PostMetrics `json:"metrics"`
	FollowerCount     int64       `json:"follower_count"`
	PermalinkURL      string      `json:"permalink_url"`
}

// Permalink builds the canonical post URL. Posts without a known author
// handle use the handle-less web route.
func Permalink(handle, id string) string {
	if handle == "" {
		return fmt.Sprintf("https://x.com/i/web/status/%s", id)
	}
	return fmt.Sprintf("https://x.com/%s/status/%s", handle, id)
}

// RankedPost is a post together with the score and trending flag assigned
// by the ranker.
type RankedPost struct {
	Post     SocialPost `json:"post"`
	Score    float64    `json:"score"`
	Trending bool       `json:"trending"`
}

// QueryHints describes how a free-text or topic query was resolved into an
// upstream search expression.
type QueryHints struct {
	ResolvedQuery string   `json:"resolved_query"`
	Keywords      []string `json:"keywords"`
	Topics        []string `json:"topics"`
}

// Clone returns a deep copy of the hints.
func (h *QueryHints) Clone() *QueryHints {
	if h == nil {
		return nil
	}
	return &QueryHints{
		ResolvedQuery: h.ResolvedQuery,
		Keywords:      append([]string(nil), h.Keywords...),
		Topics:        append([]string(nil), h.Topics...),
	}
}

// OptimizedQuery is the structured output of a query optimizer.
type OptimizedQuery struct {
	Expression string   `json:"expression"`
	Keywords   []string `json:"keywords"`
	Topics     []string `json:"topics"`
}

// Source values recorded on a RankedResult.
const (
	SourceOptimizer = "optimizer"
	SourceHeuristic = "heuristic"
	SourceExplicit  = "explicit"
	SourceTopic     = "topic"

	SourceEngagement = "engagement"
	SourceSemantic   = "semantic"
	SourceUpstream   = "upstream"
)

// RankedResult is the ordered output of one retrieval, as cached and as
// returned to callers.
type RankedResult struct {
	Posts           []RankedPost `json:"posts"`
	Hints           *QueryHints  `json:"hints,omitempty"`
	Mode            Mode         `json:"mode"`
	HintsSource     string       `json:"hints_source,omitempty"`
	RankingSource   string       `json:"ranking_source"`
	ServedFromCache bool         `json:"served_from_cache"`
	Stale           bool         `json:"stale"`
	ComputedAt      time.Time    `json:"computed_at"`
}

// Clone returns a copy safe to flag and hand to a caller. Posts are values,
// so copying the slice is enough.
func (r *RankedResult) Clone() *RankedResult {
	if r == nil {
		return nil
	}
	out := *r
	out.Posts = append([]RankedPost(nil), r.Posts...)
	out.Hints = r.Hints.Clone()
	return &out
}

// Truncate limits the result to at most n posts.
func (r *RankedResult) Truncate(n int) {
	if n >= 0 && len(r.Posts) > n {
		r.Posts = r.Posts[:n]
	}
}

// TopicSummary is a short bullet summary of a topic's current feed.
type TopicSummary struct {
	Topic      string    `json:"topic"`
	Bullets    []string  `json:"bullets"`
	Model      string    `json:"model,omitempty"`
	Cached     bool      `json:"cached"`
	ComputedAt time.Time `json:"computed_at"`
}
