package upstream

import (
	"fmt"
	"time"

	"github.com/wikifeed/feedengine/pkg/models"
)

type searchResponse struct {
	Data     []apiTweet `json:"data"`
	Includes struct {
		Users []apiUser `json:"users"`
	} `json:"includes"`
	Errors []apiError `json:"errors"`
}

type apiTweet struct {
	ID            string `json:"id"`
	Text          string `json:"text"`
	AuthorID      string `json:"author_id"`
	CreatedAt     string `json:"created_at"`
	Lang          string `json:"lang"`
	PublicMetrics struct {
		RetweetCount int64 `json:"retweet_count"`
		ReplyCount   int64 `json:"reply_count"`
		LikeCount    int64 `json:"like_count"`
		QuoteCount   int64 `json:"quote_count"`
	} `json:"public_metrics"`
}

type apiUser struct {
	ID              string `json:"id"`
	Username        string `json:"username"`
	Name            string `json:"name"`
	ProfileImageURL string `json:"profile_image_url"`
	Verified        bool   `json:"verified"`
	VerifiedType    string `json:"verified_type"`
	PublicMetrics   struct {
		FollowersCount int64 `json:"followers_count"`
	} `json:"public_metrics"`
}

type apiError struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

func (e apiError) String() string {
	return fmt.Sprintf("%s: %s", e.Title, e.Detail)
}

// posts joins tweets with their expanded authors, preserving upstream order.
func (r *searchResponse) posts() []models.SocialPost {
	users := make(map[string]apiUser, len(r.Includes.Users))
	for _, u := range r.Includes.Users {
		users[u.ID] = u
	}

	out := make([]models.SocialPost, 0, len(r.Data))
	for _, t := range r.Data {
		if t.ID == "" {
			continue
		}
		u := users[t.AuthorID]
		created, _ := time.Parse(time.RFC3339, t.CreatedAt)
		out = append(out, models.SocialPost{
			ID:                t.ID,
			Text:              t.Text,
			AuthorHandle:      u.Username,
			AuthorDisplayName: u.Name,
			AuthorAvatarURL:   u.ProfileImageURL,
			AuthorVerified:    u.Verified || (u.VerifiedType != "" && u.VerifiedType != "none"),
			CreatedAt:         created,
			Metrics: models.PostMetrics{
				Likes:    t.PublicMetrics.LikeCount,
				Retweets: t.PublicMetrics.RetweetCount,
				Replies:  t.PublicMetrics.ReplyCount,
				Quotes:   t.PublicMetrics.QuoteCount,
			},
			FollowerCount: u.PublicMetrics.FollowersCount,
			PermalinkURL:  models.Permalink(u.Username, t.ID),
		})
	}
	return out
}
