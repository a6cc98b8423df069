package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/wikifeed/feedengine/pkg/models"
)

const (
	// SummaryContextPosts is how many top posts are summarized.
	SummaryContextPosts = 5
	maxSummaryBullets   = 3
)

const summarizerSystemPrompt = `You are an expert social media curator. Summarize the most important
takeaways from the topic's top tweets in 2-3 concise bullets. Be neutral and non-promotional,
and avoid links or hashtags. Focus on key themes, insights or consensus.`

// Summarizer condenses a topic's top posts into a few bullets.
type Summarizer struct {
	provider Provider
}

// NewSummarizer creates a summarizer on top of provider.
func NewSummarizer(provider Provider) *Summarizer {
	return &Summarizer{provider: provider}
}

// Model returns the model used for summaries.
func (s *Summarizer) Model() string {
	return s.provider.Model()
}

// Summarize returns up to three bullets about posts, which are expected in
// ranked order.
func (s *Summarizer) Summarize(ctx context.Context, phrase string, posts []models.SocialPost) ([]string, error) {
	const op = "llm.summarize"

	if len(posts) > SummaryContextPosts {
		posts = posts[:SummaryContextPosts]
	}
	var block strings.Builder
	for i, p := range posts {
		fmt.Fprintf(&block, "%d. %s\n   by @%s | likes %d reposts %d replies %d\n",
			i+1, p.Text, p.AuthorHandle, p.Metrics.Likes, p.Metrics.Retweets, p.Metrics.Replies)
	}
	if len(posts) == 0 {
		block.WriteString("(no tweets)\n")
	}

	content, err := s.provider.Complete(ctx, Prompt{
		System: summarizerSystemPrompt,
		User: fmt.Sprintf("Topic: %s\n\nTop tweets (ordered by engagement):\n%s\n"+
			"Return ONLY a compact JSON array of 2-3 short bullet strings.", phrase, block.String()),
		Temperature: 0.2,
		MaxTokens:   256,
	})
	if err != nil {
		return nil, models.NewError(models.KindSummaryUnavailable, op, err)
	}

	var raw []string
	if err := extractJSON(content, '[', ']', &raw); err != nil {
		return nil, models.NewError(models.KindSummaryUnavailable, op, err)
	}
	bullets := cleanList(raw, maxSummaryBullets)
	if len(bullets) == 0 {
		return nil, models.Errorf(models.KindSummaryUnavailable, op, "no bullets in reply")
	}
	return bullets, nil
}
