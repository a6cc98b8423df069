package upstream

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"encore.dev/rlog"

	"github.com/wikifeed/feedengine/pkg/models"
	"github.com/wikifeed/feedengine/pkg/utils"
)

// Strategy fetches candidate posts, preferring full-archive search and
// downgrading to recent search once the archive endpoint refuses the
// credential. The downgrade is one-way for the life of the Strategy or until
// Reset is called.
type Strategy struct {
	searcher   Searcher
	lang       string
	downgraded atomic.Bool
	downgrades atomic.Uint64
}

// NewStrategy creates a fetch strategy. lang restricts results to one
// language; empty disables the filter.
func NewStrategy(searcher Searcher, lang string) *Strategy {
	return &Strategy{searcher: searcher, lang: lang}
}

// Fetch returns up to poolSize candidates for expression in upstream
// relevancy order. Reposts, replies and other languages are excluded in the
// query itself. Throttling is returned as ErrUpstreamThrottled and is never
// retried here.
func (s *Strategy) Fetch(ctx context.Context, expression string, poolSize int) ([]models.SocialPost, error) {
	expression = utils.SanitizeQuery(expression)
	if expression == "" {
		return nil, models.Errorf(models.KindInvalidQuery, "upstream.fetch", "empty query expression")
	}
	query := s.buildQuery(expression)

	if !s.downgraded.Load() {
		posts, err := s.searcher.Search(ctx, EndpointArchive, query, poolSize)
		if !errors.Is(err, models.ErrUpstreamForbidden) {
			return posts, err
		}
		if s.downgraded.CompareAndSwap(false, true) {
			s.downgrades.Add(1)
			rlog.Warn("archive search refused, downgrading to recent search", "err", err)
		}
	}

	posts, err := s.searcher.Search(ctx, EndpointRecent, query, poolSize)
	if err != nil {
		return nil, fmt.Errorf("recent search: %w", err)
	}
	return posts, nil
}

func (s *Strategy) buildQuery(expression string) string {
	var b strings.Builder
	b.WriteString(expression)
	b.WriteString(" -is:retweet -is:reply")
	if s.lang != "" {
		b.WriteString(" lang:")
		b.WriteString(s.lang)
	}
	return b.String()
}

// Downgraded reports whether archive search has been abandoned.
func (s *Strategy) Downgraded() bool {
	return s.downgraded.Load()
}

// Reset re-enables archive search, e.g. after the credential changed.
func (s *Strategy) Reset() {
	s.downgraded.Store(false)
}
