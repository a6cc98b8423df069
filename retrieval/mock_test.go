package retrieval

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/wikifeed/feedengine/pkg/models"
	"github.com/wikifeed/feedengine/ranking"
)

// MockFetcher is a mock implementation of Fetcher for testing.
type MockFetcher struct {
	mu          sync.Mutex
	posts       []models.SocialPost
	err         error
	calls       int
	expressions []string
	pools       []int
	block       chan struct{}
}

func NewMockFetcher(posts []models.SocialPost) *MockFetcher {
	return &MockFetcher{posts: posts}
}

func (m *MockFetcher) Fetch(ctx context.Context, expression string, poolSize int) ([]models.SocialPost, error) {
	m.mu.Lock()
	m.calls++
	m.expressions = append(m.expressions, expression)
	m.pools = append(m.pools, poolSize)
	block := m.block
	m.mu.Unlock()

	if block != nil {
		<-block
	}
	if err := ctx.Err(); err != nil {
		return nil, models.NewError(models.KindUpstreamUnavailable, "mock.fetch", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return append([]models.SocialPost(nil), m.posts...), nil
}

func (m *MockFetcher) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *MockFetcher) SetPosts(posts []models.SocialPost) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.posts = posts
}

func (m *MockFetcher) Block() chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.block = make(chan struct{})
	return m.block
}

func (m *MockFetcher) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *MockFetcher) LastExpression() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.expressions) == 0 {
		return ""
	}
	return m.expressions[len(m.expressions)-1]
}

func (m *MockFetcher) LastPool() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.pools) == 0 {
		return 0
	}
	return m.pools[len(m.pools)-1]
}

// MockLimiter is a mock implementation of Limiter for testing.
type MockLimiter struct {
	mu        sync.Mutex
	allow     bool
	acquired  int
	rejected  int
	fallbacks int
}

func NewMockLimiter(allow bool) *MockLimiter {
	return &MockLimiter{allow: allow}
}

func (m *MockLimiter) TryAcquire() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.allow {
		m.rejected++
		return false
	}
	m.acquired++
	return true
}

func (m *MockLimiter) RecordRejectionFallback() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallbacks++
}

func (m *MockLimiter) SetAllow(allow bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.allow = allow
}

func (m *MockLimiter) Counts() (acquired, rejected, fallbacks int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.acquired, m.rejected, m.fallbacks
}

// MockReranker returns candidate IDs in reverse order unless configured
// otherwise.
type MockReranker struct {
	mu    sync.Mutex
	ids   []string
	err   error
	calls int
}

func (m *MockReranker) Rerank(ctx context.Context, req ranking.RerankRequest) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	if m.ids != nil {
		return m.ids, nil
	}
	out := make([]string, 0, len(req.Candidates))
	for i := len(req.Candidates) - 1; i >= 0; i-- {
		out = append(out, req.Candidates[i].ID)
	}
	return out, nil
}

func (m *MockReranker) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// MockOptimizer returns a fixed optimized query or error. A hanging
// optimizer only returns once its context is done.
type MockOptimizer struct {
	result  models.OptimizedQuery
	err     error
	hanging bool
}

func (m *MockOptimizer) Optimize(ctx context.Context, text, topicContext string) (models.OptimizedQuery, error) {
	if m.hanging {
		<-ctx.Done()
		return models.OptimizedQuery{}, ctx.Err()
	}
	if m.err != nil {
		return models.OptimizedQuery{}, m.err
	}
	return m.result, nil
}

// MockSummarizer is a mock implementation of Summarizer for testing.
type MockSummarizer struct {
	mu      sync.Mutex
	bullets []string
	err     error
	calls   int
	phrases []string
}

func (m *MockSummarizer) Summarize(ctx context.Context, phrase string, posts []models.SocialPost) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.phrases = append(m.phrases, phrase)
	if m.err != nil {
		return nil, m.err
	}
	return append([]string(nil), m.bullets...), nil
}

func (m *MockSummarizer) Model() string { return "mock-model" }

func (m *MockSummarizer) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *MockSummarizer) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// testPosts builds n posts whose likes decrease with the index, all created
// an hour before the clock's start.
func testPosts(n int, created time.Time) []models.SocialPost {
	posts := make([]models.SocialPost, n)
	for i := range posts {
		id := fmt.Sprintf("%d", 100+i)
		posts[i] = models.SocialPost{
			ID:            id,
			Text:          "post " + id,
			AuthorHandle:  "user" + id,
			CreatedAt:     created,
			Metrics:       models.PostMetrics{Likes: int64(1000 - i*10)},
			FollowerCount: 1000,
			PermalinkURL:  models.Permalink("user"+id, id),
		}
	}
	return posts
}

type testEnv struct {
	engine     *Engine
	fetcher    *MockFetcher
	limiter    *MockLimiter
	reranker   *MockReranker
	summarizer *MockSummarizer
	clock      *fakeClock
}

func newTestEnv(t interface{ Fatalf(string, ...any) }, mutate func(*Config, *Deps)) *testEnv {
	clock := newFakeClock()
	env := &testEnv{
		fetcher:    NewMockFetcher(testPosts(30, clock.Now().Add(-time.Hour))),
		limiter:    NewMockLimiter(true),
		reranker:   &MockReranker{},
		summarizer: &MockSummarizer{bullets: []string{"first", "second"}},
		clock:      clock,
	}
	cfg := DefaultConfig()
	deps := Deps{
		Fetcher:    env.fetcher,
		Topics:     SlugResolver{},
		Limiter:    env.limiter,
		Reranker:   env.reranker,
		Summarizer: env.summarizer,
		Now:        clock.Now,
	}
	if mutate != nil {
		mutate(&cfg, &deps)
	}
	engine, err := New(cfg, deps)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	env.engine = engine
	return env
}
