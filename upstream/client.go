// Package upstream talks to the X API v2 search endpoints and decides which
// of them a process is entitled to use.
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/wikifeed/feedengine/pkg/models"
)

const defaultBaseURL = "https://api.x.com"

// Endpoint selects the search variant.
type Endpoint string

const (
	// EndpointArchive is full-archive search; it requires elevated access.
	EndpointArchive Endpoint = "/2/tweets/search/all"
	// EndpointRecent is the last-seven-days search available to every tier.
	EndpointRecent Endpoint = "/2/tweets/search/recent"
)

func (e Endpoint) String() string {
	if e == EndpointArchive {
		return "archive"
	}
	return "recent"
}

// Page size limits imposed by the search endpoints.
const (
	MinPageSize = 10
	MaxPageSize = 100
)

const (
	tweetFields = "public_metrics,created_at,lang,author_id"
	userFields  = "username,name,profile_image_url,public_metrics,verified,verified_type"
)

// Searcher runs one search request against one endpoint.
type Searcher interface {
	Search(ctx context.Context, endpoint Endpoint, query string, maxResults int) ([]models.SocialPost, error)
}

// Client is a thin wrapper around the X API v2 REST search API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient constructs a client authenticating with an app bearer token.
func NewClient(token string, opts ...func(*Client)) *Client {
	c := &Client{
		baseURL: defaultBaseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithHTTPClient overrides the internal HTTP client.
func WithHTTPClient(hc *http.Client) func(*Client) {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithBaseURL overrides the default API base URL (useful for tests).
func WithBaseURL(u string) func(*Client) {
	return func(c *Client) {
		if u != "" {
			c.baseURL = u
		}
	}
}

// Configured reports whether a bearer token is set.
func (c *Client) Configured() bool {
	return c.token != ""
}

// Search runs query against endpoint, asking for maxResults posts clamped
// to the endpoint's page limits, relevancy-sorted, with author expansions.
//
// Status mapping: 401 and 403 are entitlement failures, as is 404 on the
// archive endpoint; 429 is throttling; anything else is unavailability.
func (c *Client) Search(ctx context.Context, endpoint Endpoint, query string, maxResults int) ([]models.SocialPost, error) {
	op := "upstream.search " + endpoint.String()
	if c.token == "" {
		return nil, models.Errorf(models.KindUpstreamUnavailable, op, "bearer token not configured")
	}

	params := url.Values{}
	params.Set("query", query)
	params.Set("max_results", strconv.Itoa(clampPageSize(maxResults)))
	params.Set("sort_order", "relevancy")
	params.Set("tweet.fields", tweetFields)
	params.Set("expansions", "author_id")
	params.Set("user.fields", userFields)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+string(endpoint)+"?"+params.Encode(), nil)
	if err != nil {
		return nil, models.NewError(models.KindUpstreamUnavailable, op, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, models.NewError(models.KindUpstreamUnavailable, op, fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, models.NewError(classifyStatus(endpoint, resp.StatusCode), op,
			fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(data)))
	}

	var payload searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, models.NewError(models.KindUpstreamUnavailable, op, fmt.Errorf("decode response: %w", err))
	}
	if len(payload.Data) == 0 && len(payload.Errors) > 0 {
		return nil, models.NewError(models.KindUpstreamUnavailable, op, errors.New(payload.Errors[0].String()))
	}
	return payload.posts(), nil
}

func classifyStatus(endpoint Endpoint, status int) models.Kind {
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return models.KindUpstreamForbidden
	case status == http.StatusNotFound && endpoint == EndpointArchive:
		return models.KindUpstreamForbidden
	case status == http.StatusTooManyRequests:
		return models.KindUpstreamThrottled
	default:
		return models.KindUpstreamUnavailable
	}
}

func clampPageSize(n int) int {
	if n < MinPageSize {
		return MinPageSize
	}
	if n > MaxPageSize {
		return MaxPageSize
	}
	return n
}
