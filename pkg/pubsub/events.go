package pubsub

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// EventVersion1 is the current event schema version.
const EventVersion1 = 1

// Warm outcomes carried by TopicWarmedEvent.
const (
	WarmStatusSuccess = "success"
	WarmStatusFailure = "failure"
	WarmStatusSkipped = "skipped"
)

// TopicInvalidatedEvent announces that every cached feed of a topic was
// marked stale.
type TopicInvalidatedEvent struct {
	// Version of the event schema (for backward compatibility)
	Version int `json:"version"`

	// Service that triggered the invalidation
	Service string `json:"service"`

	// Topic is the topic key as received by the API (slug or title)
	Topic string `json:"topic"`

	// Entries is the number of cache entries that were invalidated
	Entries int `json:"entries"`

	// Rewarm asks subscribers to repopulate the feed immediately
	Rewarm bool `json:"rewarm"`

	// MaxResults is the page size to re-warm with
	MaxResults int `json:"max_results,omitempty"`

	TriggeredAt time.Time `json:"triggered_at"`

	// RequestID for correlation with the originating API call
	RequestID string `json:"request_id"`
}

// Validate checks if the event is well-formed.
func (e *TopicInvalidatedEvent) Validate() error {
	if e.Version != EventVersion1 {
		return fmt.Errorf("unsupported event version: %d", e.Version)
	}
	if e.Service == "" {
		return errors.New("service field is required")
	}
	if e.Topic == "" {
		return errors.New("topic is required")
	}
	if e.Entries < 0 {
		return errors.New("entries cannot be negative")
	}
	if e.TriggeredAt.IsZero() {
		return errors.New("triggered_at cannot be zero")
	}
	if e.RequestID == "" {
		return errors.New("request_id is required for tracing")
	}
	return nil
}

// ToJSON serializes the event to JSON.
func (e *TopicInvalidatedEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// TopicWarmedEvent reports the result of warming one topic feed.
type TopicWarmedEvent struct {
	Version    int       `json:"version"`
	JobID      string    `json:"job_id"`
	Topic      string    `json:"topic"`
	MaxResults int       `json:"max_results"`
	Status     string    `json:"status"`
	Posts      int       `json:"posts"`
	FromCache  bool      `json:"from_cache"`
	DurationMs int64     `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
	Trigger    string    `json:"trigger"`
	FinishedAt time.Time `json:"finished_at"`
}

// Validate checks if the event is well-formed.
func (e *TopicWarmedEvent) Validate() error {
	if e.Version != EventVersion1 {
		return fmt.Errorf("unsupported event version: %d", e.Version)
	}
	if e.JobID == "" {
		return errors.New("job_id is required")
	}
	if e.Topic == "" {
		return errors.New("topic is required")
	}
	switch e.Status {
	case WarmStatusSuccess, WarmStatusFailure, WarmStatusSkipped:
	default:
		return fmt.Errorf("invalid status: %q", e.Status)
	}
	if e.Status == WarmStatusFailure && e.Error == "" {
		return errors.New("error is required for failed warms")
	}
	if e.FinishedAt.IsZero() {
		return errors.New("finished_at cannot be zero")
	}
	return nil
}

// ToJSON serializes the event to JSON.
func (e *TopicWarmedEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}
