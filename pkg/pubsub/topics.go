// Package pubsub provides topic names and event type definitions for the
// feed service's event-driven paths.
//
// Topic Naming Convention:
//   - topic-invalidated: a topic's cached feeds were invalidated
//   - topic-warmed: a warm run for a topic finished
//
// Design Notes:
//   - Topics are defined as constants to avoid typos
//   - Version field in events enables schema evolution without breaking consumers
//   - No direct Encore dependencies to keep pkg/ reusable across services
package pubsub

const (
	// TopicInvalidated is published after InvalidateTopic succeeds.
	// Event type: TopicInvalidatedEvent
	// Publishers: feeds refresh endpoint
	// Subscribers: feeds re-warm handler
	TopicInvalidated = "topic-invalidated"

	// TopicWarmed is published when a warm task completes or fails.
	// Event type: TopicWarmedEvent
	// Publishers: warming worker pool
	TopicWarmed = "topic-warmed"
)

// AllTopics returns all defined topic names.
func AllTopics() []string {
	return []string{TopicInvalidated, TopicWarmed}
}

// IsValidTopic checks if the given topic name is recognized.
func IsValidTopic(topic string) bool {
	for _, t := range AllTopics() {
		if t == topic {
			return true
		}
	}
	return false
}
