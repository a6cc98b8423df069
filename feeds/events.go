package feeds

import (
	"context"

	"encore.dev/pubsub"
	"encore.dev/rlog"

	"github.com/wikifeed/feedengine/pkg/middleware"
	events "github.com/wikifeed/feedengine/pkg/pubsub"
	"github.com/wikifeed/feedengine/warming"
)

// Pub/Sub topics

// TopicInvalidated carries an announcement for every refreshed topic.
var TopicInvalidated = pubsub.NewTopic[*events.TopicInvalidatedEvent](
	events.TopicInvalidated,
	pubsub.TopicConfig{
		DeliveryGuarantee: pubsub.AtLeastOnce,
	},
)

// TopicWarmed carries the outcome of every warm attempt.
var TopicWarmed = pubsub.NewTopic[*events.TopicWarmedEvent](
	events.TopicWarmed,
	pubsub.TopicConfig{
		DeliveryGuarantee: pubsub.AtLeastOnce,
	},
)

// Re-warm topics after they are invalidated.
var _ = pubsub.NewSubscription(
	TopicInvalidated,
	"feeds-rewarm-invalidated",
	pubsub.SubscriptionConfig[*events.TopicInvalidatedEvent]{
		Handler: HandleTopicInvalidated,
	},
)

// HandleTopicInvalidated queues a re-warm for the invalidated topic.
// Redelivered events only queue another warm, which is cheap once the feed
// is fresh again.
func HandleTopicInvalidated(ctx context.Context, event *events.TopicInvalidatedEvent) error {
	if svc == nil {
		return nil
	}
	return svc.handleTopicInvalidated(ctx, event)
}

func (s *Service) handleTopicInvalidated(ctx context.Context, event *events.TopicInvalidatedEvent) error {
	if err := event.Validate(); err != nil {
		// Malformed events would fail forever on redelivery.
		rlog.Warn("dropping invalid invalidation event", "err", err)
		return nil
	}
	ctx = middleware.WithRequestID(ctx, event.RequestID)
	log := middleware.Logger(ctx, "topic", event.Topic)

	if !event.Rewarm {
		log.Debug("invalidation without rewarm")
		return nil
	}

	res, err := s.warmer.WarmTopic(event.Topic, event.MaxResults, warming.TriggerInvalidate)
	if err != nil {
		log.Warn("rewarm not queued", "err", err)
		return nil
	}
	log.Info("rewarm queued", "job_id", res.JobID, "queued", res.Queued)
	return nil
}
