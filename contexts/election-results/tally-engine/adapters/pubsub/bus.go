package pubsubadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"tallyhub/contexts/election-results/tally-engine/ports"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"
)

// Bus relays outbox envelopes to Google Cloud Pub/Sub and consumes them
// back through per-group subscriptions. Messages are ordered by partition key
// so events for one submission arrive in order.
type Bus struct {
	client      *pubsub.Client
	topicPrefix string
	logger      *slog.Logger

	mu     sync.Mutex
	topics map[string]*pubsub.Topic
}

func NewBus(
	ctx context.Context,
	projectID string,
	topicPrefix string,
	logger *slog.Logger,
	opts ...option.ClientOption,
) (*Bus, error) {
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return nil, errors.New("pubsub project id is required")
	}
	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		client:      client,
		topicPrefix: topicPrefix,
		logger:      logger,
		topics:      make(map[string]*pubsub.Topic),
	}, nil
}

func (b *Bus) Publish(ctx context.Context, topic string, event ports.EventEnvelope) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	handle := b.topic(topic)
	result := handle.Publish(ctx, &pubsub.Message{
		Data:        data,
		OrderingKey: event.PartitionKey,
		Attributes: map[string]string{
			"event_id":       event.EventID,
			"event_type":     event.EventType,
			"source_service": event.SourceService,
		},
	})
	serverID, err := result.Get(ctx)
	if err != nil {
		b.logger.Error("pubsub publish failed",
			"event", "pubsub_publish_failed",
			"module", "election-results/tally-engine",
			"layer", "adapter",
			"topic", topic,
			"event_id", event.EventID,
			"error", err.Error(),
		)
		// A failed ordered publish pauses its key until resumed.
		if event.PartitionKey != "" {
			handle.ResumePublish(event.PartitionKey)
		}
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	b.logger.Debug("pubsub event published",
		"event", "pubsub_publish",
		"module", "election-results/tally-engine",
		"layer", "adapter",
		"topic", topic,
		"event_id", event.EventID,
		"server_id", serverID,
	)
	return nil
}

// Subscribe creates the group subscription when missing and receives in the
// background until ctx ends. Handler errors nack the message for redelivery.
func (b *Bus) Subscribe(
	ctx context.Context,
	topic string,
	consumerGroup string,
	handler func(context.Context, ports.EventEnvelope) error,
) error {
	subscription, err := b.ensureSubscription(ctx, topic, consumerGroup)
	if err != nil {
		return err
	}

	go func() {
		err := subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
			var event ports.EventEnvelope
			if err := json.Unmarshal(msg.Data, &event); err != nil {
				b.logger.Error("pubsub message dropped",
					"event", "pubsub_decode_failed",
					"module", "election-results/tally-engine",
					"layer", "adapter",
					"topic", topic,
					"message_id", msg.ID,
					"error", err.Error(),
				)
				msg.Ack()
				return
			}
			if err := handler(ctx, event); err != nil {
				b.logger.Error("pubsub handler failed",
					"event", "pubsub_consume_failed",
					"module", "election-results/tally-engine",
					"layer", "adapter",
					"topic", topic,
					"consumer_group", consumerGroup,
					"event_id", event.EventID,
					"error", err.Error(),
				)
				msg.Nack()
				return
			}
			msg.Ack()
		})
		if err != nil && ctx.Err() == nil {
			b.logger.Error("pubsub receive stopped",
				"event", "pubsub_receive_stopped",
				"module", "election-results/tally-engine",
				"layer", "adapter",
				"topic", topic,
				"consumer_group", consumerGroup,
				"error", err.Error(),
			)
		}
	}()
	return nil
}

func (b *Bus) ensureSubscription(ctx context.Context, topicName string, consumerGroup string) (*pubsub.Subscription, error) {
	subscriptionID := b.subscriptionID(topicName, consumerGroup)
	subscription := b.client.Subscription(subscriptionID)
	exists, err := subscription.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("check subscription %s: %w", consumerGroup, err)
	}
	if exists {
		return subscription, nil
	}

	topic := b.topic(topicName)
	topicExists, err := topic.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("check topic %s: %w", topicName, err)
	}
	if !topicExists {
		if _, err := b.client.CreateTopic(ctx, b.topicPrefix+topicName); err != nil {
			return nil, fmt.Errorf("create topic %s: %w", topicName, err)
		}
	}
	subscription, err = b.client.CreateSubscription(ctx, subscriptionID, pubsub.SubscriptionConfig{
		Topic:                 topic,
		AckDeadline:           30 * time.Second,
		EnableMessageOrdering: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create subscription %s: %w", consumerGroup, err)
	}
	return subscription, nil
}

// subscriptionID names one subscription per topic and consumer group.
func (b *Bus) subscriptionID(topicName string, consumerGroup string) string {
	return b.topicPrefix + consumerGroup + "." + topicName
}

func (b *Bus) Close() error {
	b.mu.Lock()
	for _, topic := range b.topics {
		topic.Stop()
	}
	b.topics = make(map[string]*pubsub.Topic)
	b.mu.Unlock()
	return b.client.Close()
}

func (b *Bus) topic(name string) *pubsub.Topic {
	b.mu.Lock()
	defer b.mu.Unlock()

	if topic, ok := b.topics[name]; ok {
		return topic
	}
	topic := b.client.Topic(b.topicPrefix + name)
	topic.EnableMessageOrdering = true
	b.topics[name] = topic
	return topic
}
