package messaging

import (
	"context"
	"log/slog"
	"sync"

	"tallyhub/internal/shared/events"
)

// Handler processes one delivered envelope.
type Handler func(context.Context, events.Envelope) error

// Bus is the in-process event bus used by the outbox relay when no external
// broker is configured. Each consumer group receives every event once;
// subscribers sharing a group compete for deliveries.
type Bus struct {
	mu     sync.RWMutex
	groups map[string]map[string]chan events.Envelope
	logger *slog.Logger
	buffer int
}

func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		groups: make(map[string]map[string]chan events.Envelope),
		logger: logger,
		buffer: 128,
	}
}

// Publish blocks until every consumer group has accepted the event or ctx ends.
func (b *Bus) Publish(ctx context.Context, topic string, event events.Envelope) error {
	b.mu.RLock()
	queues := make([]chan events.Envelope, 0, len(b.groups[topic]))
	for _, queue := range b.groups[topic] {
		queues = append(queues, queue)
	}
	b.mu.RUnlock()

	for _, queue := range queues {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case queue <- event:
		}
	}

	b.logger.Debug("event published",
		"event", "bus_publish",
		"module", "internal/platform/messaging",
		"layer", "platform",
		"topic", topic,
		"event_id", event.EventID,
		"event_type", event.EventType,
		"consumer_groups", len(queues),
	)
	return nil
}

func (b *Bus) Subscribe(
	ctx context.Context,
	topic string,
	consumerGroup string,
	handler func(context.Context, events.Envelope) error,
) error {
	queue := b.queue(topic, consumerGroup)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case event := <-queue:
				if err := handler(ctx, event); err != nil {
					b.logger.Error("consumer handler failed",
						"event", "bus_consume_failed",
						"module", "internal/platform/messaging",
						"layer", "platform",
						"topic", topic,
						"consumer_group", consumerGroup,
						"event_id", event.EventID,
						"event_type", event.EventType,
						"error", err.Error(),
					)
				}
			}
		}
	}()
	return nil
}

func (b *Bus) queue(topic string, consumerGroup string) chan events.Envelope {
	b.mu.Lock()
	defer b.mu.Unlock()

	groups, ok := b.groups[topic]
	if !ok {
		groups = make(map[string]chan events.Envelope)
		b.groups[topic] = groups
	}
	queue, ok := groups[consumerGroup]
	if !ok {
		queue = make(chan events.Envelope, b.buffer)
		groups[consumerGroup] = queue
	}
	return queue
}
