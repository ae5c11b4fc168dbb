package workers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	application "tallyhub/contexts/election-results/tally-engine/application"
	"tallyhub/contexts/election-results/tally-engine/ports"
)

const defaultInvalidationCG = "tally-engine-aggregate-invalidation-cg"

// AggregateInvalidationConsumer evicts memoized aggregates named by
// invalidation events. Replays are skipped through the dedup store. A failed
// eviction gives its reservation back so the redelivered event runs again.
type AggregateInvalidationConsumer struct {
	Subscriber    ports.EventSubscriber
	Dedup         ports.EventDedupStore
	Cache         ports.AggregateCache
	Clock         ports.Clock
	ConsumerGroup string
	DedupTTL      time.Duration
	Logger        *slog.Logger
}

func (c AggregateInvalidationConsumer) Start(ctx context.Context) error {
	logger := application.ResolveLogger(c.Logger)
	group := strings.TrimSpace(c.ConsumerGroup)
	if group == "" {
		group = defaultInvalidationCG
	}
	if err := c.Subscriber.Subscribe(ctx, application.TopicAggregateInvalidated, group, c.Handle); err != nil {
		logger.Error("aggregate invalidation subscribe failed",
			"event", "tally_invalidation_subscribe_failed",
			"module", "election-results/tally-engine",
			"layer", "worker",
			"topic", application.TopicAggregateInvalidated,
			"consumer_group", group,
			"error", err.Error(),
		)
		return err
	}
	logger.Info("aggregate invalidation consumer started",
		"event", "tally_invalidation_consumer_started",
		"module", "election-results/tally-engine",
		"layer", "worker",
		"consumer_group", group,
	)
	return nil
}

func (c AggregateInvalidationConsumer) Handle(ctx context.Context, event ports.EventEnvelope) error {
	logger := application.ResolveLogger(c.Logger)

	if c.Dedup != nil {
		ttl := c.DedupTTL
		if ttl <= 0 {
			ttl = 7 * 24 * time.Hour
		}
		now := time.Now().UTC()
		if c.Clock != nil {
			now = c.Clock.Now().UTC()
		}
		alreadyProcessed, err := c.Dedup.ReserveEvent(ctx, event.EventID, hashPayload(event.Data), now.Add(ttl))
		if err != nil {
			return err
		}
		if alreadyProcessed {
			logger.Debug("aggregate invalidation replay skipped",
				"event", "tally_invalidation_replayed",
				"module", "election-results/tally-engine",
				"layer", "worker",
				"event_id", event.EventID,
			)
			return nil
		}
	}

	var payload application.AggregateInvalidatedPayload
	if err := json.Unmarshal(event.Data, &payload); err != nil {
		logger.Error("aggregate invalidation decode failed",
			"event", "tally_invalidation_decode_failed",
			"module", "election-results/tally-engine",
			"layer", "worker",
			"event_id", event.EventID,
			"error", err.Error(),
		)
		return err
	}
	if len(payload.Keys) == 0 {
		return nil
	}
	if err := c.Cache.Invalidate(ctx, payload.Keys); err != nil {
		logger.Error("aggregate invalidation failed",
			"event", "tally_invalidation_failed",
			"module", "election-results/tally-engine",
			"layer", "worker",
			"event_id", event.EventID,
			"error", err.Error(),
		)
		if c.Dedup != nil {
			if releaseErr := c.Dedup.ReleaseEvent(ctx, event.EventID); releaseErr != nil {
				return errors.Join(err, releaseErr)
			}
		}
		return err
	}

	logger.Info("aggregates invalidated",
		"event", "tally_aggregates_invalidated",
		"module", "election-results/tally-engine",
		"layer", "worker",
		"event_id", event.EventID,
		"submission_id", payload.SubmissionID,
		"station_id", payload.StationID,
		"key_count", len(payload.Keys),
	)
	return nil
}

func hashPayload(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
