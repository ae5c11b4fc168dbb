package workers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	application "tallyhub/contexts/election-results/tally-engine/application"
	domainerrors "tallyhub/contexts/election-results/tally-engine/domain/errors"
	"tallyhub/contexts/election-results/tally-engine/ports"
)

const (
	outboxRelayLeaseKey = "tallyhub:tally-engine:outbox-relay"
	defaultLeaseTTL     = 30 * time.Second
)

// OutboxRelay publishes pending outbox rows to the event bus. When a Locker
// is set only the replica holding the lease relays in a given cycle.
type OutboxRelay struct {
	Outbox    ports.OutboxRepository
	Publisher ports.EventPublisher
	Locker    ports.LeaseLocker
	LeaseTTL  time.Duration
	Clock     ports.Clock
	BatchSize int
	Logger    *slog.Logger
}

func (r OutboxRelay) RunOnce(ctx context.Context) error {
	logger := application.ResolveLogger(r.Logger)
	limit := r.BatchSize
	if limit <= 0 {
		limit = 100
	}

	if r.Locker != nil {
		ttl := r.LeaseTTL
		if ttl <= 0 {
			ttl = defaultLeaseTTL
		}
		lease, err := r.Locker.Obtain(ctx, outboxRelayLeaseKey, ttl)
		if errors.Is(err, domainerrors.ErrLeaseNotObtained) {
			logger.Debug("tally outbox relay lease held elsewhere",
				"event", "tally_outbox_lease_busy",
				"module", "election-results/tally-engine",
				"layer", "worker",
			)
			return nil
		}
		if err != nil {
			return err
		}
		defer func() {
			if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
				logger.Warn("tally outbox relay lease release failed",
					"event", "tally_outbox_lease_release_failed",
					"module", "election-results/tally-engine",
					"layer", "worker",
					"error", err.Error(),
				)
			}
		}()
	}

	pending, err := r.Outbox.ListPendingOutbox(ctx, limit)
	if err != nil {
		logger.Error("tally outbox list failed",
			"event", "tally_outbox_list_failed",
			"module", "election-results/tally-engine",
			"layer", "worker",
			"error", err.Error(),
		)
		return err
	}

	now := time.Now().UTC()
	if r.Clock != nil {
		now = r.Clock.Now().UTC()
	}

	for _, row := range pending {
		var event ports.EventEnvelope
		if err := json.Unmarshal(row.Payload, &event); err != nil {
			logger.Error("tally outbox decode failed",
				"event", "tally_outbox_decode_failed",
				"module", "election-results/tally-engine",
				"layer", "worker",
				"outbox_id", row.OutboxID,
				"error", err.Error(),
			)
			return err
		}

		topic := event.EventType
		if topic == "" {
			topic = row.EventType
		}
		if err := r.Publisher.Publish(ctx, topic, event); err != nil {
			logger.Error("tally outbox publish failed",
				"event", "tally_outbox_publish_failed",
				"module", "election-results/tally-engine",
				"layer", "worker",
				"outbox_id", row.OutboxID,
				"event_id", event.EventID,
				"topic", topic,
				"error", err.Error(),
			)
			return err
		}
		if err := r.Outbox.MarkOutboxPublished(ctx, row.OutboxID, now); err != nil {
			logger.Error("tally outbox mark published failed",
				"event", "tally_outbox_mark_published_failed",
				"module", "election-results/tally-engine",
				"layer", "worker",
				"outbox_id", row.OutboxID,
				"error", err.Error(),
			)
			return err
		}
	}

	if len(pending) > 0 {
		logger.Info("tally outbox relay cycle completed",
			"event", "tally_outbox_relay_completed",
			"module", "election-results/tally-engine",
			"layer", "worker",
			"published_count", len(pending),
		)
	}
	return nil
}
