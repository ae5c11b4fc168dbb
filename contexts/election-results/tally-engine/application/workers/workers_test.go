package workers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"tallyhub/contexts/election-results/tally-engine/adapters/memory"
	application "tallyhub/contexts/election-results/tally-engine/application"
	"tallyhub/contexts/election-results/tally-engine/domain/entities"
	"tallyhub/contexts/election-results/tally-engine/ports"
	"tallyhub/internal/platform/messaging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
	events []ports.EventEnvelope
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, event ports.EventEnvelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.events = append(p.events, event)
	return nil
}

var wardKey = entities.AggregateKey{LocationID: "W-1", Position: entities.PositionPresident}

// approvedStore returns a store holding one approved submission and its two outbox rows.
func approvedStore(t *testing.T) *memory.Store {
	t.Helper()
	now := time.Date(2027, 8, 9, 18, 0, 0, 0, time.UTC)
	store := memory.NewStore([]entities.Submission{{
		SubmissionID: "sub-1",
		SubmitterID:  "agent-1",
		StationID:    "PS-1",
		Position:     entities.PositionPresident,
		Channel:      entities.ChannelManual,
		Status:       entities.SubmissionStatusPending,
		SubmittedAt:  now.Add(-time.Hour),
		UpdatedAt:    now.Add(-time.Hour),
	}})

	var messages []ports.OutboxMessage
	for _, event := range []struct {
		id    string
		topic string
		data  any
	}{
		{"evt-1", application.TopicSubmissionReviewed, application.SubmissionReviewedPayload{SubmissionID: "sub-1", StationID: "PS-1"}},
		{"evt-2", application.TopicAggregateInvalidated, application.AggregateInvalidatedPayload{
			SubmissionID: "sub-1",
			StationID:    "PS-1",
			Keys:         []entities.AggregateKey{{LocationID: "PS-1", Position: entities.PositionPresident}, wardKey},
		}},
	} {
		envelope, err := application.NewEnvelope(event.id, event.topic, "submission_id", "sub-1", now, event.data)
		require.NoError(t, err)
		message, err := application.NewOutboxMessage(envelope)
		require.NoError(t, err)
		messages = append(messages, message)
	}

	_, err := store.ApplyReview(context.Background(), ports.ReviewTransition{
		SubmissionID:   "sub-1",
		ExpectedStatus: entities.SubmissionStatusPending,
		NextStatus:     entities.SubmissionStatusVerified,
		VerifiedAt:     &now,
		UpdatedAt:      now,
		Review: entities.SubmissionReview{
			ReviewID:     "rev-1",
			SubmissionID: "sub-1",
			ReviewerID:   "admin-1",
			ReviewerRole: entities.RoleAdmin,
			Action:       entities.ReviewActionApprove,
			FromStatus:   entities.SubmissionStatusPending,
			ToStatus:     entities.SubmissionStatusVerified,
			CreatedAt:    now,
		},
		Outbox: messages,
	})
	require.NoError(t, err)
	return store
}

func TestOutboxRelayPublishesOnce(t *testing.T) {
	store := approvedStore(t)
	publisher := &recordingPublisher{}
	relay := OutboxRelay{Outbox: store, Publisher: publisher, Locker: memory.NewLocker(), Clock: store}

	require.NoError(t, relay.RunOnce(context.Background()))
	require.NoError(t, relay.RunOnce(context.Background()))

	assert.Equal(t, []string{application.TopicSubmissionReviewed, application.TopicAggregateInvalidated}, publisher.topics)
	assert.Equal(t, "evt-1", publisher.events[0].EventID)
	pending, err := store.ListPendingOutbox(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestOutboxRelayYieldsWhenLeaseHeld(t *testing.T) {
	store := approvedStore(t)
	publisher := &recordingPublisher{}
	locker := memory.NewLocker()
	lease, err := locker.Obtain(context.Background(), outboxRelayLeaseKey, time.Minute)
	require.NoError(t, err)

	relay := OutboxRelay{Outbox: store, Publisher: publisher, Locker: locker}
	require.NoError(t, relay.RunOnce(context.Background()))
	assert.Empty(t, publisher.topics)

	require.NoError(t, lease.Release(context.Background()))
	require.NoError(t, relay.RunOnce(context.Background()))
	assert.Len(t, publisher.topics, 2)
}

func TestInvalidationConsumerSkipsReplays(t *testing.T) {
	ctx := context.Background()
	store := approvedStore(t)
	publisher := &recordingPublisher{}
	require.NoError(t, OutboxRelay{Outbox: store, Publisher: publisher}.RunOnce(ctx))
	event := publisher.events[1]

	cache := memory.NewAggregateCache()
	consumer := AggregateInvalidationConsumer{Dedup: store, Cache: cache, Clock: store}

	require.NoError(t, consumer.Handle(ctx, event))
	lookup, err := cache.Lookup(ctx, wardKey)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), lookup.Generation)

	require.NoError(t, consumer.Handle(ctx, event))
	lookup, err = cache.Lookup(ctx, wardKey)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), lookup.Generation, "replayed event must not evict again")
}

// flakyCache fails the first Invalidate call and delegates afterwards.
type flakyCache struct {
	*memory.AggregateCache
	failures int
}

func (c *flakyCache) Invalidate(ctx context.Context, keys []entities.AggregateKey) error {
	if c.failures > 0 {
		c.failures--
		return errors.New("cache unavailable")
	}
	return c.AggregateCache.Invalidate(ctx, keys)
}

func TestInvalidationConsumerRetriesAfterCacheFailure(t *testing.T) {
	ctx := context.Background()
	store := approvedStore(t)
	publisher := &recordingPublisher{}
	require.NoError(t, OutboxRelay{Outbox: store, Publisher: publisher}.RunOnce(ctx))
	event := publisher.events[1]

	cache := &flakyCache{AggregateCache: memory.NewAggregateCache(), failures: 1}
	consumer := AggregateInvalidationConsumer{Dedup: store, Cache: cache, Clock: store}

	require.Error(t, consumer.Handle(ctx, event))
	lookup, err := cache.Lookup(ctx, wardKey)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), lookup.Generation)

	require.NoError(t, consumer.Handle(ctx, event), "redelivery after a failed eviction")
	lookup, err = cache.Lookup(ctx, wardKey)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), lookup.Generation)

	require.NoError(t, consumer.Handle(ctx, event))
	lookup, err = cache.Lookup(ctx, wardKey)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), lookup.Generation)
}

func TestRelayAndConsumerOverInProcessBus(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := approvedStore(t)
	bus := messaging.NewBus(nil)
	cache := memory.NewAggregateCache()

	consumer := AggregateInvalidationConsumer{Subscriber: bus, Dedup: store, Cache: cache, Clock: store}
	require.NoError(t, consumer.Start(ctx))
	require.NoError(t, OutboxRelay{Outbox: store, Publisher: bus, Clock: store}.RunOnce(ctx))

	require.Eventually(t, func() bool {
		lookup, err := cache.Lookup(ctx, wardKey)
		return err == nil && lookup.Generation == 1
	}, time.Second, 10*time.Millisecond)
}
