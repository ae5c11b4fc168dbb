package pubsubadapter

import (
	"context"
	"testing"
	"time"

	application "tallyhub/contexts/election-results/tally-engine/application"
	"tallyhub/contexts/election-results/tally-engine/ports"

	"cloud.google.com/go/pubsub/apiv1/pubsubpb"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
)

func newTestBus(t *testing.T) (*Bus, *pstest.Server) {
	t.Helper()
	srv := pstest.NewServer()
	t.Cleanup(func() {
		_ = srv.Close()
	})

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = conn.Close()
	})

	bus, err := NewBus(context.Background(), "tallyhub-test", "tally-", nil, option.WithGRPCConn(conn))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = bus.Close()
	})
	return bus, srv
}

func reviewedEnvelope(t *testing.T, eventID string) ports.EventEnvelope {
	t.Helper()
	envelope, err := application.NewEnvelope(
		eventID,
		application.TopicSubmissionReviewed,
		"submission_id",
		"sub-1",
		time.Date(2027, 8, 9, 18, 0, 0, 0, time.UTC),
		application.SubmissionReviewedPayload{SubmissionID: "sub-1", StationID: "PS-1"},
	)
	require.NoError(t, err)
	return envelope
}

func TestPublishResumesOrderingKeyAfterFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	bus, srv := newTestBus(t)
	_, err := bus.client.CreateTopic(ctx, "tally-"+application.TopicSubmissionReviewed)
	require.NoError(t, err)

	srv.SetAutoPublishResponse(false)
	srv.AddPublishResponse(nil, status.Error(codes.InvalidArgument, "rejected"))
	srv.AddPublishResponse(&pubsubpb.PublishResponse{MessageIds: []string{"m-2"}}, nil)

	first := reviewedEnvelope(t, "evt-1")
	require.Equal(t, "sub-1", first.PartitionKey)
	require.Error(t, bus.Publish(ctx, application.TopicSubmissionReviewed, first))

	require.NoError(t, bus.Publish(ctx, application.TopicSubmissionReviewed, reviewedEnvelope(t, "evt-2")),
		"a later event for the same submission must not stay blocked")
}

func TestSubscriptionPerTopicAndGroup(t *testing.T) {
	bus, _ := newTestBus(t)
	require.Equal(t,
		"tally-tally-engine-cg."+application.TopicAggregateInvalidated,
		bus.subscriptionID(application.TopicAggregateInvalidated, "tally-engine-cg"),
	)
	require.NotEqual(t,
		bus.subscriptionID(application.TopicAggregateInvalidated, "tally-engine-cg"),
		bus.subscriptionID(application.TopicSubmissionReviewed, "tally-engine-cg"),
	)
}
