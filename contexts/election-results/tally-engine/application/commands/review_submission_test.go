package commands

import (
	"context"
	"encoding/json"
	"testing"

	application "tallyhub/contexts/election-results/tally-engine/application"
	"tallyhub/contexts/election-results/tally-engine/domain/entities"
	domainerrors "tallyhub/contexts/election-results/tally-engine/domain/errors"
	"tallyhub/contexts/election-results/tally-engine/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReviewApproveWritesAuditAndOutbox(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	submission := h.mustSubmit(t, submitCommand(agent, "PS-1", exampleResult()))

	verified := h.mustReview(t, submission.SubmissionID, entities.ReviewActionApprove)
	assert.Equal(t, entities.SubmissionStatusVerified, verified.Status)
	require.NotNil(t, verified.VerifiedAt)

	reviews, err := h.store.ListReviews(ctx, submission.SubmissionID)
	require.NoError(t, err)
	require.Len(t, reviews, 1)
	assert.Equal(t, entities.SubmissionStatusPending, reviews[0].FromStatus)
	assert.Equal(t, entities.SubmissionStatusVerified, reviews[0].ToStatus)
	assert.Equal(t, admin.UserID, reviews[0].ReviewerID)

	pending, err := h.store.ListPendingOutbox(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, application.TopicSubmissionReviewed, pending[0].EventType)
	assert.Equal(t, application.TopicAggregateInvalidated, pending[1].EventType)

	var envelope ports.EventEnvelope
	require.NoError(t, json.Unmarshal(pending[1].Payload, &envelope))
	var payload application.AggregateInvalidatedPayload
	require.NoError(t, json.Unmarshal(envelope.Data, &payload))
	assert.Equal(t, []entities.AggregateKey{
		{LocationID: "PS-1", Position: entities.PositionPresident},
		{LocationID: "W-1", Position: entities.PositionPresident},
		{LocationID: "CN-274", Position: entities.PositionPresident},
		{LocationID: "C-047", Position: entities.PositionPresident},
		{LocationID: "KE", Position: entities.PositionPresident},
	}, payload.Keys)
}

func TestReviewTerminalStatusesRejectActions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	verified := h.mustSubmit(t, submitCommand(agent, "PS-1", exampleResult()))
	h.mustReview(t, verified.SubmissionID, entities.ReviewActionApprove)

	rejected := h.mustSubmit(t, submitCommand(agent, "PS-2", exampleResult()))
	h.mustReview(t, rejected.SubmissionID, entities.ReviewActionReject)

	for _, id := range []string{verified.SubmissionID, rejected.SubmissionID} {
		for _, action := range []entities.ReviewAction{
			entities.ReviewActionApprove,
			entities.ReviewActionReject,
			entities.ReviewActionRequestRevision,
		} {
			_, err := h.review.Execute(ctx, ReviewSubmissionCommand{SubmissionID: id, Actor: admin, Action: action})
			assert.ErrorIs(t, err, domainerrors.ErrInvalidAction, "%s on %s", action, id)
		}
		reviews, err := h.store.ListReviews(ctx, id)
		require.NoError(t, err)
		assert.Len(t, reviews, 1, "failed actions leave no audit rows")
	}
}

func TestReviewFlaggedCanStillBeApproved(t *testing.T) {
	h := newHarness(t)
	submission := h.mustSubmit(t, submitCommand(agent, "PS-1", exampleResult()))

	flagged := h.mustReview(t, submission.SubmissionID, entities.ReviewActionRequestRevision)
	assert.Equal(t, entities.SubmissionStatusFlagged, flagged.Status)
	assert.Nil(t, flagged.VerifiedAt)

	verified := h.mustReview(t, submission.SubmissionID, entities.ReviewActionApprove)
	assert.Equal(t, entities.SubmissionStatusVerified, verified.Status)
}

func TestReviewApprovingSupersededRowConflicts(t *testing.T) {
	h := newHarness(t)
	first := h.mustSubmit(t, submitCommand(agent, "PS-1", exampleResult()))
	h.mustReview(t, first.SubmissionID, entities.ReviewActionRequestRevision)
	h.mustSubmit(t, submitCommand(agent, "PS-1", exampleResult()))

	_, err := h.review.Execute(context.Background(), ReviewSubmissionCommand{
		SubmissionID: first.SubmissionID,
		Actor:        admin,
		Action:       entities.ReviewActionApprove,
	})
	assert.ErrorIs(t, err, domainerrors.ErrDuplicateSubmission)
}

func TestReviewAuthorization(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	submission := h.mustSubmit(t, submitCommand(agent, "PS-1", exampleResult()))

	_, err := h.review.Execute(ctx, ReviewSubmissionCommand{SubmissionID: submission.SubmissionID, Actor: agent, Action: entities.ReviewActionApprove})
	assert.ErrorIs(t, err, domainerrors.ErrUnauthorizedActor)

	governor := entities.Principal{UserID: "gov-1", Role: entities.RoleCandidate, Position: entities.PositionGovernor, ScopeLocationID: "C-047"}
	_, err = h.review.Execute(ctx, ReviewSubmissionCommand{SubmissionID: submission.SubmissionID, Actor: governor, Action: entities.ReviewActionApprove})
	assert.ErrorIs(t, err, domainerrors.ErrOutOfScope, "a governor cannot review presidential tallies")

	president := entities.Principal{UserID: "pres-1", Role: entities.RoleCandidate, Position: entities.PositionPresident}
	updated, err := h.review.Execute(ctx, ReviewSubmissionCommand{SubmissionID: submission.SubmissionID, Actor: president, Action: entities.ReviewActionRequestRevision})
	require.NoError(t, err)
	assert.Equal(t, entities.SubmissionStatusFlagged, updated.Status)

	_, err = h.review.Execute(ctx, ReviewSubmissionCommand{SubmissionID: "missing", Actor: admin, Action: entities.ReviewActionApprove})
	assert.ErrorIs(t, err, domainerrors.ErrSubmissionNotFound)

	_, err = h.review.Execute(ctx, ReviewSubmissionCommand{SubmissionID: submission.SubmissionID, Actor: admin, Action: "escalate"})
	assert.ErrorIs(t, err, domainerrors.ErrInvalidInput)
}

func TestReviewApproveEvictsCachedAggregates(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	key := entities.AggregateKey{LocationID: "W-1", Position: entities.PositionPresident}

	lookup, err := h.cache.Lookup(ctx, key)
	require.NoError(t, err)
	require.NoError(t, h.cache.Store(ctx, key, lookup.Generation, entities.AggregatedResult{LocationID: "W-1"}))
	lookup, err = h.cache.Lookup(ctx, key)
	require.NoError(t, err)
	require.True(t, lookup.Hit)

	submission := h.mustSubmit(t, submitCommand(agent, "PS-1", exampleResult()))
	h.mustReview(t, submission.SubmissionID, entities.ReviewActionApprove)

	lookup, err = h.cache.Lookup(ctx, key)
	require.NoError(t, err)
	assert.False(t, lookup.Hit)
}
