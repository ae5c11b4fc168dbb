package commands

import (
	"context"
	"log/slog"
	"strings"
	"time"

	application "tallyhub/contexts/election-results/tally-engine/application"
	"tallyhub/contexts/election-results/tally-engine/domain/entities"
	domainerrors "tallyhub/contexts/election-results/tally-engine/domain/errors"
	"tallyhub/contexts/election-results/tally-engine/domain/services"
	"tallyhub/contexts/election-results/tally-engine/ports"
)

type ReviewSubmissionCommand struct {
	SubmissionID string
	Actor        entities.Principal
	Action       entities.ReviewAction
	Notes        string
}

type ReviewSubmissionUseCase struct {
	Repository ports.SubmissionRepository
	Locations  ports.LocationRegistry
	// Cache is optional. Approval evicts it directly after commit; the outbox
	// event covers other processes and failed evictions.
	Cache  ports.AggregateCache
	Clock  ports.Clock
	IDGen  ports.IDGenerator
	Logger *slog.Logger
}

func (uc ReviewSubmissionUseCase) Execute(ctx context.Context, cmd ReviewSubmissionCommand) (entities.Submission, error) {
	logger := application.ResolveLogger(uc.Logger)

	action, ok := entities.ParseReviewAction(string(cmd.Action))
	if !ok {
		return entities.Submission{}, domainerrors.ErrInvalidInput
	}
	submission, err := uc.Repository.GetSubmission(ctx, strings.TrimSpace(cmd.SubmissionID))
	if err != nil {
		return entities.Submission{}, err
	}
	chain, err := uc.Locations.AncestorChain(ctx, submission.StationID)
	if err != nil {
		return entities.Submission{}, err
	}

	actor := normalizePrincipal(cmd.Actor)
	if err := services.AuthorizeReview(actor, submission.Position, chain); err != nil {
		logger.Warn("submission review denied",
			"event", "tally_review_denied",
			"module", "election-results/tally-engine",
			"layer", "application",
			"submission_id", submission.SubmissionID,
			"actor_id", actor.UserID,
			"actor_role", string(actor.Role),
			"error", err.Error(),
		)
		return entities.Submission{}, err
	}

	next, ok := action.NextStatus(submission.Status)
	if !ok {
		return entities.Submission{}, domainerrors.ErrInvalidAction
	}

	now := uc.Clock.Now().UTC()
	reviewID, err := uc.IDGen.NewID(ctx)
	if err != nil {
		return entities.Submission{}, err
	}
	review := entities.SubmissionReview{
		ReviewID:     reviewID,
		SubmissionID: submission.SubmissionID,
		ReviewerID:   actor.UserID,
		ReviewerRole: actor.Role,
		Action:       action,
		FromStatus:   submission.Status,
		ToStatus:     next,
		Notes:        strings.TrimSpace(cmd.Notes),
		CreatedAt:    now,
	}
	transition := ports.ReviewTransition{
		SubmissionID:   submission.SubmissionID,
		ExpectedStatus: submission.Status,
		NextStatus:     next,
		UpdatedAt:      now,
		Review:         review,
	}

	reviewedEvent, err := uc.newEvent(ctx, application.TopicSubmissionReviewed, submission.SubmissionID, now, application.SubmissionReviewedPayload{
		SubmissionID: submission.SubmissionID,
		StationID:    submission.StationID,
		Position:     submission.Position,
		ReviewID:     reviewID,
		ReviewerID:   actor.UserID,
		Action:       action,
		FromStatus:   submission.Status,
		ToStatus:     next,
	})
	if err != nil {
		return entities.Submission{}, err
	}
	transition.Outbox = append(transition.Outbox, reviewedEvent)

	var invalidated []entities.AggregateKey
	if next == entities.SubmissionStatusVerified {
		transition.VerifiedAt = &now
		invalidated = application.InvalidationKeys(chain, submission.Position)
		invalidationEvent, err := uc.newEvent(ctx, application.TopicAggregateInvalidated, submission.SubmissionID, now, application.AggregateInvalidatedPayload{
			SubmissionID: submission.SubmissionID,
			StationID:    submission.StationID,
			Keys:         invalidated,
		})
		if err != nil {
			return entities.Submission{}, err
		}
		transition.Outbox = append(transition.Outbox, invalidationEvent)
	}

	updated, err := uc.Repository.ApplyReview(ctx, transition)
	if err != nil {
		logger.Error("submission review persist failed",
			"event", "tally_review_persist_failed",
			"module", "election-results/tally-engine",
			"layer", "application",
			"submission_id", submission.SubmissionID,
			"action", string(action),
			"error", err.Error(),
		)
		return entities.Submission{}, err
	}

	if len(invalidated) > 0 && uc.Cache != nil {
		if err := uc.Cache.Invalidate(ctx, invalidated); err != nil {
			logger.Warn("aggregate cache eviction deferred to outbox",
				"event", "tally_aggregate_eviction_deferred",
				"module", "election-results/tally-engine",
				"layer", "application",
				"submission_id", submission.SubmissionID,
				"error", err.Error(),
			)
		}
	}

	logger.Info("submission reviewed",
		"event", "tally_submission_reviewed",
		"module", "election-results/tally-engine",
		"layer", "application",
		"submission_id", updated.SubmissionID,
		"review_id", reviewID,
		"action", string(action),
		"from_status", string(review.FromStatus),
		"to_status", string(updated.Status),
		"invalidated_keys", len(invalidated),
	)
	return updated, nil
}

func (uc ReviewSubmissionUseCase) newEvent(
	ctx context.Context,
	eventType string,
	submissionID string,
	now time.Time,
	data any,
) (ports.OutboxMessage, error) {
	eventID, err := uc.IDGen.NewID(ctx)
	if err != nil {
		return ports.OutboxMessage{}, err
	}
	envelope, err := application.NewEnvelope(eventID, eventType, "submission_id", submissionID, now.UTC(), data)
	if err != nil {
		return ports.OutboxMessage{}, err
	}
	return application.NewOutboxMessage(envelope)
}
