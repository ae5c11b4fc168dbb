package httpadapter

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	xlsxadapter "tallyhub/contexts/election-results/tally-engine/adapters/xlsx"
	"tallyhub/contexts/election-results/tally-engine/application/commands"
	"tallyhub/contexts/election-results/tally-engine/application/queries"
	"tallyhub/contexts/election-results/tally-engine/domain/entities"
	domainerrors "tallyhub/contexts/election-results/tally-engine/domain/errors"
	httptransport "tallyhub/contexts/election-results/tally-engine/transport/http"
)

type Handler struct {
	Submit      commands.SubmitTallyUseCase
	Review      commands.ReviewSubmissionUseCase
	Submissions queries.SubmissionQueryUseCase
	Queue       queries.ReviewQueueUseCase
	Aggregates  queries.AggregateUseCase
	Logger      *slog.Logger
}

func (h Handler) SubmitTallyHandler(
	ctx context.Context,
	actor entities.Principal,
	req httptransport.SubmitTallyRequest,
) (httptransport.SubmissionResponse, error) {
	if err := httptransport.Validate(req); err != nil {
		return httptransport.SubmissionResponse{}, err
	}
	position, ok := entities.ParsePosition(req.Position)
	if !ok {
		return httptransport.SubmissionResponse{}, fmt.Errorf("position %q: %w", req.Position, domainerrors.ErrInvalidInput)
	}
	channel, ok := entities.ParseChannel(req.Channel)
	if !ok {
		return httptransport.SubmissionResponse{}, fmt.Errorf("channel %q: %w", req.Channel, domainerrors.ErrInvalidInput)
	}

	votes := make([]entities.CandidateVote, 0, len(req.CandidateVotes))
	for _, vote := range req.CandidateVotes {
		votes = append(votes, entities.CandidateVote{
			CandidateName: vote.CandidateName,
			PartyName:     vote.PartyName,
			Votes:         vote.Votes,
		})
	}
	submission, err := h.Submit.Execute(ctx, commands.SubmitTallyCommand{
		Actor:       actor,
		StationID:   req.StationID,
		Position:    position,
		Channel:     channel,
		EvidenceRef: req.EvidenceRef,
		Result: entities.Result{
			RegisteredVoters: req.RegisteredVoters,
			TotalVotesCast:   req.TotalVotesCast,
			ValidVotes:       req.ValidVotes,
			RejectedVotes:    req.RejectedVotes,
			CandidateVotes:   votes,
		},
	})
	if err != nil {
		return httptransport.SubmissionResponse{}, err
	}
	return mapSubmission(submission), nil
}

func (h Handler) GetSubmissionHandler(ctx context.Context, submissionID string) (httptransport.SubmissionResponse, error) {
	submission, err := h.Submissions.GetSubmission(ctx, submissionID)
	if err != nil {
		return httptransport.SubmissionResponse{}, err
	}
	return mapSubmission(submission), nil
}

func (h Handler) ReviewSubmissionHandler(
	ctx context.Context,
	actor entities.Principal,
	submissionID string,
	req httptransport.ReviewRequest,
) (httptransport.SubmissionResponse, error) {
	if err := httptransport.Validate(req); err != nil {
		return httptransport.SubmissionResponse{}, err
	}
	submission, err := h.Review.Execute(ctx, commands.ReviewSubmissionCommand{
		SubmissionID: submissionID,
		Actor:        actor,
		Action:       entities.ReviewAction(req.Action),
		Notes:        req.Notes,
	})
	if err != nil {
		return httptransport.SubmissionResponse{}, err
	}
	return mapSubmission(submission), nil
}

func (h Handler) ListReviewsHandler(ctx context.Context, submissionID string) (httptransport.ReviewListResponse, error) {
	reviews, err := h.Submissions.ListReviews(ctx, submissionID)
	if err != nil {
		return httptransport.ReviewListResponse{}, err
	}
	items := make([]httptransport.ReviewResponse, 0, len(reviews))
	for _, review := range reviews {
		items = append(items, httptransport.ReviewResponse{
			ReviewID:     review.ReviewID,
			SubmissionID: review.SubmissionID,
			ReviewerID:   review.ReviewerID,
			ReviewerRole: string(review.ReviewerRole),
			Action:       string(review.Action),
			FromStatus:   string(review.FromStatus),
			ToStatus:     string(review.ToStatus),
			Notes:        review.Notes,
			CreatedAt:    review.CreatedAt,
		})
	}
	return httptransport.ReviewListResponse{SubmissionID: submissionID, Items: items}, nil
}

func (h Handler) ReviewQueueHandler(ctx context.Context, rawFilter string) (httptransport.ReviewQueueResponse, error) {
	filter, ok := queries.ParseQueueFilter(rawFilter)
	if !ok {
		return httptransport.ReviewQueueResponse{}, fmt.Errorf("filter %q: %w", rawFilter, domainerrors.ErrInvalidInput)
	}
	items, err := h.Queue.List(ctx, filter)
	if err != nil {
		return httptransport.ReviewQueueResponse{}, err
	}
	response := httptransport.ReviewQueueResponse{
		Filter: string(filter),
		Items:  make([]httptransport.SubmissionResponse, 0, len(items)),
	}
	for _, item := range items {
		response.Items = append(response.Items, mapSubmission(item))
	}
	return response, nil
}

func (h Handler) AggregateHandler(
	ctx context.Context,
	locationID string,
	level string,
	position string,
) (httptransport.AggregateResponse, error) {
	aggregate, err := h.aggregate(ctx, locationID, level, position)
	if err != nil {
		return httptransport.AggregateResponse{}, err
	}
	return mapAggregate(aggregate), nil
}

// ExportAggregateHandler writes the aggregate as an XLSX workbook.
func (h Handler) ExportAggregateHandler(
	ctx context.Context,
	w io.Writer,
	locationID string,
	level string,
	position string,
) error {
	aggregate, err := h.aggregate(ctx, locationID, level, position)
	if err != nil {
		return err
	}
	return xlsxadapter.WriteAggregate(w, aggregate)
}

func (h Handler) aggregate(ctx context.Context, locationID string, rawLevel string, rawPosition string) (entities.AggregatedResult, error) {
	level, ok := entities.ParseLocationLevel(rawLevel)
	if !ok {
		return entities.AggregatedResult{}, fmt.Errorf("level %q: %w", rawLevel, domainerrors.ErrInvalidInput)
	}
	position, ok := entities.ParsePosition(rawPosition)
	if !ok {
		return entities.AggregatedResult{}, fmt.Errorf("position %q: %w", rawPosition, domainerrors.ErrInvalidInput)
	}
	return h.Aggregates.Get(ctx, queries.AggregateQuery{
		LocationID: locationID,
		Level:      level,
		Position:   position,
	})
}

func mapSubmission(submission entities.Submission) httptransport.SubmissionResponse {
	result := submission.Result
	violations := make([]httptransport.RuleViolationResponse, 0, len(result.ValidationErrors))
	for _, violation := range result.ValidationErrors {
		violations = append(violations, httptransport.RuleViolationResponse{
			Rule:       violation.Rule,
			Message:    violation.Message,
			Difference: violation.Difference,
		})
	}
	votes := make([]httptransport.CandidateVoteResponse, 0, len(result.CandidateVotes))
	for _, vote := range result.CandidateVotes {
		votes = append(votes, httptransport.CandidateVoteResponse{
			CandidateName: vote.CandidateName,
			PartyName:     vote.PartyName,
			Votes:         vote.Votes,
		})
	}
	anomalies := make([]httptransport.AnomalyResponse, 0, len(submission.Anomalies))
	for _, flag := range submission.Anomalies {
		anomalies = append(anomalies, httptransport.AnomalyResponse{
			Code:        flag.Code,
			Description: flag.Description,
		})
	}
	return httptransport.SubmissionResponse{
		SubmissionID:      submission.SubmissionID,
		SubmitterID:       submission.SubmitterID,
		StationID:         submission.StationID,
		Position:          string(submission.Position),
		Channel:           string(submission.Channel),
		Status:            string(submission.Status),
		ConfidenceScore:   submission.ConfidenceScore,
		DiscrepancyFlag:   submission.DiscrepancyFlag,
		DiscrepancyReason: submission.DiscrepancyReason,
		Anomalies:         anomalies,
		EvidenceRef:       submission.EvidenceRef,
		SupersedesID:      submission.SupersedesID,
		SubmittedAt:       submission.SubmittedAt,
		VerifiedAt:        submission.VerifiedAt,
		UpdatedAt:         submission.UpdatedAt,
		Result: httptransport.ResultResponse{
			RegisteredVoters:           result.RegisteredVoters,
			TotalVotesCast:             result.TotalVotesCast,
			ValidVotes:                 result.ValidVotes,
			RejectedVotes:              result.RejectedVotes,
			IsValid:                    result.IsValid,
			ValidationErrors:           violations,
			RequiresManualVerification: result.RequiresManualVerification,
			CandidateVotes:             votes,
		},
	}
}

func mapAggregate(aggregate entities.AggregatedResult) httptransport.AggregateResponse {
	candidates := make([]httptransport.CandidateTotalResponse, 0, len(aggregate.Candidates))
	for _, candidate := range aggregate.Candidates {
		candidates = append(candidates, httptransport.CandidateTotalResponse{
			CandidateName: candidate.CandidateName,
			PartyName:     candidate.PartyName,
			Votes:         candidate.Votes,
			Percentage:    candidate.Percentage,
		})
	}
	return httptransport.AggregateResponse{
		LocationID:            aggregate.LocationID,
		Level:                 string(aggregate.Level),
		Position:              string(aggregate.Position),
		StationsReporting:     aggregate.StationsReporting,
		TotalStations:         aggregate.TotalStations,
		TurnoutPercentage:     aggregate.TurnoutPercentage,
		TotalRegisteredVoters: aggregate.TotalRegisteredVoters,
		TotalVotesCast:        aggregate.TotalVotesCast,
		TotalValidVotes:       aggregate.TotalValidVotes,
		TotalRejectedVotes:    aggregate.TotalRejectedVotes,
		Candidates:            candidates,
	}
}
