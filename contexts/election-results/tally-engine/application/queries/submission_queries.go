package queries

import (
	"context"
	"strings"

	"tallyhub/contexts/election-results/tally-engine/domain/entities"
	domainerrors "tallyhub/contexts/election-results/tally-engine/domain/errors"
	"tallyhub/contexts/election-results/tally-engine/ports"
)

type SubmissionQueryUseCase struct {
	Repository ports.SubmissionRepository
}

func (uc SubmissionQueryUseCase) GetSubmission(ctx context.Context, submissionID string) (entities.Submission, error) {
	submissionID = strings.TrimSpace(submissionID)
	if submissionID == "" {
		return entities.Submission{}, domainerrors.ErrInvalidInput
	}
	return uc.Repository.GetSubmission(ctx, submissionID)
}

// ListReviews returns the audit trail of a submission in the order it was written.
func (uc SubmissionQueryUseCase) ListReviews(ctx context.Context, submissionID string) ([]entities.SubmissionReview, error) {
	submission, err := uc.GetSubmission(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	return uc.Repository.ListReviews(ctx, submission.SubmissionID)
}
