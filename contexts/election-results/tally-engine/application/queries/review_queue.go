package queries

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	application "tallyhub/contexts/election-results/tally-engine/application"
	"tallyhub/contexts/election-results/tally-engine/domain/entities"
	domainerrors "tallyhub/contexts/election-results/tally-engine/domain/errors"
	"tallyhub/contexts/election-results/tally-engine/ports"
)

type QueueFilter string

const (
	QueueFilterAll       QueueFilter = "all"
	QueueFilterPending   QueueFilter = "pending"
	QueueFilterFlagged   QueueFilter = "flagged"
	QueueFilterAnomalies QueueFilter = "anomalies"
)

func ParseQueueFilter(raw string) (QueueFilter, bool) {
	filter := QueueFilter(strings.ToLower(strings.TrimSpace(raw)))
	if filter == "" {
		return QueueFilterAll, true
	}
	switch filter {
	case QueueFilterAll, QueueFilterPending, QueueFilterFlagged, QueueFilterAnomalies:
		return filter, true
	default:
		return "", false
	}
}

type ReviewQueueUseCase struct {
	Repository ports.SubmissionRepository
	Logger     *slog.Logger
}

// List returns reviewable submissions: discrepancy-flagged first, then
// flagged status, then pending, newest first within each band.
func (uc ReviewQueueUseCase) List(ctx context.Context, filter QueueFilter) ([]entities.Submission, error) {
	logger := application.ResolveLogger(uc.Logger)

	var repoFilter ports.QueueFilter
	switch filter {
	case QueueFilterAll, "":
		repoFilter.Statuses = []entities.SubmissionStatus{entities.SubmissionStatusPending, entities.SubmissionStatusFlagged}
	case QueueFilterPending:
		repoFilter.Statuses = []entities.SubmissionStatus{entities.SubmissionStatusPending}
	case QueueFilterFlagged:
		repoFilter.Statuses = []entities.SubmissionStatus{entities.SubmissionStatusFlagged}
	case QueueFilterAnomalies:
		repoFilter.Statuses = []entities.SubmissionStatus{entities.SubmissionStatusPending, entities.SubmissionStatusFlagged}
		repoFilter.DiscrepancyOnly = true
	default:
		return nil, domainerrors.ErrInvalidInput
	}

	items, err := uc.Repository.ListByStatus(ctx, repoFilter)
	if err != nil {
		logger.Error("review queue list failed",
			"event", "tally_review_queue_failed",
			"module", "election-results/tally-engine",
			"layer", "application",
			"filter", string(filter),
			"error", err.Error(),
		)
		return nil, err
	}
	SortReviewQueue(items)
	return items, nil
}

// SortReviewQueue orders submissions in review priority.
func SortReviewQueue(items []entities.Submission) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.DiscrepancyFlag != b.DiscrepancyFlag {
			return a.DiscrepancyFlag
		}
		if ra, rb := statusRank(a.Status), statusRank(b.Status); ra != rb {
			return ra < rb
		}
		if !a.SubmittedAt.Equal(b.SubmittedAt) {
			return a.SubmittedAt.After(b.SubmittedAt)
		}
		return a.SubmissionID < b.SubmissionID
	})
}

func statusRank(status entities.SubmissionStatus) int {
	switch status {
	case entities.SubmissionStatusFlagged:
		return 0
	case entities.SubmissionStatusPending:
		return 1
	default:
		return 2
	}
}
