package queries

import (
	"context"
	"testing"
	"time"

	"tallyhub/contexts/election-results/tally-engine/adapters/memory"
	"tallyhub/contexts/election-results/tally-engine/domain/entities"
	domainerrors "tallyhub/contexts/election-results/tally-engine/domain/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func queued(id string, status entities.SubmissionStatus, discrepancy bool, submittedAt time.Time) entities.Submission {
	return entities.Submission{
		SubmissionID:    id,
		SubmitterID:     "agent-" + id,
		StationID:       "PS-" + id,
		Position:        entities.PositionPresident,
		Channel:         entities.ChannelManual,
		Status:          status,
		DiscrepancyFlag: discrepancy,
		SubmittedAt:     submittedAt,
		UpdatedAt:       submittedAt,
	}
}

func ids(items []entities.Submission) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.SubmissionID)
	}
	return out
}

func TestReviewQueueOrderingAndFilters(t *testing.T) {
	seed := []entities.Submission{
		queued("p-old", entities.SubmissionStatusPending, false, baseTime),
		queued("p-new", entities.SubmissionStatusPending, false, baseTime.Add(time.Hour)),
		queued("f-old", entities.SubmissionStatusFlagged, false, baseTime),
		queued("pd", entities.SubmissionStatusPending, true, baseTime.Add(2*time.Hour)),
		queued("fd", entities.SubmissionStatusFlagged, true, baseTime),
		queued("v", entities.SubmissionStatusVerified, true, baseTime),
		queued("r", entities.SubmissionStatusRejected, false, baseTime),
	}
	uc := ReviewQueueUseCase{Repository: memory.NewStore(seed)}
	ctx := context.Background()

	cases := map[QueueFilter][]string{
		QueueFilterAll:       {"fd", "pd", "f-old", "p-new", "p-old"},
		QueueFilterPending:   {"pd", "p-new", "p-old"},
		QueueFilterFlagged:   {"fd", "f-old"},
		QueueFilterAnomalies: {"fd", "pd"},
	}
	for filter, want := range cases {
		items, err := uc.List(ctx, filter)
		require.NoError(t, err)
		assert.Equal(t, want, ids(items), string(filter))
	}

	_, err := uc.List(ctx, "stale")
	assert.ErrorIs(t, err, domainerrors.ErrInvalidInput)
}

func TestParseQueueFilter(t *testing.T) {
	filter, ok := ParseQueueFilter("")
	assert.True(t, ok)
	assert.Equal(t, QueueFilterAll, filter)

	filter, ok = ParseQueueFilter(" Anomalies ")
	assert.True(t, ok)
	assert.Equal(t, QueueFilterAnomalies, filter)

	_, ok = ParseQueueFilter("verified")
	assert.False(t, ok)
}
