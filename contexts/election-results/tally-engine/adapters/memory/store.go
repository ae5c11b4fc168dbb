package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"tallyhub/contexts/election-results/tally-engine/domain/entities"
	domainerrors "tallyhub/contexts/election-results/tally-engine/domain/errors"
	"tallyhub/contexts/election-results/tally-engine/domain/services"
	"tallyhub/contexts/election-results/tally-engine/ports"
	"tallyhub/internal/shared/outbox"

	"github.com/google/uuid"
)

type outboxRow struct {
	message     ports.OutboxMessage
	status      string
	publishedAt *time.Time
}

type dedupRow struct {
	payloadHash string
	expiresAt   time.Time
}

// Store is the in-memory submission repository. A single mutex makes every
// write atomic and every read a consistent snapshot.
type Store struct {
	mu sync.RWMutex

	submissions map[string]entities.Submission
	reviews     map[string][]entities.SubmissionReview
	outbox      []outboxRow
	dedup       map[string]dedupRow
}

func NewStore(seed []entities.Submission) *Store {
	submissions := make(map[string]entities.Submission, len(seed))
	for _, item := range seed {
		submissions[item.SubmissionID] = cloneSubmission(item)
	}
	return &Store{
		submissions: submissions,
		reviews:     make(map[string][]entities.SubmissionReview),
		dedup:       make(map[string]dedupRow),
	}
}

func (s *Store) CreateSubmission(_ context.Context, submission entities.Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.submissions[submission.SubmissionID]; exists {
		return domainerrors.ErrRepositoryInvariantBroke
	}
	if _, dup := services.DuplicateCandidate(submission.Result.CandidateVotes); dup {
		return domainerrors.ErrInvalidInput
	}
	tuple := submission.Tuple()
	for _, existing := range s.submissions {
		if existing.Tuple() == tuple && existing.Status.HoldsTuple() {
			return domainerrors.ErrDuplicateSubmission
		}
	}
	s.submissions[submission.SubmissionID] = cloneSubmission(submission)
	return nil
}

func (s *Store) GetSubmission(_ context.Context, submissionID string) (entities.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, exists := s.submissions[strings.TrimSpace(submissionID)]
	if !exists {
		return entities.Submission{}, domainerrors.ErrSubmissionNotFound
	}
	return cloneSubmission(item), nil
}

func (s *Store) LatestForTuple(_ context.Context, tuple entities.SubmissionTuple) (entities.Submission, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		latest entities.Submission
		found  bool
	)
	for _, item := range s.submissions {
		if item.Tuple() != tuple {
			continue
		}
		if !found || item.SubmittedAt.After(latest.SubmittedAt) ||
			(item.SubmittedAt.Equal(latest.SubmittedAt) && item.SubmissionID > latest.SubmissionID) {
			latest = item
			found = true
		}
	}
	if !found {
		return entities.Submission{}, false, nil
	}
	return cloneSubmission(latest), true, nil
}

func (s *Store) ApplyReview(_ context.Context, transition ports.ReviewTransition) (entities.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, exists := s.submissions[transition.SubmissionID]
	if !exists {
		return entities.Submission{}, domainerrors.ErrSubmissionNotFound
	}
	if item.Status != transition.ExpectedStatus {
		return entities.Submission{}, domainerrors.ErrInvalidAction
	}
	if transition.NextStatus.HoldsTuple() && !item.Status.HoldsTuple() {
		tuple := item.Tuple()
		for id, other := range s.submissions {
			if id != item.SubmissionID && other.Tuple() == tuple && other.Status.HoldsTuple() {
				return entities.Submission{}, domainerrors.ErrDuplicateSubmission
			}
		}
	}
	for _, message := range transition.Outbox {
		for _, row := range s.outbox {
			if row.message.OutboxID == message.OutboxID {
				return entities.Submission{}, domainerrors.ErrRepositoryInvariantBroke
			}
		}
	}

	item.Status = transition.NextStatus
	item.UpdatedAt = transition.UpdatedAt.UTC()
	if transition.VerifiedAt != nil {
		verifiedAt := transition.VerifiedAt.UTC()
		item.VerifiedAt = &verifiedAt
	}
	s.submissions[item.SubmissionID] = item
	s.reviews[item.SubmissionID] = append(s.reviews[item.SubmissionID], transition.Review)
	for _, message := range transition.Outbox {
		message.Payload = append([]byte(nil), message.Payload...)
		s.outbox = append(s.outbox, outboxRow{message: message, status: outbox.StatusPending})
	}
	return cloneSubmission(item), nil
}

func (s *Store) ListReviews(_ context.Context, submissionID string) ([]entities.SubmissionReview, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]entities.SubmissionReview(nil), s.reviews[submissionID]...), nil
}

func (s *Store) ListByStatus(_ context.Context, filter ports.QueueFilter) ([]entities.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]entities.Submission, 0, len(s.submissions))
	for _, item := range s.submissions {
		if !statusIn(item.Status, filter.Statuses) {
			continue
		}
		if filter.DiscrepancyOnly && !item.DiscrepancyFlag {
			continue
		}
		items = append(items, cloneSubmission(item))
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].SubmissionID < items[j].SubmissionID
	})
	return items, nil
}

func (s *Store) ListVerified(_ context.Context, position entities.Position, stationIDs []string) ([]entities.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wanted := make(map[string]struct{}, len(stationIDs))
	for _, id := range stationIDs {
		wanted[id] = struct{}{}
	}
	items := make([]entities.Submission, 0)
	for _, item := range s.submissions {
		if item.Status != entities.SubmissionStatusVerified || item.Position != position {
			continue
		}
		if _, ok := wanted[item.StationID]; !ok {
			continue
		}
		items = append(items, cloneSubmission(item))
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].SubmissionID < items[j].SubmissionID
	})
	return items, nil
}

func (s *Store) FingerprintStations(
	_ context.Context,
	position entities.Position,
	excludeStationID string,
	fingerprint entities.ResultFingerprint,
) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := map[string]struct{}{}
	stations := make([]string, 0)
	for _, item := range s.submissions {
		if item.Position != position || item.StationID == excludeStationID {
			continue
		}
		if item.Status == entities.SubmissionStatusRejected || item.Result.Fingerprint() != fingerprint {
			continue
		}
		if _, ok := seen[item.StationID]; ok {
			continue
		}
		seen[item.StationID] = struct{}{}
		stations = append(stations, item.StationID)
	}
	sort.Strings(stations)
	return stations, nil
}

func (s *Store) ListPendingOutbox(_ context.Context, limit int) ([]ports.OutboxMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}
	items := make([]ports.OutboxMessage, 0, limit)
	for _, row := range s.outbox {
		if row.status != outbox.StatusPending {
			continue
		}
		items = append(items, row.message)
		if len(items) == limit {
			break
		}
	}
	return items, nil
}

func (s *Store) MarkOutboxPublished(_ context.Context, outboxID string, publishedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.outbox {
		if s.outbox[i].message.OutboxID != outboxID {
			continue
		}
		at := publishedAt.UTC()
		s.outbox[i].status = outbox.StatusPublished
		s.outbox[i].publishedAt = &at
		return nil
	}
	return domainerrors.ErrRepositoryInvariantBroke
}

func (s *Store) ReserveEvent(_ context.Context, eventID string, payloadHash string, expiresAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if existing, ok := s.dedup[eventID]; ok && existing.expiresAt.After(now) {
		if existing.payloadHash != payloadHash {
			return false, domainerrors.ErrIdempotencyKeyConflict
		}
		return true, nil
	}
	s.dedup[eventID] = dedupRow{payloadHash: payloadHash, expiresAt: expiresAt.UTC()}
	return false, nil
}

func (s *Store) ReleaseEvent(_ context.Context, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.dedup, eventID)
	return nil
}

func (s *Store) Now() time.Time {
	return time.Now().UTC()
}

func (s *Store) NewID(_ context.Context) (string, error) {
	return uuid.NewString(), nil
}

func statusIn(status entities.SubmissionStatus, statuses []entities.SubmissionStatus) bool {
	if len(statuses) == 0 {
		return true
	}
	for _, candidate := range statuses {
		if candidate == status {
			return true
		}
	}
	return false
}

func cloneSubmission(item entities.Submission) entities.Submission {
	item.Anomalies = append([]entities.AnomalyFlag(nil), item.Anomalies...)
	item.Result.ValidationErrors = append([]entities.RuleViolation(nil), item.Result.ValidationErrors...)
	item.Result.CandidateVotes = append([]entities.CandidateVote(nil), item.Result.CandidateVotes...)
	if item.VerifiedAt != nil {
		verifiedAt := *item.VerifiedAt
		item.VerifiedAt = &verifiedAt
	}
	return item
}
