package ports

import (
	"context"
	"time"

	"tallyhub/contexts/election-results/tally-engine/domain/entities"
	"tallyhub/internal/shared/events"
	"tallyhub/internal/shared/outbox"
)

// SubmissionRepository owns submissions, their results, candidate votes and
// the review ledger. Every mutating method is atomic.
type SubmissionRepository interface {
	// CreateSubmission writes the submission, its result and candidate votes
	// together. A second pending or verified row for the same tuple fails
	// with ErrDuplicateSubmission.
	CreateSubmission(ctx context.Context, submission entities.Submission) error
	GetSubmission(ctx context.Context, submissionID string) (entities.Submission, error)
	// LatestForTuple returns the most recent submission for the tuple, if any.
	LatestForTuple(ctx context.Context, tuple entities.SubmissionTuple) (entities.Submission, bool, error)
	// ApplyReview moves a submission from ExpectedStatus to NextStatus,
	// appends the review row and the outbox rows. A status that changed
	// underneath fails with ErrInvalidAction and nothing is written.
	ApplyReview(ctx context.Context, transition ReviewTransition) (entities.Submission, error)
	ListReviews(ctx context.Context, submissionID string) ([]entities.SubmissionReview, error)
	ListByStatus(ctx context.Context, filter QueueFilter) ([]entities.Submission, error)
	// ListVerified returns verified submissions with results for the given
	// stations and position.
	ListVerified(ctx context.Context, position entities.Position, stationIDs []string) ([]entities.Submission, error)
	// FingerprintStations returns distinct stations other than excludeStationID
	// holding a non-rejected submission with the same result triple.
	FingerprintStations(
		ctx context.Context,
		position entities.Position,
		excludeStationID string,
		fingerprint entities.ResultFingerprint,
	) ([]string, error)
}

type QueueFilter struct {
	Statuses        []entities.SubmissionStatus
	DiscrepancyOnly bool
}

type ReviewTransition struct {
	SubmissionID   string
	ExpectedStatus entities.SubmissionStatus
	NextStatus     entities.SubmissionStatus
	VerifiedAt     *time.Time
	UpdatedAt      time.Time
	Review         entities.SubmissionReview
	Outbox         []OutboxMessage
}

// LocationRegistry is the read-only electoral geography.
type LocationRegistry interface {
	GetLocation(ctx context.Context, locationID string) (entities.Location, error)
	// AncestorChain returns the location itself followed by its parents up to the national root.
	AncestorChain(ctx context.Context, locationID string) ([]entities.Location, error)
	// DescendantStations returns every station at or beneath the location, ordered by id.
	DescendantStations(ctx context.Context, locationID string) ([]entities.Location, error)
}

// CacheLookup reports the current generation of a key even on a miss;
// fills must be written back under that generation.
type CacheLookup struct {
	Generation uint64
	Value      entities.AggregatedResult
	Hit        bool
}

// AggregateCache memoizes aggregates. Invalidate bumps the generation so
// fills computed before the bump are never served.
type AggregateCache interface {
	Lookup(ctx context.Context, key entities.AggregateKey) (CacheLookup, error)
	Store(ctx context.Context, key entities.AggregateKey, generation uint64, value entities.AggregatedResult) error
	Invalidate(ctx context.Context, keys []entities.AggregateKey) error
}

// EvidenceStore confirms that an uploaded evidence reference exists.
type EvidenceStore interface {
	Exists(ctx context.Context, ref string) (bool, error)
}

type Clock interface {
	Now() time.Time
}

type IDGenerator interface {
	NewID(ctx context.Context) (string, error)
}

type OutboxMessage = outbox.Message

type OutboxRepository interface {
	ListPendingOutbox(ctx context.Context, limit int) ([]OutboxMessage, error)
	MarkOutboxPublished(ctx context.Context, outboxID string, publishedAt time.Time) error
}

// EventDedupStore provides idempotent processing guarantees for consumed events.
type EventDedupStore interface {
	ReserveEvent(ctx context.Context, eventID string, payloadHash string, expiresAt time.Time) (bool, error)
	// ReleaseEvent drops a reservation so a redelivery is processed again.
	ReleaseEvent(ctx context.Context, eventID string) error
}

type EventEnvelope = events.Envelope

type EventPublisher interface {
	Publish(ctx context.Context, topic string, event EventEnvelope) error
}

type EventSubscriber interface {
	Subscribe(
		ctx context.Context,
		topic string,
		consumerGroup string,
		handler func(context.Context, EventEnvelope) error,
	) error
}

// Lease is a held distributed lock.
type Lease interface {
	Release(ctx context.Context) error
}

// LeaseLocker hands out short exclusive leases. Obtain returns
// domainerrors.ErrLeaseNotObtained when another holder owns the key.
type LeaseLocker interface {
	Obtain(ctx context.Context, key string, ttl time.Duration) (Lease, error)
}
