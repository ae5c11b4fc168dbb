package postgresadapter

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"tallyhub/contexts/election-results/tally-engine/domain/entities"
	domainerrors "tallyhub/contexts/election-results/tally-engine/domain/errors"
	"tallyhub/contexts/election-results/tally-engine/ports"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Integration tests run against TEST_DATABASE_URL, or an embedded server
// when TALLYHUB_PG_TESTS=1. Otherwise they are skipped.
var testDB *gorm.DB

const embeddedPort = 54329

func TestMain(m *testing.M) {
	os.Exit(runIntegration(m))
}

func runIntegration(m *testing.M) int {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" && os.Getenv("TALLYHUB_PG_TESTS") == "1" {
		runtime, err := os.MkdirTemp("", "tallyhub-pg-*")
		if err != nil {
			fmt.Fprintln(os.Stderr, "embedded postgres runtime dir:", err)
			return 1
		}
		defer os.RemoveAll(runtime)

		server := embeddedpostgres.NewDatabase(embeddedpostgres.DefaultConfig().
			Username("postgres").
			Password("postgres").
			Database("tallyhub_test").
			Port(embeddedPort).
			RuntimePath(runtime))
		if err := server.Start(); err != nil {
			fmt.Fprintln(os.Stderr, "embedded postgres start:", err)
			return 1
		}
		defer func() {
			_ = server.Stop()
		}()
		dsn = fmt.Sprintf("host=localhost port=%d user=postgres password=postgres dbname=tallyhub_test sslmode=disable", embeddedPort)
	}

	if dsn != "" {
		db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
		if err != nil {
			fmt.Fprintln(os.Stderr, "postgres connect:", err)
			return 1
		}
		if err := EnsureSchema(context.Background(), db); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		testDB = db
	}
	return m.Run()
}

func freshDB(t *testing.T) *gorm.DB {
	t.Helper()
	if testDB == nil {
		t.Skip("set TALLYHUB_PG_TESTS=1 or TEST_DATABASE_URL to run postgres integration tests")
	}
	require.NoError(t, testDB.Exec(`TRUNCATE tally_candidate_votes, tally_results, tally_submission_reviews,
		tally_outbox, tally_event_dedup, tally_submissions, locations CASCADE`).Error)

	registry := NewLocationRegistry(testDB, nil)
	count, err := registry.ImportLocations(context.Background(), []entities.Location{
		{LocationID: "PS-1", Level: entities.LevelStation, ParentID: "W-1", Name: "Parklands Primary", RegisteredVoters: 500},
		{LocationID: "PS-2", Level: entities.LevelStation, ParentID: "W-1", Name: "Highridge", RegisteredVoters: 400},
		{LocationID: "W-1", Level: entities.LevelWard, ParentID: "CN-274", Name: "Parklands"},
		{LocationID: "CN-274", Level: entities.LevelConstituency, ParentID: "C-047", Name: "Westlands"},
		{LocationID: "C-047", Level: entities.LevelCounty, ParentID: "KE", Name: "Nairobi"},
		{LocationID: "KE", Level: entities.LevelNational, Name: "Kenya"},
	})
	require.NoError(t, err)
	require.Equal(t, 6, count)
	return testDB
}

var baseTime = time.Date(2027, 8, 9, 17, 0, 0, 0, time.UTC)

func pendingSubmission(id string, stationID string, submittedAt time.Time) entities.Submission {
	return entities.Submission{
		SubmissionID:      id,
		SubmitterID:       "agent-1",
		StationID:         stationID,
		Position:          entities.PositionPresident,
		Channel:           entities.ChannelManual,
		Status:            entities.SubmissionStatusPending,
		ConfidenceScore:   100,
		DiscrepancyFlag:   true,
		DiscrepancyReason: "suspiciously high turnout 96.00% (above 95.00%)",
		Anomalies:         []entities.AnomalyFlag{{Code: "high_turnout", Description: "suspiciously high turnout 96.00% (above 95.00%)"}},
		SubmittedAt:       submittedAt,
		UpdatedAt:         submittedAt,
		Result: entities.Result{
			RegisteredVoters:           500,
			TotalVotesCast:             480,
			ValidVotes:                 470,
			RejectedVotes:              10,
			IsValid:                    true,
			RequiresManualVerification: true,
			CandidateVotes: []entities.CandidateVote{
				{CandidateName: "A", PartyName: "P1", Votes: 300},
				{CandidateName: "B", PartyName: "P2", Votes: 170},
			},
		},
	}
}

func approve(id string, at time.Time, outboxIDs ...string) ports.ReviewTransition {
	transition := ports.ReviewTransition{
		SubmissionID:   id,
		ExpectedStatus: entities.SubmissionStatusPending,
		NextStatus:     entities.SubmissionStatusVerified,
		VerifiedAt:     &at,
		UpdatedAt:      at,
		Review: entities.SubmissionReview{
			ReviewID:     "rev-" + id,
			SubmissionID: id,
			ReviewerID:   "admin-1",
			ReviewerRole: entities.RoleAdmin,
			Action:       entities.ReviewActionApprove,
			FromStatus:   entities.SubmissionStatusPending,
			ToStatus:     entities.SubmissionStatusVerified,
			CreatedAt:    at,
		},
	}
	for _, outboxID := range outboxIDs {
		transition.Outbox = append(transition.Outbox, ports.OutboxMessage{
			OutboxID:     outboxID,
			EventType:    "tally.aggregate.invalidated",
			PartitionKey: id,
			Payload:      []byte(`{"event_id":"` + outboxID + `"}`),
			CreatedAt:    at,
		})
	}
	return transition
}

func TestLocationRegistryWalksHierarchy(t *testing.T) {
	registry := NewLocationRegistry(freshDB(t), nil)
	ctx := context.Background()

	chain, err := registry.AncestorChain(ctx, "PS-2")
	require.NoError(t, err)
	ids := make([]string, 0, len(chain))
	for _, location := range chain {
		ids = append(ids, location.LocationID)
	}
	assert.Equal(t, []string{"PS-2", "W-1", "CN-274", "C-047", "KE"}, ids)

	stations, err := registry.DescendantStations(ctx, "C-047")
	require.NoError(t, err)
	require.Len(t, stations, 2)
	assert.Equal(t, "PS-1", stations[0].LocationID)
	assert.Equal(t, int64(500), stations[0].RegisteredVoters)

	_, err = registry.GetLocation(ctx, "W-9")
	assert.ErrorIs(t, err, domainerrors.ErrLocationNotFound)
}

func TestRepositoryRoundTripsSubmission(t *testing.T) {
	repo := NewRepository(freshDB(t), nil)
	ctx := context.Background()
	want := pendingSubmission("sub-1", "PS-1", baseTime)
	require.NoError(t, repo.CreateSubmission(ctx, want))

	got, err := repo.GetSubmission(ctx, "sub-1")
	require.NoError(t, err)
	assert.Equal(t, want.Result.CandidateVotes, got.Result.CandidateVotes)
	assert.Equal(t, want.Anomalies, got.Anomalies)
	assert.True(t, got.SubmittedAt.Equal(baseTime))
	assert.Nil(t, got.VerifiedAt)

	_, err = repo.GetSubmission(ctx, "missing")
	assert.ErrorIs(t, err, domainerrors.ErrSubmissionNotFound)
}

func TestRepositoryEnforcesActiveTuple(t *testing.T) {
	repo := NewRepository(freshDB(t), nil)
	ctx := context.Background()
	require.NoError(t, repo.CreateSubmission(ctx, pendingSubmission("sub-1", "PS-1", baseTime)))

	err := repo.CreateSubmission(ctx, pendingSubmission("sub-2", "PS-1", baseTime.Add(time.Minute)))
	assert.ErrorIs(t, err, domainerrors.ErrDuplicateSubmission)

	_, err = repo.ApplyReview(ctx, ports.ReviewTransition{
		SubmissionID:   "sub-1",
		ExpectedStatus: entities.SubmissionStatusPending,
		NextStatus:     entities.SubmissionStatusFlagged,
		UpdatedAt:      baseTime.Add(2 * time.Minute),
		Review: entities.SubmissionReview{
			ReviewID: "rev-1", SubmissionID: "sub-1", ReviewerID: "admin-1", ReviewerRole: entities.RoleAdmin,
			Action: entities.ReviewActionRequestRevision, FromStatus: entities.SubmissionStatusPending,
			ToStatus: entities.SubmissionStatusFlagged, CreatedAt: baseTime.Add(2 * time.Minute),
		},
	})
	require.NoError(t, err)

	revised := pendingSubmission("sub-2", "PS-1", baseTime.Add(3*time.Minute))
	revised.SupersedesID = "sub-1"
	require.NoError(t, repo.CreateSubmission(ctx, revised))

	latest, found, err := repo.LatestForTuple(ctx, revised.Tuple())
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "sub-2", latest.SubmissionID)
	assert.Equal(t, "sub-1", latest.SupersedesID)
}

func TestRepositoryApplyReviewWritesAuditAndOutbox(t *testing.T) {
	repo := NewRepository(freshDB(t), nil)
	ctx := context.Background()
	require.NoError(t, repo.CreateSubmission(ctx, pendingSubmission("sub-1", "PS-1", baseTime)))

	at := baseTime.Add(time.Hour)
	updated, err := repo.ApplyReview(ctx, approve("sub-1", at, "evt-1", "evt-2"))
	require.NoError(t, err)
	assert.Equal(t, entities.SubmissionStatusVerified, updated.Status)
	require.NotNil(t, updated.VerifiedAt)

	_, err = repo.ApplyReview(ctx, approve("sub-1", at.Add(time.Minute)))
	assert.ErrorIs(t, err, domainerrors.ErrInvalidAction)
	_, err = repo.ApplyReview(ctx, approve("missing", at))
	assert.ErrorIs(t, err, domainerrors.ErrSubmissionNotFound)

	reviews, err := repo.ListReviews(ctx, "sub-1")
	require.NoError(t, err)
	require.Len(t, reviews, 1)
	assert.Equal(t, entities.SubmissionStatusVerified, reviews[0].ToStatus)
	assert.Error(t, testDB.Exec(`UPDATE tally_submission_reviews SET notes = 'edited'`).Error)

	pending, err := repo.ListPendingOutbox(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	require.NoError(t, repo.MarkOutboxPublished(ctx, pending[0].OutboxID, at))
	pending, err = repo.ListPendingOutbox(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
	assert.ErrorIs(t, repo.MarkOutboxPublished(ctx, "missing", at), domainerrors.ErrRepositoryInvariantBroke)

	verified, err := repo.ListVerified(ctx, entities.PositionPresident, []string{"PS-1", "PS-2"})
	require.NoError(t, err)
	require.Len(t, verified, 1)
	assert.Equal(t, int64(300), verified[0].Result.CandidateVotes[0].Votes)
}

func countRows(t *testing.T, db *gorm.DB, table string, submissionID string) int64 {
	t.Helper()
	var count int64
	require.NoError(t, db.Table(table).Where("submission_id = ?", submissionID).Count(&count).Error)
	return count
}

func TestRepositoryCreateSubmissionRollsBackOnCandidateFailure(t *testing.T) {
	db := freshDB(t)
	repo := NewRepository(db, nil)
	ctx := context.Background()
	submission := pendingSubmission("sub-1", "PS-1", baseTime)
	submission.Result.CandidateVotes = append(submission.Result.CandidateVotes,
		entities.CandidateVote{CandidateName: "A", PartyName: "P1", Votes: 0})

	err := repo.CreateSubmission(ctx, submission)
	require.ErrorIs(t, err, domainerrors.ErrInvalidInput)

	assert.Zero(t, countRows(t, db, "tally_submissions", "sub-1"))
	assert.Zero(t, countRows(t, db, "tally_results", "sub-1"))
	assert.Zero(t, countRows(t, db, "tally_candidate_votes", "sub-1"))

	// The tuple is still free.
	require.NoError(t, repo.CreateSubmission(ctx, pendingSubmission("sub-2", "PS-1", baseTime)))
}

func TestRepositoryApplyReviewRollsBackOnOutboxFailure(t *testing.T) {
	db := freshDB(t)
	repo := NewRepository(db, nil)
	ctx := context.Background()
	require.NoError(t, repo.CreateSubmission(ctx, pendingSubmission("sub-1", "PS-1", baseTime)))

	at := baseTime.Add(time.Hour)
	_, err := repo.ApplyReview(ctx, approve("sub-1", at, "evt-1", "evt-1"))
	require.ErrorIs(t, err, domainerrors.ErrRepositoryInvariantBroke)

	got, err := repo.GetSubmission(ctx, "sub-1")
	require.NoError(t, err)
	assert.Equal(t, entities.SubmissionStatusPending, got.Status)
	assert.Nil(t, got.VerifiedAt)
	assert.Zero(t, countRows(t, db, "tally_submission_reviews", "sub-1"))
	pending, err := repo.ListPendingOutbox(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	// A retry with a fresh review id goes through.
	updated, err := repo.ApplyReview(ctx, approve("sub-1", at, "evt-1"))
	require.NoError(t, err)
	assert.Equal(t, entities.SubmissionStatusVerified, updated.Status)
}

func TestRepositoryApplyReviewRollsBackOnReviewConflict(t *testing.T) {
	db := freshDB(t)
	repo := NewRepository(db, nil)
	ctx := context.Background()
	require.NoError(t, repo.CreateSubmission(ctx, pendingSubmission("sub-1", "PS-1", baseTime)))
	require.NoError(t, repo.CreateSubmission(ctx, pendingSubmission("sub-2", "PS-2", baseTime)))

	at := baseTime.Add(time.Hour)
	_, err := repo.ApplyReview(ctx, approve("sub-1", at))
	require.NoError(t, err)

	clash := approve("sub-2", at)
	clash.Review.ReviewID = "rev-sub-1"
	_, err = repo.ApplyReview(ctx, clash)
	require.ErrorIs(t, err, domainerrors.ErrRepositoryInvariantBroke)

	got, err := repo.GetSubmission(ctx, "sub-2")
	require.NoError(t, err)
	assert.Equal(t, entities.SubmissionStatusPending, got.Status)
	assert.Zero(t, countRows(t, db, "tally_submission_reviews", "sub-2"))
}

func TestRepositoryQueueAndFingerprints(t *testing.T) {
	repo := NewRepository(freshDB(t), nil)
	ctx := context.Background()
	first := pendingSubmission("sub-1", "PS-1", baseTime)
	second := pendingSubmission("sub-2", "PS-2", baseTime.Add(time.Minute))
	second.DiscrepancyFlag = false
	second.DiscrepancyReason = ""
	second.Anomalies = nil
	require.NoError(t, repo.CreateSubmission(ctx, first))
	require.NoError(t, repo.CreateSubmission(ctx, second))

	queue, err := repo.ListByStatus(ctx, ports.QueueFilter{Statuses: []entities.SubmissionStatus{entities.SubmissionStatusPending}})
	require.NoError(t, err)
	require.Len(t, queue, 2)
	assert.Equal(t, "sub-1", queue[0].SubmissionID)

	flaggedOnly, err := repo.ListByStatus(ctx, ports.QueueFilter{DiscrepancyOnly: true})
	require.NoError(t, err)
	require.Len(t, flaggedOnly, 1)

	stations, err := repo.FingerprintStations(ctx, entities.PositionPresident, "PS-1", first.Result.Fingerprint())
	require.NoError(t, err)
	assert.Equal(t, []string{"PS-2"}, stations)
}

func TestRepositoryReserveEvent(t *testing.T) {
	repo := NewRepository(freshDB(t), nil)
	ctx := context.Background()
	expires := time.Now().Add(time.Hour)

	seen, err := repo.ReserveEvent(ctx, "evt-1", "hash-a", expires)
	require.NoError(t, err)
	assert.False(t, seen)

	seen, err = repo.ReserveEvent(ctx, "evt-1", "hash-a", expires)
	require.NoError(t, err)
	assert.True(t, seen)

	_, err = repo.ReserveEvent(ctx, "evt-1", "hash-b", expires)
	assert.ErrorIs(t, err, domainerrors.ErrIdempotencyKeyConflict)

	require.NoError(t, repo.ReleaseEvent(ctx, "evt-1"))
	seen, err = repo.ReserveEvent(ctx, "evt-1", "hash-b", expires)
	require.NoError(t, err)
	assert.False(t, seen, "a released event is processed again")
}
