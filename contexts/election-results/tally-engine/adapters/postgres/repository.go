package postgresadapter

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"tallyhub/contexts/election-results/tally-engine/domain/entities"
	domainerrors "tallyhub/contexts/election-results/tally-engine/domain/errors"
	"tallyhub/contexts/election-results/tally-engine/ports"
	"tallyhub/internal/shared/outbox"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const activeTupleConstraint = "tally_submissions_active_tuple"

// Repository persists submissions, reviews and the outbox in Postgres.
type Repository struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewRepository(db *gorm.DB, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{
		db:     db,
		logger: logger,
	}
}

func (r *Repository) CreateSubmission(ctx context.Context, submission entities.Submission) error {
	row, resultRow, voteRows, err := submissionModelsFromEntity(submission)
	if err != nil {
		return err
	}

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&row).Error; err != nil {
			if isUniqueViolation(err) {
				if constraintName(err) == activeTupleConstraint {
					return domainerrors.ErrDuplicateSubmission
				}
				return domainerrors.ErrRepositoryInvariantBroke
			}
			return err
		}
		if err := tx.Create(&resultRow).Error; err != nil {
			return err
		}
		if len(voteRows) > 0 {
			if err := tx.Create(&voteRows).Error; err != nil {
				if isUniqueViolation(err) {
					return domainerrors.ErrInvalidInput
				}
				return err
			}
		}
		return nil
	})
	if err != nil && !errors.Is(err, domainerrors.ErrDuplicateSubmission) {
		r.logError("tally_submission_create_failed", err, "submission_id", submission.SubmissionID)
	}
	return err
}

func (r *Repository) GetSubmission(ctx context.Context, submissionID string) (entities.Submission, error) {
	var items []entities.Submission
	err := r.readTx(ctx, func(tx *gorm.DB) error {
		var err error
		items, err = loadSubmissions(tx, tx.Where("submission_id = ?", submissionID))
		return err
	})
	if err != nil {
		return entities.Submission{}, err
	}
	if len(items) == 0 {
		return entities.Submission{}, domainerrors.ErrSubmissionNotFound
	}
	return items[0], nil
}

func (r *Repository) LatestForTuple(ctx context.Context, tuple entities.SubmissionTuple) (entities.Submission, bool, error) {
	var items []entities.Submission
	err := r.readTx(ctx, func(tx *gorm.DB) error {
		var err error
		items, err = loadSubmissions(tx, tx.
			Where("submitter_id = ? AND station_id = ? AND position = ? AND channel = ?",
				tuple.SubmitterID, tuple.StationID, string(tuple.Position), string(tuple.Channel)).
			Order(clause.OrderByColumn{Column: clause.Column{Name: "submitted_at"}, Desc: true}).
			Order(clause.OrderByColumn{Column: clause.Column{Name: "submission_id"}, Desc: true}).
			Limit(1))
		return err
	})
	if err != nil {
		return entities.Submission{}, false, err
	}
	if len(items) == 0 {
		return entities.Submission{}, false, nil
	}
	return items[0], true, nil
}

func (r *Repository) ApplyReview(ctx context.Context, transition ports.ReviewTransition) (entities.Submission, error) {
	var updated entities.Submission
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]any{
			"status":     string(transition.NextStatus),
			"updated_at": transition.UpdatedAt.UTC(),
		}
		if transition.VerifiedAt != nil {
			updates["verified_at"] = transition.VerifiedAt.UTC()
		}
		result := tx.Model(&submissionModel{}).
			Where("submission_id = ? AND status = ?", transition.SubmissionID, string(transition.ExpectedStatus)).
			Updates(updates)
		if result.Error != nil {
			if isUniqueViolation(result.Error) && constraintName(result.Error) == activeTupleConstraint {
				return domainerrors.ErrDuplicateSubmission
			}
			return result.Error
		}
		if result.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&submissionModel{}).Where("submission_id = ?", transition.SubmissionID).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return domainerrors.ErrSubmissionNotFound
			}
			return domainerrors.ErrInvalidAction
		}

		review := reviewModelFromEntity(transition.Review)
		if err := tx.Create(&review).Error; err != nil {
			if isUniqueViolation(err) {
				return domainerrors.ErrRepositoryInvariantBroke
			}
			return err
		}

		for _, message := range transition.Outbox {
			row := outboxModel{
				OutboxID:     message.OutboxID,
				EventType:    message.EventType,
				PartitionKey: message.PartitionKey,
				Payload:      message.Payload,
				Status:       outbox.StatusPending,
				CreatedAt:    message.CreatedAt.UTC(),
			}
			if err := tx.Create(&row).Error; err != nil {
				if isUniqueViolation(err) {
					return domainerrors.ErrRepositoryInvariantBroke
				}
				return err
			}
		}

		items, err := loadSubmissions(tx, tx.Where("submission_id = ?", transition.SubmissionID))
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return domainerrors.ErrRepositoryInvariantBroke
		}
		updated = items[0]
		return nil
	})
	if err != nil {
		if !domainerrors.IsConflict(err) && !domainerrors.IsNotFound(err) {
			r.logError("tally_review_apply_failed", err, "submission_id", transition.SubmissionID)
		}
		return entities.Submission{}, err
	}
	return updated, nil
}

func (r *Repository) ListReviews(ctx context.Context, submissionID string) ([]entities.SubmissionReview, error) {
	var rows []reviewModel
	if err := r.db.WithContext(ctx).
		Where("submission_id = ?", submissionID).
		Order("created_at ASC").
		Order("review_id ASC").
		Find(&rows).
		Error; err != nil {
		return nil, err
	}
	items := make([]entities.SubmissionReview, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toEntity())
	}
	return items, nil
}

func (r *Repository) ListByStatus(ctx context.Context, filter ports.QueueFilter) ([]entities.Submission, error) {
	var items []entities.Submission
	err := r.readTx(ctx, func(tx *gorm.DB) error {
		query := tx.Model(&submissionModel{})
		if len(filter.Statuses) > 0 {
			query = query.Where("status IN ?", statusStrings(filter.Statuses))
		}
		if filter.DiscrepancyOnly {
			query = query.Where("discrepancy_flag = ?", true)
		}
		var err error
		items, err = loadSubmissions(tx, query.
			Order(clause.OrderByColumn{Column: clause.Column{Name: "discrepancy_flag"}, Desc: true}).
			Order(clause.OrderByColumn{Column: clause.Column{Name: "submitted_at"}, Desc: true}))
		return err
	})
	return items, err
}

func (r *Repository) ListVerified(ctx context.Context, position entities.Position, stationIDs []string) ([]entities.Submission, error) {
	if len(stationIDs) == 0 {
		return nil, nil
	}
	var items []entities.Submission
	err := r.readTx(ctx, func(tx *gorm.DB) error {
		var err error
		items, err = loadSubmissions(tx, tx.
			Where("status = ? AND position = ? AND station_id IN ?",
				string(entities.SubmissionStatusVerified), string(position), stationIDs).
			Order("submission_id ASC"))
		return err
	})
	return items, err
}

func (r *Repository) FingerprintStations(
	ctx context.Context,
	position entities.Position,
	excludeStationID string,
	fingerprint entities.ResultFingerprint,
) ([]string, error) {
	var stations []string
	if err := r.db.WithContext(ctx).
		Table("tally_submissions AS s").
		Joins("JOIN tally_results AS r ON r.submission_id = s.submission_id").
		Where("s.position = ? AND s.station_id <> ? AND s.status <> ?",
			string(position), excludeStationID, string(entities.SubmissionStatusRejected)).
		Where("r.total_votes_cast = ? AND r.valid_votes = ? AND r.rejected_votes = ?",
			fingerprint.TotalVotesCast, fingerprint.ValidVotes, fingerprint.RejectedVotes).
		Distinct("s.station_id").
		Order("s.station_id ASC").
		Pluck("s.station_id", &stations).
		Error; err != nil {
		return nil, err
	}
	return stations, nil
}

func (r *Repository) ListPendingOutbox(ctx context.Context, limit int) ([]ports.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}

	var rows []outboxModel
	if err := r.db.WithContext(ctx).
		Where("status = ?", outbox.StatusPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).
		Error; err != nil {
		return nil, err
	}

	items := make([]ports.OutboxMessage, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toPort())
	}
	return items, nil
}

func (r *Repository) MarkOutboxPublished(ctx context.Context, outboxID string, publishedAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&outboxModel{}).
		Where("outbox_id = ?", outboxID).
		Updates(map[string]any{
			"status":       outbox.StatusPublished,
			"published_at": publishedAt.UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrRepositoryInvariantBroke
	}
	return nil
}

func (r *Repository) ReserveEvent(
	ctx context.Context,
	eventID string,
	payloadHash string,
	expiresAt time.Time,
) (bool, error) {
	row := eventDedupModel{
		EventID:     eventID,
		PayloadHash: payloadHash,
		ExpiresAt:   expiresAt.UTC(),
		ProcessedAt: time.Now().UTC(),
	}

	createResult := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "event_id"}},
			DoNothing: true,
		}).
		Create(&row)
	if createResult.Error != nil {
		return false, createResult.Error
	}
	if createResult.RowsAffected > 0 {
		return false, nil
	}

	var existing eventDedupModel
	if err := r.db.WithContext(ctx).
		Select("payload_hash").
		Where("event_id = ?", eventID).
		First(&existing).
		Error; err != nil {
		return false, err
	}
	if existing.PayloadHash != payloadHash {
		return false, domainerrors.ErrIdempotencyKeyConflict
	}
	return true, nil
}

func (r *Repository) ReleaseEvent(ctx context.Context, eventID string) error {
	return r.db.WithContext(ctx).
		Where("event_id = ?", eventID).
		Delete(&eventDedupModel{}).
		Error
}

// readTx runs multi-statement reads against one snapshot so a submission is
// never observed without its result and candidate votes.
func (r *Repository) readTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn, &sql.TxOptions{
		Isolation: sql.LevelRepeatableRead,
		ReadOnly:  true,
	})
}

func loadSubmissions(tx *gorm.DB, query *gorm.DB) ([]entities.Submission, error) {
	var rows []submissionModel
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.SubmissionID)
	}

	var results []resultModel
	if err := tx.
		Where("submission_id IN ?", ids).
		Find(&results).
		Error; err != nil {
		return nil, err
	}
	resultByID := make(map[string]resultModel, len(results))
	for _, result := range results {
		resultByID[result.SubmissionID] = result
	}

	var votes []candidateVoteModel
	if err := tx.
		Where("submission_id IN ?", ids).
		Order("submission_id ASC").
		Order("candidate_name ASC").
		Order("party_name ASC").
		Find(&votes).
		Error; err != nil {
		return nil, err
	}
	votesByID := make(map[string][]candidateVoteModel, len(rows))
	for _, vote := range votes {
		votesByID[vote.SubmissionID] = append(votesByID[vote.SubmissionID], vote)
	}

	items := make([]entities.Submission, 0, len(rows))
	for _, row := range rows {
		result, ok := resultByID[row.SubmissionID]
		if !ok {
			return nil, domainerrors.ErrRepositoryInvariantBroke
		}
		item, err := row.toEntity(result, votesByID[row.SubmissionID])
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func statusStrings(statuses []entities.SubmissionStatus) []string {
	out := make([]string, 0, len(statuses))
	for _, status := range statuses {
		out = append(out, string(status))
	}
	return out
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func constraintName(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.ConstraintName
	}
	return ""
}

func (r *Repository) logError(event string, err error, attrs ...any) {
	fields := []any{
		"event", event,
		"module", "election-results/tally-engine",
		"layer", "adapter",
		"adapter", "postgres",
		"error", err.Error(),
	}
	fields = append(fields, attrs...)
	r.logger.Error("tally repository operation failed", fields...)
}
