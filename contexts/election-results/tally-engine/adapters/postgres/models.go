package postgresadapter

import (
	"encoding/json"
	"time"

	"tallyhub/contexts/election-results/tally-engine/domain/entities"
	"tallyhub/contexts/election-results/tally-engine/ports"
)

type locationModel struct {
	LocationID       string  `gorm:"column:location_id;primaryKey"`
	Level            string  `gorm:"column:level"`
	ParentID         *string `gorm:"column:parent_id"`
	Name             string  `gorm:"column:name"`
	RegisteredVoters int64   `gorm:"column:registered_voters"`
}

func (locationModel) TableName() string {
	return "locations"
}

func locationModelFromEntity(location entities.Location) locationModel {
	model := locationModel{
		LocationID:       location.LocationID,
		Level:            string(location.Level),
		Name:             location.Name,
		RegisteredVoters: location.RegisteredVoters,
	}
	if location.ParentID != "" {
		parentID := location.ParentID
		model.ParentID = &parentID
	}
	return model
}

func (m locationModel) toEntity() entities.Location {
	location := entities.Location{
		LocationID:       m.LocationID,
		Level:            entities.LocationLevel(m.Level),
		Name:             m.Name,
		RegisteredVoters: m.RegisteredVoters,
	}
	if m.ParentID != nil {
		location.ParentID = *m.ParentID
	}
	return location
}

type submissionModel struct {
	SubmissionID      string     `gorm:"column:submission_id;primaryKey"`
	SubmitterID       string     `gorm:"column:submitter_id"`
	StationID         string     `gorm:"column:station_id"`
	Position          string     `gorm:"column:position"`
	Channel           string     `gorm:"column:channel"`
	Status            string     `gorm:"column:status"`
	ConfidenceScore   int        `gorm:"column:confidence_score"`
	DiscrepancyFlag   bool       `gorm:"column:discrepancy_flag"`
	DiscrepancyReason string     `gorm:"column:discrepancy_reason"`
	Anomalies         []byte     `gorm:"column:anomalies;type:jsonb"`
	EvidenceRef       string     `gorm:"column:evidence_ref"`
	SupersedesID      *string    `gorm:"column:supersedes_id"`
	SubmittedAt       time.Time  `gorm:"column:submitted_at"`
	VerifiedAt        *time.Time `gorm:"column:verified_at"`
	UpdatedAt         time.Time  `gorm:"column:updated_at"`
}

func (submissionModel) TableName() string {
	return "tally_submissions"
}

type resultModel struct {
	SubmissionID               string `gorm:"column:submission_id;primaryKey"`
	RegisteredVoters           int64  `gorm:"column:registered_voters"`
	TotalVotesCast             int64  `gorm:"column:total_votes_cast"`
	ValidVotes                 int64  `gorm:"column:valid_votes"`
	RejectedVotes              int64  `gorm:"column:rejected_votes"`
	IsValid                    bool   `gorm:"column:is_valid"`
	ValidationErrors           []byte `gorm:"column:validation_errors;type:jsonb"`
	RequiresManualVerification bool   `gorm:"column:requires_manual_verification"`
}

func (resultModel) TableName() string {
	return "tally_results"
}

type candidateVoteModel struct {
	SubmissionID  string `gorm:"column:submission_id;primaryKey"`
	CandidateName string `gorm:"column:candidate_name;primaryKey"`
	PartyName     string `gorm:"column:party_name;primaryKey"`
	Votes         int64  `gorm:"column:votes"`
}

func (candidateVoteModel) TableName() string {
	return "tally_candidate_votes"
}

func submissionModelsFromEntity(submission entities.Submission) (submissionModel, resultModel, []candidateVoteModel, error) {
	anomalies, err := marshalList(submission.Anomalies)
	if err != nil {
		return submissionModel{}, resultModel{}, nil, err
	}
	violations, err := marshalList(submission.Result.ValidationErrors)
	if err != nil {
		return submissionModel{}, resultModel{}, nil, err
	}

	row := submissionModel{
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
		SubmittedAt:       submission.SubmittedAt.UTC(),
		VerifiedAt:        utcPtr(submission.VerifiedAt),
		UpdatedAt:         submission.UpdatedAt.UTC(),
	}
	if submission.SupersedesID != "" {
		supersedesID := submission.SupersedesID
		row.SupersedesID = &supersedesID
	}

	result := submission.Result
	resultRow := resultModel{
		SubmissionID:               submission.SubmissionID,
		RegisteredVoters:           result.RegisteredVoters,
		TotalVotesCast:             result.TotalVotesCast,
		ValidVotes:                 result.ValidVotes,
		RejectedVotes:              result.RejectedVotes,
		IsValid:                    result.IsValid,
		ValidationErrors:           violations,
		RequiresManualVerification: result.RequiresManualVerification,
	}

	votes := make([]candidateVoteModel, 0, len(result.CandidateVotes))
	for _, vote := range result.CandidateVotes {
		votes = append(votes, candidateVoteModel{
			SubmissionID:  submission.SubmissionID,
			CandidateName: vote.CandidateName,
			PartyName:     vote.PartyName,
			Votes:         vote.Votes,
		})
	}
	return row, resultRow, votes, nil
}

func (m submissionModel) toEntity(result resultModel, votes []candidateVoteModel) (entities.Submission, error) {
	var anomalies []entities.AnomalyFlag
	if err := unmarshalList(m.Anomalies, &anomalies); err != nil {
		return entities.Submission{}, err
	}
	var violations []entities.RuleViolation
	if err := unmarshalList(result.ValidationErrors, &violations); err != nil {
		return entities.Submission{}, err
	}

	submission := entities.Submission{
		SubmissionID:      m.SubmissionID,
		SubmitterID:       m.SubmitterID,
		StationID:         m.StationID,
		Position:          entities.Position(m.Position),
		Channel:           entities.Channel(m.Channel),
		Status:            entities.SubmissionStatus(m.Status),
		ConfidenceScore:   m.ConfidenceScore,
		DiscrepancyFlag:   m.DiscrepancyFlag,
		DiscrepancyReason: m.DiscrepancyReason,
		Anomalies:         anomalies,
		EvidenceRef:       m.EvidenceRef,
		SubmittedAt:       m.SubmittedAt.UTC(),
		VerifiedAt:        utcPtr(m.VerifiedAt),
		UpdatedAt:         m.UpdatedAt.UTC(),
		Result: entities.Result{
			RegisteredVoters:           result.RegisteredVoters,
			TotalVotesCast:             result.TotalVotesCast,
			ValidVotes:                 result.ValidVotes,
			RejectedVotes:              result.RejectedVotes,
			IsValid:                    result.IsValid,
			ValidationErrors:           violations,
			RequiresManualVerification: result.RequiresManualVerification,
		},
	}
	if m.SupersedesID != nil {
		submission.SupersedesID = *m.SupersedesID
	}
	for _, vote := range votes {
		submission.Result.CandidateVotes = append(submission.Result.CandidateVotes, entities.CandidateVote{
			CandidateName: vote.CandidateName,
			PartyName:     vote.PartyName,
			Votes:         vote.Votes,
		})
	}
	return submission, nil
}

type reviewModel struct {
	ReviewID     string    `gorm:"column:review_id;primaryKey"`
	SubmissionID string    `gorm:"column:submission_id"`
	ReviewerID   string    `gorm:"column:reviewer_id"`
	ReviewerRole string    `gorm:"column:reviewer_role"`
	Action       string    `gorm:"column:action"`
	FromStatus   string    `gorm:"column:from_status"`
	ToStatus     string    `gorm:"column:to_status"`
	Notes        string    `gorm:"column:notes"`
	CreatedAt    time.Time `gorm:"column:created_at"`
}

func (reviewModel) TableName() string {
	return "tally_submission_reviews"
}

func reviewModelFromEntity(review entities.SubmissionReview) reviewModel {
	return reviewModel{
		ReviewID:     review.ReviewID,
		SubmissionID: review.SubmissionID,
		ReviewerID:   review.ReviewerID,
		ReviewerRole: string(review.ReviewerRole),
		Action:       string(review.Action),
		FromStatus:   string(review.FromStatus),
		ToStatus:     string(review.ToStatus),
		Notes:        review.Notes,
		CreatedAt:    review.CreatedAt.UTC(),
	}
}

func (m reviewModel) toEntity() entities.SubmissionReview {
	return entities.SubmissionReview{
		ReviewID:     m.ReviewID,
		SubmissionID: m.SubmissionID,
		ReviewerID:   m.ReviewerID,
		ReviewerRole: entities.Role(m.ReviewerRole),
		Action:       entities.ReviewAction(m.Action),
		FromStatus:   entities.SubmissionStatus(m.FromStatus),
		ToStatus:     entities.SubmissionStatus(m.ToStatus),
		Notes:        m.Notes,
		CreatedAt:    m.CreatedAt.UTC(),
	}
}

type outboxModel struct {
	OutboxID     string     `gorm:"column:outbox_id;primaryKey"`
	EventType    string     `gorm:"column:event_type"`
	PartitionKey string     `gorm:"column:partition_key"`
	Payload      []byte     `gorm:"column:payload;type:jsonb"`
	Status       string     `gorm:"column:status"`
	CreatedAt    time.Time  `gorm:"column:created_at"`
	PublishedAt  *time.Time `gorm:"column:published_at"`
}

func (outboxModel) TableName() string {
	return "tally_outbox"
}

func (m outboxModel) toPort() ports.OutboxMessage {
	return ports.OutboxMessage{
		OutboxID:     m.OutboxID,
		EventType:    m.EventType,
		PartitionKey: m.PartitionKey,
		Payload:      append([]byte(nil), m.Payload...),
		CreatedAt:    m.CreatedAt.UTC(),
	}
}

type eventDedupModel struct {
	EventID     string    `gorm:"column:event_id;primaryKey"`
	PayloadHash string    `gorm:"column:payload_hash"`
	ExpiresAt   time.Time `gorm:"column:expires_at"`
	ProcessedAt time.Time `gorm:"column:processed_at"`
}

func (eventDedupModel) TableName() string {
	return "tally_event_dedup"
}

func marshalList[T any](items []T) ([]byte, error) {
	if items == nil {
		items = []T{}
	}
	return json.Marshal(items)
}

func unmarshalList[T any](raw []byte, out *[]T) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return err
	}
	if len(*out) == 0 {
		*out = nil
	}
	return nil
}

func utcPtr(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	utc := value.UTC()
	return &utc
}
