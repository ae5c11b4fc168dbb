package http

import "time"

type ErrorResponse struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

type CandidateVoteRequest struct {
	CandidateName string `json:"candidate_name" validate:"required,max=200"`
	PartyName     string `json:"party_name" validate:"max=200"`
	Votes         int64  `json:"votes" validate:"gte=-1000000000,lte=1000000000"`
}

// SubmitTallyRequest carries raw form counts. Negative counts are accepted
// here and reported as rule violations by the arithmetic validator. Every
// count is capped at one billion in either direction so station and
// roll-up sums stay well inside int64.
type SubmitTallyRequest struct {
	StationID        string                 `json:"station_id" validate:"required"`
	Position         string                 `json:"position" validate:"required"`
	Channel          string                 `json:"channel" validate:"required,oneof=photo manual"`
	EvidenceRef      string                 `json:"evidence_ref,omitempty" validate:"required_if=Channel photo"`
	RegisteredVoters int64                  `json:"registered_voters" validate:"gte=-1000000000,lte=1000000000"`
	TotalVotesCast   int64                  `json:"total_votes_cast" validate:"gte=-1000000000,lte=1000000000"`
	ValidVotes       int64                  `json:"valid_votes" validate:"gte=-1000000000,lte=1000000000"`
	RejectedVotes    int64                  `json:"rejected_votes" validate:"gte=-1000000000,lte=1000000000"`
	CandidateVotes   []CandidateVoteRequest `json:"candidate_votes" validate:"required,min=1,dive"`
}

type ReviewRequest struct {
	Action string `json:"action" validate:"required,oneof=approve reject request_revision"`
	Notes  string `json:"notes,omitempty" validate:"max=2000"`
}

type RuleViolationResponse struct {
	Rule       string `json:"rule"`
	Message    string `json:"message"`
	Difference int64  `json:"difference,omitempty"`
}

type AnomalyResponse struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

type CandidateVoteResponse struct {
	CandidateName string `json:"candidate_name"`
	PartyName     string `json:"party_name"`
	Votes         int64  `json:"votes"`
}

type ResultResponse struct {
	RegisteredVoters           int64                   `json:"registered_voters"`
	TotalVotesCast             int64                   `json:"total_votes_cast"`
	ValidVotes                 int64                   `json:"valid_votes"`
	RejectedVotes              int64                   `json:"rejected_votes"`
	IsValid                    bool                    `json:"is_valid"`
	ValidationErrors           []RuleViolationResponse `json:"validation_errors"`
	RequiresManualVerification bool                    `json:"requires_manual_verification"`
	CandidateVotes             []CandidateVoteResponse `json:"candidate_votes"`
}

type SubmissionResponse struct {
	SubmissionID      string            `json:"submission_id"`
	SubmitterID       string            `json:"submitter_id"`
	StationID         string            `json:"station_id"`
	Position          string            `json:"position"`
	Channel           string            `json:"channel"`
	Status            string            `json:"status"`
	ConfidenceScore   int               `json:"confidence_score"`
	DiscrepancyFlag   bool              `json:"discrepancy_flag"`
	DiscrepancyReason string            `json:"discrepancy_reason,omitempty"`
	Anomalies         []AnomalyResponse `json:"anomalies"`
	EvidenceRef       string            `json:"evidence_ref,omitempty"`
	SupersedesID      string            `json:"supersedes_id,omitempty"`
	SubmittedAt       time.Time         `json:"submitted_at"`
	VerifiedAt        *time.Time        `json:"verified_at,omitempty"`
	UpdatedAt         time.Time         `json:"updated_at"`
	Result            ResultResponse    `json:"result"`
}

type ReviewResponse struct {
	ReviewID     string    `json:"review_id"`
	SubmissionID string    `json:"submission_id"`
	ReviewerID   string    `json:"reviewer_id"`
	ReviewerRole string    `json:"reviewer_role"`
	Action       string    `json:"action"`
	FromStatus   string    `json:"from_status"`
	ToStatus     string    `json:"to_status"`
	Notes        string    `json:"notes,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

type ReviewListResponse struct {
	SubmissionID string           `json:"submission_id"`
	Items        []ReviewResponse `json:"items"`
}

type ReviewQueueResponse struct {
	Filter string               `json:"filter"`
	Items  []SubmissionResponse `json:"items"`
}

type CandidateTotalResponse struct {
	CandidateName string  `json:"candidate_name"`
	PartyName     string  `json:"party_name"`
	Votes         int64   `json:"votes"`
	Percentage    float64 `json:"percentage"`
}

type AggregateResponse struct {
	LocationID            string                   `json:"location_id"`
	Level                 string                   `json:"level"`
	Position              string                   `json:"position"`
	StationsReporting     int                      `json:"stations_reporting"`
	TotalStations         int                      `json:"total_stations"`
	TurnoutPercentage     float64                  `json:"turnout_percentage"`
	TotalRegisteredVoters int64                    `json:"total_registered_voters"`
	TotalVotesCast        int64                    `json:"total_votes_cast"`
	TotalValidVotes       int64                    `json:"total_valid_votes"`
	TotalRejectedVotes    int64                    `json:"total_rejected_votes"`
	Candidates            []CandidateTotalResponse `json:"candidates"`
}
