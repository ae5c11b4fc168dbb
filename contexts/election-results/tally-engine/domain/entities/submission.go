package entities

import (
	"strings"
	"time"
)

type SubmissionStatus string

const (
	SubmissionStatusPending  SubmissionStatus = "pending"
	SubmissionStatusVerified SubmissionStatus = "verified"
	SubmissionStatusRejected SubmissionStatus = "rejected"
	SubmissionStatusFlagged  SubmissionStatus = "flagged"
)

func (s SubmissionStatus) IsValid() bool {
	switch s {
	case SubmissionStatusPending, SubmissionStatusVerified, SubmissionStatusRejected, SubmissionStatusFlagged:
		return true
	default:
		return false
	}
}

// HoldsTuple reports whether a submission in this status blocks a new
// submission for the same submitter, station, position and channel.
func (s SubmissionStatus) HoldsTuple() bool {
	return s == SubmissionStatusPending || s == SubmissionStatusVerified
}

// Reviewable reports whether review actions may be applied.
func (s SubmissionStatus) Reviewable() bool {
	return s == SubmissionStatusPending || s == SubmissionStatusFlagged
}

type Channel string

const (
	ChannelPhoto  Channel = "photo"
	ChannelManual Channel = "manual"
)

func ParseChannel(raw string) (Channel, bool) {
	channel := Channel(strings.ToLower(strings.TrimSpace(raw)))
	switch channel {
	case ChannelPhoto, ChannelManual:
		return channel, true
	default:
		return "", false
	}
}

const MaxConfidenceScore = 100

// Submission is one report of a tally for a single station, position and channel.
type Submission struct {
	SubmissionID      string
	SubmitterID       string
	StationID         string
	Position          Position
	Channel           Channel
	Status            SubmissionStatus
	ConfidenceScore   int
	DiscrepancyFlag   bool
	DiscrepancyReason string
	Anomalies         []AnomalyFlag
	EvidenceRef       string
	SupersedesID      string
	SubmittedAt       time.Time
	VerifiedAt        *time.Time
	UpdatedAt         time.Time
	Result            Result
}

func (s Submission) Tuple() SubmissionTuple {
	return SubmissionTuple{
		SubmitterID: s.SubmitterID,
		StationID:   s.StationID,
		Position:    s.Position,
		Channel:     s.Channel,
	}
}

type SubmissionTuple struct {
	SubmitterID string
	StationID   string
	Position    Position
	Channel     Channel
}

// Result is the proposed tally owned by exactly one submission.
type Result struct {
	RegisteredVoters           int64
	TotalVotesCast             int64
	ValidVotes                 int64
	RejectedVotes              int64
	IsValid                    bool
	ValidationErrors           []RuleViolation
	RequiresManualVerification bool
	CandidateVotes             []CandidateVote
}

// Fingerprint is the exact triple used to spot copied tallies.
func (r Result) Fingerprint() ResultFingerprint {
	return ResultFingerprint{
		TotalVotesCast: r.TotalVotesCast,
		ValidVotes:     r.ValidVotes,
		RejectedVotes:  r.RejectedVotes,
	}
}

// Turnout is votes cast over registered voters. ok is false when no voters are registered.
func (r Result) Turnout() (turnout float64, ok bool) {
	if r.RegisteredVoters <= 0 {
		return 0, false
	}
	return float64(r.TotalVotesCast) / float64(r.RegisteredVoters), true
}

type ResultFingerprint struct {
	TotalVotesCast int64
	ValidVotes     int64
	RejectedVotes  int64
}

type CandidateVote struct {
	CandidateName string
	PartyName     string
	Votes         int64
}
