package entities

import (
	"strings"
	"time"
)

type ReviewAction string

const (
	ReviewActionApprove         ReviewAction = "approve"
	ReviewActionReject          ReviewAction = "reject"
	ReviewActionRequestRevision ReviewAction = "request_revision"
)

func ParseReviewAction(raw string) (ReviewAction, bool) {
	action := ReviewAction(strings.ToLower(strings.TrimSpace(raw)))
	switch action {
	case ReviewActionApprove, ReviewActionReject, ReviewActionRequestRevision:
		return action, true
	default:
		return "", false
	}
}

// NextStatus is the review state machine. Only pending and flagged
// submissions accept actions; verified and rejected are final.
func (a ReviewAction) NextStatus(from SubmissionStatus) (SubmissionStatus, bool) {
	if !from.Reviewable() {
		return "", false
	}
	switch a {
	case ReviewActionApprove:
		return SubmissionStatusVerified, true
	case ReviewActionReject:
		return SubmissionStatusRejected, true
	case ReviewActionRequestRevision:
		return SubmissionStatusFlagged, true
	default:
		return "", false
	}
}

// SubmissionReview is an insert-only audit entry.
type SubmissionReview struct {
	ReviewID     string
	SubmissionID string
	ReviewerID   string
	ReviewerRole Role
	Action       ReviewAction
	FromStatus   SubmissionStatus
	ToStatus     SubmissionStatus
	Notes        string
	CreatedAt    time.Time
}
