package errors

import "errors"

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrUnauthorizedActor  = errors.New("actor is not permitted to perform this operation")
	ErrOutOfScope         = errors.New("station is outside the actor's electoral area")
	ErrSubmissionNotFound = errors.New("submission not found")
	ErrLocationNotFound   = errors.New("location not found")
	// ErrDuplicateSubmission is the storage-level tuple conflict.
	ErrDuplicateSubmission      = errors.New("an active submission already exists for this submitter, station, position and channel")
	ErrInvalidAction            = errors.New("review action is not permitted from the submission's current status")
	ErrEvidenceMissing          = errors.New("photo evidence reference is missing or unknown")
	ErrLeaseNotObtained         = errors.New("lease not obtained")
	ErrIdempotencyKeyConflict   = errors.New("event id reused with a different payload")
	ErrRepositoryInvariantBroke = errors.New("repository invariant broken")
)

// IsConflict groups the errors reported to callers as conflicts.
func IsConflict(err error) bool {
	return errors.Is(err, ErrDuplicateSubmission) || errors.Is(err, ErrInvalidAction)
}

// IsNotFound groups missing-reference errors.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrSubmissionNotFound) || errors.Is(err, ErrLocationNotFound)
}
