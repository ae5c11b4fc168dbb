package entities

// Rule identifiers reported by the arithmetic validator, in evaluation order.
const (
	RuleNonNegative          = "non_negative_fields"
	RuleBallotBalance        = "ballot_balance"
	RuleCastWithinRegistered = "cast_within_registered"
	RuleCandidateSum         = "candidate_sum"
)

// RuleViolation describes one failed arithmetic rule. Difference is only
// populated for RuleCandidateSum and equals valid votes minus the candidate sum.
type RuleViolation struct {
	Rule       string `json:"rule"`
	Message    string `json:"message"`
	Difference int64  `json:"difference,omitempty"`
}

const (
	AnomalyTurnoutExceedsRegistered = "turnout_exceeds_registered"
	AnomalyHighTurnout              = "suspiciously_high_turnout"
	AnomalyVotesWithoutRegistered   = "votes_without_registered_voters"
	AnomalySiblingOutlier           = "sibling_turnout_outlier"
	AnomalyDuplicateFingerprint     = "duplicate_result_fingerprint"
	AnomalyRegisteredVotersMismatch = "registered_voters_mismatch"
)

type AnomalyFlag struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}
