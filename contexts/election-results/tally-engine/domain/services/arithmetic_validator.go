package services

import (
	"fmt"
	"math"

	"tallyhub/contexts/election-results/tally-engine/domain/entities"
)

// DefaultValidationPenalty is deducted from the confidence score of a
// submission whose tally fails any arithmetic rule.
const DefaultValidationPenalty = 20

// Verdict is the outcome of ValidateResult.
type Verdict struct {
	Valid      bool
	Violations []entities.RuleViolation
}

// ValidateResult checks a proposed tally for internal consistency. Every rule
// is evaluated and every violation reported, in rule order.
func ValidateResult(result entities.Result) Verdict {
	var violations []entities.RuleViolation

	if negative := negativeFields(result); len(negative) > 0 {
		violations = append(violations, entities.RuleViolation{
			Rule:    entities.RuleNonNegative,
			Message: fmt.Sprintf("negative values reported for %v", negative),
		})
	}

	if ballots, overflow := addCounts(result.ValidVotes, result.RejectedVotes); overflow || ballots != result.TotalVotesCast {
		violations = append(violations, entities.RuleViolation{
			Rule: entities.RuleBallotBalance,
			Message: fmt.Sprintf(
				"valid votes (%d) plus rejected votes (%d) do not equal total votes cast (%d)",
				result.ValidVotes, result.RejectedVotes, result.TotalVotesCast,
			),
		})
	}

	if result.TotalVotesCast > result.RegisteredVoters {
		violations = append(violations, entities.RuleViolation{
			Rule: entities.RuleCastWithinRegistered,
			Message: fmt.Sprintf(
				"total votes cast (%d) exceed registered voters (%d)",
				result.TotalVotesCast, result.RegisteredVoters,
			),
		})
	}

	candidateSum, overflow := SumCandidateVotes(result.CandidateVotes)
	if difference := saturatingSub(result.ValidVotes, candidateSum); overflow || difference != 0 {
		message := fmt.Sprintf("candidate votes sum to %d, %d short of valid votes (%d)", candidateSum, difference, result.ValidVotes)
		switch {
		case overflow:
			message = fmt.Sprintf("candidate votes overflow the counter, over-counted against valid votes (%d)", result.ValidVotes)
		case difference < 0:
			message = fmt.Sprintf("candidate votes sum to %d, over-counted by %d against valid votes (%d)", candidateSum, -difference, result.ValidVotes)
		}
		violations = append(violations, entities.RuleViolation{
			Rule:       entities.RuleCandidateSum,
			Message:    message,
			Difference: difference,
		})
	}

	return Verdict{
		Valid:      len(violations) == 0,
		Violations: violations,
	}
}

// SumCandidateVotes adds the candidate counts. When the total leaves the
// int64 range it reports overflow and returns the saturated bound.
func SumCandidateVotes(votes []entities.CandidateVote) (int64, bool) {
	var total int64
	for _, vote := range votes {
		next, overflow := addCounts(total, vote.Votes)
		if overflow {
			return next, true
		}
		total = next
	}
	return total, false
}

// DuplicateCandidate returns the first candidate listed twice under the same
// name and party. Names are compared as given.
func DuplicateCandidate(votes []entities.CandidateVote) (entities.CandidateVote, bool) {
	type identity struct {
		name  string
		party string
	}
	seen := make(map[identity]struct{}, len(votes))
	for _, vote := range votes {
		key := identity{name: vote.CandidateName, party: vote.PartyName}
		if _, dup := seen[key]; dup {
			return vote, true
		}
		seen[key] = struct{}{}
	}
	return entities.CandidateVote{}, false
}

// ApplyConfidencePenalty lowers score by penalty without going below zero.
func ApplyConfidencePenalty(score int, penalty int) int {
	if penalty < 0 {
		penalty = 0
	}
	score -= penalty
	if score < 0 {
		return 0
	}
	return score
}

func negativeFields(result entities.Result) []string {
	var fields []string
	if result.RegisteredVoters < 0 {
		fields = append(fields, "registered_voters")
	}
	if result.TotalVotesCast < 0 {
		fields = append(fields, "total_votes_cast")
	}
	if result.ValidVotes < 0 {
		fields = append(fields, "valid_votes")
	}
	if result.RejectedVotes < 0 {
		fields = append(fields, "rejected_votes")
	}
	for _, vote := range result.CandidateVotes {
		if vote.Votes < 0 {
			fields = append(fields, "candidate:"+vote.CandidateName)
		}
	}
	return fields
}

// addCounts adds a and b, saturating at the int64 bounds on overflow.
func addCounts(a int64, b int64) (int64, bool) {
	switch {
	case b > 0 && a > math.MaxInt64-b:
		return math.MaxInt64, true
	case b < 0 && a < math.MinInt64-b:
		return math.MinInt64, true
	}
	return a + b, false
}

func saturatingSub(a int64, b int64) int64 {
	if b == math.MinInt64 {
		if a >= 0 {
			return math.MaxInt64
		}
		return a - b
	}
	difference, _ := addCounts(a, -b)
	return difference
}
