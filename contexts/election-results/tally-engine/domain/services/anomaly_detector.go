package services

import (
	"fmt"
	"math"
	"strings"

	"tallyhub/contexts/election-results/tally-engine/domain/entities"
)

// AnomalyThresholds tune the plausibility heuristics.
type AnomalyThresholds struct {
	TurnoutCeiling float64
	HighTurnout    float64
	MinSiblings    int
	SigmaMultiple  float64
}

func DefaultAnomalyThresholds() AnomalyThresholds {
	return AnomalyThresholds{
		TurnoutCeiling: 1.0,
		HighTurnout:    0.95,
		MinSiblings:    3,
		SigmaMultiple:  2.0,
	}
}

// Normalize fills unset thresholds with defaults.
func (t AnomalyThresholds) Normalize() AnomalyThresholds {
	defaults := DefaultAnomalyThresholds()
	if t.TurnoutCeiling <= 0 {
		t.TurnoutCeiling = defaults.TurnoutCeiling
	}
	if t.HighTurnout <= 0 {
		t.HighTurnout = defaults.HighTurnout
	}
	if t.MinSiblings <= 0 {
		t.MinSiblings = defaults.MinSiblings
	}
	if t.SigmaMultiple <= 0 {
		t.SigmaMultiple = defaults.SigmaMultiple
	}
	return t
}

// AnomalyInput carries a proposed tally plus the context it is judged against.
type AnomalyInput struct {
	Result entities.Result
	// RegistryRegisteredVoters is the registry's count for the station; zero skips the check.
	RegistryRegisteredVoters int64
	// SiblingTurnouts holds one turnout ratio per verified sibling station in the same ward.
	SiblingTurnouts []float64
	// FingerprintStations lists other stations that reported the same cast/valid/rejected triple.
	FingerprintStations []string
}

// DetectAnomalies flags statistically suspicious tallies. It never rejects.
func DetectAnomalies(input AnomalyInput, thresholds AnomalyThresholds) []entities.AnomalyFlag {
	thresholds = thresholds.Normalize()
	result := input.Result
	var flags []entities.AnomalyFlag

	turnout, hasTurnout := result.Turnout()
	switch {
	case !hasTurnout && result.TotalVotesCast > 0:
		flags = append(flags, entities.AnomalyFlag{
			Code:        entities.AnomalyVotesWithoutRegistered,
			Description: fmt.Sprintf("%d votes cast at a station reporting zero registered voters", result.TotalVotesCast),
		})
	case hasTurnout && turnout > thresholds.TurnoutCeiling:
		flags = append(flags, entities.AnomalyFlag{
			Code:        entities.AnomalyTurnoutExceedsRegistered,
			Description: fmt.Sprintf("turnout %s exceeds ceiling of %s", percent(turnout), percent(thresholds.TurnoutCeiling)),
		})
	case hasTurnout && turnout > thresholds.HighTurnout:
		flags = append(flags, entities.AnomalyFlag{
			Code:        entities.AnomalyHighTurnout,
			Description: fmt.Sprintf("suspiciously high turnout %s (above %s)", percent(turnout), percent(thresholds.HighTurnout)),
		})
	}

	if input.RegistryRegisteredVoters > 0 && result.RegisteredVoters != input.RegistryRegisteredVoters {
		flags = append(flags, entities.AnomalyFlag{
			Code: entities.AnomalyRegisteredVotersMismatch,
			Description: fmt.Sprintf(
				"reported %d registered voters but the registry lists %d",
				result.RegisteredVoters, input.RegistryRegisteredVoters,
			),
		})
	}

	if hasTurnout && len(input.SiblingTurnouts) >= thresholds.MinSiblings {
		mean, stddev := MeanStdDev(input.SiblingTurnouts)
		if stddev > 0 && math.Abs(turnout-mean) > thresholds.SigmaMultiple*stddev {
			flags = append(flags, entities.AnomalyFlag{
				Code: entities.AnomalySiblingOutlier,
				Description: fmt.Sprintf(
					"turnout %s deviates from the ward mean %s by more than %.1f standard deviations",
					percent(turnout), percent(mean), thresholds.SigmaMultiple,
				),
			})
		}
	}

	if result.TotalVotesCast > 0 && len(input.FingerprintStations) > 0 {
		flags = append(flags, entities.AnomalyFlag{
			Code: entities.AnomalyDuplicateFingerprint,
			Description: fmt.Sprintf(
				"identical cast/valid/rejected figures reported at %s",
				strings.Join(input.FingerprintStations, ", "),
			),
		})
	}

	return flags
}

// DescribeAnomalies joins flag descriptions into a discrepancy reason.
func DescribeAnomalies(flags []entities.AnomalyFlag) string {
	parts := make([]string, 0, len(flags))
	for _, flag := range flags {
		parts = append(parts, flag.Description)
	}
	return strings.Join(parts, "; ")
}

// MeanStdDev returns the mean and population standard deviation.
func MeanStdDev(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	var squares float64
	for _, v := range values {
		delta := v - mean
		squares += delta * delta
	}
	return mean, math.Sqrt(squares / float64(len(values)))
}

func percent(ratio float64) string {
	return fmt.Sprintf("%.2f%%", ratio*100)
}
