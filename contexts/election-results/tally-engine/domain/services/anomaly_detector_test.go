package services

import (
	"testing"

	"tallyhub/contexts/election-results/tally-engine/domain/entities"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func codes(flags []entities.AnomalyFlag) []string {
	out := make([]string, 0, len(flags))
	for _, flag := range flags {
		out = append(out, flag.Code)
	}
	return out
}

func TestDetectAnomaliesFlagsHighTurnout(t *testing.T) {
	flags := DetectAnomalies(AnomalyInput{Result: balancedResult()}, DefaultAnomalyThresholds())
	require.Equal(t, []string{entities.AnomalyHighTurnout}, codes(flags))
	assert.Equal(t, "suspiciously high turnout 96.00% (above 95.00%)", flags[0].Description)
}

func TestDetectAnomaliesTurnoutBands(t *testing.T) {
	cases := []struct {
		name       string
		registered int64
		cast       int64
		want       []string
	}{
		{name: "ordinary", registered: 500, cast: 300, want: []string{}},
		{name: "exactly high mark", registered: 100, cast: 95, want: []string{}},
		{name: "above ceiling", registered: 100, cast: 120, want: []string{entities.AnomalyTurnoutExceedsRegistered}},
		{name: "no registered voters", registered: 0, cast: 12, want: []string{entities.AnomalyVotesWithoutRegistered}},
		{name: "empty station", registered: 0, cast: 0, want: []string{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			flags := DetectAnomalies(AnomalyInput{Result: entities.Result{
				RegisteredVoters: tc.registered,
				TotalVotesCast:   tc.cast,
			}}, DefaultAnomalyThresholds())
			assert.Equal(t, tc.want, codes(flags))
		})
	}
}

func TestDetectAnomaliesSiblingOutlier(t *testing.T) {
	result := entities.Result{RegisteredVoters: 100, TotalVotesCast: 90}
	siblings := []float64{0.50, 0.52, 0.48, 0.51}

	flags := DetectAnomalies(AnomalyInput{Result: result, SiblingTurnouts: siblings}, DefaultAnomalyThresholds())
	assert.Equal(t, []string{entities.AnomalySiblingOutlier}, codes(flags))

	flags = DetectAnomalies(AnomalyInput{Result: result, SiblingTurnouts: siblings[:2]}, DefaultAnomalyThresholds())
	assert.Empty(t, flags, "too few siblings to judge")

	flags = DetectAnomalies(AnomalyInput{Result: result, SiblingTurnouts: []float64{0.5, 0.5, 0.5}}, DefaultAnomalyThresholds())
	assert.Empty(t, flags, "zero spread never flags")
}

func TestDetectAnomaliesRegistryMismatchAndFingerprint(t *testing.T) {
	result := entities.Result{RegisteredVoters: 400, TotalVotesCast: 200, ValidVotes: 195, RejectedVotes: 5}
	flags := DetectAnomalies(AnomalyInput{
		Result:                   result,
		RegistryRegisteredVoters: 450,
		FingerprintStations:      []string{"PS-2", "PS-9"},
	}, DefaultAnomalyThresholds())

	assert.Equal(t, []string{entities.AnomalyRegisteredVotersMismatch, entities.AnomalyDuplicateFingerprint}, codes(flags))
	assert.Contains(t, flags[1].Description, "PS-2, PS-9")
	assert.Equal(t, flags[0].Description+"; "+flags[1].Description, DescribeAnomalies(flags))
}

func TestMeanStdDevUsesPopulationDeviation(t *testing.T) {
	mean, stddev := MeanStdDev([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	assert.InDelta(t, 5.0, mean, 1e-9)
	assert.InDelta(t, 2.0, stddev, 1e-9)

	mean, stddev = MeanStdDev(nil)
	assert.Zero(t, mean)
	assert.Zero(t, stddev)
}

func TestNormalizeFillsUnsetThresholds(t *testing.T) {
	assert.Equal(t, DefaultAnomalyThresholds(), AnomalyThresholds{}.Normalize())
	custom := AnomalyThresholds{TurnoutCeiling: 1.1, HighTurnout: 0.9, MinSiblings: 5, SigmaMultiple: 3}
	assert.Equal(t, custom, custom.Normalize())
}
