package services

import (
	"sort"

	"tallyhub/contexts/election-results/tally-engine/domain/entities"
)

// LatestPerStation keeps the most recently verified submission of each
// station, ordered by station id.
func LatestPerStation(items []entities.Submission) []entities.Submission {
	latest := make(map[string]entities.Submission, len(items))
	for _, item := range items {
		current, ok := latest[item.StationID]
		if !ok || verifiedAfter(item, current) {
			latest[item.StationID] = item
		}
	}
	out := make([]entities.Submission, 0, len(latest))
	for _, item := range latest {
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StationID < out[j].StationID
	})
	return out
}

func verifiedAfter(a entities.Submission, b entities.Submission) bool {
	switch {
	case a.VerifiedAt == nil:
		return false
	case b.VerifiedAt == nil:
		return true
	case a.VerifiedAt.Equal(*b.VerifiedAt):
		return a.SubmissionID > b.SubmissionID
	default:
		return a.VerifiedAt.After(*b.VerifiedAt)
	}
}
