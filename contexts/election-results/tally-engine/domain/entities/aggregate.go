package entities

// AggregatedResult is derived from verified submissions and never stored as a source of truth.
type AggregatedResult struct {
	LocationID            string           `json:"location_id"`
	Level                 LocationLevel    `json:"level"`
	Position              Position         `json:"position"`
	StationsReporting     int              `json:"stations_reporting"`
	TotalStations         int              `json:"total_stations"`
	TurnoutPercentage     float64          `json:"turnout_percentage"`
	TotalRegisteredVoters int64            `json:"total_registered_voters"`
	TotalVotesCast        int64            `json:"total_votes_cast"`
	TotalValidVotes       int64            `json:"total_valid_votes"`
	TotalRejectedVotes    int64            `json:"total_rejected_votes"`
	Candidates            []CandidateTotal `json:"candidates"`
}

type CandidateTotal struct {
	CandidateName string  `json:"candidate_name"`
	PartyName     string  `json:"party_name,omitempty"`
	Votes         int64   `json:"votes"`
	Percentage    float64 `json:"percentage"`
}

// AggregateKey identifies one memoized aggregate.
type AggregateKey struct {
	LocationID string   `json:"location_id"`
	Position   Position `json:"position"`
}
