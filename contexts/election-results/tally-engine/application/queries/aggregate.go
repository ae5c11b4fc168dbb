package queries

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	application "tallyhub/contexts/election-results/tally-engine/application"
	"tallyhub/contexts/election-results/tally-engine/domain/entities"
	domainerrors "tallyhub/contexts/election-results/tally-engine/domain/errors"
	"tallyhub/contexts/election-results/tally-engine/domain/services"
	"tallyhub/contexts/election-results/tally-engine/ports"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("tallyhub/election-results/tally-engine")

type AggregateQuery struct {
	LocationID string
	Level      entities.LocationLevel
	Position   entities.Position
}

// AggregateUseCase rolls verified tallies up the location hierarchy.
type AggregateUseCase struct {
	Repository ports.SubmissionRepository
	Locations  ports.LocationRegistry
	// Cache is optional; without it every read recomputes.
	Cache  ports.AggregateCache
	Logger *slog.Logger
}

func (uc AggregateUseCase) Get(ctx context.Context, query AggregateQuery) (entities.AggregatedResult, error) {
	logger := application.ResolveLogger(uc.Logger)
	ctx, span := tracer.Start(ctx, "tally.aggregate.get")
	defer span.End()

	locationID := strings.TrimSpace(query.LocationID)
	if locationID == "" || !query.Level.IsValid() || !query.Position.IsValid() {
		return entities.AggregatedResult{}, domainerrors.ErrInvalidInput
	}
	span.SetAttributes(
		attribute.String("tally.location_id", locationID),
		attribute.String("tally.level", string(query.Level)),
		attribute.String("tally.position", string(query.Position)),
	)

	location, err := uc.Locations.GetLocation(ctx, locationID)
	if err != nil {
		return entities.AggregatedResult{}, err
	}
	if location.Level != query.Level {
		return entities.AggregatedResult{}, domainerrors.ErrInvalidInput
	}

	key := entities.AggregateKey{LocationID: locationID, Position: query.Position}
	var generation uint64
	if uc.Cache != nil {
		lookup, err := uc.Cache.Lookup(ctx, key)
		if err != nil {
			logger.Warn("aggregate cache lookup failed",
				"event", "tally_aggregate_cache_lookup_failed",
				"module", "election-results/tally-engine",
				"layer", "application",
				"location_id", locationID,
				"position", string(query.Position),
				"error", err.Error(),
			)
		} else if lookup.Hit {
			span.SetAttributes(attribute.Bool("tally.cache_hit", true))
			return lookup.Value, nil
		} else {
			generation = lookup.Generation
		}
	}

	stations, err := uc.Locations.DescendantStations(ctx, locationID)
	if err != nil {
		return entities.AggregatedResult{}, err
	}
	stationIDs := make([]string, 0, len(stations))
	for _, station := range stations {
		stationIDs = append(stationIDs, station.LocationID)
	}

	var verified []entities.Submission
	if len(stationIDs) > 0 {
		verified, err = uc.Repository.ListVerified(ctx, query.Position, stationIDs)
		if err != nil {
			return entities.AggregatedResult{}, err
		}
	}

	aggregate := ComputeAggregate(location, query.Position, len(stations), verified)

	if uc.Cache != nil {
		if err := uc.Cache.Store(ctx, key, generation, aggregate); err != nil {
			logger.Warn("aggregate cache store failed",
				"event", "tally_aggregate_cache_store_failed",
				"module", "election-results/tally-engine",
				"layer", "application",
				"location_id", locationID,
				"position", string(query.Position),
				"error", err.Error(),
			)
		}
	}

	logger.Debug("aggregate computed",
		"event", "tally_aggregate_computed",
		"module", "election-results/tally-engine",
		"layer", "application",
		"location_id", locationID,
		"level", string(query.Level),
		"position", string(query.Position),
		"stations_reporting", aggregate.StationsReporting,
		"total_stations", aggregate.TotalStations,
	)
	return aggregate, nil
}

// ComputeAggregate is a pure function of the verified submissions beneath a
// location. Duplicate verified submissions for one station collapse to the
// most recently verified.
func ComputeAggregate(
	location entities.Location,
	position entities.Position,
	totalStations int,
	verified []entities.Submission,
) entities.AggregatedResult {
	selected := services.LatestPerStation(verified)
	aggregate := entities.AggregatedResult{
		LocationID:        location.LocationID,
		Level:             location.Level,
		Position:          position,
		StationsReporting: len(selected),
		TotalStations:     totalStations,
		Candidates:        []entities.CandidateTotal{},
	}

	type candidateKey struct {
		name  string
		party string
	}
	totals := map[candidateKey]int64{}
	for _, item := range selected {
		result := item.Result
		aggregate.TotalRegisteredVoters += result.RegisteredVoters
		aggregate.TotalVotesCast += result.TotalVotesCast
		aggregate.TotalValidVotes += result.ValidVotes
		aggregate.TotalRejectedVotes += result.RejectedVotes
		for _, vote := range result.CandidateVotes {
			totals[candidateKey{name: vote.CandidateName, party: vote.PartyName}] += vote.Votes
		}
	}

	aggregate.TurnoutPercentage = percentage(aggregate.TotalVotesCast, aggregate.TotalRegisteredVoters)
	for key, votes := range totals {
		aggregate.Candidates = append(aggregate.Candidates, entities.CandidateTotal{
			CandidateName: key.name,
			PartyName:     key.party,
			Votes:         votes,
			Percentage:    percentage(votes, aggregate.TotalValidVotes),
		})
	}
	sort.Slice(aggregate.Candidates, func(i, j int) bool {
		a, b := aggregate.Candidates[i], aggregate.Candidates[j]
		if a.Votes != b.Votes {
			return a.Votes > b.Votes
		}
		if a.CandidateName != b.CandidateName {
			return a.CandidateName < b.CandidateName
		}
		return a.PartyName < b.PartyName
	})
	return aggregate
}

// percentage returns part/whole*100 rounded half-up to two places, or 0 for an empty whole.
func percentage(part int64, whole int64) float64 {
	if whole == 0 {
		return 0
	}
	return decimal.NewFromInt(part).
		Mul(decimal.NewFromInt(100)).
		DivRound(decimal.NewFromInt(whole), 2).
		InexactFloat64()
}
