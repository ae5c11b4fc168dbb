package commands

import (
	"context"
	"sync"
	"testing"
	"time"

	"tallyhub/contexts/election-results/tally-engine/adapters/memory"
	"tallyhub/contexts/election-results/tally-engine/domain/entities"
	"tallyhub/contexts/election-results/tally-engine/domain/services"

	"github.com/stretchr/testify/require"
)

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func testLocations() []entities.Location {
	return []entities.Location{
		{LocationID: "KE", Level: entities.LevelNational, Name: "Kenya"},
		{LocationID: "C-047", Level: entities.LevelCounty, ParentID: "KE", Name: "Nairobi"},
		{LocationID: "CN-274", Level: entities.LevelConstituency, ParentID: "C-047", Name: "Westlands"},
		{LocationID: "W-1", Level: entities.LevelWard, ParentID: "CN-274", Name: "Parklands"},
		{LocationID: "W-2", Level: entities.LevelWard, ParentID: "CN-274", Name: "Kangemi"},
		{LocationID: "PS-1", Level: entities.LevelStation, ParentID: "W-1", Name: "Parklands Primary", RegisteredVoters: 500},
		{LocationID: "PS-2", Level: entities.LevelStation, ParentID: "W-1", Name: "Highridge", RegisteredVoters: 400},
		{LocationID: "PS-3", Level: entities.LevelStation, ParentID: "W-1", Name: "City Park", RegisteredVoters: 400},
		{LocationID: "PS-4", Level: entities.LevelStation, ParentID: "W-1", Name: "Aga Khan", RegisteredVoters: 400},
		{LocationID: "PS-5", Level: entities.LevelStation, ParentID: "W-2", Name: "Kangemi Hall", RegisteredVoters: 600},
	}
}

type harness struct {
	store  *memory.Store
	cache  *memory.AggregateCache
	submit SubmitTallyUseCase
	review ReviewSubmissionUseCase
}

func newHarness(t *testing.T) harness {
	t.Helper()
	registry, err := memory.NewLocationRegistry(testLocations())
	require.NoError(t, err)
	store := memory.NewStore(nil)
	cache := memory.NewAggregateCache()
	clock := &stepClock{now: time.Date(2027, 8, 9, 17, 0, 0, 0, time.UTC)}
	return harness{
		store: store,
		cache: cache,
		submit: SubmitTallyUseCase{
			Repository: store,
			Locations:  registry,
			Clock:      clock,
			IDGen:      store,
			Thresholds: services.DefaultAnomalyThresholds(),
		},
		review: ReviewSubmissionUseCase{
			Repository: store,
			Locations:  registry,
			Cache:      cache,
			Clock:      clock,
			IDGen:      store,
		},
	}
}

var (
	agent = entities.Principal{UserID: "agent-1", Role: entities.RoleAgent}
	admin = entities.Principal{UserID: "admin-1", Role: entities.RoleAdmin}
)

func exampleResult() entities.Result {
	return entities.Result{
		RegisteredVoters: 500,
		TotalVotesCast:   480,
		ValidVotes:       470,
		RejectedVotes:    10,
		CandidateVotes: []entities.CandidateVote{
			{CandidateName: "A", PartyName: "P1", Votes: 300},
			{CandidateName: "B", PartyName: "P2", Votes: 170},
		},
	}
}

func submitCommand(actor entities.Principal, stationID string, result entities.Result) SubmitTallyCommand {
	return SubmitTallyCommand{
		Actor:     actor,
		StationID: stationID,
		Position:  entities.PositionPresident,
		Channel:   entities.ChannelManual,
		Result:    result,
	}
}

func (h harness) mustSubmit(t *testing.T, cmd SubmitTallyCommand) entities.Submission {
	t.Helper()
	submission, err := h.submit.Execute(context.Background(), cmd)
	require.NoError(t, err)
	return submission
}

func (h harness) mustReview(t *testing.T, submissionID string, action entities.ReviewAction) entities.Submission {
	t.Helper()
	submission, err := h.review.Execute(context.Background(), ReviewSubmissionCommand{
		SubmissionID: submissionID,
		Actor:        admin,
		Action:       action,
	})
	require.NoError(t, err)
	return submission
}
