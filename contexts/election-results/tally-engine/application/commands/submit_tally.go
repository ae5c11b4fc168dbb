package commands

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	application "tallyhub/contexts/election-results/tally-engine/application"
	"tallyhub/contexts/election-results/tally-engine/domain/entities"
	domainerrors "tallyhub/contexts/election-results/tally-engine/domain/errors"
	"tallyhub/contexts/election-results/tally-engine/domain/services"
	"tallyhub/contexts/election-results/tally-engine/ports"
)

type SubmitTallyCommand struct {
	Actor       entities.Principal
	StationID   string
	Position    entities.Position
	Channel     entities.Channel
	EvidenceRef string
	Result      entities.Result
}

type SubmitTallyUseCase struct {
	Repository ports.SubmissionRepository
	Locations  ports.LocationRegistry
	// Evidence is optional; when nil, photo references are recorded unchecked.
	Evidence          ports.EvidenceStore
	Clock             ports.Clock
	IDGen             ports.IDGenerator
	Thresholds        services.AnomalyThresholds
	ValidationPenalty int
	Logger            *slog.Logger
}

func (uc SubmitTallyUseCase) Execute(ctx context.Context, cmd SubmitTallyCommand) (entities.Submission, error) {
	logger := application.ResolveLogger(uc.Logger)

	stationID := strings.TrimSpace(cmd.StationID)
	if stationID == "" || !cmd.Position.IsValid() {
		return entities.Submission{}, domainerrors.ErrInvalidInput
	}
	if _, ok := entities.ParseChannel(string(cmd.Channel)); !ok {
		return entities.Submission{}, domainerrors.ErrInvalidInput
	}

	chain, err := uc.Locations.AncestorChain(ctx, stationID)
	if err != nil {
		return entities.Submission{}, err
	}
	if len(chain) == 0 || !chain[0].IsStation() {
		return entities.Submission{}, domainerrors.ErrInvalidInput
	}
	station := chain[0]

	actor := normalizePrincipal(cmd.Actor)
	if err := services.AuthorizeSubmit(actor, cmd.Position, chain); err != nil {
		logger.Warn("tally submission denied",
			"event", "tally_submission_denied",
			"module", "election-results/tally-engine",
			"layer", "application",
			"actor_id", actor.UserID,
			"station_id", stationID,
			"position", string(cmd.Position),
			"error", err.Error(),
		)
		return entities.Submission{}, err
	}

	evidenceRef := strings.TrimSpace(cmd.EvidenceRef)
	if err := uc.checkEvidence(ctx, cmd.Channel, evidenceRef); err != nil {
		return entities.Submission{}, err
	}

	tuple := entities.SubmissionTuple{
		SubmitterID: actor.UserID,
		StationID:   stationID,
		Position:    cmd.Position,
		Channel:     cmd.Channel,
	}
	prior, found, err := uc.Repository.LatestForTuple(ctx, tuple)
	if err != nil {
		return entities.Submission{}, err
	}
	supersedesID := ""
	if found {
		if prior.Status.HoldsTuple() {
			return entities.Submission{}, domainerrors.ErrDuplicateSubmission
		}
		supersedesID = prior.SubmissionID
	}

	result := normalizeResult(cmd.Result)
	if vote, dup := services.DuplicateCandidate(result.CandidateVotes); dup {
		return entities.Submission{}, fmt.Errorf("candidate %q (party %q) listed twice: %w", vote.CandidateName, vote.PartyName, domainerrors.ErrInvalidInput)
	}
	verdict := services.ValidateResult(result)
	result.IsValid = verdict.Valid
	result.ValidationErrors = verdict.Violations
	result.RequiresManualVerification = !verdict.Valid || cmd.Channel == entities.ChannelManual

	confidence := entities.MaxConfidenceScore
	if !verdict.Valid {
		penalty := uc.ValidationPenalty
		if penalty <= 0 {
			penalty = services.DefaultValidationPenalty
		}
		confidence = services.ApplyConfidencePenalty(confidence, penalty)
	}

	anomalyInput, err := uc.anomalyContext(ctx, station, chain, cmd.Position, result)
	if err != nil {
		return entities.Submission{}, err
	}
	flags := services.DetectAnomalies(anomalyInput, uc.Thresholds)

	submissionID, err := uc.IDGen.NewID(ctx)
	if err != nil {
		return entities.Submission{}, err
	}
	now := uc.Clock.Now().UTC()
	submission := entities.Submission{
		SubmissionID:    submissionID,
		SubmitterID:     actor.UserID,
		StationID:       stationID,
		Position:        cmd.Position,
		Channel:         cmd.Channel,
		Status:          entities.SubmissionStatusPending,
		ConfidenceScore: confidence,
		Anomalies:       flags,
		EvidenceRef:     evidenceRef,
		SupersedesID:    supersedesID,
		SubmittedAt:     now,
		UpdatedAt:       now,
		Result:          result,
	}
	if len(flags) > 0 {
		submission.DiscrepancyFlag = true
		submission.DiscrepancyReason = services.DescribeAnomalies(flags)
	}

	if err := uc.Repository.CreateSubmission(ctx, submission); err != nil {
		logger.Error("tally submission persist failed",
			"event", "tally_submission_persist_failed",
			"module", "election-results/tally-engine",
			"layer", "application",
			"station_id", stationID,
			"position", string(cmd.Position),
			"error", err.Error(),
		)
		return entities.Submission{}, err
	}

	logger.Info("tally submitted",
		"event", "tally_submitted",
		"module", "election-results/tally-engine",
		"layer", "application",
		"submission_id", submission.SubmissionID,
		"station_id", stationID,
		"position", string(cmd.Position),
		"channel", string(cmd.Channel),
		"valid", verdict.Valid,
		"confidence_score", confidence,
		"anomaly_count", len(flags),
		"supersedes_id", supersedesID,
	)
	return submission, nil
}

func (uc SubmitTallyUseCase) checkEvidence(ctx context.Context, channel entities.Channel, ref string) error {
	if channel != entities.ChannelPhoto {
		return nil
	}
	if ref == "" {
		return domainerrors.ErrEvidenceMissing
	}
	if uc.Evidence == nil {
		return nil
	}
	exists, err := uc.Evidence.Exists(ctx, ref)
	if err != nil {
		return fmt.Errorf("check evidence %q: %w", ref, err)
	}
	if !exists {
		return domainerrors.ErrEvidenceMissing
	}
	return nil
}

// anomalyContext gathers ward sibling turnouts and matching fingerprints for the detector.
func (uc SubmitTallyUseCase) anomalyContext(
	ctx context.Context,
	station entities.Location,
	chain []entities.Location,
	position entities.Position,
	result entities.Result,
) (services.AnomalyInput, error) {
	input := services.AnomalyInput{
		Result:                   result,
		RegistryRegisteredVoters: station.RegisteredVoters,
	}

	if len(chain) > 1 {
		ward := chain[1]
		wardStations, err := uc.Locations.DescendantStations(ctx, ward.LocationID)
		if err != nil {
			return services.AnomalyInput{}, err
		}
		siblingIDs := make([]string, 0, len(wardStations))
		for _, sibling := range wardStations {
			if sibling.LocationID != station.LocationID {
				siblingIDs = append(siblingIDs, sibling.LocationID)
			}
		}
		if len(siblingIDs) > 0 {
			verified, err := uc.Repository.ListVerified(ctx, position, siblingIDs)
			if err != nil {
				return services.AnomalyInput{}, err
			}
			for _, item := range services.LatestPerStation(verified) {
				if turnout, ok := item.Result.Turnout(); ok {
					input.SiblingTurnouts = append(input.SiblingTurnouts, turnout)
				}
			}
		}
	}

	if result.TotalVotesCast > 0 {
		matches, err := uc.Repository.FingerprintStations(ctx, position, station.LocationID, result.Fingerprint())
		if err != nil {
			return services.AnomalyInput{}, err
		}
		sort.Strings(matches)
		input.FingerprintStations = matches
	}
	return input, nil
}

func normalizePrincipal(actor entities.Principal) entities.Principal {
	actor.UserID = strings.TrimSpace(actor.UserID)
	actor.ScopeLocationID = strings.TrimSpace(actor.ScopeLocationID)
	return actor
}

func normalizeResult(result entities.Result) entities.Result {
	votes := make([]entities.CandidateVote, 0, len(result.CandidateVotes))
	for _, vote := range result.CandidateVotes {
		votes = append(votes, entities.CandidateVote{
			CandidateName: strings.TrimSpace(vote.CandidateName),
			PartyName:     strings.TrimSpace(vote.PartyName),
			Votes:         vote.Votes,
		})
	}
	result.CandidateVotes = votes
	result.IsValid = false
	result.ValidationErrors = nil
	return result
}
