package services

import (
	"tallyhub/contexts/election-results/tally-engine/domain/entities"
	domainerrors "tallyhub/contexts/election-results/tally-engine/domain/errors"
)

// AuthorizeSubmit allows any known role to report a tally; candidates are
// limited to their own seat and electoral area.
func AuthorizeSubmit(actor entities.Principal, position entities.Position, stationChain []entities.Location) error {
	if actor.UserID == "" || !actor.Role.IsValid() {
		return domainerrors.ErrUnauthorizedActor
	}
	if actor.Role == entities.RoleCandidate && !WithinScope(actor, position, stationChain) {
		return domainerrors.ErrOutOfScope
	}
	return nil
}

// AuthorizeReview grants reviewer capability to administrators everywhere and
// to candidates inside their own electoral area. Agents never review.
func AuthorizeReview(actor entities.Principal, position entities.Position, stationChain []entities.Location) error {
	if actor.UserID == "" {
		return domainerrors.ErrUnauthorizedActor
	}
	switch actor.Role {
	case entities.RoleAdmin:
		return nil
	case entities.RoleCandidate:
		if !WithinScope(actor, position, stationChain) {
			return domainerrors.ErrOutOfScope
		}
		return nil
	default:
		return domainerrors.ErrUnauthorizedActor
	}
}

// WithinScope reports whether a candidate's seat covers the station whose
// ancestor chain (station first, national last) is given.
func WithinScope(actor entities.Principal, position entities.Position, stationChain []entities.Location) bool {
	if actor.Position != position {
		return false
	}
	scope := position.ScopeLevel()
	switch scope {
	case "":
		return false
	case entities.LevelNational:
		return true
	}
	for _, location := range stationChain {
		if location.Level == scope && location.LocationID == actor.ScopeLocationID {
			return true
		}
	}
	return false
}
