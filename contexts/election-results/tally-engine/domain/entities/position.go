package entities

import "strings"

// Position is the closed set of contested seats.
type Position string

const (
	PositionPresident              Position = "president"
	PositionGovernor               Position = "governor"
	PositionSenator                Position = "senator"
	PositionWomenRepresentative    Position = "women-representative"
	PositionMemberOfParliament     Position = "member-of-parliament"
	PositionMemberOfCountyAssembly Position = "member-of-county-assembly"
)

var allPositions = []Position{
	PositionPresident,
	PositionGovernor,
	PositionSenator,
	PositionWomenRepresentative,
	PositionMemberOfParliament,
	PositionMemberOfCountyAssembly,
}

func AllPositions() []Position {
	return append([]Position(nil), allPositions...)
}

// ScopeLevel is the electoral area a candidate for this seat is restricted to.
// Every position maps to exactly one level; an empty result means the
// position is unknown.
func (p Position) ScopeLevel() LocationLevel {
	switch p {
	case PositionPresident:
		return LevelNational
	case PositionGovernor, PositionSenator, PositionWomenRepresentative:
		return LevelCounty
	case PositionMemberOfParliament:
		return LevelConstituency
	case PositionMemberOfCountyAssembly:
		return LevelWard
	default:
		return ""
	}
}

func (p Position) IsValid() bool {
	return p.ScopeLevel() != ""
}

func ParsePosition(raw string) (Position, bool) {
	value := strings.ToLower(strings.TrimSpace(raw))
	value = strings.ReplaceAll(value, "_", "-")
	switch value {
	case "mp":
		value = string(PositionMemberOfParliament)
	case "mca":
		value = string(PositionMemberOfCountyAssembly)
	case "women-rep":
		value = string(PositionWomenRepresentative)
	}
	position := Position(value)
	return position, position.IsValid()
}
