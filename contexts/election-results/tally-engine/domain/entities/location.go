package entities

import "strings"

// LocationLevel is one tier of the electoral geography.
type LocationLevel string

const (
	LevelNational     LocationLevel = "national"
	LevelCounty       LocationLevel = "county"
	LevelConstituency LocationLevel = "constituency"
	LevelWard         LocationLevel = "ward"
	LevelStation      LocationLevel = "station"
)

// Depth orders levels from the national root (0) down to polling stations (4).
// Unknown levels report -1.
func (l LocationLevel) Depth() int {
	switch l {
	case LevelNational:
		return 0
	case LevelCounty:
		return 1
	case LevelConstituency:
		return 2
	case LevelWard:
		return 3
	case LevelStation:
		return 4
	default:
		return -1
	}
}

func (l LocationLevel) IsValid() bool {
	return l.Depth() >= 0
}

// ParentLevel returns the level directly above l. National has no parent.
func (l LocationLevel) ParentLevel() (LocationLevel, bool) {
	switch l {
	case LevelStation:
		return LevelWard, true
	case LevelWard:
		return LevelConstituency, true
	case LevelConstituency:
		return LevelCounty, true
	case LevelCounty:
		return LevelNational, true
	default:
		return "", false
	}
}

func ParseLocationLevel(raw string) (LocationLevel, bool) {
	level := LocationLevel(strings.ToLower(strings.TrimSpace(raw)))
	if level == "polling_station" || level == "polling-station" {
		level = LevelStation
	}
	return level, level.IsValid()
}

// Location is one node of the read-only registry hierarchy.
// RegisteredVoters is only meaningful for stations.
type Location struct {
	LocationID       string
	Level            LocationLevel
	ParentID         string
	Name             string
	RegisteredVoters int64
}

func (l Location) IsStation() bool {
	return l.Level == LevelStation
}
