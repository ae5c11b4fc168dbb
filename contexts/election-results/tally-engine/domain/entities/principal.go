package entities

// Role is supplied by the identity provider; it is trusted as-is.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleCandidate Role = "candidate"
	RoleAgent     Role = "agent"
)

func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleCandidate, RoleAgent:
		return true
	default:
		return false
	}
}

// Principal is the authenticated caller of every operation.
// Position and ScopeLocationID are only set for candidates.
type Principal struct {
	UserID          string
	Role            Role
	Position        Position
	ScopeLocationID string
}
