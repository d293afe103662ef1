package core

// Role is a principal's relation to a farm.
type Role string

const (
	RoleOwner      Role = "owner"
	RoleAdvisor    Role = "advisor"
	RoleResearcher Role = "researcher"
)

// Action is something a principal may attempt on a farm's data.
type Action int

const (
	ActionRead Action = iota
	ActionWrite
	ActionShare
)

func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleAdvisor, RoleResearcher:
		return true
	}
	return false
}

// Permits reports whether r allows a. Researchers only read; advisors
// read and write; owners may also share the farm.
func (r Role) Permits(a Action) bool {
	switch r {
	case RoleOwner:
		return true
	case RoleAdvisor:
		return a == ActionRead || a == ActionWrite
	case RoleResearcher:
		return a == ActionRead
	}
	return false
}
