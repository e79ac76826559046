package types

import "github.com/m-mizutani/goerr/v2"

// Role represents an access role of a registered user
type Role string

const (
	RoleCitizen Role = "citizen"
	RolePlanner Role = "planner"
	RoleAdmin   Role = "admin"
)

// Validate checks if the Role is one of the recognized roles
func (r Role) Validate() error {
	switch r {
	case RoleCitizen, RolePlanner, RoleAdmin:
		return nil
	}
	return goerr.Wrap(ErrInvalidArgument, "unknown role", goerr.V("role", r))
}

// String returns the string representation of Role
func (r Role) String() string {
	return string(r)
}
