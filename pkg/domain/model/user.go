package model

import (
	"github.com/m-mizutani/goerr/v2"
	"github.com/metroplan-lab/civitas/pkg/domain/types"
)

// User is a registered user of the assistant. Users and their roles come
// from the application config file; there is no self-service signup.
type User struct {
	ID    types.UserID
	Name  string
	Roles []types.Role
}

// HasRole reports whether the user carries the given role
func (u *User) HasRole(role types.Role) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// PrimaryRole returns the most privileged role the user carries, defaulting
// to citizen when the user has no roles.
func (u *User) PrimaryRole() types.Role {
	for _, role := range []types.Role{types.RoleAdmin, types.RolePlanner, types.RoleCitizen} {
		if u.HasRole(role) {
			return role
		}
	}
	return types.RoleCitizen
}

// UserRegistry is the set of registered users, looked up per request at the
// chat boundary.
type UserRegistry struct {
	users map[types.UserID]*User
}

// NewUserRegistry builds a registry from the given users. Duplicate IDs are
// rejected.
func NewUserRegistry(users []*User) (*UserRegistry, error) {
	m := make(map[types.UserID]*User, len(users))
	for _, u := range users {
		if err := u.ID.Validate(); err != nil {
			return nil, err
		}
		if _, exists := m[u.ID]; exists {
			return nil, goerr.Wrap(types.ErrInvalidArgument, "duplicate user ID", goerr.V("id", u.ID))
		}
		for _, r := range u.Roles {
			if err := r.Validate(); err != nil {
				return nil, err
			}
		}
		m[u.ID] = u
	}
	return &UserRegistry{users: m}, nil
}

// Get returns the user for the given ID, or nil if not registered
func (r *UserRegistry) Get(id types.UserID) *User {
	if r == nil {
		return nil
	}
	return r.users[id]
}

// Len returns the number of registered users
func (r *UserRegistry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.users)
}
