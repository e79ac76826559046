// Package citydata exposes municipal data sources to the chat agent. Each
// source answers a narrow question (weather, traffic, demographics, ...) and
// declares which roles may consult it. The current sources serve static
// survey tables; a live API client can replace any of them behind the same
// interface.
package citydata

import (
	"context"

	"github.com/metroplan-lab/civitas/pkg/domain/types"
)

// Source is a single consultable city data set.
type Source interface {
	// Name is a stable identifier, usable as a tool name.
	Name() string

	// Description tells the agent when to consult this source.
	Description() string

	// Roles lists the roles allowed to consult this source.
	Roles() []types.Role

	// Summary answers the query from the source's data.
	Summary(ctx context.Context, query string) (string, error)
}

// All returns every registered source.
func All() []Source {
	return []Source{
		&weatherSource{},
		&airQualitySource{},
		&trafficSource{},
		&demographicsSource{},
		&propertyTrendsSource{},
		&budgetSource{},
	}
}

// ForRole filters sources down to those the role may consult.
func ForRole(role types.Role) []Source {
	var allowed []Source
	for _, src := range All() {
		for _, r := range src.Roles() {
			if r == role {
				allowed = append(allowed, src)
				break
			}
		}
	}
	return allowed
}

func allRoles() []types.Role {
	return []types.Role{types.RoleCitizen, types.RolePlanner, types.RoleAdmin}
}

func staffRoles() []types.Role {
	return []types.Role{types.RolePlanner, types.RoleAdmin}
}
