package config

import (
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/pelletier/go-toml/v2"
	"github.com/urfave/cli/v3"

	"github.com/metroplan-lab/civitas/pkg/domain/model"
	"github.com/metroplan-lab/civitas/pkg/domain/types"
)

// AppConfig represents the application configuration file. It declares the
// registered users and their roles; users absent from the file cannot chat.
type AppConfig struct {
	Users []UserConfig `toml:"user"`

	path string
}

// UserConfig is one registered user entry
type UserConfig struct {
	ID    string   `toml:"id"`
	Name  string   `toml:"name"`
	Roles []string `toml:"roles"`
}

// Validate checks if the UserConfig is valid
func (u *UserConfig) Validate() error {
	if err := types.UserID(u.ID).Validate(); err != nil {
		return goerr.Wrap(err, "invalid user ID")
	}
	if len(u.Roles) == 0 {
		return goerr.Wrap(ErrInvalidConfig, "user requires at least one role", goerr.V("id", u.ID))
	}
	for _, r := range u.Roles {
		if err := types.Role(r).Validate(); err != nil {
			return goerr.Wrap(err, "invalid role", goerr.V("id", u.ID))
		}
	}
	return nil
}

// Flags returns CLI flags for application configuration
func (a *AppConfig) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Usage:       "Path to application configuration file (TOML)",
			Sources:     cli.EnvVars("CIVITAS_CONFIG"),
			Destination: &a.path,
		},
	}
}

// Configure loads the configuration file and builds the user registry.
// Without a config file the registry is nil and any user ID is accepted,
// which is intended for development only.
func (a *AppConfig) Configure() (*model.UserRegistry, error) {
	if a.path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(a.path)
	if err != nil {
		return nil, goerr.Wrap(ErrConfigNotFound, "failed to read configuration file",
			goerr.V(ConfigPathKey, a.path),
			goerr.V("cause", err.Error()),
		)
	}

	if err := toml.Unmarshal(data, a); err != nil {
		return nil, goerr.Wrap(ErrInvalidConfig, "failed to parse configuration file",
			goerr.V(ConfigPathKey, a.path),
			goerr.V("cause", err.Error()),
		)
	}

	users := make([]*model.User, len(a.Users))
	for i, u := range a.Users {
		if err := u.Validate(); err != nil {
			return nil, goerr.Wrap(err, "invalid user entry",
				goerr.V(ConfigPathKey, a.path),
				goerr.V("index", i),
			)
		}
		roles := make([]types.Role, len(u.Roles))
		for j, r := range u.Roles {
			roles[j] = types.Role(r)
		}
		users[i] = &model.User{
			ID:    types.UserID(u.ID),
			Name:  u.Name,
			Roles: roles,
		}
	}

	registry, err := model.NewUserRegistry(users)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to build user registry",
			goerr.V(ConfigPathKey, a.path),
		)
	}
	return registry, nil
}
