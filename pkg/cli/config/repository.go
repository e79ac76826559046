package config

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/metroplan-lab/civitas/pkg/domain/interfaces"
	"github.com/metroplan-lab/civitas/pkg/domain/model"
	"github.com/metroplan-lab/civitas/pkg/repository/chromem"
	"github.com/metroplan-lab/civitas/pkg/repository/firestore"
	"github.com/metroplan-lab/civitas/pkg/repository/memory"
	"github.com/metroplan-lab/civitas/pkg/utils/logging"
)

// Repository holds CLI flags for repository backend configuration
type Repository struct {
	backend    string
	projectID  string
	databaseID string
	dimension  int
}

// Flags returns CLI flags for repository configuration
func (r *Repository) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "repository-backend",
			Usage:       "Repository backend type (firestore, chromem or memory)",
			Value:       "memory",
			Sources:     cli.EnvVars("CIVITAS_REPOSITORY_BACKEND"),
			Destination: &r.backend,
		},
		&cli.StringFlag{
			Name:        "firestore-project-id",
			Usage:       "Firestore Project ID (required when using firestore backend)",
			Sources:     cli.EnvVars("CIVITAS_FIRESTORE_PROJECT_ID"),
			Destination: &r.projectID,
		},
		&cli.StringFlag{
			Name:        "firestore-database-id",
			Usage:       "Firestore Database ID",
			Sources:     cli.EnvVars("CIVITAS_FIRESTORE_DATABASE_ID"),
			Destination: &r.databaseID,
		},
		&cli.IntFlag{
			Name:        "embedding-dimension",
			Usage:       "Embedding vector dimension, fixed at store initialization",
			Value:       model.DefaultEmbeddingDimension,
			Sources:     cli.EnvVars("CIVITAS_EMBEDDING_DIMENSION"),
			Destination: &r.dimension,
		},
	}
}

// Backend returns the configured backend type
func (r *Repository) Backend() string {
	return r.backend
}

// ProjectID returns the Firestore project ID
func (r *Repository) ProjectID() string {
	return r.projectID
}

// DatabaseID returns the Firestore database ID
func (r *Repository) DatabaseID() string {
	return r.databaseID
}

// Dimension returns the embedding dimension
func (r *Repository) Dimension() int {
	return r.dimension
}

// Configure initializes and returns a repository based on the configured backend.
// The caller is responsible for calling Close() on the returned repository.
func (r *Repository) Configure(ctx context.Context) (interfaces.Repository, error) {
	switch r.backend {
	case "firestore":
		if r.projectID == "" {
			return nil, goerr.New("firestore-project-id is required when using firestore backend")
		}
		repo, err := firestore.New(ctx, r.projectID, r.databaseID, r.dimension)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to initialize firestore repository")
		}
		logging.Default().Info("Using Firestore repository",
			"project_id", r.projectID,
			"database_id", r.databaseID,
			"dimension", r.dimension,
		)
		return repo, nil

	case "chromem":
		repo, err := chromem.New(r.dimension)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to initialize chromem repository")
		}
		logging.Default().Info("Using chromem repository (embedded vector store)",
			"dimension", r.dimension,
		)
		return repo, nil

	case "memory":
		logging.Default().Info("Using in-memory repository (development mode)",
			"dimension", r.dimension,
		)
		return memory.New(r.dimension), nil

	default:
		return nil, goerr.New("invalid repository backend", goerr.V("backend", r.backend))
	}
}
