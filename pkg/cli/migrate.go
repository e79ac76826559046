package cli

import (
	"context"

	"github.com/m-mizutani/fireconf"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/metroplan-lab/civitas/pkg/domain/model"
	"github.com/metroplan-lab/civitas/pkg/utils/logging"
)

func cmdMigrate() *cli.Command {
	var projectID string
	var databaseID string
	var dimension int
	var dryRun bool

	return &cli.Command{
		Name:    "migrate",
		Aliases: []string{"m"},
		Usage:   "Migrate Firestore indexes",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "firestore-project-id",
				Usage:       "Firestore Project ID (required)",
				Required:    true,
				Sources:     cli.EnvVars("CIVITAS_FIRESTORE_PROJECT_ID"),
				Destination: &projectID,
			},
			&cli.StringFlag{
				Name:        "firestore-database-id",
				Usage:       "Firestore Database ID",
				Sources:     cli.EnvVars("CIVITAS_FIRESTORE_DATABASE_ID"),
				Destination: &databaseID,
			},
			&cli.IntFlag{
				Name:        "embedding-dimension",
				Usage:       "Embedding vector dimension for the vector index",
				Value:       model.DefaultEmbeddingDimension,
				Sources:     cli.EnvVars("CIVITAS_EMBEDDING_DIMENSION"),
				Destination: &dimension,
			},
			&cli.BoolFlag{
				Name:        "dry-run",
				Usage:       "Preview changes without applying",
				Destination: &dryRun,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			logger := logging.Default()

			logger.Info("Migrate configuration",
				"projectID", projectID,
				"databaseID", databaseID,
				"dimension", dimension,
				"dryRun", dryRun)

			indexConfig := getIndexConfig(dimension)

			client, err := fireconf.New(ctx, projectID, databaseID, indexConfig,
				fireconf.WithLogger(logger),
				fireconf.WithDryRun(dryRun))
			if err != nil {
				return goerr.Wrap(err, "failed to create fireconf client")
			}
			defer func() {
				if err := client.Close(); err != nil {
					logger.Error("failed to close fireconf client", "error", err.Error())
				}
			}()

			if dryRun {
				logger.Info("Dry run mode - previewing changes")
				if err := client.Migrate(ctx); err != nil {
					return goerr.Wrap(err, "failed to create migration plan")
				}
			} else {
				logger.Info("Applying migrations")
				if err := client.Migrate(ctx); err != nil {
					return goerr.Wrap(err, "failed to apply migrations")
				}
				logger.Info("Migrations applied successfully")
			}

			return nil
		},
	}
}

// getIndexConfig returns the Firestore index configuration for the
// conversations subcollections.
func getIndexConfig(dimension int) *fireconf.Config {
	if dimension <= 0 {
		dimension = model.DefaultEmbeddingDimension
	}
	return &fireconf.Config{
		Collections: []fireconf.Collection{
			{
				Name: "conversations",
				Indexes: []fireconf.Index{
					// GetSessionHistory: SessionID ASC, CreatedAt ASC
					{
						Fields: []fireconf.IndexField{
							{Path: "SessionID", Order: fireconf.OrderAscending},
							{Path: "CreatedAt", Order: fireconf.OrderAscending},
						},
					},
					// Vector search index for QuerySimilar
					{
						Fields: []fireconf.IndexField{
							{
								Path: "Embedding",
								Vector: &fireconf.VectorConfig{
									Dimension: dimension,
								},
							},
						},
					},
				},
			},
		},
	}
}
