package cli

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/metroplan-lab/civitas/pkg/cli/config"
	"github.com/metroplan-lab/civitas/pkg/service/embedding"
	"github.com/metroplan-lab/civitas/pkg/usecase"
	"github.com/metroplan-lab/civitas/pkg/utils/logging"
)

func cmdPrune() *cli.Command {
	var olderThan time.Duration
	var repoCfg config.Repository

	flags := []cli.Flag{
		&cli.DurationFlag{
			Name:        "older-than",
			Usage:       "Delete conversation records older than this duration (e.g. 2160h for 90 days)",
			Required:    true,
			Sources:     cli.EnvVars("CIVITAS_PRUNE_OLDER_THAN"),
			Destination: &olderThan,
		},
	}
	flags = append(flags, repoCfg.Flags()...)

	return &cli.Command{
		Name:  "prune",
		Usage: "Delete conversation records past the retention period",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			repo, err := repoCfg.Configure(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to initialize repository")
			}
			defer func() {
				if err := repo.Close(); err != nil {
					logging.Default().Error("failed to close repository", "error", err.Error())
				}
			}()

			uc := usecase.New(repo, embedding.NewLocal(repoCfg.Dimension()))

			deleted, err := uc.Prune(ctx, olderThan)
			if err != nil {
				return goerr.Wrap(err, "failed to prune records")
			}

			logging.Default().Info("Prune completed", "deleted", deleted)
			return nil
		},
	}
}
