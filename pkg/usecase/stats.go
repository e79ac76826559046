package usecase

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/metroplan-lab/civitas/pkg/domain/model"
	"github.com/metroplan-lab/civitas/pkg/domain/types"
	"github.com/metroplan-lab/civitas/pkg/utils/logging"
)

// Stats returns store-wide memory statistics.
func (uc *UseCases) Stats(ctx context.Context) (*model.MemoryStats, error) {
	return uc.repo.Conversation().Stats(ctx)
}

// Prune deletes records older than the given retention period and returns
// how many were removed.
func (uc *UseCases) Prune(ctx context.Context, olderThan time.Duration) (int, error) {
	if olderThan <= 0 {
		return 0, goerr.Wrap(types.ErrInvalidArgument, "retention period must be positive",
			goerr.V("olderThan", olderThan),
		)
	}

	cutoff := time.Now().UTC().Add(-olderThan)
	deleted, err := uc.repo.Conversation().DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return deleted, goerr.Wrap(err, "failed to prune old records",
			goerr.V("cutoff", cutoff),
		)
	}

	logging.From(ctx).Info("pruned old conversation records",
		"deleted", deleted,
		"cutoff", cutoff,
	)
	return deleted, nil
}
