package worker

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/metroplan-lab/civitas/pkg/domain/interfaces"
	"github.com/metroplan-lab/civitas/pkg/utils/logging"
)

// StatsReportWorker periodically logs memory store statistics so operators
// can watch growth without querying the store by hand.
//
// Architecture assumptions:
// - Single server instance (no distributed locking)
// - Stats collection is a full scan; the interval should stay in minutes,
//   not seconds, against a remote backend
type StatsReportWorker struct {
	repo     interfaces.Repository
	interval time.Duration
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewStatsReportWorker creates a worker that reports stats every interval.
func NewStatsReportWorker(repo interfaces.Repository, interval time.Duration) *StatsReportWorker {
	return &StatsReportWorker{
		repo:     repo,
		interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the background reporting loop. Does not block server startup.
func (w *StatsReportWorker) Start(ctx context.Context) error {
	logging.Default().Info("stats report worker starting",
		"interval", w.interval.String())

	go w.run(ctx)

	return nil
}

// Stop signals the worker to stop and waits for completion.
func (w *StatsReportWorker) Stop() {
	close(w.stopCh)
	<-w.doneCh
	logging.Default().Info("stats report worker stopped")
}

func (w *StatsReportWorker) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := w.report(ctx); err != nil {
				// Log error but continue worker
				logging.Default().Error("stats report failed (will retry next interval)",
					"error", err.Error())
			}

		case <-w.stopCh:
			return

		case <-ctx.Done():
			logging.Default().Info("stats report worker context cancelled")
			return
		}
	}
}

func (w *StatsReportWorker) report(ctx context.Context) error {
	startTime := time.Now()

	stats, err := w.repo.Conversation().Stats(ctx)
	if err != nil {
		return goerr.Wrap(err, "failed to collect memory stats")
	}

	logging.Default().Info("memory store stats",
		"totalRecords", stats.TotalRecords,
		"uniqueUsers", stats.UniqueUsers,
		"uniqueSessions", stats.UniqueSessions,
		"duration", time.Since(startTime).String())

	return nil
}
