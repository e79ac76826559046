package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/metroplan-lab/civitas/pkg/cli/config"
	httpctrl "github.com/metroplan-lab/civitas/pkg/controller/http"
	"github.com/metroplan-lab/civitas/pkg/domain/interfaces"
	"github.com/metroplan-lab/civitas/pkg/service/embedding"
	"github.com/metroplan-lab/civitas/pkg/service/worker"
	"github.com/metroplan-lab/civitas/pkg/usecase"
	"github.com/metroplan-lab/civitas/pkg/utils/logging"
)

func cmdServe() *cli.Command {
	var addr string
	var statsInterval time.Duration
	var appCfg config.AppConfig
	var repoCfg config.Repository
	var geminiCfg config.Gemini
	var memoryCfg config.Memory

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "HTTP server address",
			Value:       ":8080",
			Sources:     cli.EnvVars("CIVITAS_ADDR"),
			Destination: &addr,
		},
		&cli.DurationFlag{
			Name:        "stats-interval",
			Usage:       "Interval of periodic memory stats logging (0 disables)",
			Value:       10 * time.Minute,
			Sources:     cli.EnvVars("CIVITAS_STATS_INTERVAL"),
			Destination: &statsInterval,
		},
	}

	// Add shared config flags
	flags = append(flags, appCfg.Flags()...)
	flags = append(flags, repoCfg.Flags()...)
	flags = append(flags, geminiCfg.Flags()...)
	flags = append(flags, memoryCfg.Flags()...)

	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Start HTTP server",
		Flags:   flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			registry, err := appCfg.Configure()
			if err != nil {
				return goerr.Wrap(err, "failed to load application configuration")
			}
			if registry == nil {
				logging.Default().Warn("No user configuration, accepting any user ID (development only)")
			}

			repo, err := repoCfg.Configure(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to initialize repository")
			}
			defer func() {
				if err := repo.Close(); err != nil {
					logging.Default().Error("failed to close repository", "error", err.Error())
				}
			}()

			llmClient, err := geminiCfg.Configure(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to configure Gemini client")
			}

			var embedder interfaces.Embedder
			if llmClient != nil {
				embedder = embedding.New(llmClient, repoCfg.Dimension(),
					embedding.WithTimeout(memoryCfg.EmbedTimeout()))
				logging.Default().Info("Gemini embeddings enabled")
			} else {
				embedder = embedding.NewLocal(repoCfg.Dimension())
				logging.Default().Warn("Gemini not configured, using local embeddings (development only)")
			}

			ucOpts := []usecase.Option{
				usecase.WithUsers(registry),
				usecase.WithContextBuilder(memoryCfg.Builder(repo.Conversation(), embedder)),
			}
			if llmClient != nil {
				ucOpts = append(ucOpts, usecase.WithLLM(llmClient))
			}
			uc := usecase.New(repo, embedder, ucOpts...)

			// Start periodic stats reporting
			var statsWorker *worker.StatsReportWorker
			if statsInterval > 0 {
				statsWorker = worker.NewStatsReportWorker(repo, statsInterval)
				if err := statsWorker.Start(ctx); err != nil {
					return goerr.Wrap(err, "failed to start stats report worker")
				}
			}

			server := &http.Server{
				Addr:              addr,
				Handler:           httpctrl.New(uc),
				ReadHeaderTimeout: 30 * time.Second,
			}

			// Setup signal handling for graceful shutdown
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

			errCh := make(chan error, 1)
			go func() {
				logging.Default().Info("Starting HTTP server", "addr", addr)
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errCh <- goerr.Wrap(err, "failed to start server")
				}
			}()

			select {
			case err := <-errCh:
				return err
			case sig := <-sigCh:
				logging.Default().Info("Received shutdown signal", "signal", sig)

				if statsWorker != nil {
					statsWorker.Stop()
				}

				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()

				if err := server.Shutdown(shutdownCtx); err != nil {
					return goerr.Wrap(err, "failed to shutdown server gracefully")
				}

				logging.Default().Info("Server shutdown completed")
				return nil
			}
		},
	}
}
