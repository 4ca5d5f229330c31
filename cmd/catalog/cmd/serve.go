package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/mawsim/catalog/internal/jobs"
	"github.com/mawsim/catalog/internal/metrics"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the catalog service",
	Long: `Run the catalog service: the River job scheduler (periodic ingestion,
nightly maintenance, candidate cleanup, projection retries) plus an HTTP
listener for metrics and health checks.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.sync.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("ensure search schema: %w", err)
		}

		sitemap := &jobs.HTTPSitemapNotifier{URL: os.Getenv("SITEMAP_PING_URL")}
		workers := jobs.NewWorkers(a.orchestrator, a.store, a.editorial, a.scorer, a.sync, sitemap, a.logger)
		client, err := jobs.NewClient(a.pool, workers, slog.Default(), jobs.NewPeriodicJobs(), a.cfg.Jobs.Workers)
		if err != nil {
			return fmt.Errorf("create job client: %w", err)
		}
		a.enqueuer.Client = client

		if err := client.Start(ctx); err != nil {
			return fmt.Errorf("start job client: %w", err)
		}
		a.logger.Info().Msg("job scheduler started")

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			checkCtx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel()
			if err := a.pool.Ping(checkCtx); err != nil {
				http.Error(w, "database unavailable", http.StatusServiceUnavailable)
				return
			}
			if err := a.sync.Healthy(checkCtx); err != nil {
				metrics.SearchHealth.Set(0)
				http.Error(w, "search unavailable", http.StatusServiceUnavailable)
				return
			}
			metrics.SearchHealth.Set(1)
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		})

		server := &http.Server{
			Addr:              fmt.Sprintf("%s:%d", a.cfg.Server.Host, a.cfg.Server.Port),
			Handler:           mux,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      30 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
		}

		go func() {
			a.logger.Info().Str("addr", server.Addr).Msg("http listener started")
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error().Err(err).Msg("http server error")
			}
		}()

		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
		<-stop
		a.logger.Info().Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := client.Stop(shutdownCtx); err != nil {
			a.logger.Warn().Err(err).Msg("job client stop")
		}
		if err := server.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn().Err(err).Msg("http shutdown")
		}
		return nil
	},
}
