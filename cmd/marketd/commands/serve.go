package commands

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/cloudx-io/openmarket/api"
	"github.com/cloudx-io/openmarket/core"
	"github.com/cloudx-io/openmarket/engine"
	"github.com/cloudx-io/openmarket/events"
	"github.com/cloudx-io/openmarket/sweeper"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, metrics endpoint and sweeper",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd.Context())
		},
	}
	cmd.Flags().String("http-addr", ":8080", "HTTP API listen address")
	cmd.Flags().String("metrics-addr", ":9090", "Prometheus metrics listen address")
	cmd.Flags().String("store", "memory", "listing store (memory|postgres)")
	cmd.Flags().String("lock", "local", "per-listing lock for the memory store (local|redis)")
	return cmd
}

func (a *app) serve(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	m, err := newMarket(ctx, a.cfg, a.logger, engine.PrometheusMetrics("market"))
	if err != nil {
		return err
	}
	defer m.Close()

	opts := []api.ServerOption{api.WithLogger(a.logger), api.WithCollaboratorToken(a.cfg.CollaboratorToken)}
	if a.cfg.CollaboratorToken == "" {
		a.logger.Warn().Msg("collaborator_token is not set, payment and completion callbacks are refused")
	}
	if m.redis != nil {
		opts = append(opts, api.WithSubscriber(func(ctx context.Context, listingID string) (<-chan core.Event, error) {
			return events.Subscribe(ctx, m.redis, listingID, a.logger)
		}))
	}
	apiServer := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           api.NewServer(m.engine, opts...).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:              a.cfg.MetricsAddr,
		Handler:           metricsMux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info().Str("addr", apiServer.Addr).Msg("HTTP API listening")
		return listen(apiServer)
	})
	g.Go(func() error {
		a.logger.Info().Str("addr", metricsServer.Addr).Msg("metrics listening")
		return listen(metricsServer)
	})
	g.Go(func() error {
		return sweeper.New(m.engine, a.cfg.SweepInterval, a.logger).Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return errors.Join(apiServer.Shutdown(shutdownCtx), metricsServer.Shutdown(shutdownCtx))
	})
	return g.Wait()
}

func listen(srv *http.Server) error {
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
