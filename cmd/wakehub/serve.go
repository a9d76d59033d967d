package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fgeck/wakehub/internal/api"
	"github.com/fgeck/wakehub/internal/metrics"
	"github.com/fgeck/wakehub/internal/registry"
	"github.com/fgeck/wakehub/internal/services/coordinator"
	"github.com/fgeck/wakehub/internal/services/poller"
	"github.com/fgeck/wakehub/internal/services/probe"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownGrace = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP service and the status poller",
	Long: `Run wakehub as a long-lived service:
1. Probe every configured host on a fixed interval
2. Serve host status on GET /status
3. Accept wake and shutdown requests on POST /wake/{id} and /shutdown/{id}
4. Expose Prometheus metrics on GET /metrics

SIGINT or SIGTERM stops the server and waits for running operations.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	reg, err := registry.New(cfg.Hosts)
	if err != nil {
		log.Error().Err(err).Msg("invalid host list")
		return err
	}

	log.Info().
		Str("config", configFile).
		Str("listen", cfg.Server.Listen).
		Int("hosts", len(cfg.Hosts)).
		Msg("configuration loaded")

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(promReg)

	prober := probe.New(log.Logger, cfg.Probe, cfg.Timing.ProbeTimeout)
	coord := coordinator.New(log.Logger, *cfg, reg, prober, m)
	poll := poller.New(log.Logger, reg, prober, cfg.Timing.PollInterval, m)

	srv := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           api.New(log.Logger, reg, coord, promReg).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Set up context with signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			log.Warn().Str("signal", sig.String()).Msg("received signal, shutting down")
			cancel()
		case <-ctx.Done():
		}
	}()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return poll.Run(gctx)
	})

	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()

	log.Info().Msg("waiting for running operations")
	coord.Wait()

	if err != nil {
		log.Error().Err(err).Msg("server failed")
		return err
	}

	log.Info().Msg("stopped")
	return nil
}
