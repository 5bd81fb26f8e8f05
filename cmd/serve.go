package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tinoosan/dubsync/internal/events"
	"github.com/tinoosan/dubsync/internal/ledger"
	"github.com/tinoosan/dubsync/internal/metrics"
	"github.com/tinoosan/dubsync/internal/router"
	"github.com/tinoosan/dubsync/internal/service"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the sync engine and the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	cfg, log := a.cfg, a.log
	metrics.Register()

	l, closeLedger, err := openLedger(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeLedger.Close()

	hub := events.NewHub(64)
	engine, err := newEngine(cfg, l, hub, log)
	if err != nil {
		return err
	}
	engine.Run(ctx)
	defer engine.Stop()

	var pinger ledger.Pinger
	if p, ok := l.(ledger.Pinger); ok {
		pinger = p
	}
	staleAfter := 3*cfg.PollInterval + cfg.StabilityWindow*time.Duration(cfg.StabilitySamples)
	handler := router.New(log, router.Deps{
		Fetch:        service.NewFetch(newFetcher(cfg, log), cfg.MaxConcurrentFetches, log),
		Replications: service.NewReplications(l),
		Events:       hub,
		Ready:        router.EngineReady(engine.LastProgress, staleAfter, pinger),
		APIToken:     cfg.APIToken,
	})
	if cfg.APIToken == "" {
		log.Warn("api token not set, HTTP API is unauthenticated")
	}

	// No write timeout: fetches block for up to fetch_timeout and the event
	// stream stays open indefinitely.
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting dubsync API", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("graceful shutdown")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
