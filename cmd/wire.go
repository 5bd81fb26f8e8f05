package main

import (
	"context"
	"io"
	"log/slog"

	"github.com/tinoosan/dubsync/internal/config"
	"github.com/tinoosan/dubsync/internal/downloader/ytdlp"
	"github.com/tinoosan/dubsync/internal/events"
	"github.com/tinoosan/dubsync/internal/ledger"
	"github.com/tinoosan/dubsync/internal/replicator"
	"github.com/tinoosan/dubsync/internal/stability"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// openLedger picks the PostgreSQL ledger when a DSN is configured and the
// in-memory one otherwise.
func openLedger(ctx context.Context, cfg *config.Config, log *slog.Logger) (ledger.Ledger, io.Closer, error) {
	if cfg.LedgerDSN == "" {
		log.Info("using in-memory replication ledger")
		return ledger.NewInMemory(), nopCloser{}, nil
	}
	pg, err := ledger.NewPostgres(ctx, cfg.LedgerDSN)
	if err != nil {
		return nil, nil, err
	}
	log.Info("using postgres replication ledger")
	return pg, pg, nil
}

func newEngine(cfg *config.Config, l ledger.Ledger, rep events.Reporter, log *slog.Logger) (*replicator.Engine, error) {
	return replicator.New(replicator.Options{
		OutputDir:       cfg.OutputDir,
		BackupDir:       cfg.BackupDir,
		Pattern:         cfg.OutputPattern,
		PollInterval:    cfg.PollInterval,
		Watch:           cfg.Watch,
		IdentityMode:    cfg.IdentityMode,
		DigestCacheSize: cfg.DigestCacheSize,
		Probe:           stability.New(cfg.StabilityWindow, cfg.StabilitySamples),
		Ledger:          l,
		Reporter:        rep,
		Logger:          log.With("component", "replicator"),
	})
}

func newFetcher(cfg *config.Config, log *slog.Logger) *ytdlp.Adapter {
	a := ytdlp.NewAdapter(ytdlp.Config{
		Tool:         cfg.FetchTool,
		Args:         cfg.FetchArgs,
		DownloadsDir: cfg.DownloadsDir,
		MergeFormat:  cfg.MergeFormat,
		Timeout:      cfg.FetchTimeout,
	})
	a.SetLogger(log.With("component", "fetch"))
	return a
}
