package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/tinoosan/dubsync/internal/data"
	"github.com/tinoosan/dubsync/internal/downloader"
	"github.com/tinoosan/dubsync/internal/metrics"
	"github.com/tinoosan/dubsync/internal/reqid"
)

// Fetch outcome labels for dubsync_fetches_total.
const (
	OutcomeOK        = "ok"
	OutcomeFailed    = "failed"
	OutcomeEmpty     = "empty"
	OutcomeCancelled = "cancelled"
)

type Fetch interface {
	Fetch(ctx context.Context, url string) data.FetchResult
}

type fetch struct {
	f   downloader.Fetcher
	sem *semaphore.Weighted
	log *slog.Logger
}

// NewFetch bounds f to maxConcurrent simultaneous invocations. Values below 1
// serialize fetches.
func NewFetch(f downloader.Fetcher, maxConcurrent int, log *slog.Logger) Fetch {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	if log == nil {
		log = slog.Default()
	}
	return &fetch{f: f, sem: semaphore.NewWeighted(int64(maxConcurrent)), log: log}
}

func (s *fetch) Fetch(ctx context.Context, url string) data.FetchResult {
	url = strings.TrimSpace(url)
	log := reqid.Logger(ctx, s.log)
	if url == "" {
		metrics.Fetches.WithLabelValues(OutcomeEmpty).Inc()
		return data.FetchResult{Err: data.ErrEmptyURL, StartedAt: time.Now()}
	}

	if err := s.sem.Acquire(ctx, 1); err != nil {
		metrics.Fetches.WithLabelValues(OutcomeCancelled).Inc()
		log.Warn("fetch abandoned while queued", "url", url, "err", err)
		return data.FetchResult{URL: url, Err: err, StartedAt: time.Now()}
	}
	defer s.sem.Release(1)

	var res data.FetchResult
	// Reuse the request id as the file token so the artifact can be traced
	// back to the request that produced it.
	if tf, ok := s.f.(downloader.TokenFetcher); ok {
		token, _ := reqid.From(ctx)
		if !reqid.FileSafe(token) {
			token = ""
		}
		res = tf.FetchWithToken(ctx, url, token)
	} else {
		res = s.f.Fetch(ctx, url)
	}

	metrics.FetchDuration.Observe(res.Duration.Seconds())
	switch {
	case res.OK():
		metrics.Fetches.WithLabelValues(OutcomeOK).Inc()
		log.Info("fetched", "url", url, "path", res.Path, "duration", res.Duration)
	case ctx.Err() != nil:
		metrics.Fetches.WithLabelValues(OutcomeCancelled).Inc()
		log.Warn("fetch cancelled", "url", url, "err", res.Err)
	default:
		metrics.Fetches.WithLabelValues(OutcomeFailed).Inc()
		log.Error("fetch failed", "url", url, "exit_code", res.ExitCode, "err", res.Err)
	}
	return res
}
