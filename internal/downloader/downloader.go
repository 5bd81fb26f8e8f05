package downloader

import (
	"context"

	"github.com/tinoosan/dubsync/internal/data"
)

// Fetcher downloads a single media URL into the downloads directory. It never
// panics and never returns an error out of band: failures are carried in
// FetchResult.Err.
type Fetcher interface {
	Fetch(ctx context.Context, url string) data.FetchResult
}

// TokenFetcher is implemented by fetchers that accept a caller-chosen token to
// tag the produced file, so the caller can correlate it with its own request.
type TokenFetcher interface {
	Fetcher
	FetchWithToken(ctx context.Context, url, token string) data.FetchResult
}
