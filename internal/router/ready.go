package router

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/tinoosan/dubsync/internal/ledger"
)

const readyTimeout = 2 * time.Second

// ReadyFunc returns nil when the process can do useful work.
type ReadyFunc func(ctx context.Context) error

// EngineReady reports ready while the sync engine keeps making progress:
// lastProgress must lie within maxAge. The engine stamps progress per
// candidate, so a long cycle over many files stays ready. When p is non-nil
// the ledger must also answer a ping.
func EngineReady(lastProgress func() time.Time, maxAge time.Duration, p ledger.Pinger) ReadyFunc {
	return func(ctx context.Context) error {
		last := lastProgress()
		if last.IsZero() {
			return fmt.Errorf("sync engine has not started yet")
		}
		if age := time.Since(last); age > maxAge {
			return fmt.Errorf("sync engine made no progress for %s", age.Truncate(time.Second))
		}
		if p != nil {
			if err := p.Ping(ctx); err != nil {
				return fmt.Errorf("ledger: %w", err)
			}
		}
		return nil
	}
}

func readyHandler(ready ReadyFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ready != nil {
			ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
			defer cancel()
			if err := ready(ctx); err != nil {
				http.Error(w, err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	}
}
