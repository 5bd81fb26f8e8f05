package router

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tinoosan/dubsync/internal/ledger"
	"github.com/tinoosan/dubsync/internal/metrics"
	"github.com/tinoosan/dubsync/internal/replicator"
	"github.com/tinoosan/dubsync/internal/service"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func TestHealthzOK(t *testing.T) {
	r := New(quiet(), Deps{APIToken: "sekrit"})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if got := w.Body.String(); got != "ok" {
		t.Fatalf("expected body 'ok', got %q", got)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Fatalf("expected request id header")
	}
}

func TestReadyz(t *testing.T) {
	cases := []struct {
		name  string
		ready ReadyFunc
		want  int
	}{
		{"no check", nil, http.StatusOK},
		{"ready", func(context.Context) error { return nil }, http.StatusOK},
		{"not ready", func(context.Context) error { return errors.New("nope") }, http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := New(quiet(), Deps{Ready: tc.ready, APIToken: "sekrit"})
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
			if w.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, w.Code)
			}
		})
	}
}

func TestEngineReady(t *testing.T) {
	now := time.Now()
	cases := []struct {
		name string
		last time.Time
		p    ledger.Pinger
		ok   bool
	}{
		{"never ran", time.Time{}, nil, false},
		{"fresh", now, nil, true},
		{"stale", now.Add(-time.Hour), nil, false},
		{"ledger down", now, pinger{err: errors.New("conn refused")}, false},
		{"ledger up", now, pinger{}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fn := EngineReady(func() time.Time { return tc.last }, 33*time.Second, tc.p)
			err := fn(context.Background())
			if (err == nil) != tc.ok {
				t.Fatalf("err = %v, want ok=%v", err, tc.ok)
			}
		})
	}
}

type slowProbe time.Duration

func (d slowProbe) Observe(ctx context.Context, path string) (os.FileInfo, bool) {
	time.Sleep(time.Duration(d))
	st, err := os.Stat(path)
	return st, err == nil
}

func TestEngineReady_StaysReadyThroughLongCycle(t *testing.T) {
	root := t.TempDir()
	out, backup := filepath.Join(root, "out"), filepath.Join(root, "backup")
	for _, p := range []string{out, backup} {
		if err := os.MkdirAll(p, 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
	}
	for i := 0; i < 8; i++ {
		name := filepath.Join(out, fmt.Sprintf("output_file_%d.mp4", i))
		if err := os.WriteFile(name, []byte{byte(i)}, 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	// Each candidate takes 40ms; the whole cycle is four times the limit.
	eng, err := replicator.New(replicator.Options{
		OutputDir: out, BackupDir: backup, Ledger: ledger.NewInMemory(),
		Probe: slowProbe(40 * time.Millisecond), PollInterval: time.Hour, Logger: quiet(),
	})
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	r := New(quiet(), Deps{Ready: EngineReady(eng.LastProgress, 80*time.Millisecond, nil)})

	done := make(chan struct{})
	go func() {
		defer close(done)
		eng.RunOnce(context.Background())
	}()
	time.Sleep(60 * time.Millisecond)
	for i := 0; ; i++ {
		select {
		case <-done:
			if i < 3 {
				t.Fatalf("cycle finished after only %d checks", i)
			}
			return
		default:
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("check %d mid-cycle: %d %s", i, w.Code, w.Body.String())
		}
		time.Sleep(30 * time.Millisecond)
	}
}

func TestMetricsEndpointEmitsFamilies(t *testing.T) {
	// Register collectors and prime a couple of samples
	metrics.Register()
	metrics.ReplicatedFiles.Inc()
	metrics.ReplicationErrors.WithLabelValues("copy").Inc()
	metrics.CycleDuration.Observe(0.2)
	metrics.Fetches.WithLabelValues("ok").Inc()

	r := New(quiet(), Deps{APIToken: "sekrit"})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := w.Body.String()
	for _, fam := range []string{
		"dubsync_replicated_files_total",
		"dubsync_replication_errors_total",
		"dubsync_replication_cycle_seconds_count",
		"dubsync_fetches_total",
	} {
		if !strings.Contains(body, fam) {
			t.Fatalf("missing %s in metrics", fam)
		}
	}
}

func TestAPIRequiresToken(t *testing.T) {
	r := New(quiet(), Deps{
		Replications: service.NewReplications(ledger.NewInMemory()),
		APIToken:     "sekrit",
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/replications", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/replications", nil)
	req.Header.Set("Authorization", "Bearer sekrit")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if strings.TrimSpace(w.Body.String()) != "[]" {
		t.Fatalf("body = %q", w.Body.String())
	}
}
