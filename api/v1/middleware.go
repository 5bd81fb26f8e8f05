package v1

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/tinoosan/dubsync/internal/data"
	"github.com/tinoosan/dubsync/internal/reqid"
)

type rwLogger struct {
	http.ResponseWriter
	status int
	bytes  int
	err    error
}

func (w *rwLogger) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *rwLogger) SetErr(err error) {
	w.err = err
}

func (w *rwLogger) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

// Hijack lets the events endpoint upgrade through the access logger.
func (w *rwLogger) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}

func (w *rwLogger) Unwrap() http.ResponseWriter { return w.ResponseWriter }

type errorSetter interface {
	SetErr(error)
}

func markErr(w http.ResponseWriter, err error) {
	if es, ok := w.(errorSetter); ok {
		es.SetErr(err)
	}
}

type ctxKeyFetch struct{}

// Log writes one access log line per request, at error level when a handler
// marked an error.
func Log(l *slog.Logger) func(http.Handler) http.Handler {
	if l == nil {
		l = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			startTime := time.Now()
			rw := &rwLogger{ResponseWriter: w}
			next.ServeHTTP(rw, r)
			if rw.status == 0 {
				rw.status = http.StatusOK
			}
			log := reqid.Logger(r.Context(), l)
			attrs := []any{
				"method", r.Method,
				"url", r.URL.Path,
				"status", rw.status,
				"remote", r.RemoteAddr,
				"ua", r.UserAgent(),
				"dur_ms", time.Since(startTime).Milliseconds(),
				"bytes", rw.bytes,
			}
			if rw.err != nil {
				log.Error(rw.err.Error(), attrs...)
				return
			}
			log.Info("", attrs...)
		})
	}
}

// MiddlewareFetchValidation decodes and checks the fetch body before the
// handler runs.
func MiddlewareFetchValidation(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req data.FetchRequest
		if err := decodeJSONStrict(w, r, &req, maxBodyBytes, "application/json"); err != nil {
			if errors.Is(err, ErrContentType) {
				writeError(w, http.StatusUnsupportedMediaType, err)
				return
			}
			writeError(w, http.StatusBadRequest, errors.New("invalid JSON: "+err.Error()))
			return
		}
		ctx := context.WithValue(r.Context(), ctxKeyFetch{}, req)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
