package v1

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/tinoosan/dubsync/internal/data"
	"github.com/tinoosan/dubsync/internal/service"
)

type FetchHandler struct {
	l   *slog.Logger
	svc service.Fetch
}

func NewFetchHandler(l *slog.Logger, svc service.Fetch) *FetchHandler {
	return &FetchHandler{l: l, svc: svc}
}

// Create runs a fetch synchronously and replies with the resolved file, or
// 502 carrying the tool's exit code when the fetch failed.
func (h *FetchHandler) Create(w http.ResponseWriter, r *http.Request) {
	req, ok := r.Context().Value(ctxKeyFetch{}).(data.FetchRequest)
	if !ok {
		writeError(w, http.StatusInternalServerError, ErrFetchCtx)
		return
	}

	res := h.svc.Fetch(r.Context(), req.URL)
	status := http.StatusCreated
	switch {
	case res.OK():
	case errors.Is(res.Err, data.ErrEmptyURL):
		writeError(w, http.StatusBadRequest, res.Err)
		return
	case r.Context().Err() != nil:
		status = http.StatusServiceUnavailable
	default:
		status = http.StatusBadGateway
	}
	if res.Err != nil {
		markErr(w, res.Err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = res.ToJSON(w)
}
