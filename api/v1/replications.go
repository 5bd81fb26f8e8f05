package v1

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/tinoosan/dubsync/internal/data"
	"github.com/tinoosan/dubsync/internal/service"
)

type ReplicationHandler struct {
	l   *slog.Logger
	svc service.Replications
}

func NewReplicationHandler(l *slog.Logger, svc service.Replications) *ReplicationHandler {
	return &ReplicationHandler{l: l, svc: svc}
}

func (h *ReplicationHandler) List(w http.ResponseWriter, r *http.Request) {
	recs, err := h.svc.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := recs.ToJSON(w); err != nil {
		markErr(w, err)
	}
}

func (h *ReplicationHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["identity"]
	rec, err := h.svc.Get(r.Context(), id)
	switch {
	case errors.Is(err, data.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
		return
	case err != nil:
		h.l.Error("get replication", "identity", id, "err", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := rec.ToJSON(w); err != nil {
		markErr(w, err)
	}
}
