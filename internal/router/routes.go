package router

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	v1 "github.com/tinoosan/dubsync/api/v1"
	"github.com/tinoosan/dubsync/internal/auth"
	"github.com/tinoosan/dubsync/internal/service"
)

// Deps are the services the HTTP surface exposes. Ready may be nil, in which
// case /readyz always reports ready.
type Deps struct {
	Fetch        service.Fetch
	Replications service.Replications
	Events       v1.Subscriber
	Ready        ReadyFunc
	APIToken     string
}

// New sets up the application routes and required middleware.
func New(logger *slog.Logger, d Deps) *mux.Router {
	if logger == nil {
		logger = slog.Default()
	}
	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("ok")); err != nil {
			logger.Error("write healthz response", "err", err)
		}
	}).Methods("GET")
	r.HandleFunc("/readyz", readyHandler(d.Ready)).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	r.Use(v1.RequestID)
	r.Use(v1.Log(logger))
	r.Use(auth.Middleware(d.APIToken))

	api := r.PathPrefix("/v1").Subrouter()

	// GETs
	get := api.Methods("GET").Subrouter()
	if d.Replications != nil {
		rh := v1.NewReplicationHandler(logger, d.Replications)
		get.HandleFunc("/replications", rh.List)
		get.HandleFunc("/replications/{identity}", rh.Get)
	}
	if d.Events != nil {
		get.HandleFunc("/events", v1.NewEventsHandler(logger, d.Events).Stream)
	}

	// POSTs
	if d.Fetch != nil {
		post := api.Methods("POST").Subrouter()
		post.HandleFunc("/fetches", v1.NewFetchHandler(logger, d.Fetch).Create)
		post.Use(v1.MiddlewareFetchValidation)
	}

	return r
}
