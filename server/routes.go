package server

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/jonwraymond/tiercache/auth"
	"github.com/jonwraymond/tiercache/health"
	"github.com/jonwraymond/tiercache/observe"
)

func setupRoutes(router *mux.Router, h *handlers, cfg Config, logger observe.Logger) {
	router.Use(loggingMiddleware(logger))

	health.Routes(router, cfg.Health)
	if cfg.Metrics != nil {
		router.Handle("/metrics", cfg.Metrics).Methods(http.MethodGet)
	}

	admin := router.PathPrefix("/admin").Subrouter()
	admin.Use(auth.Middleware(cfg.Auth, cfg.Role, logger))

	admin.HandleFunc("/stats", h.stats).Methods(http.MethodGet)
	admin.HandleFunc("/clear", h.clear).Methods(http.MethodPost)
	admin.HandleFunc("/cleanup", h.cleanup).Methods(http.MethodPost)
	admin.HandleFunc("/keys/{key:.+}", h.getKey).Methods(http.MethodGet)
	admin.HandleFunc("/keys/{key:.+}", h.deleteKey).Methods(http.MethodDelete)
	admin.HandleFunc("/fetch", h.fetch).Methods(http.MethodPost)
}
