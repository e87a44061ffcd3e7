// Package main provides the API router setup.
package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/bricklore/brickengine/internal/config"
	"github.com/bricklore/brickengine/internal/engine"
	"github.com/bricklore/brickengine/internal/observability"
)

// NewRouter creates the API router with all routes configured.
func NewRouter(logger *observability.Logger, eng *engine.Engine, cfg *config.Config) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(cfg.Server.ReadTimeout))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"healthy","service":"brickengine"}`))
	})

	h := NewHandlers(logger, eng)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/load", h.RunLoad)
		r.Get("/loads", h.ListLoads)
		r.Post("/query", h.Query)
		r.Get("/items", h.ListItems)
		r.Get("/items/{identityKey}", h.GetItem)
		r.Get("/stats", h.Stats)
	})

	return r
}
