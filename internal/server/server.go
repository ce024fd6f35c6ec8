// Package server provides the HTTP API for the decision engine.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/dstav/lodestar/internal/database"
	"github.com/dstav/lodestar/internal/engine"
	"github.com/dstav/lodestar/internal/events"
	"github.com/dstav/lodestar/internal/modules/risk"
)

// Config holds server configuration
type Config struct {
	Log          zerolog.Logger
	Port         int
	DevMode      bool
	Orchestrator *engine.Orchestrator
	Overlay      *risk.Overlay
	Bus          *events.Bus
	StateDB      *database.DB
	HistoryDB    *database.DB
}

// Server is the HTTP server
type Server struct {
	router *chi.Mux
	server *http.Server
	port   int
	log    zerolog.Logger

	handlers       *Handlers
	systemHandlers *SystemHandlers
	eventsStream   *EventsStreamHandler
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router:         chi.NewRouter(),
		port:           cfg.Port,
		log:            cfg.Log.With().Str("component", "server").Logger(),
		handlers:       NewHandlers(cfg.Orchestrator, cfg.Overlay, cfg.StateDB, cfg.HistoryDB, cfg.Log),
		systemHandlers: NewSystemHandlers(cfg.Log, cfg.StateDB, cfg.HistoryDB),
		eventsStream:   NewEventsStreamHandler(cfg.Bus, cfg.Log),
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // SSE connections stay open
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)

	if devMode {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"http://localhost:*", "http://127.0.0.1:*"},
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}
}

func (s *Server) setupRoutes() {
	s.router.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handlers.HandleHealth)
		r.Get("/targets", s.handlers.HandleTargets)
		r.Get("/signals", s.handlers.HandleSignals)
		r.Get("/risk/status", s.handlers.HandleRiskStatus)
		r.Post("/cycle/run", s.handlers.HandleRunCycle)
		r.Get("/system/stats", s.systemHandlers.HandleSystemStats)
		r.Get("/events/stream", s.eventsStream.ServeHTTP)
	})
}

// Router exposes the router for tests
func (s *Server) Router() http.Handler {
	return s.router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Int("port", s.port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}
