package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/terra-clan/office-hub/internal/auth"
	"github.com/terra-clan/office-hub/internal/config"
	"github.com/terra-clan/office-hub/internal/events"
	"github.com/terra-clan/office-hub/internal/health"
	"github.com/terra-clan/office-hub/internal/ledger"
	"github.com/terra-clan/office-hub/internal/roster"
)

// Services bundles what the handlers delegate to
type Services struct {
	Auth   *auth.Service
	Roster *roster.Service
	Ledger *ledger.Service
	Hub    *events.Hub
	Health *health.Registry
	// MediaRoot is served read-only under /media when set
	MediaRoot      string
	MaxUploadBytes int64
}

// Server represents the HTTP API server
type Server struct {
	config         config.ServerConfig
	router         *chi.Mux
	roster         *roster.Service
	ledger         *ledger.Service
	auth           *auth.Service
	hub            *events.Hub
	health         *health.Registry
	mediaRoot      string
	maxUploadBytes int64
	authMiddleware *AuthMiddleware
	upgrader       *websocket.Upgrader
}

// NewServer creates a new API server
func NewServer(cfg config.ServerConfig, svc Services) *Server {
	s := &Server{
		config:         cfg,
		roster:         svc.Roster,
		ledger:         svc.Ledger,
		auth:           svc.Auth,
		hub:            svc.Hub,
		health:         svc.Health,
		mediaRoot:      svc.MediaRoot,
		maxUploadBytes: svc.MaxUploadBytes,
		authMiddleware: NewAuthMiddleware(svc.Auth),
	}
	if s.maxUploadBytes <= 0 {
		s.maxUploadBytes = 10 << 20
	}
	s.setupRouter()
	return s
}

// Router returns the configured router
func (s *Server) Router() http.Handler {
	return s.router
}

// setupRouter configures all routes and middleware
func (s *Server) setupRouter() {
	r := chi.NewRouter()

	timeout := s.config.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	origins := s.config.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	s.upgrader = newUpgrader(origins)

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(loggingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(timeoutMiddleware(timeout))

	// CORS configuration
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Operational endpoints (public)
	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	r.Handle("/metrics", promhttp.Handler())

	if s.mediaRoot != "" {
		r.Handle("/media/*", http.StripPrefix("/media/", http.FileServer(http.Dir(s.mediaRoot))))
	}

	m := s.authMiddleware
	can := m.RequirePermission

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(m.Authenticate)

		r.Route("/auth", func(r chi.Router) {
			r.Post("/token", s.handleIssueToken)
			r.Post("/refresh", s.handleRefreshToken)
			r.With(m.RequireAuthenticated).Post("/signout", s.handleSignOut)
		})

		r.With(can("skills:read")).Get("/skills", s.handleListSkills)

		// Employees
		r.Route("/employees", func(r chi.Router) {
			r.With(can("employees:read")).Get("/", s.handleListEmployees)
			r.With(can("employees:write")).Post("/", s.handleCreateEmployee)

			r.Route("/{id}", func(r chi.Router) {
				r.With(can("employees:read")).Get("/", s.handleGetEmployee)
				r.With(can("employees:update")).Put("/", s.handleUpdateEmployee)
				r.With(can("employees:write")).Delete("/", s.handleDeleteEmployee)

				r.With(can("employees:update")).Put("/skills", s.handleSetSkill)
				r.With(can("employees:update")).Delete("/skills/{skill}", s.handleRemoveSkill)

				r.With(can("employees:update")).Post("/images", s.handleAddImage)
				r.With(can("employees:update")).Delete("/images/{imageID}", s.handleDeleteImage)

				r.With(can("desks:read")).Get("/workplace", s.handleGetWorkplace)
				r.With(can("desks:update")).Put("/workplace", s.handleAssignWorkplace)
			})
		})

		// Desks
		r.Route("/desks", func(r chi.Router) {
			r.With(can("desks:read")).Get("/", s.handleListDesks)
			r.With(can("desks:write")).Post("/", s.handleCreateDesk)
			r.With(can("desks:read")).Get("/free", s.handleListFreeDesks)
			r.With(can("desks:read")).Get("/occupied", s.handleListOccupiedDesks)

			r.Route("/{id}", func(r chi.Router) {
				r.With(can("desks:read")).Get("/", s.handleGetDesk)
				r.With(can("desks:update")).Put("/", s.handleUpdateDesk)
				r.With(can("desks:write")).Delete("/", s.handleDeleteDesk)
			})
		})

		// Collections
		r.Route("/collections", func(r chi.Router) {
			r.With(can("collections:read")).Get("/", s.handleListCollections)
			r.With(can("collections:write")).Post("/", s.handleCreateCollection)

			r.Route("/{id}", func(r chi.Router) {
				r.With(can("collections:read")).Get("/", s.handleGetCollection)
				r.With(can("collections:write")).Put("/", s.handleUpdateCollection)
				r.With(can("collections:write")).Delete("/", s.handleDeleteCollection)
				r.With(can("collections:write")).Put("/cover", s.handleSetCover)
				r.With(can("collections:read")).Get("/live", s.handleCollectionLive)
			})
		})

		// Payments
		r.Route("/payments", func(r chi.Router) {
			r.With(can("payments:read")).Get("/", s.handleListPayments)
			r.With(can("payments:write")).Post("/", s.handleCreatePayment)

			r.Route("/{id}", func(r chi.Router) {
				r.With(can("payments:read")).Get("/", s.handleGetPayment)
				r.With(can("payments:write")).Delete("/", s.handleDeletePayment)
			})
		})
	})

	s.router = r
}
