// Package api provides the HTTP API server for the licensing service.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/powerflow/licensing/internal/api/handlers"
	"github.com/powerflow/licensing/internal/api/health"
	"github.com/powerflow/licensing/internal/api/middleware"
	"github.com/powerflow/licensing/internal/auth"
	"github.com/powerflow/licensing/internal/invitation"
	"github.com/powerflow/licensing/internal/license"
	"github.com/powerflow/licensing/internal/mail"
	"github.com/powerflow/licensing/internal/registration"
	"github.com/powerflow/licensing/internal/store"
	"github.com/powerflow/licensing/pkg/config"
)

// Version is the current version of the API server.
// This should be set at build time using ldflags.
var Version = "dev"

// Server represents the HTTP API server.
type Server struct {
	router     chi.Router
	httpServer *http.Server
	store      store.Store
	auth       *auth.Service
	config     *config.Config
	logger     *slog.Logger
}

// NewServer creates a new API server with the given dependencies.
func NewServer(cfg *config.Config, st store.Store, authSvc *auth.Service, mailer mail.Sender, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		store:  st,
		auth:   authSvc,
		config: cfg,
		logger: logger,
	}

	s.setupRouter(mailer)
	return s
}

// setupRouter configures the router with middleware and routes.
func (s *Server) setupRouter(mailer mail.Sender) {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger(s.logger))
	r.Use(middleware.Recovery(s.logger))
	r.Use(chimiddleware.Timeout(60 * time.Second))

	// Domain services
	registrationSvc := registration.NewService(s.store, s.auth, mailer, s.logger)
	invitationSvc := invitation.NewService(s.store, s.auth, mailer, s.config.InviteBaseURL, s.logger)
	payments := license.NewStubVerifier(s.config.PaymentTestPhone)
	licenseSvc := license.NewService(s.store, payments, s.logger)

	// Health check endpoint (no auth required)
	healthHandler := health.NewHandler(s.store)
	r.Get("/health", healthHandler.Check)

	// Auth routes (no auth required)
	authHandler := handlers.NewAuthHandler(registrationSvc, s.store, s.logger)
	invitationHandler := handlers.NewInvitationHandler(invitationSvc, s.logger)
	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", authHandler.Register)
		r.Post("/login", authHandler.Login)
		r.Post("/verify", authHandler.VerifyCode)
		r.Post("/resend", authHandler.ResendCode)
		// Invitation acceptance (public)
		r.Post("/invite/accept", invitationHandler.Accept)
	})

	// License validation is called by installed clients, not dashboard
	// sessions, so it lives outside the authenticated tree.
	licenseHandler := handlers.NewLicenseHandler(licenseSvc, s.logger)
	r.Post("/v1/licenses/validate", licenseHandler.Validate)

	// API v1 routes
	r.Route("/v1", func(r chi.Router) {
		// Auth middleware for all v1 routes
		authMiddleware := middleware.NewAuthMiddleware(s.auth, s.store, s.logger)
		r.Use(authMiddleware.Authenticate)

		r.Get("/me", authHandler.Me)
		r.Post("/auth/change-password", authHandler.ChangePassword)

		r.Route("/invitations", func(r chi.Router) {
			r.Post("/", invitationHandler.Create)
			r.Get("/", invitationHandler.ListPending)
		})
		r.Get("/members", invitationHandler.ListMembers)
		r.Delete("/members/{id}", invitationHandler.Remove)

		r.Route("/licenses", func(r chi.Router) {
			r.Post("/", licenseHandler.Purchase)
			r.Get("/", licenseHandler.List)
		})

		r.Get("/dashboard/stats", licenseHandler.DashboardStats)
	})

	s.router = r
}

// Start starts the HTTP server.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.APIHost, s.config.APIPort)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	s.logger.Info("starting API server", "addr", addr, "version", Version)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	}
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down API server")
	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

// Router returns the chi router for testing purposes.
func (s *Server) Router() chi.Router {
	return s.router
}
