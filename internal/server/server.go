package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/static"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/aman-churiwal/crm-gateway/internal/config"
	"github.com/aman-churiwal/crm-gateway/internal/handler"
	"github.com/aman-churiwal/crm-gateway/internal/middleware"
	"github.com/aman-churiwal/crm-gateway/internal/ratelimit"
	"github.com/aman-churiwal/crm-gateway/internal/routes"
)

// LeadRepository is what the public forms and admin listing need from storage.
type LeadRepository interface {
	handler.LeadStore
	handler.LeadLister
}

// MailService is the mail supervisor as seen by handlers.
type MailService interface {
	handler.Mailer
	handler.MailStatus
}

type Dependencies struct {
	QuotaStore ratelimit.Store
	Leads      LeadRepository
	Mail       MailService
	Auth       middleware.TokenValidator
	// Features are additional controllers mounted under declared prefixes.
	Features []routes.Mount
}

type Server struct {
	router     *gin.Engine
	config     *config.Config
	log        *zap.Logger
	sugar      *zap.SugaredLogger
	deps       Dependencies
	policy     *middleware.OriginPolicy
	registry   *routes.Registry
	system     *handler.SystemHandler
	httpServer *http.Server
}

func New(cfg *config.Config, log *zap.Logger, deps Dependencies) (*Server, error) {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	// Behind the hosting proxy the first X-Forwarded-For entry is the client.
	if err := router.SetTrustedProxies([]string{"0.0.0.0/0", "::/0"}); err != nil {
		return nil, err
	}

	s := &Server{
		router:   router,
		config:   cfg,
		log:      log,
		sugar:    log.Sugar(),
		deps:     deps,
		policy:   middleware.NewOriginPolicy(cfg.CORS.AllowedOrigins),
		registry: routes.NewRegistry(routes.Bindings),
		system:   handler.NewSystemHandler(cfg.Server.Environment, cfg.Branding.CompanyName, startTime, deps.Mail, deps.Leads),
	}

	s.setupMiddleware()
	if err := s.setupRoutes(); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Server) setupMiddleware() {
	limiters := ratelimit.NewLimiters(s.deps.QuotaStore, ratelimit.DefaultPolicies())

	s.router.Use(middleware.Recovery(s.config.IsDevelopment(), s.sugar))
	s.router.Use(middleware.RequestID(s.sugar))
	s.router.Use(middleware.Logger(s.log))
	s.router.Use(middleware.CORS(s.policy, s.sugar))
	s.router.Use(middleware.RateLimit(limiters, routes.QuotaRules, s.sugar))
	s.router.Use(static.Serve("/uploads", static.LocalFile(s.config.Server.UploadsDir, false)))
	s.router.Use(middleware.BodyLimit(s.config.Server.MaxBodyBytes))
}

func (s *Server) setupRoutes() error {
	s.router.GET("/", s.system.StatusPage)
	s.router.GET("/api/health", s.system.Health)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Narrow pre-flight kept for the admin gate page.
	s.router.OPTIONS("/api/admin/gate", middleware.Preflight(s.policy, s.sugar))

	intake := handler.NewIntakeHandler(s.deps.Leads, s.deps.Mail, s.config.Branding, s.sugar)
	if err := s.registry.Add("/api/public", intake); err != nil {
		return err
	}
	if err := s.registry.Add("/api/admin", s.system); err != nil {
		return err
	}
	for _, m := range s.deps.Features {
		if err := s.registry.Add(m.Prefix, m.Feature); err != nil {
			return err
		}
	}
	s.registry.Mount(s.router, middleware.RequireAuth(s.deps.Auth))

	s.router.NoRoute(middleware.NotFound())
	return nil
}

func (s *Server) Run(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	s.sugar.Infow("Starting CRM API server", "addr", addr, "env", s.config.Server.Environment)

	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.sugar.Infow("Shutting down server...")

	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}

	return nil
}

func (s *Server) GetRouter() *gin.Engine {
	return s.router
}

var startTime = time.Now()
