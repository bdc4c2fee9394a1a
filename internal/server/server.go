package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/FACorreiaa/go-loanhub/internal/app/domain/identity"
	"github.com/FACorreiaa/go-loanhub/internal/app/domain/payments"
	"github.com/FACorreiaa/go-loanhub/internal/app/domain/roles"
	"github.com/FACorreiaa/go-loanhub/internal/app/domain/session"
	"github.com/FACorreiaa/go-loanhub/internal/app/services/backend"
	"github.com/FACorreiaa/go-loanhub/internal/app/services/stripe"
	database "github.com/FACorreiaa/go-loanhub/internal/db"
	"github.com/FACorreiaa/go-loanhub/internal/pkg/config"
	"github.com/FACorreiaa/go-loanhub/internal/routes"
)

// Server holds the dependencies for the HTTP server
type Server struct {
	cfg     *config.Config
	logger  *zap.Logger
	dbPool  *pgxpool.Pool
	manager *session.Manager
	router  http.Handler
}

// New creates a Server, connecting to Postgres when the identity store needs it.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logger,
	}

	if cfg.Identity.Store == "postgres" {
		dbPool, err := s.setupDatabase(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to setup database: %w", err)
		}
		s.dbPool = dbPool
	}

	return s, nil
}

// setupDatabase initializes the database connection and runs migrations
func (s *Server) setupDatabase(ctx context.Context) (*pgxpool.Pool, error) {
	s.logger.Info("Setting up database connection and migrations")

	dbConfig, err := database.NewDatabaseConfig(s.cfg, s.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database configuration: %w", err)
	}

	pool, err := database.Init(ctx, dbConfig.ConnectionURL, s.cfg.Repositories.Postgres, s.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database pool: %w", err)
	}

	if !database.WaitForDB(ctx, pool, s.logger) {
		pool.Close()
		return nil, fmt.Errorf("database at %s:%s is unreachable", s.cfg.Repositories.Postgres.Host, s.cfg.Repositories.Postgres.Port)
	}
	s.logger.Info("Connected to Postgres",
		zap.String("host", s.cfg.Repositories.Postgres.Host),
		zap.String("port", s.cfg.Repositories.Postgres.Port),
		zap.String("database", s.cfg.Repositories.Postgres.DB))

	if err = database.RunMigrations(dbConfig.ConnectionURL, s.logger); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	s.logger.Info("Database setup completed successfully")
	return pool, nil
}

// Dependencies builds the identity provider, role resolver, session manager
// and payment service the routes run on.
func (s *Server) Dependencies() (routes.Dependencies, error) {
	cfg := s.cfg

	var repo identity.Repository = identity.NewMemoryRepo()
	if s.dbPool != nil {
		repo = identity.NewPostgresRepo(s.dbPool, s.logger)
	} else {
		s.logger.Warn("Using in-memory identity store, accounts are lost on restart")
	}

	var verifier identity.TokenVerifier
	if cfg.Identity.JWKSURL != "" {
		verifier = identity.NewJWKSVerifier(cfg.Identity.JWKSURL,
			identity.WithIssuer(cfg.Identity.Issuer),
			identity.WithAudience(cfg.Identity.Audience),
			identity.WithRefreshInterval(cfg.Identity.RefreshInterval),
		)
	}
	provider := identity.NewLocalProvider(repo, verifier, s.logger)

	resolver := roles.NewResolver(cfg.Roles.CacheTTL, roles.Policy{
		Attempts:   cfg.Roles.Attempts,
		Timeout:    cfg.Roles.Timeout,
		RetryDelay: cfg.Roles.RetryDelay,
	}, s.logger)

	backendCfg := backend.Config{
		BaseURL:    cfg.Backend.BaseURL,
		Timeout:    cfg.Backend.Timeout,
		Attempts:   cfg.Backend.Attempts,
		RetryDelay: cfg.Backend.RetryDelay,
	}
	if _, err := backend.NewClient(backendCfg, s.logger); err != nil {
		return routes.Dependencies{}, err
	}
	s.manager = session.NewManager(provider, resolver, func(string) (*backend.Client, error) {
		return backend.NewClient(backendCfg, s.logger)
	}, cfg.Session.IdleTTL, s.logger)

	var payProvider payments.Provider
	if cfg.Payments.StripeSecretKey != "" {
		payProvider = stripe.NewStripeProvider(cfg.Payments.StripeSecretKey)
	} else {
		s.logger.Warn("STRIPE_SECRET_KEY not set, application fee payments are disabled")
	}

	return routes.Dependencies{
		Manager:        s.manager,
		Resolver:       resolver,
		Payments:       payments.NewService(payProvider, cfg.Payments.ApplicationFee, cfg.Payments.Currency, s.logger),
		PublishableKey: cfg.Payments.StripePublishableKey,
		Federated:      verifier != nil,
		SettleTimeout:  cfg.Session.SettleTimeout,
		SecureCookies:  cfg.Session.Secure,
	}, nil
}

// HTTPServer creates and configures the HTTP server
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:              ":" + s.cfg.ServerPort,
		Handler:           s.router,
		IdleTimeout:       time.Minute,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
}

// SetRouter sets the HTTP router/handler
func (s *Server) SetRouter(router http.Handler) {
	s.router = router
}

// Close releases every client session and the database pool.
func (s *Server) Close() {
	if s.manager != nil {
		s.manager.Close()
	}
	if s.dbPool != nil {
		s.dbPool.Close()
	}
}
