package app

import (
	"context"
	"fmt"

	"github.com/upb/tenantchat/backend/admin"
	"github.com/upb/tenantchat/backend/auth"
	"github.com/upb/tenantchat/backend/config"
	"github.com/upb/tenantchat/backend/cookies"
	"github.com/upb/tenantchat/backend/handlers"
	"github.com/upb/tenantchat/backend/internal/identity"
	"github.com/upb/tenantchat/backend/middleware"
	"github.com/upb/tenantchat/backend/repositories"
	"github.com/upb/tenantchat/backend/repositories/postgres"
	"github.com/upb/tenantchat/backend/services"
	"github.com/upb/tenantchat/backend/verifier"
	"go.uber.org/zap"
)

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	DB     *postgres.DB
	Logger *zap.Logger

	// Repository Factory
	RepoFactory *postgres.RepositoryFactory

	// Repositories
	Users            repositories.UserRepository
	Roles            repositories.RoleRepository
	AdminCredentials repositories.AdminCredentialRepository
	TxManager        repositories.TransactionManager

	// Authentication
	Verifier    *verifier.MultiIssuerVerifier
	AuthContext *services.AuthContextProvider
	OIDCClient  *services.OIDCClient
	Cookies     *cookies.Codec
	Permissions *identity.PermissionChecker
	Admin       *admin.Service

	// HTTP
	AuthMiddleware  *middleware.AuthMiddleware
	AdminMiddleware *middleware.AdminMiddleware
	AuthHandler     *auth.Handler
	HealthHandler   *handlers.HealthHandler
	UserHandler     *handlers.UserHandler
	AdminHandler    *handlers.AdminHandler
}

// NewDependencies opens the database and wires every dependency on top of it
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	factory, err := postgres.NewRepositoryFactory(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	deps, err := Build(cfg, factory, logger)
	if err != nil {
		_ = factory.Close()
		return nil, err
	}

	deps.Logger.Info("database connection established",
		zap.String("connection", cfg.Database.LogString()))
	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// Build wires the application on top of an open repository factory
func Build(cfg *config.Config, factory *postgres.RepositoryFactory, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config:      cfg,
		Logger:      logger,
		RepoFactory: factory,
		DB:          factory.GetDB(),
	}

	deps.initRepositories()

	if err := deps.initAuth(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize auth: %w", err)
	}

	deps.initHTTP(cfg)
	return deps, nil
}

// initRepositories initializes all repository instances
func (d *Dependencies) initRepositories() {
	repos := d.RepoFactory.NewRepositories()

	d.Users = repos.Users
	d.Roles = repos.Roles
	d.AdminCredentials = repos.AdminCredentials
	d.TxManager = d.RepoFactory.GetTransactionManager()

	d.Logger.Info("repositories initialized")
}

func (d *Dependencies) initAuth(cfg *config.Config) error {
	v, err := verifier.NewMultiIssuerVerifier(cfg.Auth.Issuers, verifier.Options{
		ClockSkew:          cfg.Auth.ClockSkew,
		JWKSTimeout:        cfg.Auth.JWKSTimeout,
		MinRefreshInterval: cfg.Auth.JWKSMinRefreshInterval,
	}, d.Logger)
	if err != nil {
		return fmt.Errorf("failed to create token verifier: %w", err)
	}
	d.Verifier = v
	if !v.Configured() {
		d.Logger.Warn("no issuers configured, bearer and session authentication disabled")
	}

	uow := services.NewUnitOfWork(d.TxManager, d.Users, d.Roles)
	d.AuthContext = services.NewAuthContextProvider(v, uow, cfg.Auth.DefaultRole, d.Logger)
	d.OIDCClient = services.NewOIDCClient(nil, cfg.Auth.ExchangeTimeout, d.Logger)

	codec, err := cookies.NewCodec(cfg.Cookies, cfg.SecureCookies(), cfg.Auth.FlowTTL, d.Logger)
	if err != nil {
		return fmt.Errorf("failed to create cookie codec: %w", err)
	}
	d.Cookies = codec

	checker, err := identity.NewPermissionChecker()
	if err != nil {
		return fmt.Errorf("failed to create permission checker: %w", err)
	}
	d.Permissions = checker

	d.Admin = admin.NewService(cfg.Admin, d.AdminCredentials, d.Logger)

	d.Logger.Info("auth initialized",
		zap.Int("issuers", len(cfg.Auth.Issuers)),
		zap.Strings("login_providers", cfg.Auth.LoginProviders()))
	return nil
}

func (d *Dependencies) initHTTP(cfg *config.Config) {
	flow := auth.NewOrchestrator(&cfg.Auth, d.OIDCClient, d.OIDCClient, d.AuthContext, cfg.Auth.DefaultSessionTTL, d.Logger)

	d.AuthMiddleware = middleware.NewAuthMiddleware(d.AuthContext, d.Cookies.Session, d.Permissions, d.Logger)
	d.AdminMiddleware = middleware.NewAdminMiddleware(d.Admin, d.Cookies.Admin, d.Logger)
	d.AuthHandler = auth.NewHandler(flow, d.Cookies, d.Logger)
	d.HealthHandler = handlers.NewHealthHandler(d.DB.DB, d.Verifier, d.Logger)
	d.UserHandler = handlers.NewUserHandler(d.Users, d.Logger)
	d.AdminHandler = handlers.NewAdminHandler(d.Admin, d.Cookies.Admin, d.Users, d.Roles, d.Logger)
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	// Close database connection
	if d.RepoFactory != nil {
		if err := d.RepoFactory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
		d.RepoFactory = nil
	}

	// Sync logger
	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}

	return nil
}
