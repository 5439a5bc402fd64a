package di

import (
	"context"

	"github.com/prohmpiriya/safeguard-membership/internal/admin"
	"github.com/prohmpiriya/safeguard-membership/internal/backend"
	"github.com/prohmpiriya/safeguard-membership/internal/domain"
	"github.com/prohmpiriya/safeguard-membership/internal/handler"
	"github.com/prohmpiriya/safeguard-membership/internal/onboarding"
	"github.com/prohmpiriya/safeguard-membership/internal/payment"
	"github.com/prohmpiriya/safeguard-membership/internal/portal"
	"github.com/prohmpiriya/safeguard-membership/internal/provisioning"
	"github.com/prohmpiriya/safeguard-membership/internal/session"
	"github.com/prohmpiriya/safeguard-membership/pkg/config"
	"github.com/prohmpiriya/safeguard-membership/pkg/database"
	"github.com/prohmpiriya/safeguard-membership/pkg/kafka"
	"github.com/prohmpiriya/safeguard-membership/pkg/logger"
	"github.com/prohmpiriya/safeguard-membership/pkg/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Container holds all dependencies for the membership service
type Container struct {
	// Infrastructure
	DB       *database.PostgresDB
	Redis    *redis.Client
	Producer kafka.Producer
	Backend  backend.Client
	Sessions session.Store
	Audit    *middleware.AuditLogger

	// Services
	Workflow          *provisioning.Workflow
	PaymentService    payment.Service
	OnboardingService onboarding.Service
	PortalService     portal.Service
	AdminService      admin.Service

	// Handlers
	Handlers *handler.Handlers

	log *logger.Logger
}

// ContainerConfig contains configuration for building the container.
// Nil infrastructure falls back to in-memory or no-op implementations.
type ContainerConfig struct {
	Config   *config.Config
	Logger   *logger.Logger
	DB       *database.PostgresDB
	Redis    *redis.Client
	Producer kafka.Producer
	Backend  backend.Client
	Gateway  payment.Gateway
}

// NewContainer creates a new dependency injection container
func NewContainer(cfg *ContainerConfig) *Container {
	appCfg := cfg.Config
	log := cfg.Logger
	if log == nil {
		log = logger.NewNop()
	}

	c := &Container{
		DB:       cfg.DB,
		Redis:    cfg.Redis,
		Producer: cfg.Producer,
		Backend:  cfg.Backend,
		log:      log,
	}

	if c.Producer == nil {
		c.Producer = kafka.NewNoopProducer()
	}
	if c.Backend == nil {
		c.Backend = NewBackendClient(&appCfg.Backend)
	}

	// Session flags
	if c.Redis != nil {
		c.Sessions = session.NewRedisStore(c.Redis, appCfg.Redis.SessionTTL)
	} else {
		c.Sessions = session.NewMemoryStore(appCfg.Redis.SessionTTL)
	}

	// Storage for runs, the member mirror and the audit trail
	var (
		runs   provisioning.RunStore
		mirror provisioning.MemberMirror
		sink   middleware.AuditSink
	)
	if c.DB != nil {
		runs = provisioning.NewPostgresRunStore(c.DB.Pool())
		mirror = provisioning.NewPostgresMemberMirror(c.DB.Pool())
		sink = middleware.NewPostgresAuditSink(c.DB.Pool())
	} else {
		runs = provisioning.NewMemoryRunStore()
		mirror = provisioning.NoopMemberMirror{}
		sink = middleware.NewMemoryAuditSink()
	}
	c.Audit = middleware.NewAuditLogger(middleware.DefaultAuditConfig(sink), log)

	gateway := cfg.Gateway
	if gateway == nil {
		gateway = payment.NewStripeGateway(&payment.GatewayConfig{
			SecretKey:     appCfg.Stripe.SecretKey,
			WebhookSecret: appCfg.Stripe.WebhookSecret,
		})
	}

	// Initialize services
	c.Workflow = provisioning.NewWorkflow(&provisioning.WorkflowConfig{
		Backend:      c.Backend,
		Sessions:     c.Sessions,
		Mirror:       mirror,
		Producer:     c.Producer,
		Runs:         runs,
		Logger:       log,
		PollAttempts: appCfg.Provisioning.PollAttempts,
		PollInterval: appCfg.Provisioning.PollInterval,
		NextPage:     appCfg.Provisioning.NextPage,
		StepTimeout:  appCfg.Provisioning.StepTimeout,
		Topic:        appCfg.Kafka.Topic,
	})
	c.PaymentService = payment.NewPaymentService(&payment.ServiceConfig{
		Gateway:   gateway,
		Backend:   c.Backend,
		Logger:    log,
		PublicURL: appCfg.App.PublicURL,
		Prices:    priceTable(&appCfg.Stripe),
	})
	c.OnboardingService = onboarding.NewOnboardingService(c.Backend, c.PaymentService, c.Workflow, c.Sessions, log)
	c.PortalService = portal.NewPortalService(c.Backend, log)
	c.AdminService = admin.NewAdminService(c.Backend, appCfg.App.PublicURL, log)

	// Initialize handlers
	c.Handlers = &handler.Handlers{
		Health:       handler.NewHealthHandler(c.healthChecks()),
		Onboarding:   handler.NewOnboardingHandler(c.OnboardingService),
		Portal:       handler.NewPortalHandler(c.PortalService),
		Payment:      handler.NewPaymentHandler(c.PaymentService),
		Provisioning: handler.NewProvisioningHandler(c.Workflow),
		Admin:        handler.NewAdminHandler(c.AdminService),
	}

	return c
}

// RouterConfig returns the middleware settings for handler.SetupRoutes
func (c *Container) RouterConfig(appCfg *config.Config) *handler.RouterConfig {
	return &handler.RouterConfig{
		JWT: &middleware.JWTConfig{
			Secret: appCfg.JWT.Secret,
			Issuer: appCfg.JWT.Issuer,
		},
		Audit: c.Audit,
	}
}

// Close waits for dispatched provisioning steps until ctx is done, then
// releases everything the container owns, in reverse start order
func (c *Container) Close(ctx context.Context) {
	if c.Workflow != nil {
		if err := c.Workflow.Wait(ctx); err != nil {
			c.log.Warn("dispatched provisioning steps still running at shutdown", zap.Error(err))
		}
	}
	if c.Audit != nil {
		_ = c.Audit.Close()
	}
	if c.Producer != nil {
		c.Producer.Close()
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
	if c.DB != nil {
		c.DB.Close()
	}
}

// NewBackendClient picks the backend implementation for the configured mode
func NewBackendClient(cfg *config.BackendConfig) backend.Client {
	if cfg.Mode == config.BackendModeMemory {
		return backend.NewMemoryClient()
	}
	return backend.NewHTTPClient(&backend.HTTPClientConfig{
		BaseURL: cfg.BaseURL,
		AppID:   cfg.AppID,
		APIKey:  cfg.APIKey,
		Timeout: cfg.Timeout,
	})
}

func priceTable(cfg *config.StripeConfig) map[string]string {
	prices := make(map[string]string, 2)
	if cfg.PriceFull != "" {
		prices[domain.TierFull] = cfg.PriceFull
	}
	if cfg.PriceFellow != "" {
		prices[domain.TierFellow] = cfg.PriceFellow
	}
	return prices
}

type pinger interface {
	Ping(ctx context.Context) error
}

func (c *Container) healthChecks() map[string]handler.HealthCheck {
	checks := make(map[string]handler.HealthCheck)
	if c.DB != nil {
		checks["postgres"] = c.DB.Ping
	}
	if c.Redis != nil {
		rdb := c.Redis
		checks["redis"] = func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}
	}
	if p, ok := c.Producer.(pinger); ok {
		checks["kafka"] = p.Ping
	}
	return checks
}
