package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/prohmpiriya/safeguard-membership/pkg/middleware"
)

// Handlers groups every HTTP handler served by the API
type Handlers struct {
	Health       *HealthHandler
	Onboarding   *OnboardingHandler
	Portal       *PortalHandler
	Payment      *PaymentHandler
	Provisioning *ProvisioningHandler
	Admin        *AdminHandler
}

// RouterConfig holds the middleware settings used by SetupRoutes
type RouterConfig struct {
	JWT   *middleware.JWTConfig
	Audit *middleware.AuditLogger
}

// SetupRoutes registers all routes on the engine
func SetupRoutes(router *gin.Engine, h *Handlers, cfg *RouterConfig) {
	router.GET("/health", h.Health.Health)
	router.GET("/ready", h.Health.Ready)

	v1 := router.Group("/api/v1")

	// Public
	v1.GET("/tiers", h.Portal.Tiers)
	v1.GET("/jobs", h.Portal.Jobs)
	v1.GET("/news", h.Portal.News)
	v1.POST("/payments/webhook", h.Payment.Webhook)

	// Members
	member := v1.Group("")
	member.Use(middleware.JWTMiddleware(cfg.JWT))
	{
		member.POST("/onboarding/steps/:step/validate", h.Onboarding.ValidateStep)
		member.POST("/onboarding/submit", h.Onboarding.Submit)
		member.POST("/onboarding/complete", h.Onboarding.Complete)
		member.POST("/onboarding/session", h.Onboarding.SaveSessionFlags)

		member.POST("/payments/checkout", h.Payment.CreateCheckout)

		member.GET("/me/dashboard", h.Portal.Dashboard)
		member.GET("/me/invoices", h.Portal.Invoices)
		member.POST("/fellowship/applications", h.Portal.ApplyForFellowship)
		member.GET("/surveys/:id/analytics", h.Portal.SurveyAnalytics)

		member.GET("/provisioning/runs", h.Provisioning.ListRuns)
		member.GET("/provisioning/runs/:id", h.Provisioning.GetRun)
	}

	// Admins
	adminGroup := v1.Group("/admin")
	adminGroup.Use(middleware.JWTMiddleware(cfg.JWT), middleware.RequireRole(middleware.RoleAdmin))
	if cfg.Audit != nil {
		adminGroup.Use(middleware.AuditMiddleware(cfg.Audit))
	}
	{
		adminGroup.GET("/invites", h.Admin.ListInvites)
		adminGroup.POST("/invites", h.Admin.CreateInvite)
		adminGroup.POST("/invites/:id/revoke", h.Admin.RevokeInvite)
		adminGroup.POST("/organisations/:id/verify", h.Admin.VerifyOrganisation)
		adminGroup.GET("/fellowship-applications", h.Admin.ListApplications)
		adminGroup.PUT("/fellowship-applications/:id/status", h.Admin.SetApplicationStatus)
		adminGroup.POST("/news", h.Admin.CreateNews)
		adminGroup.POST("/news/:id/publish", h.Admin.PublishNews)
	}
}
