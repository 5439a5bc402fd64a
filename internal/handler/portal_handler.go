package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/prohmpiriya/safeguard-membership/internal/dto"
	"github.com/prohmpiriya/safeguard-membership/internal/portal"
	"github.com/prohmpiriya/safeguard-membership/pkg/middleware"
	"github.com/prohmpiriya/safeguard-membership/pkg/response"
)

// PortalHandler handles marketing and member portal HTTP requests
type PortalHandler struct {
	portalService portal.Service
}

// NewPortalHandler creates a new PortalHandler
func NewPortalHandler(portalService portal.Service) *PortalHandler {
	return &PortalHandler{portalService: portalService}
}

// Tiers handles GET /tiers
func (h *PortalHandler) Tiers(c *gin.Context) {
	c.JSON(http.StatusOK, response.Success(h.portalService.Tiers()))
}

// Jobs handles GET /jobs
func (h *PortalHandler) Jobs(c *gin.Context) {
	var filter dto.JobsFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.JSON(http.StatusBadRequest, response.BadRequest("Invalid query parameters"))
		return
	}

	jobs, err := h.portalService.LatestJobs(c.Request.Context(), &filter)
	if err != nil {
		c.JSON(http.StatusBadGateway, response.UpstreamFailed("Failed to list jobs"))
		return
	}
	c.JSON(http.StatusOK, response.Success(jobs))
}

// News handles GET /news
func (h *PortalHandler) News(c *gin.Context) {
	var filter dto.NewsFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.JSON(http.StatusBadRequest, response.BadRequest("Invalid query parameters"))
		return
	}

	items, total, err := h.portalService.ListNews(c.Request.Context(), &filter)
	if err != nil {
		c.JSON(http.StatusBadGateway, response.UpstreamFailed("Failed to list news"))
		return
	}
	c.JSON(http.StatusOK, response.Paginated(items, filter.Page, filter.PerPage, total))
}

// ApplyForFellowship handles POST /fellowship/applications
func (h *PortalHandler) ApplyForFellowship(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok || userID == "" {
		c.JSON(http.StatusUnauthorized, response.Unauthorized("User ID not found in token"))
		return
	}

	var req dto.FellowshipApplicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.BadRequest("Invalid request body"))
		return
	}
	req.UserID = userID

	app, err := h.portalService.SubmitFellowshipApplication(c.Request.Context(), &req)
	if err != nil {
		if errors.Is(err, portal.ErrInvalidRequest) {
			c.JSON(http.StatusBadRequest, response.Error(response.ErrCodeValidationFailed, err.Error()))
			return
		}
		c.JSON(http.StatusBadGateway, response.UpstreamFailed("Failed to submit application"))
		return
	}
	c.JSON(http.StatusCreated, response.Success(app))
}

// Invoices handles GET /me/invoices
func (h *PortalHandler) Invoices(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok || userID == "" {
		c.JSON(http.StatusUnauthorized, response.Unauthorized("User ID not found in token"))
		return
	}

	result, err := h.portalService.ListInvoices(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusBadGateway, response.UpstreamFailed("Failed to list invoices"))
		return
	}
	c.JSON(http.StatusOK, response.Success(result))
}

// Dashboard handles GET /me/dashboard
func (h *PortalHandler) Dashboard(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok || userID == "" {
		c.JSON(http.StatusUnauthorized, response.Unauthorized("User ID not found in token"))
		return
	}

	d, err := h.portalService.Dashboard(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, portal.ErrProfileNotFound) {
			c.JSON(http.StatusNotFound, response.NotFound("Profile not found"))
			return
		}
		c.JSON(http.StatusBadGateway, response.UpstreamFailed("Failed to load dashboard"))
		return
	}
	c.JSON(http.StatusOK, response.Success(d))
}

// SurveyAnalytics handles GET /surveys/:id/analytics
func (h *PortalHandler) SurveyAnalytics(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, response.BadRequest("Survey ID is required"))
		return
	}

	result, err := h.portalService.SurveyAnalytics(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, portal.ErrSurveyNotFound) {
			c.JSON(http.StatusNotFound, response.NotFound("Survey not found"))
			return
		}
		c.JSON(http.StatusBadGateway, response.UpstreamFailed("Failed to load survey analytics"))
		return
	}
	c.JSON(http.StatusOK, response.Success(result))
}
