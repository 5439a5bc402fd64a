package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/prohmpiriya/safeguard-membership/internal/admin"
	"github.com/prohmpiriya/safeguard-membership/internal/dto"
	"github.com/prohmpiriya/safeguard-membership/pkg/middleware"
	"github.com/prohmpiriya/safeguard-membership/pkg/response"
)

// AdminHandler handles administrative HTTP requests
type AdminHandler struct {
	adminService admin.Service
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(adminService admin.Service) *AdminHandler {
	return &AdminHandler{adminService: adminService}
}

// CreateInvite handles POST /admin/invites
func (h *AdminHandler) CreateInvite(c *gin.Context) {
	var req dto.CreateInviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.BadRequest("Invalid request body"))
		return
	}
	req.InvitedBy, _ = middleware.GetUserID(c)

	invite, err := h.adminService.CreateInvite(c.Request.Context(), &req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	middleware.SetAuditResource(c, "invite", invite.ID)
	middleware.SetAuditMetadata(c, map[string]interface{}{
		"organisation_id": invite.OrganisationID,
		"email":           invite.Email,
	})
	c.JSON(http.StatusCreated, response.Success(invite))
}

// ListInvites handles GET /admin/invites
func (h *AdminHandler) ListInvites(c *gin.Context) {
	invites, err := h.adminService.ListInvites(c.Request.Context(), c.Query("organisation_id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(invites))
}

// RevokeInvite handles POST /admin/invites/:id/revoke
func (h *AdminHandler) RevokeInvite(c *gin.Context) {
	invite, err := h.adminService.RevokeInvite(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(invite))
}

// VerifyOrganisation handles POST /admin/organisations/:id/verify
func (h *AdminHandler) VerifyOrganisation(c *gin.Context) {
	org, err := h.adminService.VerifyOrganisation(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	middleware.SetAuditMetadata(c, map[string]interface{}{"name": org.Name})
	c.JSON(http.StatusOK, response.Success(org))
}

// ListApplications handles GET /admin/fellowship-applications
func (h *AdminHandler) ListApplications(c *gin.Context) {
	var filter dto.ApplicationListFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.JSON(http.StatusBadRequest, response.BadRequest("Invalid query parameters"))
		return
	}

	apps, err := h.adminService.ListApplications(c.Request.Context(), &filter)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(apps))
}

// SetApplicationStatus handles PUT /admin/fellowship-applications/:id/status
func (h *AdminHandler) SetApplicationStatus(c *gin.Context) {
	var req dto.UpdateApplicationStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.BadRequest("Invalid request body"))
		return
	}

	app, err := h.adminService.SetApplicationStatus(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	middleware.SetAuditMetadata(c, map[string]interface{}{"status": app.Status})
	c.JSON(http.StatusOK, response.Success(app))
}

// CreateNews handles POST /admin/news
func (h *AdminHandler) CreateNews(c *gin.Context) {
	var req dto.CreateNewsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.BadRequest("Invalid request body"))
		return
	}

	item, err := h.adminService.CreateNews(c.Request.Context(), &req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	middleware.SetAuditResource(c, "news", item.ID)
	c.JSON(http.StatusCreated, response.Success(item))
}

// PublishNews handles POST /admin/news/:id/publish
func (h *AdminHandler) PublishNews(c *gin.Context) {
	item, err := h.adminService.PublishNews(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(item))
}

func (h *AdminHandler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, admin.ErrInvalidRequest):
		c.JSON(http.StatusBadRequest, response.Error(response.ErrCodeValidationFailed, err.Error()))
	case errors.Is(err, admin.ErrOrganisationNotFound):
		c.JSON(http.StatusNotFound, response.NotFound("Organisation not found"))
	case errors.Is(err, admin.ErrInviteNotFound):
		c.JSON(http.StatusNotFound, response.NotFound("Invite not found"))
	case errors.Is(err, admin.ErrApplicationNotFound):
		c.JSON(http.StatusNotFound, response.NotFound("Fellowship application not found"))
	case errors.Is(err, admin.ErrNewsNotFound):
		c.JSON(http.StatusNotFound, response.NotFound("News item not found"))
	case errors.Is(err, admin.ErrInviteAlreadyPending):
		c.JSON(http.StatusConflict, response.Error(response.ErrCodeDuplicateEntry, err.Error()))
	case errors.Is(err, admin.ErrInviteNotRevocable):
		c.JSON(http.StatusConflict, response.Error(response.ErrCodeInviteInvalid, err.Error()))
	case errors.Is(err, admin.ErrOrganisationVerified),
		errors.Is(err, admin.ErrNewsAlreadyPublished),
		errors.Is(err, admin.ErrApplicationAlreadyFinal):
		c.JSON(http.StatusConflict, response.Error(response.ErrCodeConflict, err.Error()))
	default:
		c.JSON(http.StatusBadGateway, response.UpstreamFailed(""))
	}
}
