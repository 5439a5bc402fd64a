package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/prohmpiriya/safeguard-membership/internal/provisioning"
	"github.com/prohmpiriya/safeguard-membership/pkg/middleware"
	"github.com/prohmpiriya/safeguard-membership/pkg/response"
)

// RunReader reads stored provisioning runs
type RunReader interface {
	GetRun(ctx context.Context, id string) (*provisioning.Run, error)
	ListRuns(ctx context.Context, userID string, limit, offset int) ([]*provisioning.Run, int64, error)
}

// ProvisioningHandler exposes provisioning run outcomes
type ProvisioningHandler struct {
	runs RunReader
}

// NewProvisioningHandler creates a new ProvisioningHandler
func NewProvisioningHandler(runs RunReader) *ProvisioningHandler {
	return &ProvisioningHandler{runs: runs}
}

// ListRuns handles GET /provisioning/runs
func (h *ProvisioningHandler) ListRuns(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok || userID == "" {
		c.JSON(http.StatusUnauthorized, response.Unauthorized("User ID not found in token"))
		return
	}

	page, _ := strconv.Atoi(c.Query("page"))
	perPage, _ := strconv.Atoi(c.Query("per_page"))
	params := response.NewPagination(page, perPage, 10, 50)

	runs, total, err := h.runs.ListRuns(c.Request.Context(), userID, params.PerPage, params.Offset())
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.InternalError("Failed to list provisioning runs"))
		return
	}
	c.JSON(http.StatusOK, response.PaginatedFromParams(runs, params, total))
}

// GetRun handles GET /provisioning/runs/:id. Members only see their own runs.
func (h *ProvisioningHandler) GetRun(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok || userID == "" {
		c.JSON(http.StatusUnauthorized, response.Unauthorized("User ID not found in token"))
		return
	}

	run, err := h.runs.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, provisioning.ErrRunNotFound) {
			c.JSON(http.StatusNotFound, response.NotFound("Provisioning run not found"))
			return
		}
		c.JSON(http.StatusInternalServerError, response.InternalError("Failed to get provisioning run"))
		return
	}

	if role, _ := middleware.GetRole(c); run.UserID != userID && role != middleware.RoleAdmin {
		c.JSON(http.StatusNotFound, response.NotFound("Provisioning run not found"))
		return
	}
	c.JSON(http.StatusOK, response.Success(run))
}
