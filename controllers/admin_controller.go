package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stitchwell/tailoring-api/services"
)

// ListUsersQuery holds the query parameters of the admin user directory
type ListUsersQuery struct {
	Search string `form:"search" binding:"omitempty,max=100"`
	Role   string `form:"role" binding:"omitempty,oneof=all customer tailor"`
	Page   int    `form:"page" binding:"omitempty,min=1"`
	Limit  int    `form:"limit" binding:"omitempty,min=1,max=100"`
}

// AdminController serves the admin dashboard and user directory
type AdminController struct {
	dashboard *services.DashboardService
	users     *services.UserService
}

// NewAdminController creates an admin controller
func NewAdminController(dashboard *services.DashboardService, users *services.UserService) *AdminController {
	return &AdminController{dashboard: dashboard, users: users}
}

// GetDashboardStats handles GET /api/v1/admin/dashboard
func (ac *AdminController) GetDashboardStats(c *gin.Context) {
	stats, err := ac.dashboard.Stats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	respondSuccess(c, http.StatusOK, stats)
}

// ListUsers handles GET /api/v1/admin/users - pages through customers and tailors
func (ac *AdminController) ListUsers(c *gin.Context) {
	var query ListUsersQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		respondValidationError(c, err)
		return
	}

	page, err := ac.users.ListUsers(c.Request.Context(), services.UserQuery{
		Search: query.Search,
		Role:   query.Role,
		Page:   query.Page,
		Limit:  query.Limit,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondSuccess(c, http.StatusOK, page)
}
