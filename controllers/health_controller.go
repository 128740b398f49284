package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// HealthController serves liveness and database status checks
type HealthController struct {
	db *gorm.DB
}

// NewHealthController creates a health controller
func NewHealthController(db *gorm.DB) *HealthController {
	return &HealthController{db: db}
}

// HealthCheck handles GET /api/v1/health
func (h *HealthController) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Tailoring API is running",
	})
}

// DatabaseStatus handles GET /api/v1/database/status
// It checks connectivity and returns the list of tables
func (h *HealthController) DatabaseStatus(c *gin.Context) {
	sqlDB, err := h.db.DB()
	if err != nil {
		respondFailure(c, http.StatusServiceUnavailable, "DATABASE_ERROR", "UNAVAILABLE", "Failed to get database instance", err)
		return
	}

	if err := sqlDB.PingContext(c.Request.Context()); err != nil {
		respondFailure(c, http.StatusServiceUnavailable, "DATABASE_CONNECTION_ERROR", "UNAVAILABLE", "Database connection failed", err)
		return
	}

	tables, err := h.db.WithContext(c.Request.Context()).Migrator().GetTables()
	if err != nil {
		respondFailure(c, http.StatusServiceUnavailable, "DATABASE_QUERY_ERROR", "UNAVAILABLE", "Failed to query tables", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Database connected",
		"tables":  tables,
	})
}
