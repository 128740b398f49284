package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stitchwell/tailoring-api/services"
)

// CreateServiceRequest represents the request body for adding a catalog service
type CreateServiceRequest struct {
	Title       string           `json:"title" binding:"required,max=200"`
	Description string           `json:"description" binding:"omitempty,max=2000"`
	Price       *decimal.Decimal `json:"price" binding:"required"`
	Category    string           `json:"category" binding:"required,category"`
}

// UpdateServiceRequest represents the request body for changing a catalog service
type UpdateServiceRequest struct {
	Title       *string          `json:"title" binding:"omitempty,min=1,max=200"`
	Description *string          `json:"description" binding:"omitempty,max=2000"`
	Price       *decimal.Decimal `json:"price"`
	Category    *string          `json:"category" binding:"omitempty,category"`
}

// ServiceController serves the tailoring service catalog
type ServiceController struct {
	catalog *services.CatalogService
}

// NewServiceController creates a catalog controller
func NewServiceController(catalog *services.CatalogService) *ServiceController {
	return &ServiceController{catalog: catalog}
}

// ListServices handles GET /api/v1/services - lists services, optionally by category
func (sc *ServiceController) ListServices(c *gin.Context) {
	list, err := sc.catalog.ListServices(c.Request.Context(), c.Query("category"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, list)
}

// GetService handles GET /api/v1/services/:id
func (sc *ServiceController) GetService(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	service, err := sc.catalog.GetService(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, service)
}

// CreateService handles POST /api/v1/services (admin only)
func (sc *ServiceController) CreateService(c *gin.Context) {
	var req CreateServiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err)
		return
	}

	service, err := sc.catalog.CreateService(c.Request.Context(), services.ServiceInput{
		Title:       req.Title,
		Description: req.Description,
		Price:       *req.Price,
		Category:    req.Category,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, service)
}

// UpdateService handles PUT /api/v1/services/:id (admin only)
func (sc *ServiceController) UpdateService(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req UpdateServiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err)
		return
	}

	service, err := sc.catalog.UpdateService(c.Request.Context(), id, services.ServiceUpdate{
		Title:       req.Title,
		Description: req.Description,
		Price:       req.Price,
		Category:    req.Category,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, service)
}

// DeleteService handles DELETE /api/v1/services/:id (admin only)
func (sc *ServiceController) DeleteService(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	if err := sc.catalog.DeleteService(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"id": id})
}

// UploadServiceImage handles POST /api/v1/services/:id/image - multipart field "image" (admin only)
func (sc *ServiceController) UploadServiceImage(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	fileHeader, err := c.FormFile("image")
	if err != nil {
		respondFailure(c, http.StatusBadRequest, "MISSING_FILE", string(services.KindInvalidInput), "No image file provided", nil)
		return
	}

	service, err := sc.catalog.UploadServiceImage(c.Request.Context(), id, fileHeader)
	if err != nil {
		respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, service)
}
