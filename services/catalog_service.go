package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/stitchwell/tailoring-api/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ServiceLookup resolves catalog services by id
type ServiceLookup interface {
	GetService(ctx context.Context, id uint) (*models.Service, error)
}

// ServiceInput holds the fields for creating a catalog service
type ServiceInput struct {
	Title       string
	Description string
	Price       decimal.Decimal
	Category    string
}

// ServiceUpdate holds the fields an admin may change; nil fields are left as is
type ServiceUpdate struct {
	Title       *string
	Description *string
	Price       *decimal.Decimal
	Category    *string
}

// CatalogService manages the tailoring service catalog
type CatalogService struct {
	db     *gorm.DB
	images ImageService
	cache  CatalogCache
	logger *zap.Logger
}

// NewCatalogService creates a catalog service; images and cache may be nil
func NewCatalogService(db *gorm.DB, images ImageService, cache CatalogCache, logger *zap.Logger) *CatalogService {
	return &CatalogService{db: db, images: images, cache: cache, logger: logger}
}

// ListServices returns active services, optionally filtered by category
func (s *CatalogService) ListServices(ctx context.Context, category string) ([]models.Service, error) {
	if category != "" && !models.IsValidCategory(category) {
		return nil, InvalidInput("INVALID_CATEGORY", "Category must be one of: men, women, kids")
	}

	cacheKey := "list:" + category
	var entries []catalogEntry
	if !s.readCache(ctx, cacheKey, &entries) {
		rows := []models.Service{}
		query := s.db.WithContext(ctx).Order("created_at DESC")
		if category != "" {
			query = query.Where("category = ?", category)
		}
		if err := query.Find(&rows).Error; err != nil {
			return nil, fmt.Errorf("failed to list services: %w", err)
		}

		entries = make([]catalogEntry, 0, len(rows))
		for _, row := range rows {
			entries = append(entries, newCatalogEntry(row))
		}
		s.writeCache(ctx, cacheKey, entries)
	}

	services := make([]models.Service, 0, len(entries))
	for _, entry := range entries {
		services = append(services, s.serviceFromEntry(ctx, entry))
	}
	return services, nil
}

// GetService returns an active service by id
func (s *CatalogService) GetService(ctx context.Context, id uint) (*models.Service, error) {
	cacheKey := fmt.Sprintf("detail:%d", id)
	var entry catalogEntry
	if !s.readCache(ctx, cacheKey, &entry) {
		var row models.Service
		if err := s.db.WithContext(ctx).First(&row, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, errServiceNotFound
			}
			return nil, fmt.Errorf("failed to get service: %w", err)
		}
		entry = newCatalogEntry(row)
		s.writeCache(ctx, cacheKey, entry)
	}

	service := s.serviceFromEntry(ctx, entry)
	return &service, nil
}

// CreateService adds a service to the catalog
func (s *CatalogService) CreateService(ctx context.Context, input ServiceInput) (*models.Service, error) {
	service := models.Service{
		Title:       strings.TrimSpace(input.Title),
		Description: input.Description,
		Price:       input.Price,
		Category:    input.Category,
	}
	if err := validateService(&service); err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).Create(&service).Error; err != nil {
		return nil, fmt.Errorf("failed to create service: %w", err)
	}

	s.invalidate(ctx)
	s.logger.Info("service created", zap.Uint("service_id", service.ID), zap.String("category", service.Category))
	return &service, nil
}

// UpdateService applies the allow-listed changes in update
func (s *CatalogService) UpdateService(ctx context.Context, id uint, update ServiceUpdate) (*models.Service, error) {
	var service models.Service
	if err := s.db.WithContext(ctx).First(&service, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errServiceNotFound
		}
		return nil, fmt.Errorf("failed to get service: %w", err)
	}

	if update.Title != nil {
		service.Title = strings.TrimSpace(*update.Title)
	}
	if update.Description != nil {
		service.Description = *update.Description
	}
	if update.Price != nil {
		service.Price = *update.Price
	}
	if update.Category != nil {
		service.Category = *update.Category
	}
	if err := validateService(&service); err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).Model(&service).Updates(map[string]interface{}{
		"title":       service.Title,
		"description": service.Description,
		"price":       service.Price,
		"category":    service.Category,
	}).Error; err != nil {
		return nil, fmt.Errorf("failed to update service: %w", err)
	}

	s.invalidate(ctx)
	s.attachImageURL(ctx, &service)
	return &service, nil
}

// DeleteService soft-deletes a service; existing orders keep referencing it
func (s *CatalogService) DeleteService(ctx context.Context, id uint) error {
	result := s.db.WithContext(ctx).Delete(&models.Service{}, id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete service: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return errServiceNotFound
	}

	s.invalidate(ctx)
	return nil
}

// UploadServiceImage stores a new image for the service and replaces the old one
func (s *CatalogService) UploadServiceImage(ctx context.Context, id uint, fileHeader *multipart.FileHeader) (*models.Service, error) {
	if s.images == nil {
		return nil, Unavailable("STORAGE_DISABLED", "Image storage is not configured", nil)
	}

	var service models.Service
	if err := s.db.WithContext(ctx).First(&service, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errServiceNotFound
		}
		return nil, fmt.Errorf("failed to get service: %w", err)
	}

	key, err := s.images.UploadImage(ctx, fileHeader)
	if err != nil {
		return nil, err
	}

	var previous string
	if service.ImageS3Key != nil {
		previous = *service.ImageS3Key
	}
	if err := s.db.WithContext(ctx).Model(&models.Service{}).Where("id = ?", service.ID).Update("image_s3_key", key).Error; err != nil {
		return nil, fmt.Errorf("failed to save image key: %w", err)
	}
	service.ImageS3Key = &key

	if previous != "" {
		if err := s.images.DeleteImage(ctx, previous); err != nil {
			s.logger.Warn("failed to delete previous service image", zap.String("key", previous), zap.Error(err))
		}
	}

	s.invalidate(ctx)
	s.attachImageURL(ctx, &service)
	return &service, nil
}

func validateService(service *models.Service) error {
	if service.Title == "" {
		return InvalidInput("INVALID_TITLE", "Title is required")
	}
	if !service.Price.IsPositive() {
		return InvalidInput("INVALID_PRICE", "Price must be greater than zero")
	}
	if !models.IsValidCategory(service.Category) {
		return InvalidInput("INVALID_CATEGORY", "Category must be one of: men, women, kids")
	}
	service.Price = service.Price.Round(2)
	return nil
}

func (s *CatalogService) attachImageURL(ctx context.Context, service *models.Service) {
	if s.images == nil || service.ImageS3Key == nil || *service.ImageS3Key == "" {
		return
	}
	url, err := s.images.GetImageURL(ctx, *service.ImageS3Key)
	if err != nil {
		s.logger.Warn("failed to generate image URL", zap.Uint("service_id", service.ID), zap.Error(err))
		return
	}
	service.ImageURL = &url
}

// catalogEntry is the cached form of a service. It keeps the storage key instead of a presigned URL,
// which would expire while still cached.
type catalogEntry struct {
	models.Service
	ImageKey *string `json:"image_key,omitempty"`
}

func newCatalogEntry(service models.Service) catalogEntry {
	service.ImageURL = nil
	return catalogEntry{Service: service, ImageKey: service.ImageS3Key}
}

func (s *CatalogService) serviceFromEntry(ctx context.Context, entry catalogEntry) models.Service {
	service := entry.Service
	service.ImageS3Key = entry.ImageKey
	s.attachImageURL(ctx, &service)
	return service
}

func (s *CatalogService) readCache(ctx context.Context, key string, dest interface{}) bool {
	if s.cache == nil {
		return false
	}
	data, ok := s.cache.Get(ctx, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(data, dest); err != nil {
		s.logger.Warn("failed to decode cached catalog entry", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

func (s *CatalogService) writeCache(ctx context.Context, key string, value interface{}) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		s.logger.Warn("failed to encode catalog entry for cache", zap.String("key", key), zap.Error(err))
		return
	}
	s.cache.Set(ctx, key, data)
}

func (s *CatalogService) invalidate(ctx context.Context) {
	if s.cache != nil {
		s.cache.Invalidate(ctx)
	}
}
