package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Service categories
const (
	CategoryMen   = "men"
	CategoryWomen = "women"
	CategoryKids  = "kids"
)

// Service is a tailoring service offered in the catalog
type Service struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	Title       string          `gorm:"not null" json:"title"`
	Description string          `gorm:"type:text" json:"description"`
	Price       decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"price"`
	Category    string          `gorm:"not null;index" json:"category"`
	ImageS3Key  *string         `gorm:"column:image_s3_key" json:"-"`
	ImageURL    *string         `gorm:"-" json:"image_url,omitempty"` // computed field, presigned URL for image
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	DeletedAt   gorm.DeletedAt  `gorm:"index" json:"-"`
}

// TableName specifies the table name for the Service model
func (Service) TableName() string {
	return "services"
}

// IsValidCategory reports whether category is one of the catalog categories
func IsValidCategory(category string) bool {
	switch category {
	case CategoryMen, CategoryWomen, CategoryKids:
		return true
	}
	return false
}
