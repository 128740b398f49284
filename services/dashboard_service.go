package services

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stitchwell/tailoring-api/models"
	"gorm.io/gorm"
)

const dashboardRecentLimit = 5

// RecentOrder is the dashboard summary of an order
type RecentOrder struct {
	ID           uint            `json:"id"`
	CustomerName string          `json:"customer_name"`
	Status       string          `json:"status"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	CreatedAt    time.Time       `json:"created_at"`
}

// RecentUser is the dashboard summary of an account
type RecentUser struct {
	ID        uint      `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// DashboardStats summarises the marketplace for admins
type DashboardStats struct {
	TotalUsers     int64            `json:"total_users"`
	TotalOrders    int64            `json:"total_orders"`
	TotalServices  int64            `json:"total_services"`
	TotalRevenue   decimal.Decimal  `json:"total_revenue"`
	OrdersByStatus map[string]int64 `json:"orders_by_status"`
	RecentOrders   []RecentOrder    `json:"recent_orders"`
	RecentUsers    []RecentUser     `json:"recent_users"`
}

// DashboardService computes admin statistics
type DashboardService struct {
	db *gorm.DB
}

// NewDashboardService creates a dashboard service
func NewDashboardService(db *gorm.DB) *DashboardService {
	return &DashboardService{db: db}
}

// Stats counts accounts, orders and services, sums credited payments and lists recent activity.
// Revenue only includes credited ledger entries.
func (s *DashboardService) Stats(ctx context.Context) (*DashboardStats, error) {
	db := s.db.WithContext(ctx)
	stats := &DashboardStats{
		OrdersByStatus: map[string]int64{},
		RecentOrders:   []RecentOrder{},
		RecentUsers:    []RecentUser{},
	}

	if err := db.Model(&models.User{}).Where("role <> ?", models.RoleAdmin).Count(&stats.TotalUsers).Error; err != nil {
		return nil, fmt.Errorf("failed to count users: %w", err)
	}
	if err := db.Model(&models.Order{}).Count(&stats.TotalOrders).Error; err != nil {
		return nil, fmt.Errorf("failed to count orders: %w", err)
	}
	if err := db.Model(&models.Service{}).Count(&stats.TotalServices).Error; err != nil {
		return nil, fmt.Errorf("failed to count services: %w", err)
	}

	revenue := decimal.Zero
	err := db.Model(&models.Payment{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("status <> ?", models.LedgerStatusFlagged).
		Row().Scan(&revenue)
	if err != nil {
		return nil, fmt.Errorf("failed to sum revenue: %w", err)
	}
	stats.TotalRevenue = revenue.Round(2)

	var byStatus []struct {
		Status string
		Count  int64
	}
	if err := db.Model(&models.Order{}).Select("status, COUNT(*) AS count").Group("status").Scan(&byStatus).Error; err != nil {
		return nil, fmt.Errorf("failed to group orders: %w", err)
	}
	for _, row := range byStatus {
		stats.OrdersByStatus[row.Status] = row.Count
	}

	var orders []models.Order
	if err := db.Order("created_at DESC, id DESC").Limit(dashboardRecentLimit).Find(&orders).Error; err != nil {
		return nil, fmt.Errorf("failed to load recent orders: %w", err)
	}
	for _, order := range orders {
		stats.RecentOrders = append(stats.RecentOrders, RecentOrder{
			ID:           order.ID,
			CustomerName: order.CustomerName,
			Status:       order.Status,
			TotalAmount:  order.TotalAmount,
			CreatedAt:    order.CreatedAt,
		})
	}

	var users []models.User
	if err := db.Where("role <> ?", models.RoleAdmin).Order("created_at DESC, id DESC").Limit(dashboardRecentLimit).Find(&users).Error; err != nil {
		return nil, fmt.Errorf("failed to load recent users: %w", err)
	}
	for _, user := range users {
		stats.RecentUsers = append(stats.RecentUsers, RecentUser{
			ID:        user.ID,
			Username:  user.Username,
			Email:     user.Email,
			Role:      user.Role,
			CreatedAt: user.CreatedAt,
		})
	}

	return stats, nil
}
