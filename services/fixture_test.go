package services

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stitchwell/tailoring-api/models"
	"github.com/stitchwell/tailoring-api/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	testWebhookSecret = "whsec_test"
	testJWTSecret     = "test-secret"
)

var decimalTwo = decimal.NewFromInt(2)

// fixture wires every service against a fresh in-memory database
type fixture struct {
	db         *gorm.DB
	notifier   *MockNotifier
	dispatcher *NotificationDispatcher
	metrics    *Metrics
	provider   *MockPaymentProvider
	catalog    *CatalogService
	orders     *OrderService
	payments   *PaymentService
	users      *UserService
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err, "Failed to connect to test database")

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&models.User{}, &models.Service{}, &models.Order{}, &models.Payment{}))
	return db
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := setupTestDB(t)
	logger := zap.NewNop()
	notifier := NewMockNotifier()
	dispatcher := NewNotificationDispatcher(notifier, logger, time.Second)
	metrics := NewMetrics(prometheus.NewRegistry())
	provider := NewMockPaymentProvider(testWebhookSecret)
	catalog := NewCatalogService(db, nil, nil, logger)

	tokens := utils.TokenIssuer{Secret: []byte(testJWTSecret), Issuer: "tailoring-api", Audience: "tailoring-clients", TTL: time.Hour}

	f := &fixture{
		db:         db,
		notifier:   notifier,
		dispatcher: dispatcher,
		metrics:    metrics,
		provider:   provider,
		catalog:    catalog,
		orders:     NewOrderService(db, catalog, dispatcher, metrics, logger, "http://localhost:3000"),
		payments:   NewPaymentService(db, provider, dispatcher, metrics, logger, "usd", "http://localhost:3000"),
		users:      NewUserService(db, tokens, logger),
	}
	t.Cleanup(dispatcher.Wait)
	return f
}

func (f *fixture) createService(t *testing.T, price string) models.Service {
	t.Helper()
	service := models.Service{
		Title:    "Suit alteration",
		Price:    decimal.RequireFromString(price),
		Category: models.CategoryMen,
	}
	require.NoError(t, f.db.Create(&service).Error)
	return service
}

func (f *fixture) createUser(t *testing.T, username, role string) models.User {
	t.Helper()
	user := models.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "not-a-real-hash",
		Role:         role,
		Available:    true,
	}
	require.NoError(t, f.db.Create(&user).Error)
	return user
}

func (f *fixture) createOrder(t *testing.T, customer models.User, service models.Service, quantity int) *models.Order {
	t.Helper()
	order, err := f.orders.CreateOrder(context.Background(), Actor{UserID: customer.ID, Role: customer.Role}, CreateOrderInput{
		ServiceID: service.ID,
		Quantity:  quantity,
	})
	require.NoError(t, err)
	return order
}

func (f *fixture) reloadOrder(t *testing.T, id uint) models.Order {
	t.Helper()
	var order models.Order
	require.NoError(t, f.db.First(&order, id).Error)
	return order
}

func (f *fixture) reloadUser(t *testing.T, id uint) models.User {
	t.Helper()
	var user models.User
	require.NoError(t, f.db.First(&user, id).Error)
	return user
}

func adminActor() Actor {
	return Actor{UserID: 9999, Role: models.RoleAdmin}
}

func actorFor(user models.User) Actor {
	return Actor{UserID: user.ID, Role: user.Role}
}

func assertDecimal(t *testing.T, expected string, actual decimal.Decimal) {
	t.Helper()
	assert.True(t, decimal.RequireFromString(expected).Equal(actual), "expected %s, got %s", expected, actual.String())
}

// assertAmountsConsistent checks remaining == total - paid and paid <= total
func assertAmountsConsistent(t *testing.T, order models.Order) {
	t.Helper()
	assert.True(t, order.RemainingAmount.Equal(order.TotalAmount.Sub(order.PaidAmount)),
		"remaining %s != total %s - paid %s", order.RemainingAmount, order.TotalAmount, order.PaidAmount)
	assert.True(t, order.PaidAmount.LessThanOrEqual(order.TotalAmount), "paid exceeds total")
}

func assertKind(t *testing.T, err error, kind ErrorKind, code string) {
	t.Helper()
	require.Error(t, err)
	var svcErr *ServiceError
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, kind, svcErr.Kind)
	if code != "" {
		assert.Equal(t, code, svcErr.Code)
	}
}
