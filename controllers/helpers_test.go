package controllers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stitchwell/tailoring-api/middleware"
	"github.com/stitchwell/tailoring-api/models"
	"github.com/stitchwell/tailoring-api/services"
	"github.com/stitchwell/tailoring-api/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const testWebhookSecret = "whsec_controller_test"

// testEnv holds controllers wired to a fresh in-memory database
type testEnv struct {
	db       *gorm.DB
	notifier *services.MockNotifier
	provider *services.MockPaymentProvider
	s3       *services.MockS3Service
	users    *UserController
	catalog  *ServiceController
	orders   *OrderController
	payments *PaymentController
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := db.AutoMigrate(&models.User{}, &models.Service{}, &models.Order{}, &models.Payment{}); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	return db
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := setupTestDB(t)
	logger := zap.NewNop()
	notifier := services.NewMockNotifier()
	dispatcher := services.NewNotificationDispatcher(notifier, logger, time.Second)
	t.Cleanup(dispatcher.Wait)
	metrics := services.NewMetrics(prometheus.NewRegistry())
	provider := services.NewMockPaymentProvider(testWebhookSecret)
	s3 := services.NewMockS3Service()

	catalog := services.NewCatalogService(db, services.NewImageService(s3), services.NewMemoryCatalogCache(time.Minute), logger)
	tokens := utils.TokenIssuer{Secret: []byte("controller-test-secret"), Issuer: "tailoring-api", Audience: "tailoring-clients", TTL: time.Hour}

	return &testEnv{
		db:       db,
		notifier: notifier,
		provider: provider,
		s3:       s3,
		users:    NewUserController(services.NewUserService(db, tokens, logger)),
		catalog:  NewServiceController(catalog),
		orders:   NewOrderController(services.NewOrderService(db, catalog, dispatcher, metrics, logger, "http://localhost:3000")),
		payments: NewPaymentController(services.NewPaymentService(db, provider, dispatcher, metrics, logger, "usd", "http://localhost:3000"), logger),
	}
}

func setupTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	return router
}

// mockAuthMiddleware sets up the context exactly as the real token middleware does.
// A zero userID leaves the request anonymous.
func mockAuthMiddleware(userID uint, role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if userID != 0 {
			c.Set(middleware.ContextUserID, userID)
			c.Set(middleware.ContextRole, role)
		}
		c.Next()
	}
}

func (env *testEnv) createUser(t *testing.T, username, role string) models.User {
	t.Helper()
	user := models.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "unused",
		Role:         role,
		Available:    true,
	}
	require.NoError(t, env.db.Create(&user).Error)
	return user
}

func (env *testEnv) createService(t *testing.T, price string) models.Service {
	t.Helper()
	service := models.Service{Title: "Trouser hemming", Price: decimal.RequireFromString(price), Category: models.CategoryMen}
	require.NoError(t, env.db.Create(&service).Error)
	return service
}

func (env *testEnv) createOrder(t *testing.T, customer *models.User, service models.Service, quantity int) models.Order {
	t.Helper()
	total := service.Price.Mul(decimal.NewFromInt(int64(quantity)))
	order := models.Order{
		ServiceID:     service.ID,
		Quantity:      quantity,
		Status:        models.OrderStatusPending,
		PaymentStatus: models.PaymentStatusPending,
		TotalAmount:   total,
		PaidAmount:    decimal.Zero,
		Version:       1,
		CustomerName:  "Guest",
		CustomerEmail: "guest@example.com",
	}
	if customer != nil {
		order.CustomerID = &customer.ID
		order.CustomerName = customer.Username
		order.CustomerEmail = customer.Email
	}
	require.NoError(t, env.db.Create(&order).Error)
	return order
}

func performRequest(router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		payload, _ := json.Marshal(b)
		reader = bytes.NewBuffer(payload)
	}

	req, _ := http.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response), "Response should be valid JSON: %s", w.Body.String())
	return response
}

func assertErrorCode(t *testing.T, response map[string]interface{}, code string) {
	t.Helper()
	assert.Equal(t, false, response["success"])
	errorData, ok := response["error"].(map[string]interface{})
	require.True(t, ok, "response has no error object: %v", response)
	assert.Equal(t, code, errorData["code"])
}

func assertAmount(t *testing.T, expected string, value interface{}) {
	t.Helper()
	s, ok := value.(string)
	require.True(t, ok, "amount should be encoded as a string, got %T", value)
	assert.True(t, decimal.RequireFromString(expected).Equal(decimal.RequireFromString(s)), "expected %s, got %s", expected, s)
}
