package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stitchwell/tailoring-api/config"
	"github.com/stitchwell/tailoring-api/controllers"
	"github.com/stitchwell/tailoring-api/middleware"
	"github.com/stitchwell/tailoring-api/models"
	"github.com/stitchwell/tailoring-api/routes"
	"github.com/stitchwell/tailoring-api/services"
	"github.com/stitchwell/tailoring-api/utils"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DefaultPassword is the password of every user created by CreateUser
const DefaultPassword = "password123"

// WebhookSecret is the signature the mock payment provider accepts
const WebhookSecret = "whsec_suite"

// TestApp is the full HTTP surface wired to an in-memory database and mock collaborators
type TestApp struct {
	Router     *gin.Engine
	DB         *gorm.DB
	Config     *config.Config
	Notifier   *services.MockNotifier
	Dispatcher *services.NotificationDispatcher
	Provider   *services.MockPaymentProvider
	S3         *services.MockS3Service
	Registry   *prometheus.Registry
	tokens     utils.TokenIssuer
}

// NewTestApp builds a TestApp. Resources are released when t finishes.
func NewTestApp(t *testing.T) *TestApp {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		DatabaseURL:        "file::memory:",
		DatabaseDriver:     "sqlite",
		GoEnv:              "test",
		JWTSecret:          "suite-secret",
		JWTIssuer:          "tailoring-api",
		JWTAudience:        "tailoring-clients",
		TokenTTL:           time.Hour,
		CORSAllowedOrigins: []string{"http://localhost:3000"},
		ClientURL:          "http://localhost:3000",
		StripeCurrency:     "usd",
		AuthRateLimitRPS:   1000,
	}
	logger := zap.NewNop()

	db, err := config.ConnectDatabase(cfg, logger)
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.Service{}, &models.Order{}, &models.Payment{}))

	registry := prometheus.NewRegistry()
	metrics := services.NewMetrics(registry)
	notifier := services.NewMockNotifier()
	dispatcher := services.NewNotificationDispatcher(notifier, logger, time.Second)
	t.Cleanup(dispatcher.Wait)
	provider := services.NewMockPaymentProvider(WebhookSecret)
	s3 := services.NewMockS3Service()

	tokens := utils.TokenIssuer{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      cfg.TokenTTL,
	}
	validator, err := middleware.NewTokenValidator(cfg)
	require.NoError(t, err)

	users := services.NewUserService(db, tokens, logger)
	catalog := services.NewCatalogService(db, services.NewImageService(s3), services.NewMemoryCatalogCache(time.Minute), logger)
	orders := services.NewOrderService(db, catalog, dispatcher, metrics, logger, cfg.ClientURL)
	payments := services.NewPaymentService(db, provider, dispatcher, metrics, logger, cfg.StripeCurrency, cfg.ClientURL)

	router := routes.NewRouter(routes.Dependencies{
		Config:    cfg,
		Logger:    logger,
		Registry:  registry,
		Validator: validator,
		Health:    controllers.NewHealthController(db),
		Users:     controllers.NewUserController(users),
		Catalog:   controllers.NewServiceController(catalog),
		Orders:    controllers.NewOrderController(orders),
		Payments:  controllers.NewPaymentController(payments, logger),
		Admin:     controllers.NewAdminController(services.NewDashboardService(db), users),
	})

	return &TestApp{
		Router:     router,
		DB:         db,
		Config:     cfg,
		Notifier:   notifier,
		Dispatcher: dispatcher,
		Provider:   provider,
		S3:         s3,
		Registry:   registry,
		tokens:     tokens,
	}
}

// CreateUser inserts a user with DefaultPassword
func (a *TestApp) CreateUser(t *testing.T, username, role string) models.User {
	t.Helper()
	hash, err := utils.HashPassword(DefaultPassword)
	require.NoError(t, err)

	user := models.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: hash,
		Role:         role,
		Available:    true,
	}
	require.NoError(t, a.DB.Create(&user).Error)
	return user
}

// CreateService inserts a catalog entry with the given price
func (a *TestApp) CreateService(t *testing.T, title, price string) models.Service {
	t.Helper()
	service := models.Service{Title: title, Price: decimal.RequireFromString(price), Category: models.CategoryWomen}
	require.NoError(t, a.DB.Create(&service).Error)
	return service
}

// TokenFor issues a real access token for user
func (a *TestApp) TokenFor(t *testing.T, user models.User) string {
	t.Helper()
	token, err := a.tokens.GenerateToken(user.ID, user.Role)
	require.NoError(t, err)
	return token
}

// Do sends a request through the router. body may be nil, a string or a value encoded as JSON.
func (a *TestApp) Do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	req := NewRequest(method, path, token, body)
	w := httptest.NewRecorder()
	a.Router.ServeHTTP(w, req)
	return w
}

// Reload reads an order back from the database
func (a *TestApp) Reload(t *testing.T, orderID uint) models.Order {
	t.Helper()
	var order models.Order
	require.NoError(t, a.DB.First(&order, orderID).Error)
	return order
}

// User reads a user back from the database
func (a *TestApp) User(t *testing.T, userID uint) models.User {
	t.Helper()
	var user models.User
	require.NoError(t, a.DB.First(&user, userID).Error)
	return user
}

// NewRequest builds a JSON request with an optional bearer token
func NewRequest(method, path, token string, body interface{}) *http.Request {
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		payload, _ := json.Marshal(b)
		reader = bytes.NewBuffer(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req.WithContext(context.Background())
}

// Decode unmarshals a JSON envelope
func Decode(t *testing.T, body []byte) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &response), "Response should be valid JSON: %s", string(body))
	return response
}

// Data returns the "data" object of a success envelope
func Data(t *testing.T, body []byte) map[string]interface{} {
	t.Helper()
	response := Decode(t, body)
	data, ok := response["data"].(map[string]interface{})
	require.True(t, ok, "response has no data object: %s", string(body))
	return data
}

// ErrorCode returns error.code of a failure envelope
func ErrorCode(t *testing.T, body []byte) string {
	t.Helper()
	response := Decode(t, body)
	errorData, ok := response["error"].(map[string]interface{})
	require.True(t, ok, "response has no error object: %s", string(body))
	return fmt.Sprint(errorData["code"])
}

// AmountEqual reports whether a JSON-encoded amount equals expected
func AmountEqual(expected string, value interface{}) bool {
	s, ok := value.(string)
	if !ok {
		return false
	}
	actual, err := decimal.NewFromString(s)
	return err == nil && actual.Equal(decimal.RequireFromString(expected))
}
