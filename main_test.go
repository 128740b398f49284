package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stitchwell/tailoring-api/config"
	"github.com/stitchwell/tailoring-api/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testConfig() *config.Config {
	return &config.Config{
		DatabaseURL:        "file::memory:",
		DatabaseDriver:     "sqlite",
		Port:               "0",
		GoEnv:              "test",
		JWTSecret:          "main-test-secret",
		JWTIssuer:          "tailoring-api",
		JWTAudience:        "tailoring-clients",
		TokenTTL:           time.Hour,
		CORSAllowedOrigins: []string{"http://localhost:3000"},
		ClientURL:          "http://localhost:3000",
		StripeCurrency:     "usd",
		CatalogCacheTTL:    time.Minute,
		AuthRateLimitRPS:   5,
		AdminEmail:         "owner@example.com",
		AdminPassword:      "owner-password",
	}
}

func TestGinMode(t *testing.T) {
	cfg := testConfig()
	assert.Equal(t, gin.TestMode, ginMode(cfg))

	cfg.GoEnv = "production"
	assert.Equal(t, gin.ReleaseMode, ginMode(cfg))

	cfg.GoEnv = "development"
	assert.Equal(t, gin.DebugMode, ginMode(cfg))
}

func TestBuildNotifier(t *testing.T) {
	cfg := testConfig()
	_, isLog := buildNotifier(cfg, zap.NewNop()).(*services.LogNotifier)
	assert.True(t, isLog, "without SMTP_HOST notifications are logged")

	cfg.SMTPHost = "smtp.example.com"
	cfg.SMTPPort = "587"
	smtp, ok := buildNotifier(cfg, zap.NewNop()).(*services.SMTPNotifier)
	require.True(t, ok)
	assert.Equal(t, "smtp.example.com", smtp.Host)
}

func TestBuildCatalogCache(t *testing.T) {
	cfg := testConfig()
	cache, err := buildCatalogCache(cfg, zap.NewNop())
	require.NoError(t, err)
	_, isMemory := cache.(*services.MemoryCatalogCache)
	assert.True(t, isMemory)

	cfg.RedisURL = "redis://localhost:6379/1"
	cache, err = buildCatalogCache(cfg, zap.NewNop())
	require.NoError(t, err)
	_, isRedis := cache.(*services.RedisCatalogCache)
	assert.True(t, isRedis)

	cfg.RedisURL = "not a url"
	_, err = buildCatalogCache(cfg, zap.NewNop())
	assert.Error(t, err)
}

func TestBuildPaymentProvider(t *testing.T) {
	cfg := testConfig()
	assert.Nil(t, buildPaymentProvider(cfg, zap.NewNop()), "provider must be an untyped nil when Stripe is disabled")

	cfg.StripeSecretKey = "sk_test_123"
	cfg.StripeWebhookKey = "whsec_123"
	_, isStripe := buildPaymentProvider(cfg, zap.NewNop()).(*services.StripeProvider)
	assert.True(t, isStripe)
}

func TestBuildApp(t *testing.T) {
	cfg := testConfig()
	gin.SetMode(ginMode(cfg))

	db, err := config.ConnectDatabase(cfg, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, migrate(db))

	app, err := buildApp(context.Background(), cfg, db, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(app.dispatcher.Wait)

	t.Run("health", func(t *testing.T) {
		w := httptest.NewRecorder()
		app.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
		assert.Equal(t, http.StatusOK, w.Code)

		var response map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, "Tailoring API is running", response["message"])
		assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	})

	t.Run("bootstrap admin can log in", func(t *testing.T) {
		body := `{"email":"owner@example.com","password":"owner-password"}`
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		app.router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
	})

	t.Run("checkout without a provider is unavailable", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/1/checkout", strings.NewReader(`{"payment_type":"initial"}`))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		app.router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code, w.Body.String())
	})

	t.Run("metrics", func(t *testing.T) {
		w := httptest.NewRecorder()
		app.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "http_requests_total")
		assert.Contains(t, w.Body.String(), "go_goroutines")
	})
}
