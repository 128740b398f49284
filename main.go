package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/stitchwell/tailoring-api/config"
	"github.com/stitchwell/tailoring-api/controllers"
	"github.com/stitchwell/tailoring-api/middleware"
	"github.com/stitchwell/tailoring-api/models"
	"github.com/stitchwell/tailoring-api/routes"
	"github.com/stitchwell/tailoring-api/services"
	"github.com/stitchwell/tailoring-api/utils"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	notificationTimeout = 10 * time.Second
	shutdownTimeout     = 15 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := config.NewLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped with error", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	logger.Info("Starting Tailoring API server...", zap.String("env", cfg.GoEnv))
	gin.SetMode(ginMode(cfg))

	db, err := config.ConnectDatabase(cfg, logger)
	if err != nil {
		return err
	}
	if err := migrate(db); err != nil {
		return err
	}
	logger.Info("Database migration completed successfully")

	app, err := buildApp(context.Background(), cfg, db, logger)
	if err != nil {
		return err
	}
	defer app.dispatcher.Wait()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           app.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Server is listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case sig := <-quit:
		logger.Info("Shutting down server", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	logger.Info("Server stopped")
	return nil
}

func ginMode(cfg *config.Config) string {
	switch {
	case cfg.IsProduction():
		return gin.ReleaseMode
	case cfg.IsTest():
		return gin.TestMode
	default:
		return gin.DebugMode
	}
}

func migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.User{}, &models.Service{}, &models.Order{}, &models.Payment{}); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

// application is the fully wired HTTP surface plus the resources main must drain
type application struct {
	router     *gin.Engine
	dispatcher *services.NotificationDispatcher
}

func buildApp(ctx context.Context, cfg *config.Config, db *gorm.DB, logger *zap.Logger) (*application, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := services.NewMetrics(registry)

	dispatcher := services.NewNotificationDispatcher(buildNotifier(cfg, logger), logger, notificationTimeout)

	cache, err := buildCatalogCache(cfg, logger)
	if err != nil {
		return nil, err
	}

	var images services.ImageService
	if cfg.StorageEnabled() {
		s3Service, err := services.NewS3Service(ctx, cfg)
		if err != nil {
			return nil, err
		}
		images = services.NewImageService(s3Service)
	} else {
		logger.Warn("AWS_S3_BUCKET not set, service image uploads are disabled")
	}

	tokens := utils.TokenIssuer{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      cfg.TokenTTL,
	}
	tokenValidator, err := middleware.NewTokenValidator(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to set up token validator: %w", err)
	}

	users := services.NewUserService(db, tokens, logger)
	if err := users.EnsureAdmin(ctx, cfg.AdminEmail, cfg.AdminPassword); err != nil {
		return nil, err
	}
	catalog := services.NewCatalogService(db, images, cache, logger)
	orders := services.NewOrderService(db, catalog, dispatcher, metrics, logger, cfg.ClientURL)
	payments := services.NewPaymentService(db, buildPaymentProvider(cfg, logger), dispatcher, metrics, logger, cfg.StripeCurrency, cfg.ClientURL)

	router := routes.NewRouter(routes.Dependencies{
		Config:    cfg,
		Logger:    logger,
		Registry:  registry,
		Validator: tokenValidator,
		Health:    controllers.NewHealthController(db),
		Users:     controllers.NewUserController(users),
		Catalog:   controllers.NewServiceController(catalog),
		Orders:    controllers.NewOrderController(orders),
		Payments:  controllers.NewPaymentController(payments, logger),
		Admin:     controllers.NewAdminController(services.NewDashboardService(db), users),
	})

	return &application{router: router, dispatcher: dispatcher}, nil
}

// buildNotifier sends email when SMTP is configured and logs notifications otherwise
func buildNotifier(cfg *config.Config, logger *zap.Logger) services.Notifier {
	if cfg.SMTPHost == "" {
		logger.Warn("SMTP_HOST not set, notifications will only be logged")
		return &services.LogNotifier{Logger: logger}
	}
	return &services.SMTPNotifier{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUser,
		Password: cfg.SMTPPass,
		From:     cfg.SMTPFrom,
	}
}

// buildCatalogCache uses Redis when REDIS_URL is set and an in-process cache otherwise
func buildCatalogCache(cfg *config.Config, logger *zap.Logger) (services.CatalogCache, error) {
	if cfg.RedisURL == "" {
		return services.NewMemoryCatalogCache(cfg.CatalogCacheTTL), nil
	}
	client, err := services.NewRedisClient(cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	return services.NewRedisCatalogCache(client, cfg.CatalogCacheTTL, logger), nil
}

// buildPaymentProvider returns nil when Stripe is not configured so payment
// operations report the provider as unavailable
func buildPaymentProvider(cfg *config.Config, logger *zap.Logger) services.PaymentProvider {
	if !cfg.PaymentsEnabled() {
		logger.Warn("STRIPE_SECRET_KEY not set, online payments are disabled")
		return nil
	}
	return services.NewStripeProvider(cfg.StripeSecretKey, cfg.StripeWebhookKey)
}
