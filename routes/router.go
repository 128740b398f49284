package routes

import (
	"time"

	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stitchwell/tailoring-api/config"
	"github.com/stitchwell/tailoring-api/controllers"
	"github.com/stitchwell/tailoring-api/middleware"
	"github.com/stitchwell/tailoring-api/models"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Dependencies are the collaborators the HTTP surface is built from
type Dependencies struct {
	Config    *config.Config
	Logger    *zap.Logger
	Registry  *prometheus.Registry
	Validator *validator.Validator

	Health   *controllers.HealthController
	Users    *controllers.UserController
	Catalog  *controllers.ServiceController
	Orders   *controllers.OrderController
	Payments *controllers.PaymentController
	Admin    *controllers.AdminController
}

const (
	authRateBurst = 10
	authRateTTL   = 10 * time.Minute
)

// NewRouter builds the gin engine with middleware and the /api/v1 route table
func NewRouter(d Dependencies) *gin.Engine {
	router := gin.New()
	router.Use(
		middleware.RequestID(),
		middleware.RequestLogger(d.Logger),
		middleware.Recovery(d.Logger),
		middleware.SecurityHeaders(),
		cors.New(cors.Config{
			AllowOrigins:     d.Config.CORSAllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Stripe-Signature", middleware.RequestIDHeader},
			ExposeHeaders:    []string{middleware.RequestIDHeader},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}),
	)

	if d.Registry != nil {
		router.Use(middleware.HTTPMetrics(d.Registry))
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Registry, promhttp.HandlerOpts{})))
	}

	requireAuth := middleware.EnsureValidToken(d.Validator, d.Logger)
	optionalAuth := middleware.OptionalAuth(d.Validator, d.Logger)
	adminOnly := middleware.RequireRole(models.RoleAdmin)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", d.Health.HealthCheck)
		v1.GET("/database/status", d.Health.DatabaseStatus)

		auth := v1.Group("/auth")
		auth.Use(middleware.RateLimit(middleware.NewRateLimiter(rate.Limit(d.Config.AuthRateLimitRPS), authRateBurst, authRateTTL)))
		{
			auth.POST("/register", d.Users.Register)
			auth.POST("/login", d.Users.Login)
		}

		users := v1.Group("/users", requireAuth)
		{
			users.GET("/me", d.Users.GetMyProfile)
			users.PUT("/me", d.Users.UpdateMyProfile)
		}

		tailors := v1.Group("/tailors", requireAuth, adminOnly)
		{
			tailors.GET("", d.Users.ListTailors)
			tailors.POST("", d.Users.CreateTailor)
			tailors.GET("/:id", d.Users.GetTailor)
			tailors.PUT("/:id", d.Users.UpdateTailor)
			tailors.DELETE("/:id", d.Users.DeleteTailor)
		}

		admin := v1.Group("/admin", requireAuth, adminOnly)
		{
			admin.GET("/dashboard", d.Admin.GetDashboardStats)
			admin.GET("/users", d.Admin.ListUsers)
		}

		catalog := v1.Group("/services")
		{
			catalog.GET("", d.Catalog.ListServices)
			catalog.GET("/:id", d.Catalog.GetService)
			catalog.POST("", requireAuth, adminOnly, d.Catalog.CreateService)
			catalog.PUT("/:id", requireAuth, adminOnly, d.Catalog.UpdateService)
			catalog.DELETE("/:id", requireAuth, adminOnly, d.Catalog.DeleteService)
			catalog.POST("/:id/image", requireAuth, adminOnly, d.Catalog.UploadServiceImage)
		}

		orders := v1.Group("/orders")
		{
			orders.POST("", optionalAuth, d.Orders.CreateOrder)
			orders.GET("", requireAuth, d.Orders.ListOrders)
			orders.GET("/:id", requireAuth, d.Orders.GetOrder)
			orders.PUT("/:id/assign", requireAuth, adminOnly, d.Orders.AssignTailor)
			orders.PUT("/:id/status", requireAuth, d.Orders.UpdateOrderStatus)
			orders.DELETE("/:id", requireAuth, adminOnly, d.Orders.DeleteOrder)
			orders.POST("/:id/payment-request", requireAuth, adminOnly, d.Orders.SendPaymentRequest)
			orders.POST("/:id/checkout", optionalAuth, d.Payments.CreateCheckout)
			orders.GET("/:id/payment-status", requireAuth, d.Payments.GetOrderPaymentStatus)
			orders.GET("/:id/payments", requireAuth, d.Payments.ListOrderPayments)
		}

		payments := v1.Group("/payments")
		{
			payments.POST("/verify", d.Payments.VerifyPayment)
			payments.POST("/webhook", d.Payments.HandleWebhook)
			payments.GET("", requireAuth, adminOnly, d.Payments.ListPayments)
		}
	}

	return router
}
