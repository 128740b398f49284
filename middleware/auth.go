package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/auth0/go-jwt-middleware/v2"
	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/gin-gonic/gin"
	"github.com/stitchwell/tailoring-api/config"
	"github.com/stitchwell/tailoring-api/models"
	"go.uber.org/zap"
)

// Context keys set by the auth middleware
const (
	ContextUserID = "user_id"
	ContextRole   = "role"
	ContextClaims = "validated_claims"
)

// CustomClaims contains the private claims we issue.
type CustomClaims struct {
	Role string `json:"role"`
}

// Validate rejects tokens carrying an unknown role.
func (c CustomClaims) Validate(ctx context.Context) error {
	if !models.IsValidRole(c.Role) {
		return fmt.Errorf("unknown role %q", c.Role)
	}
	return nil
}

// NewTokenValidator builds an HS256 validator for tokens issued by this API.
func NewTokenValidator(cfg *config.Config) (*validator.Validator, error) {
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	secret := []byte(cfg.JWTSecret)

	return validator.New(
		func(context.Context) (interface{}, error) { return secret, nil },
		validator.HS256,
		cfg.JWTIssuer,
		[]string{cfg.JWTAudience},
		validator.WithCustomClaims(
			func() validator.CustomClaims {
				return &CustomClaims{}
			},
		),
		validator.WithAllowedClockSkew(time.Minute),
	)
}

// EnsureValidToken is a middleware that requires a valid bearer token.
func EnsureValidToken(v *validator.Validator, logger *zap.Logger) gin.HandlerFunc {
	return checkJWT(v, logger, false)
}

// OptionalAuth validates a bearer token when one is sent and lets anonymous requests through.
// A token that is present but invalid is still rejected.
func OptionalAuth(v *validator.Validator, logger *zap.Logger) gin.HandlerFunc {
	return checkJWT(v, logger, true)
}

func checkJWT(v *validator.Validator, logger *zap.Logger, optional bool) gin.HandlerFunc {
	errorHandler := func(w http.ResponseWriter, r *http.Request, err error) {
		code, message := "INVALID_TOKEN", "Failed to validate JWT."
		if errors.Is(err, jwtmiddleware.ErrJWTMissing) {
			code, message = "MISSING_TOKEN", "Authorization token is required"
		}
		logger.Debug("rejected bearer token", zap.String("path", r.URL.Path), zap.Error(err))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		body := fmt.Sprintf(`{"success":false,"error":{"code":%q,"kind":"UNAUTHENTICATED","message":%q}}`, code, message)
		if _, writeErr := w.Write([]byte(body)); writeErr != nil {
			logger.Warn("failed to write auth error response", zap.Error(writeErr))
		}
	}

	middleware := jwtmiddleware.New(
		v.ValidateToken,
		jwtmiddleware.WithErrorHandler(errorHandler),
		jwtmiddleware.WithCredentialsOptional(optional),
	)

	return func(c *gin.Context) {
		passed := false
		var handler http.HandlerFunc = func(w http.ResponseWriter, r *http.Request) {
			passed = true
			c.Request = r

			token, ok := r.Context().Value(jwtmiddleware.ContextKey{}).(*validator.ValidatedClaims)
			if !ok {
				// anonymous request on an optional route
				return
			}

			userID, err := strconv.ParseUint(token.RegisteredClaims.Subject, 10, 64)
			if err != nil || userID == 0 {
				abortUnauthorized(c, "INVALID_TOKEN", "Token subject is not a valid user")
				return
			}
			c.Set(ContextUserID, uint(userID))
			if custom, ok := token.CustomClaims.(*CustomClaims); ok {
				c.Set(ContextRole, custom.Role)
			}
			c.Set(ContextClaims, token)
		}

		middleware.CheckJWT(handler).ServeHTTP(c.Writer, c.Request)
		if !passed {
			c.Abort()
			return
		}
		if !c.IsAborted() {
			c.Next()
		}
	}
}

// GetUserID extracts the authenticated user ID from the Gin context
func GetUserID(c *gin.Context) (uint, error) {
	userID, exists := c.Get(ContextUserID)
	if !exists {
		return 0, &AuthError{Code: "MISSING_USER_ID", Message: "User ID not found in context"}
	}

	id, ok := userID.(uint)
	if !ok {
		return 0, &AuthError{Code: "INVALID_USER_ID", Message: "User ID is not a valid identifier"}
	}

	return id, nil
}

// GetRole extracts the authenticated user's role from the Gin context
func GetRole(c *gin.Context) (string, error) {
	role, exists := c.Get(ContextRole)
	if !exists {
		return "", &AuthError{Code: "MISSING_ROLE", Message: "Role not found in context"}
	}

	roleStr, ok := role.(string)
	if !ok {
		return "", &AuthError{Code: "INVALID_ROLE", Message: "Role is not a string"}
	}

	return roleStr, nil
}

// IsAuthenticated reports whether the request carried a valid token
func IsAuthenticated(c *gin.Context) bool {
	_, err := GetUserID(c)
	return err == nil
}

// RequireRole is a middleware that only lets the given roles through
func RequireRole(roles ...string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}

	return func(c *gin.Context) {
		role, err := GetRole(c)
		if err != nil {
			abortUnauthorized(c, "MISSING_CLAIMS", "Could not retrieve token claims")
			return
		}

		if _, ok := allowed[role]; !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "INSUFFICIENT_ROLE",
					"kind":    "FORBIDDEN",
					"message": "Insufficient permissions to access this resource",
				},
			})
			return
		}

		c.Next()
	}
}

func abortUnauthorized(c *gin.Context, code, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"kind":    "UNAUTHENTICATED",
			"message": message,
		},
	})
}

// AuthError represents an authentication error
type AuthError struct {
	Code    string
	Message string
}

func (e *AuthError) Error() string {
	return e.Message
}
