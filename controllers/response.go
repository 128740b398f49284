package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/stitchwell/tailoring-api/middleware"
	"github.com/stitchwell/tailoring-api/services"
	"github.com/stitchwell/tailoring-api/utils"
)

func respondSuccess(c *gin.Context, status int, data interface{}) {
	c.JSON(status, gin.H{
		"success": true,
		"data":    data,
	})
}

func respondFailure(c *gin.Context, status int, code, kind, message string, err error) {
	body := gin.H{
		"code":    code,
		"kind":    kind,
		"message": message,
	}
	// raw errors only leave the process in development
	if err != nil && gin.IsDebugging() {
		body["details"] = err.Error()
	}
	c.AbortWithStatusJSON(status, gin.H{
		"success": false,
		"error":   body,
	})
}

// statusForKind maps service error kinds to HTTP status codes
func statusForKind(kind services.ErrorKind) int {
	switch kind {
	case services.KindInvalidInput:
		return http.StatusBadRequest
	case services.KindNotFound:
		return http.StatusNotFound
	case services.KindConflict:
		return http.StatusConflict
	case services.KindForbidden:
		return http.StatusForbidden
	case services.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func asServiceError(err error) (*services.ServiceError, bool) {
	var svcErr *services.ServiceError
	ok := errors.As(err, &svcErr)
	return svcErr, ok
}

// respondError writes the envelope for err; unclassified errors become a generic 500
func respondError(c *gin.Context, err error) {
	if svcErr, ok := asServiceError(err); ok {
		respondFailure(c, statusForKind(svcErr.Kind), svcErr.Code, string(svcErr.Kind), svcErr.Message, svcErr.Err)
		return
	}

	var uploadErr *utils.FileUploadError
	if errors.As(err, &uploadErr) {
		respondFailure(c, http.StatusBadRequest, uploadErr.Code, string(services.KindInvalidInput), uploadErr.Message, nil)
		return
	}

	_ = c.Error(err)
	respondFailure(c, http.StatusInternalServerError, "INTERNAL_ERROR", "INTERNAL", "An unexpected error occurred", err)
}

func respondValidationError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
		"success": false,
		"error": gin.H{
			"code":    "VALIDATION_ERROR",
			"kind":    string(services.KindInvalidInput),
			"message": "Invalid request data",
			"details": err.Error(),
		},
	})
}

func respondUnauthorized(c *gin.Context) {
	respondFailure(c, http.StatusUnauthorized, "UNAUTHORIZED", "UNAUTHENTICATED", "Could not extract user information", nil)
}

// parseID reads a positive integer path parameter
func parseID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		respondFailure(c, http.StatusBadRequest, "INVALID_ID", string(services.KindInvalidInput), "Invalid "+name, nil)
		return 0, false
	}
	return uint(id), true
}

// actorFrom builds the caller from the auth context; unauthenticated callers are guests
func actorFrom(c *gin.Context) services.Actor {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return services.Actor{}
	}
	role, _ := middleware.GetRole(c)
	return services.Actor{UserID: userID, Role: role}
}

// requireActor is actorFrom for routes behind EnsureValidToken
func requireActor(c *gin.Context) (services.Actor, bool) {
	actor := actorFrom(c)
	if actor.IsGuest() {
		respondUnauthorized(c)
		return actor, false
	}
	return actor, true
}
