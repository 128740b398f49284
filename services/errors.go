package services

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// ErrorKind classifies service failures so the HTTP layer can map them to status codes
type ErrorKind string

const (
	KindInvalidInput ErrorKind = "INVALID_INPUT"
	KindNotFound     ErrorKind = "NOT_FOUND"
	KindConflict     ErrorKind = "CONFLICT"
	KindForbidden    ErrorKind = "FORBIDDEN"
	KindUnavailable  ErrorKind = "UNAVAILABLE"
)

// ServiceError is a classified business error returned by service operations
type ServiceError struct {
	Kind    ErrorKind
	Code    string
	Message string
	Err     error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// InvalidInput returns a KindInvalidInput error
func InvalidInput(code, message string) *ServiceError {
	return &ServiceError{Kind: KindInvalidInput, Code: code, Message: message}
}

// NotFound returns a KindNotFound error
func NotFound(code, message string) *ServiceError {
	return &ServiceError{Kind: KindNotFound, Code: code, Message: message}
}

// Conflict returns a KindConflict error
func Conflict(code, message string) *ServiceError {
	return &ServiceError{Kind: KindConflict, Code: code, Message: message}
}

// Forbidden returns a KindForbidden error
func Forbidden(code, message string) *ServiceError {
	return &ServiceError{Kind: KindForbidden, Code: code, Message: message}
}

// Unavailable returns a KindUnavailable error wrapping the upstream failure
func Unavailable(code, message string, err error) *ServiceError {
	return &ServiceError{Kind: KindUnavailable, Code: code, Message: message, Err: err}
}

// KindOf returns the kind of a ServiceError in err's chain, or "" for unclassified errors
func KindOf(err error) ErrorKind {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr.Kind
	}
	return ""
}

// IsKind reports whether err is a ServiceError of the given kind
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}

var (
	errOrderNotFound   = NotFound("ORDER_NOT_FOUND", "Order not found")
	errServiceNotFound = NotFound("SERVICE_NOT_FOUND", "Service not found")
	errUserNotFound    = NotFound("USER_NOT_FOUND", "User not found")
	errTailorNotFound  = NotFound("TAILOR_NOT_FOUND", "Tailor not found")
	errStaleOrder      = Conflict("ORDER_MODIFIED", "Order was modified concurrently, please retry")
)

// isUniqueViolation reports whether err is a unique constraint failure from any supported driver
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate")
}
