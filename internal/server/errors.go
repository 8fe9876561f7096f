package server

import (
	"errors"
	"net/http"

	auditdomain "github.com/fourpaws/billing/internal/audit/domain"
	billingdomain "github.com/fourpaws/billing/internal/billing/domain"
	subscriptiondomain "github.com/fourpaws/billing/internal/subscription/domain"
	userdomain "github.com/fourpaws/billing/internal/user/domain"
	"github.com/gin-gonic/gin"
)

// APIError carries the HTTP status and wire shape for a request failure.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func (e *APIError) Error() string { return e.Code }

var (
	ErrNotFound = &APIError{
		Status:  http.StatusNotFound,
		Code:    "not_found",
		Message: "resource not found",
	}
	ErrUnauthorized = &APIError{
		Status:  http.StatusUnauthorized,
		Code:    "unauthorized",
		Message: "authentication required",
	}
	ErrTooManyRequests = &APIError{
		Status:  http.StatusTooManyRequests,
		Code:    "rate_limited",
		Message: "too many requests",
	}
)

func invalidRequestError() *APIError {
	return &APIError{
		Status:  http.StatusBadRequest,
		Code:    "invalid_request",
		Message: "invalid request body",
	}
}

func newValidationError(field, code, message string) *APIError {
	return &APIError{
		Status:  http.StatusBadRequest,
		Code:    code,
		Field:   field,
		Message: message,
	}
}

// AbortWithError maps an error to its HTTP response and stops the chain.
func AbortWithError(c *gin.Context, err error) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		c.AbortWithStatusJSON(apiErr.Status, gin.H{"error": apiErr})
		return
	}

	switch {
	case errors.Is(err, billingdomain.ErrUserNotFound),
		errors.Is(err, userdomain.ErrUserNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": &APIError{
			Code:    "user_not_found",
			Message: "user not found",
		}})
	case isBillingValidationError(err), isSubscriptionValidationError(err), isAuditValidationError(err):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": &APIError{
			Code:    err.Error(),
			Message: "request validation failed",
		}})
	default:
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": &APIError{
			Code:    "internal_error",
			Message: "internal server error",
		}})
	}
}

func isBillingValidationError(err error) bool {
	switch {
	case errors.Is(err, billingdomain.ErrInvalidEvent),
		errors.Is(err, billingdomain.ErrInvalidPayload),
		errors.Is(err, billingdomain.ErrUnknownUser),
		errors.Is(err, billingdomain.ErrPremiumNotConfigured):
		return true
	default:
		return false
	}
}

func isSubscriptionValidationError(err error) bool {
	switch {
	case errors.Is(err, subscriptiondomain.ErrInvalidUser),
		errors.Is(err, subscriptiondomain.ErrInvalidTier):
		return true
	default:
		return false
	}
}

func isAuditValidationError(err error) bool {
	switch {
	case errors.Is(err, auditdomain.ErrMissingEventType),
		errors.Is(err, auditdomain.ErrMissingEntityType):
		return true
	default:
		return false
	}
}
