package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/credential-payments/internal/models"
	"github.com/akylbek/payment-system/credential-payments/internal/telemetry"
)

// statusFor maps the service error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrInvalidState),
		errors.Is(err, models.ErrExpired),
		errors.Is(err, models.ErrConcurrentUpdate):
		return http.StatusConflict
	case errors.Is(err, models.ErrWrongPIN),
		errors.Is(err, models.ErrAccountNotFound),
		errors.Is(err, models.ErrInvalidCredential):
		return http.StatusUnauthorized
	case errors.Is(err, models.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(err, models.ErrVerifierUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, models.ErrVerifierRejected):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err with its mapped status. Fields in body are kept so
// callers can return the request and attempt alongside the failure.
func respondError(c *gin.Context, err error, body gin.H) {
	status := statusFor(err)
	if body == nil {
		body = gin.H{}
	}
	if status == http.StatusInternalServerError {
		telemetry.Logger.Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		body["error"] = "internal error"
	} else {
		body["error"] = err.Error()
	}
	c.JSON(status, body)
}
