package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/irfndi/celebrum-arb-go/internal/utils"
)

// statusFor maps pipeline errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case utils.IsValidationError(err):
		return http.StatusBadRequest
	case errors.Is(err, utils.ErrNoRouteFound), errors.Is(err, utils.ErrNoOpportunity):
		return http.StatusNotFound
	case errors.Is(err, utils.ErrNoVenuesConfigured):
		return http.StatusServiceUnavailable
	case errors.Is(err, utils.ErrDataUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	_ = c.Error(err)
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, message string) {
	writeError(c, utils.NewValidationError(message))
}
