package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/placafipe/models"
)

// respondError writes the error body for an already classified error.
// Handlers never inspect raw errors; anything unclassified is reported as
// FATAL_FAILURE.
func respondError(c *gin.Context, err error, timeoutStatus int) {
	var lerr *models.LookupError
	if !errors.As(err, &lerr) {
		lerr = models.NewLookupError(models.KindOf(err), "internal error", err)
	}
	c.JSON(statusFor(lerr.Kind, timeoutStatus), lerr.ToDetail())
}

// statusFor translates failure kinds to HTTP status codes.
func statusFor(kind models.Kind, timeoutStatus int) int {
	switch kind {
	case models.KindNotFound:
		return http.StatusNotFound // 404
	case models.KindTimeout:
		if timeoutStatus == http.StatusInternalServerError {
			return http.StatusInternalServerError
		}
		return http.StatusGatewayTimeout // 504
	case models.KindInvalidInput:
		return http.StatusBadRequest // 400
	case models.KindRateLimited:
		return http.StatusTooManyRequests // 429
	case models.KindUnauthorized:
		return http.StatusUnauthorized // 401
	default:
		return http.StatusInternalServerError // 500
	}
}
