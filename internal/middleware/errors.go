package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"drivingschool-api/internal/apperrors"
)

const detailKey = "errors.detail"

// ErrorDetail controls whether RespondError adds the raw error text to the
// response body. Only enable it in development.
func ErrorDetail(enabled bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(detailKey, enabled)
		c.Next()
	}
}

var fallbackMessages = map[int]string{
	http.StatusBadRequest:          "Invalid request",
	http.StatusUnauthorized:        "Not authenticated",
	http.StatusNotFound:            "Not found",
	http.StatusTooManyRequests:     "Too many requests, please try again later",
	http.StatusServiceUnavailable:  "Service temporarily unavailable",
	http.StatusInternalServerError: "Internal server error",
}

// RespondError aborts the request with the JSON error envelope for err.
func RespondError(c *gin.Context, err error) {
	status := apperrors.HTTPStatus(err)
	msg := apperrors.Message(err, fallbackMessages[status])

	if !apperrors.Classified(err) {
		zerolog.Ctx(c.Request.Context()).Error().Err(err).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Msg("request failed")
	}

	body := gin.H{"success": false, "message": msg}
	if c.GetBool(detailKey) {
		body["error"] = err.Error()
	}
	c.AbortWithStatusJSON(status, body)
}
