package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/jwalitptl/lifeblood-api/pkg/errors"
	"github.com/jwalitptl/lifeblood-api/pkg/httputil"
	"github.com/jwalitptl/lifeblood-api/pkg/logger"
)

// ErrorHandler logs errors attached to the context. Server-side failures are
// logged with their full chain; the client only sees the rendered AppError.
// If a handler attached an error without writing a response, the last error
// is rendered here.
func ErrorHandler(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		for _, e := range c.Errors {
			status := http.StatusInternalServerError
			if appErr, ok := apperrors.As(e.Err); ok {
				status = appErr.StatusCode()
			}
			if status < http.StatusInternalServerError {
				continue
			}
			log.ZL.Error().
				Err(e.Err).
				Str("request_id", GetRequestID(c)).
				Str("method", c.Request.Method).
				Str("path", c.Request.URL.Path).
				Int("status", status).
				Msg("request failed")
		}

		if !c.Writer.Written() {
			httputil.RespondWithError(c, c.Errors.Last().Err)
		}
	}
}
