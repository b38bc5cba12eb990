package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/jwalitptl/lifeblood-api/pkg/errors"
	"github.com/jwalitptl/lifeblood-api/pkg/httputil"
)

// DefaultMaxBodySize bounds JSON request bodies. Offers and sign-ups are small.
const DefaultMaxBodySize int64 = 1 << 20

// SizeLimit rejects requests whose declared body exceeds max and caps the
// reader for requests that do not declare one.
func SizeLimit(max int64) gin.HandlerFunc {
	if max <= 0 {
		max = DefaultMaxBodySize
	}
	return func(c *gin.Context) {
		if c.Request.ContentLength > max {
			httputil.RespondWithError(c, &apperrors.AppError{
				Code:    apperrors.ErrBadRequest,
				Message: fmt.Sprintf("request body exceeds %d bytes", max),
			})
			return
		}
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, max)
		}
		c.Next()
	}
}
