package httputil

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/lifeblood-api/pkg/errors"
)

// Response wraps all API responses
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *Error      `json:"error,omitempty"`
}

// Error represents API error
type Error struct {
	Code    int               `json:"code"`
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// ListResponse wraps collection results
type ListResponse struct {
	Items interface{} `json:"items"`
	Count int         `json:"count"`
}

// RespondWithSuccess sends a success response
func RespondWithSuccess(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    data,
	})
}

// RespondWithCreated sends a 201 response
func RespondWithCreated(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{
		Success: true,
		Data:    data,
	})
}

// RespondWithList sends a success response for a list of items
func RespondWithList(c *gin.Context, items interface{}, count int) {
	RespondWithSuccess(c, ListResponse{Items: items, Count: count})
}

// RespondWithError sends an error response
func RespondWithError(c *gin.Context, err error) {
	statusCode := http.StatusInternalServerError
	body := &Error{
		Code:    statusCode,
		Type:    errors.ErrInternal.String(),
		Message: "Internal server error",
	}

	if appErr, ok := errors.As(err); ok {
		statusCode = appErr.StatusCode()
		body = &Error{
			Code:    statusCode,
			Type:    appErr.Code.String(),
			Message: appErr.Message,
			Fields:  appErr.Fields,
		}
		// internal details stay in the logs
		if statusCode == http.StatusInternalServerError {
			body.Message = "Internal server error"
		}
	}

	if !c.IsAborted() {
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(statusCode, Response{
		Success: false,
		Error:   body,
	})
}
