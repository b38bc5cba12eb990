// Package handler holds helpers shared by the HTTP handlers in its
// subpackages.
package handler

import (
	"errors"
	"io"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/lifeblood-api/internal/middleware"
	"github.com/jwalitptl/lifeblood-api/internal/model"
	apperrors "github.com/jwalitptl/lifeblood-api/pkg/errors"
	"github.com/jwalitptl/lifeblood-api/pkg/httputil"
)

// BindJSON decodes the request body into dst. On failure it writes a 400
// and returns false.
func BindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		if errors.Is(err, io.EOF) {
			httputil.RespondWithError(c, apperrors.BadRequest("request body is required", err))
			return false
		}
		httputil.RespondWithError(c, apperrors.BadRequest("invalid request body", err))
		return false
	}
	return true
}

// ParseID reads a uuid path parameter. On failure it writes a 400 and
// returns false.
func ParseID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid "+name, err))
		return uuid.Nil, false
	}
	return id, true
}

// Session returns the authenticated caller. Routes using it sit behind the
// Authenticate middleware; a missing session is answered with 401.
func Session(c *gin.Context) (model.Session, bool) {
	session, ok := middleware.GetSession(c)
	if !ok {
		httputil.RespondWithError(c, apperrors.Unauthorized(nil))
		return model.Session{}, false
	}
	return session, true
}

// QueryInt parses an optional non-negative integer query parameter.
func QueryInt(c *gin.Context, name string, def int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid "+name, err))
		return 0, false
	}
	return v, true
}

// QueryBool parses an optional boolean query parameter.
func QueryBool(c *gin.Context, name string) (bool, bool) {
	raw := c.Query(name)
	if raw == "" {
		return false, true
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid "+name, err))
		return false, false
	}
	return v, true
}
