package middleware

import (
	"context"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/lifeblood-api/internal/model"
	apperrors "github.com/jwalitptl/lifeblood-api/pkg/errors"
	"github.com/jwalitptl/lifeblood-api/pkg/httputil"
)

const (
	contextSession     = "session"
	contextAccessToken = "access_token"

	// queryAccessToken lets browser websocket clients, which cannot set
	// headers, authenticate.
	queryAccessToken = "access_token"
)

var (
	errMissingToken  = errors.New("missing authorization header")
	errInvalidFormat = errors.New("invalid authorization format")
)

// Authenticator resolves a bearer token into a session.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (model.Session, error)
}

// GateChecker decides whether a hospital session may use its dashboard.
type GateChecker interface {
	Check(ctx context.Context, session model.Session) error
}

type AuthMiddleware struct {
	authService Authenticator
	gate        GateChecker
}

func NewAuthMiddleware(authService Authenticator, gate GateChecker) *AuthMiddleware {
	return &AuthMiddleware{
		authService: authService,
		gate:        gate,
	}
}

// Authenticate verifies the token and stores the caller's session in the
// context.
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := bearerToken(c)
		if err != nil {
			httputil.RespondWithError(c, apperrors.Unauthorized(err))
			return
		}

		session, err := m.authService.Authenticate(c.Request.Context(), token)
		if err != nil {
			httputil.RespondWithError(c, err)
			return
		}

		c.Set(contextSession, session)
		c.Set(contextAccessToken, token)
		c.Next()
	}
}

// RequireRole rejects sessions whose role is not listed.
func (m *AuthMiddleware) RequireRole(roles ...model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, ok := GetSession(c)
		if !ok {
			httputil.RespondWithError(c, apperrors.Unauthorized(errMissingToken))
			return
		}
		for _, r := range roles {
			if session.Role == r {
				c.Next()
				return
			}
		}
		httputil.RespondWithError(c, apperrors.Forbidden("insufficient role"))
	}
}

// RequireVerifiedHospital applies the verification gate. Non-hospital roles
// pass through.
func (m *AuthMiddleware) RequireVerifiedHospital() gin.HandlerFunc {
	return func(c *gin.Context) {
		session, ok := GetSession(c)
		if !ok {
			httputil.RespondWithError(c, apperrors.Unauthorized(errMissingToken))
			return
		}
		if err := m.gate.Check(c.Request.Context(), session); err != nil {
			httputil.RespondWithError(c, err)
			return
		}
		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, error) {
	header := c.GetHeader("Authorization")
	if header == "" {
		if token := c.Query(queryAccessToken); token != "" {
			return token, nil
		}
		return "", errMissingToken
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", errInvalidFormat
	}
	return strings.TrimSpace(parts[1]), nil
}

// GetSession returns the session stored by Authenticate.
func GetSession(c *gin.Context) (model.Session, bool) {
	v, exists := c.Get(contextSession)
	if !exists {
		return model.Session{}, false
	}
	session, ok := v.(model.Session)
	return session, ok && !session.IsZero()
}

// GetAccessToken returns the raw token the request authenticated with.
func GetAccessToken(c *gin.Context) string {
	return c.GetString(contextAccessToken)
}
