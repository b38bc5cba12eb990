package auth

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/lifeblood-api/internal/handler"
	"github.com/jwalitptl/lifeblood-api/internal/middleware"
	"github.com/jwalitptl/lifeblood-api/internal/model"
	"github.com/jwalitptl/lifeblood-api/internal/service/auth"
	"github.com/jwalitptl/lifeblood-api/pkg/httputil"
)

// GateResolver reports the verification gate decision for a session.
type GateResolver interface {
	Resolve(ctx context.Context, session model.Session) (*model.GateResult, error)
}

type Handler struct {
	svc  *auth.Service
	gate GateResolver
}

func NewHandler(svc *auth.Service, gate GateResolver) *Handler {
	return &Handler{svc: svc, gate: gate}
}

// RegisterPublicRoutes mounts the routes that do not need a token.
func (h *Handler) RegisterPublicRoutes(r *gin.RouterGroup) {
	a := r.Group("/auth")
	{
		a.POST("/signup", h.SignUp)
		a.POST("/signin", h.SignIn)
	}
}

// RegisterRoutes mounts the routes that run behind Authenticate.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	a := r.Group("/auth")
	{
		a.POST("/signout", h.SignOut)
		a.GET("/me", h.Me)
		a.GET("/gate", h.Gate)
	}
}

func (h *Handler) SignUp(c *gin.Context) {
	var req model.SignUpRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	tokens, err := h.svc.SignUp(c.Request.Context(), &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithCreated(c, tokens)
}

func (h *Handler) SignIn(c *gin.Context) {
	var req model.SignInRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	tokens, err := h.svc.SignIn(c.Request.Context(), &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, tokens)
}

func (h *Handler) SignOut(c *gin.Context) {
	if err := h.svc.SignOut(c.Request.Context(), middleware.GetAccessToken(c)); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, gin.H{"signedOut": true})
}

func (h *Handler) Me(c *gin.Context) {
	session, ok := handler.Session(c)
	if !ok {
		return
	}

	user, err := h.svc.CurrentUser(c.Request.Context(), session)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, user)
}

// Gate tells a hospital client which screen to show: its dashboard, the
// waiting screen or the denied screen.
func (h *Handler) Gate(c *gin.Context) {
	session, ok := handler.Session(c)
	if !ok {
		return
	}

	res, err := h.gate.Resolve(c.Request.Context(), session)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, res)
}
