package user

import (
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/lifeblood-api/internal/handler"
	"github.com/jwalitptl/lifeblood-api/internal/model"
	"github.com/jwalitptl/lifeblood-api/internal/service/user"
	"github.com/jwalitptl/lifeblood-api/pkg/httputil"
)

type Handler struct {
	service *user.Service
}

func NewHandler(service *user.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	me := r.Group("/users/me")
	{
		me.GET("", h.GetMe)
		me.PATCH("/profile", h.UpdateProfile)
		me.PATCH("/preferences", h.UpdatePreferences)
	}
}

func (h *Handler) GetMe(c *gin.Context) {
	session, ok := handler.Session(c)
	if !ok {
		return
	}

	u, err := h.service.GetUser(c.Request.Context(), session)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, u)
}

func (h *Handler) UpdateProfile(c *gin.Context) {
	session, ok := handler.Session(c)
	if !ok {
		return
	}
	var req model.UserProfile
	if !handler.BindJSON(c, &req) {
		return
	}

	u, err := h.service.UpdateProfile(c.Request.Context(), session, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, u)
}

func (h *Handler) UpdatePreferences(c *gin.Context) {
	session, ok := handler.Session(c)
	if !ok {
		return
	}
	var req model.UpdatePreferencesRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	u, err := h.service.UpdatePreferences(c.Request.Context(), session, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, u)
}
