package admin

import (
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/lifeblood-api/internal/handler"
	"github.com/jwalitptl/lifeblood-api/internal/model"
	"github.com/jwalitptl/lifeblood-api/internal/service/admin"
	apperrors "github.com/jwalitptl/lifeblood-api/pkg/errors"
	"github.com/jwalitptl/lifeblood-api/pkg/httputil"
)

type Handler struct {
	service *admin.Service
}

func NewHandler(service *admin.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	a := r.Group("/admin")
	{
		a.GET("/hospitals", h.ListHospitals)
		a.PUT("/hospitals/:id/verification", h.SetVerification)
		a.GET("/users", h.ListUsers)
		a.DELETE("/users/:id", h.RemoveUser)
		a.PUT("/users/:id/eligibility", h.SetEligibility)
		a.GET("/notifications", h.Notifications)
		a.POST("/notifications/clear", h.ClearNotifications)
	}
}

// ListHospitals accepts ?verified=pending|accepted|denied.
func (h *Handler) ListHospitals(c *gin.Context) {
	session, ok := handler.Session(c)
	if !ok {
		return
	}
	status := model.VerificationStatus(c.Query("verified"))
	if status != "" && !status.Valid() {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid verified filter", nil))
		return
	}

	items, err := h.service.ListHospitals(c.Request.Context(), session, status)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithList(c, items, len(items))
}

func (h *Handler) SetVerification(c *gin.Context) {
	session, ok := handler.Session(c)
	if !ok {
		return
	}
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}
	var req model.SetVerificationRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	record, err := h.service.SetVerification(c.Request.Context(), session, id, req.Verified)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, record)
}

// ListUsers accepts ?role=donor|hospital|admin.
func (h *Handler) ListUsers(c *gin.Context) {
	session, ok := handler.Session(c)
	if !ok {
		return
	}
	role := model.Role(c.Query("role"))
	if role != "" && !role.Valid() {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid role filter", nil))
		return
	}

	items, err := h.service.ListUsers(c.Request.Context(), session, role)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithList(c, items, len(items))
}

func (h *Handler) RemoveUser(c *gin.Context) {
	session, ok := handler.Session(c)
	if !ok {
		return
	}
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}

	if err := h.service.RemoveUser(c.Request.Context(), session, id); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, gin.H{"id": id, "removed": true})
}

func (h *Handler) SetEligibility(c *gin.Context) {
	session, ok := handler.Session(c)
	if !ok {
		return
	}
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}
	var req model.SetEligibilityRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	u, err := h.service.SetEligibility(c.Request.Context(), session, id, req.Eligible)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, u)
}

func (h *Handler) Notifications(c *gin.Context) {
	session, ok := handler.Session(c)
	if !ok {
		return
	}

	items, err := h.service.Notifications(c.Request.Context(), session)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithList(c, items, len(items))
}

func (h *Handler) ClearNotifications(c *gin.Context) {
	session, ok := handler.Session(c)
	if !ok {
		return
	}

	if err := h.service.ClearNotifications(c.Request.Context(), session); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, gin.H{"cleared": true})
}
