package notification

import (
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/lifeblood-api/internal/handler"
	"github.com/jwalitptl/lifeblood-api/internal/service/notification"
	"github.com/jwalitptl/lifeblood-api/pkg/httputil"
)

const defaultListLimit = 50

type Handler struct {
	service *notification.Service
}

func NewHandler(service *notification.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	n := r.Group("/notifications")
	{
		n.GET("", h.List)
		n.GET("/unread-count", h.UnreadCount)
		n.POST("/:id/read", h.MarkRead)
		n.POST("/read-all", h.MarkAllRead)
	}
}

func (h *Handler) List(c *gin.Context) {
	session, ok := handler.Session(c)
	if !ok {
		return
	}
	unread, ok := handler.QueryBool(c, "unread")
	if !ok {
		return
	}
	limit, ok := handler.QueryInt(c, "limit", defaultListLimit)
	if !ok {
		return
	}

	items, err := h.service.List(c.Request.Context(), session, unread, limit)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithList(c, items, len(items))
}

func (h *Handler) UnreadCount(c *gin.Context) {
	session, ok := handler.Session(c)
	if !ok {
		return
	}

	n, err := h.service.UnreadCount(c.Request.Context(), session)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, gin.H{"unread": n})
}

func (h *Handler) MarkRead(c *gin.Context) {
	session, ok := handler.Session(c)
	if !ok {
		return
	}
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}

	if err := h.service.MarkRead(c.Request.Context(), session, id); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, gin.H{"id": id, "read": true})
}

func (h *Handler) MarkAllRead(c *gin.Context) {
	session, ok := handler.Session(c)
	if !ok {
		return
	}

	n, err := h.service.MarkAllRead(c.Request.Context(), session)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, gin.H{"marked": n})
}
