package booking

import (
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/lifeblood-api/internal/handler"
	"github.com/jwalitptl/lifeblood-api/internal/model"
	"github.com/jwalitptl/lifeblood-api/internal/service/booking"
	apperrors "github.com/jwalitptl/lifeblood-api/pkg/errors"
	"github.com/jwalitptl/lifeblood-api/pkg/httputil"
)

type Handler struct {
	service *booking.Service
}

func NewHandler(service *booking.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	bookings := r.Group("/bookings")
	{
		bookings.GET("", h.List)
		bookings.GET("/:id", h.Get)
	}
}

func (h *Handler) List(c *gin.Context) {
	session, ok := handler.Session(c)
	if !ok {
		return
	}

	status := model.BookingStatus(c.Query("status"))
	switch status {
	case "", model.BookingStatusBooked, model.BookingStatusFulfilled:
	default:
		httputil.RespondWithError(c, apperrors.BadRequest("invalid status", nil))
		return
	}

	items, err := h.service.List(c.Request.Context(), session, status)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithList(c, items, len(items))
}

func (h *Handler) Get(c *gin.Context) {
	session, ok := handler.Session(c)
	if !ok {
		return
	}
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}

	b, err := h.service.Get(c.Request.Context(), session, id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, b)
}
