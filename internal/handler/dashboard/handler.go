package dashboard

import (
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/lifeblood-api/internal/handler"
	"github.com/jwalitptl/lifeblood-api/internal/service/dashboard"
	"github.com/jwalitptl/lifeblood-api/pkg/httputil"
)

type Handler struct {
	service *dashboard.Service
}

func NewHandler(service *dashboard.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/dashboard", h.Get)
}

// Get returns the caller's dashboard. A stale copy is served with 200 and
// "stale": true while the store is unavailable.
func (h *Handler) Get(c *gin.Context) {
	session, ok := handler.Session(c)
	if !ok {
		return
	}

	d, err := h.service.Get(c.Request.Context(), session)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	if d.Stale {
		c.Header("Warning", `110 - "stale dashboard"`)
	}
	httputil.RespondWithSuccess(c, d)
}
