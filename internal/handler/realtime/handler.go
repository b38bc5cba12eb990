package realtime

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/lifeblood-api/internal/handler"
	"github.com/jwalitptl/lifeblood-api/internal/model"
	"github.com/jwalitptl/lifeblood-api/internal/realtime"
	"github.com/jwalitptl/lifeblood-api/internal/service/notification"
	"github.com/jwalitptl/lifeblood-api/internal/service/offer"
	apperrors "github.com/jwalitptl/lifeblood-api/pkg/errors"
	"github.com/jwalitptl/lifeblood-api/pkg/httputil"
)

const snapshotLimit = 50

// Handler streams live views over websockets. Each connection holds its own
// subscription; reconnecting starts a fresh one.
type Handler struct {
	streamer      *realtime.Streamer
	notifications *notification.Service
	offers        *offer.Service
}

func NewHandler(streamer *realtime.Streamer, notifications *notification.Service, offers *offer.Service) *Handler {
	return &Handler{
		streamer:      streamer,
		notifications: notifications,
		offers:        offers,
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	ws := r.Group("/ws")
	{
		ws.GET("/notifications", h.Notifications)
		ws.GET("/offers", h.Offers)
	}
}

// Notifications streams the caller's newest notifications.
func (h *Handler) Notifications(c *gin.Context) {
	session, ok := handler.Session(c)
	if !ok {
		return
	}

	h.streamer.Serve(c, realtime.Query{
		Collection: model.CollectionNotifications,
		Load: func(ctx context.Context) (interface{}, error) {
			return h.notifications.List(ctx, session, false, snapshotLimit)
		},
	})
}

// Offers streams an offer list. ?scope= takes the same values as GET /offers.
func (h *Handler) Offers(c *gin.Context) {
	session, ok := handler.Session(c)
	if !ok {
		return
	}

	scope := offer.Scope(c.DefaultQuery("scope", string(offer.ScopeOpen)))
	switch scope {
	case offer.ScopeMine, offer.ScopeOpen, offer.ScopeAll:
	default:
		httputil.RespondWithError(c, apperrors.BadRequest("invalid scope", nil))
		return
	}

	h.streamer.Serve(c, realtime.Query{
		Collection: model.CollectionOffers,
		Load: func(ctx context.Context) (interface{}, error) {
			return h.offers.List(ctx, session, offer.ListQuery{Scope: scope, Limit: snapshotLimit})
		},
	})
}
