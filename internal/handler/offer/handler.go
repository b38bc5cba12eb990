package offer

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/lifeblood-api/internal/handler"
	"github.com/jwalitptl/lifeblood-api/internal/model"
	"github.com/jwalitptl/lifeblood-api/internal/service/offer"
	apperrors "github.com/jwalitptl/lifeblood-api/pkg/errors"
	"github.com/jwalitptl/lifeblood-api/pkg/httputil"
)

const defaultListLimit = 100

type Handler struct {
	service *offer.Service
}

func NewHandler(service *offer.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	offers := r.Group("/offers")
	{
		offers.POST("", h.Create)
		offers.GET("", h.List)
		offers.GET("/:id", h.Get)
		offers.POST("/:id/accept", h.Accept)
		offers.POST("/:id/deny", h.Deny)
		offers.POST("/:id/fulfill", h.Fulfill)
	}
}

// Create files a donor offer or a hospital request depending on the
// caller's role.
func (h *Handler) Create(c *gin.Context) {
	session, ok := handler.Session(c)
	if !ok {
		return
	}

	var (
		o   *model.Offer
		err error
	)
	switch session.Role {
	case model.RoleDonor:
		var req model.CreateDonorOfferRequest
		if !handler.BindJSON(c, &req) {
			return
		}
		o, err = h.service.CreateDonorOffer(c.Request.Context(), session, &req)
	case model.RoleHospital:
		var req model.CreateHospitalRequest
		if !handler.BindJSON(c, &req) {
			return
		}
		o, err = h.service.CreateHospitalRequest(c.Request.Context(), session, &req)
	default:
		err = apperrors.Forbidden("only donors and hospitals can create offers")
	}
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithCreated(c, o)
}

// List accepts ?scope=mine|open|all, a comma separated ?status= and ?limit=.
func (h *Handler) List(c *gin.Context) {
	session, ok := handler.Session(c)
	if !ok {
		return
	}
	limit, ok := handler.QueryInt(c, "limit", defaultListLimit)
	if !ok {
		return
	}

	q := offer.ListQuery{
		Scope: offer.Scope(c.DefaultQuery("scope", string(offer.ScopeMine))),
		Limit: limit,
	}
	if raw := c.Query("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			status := model.NormalizeOfferStatus(s)
			if !status.Valid() {
				httputil.RespondWithError(c, apperrors.BadRequest("invalid status "+s, nil))
				return
			}
			q.Statuses = append(q.Statuses, status)
		}
	}

	items, err := h.service.List(c.Request.Context(), session, q)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithList(c, items, len(items))
}

func (h *Handler) Get(c *gin.Context) {
	h.byID(c, h.service.Get)
}

func (h *Handler) Accept(c *gin.Context) {
	h.byID(c, h.service.Accept)
}

func (h *Handler) Deny(c *gin.Context) {
	h.byID(c, h.service.Deny)
}

func (h *Handler) Fulfill(c *gin.Context) {
	h.byID(c, h.service.Fulfill)
}

type offerOp func(ctx context.Context, session model.Session, id uuid.UUID) (*model.Offer, error)

func (h *Handler) byID(c *gin.Context, op offerOp) {
	session, ok := handler.Session(c)
	if !ok {
		return
	}
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}

	o, err := op(c.Request.Context(), session, id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, o)
}
