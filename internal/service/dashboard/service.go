// Package dashboard assembles the per-role dashboard views. When the store is
// unavailable the caller's last good view is served, flagged stale.
package dashboard

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/jwalitptl/lifeblood-api/internal/model"
	"github.com/jwalitptl/lifeblood-api/internal/repository"
	"github.com/jwalitptl/lifeblood-api/internal/service"
	apperrors "github.com/jwalitptl/lifeblood-api/pkg/errors"
	"github.com/jwalitptl/lifeblood-api/pkg/logger"
	"github.com/jwalitptl/lifeblood-api/pkg/metrics"
)

// LivesPerUnit is the number of lives one donated unit is credited with.
const LivesPerUnit = 3

type DonorStats struct {
	Donations  int `json:"donations"`
	LivesSaved int `json:"livesSaved"`
}

type AdminStats struct {
	Donors            int `json:"donors"`
	Hospitals         int `json:"hospitals"`
	PendingHospitals  int `json:"pendingHospitals"`
	AcceptedHospitals int `json:"acceptedHospitals"`
	DeniedHospitals   int `json:"deniedHospitals"`
}

type Dashboard struct {
	Role        model.Role       `json:"role"`
	MyOffers    []*model.Offer   `json:"myOffers,omitempty"`
	Open        []*model.Offer   `json:"open,omitempty"`
	Bookings    []*model.Booking `json:"bookings,omitempty"`
	UnreadCount int              `json:"unreadCount"`
	Stats       *DonorStats      `json:"stats,omitempty"`
	Admin       *AdminStats      `json:"admin,omitempty"`
	GeneratedAt time.Time        `json:"generatedAt"`
	Stale       bool             `json:"stale"`
}

type Service struct {
	store    repository.Store
	fallback *cache.Cache
	logger   *logger.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewService(store repository.Store, fallbackTTL time.Duration, log *logger.Logger, m *metrics.Metrics) *Service {
	if fallbackTTL <= 0 {
		fallbackTTL = 10 * time.Minute
	}
	return &Service{
		store:    store,
		fallback: cache.New(fallbackTTL, 2*fallbackTTL),
		logger:   log,
		metrics:  m,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) Get(ctx context.Context, session model.Session) (*Dashboard, error) {
	d, err := s.build(ctx, session)
	if err == nil {
		s.fallback.Set(session.UserID.String(), d, cache.DefaultExpiration)
		return d, nil
	}

	mapped := service.StoreError(err, "dashboard")
	if !apperrors.HasCode(mapped, apperrors.ErrStoreUnavailable) {
		return nil, mapped
	}
	cached, found := s.fallback.Get(session.UserID.String())
	if !found {
		return nil, mapped
	}

	s.metrics.StaleDashboards.Inc()
	s.logger.Warn(err, "Serving stale dashboard", "user_id", session.UserID)
	out := *cached.(*Dashboard)
	out.Stale = true
	return &out, nil
}

func (s *Service) build(ctx context.Context, session model.Session) (*Dashboard, error) {
	d := &Dashboard{Role: session.Role, GeneratedAt: s.now()}

	switch session.Role {
	case model.RoleDonor:
		mine, err := s.store.Offers().List(ctx, &model.OfferFilters{DonorID: &session.UserID})
		if err != nil {
			return nil, err
		}
		open, err := s.store.Offers().List(ctx, &model.OfferFilters{
			InitiatorRole: model.RoleHospital,
			Statuses:      model.OpenStatuses,
		})
		if err != nil {
			return nil, err
		}
		bookings, err := s.store.Bookings().List(ctx, &model.BookingFilters{DonorID: &session.UserID})
		if err != nil {
			return nil, err
		}
		d.MyOffers, d.Open, d.Bookings = mine, open, bookings
		d.Stats = DonorStatsOf(mine)

	case model.RoleHospital:
		mine, err := s.store.Offers().List(ctx, &model.OfferFilters{HospitalID: &session.UserID})
		if err != nil {
			return nil, err
		}
		open, err := s.store.Offers().List(ctx, &model.OfferFilters{
			InitiatorRole: model.RoleDonor,
			Statuses:      model.OpenStatuses,
		})
		if err != nil {
			return nil, err
		}
		bookings, err := s.store.Bookings().List(ctx, &model.BookingFilters{HospitalID: &session.UserID})
		if err != nil {
			return nil, err
		}
		d.MyOffers, d.Open, d.Bookings = mine, open, bookings

	case model.RoleAdmin:
		stats, err := s.adminStats(ctx)
		if err != nil {
			return nil, err
		}
		d.Admin = stats
		return d, nil
	}

	unread, err := s.store.Notifications().CountUnread(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	d.UnreadCount = unread
	return d, nil
}

// DonorStatsOf counts a donor's completed or booked donations.
func DonorStatsOf(offers []*model.Offer) *DonorStats {
	stats := &DonorStats{}
	for _, o := range offers {
		if !o.Status.HasBooking() {
			continue
		}
		stats.Donations++
		stats.LivesSaved += o.Quantity * LivesPerUnit
	}
	return stats
}

func (s *Service) adminStats(ctx context.Context) (*AdminStats, error) {
	donors, err := s.store.Users().List(ctx, &model.UserFilters{Role: model.RoleDonor})
	if err != nil {
		return nil, err
	}
	hospitals, err := s.store.Hospitals().List(ctx, nil)
	if err != nil {
		return nil, err
	}

	stats := &AdminStats{Donors: len(donors), Hospitals: len(hospitals)}
	for _, h := range hospitals {
		switch h.Verified {
		case model.VerificationAccepted:
			stats.AcceptedHospitals++
		case model.VerificationDenied:
			stats.DeniedHospitals++
		default:
			stats.PendingHospitals++
		}
	}
	return stats, nil
}
