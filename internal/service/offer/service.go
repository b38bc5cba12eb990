// Package offer implements the donation offer lifecycle: creation by either
// party, the atomic accept that creates a booking, deny, and fulfilment.
package offer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/lifeblood-api/internal/model"
	"github.com/jwalitptl/lifeblood-api/internal/repository"
	"github.com/jwalitptl/lifeblood-api/internal/service"
	"github.com/jwalitptl/lifeblood-api/internal/service/eligibility"
	apperrors "github.com/jwalitptl/lifeblood-api/pkg/errors"
	"github.com/jwalitptl/lifeblood-api/pkg/logger"
	"github.com/jwalitptl/lifeblood-api/pkg/metrics"
	"github.com/jwalitptl/lifeblood-api/pkg/validator"
)

// Notifier fans out notifications for lifecycle events.
type Notifier interface {
	NotifyDonorRequest(ctx context.Context, offer *model.Offer) error
	NotifyDecision(ctx context.Context, offer *model.Offer) error
}

// Scope selects which offers List returns.
type Scope string

const (
	// ScopeMine is every offer the caller is a party to.
	ScopeMine Scope = "mine"
	// ScopeOpen is every offer still awaiting a decision from the caller's role.
	ScopeOpen Scope = "open"
	// ScopeAll is admin only.
	ScopeAll Scope = "all"
)

// writeTimeout bounds a lifecycle write and its notifications once they no
// longer follow the caller's cancellation.
const writeTimeout = 30 * time.Second

type ListQuery struct {
	Scope    Scope
	Statuses []model.OfferStatus
	Limit    int
}

type Service struct {
	offers   repository.OfferRepository
	users    repository.UserRepository
	notifier Notifier
	checker  *eligibility.Checker
	logger   *logger.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewService(store repository.Store, notifier Notifier, checker *eligibility.Checker, log *logger.Logger, m *metrics.Metrics) *Service {
	return &Service{
		offers:   store.Offers(),
		users:    store.Users(),
		notifier: notifier,
		checker:  checker,
		logger:   log,
		metrics:  m,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the clock used for decision timestamps.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) CreateDonorOffer(ctx context.Context, session model.Session, req *model.CreateDonorOfferRequest) (*model.Offer, error) {
	if session.Role != model.RoleDonor {
		return nil, apperrors.Forbidden("only donors can submit donation offers")
	}
	if err := s.checker.CheckDonorOffer(req); err != nil {
		return nil, err
	}

	ctx, cancel := detach(ctx)
	defer cancel()

	donor, err := s.users.Get(ctx, session.UserID)
	if err != nil {
		return nil, service.StoreError(err, "user")
	}

	now := s.now()
	weight := req.WeightKg
	offer := &model.Offer{
		ID:               uuid.New(),
		InitiatorRole:    model.RoleDonor,
		DonorID:          &donor.ID,
		DonorName:        donor.DisplayName(),
		BloodType:        validator.NormalizeBloodType(req.BloodType),
		Quantity:         req.Quantity,
		RequestedDate:    req.RequestedDate,
		RequestedSlot:    req.RequestedSlot,
		Notes:            req.Notes,
		Phone:            req.Phone,
		WeightKg:         &weight,
		DateOfBirth:      req.DateOfBirth,
		LastDonationDate: req.LastDonationDate,
		Status:           model.OfferStatusRequested,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if !req.Location.IsEmpty() {
		offer.Location = req.Location.Clone()
	}

	if err := s.offers.Create(ctx, offer); err != nil {
		return nil, service.StoreError(err, "offer")
	}
	s.metrics.OfferTransitions.WithLabelValues(string(model.RoleDonor), string(model.OfferStatusRequested)).Inc()
	s.logger.Info("Donor offer created", "offer_id", offer.ID, "donor_id", donor.ID)

	if err := s.notifier.NotifyDonorRequest(ctx, offer); err != nil {
		s.logger.Warn(err, "Donor request fan-out incomplete", "offer_id", offer.ID)
	}
	return offer, nil
}

// CreateHospitalRequest publishes a hospital's request. Donors discover it
// through the open-offer listing, so no notifications are written.
func (s *Service) CreateHospitalRequest(ctx context.Context, session model.Session, req *model.CreateHospitalRequest) (*model.Offer, error) {
	if session.Role != model.RoleHospital {
		return nil, apperrors.Forbidden("only hospitals can create blood requests")
	}
	if err := s.checker.CheckHospitalRequest(req); err != nil {
		return nil, err
	}

	ctx, cancel := detach(ctx)
	defer cancel()

	hospital, err := s.users.Get(ctx, session.UserID)
	if err != nil {
		return nil, service.StoreError(err, "user")
	}

	now := s.now()
	offer := &model.Offer{
		ID:            uuid.New(),
		InitiatorRole: model.RoleHospital,
		HospitalID:    &hospital.ID,
		HospitalName:  hospital.DisplayName(),
		BloodType:     validator.NormalizeBloodType(req.BloodType),
		Quantity:      req.Quantity,
		RequestedDate: req.RequestedDate,
		RequestedSlot: req.RequestedSlot,
		Notes:         req.Notes,
		Status:        model.OfferStatusRequested,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if !req.Location.IsEmpty() {
		offer.Location = req.Location.Clone()
	}

	if err := s.offers.Create(ctx, offer); err != nil {
		return nil, service.StoreError(err, "offer")
	}
	s.metrics.OfferTransitions.WithLabelValues(string(model.RoleHospital), string(model.OfferStatusRequested)).Inc()
	s.logger.Info("Hospital request created", "offer_id", offer.ID, "hospital_id", hospital.ID)
	return offer, nil
}

// Accept moves an open offer to accepted and creates its booking in the same
// store transaction. Of two concurrent acceptors exactly one succeeds; the
// other receives AlreadyProcessed.
func (s *Service) Accept(ctx context.Context, session model.Session, id uuid.UUID) (*model.Offer, error) {
	ctx, cancel := detach(ctx)
	defer cancel()

	acceptor, err := s.party(ctx, session)
	if err != nil {
		return nil, err
	}

	updated, err := s.offers.Mutate(ctx, id, func(ctx context.Context, tx repository.OfferTx, o *model.Offer) error {
		if err := s.decide(o, acceptor); err != nil {
			return err
		}
		now := s.now()
		assignCounterparty(o, acceptor)
		o.Status = model.OfferStatusAccepted
		o.AcceptedAt = &now

		booking := model.NewBookingFromOffer(o, now)
		if err := tx.CreateBooking(ctx, booking); err != nil {
			return fmt.Errorf("failed to create booking: %w", err)
		}
		o.BookingID = &booking.ID
		return o.CheckInvariants()
	})
	if err != nil {
		if apperrors.HasCode(err, apperrors.ErrAlreadyProcessed) {
			s.metrics.AcceptConflicts.Inc()
		}
		return nil, s.mapError(err)
	}

	s.metrics.OfferTransitions.WithLabelValues(string(updated.InitiatorRole), string(updated.Status)).Inc()
	s.logger.Info("Offer accepted", "offer_id", id, "booking_id", updated.BookingID, "accepted_by", acceptor.ID)

	if err := s.notifier.NotifyDecision(ctx, updated); err != nil {
		s.logger.Warn(err, "Failed to notify offer initiator", "offer_id", id)
	}
	return updated, nil
}

// Deny is guarded like Accept but creates no booking.
func (s *Service) Deny(ctx context.Context, session model.Session, id uuid.UUID) (*model.Offer, error) {
	ctx, cancel := detach(ctx)
	defer cancel()

	denier, err := s.party(ctx, session)
	if err != nil {
		return nil, err
	}

	updated, err := s.offers.Mutate(ctx, id, func(ctx context.Context, tx repository.OfferTx, o *model.Offer) error {
		if err := s.decide(o, denier); err != nil {
			return err
		}
		now := s.now()
		o.Status = model.OfferStatusDenied
		o.DeniedAt = &now
		return o.CheckInvariants()
	})
	if err != nil {
		return nil, s.mapError(err)
	}

	s.metrics.OfferTransitions.WithLabelValues(string(updated.InitiatorRole), string(updated.Status)).Inc()
	s.logger.Info("Offer denied", "offer_id", id, "denied_by", denier.ID)

	if err := s.notifier.NotifyDecision(ctx, updated); err != nil {
		s.logger.Warn(err, "Failed to notify offer initiator", "offer_id", id)
	}
	return updated, nil
}

// Fulfill records a completed donation. Only the hospital party of an
// accepted offer may do this; the booking moves to fulfilled with it. The
// acceptance time stays on the booking's createdAt.
func (s *Service) Fulfill(ctx context.Context, session model.Session, id uuid.UUID) (*model.Offer, error) {
	if session.Role != model.RoleHospital {
		return nil, apperrors.Forbidden("only hospitals can mark donations fulfilled")
	}
	ctx, cancel := detach(ctx)
	defer cancel()

	updated, err := s.offers.Mutate(ctx, id, func(ctx context.Context, tx repository.OfferTx, o *model.Offer) error {
		switch {
		case o.Status.IsOpen():
			return apperrors.NewConflict("offer must be accepted before it can be fulfilled")
		case o.Status != model.OfferStatusAccepted:
			return apperrors.NewAlreadyProcessed(string(o.Status))
		}
		if o.HospitalID == nil || *o.HospitalID != session.UserID {
			return apperrors.Forbidden("offer belongs to another hospital")
		}
		if o.BookingID == nil {
			return fmt.Errorf("accepted offer %s has no booking", o.ID)
		}

		now := s.now()
		o.Status = model.OfferStatusFulfilled
		o.FulfilledAt = &now
		o.AcceptedAt = nil
		if err := tx.UpdateBookingStatus(ctx, *o.BookingID, model.BookingStatusFulfilled); err != nil {
			return fmt.Errorf("failed to update booking: %w", err)
		}
		return o.CheckInvariants()
	})
	if err != nil {
		return nil, s.mapError(err)
	}

	s.metrics.OfferTransitions.WithLabelValues(string(updated.InitiatorRole), string(updated.Status)).Inc()
	s.logger.Info("Offer fulfilled", "offer_id", id, "booking_id", updated.BookingID)
	return updated, nil
}

func (s *Service) Get(ctx context.Context, session model.Session, id uuid.UUID) (*model.Offer, error) {
	o, err := s.offers.Get(ctx, id)
	if err != nil {
		return nil, s.mapError(err)
	}
	if !visible(session, o) {
		return nil, apperrors.NewOfferNotFound(nil)
	}
	return o, nil
}

func (s *Service) List(ctx context.Context, session model.Session, q ListQuery) ([]*model.Offer, error) {
	filters := &model.OfferFilters{Statuses: q.Statuses, Limit: q.Limit}

	switch q.Scope {
	case ScopeOpen:
		if session.Role == model.RoleAdmin {
			return nil, apperrors.BadRequest("admins have no open offers to decide", nil)
		}
		filters.InitiatorRole = counterRole(session.Role)
		filters.Statuses = model.OpenStatuses
	case ScopeAll:
		if session.Role != model.RoleAdmin {
			return nil, apperrors.Forbidden("admin access required")
		}
	case ScopeMine, "":
		switch session.Role {
		case model.RoleDonor:
			filters.DonorID = &session.UserID
		case model.RoleHospital:
			filters.HospitalID = &session.UserID
		}
	default:
		return nil, apperrors.BadRequest(fmt.Sprintf("unknown scope %q", q.Scope), nil)
	}

	items, err := s.offers.List(ctx, filters)
	if err != nil {
		return nil, service.StoreError(err, "offers")
	}
	return items, nil
}

// detach drops the caller's cancellation so a write that commits is always
// followed by its notifications, even after the client disconnects.
func detach(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
}

// party loads the caller's display name for the decision fields.
func (s *Service) party(ctx context.Context, session model.Session) (model.Party, error) {
	if session.Role != model.RoleDonor && session.Role != model.RoleHospital {
		return model.Party{}, apperrors.Forbidden("only donors and hospitals can decide offers")
	}
	u, err := s.users.Get(ctx, session.UserID)
	if err != nil {
		return model.Party{}, service.StoreError(err, "user")
	}
	return model.Party{ID: u.ID, Name: u.DisplayName(), Role: u.Role}, nil
}

// decide runs the guard shared by accept and deny. It must be called with
// the offer as read inside the mutation.
func (s *Service) decide(o *model.Offer, by model.Party) error {
	if !o.Status.IsOpen() {
		return apperrors.NewAlreadyProcessed(string(o.Status))
	}
	if by.Role != o.CounterpartyRole() {
		return apperrors.Forbidden(fmt.Sprintf("only a %s can decide this offer", o.CounterpartyRole()))
	}
	if initiator := o.Initiator(); initiator != nil && *initiator == by.ID {
		return apperrors.Forbidden("cannot decide your own offer")
	}
	o.DecidedByID = &by.ID
	o.DecidedByName = by.Name
	return nil
}

func assignCounterparty(o *model.Offer, by model.Party) {
	id := by.ID
	switch by.Role {
	case model.RoleHospital:
		o.HospitalID = &id
		o.HospitalName = by.Name
	case model.RoleDonor:
		o.DonorID = &id
		o.DonorName = by.Name
	}
}

func (s *Service) mapError(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NewOfferNotFound(err)
	}
	return service.StoreError(err, "offer")
}

func counterRole(r model.Role) model.Role {
	if r == model.RoleHospital {
		return model.RoleDonor
	}
	return model.RoleHospital
}

func visible(session model.Session, o *model.Offer) bool {
	switch {
	case session.Role == model.RoleAdmin:
		return true
	case o.DonorID != nil && *o.DonorID == session.UserID:
		return true
	case o.HospitalID != nil && *o.HospitalID == session.UserID:
		return true
	case o.Status.IsOpen() && o.CounterpartyRole() == session.Role:
		return true
	}
	return false
}
