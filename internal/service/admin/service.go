// Package admin holds the operations available to the single admin account.
package admin

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/lifeblood-api/internal/model"
	"github.com/jwalitptl/lifeblood-api/internal/repository"
	"github.com/jwalitptl/lifeblood-api/internal/service"
	apperrors "github.com/jwalitptl/lifeblood-api/pkg/errors"
	"github.com/jwalitptl/lifeblood-api/pkg/logger"
)

// GateInvalidator drops cached verification decisions.
type GateInvalidator interface {
	Invalidate(hospitalID uuid.UUID)
}

type Service struct {
	users     repository.UserRepository
	hospitals repository.HospitalRepository
	meta      repository.AdminMetaRepository
	gate      GateInvalidator
	logger    *logger.Logger
	now       func() time.Time
}

func NewService(store repository.Store, gate GateInvalidator, log *logger.Logger) *Service {
	return &Service{
		users:     store.Users(),
		hospitals: store.Hospitals(),
		meta:      store.AdminMeta(),
		gate:      gate,
		logger:    log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func requireAdmin(session model.Session) error {
	if session.Role != model.RoleAdmin {
		return apperrors.Forbidden("admin access required")
	}
	return nil
}

func (s *Service) ListHospitals(ctx context.Context, session model.Session, status model.VerificationStatus) ([]*model.HospitalRecord, error) {
	if err := requireAdmin(session); err != nil {
		return nil, err
	}
	if status != "" && !status.Valid() {
		return nil, apperrors.NewValidation(map[string]string{"verified": "unknown verification status"})
	}
	items, err := s.hospitals.List(ctx, &model.HospitalFilters{Verified: status})
	if err != nil {
		return nil, service.StoreError(err, "hospitals")
	}
	return items, nil
}

// SetVerification accepts or denies a hospital.
func (s *Service) SetVerification(ctx context.Context, session model.Session, hospitalID uuid.UUID, status model.VerificationStatus) (*model.HospitalRecord, error) {
	if err := requireAdmin(session); err != nil {
		return nil, err
	}
	if !status.Valid() {
		return nil, apperrors.NewValidation(map[string]string{"verified": "unknown verification status"})
	}

	record, err := s.hospitals.SetVerification(ctx, hospitalID, status)
	if err != nil {
		return nil, service.StoreError(err, "hospital")
	}
	s.gate.Invalidate(hospitalID)
	s.logger.Info("Hospital verification changed", "hospital_id", hospitalID, "verified", status)
	return record, nil
}

func (s *Service) ListUsers(ctx context.Context, session model.Session, role model.Role) ([]*model.User, error) {
	if err := requireAdmin(session); err != nil {
		return nil, err
	}
	items, err := s.users.List(ctx, &model.UserFilters{Role: role})
	if err != nil {
		return nil, service.StoreError(err, "users")
	}
	return items, nil
}

// RemoveUser deletes a user record. Offers, bookings and notifications that
// reference the user are kept.
func (s *Service) RemoveUser(ctx context.Context, session model.Session, id uuid.UUID) error {
	if err := requireAdmin(session); err != nil {
		return err
	}
	if id == session.UserID {
		return apperrors.BadRequest("the admin account cannot be removed", nil)
	}
	if err := s.users.Delete(ctx, id); err != nil {
		return service.StoreError(err, "user")
	}
	s.gate.Invalidate(id)
	s.logger.Info("User removed", "user_id", id)
	return nil
}

func (s *Service) SetEligibility(ctx context.Context, session model.Session, donorID uuid.UUID, eligible model.Eligibility) (*model.User, error) {
	if err := requireAdmin(session); err != nil {
		return nil, err
	}
	if !eligible.Valid() {
		return nil, apperrors.NewValidation(map[string]string{"eligible": "unknown eligibility status"})
	}
	u, err := s.users.Get(ctx, donorID)
	if err != nil {
		return nil, service.StoreError(err, "user")
	}
	if u.Role != model.RoleDonor {
		return nil, apperrors.BadRequest("eligibility applies to donors only", nil)
	}
	u.Eligible = eligible
	if err := s.users.Update(ctx, u); err != nil {
		return nil, service.StoreError(err, "user")
	}
	return u, nil
}

// Notifications lists hospitals awaiting verification that registered after
// the admin last cleared the list.
func (s *Service) Notifications(ctx context.Context, session model.Session) ([]*model.AdminNotification, error) {
	if err := requireAdmin(session); err != nil {
		return nil, err
	}
	meta, err := s.meta.Get(ctx, model.AdminMetaNotifications)
	if err != nil {
		return nil, service.StoreError(err, "admin_meta")
	}

	pending, err := s.hospitals.List(ctx, &model.HospitalFilters{
		Verified:     model.VerificationPending,
		CreatedAfter: meta.LastRead,
	})
	if err != nil {
		return nil, service.StoreError(err, "hospitals")
	}

	out := make([]*model.AdminNotification, 0, len(pending))
	for _, h := range pending {
		out = append(out, &model.AdminNotification{
			HospitalID:   h.ID.String(),
			HospitalName: h.Name,
			Message:      fmt.Sprintf("%s registered and is awaiting verification", h.Name),
			CreatedAt:    h.CreatedAt,
		})
	}
	return out, nil
}

// ClearNotifications moves the read marker to now.
func (s *Service) ClearNotifications(ctx context.Context, session model.Session) error {
	if err := requireAdmin(session); err != nil {
		return err
	}
	if err := s.meta.SetLastRead(ctx, model.AdminMetaNotifications, s.now()); err != nil {
		return service.StoreError(err, "admin_meta")
	}
	return nil
}
