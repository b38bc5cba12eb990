package booking

import (
	"context"

	"github.com/google/uuid"

	"github.com/jwalitptl/lifeblood-api/internal/model"
	"github.com/jwalitptl/lifeblood-api/internal/repository"
	"github.com/jwalitptl/lifeblood-api/internal/service"
	apperrors "github.com/jwalitptl/lifeblood-api/pkg/errors"
)

// Service exposes bookings to the two parties that share them.
type Service struct {
	bookings repository.BookingRepository
}

func NewService(bookings repository.BookingRepository) *Service {
	return &Service{bookings: bookings}
}

func (s *Service) List(ctx context.Context, session model.Session, status model.BookingStatus) ([]*model.Booking, error) {
	filters := &model.BookingFilters{Status: status}
	switch session.Role {
	case model.RoleDonor:
		filters.DonorID = &session.UserID
	case model.RoleHospital:
		filters.HospitalID = &session.UserID
	}

	items, err := s.bookings.List(ctx, filters)
	if err != nil {
		return nil, service.StoreError(err, "bookings")
	}
	return items, nil
}

func (s *Service) Get(ctx context.Context, session model.Session, id uuid.UUID) (*model.Booking, error) {
	b, err := s.bookings.Get(ctx, id)
	if err != nil {
		return nil, service.StoreError(err, "booking")
	}
	if session.Role != model.RoleAdmin && b.DonorID != session.UserID && b.HospitalID != session.UserID {
		return nil, apperrors.NewNotFound("booking", nil)
	}
	return b, nil
}
