package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/jwalitptl/lifeblood-api/internal/model"
	"github.com/jwalitptl/lifeblood-api/internal/repository"
)

const bookingColumns = `id, offer_id, donor_id, donor_name, hospital_id, hospital_name,
	date, slot, quantity, blood_type, status, location, created_at, updated_at`

type bookingRepository struct {
	BaseRepository
}

func NewBookingRepository(base BaseRepository) repository.BookingRepository {
	return &bookingRepository{base}
}

func (r *bookingRepository) Get(ctx context.Context, id uuid.UUID) (*model.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`

	var b model.Booking
	if err := r.db.GetContext(ctx, &b, query, id); err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", classify(err))
	}
	return &b, nil
}

func (r *bookingRepository) List(ctx context.Context, filters *model.BookingFilters) ([]*model.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE ($1::uuid IS NULL OR donor_id = $1)
		AND ($2::uuid IS NULL OR hospital_id = $2)
		AND ($3 = '' OR status = $3)
		ORDER BY created_at DESC, id ASC
	`

	var (
		donorID    *uuid.UUID
		hospitalID *uuid.UUID
		status     string
	)
	if filters != nil {
		donorID = filters.DonorID
		hospitalID = filters.HospitalID
		status = string(filters.Status)
	}

	var bookings []*model.Booking
	if err := r.db.SelectContext(ctx, &bookings, query, donorID, hospitalID, status); err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", classify(err))
	}
	return bookings, nil
}
