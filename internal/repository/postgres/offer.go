package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/jwalitptl/lifeblood-api/internal/model"
	"github.com/jwalitptl/lifeblood-api/internal/repository"
)

const offerColumns = `id, initiator_role, donor_id, donor_name, hospital_id, hospital_name,
	blood_type, quantity, requested_date, requested_slot, location, notes, phone,
	weight_kg, date_of_birth, last_donation_date, status, decided_by_id,
	decided_by_name, accepted_at, denied_at, fulfilled_at, booking_id,
	created_at, updated_at`

type offerRepository struct {
	BaseRepository
}

func NewOfferRepository(base BaseRepository) repository.OfferRepository {
	return &offerRepository{base}
}

func (r *offerRepository) Create(ctx context.Context, offer *model.Offer) error {
	if offer.ID == uuid.Nil {
		offer.ID = uuid.New()
	}
	now := time.Now().UTC()
	if offer.CreatedAt.IsZero() {
		offer.CreatedAt = now
	}
	offer.UpdatedAt = now

	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		query := `
			INSERT INTO offers (` + offerColumns + `) VALUES (
				:id, :initiator_role, :donor_id, :donor_name, :hospital_id, :hospital_name,
				:blood_type, :quantity, :requested_date, :requested_slot, :location, :notes, :phone,
				:weight_kg, :date_of_birth, :last_donation_date, :status, :decided_by_id,
				:decided_by_name, :accepted_at, :denied_at, :fulfilled_at, :booking_id,
				:created_at, :updated_at
			)
		`
		if _, err := tx.NamedExecContext(ctx, query, offer); err != nil {
			return fmt.Errorf("failed to create offer: %w", classify(err))
		}
		return r.RecordChange(ctx, tx, model.CollectionOffers, offer.ID, model.ChangeCreate)
	})
}

func (r *offerRepository) Get(ctx context.Context, id uuid.UUID) (*model.Offer, error) {
	query := `SELECT ` + offerColumns + ` FROM offers WHERE id = $1`

	var offer model.Offer
	if err := r.db.GetContext(ctx, &offer, query, id); err != nil {
		return nil, fmt.Errorf("failed to get offer: %w", classify(err))
	}
	return &offer, nil
}

func (r *offerRepository) List(ctx context.Context, filters *model.OfferFilters) ([]*model.Offer, error) {
	query := `
		SELECT ` + offerColumns + `
		FROM offers
		WHERE ($1 = '' OR initiator_role = $1)
		AND ($2::uuid IS NULL OR donor_id = $2)
		AND ($3::uuid IS NULL OR hospital_id = $3)
		AND (cardinality($4::text[]) = 0 OR status = ANY($4))
		ORDER BY created_at DESC, id ASC
	`

	var (
		initiator  string
		donorID    *uuid.UUID
		hospitalID *uuid.UUID
		statuses   = pq.StringArray{}
		limit      int
	)
	if filters != nil {
		initiator = string(filters.InitiatorRole)
		donorID = filters.DonorID
		hospitalID = filters.HospitalID
		for _, s := range filters.Statuses {
			statuses = append(statuses, string(s))
		}
		limit = filters.Limit
	}
	args := []interface{}{initiator, donorID, hospitalID, statuses}
	if limit > 0 {
		query += ` LIMIT $5`
		args = append(args, limit)
	}

	var offers []*model.Offer
	if err := r.db.SelectContext(ctx, &offers, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list offers: %w", classify(err))
	}
	return offers, nil
}

// Mutate locks the offer row with SELECT ... FOR UPDATE so the status check
// and the write happen in one transaction.
func (r *offerRepository) Mutate(ctx context.Context, id uuid.UUID, fn repository.OfferMutation) (*model.Offer, error) {
	var offer model.Offer
	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		query := `SELECT ` + offerColumns + ` FROM offers WHERE id = $1 FOR UPDATE`
		if err := tx.GetContext(ctx, &offer, query, id); err != nil {
			return fmt.Errorf("failed to lock offer: %w", err)
		}

		otx := &offerTx{base: r.BaseRepository, tx: tx}
		if err := fn(ctx, otx, &offer); err != nil {
			return err
		}

		offer.ID = id
		offer.UpdatedAt = time.Now().UTC()
		update := `
			UPDATE offers SET
				donor_id = :donor_id,
				donor_name = :donor_name,
				hospital_id = :hospital_id,
				hospital_name = :hospital_name,
				status = :status,
				decided_by_id = :decided_by_id,
				decided_by_name = :decided_by_name,
				accepted_at = :accepted_at,
				denied_at = :denied_at,
				fulfilled_at = :fulfilled_at,
				booking_id = :booking_id,
				updated_at = :updated_at
			WHERE id = :id
		`
		if _, err := tx.NamedExecContext(ctx, update, &offer); err != nil {
			return fmt.Errorf("failed to update offer: %w", err)
		}
		return r.RecordChange(ctx, tx, model.CollectionOffers, id, model.ChangeUpdate)
	})
	if err != nil {
		return nil, err
	}
	return &offer, nil
}

type offerTx struct {
	base BaseRepository
	tx   *sqlx.Tx
}

func (t *offerTx) CreateBooking(ctx context.Context, booking *model.Booking) error {
	if booking.ID == uuid.Nil {
		booking.ID = uuid.New()
	}
	now := time.Now().UTC()
	if booking.CreatedAt.IsZero() {
		booking.CreatedAt = now
	}
	booking.UpdatedAt = now

	query := `
		INSERT INTO bookings (` + bookingColumns + `) VALUES (
			:id, :offer_id, :donor_id, :donor_name, :hospital_id, :hospital_name,
			:date, :slot, :quantity, :blood_type, :status, :location,
			:created_at, :updated_at
		)
	`
	if _, err := t.tx.NamedExecContext(ctx, query, booking); err != nil {
		return fmt.Errorf("failed to create booking: %w", classify(err))
	}
	return t.base.RecordChange(ctx, t.tx, model.CollectionBookings, booking.ID, model.ChangeCreate)
}

func (t *offerTx) UpdateBookingStatus(ctx context.Context, id uuid.UUID, status model.BookingStatus) error {
	result, err := t.tx.ExecContext(ctx,
		`UPDATE bookings SET status = $1, updated_at = $2 WHERE id = $3`,
		status, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update booking: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return repository.ErrNotFound
	}
	return t.base.RecordChange(ctx, t.tx, model.CollectionBookings, id, model.ChangeUpdate)
}
