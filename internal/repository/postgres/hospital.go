package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/lifeblood-api/internal/model"
	"github.com/jwalitptl/lifeblood-api/internal/repository"
)

const hospitalColumns = `id, name, address, phone, email, verified, created_at, updated_at`

type hospitalRepository struct {
	BaseRepository
}

func NewHospitalRepository(base BaseRepository) repository.HospitalRepository {
	return &hospitalRepository{base}
}

func (r *hospitalRepository) Get(ctx context.Context, id uuid.UUID) (*model.HospitalRecord, error) {
	query := `SELECT ` + hospitalColumns + ` FROM hospitals WHERE id = $1`

	var h model.HospitalRecord
	if err := r.db.GetContext(ctx, &h, query, id); err != nil {
		return nil, fmt.Errorf("failed to get hospital: %w", classify(err))
	}
	return &h, nil
}

func (r *hospitalRepository) List(ctx context.Context, filters *model.HospitalFilters) ([]*model.HospitalRecord, error) {
	query := `
		SELECT ` + hospitalColumns + `
		FROM hospitals
		WHERE ($1 = '' OR verified = $1)
		AND ($2::timestamptz IS NULL OR created_at > $2)
		ORDER BY created_at DESC, id ASC
	`

	verified := ""
	var after *time.Time
	if filters != nil {
		verified = string(filters.Verified)
		after = filters.CreatedAfter
	}

	var hospitals []*model.HospitalRecord
	if err := r.db.SelectContext(ctx, &hospitals, query, verified, after); err != nil {
		return nil, fmt.Errorf("failed to list hospitals: %w", classify(err))
	}
	return hospitals, nil
}

// SetVerification updates the record and mirrors the result onto the user.
func (r *hospitalRepository) SetVerification(ctx context.Context, id uuid.UUID, status model.VerificationStatus) (*model.HospitalRecord, error) {
	var out model.HospitalRecord
	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		now := time.Now().UTC()
		query := `
			UPDATE hospitals SET verified = $1, updated_at = $2
			WHERE id = $3
			RETURNING ` + hospitalColumns
		if err := tx.GetContext(ctx, &out, query, status, now, id); err != nil {
			return fmt.Errorf("failed to update hospital verification: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE users SET verified = $1, updated_at = $2 WHERE id = $3`,
			status == model.VerificationAccepted, now, id,
		); err != nil {
			return fmt.Errorf("failed to update user verification: %w", err)
		}
		if err := r.RecordChange(ctx, tx, model.CollectionHospitals, id, model.ChangeUpdate); err != nil {
			return err
		}
		return r.RecordChange(ctx, tx, model.CollectionUsers, id, model.ChangeUpdate)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}
