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

const userColumns = `id, email, role, password_hash, name, phone, blood_type,
	hospital_name, hospital_address, verified, eligible, sms_enabled,
	email_enabled, created_at, updated_at`

type userRepository struct {
	BaseRepository
}

func NewUserRepository(base BaseRepository) repository.UserRepository {
	return &userRepository{base}
}

func (r *userRepository) Register(ctx context.Context, user *model.User, hospital *model.HospitalRecord) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		query := `
			INSERT INTO users (` + userColumns + `) VALUES (
				:id, :email, :role, :password_hash, :name, :phone, :blood_type,
				:hospital_name, :hospital_address, :verified, :eligible, :sms_enabled,
				:email_enabled, :created_at, :updated_at
			)
		`
		if _, err := tx.NamedExecContext(ctx, query, user); err != nil {
			return fmt.Errorf("failed to create user: %w", classify(err))
		}
		if err := r.RecordChange(ctx, tx, model.CollectionUsers, user.ID, model.ChangeCreate); err != nil {
			return err
		}

		if hospital == nil {
			return nil
		}
		hospital.ID = user.ID
		hospital.CreatedAt = now
		hospital.UpdatedAt = now
		hquery := `
			INSERT INTO hospitals (id, name, address, phone, email, verified, created_at, updated_at)
			VALUES (:id, :name, :address, :phone, :email, :verified, :created_at, :updated_at)
		`
		if _, err := tx.NamedExecContext(ctx, hquery, hospital); err != nil {
			return fmt.Errorf("failed to create hospital record: %w", classify(err))
		}
		return r.RecordChange(ctx, tx, model.CollectionHospitals, hospital.ID, model.ChangeCreate)
	})
}

func (r *userRepository) Get(ctx context.Context, id uuid.UUID) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	var user model.User
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		return nil, fmt.Errorf("failed to get user: %w", classify(err))
	}
	return &user, nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE LOWER(email) = LOWER($1)`

	var user model.User
	if err := r.db.GetContext(ctx, &user, query, email); err != nil {
		return nil, fmt.Errorf("failed to get user by email: %w", classify(err))
	}
	return &user, nil
}

func (r *userRepository) Update(ctx context.Context, user *model.User) error {
	user.UpdatedAt = time.Now().UTC()

	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		query := `
			UPDATE users SET
				name = :name,
				phone = :phone,
				blood_type = :blood_type,
				hospital_name = :hospital_name,
				hospital_address = :hospital_address,
				verified = :verified,
				eligible = :eligible,
				sms_enabled = :sms_enabled,
				email_enabled = :email_enabled,
				password_hash = :password_hash,
				updated_at = :updated_at
			WHERE id = :id
		`
		result, err := tx.NamedExecContext(ctx, query, user)
		if err != nil {
			return fmt.Errorf("failed to update user: %w", classify(err))
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rows == 0 {
			return repository.ErrNotFound
		}
		return r.RecordChange(ctx, tx, model.CollectionUsers, user.ID, model.ChangeUpdate)
	})
}

// Delete removes the user; the hospital record goes with it by cascade.
func (r *userRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		var hadHospital bool
		if err := tx.GetContext(ctx, &hadHospital, `SELECT EXISTS (SELECT 1 FROM hospitals WHERE id = $1)`, id); err != nil {
			return fmt.Errorf("failed to check hospital record: %w", err)
		}

		result, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("failed to delete user: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rows == 0 {
			return repository.ErrNotFound
		}

		if err := r.RecordChange(ctx, tx, model.CollectionUsers, id, model.ChangeDelete); err != nil {
			return err
		}
		if hadHospital {
			return r.RecordChange(ctx, tx, model.CollectionHospitals, id, model.ChangeDelete)
		}
		return nil
	})
}

func (r *userRepository) List(ctx context.Context, filters *model.UserFilters) ([]*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE ($1 = '' OR role = $1) ORDER BY created_at ASC, id ASC`

	role := ""
	if filters != nil {
		role = string(filters.Role)
	}

	var users []*model.User
	if err := r.db.SelectContext(ctx, &users, query, role); err != nil {
		return nil, fmt.Errorf("failed to list users: %w", classify(err))
	}
	return users, nil
}
