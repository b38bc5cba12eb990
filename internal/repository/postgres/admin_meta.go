package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jwalitptl/lifeblood-api/internal/model"
	"github.com/jwalitptl/lifeblood-api/internal/repository"
)

type adminMetaRepository struct {
	BaseRepository
}

func NewAdminMetaRepository(base BaseRepository) repository.AdminMetaRepository {
	return &adminMetaRepository{base}
}

// Get returns an empty document when none has been written yet.
func (r *adminMetaRepository) Get(ctx context.Context, id string) (*model.AdminMeta, error) {
	var meta model.AdminMeta
	err := r.db.GetContext(ctx, &meta, `SELECT id, last_read FROM admin_meta WHERE id = $1`, id)
	if err != nil {
		err = classify(err)
		if errors.Is(err, repository.ErrNotFound) {
			return &model.AdminMeta{ID: id}, nil
		}
		return nil, fmt.Errorf("failed to get admin meta: %w", err)
	}
	return &meta, nil
}

func (r *adminMetaRepository) SetLastRead(ctx context.Context, id string, at time.Time) error {
	query := `
		INSERT INTO admin_meta (id, last_read) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET last_read = EXCLUDED.last_read
	`
	if _, err := r.db.ExecContext(ctx, query, id, at.UTC()); err != nil {
		return fmt.Errorf("failed to set admin last read: %w", classify(err))
	}
	return nil
}
