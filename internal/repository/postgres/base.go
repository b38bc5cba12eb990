package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/jwalitptl/lifeblood-api/internal/model"
	"github.com/jwalitptl/lifeblood-api/internal/repository"
)

// BaseRepository provides common functionality for all repositories
type BaseRepository struct {
	db *sqlx.DB
}

// NewBaseRepository creates a new base repository
func NewBaseRepository(db *sqlx.DB) BaseRepository {
	return BaseRepository{db: db}
}

// GetDB returns the database instance
func (r *BaseRepository) GetDB() *sqlx.DB {
	return r.db
}

// WithTx executes a function within a transaction
func (r *BaseRepository) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return classify(err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		tx.Rollback()
		return classify(err)
	}

	return classify(tx.Commit())
}

// RecordChange writes a change event to the outbox inside tx. The outbox
// processor relays it to the broker after commit.
func (r *BaseRepository) RecordChange(ctx context.Context, tx *sqlx.Tx, collection string, id uuid.UUID, op model.ChangeOp) error {
	evt, err := model.NewChangeOutboxEvent(model.ChangeEvent{
		Collection: collection,
		DocumentID: id.String(),
		Op:         op,
		At:         time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to build change event: %w", err)
	}

	query := `
		INSERT INTO outbox_events (
			id, channel, payload, status, retry_count, created_at, updated_at
		) VALUES ($1, $2, $3, $4, 0, $5, $6)
	`
	if _, err := tx.ExecContext(ctx, query,
		evt.ID,
		evt.Channel,
		string(evt.Payload),
		evt.Status,
		evt.CreatedAt,
		evt.UpdatedAt,
	); err != nil {
		return fmt.Errorf("failed to record change: %w", err)
	}
	return nil
}

// classify maps driver errors onto the repository sentinels.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, repository.ErrNotFound) || errors.Is(err, repository.ErrUnavailable) || errors.Is(err, repository.ErrDuplicate) {
		return err
	}
	if errors.Is(err, sql.ErrNoRows) {
		return repository.ErrNotFound
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", repository.ErrUnavailable, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %v", repository.ErrUnavailable, err)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case pqErr.Code == "23505":
			return fmt.Errorf("%w: %s", repository.ErrDuplicate, pqErr.Constraint)
		case pqErr.Code.Class() == "08", pqErr.Code.Class() == "57":
			return fmt.Errorf("%w: %v", repository.ErrUnavailable, err)
		}
	}
	return err
}
