package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/lifeblood-api/internal/model"
	"github.com/jwalitptl/lifeblood-api/internal/repository"
)

const notificationColumns = `id, recipient_id, type, ref_id, booking_id, message, read, created_at`

type notificationRepository struct {
	BaseRepository
}

func NewNotificationRepository(base BaseRepository) repository.NotificationRepository {
	return &notificationRepository{base}
}

func (r *notificationRepository) Create(ctx context.Context, n *model.Notification) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}

	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		query := `
			INSERT INTO notifications (` + notificationColumns + `)
			VALUES (:id, :recipient_id, :type, :ref_id, :booking_id, :message, :read, :created_at)
		`
		if _, err := tx.NamedExecContext(ctx, query, n); err != nil {
			return fmt.Errorf("failed to create notification: %w", classify(err))
		}
		return r.RecordChange(ctx, tx, model.CollectionNotifications, n.ID, model.ChangeCreate)
	})
}

func (r *notificationRepository) Get(ctx context.Context, id uuid.UUID) (*model.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE id = $1`

	var n model.Notification
	if err := r.db.GetContext(ctx, &n, query, id); err != nil {
		return nil, fmt.Errorf("failed to get notification: %w", classify(err))
	}
	return &n, nil
}

func (r *notificationRepository) List(ctx context.Context, filters *model.NotificationFilters) ([]*model.Notification, error) {
	query := `
		SELECT ` + notificationColumns + `
		FROM notifications
		WHERE ($1::uuid IS NULL OR recipient_id = $1)
		AND (NOT $2 OR read = FALSE)
		ORDER BY created_at DESC, id ASC
	`

	var (
		recipient *uuid.UUID
		unread    bool
		limit     int
	)
	if filters != nil {
		if filters.RecipientID != uuid.Nil {
			recipient = &filters.RecipientID
		}
		unread = filters.UnreadOnly
		limit = filters.Limit
	}
	args := []interface{}{recipient, unread}
	if limit > 0 {
		query += ` LIMIT $3`
		args = append(args, limit)
	}

	var out []*model.Notification
	if err := r.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", classify(err))
	}
	return out, nil
}

func (r *notificationRepository) CountUnread(ctx context.Context, recipientID uuid.UUID) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM notifications WHERE recipient_id = $1 AND read = FALSE`
	if err := r.db.GetContext(ctx, &count, query, recipientID); err != nil {
		return 0, fmt.Errorf("failed to count notifications: %w", classify(err))
	}
	return count, nil
}

func (r *notificationRepository) MarkRead(ctx context.Context, id uuid.UUID) error {
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		result, err := tx.ExecContext(ctx, `UPDATE notifications SET read = TRUE WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("failed to mark notification read: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rows == 0 {
			return repository.ErrNotFound
		}
		return r.RecordChange(ctx, tx, model.CollectionNotifications, id, model.ChangeUpdate)
	})
}

func (r *notificationRepository) MarkAllRead(ctx context.Context, recipientID uuid.UUID) (int, error) {
	var ids []uuid.UUID
	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		query := `
			UPDATE notifications SET read = TRUE
			WHERE recipient_id = $1 AND read = FALSE
			RETURNING id
		`
		if err := tx.SelectContext(ctx, &ids, query, recipientID); err != nil {
			return fmt.Errorf("failed to mark notifications read: %w", err)
		}
		for _, id := range ids {
			if err := r.RecordChange(ctx, tx, model.CollectionNotifications, id, model.ChangeUpdate); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}
