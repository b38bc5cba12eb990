package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/lifeblood-api/internal/model"
)

var (
	// ErrNotFound is returned when the addressed document does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrUnavailable is returned when the backing store cannot be reached.
	ErrUnavailable = errors.New("store unavailable")
	// ErrDuplicate is returned when a unique key is already taken.
	ErrDuplicate = errors.New("duplicate record")
)

// OfferTx exposes the writes allowed inside an offer mutation. They commit or
// roll back together with the offer update.
type OfferTx interface {
	CreateBooking(ctx context.Context, booking *model.Booking) error
	UpdateBookingStatus(ctx context.Context, id uuid.UUID, status model.BookingStatus) error
}

// OfferMutation edits offer in place. The offer it receives was read under the
// same lock or transaction as the write; returning an error discards every
// change.
type OfferMutation func(ctx context.Context, tx OfferTx, offer *model.Offer) error

// All repository interfaces in one file
type (
	UserRepository interface {
		// Register creates the user and, for hospitals, its verification
		// record in one unit.
		Register(ctx context.Context, user *model.User, hospital *model.HospitalRecord) error
		Get(ctx context.Context, id uuid.UUID) (*model.User, error)
		GetByEmail(ctx context.Context, email string) (*model.User, error)
		Update(ctx context.Context, user *model.User) error
		Delete(ctx context.Context, id uuid.UUID) error
		List(ctx context.Context, filters *model.UserFilters) ([]*model.User, error)
	}

	HospitalRepository interface {
		Get(ctx context.Context, id uuid.UUID) (*model.HospitalRecord, error)
		List(ctx context.Context, filters *model.HospitalFilters) ([]*model.HospitalRecord, error)
		SetVerification(ctx context.Context, id uuid.UUID, status model.VerificationStatus) (*model.HospitalRecord, error)
	}

	OfferRepository interface {
		Create(ctx context.Context, offer *model.Offer) error
		Get(ctx context.Context, id uuid.UUID) (*model.Offer, error)
		// List returns offers ordered by createdAt, newest first.
		List(ctx context.Context, filters *model.OfferFilters) ([]*model.Offer, error)
		// Mutate runs fn as a read-modify-write on a single offer. Concurrent
		// mutations of the same offer are serialized.
		Mutate(ctx context.Context, id uuid.UUID, fn OfferMutation) (*model.Offer, error)
	}

	BookingRepository interface {
		Get(ctx context.Context, id uuid.UUID) (*model.Booking, error)
		List(ctx context.Context, filters *model.BookingFilters) ([]*model.Booking, error)
	}

	NotificationRepository interface {
		Create(ctx context.Context, notification *model.Notification) error
		Get(ctx context.Context, id uuid.UUID) (*model.Notification, error)
		// List returns notifications ordered by createdAt, newest first.
		List(ctx context.Context, filters *model.NotificationFilters) ([]*model.Notification, error)
		CountUnread(ctx context.Context, recipientID uuid.UUID) (int, error)
		MarkRead(ctx context.Context, id uuid.UUID) error
		MarkAllRead(ctx context.Context, recipientID uuid.UUID) (int, error)
	}

	AdminMetaRepository interface {
		Get(ctx context.Context, id string) (*model.AdminMeta, error)
		SetLastRead(ctx context.Context, id string, at time.Time) error
	}

	OutboxRepository interface {
		GetPendingEventsWithLock(ctx context.Context, limit int) ([]*model.OutboxEvent, error)
		UpdateStatus(ctx context.Context, id uuid.UUID, status model.OutboxStatus, errorMessage *string, retryAt *time.Time) error
		DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
		CountPending(ctx context.Context) (int, error)
	}

	// Store groups the collections of the document store.
	Store interface {
		Users() UserRepository
		Hospitals() HospitalRepository
		Offers() OfferRepository
		Bookings() BookingRepository
		Notifications() NotificationRepository
		AdminMeta() AdminMetaRepository
		Ping(ctx context.Context) error
		Close() error
	}
)
