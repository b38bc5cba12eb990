package postgres

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/lifeblood-api/internal/repository"
)

// Store is the Postgres-backed document store.
type Store struct {
	base BaseRepository
}

var _ repository.Store = (*Store)(nil)

func NewStore(db *sqlx.DB) *Store {
	return &Store{base: NewBaseRepository(db)}
}

func (s *Store) Users() repository.UserRepository                 { return NewUserRepository(s.base) }
func (s *Store) Hospitals() repository.HospitalRepository         { return NewHospitalRepository(s.base) }
func (s *Store) Offers() repository.OfferRepository               { return NewOfferRepository(s.base) }
func (s *Store) Bookings() repository.BookingRepository           { return NewBookingRepository(s.base) }
func (s *Store) Notifications() repository.NotificationRepository { return NewNotificationRepository(s.base) }
func (s *Store) AdminMeta() repository.AdminMetaRepository        { return NewAdminMetaRepository(s.base) }
func (s *Store) Outbox() repository.OutboxRepository              { return NewOutboxRepository(s.base) }

func (s *Store) Ping(ctx context.Context) error {
	return classify(s.base.db.PingContext(ctx))
}

func (s *Store) Close() error {
	return s.base.db.Close()
}
