// Package memory is an in-process document store. All collections share one
// lock, so every operation, including offer mutations, is linearizable.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/lifeblood-api/internal/model"
	"github.com/jwalitptl/lifeblood-api/internal/repository"
	"github.com/jwalitptl/lifeblood-api/pkg/logger"
)

// Publisher receives change events after a write is applied.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) error
}

// Op describes a store access handed to a FaultFunc.
type Op struct {
	Collection string
	Action     string
	ID         uuid.UUID
	Doc        interface{}
}

// FaultFunc lets callers inject failures. A non-nil return aborts the access.
type FaultFunc func(op Op) error

type Store struct {
	mu            sync.Mutex
	users         map[uuid.UUID]*model.User
	hospitals     map[uuid.UUID]*model.HospitalRecord
	offers        map[uuid.UUID]*model.Offer
	bookings      map[uuid.UUID]*model.Booking
	notifications map[uuid.UUID]*model.Notification
	adminMeta     map[string]*model.AdminMeta

	fault     FaultFunc
	publisher Publisher
	logger    *logger.Logger
}

var _ repository.Store = (*Store)(nil)

func New(publisher Publisher, log *logger.Logger) *Store {
	if log == nil {
		log = logger.Nop()
	}
	return &Store{
		users:         make(map[uuid.UUID]*model.User),
		hospitals:     make(map[uuid.UUID]*model.HospitalRecord),
		offers:        make(map[uuid.UUID]*model.Offer),
		bookings:      make(map[uuid.UUID]*model.Booking),
		notifications: make(map[uuid.UUID]*model.Notification),
		adminMeta:     make(map[string]*model.AdminMeta),
		publisher:     publisher,
		logger:        log,
	}
}

// SetFault installs fn as the failure injector; nil removes it.
func (s *Store) SetFault(fn FaultFunc) {
	s.mu.Lock()
	s.fault = fn
	s.mu.Unlock()
}

func (s *Store) Users() repository.UserRepository                 { return &userRepository{s} }
func (s *Store) Hospitals() repository.HospitalRepository         { return &hospitalRepository{s} }
func (s *Store) Offers() repository.OfferRepository               { return &offerRepository{s} }
func (s *Store) Bookings() repository.BookingRepository           { return &bookingRepository{s} }
func (s *Store) Notifications() repository.NotificationRepository { return &notificationRepository{s} }
func (s *Store) AdminMeta() repository.AdminMetaRepository        { return &adminMetaRepository{s} }

func (s *Store) Ping(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.check(Op{Collection: "store", Action: "ping"})
}

func (s *Store) Close() error { return nil }

// check must be called with s.mu held.
func (s *Store) check(op Op) error {
	if s.fault == nil {
		return nil
	}
	return s.fault(op)
}

// emit publishes change events. Called after s.mu is released.
func (s *Store) emit(ctx context.Context, events ...model.ChangeEvent) {
	if s.publisher == nil {
		return
	}
	for _, ev := range events {
		if err := s.publisher.Publish(ctx, model.ChangeChannel(ev.Collection), ev); err != nil {
			s.logger.Warn(err, "Failed to publish change event",
				"collection", ev.Collection,
				"document_id", ev.DocumentID)
		}
	}
}

func change(collection string, id uuid.UUID, op model.ChangeOp) model.ChangeEvent {
	return model.ChangeEvent{Collection: collection, DocumentID: id.String(), Op: op, At: time.Now().UTC()}
}

func stamp(created, updated *time.Time) {
	now := time.Now().UTC()
	if created.IsZero() {
		*created = now
	}
	*updated = now
}

// users

type userRepository struct{ *Store }

func cloneUser(u *model.User) *model.User {
	out := *u
	return &out
}

func cloneHospital(h *model.HospitalRecord) *model.HospitalRecord {
	out := *h
	return &out
}

func (r *userRepository) Register(ctx context.Context, user *model.User, hospital *model.HospitalRecord) error {
	events, err := func() ([]model.ChangeEvent, error) {
		r.mu.Lock()
		defer r.mu.Unlock()

		if err := r.check(Op{Collection: model.CollectionUsers, Action: "create", ID: user.ID, Doc: user}); err != nil {
			return nil, err
		}
		for _, u := range r.users {
			if strings.EqualFold(u.Email, user.Email) {
				return nil, repository.ErrDuplicate
			}
		}
		if user.ID == uuid.Nil {
			user.ID = uuid.New()
		}
		stamp(&user.CreatedAt, &user.UpdatedAt)
		r.users[user.ID] = cloneUser(user)
		events := []model.ChangeEvent{change(model.CollectionUsers, user.ID, model.ChangeCreate)}

		if hospital != nil {
			hospital.ID = user.ID
			stamp(&hospital.CreatedAt, &hospital.UpdatedAt)
			r.hospitals[hospital.ID] = cloneHospital(hospital)
			events = append(events, change(model.CollectionHospitals, hospital.ID, model.ChangeCreate))
		}
		return events, nil
	}()
	if err != nil {
		return err
	}
	r.emit(ctx, events...)
	return nil
}

func (r *userRepository) Get(ctx context.Context, id uuid.UUID) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.check(Op{Collection: model.CollectionUsers, Action: "get", ID: id}); err != nil {
		return nil, err
	}
	u, ok := r.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneUser(u), nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.check(Op{Collection: model.CollectionUsers, Action: "get"}); err != nil {
		return nil, err
	}
	for _, u := range r.users {
		if strings.EqualFold(u.Email, email) {
			return cloneUser(u), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *userRepository) Update(ctx context.Context, user *model.User) error {
	err := func() error {
		r.mu.Lock()
		defer r.mu.Unlock()
		if err := r.check(Op{Collection: model.CollectionUsers, Action: "update", ID: user.ID, Doc: user}); err != nil {
			return err
		}
		if _, ok := r.users[user.ID]; !ok {
			return repository.ErrNotFound
		}
		user.UpdatedAt = time.Now().UTC()
		r.users[user.ID] = cloneUser(user)
		return nil
	}()
	if err != nil {
		return err
	}
	r.emit(ctx, change(model.CollectionUsers, user.ID, model.ChangeUpdate))
	return nil
}

func (r *userRepository) Delete(ctx context.Context, id uuid.UUID) error {
	events, err := func() ([]model.ChangeEvent, error) {
		r.mu.Lock()
		defer r.mu.Unlock()
		if err := r.check(Op{Collection: model.CollectionUsers, Action: "delete", ID: id}); err != nil {
			return nil, err
		}
		if _, ok := r.users[id]; !ok {
			return nil, repository.ErrNotFound
		}
		delete(r.users, id)
		events := []model.ChangeEvent{change(model.CollectionUsers, id, model.ChangeDelete)}
		if _, ok := r.hospitals[id]; ok {
			delete(r.hospitals, id)
			events = append(events, change(model.CollectionHospitals, id, model.ChangeDelete))
		}
		return events, nil
	}()
	if err != nil {
		return err
	}
	r.emit(ctx, events...)
	return nil
}

func (r *userRepository) List(ctx context.Context, filters *model.UserFilters) ([]*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.check(Op{Collection: model.CollectionUsers, Action: "list"}); err != nil {
		return nil, err
	}
	out := make([]*model.User, 0, len(r.users))
	for _, u := range r.users {
		if filters != nil && filters.Role != "" && u.Role != filters.Role {
			continue
		}
		out = append(out, cloneUser(u))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// hospitals

type hospitalRepository struct{ *Store }

func (r *hospitalRepository) Get(ctx context.Context, id uuid.UUID) (*model.HospitalRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.check(Op{Collection: model.CollectionHospitals, Action: "get", ID: id}); err != nil {
		return nil, err
	}
	h, ok := r.hospitals[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneHospital(h), nil
}

func (r *hospitalRepository) List(ctx context.Context, filters *model.HospitalFilters) ([]*model.HospitalRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.check(Op{Collection: model.CollectionHospitals, Action: "list"}); err != nil {
		return nil, err
	}
	out := make([]*model.HospitalRecord, 0, len(r.hospitals))
	for _, h := range r.hospitals {
		if filters != nil {
			if filters.Verified != "" && h.Verified != filters.Verified {
				continue
			}
			if filters.CreatedAfter != nil && !h.CreatedAt.After(*filters.CreatedAfter) {
				continue
			}
		}
		out = append(out, cloneHospital(h))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (r *hospitalRepository) SetVerification(ctx context.Context, id uuid.UUID, status model.VerificationStatus) (*model.HospitalRecord, error) {
	var (
		out    *model.HospitalRecord
		events []model.ChangeEvent
	)
	err := func() error {
		r.mu.Lock()
		defer r.mu.Unlock()
		if err := r.check(Op{Collection: model.CollectionHospitals, Action: "update", ID: id}); err != nil {
			return err
		}
		h, ok := r.hospitals[id]
		if !ok {
			return repository.ErrNotFound
		}
		now := time.Now().UTC()
		h.Verified = status
		h.UpdatedAt = now
		out = cloneHospital(h)
		events = append(events, change(model.CollectionHospitals, id, model.ChangeUpdate))

		if u, ok := r.users[id]; ok {
			u.Verified = status == model.VerificationAccepted
			u.UpdatedAt = now
			events = append(events, change(model.CollectionUsers, id, model.ChangeUpdate))
		}
		return nil
	}()
	if err != nil {
		return nil, err
	}
	r.emit(ctx, events...)
	return out, nil
}

// offers

type offerRepository struct{ *Store }

func (r *offerRepository) Create(ctx context.Context, offer *model.Offer) error {
	err := func() error {
		r.mu.Lock()
		defer r.mu.Unlock()
		if err := r.check(Op{Collection: model.CollectionOffers, Action: "create", ID: offer.ID, Doc: offer}); err != nil {
			return err
		}
		if offer.ID == uuid.Nil {
			offer.ID = uuid.New()
		}
		if _, exists := r.offers[offer.ID]; exists {
			return repository.ErrDuplicate
		}
		stamp(&offer.CreatedAt, &offer.UpdatedAt)
		r.offers[offer.ID] = offer.Clone()
		return nil
	}()
	if err != nil {
		return err
	}
	r.emit(ctx, change(model.CollectionOffers, offer.ID, model.ChangeCreate))
	return nil
}

func (r *offerRepository) Get(ctx context.Context, id uuid.UUID) (*model.Offer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.check(Op{Collection: model.CollectionOffers, Action: "get", ID: id}); err != nil {
		return nil, err
	}
	o, ok := r.offers[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return o.Clone(), nil
}

func (r *offerRepository) List(ctx context.Context, filters *model.OfferFilters) ([]*model.Offer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.check(Op{Collection: model.CollectionOffers, Action: "list"}); err != nil {
		return nil, err
	}
	out := make([]*model.Offer, 0)
	for _, o := range r.offers {
		if filters != nil && !filters.Matches(o) {
			continue
		}
		out = append(out, o.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if filters != nil && filters.Limit > 0 && len(out) > filters.Limit {
		out = out[:filters.Limit]
	}
	return out, nil
}

func (r *offerRepository) Mutate(ctx context.Context, id uuid.UUID, fn repository.OfferMutation) (*model.Offer, error) {
	var events []model.ChangeEvent
	result, err := func() (*model.Offer, error) {
		r.mu.Lock()
		defer r.mu.Unlock()

		if err := r.check(Op{Collection: model.CollectionOffers, Action: "mutate", ID: id}); err != nil {
			return nil, err
		}
		current, ok := r.offers[id]
		if !ok {
			return nil, repository.ErrNotFound
		}

		working := current.Clone()
		tx := &offerTx{store: r.Store, statuses: make(map[uuid.UUID]model.BookingStatus)}
		if err := fn(ctx, tx, working); err != nil {
			return nil, err
		}

		now := time.Now().UTC()
		for _, b := range tx.created {
			r.bookings[b.ID] = b
			events = append(events, change(model.CollectionBookings, b.ID, model.ChangeCreate))
		}
		for bid, status := range tx.statuses {
			if b, ok := r.bookings[bid]; ok {
				b.Status = status
				b.UpdatedAt = now
				events = append(events, change(model.CollectionBookings, bid, model.ChangeUpdate))
			}
		}
		working.ID = id
		working.UpdatedAt = now
		r.offers[id] = working.Clone()
		events = append(events, change(model.CollectionOffers, id, model.ChangeUpdate))
		return working, nil
	}()
	if err != nil {
		return nil, err
	}
	r.emit(ctx, events...)
	return result, nil
}

// offerTx stages booking writes until the mutation succeeds. Its methods run
// while the store lock is held by Mutate.
type offerTx struct {
	store    *Store
	created  []*model.Booking
	statuses map[uuid.UUID]model.BookingStatus
}

func (tx *offerTx) CreateBooking(ctx context.Context, booking *model.Booking) error {
	if err := tx.store.check(Op{Collection: model.CollectionBookings, Action: "create", ID: booking.ID, Doc: booking}); err != nil {
		return err
	}
	if booking.ID == uuid.Nil {
		booking.ID = uuid.New()
	}
	if _, exists := tx.store.bookings[booking.ID]; exists {
		return repository.ErrDuplicate
	}
	stamp(&booking.CreatedAt, &booking.UpdatedAt)
	tx.created = append(tx.created, booking.Clone())
	return nil
}

func (tx *offerTx) UpdateBookingStatus(ctx context.Context, id uuid.UUID, status model.BookingStatus) error {
	if err := tx.store.check(Op{Collection: model.CollectionBookings, Action: "update", ID: id}); err != nil {
		return err
	}
	for _, b := range tx.created {
		if b.ID == id {
			b.Status = status
			return nil
		}
	}
	if _, ok := tx.store.bookings[id]; !ok {
		return repository.ErrNotFound
	}
	tx.statuses[id] = status
	return nil
}

// bookings

type bookingRepository struct{ *Store }

func (r *bookingRepository) Get(ctx context.Context, id uuid.UUID) (*model.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.check(Op{Collection: model.CollectionBookings, Action: "get", ID: id}); err != nil {
		return nil, err
	}
	b, ok := r.bookings[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return b.Clone(), nil
}

func (r *bookingRepository) List(ctx context.Context, filters *model.BookingFilters) ([]*model.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.check(Op{Collection: model.CollectionBookings, Action: "list"}); err != nil {
		return nil, err
	}
	out := make([]*model.Booking, 0)
	for _, b := range r.bookings {
		if filters != nil && !filters.Matches(b) {
			continue
		}
		out = append(out, b.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// notifications

type notificationRepository struct{ *Store }

func (r *notificationRepository) Create(ctx context.Context, n *model.Notification) error {
	err := func() error {
		r.mu.Lock()
		defer r.mu.Unlock()
		if err := r.check(Op{Collection: model.CollectionNotifications, Action: "create", ID: n.ID, Doc: n}); err != nil {
			return err
		}
		if n.ID == uuid.Nil {
			n.ID = uuid.New()
		}
		if n.CreatedAt.IsZero() {
			n.CreatedAt = time.Now().UTC()
		}
		r.notifications[n.ID] = n.Clone()
		return nil
	}()
	if err != nil {
		return err
	}
	r.emit(ctx, change(model.CollectionNotifications, n.ID, model.ChangeCreate))
	return nil
}

func (r *notificationRepository) Get(ctx context.Context, id uuid.UUID) (*model.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.check(Op{Collection: model.CollectionNotifications, Action: "get", ID: id}); err != nil {
		return nil, err
	}
	n, ok := r.notifications[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return n.Clone(), nil
}

func (r *notificationRepository) List(ctx context.Context, filters *model.NotificationFilters) ([]*model.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.check(Op{Collection: model.CollectionNotifications, Action: "list"}); err != nil {
		return nil, err
	}
	out := make([]*model.Notification, 0)
	for _, n := range r.notifications {
		if filters != nil && !filters.Matches(n) {
			continue
		}
		out = append(out, n.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if filters != nil && filters.Limit > 0 && len(out) > filters.Limit {
		out = out[:filters.Limit]
	}
	return out, nil
}

func (r *notificationRepository) CountUnread(ctx context.Context, recipientID uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.check(Op{Collection: model.CollectionNotifications, Action: "count", ID: recipientID}); err != nil {
		return 0, err
	}
	count := 0
	for _, n := range r.notifications {
		if n.RecipientID == recipientID && !n.Read {
			count++
		}
	}
	return count, nil
}

func (r *notificationRepository) MarkRead(ctx context.Context, id uuid.UUID) error {
	err := func() error {
		r.mu.Lock()
		defer r.mu.Unlock()
		if err := r.check(Op{Collection: model.CollectionNotifications, Action: "update", ID: id}); err != nil {
			return err
		}
		n, ok := r.notifications[id]
		if !ok {
			return repository.ErrNotFound
		}
		n.Read = true
		return nil
	}()
	if err != nil {
		return err
	}
	r.emit(ctx, change(model.CollectionNotifications, id, model.ChangeUpdate))
	return nil
}

func (r *notificationRepository) MarkAllRead(ctx context.Context, recipientID uuid.UUID) (int, error) {
	var events []model.ChangeEvent
	err := func() error {
		r.mu.Lock()
		defer r.mu.Unlock()
		if err := r.check(Op{Collection: model.CollectionNotifications, Action: "update", ID: recipientID}); err != nil {
			return err
		}
		for id, n := range r.notifications {
			if n.RecipientID == recipientID && !n.Read {
				n.Read = true
				events = append(events, change(model.CollectionNotifications, id, model.ChangeUpdate))
			}
		}
		return nil
	}()
	if err != nil {
		return 0, err
	}
	r.emit(ctx, events...)
	return len(events), nil
}

// admin_meta

type adminMetaRepository struct{ *Store }

func (r *adminMetaRepository) Get(ctx context.Context, id string) (*model.AdminMeta, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.check(Op{Collection: model.CollectionAdminMeta, Action: "get"}); err != nil {
		return nil, err
	}
	meta, ok := r.adminMeta[id]
	if !ok {
		return &model.AdminMeta{ID: id}, nil
	}
	out := *meta
	out.LastRead = cloneTimePtr(meta.LastRead)
	return &out, nil
}

func (r *adminMetaRepository) SetLastRead(ctx context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.check(Op{Collection: model.CollectionAdminMeta, Action: "update"}); err != nil {
		return err
	}
	at = at.UTC()
	r.adminMeta[id] = &model.AdminMeta{ID: id, LastRead: &at}
	return nil
}

func cloneTimePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
