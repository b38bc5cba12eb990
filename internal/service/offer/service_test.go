package offer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/lifeblood-api/internal/config"
	"github.com/jwalitptl/lifeblood-api/internal/email"
	"github.com/jwalitptl/lifeblood-api/internal/model"
	"github.com/jwalitptl/lifeblood-api/internal/repository"
	"github.com/jwalitptl/lifeblood-api/internal/repository/memory"
	"github.com/jwalitptl/lifeblood-api/internal/service/eligibility"
	"github.com/jwalitptl/lifeblood-api/internal/service/notification"
	apperrors "github.com/jwalitptl/lifeblood-api/pkg/errors"
	"github.com/jwalitptl/lifeblood-api/pkg/logger"
	"github.com/jwalitptl/lifeblood-api/pkg/metrics"
	"github.com/jwalitptl/lifeblood-api/pkg/validator"
)

var now = time.Date(2025, time.November, 1, 10, 0, 0, 0, time.UTC)

type fixture struct {
	store     *memory.Store
	svc       *Service
	metrics   *metrics.Metrics
	donor     *model.User
	hospitals []*model.User
}

func newFixture(t *testing.T, hospitals int) *fixture {
	t.Helper()
	ctx := context.Background()
	log := logger.Nop()
	m := metrics.NewNop()

	store := memory.New(nil, log)
	notifier := notification.NewService(store, email.NewService(config.EmailConfig{}, log), log, m)
	checker := eligibility.NewChecker(validator.New()).WithClock(func() time.Time { return now })
	svc := NewService(store, notifier, checker, log, m).WithClock(func() time.Time { return now })

	f := &fixture{store: store, svc: svc, metrics: m}

	f.donor = &model.User{ID: uuid.New(), Email: "dana@example.com", Role: model.RoleDonor, Name: "Dana"}
	require.NoError(t, store.Users().Register(ctx, f.donor, nil))

	for i := 0; i < hospitals; i++ {
		h := &model.User{
			ID:           uuid.New(),
			Email:        fmt.Sprintf("hospital%d@example.com", i),
			Role:         model.RoleHospital,
			HospitalName: fmt.Sprintf("Hospital %c", 'A'+i),
		}
		require.NoError(t, store.Users().Register(ctx, h, &model.HospitalRecord{
			Name:     h.HospitalName,
			Verified: model.VerificationAccepted,
		}))
		f.hospitals = append(f.hospitals, h)
	}
	return f
}

func session(u *model.User) model.Session {
	return model.Session{UserID: u.ID, Email: u.Email, Role: u.Role}
}

func donorRequest() *model.CreateDonorOfferRequest {
	return &model.CreateDonorOfferRequest{
		BloodType:     "o+",
		Quantity:      2,
		RequestedDate: model.NewDate(2025, time.December, 1),
		DateOfBirth:   model.NewDate(1990, time.January, 15),
		WeightKg:      72,
		Phone:         "+44 7700 900123",
	}
}

func (f *fixture) notifications(t *testing.T, recipient uuid.UUID) []*model.Notification {
	t.Helper()
	items, err := f.store.Notifications().List(context.Background(), &model.NotificationFilters{RecipientID: recipient})
	require.NoError(t, err)
	return items
}

func (f *fixture) bookings(t *testing.T) []*model.Booking {
	t.Helper()
	items, err := f.store.Bookings().List(context.Background(), nil)
	require.NoError(t, err)
	return items
}

func TestDonorOfferEndToEnd(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 2)
	hospitalA, hospitalB := f.hospitals[0], f.hospitals[1]

	offer, err := f.svc.CreateDonorOffer(ctx, session(f.donor), donorRequest())
	require.NoError(t, err)
	assert.Equal(t, model.OfferStatusRequested, offer.Status)
	assert.Equal(t, "O+", offer.BloodType)
	assert.Nil(t, offer.HospitalID)

	for _, h := range f.hospitals {
		got := f.notifications(t, h.ID)
		require.Len(t, got, 1)
		assert.Equal(t, model.NotificationDonorRequest, got[0].Type)
		assert.Equal(t, offer.ID, got[0].RefID)
		assert.Equal(t, "New donor request from Dana", got[0].Message)
	}

	accepted, err := f.svc.Accept(ctx, session(hospitalA), offer.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OfferStatusAccepted, accepted.Status)
	require.NotNil(t, accepted.HospitalID)
	assert.Equal(t, hospitalA.ID, *accepted.HospitalID)
	assert.Equal(t, now, *accepted.AcceptedAt)
	require.NoError(t, accepted.CheckInvariants())

	bookings := f.bookings(t)
	require.Len(t, bookings, 1)
	assert.Equal(t, *accepted.BookingID, bookings[0].ID)
	assert.Equal(t, 2, bookings[0].Quantity)
	assert.Equal(t, "O+", bookings[0].BloodType)
	assert.Equal(t, f.donor.ID, bookings[0].DonorID)
	assert.Equal(t, hospitalA.ID, bookings[0].HospitalID)
	assert.Equal(t, offer.ID, bookings[0].OfferID)

	donorNotes := f.notifications(t, f.donor.ID)
	require.Len(t, donorNotes, 1)
	assert.Equal(t, model.NotificationOfferAccepted, donorNotes[0].Type)
	assert.Equal(t, "Hospital A accepted your request", donorNotes[0].Message)

	_, err = f.svc.Accept(ctx, session(hospitalB), offer.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrAlreadyProcessed))
	assert.Len(t, f.bookings(t), 1)

	stored, err := f.store.Offers().Get(ctx, offer.ID)
	require.NoError(t, err)
	assert.Equal(t, hospitalA.ID, *stored.HospitalID)
}

func TestConcurrentAcceptCreatesOneBooking(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 16)

	offer, err := f.svc.CreateDonorOffer(ctx, session(f.donor), donorRequest())
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for _, h := range f.hospitals {
		wg.Add(1)
		go func(h *model.User) {
			defer wg.Done()
			_, err := f.svc.Accept(ctx, session(h), offer.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case apperrors.HasCode(err, apperrors.ErrAlreadyProcessed):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(h)
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, len(f.hospitals)-1, conflicts)
	assert.Len(t, f.bookings(t), 1)
	assert.Len(t, f.notifications(t, f.donor.ID), 1)
}

func TestDenyIsGuarded(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 2)

	offer, err := f.svc.CreateDonorOffer(ctx, session(f.donor), donorRequest())
	require.NoError(t, err)

	denied, err := f.svc.Deny(ctx, session(f.hospitals[0]), offer.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OfferStatusDenied, denied.Status)
	assert.Nil(t, denied.BookingID)
	assert.Equal(t, "Hospital A", denied.DecidedByName)
	require.NoError(t, denied.CheckInvariants())

	notes := f.notifications(t, f.donor.ID)
	require.Len(t, notes, 1)
	assert.Equal(t, model.NotificationOfferDenied, notes[0].Type)

	_, err = f.svc.Deny(ctx, session(f.hospitals[1]), offer.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrAlreadyProcessed))
	_, err = f.svc.Accept(ctx, session(f.hospitals[1]), offer.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrAlreadyProcessed))

	stored, err := f.store.Offers().Get(ctx, offer.ID)
	require.NoError(t, err)
	assert.Equal(t, denied.DeniedAt, stored.DeniedAt)
	assert.Empty(t, f.bookings(t))
}

func TestDenyAcceptedOfferLeavesItUntouched(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 2)

	offer, err := f.svc.CreateDonorOffer(ctx, session(f.donor), donorRequest())
	require.NoError(t, err)
	accepted, err := f.svc.Accept(ctx, session(f.hospitals[0]), offer.ID)
	require.NoError(t, err)

	_, err = f.svc.Deny(ctx, session(f.hospitals[1]), offer.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrAlreadyProcessed))

	stored, err := f.store.Offers().Get(ctx, offer.ID)
	require.NoError(t, err)
	assert.Equal(t, accepted, stored)
}

func TestHospitalRequestAcceptedByDonor(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1)
	hospital := f.hospitals[0]

	req, err := f.svc.CreateHospitalRequest(ctx, session(hospital), &model.CreateHospitalRequest{
		BloodType:     "AB-",
		Quantity:      3,
		RequestedDate: model.NewDate(2025, time.November, 20),
		RequestedSlot: "09:00",
		Location:      &model.Location{Text: "Ward 4"},
	})
	require.NoError(t, err)
	assert.Empty(t, f.notifications(t, f.donor.ID))

	open, err := f.svc.List(ctx, session(f.donor), ListQuery{Scope: ScopeOpen})
	require.NoError(t, err)
	require.Len(t, open, 1)

	accepted, err := f.svc.Accept(ctx, session(f.donor), req.ID)
	require.NoError(t, err)
	assert.Equal(t, f.donor.ID, *accepted.DonorID)
	assert.Equal(t, "Dana", accepted.DonorName)

	b := f.bookings(t)
	require.Len(t, b, 1)
	assert.Equal(t, "09:00", b[0].Slot)
	assert.Equal(t, "Ward 4", b[0].Location.Text)

	notes := f.notifications(t, hospital.ID)
	require.Len(t, notes, 1)
	assert.Equal(t, model.NotificationHospitalRequestAccepted, notes[0].Type)
	assert.Equal(t, "Dana accepted your request", notes[0].Message)

	open, err = f.svc.List(ctx, session(f.donor), ListQuery{Scope: ScopeOpen})
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestFulfill(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 2)

	offer, err := f.svc.CreateDonorOffer(ctx, session(f.donor), donorRequest())
	require.NoError(t, err)

	_, err = f.svc.Fulfill(ctx, session(f.hospitals[0]), offer.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrConflict))

	_, err = f.svc.Accept(ctx, session(f.hospitals[0]), offer.ID)
	require.NoError(t, err)

	_, err = f.svc.Fulfill(ctx, session(f.hospitals[1]), offer.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrForbidden))

	done, err := f.svc.Fulfill(ctx, session(f.hospitals[0]), offer.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OfferStatusFulfilled, done.Status)
	assert.NotNil(t, done.FulfilledAt)
	assert.Nil(t, done.AcceptedAt)
	require.NoError(t, done.CheckInvariants())

	b, err := f.store.Bookings().Get(ctx, *done.BookingID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingStatusFulfilled, b.Status)

	_, err = f.svc.Fulfill(ctx, session(f.hospitals[0]), offer.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrAlreadyProcessed))
}

func TestDecisionErrors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1)

	_, err := f.svc.Accept(ctx, session(f.hospitals[0]), uuid.New())
	assert.True(t, apperrors.HasCode(err, apperrors.ErrOfferNotFound))

	offer, err := f.svc.CreateDonorOffer(ctx, session(f.donor), donorRequest())
	require.NoError(t, err)

	// donors decide hospital requests, not donor offers
	_, err = f.svc.Accept(ctx, session(f.donor), offer.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrForbidden))

	f.store.SetFault(func(op memory.Op) error {
		if op.Action == "mutate" {
			return repository.ErrUnavailable
		}
		return nil
	})
	_, err = f.svc.Accept(ctx, session(f.hospitals[0]), offer.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrStoreUnavailable))
	f.store.SetFault(nil)

	stored, err := f.store.Offers().Get(ctx, offer.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OfferStatusRequested, stored.Status)
	assert.Empty(t, f.bookings(t))
}

func TestBookingFailureRollsBackAccept(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1)

	offer, err := f.svc.CreateDonorOffer(ctx, session(f.donor), donorRequest())
	require.NoError(t, err)

	f.store.SetFault(func(op memory.Op) error {
		if op.Collection == model.CollectionBookings && op.Action == "create" {
			return errors.New("disk full")
		}
		return nil
	})
	_, err = f.svc.Accept(ctx, session(f.hospitals[0]), offer.ID)
	require.Error(t, err)
	f.store.SetFault(nil)

	stored, err := f.store.Offers().Get(ctx, offer.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OfferStatusRequested, stored.Status)
	assert.Nil(t, stored.BookingID)
	assert.Empty(t, f.bookings(t))
}

func TestFanOutFailureDoesNotBlockOffer(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 3)
	failing := f.hospitals[1].ID

	f.store.SetFault(func(op memory.Op) error {
		if n, ok := op.Doc.(*model.Notification); ok && op.Action == "create" && n.RecipientID == failing {
			return errors.New("write rejected")
		}
		return nil
	})

	offer, err := f.svc.CreateDonorOffer(ctx, session(f.donor), donorRequest())
	require.NoError(t, err)

	assert.Len(t, f.notifications(t, f.hospitals[0].ID), 1)
	assert.Empty(t, f.notifications(t, failing))
	assert.Len(t, f.notifications(t, f.hospitals[2].ID), 1)

	_, err = f.store.Offers().Get(ctx, offer.ID)
	assert.NoError(t, err)
}

func TestInvalidOfferNeverReachesStore(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1)

	req := donorRequest()
	req.WeightKg = 45
	_, err := f.svc.CreateDonorOffer(ctx, session(f.donor), req)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrValidation))

	items, err := f.store.Offers().List(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Empty(t, f.notifications(t, f.hospitals[0].ID))
}

func TestListAndGetVisibility(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 2)

	offer, err := f.svc.CreateDonorOffer(ctx, session(f.donor), donorRequest())
	require.NoError(t, err)

	mine, err := f.svc.List(ctx, session(f.donor), ListQuery{Scope: ScopeMine})
	require.NoError(t, err)
	require.Len(t, mine, 1)

	_, err = f.svc.List(ctx, session(f.donor), ListQuery{Scope: ScopeAll})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrForbidden))

	_, err = f.svc.Get(ctx, session(f.hospitals[1]), offer.ID)
	require.NoError(t, err)

	_, err = f.svc.Accept(ctx, session(f.hospitals[0]), offer.ID)
	require.NoError(t, err)

	// once decided, only the two parties see it
	_, err = f.svc.Get(ctx, session(f.hospitals[1]), offer.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrOfferNotFound))
	_, err = f.svc.Get(ctx, session(f.hospitals[0]), offer.ID)
	assert.NoError(t, err)
}

// cancellingStore makes writes fail once their context is done, as the
// database driver does, and cancels the caller right after an offer commits.
type cancellingStore struct {
	*memory.Store
	cancel context.CancelFunc
}

func (s *cancellingStore) Users() repository.UserRepository {
	return ctxUsers{s.Store.Users()}
}

func (s *cancellingStore) Offers() repository.OfferRepository {
	return &cancelAfterCommit{OfferRepository: s.Store.Offers(), store: s}
}

func (s *cancellingStore) Notifications() repository.NotificationRepository {
	return ctxNotifications{s.Store.Notifications()}
}

type ctxUsers struct{ repository.UserRepository }

func (r ctxUsers) Get(ctx context.Context, id uuid.UUID) (*model.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.UserRepository.Get(ctx, id)
}

func (r ctxUsers) List(ctx context.Context, filters *model.UserFilters) ([]*model.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.UserRepository.List(ctx, filters)
}

type ctxNotifications struct{ repository.NotificationRepository }

func (r ctxNotifications) Create(ctx context.Context, n *model.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.NotificationRepository.Create(ctx, n)
}

type cancelAfterCommit struct {
	repository.OfferRepository
	store *cancellingStore
}

func (r *cancelAfterCommit) Create(ctx context.Context, offer *model.Offer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	defer r.store.cancel()
	return r.OfferRepository.Create(ctx, offer)
}

func (r *cancelAfterCommit) Mutate(ctx context.Context, id uuid.UUID, fn repository.OfferMutation) (*model.Offer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	defer r.store.cancel()
	return r.OfferRepository.Mutate(ctx, id, fn)
}

func TestClientDisconnectAfterCommitStillNotifies(t *testing.T) {
	f := newFixture(t, 3)
	log := logger.Nop()
	m := metrics.NewNop()

	reqCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store := &cancellingStore{Store: f.store, cancel: cancel}
	notifier := notification.NewService(store, email.NewService(config.EmailConfig{}, log), log, m)
	checker := eligibility.NewChecker(validator.New()).WithClock(func() time.Time { return now })
	svc := NewService(store, notifier, checker, log, m).WithClock(func() time.Time { return now })

	offer, err := svc.CreateDonorOffer(reqCtx, session(f.donor), donorRequest())
	require.NoError(t, err)
	require.Error(t, reqCtx.Err())
	for _, h := range f.hospitals {
		got := f.notifications(t, h.ID)
		require.Len(t, got, 1, "hospital %s", h.HospitalName)
		assert.Equal(t, offer.ID, got[0].RefID)
	}

	// A fresh request that is dropped once the accept commits.
	reqCtx, cancel = context.WithCancel(context.Background())
	defer cancel()
	store.cancel = cancel

	accepted, err := svc.Accept(reqCtx, session(f.hospitals[0]), offer.ID)
	require.NoError(t, err)
	require.Error(t, reqCtx.Err())
	assert.Equal(t, model.OfferStatusAccepted, accepted.Status)
	require.Len(t, f.bookings(t), 1)

	donorNotes := f.notifications(t, f.donor.ID)
	require.Len(t, donorNotes, 1)
	assert.Equal(t, model.NotificationOfferAccepted, donorNotes[0].Type)
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var pb dto.Metric
	require.NoError(t, c.Write(&pb))
	return pb.GetCounter().GetValue()
}

func TestAcceptConflictsCountsOnlyAccepts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 2)
	hospitalA, hospitalB := f.hospitals[0], f.hospitals[1]

	offer, err := f.svc.CreateDonorOffer(ctx, session(f.donor), donorRequest())
	require.NoError(t, err)
	_, err = f.svc.Accept(ctx, session(hospitalA), offer.ID)
	require.NoError(t, err)

	_, err = f.svc.Deny(ctx, session(hospitalB), offer.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrAlreadyProcessed))
	assert.Zero(t, counterValue(t, f.metrics.AcceptConflicts))

	_, err = f.svc.Accept(ctx, session(hospitalB), offer.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrAlreadyProcessed))
	assert.Equal(t, float64(1), counterValue(t, f.metrics.AcceptConflicts))

	_, err = f.svc.Accept(ctx, session(f.donor), offer.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrAlreadyProcessed))
	assert.Equal(t, float64(2), counterValue(t, f.metrics.AcceptConflicts))
}
