package notification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/lifeblood-api/internal/email"
	"github.com/jwalitptl/lifeblood-api/internal/model"
	"github.com/jwalitptl/lifeblood-api/internal/repository"
	"github.com/jwalitptl/lifeblood-api/internal/service"
	apperrors "github.com/jwalitptl/lifeblood-api/pkg/errors"
	"github.com/jwalitptl/lifeblood-api/pkg/logger"
	"github.com/jwalitptl/lifeblood-api/pkg/metrics"
)

const defaultListLimit = 100

type Service struct {
	notifications repository.NotificationRepository
	users         repository.UserRepository
	emailSvc      email.Service
	logger        *logger.Logger
	metrics       *metrics.Metrics
	now           func() time.Time
}

func NewService(store repository.Store, emailSvc email.Service, log *logger.Logger, m *metrics.Metrics) *Service {
	return &Service{
		notifications: store.Notifications(),
		users:         store.Users(),
		emailSvc:      emailSvc,
		logger:        log,
		metrics:       m,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// NotifyDonorRequest tells every hospital about a new donor offer. Each write
// is independent; failures are logged and reported as a partial fan-out.
func (s *Service) NotifyDonorRequest(ctx context.Context, offer *model.Offer) error {
	hospitals, err := s.users.List(ctx, &model.UserFilters{Role: model.RoleHospital})
	if err != nil {
		return service.StoreError(err, "hospitals")
	}

	message := fmt.Sprintf("New donor request from %s", offer.DonorName)
	return s.fanOut(ctx, hospitals, func(recipient *model.User) *model.Notification {
		return &model.Notification{
			RecipientID: recipient.ID,
			Type:        model.NotificationDonorRequest,
			RefID:       offer.ID,
			Message:     message,
		}
	})
}

// NotifyDecision sends exactly one notification to the initiator of a
// decided offer.
func (s *Service) NotifyDecision(ctx context.Context, offer *model.Offer) error {
	initiator := offer.Initiator()
	if initiator == nil {
		return fmt.Errorf("offer %s has no initiator", offer.ID)
	}

	n := &model.Notification{
		RecipientID: *initiator,
		RefID:       offer.ID,
		BookingID:   offer.BookingID,
		Message:     fmt.Sprintf("%s %s your request", offer.DecidedByName, decisionVerb(offer.Status)),
	}
	switch {
	case offer.InitiatorRole == model.RoleDonor && offer.Status == model.OfferStatusAccepted:
		n.Type = model.NotificationOfferAccepted
	case offer.InitiatorRole == model.RoleDonor && offer.Status == model.OfferStatusDenied:
		n.Type = model.NotificationOfferDenied
	case offer.InitiatorRole == model.RoleHospital && offer.Status == model.OfferStatusAccepted:
		n.Type = model.NotificationHospitalRequestAccepted
	case offer.InitiatorRole == model.RoleHospital && offer.Status == model.OfferStatusDenied:
		n.Type = model.NotificationHospitalRequestDenied
	default:
		return fmt.Errorf("no notification for %s offer in status %s", offer.InitiatorRole, offer.Status)
	}

	recipient, err := s.users.Get(ctx, *initiator)
	if err != nil {
		// the record still gets written; only the email mirror needs the user
		s.logger.Warn(err, "Failed to load notification recipient", "recipient_id", *initiator)
		recipient = &model.User{ID: *initiator}
	}
	return s.deliver(ctx, recipient, n)
}

func decisionVerb(status model.OfferStatus) string {
	if status == model.OfferStatusDenied {
		return "denied"
	}
	return "accepted"
}

func (s *Service) fanOut(ctx context.Context, recipients []*model.User, build func(*model.User) *model.Notification) error {
	var (
		failed int
		errs   []error
	)
	for _, recipient := range recipients {
		n := build(recipient)
		if err := s.deliver(ctx, recipient, n); err != nil {
			failed++
			errs = append(errs, err)
			s.logger.Warn(err, "Failed to create notification",
				"recipient_id", recipient.ID,
				"type", n.Type,
				"ref_id", n.RefID)
		}
	}
	if failed > 0 {
		return apperrors.NewPartialFanout(failed, len(recipients), errors.Join(errs...))
	}
	return nil
}

func (s *Service) deliver(ctx context.Context, recipient *model.User, n *model.Notification) error {
	n.ID = uuid.New()
	n.CreatedAt = s.now()
	n.Read = false

	if err := s.notifications.Create(ctx, n); err != nil {
		s.metrics.Notifications.WithLabelValues(string(n.Type), "failed").Inc()
		return fmt.Errorf("failed to create notification: %w", err)
	}
	s.metrics.Notifications.WithLabelValues(string(n.Type), "created").Inc()

	if recipient.EmailEnabled && recipient.Email != "" {
		if err := s.emailSvc.SendNotification(ctx, recipient.Email, subjectFor(n.Type), n.Message); err != nil {
			s.logger.Warn(err, "Failed to mirror notification by email", "recipient_id", recipient.ID)
		}
	}
	return nil
}

func subjectFor(t model.NotificationType) string {
	switch t {
	case model.NotificationDonorRequest:
		return "New donor request"
	case model.NotificationOfferAccepted, model.NotificationHospitalRequestAccepted:
		return "Your request was accepted"
	default:
		return "Your request was denied"
	}
}

// List returns the caller's notifications, newest first.
func (s *Service) List(ctx context.Context, session model.Session, unreadOnly bool, limit int) ([]*model.Notification, error) {
	if limit <= 0 || limit > defaultListLimit {
		limit = defaultListLimit
	}
	items, err := s.notifications.List(ctx, &model.NotificationFilters{
		RecipientID: session.UserID,
		UnreadOnly:  unreadOnly,
		Limit:       limit,
	})
	if err != nil {
		return nil, service.StoreError(err, "notifications")
	}
	return items, nil
}

func (s *Service) UnreadCount(ctx context.Context, session model.Session) (int, error) {
	count, err := s.notifications.CountUnread(ctx, session.UserID)
	if err != nil {
		return 0, service.StoreError(err, "notifications")
	}
	return count, nil
}

// MarkRead flags one notification as read. Only its recipient may do so.
func (s *Service) MarkRead(ctx context.Context, session model.Session, id uuid.UUID) error {
	n, err := s.notifications.Get(ctx, id)
	if err != nil {
		return service.StoreError(err, "notification")
	}
	if n.RecipientID != session.UserID {
		return apperrors.Forbidden("notification belongs to another user")
	}
	if n.Read {
		return nil
	}
	if err := s.notifications.MarkRead(ctx, id); err != nil {
		return service.StoreError(err, "notification")
	}
	return nil
}

func (s *Service) MarkAllRead(ctx context.Context, session model.Session) (int, error) {
	n, err := s.notifications.MarkAllRead(ctx, session.UserID)
	if err != nil {
		return 0, service.StoreError(err, "notifications")
	}
	return n, nil
}
