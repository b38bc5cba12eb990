package user

import (
	"context"
	"strings"

	"github.com/jwalitptl/lifeblood-api/internal/model"
	"github.com/jwalitptl/lifeblood-api/internal/repository"
	"github.com/jwalitptl/lifeblood-api/internal/service"
	"github.com/jwalitptl/lifeblood-api/pkg/logger"
	"github.com/jwalitptl/lifeblood-api/pkg/validator"
)

// Service lets users manage their own profile and preferences.
type Service struct {
	repo      repository.UserRepository
	validator *validator.Validator
	logger    *logger.Logger
}

func NewService(repo repository.UserRepository, v *validator.Validator, log *logger.Logger) *Service {
	return &Service{
		repo:      repo,
		validator: v,
		logger:    log,
	}
}

func (s *Service) GetUser(ctx context.Context, session model.Session) (*model.User, error) {
	u, err := s.repo.Get(ctx, session.UserID)
	if err != nil {
		return nil, service.StoreError(err, "user")
	}
	return u, nil
}

// UpdatePreferences toggles notification channels. Nil fields are left alone.
func (s *Service) UpdatePreferences(ctx context.Context, session model.Session, req *model.UpdatePreferencesRequest) (*model.User, error) {
	u, err := s.repo.Get(ctx, session.UserID)
	if err != nil {
		return nil, service.StoreError(err, "user")
	}
	if req.SMSEnabled != nil {
		u.SMSEnabled = *req.SMSEnabled
	}
	if req.EmailEnabled != nil {
		u.EmailEnabled = *req.EmailEnabled
	}
	if err := s.repo.Update(ctx, u); err != nil {
		return nil, service.StoreError(err, "user")
	}
	s.logger.Info("Preferences updated", "user_id", u.ID, "sms", u.SMSEnabled, "email", u.EmailEnabled)
	return u, nil
}

// UpdateProfile edits the caller's own profile fields. Empty fields are left
// unchanged.
func (s *Service) UpdateProfile(ctx context.Context, session model.Session, req *model.UserProfile) (*model.User, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	u, err := s.repo.Get(ctx, session.UserID)
	if err != nil {
		return nil, service.StoreError(err, "user")
	}

	set := func(dst *string, v string) {
		if v = strings.TrimSpace(v); v != "" {
			*dst = v
		}
	}
	set(&u.Name, req.Name)
	set(&u.Phone, req.Phone)
	if req.BloodType != "" {
		u.BloodType = validator.NormalizeBloodType(req.BloodType)
	}
	if u.Role == model.RoleHospital {
		set(&u.HospitalName, req.HospitalName)
		set(&u.HospitalAddress, req.HospitalAddress)
	}

	if err := s.repo.Update(ctx, u); err != nil {
		return nil, service.StoreError(err, "user")
	}
	return u, nil
}
