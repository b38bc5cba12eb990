// Package auth is the identity provider: sign-up, sign-in, sign-out and
// token resolution into an explicit session.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/jwalitptl/lifeblood-api/internal/model"
	"github.com/jwalitptl/lifeblood-api/internal/repository"
	"github.com/jwalitptl/lifeblood-api/internal/service"
	"github.com/jwalitptl/lifeblood-api/pkg/auth"
	apperrors "github.com/jwalitptl/lifeblood-api/pkg/errors"
	"github.com/jwalitptl/lifeblood-api/pkg/logger"
	"github.com/jwalitptl/lifeblood-api/pkg/security"
	"github.com/jwalitptl/lifeblood-api/pkg/validator"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTokenRevoked       = errors.New("token revoked")
)

type Service struct {
	users      repository.UserRepository
	jwtSvc     auth.JWTService
	hasher     security.PasswordHasher
	validator  *validator.Validator
	revoked    *cache.Cache
	adminEmail string
	logger     *logger.Logger
}

func NewService(users repository.UserRepository, jwtSvc auth.JWTService, hasher security.PasswordHasher,
	v *validator.Validator, adminEmail string, log *logger.Logger) *Service {
	return &Service{
		users:      users,
		jwtSvc:     jwtSvc,
		hasher:     hasher,
		validator:  v,
		revoked:    cache.New(24*time.Hour, 10*time.Minute),
		adminEmail: normalizeEmail(adminEmail),
		logger:     log,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *Service) SignUp(ctx context.Context, req *model.SignUpRequest) (*model.TokenResponse, error) {
	req.Email = normalizeEmail(req.Email)
	fields, err := s.validator.Fields(req)
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	if fields == nil {
		fields = make(map[string]string)
	}
	if req.Email != "" && req.Email == s.adminEmail {
		fields["email"] = "This email address is reserved."
	}
	if req.Role == model.RoleHospital && strings.TrimSpace(req.Profile.HospitalName) == "" {
		fields["profile.hospitalName"] = "Hospital name is required."
	}
	if len(fields) > 0 {
		return nil, apperrors.NewValidation(fields)
	}

	hash, err := s.hasher.Hash(req.Password)
	switch {
	case errors.Is(err, security.ErrPasswordTooShort), errors.Is(err, security.ErrPasswordTooLong):
		return nil, apperrors.NewValidation(map[string]string{"password": passwordMessage(err)})
	case err != nil:
		return nil, apperrors.NewInternal(fmt.Errorf("failed to hash password: %w", err))
	}

	user := &model.User{
		ID:              uuid.New(),
		Email:           req.Email,
		Role:            req.Role,
		PasswordHash:    hash,
		Name:            strings.TrimSpace(req.Profile.Name),
		Phone:           strings.TrimSpace(req.Profile.Phone),
		HospitalName:    strings.TrimSpace(req.Profile.HospitalName),
		HospitalAddress: strings.TrimSpace(req.Profile.HospitalAddress),
		EmailEnabled:    true,
	}

	var hospital *model.HospitalRecord
	switch req.Role {
	case model.RoleDonor:
		user.Eligible = model.EligibilityPending
		if req.Profile.BloodType != "" {
			user.BloodType = validator.NormalizeBloodType(req.Profile.BloodType)
		}
	case model.RoleHospital:
		hospital = &model.HospitalRecord{
			ID:       user.ID,
			Name:     user.HospitalName,
			Address:  user.HospitalAddress,
			Phone:    user.Phone,
			Email:    user.Email,
			Verified: model.VerificationPending,
		}
	}

	if err := s.users.Register(ctx, user, hospital); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperrors.NewValidation(map[string]string{"email": "This email is already registered."})
		}
		return nil, service.StoreError(err, "user")
	}

	s.logger.Info("User registered", "user_id", user.ID, "role", user.Role)
	return s.issue(user)
}

func (s *Service) SignIn(ctx context.Context, req *model.SignInRequest) (*model.TokenResponse, error) {
	req.Email = normalizeEmail(req.Email)
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	user, err := s.users.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.Unauthorized(ErrInvalidCredentials)
		}
		return nil, service.StoreError(err, "user")
	}
	if err := s.hasher.Compare(user.PasswordHash, req.Password); err != nil {
		return nil, apperrors.Unauthorized(ErrInvalidCredentials)
	}
	if s.hasher.NeedsRehash(user.PasswordHash) {
		s.rehash(ctx, user, req.Password)
	}
	return s.issue(user)
}

// rehash upgrades a stored hash to the current cost. Failure only delays the
// upgrade to the next sign-in.
func (s *Service) rehash(ctx context.Context, user *model.User, password string) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		s.logger.Warn(err, "Failed to rehash password", "user_id", user.ID)
		return
	}
	updated := *user
	updated.PasswordHash = hash
	if err := s.users.Update(ctx, &updated); err != nil {
		s.logger.Warn(err, "Failed to store rehashed password", "user_id", user.ID)
		return
	}
	user.PasswordHash = hash
}

func passwordMessage(err error) string {
	if errors.Is(err, security.ErrPasswordTooLong) {
		return "Password is too long."
	}
	return "Password must be at least 8 characters."
}

// SignOut revokes the token until it would have expired anyway.
func (s *Service) SignOut(ctx context.Context, token string) error {
	claims, err := s.jwtSvc.ValidateToken(token)
	if err != nil {
		return apperrors.Unauthorized(err)
	}
	ttl := time.Until(claims.ExpiresAt.Time)
	if ttl <= 0 {
		return nil
	}
	s.revoked.Set(claims.ID, struct{}{}, ttl)
	return nil
}

// Authenticate resolves a bearer token into the caller's session.
func (s *Service) Authenticate(ctx context.Context, token string) (model.Session, error) {
	claims, err := s.jwtSvc.ValidateToken(token)
	if err != nil {
		return model.Session{}, apperrors.Unauthorized(err)
	}
	if _, revoked := s.revoked.Get(claims.ID); revoked {
		return model.Session{}, apperrors.Unauthorized(ErrTokenRevoked)
	}
	session, err := claims.Session()
	if err != nil {
		return model.Session{}, apperrors.Unauthorized(err)
	}
	return session, nil
}

// CurrentUser loads the full record behind a session.
func (s *Service) CurrentUser(ctx context.Context, session model.Session) (*model.User, error) {
	user, err := s.users.Get(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.Unauthorized(err)
		}
		return nil, service.StoreError(err, "user")
	}
	return user, nil
}

// EnsureAdmin creates the configured admin account if it does not exist yet.
func (s *Service) EnsureAdmin(ctx context.Context, password string) error {
	if s.adminEmail == "" {
		return nil
	}
	existing, err := s.users.GetByEmail(ctx, s.adminEmail)
	switch {
	case err == nil:
		if existing.Role != model.RoleAdmin {
			return fmt.Errorf("admin email %s belongs to a %s account", s.adminEmail, existing.Role)
		}
		return nil
	case !errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("failed to look up admin: %w", err)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}
	admin := &model.User{
		ID:           uuid.New(),
		Email:        s.adminEmail,
		Role:         model.RoleAdmin,
		PasswordHash: hash,
		Name:         "Administrator",
		Verified:     true,
	}
	if err := s.users.Register(ctx, admin, nil); err != nil {
		return fmt.Errorf("failed to create admin: %w", err)
	}
	s.logger.Info("Admin account seeded", "email", s.adminEmail)
	return nil
}

func (s *Service) issue(user *model.User) (*model.TokenResponse, error) {
	token, claims, err := s.jwtSvc.GenerateAccessToken(user)
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	return &model.TokenResponse{
		AccessToken: token,
		ExpiresAt:   claims.ExpiresAt.Time,
		User:        user,
	}, nil
}
