package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"electra/internal/apperr"
	"electra/internal/auth"
	"electra/internal/models"
	"electra/internal/repository"
	"electra/internal/storage"
)

// UserRepository defines the storage contract used by AuthService.
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id int64) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	ExistsWithEmail(ctx context.Context, email string) (bool, error)
	UpdatePassword(ctx context.Context, id int64, passwordHash string) error
	UpdateRole(ctx context.Context, id int64, role string) error
	UpdateVehicles(ctx context.Context, id int64, vehicles []models.Vehicle) error
}

// AuthService contains registration, login and account management logic.
type AuthService struct {
	repo   UserRepository
	hasher auth.PasswordHasher
	tokens *TokenService
	assets storage.AssetStore
	audit  *AuditRecorder
	logger *zap.Logger
}

// NewAuthService builds AuthService.
func NewAuthService(
	repo UserRepository,
	hasher auth.PasswordHasher,
	tokens *TokenService,
	assets storage.AssetStore,
	audit *AuditRecorder,
	logger *zap.Logger,
) *AuthService {
	return &AuthService{
		repo:   repo,
		hasher: hasher,
		tokens: tokens,
		assets: assets,
		audit:  audit,
		logger: logger,
	}
}

// RegisterInput carries registration data. ProfileImage is mandatory.
type RegisterInput struct {
	UserName     string
	Email        string
	Password     string
	PhoneNumber  string
	ProfileImage *storage.Upload
}

// Register creates a new account. The profile image upload happens
// before the account row is written; a failed upload aborts registration.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (*models.User, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" {
		return nil, apperr.New(apperr.KindValidation, "email is required")
	}
	if strings.TrimSpace(input.UserName) == "" {
		return nil, apperr.New(apperr.KindValidation, "user name is required")
	}
	if input.Password == "" {
		return nil, apperr.New(apperr.KindValidation, "password is required")
	}
	if input.ProfileImage == nil {
		return nil, apperr.New(apperr.KindValidation, "profile image is required")
	}

	exists, err := s.repo.ExistsWithEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, apperr.New(apperr.KindAlreadyExists, "email already registered")
	}

	imageURL, err := s.assets.Save(ctx, *input.ProfileImage)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpstreamFailure, "profile image upload failed", err)
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		UserName:        strings.TrimSpace(input.UserName),
		Email:           email,
		PasswordHash:    hash,
		PhoneNumber:     strings.TrimSpace(input.PhoneNumber),
		ProfileImageURL: imageURL,
		Role:            string(auth.RoleUser),
	}
	if err := s.repo.Create(ctx, user); err != nil {
		if removeErr := s.assets.Remove(ctx, imageURL); removeErr != nil {
			s.logger.Warn("failed to remove orphaned profile image", zap.Error(removeErr))
		}
		return nil, err
	}

	s.logger.Info("user registered", zap.Int64("user_id", user.ID), zap.String("email", user.Email))
	return user, nil
}

// Login authenticates a user and produces a JWT.
func (s *AuthService) Login(ctx context.Context, email, password string) (string, *models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return "", nil, apperr.New(apperr.KindUnauthorized, "invalid credentials")
	}

	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return "", nil, apperr.New(apperr.KindUnauthorized, "invalid credentials")
		}
		return "", nil, err
	}

	if err := s.hasher.Compare(user.PasswordHash, password); err != nil {
		return "", nil, apperr.New(apperr.KindUnauthorized, "invalid credentials")
	}

	token, err := s.tokens.GenerateToken(user.ID, user.Role)
	if err != nil {
		return "", nil, err
	}
	return token, user, nil
}

// CurrentUser returns the authenticated user's profile.
func (s *AuthService) CurrentUser(ctx context.Context, userID int64) (*models.User, error) {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, apperr.New(apperr.KindNotFound, "user not found")
		}
		return nil, err
	}
	return user, nil
}

// ChangePassword rotates the password after verifying the current one.
func (s *AuthService) ChangePassword(ctx context.Context, userID int64, currentPassword, newPassword string) error {
	if newPassword == "" {
		return apperr.New(apperr.KindValidation, "new password is required")
	}
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return apperr.New(apperr.KindNotFound, "user not found")
		}
		return err
	}
	if err := s.hasher.Compare(user.PasswordHash, currentPassword); err != nil {
		return apperr.New(apperr.KindUnauthorized, "current password is incorrect")
	}
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	return s.repo.UpdatePassword(ctx, userID, hash)
}

// AssignRole changes a user's role. Requires the assign-roles capability.
func (s *AuthService) AssignRole(ctx context.Context, actor auth.Identity, targetUserID int64, role string) (*models.User, error) {
	if !actor.HasCapability(auth.CapAssignRoles) {
		return nil, apperr.New(apperr.KindForbidden, "not allowed to assign roles")
	}
	switch auth.Role(role) {
	case auth.RoleUser, auth.RoleOperator, auth.RoleAdmin:
	default:
		return nil, apperr.Newf(apperr.KindValidation, "%q is not a valid role", role)
	}

	target, err := s.repo.GetByID(ctx, targetUserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, apperr.New(apperr.KindNotFound, "user not found")
		}
		return nil, err
	}

	previousRole := target.Role
	if err := s.repo.UpdateRole(ctx, targetUserID, role); err != nil {
		return nil, err
	}
	target.Role = role

	s.audit.Record(ctx, models.AdminActivity{
		AdminID:     actor.UserID,
		Action:      models.ActionAssignRole,
		TargetModel: "user",
		TargetID:    target.ID,
		TargetName:  target.Email,
		Before:      snapshot(map[string]string{"role": previousRole}),
		After:       snapshot(map[string]string{"role": role}),
		Severity:    models.SeverityHigh,
	})
	return target, nil
}

// AddVehicle appends a vehicle to the user's profile. The first vehicle
// becomes the default.
func (s *AuthService) AddVehicle(ctx context.Context, userID int64, vehicle models.Vehicle) (*models.User, error) {
	if strings.TrimSpace(vehicle.Make) == "" || strings.TrimSpace(vehicle.Model) == "" {
		return nil, apperr.New(apperr.KindValidation, "vehicle make and model are required")
	}
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, apperr.New(apperr.KindNotFound, "user not found")
		}
		return nil, err
	}

	if len(user.Vehicles) == 0 {
		vehicle.IsDefault = true
	} else if vehicle.IsDefault {
		for i := range user.Vehicles {
			user.Vehicles[i].IsDefault = false
		}
	}
	user.Vehicles = append(user.Vehicles, vehicle)
	if err := s.repo.UpdateVehicles(ctx, userID, user.Vehicles); err != nil {
		return nil, err
	}
	return user, nil
}
