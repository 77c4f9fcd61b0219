package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"pressiotrack/internal/auth"
	"pressiotrack/internal/mail"
	"pressiotrack/internal/models"
	"pressiotrack/internal/storage"
)

type RegisterInput struct {
	Name     string
	Email    string
	Password string
	Role     models.Role
	Phone    string
	Age      int
}

type ProfileInput struct {
	Name  string
	Email string
	Phone string
	Age   int
	// Systolic and Diastolic replace the baseline when both are set.
	Systolic  *int
	Diastolic *int
	// UnknownBaseline resets the baseline to the defaults.
	UnknownBaseline bool
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *service) Register(ctx context.Context, in RegisterInput) (models.User, string, error) {
	const op = "service.Register"

	in.Name = strings.TrimSpace(in.Name)
	in.Email = normalizeEmail(in.Email)

	switch {
	case in.Name == "" || in.Email == "" || in.Phone == "":
		return models.User{}, "", fmt.Errorf("%s: %w", op, invalid("all fields are required"))
	case len(in.Password) < minPasswordLength:
		return models.User{}, "", fmt.Errorf("%s: %w", op, invalid("password must have at least %d characters", minPasswordLength))
	case in.Age < 0:
		return models.User{}, "", fmt.Errorf("%s: %w", op, invalid("age must not be negative"))
	}

	switch in.Role {
	case models.RolePatient, models.RoleCaregiver:
	case models.RoleAdmin:
		return models.User{}, "", fmt.Errorf("%s: %w", op, invalid("role %s cannot be self-assigned", in.Role))
	default:
		return models.User{}, "", fmt.Errorf("%s: %w", op, invalid("unknown role %q", in.Role))
	}

	passwordHash, err := auth.HashPassword(in.Password)
	if err != nil {
		return models.User{}, "", fmt.Errorf("%s: %w", op, err)
	}

	id, err := s.storage.CreateUser(ctx, models.User{
		Name:  in.Name,
		Email: in.Email,
		Phone: in.Phone,
		Age:   in.Age,
		Role:  in.Role,
	}, passwordHash)
	if errors.Is(err, storage.ErrAlreadyExists) {
		return models.User{}, "", fmt.Errorf("%s: %w", op, ErrConflict)
	}
	if err != nil {
		return models.User{}, "", fmt.Errorf("%s: %w", op, err)
	}

	user, err := s.storage.GetUserByID(ctx, id)
	if err != nil {
		return models.User{}, "", fmt.Errorf("%s: %w", op, err)
	}

	token, err := s.signer.GenerateJWT(user)
	if err != nil {
		return models.User{}, "", fmt.Errorf("%s: %w", op, err)
	}

	return user, token, nil
}

func (s *service) Login(ctx context.Context, email, password string) (models.User, string, error) {
	const op = "service.Login"

	userCredentials, err := s.storage.GetCredentialsByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, storage.ErrNotFound) {
		return models.User{}, "", fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}
	if err != nil {
		return models.User{}, "", fmt.Errorf("%s: %w", op, err)
	}

	if ok := auth.CheckPasswordHash(userCredentials.PasswordHash, password); !ok {
		return models.User{}, "", fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	user, err := s.storage.GetUserByID(ctx, userCredentials.UserID)
	if err != nil {
		return models.User{}, "", fmt.Errorf("%s: %w", op, err)
	}

	jwtToken, err := s.signer.GenerateJWT(user)
	if err != nil {
		return models.User{}, "", fmt.Errorf("%s: %w", op, err)
	}

	return user, jwtToken, nil
}

// ParseSession verifies a session token and reloads the user it names. The
// returned claims carry the stored role, so a role change applies to tokens
// issued before it. A deleted user's token is invalid.
func (s *service) ParseSession(ctx context.Context, token string) (*auth.Claims, error) {
	const op = "service.ParseSession"

	claims, err := s.signer.ParseJWT(token)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	user, err := s.storage.GetUserByID(ctx, claims.UserID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	claims.Role = user.Role
	claims.Name = user.Name
	claims.Email = user.Email

	return claims, nil
}

func (s *service) SessionTTL() time.Duration {
	return s.signer.SessionTTL()
}

// GetProfile returns the user with their baseline, creating the default
// baseline on first access.
func (s *service) GetProfile(ctx context.Context, userID int64) (models.Profile, error) {
	const op = "service.GetProfile"

	user, err := s.storage.GetUserByID(ctx, userID)
	if err != nil {
		return models.Profile{}, fmt.Errorf("%s: %w", op, mapNotFound(err))
	}

	baseline, err := s.storage.GetBaseline(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		baseline = models.DefaultBaseline(userID)
		baseline.DefinedAt = s.now().UTC()
		err = s.storage.UpsertBaseline(ctx, baseline)
	}
	if err != nil {
		return models.Profile{}, fmt.Errorf("%s: %w", op, err)
	}

	profile := models.Profile{User: user, Baseline: baseline}

	if user.CaregiverID != nil {
		caregiver, err := s.storage.GetUserByID(ctx, *user.CaregiverID)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return models.Profile{}, fmt.Errorf("%s: %w", op, err)
		}
		if err == nil {
			summary := caregiver.Summary()
			profile.Caregiver = &summary
		}
	}

	return profile, nil
}

// UpdateProfile changes contact data and, optionally, the baseline. Stored
// readings keep the status they were classified with.
func (s *service) UpdateProfile(ctx context.Context, userID int64, in ProfileInput) (models.Profile, error) {
	const op = "service.UpdateProfile"

	in.Name = strings.TrimSpace(in.Name)
	in.Email = normalizeEmail(in.Email)
	if in.Name == "" || in.Email == "" || in.Phone == "" {
		return models.Profile{}, fmt.Errorf("%s: %w", op, invalid("all fields are required"))
	}
	if in.Age < 0 {
		return models.Profile{}, fmt.Errorf("%s: %w", op, invalid("age must not be negative"))
	}

	var baseline *models.Baseline
	switch {
	case in.UnknownBaseline:
		b := models.DefaultBaseline(userID)
		baseline = &b
	case in.Systolic != nil && in.Diastolic != nil:
		if *in.Systolic <= 0 || *in.Diastolic <= 0 {
			return models.Profile{}, fmt.Errorf("%s: %w", op, invalid("baseline values must be positive"))
		}
		baseline = &models.Baseline{UserID: userID, Systolic: *in.Systolic, Diastolic: *in.Diastolic}
	case in.Systolic != nil || in.Diastolic != nil:
		return models.Profile{}, fmt.Errorf("%s: %w", op, invalid("both baseline values are required"))
	}

	err := s.storage.UpdateUser(ctx, models.User{
		ID:    userID,
		Name:  in.Name,
		Email: in.Email,
		Phone: in.Phone,
		Age:   in.Age,
	})
	if errors.Is(err, storage.ErrAlreadyExists) {
		return models.Profile{}, fmt.Errorf("%s: %w", op, ErrConflict)
	}
	if err != nil {
		return models.Profile{}, fmt.Errorf("%s: %w", op, mapNotFound(err))
	}

	if baseline != nil {
		baseline.DefinedAt = s.now().UTC()
		if err := s.storage.UpsertBaseline(ctx, *baseline); err != nil {
			return models.Profile{}, fmt.Errorf("%s: %w", op, err)
		}
	}

	return s.GetProfile(ctx, userID)
}

// ForgotPassword never reveals whether the email is registered.
func (s *service) ForgotPassword(ctx context.Context, email string) error {
	const op = "service.ForgotPassword"

	log := s.log.With(slog.String("op", op))

	user, err := s.storage.GetUserByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, storage.ErrNotFound) {
		log.Info("password reset requested for unknown email")
		return nil
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	token, secret, err := auth.NewResetToken(user.ID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	hash, err := auth.HashResetToken(secret)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	err = s.storage.SetPasswordReset(ctx, models.PasswordReset{
		UserID:    user.ID,
		TokenHash: hash,
		ExpiresAt: s.now().Add(s.resetTTL).UTC(),
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	msg, err := s.composer.PasswordReset(user.Email, token)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.notifier.Dispatch(ctx, mail.KindPasswordReset, msg)

	return nil
}

func (s *service) ResetPassword(ctx context.Context, token, newPassword string) error {
	const op = "service.ResetPassword"

	if len(newPassword) < minPasswordLength {
		return fmt.Errorf("%s: %w", op, invalid("password must have at least %d characters", minPasswordLength))
	}

	userID, secret, err := auth.ParseResetToken(token)
	if err != nil {
		return fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	reset, err := s.storage.GetPasswordReset(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if !s.now().Before(reset.ExpiresAt) || !auth.CheckResetToken(secret, reset.TokenHash) {
		return fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	passwordHash, err := auth.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := s.storage.UpdatePassword(ctx, userID, passwordHash); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *service) ListUsers(ctx context.Context) ([]models.User, error) {
	const op = "service.ListUsers"

	users, err := s.storage.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return users, nil
}

// AssignRole changes a user's role. Patients linked to a user who stops
// being a caregiver are unlinked.
func (s *service) AssignRole(ctx context.Context, userID int64, role models.Role) error {
	const op = "service.AssignRole"

	if _, err := models.ParseRole(string(role)); err != nil {
		return fmt.Errorf("%s: %w", op, invalid("%v", err))
	}

	if err := s.storage.AssignRole(ctx, userID, role); err != nil {
		return fmt.Errorf("%s: %w", op, mapNotFound(err))
	}

	return nil
}
