// Package authpw provides email/password authentication for moderators.
package authpw

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"meridian/api/internal/store"
	"meridian/api/internal/util"
)

var ErrInvalidCredentials = errors.New("invalid email or password")

// ModeratorStore defines the storage interface for auth
type ModeratorStore interface {
	GetModeratorByEmail(ctx context.Context, email string) (store.Moderator, error)
	CreateModerator(ctx context.Context, moderator store.Moderator) error
	UpdateModeratorPassword(ctx context.Context, moderatorID, passwordHash string) error
	ModeratorCount(ctx context.Context) (int, error)
}

// Service provides moderator password authentication
type Service struct {
	store ModeratorStore
}

// NewService creates a new auth service
func NewService(moderatorStore ModeratorStore) *Service {
	return &Service{store: moderatorStore}
}

// SignIn verifies a moderator's credentials and returns the account.
func (s *Service) SignIn(ctx context.Context, email, password string) (store.Moderator, error) {
	if email == "" || password == "" {
		return store.Moderator{}, ErrInvalidCredentials
	}

	moderator, err := s.store.GetModeratorByEmail(ctx, email)
	if err != nil {
		// Indistinguishable from a bad password for the caller.
		return store.Moderator{}, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(moderator.PasswordHash), []byte(password)); err != nil {
		return store.Moderator{}, ErrInvalidCredentials
	}
	return moderator, nil
}

// CreateModerator registers a new moderator account.
func (s *Service) CreateModerator(ctx context.Context, email, displayName, password, role string) (store.Moderator, error) {
	if email == "" || password == "" {
		return store.Moderator{}, errors.New("email and password are required")
	}
	if len(password) < 8 {
		return store.Moderator{}, errors.New("password must be at least 8 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return store.Moderator{}, fmt.Errorf("hash password: %w", err)
	}

	moderator := store.Moderator{
		ID:           util.NewID("mod"),
		Email:        email,
		DisplayName:  displayName,
		PasswordHash: string(hash),
		Role:         role,
	}
	if err := s.store.CreateModerator(ctx, moderator); err != nil {
		return store.Moderator{}, fmt.Errorf("create moderator: %w", err)
	}
	return moderator, nil
}

// ChangePassword replaces a moderator's password after verifying the current one.
func (s *Service) ChangePassword(ctx context.Context, email, currentPassword, newPassword string) error {
	moderator, err := s.SignIn(ctx, email, currentPassword)
	if err != nil {
		return err
	}
	if len(newPassword) < 8 {
		return errors.New("password must be at least 8 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.store.UpdateModeratorPassword(ctx, moderator.ID, string(hash)); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

// SeedInitialModerator creates the first moderator account when none exists.
// A blank password disables seeding.
func (s *Service) SeedInitialModerator(ctx context.Context, email, password string) error {
	if password == "" {
		return nil
	}
	count, err := s.store.ModeratorCount(ctx)
	if err != nil {
		return fmt.Errorf("count moderators: %w", err)
	}
	if count > 0 {
		return nil
	}
	_, err = s.CreateModerator(ctx, email, "Site Moderator", password, "admin")
	return err
}
