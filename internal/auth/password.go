package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"balanceview/internal/storage"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrWeakPassword       = errors.New("password must be at least 8 characters")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrEmailExists        = storage.ErrEmailExists
)

// UserStorage is the user persistence the authenticator needs.
type UserStorage interface {
	CreateUser(ctx context.Context, u *storage.User) error
	GetUserByEmail(ctx context.Context, email string) (*storage.User, error)
}

// PasswordAuthenticator registers and authenticates users with bcrypt hashed passwords.
type PasswordAuthenticator struct {
	storage UserStorage
	cost    int
}

func NewPasswordAuthenticator(s UserStorage) *PasswordAuthenticator {
	return &PasswordAuthenticator{storage: s, cost: bcrypt.DefaultCost}
}

// WithCost overrides the bcrypt cost; values outside bcrypt's range are ignored.
func (a *PasswordAuthenticator) WithCost(cost int) *PasswordAuthenticator {
	if cost >= bcrypt.MinCost && cost <= bcrypt.MaxCost {
		a.cost = cost
	}
	return a
}

func (a *PasswordAuthenticator) ValidateCredential(credential string) error {
	if len(credential) < 8 {
		return ErrWeakPassword
	}
	return nil
}

func (a *PasswordAuthenticator) Register(ctx context.Context, email, displayName, credential string) (*storage.User, error) {
	email = strings.TrimSpace(email)
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, ErrInvalidEmail
	}
	if err := a.ValidateCredential(credential); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(credential), a.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := &storage.User{
		Email:        email,
		DisplayName:  strings.TrimSpace(displayName),
		PasswordHash: string(hash),
	}
	if err := a.storage.CreateUser(ctx, u); err != nil {
		if errors.Is(err, storage.ErrEmailExists) {
			return nil, ErrEmailExists
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

func (a *PasswordAuthenticator) Authenticate(ctx context.Context, email, credential string) (*storage.User, error) {
	u, err := a.storage.GetUserByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(credential)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}
