package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"balanceview/internal/core"
)

var ErrEmailExists = errors.New("email already registered")

// User is an account row.
type User struct {
	ID           string
	Email        string
	DisplayName  string
	PasswordHash string
	CreatedAt    int64
}

// CreateUser stores u, generating its id when empty.
func (r *SQLiteRepository) CreateUser(ctx context.Context, u *User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedAt == 0 {
		u.CreatedAt = r.now().Unix()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, email, display_name, password_hash, created_at) VALUES (?, ?, ?, ?, ?)`,
		u.ID, strings.ToLower(u.Email), u.DisplayName, u.PasswordHash, u.CreatedAt)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return ErrEmailExists
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return r.getUser(ctx, `SELECT id, email, display_name, password_hash, created_at FROM users WHERE email = ?`, strings.ToLower(email))
}

func (r *SQLiteRepository) GetUserByID(ctx context.Context, id string) (*User, error) {
	return r.getUser(ctx, `SELECT id, email, display_name, password_hash, created_at FROM users WHERE id = ?`, id)
}

func (r *SQLiteRepository) getUser(ctx context.Context, query string, arg string) (*User, error) {
	var u User
	err := r.db.QueryRowContext(ctx, query, arg).Scan(&u.ID, &u.Email, &u.DisplayName, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

// GetProfile returns the user's profile, or defaults when none was saved.
func (r *SQLiteRepository) GetProfile(ctx context.Context, userID string) (core.Profile, error) {
	p := core.Profile{UserID: userID, HouseholdSize: 1, Currency: core.DefaultCurrency}
	err := r.db.QueryRowContext(ctx,
		`SELECT household_size, location, occupation, currency FROM profiles WHERE user_id = ?`, userID).
		Scan(&p.HouseholdSize, &p.Location, &p.Occupation, &p.Currency)
	if errors.Is(err, sql.ErrNoRows) {
		return p, nil
	}
	if err != nil {
		return p, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}

// SaveProfile upserts the profile.
func (r *SQLiteRepository) SaveProfile(ctx context.Context, p core.Profile) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO profiles (user_id, household_size, location, occupation, currency, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
		   household_size = excluded.household_size,
		   location = excluded.location,
		   occupation = excluded.occupation,
		   currency = excluded.currency,
		   updated_at = excluded.updated_at`,
		p.UserID, p.HouseholdSize, p.Location, p.Occupation, core.NormalizeCurrency(p.Currency), r.now().Unix())
	if err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	return nil
}
