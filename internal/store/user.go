package store

import (
	"context"
	"errors"
	"fmt"

	"drivingschool-api/internal/apperrors"
	"drivingschool-api/internal/db"
	"drivingschool-api/internal/model"
)

const userColumns = `id, username, password_hash, created_at, last_login, failed_attempts`

func (s *Store) CreateUser(ctx context.Context, username, passwordHash string) (*model.User, error) {
	u := &model.User{}
	err := s.db.One(ctx, u,
		`INSERT INTO users (username, password_hash) VALUES ($1, $2)
		 RETURNING `+userColumns,
		username, passwordHash,
	)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, apperrors.New(apperrors.ErrConflict, "Username already exists")
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

func (s *Store) UserByUsername(ctx context.Context, username string) (*model.User, error) {
	u := &model.User{}
	err := s.db.One(ctx, u, `SELECT `+userColumns+` FROM users WHERE username = $1`, username)
	if err != nil {
		return nil, notFound(err, "User not found", "user by username")
	}
	return u, nil
}

func (s *Store) RecordFailedLogin(ctx context.Context, id int64) error {
	_, err := s.db.Run(ctx,
		`UPDATE users SET failed_attempts = failed_attempts + 1 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("record failed login: %w", err)
	}
	return nil
}

// RecordLogin clears the failure counter and stamps last_login.
func (s *Store) RecordLogin(ctx context.Context, id int64) error {
	_, err := s.db.Run(ctx,
		`UPDATE users SET failed_attempts = 0, last_login = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("record login: %w", err)
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]model.User, error) {
	out := []model.User{}
	if err := s.db.All(ctx, &out, `SELECT `+userColumns+` FROM users ORDER BY id`); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return out, nil
}

// DeleteUser removes the user. Their appointments go with them.
func (s *Store) DeleteUser(ctx context.Context, id int64) error {
	n, err := s.db.Run(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if n == 0 {
		return apperrors.NotFound("User not found")
	}
	return nil
}

// SetPassword replaces the hash and zeroes failed_attempts.
func (s *Store) SetPassword(ctx context.Context, id int64, passwordHash string) error {
	n, err := s.db.Run(ctx,
		`UPDATE users SET password_hash = $2, failed_attempts = 0 WHERE id = $1`,
		id, passwordHash,
	)
	if err != nil {
		return fmt.Errorf("set password: %w", err)
	}
	if n == 0 {
		return apperrors.NotFound("User not found")
	}
	return nil
}

func (s *Store) CountUsers(ctx context.Context) (int, error) {
	var n int
	if err := s.db.One(ctx, &n, `SELECT COUNT(*) FROM users`); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

func notFound(err error, msg, op string) error {
	if errors.Is(err, db.ErrNoRows) {
		return apperrors.NotFound(msg)
	}
	return fmt.Errorf("%s: %w", op, err)
}
