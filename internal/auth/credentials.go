package auth

import (
	"context"
	"errors"
	"regexp"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"drivingschool-api/internal/apperrors"
	"drivingschool-api/internal/metrics"
	"drivingschool-api/internal/model"
)

const MinPasswordLen = 8

var usernameRe = regexp.MustCompile(`^[A-Za-z0-9_]{3,20}$`)

var errBadCredentials = apperrors.New(apperrors.ErrAuthentication, "Invalid username or password")

// UserStore is the persistence CredentialStore needs.
type UserStore interface {
	CreateUser(ctx context.Context, username, passwordHash string) (*model.User, error)
	UserByUsername(ctx context.Context, username string) (*model.User, error)
	RecordFailedLogin(ctx context.Context, id int64) error
	RecordLogin(ctx context.Context, id int64) error
	ListUsers(ctx context.Context) ([]model.User, error)
	DeleteUser(ctx context.Context, id int64) error
	SetPassword(ctx context.Context, id int64, passwordHash string) error
}

type CredentialOptions struct {
	BcryptCost int
	// LockoutThreshold refuses logins once failed_attempts reaches it. 0 disables.
	LockoutThreshold int
}

type CredentialStore struct {
	users UserStore
	opts  CredentialOptions
	log   zerolog.Logger
	now   func() time.Time
}

func NewCredentialStore(users UserStore, opts CredentialOptions, log zerolog.Logger) *CredentialStore {
	return &CredentialStore{
		users: users,
		opts:  opts,
		log:   log.With().Str("component", "credentials").Logger(),
		now:   time.Now,
	}
}

func ValidateUsername(username string) error {
	if !usernameRe.MatchString(username) {
		return apperrors.Validation("Username must be 3 to 20 characters and contain only letters, digits and underscores")
	}
	return nil
}

func ValidatePassword(pw string) error {
	if utf8.RuneCountInString(pw) < MinPasswordLen {
		return apperrors.Validation("Password must be at least 8 characters")
	}
	return nil
}

// Register creates a user. Used by self-registration and by administrators.
func (s *CredentialStore) Register(ctx context.Context, username, password string) (*model.User, error) {
	if username == "" || password == "" {
		return nil, apperrors.Validation("Username and password are required")
	}
	if err := ValidateUsername(username); err != nil {
		return nil, err
	}
	if err := ValidatePassword(password); err != nil {
		return nil, err
	}
	hash, err := HashPassword(password, s.opts.BcryptCost)
	if err != nil {
		return nil, err
	}
	u, err := s.users.CreateUser(ctx, username, hash)
	if err != nil {
		return nil, err
	}
	s.log.Info().Int64("user_id", u.ID).Str("username", u.Username).Msg("user registered")
	return u, nil
}

// Authenticate checks username and password. A wrong password bumps the
// user's failure counter; a correct one clears it and stamps last_login.
func (s *CredentialStore) Authenticate(ctx context.Context, username, password string) (*model.User, error) {
	if username == "" || password == "" {
		metrics.RecordLogin(false)
		return nil, errBadCredentials
	}
	u, err := s.users.UserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			metrics.RecordLogin(false)
			return nil, errBadCredentials
		}
		return nil, err
	}

	if s.opts.LockoutThreshold > 0 && u.FailedAttempts >= s.opts.LockoutThreshold {
		metrics.RecordLogin(false)
		s.log.Warn().Int64("user_id", u.ID).Int("failed_attempts", u.FailedAttempts).Msg("login refused, account locked")
		return nil, apperrors.New(apperrors.ErrAuthentication, "Account locked, contact an administrator")
	}

	if !CheckPassword(u.PasswordHash, password) {
		metrics.RecordLogin(false)
		if err := s.users.RecordFailedLogin(ctx, u.ID); err != nil {
			s.log.Error().Err(err).Int64("user_id", u.ID).Msg("recording failed login")
		}
		return nil, errBadCredentials
	}

	if err := s.users.RecordLogin(ctx, u.ID); err != nil {
		return nil, err
	}
	now := s.now()
	u.LastLogin = &now
	u.FailedAttempts = 0
	metrics.RecordLogin(true)
	return u, nil
}

func (s *CredentialStore) ListUsers(ctx context.Context) ([]model.User, error) {
	return s.users.ListUsers(ctx)
}

func (s *CredentialStore) DeleteUser(ctx context.Context, id int64) error {
	if err := s.users.DeleteUser(ctx, id); err != nil {
		return err
	}
	s.log.Info().Int64("user_id", id).Msg("user deleted")
	return nil
}

// ResetPassword sets a new password and clears the failure counter.
func (s *CredentialStore) ResetPassword(ctx context.Context, id int64, password string) error {
	if err := ValidatePassword(password); err != nil {
		return err
	}
	hash, err := HashPassword(password, s.opts.BcryptCost)
	if err != nil {
		return err
	}
	if err := s.users.SetPassword(ctx, id, hash); err != nil {
		return err
	}
	s.log.Info().Int64("user_id", id).Msg("password reset")
	return nil
}
