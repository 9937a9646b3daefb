package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"drivingschool-api/internal/apperrors"
	"drivingschool-api/internal/db"
	"drivingschool-api/internal/metrics"
	"drivingschool-api/internal/model"
)

const maxTypeLen = 50

// withOwner selects a row from the CTE "a" joined to its owner's username.
const withOwner = `
	SELECT a.id, a.student_id, u.username AS student_name, a.date, a.type,
	       a.status, a.created_at, a.updated_at
	FROM a JOIN users u ON u.id = a.student_id`

// CreateAppointment always stores the row as suggested.
func (s *Store) CreateAppointment(ctx context.Context, studentID int64, date time.Time, typ string) (*model.Appointment, error) {
	typ, err := cleanType(typ)
	if err != nil {
		return nil, err
	}
	if studentID <= 0 {
		return nil, apperrors.Validation("student_id is required")
	}

	a := &model.Appointment{}
	err = s.db.One(ctx, a,
		`WITH a AS (
			INSERT INTO appointments (student_id, date, type, status)
			VALUES ($1, $2, $3, $4)
			RETURNING *
		)`+withOwner,
		studentID, date, typ, string(model.StatusSuggested),
	)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return nil, apperrors.Validation("Student not found")
		}
		return nil, fmt.Errorf("create appointment: %w", err)
	}
	return a, nil
}

// ListAppointments returns the student's appointments dated within
// [from, to], earliest first.
func (s *Store) ListAppointments(ctx context.Context, studentID int64, from, to time.Time) ([]model.Appointment, error) {
	out := []model.Appointment{}
	err := s.db.All(ctx, &out,
		`SELECT a.id, a.student_id, u.username AS student_name, a.date, a.type,
		        a.status, a.created_at, a.updated_at
		 FROM appointments a JOIN users u ON u.id = a.student_id
		 WHERE a.student_id = $1 AND a.date >= $2 AND a.date <= $3
		 ORDER BY a.date ASC`,
		studentID, from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return out, nil
}

// Transition moves a suggested appointment owned by studentID to status in
// one conditional update. Rows owned by someone else are reported as missing.
func (s *Store) Transition(ctx context.Context, id, studentID int64, status model.Status) (*model.Appointment, error) {
	if !status.Valid() {
		return nil, apperrors.Validation("Invalid status")
	}
	if !status.Terminal() {
		return nil, apperrors.Validation("Appointment can only be accepted or rejected")
	}

	a := &model.Appointment{}
	err := s.db.One(ctx, a,
		`WITH a AS (
			UPDATE appointments SET status = $3, updated_at = NOW()
			WHERE id = $1 AND student_id = $2 AND status = $4
			RETURNING *
		)`+withOwner,
		id, studentID, string(status), string(model.StatusSuggested),
	)
	if err == nil {
		metrics.RecordTransition(string(status))
		return a, nil
	}
	if !errors.Is(err, db.ErrNoRows) {
		return nil, fmt.Errorf("transition appointment: %w", err)
	}

	var current model.Status
	err = s.db.One(ctx, &current,
		`SELECT status FROM appointments WHERE id = $1 AND student_id = $2`, id, studentID)
	if err != nil {
		return nil, notFound(err, "Appointment not found", "transition lookup")
	}
	return nil, wrongState(current)
}

// EditAppointment replaces date and type. Status is left alone.
func (s *Store) EditAppointment(ctx context.Context, id int64, date time.Time, typ string) (*model.Appointment, error) {
	typ, err := cleanType(typ)
	if err != nil {
		return nil, err
	}

	q := `WITH a AS (
			UPDATE appointments SET date = $2, type = $3, updated_at = NOW()
			WHERE id = $1` + s.guard(4) + `
			RETURNING *
		)` + withOwner
	args := []any{id, date, typ}
	if !s.policy.AdminEditTerminal {
		args = append(args, string(model.StatusSuggested))
	}

	a := &model.Appointment{}
	if err := s.db.One(ctx, a, q, args...); err != nil {
		return nil, s.classify(ctx, id, err, "edit appointment")
	}
	return a, nil
}

// DeleteAppointment removes the row and returns it as it was.
func (s *Store) DeleteAppointment(ctx context.Context, id int64) (*model.Appointment, error) {
	q := `WITH a AS (
			DELETE FROM appointments WHERE id = $1` + s.guard(2) + `
			RETURNING *
		)` + withOwner
	args := []any{id}
	if !s.policy.AdminEditTerminal {
		args = append(args, string(model.StatusSuggested))
	}

	a := &model.Appointment{}
	if err := s.db.One(ctx, a, q, args...); err != nil {
		return nil, s.classify(ctx, id, err, "delete appointment")
	}
	return a, nil
}

// guard restricts admin mutations to suggested rows when the policy forbids
// touching terminal ones. n is the placeholder index for the status.
func (s *Store) guard(n int) string {
	if s.policy.AdminEditTerminal {
		return ""
	}
	return fmt.Sprintf(" AND status = $%d", n)
}

func (s *Store) classify(ctx context.Context, id int64, err error, op string) error {
	if !errors.Is(err, db.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, err)
	}
	if s.policy.AdminEditTerminal {
		return apperrors.NotFound("Appointment not found")
	}
	var current model.Status
	if err := s.db.One(ctx, &current, `SELECT status FROM appointments WHERE id = $1`, id); err != nil {
		return notFound(err, "Appointment not found", op)
	}
	return wrongState(current)
}

func wrongState(current model.Status) error {
	return apperrors.WrongState(fmt.Sprintf("Appointment already %s", current))
}

func cleanType(typ string) (string, error) {
	typ = strings.TrimSpace(typ)
	if typ == "" {
		return "", apperrors.Validation("type is required")
	}
	if utf8.RuneCountInString(typ) > maxTypeLen {
		return "", apperrors.Validation(fmt.Sprintf("type must be at most %d characters", maxTypeLen))
	}
	return typ, nil
}
