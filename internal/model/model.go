package model

import "time"

type User struct {
	ID             int64      `db:"id" json:"id"`
	Username       string     `db:"username" json:"username"`
	PasswordHash   string     `db:"password_hash" json:"-"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	LastLogin      *time.Time `db:"last_login" json:"last_login"`
	FailedAttempts int        `db:"failed_attempts" json:"failed_attempts"`
}

type Status string

const (
	StatusSuggested Status = "suggested"
	StatusAccepted  Status = "accepted"
	StatusRejected  Status = "rejected"
)

// Terminal reports whether students can no longer move the appointment.
func (s Status) Terminal() bool {
	return s == StatusAccepted || s == StatusRejected
}

func (s Status) Valid() bool {
	switch s {
	case StatusSuggested, StatusAccepted, StatusRejected:
		return true
	}
	return false
}

type Appointment struct {
	ID          int64     `db:"id" json:"id"`
	StudentID   int64     `db:"student_id" json:"student_id"`
	StudentName string    `db:"student_name" json:"student_name,omitempty"`
	Date        time.Time `db:"date" json:"date"`
	Type        string    `db:"type" json:"type"`
	Status      Status    `db:"status" json:"status"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

type Role int

const (
	RoleAnonymous Role = iota
	RoleStudent
	RoleAdmin
)

func (r Role) String() string {
	switch r {
	case RoleStudent:
		return "student"
	case RoleAdmin:
		return "admin"
	default:
		return "anonymous"
	}
}

// Principal is who a request acts as. UserID and Username are only set for students.
type Principal struct {
	Role     Role
	UserID   int64
	Username string
}

func Student(id int64, username string) Principal {
	return Principal{Role: RoleStudent, UserID: id, Username: username}
}

func Administrator() Principal {
	return Principal{Role: RoleAdmin}
}
