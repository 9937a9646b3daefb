package store

import (
	"drivingschool-api/internal/db"
)

// Policy holds the switches that change what administrators may do.
type Policy struct {
	// AdminEditTerminal allows edit and delete of accepted or rejected
	// appointments.
	AdminEditTerminal bool
}

type Store struct {
	db     *db.Manager
	policy Policy
}

func New(m *db.Manager, p Policy) *Store {
	return &Store{db: m, policy: p}
}
