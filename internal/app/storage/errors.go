package storage

import (
	"database/sql"
	"errors"
)

// ErrDuplicate is returned when a unique key (registration number, program
// code, reference number, email) is already taken.
var ErrDuplicate = errors.New("storage: duplicate key")

// IsNotFound reports whether err means the requested record does not exist.
// Both store implementations wrap sql.ErrNoRows.
func IsNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
