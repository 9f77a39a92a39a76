package repository

import "errors"

// Repositories wrap these so callers can classify failures without knowing
// the backing store.
var (
	// ErrNotFound means the row does not exist or a referenced row is missing.
	ErrNotFound = errors.New("not found")
	// ErrConflict means a unique or exclusion constraint rejected the write.
	ErrConflict = errors.New("conflict")
)

// Constraint names callers tell apart.
const (
	ConstraintLiveSeat     = "tickets_live_seat_uq"
	ConstraintTicketNumber = "tickets_ticket_number_key"
)

// ConflictError is an ErrConflict carrying the violated constraint.
type ConflictError struct {
	Constraint string
}

func (e *ConflictError) Error() string {
	if e.Constraint == "" {
		return ErrConflict.Error()
	}
	return ErrConflict.Error() + ": " + e.Constraint
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// ConflictOn reports whether err is a conflict on the named constraint.
func ConflictOn(err error, constraint string) bool {
	var ce *ConflictError
	return errors.As(err, &ce) && ce.Constraint == constraint
}
