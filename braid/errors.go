package braid

import "github.com/pkg/errors"

var (
	// ErrBeadNotFound indicates a lookup for a hash that is not stored.
	ErrBeadNotFound = errors.New("bead not found")

	// ErrUnknownParent indicates an inserted bead names a parent that is not stored.
	ErrUnknownParent = errors.New("unknown parent")

	// ErrIncestViolation indicates a declared parent is also an ancestor of
	// another declared parent.
	ErrIncestViolation = errors.New("incest violation")

	// ErrDuplicateBead indicates a bead with the same hash already exists.
	ErrDuplicateBead = errors.New("duplicate bead")

	// ErrNoParents indicates a non-genesis bead with an empty parent set.
	ErrNoParents = errors.New("bead has no parents")

	// ErrDuplicateParent indicates a parent hash listed more than once.
	ErrDuplicateParent = errors.New("duplicate parent")

	// ErrStorageInit indicates the backing store could not be opened or created.
	ErrStorageInit = errors.New("storage init error")

	// ErrCorruptIndex indicates derived data disagrees with authoritative
	// data. Only Reindex repairs it.
	ErrCorruptIndex = errors.New("corrupt index")
)

// IsValidationError reports whether err rejected a single insert without
// touching state.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrUnknownParent) ||
		errors.Is(err, ErrIncestViolation) ||
		errors.Is(err, ErrDuplicateBead) ||
		errors.Is(err, ErrNoParents) ||
		errors.Is(err, ErrDuplicateParent)
}
