package reconcile

import "errors"

var (
	// ErrUnauthenticated: no resolvable caller identity.
	ErrUnauthenticated = errors.New("not authenticated")
	// ErrNoHousehold: the caller does not belong to any household.
	ErrNoHousehold = errors.New("no household found")
	// ErrNotAuthorized: the caller's household does not own the entity.
	ErrNotAuthorized = errors.New("not authorized for this household")
	// ErrNotFound: the referenced entry or inventory item does not exist.
	ErrNotFound = errors.New("not found")
	// ErrValidation: malformed input, rejected before any mutation.
	ErrValidation = errors.New("invalid input")
)
