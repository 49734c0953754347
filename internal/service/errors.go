package service

import (
	"errors"
	"fmt"

	"github.com/noseryoung/course-rating/internal/repository"
)

var (
	// ErrUserNotFound is returned by the credential lookup.  It matches
	// repository.ErrNotFound as well.
	ErrUserNotFound = fmt.Errorf("user could not be found: %w", repository.ErrNotFound)

	// ErrBadCredentials is returned by Authenticate for an unknown user or
	// a wrong password; the two are not distinguished.
	ErrBadCredentials = errors.New("invalid credentials")

	// ErrUnknownRole is returned when a user carries a role name that does
	// not exist.
	ErrUnknownRole = errors.New("unknown role")
)

// notFound wraps repository.ErrNotFound with the missing key.
func notFound(kind, key string, value any) error {
	return fmt.Errorf("no %s with given %s '%v' found: %w", kind, key, value, repository.ErrNotFound)
}
