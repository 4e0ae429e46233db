package simpleposts

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Error types
var (
	// ErrUnauthenticated indicates missing or invalid credentials
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrUnauthorized indicates the principal does not own the record
	ErrUnauthorized = errors.New("unauthorized")

	// ErrPostNotFound indicates a post was not found
	ErrPostNotFound = errors.New("post not found")

	// ErrUserNotFound indicates a user was not found
	ErrUserNotFound = errors.New("user not found")

	// ErrUserExists indicates a user with the same email or username exists
	ErrUserExists = errors.New("user already exists")

	// ErrImageNotFound indicates an image reference was not found
	ErrImageNotFound = errors.New("image not found")

	// ErrStoreUnavailable indicates the persistent store could not be reached
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrInvalidInput is matched by every *ValidationError
	ErrInvalidInput = errors.New("invalid input")

	// ErrImageStorageDisabled indicates no blob store was configured
	ErrImageStorageDisabled = errors.New("image storage not configured")
)

// ValidationError reports a rejected input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Is makes errors.Is(err, ErrInvalidInput) true for validation errors.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// PostError represents an error related to post operations
type PostError struct {
	PostID uuid.UUID
	Op     string
	Err    error
}

func (e *PostError) Error() string {
	if e.PostID == uuid.Nil {
		return fmt.Sprintf("post operation %s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("post operation %s failed for post %s: %v", e.Op, e.PostID, e.Err)
}

func (e *PostError) Unwrap() error {
	return e.Err
}

// UserError represents an error related to user operations
type UserError struct {
	Op  string
	Err error
}

func (e *UserError) Error() string {
	return fmt.Sprintf("user operation %s failed: %v", e.Op, e.Err)
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// StorageError represents an error related to image storage operations
type StorageError struct {
	Backend string
	Key     string
	Op      string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage operation %s failed for key %s on backend %s: %v", e.Op, e.Key, e.Backend, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsAuthError returns true if the error stems from authentication or ownership checks
func IsAuthError(err error) bool {
	return errors.Is(err, ErrUnauthenticated) || errors.Is(err, ErrUnauthorized)
}
