package fleet

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrWithInternal is an interface for errors that include extra "internal"
// information that should be logged but not returned to callers.
type ErrWithInternal interface {
	error
	// Internal returns the error string that must only be logged internally,
	// not returned to the client.
	Internal() string
}

// ErrorUUIDer is the interface for errors that contain a UUID.
type ErrorUUIDer interface {
	// UUID returns the error's UUID.
	UUID() string
}

// ErrorWithUUID can be embedded to error types to implement ErrorUUIDer.
type ErrorWithUUID struct {
	uuid string
}

var _ ErrorUUIDer = (*ErrorWithUUID)(nil)

// UUID implements the ErrorUUIDer interface.
func (e *ErrorWithUUID) UUID() string {
	if e.uuid == "" {
		uuid, err := uuid.NewRandom()
		if err != nil {
			panic(err)
		}
		e.uuid = uuid.String()
	}
	return e.uuid
}

// NotFoundError is implemented by errors reporting a missing resource.
type NotFoundError interface {
	error
	IsNotFound() bool
}

func IsNotFound(err error) bool {
	var nfe NotFoundError
	if errors.As(err, &nfe) {
		return nfe.IsNotFound()
	}
	return false
}

// UnknownClientError is returned when an operation references a client id
// that has no metadata row.
type UnknownClientError struct {
	ClientID string
	// InternalErr is the datastore error that revealed the missing client,
	// if any.
	InternalErr error

	ErrorWithUUID
}

func (e *UnknownClientError) Error() string {
	return fmt.Sprintf("client %s is not known to the datastore", e.ClientID)
}

func (e *UnknownClientError) Internal() string {
	if e.InternalErr == nil {
		return ""
	}
	return e.InternalErr.Error()
}

func (e *UnknownClientError) IsNotFound() bool { return true }

func (e *UnknownClientError) Unwrap() error { return e.InternalErr }

func IsUnknownClient(err error) bool {
	var uce *UnknownClientError
	return errors.As(err, &uce)
}

// MalformedClientIDError is returned when a client id does not have the
// expected format.
type MalformedClientIDError struct {
	ClientID string

	ErrorWithUUID
}

func (e *MalformedClientIDError) Error() string {
	return fmt.Sprintf("malformed client id %q", e.ClientID)
}

// TypeMismatchError is returned when a value of the wrong logical type is
// supplied, e.g. an unstructured address or a record of another kind.
type TypeMismatchError struct {
	Field    string
	Expected string
	Got      string

	ErrorWithUUID
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("%s: expected %s, got %s", e.Field, e.Expected, e.Got)
}

// InvalidArgumentError is returned when a value is rejected before it
// reaches the datastore.
type InvalidArgumentError struct {
	Name   string
	Reason string

	ErrorWithUUID
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Name, e.Reason)
}

// EmptyBatchError is returned by batch writes given no records.
type EmptyBatchError struct {
	ErrorWithUUID
}

func (e *EmptyBatchError) Error() string {
	return "batch write: records list is empty"
}

// NonUniformIDError is returned by batch writes whose records do not all
// belong to the same client.
type NonUniformIDError struct {
	Expected string
	Got      string

	ErrorWithUUID
}

func (e *NonUniformIDError) Error() string {
	return fmt.Sprintf("batch write: all records must have the same client id, expected %s, got %s", e.Expected, e.Got)
}

// MissingTimestampError is returned by batch writes when a record has no
// explicit timestamp.
type MissingTimestampError struct {
	Index int

	ErrorWithUUID
}

func (e *MissingTimestampError) Error() string {
	return fmt.Sprintf("batch write: record %d has no timestamp", e.Index)
}
