package chat

import (
	"errors"
	"fmt"
)

// WriteError means the store rejected a write after the bounded retry
// policy was exhausted. The attempt is terminal; nothing queues the
// write for later.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// IsWrite reports whether err is a store write failure.
func IsWrite(err error) bool {
	var we *WriteError
	return errors.As(err, &we)
}

// NotFoundError means a referenced conversation, message or user does
// not exist in the store.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// IsNotFound reports whether err is a missing-resource failure.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
