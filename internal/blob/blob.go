// Package blob stores media payloads outside the realtime tree. The
// chat log only ever carries the URLs returned from here.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// Store uploads binary payloads and hands back stable public URLs.
type Store interface {
	// Upload stores the payload under the given object key and returns
	// the public URL it will be served from.
	Upload(ctx context.Context, key, contentType string, body io.Reader) (string, error)

	// Remove deletes the object stored under key. Removing a key that
	// does not exist is not an error.
	Remove(ctx context.Context, key string) error

	// PublicURL returns the URL an already-uploaded key is served from.
	PublicURL(key string) string
}

// UploadError is a failed media transfer. Retried with backoff before
// being surfaced.
type UploadError struct {
	Key string
	Err error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload %s: %v", e.Key, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// IsUpload reports whether err is a failed media transfer.
func IsUpload(err error) bool {
	var ue *UploadError
	return errors.As(err, &ue)
}

// PermissionError is a rejected operation: the credentials were valid
// but do not grant access to the object. Never retried.
type PermissionError struct {
	Key    string
	Status int
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("permission denied for %s (status %d)", e.Key, e.Status)
}

// IsPermission reports whether err is an access rejection.
func IsPermission(err error) bool {
	var pe *PermissionError
	return errors.As(err, &pe)
}
