package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/palaver-chat/palaver/internal/retry"
)

// HTTPStore talks to an S3-compatible object storage endpoint over its
// REST API. Objects live in a single bucket and are publicly readable.
type HTTPStore struct {
	baseURL string
	bucket  string
	apiKey  string
	client  *http.Client
	logger  zerolog.Logger
}

// NewHTTPStore creates a blob store against baseURL (no trailing
// slash) using bucket for every object.
func NewHTTPStore(baseURL, bucket, apiKey string, logger zerolog.Logger) *HTTPStore {
	return &HTTPStore{
		baseURL: strings.TrimRight(baseURL, "/"),
		bucket:  bucket,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
	}
}

// Upload stores the payload and returns its public URL. Transient
// failures are retried; permission rejections are terminal.
func (s *HTTPStore) Upload(ctx context.Context, key, contentType string, body io.Reader) (string, error) {
	// The payload may not be re-readable, so buffer it once up front.
	data, err := io.ReadAll(body)
	if err != nil {
		return "", &UploadError{Key: key, Err: err}
	}

	url := fmt.Sprintf("%s/object/%s/%s", s.baseURL, s.bucket, key)

	// A permission rejection is terminal, so it short-circuits the
	// retry loop instead of being returned from the closure.
	var permErr *PermissionError
	err = retry.Do(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("Authorization", "Bearer "+s.apiKey)

		resp, err := s.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, resp.Body)

		switch {
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			permErr = &PermissionError{Key: key, Status: resp.StatusCode}
			return nil
		case resp.StatusCode >= 400:
			return fmt.Errorf("status %d", resp.StatusCode)
		}
		return nil
	})
	if permErr != nil {
		return "", permErr
	}
	if err != nil {
		s.logger.Error().Err(err).Str("key", key).Msg("blob upload failed")
		return "", &UploadError{Key: key, Err: err}
	}

	return s.PublicURL(key), nil
}

// Remove deletes the object stored under key. A missing object counts
// as removed; permission rejections are terminal like on upload.
func (s *HTTPStore) Remove(ctx context.Context, key string) error {
	url := fmt.Sprintf("%s/object/%s/%s", s.baseURL, s.bucket, key)

	var permErr *PermissionError
	err := retry.Do(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+s.apiKey)

		resp, err := s.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, resp.Body)

		switch {
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			permErr = &PermissionError{Key: key, Status: resp.StatusCode}
			return nil
		case resp.StatusCode == http.StatusNotFound:
			return nil
		case resp.StatusCode >= 400:
			return fmt.Errorf("status %d", resp.StatusCode)
		}
		return nil
	})
	if permErr != nil {
		return permErr
	}
	if err != nil {
		s.logger.Error().Err(err).Str("key", key).Msg("blob remove failed")
		return &UploadError{Key: key, Err: err}
	}
	return nil
}

// PublicURL returns the unauthenticated read URL for key.
func (s *HTTPStore) PublicURL(key string) string {
	return fmt.Sprintf("%s/object/public/%s/%s", s.baseURL, s.bucket, key)
}
