package drive

import (
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/api/googleapi"
)

var (
	// ErrUnauthenticated is returned before any network call when the session holds no token.
	ErrUnauthenticated = errors.New("drive: not authenticated")
	// ErrNotFound matches OperationErrors for HTTP 404.
	ErrNotFound = errors.New("drive: file not found")
)

// OperationError reports a failed Drive call: a transport failure, a non-2xx status or a
// body that could not be decoded.
type OperationError struct {
	Op         string
	StatusCode int // zero when no response was received
	Status     string
	Err        error
}

func (e *OperationError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("drive %s failed: %d %s: %v", e.Op, e.StatusCode, e.Status, e.Err)
	}
	return fmt.Sprintf("drive %s failed: %v", e.Op, e.Err)
}

func (e *OperationError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrNotFound) match 404 responses.
func (e *OperationError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// Unauthorized reports whether the provider rejected the bearer token.
func (e *OperationError) Unauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized
}

// IsUnauthorized reports whether err carries a 401 from Drive.
func IsUnauthorized(err error) bool {
	var opErr *OperationError
	return errors.As(err, &opErr) && opErr.Unauthorized()
}

// wrapError converts client library errors into OperationErrors.
func wrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrUnauthenticated) {
		return err
	}
	var opErr *OperationError
	if errors.As(err, &opErr) {
		return err
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		msg := apiErr.Message
		if msg == "" {
			msg = apiErr.Body
		}
		return &OperationError{
			Op:         op,
			StatusCode: apiErr.Code,
			Status:     http.StatusText(apiErr.Code),
			Err:        errors.New(msg),
		}
	}
	return &OperationError{Op: op, Err: err}
}
