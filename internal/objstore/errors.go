package objstore

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/minio/minio-go/v7"
)

// ErrNotFound reports that the addressed object does not exist. It is always
// wrapped inside a PermanentError so callers can match it with errors.Is.
var ErrNotFound = errors.New("object not found")

// TransientError marks a remote failure worth retrying: rate limiting,
// timeouts, connection and TLS trouble, or server-side 5xx responses.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient store error: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError marks a remote failure that retrying cannot fix, such as a
// missing object or a permission problem.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("permanent store error: %v", e.Err)
}

func (e *PermanentError) Unwrap() error { return e.Err }

// IsTransient reports whether err is (or wraps) a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

var transientStoreCodes = map[string]struct{}{
	"SlowDown":             {},
	"RequestTimeout":       {},
	"RequestTimeTooSkewed": {},
	"InternalError":        {},
	"ServiceUnavailable":   {},
}

var notFoundStoreCodes = map[string]struct{}{
	"NoSuchKey":    {},
	"NoSuchBucket": {},
	"NotFound":     {},
}

// Classify wraps a raw remote error as TransientError or PermanentError.
// Already-classified errors and context cancellation pass through untouched.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var te *TransientError
	var pe *PermanentError
	if errors.As(err, &te) || errors.As(err, &pe) {
		return err
	}

	var resp minio.ErrorResponse
	if errors.As(err, &resp) {
		if _, ok := notFoundStoreCodes[resp.Code]; ok || resp.StatusCode == http.StatusNotFound {
			return &PermanentError{Err: fmt.Errorf("%s: %w", resp.Code, ErrNotFound)}
		}
		if _, ok := transientStoreCodes[resp.Code]; ok {
			return &TransientError{Err: err}
		}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return &TransientError{Err: err}
		}
		return &PermanentError{Err: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return &TransientError{Err: err}
	}
	var recordErr tls.RecordHeaderError
	if errors.As(err, &recordErr) {
		return &TransientError{Err: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return &TransientError{Err: err}
	}

	// Unrecognized transport failures are retried; a wrong guess costs a few
	// extra calls, the opposite guess can drop a decision.
	return &TransientError{Err: err}
}
