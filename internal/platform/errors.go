package platform

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/maheshrc27/brandcast/internal/models"
)

// ErrorKind drives the dispatcher's retry and notify decision.
type ErrorKind string

const (
	// Transient covers network, timeout and rate limit failures.
	Transient ErrorKind = "TRANSIENT"
	// Rejected means the platform refused the content; retrying will not help.
	Rejected ErrorKind = "REJECTED"
	// Unauthorized means the token was refused despite passing the expiry check.
	Unauthorized ErrorKind = "UNAUTHORIZED"
)

type PublishError struct {
	Kind       ErrorKind
	Platform   models.Platform
	StatusCode int
	Message    string
	Err        error
}

func (e *PublishError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s (status %d): %s", e.Platform, e.Kind, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s %s: %s", e.Platform, e.Kind, msg)
}

func (e *PublishError) Unwrap() error {
	return e.Err
}

func rejectf(p models.Platform, format string, args ...any) *PublishError {
	return &PublishError{Kind: Rejected, Platform: p, Message: fmt.Sprintf(format, args...)}
}

// ErrUnavailable marks a failure of something a publish depends on, such as
// the media host or object store, that may clear on its own.
var ErrUnavailable = errors.New("temporarily unavailable")

// KindOf classifies any error returned from a publish attempt. Errors that
// are not a *PublishError count as transient when they come from the network,
// a deadline, a cancellation or ErrUnavailable and as rejected otherwise.
func KindOf(err error) ErrorKind {
	var pe *PublishError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	if isTimeout(err) || errors.Is(err, context.Canceled) || errors.Is(err, ErrUnavailable) {
		return Transient
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return Transient
	}
	return Rejected
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// transportError wraps a failure to reach the platform at all.
func transportError(p models.Platform, err error) *PublishError {
	msg := "network error"
	if isTimeout(err) {
		msg = "request timed out"
	}
	return &PublishError{Kind: Transient, Platform: p, Message: msg, Err: err}
}

// statusError maps an HTTP failure status onto the taxonomy.
func statusError(p models.Platform, status int, message string) *PublishError {
	kind := Rejected
	switch {
	case status == http.StatusUnauthorized:
		kind = Unauthorized
	case status == http.StatusRequestTimeout, status == http.StatusTooEarly,
		status == http.StatusTooManyRequests, status >= 500:
		kind = Transient
	}
	return &PublishError{Kind: kind, Platform: p, StatusCode: status, Message: message}
}
