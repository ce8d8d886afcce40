package service

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidTransition = errors.New("invalid post transition")
	// ErrAlreadyTransitioned is returned to the losing writer of a conditional
	// transition. It wraps ErrInvalidTransition.
	ErrAlreadyTransitioned = fmt.Errorf("%w: already transitioned", ErrInvalidTransition)
	ErrInvalidSchedule     = errors.New("scheduled time must be in the future")
	ErrPostNotFound        = errors.New("post not found")
	ErrCrossBrand          = errors.New("account is not linked to the brand")
	ErrDataIntegrity       = errors.New("data integrity anomaly")
)

var (
	ErrInvalidPost          = errors.New("invalid post")
	ErrDuplicateTarget      = errors.New("duplicate publish target")
	ErrCalendarItemNotFound = errors.New("calendar item not found")
	ErrCalendarItemState    = errors.New("calendar item is not editable")
	ErrNotificationNotFound = errors.New("notification not found")
)

var (
	ErrAccountNotFound     = errors.New("social account not found")
	ErrAccountDisconnected = errors.New("social account is disconnected")
	ErrPageNotFound        = errors.New("social account page not found")
	ErrNoRefresher         = errors.New("no token refresher for platform")
)

type CredentialErrorKind string

const (
	// CredentialExpired is retriable once a refresh succeeds.
	CredentialExpired CredentialErrorKind = "EXPIRED"
	// CredentialReauthRequired lasts until the owner reconnects the account.
	CredentialReauthRequired CredentialErrorKind = "REAUTH_REQUIRED"
)

type CredentialError struct {
	Kind      CredentialErrorKind
	AccountID string
	Err       error
}

func (e *CredentialError) Error() string {
	return fmt.Sprintf("credential %s for account %s: %v", e.Kind, e.AccountID, e.Err)
}

func (e *CredentialError) Unwrap() error {
	return e.Err
}
