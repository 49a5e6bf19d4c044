package storage

import (
	"errors"
	"fmt"
	"time"
)

// ErrAccountNotFound is returned when no credit account exists for a user.
var ErrAccountNotFound = errors.New("credit account not found")

// ErrAccountExists is returned when creating an account that already exists.
var ErrAccountExists = errors.New("credit account already exists")

// ErrNotRetryable is returned when retrying a notification that is not in FAILED state.
var ErrNotRetryable = errors.New("notification is not in a retryable state")

// ErrSessionNotFound is returned when a session does not exist.
var ErrSessionNotFound = errors.New("session not found")

// ErrUserAlreadyRegistered is returned when adding a participant that is already on the roster.
var ErrUserAlreadyRegistered = errors.New("user already registered for session")

// ErrUserNotRegistered is returned when removing a participant that is not on the roster.
var ErrUserNotRegistered = errors.New("user not registered for session")

// ErrNotificationNotFound is returned when a notification record does not exist.
var ErrNotificationNotFound = errors.New("notification not found")

// InsufficientCreditsError is returned by Debit when the account balance
// cannot cover the requested amount.
type InsufficientCreditsError struct {
	UserID    string
	Available int64
	Required  int64
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient credits for user %s: available %d, required %d",
		e.UserID, e.Available, e.Required)
}

// SessionFullError is returned by AddParticipant when the roster is at capacity.
type SessionFullError struct {
	SessionID string
	Current   int
	Max       int
}

func (e *SessionFullError) Error() string {
	return fmt.Sprintf("session %s is full: %d/%d participants", e.SessionID, e.Current, e.Max)
}

// InvalidSessionStateError is returned when an operation requires the session
// to be in a different lifecycle state.
type InvalidSessionStateError struct {
	SessionID string
	Status    string
}

func (e *InvalidSessionStateError) Error() string {
	return fmt.Sprintf("session %s is in state %s and cannot be modified", e.SessionID, e.Status)
}

// CancellationDeadlineError is returned by RemoveParticipant when the
// cancellation cutoff has already passed.
type CancellationDeadlineError struct {
	SessionID string
	Cutoff    time.Time
	Now       time.Time
}

func (e *CancellationDeadlineError) Error() string {
	return fmt.Sprintf("cancellation deadline passed for session %s: cutoff %s, now %s",
		e.SessionID, e.Cutoff.Format(time.RFC3339), e.Now.Format(time.RFC3339))
}
