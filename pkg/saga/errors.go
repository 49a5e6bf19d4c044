package saga

import (
	"fmt"
	"time"
)

// SessionStartedError is returned when enrolling in a session whose start
// time has already passed.
type SessionStartedError struct {
	SessionID string
	StartTime time.Time
}

func (e *SessionStartedError) Error() string {
	return fmt.Sprintf("session %s already started at %s", e.SessionID, e.StartTime.Format(time.RFC3339))
}

// RollbackFailedError is the critical, non-retryable failure raised when a
// compensation step fails after a forward step already applied. The two
// resources are potentially inconsistent; the saga halts and the incident
// requires manual resolution.
type RollbackFailedError struct {
	UserID    string
	SessionID string
	Amount    int64
	Cause     error
}

func (e *RollbackFailedError) Error() string {
	return fmt.Sprintf("credit rollback failed for user %s, session %s, amount %d: %v",
		e.UserID, e.SessionID, e.Amount, e.Cause)
}

func (e *RollbackFailedError) Unwrap() error {
	return e.Cause
}
