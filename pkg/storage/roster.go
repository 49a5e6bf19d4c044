package storage

import (
	"context"
	"time"

	"github.com/kundapp/booking/pkg/models"
)

// RosterStore defines the interface for session rosters. The capacity check
// and the append are evaluated together under a guard scoped to the session
// row, so two concurrent AddParticipant calls can never overshoot capacity.
type RosterStore interface {
	// GetSession retrieves a session by its ID.
	GetSession(ctx context.Context, sessionID string) (*models.Session, error)

	// CreateSession creates a new session in SCHEDULED state.
	CreateSession(ctx context.Context, session *models.Session) (*models.Session, error)

	// AddParticipant appends the user to the roster. Fails with
	// ErrSessionNotFound, *InvalidSessionStateError when the session is not
	// SCHEDULED, *SessionFullError at capacity, or ErrUserAlreadyRegistered.
	AddParticipant(ctx context.Context, sessionID, userID string) (*models.RosterSnapshot, error)

	// RemoveParticipant removes the user from the roster. Fails with
	// *CancellationDeadlineError once now >= startTime - cutoff, or
	// ErrUserNotRegistered.
	RemoveParticipant(ctx context.Context, sessionID, userID string) (*models.RosterSnapshot, error)

	// CancelSession transitions a SCHEDULED session to CANCELLED.
	CancelSession(ctx context.Context, sessionID string) (*models.Session, error)

	// CompleteElapsedSessions transitions every SCHEDULED session whose end
	// time is before now to COMPLETED, returning how many were updated.
	// Called periodically by the sweep job.
	CompleteElapsedSessions(ctx context.Context, now time.Time) (int, error)
}
