package models

import (
	"time"
)

// SessionStatus defines the lifecycle states of a session.
type SessionStatus string

const (
	SCHEDULED SessionStatus = "SCHEDULED"
	CANCELLED SessionStatus = "CANCELLED"
	COMPLETED SessionStatus = "COMPLETED"
)

// CancellationCutoff is how long before a session starts that participants
// may still cancel their enrollment.
const CancellationCutoff = 48 * time.Hour

// CreditAccount represents a user's credit balance.
// The balance is mutated only through the Ledger debit/credit operations.
type CreditAccount struct {
	UserID    string    `json:"user_id" dynamodbav:"user_id"`
	Balance   int64     `json:"balance" dynamodbav:"balance"`
	Version   int64     `json:"version" dynamodbav:"version"`
	CreatedAt time.Time `json:"created_at" dynamodbav:"created_at"`
}

// CreditOperation is the outcome of a single debit or credit.
type CreditOperation struct {
	UserID          string `json:"user_id"`
	PreviousCredits int64  `json:"previous_credits"`
	NewCredits      int64  `json:"new_credits"`
}

// Session represents the internal domain model for a bookable session.
// ParticipantIDs has set semantics: no duplicates, size bounded by Capacity.
type Session struct {
	ID              string        `json:"id" dynamodbav:"id"`
	TeacherID       string        `json:"teacher_id" dynamodbav:"teacher_id"`
	Subject         string        `json:"subject" dynamodbav:"subject"`
	Capacity        int           `json:"capacity" dynamodbav:"capacity"`
	ParticipantIDs  []string      `json:"participant_ids,omitempty" dynamodbav:"participant_ids,stringset,omitempty"`
	Status          SessionStatus `json:"status" dynamodbav:"status"`
	StartTime       time.Time     `json:"start_time" dynamodbav:"start_time"`
	Duration        time.Duration `json:"duration" dynamodbav:"duration"`
	CreditsRequired int64         `json:"credits_required" dynamodbav:"credits_required"`
	CreatedAt       time.Time     `json:"created_at" dynamodbav:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at" dynamodbav:"updated_at"`
}

// HasParticipant reports whether the user is on the roster.
func (s *Session) HasParticipant(userID string) bool {
	for _, id := range s.ParticipantIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// CancellationDeadline returns the instant after which participants can no
// longer cancel.
func (s *Session) CancellationDeadline() time.Time {
	return s.StartTime.Add(-CancellationCutoff)
}

// EndTime returns when the session finishes.
func (s *Session) EndTime() time.Time {
	return s.StartTime.Add(s.Duration)
}

// RosterSnapshot is the roster state returned by participant operations.
type RosterSnapshot struct {
	SessionID        string   `json:"session_id"`
	ParticipantCount int      `json:"participant_count"`
	AvailableSpots   int      `json:"available_spots"`
	ParticipantIDs   []string `json:"participant_ids"`
}

// NotificationEventType categorizes the state transition that triggered a
// notification.
type NotificationEventType string

const (
	UserEnrolled     NotificationEventType = "USER_ENROLLED"
	UserCancelled    NotificationEventType = "USER_CANCELLED"
	SessionCancelled NotificationEventType = "SESSION_CANCELLED"
	SessionModified  NotificationEventType = "SESSION_MODIFIED"
	SessionCompleted NotificationEventType = "SESSION_COMPLETED"
	SessionCreated   NotificationEventType = "SESSION_CREATED"
)

// NotificationStatus defines the delivery states of a notification record.
// Transitions are monotonic PENDING -> SENT | FAILED, except for an explicit
// retry which resets FAILED back to PENDING.
type NotificationStatus string

const (
	NotificationPending NotificationStatus = "PENDING"
	NotificationSent    NotificationStatus = "SENT"
	NotificationFailed  NotificationStatus = "FAILED"
)

// Recipient is the email recipient of a notification.
type Recipient struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
}

// SessionSnapshot captures session details at notification time, so the
// record stays meaningful even if the session changes later.
type SessionSnapshot struct {
	SessionID string    `json:"session_id"`
	Subject   string    `json:"subject"`
	StartTime time.Time `json:"start_time"`
}

// NotificationRecord is the persisted audit record of a delivery attempt.
// Records are never deleted.
type NotificationRecord struct {
	ID           string                `json:"id"`
	SessionID    string                `json:"session_id"`
	EventType    NotificationEventType `json:"event_type"`
	Recipient    Recipient             `json:"recipient"`
	Session      SessionSnapshot       `json:"session"`
	Status       NotificationStatus    `json:"status"`
	CreatedAt    time.Time             `json:"created_at"`
	SentAt       *time.Time            `json:"sent_at,omitempty"`
	ErrorMessage string                `json:"error_message,omitempty"`
	AttemptCount int                   `json:"attempt_count"`
}

// NotificationEvent is the inbound event a caller submits for dispatch.
type NotificationEvent struct {
	EventType NotificationEventType `json:"event_type"`
	Recipient Recipient             `json:"recipient"`
	Session   SessionSnapshot       `json:"session"`
}
