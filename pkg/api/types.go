// Package api defines the wire types shared by the HTTP handlers and the
// service clients. Inter-service requests carry the internal secret in the
// body; end-user requests do not.
package api

import (
	"time"

	"github.com/kundapp/booking/pkg/models"
)

// ErrorDetail carries the structured fields of a business-rule conflict,
// so clients can render "1 of 2 credits" style messages without parsing
// the human-readable text.
type ErrorDetail struct {
	Available int64 `json:"available,omitempty"`
	Required  int64 `json:"required,omitempty"`
	Current   int   `json:"current,omitempty"`
	Max       int   `json:"max,omitempty"`
}

// ErrorResponse is the error body returned by every endpoint: a
// machine-readable code for UI branching plus a human-readable message.
type ErrorResponse struct {
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Details *ErrorDetail `json:"details,omitempty"`
}

// Error codes returned in ErrorResponse.Code.
const (
	CodeValidation           = "VALIDATION_ERROR"
	CodeUnauthorized         = "UNAUTHORIZED_INTERNAL_ACCESS"
	CodeNotFound             = "NOT_FOUND"
	CodeInsufficientCredits  = "INSUFFICIENT_CREDITS"
	CodeSessionFull          = "SESSION_FULL"
	CodeAlreadyRegistered    = "USER_ALREADY_REGISTERED"
	CodeNotRegistered        = "USER_NOT_REGISTERED"
	CodeDeadlinePassed       = "CANCELLATION_DEADLINE_PASSED"
	CodeInvalidSessionState  = "INVALID_SESSION_STATE"
	CodeSessionStarted       = "SESSION_ALREADY_STARTED"
	CodeCreditRollbackFailed = "CREDIT_ROLLBACK_FAILED"
	CodeInternal             = "INTERNAL_ERROR"
)

// DeductCreditsRequest is the inter-service request to debit credits for a
// session registration.
type DeductCreditsRequest struct {
	UserID          string `json:"user_id"`
	SessionID       string `json:"session_id"`
	CreditsRequired int64  `json:"credits_required"`
	InternalSecret  string `json:"internal_secret"`
}

// RefundCreditsRequest is the inter-service request to refund credits,
// used both for user cancellations and saga compensation.
type RefundCreditsRequest struct {
	UserID          string `json:"user_id"`
	SessionID       string `json:"session_id"`
	CreditsToRefund int64  `json:"credits_to_refund"`
	InternalSecret  string `json:"internal_secret"`
}

// CreditOperationResponse reports the balances around a ledger operation.
type CreditOperationResponse struct {
	UserID          string `json:"user_id"`
	PreviousCredits int64  `json:"previous_credits"`
	NewCredits      int64  `json:"new_credits"`
}

// AddParticipantRequest is the inter-service request to append a user to a
// session roster.
type AddParticipantRequest struct {
	UserID         string `json:"user_id"`
	InternalSecret string `json:"internal_secret"`
}

// CreateSessionRequest creates a new scheduled session.
type CreateSessionRequest struct {
	TeacherID       string    `json:"teacher_id"`
	Subject         string    `json:"subject"`
	Capacity        int       `json:"capacity"`
	StartTime       time.Time `json:"start_time"`
	DurationMinutes int       `json:"duration_minutes"`
	CreditsRequired int64     `json:"credits_required"`
	InternalSecret  string    `json:"internal_secret"`
}

// ParticipantOperationResponse is the roster state after an add or remove.
type ParticipantOperationResponse struct {
	SessionID        string   `json:"session_id"`
	ParticipantCount int      `json:"participant_count"`
	AvailableSpots   int      `json:"available_spots"`
	ParticipantIDs   []string `json:"participant_ids"`
}

// NotificationEventRequest submits a single notification event for dispatch.
type NotificationEventRequest struct {
	EventType      models.NotificationEventType `json:"event_type"`
	Recipient      models.Recipient             `json:"recipient"`
	Session        models.SessionSnapshot       `json:"session"`
	InternalSecret string                       `json:"internal_secret"`
}

// BulkNotificationEventRequest fans one event out to many recipients.
type BulkNotificationEventRequest struct {
	EventType      models.NotificationEventType `json:"event_type"`
	Session        models.SessionSnapshot       `json:"session"`
	Recipients     []models.Recipient           `json:"recipients"`
	InternalSecret string                       `json:"internal_secret"`
}

// NotificationEventResponse reports a settled notification record.
type NotificationEventResponse struct {
	NotificationID string                       `json:"notification_id"`
	SessionID      string                       `json:"session_id"`
	EventType      models.NotificationEventType `json:"event_type"`
	Recipient      string                       `json:"recipient"`
	Status         models.NotificationStatus    `json:"status"`
	CreatedAt      time.Time                    `json:"created_at"`
	SentAt         *time.Time                   `json:"sent_at,omitempty"`
	ErrorMessage   string                       `json:"error_message,omitempty"`
}

// BulkNotificationEventResponse aggregates per-recipient outcomes.
type BulkNotificationEventResponse struct {
	Total         int                         `json:"total"`
	Successful    int                         `json:"successful"`
	Failed        int                         `json:"failed"`
	Notifications []NotificationEventResponse `json:"notifications"`
}

// NotificationRetryRequest retries a single FAILED notification.
type NotificationRetryRequest struct {
	NotificationID string `json:"notification_id"`
	InternalSecret string `json:"internal_secret"`
}

// SessionQueryRequest queries notification history for a session.
type SessionQueryRequest struct {
	SessionID      string `json:"session_id"`
	InternalSecret string `json:"internal_secret"`
}

// GeneralQueryRequest authenticates secret-only operations (retry-all).
type GeneralQueryRequest struct {
	InternalSecret string `json:"internal_secret"`
}

// EnrollRequest is the end-user request to enroll in or cancel from a
// session. Contact fields feed the notification event.
type EnrollRequest struct {
	UserID    string `json:"user_id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
}

// EnrollmentResponse is returned on a completed enrollment.
type EnrollmentResponse struct {
	SessionID       string                       `json:"session_id"`
	UserID          string                       `json:"user_id"`
	PreviousCredits int64                        `json:"previous_credits"`
	NewCredits      int64                        `json:"new_credits"`
	Roster          ParticipantOperationResponse `json:"roster"`
}

// CancellationResponse is returned on a completed cancellation.
type CancellationResponse struct {
	SessionID       string                       `json:"session_id"`
	UserID          string                       `json:"user_id"`
	CreditsRefunded int64                        `json:"credits_refunded"`
	NewCredits      int64                        `json:"new_credits"`
	Roster          ParticipantOperationResponse `json:"roster"`
}

// ToNotificationResponse maps a record to its wire shape.
func ToNotificationResponse(record *models.NotificationRecord) NotificationEventResponse {
	return NotificationEventResponse{
		NotificationID: record.ID,
		SessionID:      record.SessionID,
		EventType:      record.EventType,
		Recipient:      record.Recipient.Email,
		Status:         record.Status,
		CreatedAt:      record.CreatedAt,
		SentAt:         record.SentAt,
		ErrorMessage:   record.ErrorMessage,
	}
}

// ToRosterResponse maps a roster snapshot to its wire shape.
func ToRosterResponse(snapshot *models.RosterSnapshot) ParticipantOperationResponse {
	return ParticipantOperationResponse{
		SessionID:        snapshot.SessionID,
		ParticipantCount: snapshot.ParticipantCount,
		AvailableSpots:   snapshot.AvailableSpots,
		ParticipantIDs:   snapshot.ParticipantIDs,
	}
}
