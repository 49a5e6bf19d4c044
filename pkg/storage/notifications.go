package storage

import (
	"context"
	"time"

	"github.com/kundapp/booking/pkg/models"
)

// NotificationStore defines the interface for the notification audit trail.
// Records are created once and mutated only by the dispatcher; they are
// never deleted.
type NotificationStore interface {
	// CreateNotification persists a new record (status PENDING).
	CreateNotification(ctx context.Context, record *models.NotificationRecord) (*models.NotificationRecord, error)

	// GetNotification retrieves a record by its ID.
	GetNotification(ctx context.Context, id string) (*models.NotificationRecord, error)

	// MarkSent settles a record as SENT with the given delivery time.
	MarkSent(ctx context.Context, id string, sentAt time.Time, attempts int) (*models.NotificationRecord, error)

	// MarkFailed settles a record as FAILED with the delivery error.
	MarkFailed(ctx context.Context, id string, errorMessage string, attempts int) (*models.NotificationRecord, error)

	// ResetForRetry transitions a FAILED record back to PENDING ahead of a
	// retry. Any other state is an invalid transition.
	ResetForRetry(ctx context.Context, id string) (*models.NotificationRecord, error)

	// ListBySession returns all records for a session, oldest first.
	ListBySession(ctx context.Context, sessionID string) ([]models.NotificationRecord, error)

	// ListFailed returns all records currently in FAILED state.
	ListFailed(ctx context.Context) ([]models.NotificationRecord, error)
}
