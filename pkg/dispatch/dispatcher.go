// Package dispatch implements the notification dispatcher: it persists a
// delivery record for every event, pushes the email through a bounded
// retry policy wrapped in a circuit breaker, and settles the record to
// SENT or FAILED. Dispatch runs off the booking flow's critical path;
// a delivery failure is recorded and logged, never propagated as a saga
// failure.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kundapp/booking/pkg/models"
	"github.com/kundapp/booking/pkg/storage"
)

// BulkResult aggregates the per-record outcomes of a bulk or retry-all
// operation.
type BulkResult struct {
	Total      int                         `json:"total"`
	Successful int                         `json:"successful"`
	Failed     int                         `json:"failed"`
	Records    []models.NotificationRecord `json:"notifications"`
}

// Dispatcher coordinates record persistence and delivery.
type Dispatcher struct {
	store   storage.NotificationStore
	sender  Sender
	retry   RetryPolicy
	breaker *CircuitBreaker
	logger  *slog.Logger
	now     func() time.Time
}

// Sender mirrors mailer.Sender; declared here so the dispatcher depends on
// the capability, not the mailer package.
type Sender interface {
	Send(ctx context.Context, record *models.NotificationRecord) error
}

// New creates a Dispatcher.
func New(store storage.NotificationStore, sender Sender, retry RetryPolicy, breaker *CircuitBreaker, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		store:   store,
		sender:  sender,
		retry:   retry,
		breaker: breaker,
		logger:  logger,
		now:     time.Now,
	}
}

// Breaker exposes the circuit breaker for state inspection.
func (d *Dispatcher) Breaker() *CircuitBreaker {
	return d.breaker
}

// Notify persists a PENDING record for the event, attempts delivery, and
// settles the record. The returned record reflects the settled state; an
// error is returned only for persistence failures, never for delivery
// failures.
func (d *Dispatcher) Notify(ctx context.Context, event models.NotificationEvent) (*models.NotificationRecord, error) {
	record := &models.NotificationRecord{
		ID:        uuid.New().String(),
		SessionID: event.Session.SessionID,
		EventType: event.EventType,
		Recipient: event.Recipient,
		Session:   event.Session,
		Status:    models.NotificationPending,
		CreatedAt: d.now(),
	}

	if _, err := d.store.CreateNotification(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to persist notification record: %w", err)
	}

	return d.deliver(ctx, record)
}

// NotifyBulk fans an event out to every recipient, producing one record per
// recipient plus aggregate counts. A failure for one recipient does not
// stop the rest.
func (d *Dispatcher) NotifyBulk(ctx context.Context, eventType models.NotificationEventType, session models.SessionSnapshot, recipients []models.Recipient) (*BulkResult, error) {
	result := &BulkResult{Total: len(recipients)}

	for _, recipient := range recipients {
		record, err := d.Notify(ctx, models.NotificationEvent{
			EventType: eventType,
			Recipient: recipient,
			Session:   session,
		})
		if err != nil {
			d.logger.Error("failed to process bulk notification",
				slog.String("recipient", recipient.Email),
				slog.String("session_id", session.SessionID),
				slog.String("error", err.Error()),
			)
			result.Failed++
			continue
		}
		if record.Status == models.NotificationSent {
			result.Successful++
		} else {
			result.Failed++
		}
		result.Records = append(result.Records, *record)
	}

	return result, nil
}

// Publish satisfies the saga coordinator's notifier contract. Used in
// single-process deployments where no queue sits between the saga and the
// dispatcher: delivery runs in its own goroutine so retry backoff never
// holds up the booking request, and failures settle the record and are
// logged, matching the queue-backed path.
func (d *Dispatcher) Publish(ctx context.Context, event models.NotificationEvent) error {
	ctx = context.WithoutCancel(ctx)
	go func() {
		if _, err := d.Notify(ctx, event); err != nil {
			d.logger.Error("failed to process notification event",
				slog.String("session_id", event.Session.SessionID),
				slog.String("event_type", string(event.EventType)),
				slog.String("error", err.Error()),
			)
		}
	}()
	return nil
}

// Retry re-attempts a FAILED record: FAILED -> PENDING -> {SENT, FAILED}.
// A record in any other state is returned unchanged; no duplicate record is
// ever created for the original event.
func (d *Dispatcher) Retry(ctx context.Context, id string) (*models.NotificationRecord, error) {
	record, err := d.store.GetNotification(ctx, id)
	if err != nil {
		return nil, err
	}

	if record.Status != models.NotificationFailed {
		d.logger.Warn("notification is not retryable",
			slog.String("notification_id", id),
			slog.String("status", string(record.Status)),
		)
		return record, nil
	}

	record, err = d.store.ResetForRetry(ctx, id)
	if err != nil {
		return nil, err
	}

	return d.deliver(ctx, record)
}

// RetryAll re-attempts every FAILED record and reports per-record outcomes
// plus aggregate counts.
func (d *Dispatcher) RetryAll(ctx context.Context) (*BulkResult, error) {
	failed, err := d.store.ListFailed(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list failed notifications: %w", err)
	}

	result := &BulkResult{Total: len(failed)}
	for _, stale := range failed {
		record, err := d.Retry(ctx, stale.ID)
		if err != nil {
			d.logger.Error("failed to retry notification",
				slog.String("notification_id", stale.ID),
				slog.String("error", err.Error()),
			)
			result.Failed++
			continue
		}
		if record.Status == models.NotificationSent {
			result.Successful++
		} else {
			result.Failed++
		}
		result.Records = append(result.Records, *record)
	}

	d.logger.Info("bulk retry completed",
		slog.Int("total", result.Total),
		slog.Int("successful", result.Successful),
		slog.Int("failed", result.Failed),
	)
	return result, nil
}

// History returns all records for a session.
func (d *Dispatcher) History(ctx context.Context, sessionID string) ([]models.NotificationRecord, error) {
	return d.store.ListBySession(ctx, sessionID)
}

// Failed returns all records currently in FAILED state.
func (d *Dispatcher) Failed(ctx context.Context) ([]models.NotificationRecord, error) {
	return d.store.ListFailed(ctx)
}

// deliver pushes the record through retry + breaker and settles it.
func (d *Dispatcher) deliver(ctx context.Context, record *models.NotificationRecord) (*models.NotificationRecord, error) {
	attempts := 0
	err := d.retry.Do(ctx, func() error {
		attempts++
		return d.breaker.Do(func() error {
			return d.sender.Send(ctx, record)
		})
	})
	totalAttempts := record.AttemptCount + attempts

	if err != nil {
		d.logger.Warn("notification delivery failed",
			slog.String("notification_id", record.ID),
			slog.String("recipient", record.Recipient.Email),
			slog.Int("attempts", attempts),
			slog.String("error", err.Error()),
		)
		settled, storeErr := d.store.MarkFailed(ctx, record.ID, err.Error(), totalAttempts)
		if storeErr != nil {
			return nil, fmt.Errorf("failed to settle notification as FAILED: %w", storeErr)
		}
		return settled, nil
	}

	settled, storeErr := d.store.MarkSent(ctx, record.ID, d.now(), totalAttempts)
	if storeErr != nil {
		return nil, fmt.Errorf("failed to settle notification as SENT: %w", storeErr)
	}
	d.logger.Info("notification delivered",
		slog.String("notification_id", record.ID),
		slog.String("recipient", record.Recipient.Email),
		slog.String("event_type", string(record.EventType)),
	)
	return settled, nil
}
