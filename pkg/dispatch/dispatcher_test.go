package dispatch

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/kundapp/booking/pkg/models"
	"github.com/kundapp/booking/pkg/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakySender fails the first failures calls, then succeeds.
type flakySender struct {
	failures int
	calls    int
}

func (s *flakySender) Send(ctx context.Context, record *models.NotificationRecord) error {
	s.calls++
	if s.calls <= s.failures {
		return errDownstream
	}
	return nil
}

// blockingSender holds every Send until released.
type blockingSender struct {
	release chan struct{}
}

func (s *blockingSender) Send(ctx context.Context, record *models.NotificationRecord) error {
	<-s.release
	return nil
}

func newTestDispatcher(sender Sender, store *memory.Notifications) *Dispatcher {
	retry := NewRetryPolicy(3, time.Millisecond)
	retry.sleep = func(time.Duration) {}
	breaker := NewCircuitBreaker(BreakerConfig{FailureThreshold: 100, CoolDown: time.Minute, HalfOpenProbes: 1})
	return New(store, sender, retry, breaker, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func testEvent() models.NotificationEvent {
	return models.NotificationEvent{
		EventType: models.UserEnrolled,
		Recipient: models.Recipient{Email: "user@example.com", FirstName: "Ana"},
		Session:   models.SessionSnapshot{SessionID: "s1", Subject: "Yoga", StartTime: time.Now().Add(72 * time.Hour)},
	}
}

func TestNotify(t *testing.T) {
	t.Run("Success Settles Sent", func(t *testing.T) {
		store := memory.NewNotifications()
		d := newTestDispatcher(&flakySender{}, store)

		record, err := d.Notify(context.Background(), testEvent())

		require.NoError(t, err)
		assert.Equal(t, models.NotificationSent, record.Status)
		assert.NotNil(t, record.SentAt)
		assert.Equal(t, 1, record.AttemptCount)
	})

	t.Run("Transient Failure Recovers Within Retry Budget", func(t *testing.T) {
		store := memory.NewNotifications()
		sender := &flakySender{failures: 2}
		d := newTestDispatcher(sender, store)

		record, err := d.Notify(context.Background(), testEvent())

		require.NoError(t, err)
		assert.Equal(t, models.NotificationSent, record.Status)
		assert.Equal(t, 3, record.AttemptCount)
	})

	t.Run("Exhausted Retries Settle Failed Without Error", func(t *testing.T) {
		store := memory.NewNotifications()
		d := newTestDispatcher(&flakySender{failures: 10}, store)

		record, err := d.Notify(context.Background(), testEvent())

		require.NoError(t, err, "a delivery failure is recorded, not propagated")
		assert.Equal(t, models.NotificationFailed, record.Status)
		assert.Equal(t, 3, record.AttemptCount)
		assert.Contains(t, record.ErrorMessage, "smtp connection refused")
	})
}

func TestPublishDeliversOffTheRequestPath(t *testing.T) {
	store := memory.NewNotifications()
	sender := &blockingSender{release: make(chan struct{})}
	d := newTestDispatcher(sender, store)

	// A cancelled request context must not abort the delivery either.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := d.Publish(ctx, testEvent())
	require.NoError(t, err, "Publish must return while the sender is still busy")

	close(sender.release)
	assert.Eventually(t, func() bool {
		records, err := store.ListBySession(context.Background(), "s1")
		return err == nil && len(records) == 1 && records[0].Status == models.NotificationSent
	}, time.Second, 5*time.Millisecond)
}

func TestRetryNotification(t *testing.T) {
	t.Run("Failed Record Is Retried Without Duplicates", func(t *testing.T) {
		store := memory.NewNotifications()
		sender := &flakySender{failures: 3}
		d := newTestDispatcher(sender, store)

		failed, err := d.Notify(context.Background(), testEvent())
		require.NoError(t, err)
		require.Equal(t, models.NotificationFailed, failed.Status)

		// The sender has recovered by now.
		retried, err := d.Retry(context.Background(), failed.ID)

		require.NoError(t, err)
		assert.Equal(t, failed.ID, retried.ID)
		assert.Equal(t, models.NotificationSent, retried.Status)
		assert.Equal(t, 4, retried.AttemptCount, "attempts accumulate across retries")

		history, err := d.History(context.Background(), "s1")
		require.NoError(t, err)
		assert.Len(t, history, 1, "retry must reuse the record, not create another")
	})

	t.Run("Sent Record Is Returned Unchanged", func(t *testing.T) {
		store := memory.NewNotifications()
		d := newTestDispatcher(&flakySender{}, store)

		sent, err := d.Notify(context.Background(), testEvent())
		require.NoError(t, err)
		require.Equal(t, models.NotificationSent, sent.Status)

		retried, err := d.Retry(context.Background(), sent.ID)

		require.NoError(t, err)
		assert.Equal(t, models.NotificationSent, retried.Status)
		assert.Equal(t, sent.AttemptCount, retried.AttemptCount)
	})
}

func TestNotifyBulk(t *testing.T) {
	store := memory.NewNotifications()
	// First recipient's three attempts fail, the rest succeed.
	d := newTestDispatcher(&flakySender{failures: 3}, store)

	recipients := []models.Recipient{
		{Email: "a@example.com"},
		{Email: "b@example.com"},
		{Email: "c@example.com"},
	}
	result, err := d.NotifyBulk(context.Background(), models.SessionCancelled, testEvent().Session, recipients)

	require.NoError(t, err)
	assert.Equal(t, 3, result.Total)
	assert.Equal(t, 2, result.Successful)
	assert.Equal(t, 1, result.Failed)
	assert.Len(t, result.Records, 3)
}

func TestRetryAll(t *testing.T) {
	store := memory.NewNotifications()
	sender := &flakySender{failures: 6}
	d := newTestDispatcher(sender, store)

	// Two deliveries fail outright (three attempts each).
	for i := 0; i < 2; i++ {
		record, err := d.Notify(context.Background(), testEvent())
		require.NoError(t, err)
		require.Equal(t, models.NotificationFailed, record.Status)
	}

	result, err := d.RetryAll(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, result.Total)
	assert.Equal(t, 2, result.Successful)
	assert.Equal(t, 0, result.Failed)

	remaining, err := d.Failed(context.Background())
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestDispatcherShortCircuitsWhenBreakerOpen(t *testing.T) {
	store := memory.NewNotifications()
	retry := NewRetryPolicy(3, time.Millisecond)
	retry.sleep = func(time.Duration) {}
	breaker := NewCircuitBreaker(BreakerConfig{FailureThreshold: 2, CoolDown: time.Minute, HalfOpenProbes: 1})
	sender := &flakySender{failures: 100}
	d := New(store, sender, retry, breaker, slog.New(slog.NewTextHandler(io.Discard, nil)))

	record, err := d.Notify(context.Background(), testEvent())
	require.NoError(t, err)
	assert.Equal(t, models.NotificationFailed, record.Status)
	assert.Equal(t, BreakerOpen, d.Breaker().State())

	sends := sender.calls
	record, err = d.Notify(context.Background(), testEvent())
	require.NoError(t, err)
	assert.Equal(t, models.NotificationFailed, record.Status)
	assert.Equal(t, sends, sender.calls, "open breaker must not reach the sender")
	assert.Contains(t, record.ErrorMessage, "circuit breaker is open")
}
