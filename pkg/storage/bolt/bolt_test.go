package bolt

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/kundapp/booking/pkg/models"
	"github.com/kundapp/booking/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "notifications.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func newTestRecord(id, sessionID string, createdAt time.Time) *models.NotificationRecord {
	return &models.NotificationRecord{
		ID:        id,
		SessionID: sessionID,
		EventType: models.UserEnrolled,
		Recipient: models.Recipient{Email: "user@example.com", FirstName: "Ana"},
		Session:   models.SessionSnapshot{SessionID: sessionID, Subject: "Yoga"},
		Status:    models.NotificationPending,
		CreatedAt: createdAt,
	}
}

func TestCreateAndGetNotification(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	created, err := store.CreateNotification(ctx, newTestRecord("n1", "s1", time.Now().UTC()))
	require.NoError(t, err)
	assert.Equal(t, "n1", created.ID)

	fetched, err := store.GetNotification(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, "s1", fetched.SessionID)
	assert.Equal(t, models.NotificationPending, fetched.Status)
	assert.Equal(t, "user@example.com", fetched.Recipient.Email)

	_, err = store.GetNotification(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotificationNotFound)
}

func TestSettleNotification(t *testing.T) {
	ctx := context.Background()

	t.Run("Mark Sent", func(t *testing.T) {
		store := newTestStore(t)
		_, err := store.CreateNotification(ctx, newTestRecord("n1", "s1", time.Now().UTC()))
		require.NoError(t, err)

		sentAt := time.Now().UTC().Truncate(time.Second)
		settled, err := store.MarkSent(ctx, "n1", sentAt, 2)

		require.NoError(t, err)
		assert.Equal(t, models.NotificationSent, settled.Status)
		require.NotNil(t, settled.SentAt)
		assert.True(t, settled.SentAt.Equal(sentAt))
		assert.Equal(t, 2, settled.AttemptCount)
	})

	t.Run("Mark Failed Then Reset", func(t *testing.T) {
		store := newTestStore(t)
		_, err := store.CreateNotification(ctx, newTestRecord("n1", "s1", time.Now().UTC()))
		require.NoError(t, err)

		failed, err := store.MarkFailed(ctx, "n1", "smtp down", 3)
		require.NoError(t, err)
		assert.Equal(t, models.NotificationFailed, failed.Status)
		assert.Equal(t, "smtp down", failed.ErrorMessage)

		reset, err := store.ResetForRetry(ctx, "n1")
		require.NoError(t, err)
		assert.Equal(t, models.NotificationPending, reset.Status)
	})

	t.Run("Reset Rejects Non Failed", func(t *testing.T) {
		store := newTestStore(t)
		_, err := store.CreateNotification(ctx, newTestRecord("n1", "s1", time.Now().UTC()))
		require.NoError(t, err)

		_, err = store.ResetForRetry(ctx, "n1")
		assert.ErrorIs(t, err, storage.ErrNotRetryable)
	})

	t.Run("Settle Unknown Record", func(t *testing.T) {
		store := newTestStore(t)
		_, err := store.MarkSent(ctx, "missing", time.Now(), 1)
		assert.ErrorIs(t, err, storage.ErrNotificationNotFound)
	})
}

func TestListBySession(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// Interleave two sessions; insertion order deliberately differs from
	// creation-time order.
	_, err := store.CreateNotification(ctx, newTestRecord("n2", "s1", base.Add(2*time.Minute)))
	require.NoError(t, err)
	_, err = store.CreateNotification(ctx, newTestRecord("n3", "s2", base.Add(3*time.Minute)))
	require.NoError(t, err)
	_, err = store.CreateNotification(ctx, newTestRecord("n1", "s1", base.Add(1*time.Minute)))
	require.NoError(t, err)

	records, err := store.ListBySession(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "n1", records[0].ID, "oldest first")
	assert.Equal(t, "n2", records[1].ID)

	records, err = store.ListBySession(ctx, "s2")
	require.NoError(t, err)
	require.Len(t, records, 1)

	records, err = store.ListBySession(ctx, "unknown")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestListFailed(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, id := range []string{"n1", "n2", "n3"} {
		_, err := store.CreateNotification(ctx, newTestRecord(id, "s1", base.Add(time.Duration(i)*time.Minute)))
		require.NoError(t, err)
	}
	_, err := store.MarkFailed(ctx, "n1", "smtp down", 3)
	require.NoError(t, err)
	_, err = store.MarkSent(ctx, "n2", base, 1)
	require.NoError(t, err)
	_, err = store.MarkFailed(ctx, "n3", "smtp down", 3)
	require.NoError(t, err)

	failed, err := store.ListFailed(ctx)
	require.NoError(t, err)
	require.Len(t, failed, 2)
	assert.Equal(t, "n1", failed[0].ID)
	assert.Equal(t, "n3", failed[1].ID)
}

func TestPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "notifications.db")

	store, err := New(path)
	require.NoError(t, err)
	_, err = store.CreateNotification(ctx, newTestRecord("n1", "s1", time.Now().UTC()))
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := New(path)
	require.NoError(t, err)
	defer reopened.Close()

	record, err := reopened.GetNotification(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, "s1", record.SessionID)
}
