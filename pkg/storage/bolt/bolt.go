// Package bolt provides a BoltDB-backed notification store.
//
// Notification records are an append-only audit trail: they are written
// once, settled by the dispatcher, and never deleted. An embedded
// key/value store fits that shape, and the session index bucket gives the
// "all notifications for session X" query a cheap prefix scan.
package bolt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	bolt "github.com/boltdb/bolt"

	"github.com/kundapp/booking/pkg/models"
	"github.com/kundapp/booking/pkg/storage"
)

const (
	notificationsBucket = "notifications"
	sessionIndexBucket  = "notifications_by_session"
)

// Store wraps a BoltDB database and exposes the NotificationStore
// operations.
type Store struct {
	db *bolt.DB
}

// New opens (or creates) a BoltDB database at the given path and ensures
// both buckets exist.
func New(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(notificationsBucket)); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists([]byte(sessionIndexBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close releases the database file lock.
func (s *Store) Close() error {
	return s.db.Close()
}

var _ storage.NotificationStore = (*Store)(nil)

// indexKey builds the composite session-index key. The session ID prefix
// groups all of a session's notifications for a cursor prefix scan.
func indexKey(sessionID, id string) []byte {
	return []byte(sessionID + "/" + id)
}

// CreateNotification persists a new record and its session index entry.
func (s *Store) CreateNotification(ctx context.Context, record *models.NotificationRecord) (*models.NotificationRecord, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal notification: %w", err)
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket([]byte(notificationsBucket)).Put([]byte(record.ID), data); err != nil {
			return err
		}
		return tx.Bucket([]byte(sessionIndexBucket)).Put(indexKey(record.SessionID, record.ID), []byte(record.ID))
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// GetNotification retrieves a record by ID.
func (s *Store) GetNotification(ctx context.Context, id string) (*models.NotificationRecord, error) {
	var record models.NotificationRecord

	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(notificationsBucket)).Get([]byte(id))
		if v == nil {
			return storage.ErrNotificationNotFound
		}
		return json.Unmarshal(v, &record)
	})
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// update applies fn to the stored record inside a single write transaction.
func (s *Store) update(id string, fn func(*models.NotificationRecord) error) (*models.NotificationRecord, error) {
	var record models.NotificationRecord

	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(notificationsBucket))
		v := b.Get([]byte(id))
		if v == nil {
			return storage.ErrNotificationNotFound
		}
		if err := json.Unmarshal(v, &record); err != nil {
			return err
		}
		if err := fn(&record); err != nil {
			return err
		}
		data, err := json.Marshal(&record)
		if err != nil {
			return err
		}
		return b.Put([]byte(id), data)
	})
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// MarkSent settles a record as SENT.
func (s *Store) MarkSent(ctx context.Context, id string, sentAt time.Time, attempts int) (*models.NotificationRecord, error) {
	return s.update(id, func(record *models.NotificationRecord) error {
		record.Status = models.NotificationSent
		record.SentAt = &sentAt
		record.ErrorMessage = ""
		record.AttemptCount = attempts
		return nil
	})
}

// MarkFailed settles a record as FAILED with the delivery error.
func (s *Store) MarkFailed(ctx context.Context, id string, errorMessage string, attempts int) (*models.NotificationRecord, error) {
	return s.update(id, func(record *models.NotificationRecord) error {
		record.Status = models.NotificationFailed
		record.ErrorMessage = errorMessage
		record.AttemptCount = attempts
		return nil
	})
}

// ResetForRetry transitions a FAILED record back to PENDING.
func (s *Store) ResetForRetry(ctx context.Context, id string) (*models.NotificationRecord, error) {
	return s.update(id, func(record *models.NotificationRecord) error {
		if record.Status != models.NotificationFailed {
			return storage.ErrNotRetryable
		}
		record.Status = models.NotificationPending
		return nil
	})
}

// ListBySession returns all records for a session via the index bucket,
// oldest first (record IDs are looked up in creation order of the index).
func (s *Store) ListBySession(ctx context.Context, sessionID string) ([]models.NotificationRecord, error) {
	var records []models.NotificationRecord

	err := s.db.View(func(tx *bolt.Tx) error {
		index := tx.Bucket([]byte(sessionIndexBucket)).Cursor()
		b := tx.Bucket([]byte(notificationsBucket))

		prefix := []byte(sessionID + "/")
		for k, id := index.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, id = index.Next() {
			v := b.Get(id)
			if v == nil {
				continue
			}
			var record models.NotificationRecord
			if err := json.Unmarshal(v, &record); err != nil {
				return err
			}
			records = append(records, record)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sortByCreatedAt(records)
	return records, nil
}

// ListFailed scans all records and returns those in FAILED state.
func (s *Store) ListFailed(ctx context.Context) ([]models.NotificationRecord, error) {
	var records []models.NotificationRecord

	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(notificationsBucket)).ForEach(func(k, v []byte) error {
			var record models.NotificationRecord
			if err := json.Unmarshal(v, &record); err != nil {
				return err
			}
			if record.Status == models.NotificationFailed {
				records = append(records, record)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sortByCreatedAt(records)
	return records, nil
}

func sortByCreatedAt(records []models.NotificationRecord) {
	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
}
