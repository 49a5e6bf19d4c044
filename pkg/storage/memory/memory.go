// Package memory provides mutex-guarded in-memory implementations of the
// storage interfaces. They back the unit and concurrency tests and the
// local development mode, where no AWS or BoltDB resources are available.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kundapp/booking/pkg/models"
	"github.com/kundapp/booking/pkg/storage"
)

// Ledger is an in-memory LedgerStore. A single mutex serializes every
// balance mutation, which is the same guard DynamoDB's conditional update
// provides per row.
type Ledger struct {
	mu       sync.Mutex
	accounts map[string]*models.CreditAccount
}

// NewLedger creates an empty in-memory ledger.
func NewLedger() *Ledger {
	return &Ledger{accounts: make(map[string]*models.CreditAccount)}
}

var _ storage.LedgerStore = (*Ledger)(nil)

// GetAccount retrieves a copy of the user's account.
func (l *Ledger) GetAccount(ctx context.Context, userID string) (*models.CreditAccount, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	account, ok := l.accounts[userID]
	if !ok {
		return nil, storage.ErrAccountNotFound
	}
	copied := *account
	return &copied, nil
}

// CreateAccount registers a new account.
func (l *Ledger) CreateAccount(ctx context.Context, account *models.CreditAccount) (*models.CreditAccount, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.accounts[account.UserID]; ok {
		return nil, storage.ErrAccountExists
	}
	stored := *account
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	l.accounts[account.UserID] = &stored
	copied := stored
	return &copied, nil
}

// Debit atomically decrements the balance, failing closed on insufficient funds.
func (l *Ledger) Debit(ctx context.Context, userID string, amount int64) (*models.CreditOperation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	account, ok := l.accounts[userID]
	if !ok {
		return nil, storage.ErrAccountNotFound
	}
	if account.Balance < amount {
		return nil, &storage.InsufficientCreditsError{
			UserID:    userID,
			Available: account.Balance,
			Required:  amount,
		}
	}

	previous := account.Balance
	account.Balance -= amount
	account.Version++

	return &models.CreditOperation{
		UserID:          userID,
		PreviousCredits: previous,
		NewCredits:      account.Balance,
	}, nil
}

// Credit unconditionally increments the balance.
func (l *Ledger) Credit(ctx context.Context, userID string, amount int64) (*models.CreditOperation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	account, ok := l.accounts[userID]
	if !ok {
		return nil, storage.ErrAccountNotFound
	}

	previous := account.Balance
	account.Balance += amount
	account.Version++

	return &models.CreditOperation{
		UserID:          userID,
		PreviousCredits: previous,
		NewCredits:      account.Balance,
	}, nil
}

// Roster is an in-memory RosterStore. The mutex scopes the
// check-then-append to the whole store, closing the capacity race.
type Roster struct {
	mu       sync.Mutex
	sessions map[string]*models.Session
	now      func() time.Time
}

// NewRoster creates an empty in-memory roster.
func NewRoster() *Roster {
	return &Roster{sessions: make(map[string]*models.Session), now: time.Now}
}

// NewRosterWithClock creates a roster with an injectable clock for
// deadline tests.
func NewRosterWithClock(now func() time.Time) *Roster {
	return &Roster{sessions: make(map[string]*models.Session), now: now}
}

var _ storage.RosterStore = (*Roster)(nil)

// GetSession retrieves a copy of a session.
func (r *Roster) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[sessionID]
	if !ok {
		return nil, storage.ErrSessionNotFound
	}
	return copySession(session), nil
}

// CreateSession stores a new session in SCHEDULED state.
func (r *Roster) CreateSession(ctx context.Context, session *models.Session) (*models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := *session
	stored.Status = models.SCHEDULED
	now := r.now()
	stored.CreatedAt = now
	stored.UpdatedAt = now
	r.sessions[session.ID] = &stored
	return copySession(&stored), nil
}

// AddParticipant evaluates the capacity check and the append under the
// store lock.
func (r *Roster) AddParticipant(ctx context.Context, sessionID, userID string) (*models.RosterSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[sessionID]
	if !ok {
		return nil, storage.ErrSessionNotFound
	}
	if session.Status != models.SCHEDULED {
		return nil, &storage.InvalidSessionStateError{SessionID: sessionID, Status: string(session.Status)}
	}
	if session.HasParticipant(userID) {
		return nil, storage.ErrUserAlreadyRegistered
	}
	if len(session.ParticipantIDs) >= session.Capacity {
		return nil, &storage.SessionFullError{
			SessionID: sessionID,
			Current:   len(session.ParticipantIDs),
			Max:       session.Capacity,
		}
	}

	session.ParticipantIDs = append(session.ParticipantIDs, userID)
	session.UpdatedAt = r.now()
	return snapshot(session), nil
}

// RemoveParticipant removes the user, enforcing the cancellation deadline.
func (r *Roster) RemoveParticipant(ctx context.Context, sessionID, userID string) (*models.RosterSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[sessionID]
	if !ok {
		return nil, storage.ErrSessionNotFound
	}
	if session.Status != models.SCHEDULED {
		return nil, &storage.InvalidSessionStateError{SessionID: sessionID, Status: string(session.Status)}
	}
	now := r.now()
	if cutoff := session.CancellationDeadline(); !now.Before(cutoff) {
		return nil, &storage.CancellationDeadlineError{SessionID: sessionID, Cutoff: cutoff, Now: now}
	}
	if !session.HasParticipant(userID) {
		return nil, storage.ErrUserNotRegistered
	}

	remaining := session.ParticipantIDs[:0]
	for _, id := range session.ParticipantIDs {
		if id != userID {
			remaining = append(remaining, id)
		}
	}
	session.ParticipantIDs = remaining
	session.UpdatedAt = now
	return snapshot(session), nil
}

// CancelSession transitions a SCHEDULED session to CANCELLED.
func (r *Roster) CancelSession(ctx context.Context, sessionID string) (*models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[sessionID]
	if !ok {
		return nil, storage.ErrSessionNotFound
	}
	if session.Status != models.SCHEDULED {
		return nil, &storage.InvalidSessionStateError{SessionID: sessionID, Status: string(session.Status)}
	}
	session.Status = models.CANCELLED
	session.UpdatedAt = r.now()
	return copySession(session), nil
}

// CompleteElapsedSessions marks every SCHEDULED session whose end time has
// passed as COMPLETED.
func (r *Roster) CompleteElapsedSessions(ctx context.Context, now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	completed := 0
	for _, session := range r.sessions {
		if session.Status == models.SCHEDULED && session.EndTime().Before(now) {
			session.Status = models.COMPLETED
			session.UpdatedAt = now
			completed++
		}
	}
	return completed, nil
}

func copySession(s *models.Session) *models.Session {
	copied := *s
	copied.ParticipantIDs = append([]string(nil), s.ParticipantIDs...)
	return &copied
}

func snapshot(s *models.Session) *models.RosterSnapshot {
	return &models.RosterSnapshot{
		SessionID:        s.ID,
		ParticipantCount: len(s.ParticipantIDs),
		AvailableSpots:   s.Capacity - len(s.ParticipantIDs),
		ParticipantIDs:   append([]string(nil), s.ParticipantIDs...),
	}
}

// Notifications is an in-memory NotificationStore.
type Notifications struct {
	mu      sync.Mutex
	records map[string]*models.NotificationRecord
}

// NewNotifications creates an empty in-memory notification store.
func NewNotifications() *Notifications {
	return &Notifications{records: make(map[string]*models.NotificationRecord)}
}

var _ storage.NotificationStore = (*Notifications)(nil)

// CreateNotification persists a new record.
func (n *Notifications) CreateNotification(ctx context.Context, record *models.NotificationRecord) (*models.NotificationRecord, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	stored := *record
	n.records[record.ID] = &stored
	copied := stored
	return &copied, nil
}

// GetNotification retrieves a record by ID.
func (n *Notifications) GetNotification(ctx context.Context, id string) (*models.NotificationRecord, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	record, ok := n.records[id]
	if !ok {
		return nil, storage.ErrNotificationNotFound
	}
	copied := *record
	return &copied, nil
}

// MarkSent settles a record as SENT.
func (n *Notifications) MarkSent(ctx context.Context, id string, sentAt time.Time, attempts int) (*models.NotificationRecord, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	record, ok := n.records[id]
	if !ok {
		return nil, storage.ErrNotificationNotFound
	}
	record.Status = models.NotificationSent
	record.SentAt = &sentAt
	record.ErrorMessage = ""
	record.AttemptCount = attempts
	copied := *record
	return &copied, nil
}

// MarkFailed settles a record as FAILED.
func (n *Notifications) MarkFailed(ctx context.Context, id string, errorMessage string, attempts int) (*models.NotificationRecord, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	record, ok := n.records[id]
	if !ok {
		return nil, storage.ErrNotificationNotFound
	}
	record.Status = models.NotificationFailed
	record.ErrorMessage = errorMessage
	record.AttemptCount = attempts
	copied := *record
	return &copied, nil
}

// ResetForRetry transitions a FAILED record back to PENDING.
func (n *Notifications) ResetForRetry(ctx context.Context, id string) (*models.NotificationRecord, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	record, ok := n.records[id]
	if !ok {
		return nil, storage.ErrNotificationNotFound
	}
	if record.Status != models.NotificationFailed {
		return nil, storage.ErrNotRetryable
	}
	record.Status = models.NotificationPending
	copied := *record
	return &copied, nil
}

// ListBySession returns all records for a session, oldest first.
func (n *Notifications) ListBySession(ctx context.Context, sessionID string) ([]models.NotificationRecord, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	var out []models.NotificationRecord
	for _, record := range n.records {
		if record.SessionID == sessionID {
			out = append(out, *record)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// ListFailed returns all FAILED records.
func (n *Notifications) ListFailed(ctx context.Context) ([]models.NotificationRecord, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	var out []models.NotificationRecord
	for _, record := range n.records {
		if record.Status == models.NotificationFailed {
			out = append(out, *record)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
