// Package saga implements the enrollment/cancellation saga coordinator.
//
// Enrollment debits the credit ledger before touching the session roster,
// so a lost credit race fails fast without roster churn; a roster failure
// after a successful debit triggers a compensating credit. Cancellation is
// the mirror image: the roster removal happens first, so a user who loses
// their seat always gets the refund attempt. A failed compensation is never
// swallowed: it surfaces as a critical RollbackFailedError requiring
// operator intervention.
package saga

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kundapp/booking/pkg/models"
	"github.com/kundapp/booking/pkg/storage"
)

// AttemptState tracks where a single saga attempt is in its lifecycle.
type AttemptState string

const (
	StateInitiated        AttemptState = "INITIATED"
	StateCreditsDebited   AttemptState = "CREDITS_DEBITED"
	StateParticipantAdded AttemptState = "PARTICIPANT_ADDED"
	StateCompleted        AttemptState = "COMPLETED"
	StateCompensating     AttemptState = "COMPENSATING"
	StateCompensated      AttemptState = "COMPENSATED"
	StateRollbackFailed   AttemptState = "ROLLBACK_FAILED"
)

// Attempt is the coordinator-internal record of one enroll or cancel
// request. It is not persisted; the booleans decide which compensations a
// failure requires.
type Attempt struct {
	ID               string
	UserID           string
	SessionID        string
	State            AttemptState
	CreditsReserved  bool
	ParticipantAdded bool
}

// Ledger is the credit-balance collaborator.
type Ledger interface {
	GetAccount(ctx context.Context, userID string) (*models.CreditAccount, error)
	Debit(ctx context.Context, userID string, amount int64) (*models.CreditOperation, error)
	Credit(ctx context.Context, userID string, amount int64) (*models.CreditOperation, error)
}

// Roster is the session-membership collaborator.
type Roster interface {
	GetSession(ctx context.Context, sessionID string) (*models.Session, error)
	AddParticipant(ctx context.Context, sessionID, userID string) (*models.RosterSnapshot, error)
	RemoveParticipant(ctx context.Context, sessionID, userID string) (*models.RosterSnapshot, error)
}

// Notifier accepts best-effort notification events. Publish failures are
// logged and ignored; they never gate the saga outcome.
type Notifier interface {
	Publish(ctx context.Context, event models.NotificationEvent) error
}

// Participant identifies the enrolling user and carries the contact details
// the notification event needs.
type Participant struct {
	ID        string
	Email     string
	FirstName string
}

// EnrollmentResult is returned on a completed enrollment.
type EnrollmentResult struct {
	SessionID       string                `json:"session_id"`
	UserID          string                `json:"user_id"`
	PreviousCredits int64                 `json:"previous_credits"`
	NewCredits      int64                 `json:"new_credits"`
	Roster          models.RosterSnapshot `json:"roster"`
}

// CancellationResult is returned on a completed cancellation.
type CancellationResult struct {
	SessionID       string                `json:"session_id"`
	UserID          string                `json:"user_id"`
	CreditsRefunded int64                 `json:"credits_refunded"`
	NewCredits      int64                 `json:"new_credits"`
	Roster          models.RosterSnapshot `json:"roster"`
}

// Coordinator orchestrates the ledger, roster and notifier for a single
// enroll or cancel request. Collaborators are injected explicitly so tests
// can substitute fakes.
type Coordinator struct {
	ledger   Ledger
	roster   Roster
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a Coordinator.
func New(ledger Ledger, roster Roster, notifier Notifier, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		ledger:   ledger,
		roster:   roster,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// Enroll registers the user in the session, debiting the credit cost first
// and compensating the debit if the roster write fails.
func (c *Coordinator) Enroll(ctx context.Context, user Participant, sessionID string) (*EnrollmentResult, error) {
	attempt := &Attempt{
		ID:        uuid.New().String(),
		UserID:    user.ID,
		SessionID: sessionID,
		State:     StateInitiated,
	}
	c.logger.Info("starting enrollment",
		slog.String("attempt_id", attempt.ID),
		slog.String("user_id", user.ID),
		slog.String("session_id", sessionID),
	)

	session, err := c.roster.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := c.validateEnrollment(ctx, session, user.ID); err != nil {
		return nil, err
	}

	// Forward step 1: debit. A race lost to a concurrent debit fails here
	// with nothing to unwind.
	debit, err := c.ledger.Debit(ctx, user.ID, session.CreditsRequired)
	if err != nil {
		return nil, err
	}
	attempt.State = StateCreditsDebited
	attempt.CreditsReserved = true

	// Forward step 2: roster append.
	snapshot, err := c.addParticipant(ctx, session, user.ID)
	if err != nil {
		return nil, c.compensateDebit(ctx, attempt, session.CreditsRequired, err)
	}
	attempt.State = StateParticipantAdded
	attempt.ParticipantAdded = true

	attempt.State = StateCompleted
	c.logger.Info("enrollment completed",
		slog.String("attempt_id", attempt.ID),
		slog.String("user_id", user.ID),
		slog.String("session_id", sessionID),
		slog.Int("participant_count", snapshot.ParticipantCount),
		slog.Int64("new_credits", debit.NewCredits),
	)

	c.publish(ctx, models.UserEnrolled, user, session)

	return &EnrollmentResult{
		SessionID:       sessionID,
		UserID:          user.ID,
		PreviousCredits: debit.PreviousCredits,
		NewCredits:      debit.NewCredits,
		Roster:          *snapshot,
	}, nil
}

// Cancel removes the user from the session and refunds the credit cost.
// The roster removal comes first so the seat never stays occupied after
// credits move; a failed refund triggers a compensating re-add.
func (c *Coordinator) Cancel(ctx context.Context, user Participant, sessionID string) (*CancellationResult, error) {
	attempt := &Attempt{
		ID:        uuid.New().String(),
		UserID:    user.ID,
		SessionID: sessionID,
		State:     StateInitiated,
	}
	c.logger.Info("starting cancellation",
		slog.String("attempt_id", attempt.ID),
		slog.String("user_id", user.ID),
		slog.String("session_id", sessionID),
	)

	session, err := c.roster.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	// Forward step 1: roster removal. Deadline and membership rules are
	// enforced by the roster; nothing is mutated on failure.
	snapshot, err := c.removeParticipant(ctx, session, user.ID)
	if err != nil {
		return nil, err
	}
	attempt.State = StateParticipantAdded // seat released, refund pending

	// Forward step 2: refund.
	refund, err := c.ledger.Credit(ctx, user.ID, session.CreditsRequired)
	if err != nil {
		return nil, c.compensateRemoval(ctx, attempt, session.CreditsRequired, err)
	}
	attempt.CreditsReserved = false

	attempt.State = StateCompleted
	c.logger.Info("cancellation completed",
		slog.String("attempt_id", attempt.ID),
		slog.String("user_id", user.ID),
		slog.String("session_id", sessionID),
		slog.Int64("new_credits", refund.NewCredits),
	)

	c.publish(ctx, models.UserCancelled, user, session)

	return &CancellationResult{
		SessionID:       sessionID,
		UserID:          user.ID,
		CreditsRefunded: session.CreditsRequired,
		NewCredits:      refund.NewCredits,
		Roster:          *snapshot,
	}, nil
}

// validateEnrollment runs the pre-mutation checks: lifecycle state, start
// time, membership, capacity, and balance. All of them fail without
// touching either resource.
func (c *Coordinator) validateEnrollment(ctx context.Context, session *models.Session, userID string) error {
	if session.Status != models.SCHEDULED {
		return &storage.InvalidSessionStateError{SessionID: session.ID, Status: string(session.Status)}
	}
	if !c.now().Before(session.StartTime) {
		return &SessionStartedError{SessionID: session.ID, StartTime: session.StartTime}
	}
	if session.HasParticipant(userID) {
		return storage.ErrUserAlreadyRegistered
	}
	if len(session.ParticipantIDs) >= session.Capacity {
		return &storage.SessionFullError{
			SessionID: session.ID,
			Current:   len(session.ParticipantIDs),
			Max:       session.Capacity,
		}
	}

	account, err := c.ledger.GetAccount(ctx, userID)
	if err != nil {
		return err
	}
	if account.Balance < session.CreditsRequired {
		return &storage.InsufficientCreditsError{
			UserID:    userID,
			Available: account.Balance,
			Required:  session.CreditsRequired,
		}
	}
	return nil
}

// addParticipant performs the roster append, resolving a timed-out call by
// re-querying the roster: the coordinator cannot assume a timed-out write
// did not apply, and compensating a write that actually landed would
// double-credit the user.
func (c *Coordinator) addParticipant(ctx context.Context, session *models.Session, userID string) (*models.RosterSnapshot, error) {
	snapshot, err := c.roster.AddParticipant(ctx, session.ID, userID)
	if err == nil {
		return snapshot, nil
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		return nil, err
	}

	c.logger.Warn("roster call timed out, re-querying before deciding on compensation",
		slog.String("user_id", userID),
		slog.String("session_id", session.ID),
	)
	requeried, verr := c.roster.GetSession(context.WithoutCancel(ctx), session.ID)
	if verr != nil {
		return nil, fmt.Errorf("roster state unknown after timeout: %w", errors.Join(err, verr))
	}
	if requeried.HasParticipant(userID) {
		// The write applied; only the response was lost.
		return &models.RosterSnapshot{
			SessionID:        requeried.ID,
			ParticipantCount: len(requeried.ParticipantIDs),
			AvailableSpots:   requeried.Capacity - len(requeried.ParticipantIDs),
			ParticipantIDs:   requeried.ParticipantIDs,
		}, nil
	}
	return nil, err
}

// removeParticipant performs the roster removal, resolving a timed-out call
// the same way addParticipant does. A removal that landed without a response
// must still reach the refund step, or the user loses the seat and the
// credits both.
func (c *Coordinator) removeParticipant(ctx context.Context, session *models.Session, userID string) (*models.RosterSnapshot, error) {
	snapshot, err := c.roster.RemoveParticipant(ctx, session.ID, userID)
	if err == nil {
		return snapshot, nil
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		return nil, err
	}

	c.logger.Warn("roster call timed out, re-querying before deciding on compensation",
		slog.String("user_id", userID),
		slog.String("session_id", session.ID),
	)
	requeried, verr := c.roster.GetSession(context.WithoutCancel(ctx), session.ID)
	if verr != nil {
		return nil, fmt.Errorf("roster state unknown after timeout: %w", errors.Join(err, verr))
	}
	if !requeried.HasParticipant(userID) {
		// The removal applied; only the response was lost.
		return &models.RosterSnapshot{
			SessionID:        requeried.ID,
			ParticipantCount: len(requeried.ParticipantIDs),
			AvailableSpots:   requeried.Capacity - len(requeried.ParticipantIDs),
			ParticipantIDs:   requeried.ParticipantIDs,
		}, nil
	}
	return nil, err
}

// compensateDebit refunds a debit after a roster failure. When the
// compensation itself fails the saga halts with a critical error that
// replaces the original business error: the caller must not be shown
// "session full" while their credits are actually gone.
func (c *Coordinator) compensateDebit(ctx context.Context, attempt *Attempt, amount int64, cause error) error {
	attempt.State = StateCompensating
	c.logger.Warn("roster write failed after debit, compensating credits",
		slog.String("attempt_id", attempt.ID),
		slog.String("user_id", attempt.UserID),
		slog.String("session_id", attempt.SessionID),
		slog.String("cause", cause.Error()),
	)

	// The compensating credit must run even if the request context is
	// already done; abandoning it would leak the debit.
	if _, err := c.ledger.Credit(context.WithoutCancel(ctx), attempt.UserID, amount); err != nil {
		attempt.State = StateRollbackFailed
		critical := &RollbackFailedError{
			UserID:    attempt.UserID,
			SessionID: attempt.SessionID,
			Amount:    amount,
			Cause:     err,
		}
		c.logger.Error("CRITICAL: credit compensation failed, manual intervention required",
			slog.String("attempt_id", attempt.ID),
			slog.String("user_id", attempt.UserID),
			slog.String("session_id", attempt.SessionID),
			slog.Int64("amount", amount),
			slog.String("error", err.Error()),
		)
		return critical
	}

	attempt.State = StateCompensated
	attempt.CreditsReserved = false
	c.logger.Info("credits compensated after roster failure",
		slog.String("attempt_id", attempt.ID),
		slog.String("user_id", attempt.UserID),
		slog.String("session_id", attempt.SessionID),
	)
	return cause
}

// compensateRemoval re-adds a removed participant after a failed refund,
// escalating like the enroll path when the re-add also fails.
func (c *Coordinator) compensateRemoval(ctx context.Context, attempt *Attempt, amount int64, cause error) error {
	attempt.State = StateCompensating
	c.logger.Warn("refund failed after roster removal, re-adding participant",
		slog.String("attempt_id", attempt.ID),
		slog.String("user_id", attempt.UserID),
		slog.String("session_id", attempt.SessionID),
		slog.String("cause", cause.Error()),
	)

	if _, err := c.roster.AddParticipant(context.WithoutCancel(ctx), attempt.SessionID, attempt.UserID); err != nil {
		attempt.State = StateRollbackFailed
		critical := &RollbackFailedError{
			UserID:    attempt.UserID,
			SessionID: attempt.SessionID,
			Amount:    amount,
			Cause:     errors.Join(cause, err),
		}
		c.logger.Error("CRITICAL: participant re-add failed after refund failure, manual intervention required",
			slog.String("attempt_id", attempt.ID),
			slog.String("user_id", attempt.UserID),
			slog.String("session_id", attempt.SessionID),
			slog.Int64("amount", amount),
			slog.String("error", err.Error()),
		)
		return critical
	}

	attempt.State = StateCompensated
	c.logger.Info("participant re-added after refund failure",
		slog.String("attempt_id", attempt.ID),
		slog.String("user_id", attempt.UserID),
		slog.String("session_id", attempt.SessionID),
	)
	return fmt.Errorf("credit refund failed, enrollment restored: %w", cause)
}

// publish fires a best-effort notification event.
func (c *Coordinator) publish(ctx context.Context, eventType models.NotificationEventType, user Participant, session *models.Session) {
	event := models.NotificationEvent{
		EventType: eventType,
		Recipient: models.Recipient{Email: user.Email, FirstName: user.FirstName},
		Session: models.SessionSnapshot{
			SessionID: session.ID,
			Subject:   session.Subject,
			StartTime: session.StartTime,
		},
	}
	if err := c.notifier.Publish(context.WithoutCancel(ctx), event); err != nil {
		c.logger.Warn("failed to publish notification event",
			slog.String("user_id", user.ID),
			slog.String("session_id", session.ID),
			slog.String("event_type", string(eventType)),
			slog.String("error", err.Error()),
		)
	}
}
