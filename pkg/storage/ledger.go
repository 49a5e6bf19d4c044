package storage

import (
	"context"

	"github.com/kundapp/booking/pkg/models"
)

// LedgerStore defines the interface for the credit ledger. Debit and Credit
// are the only entry points that mutate a balance, and both are atomic
// read-modify-writes: concurrent debits against the same account must never
// lose updates or drive the balance negative.
type LedgerStore interface {
	// GetAccount retrieves a user's credit account.
	GetAccount(ctx context.Context, userID string) (*models.CreditAccount, error)

	// CreateAccount creates a new account with a starting balance.
	CreateAccount(ctx context.Context, account *models.CreditAccount) (*models.CreditAccount, error)

	// Debit atomically decrements the balance. It fails with
	// *InsufficientCreditsError when balance < amount; no partial state
	// survives a failed debit.
	Debit(ctx context.Context, userID string, amount int64) (*models.CreditOperation, error)

	// Credit unconditionally increments the balance. It is used both for
	// user-initiated refunds and for saga compensation; idempotency is the
	// caller's responsibility.
	Credit(ctx context.Context, userID string, amount int64) (*models.CreditOperation, error)
}
