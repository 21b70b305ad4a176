// Package ledger tracks user balances and the transactions that
// explain them.
//
// Flow:
//  1. User requests a deposit (pending transaction)
//  2. An operator approves it, which credits the stored balance
//  3. Orders debit the balance (approved order transaction)
//  4. Refunds credit it back (approved refund transaction)
//
// The stored balance is authoritative for spending decisions; the
// transaction history is the audit trail. Balance writes and
// transaction-status writes are separate non-transactional calls, so
// the two can diverge; the verifier package exists to detect and
// repair that.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/boostlab/boostpanel/internal/money"
)

var (
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrUserNotFound        = errors.New("user not found")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrAlreadyProcessed    = errors.New("transaction already processed")
)

// Transaction is one ledger row. Status transitions pending→approved
// or pending→rejected only; approved and rejected are terminal.
type Transaction struct {
	ID         string       `json:"id"`
	UserID     string       `json:"userId"`
	Type       string       `json:"type"`   // deposit, order, refund
	Status     string       `json:"status"` // pending, approved, rejected
	Amount     money.Amount `json:"amount"`
	Reference  string       `json:"reference,omitempty"` // originating order id for order/refund rows
	CreditedAt *time.Time   `json:"creditedAt,omitempty"`
	CreatedAt  time.Time    `json:"createdAt"`
	UpdatedAt  time.Time    `json:"updatedAt"`
}

// VerifiedTransaction memoizes the verifier's classification of an
// approved deposit so a pass never re-samples balances for a
// transaction already classified as updated.
type VerifiedTransaction struct {
	TransactionID string    `json:"transactionId"`
	Status        string    `json:"verifiedStatus"` // updated, not_updated, unknown
	VerifierID    string    `json:"verifierId"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Store persists balances, transactions and verification memos. Writes
// return the affected state so callers can verify without a second
// round trip; balance mutations are atomic increments, never
// read-modify-write.
type Store interface {
	// GetBalance returns the stored balance. Unknown users have a
	// zero balance.
	GetBalance(ctx context.Context, userID string) (money.Amount, error)

	// AddToBalance atomically adds delta (which may be negative only
	// via DebitBalance) and returns the new balance, creating the
	// profile row if needed.
	AddToBalance(ctx context.Context, userID string, delta money.Amount) (money.Amount, error)

	// DebitBalance atomically subtracts amount, failing with
	// ErrInsufficientBalance if the balance would go negative, and
	// returns the new balance.
	DebitBalance(ctx context.Context, userID string, amount money.Amount) (money.Amount, error)

	InsertTransaction(ctx context.Context, tx *Transaction) error
	GetTransaction(ctx context.Context, id string) (*Transaction, error)

	// UpdateTransactionStatus writes the status and returns the row
	// as stored after the write.
	UpdateTransactionStatus(ctx context.Context, id, txStatus string) (*Transaction, error)

	// MarkCredited claims the balance-credit step for a transaction.
	// It returns true exactly once per transaction; subsequent calls
	// return false. This is the idempotency key that keeps a repeated
	// approval from crediting twice.
	MarkCredited(ctx context.Context, id string, at time.Time) (bool, error)

	// ListTransactions returns a user's full transaction history,
	// oldest first.
	ListTransactions(ctx context.Context, userID string) ([]*Transaction, error)

	// ListDeposits returns deposit transactions with the given
	// status, newest first.
	ListDeposits(ctx context.Context, txStatus string, limit int) ([]*Transaction, error)

	GetVerified(ctx context.Context, transactionID string) (*VerifiedTransaction, error)
	UpsertVerified(ctx context.Context, v *VerifiedTransaction) error

	CountProfiles(ctx context.Context) (int, error)
	CountPendingDeposits(ctx context.Context) (int, error)
}

// ApprovalFailedError is returned when the deposit-approval workflow
// exhausts its retries. The transaction may remain approved with the
// balance credit unapplied; that divergence is what the verifier
// catches.
type ApprovalFailedError struct {
	TransactionID string
	UserID        string
	Amount        money.Amount
	LastBalance   money.Amount
	Err           error
}

func (e *ApprovalFailedError) Error() string {
	return fmt.Sprintf("approval failed for transaction %s (user %s, amount %s, last balance %s): %v",
		e.TransactionID, e.UserID, e.Amount, e.LastBalance, e.Err)
}

func (e *ApprovalFailedError) Unwrap() error { return e.Err }

// LedgerBalance computes the balance implied by a transaction history:
// approved deposits plus approved refunds minus approved order debits.
func LedgerBalance(history []*Transaction) money.Amount {
	var sum money.Amount
	for _, tx := range history {
		if tx.Status != "approved" {
			continue
		}
		switch tx.Type {
		case "deposit", "refund":
			sum += tx.Amount
		case "order":
			sum -= tx.Amount
		}
	}
	return sum
}
