package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/boostlab/boostpanel/internal/idgen"
	"github.com/boostlab/boostpanel/internal/money"
	"github.com/boostlab/boostpanel/internal/retry"
	"github.com/boostlab/boostpanel/internal/status"
)

const (
	approveAttempts  = 3
	approveBaseDelay = 200 * time.Millisecond
)

// Service implements the deposit and balance workflows.
type Service struct {
	store  Store
	logger *slog.Logger
}

// NewService creates a ledger service.
func NewService(store Store, logger *slog.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// Store exposes the underlying store for collaborating subsystems
// (verifier, order service).
func (s *Service) Store() Store { return s.store }

// Balance returns the stored balance for a user.
func (s *Service) Balance(ctx context.Context, userID string) (money.Amount, error) {
	return s.store.GetBalance(ctx, userID)
}

// History returns the user's transaction history, oldest first.
func (s *Service) History(ctx context.Context, userID string) ([]*Transaction, error) {
	return s.store.ListTransactions(ctx, userID)
}

// RequestDeposit records a pending deposit awaiting approval.
func (s *Service) RequestDeposit(ctx context.Context, userID string, amount money.Amount) (*Transaction, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	now := time.Now()
	tx := &Transaction{
		ID:        idgen.WithPrefix("txn_"),
		UserID:    userID,
		Type:      status.TypeDeposit,
		Status:    status.TxPending,
		Amount:    amount,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.InsertTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("insert deposit transaction: %w", err)
	}

	s.logger.Info("deposit requested", "transaction_id", tx.ID, "user_id", userID, "amount", amount)
	return tx, nil
}

// ApprovalResult is the outcome of a successful approval.
type ApprovalResult struct {
	TransactionID string       `json:"transactionId"`
	UserID        string       `json:"userId"`
	Amount        money.Amount `json:"amount"`
	NewBalance    money.Amount `json:"newBalance"`
}

// Approve moves a pending deposit to approved and credits the user's
// balance.
//
// The status step is idempotent: a transaction already approved by a
// prior partial attempt counts as success. The credit step is guarded
// by MarkCredited, so repeated approvals of the same transaction
// credit at most once. Each store call retries with jittered backoff;
// if the credit never converges the transaction stays approved with
// the credit claimed but unapplied, which is the verifier's job to catch.
func (s *Service) Approve(ctx context.Context, transactionID string) (*ApprovalResult, error) {
	tx, err := s.getTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if tx.Type != status.TypeDeposit {
		return nil, fmt.Errorf("transaction %s is not a deposit", transactionID)
	}
	if tx.Status == status.TxRejected {
		return nil, ErrAlreadyProcessed
	}

	// Step 1: write approved and read back. "Already approved" from a
	// prior partial attempt is success.
	err = retry.Do(ctx, approveAttempts, approveBaseDelay, func() error {
		updated, uerr := s.store.UpdateTransactionStatus(ctx, transactionID, status.TxApproved)
		if uerr != nil {
			if errors.Is(uerr, ErrTransactionNotFound) {
				return retry.Permanent(uerr)
			}
			return uerr
		}
		if updated.Status != status.TxApproved {
			return fmt.Errorf("status read-back disagrees: got %q", updated.Status)
		}
		return nil
	})
	if err != nil {
		return nil, &ApprovalFailedError{
			TransactionID: transactionID,
			UserID:        tx.UserID,
			Amount:        tx.Amount,
			Err:           fmt.Errorf("approve status write: %w", err),
		}
	}

	// Step 2: credit the balance, at most once per transaction.
	var claimed bool
	err = retry.Do(ctx, approveAttempts, approveBaseDelay, func() error {
		var cerr error
		claimed, cerr = s.store.MarkCredited(ctx, transactionID, time.Now())
		return cerr
	})
	if err != nil {
		last, _ := s.store.GetBalance(ctx, tx.UserID)
		return nil, &ApprovalFailedError{
			TransactionID: transactionID,
			UserID:        tx.UserID,
			Amount:        tx.Amount,
			LastBalance:   last,
			Err:           fmt.Errorf("claim credit step: %w", err),
		}
	}

	var newBalance money.Amount
	if !claimed {
		// Repeat approval: the credit landed on an earlier attempt,
		// so report the current balance. A read failure here is
		// surfaced; re-approving is harmless.
		err = retry.Do(ctx, approveAttempts, approveBaseDelay, func() error {
			var gerr error
			newBalance, gerr = s.store.GetBalance(ctx, tx.UserID)
			return gerr
		})
		if err != nil {
			return nil, &ApprovalFailedError{
				TransactionID: transactionID,
				UserID:        tx.UserID,
				Amount:        tx.Amount,
				Err:           fmt.Errorf("balance read-back: %w", err),
			}
		}
	}
	if claimed {
		// The atomic increment returns the new balance; that returned
		// row is the read-back verification. A retry after an
		// ambiguous I/O failure can at worst credit twice, which the
		// verifier flags against the ledger-implied balance.
		err = retry.Do(ctx, approveAttempts, approveBaseDelay, func() error {
			var aerr error
			newBalance, aerr = s.store.AddToBalance(ctx, tx.UserID, tx.Amount)
			return aerr
		})
		if err != nil {
			last, _ := s.store.GetBalance(ctx, tx.UserID)
			return nil, &ApprovalFailedError{
				TransactionID: transactionID,
				UserID:        tx.UserID,
				Amount:        tx.Amount,
				LastBalance:   last,
				Err:           fmt.Errorf("credit balance: %w", err),
			}
		}
	}

	s.logger.Info("deposit approved",
		"transaction_id", transactionID,
		"user_id", tx.UserID,
		"amount", tx.Amount,
		"new_balance", newBalance,
		"credited", claimed,
	)
	depositsApproved.Inc()

	return &ApprovalResult{
		TransactionID: transactionID,
		UserID:        tx.UserID,
		Amount:        tx.Amount,
		NewBalance:    newBalance,
	}, nil
}

// Reject moves a pending deposit to rejected. Terminal transactions
// are refused.
func (s *Service) Reject(ctx context.Context, transactionID string) (*Transaction, error) {
	tx, err := s.getTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if status.IsTerminalTx(tx.Status) {
		return nil, ErrAlreadyProcessed
	}

	updated, err := s.store.UpdateTransactionStatus(ctx, transactionID, status.TxRejected)
	if err != nil {
		return nil, fmt.Errorf("reject transaction: %w", err)
	}

	s.logger.Info("deposit rejected", "transaction_id", transactionID, "user_id", tx.UserID)
	return updated, nil
}

// DebitForOrder atomically debits the balance for a new order and
// records the approved order transaction. Returns the new balance.
func (s *Service) DebitForOrder(ctx context.Context, userID, orderID string, amount money.Amount) (money.Amount, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}

	newBalance, err := s.store.DebitBalance(ctx, userID, amount)
	if errors.Is(err, ErrUserNotFound) {
		// A user with no profile has no funds.
		return 0, ErrInsufficientBalance
	}
	if err != nil {
		return 0, err
	}

	now := time.Now()
	tx := &Transaction{
		ID:        idgen.WithPrefix("txn_"),
		UserID:    userID,
		Type:      status.TypeOrder,
		Status:    status.TxApproved,
		Amount:    amount,
		Reference: orderID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.InsertTransaction(ctx, tx); err != nil {
		// The debit already landed; history is now short one debit
		// row. Logged, not rolled back; the verifier tolerates a
		// richer stored balance than the ledger implies.
		s.logger.Error("order debit transaction insert failed",
			"order_id", orderID, "user_id", userID, "error", err)
	}

	return newBalance, nil
}

// CreditRefund credits a refund back to the balance with retries and
// records the approved refund transaction. Returns the new balance.
func (s *Service) CreditRefund(ctx context.Context, userID, orderID string, amount money.Amount) (money.Amount, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}

	var newBalance money.Amount
	err := retry.Do(ctx, approveAttempts, approveBaseDelay, func() error {
		var aerr error
		newBalance, aerr = s.store.AddToBalance(ctx, userID, amount)
		return aerr
	})
	if err != nil {
		return 0, fmt.Errorf("credit refund: %w", err)
	}

	now := time.Now()
	tx := &Transaction{
		ID:        idgen.WithPrefix("txn_"),
		UserID:    userID,
		Type:      status.TypeRefund,
		Status:    status.TxApproved,
		Amount:    amount,
		Reference: orderID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.InsertTransaction(ctx, tx); err != nil {
		s.logger.Error("refund transaction insert failed",
			"order_id", orderID, "user_id", userID, "error", err)
	}

	refundsCredited.Inc()
	return newBalance, nil
}

// PendingDeposits lists deposits awaiting an operator decision.
func (s *Service) PendingDeposits(ctx context.Context, limit int) ([]*Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.store.ListDeposits(ctx, status.TxPending, limit)
}

func (s *Service) getTransaction(ctx context.Context, id string) (*Transaction, error) {
	tx, err := s.store.GetTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	if tx == nil {
		return nil, ErrTransactionNotFound
	}
	return tx, nil
}
