// Package verifier detects silent divergence between stored balances
// and the transaction ledger.
//
// Balance mutation and transaction status mutation are separate
// writes with no shared transaction, so a credit can be lost without
// any operation reporting failure. The verifier samples the stored
// balance, compares it against the ledger-implied balance, and
// classifies each approved deposit as updated, not_updated, or
// unknown. Classification deliberately errs toward updated: a timing
// race with a concurrent writer must not flag a healthy deposit.
package verifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/boostlab/boostpanel/internal/idgen"
	"github.com/boostlab/boostpanel/internal/ledger"
	"github.com/boostlab/boostpanel/internal/money"
	"github.com/boostlab/boostpanel/internal/status"
)

var ErrNotVerifiable = errors.New("transaction is not an approved deposit")

const (
	samples            = 3
	defaultSampleDelay = 500 * time.Millisecond

	// defaultEpsilon is the tolerance floor in cents.
	defaultEpsilon = money.Amount(1)
)

// Result reports one verification pass.
type Result struct {
	TransactionID string       `json:"transactionId"`
	Status        string       `json:"status"` // updated, not_updated, unknown
	LedgerBalance money.Amount `json:"ledgerBalance"`
	FreshBalance  money.Amount `json:"freshBalance"`
	Tolerance     money.Amount `json:"tolerance"`
	Memoized      bool         `json:"memoized"`
}

// Service runs triple-check balance verification.
type Service struct {
	store       ledger.Store
	logger      *slog.Logger
	sampleDelay time.Duration
	epsilon     money.Amount
	verifierID  string
}

// Option configures a Service.
type Option func(*Service)

// WithSampleDelay sets the pause between balance samples.
func WithSampleDelay(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.sampleDelay = d
		}
	}
}

// WithEpsilon sets the tolerance floor.
func WithEpsilon(e money.Amount) Option {
	return func(s *Service) {
		if e > 0 {
			s.epsilon = e
		}
	}
}

// New creates a verifier service.
func New(store ledger.Store, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:       store,
		logger:      logger,
		sampleDelay: defaultSampleDelay,
		epsilon:     defaultEpsilon,
		verifierID:  idgen.WithPrefix("vrf_"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Verify classifies one approved deposit. A transaction already
// classified updated is never re-sampled; the memo is returned as is.
func (s *Service) Verify(ctx context.Context, transactionID string) (*Result, error) {
	tx, err := s.store.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if tx.Type != status.TypeDeposit || tx.Status != status.TxApproved {
		return nil, ErrNotVerifiable
	}

	if memo, err := s.store.GetVerified(ctx, transactionID); err != nil {
		return nil, fmt.Errorf("load verification memo: %w", err)
	} else if memo != nil && memo.Status == status.VerifiedUpdated {
		return &Result{
			TransactionID: transactionID,
			Status:        memo.Status,
			Memoized:      true,
		}, nil
	}

	history, err := s.store.ListTransactions(ctx, tx.UserID)
	if err != nil {
		return nil, fmt.Errorf("load transaction history: %w", err)
	}
	ledgerBalance := ledger.LedgerBalance(history)
	withoutT := ledgerBalance - tx.Amount

	fresh, sampled := s.sampleBalance(ctx, tx.UserID)
	if !sampled {
		// Nothing observed; record indeterminate and move on.
		result := &Result{
			TransactionID: transactionID,
			Status:        status.VerifiedUnknown,
			LedgerBalance: ledgerBalance,
		}
		return result, s.persist(ctx, result)
	}

	tolerance := money.Max(s.epsilon, ledgerBalance.Percent(1))
	result := &Result{
		TransactionID: transactionID,
		Status:        s.classify(tx.Amount, ledgerBalance, withoutT, fresh, tolerance),
		LedgerBalance: ledgerBalance,
		FreshBalance:  fresh,
		Tolerance:     tolerance,
	}

	if result.Status != status.VerifiedUpdated {
		s.logger.Warn("deposit verification flagged divergence",
			"transaction_id", transactionID,
			"user_id", tx.UserID,
			"classification", result.Status,
			"ledger_balance", ledgerBalance,
			"fresh_balance", fresh,
			"tolerance", tolerance)
	}
	return result, s.persist(ctx, result)
}

// sampleBalance reads the stored balance several times with a short
// pause and keeps the maximum, riding out eventual-consistency
// windows from concurrent writers. Returns false if no read succeeded.
func (s *Service) sampleBalance(ctx context.Context, userID string) (money.Amount, bool) {
	var (
		best    money.Amount
		sampled bool
	)
	for i := 0; i < samples; i++ {
		if i > 0 && s.sampleDelay > 0 {
			select {
			case <-ctx.Done():
				return best, sampled
			case <-time.After(s.sampleDelay):
			}
		}
		balance, err := s.store.GetBalance(ctx, userID)
		if err != nil {
			s.logger.Warn("balance sample failed", "user_id", userID, "error", err)
			continue
		}
		if !sampled || balance > best {
			best = balance
		}
		sampled = true
	}
	return best, sampled
}

// classify runs the three checks and the vote.
func (s *Service) classify(amount, ledgerBalance, withoutT, fresh, tolerance money.Amount) string {
	checkA := fresh >= ledgerBalance-tolerance
	checkB := fresh >= withoutT+amount-tolerance
	shortfall := ledgerBalance - fresh
	checkC := shortfall <= tolerance || shortfall <= amount.Percent(50)

	passes := 0
	for _, ok := range []bool{checkA, checkB, checkC} {
		if ok {
			passes++
		}
	}

	switch {
	case passes >= 2:
		return status.VerifiedUpdated
	case passes == 1:
		// One vote is ambiguous. If the stored balance sits at the
		// pre-credit level the credit is genuinely missing; anything
		// above that is concurrent-writer drift.
		if fresh <= withoutT+tolerance {
			return status.VerifiedNotUpdated
		}
		return status.VerifiedUpdated
	default:
		// Zero votes still defaults to updated unless nearly the whole
		// deposit is missing; benign races routinely fail all three.
		if shortfall > amount.Percent(90) {
			return status.VerifiedNotUpdated
		}
		return status.VerifiedUpdated
	}
}

func (s *Service) persist(ctx context.Context, result *Result) error {
	verificationsTotal.WithLabelValues(result.Status).Inc()
	return s.store.UpsertVerified(ctx, &ledger.VerifiedTransaction{
		TransactionID: result.TransactionID,
		Status:        result.Status,
		VerifierID:    s.verifierID,
		UpdatedAt:     time.Now(),
	})
}

// Repair manually applies a deposit flagged not_updated: credits the
// amount and reclassifies the transaction updated.
func (s *Service) Repair(ctx context.Context, transactionID string) (money.Amount, error) {
	tx, err := s.store.GetTransaction(ctx, transactionID)
	if err != nil {
		return 0, err
	}
	if tx.Type != status.TypeDeposit || tx.Status != status.TxApproved {
		return 0, ErrNotVerifiable
	}

	newBalance, err := s.store.AddToBalance(ctx, tx.UserID, tx.Amount)
	if err != nil {
		return 0, fmt.Errorf("repair credit: %w", err)
	}
	repairsTotal.Inc()

	if err := s.store.UpsertVerified(ctx, &ledger.VerifiedTransaction{
		TransactionID: transactionID,
		Status:        status.VerifiedUpdated,
		VerifierID:    s.verifierID,
		UpdatedAt:     time.Now(),
	}); err != nil {
		return newBalance, fmt.Errorf("reclassify after repair: %w", err)
	}

	s.logger.Info("deposit repaired",
		"transaction_id", transactionID,
		"user_id", tx.UserID,
		"amount", tx.Amount,
		"new_balance", newBalance)
	return newBalance, nil
}

// SweepSummary reports one verification sweep over approved deposits.
type SweepSummary struct {
	Verified int `json:"verified"`
	Flagged  int `json:"flagged"`
	Errors   int `json:"errors"`
	Memoized int `json:"memoized"`
}

// Sweep verifies recent approved deposits sequentially. Sampling is
// deliberate and slow per transaction, so the sweep stays serial.
func (s *Service) Sweep(ctx context.Context, limit int) (SweepSummary, error) {
	deposits, err := s.store.ListDeposits(ctx, status.TxApproved, limit)
	if err != nil {
		return SweepSummary{}, err
	}

	var summary SweepSummary
	for _, tx := range deposits {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}
		result, err := s.Verify(ctx, tx.ID)
		if err != nil {
			summary.Errors++
			continue
		}
		if result.Memoized {
			summary.Memoized++
			continue
		}
		summary.Verified++
		if result.Status == status.VerifiedNotUpdated {
			summary.Flagged++
		}
	}
	return summary, nil
}
