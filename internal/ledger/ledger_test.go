package ledger

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boostlab/boostpanel/internal/money"
	"github.com/boostlab/boostpanel/internal/status"
)

// flakyStore wraps a Store and fails AddToBalance a fixed number of
// times before delegating.
type flakyStore struct {
	Store
	addFailures int
	addCalls    int
}

func (f *flakyStore) AddToBalance(ctx context.Context, userID string, delta money.Amount) (money.Amount, error) {
	f.addCalls++
	if f.addFailures > 0 {
		f.addFailures--
		return 0, errors.New("connection reset")
	}
	return f.Store.AddToBalance(ctx, userID, delta)
}

// brokenBalanceStore wraps a Store and fails balance reads on demand.
type brokenBalanceStore struct {
	Store
	failReads bool
}

func (b *brokenBalanceStore) GetBalance(ctx context.Context, userID string) (money.Amount, error) {
	if b.failReads {
		return 0, errors.New("connection reset")
	}
	return b.Store.GetBalance(ctx, userID)
}

func newTestService(store Store) *Service {
	return NewService(store, slog.Default())
}

func pendingDeposit(t *testing.T, store Store, userID string, amount money.Amount) *Transaction {
	t.Helper()
	svc := newTestService(store)
	tx, err := svc.RequestDeposit(context.Background(), userID, amount)
	require.NoError(t, err)
	return tx
}

func TestRequestDeposit(t *testing.T) {
	store := NewMemoryStore()
	svc := newTestService(store)
	ctx := context.Background()

	tx, err := svc.RequestDeposit(ctx, "usr_1", money.MustParse("50.00"))
	require.NoError(t, err)
	assert.Equal(t, status.TypeDeposit, tx.Type)
	assert.Equal(t, status.TxPending, tx.Status)
	assert.Equal(t, money.Amount(5000), tx.Amount)

	// Balance untouched until approval.
	bal, err := svc.Balance(ctx, "usr_1")
	require.NoError(t, err)
	assert.Equal(t, money.Amount(0), bal)
}

func TestRequestDeposit_InvalidAmount(t *testing.T) {
	svc := newTestService(NewMemoryStore())
	_, err := svc.RequestDeposit(context.Background(), "usr_1", 0)
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = svc.RequestDeposit(context.Background(), "usr_1", -100)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestApprove_CreditsBalance(t *testing.T) {
	store := NewMemoryStore()
	store.SetBalance("usr_1", money.MustParse("100.00"))
	tx := pendingDeposit(t, store, "usr_1", money.MustParse("50.00"))

	svc := newTestService(store)
	result, err := svc.Approve(context.Background(), tx.ID)
	require.NoError(t, err)

	assert.Equal(t, tx.ID, result.TransactionID)
	assert.Equal(t, "usr_1", result.UserID)
	assert.Equal(t, money.MustParse("50.00"), result.Amount)
	assert.Equal(t, money.MustParse("150.00"), result.NewBalance)

	stored, err := store.GetTransaction(context.Background(), tx.ID)
	require.NoError(t, err)
	assert.Equal(t, status.TxApproved, stored.Status)
	assert.NotNil(t, stored.CreditedAt)
}

func TestApprove_SecondCallDoesNotDoubleCredit(t *testing.T) {
	store := NewMemoryStore()
	tx := pendingDeposit(t, store, "usr_1", money.MustParse("50.00"))
	svc := newTestService(store)
	ctx := context.Background()

	_, err := svc.Approve(ctx, tx.ID)
	require.NoError(t, err)

	// Re-approving an already approved transaction is reported as
	// success (idempotent status step) but cannot credit again.
	result, err := svc.Approve(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, money.MustParse("50.00"), result.NewBalance)

	bal, err := store.GetBalance(ctx, "usr_1")
	require.NoError(t, err)
	assert.Equal(t, money.MustParse("50.00"), bal)
}

func TestApprove_RepeatSurfacesBalanceReadFailure(t *testing.T) {
	store := &brokenBalanceStore{Store: NewMemoryStore()}
	svc := newTestService(store)
	ctx := context.Background()
	tx := pendingDeposit(t, store, "usr_1", money.MustParse("25.00"))

	result, err := svc.Approve(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, money.MustParse("25.00"), result.NewBalance)

	// A repeat approval reports the current balance instead of
	// crediting again. If that read keeps failing the caller hears
	// about it rather than being handed a zero balance.
	store.failReads = true
	_, err = svc.Approve(ctx, tx.ID)
	var approvalErr *ApprovalFailedError
	require.ErrorAs(t, err, &approvalErr)
	assert.Contains(t, approvalErr.Error(), "balance read-back")
}

func TestApprove_RetriesTransientCreditFailure(t *testing.T) {
	mem := NewMemoryStore()
	tx := pendingDeposit(t, mem, "usr_1", money.MustParse("25.00"))
	store := &flakyStore{Store: mem, addFailures: 2}

	svc := newTestService(store)
	result, err := svc.Approve(context.Background(), tx.ID)
	require.NoError(t, err)
	assert.Equal(t, money.MustParse("25.00"), result.NewBalance)
	assert.Equal(t, 3, store.addCalls)
}

func TestApprove_ExhaustedCreditFailure(t *testing.T) {
	mem := NewMemoryStore()
	tx := pendingDeposit(t, mem, "usr_1", money.MustParse("25.00"))
	store := &flakyStore{Store: mem, addFailures: 10}

	svc := newTestService(store)
	_, err := svc.Approve(context.Background(), tx.ID)

	var approvalErr *ApprovalFailedError
	require.ErrorAs(t, err, &approvalErr)
	assert.Equal(t, tx.ID, approvalErr.TransactionID)
	assert.Equal(t, "usr_1", approvalErr.UserID)

	// The status write landed before the credit failed, exactly the
	// divergence the verifier is built to catch.
	stored, err := mem.GetTransaction(context.Background(), tx.ID)
	require.NoError(t, err)
	assert.Equal(t, status.TxApproved, stored.Status)
	bal, _ := mem.GetBalance(context.Background(), "usr_1")
	assert.Equal(t, money.Amount(0), bal)
}

func TestApprove_RejectedIsTerminal(t *testing.T) {
	store := NewMemoryStore()
	tx := pendingDeposit(t, store, "usr_1", money.MustParse("25.00"))
	svc := newTestService(store)
	ctx := context.Background()

	_, err := svc.Reject(ctx, tx.ID)
	require.NoError(t, err)

	_, err = svc.Approve(ctx, tx.ID)
	assert.ErrorIs(t, err, ErrAlreadyProcessed)
}

func TestApprove_NotFound(t *testing.T) {
	svc := newTestService(NewMemoryStore())
	_, err := svc.Approve(context.Background(), "txn_missing")
	assert.ErrorIs(t, err, ErrTransactionNotFound)
}

func TestReject_TerminalRefused(t *testing.T) {
	store := NewMemoryStore()
	tx := pendingDeposit(t, store, "usr_1", money.MustParse("25.00"))
	svc := newTestService(store)
	ctx := context.Background()

	_, err := svc.Approve(ctx, tx.ID)
	require.NoError(t, err)

	_, err = svc.Reject(ctx, tx.ID)
	assert.ErrorIs(t, err, ErrAlreadyProcessed)
}

func TestDebitForOrder(t *testing.T) {
	store := NewMemoryStore()
	store.SetBalance("usr_1", money.MustParse("100.00"))
	svc := newTestService(store)
	ctx := context.Background()

	newBal, err := svc.DebitForOrder(ctx, "usr_1", "ord_1", money.MustParse("30.00"))
	require.NoError(t, err)
	assert.Equal(t, money.MustParse("70.00"), newBal)

	history, err := svc.History(ctx, "usr_1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, status.TypeOrder, history[0].Type)
	assert.Equal(t, status.TxApproved, history[0].Status)
	assert.Equal(t, "ord_1", history[0].Reference)
}

func TestDebitForOrder_Insufficient(t *testing.T) {
	store := NewMemoryStore()
	store.SetBalance("usr_1", money.MustParse("10.00"))
	svc := newTestService(store)

	_, err := svc.DebitForOrder(context.Background(), "usr_1", "ord_1", money.MustParse("30.00"))
	assert.ErrorIs(t, err, ErrInsufficientBalance)
}

func TestCreditRefund(t *testing.T) {
	store := NewMemoryStore()
	store.SetBalance("usr_1", money.MustParse("10.00"))
	svc := newTestService(store)
	ctx := context.Background()

	newBal, err := svc.CreditRefund(ctx, "usr_1", "ord_1", money.MustParse("7.50"))
	require.NoError(t, err)
	assert.Equal(t, money.MustParse("17.50"), newBal)

	history, err := svc.History(ctx, "usr_1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, status.TypeRefund, history[0].Type)
	assert.Equal(t, "ord_1", history[0].Reference)
}

func TestLedgerBalance(t *testing.T) {
	now := time.Now()
	history := []*Transaction{
		{Type: "deposit", Status: "approved", Amount: 10000, CreatedAt: now},
		{Type: "deposit", Status: "pending", Amount: 99999, CreatedAt: now},
		{Type: "order", Status: "approved", Amount: 3000, CreatedAt: now},
		{Type: "refund", Status: "approved", Amount: 500, CreatedAt: now},
		{Type: "deposit", Status: "rejected", Amount: 12345, CreatedAt: now},
	}
	assert.Equal(t, money.Amount(7500), LedgerBalance(history))
}

func TestMarkCredited_ClaimsOnce(t *testing.T) {
	store := NewMemoryStore()
	tx := pendingDeposit(t, store, "usr_1", money.MustParse("5.00"))
	ctx := context.Background()

	claimed, err := store.MarkCredited(ctx, tx.ID, time.Now())
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = store.MarkCredited(ctx, tx.ID, time.Now())
	require.NoError(t, err)
	assert.False(t, claimed)
}
