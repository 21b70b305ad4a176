package verifier

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boostlab/boostpanel/internal/ledger"
	"github.com/boostlab/boostpanel/internal/money"
	"github.com/boostlab/boostpanel/internal/status"
)

func seedDeposit(t *testing.T, store ledger.Store, id, userID, amount string) {
	t.Helper()
	now := time.Now()
	require.NoError(t, store.InsertTransaction(context.Background(), &ledger.Transaction{
		ID:        id,
		UserID:    userID,
		Type:      status.TypeDeposit,
		Status:    status.TxApproved,
		Amount:    money.MustParse(amount),
		CreatedAt: now,
		UpdatedAt: now,
	}))
}

func newVerifier(store ledger.Store) *Service {
	return New(store, slog.Default(), WithSampleDelay(0))
}

func TestVerify_ConsistentDeposit(t *testing.T) {
	store := ledger.NewMemoryStore()
	seedDeposit(t, store, "txn_base", "user-1", "100.00")
	seedDeposit(t, store, "txn_t", "user-1", "50.00")
	store.SetBalance("user-1", money.MustParse("150.00"))

	result, err := newVerifier(store).Verify(context.Background(), "txn_t")
	require.NoError(t, err)

	assert.Equal(t, status.VerifiedUpdated, result.Status)
	assert.Equal(t, money.MustParse("150.00"), result.LedgerBalance)
	assert.Equal(t, money.MustParse("150.00"), result.FreshBalance)
	assert.Equal(t, money.MustParse("1.50"), result.Tolerance)
	assert.False(t, result.Memoized)
}

func TestVerify_LostCreditFlaggedThenRepaired(t *testing.T) {
	store := ledger.NewMemoryStore()
	ctx := context.Background()
	seedDeposit(t, store, "txn_base", "user-1", "100.00")
	seedDeposit(t, store, "txn_t", "user-1", "50.00")
	// The credit for txn_t never landed.
	store.SetBalance("user-1", money.MustParse("100.00"))

	svc := newVerifier(store)
	result, err := svc.Verify(ctx, "txn_t")
	require.NoError(t, err)

	// Shortfall 50.00 exceeds 90% of the deposit (45.00).
	assert.Equal(t, status.VerifiedNotUpdated, result.Status)

	newBalance, err := svc.Repair(ctx, "txn_t")
	require.NoError(t, err)
	assert.Equal(t, money.MustParse("150.00"), newBalance)

	// Repair reclassified the transaction.
	memo, err := store.GetVerified(ctx, "txn_t")
	require.NoError(t, err)
	require.NotNil(t, memo)
	assert.Equal(t, status.VerifiedUpdated, memo.Status)
}

// countingStore counts balance reads to prove memoization short-circuits.
type countingStore struct {
	ledger.Store
	balanceReads int
}

func (c *countingStore) GetBalance(ctx context.Context, userID string) (money.Amount, error) {
	c.balanceReads++
	return c.Store.GetBalance(ctx, userID)
}

func TestVerify_MemoizedSkipsResampling(t *testing.T) {
	mem := ledger.NewMemoryStore()
	ctx := context.Background()
	seedDeposit(t, mem, "txn_t", "user-1", "50.00")
	mem.SetBalance("user-1", money.MustParse("50.00"))

	store := &countingStore{Store: mem}
	svc := newVerifier(store)

	first, err := svc.Verify(ctx, "txn_t")
	require.NoError(t, err)
	assert.Equal(t, status.VerifiedUpdated, first.Status)
	assert.Equal(t, samples, store.balanceReads)

	// Even a now-divergent balance is not re-examined.
	mem.SetBalance("user-1", 0)
	second, err := svc.Verify(ctx, "txn_t")
	require.NoError(t, err)
	assert.Equal(t, status.VerifiedUpdated, second.Status)
	assert.True(t, second.Memoized)
	assert.Equal(t, samples, store.balanceReads)
}

func TestVerify_BenignShortfallDefaultsUpdated(t *testing.T) {
	store := ledger.NewMemoryStore()
	seedDeposit(t, store, "txn_base", "user-1", "100.00")
	seedDeposit(t, store, "txn_t", "user-1", "50.00")
	// 40.00 short of the ledger: all three checks fail, but the
	// shortfall stays under 90% of the deposit.
	store.SetBalance("user-1", money.MustParse("110.00"))

	result, err := newVerifier(store).Verify(context.Background(), "txn_t")
	require.NoError(t, err)
	assert.Equal(t, status.VerifiedUpdated, result.Status)
}

func TestVerify_SingleVoteAboveBaseline(t *testing.T) {
	store := ledger.NewMemoryStore()
	seedDeposit(t, store, "txn_base", "user-1", "100.00")
	seedDeposit(t, store, "txn_t", "user-1", "50.00")
	// Shortfall 20.00: within half the deposit, so only the third
	// check passes; the balance sits well above the pre-credit level.
	store.SetBalance("user-1", money.MustParse("130.00"))

	result, err := newVerifier(store).Verify(context.Background(), "txn_t")
	require.NoError(t, err)
	assert.Equal(t, status.VerifiedUpdated, result.Status)
}

// rampStore scripts successive balance reads.
type rampStore struct {
	ledger.Store
	values []money.Amount
	idx    int
}

func (r *rampStore) GetBalance(context.Context, string) (money.Amount, error) {
	v := r.values[r.idx]
	if r.idx < len(r.values)-1 {
		r.idx++
	}
	return v, nil
}

func TestVerify_TakesMaximumSample(t *testing.T) {
	mem := ledger.NewMemoryStore()
	seedDeposit(t, mem, "txn_t", "user-1", "50.00")

	// A concurrent writer makes the first read stale; the later reads
	// see the credit.
	store := &rampStore{Store: mem, values: []money.Amount{
		money.MustParse("0.00"),
		money.MustParse("50.00"),
		money.MustParse("50.00"),
	}}

	result, err := newVerifier(store).Verify(context.Background(), "txn_t")
	require.NoError(t, err)
	assert.Equal(t, status.VerifiedUpdated, result.Status)
	assert.Equal(t, money.MustParse("50.00"), result.FreshBalance)
}

func TestVerify_RefusesNonDeposits(t *testing.T) {
	store := ledger.NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.InsertTransaction(ctx, &ledger.Transaction{
		ID:     "txn_pending",
		UserID: "user-1",
		Type:   status.TypeDeposit,
		Status: status.TxPending,
		Amount: money.MustParse("10.00"),
		CreatedAt: now, UpdatedAt: now,
	}))
	require.NoError(t, store.InsertTransaction(ctx, &ledger.Transaction{
		ID:     "txn_order",
		UserID: "user-1",
		Type:   status.TypeOrder,
		Status: status.TxApproved,
		Amount: money.MustParse("10.00"),
		CreatedAt: now, UpdatedAt: now,
	}))

	svc := newVerifier(store)
	_, err := svc.Verify(ctx, "txn_pending")
	assert.ErrorIs(t, err, ErrNotVerifiable)
	_, err = svc.Verify(ctx, "txn_order")
	assert.ErrorIs(t, err, ErrNotVerifiable)
	_, err = svc.Verify(ctx, "txn_missing")
	assert.ErrorIs(t, err, ledger.ErrTransactionNotFound)
}

func TestSweep(t *testing.T) {
	store := ledger.NewMemoryStore()
	ctx := context.Background()

	seedDeposit(t, store, "txn_good", "user-1", "50.00")
	store.SetBalance("user-1", money.MustParse("50.00"))

	seedDeposit(t, store, "txn_lost", "user-2", "50.00")
	// user-2 never got the credit.

	svc := newVerifier(store)
	summary, err := svc.Sweep(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Verified)
	assert.Equal(t, 1, summary.Flagged)
	assert.Equal(t, 0, summary.Memoized)

	// Second sweep: the healthy deposit is memoized, the flagged one
	// is re-verified.
	summary, err = svc.Sweep(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Memoized)
	assert.Equal(t, 1, summary.Flagged)
}
