package order

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boostlab/boostpanel/internal/events"
	"github.com/boostlab/boostpanel/internal/ledger"
	"github.com/boostlab/boostpanel/internal/money"
	"github.com/boostlab/boostpanel/internal/status"
)

// flakyLedger fails CreditRefund a fixed number of times before
// delegating to the real service.
type flakyLedger struct {
	*ledger.Service
	creditFailures int
	creditCalls    int
}

func (f *flakyLedger) CreditRefund(ctx context.Context, userID, orderID string, amount money.Amount) (money.Amount, error) {
	f.creditCalls++
	if f.creditFailures > 0 {
		f.creditFailures--
		return 0, errors.New("ledger unavailable")
	}
	return f.Service.CreditRefund(ctx, userID, orderID, amount)
}

// brokenRefundStore fails UpdateRefund with a given status a fixed
// number of times.
type brokenRefundStore struct {
	Store
	updateFailures int
}

func (b *brokenRefundStore) UpdateRefund(ctx context.Context, id, refundStatus, orderStatus string) (*Order, error) {
	if refundStatus == status.RefundSucceeded && b.updateFailures > 0 {
		b.updateFailures--
		return nil, errors.New("db down")
	}
	return b.Store.UpdateRefund(ctx, id, refundStatus, orderStatus)
}

type refundFixture struct {
	svc         *Service
	store       Store
	ledgerStore *ledger.MemoryStore
	flaky       *flakyLedger
	bus         *events.Bus
	orderID     string
}

func newRefundFixture(t *testing.T, creditFailures int, store Store) *refundFixture {
	t.Helper()
	ctx := context.Background()

	if store == nil {
		store = NewMemoryStore()
	}
	ledgerStore := ledger.NewMemoryStore()
	flaky := &flakyLedger{
		Service:        ledger.NewService(ledgerStore, slog.Default()),
		creditFailures: creditFailures,
	}

	bus := events.NewBus(slog.Default())
	svc := NewService(store, flaky, nil, nil, bus, slog.Default())

	o := &Order{
		ID:         "ord_refund",
		UserID:     "user-1",
		ServiceID:  "svc_1",
		Link:       "https://example.com/p/1",
		Quantity:   1000,
		TotalCost:  money.MustParse("3.00"),
		ExternalID: "ext-5",
		Status:     status.Partial,
		CreatedAt:  time.Now(),
	}
	require.NoError(t, store.InsertOrder(ctx, o))

	return &refundFixture{svc: svc, store: store, ledgerStore: ledgerStore, flaky: flaky, bus: bus, orderID: o.ID}
}

func TestRefund(t *testing.T) {
	f := newRefundFixture(t, 0, nil)
	ctx := context.Background()

	var published []events.OrderStatusChanged
	f.bus.Subscribe(func(ev events.OrderStatusChanged) {
		published = append(published, ev)
	})

	result, err := f.svc.Refund(ctx, f.orderID, false, "ops@panel")
	require.NoError(t, err)

	assert.Equal(t, money.MustParse("3.00"), result.RefundAmount)
	assert.Equal(t, money.MustParse("3.00"), result.NewBalance)

	// A refunded order ends up canceled with the refund recorded on
	// the side; the refunded order status is reserved for provider
	// driven transitions.
	o, err := f.store.GetOrder(ctx, f.orderID)
	require.NoError(t, err)
	assert.Equal(t, status.Canceled, o.Status)
	assert.Equal(t, status.RefundSucceeded, o.RefundStatus)

	history, err := f.store.ListStatusHistory(ctx, f.orderID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, status.Canceled, history[0].NewStatus)
	assert.Equal(t, status.Partial, history[0].PreviousStatus)

	// The refund lands in the ledger as an approved refund transaction.
	txs, err := f.ledgerStore.ListTransactions(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, status.TypeRefund, txs[0].Type)
	assert.Equal(t, money.MustParse("3.00"), txs[0].Amount)

	require.Len(t, published, 1)
	assert.Equal(t, status.Canceled, published[0].NewStatus)
	assert.Equal(t, status.Partial, published[0].OldStatus)
}

func TestRefund_SecondRefusedWithoutOverride(t *testing.T) {
	f := newRefundFixture(t, 0, nil)
	ctx := context.Background()

	_, err := f.svc.Refund(ctx, f.orderID, false, "ops@panel")
	require.NoError(t, err)

	_, err = f.svc.Refund(ctx, f.orderID, false, "ops@panel")
	assert.ErrorIs(t, err, ErrAlreadyRefunded)

	// Balance was credited exactly once.
	balance, _ := f.ledgerStore.GetBalance(ctx, "user-1")
	assert.Equal(t, money.MustParse("3.00"), balance)
}

func TestRefund_OverrideForcesSecondCredit(t *testing.T) {
	f := newRefundFixture(t, 0, nil)
	ctx := context.Background()

	_, err := f.svc.Refund(ctx, f.orderID, false, "ops@panel")
	require.NoError(t, err)

	result, err := f.svc.Refund(ctx, f.orderID, true, "ops@panel")
	require.NoError(t, err)
	assert.Equal(t, money.MustParse("6.00"), result.NewBalance)
}

func TestRefund_FailedCreditThenRetryCreditsOnce(t *testing.T) {
	f := newRefundFixture(t, 1, nil)
	ctx := context.Background()

	_, err := f.svc.Refund(ctx, f.orderID, false, "ops@panel")
	var refundErr *RefundFailedError
	require.ErrorAs(t, err, &refundErr)
	assert.False(t, refundErr.CreditApplied)

	o, err := f.store.GetOrder(ctx, f.orderID)
	require.NoError(t, err)
	assert.Equal(t, status.RefundFailed, o.RefundStatus)
	// Order status is untouched by a failed refund.
	assert.Equal(t, status.Partial, o.Status)

	// A failed refund does not need override to be retried.
	result, err := f.svc.Refund(ctx, f.orderID, false, "ops@panel")
	require.NoError(t, err)
	assert.Equal(t, money.MustParse("3.00"), result.NewBalance)

	balance, _ := f.ledgerStore.GetBalance(ctx, "user-1")
	assert.Equal(t, money.MustParse("3.00"), balance)
}

func TestRefund_MetadataFailureReportsCreditApplied(t *testing.T) {
	store := &brokenRefundStore{Store: NewMemoryStore(), updateFailures: 10}
	f := newRefundFixture(t, 0, store)
	ctx := context.Background()

	_, err := f.svc.Refund(ctx, f.orderID, false, "ops@panel")
	var refundErr *RefundFailedError
	require.ErrorAs(t, err, &refundErr)
	assert.True(t, refundErr.CreditApplied)

	// The money moved even though the order row is stale.
	balance, _ := f.ledgerStore.GetBalance(ctx, "user-1")
	assert.Equal(t, money.MustParse("3.00"), balance)
}
