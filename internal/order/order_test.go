package order

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boostlab/boostpanel/internal/catalog"
	"github.com/boostlab/boostpanel/internal/events"
	"github.com/boostlab/boostpanel/internal/ledger"
	"github.com/boostlab/boostpanel/internal/money"
	"github.com/boostlab/boostpanel/internal/status"
)

type fakeForwarder struct {
	externalID string
	err        error
	calls      int
}

func (f *fakeForwarder) Submit(_ context.Context, _, _ string, _ int) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.externalID, nil
}

type fixture struct {
	svc         *Service
	store       *MemoryStore
	ledgerStore *ledger.MemoryStore
	fwd         *fakeForwarder
	item        *catalog.Item
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := NewMemoryStore()
	ledgerStore := ledger.NewMemoryStore()
	ledgerSvc := ledger.NewService(ledgerStore, slog.Default())

	catStore := catalog.NewMemoryStore()
	catSvc := catalog.NewService(catStore, slog.Default())
	item, err := catSvc.Create(context.Background(), catalog.CreateItemParams{
		Platform:          "instagram",
		ServiceType:       "followers",
		Name:              "Instagram Followers",
		Rate:              "2.00",
		MinQuantity:       100,
		MaxQuantity:       10000,
		ProviderServiceID: "77",
	})
	require.NoError(t, err)

	fwd := &fakeForwarder{externalID: "ext-1001"}
	bus := events.NewBus(slog.Default())
	svc := NewService(store, ledgerSvc, catSvc, fwd, bus, slog.Default())

	return &fixture{svc: svc, store: store, ledgerStore: ledgerStore, fwd: fwd, item: item}
}

func TestShouldCheck(t *testing.T) {
	now := time.Now()
	recent := now.Add(-time.Minute)
	stale := now.Add(-10 * time.Minute)
	interval := 5 * time.Minute

	base := Order{ID: "ord_1", ExternalID: "ext-1", Status: status.Pending}

	t.Run("never checked", func(t *testing.T) {
		o := base
		assert.True(t, ShouldCheck(&o, interval, now))
	})
	t.Run("terminal status", func(t *testing.T) {
		for _, s := range []string{status.Completed, status.Canceled, status.Cancelled, status.Refunded} {
			o := base
			o.Status = s
			assert.False(t, ShouldCheck(&o, interval, now), s)
		}
	})
	t.Run("refund succeeded", func(t *testing.T) {
		o := base
		o.RefundStatus = status.RefundSucceeded
		assert.False(t, ShouldCheck(&o, interval, now))
	})
	t.Run("failed refund still checkable", func(t *testing.T) {
		o := base
		o.RefundStatus = status.RefundFailed
		assert.True(t, ShouldCheck(&o, interval, now))
	})
	t.Run("no external id", func(t *testing.T) {
		o := base
		o.ExternalID = ""
		assert.False(t, ShouldCheck(&o, interval, now))
	})
	t.Run("checked recently", func(t *testing.T) {
		o := base
		o.LastStatusCheck = &recent
		assert.False(t, ShouldCheck(&o, interval, now))
	})
	t.Run("interval elapsed", func(t *testing.T) {
		o := base
		o.LastStatusCheck = &stale
		assert.True(t, ShouldCheck(&o, interval, now))
	})
}

func TestCreate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.ledgerStore.SetBalance("user-1", money.MustParse("10.00"))

	o, err := f.svc.Create(ctx, "user-1", f.item.ID, "https://example.com/p/1", 1000)
	require.NoError(t, err)

	assert.Equal(t, status.Pending, o.Status)
	assert.Equal(t, money.MustParse("2.00"), o.TotalCost)
	assert.Equal(t, "ext-1001", o.ExternalID)
	assert.Equal(t, 1, f.fwd.calls)

	balance, err := f.ledgerStore.GetBalance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, money.MustParse("8.00"), balance)
}

func TestCreate_InsufficientBalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.ledgerStore.SetBalance("user-1", money.MustParse("1.00"))

	_, err := f.svc.Create(ctx, "user-1", f.item.ID, "https://example.com/p/1", 1000)
	assert.ErrorIs(t, err, ledger.ErrInsufficientBalance)

	// Nothing was debited and nothing was forwarded.
	balance, _ := f.ledgerStore.GetBalance(ctx, "user-1")
	assert.Equal(t, money.MustParse("1.00"), balance)
	assert.Equal(t, 0, f.fwd.calls)
}

func TestCreate_QuantityBounds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.ledgerStore.SetBalance("user-1", money.MustParse("100.00"))

	_, err := f.svc.Create(ctx, "user-1", f.item.ID, "https://example.com/p/1", 50)
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = f.svc.Create(ctx, "user-1", f.item.ID, "https://example.com/p/1", 20000)
	assert.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestCreate_UnknownService(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Create(context.Background(), "user-1", "svc_missing", "https://example.com", 1000)
	assert.ErrorIs(t, err, ErrServiceNotFound)
}

func TestCreate_SubmitFailureLeavesUnforwarded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.ledgerStore.SetBalance("user-1", money.MustParse("10.00"))
	f.fwd.err = errors.New("provider unreachable")

	o, err := f.svc.Create(ctx, "user-1", f.item.ID, "https://example.com/p/1", 1000)
	require.NoError(t, err)

	// Order exists and the debit stands, but there is nothing to poll.
	assert.Empty(t, o.ExternalID)
	assert.False(t, ShouldCheck(o, time.Minute, time.Now()))

	balance, _ := f.ledgerStore.GetBalance(ctx, "user-1")
	assert.Equal(t, money.MustParse("8.00"), balance)
}

func TestSetStatus_WritesHistoryAndPublishes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.ledgerStore.SetBalance("user-1", money.MustParse("10.00"))

	o, err := f.svc.Create(ctx, "user-1", f.item.ID, "https://example.com/p/1", 1000)
	require.NoError(t, err)

	updated, err := f.svc.SetStatus(ctx, o.ID, "Completed", "ops@panel")
	require.NoError(t, err)
	assert.Equal(t, status.Completed, updated.Status)
	require.NotNil(t, updated.CompletedAt)

	history, err := f.store.ListStatusHistory(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, status.Completed, history[0].NewStatus)
	assert.Equal(t, status.Pending, history[0].PreviousStatus)
	assert.Equal(t, SourceManual, history[0].Source)
	assert.Equal(t, "ops@panel", history[0].Actor)
}

func TestSetStatus_NoopWhenUnchanged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.ledgerStore.SetBalance("user-1", money.MustParse("10.00"))

	o, err := f.svc.Create(ctx, "user-1", f.item.ID, "https://example.com/p/1", 1000)
	require.NoError(t, err)

	_, err = f.svc.SetStatus(ctx, o.ID, "pending", "ops@panel")
	require.NoError(t, err)

	history, err := f.store.ListStatusHistory(ctx, o.ID)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestSetStatus_RejectsUnknownVocabulary(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.SetStatus(context.Background(), "ord_any", "exploded", "ops@panel")
	assert.Error(t, err)
}
