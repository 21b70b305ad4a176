package order

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/boostlab/boostpanel/internal/catalog"
	"github.com/boostlab/boostpanel/internal/events"
	"github.com/boostlab/boostpanel/internal/idgen"
	"github.com/boostlab/boostpanel/internal/money"
	"github.com/boostlab/boostpanel/internal/retry"
	"github.com/boostlab/boostpanel/internal/status"
)

var ErrServiceInactive = errors.New("service is not accepting orders")

const (
	refundAttempts  = 3
	refundBaseDelay = 200 * time.Millisecond
)

// Ledger is the slice of the ledger service orders need: debit on
// placement, credit on refund.
type Ledger interface {
	DebitForOrder(ctx context.Context, userID, orderID string, amount money.Amount) (money.Amount, error)
	CreditRefund(ctx context.Context, userID, orderID string, amount money.Amount) (money.Amount, error)
}

// Forwarder submits orders to the upstream fulfillment provider.
type Forwarder interface {
	Submit(ctx context.Context, providerService, link string, quantity int) (string, error)
}

// Catalog resolves service ids to catalog items.
type Catalog interface {
	Get(ctx context.Context, id string) (*catalog.Item, error)
}

// Service implements order placement, manual status transitions, and
// the refund workflow.
type Service struct {
	store     Store
	ledger    Ledger
	catalog   Catalog
	forwarder Forwarder
	bus       *events.Bus
	logger    *slog.Logger
}

func NewService(store Store, ledger Ledger, cat Catalog, forwarder Forwarder, bus *events.Bus, logger *slog.Logger) *Service {
	return &Service{
		store:     store,
		ledger:    ledger,
		catalog:   cat,
		forwarder: forwarder,
		bus:       bus,
		logger:    logger,
	}
}

// Store exposes the underlying store for wiring (reconciler, admin stats).
func (s *Service) Store() Store { return s.store }

// Create places an order: validates against the catalog, debits the
// user's balance, persists the order, and forwards it to the provider.
// A forwarding failure leaves the order without an external id; it is
// resolved by operators, not by failing the placement.
func (s *Service) Create(ctx context.Context, userID, serviceID, link string, quantity int) (*Order, error) {
	if userID == "" || serviceID == "" || link == "" {
		return nil, ErrMissingFields
	}

	item, err := s.catalog.Get(ctx, serviceID)
	if err != nil {
		if errors.Is(err, catalog.ErrItemNotFound) {
			return nil, ErrServiceNotFound
		}
		return nil, fmt.Errorf("lookup service: %w", err)
	}
	if !item.Active {
		return nil, ErrServiceInactive
	}
	if quantity < item.MinQuantity || quantity > item.MaxQuantity {
		return nil, fmt.Errorf("%w: %d not in %d..%d", ErrInvalidQuantity, quantity, item.MinQuantity, item.MaxQuantity)
	}

	cost := item.Cost(quantity)
	orderID := idgen.WithPrefix("ord_")

	newBalance, err := s.ledger.DebitForOrder(ctx, userID, orderID, cost)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	o := &Order{
		ID:        orderID,
		UserID:    userID,
		ServiceID: serviceID,
		Link:      link,
		Quantity:  quantity,
		TotalCost: cost,
		Status:    status.Pending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.InsertOrder(ctx, o); err != nil {
		// The debit already landed; refund it so the user is whole.
		if _, cerr := s.ledger.CreditRefund(ctx, userID, orderID, cost); cerr != nil {
			s.logger.Error("order insert failed and refund of debit failed",
				"order_id", orderID,
				"user_id", userID,
				"amount", cost,
				"error", cerr)
		}
		return nil, fmt.Errorf("insert order: %w", err)
	}

	ordersPlaced.Inc()
	s.logger.Info("order created",
		"order_id", orderID,
		"user_id", userID,
		"service_id", serviceID,
		"quantity", quantity,
		"cost", cost,
		"new_balance", newBalance)

	if s.forwarder != nil && item.ProviderServiceID != "" {
		externalID, err := s.forwarder.Submit(ctx, item.ProviderServiceID, link, quantity)
		if err != nil {
			s.logger.Warn("provider submit failed; order left unforwarded",
				"order_id", orderID,
				"error", err)
			return s.store.GetOrder(ctx, orderID)
		}
		return s.store.SetExternalID(ctx, orderID, externalID)
	}

	return s.store.GetOrder(ctx, orderID)
}

func (s *Service) Get(ctx context.Context, id string) (*Order, error) {
	return s.store.GetOrder(ctx, id)
}

func (s *Service) List(ctx context.Context, userID string, limit int) ([]*Order, error) {
	return s.store.ListOrders(ctx, userID, limit)
}

func (s *Service) History(ctx context.Context, orderID string) ([]*StatusHistory, error) {
	return s.store.ListStatusHistory(ctx, orderID)
}

// SetStatus applies an operator status override. The history row is
// written before the status itself so the audit trail survives a
// failed status write.
func (s *Service) SetStatus(ctx context.Context, orderID, newStatus, actor string) (*Order, error) {
	canonical := status.Map(newStatus)
	if canonical == status.None {
		return nil, fmt.Errorf("unrecognized status %q", newStatus)
	}

	o, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status == canonical {
		return o, nil
	}

	if err := s.store.InsertStatusHistory(ctx, &StatusHistory{
		ID:             idgen.WithPrefix("hist_"),
		OrderID:        orderID,
		NewStatus:      canonical,
		PreviousStatus: o.Status,
		Source:         SourceManual,
		Actor:          actor,
		CreatedAt:      time.Now(),
	}); err != nil {
		return nil, fmt.Errorf("insert status history: %w", err)
	}

	var completedAt *time.Time
	if canonical == status.Completed {
		now := time.Now()
		completedAt = &now
	}
	updated, err := s.store.UpdateOrderStatus(ctx, orderID, canonical, completedAt)
	if err != nil {
		return nil, err
	}

	s.bus.PublishStatusChange(events.OrderStatusChanged{
		OrderID:   orderID,
		UserID:    o.UserID,
		NewStatus: canonical,
		OldStatus: o.Status,
		Source:    SourceManual,
		At:        time.Now(),
	})
	return updated, nil
}

// RefundResult reports the outcome of a successful refund.
type RefundResult struct {
	OrderID      string       `json:"orderId"`
	RefundAmount money.Amount `json:"refundAmount"`
	NewBalance   money.Amount `json:"newBalance"`
}

// Refund credits the order's total cost back to the user, cancels the
// order and marks the refund succeeded. A previously succeeded refund
// is refused unless
// override is set; override exists for operators re-driving an order
// whose credit landed but whose metadata write was lost, and for the
// rare deliberate double credit. The credit and the order metadata are
// independent writes: if the metadata write fails after the credit
// landed, the returned RefundFailedError has CreditApplied set and the
// order keeps refund_status=failed for a later override pass.
func (s *Service) Refund(ctx context.Context, orderID string, override bool, actor string) (*RefundResult, error) {
	o, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.RefundStatus == status.RefundSucceeded && !override {
		return nil, ErrAlreadyRefunded
	}

	amount := o.TotalCost
	newBalance, err := s.ledger.CreditRefund(ctx, o.UserID, orderID, amount)
	if err != nil {
		if _, uerr := s.store.UpdateRefund(ctx, orderID, status.RefundFailed, ""); uerr != nil {
			s.logger.Error("failed to record refund failure", "order_id", orderID, "error", uerr)
		}
		return nil, &RefundFailedError{
			OrderID: orderID,
			UserID:  o.UserID,
			Amount:  amount,
			Err:     err,
		}
	}

	if err := s.store.InsertStatusHistory(ctx, &StatusHistory{
		ID:             idgen.WithPrefix("hist_"),
		OrderID:        orderID,
		NewStatus:      status.Canceled,
		PreviousStatus: o.Status,
		Source:         SourceManual,
		Actor:          actor,
		CreatedAt:      time.Now(),
	}); err != nil {
		s.logger.Warn("refund history write failed", "order_id", orderID, "error", err)
	}

	err = retry.Do(ctx, refundAttempts, refundBaseDelay, func() error {
		_, uerr := s.store.UpdateRefund(ctx, orderID, status.RefundSucceeded, status.Canceled)
		return uerr
	})
	if err != nil {
		return nil, &RefundFailedError{
			OrderID:       orderID,
			UserID:        o.UserID,
			Amount:        amount,
			CreditApplied: true,
			Err:           err,
		}
	}

	refundsProcessed.Inc()
	s.logger.Info("order refunded",
		"order_id", orderID,
		"user_id", o.UserID,
		"amount", amount,
		"override", override,
		"new_balance", newBalance)

	s.bus.PublishStatusChange(events.OrderStatusChanged{
		OrderID:   orderID,
		UserID:    o.UserID,
		NewStatus: status.Canceled,
		OldStatus: o.Status,
		Source:    SourceManual,
		At:        time.Now(),
	})

	return &RefundResult{
		OrderID:      orderID,
		RefundAmount: amount,
		NewBalance:   newBalance,
	}, nil
}
