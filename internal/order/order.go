// Package order manages fulfillment orders: placement, status
// history, and the refund workflow.
package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/boostlab/boostpanel/internal/money"
	"github.com/boostlab/boostpanel/internal/status"
)

var (
	ErrOrderNotFound    = errors.New("order not found")
	ErrServiceNotFound  = errors.New("service not found")
	ErrInvalidQuantity  = errors.New("quantity out of service bounds")
	ErrAlreadyRefunded  = errors.New("order already refunded; pass override to force")
	ErrMissingFields    = errors.New("missing required order fields")
)

// Order is one placed order. ExternalID is the fulfillment provider's
// id; it stays empty until the order has been forwarded.
type Order struct {
	ID              string       `json:"id"`
	UserID          string       `json:"userId"`
	ServiceID       string       `json:"serviceId"`
	Link            string       `json:"link"`
	Quantity        int          `json:"quantity"`
	TotalCost       money.Amount `json:"totalCost"`
	ExternalID      string       `json:"externalId,omitempty"`
	Status          string       `json:"status"`
	RefundStatus    string       `json:"refundStatus,omitempty"` // "", succeeded, failed
	LastStatusCheck *time.Time   `json:"lastStatusCheck,omitempty"`
	CompletedAt     *time.Time   `json:"completedAt,omitempty"`
	CreatedAt       time.Time    `json:"createdAt"`
	UpdatedAt       time.Time    `json:"updatedAt"`
}

// StatusHistory is one append-only status transition record. History
// rows are written before the order status itself so a replay always
// reconstructs the real sequence even if the final status write is
// lost.
type StatusHistory struct {
	ID             string          `json:"id"`
	OrderID        string          `json:"orderId"`
	NewStatus      string          `json:"newStatus"`
	PreviousStatus string          `json:"previousStatus"`
	Source         string          `json:"source"` // manual, external
	Actor          string          `json:"actor,omitempty"`
	Raw            json.RawMessage `json:"raw,omitempty"` // full provider payload
	CreatedAt      time.Time       `json:"createdAt"`
}

// History sources.
const (
	SourceManual   = "manual"
	SourceExternal = "external"
)

// Store persists orders and their status history.
type Store interface {
	InsertOrder(ctx context.Context, o *Order) error
	GetOrder(ctx context.Context, id string) (*Order, error)

	// UpdateOrderStatus writes the status (and completedAt when
	// non-nil) and returns the row as stored after the write.
	UpdateOrderStatus(ctx context.Context, id, newStatus string, completedAt *time.Time) (*Order, error)

	// SetExternalID records the provider's order id after forwarding.
	SetExternalID(ctx context.Context, id, externalID string) (*Order, error)

	// StampStatusCheck sets last_status_check, enforcing the per-order
	// provider poll rate limit.
	StampStatusCheck(ctx context.Context, id string, at time.Time) error

	// UpdateRefund writes refund_status and, when orderStatus is
	// non-empty, the order status in the same write.
	UpdateRefund(ctx context.Context, id, refundStatus, orderStatus string) (*Order, error)

	InsertStatusHistory(ctx context.Context, h *StatusHistory) error
	ListStatusHistory(ctx context.Context, orderID string) ([]*StatusHistory, error)

	// ListCheckable returns non-terminal orders, the reconciler's
	// candidate set. Terminal filtering here is an optimization; the
	// eligibility filter remains the source of truth.
	ListCheckable(ctx context.Context, limit int) ([]*Order, error)

	ListOrders(ctx context.Context, userID string, limit int) ([]*Order, error)
	CountOrders(ctx context.Context) (int, error)
}

// ShouldCheck decides whether an order is due for a provider status
// re-check. Terminal orders and succeeded refunds are never re-polled;
// orders without an external id have nothing to poll; otherwise the
// order is due when it has never been checked or the rate-limit
// interval has elapsed.
func ShouldCheck(o *Order, minInterval time.Duration, now time.Time) bool {
	if status.IsTerminalOrder(o.Status) {
		return false
	}
	if o.RefundStatus == status.RefundSucceeded {
		return false
	}
	if o.ExternalID == "" {
		return false
	}
	if o.LastStatusCheck == nil {
		return true
	}
	return now.Sub(*o.LastStatusCheck) >= minInterval
}

// RefundFailedError is returned when the refund workflow cannot
// complete. CreditApplied distinguishes a failed credit from a failed
// order-metadata write after a successful credit.
type RefundFailedError struct {
	OrderID       string
	UserID        string
	Amount        money.Amount
	CreditApplied bool
	Err           error
}

func (e *RefundFailedError) Error() string {
	return fmt.Sprintf("refund failed for order %s (user %s, amount %s, credit applied %v): %v",
		e.OrderID, e.UserID, e.Amount, e.CreditApplied, e.Err)
}

func (e *RefundFailedError) Unwrap() error { return e.Err }
