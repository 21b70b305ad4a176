// Package status defines the canonical order and transaction status
// vocabulary and maps provider-specific status strings onto it.
//
// The string values are wire-compatible with the stored rows and must
// not change.
package status

import "strings"

// Order statuses.
const (
	Pending    = "pending"
	InProgress = "in_progress"
	Processing = "processing"
	Partial    = "partial"
	Completed  = "completed"
	Canceled   = "canceled"
	Cancelled  = "cancelled"
	Refunds    = "refunds"
	Refunded   = "refunded"

	// None means the provider vocabulary was not recognized. Callers
	// must leave the stored status untouched when they see it.
	None = ""
)

// Transaction types.
const (
	TypeDeposit = "deposit"
	TypeOrder   = "order"
	TypeRefund  = "refund"
)

// Transaction statuses. Approved and Rejected are terminal.
const (
	TxPending  = "pending"
	TxApproved = "approved"
	TxRejected = "rejected"
)

// Refund statuses on an order.
const (
	RefundSucceeded = "succeeded"
	RefundFailed    = "failed"
)

// Verification classifications.
const (
	VerifiedUpdated    = "updated"
	VerifiedNotUpdated = "not_updated"
	VerifiedUnknown    = "unknown"
)

// mapping is an ordered substring table. First match wins, so
// "completed" sits above "partial" and a provider saying "Partially
// completed" maps to Completed rather than Partial.
var mapping = []struct {
	needle string
	status string
}{
	{"pending", Pending},
	{"in progress", InProgress},
	{"in_progress", InProgress},
	{"inprogress", InProgress},
	{"completed", Completed},
	{"partial", Partial},
	{"processing", Processing},
	{"canceled", Canceled},
	{"cancelled", Canceled},
	{"refund", Refunded},
}

// Map converts a raw provider status string to a canonical status.
// Matching is case-insensitive and substring-based; unrecognized input
// returns None.
func Map(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return None
	}
	for _, m := range mapping {
		if strings.Contains(s, m.needle) {
			return m.status
		}
	}
	return None
}

// terminal order statuses: no automatic transition may leave them.
var terminalOrder = map[string]bool{
	Completed: true,
	Canceled:  true,
	Cancelled: true,
	Refunded:  true,
}

// IsTerminalOrder reports whether an order status is terminal.
func IsTerminalOrder(s string) bool {
	return terminalOrder[s]
}

// IsTerminalTx reports whether a transaction status is terminal.
func IsTerminalTx(s string) bool {
	return s == TxApproved || s == TxRejected
}
