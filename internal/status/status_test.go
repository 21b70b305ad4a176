package status

import "testing"

func TestMap(t *testing.T) {
	tests := []struct {
		raw      string
		expected string
	}{
		{"Pending", Pending},
		{"In progress", InProgress},
		{"IN_PROGRESS", InProgress},
		{"Completed", Completed},
		{"Order Completed", Completed},
		{"Partial", Partial},
		{"Processing", Processing},
		{"Canceled", Canceled},
		{"Cancelled", Canceled},
		{"Refunded", Refunded},
		{"Refund issued", Refunded},
		{"  pending  ", Pending},
		{"", None},
		{"banana", None},
		{"error 500", None},
	}

	for _, tt := range tests {
		if got := Map(tt.raw); got != tt.expected {
			t.Errorf("Map(%q) = %q, want %q", tt.raw, got, tt.expected)
		}
	}
}

func TestMap_UnknownNeverDowngrades(t *testing.T) {
	// An unknown provider status must map to None so callers keep the
	// stored status instead of overwriting it.
	if got := Map("awaiting moderation queue"); got != None {
		t.Errorf("expected None for unknown vocabulary, got %q", got)
	}
}

func TestIsTerminalOrder(t *testing.T) {
	for _, s := range []string{Completed, Canceled, Cancelled, Refunded} {
		if !IsTerminalOrder(s) {
			t.Errorf("expected %q to be terminal", s)
		}
	}
	for _, s := range []string{Pending, InProgress, Processing, Partial, Refunds} {
		if IsTerminalOrder(s) {
			t.Errorf("expected %q to not be terminal", s)
		}
	}
}

func TestIsTerminalTx(t *testing.T) {
	if !IsTerminalTx(TxApproved) || !IsTerminalTx(TxRejected) {
		t.Error("approved and rejected must be terminal")
	}
	if IsTerminalTx(TxPending) {
		t.Error("pending must not be terminal")
	}
}
