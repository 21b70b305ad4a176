package money

import "testing"

func TestParse(t *testing.T) {
	tests := []struct {
		input    string
		expected Amount
		ok       bool
	}{
		{"1.00", 100, true},
		{"0.50", 50, true},
		{"10", 1000, true},
		{"0.01", 1, true},
		{"100.5", 10050, true},
		{"-3.25", -325, true},
		{"", 0, true},
		{".75", 75, true},
		{"1.234", 0, false},
		{"abc", 0, false},
	}

	for _, tt := range tests {
		got, ok := Parse(tt.input)
		if ok != tt.ok {
			t.Errorf("Parse(%q) ok = %v, want %v", tt.input, ok, tt.ok)
			continue
		}
		if ok && got != tt.expected {
			t.Errorf("Parse(%q) = %d, want %d", tt.input, got, tt.expected)
		}
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		input    Amount
		expected string
	}{
		{100, "1.00"},
		{50, "0.50"},
		{1, "0.01"},
		{15000, "150.00"},
		{-325, "-3.25"},
		{0, "0.00"},
	}

	for _, tt := range tests {
		if got := tt.input.Format(); got != tt.expected {
			t.Errorf("Format(%d) = %s, want %s", tt.input, got, tt.expected)
		}
	}
}

func TestPercent(t *testing.T) {
	if got := Amount(15000).Percent(1); got != 150 {
		t.Errorf("1%% of 150.00 = %s, want 1.50", got)
	}
	if got := Amount(5000).Percent(90); got != 4500 {
		t.Errorf("90%% of 50.00 = %s, want 45.00", got)
	}
	if got := Amount(5000).Percent(50); got != 2500 {
		t.Errorf("50%% of 50.00 = %s, want 25.00", got)
	}
}

func TestFromFloat(t *testing.T) {
	if got := FromFloat(12.34); got != 1234 {
		t.Errorf("FromFloat(12.34) = %d, want 1234", got)
	}
	if got := FromFloat(0.1 + 0.2); got != 30 {
		t.Errorf("FromFloat(0.3) = %d, want 30", got)
	}
}
