package utils

import "testing"

// ============================================================
// ValidateSymbol Tests
// ============================================================

func TestValidateSymbol(t *testing.T) {
	tests := []struct {
		name      string
		symbol    string
		expectErr bool
	}{
		{"simple ticker", "AAPL", false},
		{"single letter", "F", false},
		{"with digits", "BRK2", false},
		{"dot suffix", "BRK.B", false},
		{"dash suffix", "BF-B", false},
		{"empty", "", true},
		{"lowercase", "aapl", true},
		{"too long", "TOOLONGTICKER", true},
		{"leading digit", "1AAPL", true},
		{"spaces", "AA PL", true},
		{"injection", "AAPL;DROP", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSymbol(tt.symbol)
			if tt.expectErr && err == nil {
				t.Errorf("ValidateSymbol(%q) expected error, got nil", tt.symbol)
			}
			if !tt.expectErr && err != nil {
				t.Errorf("ValidateSymbol(%q) unexpected error: %v", tt.symbol, err)
			}
		})
	}
}

func TestNormalizeSymbol(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"aapl", "AAPL"},
		{"  TSLA  ", "TSLA"},
		{"brk.b", "BRK.B"},
	}

	for _, tt := range tests {
		if got := NormalizeSymbol(tt.input); got != tt.expected {
			t.Errorf("NormalizeSymbol(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

// ============================================================
// ValidateEmail Tests
// ============================================================

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		name      string
		email     string
		expectErr bool
	}{
		{"valid", "user@example.com", false},
		{"subdomain", "user@mail.example.co.uk", false},
		{"empty allowed", "", false},
		{"no at", "userexample.com", true},
		{"no domain", "user@", true},
		{"no tld", "user@example", true},
		{"spaces", "us er@example.com", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateEmail(tt.email)
			if tt.expectErr && err == nil {
				t.Errorf("ValidateEmail(%q) expected error, got nil", tt.email)
			}
			if !tt.expectErr && err != nil {
				t.Errorf("ValidateEmail(%q) unexpected error: %v", tt.email, err)
			}
		})
	}
}

// ============================================================
// Прочие валидаторы
// ============================================================

func TestValidateUserID(t *testing.T) {
	if err := ValidateUserID("user-1"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidateUserID(""); err == nil {
		t.Error("empty userId should fail")
	}
	if err := ValidateUserID("   "); err == nil {
		t.Error("whitespace userId should fail")
	}

	long := make([]byte, 129)
	for i := range long {
		long[i] = 'a'
	}
	if err := ValidateUserID(string(long)); err == nil {
		t.Error("overlong userId should fail")
	}
}

func TestValidateShares(t *testing.T) {
	if err := ValidateShares(10.5); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidateShares(0); err == nil {
		t.Error("zero shares should fail")
	}
	if err := ValidateShares(-1); err == nil {
		t.Error("negative shares should fail")
	}
}

func TestValidateEntryPrice(t *testing.T) {
	if err := ValidateEntryPrice(182.5); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidateEntryPrice(0); err == nil {
		t.Error("zero entry price should fail")
	}
}

func TestValidateMaxLossPct(t *testing.T) {
	tests := []struct {
		pct       float64
		expectErr bool
	}{
		{5, false},
		{0, false}, // 0 = использовать default
		{50, false},
		{-1, true},
		{51, true},
	}

	for _, tt := range tests {
		err := ValidateMaxLossPct(tt.pct)
		if tt.expectErr && err == nil {
			t.Errorf("ValidateMaxLossPct(%v) expected error", tt.pct)
		}
		if !tt.expectErr && err != nil {
			t.Errorf("ValidateMaxLossPct(%v) unexpected error: %v", tt.pct, err)
		}
	}
}
