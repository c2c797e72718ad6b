package ticker

import (
	"testing"
	"time"
)

func TestParse_Valid(t *testing.T) {
	tk, err := Parse("KXNBA-25DEC25-LAL")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tk.Series != "KXNBA" {
		t.Errorf("expected series=KXNBA, got %s", tk.Series)
	}
	if tk.Event != "25DEC25" {
		t.Errorf("expected event=25DEC25, got %s", tk.Event)
	}
	if tk.Market != "LAL" {
		t.Errorf("expected market=LAL, got %s", tk.Market)
	}
	expected := time.Date(2025, 12, 25, 0, 0, 0, 0, time.UTC)
	if !tk.Expiry.Equal(expected) {
		t.Errorf("expected expiry=%v, got %v", expected, tk.Expiry)
	}
}

func TestParse_EventLevelTicker(t *testing.T) {
	tk, err := Parse("KXNBA-25DEC25LALBOS")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tk.Market != "" {
		t.Errorf("expected no market segment, got %s", tk.Market)
	}
	if tk.Expiry.IsZero() {
		t.Error("expected expiry parsed from event date prefix")
	}
}

func TestParse_ThresholdMarket(t *testing.T) {
	tk, err := Parse("KXHIGHNY-25AUG31-B87.5")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tk.Market != "B87.5" {
		t.Errorf("expected market=B87.5, got %s", tk.Market)
	}
}

func TestParse_LowercaseNormalized(t *testing.T) {
	tk, err := Parse("  kxnba-25dec25-lal ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tk.Raw != "KXNBA-25DEC25-LAL" {
		t.Errorf("expected normalized raw, got %s", tk.Raw)
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []string{
		"",
		"KXNBA",
		"KXNBA--LAL",
		"-25DEC25-LAL",
		"KXNBA-25DEC25-LAL-EXTRA",
		"has spaces-25DEC25-LAL",
		"1NUM-25DEC25-LAL", // series must start with a letter
	}
	for _, raw := range tests {
		if _, err := Parse(raw); err == nil {
			t.Errorf("expected error for ticker %q", raw)
		}
	}
}

func TestParse_NoExpiryWhenEventNotDated(t *testing.T) {
	tk, err := Parse("KXFED-RATECUT-YES")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !tk.Expiry.IsZero() {
		t.Errorf("expected zero expiry, got %v", tk.Expiry)
	}
}

func TestEventKey(t *testing.T) {
	tests := []struct {
		ticker   string
		segments int
		want     string
	}{
		{"KXNBA-25DEC25-LAL", 2, "KXNBA-25DEC25"},
		{"KXNBA-25DEC25-BOS", 2, "KXNBA-25DEC25"},
		{"KXNBA-25DEC25-LAL", 1, "KXNBA"},
		{"KXNBA-25DEC25-LAL", 5, "KXNBA-25DEC25-LAL"},
		{"KXNBA-25DEC25-LAL", 0, "KXNBA"},
		{"kxnba-25dec25-lal", 2, "KXNBA-25DEC25"},
	}
	for _, tt := range tests {
		if got := EventKey(tt.ticker, tt.segments); got != tt.want {
			t.Errorf("EventKey(%q, %d) = %q, want %q", tt.ticker, tt.segments, got, tt.want)
		}
	}
}
