package risk_test

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/snapbet/decision-engine/internal/risk"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func newLimiter() *risk.Limiter {
	return risk.NewLimiter(d(50), d(100), 2)
}

func TestCheck_WithinLimits(t *testing.T) {
	l := newLimiter()
	open := map[string]decimal.Decimal{
		"KXFIGHT-GARCIA-WIN": d(20),
	}
	if err := l.Check("KXFIGHT-GARCIA-WIN", d(25), open); err != nil {
		t.Errorf("unexpected violation: %v", err)
	}
}

func TestCheck_AtLimitAllowed(t *testing.T) {
	l := newLimiter()
	if err := l.Check("KXFIGHT-GARCIA-WIN", d(50), nil); err != nil {
		t.Errorf("cost exactly at the limit should pass: %v", err)
	}
}

func TestCheck_PerMarketExceeded(t *testing.T) {
	l := newLimiter()
	open := map[string]decimal.Decimal{
		"KXFIGHT-GARCIA-WIN": d(40),
	}
	err := l.Check("KXFIGHT-GARCIA-WIN", d(15), open)
	if !errors.Is(err, risk.ErrPerMarketLimitExceeded) {
		t.Errorf("expected per-market violation, got %v", err)
	}
}

func TestCheck_CorrelatedExceeded(t *testing.T) {
	l := newLimiter()
	// Three markets of the same event, each under the per-market cap.
	open := map[string]decimal.Decimal{
		"KXFIGHT-GARCIA-WIN": d(40),
		"KXFIGHT-GARCIA-KO":  d(40),
		"KXFIGHT-GARCIA-RD6": d(15),
	}
	err := l.Check("KXFIGHT-GARCIA-DEC", d(10), open)
	if !errors.Is(err, risk.ErrCorrelatedLimitExceeded) {
		t.Errorf("expected correlated violation, got %v", err)
	}
}

func TestCheck_UnrelatedEventsNotCounted(t *testing.T) {
	l := newLimiter()
	open := map[string]decimal.Decimal{
		"KXNBA-LAKERS-WIN": d(90), // different event, ignored
	}
	if err := l.Check("KXFIGHT-GARCIA-WIN", d(30), open); err != nil {
		t.Errorf("unrelated event should not count: %v", err)
	}
}

func TestCheck_ShortTickerUsesWholeTicker(t *testing.T) {
	l := newLimiter()
	open := map[string]decimal.Decimal{
		"INXD": d(60),
	}
	err := l.Check("INXD", d(45), open)
	if !errors.Is(err, risk.ErrPerMarketLimitExceeded) {
		t.Errorf("expected per-market violation, got %v", err)
	}
}
