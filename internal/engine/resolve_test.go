package engine_test

import (
	"testing"

	"github.com/snapbet/decision-engine/internal/engine"
	"github.com/snapbet/decision-engine/internal/model"
)

func ip(v int) *int { return &v }

func foundQuote() *model.MarketQuote {
	return &model.MarketQuote{
		Status:       model.QuoteFound,
		Ticker:       "KXFIGHT-GARCIA",
		MarketStatus: "active",
	}
}

func TestResolveEntryPrice_YesPrefersAsk(t *testing.T) {
	q := foundQuote()
	q.YesAsk = ip(60)
	q.LastPrice = ip(55)

	price, ok := engine.ResolveEntryPrice(q, model.SideYes)
	if !ok {
		t.Fatal("expected a resolved price")
	}
	if price != 60 {
		t.Errorf("expected yes_ask 60, got %d", price)
	}
}

func TestResolveEntryPrice_YesFallsBackToLast(t *testing.T) {
	q := foundQuote()
	q.LastPrice = ip(55)

	price, ok := engine.ResolveEntryPrice(q, model.SideYes)
	if !ok || price != 55 {
		t.Errorf("expected last_price 55, got %d (ok=%t)", price, ok)
	}
}

func TestResolveEntryPrice_NoFallbackChain(t *testing.T) {
	// no_ask > 100-yes_bid > 100-last_price, in that order.
	q := foundQuote()
	q.NoAsk = ip(45)
	q.YesBid = ip(58)
	q.LastPrice = ip(61)

	if price, _ := engine.ResolveEntryPrice(q, model.SideNo); price != 45 {
		t.Errorf("expected no_ask 45, got %d", price)
	}

	q.NoAsk = nil
	if price, _ := engine.ResolveEntryPrice(q, model.SideNo); price != 42 {
		t.Errorf("expected 100-yes_bid = 42, got %d", price)
	}

	q.YesBid = nil
	if price, _ := engine.ResolveEntryPrice(q, model.SideNo); price != 39 {
		t.Errorf("expected 100-last_price = 39, got %d", price)
	}
}

func TestResolveEntryPrice_NotFound(t *testing.T) {
	for _, status := range []model.QuoteStatus{model.QuoteNotFound, model.QuoteError} {
		q := &model.MarketQuote{Status: status, YesAsk: ip(60)}
		if _, ok := engine.ResolveEntryPrice(q, model.SideYes); ok {
			t.Errorf("status %q should not resolve a price", status)
		}
	}
	if _, ok := engine.ResolveEntryPrice(nil, model.SideYes); ok {
		t.Error("nil quote should not resolve a price")
	}
}

func TestResolveEntryPrice_NoSources(t *testing.T) {
	if _, ok := engine.ResolveEntryPrice(foundQuote(), model.SideYes); ok {
		t.Error("quote with no price fields should not resolve")
	}
}

func TestResolveEntryPrice_RangeBounds(t *testing.T) {
	// A settled market can quote 0 or 100; neither is a tradable entry.
	q := foundQuote()
	q.YesAsk = ip(100)
	if _, ok := engine.ResolveEntryPrice(q, model.SideYes); ok {
		t.Error("price 100 should be rejected")
	}

	q.YesAsk = ip(0)
	if _, ok := engine.ResolveEntryPrice(q, model.SideYes); ok {
		t.Error("price 0 should be rejected")
	}

	// Both asks present: result always lands in [1,99].
	q = foundQuote()
	q.YesAsk = ip(1)
	q.NoAsk = ip(99)
	for _, side := range []model.Side{model.SideYes, model.SideNo} {
		price, ok := engine.ResolveEntryPrice(q, side)
		if !ok || price < 1 || price > 99 {
			t.Errorf("side %s: expected price in [1,99], got %d (ok=%t)", side, price, ok)
		}
	}
}
