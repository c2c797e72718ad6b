// Package engine implements the pure decision logic that turns a model
// recommendation and a live market quote into a concrete order ticket:
// entry-price resolution, edge, Kelly sizing, and the expected-value
// scenario table.
//
// Everything in this package is a pure function of its inputs — no I/O, no
// shared state — so it is safe to call concurrently from multiple flows.
// Probability math uses float64; dollar amounts use shopspring/decimal.
package engine

import "github.com/snapbet/decision-engine/internal/model"

// ResolveEntryPrice derives a single tradable entry price in cents for the
// chosen side from a market snapshot.
//
// For YES the ask is preferred, falling back to the last traded price. For
// NO the no-side ask is preferred, then the complement of the yes bid, then
// the complement of the last price. The second return is false when the
// quote did not match a market or no usable source was present; sizing then
// degrades to estimated mode.
func ResolveEntryPrice(q *model.MarketQuote, side model.Side) (int, bool) {
	if q == nil || q.Status != model.QuoteFound {
		return 0, false
	}

	var price *int
	switch side {
	case model.SideYes:
		price = firstOf(q.YesAsk, q.LastPrice)
	case model.SideNo:
		price = firstOf(q.NoAsk, complement(q.YesBid), complement(q.LastPrice))
	default:
		return 0, false
	}

	if price == nil || *price < 1 || *price > 99 {
		return 0, false
	}
	return *price, true
}

// firstOf returns the first non-nil candidate.
func firstOf(candidates ...*int) *int {
	for _, c := range candidates {
		if c != nil {
			return c
		}
	}
	return nil
}

// complement maps a yes-side price to the no side (100 - p).
func complement(p *int) *int {
	if p == nil {
		return nil
	}
	c := 100 - *p
	return &c
}
