// Package risk enforces exposure limits on tracked positions that account
// for correlation between markets in the same event.
//
// A user tracking YES on five markets of one boxing card has correlated
// risk: one upset can settle several of them the wrong way. Kalshi-style
// tickers encode the event before the market-specific suffix, so markets
// sharing a ticker prefix are treated as one correlated group.
package risk

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/snapbet/decision-engine/internal/ticker"
)

var (
	// ErrPerMarketLimitExceeded is returned when accepting a ticket would
	// push the open cost in a single market beyond the per-market maximum.
	ErrPerMarketLimitExceeded = errors.New("risk: per-market exposure limit exceeded")

	// ErrCorrelatedLimitExceeded is returned when accepting a ticket would
	// push the aggregate open cost across markets of the same event beyond
	// the correlated maximum.
	ErrCorrelatedLimitExceeded = errors.New("risk: correlated event exposure limit exceeded")
)

// Limiter enforces open-cost limits per market and per correlated event
// group. Costs are dollars.
type Limiter struct {
	// MaxPerMarket is the maximum open cost in any single ticker.
	MaxPerMarket decimal.Decimal

	// MaxCorrelated is the maximum aggregate open cost across all tickers
	// sharing an event prefix.
	MaxCorrelated decimal.Decimal

	// PrefixSegments is how many dash-separated ticker segments form the
	// event prefix. Kalshi tickers read {series}-{event}-{market}, so 2
	// groups markets of the same event.
	PrefixSegments int
}

// NewLimiter creates a limiter with the given per-market and correlated
// exposure limits.
func NewLimiter(maxPerMarket, maxCorrelated decimal.Decimal, prefixSegments int) *Limiter {
	if prefixSegments < 1 {
		prefixSegments = 1
	}
	return &Limiter{
		MaxPerMarket:   maxPerMarket,
		MaxCorrelated:  maxCorrelated,
		PrefixSegments: prefixSegments,
	}
}

// Check validates whether accepting a ticket respects exposure limits.
//
//   - ticker: market of the ticket being accepted
//   - cost: total cost of the new ticket, dollars
//   - openCost: map of ticker → current open cost for this user
//
// Returns nil if within limits, or an error naming the violated limit.
func (l *Limiter) Check(tk string, cost decimal.Decimal, openCost map[string]decimal.Decimal) error {
	inMarket := openCost[tk].Add(cost)
	if inMarket.GreaterThan(l.MaxPerMarket) {
		return ErrPerMarketLimitExceeded
	}

	key := ticker.EventKey(tk, l.PrefixSegments)
	correlated := inMarket

	for other, c := range openCost {
		if other == tk {
			continue // already counted via inMarket
		}
		if ticker.EventKey(other, l.PrefixSegments) == key {
			correlated = correlated.Add(c)
		}
	}

	if correlated.GreaterThan(l.MaxCorrelated) {
		return ErrCorrelatedLimitExceeded
	}
	return nil
}
