package engine

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/snapbet/decision-engine/internal/model"
)

var (
	// ErrNilRecommendation is returned when BuildOrderTicket is called
	// without a recommendation.
	ErrNilRecommendation = errors.New("engine: recommendation is required")

	// ErrInvalidConfidence is returned when confidence is outside (0,1].
	ErrInvalidConfidence = errors.New("engine: confidence must be in (0,1]")

	// ErrInvalidSide is returned when the recommendation's side is neither
	// yes nor no.
	ErrInvalidSide = errors.New("engine: side must be yes or no")
)

// NoBetError is the terminal outcome for a recommendation the model marked
// as not worth trading. No price or size computation is performed.
type NoBetError struct {
	Reason string
}

func (e *NoBetError) Error() string {
	if e.Reason == "" {
		return "engine: model recommends no bet"
	}
	return "engine: model recommends no bet: " + e.Reason
}

// KellyFraction returns the full-Kelly bankroll fraction for a binary bet
// bought at priceCents with true win probability p:
//
//	f* = p - (1-p) * (c/100) / (1 - c/100)
//
// The result is clamped to [0,1]; a bet with no edge (p*100 <= c) sizes to
// zero. Prices at or above 100 cents have no upside and also size to zero.
func KellyFraction(p float64, priceCents int) float64 {
	if priceCents >= 100 || priceCents < 0 {
		return 0
	}
	c := float64(priceCents) / 100
	f := p - (1-p)*c/(1-c)
	return clamp01(f)
}

// EVPerContract returns the expected profit in cents per contract bought at
// priceCents, assuming true win probability p:
//
//	ev = p * (100 - c) - (1 - p) * c
//
// Strictly increasing in p for a fixed price.
func EVPerContract(p float64, priceCents int) float64 {
	c := float64(priceCents)
	return p*(100-c) - (1-p)*c
}

// BuildOrderTicket turns a recommendation, a market snapshot, and a bankroll
// into a concrete order ticket.
//
// A no-bet recommendation returns *NoBetError immediately. When no tradable
// entry price resolves from the quote, the ticket is built in estimated mode:
// the entry price is the model's confidence restated as cents, Estimated is
// set, and Edge is nil so the consumer can tell the price is not
// market-derived.
//
// The bankroll fraction actually used for sizing is the model's recommended
// fraction clamped to [0,1] and, when a market price is available, capped at
// the full-Kelly fraction at the model's confidence. Contracts are floored
// at one — the engine never sizes a recommended bet to zero.
func BuildOrderTicket(rec *model.Recommendation, q *model.MarketQuote, bankroll decimal.Decimal) (*model.OrderTicket, error) {
	if rec == nil {
		return nil, ErrNilRecommendation
	}
	if rec.NoBet {
		return nil, &NoBetError{Reason: rec.NoBetReason}
	}
	if rec.Confidence <= 0 || rec.Confidence > 1 {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidConfidence, rec.Confidence)
	}
	if !rec.Side.Valid() {
		return nil, fmt.Errorf("%w: got %q", ErrInvalidSide, rec.Side)
	}

	target := int(math.Round(rec.Confidence * 100))
	if target < 1 {
		target = 1
	}
	if target > 99 {
		target = 99
	}

	ticket := &model.OrderTicket{
		Ticker:       rec.Ticker,
		Side:         rec.Side,
		TargetPrice:  target,
		BestScenario: BestScenario(rec.EvScenarios),
	}

	fraction := clamp01(rec.RecommendedPositionFraction)

	entry, priced := ResolveEntryPrice(q, rec.Side)
	if priced {
		edge := target - entry
		ticket.EntryPrice = entry
		ticket.Edge = &edge
		// Sizing never exceeds full Kelly at the model's confidence
		// against the actual market price.
		ticket.KellyCap = KellyFraction(rec.Confidence, entry)
		if fraction > ticket.KellyCap {
			fraction = ticket.KellyCap
		}
	} else {
		// Unmatched market: price against the model's own estimate. Kelly
		// against one's own fair price is identically zero, so the clamped
		// model fraction is used without a cap.
		ticket.EntryPrice = target
		ticket.Estimated = true
		ticket.KellyCap = KellyFraction(rec.Confidence, target)
	}
	ticket.FractionUsed = fraction

	cents := decimal.NewFromInt(100)
	entryDollars := decimal.NewFromInt(int64(ticket.EntryPrice)).Div(cents)

	spend := bankroll.Mul(decimal.NewFromFloat(fraction))
	ticket.SuggestedSpend = spend.Round(2)

	contracts := 1
	if ticket.EntryPrice > 0 {
		n := spend.Div(entryDollars).IntPart() // floor for non-negative spend
		if n > 1 {
			contracts = int(n)
		}
	}
	ticket.Contracts = contracts

	nContracts := decimal.NewFromInt(int64(contracts))
	ticket.TotalCost = nContracts.Mul(entryDollars).Round(2)
	ticket.MaxProfit = nContracts.Mul(decimal.NewFromInt(int64(100 - ticket.EntryPrice))).Div(cents).Round(2)
	ticket.MaxLoss = ticket.TotalCost

	if ticket.EntryPrice > 0 {
		pct := float64(100-ticket.EntryPrice) / float64(ticket.EntryPrice) * 100
		ticket.ReturnPct = &pct
	}

	return ticket, nil
}

// BestScenario returns the index of the scenario with the maximum expected
// value per contract, breaking ties by first occurrence. Returns -1 for an
// empty table.
func BestScenario(scs []model.EvScenario) int {
	best := -1
	for i, s := range scs {
		if best < 0 || s.EvPerContract > scs[best].EvPerContract {
			best = i
		}
	}
	return best
}

// CheckScenarios validates a model-supplied scenario table against the
// engine's own formulas: kelly fractions in [0,1], probabilities in (0,1),
// and expected value non-decreasing in probability for the given entry
// price. The table itself is never regenerated — the model owns it.
func CheckScenarios(scs []model.EvScenario, entryPriceCents int) error {
	prevP := 0.0
	for i, s := range scs {
		if s.Probability <= 0 || s.Probability >= 1 {
			return fmt.Errorf("engine: scenario %d probability %v outside (0,1)", i, s.Probability)
		}
		if s.KellyFraction < 0 || s.KellyFraction > 1 {
			return fmt.Errorf("engine: scenario %d kelly fraction %v outside [0,1]", i, s.KellyFraction)
		}
		if i > 0 && s.Probability > prevP {
			// EV must rise with probability at a fixed price.
			if EVPerContract(s.Probability, entryPriceCents) < EVPerContract(prevP, entryPriceCents) {
				return fmt.Errorf("engine: scenario %d breaks EV monotonicity", i)
			}
		}
		prevP = s.Probability
	}
	return nil
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
