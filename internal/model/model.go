// Package model defines the core domain types shared across the decision
// engine. Contract prices are integer cents in [1,99]; dollar amounts use
// shopspring/decimal — never float64 for money.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// JobStatus is the lifecycle state of a prediction job.
type JobStatus string

const (
	JobSubmitted JobStatus = "submitted"
	JobAnalyzing JobStatus = "analyzing"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// Terminal reports whether the job can no longer change.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// Valid reports whether s is a known job status.
func (s JobStatus) Valid() bool {
	switch s {
	case JobSubmitted, JobAnalyzing, JobCompleted, JobFailed:
		return true
	}
	return false
}

// Side is the outcome a recommendation or position bets on. Each contract
// settles at 100 cents (event occurred) or 0 (did not).
type Side string

const (
	SideYes Side = "yes"
	SideNo  Side = "no"
)

// Valid reports whether s is "yes" or "no".
func (s Side) Valid() bool {
	return s == SideYes || s == SideNo
}

// QuoteStatus describes whether a market lookup matched a live market.
type QuoteStatus string

const (
	QuoteFound    QuoteStatus = "found"
	QuoteNotFound QuoteStatus = "not_found"
	QuoteError    QuoteStatus = "error"
)

// PositionStatus is the lifecycle state of a tracked position.
// Active positions may be deleted (user close); settled ones are history.
type PositionStatus string

const (
	PositionActive      PositionStatus = "active"
	PositionSettledWin  PositionStatus = "settled_win"
	PositionSettledLoss PositionStatus = "settled_loss"
)

// Settled reports whether the position has reached a terminal state.
func (s PositionStatus) Settled() bool {
	return s == PositionSettledWin || s == PositionSettledLoss
}

// FactorDirection tells which side a supporting factor argues for.
type FactorDirection string

const (
	FavorsYes FactorDirection = "favors_yes"
	FavorsNo  FactorDirection = "favors_no"
)

// FactorMagnitude is the stated strength of a factor.
type FactorMagnitude string

const (
	MagnitudeLow    FactorMagnitude = "low"
	MagnitudeMedium FactorMagnitude = "medium"
	MagnitudeHigh   FactorMagnitude = "high"
)

// Factor is one piece of supporting evidence attached to a recommendation.
// Created at job completion and never modified.
type Factor struct {
	Stat      string          `json:"stat"`
	Detail    string          `json:"detail"`
	Source    string          `json:"source"`
	Direction FactorDirection `json:"direction"`
	Magnitude FactorMagnitude `json:"magnitude"`
}

// EvScenario is one row of the model's expected-value table: what the bet is
// worth per contract if the true probability were Probability.
type EvScenario struct {
	Probability   float64 `json:"probability"`     // (0,1)
	EvPerContract float64 `json:"ev_per_contract"` // signed cents
	KellyFraction float64 `json:"kelly_fraction"`  // [0,1]
}

// Recommendation is the model's terminal output for a completed job.
type Recommendation struct {
	Ticker                      string       `json:"ticker"`
	Title                       string       `json:"title,omitempty"`
	Side                        Side         `json:"side"`
	Confidence                  float64      `json:"confidence"` // (0,1]
	Reasoning                   string       `json:"reasoning"`
	Factors                     []Factor     `json:"factors,omitempty"`
	EvScenarios                 []EvScenario `json:"ev_scenarios,omitempty"`
	RecommendedPositionFraction float64      `json:"recommended_position_fraction"`
	NoBet                       bool         `json:"no_bet,omitempty"`
	NoBetReason                 string       `json:"no_bet_reason,omitempty"`
	BearCase                    string       `json:"bear_case,omitempty"`
}

// MarketQuote is a point-in-time snapshot of a binary market. It is never
// mutated, only re-fetched. All prices are integer cents; pointers mark
// fields the upstream API may omit.
type MarketQuote struct {
	Status       QuoteStatus `json:"status"`
	Ticker       string      `json:"ticker,omitempty"`
	Reason       string      `json:"reason,omitempty"`
	MarketStatus string      `json:"market_status,omitempty"` // "active", "open", "closed", "settled"
	Result       Side        `json:"result,omitempty"`        // set once the market settles

	YesBid    *int `json:"yes_bid,omitempty"`
	YesAsk    *int `json:"yes_ask,omitempty"`
	NoBid     *int `json:"no_bid,omitempty"`
	NoAsk     *int `json:"no_ask,omitempty"`
	LastPrice *int `json:"last_price,omitempty"`

	Spread     *int `json:"spread,omitempty"`
	Midpoint   *int `json:"midpoint,omitempty"`
	PriceDelta *int `json:"price_delta,omitempty"` // vs previous close

	Volume       *int `json:"volume,omitempty"`
	Volume24h    *int `json:"volume_24h,omitempty"`
	OpenInterest *int `json:"open_interest,omitempty"`
	YesDepth     *int `json:"yes_depth,omitempty"`
	NoDepth      *int `json:"no_depth,omitempty"`
}

// PredictionJob tracks one submitted prediction through to its terminal
// recommendation. Owned by the flow that submitted it; immutable once the
// status is terminal.
type PredictionJob struct {
	JobID        string          `json:"job_id"`
	UserID       string          `json:"user_id"`
	Model        string          `json:"model"`
	ImageKey     string          `json:"image_key,omitempty"`
	Context      string          `json:"context,omitempty"`
	Status       JobStatus       `json:"status"`
	Rec          *Recommendation `json:"recommendation,omitempty"`
	Quote        *MarketQuote    `json:"market_quote,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	UserNotes    string          `json:"user_notes,omitempty"`
	ModelIdea    string          `json:"model_idea,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
}

// OrderTicket is the concrete, explainable order derived from a
// recommendation, a quote, and a bankroll. Recomputed on demand; never
// persisted, because the quote it was built from goes stale.
type OrderTicket struct {
	Ticker     string `json:"ticker"`
	Side       Side   `json:"side"`
	EntryPrice int    `json:"entry_price"` // cents, [1,99]

	// Estimated is true when no tradable market price could be resolved and
	// the entry price is the model's own confidence restated as cents.
	Estimated bool `json:"estimated"`

	TargetPrice int  `json:"target_price"`   // round(confidence * 100)
	Edge        *int `json:"edge,omitempty"` // target - entry; nil when Estimated

	Contracts      int             `json:"contracts"` // always >= 1
	SuggestedSpend decimal.Decimal `json:"suggested_spend"`
	TotalCost      decimal.Decimal `json:"total_cost"`
	MaxProfit      decimal.Decimal `json:"max_profit"`
	MaxLoss        decimal.Decimal `json:"max_loss"`
	ReturnPct      *float64        `json:"return_pct,omitempty"`

	// FractionUsed is the bankroll fraction sizing actually applied, after
	// clamping the model's fraction and capping it at full Kelly.
	FractionUsed float64 `json:"fraction_used"`
	KellyCap     float64 `json:"kelly_cap"`

	// BestScenario indexes the ev_scenarios row with the highest expected
	// value, or -1 when the model supplied no table.
	BestScenario int `json:"best_scenario"`
}

// TrackedPosition is a user-recorded bet, independent of any live brokerage
// order. Prices and P&L are cents per contract, quoted in the position's own
// side terms (a NO position's price is 100 minus the YES price).
type TrackedPosition struct {
	PositionID string `json:"position_id"`
	UserID     string `json:"user_id"`
	JobID      string `json:"job_id,omitempty"`
	Ticker     string `json:"ticker"`
	Title      string `json:"title,omitempty"`
	Side       Side   `json:"side"`
	EntryPrice int    `json:"entry_price"`

	Status          PositionStatus `json:"status"`
	CurrentPrice    *int           `json:"current_price,omitempty"`
	UnrealizedPnL   *int           `json:"unrealized_pnl,omitempty"`
	SettlementPrice *int           `json:"settlement_price,omitempty"` // 0 or 100
	RealizedPnL     *int           `json:"realized_pnl,omitempty"`

	Confidence float64    `json:"confidence,omitempty"`
	Model      string     `json:"model,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	SettledAt  *time.Time `json:"settled_at,omitempty"`
	UpdatedAt  *time.Time `json:"updated_at,omitempty"`
}
