package engine_test

import (
	"errors"
	"math"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/snapbet/decision-engine/internal/engine"
	"github.com/snapbet/decision-engine/internal/model"
)

func baseRec() *model.Recommendation {
	return &model.Recommendation{
		Ticker:                      "KXFIGHT-GARCIA",
		Side:                        model.SideYes,
		Confidence:                  0.72,
		Reasoning:                   "power punch rate favors garcia",
		RecommendedPositionFraction: 0.05,
	}
}

func TestKellyFraction_Bounds(t *testing.T) {
	for p := 0.01; p < 1.0; p += 0.07 {
		for c := 1; c < 100; c += 7 {
			f := engine.KellyFraction(p, c)
			if f < 0 || f > 1 {
				t.Fatalf("kelly(%v, %d) = %v outside [0,1]", p, c, f)
			}
		}
	}
}

func TestKellyFraction_ZeroWithoutEdge(t *testing.T) {
	// No edge (p*100 <= price) must size to zero.
	cases := []struct {
		p float64
		c int
	}{
		{0.50, 50}, {0.40, 60}, {0.30, 30}, {0.10, 95},
	}
	for _, tc := range cases {
		if f := engine.KellyFraction(tc.p, tc.c); f != 0 {
			t.Errorf("kelly(%v, %d) = %v, want 0", tc.p, tc.c, f)
		}
	}
	if f := engine.KellyFraction(0.9, 100); f != 0 {
		t.Errorf("kelly at price 100 = %v, want 0", f)
	}
}

func TestKellyFraction_KnownValue(t *testing.T) {
	// p=0.72, c=60: f = 0.72 - 0.28*(0.6/0.4) = 0.30
	f := engine.KellyFraction(0.72, 60)
	if math.Abs(f-0.30) > 1e-9 {
		t.Errorf("kelly(0.72, 60) = %v, want 0.30", f)
	}
}

func TestEVPerContract_MonotoneInProbability(t *testing.T) {
	for c := 1; c < 100; c += 9 {
		prev := engine.EVPerContract(0.01, c)
		for p := 0.02; p < 1.0; p += 0.01 {
			ev := engine.EVPerContract(p, c)
			if ev <= prev {
				t.Fatalf("EV not strictly increasing at p=%v c=%d: %v <= %v", p, c, ev, prev)
			}
			prev = ev
		}
	}
}

func TestEVPerContract_KnownValue(t *testing.T) {
	// p=0.72, c=60: 0.72*40 - 0.28*60 = 12 cents.
	ev := engine.EVPerContract(0.72, 60)
	if math.Abs(ev-12) > 1e-9 {
		t.Errorf("ev(0.72, 60) = %v, want 12", ev)
	}
}

func TestBuildOrderTicket_SpecScenario(t *testing.T) {
	// confidence 0.72, yes_ask 60, fraction 0.05, bankroll $100.
	q := foundQuote()
	q.YesAsk = ip(60)

	ticket, err := engine.BuildOrderTicket(baseRec(), q, decimal.NewFromInt(100))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if ticket.EntryPrice != 60 {
		t.Errorf("entry price = %d, want 60", ticket.EntryPrice)
	}
	if ticket.TargetPrice != 72 {
		t.Errorf("target price = %d, want 72", ticket.TargetPrice)
	}
	if ticket.Edge == nil || *ticket.Edge != 12 {
		t.Errorf("edge = %v, want +12", ticket.Edge)
	}
	if ticket.Estimated {
		t.Error("ticket should be market-priced, not estimated")
	}
	if ticket.Contracts != 8 {
		t.Errorf("contracts = %d, want max(1, floor(5/0.60)) = 8", ticket.Contracts)
	}
	if !ticket.TotalCost.Equal(decimal.NewFromFloat(4.80)) {
		t.Errorf("total cost = %s, want 4.80", ticket.TotalCost)
	}
	if !ticket.MaxProfit.Equal(decimal.NewFromFloat(3.20)) {
		t.Errorf("max profit = %s, want 3.20", ticket.MaxProfit)
	}
	if !ticket.MaxLoss.Equal(ticket.TotalCost) {
		t.Errorf("max loss = %s, want total cost %s", ticket.MaxLoss, ticket.TotalCost)
	}
	if ticket.ReturnPct == nil || math.Abs(*ticket.ReturnPct-66.666666) > 0.001 {
		t.Errorf("return pct = %v, want ~66.67", ticket.ReturnPct)
	}
}

func TestBuildOrderTicket_NoBet(t *testing.T) {
	rec := baseRec()
	rec.NoBet = true
	rec.NoBetReason = "market fairly priced"

	q := foundQuote()
	q.YesAsk = ip(60)

	_, err := engine.BuildOrderTicket(rec, q, decimal.NewFromInt(100))
	var noBet *engine.NoBetError
	if !errors.As(err, &noBet) {
		t.Fatalf("expected NoBetError, got %v", err)
	}
	if noBet.Reason != "market fairly priced" {
		t.Errorf("reason = %q", noBet.Reason)
	}
}

func TestBuildOrderTicket_EstimatedMode(t *testing.T) {
	// Unmatched market: ticket still sizes, flagged estimated, edge nil.
	q := &model.MarketQuote{Status: model.QuoteNotFound}

	ticket, err := engine.BuildOrderTicket(baseRec(), q, decimal.NewFromInt(100))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ticket.Estimated {
		t.Error("ticket should be flagged estimated")
	}
	if ticket.Edge != nil {
		t.Errorf("edge should be nil in estimated mode, got %d", *ticket.Edge)
	}
	if ticket.EntryPrice != 72 {
		t.Errorf("estimated entry = %d, want confidence-as-price 72", ticket.EntryPrice)
	}
	// floor(5 / 0.72) = 6 contracts against the estimated price.
	if ticket.Contracts != 6 {
		t.Errorf("contracts = %d, want 6", ticket.Contracts)
	}
	if !ticket.TotalCost.Equal(decimal.NewFromFloat(4.32)) {
		t.Errorf("total cost = %s, want 4.32", ticket.TotalCost)
	}
}

func TestBuildOrderTicket_KellyCapLimitsFraction(t *testing.T) {
	// Model fraction far above full Kelly gets capped.
	rec := baseRec()
	rec.RecommendedPositionFraction = 0.90 // kelly at (0.72, 60) is 0.30

	q := foundQuote()
	q.YesAsk = ip(60)

	ticket, err := engine.BuildOrderTicket(rec, q, decimal.NewFromInt(100))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(ticket.FractionUsed-0.30) > 1e-9 {
		t.Errorf("fraction used = %v, want kelly cap 0.30", ticket.FractionUsed)
	}
	// spend 30 -> floor(30/0.60) = 50 contracts.
	if ticket.Contracts != 50 {
		t.Errorf("contracts = %d, want 50", ticket.Contracts)
	}
}

func TestBuildOrderTicket_FractionClamped(t *testing.T) {
	rec := baseRec()
	rec.RecommendedPositionFraction = 1.7

	q := foundQuote()
	q.YesAsk = ip(60)

	ticket, err := engine.BuildOrderTicket(rec, q, decimal.NewFromInt(100))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ticket.FractionUsed > 1 {
		t.Errorf("fraction used = %v, must not exceed 1", ticket.FractionUsed)
	}
}

func TestBuildOrderTicket_MinimumOneContract(t *testing.T) {
	// Tiny bankroll still buys one contract once a bet is recommended.
	q := foundQuote()
	q.YesAsk = ip(60)

	ticket, err := engine.BuildOrderTicket(baseRec(), q, decimal.NewFromInt(1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ticket.Contracts != 1 {
		t.Errorf("contracts = %d, want floor of 1", ticket.Contracts)
	}
}

func TestBuildOrderTicket_InvalidInputs(t *testing.T) {
	q := foundQuote()
	q.YesAsk = ip(60)

	rec := baseRec()
	rec.Confidence = 0
	if _, err := engine.BuildOrderTicket(rec, q, decimal.NewFromInt(100)); !errors.Is(err, engine.ErrInvalidConfidence) {
		t.Errorf("expected ErrInvalidConfidence, got %v", err)
	}

	rec = baseRec()
	rec.Side = "maybe"
	if _, err := engine.BuildOrderTicket(rec, q, decimal.NewFromInt(100)); !errors.Is(err, engine.ErrInvalidSide) {
		t.Errorf("expected ErrInvalidSide, got %v", err)
	}

	if _, err := engine.BuildOrderTicket(nil, q, decimal.NewFromInt(100)); !errors.Is(err, engine.ErrNilRecommendation) {
		t.Errorf("expected ErrNilRecommendation, got %v", err)
	}
}

func TestBestScenario_MaxEVFirstOccurrence(t *testing.T) {
	scs := []model.EvScenario{
		{Probability: 0.52, EvPerContract: -8, KellyFraction: 0},
		{Probability: 0.62, EvPerContract: 2, KellyFraction: 0.05},
		{Probability: 0.72, EvPerContract: 12, KellyFraction: 0.30},
		{Probability: 0.82, EvPerContract: 12, KellyFraction: 0.55}, // tie
	}
	if got := engine.BestScenario(scs); got != 2 {
		t.Errorf("best scenario = %d, want first max at 2", got)
	}
	if got := engine.BestScenario(nil); got != -1 {
		t.Errorf("empty table best = %d, want -1", got)
	}
}

func TestCheckScenarios(t *testing.T) {
	good := []model.EvScenario{
		{Probability: 0.62, EvPerContract: 2, KellyFraction: 0.05},
		{Probability: 0.72, EvPerContract: 12, KellyFraction: 0.30},
	}
	if err := engine.CheckScenarios(good, 60); err != nil {
		t.Errorf("valid table rejected: %v", err)
	}

	bad := []model.EvScenario{
		{Probability: 0.62, EvPerContract: 2, KellyFraction: 1.3},
	}
	if err := engine.CheckScenarios(bad, 60); err == nil {
		t.Error("kelly fraction above 1 should be rejected")
	}

	bad = []model.EvScenario{
		{Probability: 1.2, EvPerContract: 2, KellyFraction: 0.1},
	}
	if err := engine.CheckScenarios(bad, 60); err == nil {
		t.Error("probability outside (0,1) should be rejected")
	}
}
