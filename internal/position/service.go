// Package position implements the tracked-position lifecycle: accept, mark
// to market, settle, close. Positions are user journal entries, not broker
// orders; all prices are cents per contract in the position's own side terms.
package position

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/snapbet/decision-engine/internal/model"
	"github.com/snapbet/decision-engine/internal/risk"
	"github.com/snapbet/decision-engine/internal/store"
	"github.com/snapbet/decision-engine/internal/ticker"
)

// ErrInvalidState is returned when an operation is not legal in the
// position's current lifecycle state, e.g. deleting a settled position.
var ErrInvalidState = errors.New("position: invalid state for operation")

// QuoteFetcher supplies market snapshots for mark-to-market and settlement
// detection. Implementations never fail hard; a degraded quote carries a
// not_found or error status instead.
type QuoteFetcher interface {
	Fetch(ctx context.Context, ticker string) *model.MarketQuote
}

// EventPublisher receives lifecycle events for downstream consumers.
// Implementations must tolerate being called concurrently.
type EventPublisher interface {
	PublishOpened(ctx context.Context, pos *model.TrackedPosition) error
	PublishClosed(ctx context.Context, pos *model.TrackedPosition) error
	PublishSettled(ctx context.Context, pos *model.TrackedPosition) error
	PublishPriceMove(ctx context.Context, pos *model.TrackedPosition) error
}

// Notifier pushes position updates to connected clients.
type Notifier interface {
	NotifySettlement(pos *model.TrackedPosition)
	NotifyPriceMove(pos *model.TrackedPosition, delta int)
}

// AcceptRequest records a user taking a recommended (or manual) position.
type AcceptRequest struct {
	UserID     string     `json:"user_id"`
	JobID      string     `json:"job_id,omitempty"`
	Ticker     string     `json:"ticker"`
	Title      string     `json:"title,omitempty"`
	Side       model.Side `json:"side"`
	EntryPrice int        `json:"entry_price"`
	Confidence float64    `json:"confidence,omitempty"`
	Model      string     `json:"model,omitempty"`
}

// Service owns the position lifecycle. A per-position mutex keeps refresh,
// settle, and close from interleaving on the same position; distinct
// positions proceed in parallel.
type Service struct {
	store    store.Store
	quotes   QuoteFetcher
	limiter  *risk.Limiter
	events   EventPublisher
	notifier Notifier
	logger   *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewService creates a position service. events and notifier may be nil.
func NewService(st store.Store, quotes QuoteFetcher, limiter *risk.Limiter, events EventPublisher, notifier Notifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    st,
		quotes:   quotes,
		limiter:  limiter,
		events:   events,
		notifier: notifier,
		logger:   logger,
		locks:    make(map[string]*sync.Mutex),
	}
}

func (s *Service) lock(positionID string) func() {
	s.mu.Lock()
	l, ok := s.locks[positionID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[positionID] = l
	}
	s.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// Accept validates the request, checks exposure limits against the user's
// open positions, and records a new active position.
func (s *Service) Accept(ctx context.Context, req AcceptRequest) (*model.TrackedPosition, error) {
	if req.UserID == "" {
		return nil, errors.New("position: user_id is required")
	}
	parsed, err := ticker.Parse(req.Ticker)
	if err != nil {
		return nil, err
	}
	if !req.Side.Valid() {
		return nil, fmt.Errorf("position: invalid side %q", req.Side)
	}
	if req.EntryPrice < 1 || req.EntryPrice > 99 {
		return nil, fmt.Errorf("position: entry price %d out of range [1,99]", req.EntryPrice)
	}

	if s.limiter != nil {
		open, err := s.store.ListPositionsByUser(ctx, req.UserID)
		if err != nil {
			return nil, fmt.Errorf("position: list open positions: %w", err)
		}
		openCost := make(map[string]decimal.Decimal)
		for _, p := range open {
			if p.Status != model.PositionActive {
				continue
			}
			openCost[p.Ticker] = openCost[p.Ticker].Add(centsToDollars(p.EntryPrice))
		}
		if err := s.limiter.Check(parsed.Raw, centsToDollars(req.EntryPrice), openCost); err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	pos := &model.TrackedPosition{
		PositionID: uuid.NewString(),
		UserID:     req.UserID,
		JobID:      req.JobID,
		Ticker:     parsed.Raw,
		Title:      req.Title,
		Side:       req.Side,
		EntryPrice: req.EntryPrice,
		Status:     model.PositionActive,
		Confidence: req.Confidence,
		Model:      req.Model,
		CreatedAt:  now,
	}
	if err := s.store.CreatePosition(ctx, pos); err != nil {
		return nil, fmt.Errorf("position: create: %w", err)
	}

	s.publish(ctx, eventOpened, pos)
	return pos, nil
}

// Get returns a single position.
func (s *Service) Get(ctx context.Context, positionID string) (*model.TrackedPosition, error) {
	return s.store.GetPosition(ctx, positionID)
}

// List returns all of a user's positions, newest first.
func (s *Service) List(ctx context.Context, userID string) ([]model.TrackedPosition, error) {
	return s.store.ListPositionsByUser(ctx, userID)
}

// Refresh re-checks a position against live market data. A settled market
// settles the position; otherwise the current price and unrealized P&L are
// updated. Settled positions are returned unchanged.
func (s *Service) Refresh(ctx context.Context, positionID string) (*model.TrackedPosition, error) {
	unlock := s.lock(positionID)
	defer unlock()

	pos, err := s.store.GetPosition(ctx, positionID)
	if err != nil {
		return nil, err
	}
	if pos.Status.Settled() {
		return pos, nil
	}

	quote := s.quotes.Fetch(ctx, pos.Ticker)
	return s.applyQuote(ctx, pos, quote)
}

// applyQuote applies a fresh market snapshot to an active position. Caller
// holds the position lock.
func (s *Service) applyQuote(ctx context.Context, pos *model.TrackedPosition, quote *model.MarketQuote) (*model.TrackedPosition, error) {
	if quote == nil || quote.Status != model.QuoteFound {
		return pos, nil
	}

	if quote.Result.Valid() {
		return s.settleLocked(ctx, pos, quote.Result)
	}

	yesPrice := firstOf(quote.YesAsk, quote.LastPrice)
	if yesPrice == nil {
		return pos, nil
	}

	current := *yesPrice
	if pos.Side == model.SideNo {
		current = 100 - *yesPrice
	}
	unrealized := current - pos.EntryPrice

	prev := pos.EntryPrice
	if pos.CurrentPrice != nil {
		prev = *pos.CurrentPrice
	}
	delta := current - prev

	now := time.Now().UTC()
	pos.CurrentPrice = &current
	pos.UnrealizedPnL = &unrealized
	pos.UpdatedAt = &now
	if err := s.store.UpdatePosition(ctx, pos); err != nil {
		return nil, fmt.Errorf("position: update: %w", err)
	}

	if delta != 0 {
		s.publish(ctx, eventPriceMove, pos)
		if s.notifier != nil {
			s.notifier.NotifyPriceMove(pos, delta)
		}
	}
	return pos, nil
}

// Settle finalizes a position against the market's result. Wins settle at
// 100, losses at 0; realized P&L is frozen and later refreshes are no-ops.
func (s *Service) Settle(ctx context.Context, positionID string, result model.Side) (*model.TrackedPosition, error) {
	unlock := s.lock(positionID)
	defer unlock()

	pos, err := s.store.GetPosition(ctx, positionID)
	if err != nil {
		return nil, err
	}
	if pos.Status.Settled() {
		return pos, nil
	}
	return s.settleLocked(ctx, pos, result)
}

func (s *Service) settleLocked(ctx context.Context, pos *model.TrackedPosition, result model.Side) (*model.TrackedPosition, error) {
	var settlement, realized int
	if pos.Side == result {
		settlement = 100
		realized = 100 - pos.EntryPrice
	} else {
		settlement = 0
		realized = -pos.EntryPrice
	}

	// A settlement that made no money counts as a loss.
	status := model.PositionSettledLoss
	if realized > 0 {
		status = model.PositionSettledWin
	}

	now := time.Now().UTC()
	pos.Status = status
	pos.SettlementPrice = &settlement
	pos.RealizedPnL = &realized
	pos.CurrentPrice = &settlement
	pos.UnrealizedPnL = nil
	pos.SettledAt = &now
	pos.UpdatedAt = &now

	if err := s.store.UpdatePosition(ctx, pos); err != nil {
		return nil, fmt.Errorf("position: settle: %w", err)
	}

	s.logger.Info("position settled",
		"position_id", pos.PositionID,
		"ticker", pos.Ticker,
		"status", string(status),
		"realized_pnl", realized)

	s.publish(ctx, eventSettled, pos)
	if s.notifier != nil {
		s.notifier.NotifySettlement(pos)
	}
	return pos, nil
}

// Close deletes an active position. Settled positions are history and
// cannot be removed.
func (s *Service) Close(ctx context.Context, positionID string) error {
	unlock := s.lock(positionID)
	defer unlock()

	pos, err := s.store.GetPosition(ctx, positionID)
	if err != nil {
		return err
	}
	if pos.Status != model.PositionActive {
		return fmt.Errorf("%w: cannot delete %s position", ErrInvalidState, pos.Status)
	}
	if err := s.store.DeletePosition(ctx, positionID); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.locks, positionID)
	s.mu.Unlock()

	s.publish(ctx, eventClosed, pos)
	return nil
}

type eventKind int

const (
	eventOpened eventKind = iota
	eventClosed
	eventSettled
	eventPriceMove
)

func (s *Service) publish(ctx context.Context, kind eventKind, pos *model.TrackedPosition) {
	if s.events == nil {
		return
	}
	var err error
	switch kind {
	case eventOpened:
		err = s.events.PublishOpened(ctx, pos)
	case eventClosed:
		err = s.events.PublishClosed(ctx, pos)
	case eventSettled:
		err = s.events.PublishSettled(ctx, pos)
	case eventPriceMove:
		err = s.events.PublishPriceMove(ctx, pos)
	}
	if err != nil {
		s.logger.Warn("publish position event failed",
			"position_id", pos.PositionID, "err", err)
	}
}

func centsToDollars(cents int) decimal.Decimal {
	return decimal.NewFromInt(int64(cents)).Div(decimal.NewFromInt(100))
}

func firstOf(vals ...*int) *int {
	for _, v := range vals {
		if v != nil {
			return v
		}
	}
	return nil
}
