package position

import (
	"context"
	"log/slog"
	"time"
)

// DefaultMonitorInterval is how often the background monitor re-checks
// active positions when the config does not override it.
const DefaultMonitorInterval = time.Hour

// Monitor periodically sweeps all active positions, settling ones whose
// market has resolved and marking the rest to the latest price. The per
// request quote client's rate limiter paces the upstream calls.
type Monitor struct {
	svc      *Service
	interval time.Duration
	logger   *slog.Logger
}

// NewMonitor creates a monitor over svc. interval <= 0 uses the default.
func NewMonitor(svc *Service, interval time.Duration, logger *slog.Logger) *Monitor {
	if interval <= 0 {
		interval = DefaultMonitorInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{svc: svc, interval: interval, logger: logger}
}

// Run blocks, sweeping on each tick until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	m.logger.Info("position monitor started", "interval", m.interval.String())

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("position monitor stopped")
			return
		case <-ticker.C:
			m.sweep(ctx)
		}
	}
}

func (m *Monitor) sweep(ctx context.Context) {
	active, err := m.svc.store.ListActivePositions(ctx)
	if err != nil {
		m.logger.Error("monitor: list active positions failed", "err", err)
		return
	}
	if len(active) == 0 {
		return
	}

	var settled int
	for _, pos := range active {
		if ctx.Err() != nil {
			return
		}
		updated, err := m.svc.Refresh(ctx, pos.PositionID)
		if err != nil {
			m.logger.Warn("monitor: refresh failed",
				"position_id", pos.PositionID, "ticker", pos.Ticker, "err", err)
			continue
		}
		if updated.Status.Settled() {
			settled++
		}
	}

	m.logger.Info("monitor sweep complete",
		"checked", len(active), "settled", settled)
}
