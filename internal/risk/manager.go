package risk

import (
	"context"
	"fmt"
	"math"
	"sync"

	"chartdesk/internal/domain"
	"chartdesk/internal/ports"
)

// RiskConfig holds configuration for exit level review
type RiskConfig struct {
	MaxExitDistance   float64 // Max distance of TP/SL from entry as a fraction of entry (0 disables clamping)
	StopLossPercent   float64 // Default SL distance for new positions (0 leaves SL unset)
	TakeProfitPercent float64 // Default TP distance for new positions (0 leaves TP unset)
}

// RiskManager reviews exit levels proposed by the chart before they reach the position book.
type RiskManager struct {
	config RiskConfig
	mu     sync.Mutex
	stats  *RiskStats
}

// RiskStats holds review statistics
type RiskStats struct {
	Reviewed int
	Accepted int
	Clamped  int
	Rejected int
}

// NewRiskManager creates a new risk manager instance
func NewRiskManager(config RiskConfig) *RiskManager {
	return &RiskManager{
		config: config,
		stats:  &RiskStats{},
	}
}

// ValidatePosition validates if a new position can be opened
func (r *RiskManager) ValidatePosition(ctx context.Context, position *domain.Position) error {
	if position.EntryPrice <= 0 || math.IsNaN(position.EntryPrice) || math.IsInf(position.EntryPrice, 0) {
		return fmt.Errorf("%w: entry price %f must be positive", ports.ErrInvalidRequest, position.EntryPrice)
	}
	if position.Direction != domain.Long && position.Direction != domain.Short {
		return fmt.Errorf("%w: unknown direction %q", ports.ErrInvalidRequest, position.Direction)
	}
	for _, kind := range []domain.ExitKind{domain.ExitTakeProfit, domain.ExitStopLoss} {
		if v, ok := position.Exit(kind); ok && !onProfitSide(position, kind, v) {
			return fmt.Errorf("%w: %s %f is on the wrong side of entry %f", ports.ErrInvalidRequest, kind, v, position.EntryPrice)
		}
	}
	return nil
}

// onProfitSide reports whether price sits where the exit kind belongs: TP beyond entry in
// the trade's direction, SL against it.
func onProfitSide(p *domain.Position, kind domain.ExitKind, price float64) bool {
	above := price > p.EntryPrice
	if price == p.EntryPrice {
		return false
	}
	favourable := above == (p.Direction == domain.Long)
	if kind == domain.ExitTakeProfit {
		return favourable
	}
	return !favourable
}

// ReviewExit decides what happens to a TP/SL level pushed by the chart. Levels on the wrong
// side of entry are rejected; levels further than MaxExitDistance are clamped.
func (r *RiskManager) ReviewExit(ctx context.Context, position *domain.Position, kind domain.ExitKind, price float64) (float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats.Reviewed++

	if !position.IsOpen() {
		r.stats.Rejected++
		return 0, fmt.Errorf("%w: position %s is %s", ports.ErrExitRejected, position.ID, position.Status)
	}
	if price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		r.stats.Rejected++
		return 0, fmt.Errorf("%w: %s %f must be positive", ports.ErrExitRejected, kind, price)
	}
	if !onProfitSide(position, kind, price) {
		r.stats.Rejected++
		return 0, fmt.Errorf("%w: %s %f is on the wrong side of entry %f for a %s position",
			ports.ErrExitRejected, kind, price, position.EntryPrice, position.Direction)
	}

	if r.config.MaxExitDistance > 0 {
		limit := position.EntryPrice * r.config.MaxExitDistance
		if math.Abs(price-position.EntryPrice) > limit {
			r.stats.Clamped++
			if price > position.EntryPrice {
				return position.EntryPrice + limit, nil
			}
			return position.EntryPrice - limit, nil
		}
	}

	r.stats.Accepted++
	return price, nil
}

// GetStopLoss calculates the stop loss price for a position
func (r *RiskManager) GetStopLoss(ctx context.Context, entryPrice float64, direction domain.Direction) float64 {
	if direction == domain.Long {
		return entryPrice * (1 - r.config.StopLossPercent)
	}
	return entryPrice * (1 + r.config.StopLossPercent)
}

// GetTakeProfit calculates the take profit price for a position
func (r *RiskManager) GetTakeProfit(ctx context.Context, entryPrice float64, direction domain.Direction) float64 {
	if direction == domain.Long {
		return entryPrice * (1 + r.config.TakeProfitPercent)
	}
	return entryPrice * (1 - r.config.TakeProfitPercent)
}

// ApplyDefaults fills unset exits from the configured percentages.
func (r *RiskManager) ApplyDefaults(ctx context.Context, position *domain.Position) {
	if _, ok := position.Exit(domain.ExitTakeProfit); !ok && r.config.TakeProfitPercent > 0 {
		position.SetExit(domain.ExitTakeProfit, r.GetTakeProfit(ctx, position.EntryPrice, position.Direction))
	}
	if _, ok := position.Exit(domain.ExitStopLoss); !ok && r.config.StopLossPercent > 0 {
		position.SetExit(domain.ExitStopLoss, r.GetStopLoss(ctx, position.EntryPrice, position.Direction))
	}
}

// GetStats returns a copy of the review statistics
func (r *RiskManager) GetStats() RiskStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.stats
}

// ResetStats resets the review statistics
func (r *RiskManager) ResetStats(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats = &RiskStats{}
}
