package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"chartdesk/internal/chart"
	"chartdesk/internal/domain"
	"chartdesk/internal/ports"
	"chartdesk/internal/risk"
)

// PositionBook is the source of truth for the owner's positions. The chart only proposes
// exit levels; the book reviews, persists and hands back the authoritative list.
type PositionBook struct {
	symbol string
	repo   ports.PositionRepository
	risk   *risk.RiskManager
	logger ports.Logger
	now    func() time.Time

	mu sync.Mutex // Serializes read-modify-write of a position
}

// NewPositionBook creates a book for one symbol.
func NewPositionBook(symbol string, repo ports.PositionRepository, rm *risk.RiskManager, logger ports.Logger) *PositionBook {
	return &PositionBook{
		symbol: symbol,
		repo:   repo,
		risk:   rm,
		logger: logger,
		now:    time.Now,
	}
}

// Open records a new position at entryPrice and fills default exits.
func (b *PositionBook) Open(ctx context.Context, direction domain.Direction, entryPrice float64) (*domain.Position, error) {
	pos := &domain.Position{
		ID:         uuid.NewString(),
		Symbol:     b.symbol,
		EntryPrice: entryPrice,
		Direction:  direction,
		OpenedAt:   b.now().UTC(),
		Status:     domain.StatusOpen,
	}
	b.risk.ApplyDefaults(ctx, pos)
	if err := b.risk.ValidatePosition(ctx, pos); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.repo.Create(ctx, pos); err != nil {
		return nil, fmt.Errorf("failed to store position: %w", err)
	}
	b.logger.Info(ctx, "Position opened", map[string]interface{}{
		"positionID": pos.ID,
		"direction":  string(pos.Direction),
		"entryPrice": pos.EntryPrice,
	})
	return pos, nil
}

// Close marks a position closed. Closed positions disappear from the chart.
func (b *PositionBook) Close(ctx context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.repo.MarkClosed(ctx, id); err != nil {
		return fmt.Errorf("failed to close position %s: %w", id, err)
	}
	b.logger.Info(ctx, "Position closed", map[string]interface{}{"positionID": id})
	return nil
}

// Review applies an exit level proposed by the chart. Accepted levels may be clamped.
// The returned position is the stored state after the review.
func (b *PositionBook) Review(ctx context.Context, upd chart.PositionUpdate) (*domain.Position, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	pos, err := b.repo.FindByID(ctx, upd.PositionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load position %s: %w", upd.PositionID, err)
	}
	if pos == nil {
		return nil, fmt.Errorf("position %s: %w", upd.PositionID, ports.ErrNotFound)
	}

	price, err := b.risk.ReviewExit(ctx, pos, upd.Kind, upd.Price)
	if err != nil {
		b.logger.Warn(ctx, "Exit level rejected", map[string]interface{}{
			"positionID": pos.ID,
			"kind":       string(upd.Kind),
			"price":      upd.Price,
			"error":      err.Error(),
		})
		return pos, err
	}

	pos.SetExit(upd.Kind, price)
	if err := b.repo.UpdateExits(ctx, pos); err != nil {
		return nil, fmt.Errorf("failed to update exits of position %s: %w", pos.ID, err)
	}
	b.logger.Info(ctx, "Exit level updated", map[string]interface{}{
		"positionID": pos.ID,
		"kind":       string(upd.Kind),
		"requested":  upd.Price,
		"applied":    price,
	})
	return pos, nil
}

// List returns the open positions, oldest first.
func (b *PositionBook) List(ctx context.Context) ([]domain.Position, error) {
	found, err := b.repo.FindOpenBySymbol(ctx, b.symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to list positions: %w", err)
	}
	out := make([]domain.Position, 0, len(found))
	for _, p := range found {
		out = append(out, p.Clone())
	}
	return out, nil
}
