package ports

import (
	"context"

	"chartdesk/internal/domain"
)

// DrawingRepository stores the full drawing list of a broadcast scope.
type DrawingRepository interface {
	// SaveDrawings replaces the stored list for the scope.
	SaveDrawings(ctx context.Context, scope domain.Scope, drawings []domain.Drawing) error
	// LoadDrawings returns the stored list for the scope, or an empty list.
	LoadDrawings(ctx context.Context, scope domain.Scope) ([]domain.Drawing, error)
}

// PositionRepository defines the interface for storing and retrieving trading positions.
type PositionRepository interface {
	// Create saves a new position.
	Create(ctx context.Context, pos *domain.Position) error
	// UpdateExits persists the take-profit and stop-loss levels of a position.
	UpdateExits(ctx context.Context, pos *domain.Position) error
	// FindByID retrieves a position by its unique ID.
	// Returns nil, nil if not found.
	FindByID(ctx context.Context, id string) (*domain.Position, error)
	// FindOpenBySymbol retrieves all open positions of a symbol, oldest first.
	FindOpenBySymbol(ctx context.Context, symbol string) ([]*domain.Position, error)
	// MarkClosed sets the status of a position to closed.
	MarkClosed(ctx context.Context, id string) error
}
