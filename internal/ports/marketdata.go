package ports

import (
	"context"

	"chartdesk/internal/domain"
)

// MarketDataFeed is the inbound live feed collaborator. The chart engine never talks to it
// directly; the session forwards its events onto the chart's event queue.
type MarketDataFeed interface {
	// GetCandles retrieves the most recent historical candles used to seed the candle store.
	GetCandles(ctx context.Context, symbol, interval string, limit int) ([]domain.Candle, error)

	// StreamCandles streams candle snapshot events for the given symbol/interval.
	// Returns channels to observe (doneCh) and stop (stopCh) the stream.
	StreamCandles(ctx context.Context, symbol, interval string, handler func(candle domain.Candle), errHandler func(err error)) (doneCh chan struct{}, stopCh chan struct{}, err error)

	// StreamTicks streams individual trade prices for the given symbol.
	StreamTicks(ctx context.Context, symbol string, handler func(tick domain.Tick), errHandler func(err error)) (doneCh chan struct{}, stopCh chan struct{}, err error)
}
