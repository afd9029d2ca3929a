package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"chartdesk/internal/domain"
	"chartdesk/internal/ports"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
)

const (
	// Base URLs
	baseURLProduction = "https://fapi.binance.com"
	baseURLTestnet    = "https://testnet.binancefuture.com"
)

// Client implements the ports.MarketDataFeed interface using the go-binance library.
type Client struct {
	futuresClient        *futures.Client
	logger               ports.Logger
	reconnectDelay       time.Duration
	maxReconnectAttempts int
}

// Config holds configuration specific to the Binance client adapter.
type Config struct {
	APIKey               string
	SecretKey            string
	UseTestnet           bool
	Logger               ports.Logger
	ReconnectDelay       time.Duration // Base delay of the exponential backoff
	MaxReconnectAttempts int           // Max consecutive failed attempts before giving up
}

// wsServe opens one websocket connection of a stream.
type wsServe func() (doneC, stopC chan struct{}, err error)

// New creates a new Binance client adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance client")
	}
	if cfg.APIKey == "" || cfg.SecretKey == "" {
		// Market data endpoints are public.
		cfg.Logger.Debug(context.Background(), "Binance client created without API keys")
	}

	client := futures.NewClient(cfg.APIKey, cfg.SecretKey)
	if cfg.UseTestnet {
		client.BaseURL = baseURLTestnet
		futures.UseTestnet = true
	} else {
		client.BaseURL = baseURLProduction
	}
	cfg.Logger.Info(context.Background(), "Binance market data client configured", map[string]interface{}{"baseURL": client.BaseURL})

	reconnectDelay := cfg.ReconnectDelay
	if reconnectDelay <= 0 {
		reconnectDelay = 1 * time.Second
	}
	maxAttempts := cfg.MaxReconnectAttempts
	if maxAttempts <= 0 {
		maxAttempts = 10
	}

	return &Client{
		futuresClient:        client,
		logger:               cfg.Logger,
		reconnectDelay:       reconnectDelay,
		maxReconnectAttempts: maxAttempts,
	}, nil
}

// handleError translates common Binance API errors into standardized ports errors.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message

		var mappedErr error
		switch apiErr.Code {
		case -1003: // Too many requests
			mappedErr = ports.ErrRateLimited
		case -1021: // Timestamp outside of the recvWindow
			mappedErr = ports.ErrTimeout
		case -1100, -1101, -1102, -1120, -1121: // Bad symbol, interval or limit
			mappedErr = ports.ErrInvalidRequest
		default:
			mappedErr = ports.ErrFeedUnavailable
		}
		c.logger.Error(ctx, err, fmt.Sprintf("%s failed with API error", operation), fields)
		return fmt.Errorf("%s failed: %w: %w", operation, mappedErr, err)
	}

	var finalErr error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrTimeout, err)
	case errors.Is(err, context.Canceled):
		finalErr = fmt.Errorf("%s operation canceled: %w: %w", operation, ports.ErrContextCanceled, err)
	case strings.Contains(err.Error(), "use of closed network connection"),
		strings.Contains(err.Error(), "connection refused"),
		strings.Contains(err.Error(), "connection reset by peer"):
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrConnectionFailed, err)
	default:
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrUnknown, err)
	}

	c.logger.Error(ctx, err, fmt.Sprintf("%s failed", operation), fields)
	return finalErr
}

// GetCandles retrieves the most recent candles for the given symbol, oldest first.
func (c *Client) GetCandles(ctx context.Context, symbol, interval string, limit int) ([]domain.Candle, error) {
	op := "GetCandles"
	klines, err := c.futuresClient.NewKlinesService().Symbol(symbol).Interval(interval).Limit(limit).Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	candles := make([]domain.Candle, 0, len(klines))
	for _, k := range klines {
		candle, err := translateKline(k)
		if err != nil {
			return nil, c.handleError(ctx, fmt.Errorf("%w: %w", ports.ErrMalformedEvent, err), op)
		}
		candles = append(candles, candle)
	}
	return candles, nil
}

// GetCandlesRange fetches all candles for a symbol/interval between start and end time.
func (c *Client) GetCandlesRange(ctx context.Context, symbol, interval string, start, end time.Time) ([]domain.Candle, error) {
	op := "GetCandlesRange"
	const maxLimit = 1500
	var all []domain.Candle
	from := start

	for {
		klines, err := c.futuresClient.NewKlinesService().
			Symbol(symbol).
			Interval(interval).
			StartTime(from.UnixMilli()).
			EndTime(end.UnixMilli()).
			Limit(maxLimit).
			Do(ctx)
		if err != nil {
			return nil, c.handleError(ctx, err, op)
		}
		if len(klines) == 0 {
			break
		}
		for _, k := range klines {
			candle, err := translateKline(k)
			if err != nil {
				return nil, c.handleError(ctx, fmt.Errorf("%w: %w", ports.ErrMalformedEvent, err), op)
			}
			all = append(all, candle)
		}
		from = time.UnixMilli(klines[len(klines)-1].CloseTime + 1)
		if from.After(end) || len(klines) < maxLimit {
			break
		}
	}
	return all, nil
}

// StreamCandles starts a WebSocket stream of kline snapshots. The forming bar is
// delivered repeatedly with the same Time until the next bucket starts.
func (c *Client) StreamCandles(ctx context.Context, symbol, interval string, handler func(candle domain.Candle), errHandler func(err error)) (chan struct{}, chan struct{}, error) {
	op := "StreamCandles"
	fields := map[string]interface{}{"symbol": symbol, "interval": interval}

	wsHandler := func(event *futures.WsKlineEvent) {
		candle, err := translateWsKline(event)
		if err != nil {
			c.logger.Warn(ctx, op+": dropping kline event", map[string]interface{}{"symbol": symbol, "error": err.Error()})
			return
		}
		handler(candle)
	}
	wsErrHandler := func(err error) {
		errHandler(c.handleError(ctx, err, op+" WebSocket"))
	}

	doneC, stopC := c.keepAlive(ctx, op, fields, func() (chan struct{}, chan struct{}, error) {
		return futures.WsKlineServe(symbol, interval, wsHandler, wsErrHandler)
	})
	return doneC, stopC, nil
}

// StreamTicks starts a WebSocket stream of aggregated trades for the symbol.
func (c *Client) StreamTicks(ctx context.Context, symbol string, handler func(tick domain.Tick), errHandler func(err error)) (chan struct{}, chan struct{}, error) {
	op := "StreamTicks"
	fields := map[string]interface{}{"symbol": symbol}

	wsHandler := func(event *futures.WsAggTradeEvent) {
		tick, err := translateAggTrade(event)
		if err != nil {
			c.logger.Warn(ctx, op+": dropping trade event", map[string]interface{}{"symbol": symbol, "error": err.Error()})
			return
		}
		handler(tick)
	}
	wsErrHandler := func(err error) {
		errHandler(c.handleError(ctx, err, op+" WebSocket"))
	}

	doneC, stopC := c.keepAlive(ctx, op, fields, func() (chan struct{}, chan struct{}, error) {
		return futures.WsAggTradeServe(symbol, wsHandler, wsErrHandler)
	})
	return doneC, stopC, nil
}

// keepAlive runs serve in a reconnection loop with exponential backoff. The returned
// doneCh closes when the loop exits; sending on (or closing) stopCh ends it.
func (c *Client) keepAlive(ctx context.Context, op string, fields map[string]interface{}, serve wsServe) (chan struct{}, chan struct{}) {
	wsCtx, cancelWs := context.WithCancel(ctx)
	doneCh := make(chan struct{})
	stopCh := make(chan struct{})

	go func() {
		defer close(doneCh)
		defer cancelWs()

		attempt := 0
		for {
			if wsCtx.Err() != nil {
				return
			}

			innerDone, innerStop, err := serve()
			if err != nil {
				c.handleError(wsCtx, err, op+" connection attempt")
				attempt++
				if attempt >= c.maxReconnectAttempts {
					c.logger.Error(wsCtx, err, op+": max reconnection attempts exceeded, giving up", withField(fields, "maxAttempts", c.maxReconnectAttempts))
					return
				}

				delay := c.reconnectDelay * time.Duration(1<<uint(attempt-1))
				c.logger.Info(wsCtx, op+": connection failed, retrying", withField(fields, "delay", delay.String()))
				select {
				case <-time.After(delay):
					continue
				case <-wsCtx.Done():
					return
				}
			}

			c.logger.Info(wsCtx, op+": WebSocket connection established", fields)
			attempt = 0

			select {
			case <-innerDone:
				c.logger.Warn(wsCtx, op+": WebSocket connection closed unexpectedly, reconnecting", fields)
			case <-wsCtx.Done():
				select {
				case innerStop <- struct{}{}:
				default:
				}
				c.logger.Info(wsCtx, op+": WebSocket stopped", fields)
				return
			}
		}
	}()

	go func() {
		select {
		case <-stopCh:
			cancelWs()
		case <-wsCtx.Done():
		}
	}()

	return doneCh, stopCh
}

func withField(fields map[string]interface{}, key string, value interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(fields)+1)
	for k, v := range fields {
		out[k] = v
	}
	out[key] = value
	return out
}

func translateWsKline(event *futures.WsKlineEvent) (domain.Candle, error) {
	if event == nil {
		return domain.Candle{}, errors.New("received nil kline event")
	}
	k := event.Kline
	return parseOHLC(k.StartTime, k.Open, k.High, k.Low, k.Close)
}

func translateKline(k *futures.Kline) (domain.Candle, error) {
	if k == nil {
		return domain.Candle{}, errors.New("received nil historical kline")
	}
	return parseOHLC(k.OpenTime, k.Open, k.High, k.Low, k.Close)
}

func translateAggTrade(event *futures.WsAggTradeEvent) (domain.Tick, error) {
	if event == nil {
		return domain.Tick{}, errors.New("received nil trade event")
	}
	price, err := strconv.ParseFloat(event.Price, 64)
	if err != nil {
		return domain.Tick{}, fmt.Errorf("parsing trade price '%s': %w", event.Price, err)
	}
	if price <= 0 {
		return domain.Tick{}, fmt.Errorf("non-positive trade price %f", price)
	}
	return domain.Tick{Time: event.TradeTime / 1000, Price: price}, nil
}

// parseOHLC converts exchange string prices into a candle keyed by its start second.
func parseOHLC(startMs int64, o, h, l, cl string) (domain.Candle, error) {
	var vals [4]float64
	for i, s := range []string{o, h, l, cl} {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return domain.Candle{}, fmt.Errorf("parsing price '%s': %w", s, err)
		}
		vals[i] = v
	}
	candle := domain.Candle{Time: startMs / 1000, Open: vals[0], High: vals[1], Low: vals[2], Close: vals[3]}
	if candle.High < candle.Low {
		return domain.Candle{}, fmt.Errorf("high %f below low %f", candle.High, candle.Low)
	}
	return candle, nil
}
