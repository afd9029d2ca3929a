package binanceclient

import (
	"context"
	"errors"
	"testing"
	"time"

	"chartdesk/internal/domain"
	"chartdesk/internal/ports"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

func newTestClient(t *testing.T) *Client {
	t.Helper()
	c, err := New(Config{Logger: &mockLogger{}, ReconnectDelay: time.Millisecond, MaxReconnectAttempts: 2})
	require.NoError(t, err)
	return c
}

func TestNew_RequiresLogger(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestTranslateKline(t *testing.T) {
	tests := []struct {
		name    string
		kline   *futures.Kline
		want    domain.Candle
		wantErr bool
	}{
		{
			name:  "valid",
			kline: &futures.Kline{OpenTime: 1700000000000, Open: "1.5", High: "2", Low: "1", Close: "1.75"},
			want:  domain.Candle{Time: 1700000000, Open: 1.5, High: 2, Low: 1, Close: 1.75},
		},
		{name: "nil", kline: nil, wantErr: true},
		{name: "bad number", kline: &futures.Kline{Open: "x", High: "2", Low: "1", Close: "1"}, wantErr: true},
		{name: "high below low", kline: &futures.Kline{Open: "1", High: "1", Low: "2", Close: "1"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := translateKline(tt.kline)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTranslateWsKline(t *testing.T) {
	event := &futures.WsKlineEvent{Kline: futures.WsKline{StartTime: 60000, Open: "10", High: "12", Low: "9", Close: "11"}}

	got, err := translateWsKline(event)
	require.NoError(t, err)
	assert.Equal(t, domain.Candle{Time: 60, Open: 10, High: 12, Low: 9, Close: 11}, got)

	_, err = translateWsKline(nil)
	assert.Error(t, err)
}

func TestTranslateAggTrade(t *testing.T) {
	got, err := translateAggTrade(&futures.WsAggTradeEvent{Price: "42000.5", TradeTime: 1700000000999})
	require.NoError(t, err)
	assert.Equal(t, domain.Tick{Time: 1700000000, Price: 42000.5}, got)

	_, err = translateAggTrade(&futures.WsAggTradeEvent{Price: "0"})
	assert.Error(t, err)
	_, err = translateAggTrade(&futures.WsAggTradeEvent{Price: "abc"})
	assert.Error(t, err)
}

func TestHandleError(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	tests := []struct {
		name string
		err  error
		want error
	}{
		{name: "rate limit", err: &common.APIError{Code: -1003}, want: ports.ErrRateLimited},
		{name: "bad symbol", err: &common.APIError{Code: -1121}, want: ports.ErrInvalidRequest},
		{name: "other api error", err: &common.APIError{Code: -9999}, want: ports.ErrFeedUnavailable},
		{name: "deadline", err: context.DeadlineExceeded, want: ports.ErrTimeout},
		{name: "canceled", err: context.Canceled, want: ports.ErrContextCanceled},
		{name: "refused", err: errors.New("dial tcp: connection refused"), want: ports.ErrConnectionFailed},
		{name: "unknown", err: errors.New("boom"), want: ports.ErrUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.handleError(ctx, tt.err, "op")
			assert.ErrorIs(t, got, tt.want)
			assert.ErrorIs(t, got, tt.err)
		})
	}
	assert.NoError(t, c.handleError(ctx, nil, "op"))
}

func TestKeepAlive_GivesUpAfterMaxAttempts(t *testing.T) {
	c := newTestClient(t)
	calls := 0
	doneCh, _ := c.keepAlive(context.Background(), "test", nil, func() (chan struct{}, chan struct{}, error) {
		calls++
		return nil, nil, errors.New("connection refused")
	})

	select {
	case <-doneCh:
	case <-time.After(time.Second):
		t.Fatal("reconnection loop did not give up")
	}
	assert.Equal(t, 2, calls)
}

func TestKeepAlive_StopsOnSignal(t *testing.T) {
	c := newTestClient(t)
	innerDone := make(chan struct{})
	innerStop := make(chan struct{}, 1)
	doneCh, stopCh := c.keepAlive(context.Background(), "test", nil, func() (chan struct{}, chan struct{}, error) {
		return innerDone, innerStop, nil
	})

	close(stopCh)

	select {
	case <-doneCh:
	case <-time.After(time.Second):
		t.Fatal("reconnection loop did not stop")
	}
	assert.Len(t, innerStop, 1, "inner connection is told to stop")
}
