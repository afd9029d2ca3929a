package chart

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chartdesk/internal/domain"
)

func TestCandleStore_Replace(t *testing.T) {
	s := NewCandleStore(60, 3)

	kept := s.Replace([]domain.Candle{
		{Time: 0, Open: 1, High: 2, Low: 1, Close: 2},
		{Time: 60, Open: 2, High: 3, Low: 2, Close: 3},
		{Time: 60, Open: 9, High: 9, Low: 9, Close: 9}, // duplicate time
		{Time: 30, Open: 9, High: 9, Low: 9, Close: 9}, // out of order
		{Time: 120, Open: 3, High: 3, Low: 1, Close: 2},
		{Time: 180, Open: 2, High: 4, Low: 2, Close: 4},
	})

	assert.Equal(t, 3, kept, "capacity trims the oldest bar")
	assert.Equal(t, []int64{60, 120, 180}, s.Times())
}

func TestCandleStore_ApplyCandle(t *testing.T) {
	tests := []struct {
		name        string
		candle      domain.Candle
		wantChanged bool
		wantTimes   []int64
		wantClose   float64
	}{
		{
			name:        "same time amends last bar",
			candle:      domain.Candle{Time: 60, Open: 2, High: 5, Low: 2, Close: 4.5},
			wantChanged: true,
			wantTimes:   []int64{0, 60},
			wantClose:   4.5,
		},
		{
			name:        "newer time appends",
			candle:      domain.Candle{Time: 120, Open: 3, High: 3, Low: 3, Close: 3},
			wantChanged: true,
			wantTimes:   []int64{0, 60, 120},
			wantClose:   3,
		},
		{
			name:        "older time is dropped",
			candle:      domain.Candle{Time: 0, Open: 7, High: 7, Low: 7, Close: 7},
			wantChanged: false,
			wantTimes:   []int64{0, 60},
			wantClose:   3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewCandleStore(60, 0)
			s.Replace([]domain.Candle{
				{Time: 0, Open: 1, High: 2, Low: 1, Close: 2},
				{Time: 60, Open: 2, High: 3, Low: 2, Close: 3},
			})

			assert.Equal(t, tt.wantChanged, s.ApplyCandle(tt.candle))
			assert.Equal(t, tt.wantTimes, s.Times())
			last, ok := s.Last()
			require.True(t, ok)
			assert.Equal(t, tt.wantClose, last.Close)
		})
	}
}

func TestCandleStore_ApplyTick(t *testing.T) {
	s := NewCandleStore(60, 0)
	s.Replace([]domain.Candle{{Time: 60, Open: 10, High: 11, Low: 9, Close: 10}})

	// Same bucket extends the last bar.
	require.True(t, s.ApplyTick(domain.Tick{Time: 75, Price: 12}))
	require.True(t, s.ApplyTick(domain.Tick{Time: 90, Price: 8}))
	last, _ := s.Last()
	assert.Equal(t, domain.Candle{Time: 60, Open: 10, High: 12, Low: 8, Close: 8}, last)

	// Next bucket opens a new bar.
	require.True(t, s.ApplyTick(domain.Tick{Time: 125, Price: 8.5}))
	assert.Equal(t, []int64{60, 120}, s.Times())
	last, _ = s.Last()
	assert.Equal(t, domain.Candle{Time: 120, Open: 8.5, High: 8.5, Low: 8.5, Close: 8.5}, last)

	// Older than the previous tick.
	before := s.Candles()
	assert.False(t, s.ApplyTick(domain.Tick{Time: 124, Price: 100}))
	assert.Equal(t, before, s.Candles())
}

func TestCandleStore_ApplyTickOlderThanLastCandle(t *testing.T) {
	s := NewCandleStore(60, 0)
	s.Replace([]domain.Candle{
		{Time: 0, Open: 1, High: 2, Low: 1, Close: 2},
		{Time: 60, Open: 2, High: 3, Low: 2, Close: 3},
	})
	before := s.Candles()

	assert.False(t, s.ApplyTick(domain.Tick{Time: 59, Price: 50}))
	assert.Equal(t, before, s.Candles())
}

func TestCandleStore_Slice(t *testing.T) {
	s := NewCandleStore(60, 0)
	s.Replace([]domain.Candle{{Time: 0}, {Time: 60}, {Time: 120}})

	assert.Len(t, s.Slice(-5, 2), 2)
	assert.Len(t, s.Slice(1, 10), 2)
	assert.Nil(t, s.Slice(2, 2))

	got := s.Slice(0, 1)
	got[0].Close = 99
	assert.Equal(t, 0.0, s.At(0).Close, "slice must be a copy")
}

func TestFloorDiv(t *testing.T) {
	assert.Equal(t, int64(1), floorDiv(119, 60))
	assert.Equal(t, int64(2), floorDiv(120, 60))
	assert.Equal(t, int64(-1), floorDiv(-1, 60))
	assert.Equal(t, int64(-1), floorDiv(-60, 60))
}
