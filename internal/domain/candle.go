package domain

// Candle represents a single OHLC bar. Time is the bucket start in epoch seconds.
type Candle struct {
	Time  int64   `json:"time"`
	Open  float64 `json:"open"`
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Close float64 `json:"close"`
}

// Tick represents a single trade price observed by the market-data feed.
type Tick struct {
	Time  int64   `json:"time"` // Epoch seconds
	Price float64 `json:"price"`
}

// Bullish reports whether the bar closed at or above its open.
func (c Candle) Bullish() bool {
	return c.Close >= c.Open
}
