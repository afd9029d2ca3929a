package chart

import (
	"chartdesk/internal/domain"
)

const defaultStoreCapacity = 500

// CandleStore is the time-ordered bar sequence of one chart. Times are strictly increasing;
// only the last bar is ever amended in place.
type CandleStore struct {
	candles  []domain.Candle
	interval int64 // bucket size in seconds, used for ticks
	capacity int
	lastTick int64
	hasTick  bool
}

// NewCandleStore creates a store bucketing ticks into interval-second bars.
func NewCandleStore(intervalSeconds int64, capacity int) *CandleStore {
	if intervalSeconds <= 0 {
		intervalSeconds = 60
	}
	if capacity <= 0 {
		capacity = defaultStoreCapacity
	}
	return &CandleStore{interval: intervalSeconds, capacity: capacity}
}

// Interval returns the tick bucket size in seconds.
func (s *CandleStore) Interval() int64 {
	return s.interval
}

// Len returns the number of bars.
func (s *CandleStore) Len() int {
	return len(s.candles)
}

// At returns the i-th bar.
func (s *CandleStore) At(i int) domain.Candle {
	return s.candles[i]
}

// Last returns the newest bar, if any.
func (s *CandleStore) Last() (domain.Candle, bool) {
	if len(s.candles) == 0 {
		return domain.Candle{}, false
	}
	return s.candles[len(s.candles)-1], true
}

// Candles returns a copy of the bars.
func (s *CandleStore) Candles() []domain.Candle {
	out := make([]domain.Candle, len(s.candles))
	copy(out, s.candles)
	return out
}

// Slice returns a copy of bars in [from, to).
func (s *CandleStore) Slice(from, to int) []domain.Candle {
	if from < 0 {
		from = 0
	}
	if to > len(s.candles) {
		to = len(s.candles)
	}
	if from >= to {
		return nil
	}
	out := make([]domain.Candle, to-from)
	copy(out, s.candles[from:to])
	return out
}

// Times returns the bar times, the input of the coordinate engine.
func (s *CandleStore) Times() []int64 {
	out := make([]int64, len(s.candles))
	for i, c := range s.candles {
		out[i] = c.Time
	}
	return out
}

// Replace swaps the whole sequence. Bars that are not strictly newer than their
// predecessor are dropped. Returns the number of bars kept.
func (s *CandleStore) Replace(candles []domain.Candle) int {
	s.candles = s.candles[:0]
	for _, c := range candles {
		if n := len(s.candles); n > 0 && c.Time <= s.candles[n-1].Time {
			continue
		}
		s.candles = append(s.candles, c)
	}
	s.trim()
	s.hasTick = false
	return len(s.candles)
}

// ApplyCandle merges a snapshot bar: same time amends the last bar, a newer time appends,
// an older time is dropped. Reports whether the store changed.
func (s *CandleStore) ApplyCandle(c domain.Candle) bool {
	n := len(s.candles)
	switch {
	case n == 0 || c.Time > s.candles[n-1].Time:
		s.candles = append(s.candles, c)
		s.trim()
	case c.Time == s.candles[n-1].Time:
		s.candles[n-1] = c
	default:
		return false
	}
	return true
}

// ApplyTick folds a trade price into the bar of its bucket. Ticks older than the last bar or
// than the previously applied tick are dropped. Reports whether the store changed.
func (s *CandleStore) ApplyTick(t domain.Tick) bool {
	if s.hasTick && t.Time < s.lastTick {
		return false
	}
	bucket := floorDiv(t.Time, s.interval) * s.interval

	n := len(s.candles)
	if n > 0 {
		last := &s.candles[n-1]
		if t.Time < last.Time {
			return false
		}
		// bucket < last.Time happens when snapshot bars use another alignment than the
		// tick buckets; the tick still belongs to the last bar.
		if bucket <= last.Time {
			if t.Price > last.High {
				last.High = t.Price
			}
			if t.Price < last.Low {
				last.Low = t.Price
			}
			last.Close = t.Price
			s.lastTick, s.hasTick = t.Time, true
			return true
		}
	}

	s.candles = append(s.candles, domain.Candle{Time: bucket, Open: t.Price, High: t.Price, Low: t.Price, Close: t.Price})
	s.trim()
	s.lastTick, s.hasTick = t.Time, true
	return true
}

func (s *CandleStore) trim() {
	if over := len(s.candles) - s.capacity; over > 0 {
		s.candles = append(s.candles[:0], s.candles[over:]...)
	}
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
