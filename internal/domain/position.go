package domain

import "time"

// Position represents an open trade owned by the trading page. The chart only keeps a
// working copy of it for drag feedback.
type Position struct {
	ID         string         `json:"id"`
	Symbol     string         `json:"symbol"`
	EntryPrice float64        `json:"entryPrice"`
	Direction  Direction      `json:"direction"`
	TakeProfit *float64       `json:"takeProfit,omitempty"` // nil when unset
	StopLoss   *float64       `json:"stopLoss,omitempty"`   // nil when unset
	OpenedAt   time.Time      `json:"openedAt"`
	Status     PositionStatus `json:"status"`
}

// IsOpen checks if the position status is open.
func (p *Position) IsOpen() bool {
	return p.Status == StatusOpen
}

// Exit returns the level stored for the given exit kind, if any.
func (p *Position) Exit(kind ExitKind) (float64, bool) {
	var v *float64
	switch kind {
	case ExitTakeProfit:
		v = p.TakeProfit
	case ExitStopLoss:
		v = p.StopLoss
	}
	if v == nil {
		return 0, false
	}
	return *v, true
}

// SetExit stores a level for the given exit kind.
func (p *Position) SetExit(kind ExitKind, price float64) {
	switch kind {
	case ExitTakeProfit:
		p.TakeProfit = &price
	case ExitStopLoss:
		p.StopLoss = &price
	}
}

// Clone returns a deep copy, so the exit pointers are not shared.
func (p Position) Clone() Position {
	if p.TakeProfit != nil {
		tp := *p.TakeProfit
		p.TakeProfit = &tp
	}
	if p.StopLoss != nil {
		sl := *p.StopLoss
		p.StopLoss = &sl
	}
	return p
}
