package domain

// Direction represents the side of an open position.
type Direction string

const (
	Long  Direction = "long"
	Short Direction = "short"
)

// MarkerSide represents the signal direction of a price marker.
type MarkerSide string

const (
	SideBuy  MarkerSide = "buy"
	SideSell MarkerSide = "sell"
)

// ExitKind identifies which exit level of a position is addressed.
type ExitKind string

const (
	ExitTakeProfit ExitKind = "TP"
	ExitStopLoss   ExitKind = "SL"
)

// PositionStatus represents the status of a trading position.
type PositionStatus string

const (
	StatusOpen   PositionStatus = "open"
	StatusClosed PositionStatus = "closed"
)
