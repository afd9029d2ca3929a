package api

import (
	"chartdesk/internal/chart"
	"chartdesk/internal/domain"
)

// openPositionRequest is the body of POST /api/v1/positions. A zero entry price opens at
// the live price.
type openPositionRequest struct {
	Direction  domain.Direction `json:"direction" binding:"required,oneof=long short"`
	EntryPrice float64          `json:"entryPrice" binding:"gte=0"`
}

// updateExitRequest is the body of PATCH /api/v1/positions/:id/exits.
type updateExitRequest struct {
	Kind  domain.ExitKind `json:"kind" binding:"required,oneof=TP SL"`
	Price float64         `json:"price" binding:"required,gt=0"`
}

func (r updateExitRequest) toUpdate(id string) chart.PositionUpdate {
	return chart.PositionUpdate{PositionID: id, Kind: r.Kind, Price: r.Price}
}
