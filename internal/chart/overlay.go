package chart

import (
	"math"

	"chartdesk/internal/domain"
)

// PositionUpdate is a TP/SL level pushed back to the position owner.
type PositionUpdate struct {
	PositionID string          `json:"positionId"`
	Kind       domain.ExitKind `json:"kind"`
	Price      float64         `json:"price"`
}

// exitDrag keeps the price scale from the moment the line was grabbed. The live scale
// follows the dragged level, so reading the pointer through it would move the level
// while the pointer stands still.
type exitDrag struct {
	positionID string
	kind       domain.ExitKind
	params     ChartParams
}

// Overlay holds the chart's working copies of the owner's open positions and the TP/SL
// line drag. The owner stays the source of truth: the working copy changes on every move,
// the owner hears about it once, when the drag ends.
type Overlay struct {
	positions []domain.Position
	drag      *exitDrag
}

// SetPositions replaces the working copies. Closed positions are ignored. A level being
// dragged keeps its dragged value; the drag is dropped if its position disappeared.
func (o *Overlay) SetPositions(in []domain.Position) {
	var dragged float64
	var hasDragged bool
	if o.drag != nil {
		if p := o.find(o.drag.positionID); p != nil {
			dragged, hasDragged = p.Exit(o.drag.kind)
		}
	}

	o.positions = o.positions[:0]
	for i := range in {
		if in[i].Status == domain.StatusClosed {
			continue
		}
		o.positions = append(o.positions, in[i].Clone())
	}

	if o.drag == nil {
		return
	}
	p := o.find(o.drag.positionID)
	if p == nil {
		o.drag = nil
		return
	}
	if hasDragged {
		p.SetExit(o.drag.kind, dragged)
	}
}

// Positions returns copies of the working positions.
func (o *Overlay) Positions() []domain.Position {
	out := make([]domain.Position, len(o.positions))
	for i := range o.positions {
		out[i] = o.positions[i].Clone()
	}
	return out
}

// Dragging reports whether a TP/SL line is being dragged.
func (o *Overlay) Dragging() bool {
	return o.drag != nil
}

func (o *Overlay) find(id string) *domain.Position {
	for i := range o.positions {
		if o.positions[i].ID == id {
			return &o.positions[i]
		}
	}
	return nil
}

// Begin grabs the TP/SL line closest to px if it lies within threshold pixels vertically
// and px is inside the plotted horizontal extent.
func (o *Overlay) Begin(px Pixel, params ChartParams, threshold float64) bool {
	if !params.PriceScaleValid() || !params.PlotContainsX(px.X) {
		return false
	}
	best := math.Inf(1)
	var grab *exitDrag
	for i := range o.positions {
		for _, kind := range []domain.ExitKind{domain.ExitTakeProfit, domain.ExitStopLoss} {
			v, ok := o.positions[i].Exit(kind)
			if !ok {
				continue
			}
			if dist := math.Abs(params.PriceToY(v) - px.Y); dist <= threshold && dist < best {
				best = dist
				grab = &exitDrag{positionID: o.positions[i].ID, kind: kind, params: params}
			}
		}
	}
	o.drag = grab
	return grab != nil
}

// Move updates the dragged level of the working copy to the price under px on the scale
// captured by Begin.
func (o *Overlay) Move(px Pixel) bool {
	if o.drag == nil {
		return false
	}
	p := o.find(o.drag.positionID)
	if p == nil {
		o.drag = nil
		return false
	}
	p.SetExit(o.drag.kind, o.drag.params.YToPrice(px.Y))
	return true
}

// End finishes the drag and returns the level to push to the owner.
func (o *Overlay) End() (PositionUpdate, bool) {
	if o.drag == nil {
		return PositionUpdate{}, false
	}
	d := o.drag
	o.drag = nil
	p := o.find(d.positionID)
	if p == nil {
		return PositionUpdate{}, false
	}
	v, ok := p.Exit(d.kind)
	if !ok {
		return PositionUpdate{}, false
	}
	return PositionUpdate{PositionID: d.positionID, Kind: d.kind, Price: v}, true
}

// Suggest assigns price to an empty TP or SL slot of the most recently opened position,
// picking the slot from the price's side of the entry. Existing levels are never replaced.
func (o *Overlay) Suggest(price float64) (PositionUpdate, bool) {
	var latest *domain.Position
	for i := range o.positions {
		if latest == nil || o.positions[i].OpenedAt.After(latest.OpenedAt) {
			latest = &o.positions[i]
		}
	}
	if latest == nil || price == latest.EntryPrice || math.IsNaN(price) {
		return PositionUpdate{}, false
	}

	above := price > latest.EntryPrice
	kind := domain.ExitStopLoss
	if above == (latest.Direction != domain.Short) {
		kind = domain.ExitTakeProfit
	}
	if _, set := latest.Exit(kind); set {
		return PositionUpdate{}, false
	}
	latest.SetExit(kind, price)
	return PositionUpdate{PositionID: latest.ID, Kind: kind, Price: price}, true
}
