package chart

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"chartdesk/internal/domain"
)

// Style is the toolbar-supplied look of the next drawing.
type Style struct {
	Color     string  `json:"color"`
	LineWidth float64 `json:"lineWidth"`
}

// DrawingDefaults are the per-type constants applied to newly created drawings.
type DrawingDefaults struct {
	BuyColor       string
	FillOpacity    float64
	HeadSize       float64
	FontSize       float64
	TextBackground string
	MarkerLabel    string
}

// DefaultDrawingDefaults returns the stock per-type constants.
func DefaultDrawingDefaults() DrawingDefaults {
	return DrawingDefaults{
		BuyColor:       "#22c55e",
		FillOpacity:    0.15,
		HeadSize:       15,
		FontSize:       14,
		TextBackground: "#1a1a28",
		MarkerLabel:    "Signal",
	}
}

// Factory builds finalized drawings stamped with scope, id and timestamps.
type Factory struct {
	Scope    domain.Scope
	Defaults DrawingDefaults
	NewID    func() string
	Now      func() time.Time
}

func (f *Factory) base(kind domain.DrawingType, style Style) domain.Drawing {
	newID := f.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	now := time.Now
	if f.Now != nil {
		now = f.Now
	}
	ts := now().UTC()
	return domain.Drawing{
		ID:        newID(),
		Type:      kind,
		Scope:     f.Scope,
		Color:     style.Color,
		LineWidth: style.LineWidth,
		CreatedAt: ts,
		UpdatedAt: ts,
	}
}

// Segment builds a trendline, rectangle or arrow between two chart points.
func (f *Factory) Segment(kind domain.DrawingType, style Style, start, end domain.Point) domain.Drawing {
	d := f.base(kind, style)
	d.StartPoint, d.EndPoint = &start, &end
	switch kind {
	case domain.DrawingRectangle:
		d.FillColor = style.Color
		d.FillOpacity = f.Defaults.FillOpacity
	case domain.DrawingArrow:
		d.HeadSize = f.Defaults.HeadSize
	}
	return d
}

// Level builds a horizontal line or a price marker at price.
func (f *Factory) Level(kind domain.DrawingType, style Style, price float64) domain.Drawing {
	d := f.base(kind, style)
	d.Price = price
	if kind == domain.DrawingPriceMarker {
		d.Label = f.Defaults.MarkerLabel
		d.Side = domain.SideSell
		if strings.EqualFold(style.Color, f.Defaults.BuyColor) {
			d.Side = domain.SideBuy
		}
	}
	return d
}

// Text builds a text label anchored at pos.
func (f *Factory) Text(style Style, pos domain.Point, text string) domain.Drawing {
	d := f.base(domain.DrawingText, style)
	d.Position = &pos
	d.Text = text
	d.FontSize = f.Defaults.FontSize
	d.BackgroundColor = f.Defaults.TextBackground
	return d
}
