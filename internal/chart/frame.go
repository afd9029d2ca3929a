package chart

import "chartdesk/internal/domain"

// DragPreview is the in-progress drawing painted on top of everything else.
type DragPreview struct {
	Preview
	Style Style
}

// Frame is the read-only snapshot handed to a renderer for one full repaint. Candles holds
// the visible bars; Candles[i] sits at logical index Projection.Params.StartIndex+i.
type Frame struct {
	Width        float64
	Height       float64
	Projection   Projection
	Candles      []domain.Candle
	Positions    []domain.Position
	CurrentPrice float64
	Drawings     []domain.Drawing
	SelectedID   string
	Preview      *DragPreview
	Measure      TextMeasurer
}

// Params is shorthand for the frame's layout snapshot.
func (f *Frame) Params() ChartParams {
	return f.Projection.Params
}

// CandleX returns the centre x of the i-th visible candle.
func (f *Frame) CandleX(i int) float64 {
	p := f.Projection.Params
	return p.LogicalToX(float64(p.StartIndex + i))
}

// TextWidth measures text with the frame's measurer.
func (f *Frame) TextWidth(text string, fontSize float64) float64 {
	if f.Measure == nil {
		return ApproxTextWidth(text, fontSize)
	}
	return f.Measure(text, fontSize)
}
