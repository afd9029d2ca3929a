package chart

import (
	"math"
	"unicode/utf8"

	"chartdesk/internal/domain"
)

const (
	// DefaultHitThreshold is the selection proximity in pixels.
	DefaultHitThreshold = 8.0
	// TextPadding surrounds a text label's background box.
	TextPadding = 6.0
)

// TextMeasurer returns the rendered width of text at fontSize, in pixels.
type TextMeasurer func(text string, fontSize float64) float64

// ApproxTextWidth estimates width from the rune count; used when no font metrics are wired.
func ApproxTextWidth(text string, fontSize float64) float64 {
	return float64(utf8.RuneCountInString(text)) * fontSize * 0.6
}

// TextBox returns the background rectangle of a text label whose baseline starts at anchor.
func TextBox(anchor Pixel, width, fontSize float64) (x0, y0, x1, y1 float64) {
	return anchor.X - TextPadding, anchor.Y - fontSize - TextPadding, anchor.X + width + TextPadding, anchor.Y + TextPadding
}

// HitTester finds the drawing under the pointer in select mode.
type HitTester struct {
	Threshold float64
	Measure   TextMeasurer
}

// Hit returns the index of the topmost drawing within the threshold of px. Drawings are
// tested newest first, so the one painted last wins.
func (h HitTester) Hit(px Pixel, proj Projection, drawings []domain.Drawing) (int, bool) {
	for i := len(drawings) - 1; i >= 0; i-- {
		if h.hitDrawing(px, proj, &drawings[i]) {
			return i, true
		}
	}
	return -1, false
}

func (h HitTester) threshold() float64 {
	if h.Threshold > 0 {
		return h.Threshold
	}
	return DefaultHitThreshold
}

func (h HitTester) hitDrawing(px Pixel, proj Projection, d *domain.Drawing) bool {
	thr := h.threshold()

	switch d.Type {
	case domain.DrawingHorizontal, domain.DrawingPriceMarker:
		if !proj.Params.PriceScaleValid() {
			return false
		}
		return math.Abs(px.Y-proj.Params.PriceToY(d.Price)) <= thr

	case domain.DrawingTrendline, domain.DrawingArrow:
		a, b, ok := projectSegment(proj, d)
		if !ok {
			return false
		}
		return segmentDistance(px, a, b) <= thr

	case domain.DrawingRectangle:
		a, b, ok := projectSegment(proj, d)
		if !ok {
			return false
		}
		corners := [4]Pixel{a, {X: b.X, Y: a.Y}, b, {X: a.X, Y: b.Y}}
		for i := range corners {
			if segmentDistance(px, corners[i], corners[(i+1)%4]) <= thr {
				return true
			}
		}
		return false

	case domain.DrawingText:
		if d.Position == nil {
			return false
		}
		anchor, ok := proj.ChartPointToPixel(*d.Position)
		if !ok {
			return false
		}
		measure := h.Measure
		if measure == nil {
			measure = ApproxTextWidth
		}
		x0, y0, x1, y1 := TextBox(anchor, measure(d.Text, d.FontSize), d.FontSize)
		return px.X >= x0 && px.X <= x1 && px.Y >= y0 && px.Y <= y1
	}
	return false
}

func projectSegment(proj Projection, d *domain.Drawing) (Pixel, Pixel, bool) {
	if d.StartPoint == nil || d.EndPoint == nil {
		return Pixel{}, Pixel{}, false
	}
	a, ok := proj.ChartPointToPixel(*d.StartPoint)
	if !ok {
		return Pixel{}, Pixel{}, false
	}
	b, ok := proj.ChartPointToPixel(*d.EndPoint)
	if !ok {
		return Pixel{}, Pixel{}, false
	}
	return a, b, true
}

// segmentDistance is the distance from p to the closest point of segment ab.
func segmentDistance(p, a, b Pixel) float64 {
	dx, dy := b.X-a.X, b.Y-a.Y
	lenSq := dx*dx + dy*dy
	if lenSq == 0 {
		return math.Hypot(p.X-a.X, p.Y-a.Y)
	}
	t := ((p.X-a.X)*dx + (p.Y-a.Y)*dy) / lenSq
	t = math.Max(0, math.Min(1, t))
	return math.Hypot(p.X-(a.X+t*dx), p.Y-(a.Y+t*dy))
}
