package chart

import "math"

// ViewportLimits bounds the pan/zoom state.
type ViewportLimits struct {
	BaseWindow     int     // candles visible at zoom 1
	MinVisible     int     // candles that always stay visible at the left edge
	MinZoom        float64 // e.g. 0.5
	MaxZoom        float64 // e.g. 5
	PanSensitivity float64 // candles per pixel at zoom 1
}

// DefaultViewportLimits returns the stock limits.
func DefaultViewportLimits() ViewportLimits {
	return ViewportLimits{
		BaseWindow:     80,
		MinVisible:     10,
		MinZoom:        0.5,
		MaxZoom:        5,
		PanSensitivity: 0.5,
	}
}

// Viewport selects which slice of the candle store is visible and at what density.
// Offset counts candles from the right edge.
type Viewport struct {
	Offset int
	Zoom   float64
	limits ViewportLimits
}

// NewViewport creates a viewport showing the newest candles at zoom 1.
func NewViewport(limits ViewportLimits) *Viewport {
	def := DefaultViewportLimits()
	if limits.BaseWindow <= 0 {
		limits.BaseWindow = def.BaseWindow
	}
	if limits.MinVisible <= 0 {
		limits.MinVisible = def.MinVisible
	}
	if limits.MinZoom <= 0 {
		limits.MinZoom = def.MinZoom
	}
	if limits.MaxZoom < limits.MinZoom {
		limits.MaxZoom = math.Max(def.MaxZoom, limits.MinZoom)
	}
	if limits.PanSensitivity <= 0 {
		limits.PanSensitivity = def.PanSensitivity
	}
	v := &Viewport{Zoom: 1, limits: limits}
	v.ZoomBy(1)
	return v
}

// Limits returns the bounds the viewport clamps to.
func (v *Viewport) Limits() ViewportLimits {
	return v.limits
}

// VisibleCount is floor(baseWindow / zoom), at least one.
func (v *Viewport) VisibleCount() int {
	return max(1, int(math.Floor(float64(v.limits.BaseWindow)/v.Zoom)))
}

// Window returns the first visible index and the number of visible candles.
func (v *Viewport) Window(total int) (start, count int) {
	if total <= 0 {
		return 0, 0
	}
	visible := v.VisibleCount()
	start = max(0, total-visible-v.Offset)
	end := min(total, start+visible)
	return start, end - start
}

func (v *Viewport) maxOffset(total int) int {
	return max(0, total-v.limits.MinVisible)
}

// Pan shifts the window by deltaPixels scaled inversely with zoom, so a drag covers the
// same screen distance at every zoom level. Positive deltas reveal older candles. Partial
// candles are truncated; callers keep their anchor until Pan reports a change.
func (v *Viewport) Pan(deltaPixels float64, total int) bool {
	if math.IsNaN(deltaPixels) || math.IsInf(deltaPixels, 0) {
		return false
	}
	before := v.Offset
	shift := int(math.Trunc(deltaPixels * v.limits.PanSensitivity / v.Zoom))
	v.Offset = clampInt(v.Offset+shift, 0, v.maxOffset(total))
	return v.Offset != before
}

// ZoomBy multiplies the zoom factor, clamped to the limits.
func (v *Viewport) ZoomBy(factor float64) bool {
	if factor <= 0 || math.IsNaN(factor) || math.IsInf(factor, 0) {
		return false
	}
	before := v.Zoom
	v.Zoom = math.Min(v.limits.MaxZoom, math.Max(v.limits.MinZoom, v.Zoom*factor))
	return v.Zoom != before
}

// Clamp re-applies the offset bounds after the candle count changed.
func (v *Viewport) Clamp(total int) {
	v.Offset = clampInt(v.Offset, 0, v.maxOffset(total))
}

// Reset returns to the newest candles at zoom 1.
func (v *Viewport) Reset() {
	v.Offset, v.Zoom = 0, 1
}

func clampInt(x, lo, hi int) int {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
