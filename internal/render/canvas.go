package render

import "chartdesk/internal/chart"

// Stroke describes a line.
type Stroke struct {
	Color string    `json:"color"`
	Alpha float64   `json:"alpha"`
	Width float64   `json:"width"`
	Dash  []float64 `json:"dash,omitempty"`
}

// Fill describes an area fill.
type Fill struct {
	Color string  `json:"color"`
	Alpha float64 `json:"alpha"`
}

// Font describes a text run.
type Font struct {
	Color string  `json:"color"`
	Size  float64 `json:"size"`
}

// Canvas is the immediate-mode surface the pipeline paints on. Coordinates are canvas
// pixels; text is positioned by its baseline.
type Canvas interface {
	Clear(background string)
	Line(a, b chart.Pixel, s Stroke)
	Rect(x, y, w, h float64, fill *Fill, stroke *Stroke)
	Polygon(points []chart.Pixel, fill *Fill, stroke *Stroke)
	Circle(center chart.Pixel, radius float64, fill *Fill, stroke *Stroke)
	Text(at chart.Pixel, text string, font Font)
	MeasureText(text string, size float64) float64
}

func solid(color string, width float64) Stroke {
	return Stroke{Color: color, Alpha: 1, Width: width}
}

func dashed(color string, width float64, dash ...float64) Stroke {
	return Stroke{Color: color, Alpha: 1, Width: width, Dash: dash}
}

func fill(color string, alpha float64) *Fill {
	return &Fill{Color: color, Alpha: alpha}
}
