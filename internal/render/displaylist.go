package render

import "chartdesk/internal/chart"

// Op is one recorded canvas call. Browser viewers replay ops onto a 2D context.
type Op struct {
	Op     string        `json:"op"`
	Points []chart.Pixel `json:"pts,omitempty"`
	X      float64       `json:"x"`
	Y      float64       `json:"y"`
	W      float64       `json:"w"`
	H      float64       `json:"h"`
	R      float64       `json:"r"`
	Text   string        `json:"text,omitempty"`
	Color  string        `json:"color,omitempty"`
	Fill   *Fill         `json:"fill,omitempty"`
	Stroke *Stroke       `json:"stroke,omitempty"`
	Font   *Font         `json:"font,omitempty"`
}

// DisplayList records a frame as a list of ops instead of rasterizing it.
type DisplayList struct {
	Width   float64            `json:"width"`
	Height  float64            `json:"height"`
	Ops     []Op               `json:"ops"`
	Measure chart.TextMeasurer `json:"-"`
}

// Record paints f into a new display list.
func Record(p *Pipeline, f chart.Frame) *DisplayList {
	dl := &DisplayList{Width: f.Width, Height: f.Height, Measure: f.Measure}
	p.Render(dl, f)
	return dl
}

// Clear resets the list and records a background fill.
func (d *DisplayList) Clear(background string) {
	d.Ops = append(d.Ops[:0], Op{Op: "clear", Color: background})
}

// Line records a stroked segment.
func (d *DisplayList) Line(a, b chart.Pixel, s Stroke) {
	d.Ops = append(d.Ops, Op{Op: "line", Points: []chart.Pixel{a, b}, Stroke: &s})
}

// Rect records a rectangle.
func (d *DisplayList) Rect(x, y, w, h float64, f *Fill, s *Stroke) {
	d.Ops = append(d.Ops, Op{Op: "rect", X: x, Y: y, W: w, H: h, Fill: f, Stroke: s})
}

// Polygon records a closed path.
func (d *DisplayList) Polygon(points []chart.Pixel, f *Fill, s *Stroke) {
	pts := make([]chart.Pixel, len(points))
	copy(pts, points)
	d.Ops = append(d.Ops, Op{Op: "polygon", Points: pts, Fill: f, Stroke: s})
}

// Circle records a circle.
func (d *DisplayList) Circle(center chart.Pixel, radius float64, f *Fill, s *Stroke) {
	d.Ops = append(d.Ops, Op{Op: "circle", X: center.X, Y: center.Y, R: radius, Fill: f, Stroke: s})
}

// Text records a text run.
func (d *DisplayList) Text(at chart.Pixel, text string, font Font) {
	d.Ops = append(d.Ops, Op{Op: "text", X: at.X, Y: at.Y, Text: text, Font: &font})
}

// MeasureText uses the list's measurer, falling back to an estimate.
func (d *DisplayList) MeasureText(text string, size float64) float64 {
	if d.Measure != nil {
		return d.Measure(text, size)
	}
	return chart.ApproxTextWidth(text, size)
}

// Count returns how many ops of the given kind were recorded.
func (d *DisplayList) Count(op string) int {
	n := 0
	for i := range d.Ops {
		if d.Ops[i].Op == op {
			n++
		}
	}
	return n
}
