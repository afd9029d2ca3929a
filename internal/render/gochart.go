package render

import (
	"fmt"
	"io"
	"math"
	"strings"

	gochart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"chartdesk/internal/chart"
)

// ImageFormat selects the raster or vector backend of a snapshot.
type ImageFormat string

const (
	FormatPNG ImageFormat = "png"
	FormatSVG ImageFormat = "svg"
)

// ContentType returns the MIME type of the encoded image.
func (f ImageFormat) ContentType() string {
	if f == FormatSVG {
		return "image/svg+xml"
	}
	return "image/png"
}

// ParseImageFormat accepts "png" and "svg"; anything else is an error.
func ParseImageFormat(s string) (ImageFormat, error) {
	switch ImageFormat(strings.ToLower(s)) {
	case "", FormatPNG:
		return FormatPNG, nil
	case FormatSVG:
		return FormatSVG, nil
	default:
		return "", fmt.Errorf("unsupported image format %q", s)
	}
}

// ImageCanvas paints onto a go-chart renderer so frames can be exported as PNG or SVG.
type ImageCanvas struct {
	r      gochart.Renderer
	width  int
	height int
}

// NewImageCanvas creates a canvas of the given size backed by the chosen format.
func NewImageCanvas(format ImageFormat, width, height int) (*ImageCanvas, error) {
	provider := gochart.PNG
	if format == FormatSVG {
		provider = gochart.SVG
	}
	r, err := provider(width, height)
	if err != nil {
		return nil, fmt.Errorf("creating %s renderer: %w", format, err)
	}
	font, err := gochart.GetDefaultFont()
	if err != nil {
		return nil, fmt.Errorf("loading default font: %w", err)
	}
	r.SetFont(font)
	return &ImageCanvas{r: r, width: width, height: height}, nil
}

// Save encodes the painted image.
func (c *ImageCanvas) Save(w io.Writer) error {
	return c.r.Save(w)
}

func toColor(hex string, alpha float64) drawing.Color {
	hex = strings.TrimPrefix(hex, "#")
	if len(hex) == 8 {
		hex = hex[:6]
	}
	if len(hex) != 3 && len(hex) != 6 {
		return drawing.ColorTransparent
	}
	c := drawing.ColorFromHex(hex)
	c.A = uint8(math.Round(math.Max(0, math.Min(1, alpha)) * 255))
	return c
}

func px(v float64) int {
	return int(math.Round(v))
}

func (c *ImageCanvas) applyStroke(s *Stroke) {
	if s == nil {
		c.r.SetStrokeColor(drawing.ColorTransparent)
		c.r.SetStrokeWidth(0)
		c.r.SetStrokeDashArray(nil)
		return
	}
	c.r.SetStrokeColor(toColor(s.Color, s.Alpha))
	c.r.SetStrokeWidth(s.Width)
	c.r.SetStrokeDashArray(s.Dash)
}

func (c *ImageCanvas) applyFill(f *Fill) {
	if f == nil {
		c.r.SetFillColor(drawing.ColorTransparent)
		return
	}
	c.r.SetFillColor(toColor(f.Color, f.Alpha))
}

func (c *ImageCanvas) paint(f *Fill, s *Stroke) {
	c.applyFill(f)
	c.applyStroke(s)
	switch {
	case f != nil && s != nil:
		c.r.FillStroke()
	case f != nil:
		c.r.Fill()
	default:
		c.r.Stroke()
	}
}

// Clear paints the background.
func (c *ImageCanvas) Clear(background string) {
	c.Rect(0, 0, float64(c.width), float64(c.height), fill(background, 1), nil)
}

// Line strokes segment ab.
func (c *ImageCanvas) Line(a, b chart.Pixel, s Stroke) {
	c.r.MoveTo(px(a.X), px(a.Y))
	c.r.LineTo(px(b.X), px(b.Y))
	c.paint(nil, &s)
}

// Rect paints an axis-aligned rectangle.
func (c *ImageCanvas) Rect(x, y, w, h float64, f *Fill, s *Stroke) {
	c.Polygon([]chart.Pixel{{X: x, Y: y}, {X: x + w, Y: y}, {X: x + w, Y: y + h}, {X: x, Y: y + h}}, f, s)
}

// Polygon paints a closed path.
func (c *ImageCanvas) Polygon(points []chart.Pixel, f *Fill, s *Stroke) {
	if len(points) < 2 || (f == nil && s == nil) {
		return
	}
	c.r.MoveTo(px(points[0].X), px(points[0].Y))
	for _, p := range points[1:] {
		c.r.LineTo(px(p.X), px(p.Y))
	}
	c.r.LineTo(px(points[0].X), px(points[0].Y))
	c.r.Close()
	c.paint(f, s)
}

// Circle paints a circle, approximated by a polygon so both backends share one path model.
func (c *ImageCanvas) Circle(center chart.Pixel, radius float64, f *Fill, s *Stroke) {
	const segments = 16
	pts := make([]chart.Pixel, segments)
	for i := range pts {
		a := 2 * math.Pi * float64(i) / segments
		pts[i] = chart.Pixel{X: center.X + radius*math.Cos(a), Y: center.Y + radius*math.Sin(a)}
	}
	c.Polygon(pts, f, s)
}

// Text draws text with its baseline at at.Y.
func (c *ImageCanvas) Text(at chart.Pixel, text string, font Font) {
	c.r.SetFontColor(toColor(font.Color, 1))
	c.r.SetFontSize(font.Size)
	c.r.Text(text, px(at.X), px(at.Y))
}

// MeasureText uses the renderer's font metrics.
func (c *ImageCanvas) MeasureText(text string, size float64) float64 {
	c.r.SetFontSize(size)
	return float64(c.r.MeasureText(text).Width())
}

// Snapshot renders f into an encoded image.
func Snapshot(w io.Writer, p *Pipeline, f chart.Frame, format ImageFormat) error {
	cv, err := NewImageCanvas(format, px(f.Width), px(f.Height))
	if err != nil {
		return err
	}
	f.Measure = cv.MeasureText
	p.Render(cv, f)
	if err := cv.Save(w); err != nil {
		return fmt.Errorf("encoding %s snapshot: %w", format, err)
	}
	return nil
}
