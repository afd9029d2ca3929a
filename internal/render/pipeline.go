package render

import (
	"math"

	"github.com/shopspring/decimal"

	"chartdesk/internal/chart"
	"chartdesk/internal/domain"
)

const (
	handleRadius     = 5
	glowWidth        = 6
	levelBadgeWidth  = 70
	levelBadgeHeight = 18
	markerBoxWidth   = 120
	markerBoxHeight  = 28
	labelFontSize    = 11
	arrowHeadAngle   = math.Pi / 6
)

// Theme holds the palette of everything the pipeline paints itself.
type Theme struct {
	Background string
	Grid       string
	AxisText   string
	Bull       string
	Bear       string
	Entry      string
	TakeProfit string
	StopLoss   string
	LivePrice  string
	Buy        string
	Sell       string
	Handle     string
}

// DefaultTheme is the dark trading-terminal palette.
func DefaultTheme() Theme {
	return Theme{
		Background: "#0f0f17",
		Grid:       "#1f1f2e",
		AxisText:   "#8b8b9e",
		Bull:       "#22c55e",
		Bear:       "#ef4444",
		Entry:      "#3b82f6",
		TakeProfit: "#22c55e",
		StopLoss:   "#ef4444",
		LivePrice:  "#eab308",
		Buy:        "#22c55e",
		Sell:       "#ef4444",
		Handle:     "#ffffff",
	}
}

// Pipeline repaints a whole frame in fixed layer order: grid, candles, positions, live
// price, drawings, then the drag preview on top.
type Pipeline struct {
	Theme     Theme
	GridLines int
	Decimals  int32
}

// NewPipeline returns a pipeline with the default theme.
func NewPipeline() *Pipeline {
	return &Pipeline{Theme: DefaultTheme(), GridLines: 6, Decimals: 2}
}

// Render paints f onto cv.
func (p *Pipeline) Render(cv Canvas, f chart.Frame) {
	cv.Clear(p.Theme.Background)

	params := f.Params()
	if !params.PriceScaleValid() {
		return
	}
	p.grid(cv, params)
	p.candles(cv, &f)
	p.positions(cv, &f)
	p.livePrice(cv, &f)
	for i := range f.Drawings {
		d := &f.Drawings[i]
		p.drawing(cv, &f, d, d.ID == f.SelectedID)
	}
	if f.Preview != nil {
		p.preview(cv, f.Preview)
	}
}

func (p *Pipeline) price(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(p.Decimals)
}

func plotRight(params chart.ChartParams) float64 {
	return params.Padding.Left + params.ChartWidth
}

func (p *Pipeline) grid(cv Canvas, params chart.ChartParams) {
	n := p.GridLines
	if n < 2 {
		return
	}
	top, bottom := params.Padding.Top, params.Padding.Top+params.ChartHeight
	for i := 0; i < n; i++ {
		y := top + (bottom-top)*float64(i)/float64(n-1)
		cv.Line(chart.Pixel{X: params.Padding.Left, Y: y}, chart.Pixel{X: plotRight(params), Y: y}, solid(p.Theme.Grid, 1))
		cv.Text(chart.Pixel{X: plotRight(params) + 6, Y: y + 4}, p.price(params.YToPrice(y)), Font{Color: p.Theme.AxisText, Size: labelFontSize})
	}
}

func (p *Pipeline) candles(cv Canvas, f *chart.Frame) {
	params := f.Params()
	for i, c := range f.Candles {
		x := f.CandleX(i)
		color := p.Theme.Bear
		if c.Bullish() {
			color = p.Theme.Bull
		}
		cv.Line(chart.Pixel{X: x, Y: params.PriceToY(c.High)}, chart.Pixel{X: x, Y: params.PriceToY(c.Low)}, solid(color, 1))

		top := params.PriceToY(math.Max(c.Open, c.Close))
		h := math.Max(1, params.PriceToY(math.Min(c.Open, c.Close))-top)
		cv.Rect(x-params.CandleWidth/2, top, params.CandleWidth, h, fill(color, 1), nil)
	}
}

func (p *Pipeline) levelLine(cv Canvas, params chart.ChartParams, y float64, color, label string, s Stroke) {
	cv.Line(chart.Pixel{X: params.Padding.Left, Y: y}, chart.Pixel{X: plotRight(params), Y: y}, s)
	x := plotRight(params) - levelBadgeWidth
	cv.Rect(x, y-levelBadgeHeight/2, levelBadgeWidth, levelBadgeHeight, fill(color, 1), nil)
	cv.Text(chart.Pixel{X: x + 4, Y: y + 4}, label, Font{Color: p.Theme.Background, Size: labelFontSize})
}

func (p *Pipeline) positions(cv Canvas, f *chart.Frame) {
	params := f.Params()
	for i := range f.Positions {
		pos := &f.Positions[i]
		p.levelLine(cv, params, params.PriceToY(pos.EntryPrice), p.Theme.Entry, "ENTRY "+p.price(pos.EntryPrice), solid(p.Theme.Entry, 1))
		if v, ok := pos.Exit(domain.ExitTakeProfit); ok {
			p.levelLine(cv, params, params.PriceToY(v), p.Theme.TakeProfit, "TP "+p.price(v), dashed(p.Theme.TakeProfit, 1.5, 6, 4))
		}
		if v, ok := pos.Exit(domain.ExitStopLoss); ok {
			p.levelLine(cv, params, params.PriceToY(v), p.Theme.StopLoss, "SL "+p.price(v), dashed(p.Theme.StopLoss, 1.5, 6, 4))
		}
	}
}

func (p *Pipeline) livePrice(cv Canvas, f *chart.Frame) {
	if f.CurrentPrice <= 0 {
		return
	}
	params := f.Params()
	p.levelLine(cv, params, params.PriceToY(f.CurrentPrice), p.Theme.LivePrice, p.price(f.CurrentPrice), dashed(p.Theme.LivePrice, 1, 4, 4))
}

func (p *Pipeline) glow(cv Canvas, a, b chart.Pixel, color string, width float64) {
	cv.Line(a, b, Stroke{Color: color, Alpha: 0.35, Width: width + glowWidth})
}

func (p *Pipeline) handles(cv Canvas, color string, pts ...chart.Pixel) {
	for _, pt := range pts {
		cv.Circle(pt, handleRadius, fill(p.Theme.Handle, 1), &Stroke{Color: color, Alpha: 1, Width: 2})
	}
}

func (p *Pipeline) drawing(cv Canvas, f *chart.Frame, d *domain.Drawing, selected bool) {
	proj := f.Projection
	params := proj.Params

	switch d.Type {
	case domain.DrawingTrendline:
		a, b, ok := segment(proj, d)
		if !ok {
			return
		}
		a, b = extend(params, a, b, d.ExtendLeft, d.ExtendRight)
		if selected {
			p.glow(cv, a, b, d.Color, d.LineWidth)
		}
		cv.Line(a, b, solid(d.Color, d.LineWidth))
		if selected {
			p.handles(cv, d.Color, a, b)
		}

	case domain.DrawingArrow:
		a, b, ok := segment(proj, d)
		if !ok {
			return
		}
		if selected {
			p.glow(cv, a, b, d.Color, d.LineWidth)
		}
		p.arrow(cv, a, b, d.Color, d.LineWidth, d.HeadSize)
		if selected {
			p.handles(cv, d.Color, a, b)
		}

	case domain.DrawingRectangle:
		a, b, ok := segment(proj, d)
		if !ok {
			return
		}
		x, y := math.Min(a.X, b.X), math.Min(a.Y, b.Y)
		w, h := math.Abs(b.X-a.X), math.Abs(b.Y-a.Y)
		fc := d.FillColor
		if fc == "" {
			fc = d.Color
		}
		if selected {
			cv.Rect(x, y, w, h, nil, &Stroke{Color: d.Color, Alpha: 0.35, Width: d.LineWidth + glowWidth})
		}
		s := solid(d.Color, d.LineWidth)
		cv.Rect(x, y, w, h, fill(fc, d.FillOpacity), &s)
		if selected {
			p.handles(cv, d.Color, a, b, chart.Pixel{X: a.X, Y: b.Y}, chart.Pixel{X: b.X, Y: a.Y})
		}

	case domain.DrawingHorizontal:
		y := params.PriceToY(d.Price)
		a, b := chart.Pixel{X: params.Padding.Left, Y: y}, chart.Pixel{X: plotRight(params), Y: y}
		if selected {
			p.glow(cv, a, b, d.Color, d.LineWidth)
		}
		p.levelLine(cv, params, y, d.Color, p.price(d.Price), dashed(d.Color, d.LineWidth, 5, 5))
		if d.Label != "" {
			cv.Text(chart.Pixel{X: params.Padding.Left + 4, Y: y - 4}, d.Label, Font{Color: d.Color, Size: labelFontSize})
		}

	case domain.DrawingPriceMarker:
		y := params.PriceToY(d.Price)
		color := p.Theme.Sell
		if d.Side == domain.SideBuy {
			color = p.Theme.Buy
		}
		a, b := chart.Pixel{X: params.Padding.Left, Y: y}, chart.Pixel{X: plotRight(params), Y: y}
		if selected {
			p.glow(cv, a, b, color, d.LineWidth)
		}
		cv.Line(a, b, solid(color, d.LineWidth))
		x := params.Padding.Left
		s := solid(color, 1)
		cv.Rect(x, y-markerBoxHeight/2, markerBoxWidth, markerBoxHeight, fill(p.Theme.Background, 0.9), &s)
		cv.Text(chart.Pixel{X: x + 8, Y: y + 4}, d.Label+" "+p.price(d.Price), Font{Color: color, Size: 12})

	case domain.DrawingText:
		if d.Position == nil {
			return
		}
		anchor, ok := proj.ChartPointToPixel(*d.Position)
		if !ok {
			return
		}
		width := cv.MeasureText(d.Text, d.FontSize)
		x0, y0, x1, y1 := chart.TextBox(anchor, width, d.FontSize)
		bg := d.BackgroundColor
		if bg == "" {
			bg = p.Theme.Background
		}
		var border *Stroke
		if selected {
			border = &Stroke{Color: d.Color, Alpha: 1, Width: 2}
		}
		cv.Rect(x0, y0, x1-x0, y1-y0, fill(bg, 0.9), border)
		cv.Text(anchor, d.Text, Font{Color: d.Color, Size: d.FontSize})
	}
}

func (p *Pipeline) arrow(cv Canvas, a, b chart.Pixel, color string, width, headSize float64) {
	cv.Line(a, b, solid(color, width))
	if headSize <= 0 || a == b {
		return
	}
	angle := math.Atan2(b.Y-a.Y, b.X-a.X)
	head := []chart.Pixel{
		b,
		{X: b.X - headSize*math.Cos(angle-arrowHeadAngle), Y: b.Y - headSize*math.Sin(angle-arrowHeadAngle)},
		{X: b.X - headSize*math.Cos(angle+arrowHeadAngle), Y: b.Y - headSize*math.Sin(angle+arrowHeadAngle)},
	}
	cv.Polygon(head, fill(color, 1), nil)
}

func (p *Pipeline) preview(cv Canvas, pv *chart.DragPreview) {
	a, b := pv.Start, pv.Current
	color, width := pv.Style.Color, pv.Style.LineWidth
	switch pv.Type {
	case domain.DrawingTrendline:
		cv.Line(a, b, solid(color, width))
	case domain.DrawingArrow:
		p.arrow(cv, a, b, color, width, 15)
	case domain.DrawingRectangle:
		s := solid(color, width)
		cv.Rect(math.Min(a.X, b.X), math.Min(a.Y, b.Y), math.Abs(b.X-a.X), math.Abs(b.Y-a.Y), fill(color, 0.15), &s)
	}
}

func segment(proj chart.Projection, d *domain.Drawing) (chart.Pixel, chart.Pixel, bool) {
	if d.StartPoint == nil || d.EndPoint == nil {
		return chart.Pixel{}, chart.Pixel{}, false
	}
	a, ok := proj.ChartPointToPixel(*d.StartPoint)
	if !ok {
		return chart.Pixel{}, chart.Pixel{}, false
	}
	b, ok := proj.ChartPointToPixel(*d.EndPoint)
	if !ok {
		return chart.Pixel{}, chart.Pixel{}, false
	}
	return a, b, true
}

// extend stretches segment ab to the plot's left and/or right edge along its slope.
func extend(params chart.ChartParams, a, b chart.Pixel, left, right bool) (chart.Pixel, chart.Pixel) {
	if (!left && !right) || a.X == b.X {
		return a, b
	}
	if a.X > b.X {
		a, b = b, a
	}
	slope := (b.Y - a.Y) / (b.X - a.X)
	if left {
		x := params.Padding.Left
		a = chart.Pixel{X: x, Y: a.Y + (x-a.X)*slope}
	}
	if right {
		x := plotRight(params)
		b = chart.Pixel{X: x, Y: b.Y + (x-b.X)*slope}
	}
	return a, b
}
