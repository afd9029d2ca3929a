package chart

import (
	"math"
	"sort"

	"chartdesk/internal/domain"
)

// extrapolationWindow is how many inter-candle deltas are averaged into the synthetic
// interval used outside the candle range.
const extrapolationWindow = 10

// Pixel is a screen position in canvas coordinates.
type Pixel struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Padding is the frame around the plotted rectangle.
type Padding struct {
	Top    float64
	Right  float64
	Bottom float64
	Left   float64
}

// Timeline maps wall-clock time to fractional candle index ("logical" position) and back.
// It needs at least two candles; with fewer, every conversion fails.
type Timeline struct {
	times []int64
}

// NewTimeline wraps strictly increasing candle times.
func NewTimeline(times []int64) Timeline {
	return Timeline{times: times}
}

// Len returns the number of candles on the timeline.
func (tl Timeline) Len() int {
	return len(tl.times)
}

func (tl Timeline) meanDelta(from, to int) float64 {
	if to-from < 1 {
		return 0
	}
	return float64(tl.times[to]-tl.times[from]) / float64(to-from)
}

// tailInterval is the mean of the last deltas, used past the last candle.
func (tl Timeline) tailInterval() float64 {
	n := len(tl.times)
	return tl.meanDelta(max(0, n-1-extrapolationWindow), n-1)
}

// headInterval is the mean of the first deltas, used before the first candle.
func (tl Timeline) headInterval() float64 {
	n := len(tl.times)
	return tl.meanDelta(0, min(n-1, extrapolationWindow))
}

// TimeToLogical returns the fractional candle index of t, interpolating between the
// bracketing candles and extrapolating outside the range.
func (tl Timeline) TimeToLogical(t float64) (float64, bool) {
	n := len(tl.times)
	if n < 2 || math.IsNaN(t) || math.IsInf(t, 0) {
		return 0, false
	}
	first, last := float64(tl.times[0]), float64(tl.times[n-1])

	if t > last {
		iv := tl.tailInterval()
		if iv <= 0 {
			return 0, false
		}
		return float64(n-1) + (t-last)/iv, true
	}
	if t < first {
		iv := tl.headInterval()
		if iv <= 0 {
			return 0, false
		}
		return (t - first) / iv, true
	}

	i := sort.Search(n, func(i int) bool { return float64(tl.times[i]) >= t })
	if float64(tl.times[i]) == t {
		return float64(i), true
	}
	t0, t1 := float64(tl.times[i-1]), float64(tl.times[i])
	return float64(i-1) + (t-t0)/(t1-t0), true
}

// LogicalToTime is the inverse of TimeToLogical.
func (tl Timeline) LogicalToTime(l float64) (float64, bool) {
	n := len(tl.times)
	if n < 2 || math.IsNaN(l) || math.IsInf(l, 0) {
		return 0, false
	}
	first, last := float64(tl.times[0]), float64(tl.times[n-1])

	if l >= float64(n-1) {
		iv := tl.tailInterval()
		if iv <= 0 {
			return 0, false
		}
		return last + (l-float64(n-1))*iv, true
	}
	if l < 0 {
		iv := tl.headInterval()
		if iv <= 0 {
			return 0, false
		}
		return first + l*iv, true
	}

	i := int(math.Floor(l))
	frac := l - float64(i)
	t0, t1 := float64(tl.times[i]), float64(tl.times[i+1])
	return t0 + frac*(t1-t0), true
}

// ChartParams is the per-repaint layout snapshot every conversion reads from.
type ChartParams struct {
	Padding        Padding
	Width          float64
	Height         float64
	ChartWidth     float64
	ChartHeight    float64
	VisibleCandles int
	StartIndex     int
	MinPrice       float64
	MaxPrice       float64
	PriceRange     float64
	CandleGap      float64
	CandleWidth    float64
	PricePadRatio  float64
}

func (p ChartParams) priceSpan() (lo, span float64) {
	pad := p.PriceRange * p.PricePadRatio
	return p.MinPrice - pad, p.PriceRange + 2*pad
}

// PriceScaleValid reports whether PriceToY/YToPrice are usable.
func (p ChartParams) PriceScaleValid() bool {
	return p.ChartHeight > 0 && p.PriceRange > 0
}

// PriceToY maps [min-pad, max+pad] onto [top+chartHeight, top].
func (p ChartParams) PriceToY(price float64) float64 {
	lo, span := p.priceSpan()
	return p.Padding.Top + p.ChartHeight - (price-lo)/span*p.ChartHeight
}

// YToPrice is the exact inverse of PriceToY.
func (p ChartParams) YToPrice(y float64) float64 {
	lo, span := p.priceSpan()
	return lo + (p.Padding.Top+p.ChartHeight-y)/p.ChartHeight*span
}

// LogicalToX places a logical index at the visual centre of its bar.
func (p ChartParams) LogicalToX(l float64) float64 {
	return p.Padding.Left + (l-float64(p.StartIndex))*p.CandleGap + p.CandleWidth/2
}

// XToLogical is the inverse of LogicalToX.
func (p ChartParams) XToLogical(x float64) float64 {
	return (x-p.Padding.Left-p.CandleWidth/2)/p.CandleGap + float64(p.StartIndex)
}

// PlotContainsX reports whether x lies within the plotted horizontal extent.
func (p ChartParams) PlotContainsX(x float64) bool {
	return x >= p.Padding.Left && x <= p.Padding.Left+p.ChartWidth
}

// Projection composes the timeline with a params snapshot into chart-point/pixel conversions.
type Projection struct {
	Params   ChartParams
	Timeline Timeline
}

// Valid reports whether the projection can resolve any point.
func (pr Projection) Valid() bool {
	return pr.Timeline.Len() >= 2 && pr.Params.CandleGap > 0 && pr.Params.ChartWidth > 0 && pr.Params.PriceScaleValid()
}

// ChartPointToPixel projects a time/price point onto the canvas.
func (pr Projection) ChartPointToPixel(pt domain.Point) (Pixel, bool) {
	if !pr.Valid() {
		return Pixel{}, false
	}
	l, ok := pr.Timeline.TimeToLogical(pt.X)
	if !ok {
		return Pixel{}, false
	}
	return Pixel{X: pr.Params.LogicalToX(l), Y: pr.Params.PriceToY(pt.Y)}, true
}

// PixelToChartPoint resolves a canvas position into a time/price point. Positions outside
// the plotted rectangle still resolve; clamping is the caller's concern.
func (pr Projection) PixelToChartPoint(px Pixel) (domain.Point, bool) {
	if !pr.Valid() || math.IsNaN(px.X) || math.IsNaN(px.Y) {
		return domain.Point{}, false
	}
	t, ok := pr.Timeline.LogicalToTime(pr.Params.XToLogical(px.X))
	if !ok {
		return domain.Point{}, false
	}
	return domain.Point{X: t, Y: pr.Params.YToPrice(px.Y)}, true
}

// Layout is the static geometry of a chart canvas.
type Layout struct {
	Width           float64
	Height          float64
	Padding         Padding
	PricePadRatio   float64
	CandleBodyRatio float64
}

// ComputeParams builds the layout snapshot for one repaint. The price extrema cover the
// visible candles, every position level and the live price so they all stay on screen.
func ComputeParams(layout Layout, store *CandleStore, vp *Viewport, positions []domain.Position, currentPrice float64) ChartParams {
	p := ChartParams{
		Padding:       layout.Padding,
		Width:         layout.Width,
		Height:        layout.Height,
		ChartWidth:    math.Max(0, layout.Width-layout.Padding.Left-layout.Padding.Right),
		ChartHeight:   math.Max(0, layout.Height-layout.Padding.Top-layout.Padding.Bottom),
		PricePadRatio: layout.PricePadRatio,
	}

	start, count := vp.Window(store.Len())
	p.StartIndex, p.VisibleCandles = start, count
	if count > 0 && p.ChartWidth > 0 {
		p.CandleGap = p.ChartWidth / float64(count)
		ratio := layout.CandleBodyRatio
		if ratio <= 0 || ratio > 1 {
			ratio = 0.7
		}
		p.CandleWidth = math.Max(1, p.CandleGap*ratio)
	}

	lo, hi := math.Inf(1), math.Inf(-1)
	include := func(v float64) {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return
		}
		lo, hi = math.Min(lo, v), math.Max(hi, v)
	}
	for i := start; i < start+count; i++ {
		c := store.At(i)
		include(c.Low)
		include(c.High)
	}
	for i := range positions {
		include(positions[i].EntryPrice)
		if v, ok := positions[i].Exit(domain.ExitTakeProfit); ok {
			include(v)
		}
		if v, ok := positions[i].Exit(domain.ExitStopLoss); ok {
			include(v)
		}
	}
	if currentPrice > 0 {
		include(currentPrice)
	}
	if lo > hi {
		lo, hi = 0, 0
	}

	p.MinPrice, p.MaxPrice = lo, hi
	p.PriceRange = hi - lo
	if p.PriceRange <= 0 {
		p.PriceRange = 1
	}
	return p
}
